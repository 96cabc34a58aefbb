package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/stepcause/internal/events"
)

func TestProcessBatchDeliversAndMarksPublished(t *testing.T) {
	store := &fakeStore{pending: []Message{
		stepsMessage(1, "user-1"),
		stepsMessage(2, "user-2"),
	}}
	producer := &stubProducer{}
	dispatcher := NewDispatcher(store, producer, zap.NewNop(), 10*time.Millisecond, 5)

	before := testutil.ToFloat64(deliveredCounter)
	require.NoError(t, dispatcher.processBatch(context.Background()))

	require.Len(t, producer.writes, 1)
	require.Equal(t, events.TopicStepsAttributed, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, []byte("user-1"), producer.writes[0].messages[0].Key)
	require.Equal(t, "event_type", producer.writes[0].messages[0].Headers[0].Key)
	require.Equal(t, []int64{1, 2}, store.published)
	require.Empty(t, store.dlq)
	require.InDelta(t, before+2, testutil.ToFloat64(deliveredCounter), 0.0001)
}

func TestProcessBatchRoutesFailuresToDLQ(t *testing.T) {
	store := &fakeStore{pending: []Message{stepsMessage(7, "user-1")}}
	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(store, producer, zap.NewNop(), 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicStepsAttributed))

	require.NoError(t, dispatcher.processBatch(context.Background()))

	require.Len(t, store.dlq, 1)
	require.Contains(t, store.dlq[0], "kafka write failed")
	require.Equal(t, []int64{7}, store.published)
	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicStepsAttributed)), 0.0001)
}

func TestProcessBatchUnknownEventTypeSkipsKafka(t *testing.T) {
	msg := stepsMessage(3, "user-1")
	msg.EventType = "steps.unknown"
	store := &fakeStore{pending: []Message{msg}}
	producer := &stubProducer{}
	dispatcher := NewDispatcher(store, producer, zap.NewNop(), 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(context.Background()))

	require.Empty(t, producer.writes)
	require.Len(t, store.dlq, 1)
	require.Contains(t, store.dlq[0], "unknown event_type=steps.unknown")
}

func TestProcessBatchEmptyIsNoop(t *testing.T) {
	store := &fakeStore{}
	producer := &stubProducer{}
	dispatcher := NewDispatcher(store, producer, zap.NewNop(), 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(context.Background()))
	require.Empty(t, producer.writes)
	require.Empty(t, store.published)
}

func TestProcessBatchPropagatesClaimError(t *testing.T) {
	store := &fakeStore{claimErr: errors.New("db down")}
	dispatcher := NewDispatcher(store, &stubProducer{}, zap.NewNop(), 10*time.Millisecond, 5)

	require.EqualError(t, dispatcher.processBatch(context.Background()), "db down")
}

func TestStartStopsOnCancel(t *testing.T) {
	store := &fakeStore{pending: []Message{stepsMessage(1, "user-1")}}
	producer := &stubProducer{}
	dispatcher := NewDispatcher(store, producer, zap.NewNop(), 5*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.published) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	dispatcher.Wait()
}

func stepsMessage(id int64, userID string) Message {
	payload, _ := json.Marshal(events.StepsAttributed{UserID: userID, TotalSteps: 10})
	return Message{
		EventID:       id,
		AggregateType: "user",
		AggregateID:   userID,
		EventType:     events.TypeStepsAttributed,
		Topic:         events.TopicStepsAttributed,
		PartitionKey:  userID,
		Payload:       payload,
	}
}

type fakeStore struct {
	mu        sync.Mutex
	pending   []Message
	claimErr  error
	published []int64
	dlq       []string
}

func (s *fakeStore) Claim(ctx context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	out := s.pending[:limit]
	s.pending = s.pending[limit:]
	return out, nil
}

func (s *fakeStore) MarkPublished(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	return nil
}

func (s *fakeStore) MoveToDLQ(ctx context.Context, msg Message, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlq = append(s.dlq, reason)
	return nil
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}
