package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer lazily manages one writer per topic. Messages are partitioned by
// key hash so events for one user keep their order.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	autoCreate   bool

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// ProducerOption customises a KafkaProducer.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout bounds how long a writer buffers before flushing.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) { p.batchTimeout = d }
}

// WithAutoTopicCreation lets the broker create missing topics on first write.
func WithAutoTopicCreation() ProducerOption {
	return func(p *KafkaProducer) { p.autoCreate = true }
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	p := &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WriteMessages writes messages to the given topic, creating a writer if necessary.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           p.batchTimeout,
		AllowAutoTopicCreation: p.autoCreate,
	}
	p.writers[topic] = writer
	return writer
}

// Topics returns the topics with an open writer.
func (p *KafkaProducer) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.writers))
	for topic := range p.writers {
		out = append(out, topic)
	}
	return out
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
