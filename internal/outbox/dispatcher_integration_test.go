//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"example.com/stepcause/internal/db/migrate"
	"example.com/stepcause/internal/events"
)

func TestPostgresDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, userID, events.TypeStepsAttributed))

	producer := &stubProducer{}
	dispatcher := NewDispatcher(NewPostgresStore(pool), producer, zap.NewNop(), 10*time.Millisecond, 5)

	beforeHistogram := histogramSampleCount(t)
	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, events.TopicStepsAttributed, producer.writes[0].topic)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestPostgresDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := uuid.NewString()
	eventID := seedOutbox(t, ctx, pool, userID, events.TypeStepsAttributed)

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(NewPostgresStore(pool), producer, zap.NewNop(), 10*time.Millisecond, 5)

	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicStepsAttributed))
	require.NoError(t, dispatcher.processBatch(ctx))
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicStepsAttributed)), 0.0001)

	var dlqCount int
	var reason string
	err := pool.QueryRow(ctx, `SELECT COUNT(*), MAX(reason) FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&dlqCount, &reason)
	require.NoError(t, err)
	require.Equal(t, 1, dlqCount)
	require.Contains(t, reason, "kafka write failed")

	var publishedAt time.Time
	require.NoError(t, pool.QueryRow(ctx, `SELECT published_at FROM outbox WHERE event_id = $1`, eventID).Scan(&publishedAt))
	require.False(t, publishedAt.IsZero())
}

func TestPostgresStoreRequeueReplaysDeadLetters(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := uuid.NewString()
	eventID := seedOutbox(t, ctx, pool, userID, events.TypeStepsAttributed)

	failing := NewDispatcher(NewPostgresStore(pool), &stubProducer{err: errors.New("broker down")}, zap.NewNop(), 10*time.Millisecond, 5)
	require.NoError(t, failing.processBatch(ctx))

	store := NewPostgresStore(pool)
	moved, err := store.Requeue(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, moved)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&dlqCount))
	require.Zero(t, dlqCount)

	producer := &stubProducer{}
	require.NoError(t, NewDispatcher(store, producer, zap.NewNop(), 10*time.Millisecond, 5).processBatch(ctx))
	require.Len(t, producer.writes, 1)

	moved, err = store.Requeue(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, moved)

	_, err = store.Requeue(ctx, 0)
	require.Error(t, err)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("stepcause"),
		postgrescontainer.WithUsername("stepcause"),
		postgrescontainer.WithPassword("stepcause"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))
	require.NoError(t, migrate.Run(connStr, "up"))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID, eventType string) int64 {
	t.Helper()

	payload, err := json.Marshal(events.StepsAttributed{UserID: userID, TotalSteps: 42, RecordedAt: time.Now().UTC()})
	require.NoError(t, err)

	var eventID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         RETURNING event_id`,
		"user", userID, eventType, events.TopicStepsAttributed, userID, payload, uuid.NewString(),
	).Scan(&eventID)
	require.NoError(t, err)
	return eventID
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
