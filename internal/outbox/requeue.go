package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Requeue moves up to limit dead-lettered rows back into the outbox so the
// dispatcher replays them. It returns the number of rows moved.
func (s *PostgresStore) Requeue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("requeue limit must be positive, got %d", limit)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT dlq_id, aggregate_type, aggregate_id, event_type, topic, partition_key, payload
        FROM outbox_dlq
        ORDER BY created_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, err
	}

	type entry struct {
		id  int64
		msg Message
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.msg.AggregateType, &e.msg.AggregateID, &e.msg.EventType, &e.msg.Topic, &e.msg.PartitionKey, &e.msg.Payload); err != nil {
			rows.Close()
			return 0, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
             VALUES ($1,$2,$3,$4,$5,$6,$7)
             ON CONFLICT (dedupe_key) DO NOTHING`,
			e.msg.AggregateType, e.msg.AggregateID, e.msg.EventType, e.msg.Topic, e.msg.PartitionKey, e.msg.Payload,
			fmt.Sprintf("replay:%d", e.id))
		batch.Queue(`DELETE FROM outbox_dlq WHERE dlq_id = $1`, e.id)
	}

	results := tx.SendBatch(ctx, batch)
	var batchErr error
	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			batchErr = errors.Join(batchErr, err)
		}
	}
	if err := results.Close(); err != nil {
		batchErr = errors.Join(batchErr, err)
	}
	if batchErr != nil {
		return 0, batchErr
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	requeuedCounter.Add(float64(len(entries)))
	return len(entries), nil
}
