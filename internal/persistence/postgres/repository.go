// Package postgres persists users, causes, distribution rules and step records in
// PostgreSQL and records outbox events in the same transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/events"
)

// Repository provides Postgres-backed persistence implementing domain.Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const causeColumns = `cause_id, title, description, category, created_by, supporters, total_steps, is_active, icon, color, created_at, updated_at`

// maxPage bounds an unpaginated history read.
const maxPage = 10000

const stepColumns = `step_id, user_id, cause_id, steps, recorded_at, record_date::text`

// GetUser loads a user with its distribution rules. A missing user yields nil, nil.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	user, err := loadUser(ctx, tx, id, false)
	if err != nil || user == nil {
		return nil, err
	}
	return user, tx.Commit(ctx)
}

func loadUser(ctx context.Context, tx pgx.Tx, id string, forUpdate bool) (*domain.User, error) {
	query := `SELECT user_id, email, name, picture, total_steps, causes_supported FROM users WHERE user_id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var user domain.User
	err := tx.QueryRow(ctx, query, id).Scan(&user.ID, &user.Email, &user.Name, &user.Picture, &user.TotalSteps, &user.CausesSupported)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT cause_id, step_interval, step_cursor FROM distribution_rules WHERE user_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	user.Distribution = make(domain.Distribution)
	for rows.Next() {
		var causeID string
		var rule domain.DistributionRule
		if err := rows.Scan(&causeID, &rule.Interval, &rule.Count); err != nil {
			return nil, err
		}
		user.Distribution[causeID] = rule
	}
	return &user, rows.Err()
}

// PutUser upserts the user and replaces its distribution rules.
func (r *Repository) PutUser(ctx context.Context, user domain.User) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	supported := user.CausesSupported
	if supported == nil {
		supported = []string{}
	}

	_, err = tx.Exec(ctx, `INSERT INTO users (user_id, email, name, picture, total_steps, causes_supported)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id) DO UPDATE SET email=EXCLUDED.email, name=EXCLUDED.name, picture=EXCLUDED.picture,
            total_steps=EXCLUDED.total_steps, causes_supported=EXCLUDED.causes_supported, updated_at=NOW()`,
		user.ID, user.Email, user.Name, user.Picture, user.TotalSteps, supported)
	if err != nil {
		return err
	}

	causeIDs := make([]string, 0, len(user.Distribution))
	for causeID := range user.Distribution {
		causeIDs = append(causeIDs, causeID)
	}
	sort.Strings(causeIDs)

	if _, err = tx.Exec(ctx, `DELETE FROM distribution_rules WHERE user_id=$1 AND NOT (cause_id = ANY($2))`, user.ID, causeIDs); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, causeID := range causeIDs {
		rule := user.Distribution[causeID]
		batch.Queue(`INSERT INTO distribution_rules (user_id, cause_id, step_interval, step_cursor)
            VALUES ($1,$2,$3,$4)
            ON CONFLICT (user_id, cause_id) DO UPDATE SET step_interval=EXCLUDED.step_interval, step_cursor=EXCLUDED.step_cursor`,
			user.ID, causeID, rule.Interval, rule.Count)
	}
	if batch.Len() > 0 {
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetCause retrieves a cause by ID. A missing cause yields nil, nil.
func (r *Repository) GetCause(ctx context.Context, id string) (*domain.Cause, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+causeColumns+` FROM causes WHERE cause_id=$1`, id)
	cause, err := scanCause(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cause, nil
}

// PutCause upserts a cause. On conflict only the editable fields change:
// total_steps belongs to ApplyAttribution and supporters to AddSupporter.
func (r *Repository) PutCause(ctx context.Context, cause domain.Cause) error {
	supporters := cause.Supporters
	if supporters == nil {
		supporters = []string{}
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO causes (`+causeColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (cause_id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description,
            category=EXCLUDED.category, is_active=EXCLUDED.is_active, icon=EXCLUDED.icon,
            color=EXCLUDED.color, updated_at=EXCLUDED.updated_at`,
		cause.ID, cause.Title, cause.Description, cause.Category, cause.CreatedBy, supporters,
		cause.TotalSteps, cause.IsActive, cause.Icon, cause.Color, cause.CreatedAt, cause.UpdatedAt)
	return err
}

// AddSupporter appends userID to the cause's supporters in place.
func (r *Repository) AddSupporter(ctx context.Context, causeID, userID string, at time.Time) (bool, error) {
	return r.editSupporters(ctx, causeID, `UPDATE causes SET supporters = array_append(supporters, $2), updated_at=$3
        WHERE cause_id=$1 AND NOT ($2 = ANY(supporters))`, userID, at)
}

// RemoveSupporter drops userID from the cause's supporters in place.
func (r *Repository) RemoveSupporter(ctx context.Context, causeID, userID string, at time.Time) (bool, error) {
	return r.editSupporters(ctx, causeID, `UPDATE causes SET supporters = array_remove(supporters, $2), updated_at=$3
        WHERE cause_id=$1 AND $2 = ANY(supporters)`, userID, at)
}

func (r *Repository) editSupporters(ctx context.Context, causeID, stmt, userID string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, stmt, causeID, userID, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM causes WHERE cause_id=$1)`, causeID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrCauseNotFound
	}
	return false, nil
}

// DeleteCause removes a cause and reports whether it existed.
func (r *Repository) DeleteCause(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM causes WHERE cause_id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListCauses returns every cause ordered by creation time.
func (r *Repository) ListCauses(ctx context.Context) ([]domain.Cause, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+causeColumns+` FROM causes ORDER BY created_at, cause_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Cause, 0)
	for rows.Next() {
		cause, err := scanCause(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cause)
	}
	return out, rows.Err()
}

// ListStepsByUser returns step records newest first using keyset pagination.
func (r *Repository) ListStepsByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.StepRecord, *domain.Cursor, error) {
	fetch := limit
	if fetch > 0 {
		fetch++
	} else {
		fetch = maxPage
	}
	args := []interface{}{userID, fetch}
	query := `SELECT ` + stepColumns + ` FROM step_records WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (recorded_at, step_id) < ($3, $4)`
		args = append(args, cursor.Timestamp, cursor.ID)
	}
	query += ` ORDER BY recorded_at DESC, step_id DESC LIMIT $2`

	results, err := r.querySteps(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) > limit {
		results = results[:limit]
		last := results[len(results)-1]
		next = &domain.Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}
	return results, next, nil
}

// ListStepsByCause returns every step record credited to a cause.
func (r *Repository) ListStepsByCause(ctx context.Context, causeID string) ([]domain.StepRecord, error) {
	return r.querySteps(ctx, `SELECT `+stepColumns+` FROM step_records WHERE cause_id=$1 ORDER BY recorded_at`, causeID)
}

// ListStepsByDate returns every step record for a calendar day (YYYY-MM-DD).
func (r *Repository) ListStepsByDate(ctx context.Context, date string) ([]domain.StepRecord, error) {
	return r.querySteps(ctx, `SELECT `+stepColumns+` FROM step_records WHERE record_date=$1::date ORDER BY recorded_at`, date)
}

// ApplyAttribution writes the user total, advanced cursors, cause totals, step
// records and the steps.attributed outbox event in one transaction.
func (r *Repository) ApplyAttribution(ctx context.Context, attribution domain.Attribution) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var userTotal int64
	err = tx.QueryRow(ctx, `UPDATE users SET total_steps = total_steps + $2, updated_at = NOW()
        WHERE user_id=$1 RETURNING total_steps`,
		attribution.UserID, attribution.Result.TotalSteps).Scan(&userTotal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.ErrUserNotFound
		}
		return err
	}

	batch := &pgx.Batch{}
	for causeID, rule := range attribution.Distribution {
		batch.Queue(`UPDATE distribution_rules SET step_cursor=$3 WHERE user_id=$1 AND cause_id=$2`,
			attribution.UserID, causeID, rule.Count)
	}
	for _, rec := range attribution.Records {
		batch.Queue(`UPDATE causes SET total_steps = total_steps + $2, updated_at = NOW() WHERE cause_id=$1`,
			rec.CauseID, rec.Steps)
		batch.Queue(`INSERT INTO step_records (step_id, user_id, cause_id, steps, recorded_at, record_date)
            VALUES ($1,$2,$3,$4,$5,$6::date)`,
			rec.ID, rec.UserID, rec.CauseID, rec.Steps, rec.Timestamp, rec.Date)
	}
	if batch.Len() > 0 {
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	credited := make(map[string]int64, len(attribution.Result.PerCause))
	for causeID, n := range attribution.Result.PerCause {
		if n > 0 {
			credited[causeID] = n
		}
	}
	if err = insertOutbox(ctx, tx, attribution, events.StepsAttributed{
		UserID:          attribution.UserID,
		TotalSteps:      attribution.Result.TotalSteps,
		CreditedByCause: credited,
		UserTotalSteps:  userTotal,
		RecordedAt:      attribution.RecordedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, attribution domain.Attribution, payload events.StepsAttributed) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[events.TypeStepsAttributed]
	if !ok {
		return fmt.Errorf("unknown event type: %s", events.TypeStepsAttributed)
	}
	dedupeKey := fmt.Sprintf("%s:%s:%d", attribution.UserID, events.TypeStepsAttributed, attribution.RecordedAt.UnixNano())

	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		"user",
		attribution.UserID,
		events.TypeStepsAttributed,
		meta.Topic,
		meta.PartitionKeyFn(attribution),
		body,
		dedupeKey,
	)
	return err
}

func (r *Repository) querySteps(ctx context.Context, query string, args ...interface{}) ([]domain.StepRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.StepRecord, 0)
	for rows.Next() {
		var rec domain.StepRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CauseID, &rec.Steps, &rec.Timestamp, &rec.Date); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanCause(row pgx.Row) (domain.Cause, error) {
	var c domain.Cause
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.CreatedBy, &c.Supporters,
		&c.TotalSteps, &c.IsActive, &c.Icon, &c.Color, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	PartitionKeyFn func(domain.Attribution) string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeStepsAttributed: {
		Topic: events.TopicStepsAttributed,
		PartitionKeyFn: func(a domain.Attribution) string {
			return a.UserID
		},
	},
}
