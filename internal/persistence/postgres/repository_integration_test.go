//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/stepcause/internal/db/migrate"
	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/events"
)

func setupRepository(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

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

	return NewRepository(pool), pool
}

func TestRepositoryUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	missing, err := repo.GetUser(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)

	user := domain.User{ID: uuid.NewString(), Email: "walker@example.com", Name: "Walker", Picture: "https://img/w.png"}
	user.Support("cause-a", 2)
	user.Support("cause-b", 5)
	require.NoError(t, repo.PutUser(ctx, user))

	user.Unsupport("cause-b")
	require.NoError(t, repo.PutUser(ctx, user))

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, []string{"cause-a"}, stored.CausesSupported)
	require.Equal(t, "https://img/w.png", stored.Picture)
	require.Equal(t, domain.Distribution{"cause-a": {Interval: 2}}, stored.Distribution)
}

func TestRepositoryApplyAttribution(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	cause := domain.Cause{
		ID: uuid.NewString(), Title: "Clean Air", Description: "Less smog", Category: "environment",
		CreatedBy: "creator", IsActive: true, Icon: domain.DefaultCauseIcon, Color: domain.DefaultCauseColor,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.PutCause(ctx, cause))

	user := domain.User{ID: uuid.NewString()}
	user.Support(cause.ID, 3)
	require.NoError(t, repo.PutUser(ctx, user))

	rec := domain.StepRecord{
		ID: uuid.NewString(), UserID: user.ID, CauseID: cause.ID, Steps: 3,
		Timestamp: now, Date: now.Format(domain.DateLayout),
	}
	err := repo.ApplyAttribution(ctx, domain.Attribution{
		UserID:       user.ID,
		Result:       domain.AttributionResult{TotalSteps: 10, PerCause: map[string]int64{cause.ID: 3}},
		Distribution: domain.Distribution{cause.ID: {Interval: 3, Count: 10}},
		Records:      []domain.StepRecord{rec},
		RecordedAt:   now,
	})
	require.NoError(t, err)

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, stored.TotalSteps)
	require.EqualValues(t, 10, stored.Distribution[cause.ID].Count)

	storedCause, err := repo.GetCause(ctx, cause.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, storedCause.TotalSteps)

	byDate, err := repo.ListStepsByDate(ctx, rec.Date)
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	require.Equal(t, rec.Date, byDate[0].Date)

	page, next, err := repo.ListStepsByUser(ctx, user.ID, nil, 5)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Nil(t, next)

	var eventType, topic string
	err = pool.QueryRow(ctx, `SELECT event_type, topic FROM outbox WHERE aggregate_id=$1`, user.ID).Scan(&eventType, &topic)
	require.NoError(t, err)
	require.Equal(t, events.TypeStepsAttributed, eventType)
	require.Equal(t, events.TopicStepsAttributed, topic)
}

func TestRepositoryApplyAttributionUnknownUser(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	err := repo.ApplyAttribution(ctx, domain.Attribution{
		UserID:     "ghost",
		Result:     domain.AttributionResult{TotalSteps: 1},
		RecordedAt: time.Now().UTC(),
	})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestRepositoryCauseEditsKeepStepsAndSupporters(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	cause := domain.Cause{
		ID: uuid.NewString(), Title: "Clean Air", Description: "Less smog", Category: "environment",
		CreatedBy: "creator", Supporters: []string{"creator"}, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.PutCause(ctx, cause))

	user := domain.User{ID: uuid.NewString()}
	user.Support(cause.ID, 1)
	require.NoError(t, repo.PutUser(ctx, user))

	stale, err := repo.GetCause(ctx, cause.ID)
	require.NoError(t, err)
	stale.Title = "Cleaner Air"

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 10; i++ {
		// The outbox dedupe key includes the record time.
		at := now.Add(time.Duration(i) * time.Millisecond)
		g.Go(func() error {
			return repo.ApplyAttribution(gctx, domain.Attribution{
				UserID: user.ID,
				Result: domain.AttributionResult{TotalSteps: 4, PerCause: map[string]int64{cause.ID: 4}},
				Records: []domain.StepRecord{{
					ID: uuid.NewString(), UserID: user.ID, CauseID: cause.ID, Steps: 4,
					Timestamp: at, Date: at.Format(domain.DateLayout),
				}},
				RecordedAt: at,
			})
		})
		g.Go(func() error {
			_, err := repo.AddSupporter(gctx, cause.ID, fmt.Sprintf("walker-%d", i), now)
			return err
		})
		g.Go(func() error { return repo.PutCause(gctx, *stale) })
	}
	require.NoError(t, g.Wait())

	stored, err := repo.GetCause(ctx, cause.ID)
	require.NoError(t, err)
	require.Equal(t, "Cleaner Air", stored.Title)
	require.EqualValues(t, 40, stored.TotalSteps)
	require.Len(t, stored.Supporters, 11)

	added, err := repo.AddSupporter(ctx, cause.ID, "walker-0", now)
	require.NoError(t, err)
	require.False(t, added)

	removed, err := repo.RemoveSupporter(ctx, cause.ID, "walker-0", now)
	require.NoError(t, err)
	require.True(t, removed)

	_, err = repo.RemoveSupporter(ctx, uuid.NewString(), "walker-0", now)
	require.ErrorIs(t, err, domain.ErrCauseNotFound)
}

func TestRepositoryMessages(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	cause := domain.Cause{ID: uuid.NewString(), Title: "t", Description: "d", Category: "other", CreatedBy: "u", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.PutCause(ctx, cause))

	older := domain.Message{ID: uuid.NewString(), CauseID: cause.ID, UserID: "alice", UserName: "Alice", Body: "older", Kind: domain.MessagePlacard, CreatedAt: now}
	newer := domain.Message{ID: uuid.NewString(), CauseID: cause.ID, UserID: "bob", Body: "newer", Kind: domain.MessageShout, CreatedAt: now.Add(time.Minute)}
	require.NoError(t, repo.PutMessage(ctx, older))
	require.NoError(t, repo.PutMessage(ctx, newer))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := repo.LikeMessage(gctx, older.ID, fmt.Sprintf("fan-%d", i))
			return err
		})
	}
	require.NoError(t, g.Wait())

	liked, err := repo.LikeMessage(ctx, older.ID, "fan-0")
	require.NoError(t, err)
	require.False(t, liked)
	_, err = repo.LikeMessage(ctx, uuid.NewString(), "fan-0")
	require.ErrorIs(t, err, domain.ErrMessageNotFound)

	top, err := repo.TopMessages(ctx, cause.ID, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, older.ID, top[0].ID)
	require.Equal(t, 5, top[0].Likes())

	byCause, err := repo.ListMessagesByCause(ctx, cause.ID)
	require.NoError(t, err)
	require.Equal(t, newer.ID, byCause[0].ID)

	unliked, err := repo.UnlikeMessage(ctx, older.ID, "fan-3")
	require.NoError(t, err)
	require.True(t, unliked)

	deleted, err := repo.DeleteCause(ctx, cause.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	gone, err := repo.GetMessage(ctx, older.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestRepositoryDeleteCause(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	now := time.Now().UTC()
	cause := domain.Cause{ID: uuid.NewString(), Title: "t", Description: "d", Category: "other", CreatedBy: "u", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.PutCause(ctx, cause))

	deleted, err := repo.DeleteCause(ctx, cause.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.DeleteCause(ctx, cause.ID)
	require.NoError(t, err)
	require.False(t, deleted)
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
