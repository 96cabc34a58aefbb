package attribution

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/integrity"
	"example.com/stepcause/internal/persistence/memory"
)

var fixedNow = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, store *memory.Store) *Service {
	t.Helper()
	return NewService(store, integrity.NewValidator(integrity.Config{}), nil, zap.NewNop(),
		WithClock(func() time.Time { return fixedNow }))
}

func seedUser(t *testing.T, store *memory.Store, id string, rules map[string]int64) {
	t.Helper()
	ctx := context.Background()

	user := domain.User{ID: id}
	for causeID, interval := range rules {
		require.NoError(t, store.PutCause(ctx, domain.Cause{ID: causeID, Title: causeID, CreatedAt: fixedNow}))
		user.Support(causeID, interval)
	}
	require.NoError(t, store.PutUser(ctx, user))
}

func TestRecordStepsDistributesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUser(t, store, "u1", map[string]int64{"A": 1, "B": 3})
	svc := newTestService(t, store)

	rec, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 10})
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"A": 10, "B": 3}, rec.Result.PerCause)
	require.EqualValues(t, 10, rec.UserTotalSteps)
	require.Len(t, rec.Records, 2)
	require.Equal(t, "A", rec.Records[0].CauseID)
	require.Equal(t, "2024-03-09", rec.Records[0].Date)

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 10, user.TotalSteps)
	require.EqualValues(t, 10, user.Distribution["B"].Count)

	cause, err := store.GetCause(ctx, "B")
	require.NoError(t, err)
	require.EqualValues(t, 3, cause.TotalSteps)
}

func TestRecordStepsCarriesCursorAcrossBatches(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUser(t, store, "u1", map[string]int64{"C": 5})
	svc := newTestService(t, store)

	first, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 3})
	require.NoError(t, err)
	require.EqualValues(t, 0, first.Result.PerCause["C"])
	require.Empty(t, first.Records)

	second, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 4})
	require.NoError(t, err)
	require.EqualValues(t, 1, second.Result.PerCause["C"])
}

func TestRecordStepsWithoutCausesIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUser(t, store, "u1", nil)
	svc := newTestService(t, store)

	rec, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 1000})
	require.NoError(t, err)
	require.Empty(t, rec.Result.PerCause)
	require.EqualValues(t, 1000, rec.UserTotalSteps)
}

func TestRecordStepsRejectsImplausibleBatch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUser(t, store, "u1", map[string]int64{"A": 1})
	svc := newTestService(t, store)

	batch := &domain.ActivityBatch{
		Source:    domain.SourceHealthKit,
		StartTime: fixedNow,
		EndTime:   fixedNow.Add(10 * time.Minute),
		StepCount: 5000,
	}
	_, err := svc.RecordSteps(ctx, "u1", StepSubmission{Batch: batch})
	require.ErrorIs(t, err, domain.ErrBatchRejected)

	var rejection *integrity.RejectionError
	require.True(t, errors.As(err, &rejection))
	require.Equal(t, integrity.ReasonCadenceExceeded, rejection.Reason)

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, user.TotalSteps)
	require.Zero(t, user.Distribution["A"].Count)
}

func TestRecordStepsAcceptsPlausibleBatch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUser(t, store, "u1", map[string]int64{"A": 2})
	svc := newTestService(t, store)

	distance := 800.0
	batch := &domain.ActivityBatch{
		Source:         domain.SourceGarminConnect,
		StartTime:      fixedNow,
		EndTime:        fixedNow.Add(10 * time.Minute),
		StepCount:      1000,
		DistanceMeters: &distance,
	}
	rec, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 1, Batch: batch})
	require.NoError(t, err)
	require.EqualValues(t, 500, rec.Result.PerCause["A"])
	require.EqualValues(t, 1000, rec.Result.TotalSteps)
}

func TestRecordStepsErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newTestService(t, store)

	_, err := svc.RecordSteps(ctx, "ghost", StepSubmission{Count: 10})
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = svc.RecordSteps(ctx, "ghost", StepSubmission{Count: -1})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRecordStepsEnforcesMaxSteps(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUser(t, store, "u1", map[string]int64{"A": 2})
	svc := NewService(store, nil, nil, zap.NewNop(), WithMaxSteps(1000))
	require.EqualValues(t, 1000, svc.MaxSteps())

	_, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 1001})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	rec, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 1000})
	require.NoError(t, err)
	require.EqualValues(t, 500, rec.Result.PerCause["A"])
}

func TestRecordStepsRejectsCursorOverflow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.PutCause(ctx, domain.Cause{ID: "a", Title: "a", CreatedAt: fixedNow}))
	require.NoError(t, store.PutUser(ctx, domain.User{
		ID:           "u1",
		Distribution: domain.Distribution{"a": {Interval: 3, Count: math.MaxInt64 - 5}},
	}))
	svc := newTestService(t, store)

	_, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 10})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, math.MaxInt64-5, user.Distribution["a"].Count)
	require.Zero(t, user.TotalSteps)

	rec, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 5})
	require.NoError(t, err)
	require.EqualValues(t, 2, rec.Result.PerCause["a"])
}

func TestRecordStepsSerializesPerUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUser(t, store, "u1", map[string]int64{"A": 7})
	svc := newTestService(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordSteps(ctx, "u1", StepSubmission{Count: 5})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 100, user.TotalSteps)
	require.EqualValues(t, 100, user.Distribution["A"].Count)

	cause, err := store.GetCause(ctx, "A")
	require.NoError(t, err)
	require.EqualValues(t, 14, cause.TotalSteps)
}
