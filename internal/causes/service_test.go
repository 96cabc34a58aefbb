package causes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/persistence/memory"
)

type stubChecker struct {
	verdict  domain.SimilarityVerdict
	enabled  bool
	proposed domain.ProposedCause
	existing []string
}

func (s *stubChecker) CheckSimilar(ctx context.Context, proposed domain.ProposedCause, existing []domain.Cause) domain.SimilarityVerdict {
	s.proposed = proposed
	s.existing = s.existing[:0]
	for _, c := range existing {
		s.existing = append(s.existing, c.ID)
	}
	return s.verdict
}

func (s *stubChecker) Enabled() bool { return s.enabled }

func newTestService(t *testing.T, checker SimilarityChecker) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store, checker, nil, zap.NewNop())
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, id := range []string{"alice", "bob"} {
		_, err := svc.EnsureUser(context.Background(), id, id+"@example.com", id)
		require.NoError(t, err)
	}
	return svc, store
}

func TestCreateAutoSupportsCreator(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil)

	cause, err := svc.Create(ctx, "alice", CreateInput{Title: "  Clean Air ", Description: "Less smog"})
	require.NoError(t, err)
	require.Equal(t, "Clean Air", cause.Title)
	require.Equal(t, domain.DefaultCauseCategory, cause.Category)
	require.Equal(t, domain.DefaultCauseIcon, cause.Icon)
	require.Equal(t, domain.DefaultCauseColor, cause.Color)
	require.True(t, cause.IsActive)
	require.Equal(t, []string{"alice"}, cause.Supporters)

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{cause.ID}, user.CausesSupported)
	require.Equal(t, domain.DistributionRule{Interval: 1}, user.Distribution[cause.ID])
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	_, err := svc.Create(ctx, "alice", CreateInput{Title: " ", Description: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Create(ctx, "ghost", CreateInput{Title: "t", Description: "d"})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUpdateAndDeleteAreCreatorOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	cause, err := svc.Create(ctx, "alice", CreateInput{Title: "Parks", Description: "More parks"})
	require.NoError(t, err)

	title := "Bigger parks"
	_, err = svc.Update(ctx, "bob", cause.ID, UpdateInput{Title: &title})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	updated, err := svc.Update(ctx, "alice", cause.ID, UpdateInput{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.True(t, updated.UpdatedAt.After(cause.UpdatedAt))

	require.ErrorIs(t, svc.Delete(ctx, "bob", cause.ID), domain.ErrNotAuthorized)
	require.NoError(t, svc.Delete(ctx, "alice", cause.ID))

	_, err = svc.Get(ctx, cause.ID)
	require.ErrorIs(t, err, domain.ErrCauseNotFound)
}

func TestSupportKeepsCursorAndUnsupportDropsRule(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil)

	cause, err := svc.Create(ctx, "alice", CreateInput{Title: "Bikes", Description: "Bike lanes"})
	require.NoError(t, err)

	_, err = svc.Support(ctx, "bob", cause.ID, 0)
	require.NoError(t, err)

	bob, err := store.GetUser(ctx, "bob")
	require.NoError(t, err)
	bob.Distribution[cause.ID] = domain.DistributionRule{Interval: 1, Count: 42}
	require.NoError(t, store.PutUser(ctx, *bob))

	supported, err := svc.Support(ctx, "bob", cause.ID, 4)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, supported.Supporters)

	bob, err = store.GetUser(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, domain.DistributionRule{Interval: 4, Count: 42}, bob.Distribution[cause.ID])

	_, err = svc.Support(ctx, "bob", cause.ID, -2)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	unsupported, err := svc.Unsupport(ctx, "bob", cause.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, unsupported.Supporters)

	bob, err = store.GetUser(ctx, "bob")
	require.NoError(t, err)
	require.NotContains(t, bob.Distribution, cause.ID)
	require.Empty(t, bob.CausesSupported)
}

func TestUpdateDistribution(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	cause, err := svc.Create(ctx, "alice", CreateInput{Title: "Trees", Description: "Plant trees"})
	require.NoError(t, err)

	dist, err := svc.UpdateDistribution(ctx, "alice", cause.ID, 10)
	require.NoError(t, err)
	require.EqualValues(t, 10, dist[cause.ID].Interval)

	dist, err = svc.UpdateDistribution(ctx, "alice", "unknown", 3)
	require.NoError(t, err)
	require.NotContains(t, dist, "unknown")

	_, err = svc.UpdateDistribution(ctx, "alice", cause.ID, 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestListActiveAndMostActive(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil)

	ids := make([]string, 0, 3)
	for i, steps := range []int64{5, 50, 20} {
		c, err := svc.Create(ctx, "alice", CreateInput{Title: "c", Description: "d"})
		require.NoError(t, err)
		c.IsActive = i != 2
		require.NoError(t, store.PutCause(ctx, *c))
		require.NoError(t, store.ApplyAttribution(ctx, domain.Attribution{UserID: "alice", Records: []domain.StepRecord{
			{ID: c.ID + "-steps", UserID: "alice", CauseID: c.ID, Steps: steps},
		}}))
		ids = append(ids, c.ID)
	}

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, ids[1], active[0].ID)

	top, err := svc.MostActive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, ids[1], top[0].ID)
}

func TestSupportersRanksBySteps(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil)

	cause, err := svc.Create(ctx, "alice", CreateInput{Title: "Transit", Description: "Buses"})
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, rec := range []domain.StepRecord{
		{ID: "r1", UserID: "alice", CauseID: cause.ID, Steps: 10, Timestamp: at, Date: "2024-05-01"},
		{ID: "r2", UserID: "bob", CauseID: cause.ID, Steps: 30, Timestamp: at, Date: "2024-05-01"},
		{ID: "r3", UserID: "alice", CauseID: cause.ID, Steps: 5, Timestamp: at, Date: "2024-05-01"},
	} {
		require.NoError(t, store.ApplyAttribution(ctx, domain.Attribution{UserID: rec.UserID, Records: []domain.StepRecord{rec}}))
	}

	board, err := svc.Supporters(ctx, cause.ID)
	require.NoError(t, err)
	require.Equal(t, 2, board.TotalSupporters)
	require.EqualValues(t, 30, board.MaxSteps)
	require.Equal(t, "bob", board.Supporters[0].UserID)
	require.EqualValues(t, 15, board.Supporters[1].Steps)

	_, err = svc.Supporters(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrCauseNotFound)
}

func TestCheckSimilarEnrichesMatch(t *testing.T) {
	ctx := context.Background()
	checker := &stubChecker{enabled: true}
	svc, _ := newTestService(t, checker)

	cause, err := svc.Create(ctx, "alice", CreateInput{Title: "Clean Air", Description: "Less smog", Category: "environment"})
	require.NoError(t, err)

	id := cause.ID
	checker.verdict = domain.SimilarityVerdict{Enabled: true, IsSimilar: true, Confidence: 90, MatchedCauseID: &id}

	verdict, err := svc.CheckSimilar(ctx, domain.ProposedCause{Title: " Air quality ", Description: " Reduce smog "})
	require.NoError(t, err)
	require.True(t, verdict.IsSimilar)
	require.NotNil(t, verdict.MatchedCause)
	require.Equal(t, "Clean Air", verdict.MatchedCause.Title)
	require.Equal(t, 1, verdict.MatchedCause.Supporters)

	require.Equal(t, "Air quality", checker.proposed.Title)
	require.Equal(t, domain.DefaultCauseCategory, checker.proposed.Category)
	require.Equal(t, []string{id}, checker.existing)
	require.True(t, svc.SimilarityEnabled())
}

func TestCheckSimilarSkipsInactiveCauses(t *testing.T) {
	ctx := context.Background()
	checker := &stubChecker{enabled: true}
	svc, store := newTestService(t, checker)

	live, err := svc.Create(ctx, "alice", CreateInput{Title: "Clean Air", Description: "Less smog"})
	require.NoError(t, err)
	require.NoError(t, store.PutCause(ctx, domain.Cause{ID: "dead", Title: "Old Air", Description: "Retired", IsActive: false}))

	_, err = svc.CheckSimilar(ctx, domain.ProposedCause{Title: "Air", Description: "Smog"})
	require.NoError(t, err)
	require.Equal(t, []string{live.ID}, checker.existing)
}

func TestCheckSimilarWithoutClassifier(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	verdict, err := svc.CheckSimilar(ctx, domain.ProposedCause{Title: "t", Description: "d"})
	require.NoError(t, err)
	require.False(t, verdict.Enabled)
	require.False(t, verdict.IsSimilar)
	require.False(t, svc.SimilarityEnabled())

	_, err = svc.CheckSimilar(ctx, domain.ProposedCause{Title: "t"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
