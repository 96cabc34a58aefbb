// Package causes manages advocacy causes, who supports them and the per-user
// distribution rules that route steps to them.
package causes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/stepcause/internal/distribution"
	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/lock"
)

// DefaultMostActiveLimit caps MostActive when no limit is given.
const DefaultMostActiveLimit = 10

// SimilarityChecker is the advisory duplicate detector consulted before creation.
type SimilarityChecker interface {
	CheckSimilar(ctx context.Context, proposed domain.ProposedCause, existing []domain.Cause) domain.SimilarityVerdict
	Enabled() bool
}

// Service orchestrates cause workflows.
type Service struct {
	store      domain.Store
	similarity SimilarityChecker
	locker     lock.Locker
	logger     *zap.Logger
	now        func() time.Time
}

// NewService constructs a Service. The locker must be the one shared with the
// attribution service so rule edits never race a cursor update.
func NewService(store domain.Store, similarity SimilarityChecker, locker lock.Locker, logger *zap.Logger) *Service {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		similarity: similarity,
		locker:     locker,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateInput captures a new cause from the API layer.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Icon        string
	Color       string
}

// UpdateInput carries optional cause edits; nil fields are left unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	Icon        *string
	Color       *string
	IsActive    *bool
}

// Supporter is one user's contribution to a cause.
type Supporter struct {
	UserID string
	Name   string
	Email  string
	Steps  int64
}

// SupporterBoard ranks the supporters of a cause by steps.
type SupporterBoard struct {
	TotalSupporters int
	MaxSteps        int64
	Supporters      []Supporter
}

// EnsureUser provisions the user on first sight and refreshes the email. The
// token name only fills an empty name so profile edits stick.
func (s *Service) EnsureUser(ctx context.Context, id, email, name string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user != nil && (email == "" || user.Email == email) && (name == "" || user.Name != "") {
		return user, nil
	}

	release, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err = s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &domain.User{ID: id, Distribution: make(domain.Distribution)}
		s.logger.Info("user provisioned", zap.String("user_id", id))
	}
	if email != "" {
		user.Email = email
	}
	if name != "" && user.Name == "" {
		user.Name = name
	}
	if err := s.store.PutUser(ctx, *user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListActive returns active causes ordered by total steps, largest first.
func (s *Service) ListActive(ctx context.Context) ([]domain.Cause, error) {
	all, err := s.store.ListCauses(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]domain.Cause, 0, len(all))
	for _, c := range all {
		if c.IsActive {
			active = append(active, c)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].TotalSteps > active[j].TotalSteps
	})
	return active, nil
}

// MostActive returns at most limit active causes by total steps.
func (s *Service) MostActive(ctx context.Context, limit int) ([]domain.Cause, error) {
	if limit <= 0 {
		limit = DefaultMostActiveLimit
	}
	active, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

// Get fetches a cause by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Cause, error) {
	cause, err := s.store.GetCause(ctx, id)
	if err != nil {
		return nil, err
	}
	if cause == nil {
		return nil, domain.ErrCauseNotFound
	}
	return cause, nil
}

// Create stores a new cause. The creator becomes its first supporter with interval 1.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Cause, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, fmt.Errorf("%w: title and description are required", domain.ErrInvalidArgument)
	}

	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cause := domain.Cause{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Category:    orDefault(input.Category, domain.DefaultCauseCategory),
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Supporters:  []string{userID},
		IsActive:    true,
		Icon:        orDefault(input.Icon, domain.DefaultCauseIcon),
		Color:       orDefault(input.Color, domain.DefaultCauseColor),
	}
	if err := s.store.PutCause(ctx, cause); err != nil {
		return nil, err
	}

	err := s.withUser(ctx, userID, func(user *domain.User) bool {
		if _, ok := user.Distribution[cause.ID]; ok {
			return false
		}
		user.Support(cause.ID, 1)
		return true
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("cause created", zap.String("cause_id", cause.ID), zap.String("user_id", userID))
	return &cause, nil
}

// Update applies creator-only edits.
func (s *Service) Update(ctx context.Context, userID, causeID string, input UpdateInput) (*domain.Cause, error) {
	cause, err := s.owned(ctx, userID, causeID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", domain.ErrInvalidArgument)
		}
		cause.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		if strings.TrimSpace(*input.Description) == "" {
			return nil, fmt.Errorf("%w: description cannot be empty", domain.ErrInvalidArgument)
		}
		cause.Description = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		cause.Category = orDefault(*input.Category, domain.DefaultCauseCategory)
	}
	if input.Icon != nil {
		cause.Icon = orDefault(*input.Icon, domain.DefaultCauseIcon)
	}
	if input.Color != nil {
		cause.Color = orDefault(*input.Color, domain.DefaultCauseColor)
	}
	if input.IsActive != nil {
		cause.IsActive = *input.IsActive
	}
	cause.UpdatedAt = s.now().UTC()

	if err := s.store.PutCause(ctx, *cause); err != nil {
		return nil, err
	}
	return cause, nil
}

// Delete removes a cause owned by userID.
func (s *Service) Delete(ctx context.Context, userID, causeID string) error {
	if _, err := s.owned(ctx, userID, causeID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteCause(ctx, causeID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrCauseNotFound
	}
	s.logger.Info("cause deleted", zap.String("cause_id", causeID), zap.String("user_id", userID))
	return nil
}

// Support adds userID to the cause and sets the rule interval, keeping an
// existing cursor. A zero interval means 1.
func (s *Service) Support(ctx context.Context, userID, causeID string, interval int64) (*domain.Cause, error) {
	if interval == 0 {
		interval = 1
	}
	if err := distribution.ValidateInterval(interval); err != nil {
		return nil, err
	}

	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.store.AddSupporter(ctx, causeID, userID, s.now().UTC()); err != nil {
		return nil, err
	}

	err := s.withUser(ctx, userID, func(user *domain.User) bool {
		user.Support(causeID, interval)
		return true
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, causeID)
}

// Unsupport removes userID from the cause and drops the rule with its cursor.
func (s *Service) Unsupport(ctx context.Context, userID, causeID string) (*domain.Cause, error) {
	if _, err := s.store.RemoveSupporter(ctx, causeID, userID, s.now().UTC()); err != nil {
		return nil, err
	}

	err := s.withUser(ctx, userID, func(user *domain.User) bool {
		if _, ok := user.Distribution[causeID]; !ok {
			return false
		}
		user.Unsupport(causeID)
		return true
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, causeID)
}

// UpdateDistribution changes the interval of an existing rule and returns the
// user's distribution. Unsupported causes are left untouched.
func (s *Service) UpdateDistribution(ctx context.Context, userID, causeID string, interval int64) (domain.Distribution, error) {
	if err := distribution.ValidateInterval(interval); err != nil {
		return nil, err
	}

	var out domain.Distribution
	err := s.withUser(ctx, userID, func(user *domain.User) bool {
		out = user.Distribution.Clone()
		rule, ok := user.Distribution[causeID]
		if !ok {
			return false
		}
		rule.Interval = interval
		user.Distribution[causeID] = rule
		out[causeID] = rule
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Supporters ranks the users who credited steps to causeID.
func (s *Service) Supporters(ctx context.Context, causeID string) (SupporterBoard, error) {
	if _, err := s.Get(ctx, causeID); err != nil {
		return SupporterBoard{}, err
	}

	records, err := s.store.ListStepsByCause(ctx, causeID)
	if err != nil {
		return SupporterBoard{}, err
	}

	byUser := make(map[string]int64)
	for _, rec := range records {
		byUser[rec.UserID] += rec.Steps
	}

	board := SupporterBoard{Supporters: make([]Supporter, 0, len(byUser))}
	for userID, steps := range byUser {
		user, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return SupporterBoard{}, err
		}
		if user == nil {
			continue
		}
		board.Supporters = append(board.Supporters, Supporter{
			UserID: user.ID,
			Name:   user.Name,
			Email:  user.Email,
			Steps:  steps,
		})
	}
	sort.Slice(board.Supporters, func(i, j int) bool {
		if board.Supporters[i].Steps == board.Supporters[j].Steps {
			return board.Supporters[i].UserID < board.Supporters[j].UserID
		}
		return board.Supporters[i].Steps > board.Supporters[j].Steps
	})

	board.TotalSupporters = len(board.Supporters)
	if board.TotalSupporters > 0 {
		board.MaxSteps = board.Supporters[0].Steps
	}
	return board, nil
}

// SimilarityEnabled reports whether duplicate detection is configured.
func (s *Service) SimilarityEnabled() bool {
	return s.similarity != nil && s.similarity.Enabled()
}

// CheckSimilar compares a proposed cause with every stored cause. A positive
// verdict is enriched with a live snapshot of the matched cause.
func (s *Service) CheckSimilar(ctx context.Context, input domain.ProposedCause) (domain.SimilarityVerdict, error) {
	proposed := domain.ProposedCause{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Category:    orDefault(input.Category, domain.DefaultCauseCategory),
	}
	if proposed.Title == "" || proposed.Description == "" {
		return domain.SimilarityVerdict{}, fmt.Errorf("%w: title and description are required", domain.ErrInvalidArgument)
	}
	if s.similarity == nil {
		return domain.SimilarityVerdict{Enabled: false, Reason: "similarity check disabled"}, nil
	}

	// Deactivated causes are not offered as duplicates.
	existing, err := s.ListActive(ctx)
	if err != nil {
		return domain.SimilarityVerdict{}, err
	}

	verdict := s.similarity.CheckSimilar(ctx, proposed, existing)
	if verdict.IsSimilar && verdict.MatchedCauseID != nil {
		matched, err := s.store.GetCause(ctx, *verdict.MatchedCauseID)
		if err != nil {
			return domain.SimilarityVerdict{}, err
		}
		if matched != nil {
			snapshot := matched.Snapshot()
			verdict.MatchedCause = &snapshot
		}
	}
	return verdict, nil
}

// withUser loads the user under its lock, applies mutate and saves when mutate
// reports a change.
func (s *Service) withUser(ctx context.Context, userID string, mutate func(*domain.User) bool) error {
	release, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer release()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrUserNotFound
	}
	if user.Distribution == nil {
		user.Distribution = make(domain.Distribution)
	}
	if !mutate(user) {
		return nil
	}
	return s.store.PutUser(ctx, *user)
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Service) owned(ctx context.Context, userID, causeID string) (*domain.Cause, error) {
	cause, err := s.Get(ctx, causeID)
	if err != nil {
		return nil, err
	}
	if cause.CreatedBy != userID {
		return nil, domain.ErrNotAuthorized
	}
	return cause, nil
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
