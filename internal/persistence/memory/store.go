// Package memory keeps users, causes, step records and messages in process
// memory for local development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/persistence"
)

// Store implements domain.Store in memory.
type Store struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	causes   map[string]domain.Cause
	steps    []domain.StepRecord
	messages map[string]domain.Message
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		causes:   make(map[string]domain.Cause),
		messages: make(map[string]domain.Message),
	}
}

// GetUser implements domain.UserRepository. A missing user yields nil, nil.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	out := copyUser(user)
	return &out, nil
}

// PutUser implements domain.UserRepository.
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(user.ID) == "" {
		user.ID = uuid.NewString()
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// GetCause implements domain.CauseRepository. A missing cause yields nil, nil.
func (s *Store) GetCause(ctx context.Context, id string) (*domain.Cause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cause, ok := s.causes[id]
	if !ok {
		return nil, nil
	}
	out := copyCause(cause)
	return &out, nil
}

// PutCause implements domain.CauseRepository. An existing cause keeps its
// stored step total and supporters.
func (s *Store) PutCause(ctx context.Context, cause domain.Cause) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(cause.ID) == "" {
		cause.ID = uuid.NewString()
	}
	if current, ok := s.causes[cause.ID]; ok {
		cause.TotalSteps = current.TotalSteps
		cause.Supporters = current.Supporters
		cause.CreatedBy = current.CreatedBy
		cause.CreatedAt = current.CreatedAt
	}
	s.causes[cause.ID] = copyCause(cause)
	return nil
}

// AddSupporter implements domain.CauseRepository.
func (s *Store) AddSupporter(ctx context.Context, causeID, userID string, at time.Time) (bool, error) {
	return s.editSupporters(causeID, at, func(c *domain.Cause) bool { return c.AddSupporter(userID) })
}

// RemoveSupporter implements domain.CauseRepository.
func (s *Store) RemoveSupporter(ctx context.Context, causeID, userID string, at time.Time) (bool, error) {
	return s.editSupporters(causeID, at, func(c *domain.Cause) bool { return c.RemoveSupporter(userID) })
}

func (s *Store) editSupporters(causeID string, at time.Time, edit func(*domain.Cause) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cause, ok := s.causes[causeID]
	if !ok {
		return false, domain.ErrCauseNotFound
	}
	cause = copyCause(cause)
	if !edit(&cause) {
		return false, nil
	}
	cause.UpdatedAt = at
	s.causes[causeID] = cause
	return true, nil
}

// DeleteCause implements domain.CauseRepository. The cause's messages go with it.
func (s *Store) DeleteCause(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.causes[id]; !ok {
		return false, nil
	}
	delete(s.causes, id)
	for msgID, msg := range s.messages {
		if msg.CauseID == id {
			delete(s.messages, msgID)
		}
	}
	return true, nil
}

// ListCauses implements domain.CauseRepository, ordered by creation time.
func (s *Store) ListCauses(ctx context.Context) ([]domain.Cause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Cause, 0, len(s.causes))
	for _, c := range s.causes {
		out = append(out, copyCause(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListStepsByUser implements domain.StepRepository, newest first.
func (s *Store) ListStepsByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.StepRecord, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.StepRecord, 0)
	for _, rec := range s.steps {
		if rec.UserID == userID && persistence.Before(cursor, rec.Timestamp, rec.ID) {
			matches = append(matches, rec)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Timestamp.Equal(matches[j].Timestamp) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})

	if limit <= 0 || limit >= len(matches) {
		return matches, nil, nil
	}
	page := matches[:limit]
	last := page[len(page)-1]
	return page, &domain.Cursor{Timestamp: last.Timestamp, ID: last.ID}, nil
}

// ListStepsByCause implements domain.StepRepository.
func (s *Store) ListStepsByCause(ctx context.Context, causeID string) ([]domain.StepRecord, error) {
	return s.filterSteps(func(rec domain.StepRecord) bool { return rec.CauseID == causeID }), nil
}

// ListStepsByDate implements domain.StepRepository.
func (s *Store) ListStepsByDate(ctx context.Context, date string) ([]domain.StepRecord, error) {
	return s.filterSteps(func(rec domain.StepRecord) bool { return rec.Date == date }), nil
}

// ApplyAttribution implements domain.AttributionStore. Causes deleted since the
// rules were loaded are skipped, matching the step records that are still written.
func (s *Store) ApplyAttribution(ctx context.Context, attribution domain.Attribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[attribution.UserID]
	if !ok {
		return domain.ErrUserNotFound
	}

	user.TotalSteps += attribution.Result.TotalSteps
	next := make(domain.Distribution, len(user.Distribution))
	for causeID, rule := range user.Distribution {
		if advanced, ok := attribution.Distribution[causeID]; ok {
			rule.Count = advanced.Count
		}
		next[causeID] = rule
	}
	user.Distribution = next
	s.users[user.ID] = user

	for _, rec := range attribution.Records {
		if cause, ok := s.causes[rec.CauseID]; ok {
			cause.TotalSteps += rec.Steps
			s.causes[rec.CauseID] = cause
		}
		s.steps = append(s.steps, rec)
	}
	return nil
}

func (s *Store) filterSteps(keep func(domain.StepRecord) bool) []domain.StepRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StepRecord, 0)
	for _, rec := range s.steps {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func copyUser(u domain.User) domain.User {
	u.CausesSupported = slices.Clone(u.CausesSupported)
	u.Distribution = u.Distribution.Clone()
	return u
}

func copyCause(c domain.Cause) domain.Cause {
	c.Supporters = slices.Clone(c.Supporters)
	return c
}
