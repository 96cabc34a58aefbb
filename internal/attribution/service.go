// Package attribution records accepted step batches against the causes a user
// supports and answers the step history queries.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/stepcause/internal/distribution"
	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/integrity"
	"example.com/stepcause/internal/lock"
	"example.com/stepcause/internal/observability"
)

// BatchValidator accepts or rejects a raw activity batch.
type BatchValidator interface {
	Validate(batch domain.ActivityBatch) error
}

// StepSubmission is either a bare step count or a full activity batch. When Batch
// is set its StepCount wins and the integrity checks run first.
type StepSubmission struct {
	Count int64
	Batch *domain.ActivityBatch
}

// Recording is the outcome of one accepted submission.
type Recording struct {
	Result         domain.AttributionResult
	Records        []domain.StepRecord
	UserTotalSteps int64
}

// Service orchestrates step attribution.
type Service struct {
	store     domain.Store
	validator BatchValidator
	locker    lock.Locker
	logger    *zap.Logger
	now       func() time.Time
	maxSteps  int64
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used to stamp step records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxSteps caps the steps a single submission may carry. Zero or less
// leaves submissions unbounded apart from overflow checks.
func WithMaxSteps(limit int64) Option {
	return func(s *Service) { s.maxSteps = limit }
}

// NewService constructs a Service. A nil locker falls back to a process-local keyed mutex.
func NewService(store domain.Store, validator BatchValidator, locker lock.Locker, logger *zap.Logger, opts ...Option) *Service {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		validator: validator,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordSteps validates the submission, distributes it across the user's rules and
// persists the write-set atomically. Submissions for the same user are serialized so
// rule cursors advance monotonically.
func (s *Service) RecordSteps(ctx context.Context, userID string, sub StepSubmission) (*Recording, error) {
	steps := sub.Count
	if sub.Batch != nil {
		steps = sub.Batch.StepCount
	}
	if err := distribution.ValidateSteps(steps); err != nil {
		return nil, err
	}
	if s.maxSteps > 0 && steps > s.maxSteps {
		return nil, fmt.Errorf("%w: %d steps exceed the per-request limit of %d", domain.ErrInvalidArgument, steps, s.maxSteps)
	}

	if sub.Batch != nil && s.validator != nil {
		if err := s.validator.Validate(*sub.Batch); err != nil {
			var rejection *integrity.RejectionError
			if errors.As(err, &rejection) {
				observability.RecordBatchRejected(rejection.Reason)
			}
			s.logger.Info("activity batch rejected",
				zap.String("user_id", userID),
				zap.String("source", string(sub.Batch.Source)),
				zap.Error(err))
			return nil, err
		}
		observability.RecordBatchAccepted()
	}

	release, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer release()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	if err := distribution.ValidateCapacity(user.Distribution, user.TotalSteps, steps); err != nil {
		return nil, err
	}

	result, advanced := distribution.Distribute(user.Distribution, steps)
	if steps == 0 {
		return &Recording{Result: result, Records: []domain.StepRecord{}, UserTotalSteps: user.TotalSteps}, nil
	}

	recordedAt := s.now().UTC()
	records := buildRecords(userID, result, recordedAt)

	err = s.store.ApplyAttribution(ctx, domain.Attribution{
		UserID:       userID,
		Result:       result,
		Distribution: advanced,
		Records:      records,
		RecordedAt:   recordedAt,
	})
	if err != nil {
		return nil, err
	}

	credited := result.Credited()
	observability.RecordAttribution(steps, credited, recordedAt)
	s.logger.Debug("steps attributed",
		zap.String("user_id", userID),
		zap.Int64("steps", steps),
		zap.Int64("credited", credited),
		zap.Int("causes", len(records)))

	return &Recording{
		Result:         result,
		Records:        records,
		UserTotalSteps: user.TotalSteps + steps,
	}, nil
}

// MaxSteps reports the per-submission limit, zero when unbounded.
func (s *Service) MaxSteps() int64 {
	return s.maxSteps
}

// buildRecords emits one record per credited cause, ordered by cause ID.
func buildRecords(userID string, result domain.AttributionResult, at time.Time) []domain.StepRecord {
	causeIDs := make([]string, 0, len(result.PerCause))
	for causeID, n := range result.PerCause {
		if n > 0 {
			causeIDs = append(causeIDs, causeID)
		}
	}
	sort.Strings(causeIDs)

	records := make([]domain.StepRecord, 0, len(causeIDs))
	for _, causeID := range causeIDs {
		records = append(records, domain.StepRecord{
			ID:        uuid.NewString(),
			UserID:    userID,
			CauseID:   causeID,
			Steps:     result.PerCause[causeID],
			Timestamp: at,
			Date:      at.Format(domain.DateLayout),
		})
	}
	return records
}
