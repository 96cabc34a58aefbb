package attribution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"example.com/stepcause/internal/domain"
)

// Page size bounds for History.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// CauseStats summarises one user's steps for one cause.
type CauseStats struct {
	TotalSteps int64
	Records    int
	LastUpdate *time.Time
}

// DailySteps lists one user's step records for a calendar day.
type DailySteps struct {
	Date       string
	TotalSteps int64
	Records    []domain.StepRecord
}

// CauseTotal pairs a cause with the steps a user credited to it.
type CauseTotal struct {
	Cause domain.Cause
	Steps int64
}

// UserStats is the dashboard summary of a user.
type UserStats struct {
	TotalSteps      int64
	CausesSupported int
	Distribution    domain.Distribution
	CauseStats      []CauseTotal
}

// History returns the user's step records newest first.
func (s *Service) History(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.StepRecord, *domain.Cursor, error) {
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return s.store.ListStepsByUser(ctx, userID, cursor, limit)
}

// CauseStats totals the user's records for causeID.
func (s *Service) CauseStats(ctx context.Context, userID, causeID string) (CauseStats, error) {
	records, err := s.store.ListStepsByCause(ctx, causeID)
	if err != nil {
		return CauseStats{}, err
	}

	var stats CauseStats
	for _, rec := range records {
		if rec.UserID != userID {
			continue
		}
		stats.TotalSteps += rec.Steps
		stats.Records++
		if stats.LastUpdate == nil || rec.Timestamp.After(*stats.LastUpdate) {
			ts := rec.Timestamp
			stats.LastUpdate = &ts
		}
	}
	return stats, nil
}

// Daily returns the user's records for date (YYYY-MM-DD).
func (s *Service) Daily(ctx context.Context, userID, date string) (DailySteps, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return DailySteps{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidArgument)
	}

	records, err := s.store.ListStepsByDate(ctx, date)
	if err != nil {
		return DailySteps{}, err
	}

	out := DailySteps{Date: date, Records: make([]domain.StepRecord, 0)}
	for _, rec := range records {
		if rec.UserID != userID {
			continue
		}
		out.TotalSteps += rec.Steps
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// UserStats aggregates the user's records per cause, largest first. Records for
// causes that no longer exist are left out of CauseStats.
func (s *Service) UserStats(ctx context.Context, userID string) (UserStats, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	if user == nil {
		return UserStats{}, domain.ErrUserNotFound
	}

	records, _, err := s.store.ListStepsByUser(ctx, userID, nil, 0)
	if err != nil {
		return UserStats{}, err
	}

	byCause := make(map[string]int64)
	for _, rec := range records {
		byCause[rec.CauseID] += rec.Steps
	}

	totals := make([]CauseTotal, 0, len(byCause))
	for causeID, steps := range byCause {
		cause, err := s.store.GetCause(ctx, causeID)
		if err != nil {
			return UserStats{}, err
		}
		if cause == nil {
			continue
		}
		totals = append(totals, CauseTotal{Cause: *cause, Steps: steps})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Steps == totals[j].Steps {
			return totals[i].Cause.ID < totals[j].Cause.ID
		}
		return totals[i].Steps > totals[j].Steps
	})

	return UserStats{
		TotalSteps:      user.TotalSteps,
		CausesSupported: len(user.CausesSupported),
		Distribution:    user.Distribution,
		CauseStats:      totals,
	}, nil
}
