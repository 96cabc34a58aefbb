package api

import (
	"errors"
	"fmt"
	"time"

	"example.com/stepcause/internal/attribution"
	"example.com/stepcause/internal/causes"
	"example.com/stepcause/internal/domain"
)

// RecordStepsRequest is the payload for POST /v1/steps. Either Steps or Batch is set.
type RecordStepsRequest struct {
	Steps int64         `json:"steps"`
	Batch *BatchRequest `json:"batch,omitempty"`
}

// BatchRequest is a raw activity batch captured on a device.
type BatchRequest struct {
	Source         string    `json:"source"`
	DeviceID       string    `json:"device_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	StepCount      int64     `json:"step_count"`
	DistanceMeters *float64  `json:"distance_meters,omitempty"`
}

// Validate ensures request correctness. A positive maxSteps caps both forms.
func (r RecordStepsRequest) Validate(maxSteps int64) error {
	if r.Batch == nil {
		if r.Steps < 1 {
			return errors.New("steps must be >= 1")
		}
		if maxSteps > 0 && r.Steps > maxSteps {
			return fmt.Errorf("steps must be <= %d", maxSteps)
		}
		return nil
	}
	if r.Batch.StepCount < 0 {
		return errors.New("step_count must be >= 0")
	}
	if maxSteps > 0 && r.Batch.StepCount > maxSteps {
		return fmt.Errorf("step_count must be <= %d", maxSteps)
	}
	if r.Batch.DistanceMeters != nil && *r.Batch.DistanceMeters < 0 {
		return errors.New("distance_meters must be >= 0")
	}
	if r.Batch.StartTime.IsZero() || r.Batch.EndTime.IsZero() {
		return errors.New("start_time and end_time are required")
	}
	return nil
}

// Submission converts the request into a service submission.
func (r RecordStepsRequest) Submission() attribution.StepSubmission {
	if r.Batch == nil {
		return attribution.StepSubmission{Count: r.Steps}
	}
	return attribution.StepSubmission{Batch: &domain.ActivityBatch{
		Source:         domain.Source(r.Batch.Source),
		DeviceID:       r.Batch.DeviceID,
		StartTime:      r.Batch.StartTime,
		EndTime:        r.Batch.EndTime,
		StepCount:      r.Batch.StepCount,
		DistanceMeters: r.Batch.DistanceMeters,
	}}
}

// RecordStepsResponse describes an accepted submission.
type RecordStepsResponse struct {
	TotalSteps     int64            `json:"total_steps"`
	Distribution   map[string]int64 `json:"distribution"`
	Records        []StepRecordView `json:"records"`
	UserTotalSteps int64            `json:"user_total_steps"`
}

// StepRecordView exposes an immutable step record.
type StepRecordView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CauseID   string    `json:"cause_id"`
	Steps     int64     `json:"steps"`
	Timestamp time.Time `json:"timestamp"`
	Date      string    `json:"date"`
}

// StepHistoryResponse packages a history page.
type StepHistoryResponse struct {
	Items      []StepRecordView `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// DailyStepsView lists a user's records for one day.
type DailyStepsView struct {
	Date       string           `json:"date"`
	TotalSteps int64            `json:"total_steps"`
	Records    []StepRecordView `json:"records"`
}

// CauseStepsView summarises a user's steps for one cause.
type CauseStepsView struct {
	TotalSteps int64      `json:"total_steps"`
	Records    int        `json:"records"`
	LastUpdate *time.Time `json:"last_update"`
}

// RuleView exposes a distribution rule.
type RuleView struct {
	Interval int64 `json:"interval"`
	Count    int64 `json:"count"`
}

// CauseTotalView pairs a cause with the user's steps for it.
type CauseTotalView struct {
	Cause CauseView `json:"cause"`
	Steps int64     `json:"steps"`
}

// UserStatsView is the dashboard summary.
type UserStatsView struct {
	TotalSteps       int64               `json:"total_steps"`
	CausesSupported  int                 `json:"causes_supported"`
	StepDistribution map[string]RuleView `json:"step_distribution"`
	CauseStats       []CauseTotalView    `json:"cause_stats"`
}

// CauseRequest is the payload for creating a cause or checking for duplicates.
type CauseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

// UpdateCauseRequest carries optional cause edits.
type UpdateCauseRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Icon        *string `json:"icon"`
	Color       *string `json:"color"`
	IsActive    *bool   `json:"is_active"`
}

// IntervalRequest sets a distribution interval.
type IntervalRequest struct {
	Interval int64 `json:"interval"`
}

// DistributionResponse returns the caller's rules after an edit.
type DistributionResponse struct {
	StepDistribution map[string]RuleView `json:"step_distribution"`
}

// CauseView exposes a cause.
type CauseView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Supporters  []string  `json:"supporters"`
	TotalSteps  int64     `json:"total_steps"`
	IsActive    bool      `json:"is_active"`
	Icon        string    `json:"icon"`
	Color       string    `json:"color"`
}

// SupporterView is one ranked supporter.
type SupporterView struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Steps  int64  `json:"steps"`
}

// SupportersResponse ranks supporters of a cause.
type SupportersResponse struct {
	TotalSupporters int             `json:"total_supporters"`
	MaxSteps        int64           `json:"max_steps"`
	Supporters      []SupporterView `json:"supporters"`
}

// CauseSnapshotView is the matched cause attached to a positive verdict.
type CauseSnapshotView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Supporters  int    `json:"supporters"`
	TotalSteps  int64  `json:"total_steps"`
}

// SimilarityVerdictView is the advisory duplicate check response.
type SimilarityVerdictView struct {
	Enabled           bool               `json:"enabled"`
	IsSimilar         bool               `json:"is_similar"`
	Confidence        int                `json:"confidence"`
	MatchedCauseID    *string            `json:"matched_cause_id"`
	MatchedCauseTitle *string            `json:"matched_cause_title"`
	Reason            string             `json:"reason"`
	Suggestion        string             `json:"suggestion"`
	Degraded          bool               `json:"degraded,omitempty"`
	MatchedCause      *CauseSnapshotView `json:"matched_cause,omitempty"`
}

// MessageRequest is the payload for POST /v1/messages.
type MessageRequest struct {
	CauseID string `json:"cause_id"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// MessageView exposes a cause message.
type MessageView struct {
	ID          string    `json:"id"`
	CauseID     string    `json:"cause_id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	UserPicture string    `json:"user_picture"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	Likes       int       `json:"likes"`
	LikedBy     []string  `json:"liked_by"`
}

// ProfileRequest carries profile edits; empty fields are ignored.
type ProfileRequest struct {
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// UserView exposes the caller's user record.
type UserView struct {
	ID               string              `json:"id"`
	Email            string              `json:"email"`
	Name             string              `json:"name"`
	Picture          string              `json:"picture"`
	TotalSteps       int64               `json:"total_steps"`
	CausesSupported  []string            `json:"causes_supported"`
	StepDistribution map[string]RuleView `json:"step_distribution"`
}

// ProfileView pairs the user with the causes they support.
type ProfileView struct {
	User   UserView    `json:"user"`
	Causes []CauseView `json:"causes"`
}

// AIStatusResponse reports whether duplicate detection is available.
type AIStatusResponse struct {
	Enabled bool    `json:"enabled"`
	Model   *string `json:"model"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
}

func toRecordStepsResponse(rec *attribution.Recording) RecordStepsResponse {
	dist := make(map[string]int64, len(rec.Result.PerCause))
	for causeID, n := range rec.Result.PerCause {
		dist[causeID] = n
	}
	return RecordStepsResponse{
		TotalSteps:     rec.Result.TotalSteps,
		Distribution:   dist,
		Records:        toStepRecordViews(rec.Records),
		UserTotalSteps: rec.UserTotalSteps,
	}
}

func toStepRecordViews(records []domain.StepRecord) []StepRecordView {
	out := make([]StepRecordView, 0, len(records))
	for _, rec := range records {
		out = append(out, StepRecordView{
			ID:        rec.ID,
			UserID:    rec.UserID,
			CauseID:   rec.CauseID,
			Steps:     rec.Steps,
			Timestamp: rec.Timestamp,
			Date:      rec.Date,
		})
	}
	return out
}

func toRuleViews(dist domain.Distribution) map[string]RuleView {
	out := make(map[string]RuleView, len(dist))
	for causeID, rule := range dist {
		out[causeID] = RuleView{Interval: rule.Interval, Count: rule.Count}
	}
	return out
}

func toUserStatsView(stats attribution.UserStats) UserStatsView {
	totals := make([]CauseTotalView, 0, len(stats.CauseStats))
	for _, ct := range stats.CauseStats {
		totals = append(totals, CauseTotalView{Cause: toCauseView(ct.Cause), Steps: ct.Steps})
	}
	return UserStatsView{
		TotalSteps:       stats.TotalSteps,
		CausesSupported:  stats.CausesSupported,
		StepDistribution: toRuleViews(stats.Distribution),
		CauseStats:       totals,
	}
}

func toCauseView(c domain.Cause) CauseView {
	supporters := c.Supporters
	if supporters == nil {
		supporters = []string{}
	}
	return CauseView{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Category:    c.Category,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		Supporters:  supporters,
		TotalSteps:  c.TotalSteps,
		IsActive:    c.IsActive,
		Icon:        c.Icon,
		Color:       c.Color,
	}
}

func toCauseViews(list []domain.Cause) []CauseView {
	out := make([]CauseView, 0, len(list))
	for _, c := range list {
		out = append(out, toCauseView(c))
	}
	return out
}

func toSupportersView(board causes.SupporterBoard) SupportersResponse {
	out := SupportersResponse{
		TotalSupporters: board.TotalSupporters,
		MaxSteps:        board.MaxSteps,
		Supporters:      make([]SupporterView, 0, len(board.Supporters)),
	}
	for _, s := range board.Supporters {
		out.Supporters = append(out.Supporters, SupporterView{UserID: s.UserID, Name: s.Name, Email: s.Email, Steps: s.Steps})
	}
	return out
}

func toVerdictView(v domain.SimilarityVerdict) SimilarityVerdictView {
	view := SimilarityVerdictView{
		Enabled:           v.Enabled,
		IsSimilar:         v.IsSimilar,
		Confidence:        v.Confidence,
		MatchedCauseID:    v.MatchedCauseID,
		MatchedCauseTitle: v.MatchedCauseTitle,
		Reason:            v.Reason,
		Suggestion:        v.Suggestion,
		Degraded:          v.Degraded,
	}
	if m := v.MatchedCause; m != nil {
		view.MatchedCause = &CauseSnapshotView{
			ID:          m.ID,
			Title:       m.Title,
			Description: m.Description,
			Category:    m.Category,
			Icon:        m.Icon,
			Color:       m.Color,
			Supporters:  m.Supporters,
			TotalSteps:  m.TotalSteps,
		}
	}
	return view
}

func toMessageView(m domain.Message) MessageView {
	likedBy := m.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}
	return MessageView{
		ID:          m.ID,
		CauseID:     m.CauseID,
		UserID:      m.UserID,
		UserName:    m.UserName,
		UserPicture: m.UserPicture,
		Message:     m.Body,
		Type:        m.Kind,
		CreatedAt:   m.CreatedAt,
		Likes:       m.Likes(),
		LikedBy:     likedBy,
	}
}

func toMessageViews(list []domain.Message) []MessageView {
	out := make([]MessageView, 0, len(list))
	for _, m := range list {
		out = append(out, toMessageView(m))
	}
	return out
}

func toProfileView(p *causes.Profile) ProfileView {
	supported := p.User.CausesSupported
	if supported == nil {
		supported = []string{}
	}
	return ProfileView{
		User: UserView{
			ID:               p.User.ID,
			Email:            p.User.Email,
			Name:             p.User.Name,
			Picture:          p.User.Picture,
			TotalSteps:       p.User.TotalSteps,
			CausesSupported:  supported,
			StepDistribution: toRuleViews(p.User.Distribution),
		},
		Causes: toCauseViews(p.Causes),
	}
}
