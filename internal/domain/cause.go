package domain

import (
	"slices"
	"time"
)

// Defaults applied to new causes.
const (
	DefaultCauseCategory = "other"
	DefaultCauseIcon     = "✊"
	DefaultCauseColor    = "#3B82F6"
)

// Cause is an advocacy campaign that accumulates supporter steps.
type Cause struct {
	ID          string
	Title       string
	Description string
	Category    string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Supporters  []string
	TotalSteps  int64
	IsActive    bool
	Icon        string
	Color       string
}

// HasSupporter reports whether userID already supports the cause.
func (c *Cause) HasSupporter(userID string) bool {
	return slices.Contains(c.Supporters, userID)
}

// AddSupporter appends userID once.
func (c *Cause) AddSupporter(userID string) bool {
	if c.HasSupporter(userID) {
		return false
	}
	c.Supporters = append(c.Supporters, userID)
	return true
}

// RemoveSupporter drops userID from the supporter list.
func (c *Cause) RemoveSupporter(userID string) bool {
	idx := slices.Index(c.Supporters, userID)
	if idx < 0 {
		return false
	}
	c.Supporters = slices.Delete(c.Supporters, idx, idx+1)
	return true
}

// Snapshot returns the public fields shown alongside a similarity verdict.
func (c Cause) Snapshot() CauseSnapshot {
	return CauseSnapshot{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Category:    c.Category,
		Icon:        c.Icon,
		Color:       c.Color,
		Supporters:  len(c.Supporters),
		TotalSteps:  c.TotalSteps,
	}
}

// CauseSnapshot is a read-only view of a cause at a point in time.
type CauseSnapshot struct {
	ID          string
	Title       string
	Description string
	Category    string
	Icon        string
	Color       string
	Supporters  int
	TotalSteps  int64
}

// ProposedCause is the candidate compared against existing causes before creation.
type ProposedCause struct {
	Title       string
	Description string
	Category    string
}

// SimilarityVerdict is the advisory outcome of a duplicate check. It is never persisted.
type SimilarityVerdict struct {
	Enabled           bool
	IsSimilar         bool
	Confidence        int
	MatchedCauseID    *string
	MatchedCauseTitle *string
	Reason            string
	Suggestion        string
	// Degraded is set when the classifier failed and the verdict is the safe fallback.
	Degraded     bool
	MatchedCause *CauseSnapshot
}
