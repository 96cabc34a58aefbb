package domain

import "time"

// DateLayout is the calendar-day format used to bucket step records.
const DateLayout = "2006-01-02"

// StepRecord is an immutable credit of steps from one user to one cause.
type StepRecord struct {
	ID        string
	UserID    string
	CauseID   string
	Steps     int64
	Timestamp time.Time
	Date      string
}

// AttributionResult is the per-cause outcome of distributing one batch. Every cause
// present in the rules has an entry, zero when no step landed on its interval.
type AttributionResult struct {
	TotalSteps int64
	PerCause   map[string]int64
}

// Credited returns the sum of steps credited across causes.
func (r AttributionResult) Credited() int64 {
	var total int64
	for _, n := range r.PerCause {
		total += n
	}
	return total
}

// Attribution is the full write-set for one accepted batch.
type Attribution struct {
	UserID       string
	Result       AttributionResult
	Distribution Distribution
	Records      []StepRecord
	RecordedAt   time.Time
}

// Cursor models the step-history pagination token.
type Cursor struct {
	Timestamp time.Time
	ID        string
}
