package domain

import "slices"

// DistributionRule credits a cause on every Interval-th step. Count is the running
// cursor carried across batches so interval boundaries survive batch splits.
type DistributionRule struct {
	Interval int64
	Count    int64
}

// Distribution maps cause IDs to the user's rule for that cause.
type Distribution map[string]DistributionRule

// Clone returns an independent copy.
func (d Distribution) Clone() Distribution {
	out := make(Distribution, len(d))
	for id, rule := range d {
		out[id] = rule
	}
	return out
}

// User is the aggregate owning the step distribution.
type User struct {
	ID              string
	Email           string
	Name            string
	Picture         string
	TotalSteps      int64
	CausesSupported []string
	Distribution    Distribution
}

// Support registers causeID with the given interval, keeping an existing cursor.
func (u *User) Support(causeID string, interval int64) {
	if !slices.Contains(u.CausesSupported, causeID) {
		u.CausesSupported = append(u.CausesSupported, causeID)
	}
	if u.Distribution == nil {
		u.Distribution = make(Distribution)
	}
	rule := u.Distribution[causeID]
	rule.Interval = interval
	u.Distribution[causeID] = rule
}

// Unsupport removes the cause and its rule.
func (u *User) Unsupport(causeID string) {
	if idx := slices.Index(u.CausesSupported, causeID); idx >= 0 {
		u.CausesSupported = slices.Delete(u.CausesSupported, idx, idx+1)
	}
	delete(u.Distribution, causeID)
}
