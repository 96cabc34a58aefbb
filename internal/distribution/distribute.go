// Package distribution splits a step count across the causes a user supports.
package distribution

import (
	"fmt"
	"math"

	"example.com/stepcause/internal/domain"
)

// Distribute credits totalSteps against rules and returns the result together with
// the advanced rules. Steps are numbered globally per cause from the rule cursor, so
// a cause with interval k is credited at every step index i where i mod k == 0:
// the first credit lands on step k, not step 1. A single step may credit several
// causes. The input map is not modified.
func Distribute(rules domain.Distribution, totalSteps int64) (domain.AttributionResult, domain.Distribution) {
	result := domain.AttributionResult{
		TotalSteps: totalSteps,
		PerCause:   make(map[string]int64, len(rules)),
	}
	next := make(domain.Distribution, len(rules))
	if totalSteps < 0 {
		totalSteps = 0
	}

	for causeID, rule := range rules {
		result.PerCause[causeID] = credited(rule, totalSteps)
		rule.Count = advance(rule.Count, totalSteps)
		next[causeID] = rule
	}
	return result, next
}

// credited counts multiples of the interval in the half-open range (c, c+n].
// Only the cursor's offset within the current interval matters, which keeps the
// sum below MaxInt64 for any non-negative c and n that Validate accepts.
func credited(rule domain.DistributionRule, n int64) int64 {
	if rule.Interval < 1 || n <= 0 {
		return 0
	}
	k := rule.Interval
	c := rule.Count
	if c < 0 {
		c = 0
	}
	offset := c % k
	if n > math.MaxInt64-offset {
		// offset+n would wrap; split off the whole intervals first.
		return n/k + (offset+n%k)/k
	}
	return (offset + n) / k
}

// advance moves a cursor forward by n, saturating at MaxInt64.
func advance(count, n int64) int64 {
	if count < 0 {
		count = 0
	}
	if n > math.MaxInt64-count {
		return math.MaxInt64
	}
	return count + n
}

// ValidateCapacity rejects a step count that would push a rule cursor or the
// user's lifetime total past MaxInt64.
func ValidateCapacity(rules domain.Distribution, userTotal, steps int64) error {
	if userTotal > 0 && steps > math.MaxInt64-userTotal {
		return fmt.Errorf("%w: %d steps overflow user total %d", domain.ErrInvalidArgument, steps, userTotal)
	}
	for causeID, rule := range rules {
		if rule.Count > 0 && steps > math.MaxInt64-rule.Count {
			return fmt.Errorf("cause %s: %w: %d steps overflow cursor %d", causeID, domain.ErrInvalidArgument, steps, rule.Count)
		}
	}
	return nil
}

// ValidateInterval rejects intervals below one.
func ValidateInterval(interval int64) error {
	if interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", domain.ErrInvalidArgument, interval)
	}
	return nil
}

// ValidateSteps rejects negative step counts.
func ValidateSteps(steps int64) error {
	if steps < 0 {
		return fmt.Errorf("%w: steps must be >= 0, got %d", domain.ErrInvalidArgument, steps)
	}
	return nil
}

// ValidateRules checks every rule of a distribution.
func ValidateRules(rules domain.Distribution) error {
	for causeID, rule := range rules {
		if err := ValidateInterval(rule.Interval); err != nil {
			return fmt.Errorf("cause %s: %w", causeID, err)
		}
		if rule.Count < 0 {
			return fmt.Errorf("cause %s: %w: negative cursor %d", causeID, domain.ErrInvalidArgument, rule.Count)
		}
	}
	return nil
}
