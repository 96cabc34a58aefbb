// Package integrity rejects physiologically implausible activity batches before
// they can be attributed to any cause.
package integrity

import (
	"fmt"
	"slices"
	"time"

	"example.com/stepcause/internal/domain"
)

// Defaults for the human plausibility bounds.
const (
	DefaultMaxStepsPerMinute = 180.0
	DefaultMaxSpeedKmh       = 15.0
)

// Reason codes reported on rejection.
const (
	ReasonInvalidMeasurement  = "invalid_measurement"
	ReasonUnknownSource       = "unknown_source"
	ReasonNonPositiveDuration = "non_positive_duration"
	ReasonCadenceExceeded     = "cadence_exceeded"
	ReasonSpeedExceeded       = "speed_exceeded"
	ReasonLocationJump        = "location_jump"
)

// RejectionError describes why a batch was refused. It matches domain.ErrBatchRejected.
type RejectionError struct {
	Reason string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", domain.ErrBatchRejected, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", domain.ErrBatchRejected, e.Reason, e.Detail)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *RejectionError) Unwrap() error {
	return domain.ErrBatchRejected
}

// LocationCheck validates location continuity of a batch. It returns false for a
// batch that implies an impossible jump.
type LocationCheck func(domain.ActivityBatch) bool

// Config holds the validator thresholds.
type Config struct {
	MaxStepsPerMinute float64
	MaxSpeedKmh       float64
	Sources           []domain.Source
	LocationCheck     LocationCheck
}

// Validator applies the integrity rules in order; the first failure wins.
type Validator struct {
	maxStepsPerMinute float64
	maxSpeedKmh       float64
	sources           []domain.Source
	locationCheck     LocationCheck
}

// NewValidator builds a Validator, falling back to defaults for zero fields.
func NewValidator(cfg Config) *Validator {
	v := &Validator{
		maxStepsPerMinute: cfg.MaxStepsPerMinute,
		maxSpeedKmh:       cfg.MaxSpeedKmh,
		sources:           cfg.Sources,
		locationCheck:     cfg.LocationCheck,
	}
	if v.maxStepsPerMinute <= 0 {
		v.maxStepsPerMinute = DefaultMaxStepsPerMinute
	}
	if v.maxSpeedKmh <= 0 {
		v.maxSpeedKmh = DefaultMaxSpeedKmh
	}
	if len(v.sources) == 0 {
		v.sources = domain.TrustedSources
	}
	if v.locationCheck == nil {
		v.locationCheck = noLocationCheck
	}
	return v
}

// Validate returns nil for a plausible batch or a *RejectionError.
func (v *Validator) Validate(batch domain.ActivityBatch) error {
	if batch.StepCount < 0 {
		return &RejectionError{Reason: ReasonInvalidMeasurement, Detail: fmt.Sprintf("step count %d", batch.StepCount)}
	}
	if batch.DistanceMeters != nil && *batch.DistanceMeters < 0 {
		return &RejectionError{Reason: ReasonInvalidMeasurement, Detail: fmt.Sprintf("distance %.1f m", *batch.DistanceMeters)}
	}

	if !slices.Contains(v.sources, batch.Source) {
		return &RejectionError{Reason: ReasonUnknownSource, Detail: string(batch.Source)}
	}

	durationMinutes := float64(batch.Duration()) / float64(time.Minute)
	if durationMinutes <= 0 {
		return &RejectionError{Reason: ReasonNonPositiveDuration}
	}

	stepsPerMinute := float64(batch.StepCount) / durationMinutes
	if stepsPerMinute > v.maxStepsPerMinute {
		return &RejectionError{
			Reason: ReasonCadenceExceeded,
			Detail: fmt.Sprintf("%.1f steps/min", stepsPerMinute),
		}
	}

	if batch.DistanceMeters != nil {
		speedKmh := (*batch.DistanceMeters / 1000) / (durationMinutes / 60)
		if speedKmh > v.maxSpeedKmh {
			return &RejectionError{
				Reason: ReasonSpeedExceeded,
				Detail: fmt.Sprintf("%.1f km/h", speedKmh),
			}
		}
	}

	if !v.locationCheck(batch) {
		return &RejectionError{Reason: ReasonLocationJump}
	}
	return nil
}

// noLocationCheck is the default geofence hook. Batches carry no coordinates yet,
// so every batch passes.
func noLocationCheck(domain.ActivityBatch) bool {
	return true
}
