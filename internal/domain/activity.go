package domain

import "time"

// Source identifies where an activity batch was captured.
type Source string

const (
	SourceHealthKit     Source = "HEALTH_KIT"
	SourceHealthConnect Source = "HEALTH_CONNECT"
	SourceGarminConnect Source = "GARMIN_CONNECT"
	SourceAccelerometer Source = "ACCELEROMETER"
	SourceGPS           Source = "GPS"
	SourceManualDebug   Source = "MANUAL_DEBUG"
)

// TrustedSources lists every capture source accepted by the integrity check.
var TrustedSources = []Source{
	SourceHealthKit,
	SourceHealthConnect,
	SourceGarminConnect,
	SourceAccelerometer,
	SourceGPS,
	SourceManualDebug,
}

// ActivityBatch is one raw submission of steps from a device. It is never persisted as-is.
type ActivityBatch struct {
	Source         Source
	DeviceID       string
	StartTime      time.Time
	EndTime        time.Time
	StepCount      int64
	DistanceMeters *float64
}

// Duration returns the batch window length.
func (b ActivityBatch) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}
