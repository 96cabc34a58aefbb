// Package events defines the payloads published to Kafka through the outbox.
package events

import "time"

// Event types and their topics.
const (
	TypeStepsAttributed  = "steps.attributed"
	TopicStepsAttributed = "step_attributions"
)

// StepsAttributed is emitted once per accepted batch.
type StepsAttributed struct {
	UserID          string           `json:"user_id"`
	TotalSteps      int64            `json:"total_steps"`
	CreditedByCause map[string]int64 `json:"credited_by_cause"`
	UserTotalSteps  int64            `json:"user_total_steps"`
	RecordedAt      time.Time        `json:"recorded_at"`
}
