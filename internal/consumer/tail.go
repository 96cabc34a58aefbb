package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"example.com/stepcause/internal/events"
)

// TailHandler prints one line per consumed event. steps.attributed payloads
// are summarised; other event types are printed raw.
type TailHandler struct {
	out io.Writer
}

// NewTailHandler writes to out.
func NewTailHandler(out io.Writer) *TailHandler {
	return &TailHandler{out: out}
}

// Handle implements Handler.
func (h *TailHandler) Handle(_ context.Context, msg Message) error {
	if msg.EventType != events.TypeStepsAttributed {
		_, err := fmt.Fprintf(h.out, "%s offset=%d %s %s\n", msg.Topic, msg.Offset, msg.EventType, msg.Payload)
		return err
	}

	var payload events.StepsAttributed
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}

	causeIDs := make([]string, 0, len(payload.CreditedByCause))
	for id := range payload.CreditedByCause {
		causeIDs = append(causeIDs, id)
	}
	sort.Strings(causeIDs)
	credits := make([]string, 0, len(causeIDs))
	for _, id := range causeIDs {
		credits = append(credits, fmt.Sprintf("%s=%d", id, payload.CreditedByCause[id]))
	}

	_, err := fmt.Fprintf(h.out, "%s user=%s steps=%d total=%d credited=[%s]\n",
		payload.RecordedAt.UTC().Format(time.RFC3339),
		payload.UserID, payload.TotalSteps, payload.UserTotalSteps, strings.Join(credits, " "))
	return err
}
