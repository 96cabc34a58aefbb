package similarity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedResponse marks classifier output that cannot be used.
var ErrMalformedResponse = errors.New("malformed classifier response")

const (
	defaultReason     = "No reason provided"
	defaultSuggestion = "Go ahead and create your cause"
)

// classification is the validated content of a classifier response.
type classification struct {
	IsSimilar         bool
	Confidence        int
	MatchedCauseID    *string
	MatchedCauseTitle *string
	Reason            string
	Suggestion        string
}

// parseResponse treats text as untrusted: it strips markdown fences, decodes a JSON
// object and requires a boolean isSimilar. Optional fields fall back to defaults.
func parseResponse(text string) (classification, error) {
	body := extractJSON(text)
	if body == "" {
		return classification{}, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	isSimilar, ok := raw["isSimilar"].(bool)
	if !ok {
		return classification{}, fmt.Errorf("%w: isSimilar missing or not a boolean", ErrMalformedResponse)
	}

	out := classification{
		IsSimilar:         isSimilar,
		MatchedCauseID:    optionalString(raw["matchedCauseId"]),
		MatchedCauseTitle: optionalString(raw["matchedCauseTitle"]),
		Reason:            stringOr(raw["reason"], defaultReason),
		Suggestion:        stringOr(raw["suggestion"], defaultSuggestion),
	}
	if confidence, ok := raw["confidence"].(float64); ok && !math.IsNaN(confidence) {
		out.Confidence = int(math.Round(math.Max(0, math.Min(100, confidence))))
	}
	return out, nil
}

// extractJSON removes ``` or ```json wrapping and any chatter around the object.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
		s = strings.TrimSpace(s)
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first < 0 || last <= first {
		return s
	}
	return s[first : last+1]
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}
