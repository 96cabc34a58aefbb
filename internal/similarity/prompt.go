package similarity

import (
	"encoding/json"
	"fmt"
	"strings"

	"example.com/stepcause/internal/domain"
)

// SimilarityThreshold is the minimum overlap, in percent, for a match.
const SimilarityThreshold = 70

type promptCause struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Supporters  int    `json:"supporters"`
	TotalSteps  int64  `json:"totalSteps"`
}

// BuildPrompt renders the instruction sent to the classifier.
func BuildPrompt(proposed domain.ProposedCause, existing []domain.Cause, language string) (string, error) {
	causes := make([]promptCause, 0, len(existing))
	for _, c := range existing {
		causes = append(causes, promptCause{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Category:    c.Category,
			Supporters:  len(c.Supporters),
			TotalSteps:  c.TotalSteps,
		})
	}
	listing, err := json.MarshalIndent(causes, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode existing causes: %w", err)
	}
	if strings.TrimSpace(language) == "" {
		language = "English"
	}

	var b strings.Builder
	b.WriteString("You help prevent duplicate causes in an app where people walk in support of advocacy causes.\n\n")
	b.WriteString("Task: decide whether the proposed cause duplicates one of the existing causes.\n\n")
	fmt.Fprintf(&b, "Proposed cause:\n- Title: %q\n- Description: %q\n- Category: %q\n\n",
		proposed.Title, proposed.Description, proposed.Category)
	fmt.Fprintf(&b, "Existing causes (%d total):\n%s\n\n", len(causes), listing)
	b.WriteString("Instructions:\n")
	b.WriteString("1. Look for semantic similarity (same meaning, different words).\n")
	b.WriteString("2. Look for topical overlap (same issue).\n")
	b.WriteString("3. Consider whether joining efforts beats creating a separate cause.\n")
	b.WriteString("4. When several causes match, return only the single most similar one.\n\n")
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Flag as similar only when overlap is above %d%%.\n", SimilarityThreshold)
	b.WriteString("- Sharing a category is not enough; the issue itself must overlap.\n")
	b.WriteString("- Prefer the existing cause with more supporters when matches are close.\n")
	fmt.Fprintf(&b, "- Write reason and suggestion in %s, addressed to the user.\n\n", language)
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{
  "isSimilar": boolean,
  "confidence": number (0-100),
  "matchedCauseId": "id or null",
  "matchedCauseTitle": "title or null",
  "reason": "short explanation",
  "suggestion": "what the user should do"
}`)
	return b.String(), nil
}
