// Package similarity decides whether a proposed cause duplicates an existing one.
// The semantic judgement is delegated to an external text model; this package owns
// the prompt, the response validation and the fail-safe policy.
package similarity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"example.com/stepcause/internal/domain"
	"example.com/stepcause/internal/observability"
)

// Generator sends a prompt to a text model and returns its raw answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Outcome labels recorded for each check.
const (
	OutcomeNoCauses = "no_causes"
	OutcomeDisabled = "disabled"
	OutcomeSimilar  = "similar"
	OutcomeDistinct = "distinct"
	OutcomeFallback = "fallback"
)

const (
	defaultTimeout = 10 * time.Second
	defaultBackoff = 250 * time.Millisecond
	fallbackReason = "Similarity could not be analysed"
	fallbackAdvice = "Create your cause"
	noCausesReason = "There are no causes yet"
	noCausesAdvice = "Be the first to create this cause"
	disabledReason = "Similarity check is not available"
	disabledAdvice = "Create your cause"
)

// Option configures a Classifier.
type Option func(*Classifier)

// WithTimeout bounds the whole check, retries included.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many times a failed model call is retried.
func WithRetries(n int) Option {
	return func(c *Classifier) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithBackoff sets the linear delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(c *Classifier) {
		c.backoff = d
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLanguage sets the language of reason and suggestion texts.
func WithLanguage(language string) Option {
	return func(c *Classifier) {
		c.language = language
	}
}

// Classifier is advisory: it never returns an error and never blocks creation.
type Classifier struct {
	generator Generator
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	language  string
	logger    *zap.Logger
}

// NewClassifier builds a Classifier. A nil generator disables the check.
func NewClassifier(generator Generator, opts ...Option) *Classifier {
	c := &Classifier{
		generator: generator,
		timeout:   defaultTimeout,
		retries:   1,
		backoff:   defaultBackoff,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a model is configured.
func (c *Classifier) Enabled() bool {
	return c.generator != nil
}

// CheckSimilar compares proposed against existing causes.
func (c *Classifier) CheckSimilar(ctx context.Context, proposed domain.ProposedCause, existing []domain.Cause) domain.SimilarityVerdict {
	if len(existing) == 0 {
		observability.RecordSimilarityOutcome(OutcomeNoCauses)
		return domain.SimilarityVerdict{
			Enabled:    c.Enabled(),
			Confidence: 100,
			Reason:     noCausesReason,
			Suggestion: noCausesAdvice,
		}
	}
	if !c.Enabled() {
		observability.RecordSimilarityOutcome(OutcomeDisabled)
		return domain.SimilarityVerdict{Reason: disabledReason, Suggestion: disabledAdvice}
	}

	prompt, err := BuildPrompt(proposed, existing, c.language)
	if err != nil {
		return c.fallback(err, "")
	}

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return c.fallback(err, "")
	}

	parsed, err := parseResponse(text)
	if err != nil {
		return c.fallback(err, text)
	}

	verdict := domain.SimilarityVerdict{
		Enabled:           true,
		IsSimilar:         parsed.IsSimilar,
		Confidence:        parsed.Confidence,
		MatchedCauseID:    parsed.MatchedCauseID,
		MatchedCauseTitle: parsed.MatchedCauseTitle,
		Reason:            parsed.Reason,
		Suggestion:        parsed.Suggestion,
	}
	if verdict.MatchedCauseID != nil && !containsCause(existing, *verdict.MatchedCauseID) {
		c.logger.Warn("classifier matched unknown cause", zap.String("matched_cause_id", *verdict.MatchedCauseID))
		verdict.IsSimilar = false
		verdict.MatchedCauseID = nil
		verdict.MatchedCauseTitle = nil
	}

	if verdict.IsSimilar {
		observability.RecordSimilarityOutcome(OutcomeSimilar)
	} else {
		observability.RecordSimilarityOutcome(OutcomeDistinct)
	}
	return verdict
}

func (c *Classifier) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() { observability.ObserveClassifierLatency(time.Since(start)) }()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		text, err := c.generator.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.logger.Warn("classifier call failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (c *Classifier) fallback(err error, raw string) domain.SimilarityVerdict {
	fields := []zap.Field{zap.Error(err)}
	if raw != "" {
		fields = append(fields, zap.String("raw_response", raw))
	}
	c.logger.Error("similarity check degraded to not-similar", fields...)
	observability.RecordSimilarityOutcome(OutcomeFallback)

	return domain.SimilarityVerdict{
		Enabled:    true,
		Degraded:   true,
		Reason:     fallbackReason,
		Suggestion: fallbackAdvice,
	}
}

func containsCause(causes []domain.Cause, id string) bool {
	for _, c := range causes {
		if c.ID == id {
			return true
		}
	}
	return false
}
