package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/expertiza/review-eval-api/internal/rubric"
	"github.com/expertiza/review-eval-api/pkg/llm"
)

// DefaultMaxAttempts bounds how often a single evaluation request retries
// before giving up.
const DefaultMaxAttempts = 10

// DefaultRetryDelay is the fixed pause between failed attempts.
const DefaultRetryDelay = 300 * time.Millisecond

// ExhaustedError is returned when no schema-valid response was obtained
// within the attempt budget. LastRaw carries the final raw response text for
// operator diagnosis.
type ExhaustedError struct {
	Attempts int
	LastRaw  string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("could not obtain a valid rubric evaluation after %d attempts; last raw output: %s", e.Attempts, e.LastRaw)
}

// EvaluationOptions overrides per-request evaluation knobs. Zero values fall
// back to the service defaults.
type EvaluationOptions struct {
	Temperature float32
	MaxAttempts int
}

// EvaluationService turns review text into a validated rubric evaluation,
// retrying the unreliable LLM until the output parses, normalizes and
// validates, or the attempt budget runs out.
type EvaluationService interface {
	EvaluateReview(ctx context.Context, reviewText string, opts EvaluationOptions) (rubric.Output, error)
}

// NewEvaluationService constructs the retry-driving evaluation service.
// maxAttempts and retryDelay fall back to the package defaults when zero.
func NewEvaluationService(client llm.Client, logger zerolog.Logger, maxAttempts int, retryDelay time.Duration) EvaluationService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &evaluationService{
		client:      client,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

type evaluationService struct {
	client      llm.Client
	logger      zerolog.Logger
	maxAttempts int
	retryDelay  time.Duration
}

func (s *evaluationService) EvaluateReview(ctx context.Context, reviewText string, opts EvaluationOptions) (rubric.Output, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	var lastRaw string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return rubric.Output{}, ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}

		// The prompt is compiled fresh on every attempt so a transient
		// upstream glitch cannot poison the next one.
		prompt := rubric.BuildPrompt(reviewText)

		raw, err := s.client.Evaluate(ctx, prompt, opts.Temperature)
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("llm call failed")
			continue
		}
		lastRaw = raw

		value, err := rubric.Decode(raw)
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("llm output is not valid json")
			continue
		}

		output, err := rubric.FromNormalized(rubric.Normalize(value))
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("llm output failed schema validation")
			continue
		}

		return output, nil
	}

	return rubric.Output{}, &ExhaustedError{Attempts: maxAttempts, LastRaw: lastRaw}
}
