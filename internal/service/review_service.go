package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/expertiza/review-eval-api/internal/dto"
	"github.com/expertiza/review-eval-api/internal/models"
	"github.com/expertiza/review-eval-api/internal/repository"
	"github.com/expertiza/review-eval-api/internal/rubric"
)

// ErrReviewNotFound indicates the requested review does not exist.
var ErrReviewNotFound = errors.New("review not found")

// ErrEmptyReview indicates the ingested submission has no evaluable content.
var ErrEmptyReview = errors.New("review content cannot be empty")

// ReviewService exposes the review lifecycle operations.
type ReviewService interface {
	Ingest(ctx context.Context, payload dto.ReviewSubmissionRequest) (dto.ReviewResponse, error)
	Get(ctx context.Context, id uint) (dto.ReviewResponse, error)
	Finalize(ctx context.Context, id uint, payload dto.FinalizeReviewRequest) (dto.ReviewResponse, error)
	Trigger(ctx context.Context, id uint) error
	EvaluateDirect(ctx context.Context, payload dto.DirectEvaluationRequest) (rubric.Output, error)
	RecoverInFlight(ctx context.Context) (int, error)
	Close()
}

// ReviewServiceConfig holds the runtime knobs for the review pipeline.
type ReviewServiceConfig struct {
	Workers     int
	QueueSize   int
	CacheTTL    time.Duration
	Temperature float32
}

type reviewService struct {
	reviews   repository.ReviewRepository
	evaluator EvaluationService
	scheduler *Scheduler
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
	config    ReviewServiceConfig
}

// NewReviewService constructs the lifecycle service and starts its background
// scheduler. Call Close during shutdown to drain in-flight evaluations.
func NewReviewService(reviews repository.ReviewRepository, evaluator EvaluationService, cache *redis.Client, validate *validator.Validate, logger zerolog.Logger, cfg ReviewServiceConfig) ReviewService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	s := &reviewService{
		reviews:   reviews,
		evaluator: evaluator,
		cache:     cache,
		cacheTTL:  cfg.CacheTTL,
		validator: validate,
		logger:    logger.With().Str("component", "review_service").Logger(),
		config:    cfg,
	}
	s.scheduler = NewScheduler(cfg.Workers, cfg.QueueSize, logger, s.process)

	return s
}

func (s *reviewService) Ingest(ctx context.Context, payload dto.ReviewSubmissionRequest) (dto.ReviewResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ReviewResponse{}, err
	}
	if !payload.HasContent() {
		return dto.ReviewResponse{}, ErrEmptyReview
	}

	review := models.Review{
		ExternalID: payload.ExternalID.String(),
		RawText:    rubric.BuildReviewText(payload.Submission()),
		Status:     models.ReviewStatusPending,
	}

	record, created, err := s.reviews.CreateIfAbsent(ctx, &review)
	if err != nil {
		return dto.ReviewResponse{}, err
	}

	// A repeated ingest of the same external id is a no-op: the existing
	// record is returned and no second evaluation is scheduled.
	if created {
		if err := s.scheduler.Schedule(record.ID, record.RawText); err != nil {
			s.logger.Warn().Err(err).Uint("review_id", record.ID).Msg("could not schedule evaluation; record stays pending")
		}
	}

	return dto.NewReviewResponse(record), nil
}

func (s *reviewService) Get(ctx context.Context, id uint) (dto.ReviewResponse, error) {
	cacheKey := s.cacheKey(id)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.ReviewResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read review cache")
		}
	}

	record, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewResponse{}, ErrReviewNotFound
		}
		return dto.ReviewResponse{}, err
	}

	response := dto.NewReviewResponse(record)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store review cache")
			}
		}
	}

	return response, nil
}

func (s *reviewService) Finalize(ctx context.Context, id uint, payload dto.FinalizeReviewRequest) (dto.ReviewResponse, error) {
	record, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewResponse{}, ErrReviewNotFound
		}
		return dto.ReviewResponse{}, err
	}

	feedback := payload.FinalizedFeedback
	if feedback == nil && record.GeneratedFeedback != "" {
		generated := record.GeneratedFeedback
		feedback = &generated
	}

	score := payload.FinalizedScore
	if score == nil {
		if derived, ok := s.deriveScore(record.GeneratedEvaluation); ok {
			score = &derived
		}
	}

	updated, err := s.reviews.Finalize(ctx, id, score, feedback)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewResponse{}, ErrReviewNotFound
		}
		return dto.ReviewResponse{}, err
	}

	s.invalidate(ctx, id)
	return dto.NewReviewResponse(updated), nil
}

func (s *reviewService) Trigger(ctx context.Context, id uint) error {
	record, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReviewNotFound
		}
		return err
	}

	return s.scheduler.Schedule(record.ID, record.RawText)
}

func (s *reviewService) EvaluateDirect(ctx context.Context, payload dto.DirectEvaluationRequest) (rubric.Output, error) {
	if err := s.validator.Struct(payload); err != nil {
		return rubric.Output{}, err
	}

	opts := EvaluationOptions{Temperature: s.config.Temperature}
	if payload.Temperature != nil {
		opts.Temperature = *payload.Temperature
	}
	if payload.MaxAttempts != nil {
		opts.MaxAttempts = *payload.MaxAttempts
	}

	return s.evaluator.EvaluateReview(ctx, payload.ReviewText, opts)
}

// RecoverInFlight re-enqueues records left in pending or processing by an
// earlier process crash and returns how many were scheduled.
func (s *reviewService) RecoverInFlight(ctx context.Context) (int, error) {
	unfinished, err := s.reviews.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, record := range unfinished {
		if err := s.scheduler.Schedule(record.ID, record.RawText); err != nil {
			s.logger.Warn().Err(err).Uint("review_id", record.ID).Msg("could not recover unfinished review")
			continue
		}
		scheduled++
	}

	return scheduled, nil
}

// Close drains the background scheduler. In-flight evaluations run to
// completion.
func (s *reviewService) Close() {
	s.scheduler.Close()
}

// process is the pipeline body executed by scheduler workers. Every failure
// is converted into a failed-status write; nothing escapes as an unhandled
// fault since no request is attached to observe one.
func (s *reviewService) process(ctx context.Context, reviewID uint, rawText string) {
	logger := s.logger.With().Uint("review_id", reviewID).Logger()

	if err := s.reviews.MarkProcessing(ctx, reviewID); err != nil {
		logger.Error().Err(err).Msg("failed to mark review as processing")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return
		}
	}
	s.invalidate(ctx, reviewID)

	output, err := s.evaluator.EvaluateReview(ctx, rawText, EvaluationOptions{Temperature: s.config.Temperature})
	if err != nil {
		s.fail(ctx, reviewID, err)
		return
	}

	result, err := encodeGeneratedResult(output)
	if err != nil {
		s.fail(ctx, reviewID, fmt.Errorf("encode evaluation result: %w", err))
		return
	}

	if err := s.reviews.CompleteEvaluation(ctx, reviewID, result); err != nil {
		// Persistence failure on the success path still terminates in the
		// failed status rather than propagating.
		s.fail(ctx, reviewID, fmt.Errorf("persist evaluation result: %w", err))
		return
	}

	s.invalidate(ctx, reviewID)
	logger.Info().Msg("review processed")
}

func (s *reviewService) fail(ctx context.Context, reviewID uint, cause error) {
	attempts := 1
	var exhausted *ExhaustedError
	if errors.As(cause, &exhausted) {
		attempts = exhausted.Attempts
	}

	if err := s.reviews.FailEvaluation(ctx, reviewID, cause.Error(), attempts); err != nil {
		// There is no further failure state to transition into; log and drop.
		s.logger.Error().Err(err).Uint("review_id", reviewID).Msg("failed to mark review as failed")
		return
	}

	s.invalidate(ctx, reviewID)
	s.logger.Warn().Err(cause).Uint("review_id", reviewID).Msg("review evaluation failed")
}

func (s *reviewService) deriveScore(evaluation datatypes.JSON) (float64, bool) {
	if len(evaluation) == 0 {
		return 0, false
	}

	var results map[string]rubric.DimensionResult
	if err := json.Unmarshal(evaluation, &results); err != nil {
		return 0, false
	}

	return rubric.OverallScore(results)
}

func (s *reviewService) cacheKey(id uint) string {
	return fmt.Sprintf("review:%d", id)
}

func (s *reviewService) invalidate(ctx context.Context, id uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.cacheKey(id)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("review_id", id).Msg("failed to invalidate review cache")
	}
}

func encodeGeneratedResult(output rubric.Output) (repository.GeneratedResult, error) {
	evaluation, err := json.Marshal(output.Evaluation)
	if err != nil {
		return repository.GeneratedResult{}, err
	}
	reasoning, err := json.Marshal(output.Reasoning)
	if err != nil {
		return repository.GeneratedResult{}, err
	}
	full, err := json.Marshal(output)
	if err != nil {
		return repository.GeneratedResult{}, err
	}

	return repository.GeneratedResult{
		Feedback:   output.Feedback,
		Evaluation: datatypes.JSON(evaluation),
		Reasoning:  datatypes.JSON(reasoning),
		FullOutput: datatypes.JSON(full),
	}, nil
}
