package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/expertiza/review-eval-api/internal/dto"
	"github.com/expertiza/review-eval-api/internal/models"
	"github.com/expertiza/review-eval-api/internal/repository"
	"github.com/expertiza/review-eval-api/internal/rubric"
)

type stubReviewEvaluator struct {
	mu     sync.Mutex
	output rubric.Output
	err    error
	calls  int
}

func (s *stubReviewEvaluator) EvaluateReview(ctx context.Context, reviewText string, opts EvaluationOptions) (rubric.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return rubric.Output{}, s.err
	}
	return s.output, nil
}

func (s *stubReviewEvaluator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func validOutput() rubric.Output {
	output := rubric.Output{
		Reasoning:  map[string]string{},
		Evaluation: map[string]rubric.DimensionResult{},
		Feedback:   "well structured review",
	}
	for _, dimension := range rubric.Dimensions {
		output.Reasoning[dimension] = "reasoning for " + dimension
		score := rubric.Score{Value: 8}
		if dimension == rubric.DimensionActedOn {
			score = rubric.Score{NA: true}
		}
		output.Evaluation[dimension] = rubric.DimensionResult{Score: score, Justification: "because"}
	}
	return output
}

func setupReviewService(t *testing.T, evaluator EvaluationService, cache *redis.Client) (ReviewService, repository.ReviewRepository) {
	t.Helper()

	// Shared cache keeps the worker goroutine and the polling assertions on
	// the same in-memory database; the name scopes it to this test.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Review{}, &models.FailedJob{}))

	repo := repository.NewReviewRepository(db)
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewReviewService(repo, evaluator, cache, validate, zerolog.Nop(), ReviewServiceConfig{Workers: 1, QueueSize: 8})
	t.Cleanup(svc.Close)

	return svc, repo
}

func submissionPayload(externalID string) dto.ReviewSubmissionRequest {
	max := 5.0
	awarded := 4.0
	return dto.ReviewSubmissionRequest{
		ExternalID:     json.Number(externalID),
		CourseName:     "CSC 517",
		AssignmentName: "OSS Project",
		Round:          1,
		Scores: []dto.ScoredAnswerRequest{
			{Question: "Is the design sound?", Type: "Criterion", MaxPoints: &max, AwardedPoints: &awarded},
		},
		OverallComment: "Good work overall.",
	}
}

func waitForStatus(t *testing.T, repo repository.ReviewRepository, id uint, status string) models.Review {
	t.Helper()

	var record models.Review
	require.Eventually(t, func() bool {
		loaded, err := repo.GetByID(context.Background(), id)
		if err != nil {
			return false
		}
		record = loaded
		return loaded.Status == status
	}, 2*time.Second, 10*time.Millisecond)

	return record
}

func TestIngestIsIdempotentOnExternalID(t *testing.T) {
	evaluator := &stubReviewEvaluator{output: validOutput()}
	svc, repo := setupReviewService(t, evaluator, nil)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, submissionPayload("42"))
	require.NoError(t, err)
	require.Equal(t, "42", first.ExternalID)

	waitForStatus(t, repo, first.ID, models.ReviewStatusProcessed)

	repeat := submissionPayload("42")
	repeat.OverallComment = "Completely different text."
	second, err := svc.Ingest(ctx, repeat)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.RawText, second.RawText)

	// Only the first ingest scheduled an evaluation.
	require.Equal(t, 1, evaluator.callCount())
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	svc, _ := setupReviewService(t, &stubReviewEvaluator{output: validOutput()}, nil)

	payload := dto.ReviewSubmissionRequest{ExternalID: json.Number("7")}
	_, err := svc.Ingest(context.Background(), payload)
	require.ErrorIs(t, err, ErrEmptyReview)

	var validationErrors validator.ValidationErrors
	_, err = svc.Ingest(context.Background(), dto.ReviewSubmissionRequest{OverallComment: "text"})
	require.ErrorAs(t, err, &validationErrors)
}

func TestPipelineCompletesEvaluation(t *testing.T) {
	evaluator := &stubReviewEvaluator{output: validOutput()}
	svc, repo := setupReviewService(t, evaluator, nil)

	created, err := svc.Ingest(context.Background(), submissionPayload("11"))
	require.NoError(t, err)

	record := waitForStatus(t, repo, created.ID, models.ReviewStatusProcessed)
	require.Equal(t, "well structured review", record.GeneratedFeedback)

	var evaluation map[string]rubric.DimensionResult
	require.NoError(t, json.Unmarshal(record.GeneratedEvaluation, &evaluation))
	require.Len(t, evaluation, len(rubric.Dimensions))
	require.True(t, evaluation[rubric.DimensionActedOn].Score.NA)

	var full rubric.Output
	require.NoError(t, json.Unmarshal(record.FullOutput, &full))
	require.Equal(t, "well structured review", full.Feedback)
}

func TestPipelineMarksFailureOnExhaustion(t *testing.T) {
	evaluator := &stubReviewEvaluator{err: &ExhaustedError{Attempts: 10, LastRaw: "not json at all"}}
	svc, repo := setupReviewService(t, evaluator, nil)

	created, err := svc.Ingest(context.Background(), submissionPayload("13"))
	require.NoError(t, err)

	record := waitForStatus(t, repo, created.ID, models.ReviewStatusFailed)

	var message string
	require.NoError(t, json.Unmarshal(record.GeneratedReasoning, &message))
	require.Contains(t, message, "10 attempts")
	require.Contains(t, message, "not json at all")
}

func TestFinalizeFallsBackToGeneratedValues(t *testing.T) {
	evaluator := &stubReviewEvaluator{output: validOutput()}
	svc, repo := setupReviewService(t, evaluator, nil)
	ctx := context.Background()

	created, err := svc.Ingest(ctx, submissionPayload("21"))
	require.NoError(t, err)
	waitForStatus(t, repo, created.ID, models.ReviewStatusProcessed)

	finalized, err := svc.Finalize(ctx, created.ID, dto.FinalizeReviewRequest{})
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusFinalized, finalized.Status)
	require.NotNil(t, finalized.FinalizedFeedback)
	require.Equal(t, "well structured review", *finalized.FinalizedFeedback)
	// Twelve numeric dimensions scored 8, Acted On is N/A.
	require.NotNil(t, finalized.FinalizedScore)
	require.InDelta(t, 8.0, *finalized.FinalizedScore, 0.001)
}

func TestFinalizeAppliesOverrides(t *testing.T) {
	evaluator := &stubReviewEvaluator{output: validOutput()}
	svc, repo := setupReviewService(t, evaluator, nil)
	ctx := context.Background()

	created, err := svc.Ingest(ctx, submissionPayload("22"))
	require.NoError(t, err)
	waitForStatus(t, repo, created.ID, models.ReviewStatusProcessed)

	override := 6.5
	finalized, err := svc.Finalize(ctx, created.ID, dto.FinalizeReviewRequest{FinalizedScore: &override})
	require.NoError(t, err)
	require.Equal(t, 6.5, *finalized.FinalizedScore)
	// Feedback still falls back to the generated value.
	require.Equal(t, "well structured review", *finalized.FinalizedFeedback)
}

func TestFinalizeMissingReview(t *testing.T) {
	svc, _ := setupReviewService(t, &stubReviewEvaluator{output: validOutput()}, nil)

	_, err := svc.Finalize(context.Background(), 404, dto.FinalizeReviewRequest{})
	require.ErrorIs(t, err, ErrReviewNotFound)
}

func TestTriggerDoesNotClobberFinalized(t *testing.T) {
	evaluator := &stubReviewEvaluator{output: validOutput()}
	svc, repo := setupReviewService(t, evaluator, nil)
	ctx := context.Background()

	created, err := svc.Ingest(ctx, submissionPayload("31"))
	require.NoError(t, err)
	waitForStatus(t, repo, created.ID, models.ReviewStatusProcessed)

	score := 9.0
	_, err = svc.Finalize(ctx, created.ID, dto.FinalizeReviewRequest{FinalizedScore: &score})
	require.NoError(t, err)

	require.NoError(t, svc.Trigger(ctx, created.ID))

	require.Eventually(t, func() bool {
		return evaluator.callCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Give the terminal write time to land, then check the override survived.
	require.Eventually(t, func() bool {
		record, err := repo.GetByID(ctx, created.ID)
		return err == nil && record.GeneratedFeedback == "well structured review"
	}, 2*time.Second, 10*time.Millisecond)

	record, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusFinalized, record.Status)
	require.Equal(t, 9.0, *record.FinalizedScore)
}

func TestTriggerMissingReview(t *testing.T) {
	svc, _ := setupReviewService(t, &stubReviewEvaluator{output: validOutput()}, nil)
	require.ErrorIs(t, svc.Trigger(context.Background(), 404), ErrReviewNotFound)
}

func TestGetUsesCacheAndInvalidatesOnFinalize(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	evaluator := &stubReviewEvaluator{output: validOutput()}
	svc, repo := setupReviewService(t, evaluator, cache)
	ctx := context.Background()

	created, err := svc.Ingest(ctx, submissionPayload("51"))
	require.NoError(t, err)
	waitForStatus(t, repo, created.ID, models.ReviewStatusProcessed)

	cacheKey := fmt.Sprintf("review:%d", created.ID)
	fetched, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusProcessed, fetched.Status)
	require.True(t, mr.Exists(cacheKey))

	_, err = svc.Finalize(ctx, created.ID, dto.FinalizeReviewRequest{})
	require.NoError(t, err)
	require.False(t, mr.Exists(cacheKey))

	refreshed, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusFinalized, refreshed.Status)
}

func TestRecoverInFlightReschedulesUnfinished(t *testing.T) {
	evaluator := &stubReviewEvaluator{output: validOutput()}
	svc, repo := setupReviewService(t, evaluator, nil)
	ctx := context.Background()

	// A record abandoned mid-evaluation by an earlier process crash.
	stale := models.Review{ExternalID: "61", RawText: "text", Status: models.ReviewStatusProcessing}
	_, _, err := repo.CreateIfAbsent(ctx, &stale)
	require.NoError(t, err)

	scheduled, err := svc.RecoverInFlight(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, scheduled)

	waitForStatus(t, repo, stale.ID, models.ReviewStatusProcessed)
}
