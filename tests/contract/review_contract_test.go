package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/expertiza/review-eval-api/internal/dto"
	"github.com/expertiza/review-eval-api/internal/handler"
	"github.com/expertiza/review-eval-api/internal/rubric"
)

type stubReviewService struct {
	response dto.ReviewResponse
}

func (s stubReviewService) Ingest(context.Context, dto.ReviewSubmissionRequest) (dto.ReviewResponse, error) {
	return s.response, nil
}

func (s stubReviewService) Get(context.Context, uint) (dto.ReviewResponse, error) {
	return s.response, nil
}

func (s stubReviewService) Finalize(context.Context, uint, dto.FinalizeReviewRequest) (dto.ReviewResponse, error) {
	return s.response, nil
}

func (s stubReviewService) Trigger(context.Context, uint) error { return nil }

func (s stubReviewService) EvaluateDirect(context.Context, dto.DirectEvaluationRequest) (rubric.Output, error) {
	return rubric.Output{}, nil
}

func (s stubReviewService) RecoverInFlight(context.Context) (int, error) { return 0, nil }

func (s stubReviewService) Close() {}

func TestReviewResponseContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "review.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	output := rubric.Output{
		Reasoning:  map[string]string{},
		Evaluation: map[string]rubric.DimensionResult{},
		Feedback:   "Clear, specific, and actionable review.",
	}
	for _, dimension := range rubric.Dimensions {
		output.Reasoning[dimension] = "reviewed against the rubric"
		output.Evaluation[dimension] = rubric.DimensionResult{
			Score:         rubric.Score{Value: 8},
			Justification: "well supported by the review text",
		}
	}
	output.Evaluation[rubric.DimensionActedOn] = rubric.DimensionResult{
		Score:         rubric.Score{NA: true},
		Justification: "first round, nothing to act on yet",
	}

	evaluation, err := json.Marshal(output.Evaluation)
	require.NoError(t, err)
	reasoning, err := json.Marshal(output.Reasoning)
	require.NoError(t, err)
	full, err := json.Marshal(output)
	require.NoError(t, err)

	now := time.Now().UTC()
	score := 8.0
	svc := stubReviewService{response: dto.ReviewResponse{
		ID:                  7,
		ExternalID:          "417",
		RawText:             "Review text under evaluation.",
		GeneratedFeedback:   output.Feedback,
		GeneratedEvaluation: evaluation,
		GeneratedReasoning:  reasoning,
		FullOutput:          full,
		FinalizedScore:      &score,
		Status:              "finalized",
		CreatedAt:           now.Add(-time.Hour),
		UpdatedAt:           now,
	}}

	h := handler.NewReviewHandler(svc, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	app := fiber.New()
	h.Register(app.Group("/api/v1/reviews"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/reviews/7", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}
