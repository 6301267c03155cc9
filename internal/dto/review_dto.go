package dto

import (
	"encoding/json"
	"time"

	"github.com/expertiza/review-eval-api/internal/models"
	"github.com/expertiza/review-eval-api/internal/rubric"
)

// ScoredAnswerRequest is one rubric-question answer inside a submission.
type ScoredAnswerRequest struct {
	Question      string   `json:"question" validate:"required"`
	Type          string   `json:"type"`
	MaxPoints     *float64 `json:"max_points"`
	AwardedPoints *float64 `json:"awarded_points"`
	Comments      string   `json:"comments"`
}

// ReviewSubmissionRequest is the payload for ingesting a peer review. The
// external id accepts both a JSON number and a numeric string, matching what
// upstream clients send.
type ReviewSubmissionRequest struct {
	ExternalID     json.Number           `json:"external_id" validate:"required"`
	CourseName     string                `json:"course_name"`
	AssignmentName string                `json:"assignment_name"`
	Round          int                   `json:"round"`
	Scores         []ScoredAnswerRequest `json:"scores"`
	OverallComment string                `json:"overall_comment"`
	PriorReview    string                `json:"prior_review"`
}

// HasContent reports whether the submission carries anything worth
// evaluating.
func (r ReviewSubmissionRequest) HasContent() bool {
	return len(r.Scores) > 0 || r.OverallComment != ""
}

// Submission converts the request into the prompt compiler's input.
func (r ReviewSubmissionRequest) Submission() rubric.Submission {
	answers := make([]rubric.ScoredAnswer, 0, len(r.Scores))
	for _, score := range r.Scores {
		answers = append(answers, rubric.ScoredAnswer{
			Question:      score.Question,
			Type:          score.Type,
			MaxPoints:     score.MaxPoints,
			AwardedPoints: score.AwardedPoints,
			Comment:       score.Comments,
		})
	}

	return rubric.Submission{
		CourseName:     r.CourseName,
		AssignmentName: r.AssignmentName,
		Round:          r.Round,
		Scores:         answers,
		OverallComment: r.OverallComment,
		PriorReview:    r.PriorReview,
	}
}

// FinalizeReviewRequest carries the optional human overrides for finalizing.
type FinalizeReviewRequest struct {
	FinalizedFeedback *string  `json:"finalized_feedback"`
	FinalizedScore    *float64 `json:"finalized_score"`
}

// DirectEvaluationRequest is the payload for the synchronous evaluation
// endpoint, which bypasses persistence.
type DirectEvaluationRequest struct {
	ReviewText  string   `json:"review_text" validate:"required"`
	Temperature *float32 `json:"temperature"`
	MaxAttempts *int     `json:"max_attempts" validate:"omitempty,gt=0"`
}

// ReviewResponse represents a review record to API consumers.
type ReviewResponse struct {
	ID                  uint            `json:"id"`
	ExternalID          string          `json:"external_id"`
	RawText             string          `json:"raw_text"`
	GeneratedFeedback   string          `json:"generated_feedback"`
	GeneratedEvaluation json.RawMessage `json:"generated_evaluation,omitempty"`
	GeneratedReasoning  json.RawMessage `json:"generated_reasoning,omitempty"`
	FullOutput          json.RawMessage `json:"full_output,omitempty"`
	FinalizedFeedback   *string         `json:"finalized_feedback"`
	FinalizedScore      *float64        `json:"finalized_score"`
	Status              string          `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewReviewResponse builds a response DTO from a model.
func NewReviewResponse(review models.Review) ReviewResponse {
	return ReviewResponse{
		ID:                  review.ID,
		ExternalID:          review.ExternalID,
		RawText:             review.RawText,
		GeneratedFeedback:   review.GeneratedFeedback,
		GeneratedEvaluation: json.RawMessage(review.GeneratedEvaluation),
		GeneratedReasoning:  json.RawMessage(review.GeneratedReasoning),
		FullOutput:          json.RawMessage(review.FullOutput),
		FinalizedFeedback:   review.FinalizedFeedback,
		FinalizedScore:      review.FinalizedScore,
		Status:              review.Status,
		CreatedAt:           review.CreatedAt,
		UpdatedAt:           review.UpdatedAt,
	}
}
