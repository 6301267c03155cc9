package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReviewStatus values for the record lifecycle.
const (
	ReviewStatusPending    = "pending"
	ReviewStatusProcessing = "processing"
	ReviewStatusProcessed  = "processed"
	ReviewStatusFailed     = "failed"
	ReviewStatusFinalized  = "finalized"
)

// Review tracks one peer review from ingest through finalization. ExternalID
// is the caller-supplied key used for idempotent deduplication; at most one
// record exists per external id.
type Review struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ExternalID string `gorm:"size:64;not null;uniqueIndex" json:"external_id"`
	RawText    string `gorm:"type:text;not null" json:"raw_text"`

	GeneratedFeedback   string         `gorm:"type:text" json:"generated_feedback"`
	GeneratedEvaluation datatypes.JSON `json:"generated_evaluation"`
	GeneratedReasoning  datatypes.JSON `json:"generated_reasoning"`
	FullOutput          datatypes.JSON `json:"full_output"`

	FinalizedFeedback *string  `gorm:"type:text" json:"finalized_feedback"`
	FinalizedScore    *float64 `json:"finalized_score"`

	Status    string    `gorm:"size:32;not null;default:pending" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FailedJobs []FailedJob `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsFinalized reports whether the record has been finalized by a human
// reviewer. Finalized records never leave that status.
func (r Review) IsFinalized() bool {
	return r.Status == ReviewStatusFinalized
}

// IsUnfinished reports whether the record still has an evaluation in flight.
func (r Review) IsUnfinished() bool {
	return r.Status == ReviewStatusPending || r.Status == ReviewStatusProcessing
}
