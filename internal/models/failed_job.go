package models

import "time"

// FailedJob records one exhausted or aborted evaluation run for a review,
// kept for operator diagnosis.
type FailedJob struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ReviewID      uint       `gorm:"not null;index" json:"review_id"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	CreatedAt     time.Time  `json:"created_at"`
}
