package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/expertiza/review-eval-api/internal/models"
)

// GeneratedResult groups the columns written on a successful evaluation.
type GeneratedResult struct {
	Feedback   string
	Evaluation datatypes.JSON
	Reasoning  datatypes.JSON
	FullOutput datatypes.JSON
}

// ReviewRepository exposes persistence helpers for review records.
//
// CompleteEvaluation and FailEvaluation never move a record out of the
// finalized status and never touch the finalized_* columns, so a re-triggered
// evaluation cannot clobber a human override.
type ReviewRepository interface {
	// CreateIfAbsent inserts the review unless a record with the same
	// external id already exists, in which case the existing record is
	// returned unchanged. The boolean reports whether a row was created.
	CreateIfAbsent(ctx context.Context, review *models.Review) (models.Review, bool, error)
	GetByID(ctx context.Context, id uint) (models.Review, error)
	MarkProcessing(ctx context.Context, id uint) error
	CompleteEvaluation(ctx context.Context, id uint, result GeneratedResult) error
	FailEvaluation(ctx context.Context, id uint, message string, attempts int) error
	Finalize(ctx context.Context, id uint, score *float64, feedback *string) (models.Review, error)
	ListUnfinished(ctx context.Context) ([]models.Review, error)
}

// NewReviewRepository constructs a review repository.
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

type reviewRepository struct {
	db *gorm.DB
}

func (r *reviewRepository) CreateIfAbsent(ctx context.Context, review *models.Review) (models.Review, bool, error) {
	var existing models.Review
	err := r.db.WithContext(ctx).Where("external_id = ?", review.ExternalID).First(&existing).Error
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Review{}, false, err
	}

	if review.Status == "" {
		review.Status = models.ReviewStatusPending
	}

	if err := r.db.WithContext(ctx).Create(review).Error; err != nil {
		// A concurrent ingest may have won the race on the unique index.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			lookupErr := r.db.WithContext(ctx).Where("external_id = ?", review.ExternalID).First(&existing).Error
			if lookupErr == nil {
				return existing, false, nil
			}
		}
		return models.Review{}, false, err
	}

	return *review, true, nil
}

func (r *reviewRepository) GetByID(ctx context.Context, id uint) (models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, id).Error; err != nil {
		return models.Review{}, err
	}
	return review, nil
}

func (r *reviewRepository) MarkProcessing(ctx context.Context, id uint) error {
	return r.updateGuarded(ctx, id, map[string]interface{}{
		"status": statusUnlessFinalized(models.ReviewStatusProcessing),
	})
}

func (r *reviewRepository) CompleteEvaluation(ctx context.Context, id uint, result GeneratedResult) error {
	return r.updateGuarded(ctx, id, map[string]interface{}{
		"generated_feedback":   result.Feedback,
		"generated_evaluation": result.Evaluation,
		"generated_reasoning":  result.Reasoning,
		"full_output":          result.FullOutput,
		"status":               statusUnlessFinalized(models.ReviewStatusProcessed),
	})
}

func (r *reviewRepository) FailEvaluation(ctx context.Context, id uint, message string, attempts int) error {
	// The error text lands in the reasoning column so a caller polling the
	// record can see why the evaluation failed.
	encoded, err := json.Marshal(message)
	if err != nil {
		encoded = []byte(`"evaluation failed"`)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&models.Review{}).Where("id = ?", id).Updates(map[string]interface{}{
			"generated_reasoning": datatypes.JSON(encoded),
			"status":              statusUnlessFinalized(models.ReviewStatusFailed),
		})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		now := time.Now().UTC()
		job := models.FailedJob{
			ReviewID:      id,
			ErrorMessage:  message,
			Attempts:      attempts,
			LastAttemptAt: &now,
		}
		return tx.Create(&job).Error
	})
}

func (r *reviewRepository) Finalize(ctx context.Context, id uint, score *float64, feedback *string) (models.Review, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var review models.Review
		if err := tx.First(&review, id).Error; err != nil {
			return err
		}

		return tx.Model(&models.Review{}).Where("id = ?", id).Updates(map[string]interface{}{
			"finalized_score":    score,
			"finalized_feedback": feedback,
			"status":             models.ReviewStatusFinalized,
		}).Error
	})
	if err != nil {
		return models.Review{}, err
	}

	return r.GetByID(ctx, id)
}

func (r *reviewRepository) ListUnfinished(ctx context.Context) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.ReviewStatusPending, models.ReviewStatusProcessing}).
		Order("id").
		Find(&reviews).Error
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *reviewRepository) updateGuarded(ctx context.Context, id uint, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func statusUnlessFinalized(next string) interface{} {
	return gorm.Expr("CASE WHEN status = ? THEN status ELSE ? END", models.ReviewStatusFinalized, next)
}
