package submissions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/internal/repo"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
)

// Repository reads submissions and records evaluation requests against them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	MarkEvaluationRequested(ctx context.Context, mark EvaluationMark) (bool, error)
}

// EvaluationMark records a paid evaluation request on a submission.
type EvaluationMark struct {
	SubmissionID   uuid.UUID
	EvaluationType enums.EvaluationType
	Cost           int64
	RequestedAt    time.Time
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bound(tx)}
}

func (r *repository) Create(ctx context.Context, submission *models.Submission) error {
	return r.DB(ctx).Create(submission).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	return repo.FindOne[models.Submission](r.DB(ctx), "id = ?", id)
}

// MarkEvaluationRequested sets the evaluation fields only while none are set.
// It reports false when another request got there first.
func (r *repository) MarkEvaluationRequested(ctx context.Context, mark EvaluationMark) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND evaluation_type IS NULL", mark.SubmissionID).
		Updates(map[string]any{
			"evaluation_type":         mark.EvaluationType,
			"evaluation_cost":         mark.Cost,
			"evaluation_requested_at": mark.RequestedAt,
			"status":                  enums.StatusForEvaluation(mark.EvaluationType),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
