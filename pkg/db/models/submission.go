package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/enums"
)

// Submission is a student's writing sample awaiting evaluation.
type Submission struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	StudentID             uuid.UUID              `gorm:"column:student_id;type:uuid;not null"`
	TrainerID             *uuid.UUID             `gorm:"column:trainer_id;type:uuid"`
	TestName              string                 `gorm:"column:test_name;type:text;not null"`
	Status                enums.SubmissionStatus `gorm:"column:status;type:submission_status;not null"`
	EvaluationType        *enums.EvaluationType  `gorm:"column:evaluation_type;type:evaluation_type"`
	EvaluationCost        *int64                 `gorm:"column:evaluation_cost"`
	EvaluationRequestedAt *time.Time             `gorm:"column:evaluation_requested_at;type:timestamptz"`
	CreatedAt             time.Time              `gorm:"column:created_at;type:timestamptz;not null"`
}
