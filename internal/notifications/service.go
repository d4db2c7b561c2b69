package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/pagination"
)

// Service defines notification list/read operations.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	CreateManualPaymentProof(ctx context.Context, trainerID uuid.UUID, proof models.ManualPaymentContext) (*NotificationView, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	RecipientID uuid.UUID
	Limit       int
	Cursor      string
	UnreadOnly  bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []NotificationView `json:"items"`
	Cursor string             `json:"cursor"`
}

type NotificationView struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Context   json.RawMessage        `json:"context,omitempty"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.RecipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	page := pagination.Params{Limit: params.Limit, Cursor: params.Cursor}
	after, err := page.After()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.Page(ctx, pageQuery{
		RecipientID: params.RecipientID,
		UnreadOnly:  params.UnreadOnly,
		After:       after,
		Fetch:       page.Fetch(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	rows, next := pagination.Trim(rows, page, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})

	result := &ListResult{Items: make([]NotificationView, 0, len(rows)), Cursor: next}
	for _, row := range rows {
		result.Items = append(result.Items, newNotificationView(row))
	}
	return result, nil
}

func (s *service) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if recipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	found, err := s.repo.MarkRead(ctx, recipientID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if recipientID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}

	count, err := s.repo.MarkAllRead(ctx, recipientID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

// CreateManualPaymentProof notifies a trainer that a student paid outside
// Stripe and is waiting for confirmation.
func (s *service) CreateManualPaymentProof(ctx context.Context, trainerID uuid.UUID, proof models.ManualPaymentContext) (*NotificationView, error) {
	if trainerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trainer id required")
	}
	if proof.StudentID == uuid.Nil || proof.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student and plan are required")
	}
	if proof.Credits <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credits must be positive")
	}

	payload, err := json.Marshal(proof)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode notification context")
	}
	notification := &models.Notification{
		ID:          uuid.New(),
		RecipientID: trainerID,
		Type:        enums.NotificationTypeManualPaymentProof,
		Title:       "Manual payment submitted",
		Message:     fmt.Sprintf("%s reports paying for %s (%d credits).", studentLabel(proof), proof.PlanName, proof.Credits),
		Context:     payload,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	view := newNotificationView(*notification)
	return &view, nil
}

func studentLabel(proof models.ManualPaymentContext) string {
	if proof.StudentName != "" {
		return proof.StudentName
	}
	return "A student"
}

func newNotificationView(row models.Notification) NotificationView {
	return NotificationView{
		ID:        row.ID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		Context:   row.Context,
		ReadAt:    row.ReadAt,
		CreatedAt: row.CreatedAt,
	}
}
