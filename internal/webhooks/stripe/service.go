package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/quillcoach/credits-backend/internal/funding"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
	"github.com/quillcoach/credits-backend/pkg/metrics"
)

const providerStripe = "stripe"

// Checkout session metadata keys set when the session is created.
const (
	metadataStudentID = "studentId"
	metadataPlanID    = "planId"
	metadataCredits   = "credits"
)

// ErrFulfillmentFailed marks a verified event that could not be credited.
// The delivery is acknowledged and left for operator reconciliation.
var ErrFulfillmentFailed = errors.New("stripe fulfillment failed")

type purchaser interface {
	PurchaseTx(ctx context.Context, tx *gorm.DB, input funding.PurchaseInput) (*funding.PurchaseResult, error)
}

type atomicRunner interface {
	Atomically(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Purchases purchaser
	Atomic    atomicRunner
	Events    Repository
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
}

// Service fulfills credit purchases completed through Stripe Checkout.
type Service struct {
	purchases purchaser
	atomic    atomicRunner
	events    Repository
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "purchase service required")
	}
	if params.Atomic == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "balance mutator required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "processed events repository required")
	}
	return &Service{
		purchases: params.Purchases,
		atomic:    params.Atomic,
		events:    params.Events,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

type checkoutMetadata struct {
	StudentID uuid.UUID
	PlanID    uuid.UUID
	Credits   int64
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	if strings.TrimSpace(event.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event id required")
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		s.metrics.IncWebhook("ignored")
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		s.metrics.IncWebhook("rejected")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	meta, err := parseMetadata(session.Metadata)
	if err != nil {
		s.metrics.IncWebhook("rejected")
		return err
	}

	credited, err := s.fulfill(ctx, event, meta)
	if err != nil {
		s.metrics.IncWebhook("failed")
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"event_id":                event.ID,
				"student_id":              meta.StudentID.String(),
				"plan_id":                 meta.PlanID.String(),
				"credits":                 meta.Credits,
				"reconciliation_required": true,
			})
			s.logg.Error(logCtx, "stripe checkout fulfillment failed", err)
		}
		return fmt.Errorf("%w: %v", ErrFulfillmentFailed, err)
	}
	if !credited {
		s.metrics.IncWebhook("duplicate")
		return nil
	}
	s.metrics.IncWebhook("credited")
	return nil
}

// Processed reports whether eventID has a durable processed record.
func (s *Service) Processed(ctx context.Context, eventID string) (bool, error) {
	row, err := s.events.Find(ctx, eventID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up processed stripe event")
	}
	return row != nil, nil
}

// fulfill records the event and credits the account in one atomic unit. It
// reports false when the event had already been processed.
func (s *Service) fulfill(ctx context.Context, event *stripe.Event, meta checkoutMetadata) (bool, error) {
	var credited bool
	err := s.atomic.Atomically(ctx, func(tx *gorm.DB) error {
		credited = false
		accountID := meta.StudentID
		inserted, err := s.events.WithTx(tx).Insert(ctx, &models.ProcessedWebhookEvent{
			EventID:     event.ID,
			Provider:    providerStripe,
			EventType:   string(event.Type),
			AccountID:   &accountID,
			ProcessedAt: s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("record stripe event: %w", err)
		}
		if !inserted {
			return nil
		}
		if _, err := s.purchases.PurchaseTx(ctx, tx, funding.PurchaseInput{
			AccountID: meta.StudentID,
			PlanID:    meta.PlanID,
			Credits:   meta.Credits,
			Source:    enums.TransactionSourceStripe,
			SourceRef: event.ID,
		}); err != nil {
			return err
		}
		credited = true
		return nil
	})
	return credited, err
}

func parseMetadata(metadata map[string]string) (checkoutMetadata, error) {
	var meta checkoutMetadata
	studentID, err := uuid.Parse(strings.TrimSpace(metadata[metadataStudentID]))
	if err != nil || studentID == uuid.Nil {
		return meta, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata studentId is invalid")
	}
	planID, err := uuid.Parse(strings.TrimSpace(metadata[metadataPlanID]))
	if err != nil || planID == uuid.Nil {
		return meta, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata planId is invalid")
	}
	credits, err := strconv.ParseInt(strings.TrimSpace(metadata[metadataCredits]), 10, 64)
	if err != nil || credits <= 0 {
		return meta, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata credits must be a positive integer")
	}
	meta.StudentID = studentID
	meta.PlanID = planID
	meta.Credits = credits
	return meta, nil
}
