package pricing

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/pkg/db/dbtest"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(NewRepository(dbtest.New(t)), Defaults{AIEvaluationCost: 10, TrainerEvaluationCost: 25})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func int64Ptr(v int64) *int64 { return &v }

func TestCostForFallsBackToDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cost, err := svc.CostFor(ctx, nil, enums.EvaluationTypeAI)
	if err != nil || cost != 10 {
		t.Fatalf("expected default ai cost 10, got %d (%v)", cost, err)
	}
	unknown := uuid.New()
	cost, err = svc.CostFor(ctx, &unknown, enums.EvaluationTypeManual)
	if err != nil || cost != 25 {
		t.Fatalf("expected default manual cost 25, got %d (%v)", cost, err)
	}
}

func TestUpdateOverridesSingleCost(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	trainerID := uuid.New()

	view, err := svc.Update(ctx, trainerID, CostOverrides{AIEvaluationCost: int64Ptr(4)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if view.AIEvaluationCost != 4 || !view.AIOverridden {
		t.Fatalf("unexpected ai pricing %+v", view)
	}
	if view.TrainerEvaluationCost != 25 || view.TrainerOverridden {
		t.Fatalf("manual pricing should keep the default: %+v", view)
	}

	view, err = svc.Update(ctx, trainerID, CostOverrides{TrainerEvaluationCost: int64Ptr(0)})
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if view.AIEvaluationCost != 4 || view.TrainerEvaluationCost != 0 {
		t.Fatalf("unexpected pricing after second update %+v", view)
	}

	cost, err := svc.CostFor(ctx, &trainerID, enums.EvaluationTypeManual)
	if err != nil || cost != 0 {
		t.Fatalf("expected free manual evaluation, got %d (%v)", cost, err)
	}
}

func TestUpdateRejectsNegativeCost(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Update(context.Background(), uuid.New(), CostOverrides{AIEvaluationCost: int64Ptr(-1)})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = svc.Update(context.Background(), uuid.New(), CostOverrides{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty update, got %v", err)
	}
}

func TestCostForRejectsUnknownType(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.CostFor(context.Background(), nil, "peer"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
