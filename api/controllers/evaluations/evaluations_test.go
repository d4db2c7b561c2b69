package evaluations

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quillcoach/credits-backend/api/middleware"
	internalevaluations "github.com/quillcoach/credits-backend/internal/evaluations"
	"github.com/quillcoach/credits-backend/pkg/enums"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
)

type requesterFunc func(ctx context.Context, input internalevaluations.RequestInput) (*internalevaluations.Receipt, error)

func (f requesterFunc) RequestEvaluation(ctx context.Context, input internalevaluations.RequestInput) (*internalevaluations.Receipt, error) {
	return f(ctx, input)
}

func newRequest(body string, studentID uuid.UUID, submissionID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("submissionId", submissionID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithUserID(ctx, studentID.String())
	return req.WithContext(ctx)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestRequestEvaluationAccepted(t *testing.T) {
	studentID := uuid.New()
	submissionID := uuid.New()
	svc := requesterFunc(func(ctx context.Context, input internalevaluations.RequestInput) (*internalevaluations.Receipt, error) {
		if input.StudentID != studentID || input.SubmissionID != submissionID {
			t.Fatalf("unexpected input %+v", input)
		}
		if input.EvaluationType != enums.EvaluationTypeAI {
			t.Fatalf("expected ai evaluation, got %s", input.EvaluationType)
		}
		return &internalevaluations.Receipt{Accepted: true, SubmissionID: submissionID, EvaluationType: input.EvaluationType, Cost: 10, NewBalance: 40}, nil
	})

	resp := httptest.NewRecorder()
	RequestEvaluation(svc, testLogger())(resp, newRequest(`{"evaluationType":"ai"}`, studentID, submissionID.String()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data internalevaluations.Receipt `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Accepted || envelope.Data.NewBalance != 40 {
		t.Fatalf("unexpected receipt %+v", envelope.Data)
	}
}

func TestRequestEvaluationUnknownType(t *testing.T) {
	svc := requesterFunc(func(ctx context.Context, input internalevaluations.RequestInput) (*internalevaluations.Receipt, error) {
		t.Fatal("service must not be called")
		return nil, nil
	})
	resp := httptest.NewRecorder()
	RequestEvaluation(svc, testLogger())(resp, newRequest(`{"evaluationType":"peer"}`, uuid.New(), uuid.NewString()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRequestEvaluationInsufficientBalance(t *testing.T) {
	svc := requesterFunc(func(ctx context.Context, input internalevaluations.RequestInput) (*internalevaluations.Receipt, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient credits; purchase more credits to continue").
			WithDetails(map[string]int64{"balance": 5, "required": 25})
	})
	resp := httptest.NewRecorder()
	RequestEvaluation(svc, testLogger())(resp, newRequest(`{"evaluationType":"manual"}`, uuid.New(), uuid.NewString()))

	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"required":25`) {
		t.Fatalf("expected details in body, got %s", resp.Body.String())
	}
}

func TestRequestEvaluationAlreadyRequested(t *testing.T) {
	svc := requesterFunc(func(ctx context.Context, input internalevaluations.RequestInput) (*internalevaluations.Receipt, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "evaluation already requested")
	})
	resp := httptest.NewRecorder()
	RequestEvaluation(svc, testLogger())(resp, newRequest(`{"evaluationType":"ai"}`, uuid.New(), uuid.NewString()))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestRequestEvaluationUnauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"evaluationType":"ai"}`))
	resp := httptest.NewRecorder()
	RequestEvaluation(requesterFunc(nil), testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
