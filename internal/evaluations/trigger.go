package evaluations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/quillcoach/credits-backend/pkg/config"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
)

const defaultTriggerTimeout = 10 * time.Second

// TriggerRequest is the body the AI evaluation pipeline expects.
type TriggerRequest struct {
	SubmissionID uuid.UUID  `json:"submissionId"`
	TrainerID    *uuid.UUID `json:"trainerId"`
}

// TriggerClient starts AI evaluations over HTTP.
type TriggerClient struct {
	client  *fasthttp.Client
	url     string
	token   string
	timeout time.Duration
}

// NewTriggerClient builds a client for the configured trigger endpoint. A nil
// http client gets a pooled default.
func NewTriggerClient(cfg config.EvaluationConfig, client *fasthttp.Client) (*TriggerClient, error) {
	url := strings.TrimSpace(cfg.TriggerURL)
	if url == "" {
		return nil, errors.New("evaluation trigger url is required")
	}
	timeout := cfg.TriggerTimeout
	if timeout <= 0 {
		timeout = defaultTriggerTimeout
	}
	if client == nil {
		client = &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 60 * time.Second,
		}
	}
	return &TriggerClient{
		client:  client,
		url:     url,
		token:   strings.TrimSpace(cfg.TriggerToken),
		timeout: timeout,
	}, nil
}

func (c *TriggerClient) Trigger(ctx context.Context, request TriggerRequest) error {
	if request.SubmissionID == uuid.Nil {
		return errors.New("submission id is required")
	}
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode trigger request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call evaluation trigger")
	}
	return statusError(resp.StatusCode(), resp.Body())
}

// statusError maps the trigger's reply onto retry semantics: 4xx other than
// 408 and 429 means the request itself was refused and will not change.
func statusError(status int, body []byte) error {
	switch {
	case status >= fasthttp.StatusOK && status < fasthttp.StatusMultipleChoices:
		return nil
	case status == fasthttp.StatusRequestTimeout, status == fasthttp.StatusTooManyRequests,
		status >= fasthttp.StatusInternalServerError:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", status, truncate(body, 256)), "evaluation trigger unavailable")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, fmt.Errorf("status %d: %s", status, truncate(body, 256)), "evaluation trigger refused request")
	}
}

func truncate(body []byte, max int) string {
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
