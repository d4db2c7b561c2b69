package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/quillcoach/credits-backend/api/responses"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
	pkgredis "github.com/quillcoach/credits-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	replayTTL       = 24 * time.Hour
	creditReplayTTL = 7 * 24 * time.Hour
	inFlightTTL     = time.Minute
)

// replayRule marks a mutating route as requiring an Idempotency-Key.
// Patterns use chi syntax; "{...}" matches one path segment.
type replayRule struct {
	method  string
	pattern string
	ttl     time.Duration
}

var replayRules = []replayRule{
	{http.MethodPost, "/api/v1/accounts", replayTTL},
	{http.MethodPost, "/api/v1/student/manual-payments", replayTTL},
	{http.MethodPost, "/api/v1/notifications/{notificationId}/read", replayTTL},
	{http.MethodPost, "/api/v1/notifications/read-all", replayTTL},
	{http.MethodPost, "/api/v1/trainer/manual-payments/{notificationId}/reject", replayTTL},
	{http.MethodPut, "/api/v1/trainer/pricing", replayTTL},
	{http.MethodPost, "/api/v1/trainer/plans", replayTTL},

	// credit-moving routes
	{http.MethodPost, "/api/v1/student/submissions/{submissionId}/evaluation", creditReplayTTL},
	{http.MethodPost, "/api/v1/trainer/students/{studentId}/adjustments", creditReplayTTL},
	{http.MethodPost, "/api/v1/trainer/manual-payments/{notificationId}/confirm", creditReplayTTL},
}

type replayRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency replays the first non-5xx response stored for (user, method,
// path, key). A key reused with a different body is rejected, as is a retry
// that arrives while the first attempt is still running.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, guarded := replayTTLFor(r.Method, requestPath(r))
			if !guarded {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			cache := replayCache{
				store:       store,
				key:         store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey),
				fingerprint: fingerprint(body),
			}

			stored, err := cache.lookup(ctx)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if stored != nil {
				stored.writeTo(w)
				return
			}

			claimed, err := cache.claim(ctx)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !claimed {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress"))
				return
			}
			defer cache.release(ctx, logg)

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			if capture.statusCode() >= http.StatusInternalServerError {
				return
			}
			cache.save(ctx, logg, capture, ttl)
		})
	}
}

type replayCache struct {
	store       pkgredis.IdempotencyStore
	key         string
	fingerprint string
}

func (c replayCache) lookup(ctx context.Context) (*replayRecord, error) {
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var record replayRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if record.Fingerprint != c.fingerprint {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}
	return &record, nil
}

func (c replayCache) claim(ctx context.Context) (bool, error) {
	ok, err := c.store.SetNX(ctx, c.key+":inflight", c.fingerprint, inFlightTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return ok, nil
}

func (c replayCache) release(ctx context.Context, logg *logger.Logger) {
	if err := c.store.Del(context.WithoutCancel(ctx), c.key+":inflight"); err != nil && logg != nil {
		logg.Error(ctx, "release idempotency claim", err)
	}
}

func (c replayCache) save(ctx context.Context, logg *logger.Logger, capture *responseCapture, ttl time.Duration) {
	payload, err := json.Marshal(replayRecord{
		Status:      capture.statusCode(),
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
		Fingerprint: c.fingerprint,
	})
	if err == nil {
		_, err = c.store.SetNX(context.WithoutCancel(ctx), c.key, string(payload), ttl)
	}
	if err != nil && logg != nil {
		logg.Error(ctx, "persist idempotency record", err)
	}
}

func (r *replayRecord) writeTo(w http.ResponseWriter) {
	if r.ContentType != "" {
		w.Header().Set("Content-Type", r.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// requestPath prefers the matched chi pattern. Under Use the pattern is still
// a wildcard prefix, so the raw path is matched segment by segment instead.
func requestPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func replayTTLFor(method, path string) (time.Duration, bool) {
	for _, rule := range replayRules {
		if rule.method == method && patternMatches(rule.pattern, path) {
			return rule.ttl, true
		}
	}
	return 0, false
}

func patternMatches(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if segment != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
