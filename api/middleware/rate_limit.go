package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quillcoach/credits-backend/api/responses"
	pkgerrors "github.com/quillcoach/credits-backend/pkg/errors"
	"github.com/quillcoach/credits-backend/pkg/logger"
	pkgredis "github.com/quillcoach/credits-backend/pkg/redis"
)

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// quota caps requests per subject within one window. subject returns "" when
// the request carries nothing to count against.
type quota struct {
	scope   string
	max     int64
	subject func(*http.Request) string
}

// RateLimitPolicy is a named set of fixed-window quotas.
type RateLimitPolicy struct {
	name   string
	window time.Duration
	quotas []quota
}

// NewRateLimitPolicy counts per client IP and per authenticated user. A
// non-positive limit disables that quota.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, userLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	p := RateLimitPolicy{name: name, window: window}
	if ipLimit > 0 {
		p.quotas = append(p.quotas, quota{scope: "ip", max: int64(ipLimit), subject: clientIP})
	}
	if userLimit > 0 {
		p.quotas = append(p.quotas, quota{scope: "user", max: int64(userLimit), subject: func(r *http.Request) string {
			return UserIDFromContext(r.Context())
		}})
	}
	return p
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && len(p.quotas) > 0
}

// RateLimit rejects with 429 once any quota is exhausted. Mount it after Auth
// so the user quota sees the caller.
func RateLimit(policy RateLimitPolicy, store counterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		retryAfter := strconv.Itoa(int(policy.window.Round(time.Second).Seconds()))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, q := range policy.quotas {
				subject := q.subject(r)
				if subject == "" {
					continue
				}
				count, err := store.IncrWithTTL(ctx, pkgredis.Key("rl", q.scope, policy.name, subject), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count <= q.max {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":   policy.name,
						"scope":    q.scope,
						"subject":  subject,
						"attempts": count,
						"limit":    q.max,
					}), "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", retryAfter)
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP trusts the first X-Forwarded-For hop, as set by the load balancer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
