package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/burudani/burudani-backend/api/responses"
	pkgerrors "github.com/burudani/burudani-backend/pkg/errors"
	"github.com/burudani/burudani-backend/pkg/logger"
	pkgredis "github.com/burudani/burudani-backend/pkg/redis"
)

const maxRateLimitBody = 16 << 10

// rateRule counts one dimension of a request. key returns "" when the request
// carries nothing to count for that dimension.
type rateRule struct {
	dimension string
	limit     int
	needsBody bool
	key       func(r *http.Request, body []byte) string
}

// AuthRateLimitPolicy throttles a credential endpoint by client IP and by the
// email in the JSON body. Emails are hashed before they reach redis.
type AuthRateLimitPolicy struct {
	name   string
	window time.Duration
	rules  []rateRule
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	policy := AuthRateLimitPolicy{
		name:   strings.ToLower(strings.TrimSpace(name)),
		window: window,
	}
	if policy.name == "" {
		policy.name = "auth"
	}
	if ipLimit > 0 {
		policy.rules = append(policy.rules, rateRule{
			dimension: "ip",
			limit:     ipLimit,
			key:       func(r *http.Request, _ []byte) string { return clientIP(r) },
		})
	}
	if emailLimit > 0 {
		policy.rules = append(policy.rules, rateRule{
			dimension: "email",
			limit:     emailLimit,
			needsBody: true,
			key: func(_ *http.Request, body []byte) string {
				email := strings.ToLower(strings.TrimSpace(extractEmail(body)))
				if email == "" {
					return ""
				}
				return hashValue(email)
			},
		})
	}
	return policy
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && len(p.rules) > 0
}

func (p AuthRateLimitPolicy) needsBody() bool {
	for _, rule := range p.rules {
		if rule.needsBody {
			return true
		}
	}
	return false
}

// AuthRateLimit rejects with 429 once any rule exceeds its limit in the window.
// A redis failure is a 503, not a silent pass.
func AuthRateLimit(policy AuthRateLimitPolicy, store pkgredis.RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if policy.needsBody() {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, maxRateLimitBody+1))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				if len(body) > maxRateLimitBody {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			for _, rule := range policy.rules {
				key := rule.key(r, body)
				if key == "" {
					continue
				}
				scope := policy.name + ":" + rule.dimension + ":" + key
				allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(rule.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					policy.reject(ctx, logg, w, rule, key, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (p AuthRateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, rule rateRule, key string, count int64) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"policy":         p.name,
			"scope":          rule.dimension,
			rule.dimension:   key,
			"attempts":       count,
			"limit":          rule.limit,
			"window_seconds": int(p.window.Seconds()),
		})
		logg.Warn(logCtx, "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(p.window.Round(time.Second).Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		first, _, _ := strings.Cut(header, ",")
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

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Email
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
