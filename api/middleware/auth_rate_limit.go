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

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// credentialPeekLimit bounds how much of a login or register body is buffered
// to find the email address.
const credentialPeekLimit = 64 << 10

// AuthThrottle is the credential-endpoint budget: attempts per client address
// and per submitted email within one window. A zero limit disables that scope.
type AuthThrottle struct {
	Endpoint string
	Window   time.Duration
	PerIP    int
	PerEmail int
}

// LoginThrottle reads the login budget from config.
func LoginThrottle(cfg config.AuthRateLimitConfig) AuthThrottle {
	return AuthThrottle{Endpoint: "login", Window: cfg.LoginWindow, PerIP: cfg.LoginIPLimit, PerEmail: cfg.LoginEmailLimit}
}

// RegisterThrottle reads the registration budget from config.
func RegisterThrottle(cfg config.AuthRateLimitConfig) AuthThrottle {
	return AuthThrottle{Endpoint: "register", Window: cfg.RegisterWindow, PerIP: cfg.RegisterIPLimit, PerEmail: cfg.RegisterEmailLimit}
}

func (t AuthThrottle) active() bool {
	return t.Window > 0 && (t.PerIP > 0 || t.PerEmail > 0)
}

// AuthRateLimit throttles credential endpoints on top of the global limiter.
// Like the global limiter it lets requests through when the counter store fails.
func AuthRateLimit(t AuthThrottle, limiter pkgredis.RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !t.active() || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if t.PerIP > 0 {
				ip := clientIP(r)
				if !t.admit(ctx, w, limiter, logg, "ip:"+ip, t.PerIP, map[string]any{"ip": ip}) {
					return
				}
			}

			if t.PerEmail > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, credentialPeekLimit))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read request body"))
					return
				}
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))

				if email := validators.NormalizeEmail(submittedEmail(body)); email != "" {
					digest := emailDigest(email)
					if !t.admit(ctx, w, limiter, logg, "email:"+digest, t.PerEmail, map[string]any{"email_hash": digest}) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// admit counts one attempt in scope and writes a 429 when the budget is spent.
func (t AuthThrottle) admit(ctx context.Context, w http.ResponseWriter, limiter pkgredis.RateLimiter, logg *logger.Logger, scope string, limit int, fields map[string]any) bool {
	scope = "auth:" + t.Endpoint + ":" + scope
	allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(limit), t.Window)
	if err != nil {
		if logg != nil {
			logg.Error(ctx, "auth.rate_limit.unavailable", err)
		}
		return true
	}
	if allowed {
		return true
	}

	retry := t.Window
	if ttl, ttlErr := limiter.WindowTTL(ctx, scope); ttlErr == nil && ttl > 0 {
		retry = ttl
	}
	if logg != nil {
		fields["endpoint"] = t.Endpoint
		fields["attempts"] = count
		fields["limit"] = limit
		logg.Warn(logg.WithFields(ctx, fields), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit,
		"Too many authentication attempts, please try again later."))
	return false
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

func submittedEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Email
}

func emailDigest(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:16])
}
