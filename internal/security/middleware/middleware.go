package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/bookingsystem/internal/domain"
	"github.com/yourorg/bookingsystem/internal/security/audit"
	"github.com/yourorg/bookingsystem/internal/security/auth"
	"github.com/yourorg/bookingsystem/internal/security/ratelimit"
)

type CallerContextKey struct{}

// IdentityResolver turns a bearer token into a caller identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*domain.AuthenticatedUser, error)
}

// isPublicPath lists the endpoints that never require a bearer token:
// health/metrics, registration/login, and the read-only item catalog.
func isPublicPath(r *http.Request) bool {
	p := r.URL.Path
	if p == "/healthz" || p == "/readyz" || p == "/metrics" ||
		p == "/api/auth/register" || p == "/api/auth/login" {
		return true
	}
	if r.Method == http.MethodGet && (p == "/api/items" || strings.HasPrefix(p, "/api/items/")) {
		return true
	}
	return false
}

// AuthMiddleware resolves the Authorization header into a caller identity
// and attaches it to the request context. Public paths pass through; all
// other requests without a valid token get 401.
func AuthMiddleware(resolver IdentityResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"authentication_required"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"error":"invalid_authorization_header"}`, http.StatusUnauthorized)
				return
			}

			caller, err := resolver.Resolve(r.Context(), tokenString)
			if err != nil {
				log.Info("token resolution failed", slog.String("error", err.Error()))
				http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CallerContextKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware throttles authenticated callers by user ID. Login
// gets a stricter per-address limit against credential stuffing.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/auth/login" {
				if !limiter.AllowStrict(remoteHost(r), 10, time.Minute) {
					http.Error(w, `{"error":"rate_limit_exceeded"}`, http.StatusTooManyRequests)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			key := ""
			if caller := GetCallerFromContext(r.Context()); caller != nil {
				key = caller.ID.String()
			}
			if !limiter.Allow(key) {
				log.Warn("rate limit exceeded", slog.String("user_id", key))
				http.Error(w, `{"error":"rate_limit_exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records mutating booking actions before they execute.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""
			if caller := GetCallerFromContext(r.Context()); caller != nil {
				userID = caller.ID.String()
			}

			if strings.HasPrefix(r.URL.Path, "/api/reservations") {
				// Runs outside the mux, so patterns have not matched yet;
				// pull the reservation id off the path directly.
				resID := strings.TrimPrefix(r.URL.Path, "/api/reservations/")
				if resID == r.URL.Path || strings.Contains(resID, "/") {
					resID = ""
				}
				switch r.Method {
				case http.MethodPost:
					auditLog.LogBooking(r.Context(), userID, "", "initiated", "")
				case http.MethodPut:
					auditLog.LogAction(r.Context(), userID, "reschedule", "reservation", resID, "initiated", "")
				case http.MethodDelete:
					auditLog.LogCancellation(r.Context(), userID, resID, "initiated", "")
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetCallerFromContext returns the resolved caller, or nil on public paths.
func GetCallerFromContext(ctx context.Context) *domain.AuthenticatedUser {
	if c := ctx.Value(CallerContextKey{}); c != nil {
		return c.(*domain.AuthenticatedUser)
	}
	return nil
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
