package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/security/auth"
	"github.com/yourorg/botfleet/internal/security/ratelimit"
)

type ClaimsContextKey struct{}

// publicPath reports whether a request needs no bearer token. Websocket
// event streams authenticate through a query parameter instead because
// browsers cannot set headers on websocket upgrades.
func publicPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics" ||
		path == "/api/login" ||
		strings.HasPrefix(path, "/ws/events/")
}

// StaleClaims reports whether the claims predate the tenant record they
// name. Tenant ids are reused after deletion, so a token minted before
// the record existed belongs to a deleted predecessor and must not act
// as the successor.
func StaleClaims(claims *auth.Claims, tenant *domain.Tenant) bool {
	if claims.IssuedAt == nil {
		return false
	}
	// Issued-at is truncated to seconds; compare at the same precision.
	return claims.IssuedAt.Time.Before(tenant.CreatedAt.Truncate(time.Second))
}

func JWTMiddleware(tm *auth.TokenManager, tenants domain.TenantRepository, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"success":false,"message":"missing auth"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"success":false,"message":"invalid auth"}`, http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				log.Debug("token rejected", slog.String("error", err.Error()))
				http.Error(w, `{"success":false,"message":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			tenant, err := tenants.GetByID(claims.TenantID)
			if err != nil || StaleClaims(claims, tenant) {
				log.Debug("token rejected, tenant gone or recreated",
					slog.Int64("tenant_id", claims.TenantID),
				)
				http.Error(w, `{"success":false,"message":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := ""
			if claims := GetClaimsFromContext(r.Context()); claims != nil {
				key = strconv.FormatInt(claims.TenantID, 10)
			}

			if !limiter.Allow(key) {
				log.Warn("rate limit exceeded", slog.String("tenant", key))
				http.Error(w, `{"success":false,"message":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c := ctx.Value(ClaimsContextKey{}); c != nil {
		return c.(*auth.Claims)
	}
	return nil
}
