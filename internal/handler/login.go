package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/security/audit"
	"github.com/yourorg/botfleet/internal/security/middleware"
	"github.com/yourorg/botfleet/internal/security/ratelimit"
	"github.com/yourorg/botfleet/internal/service"
)

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthHandler handles login and password changes
type AuthHandler struct {
	authService *service.AuthService
	limiter     *ratelimit.Limiter
	audit       *audit.Logger
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, limiter *ratelimit.Limiter, auditLog *audit.Logger, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		authService: authService,
		limiter:     limiter,
		audit:       auditLog,
		logger:      logger,
	}
}

// Login handles POST /api/login. Failed attempts are throttled per
// username so the endpoint cannot be used for password spraying.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	if !h.limiter.AllowStrict("login:"+req.Username, 10, time.Minute) {
		h.logger.Warn("login throttled", slog.String("username", req.Username))
		writeJSON(w, http.StatusTooManyRequests, "too many login attempts", nil)
		return
	}

	result, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			h.audit.LogDenied(r.Context(), 0, req.Username, "login failed")
			writeJSON(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, "login successful", map[string]any{
		"token":      result.Token,
		"token_type": result.TokenType,
		"expires_in": result.ExpiresIn,
		"tenant_id":  result.TenantID,
		"username":   result.Username,
		"is_admin":   result.IsAdmin,
	})
}

// ChangePasswordRequest carries a password change
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword handles POST /api/password for the authenticated tenant
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	if err := h.authService.ChangePassword(claims.TenantID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, "password changed", nil)
}
