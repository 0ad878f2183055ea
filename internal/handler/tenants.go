package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/botfleet/internal/security"
	"github.com/yourorg/botfleet/internal/security/audit"
	"github.com/yourorg/botfleet/internal/security/middleware"
	"github.com/yourorg/botfleet/internal/service"
)

// tenantView is the wire shape for tenant records. The password hash
// never leaves the server.
type tenantView struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	MaxBots   int       `json:"max_bots"`
	Telegram  string    `json:"telegram,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expiry_date"`
}

// TenantHandler handles tenant administration endpoints
type TenantHandler struct {
	service *service.TenantService
	authz   *security.AuthorizationService
	audit   *audit.Logger
	logger  *slog.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(svc *service.TenantService, authz *security.AuthorizationService, auditLog *audit.Logger, logger *slog.Logger) *TenantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantHandler{
		service: svc,
		authz:   authz,
		audit:   auditLog,
		logger:  logger,
	}
}

// requireAdmin checks the caller holds tenant management permission
func (h *TenantHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return false
	}
	if err := h.authz.ValidatePermission(security.RoleFor(claims.IsAdmin), security.PermManageTenants); err != nil {
		h.audit.LogDenied(r.Context(), claims.TenantID, claims.Username, "tenant management")
		writeJSON(w, http.StatusForbidden, "admin access required", nil)
		return false
	}
	return true
}

// List handles GET /api/tenants
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	tenants, err := h.service.List()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]tenantView, 0, len(tenants))
	for _, t := range tenants {
		views = append(views, tenantView{
			ID:        t.ID,
			Username:  t.Username,
			MaxBots:   t.MaxBots,
			Telegram:  t.Telegram,
			IsAdmin:   t.IsAdmin,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"tenants": views})
}

// CreateTenantRequest represents a new tenant account
type CreateTenantRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	MaxBots  int    `json:"max_bots"`
	Days     int    `json:"days"`
	Telegram string `json:"telegram"`
}

// Create handles POST /api/tenants
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	tenant, err := h.service.Create(service.CreateTenantParams{
		Username: req.Username,
		Password: req.Password,
		MaxBots:  req.MaxBots,
		Days:     req.Days,
		Telegram: req.Telegram,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	h.audit.LogTenantAction(r.Context(), claims.TenantID, claims.Username, "create", tenant.Username, "success", "")

	writeJSON(w, http.StatusCreated, "tenant created", map[string]any{
		"tenant": tenantView{
			ID:        tenant.ID,
			Username:  tenant.Username,
			MaxBots:   tenant.MaxBots,
			Telegram:  tenant.Telegram,
			CreatedAt: tenant.CreatedAt,
			ExpiresAt: tenant.ExpiresAt,
		},
	})
}

// UpdateTenantRequest carries optional tenant mutations
type UpdateTenantRequest struct {
	Password *string `json:"password"`
	MaxBots  *int    `json:"max_bots"`
	Days     *int    `json:"days"`
	Telegram *string `json:"telegram"`
}

// Update handles PUT /api/tenants/{id}
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid tenant id", nil)
		return
	}

	var req UpdateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	tenant, err := h.service.Update(id, service.UpdateTenantParams{
		Password: req.Password,
		MaxBots:  req.MaxBots,
		Days:     req.Days,
		Telegram: req.Telegram,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, "tenant updated", map[string]any{
		"tenant": tenantView{
			ID:        tenant.ID,
			Username:  tenant.Username,
			MaxBots:   tenant.MaxBots,
			Telegram:  tenant.Telegram,
			IsAdmin:   tenant.IsAdmin,
			CreatedAt: tenant.CreatedAt,
			ExpiresAt: tenant.ExpiresAt,
		},
	})
}

// Delete handles DELETE /api/tenants/{id}
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid tenant id", nil)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	h.audit.LogTenantAction(r.Context(), claims.TenantID, claims.Username, "delete", strconv.FormatInt(id, 10), "success", "")

	writeJSON(w, http.StatusOK, "tenant deleted", nil)
}
