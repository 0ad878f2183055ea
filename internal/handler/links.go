package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/security"
	"github.com/yourorg/botfleet/internal/security/middleware"
)

// LinkHandler handles the shared quick-link collection shown to every
// tenant. Only admins may edit it.
type LinkHandler struct {
	links  domain.LinkRepository
	authz  *security.AuthorizationService
	logger *slog.Logger
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(links domain.LinkRepository, authz *security.AuthorizationService, logger *slog.Logger) *LinkHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkHandler{
		links:  links,
		authz:  authz,
		logger: logger,
	}
}

// List handles GET /api/links
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.links.List()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"links": links})
}

// CreateLinkRequest represents a new quick link
type CreateLinkRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Icon string `json:"icon"`
}

// Create handles POST /api/links
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}
	if err := h.authz.ValidatePermission(security.RoleFor(claims.IsAdmin), security.PermManageLinks); err != nil {
		writeJSON(w, http.StatusForbidden, "admin access required", nil)
		return
	}

	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.Name == "" || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, "name and url are required", nil)
		return
	}

	link := &domain.Link{
		Name:      req.Name,
		URL:       req.URL,
		Icon:      req.Icon,
		CreatedAt: time.Now(),
	}
	if err := h.links.Create(link); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, "link created", map[string]any{"link": link})
}

// Delete handles DELETE /api/links/{id}
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}
	if err := h.authz.ValidatePermission(security.RoleFor(claims.IsAdmin), security.PermManageLinks); err != nil {
		writeJSON(w, http.StatusForbidden, "admin access required", nil)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid link id", nil)
		return
	}

	if err := h.links.Delete(id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "link deleted", nil)
}
