package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/yourorg/botfleet/internal/security/audit"
	"github.com/yourorg/botfleet/internal/security/middleware"
	"github.com/yourorg/botfleet/internal/service"
)

// RosterHandler handles friend roster endpoints
type RosterHandler struct {
	service *service.RosterService
	audit   *audit.Logger
	logger  *slog.Logger
}

// NewRosterHandler creates a new roster handler
func NewRosterHandler(svc *service.RosterService, auditLog *audit.Logger, logger *slog.Logger) *RosterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RosterHandler{
		service: svc,
		audit:   auditLog,
		logger:  logger,
	}
}

func botIDFrom(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

// List handles GET /api/bots/{id}/players
func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}
	botID, ok := botIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, "invalid bot id", nil)
		return
	}

	players, err := h.service.List(actor, botID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"players": players})
}

// AddPlayerRequest represents a single roster add
type AddPlayerRequest struct {
	UID      string `json:"uid"`
	Duration string `json:"duration"`
}

// Add handles POST /api/bots/{id}/players
func (h *RosterHandler) Add(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}
	botID, ok := botIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, "invalid bot id", nil)
		return
	}

	var req AddPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	outcome, err := h.service.Add(r.Context(), actor, botID, req.UID, req.Duration)
	if err != nil {
		h.audit.LogRosterAction(r.Context(), claims.TenantID, claims.Username, "add", req.UID, "failure", err.Error())
		if outcome != nil {
			// A refused add still reports the target's display attributes.
			writeJSON(w, statusForError(err), err.Error(), map[string]any{
				"identity": outcome.Identity,
			})
			return
		}
		writeError(w, h.logger, err)
		return
	}
	h.audit.LogRosterAction(r.Context(), claims.TenantID, claims.Username, "add", req.UID, "success", "")

	writeJSON(w, http.StatusCreated, outcome.Message, map[string]any{
		"player":   outcome.Player,
		"identity": outcome.Identity,
	})
}

// Remove handles DELETE /api/bots/{id}/players/{uid}
func (h *RosterHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}
	botID, ok := botIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, "invalid bot id", nil)
		return
	}
	uid := r.PathValue("uid")

	claims := middleware.GetClaimsFromContext(r.Context())
	message, err := h.service.Remove(r.Context(), actor, botID, uid)
	if err != nil {
		h.audit.LogRosterAction(r.Context(), claims.TenantID, claims.Username, "remove", uid, "failure", err.Error())
		writeError(w, h.logger, err)
		return
	}
	h.audit.LogRosterAction(r.Context(), claims.TenantID, claims.Username, "remove", uid, "success", "")

	writeJSON(w, http.StatusOK, message, nil)
}

// BulkAddRequest represents a bulk roster add
type BulkAddRequest struct {
	UIDs     []string `json:"uids"`
	Duration string   `json:"duration"`
}

// AddBulk handles POST /api/bots/{id}/players/bulk
func (h *RosterHandler) AddBulk(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}
	botID, ok := botIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, "invalid bot id", nil)
		return
	}

	var req BulkAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if len(req.UIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, "uids must not be empty", nil)
		return
	}

	completed, failed, err := h.service.AddMany(r.Context(), actor, botID, req.UIDs, req.Duration)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, "", map[string]any{
		"completed": completed,
		"failed":    failed,
	})
}

// BulkRemoveRequest represents a bulk roster remove
type BulkRemoveRequest struct {
	UIDs []string `json:"uids"`
}

// RemoveBulk handles POST /api/bots/{id}/players/bulk-remove
func (h *RosterHandler) RemoveBulk(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}
	botID, ok := botIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, "invalid bot id", nil)
		return
	}

	var req BulkRemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if len(req.UIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, "uids must not be empty", nil)
		return
	}

	completed, failed, err := h.service.RemoveMany(r.Context(), actor, botID, req.UIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, "", map[string]any{
		"completed": completed,
		"failed":    failed,
	})
}

// Check handles GET /api/bots/{id}/players/{uid}
func (h *RosterHandler) Check(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}
	botID, ok := botIDFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, "invalid bot id", nil)
		return
	}

	player, found, err := h.service.Check(actor, botID, r.PathValue("uid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	data := map[string]any{"found": found}
	if found {
		data["player"] = player
	}
	writeJSON(w, http.StatusOK, "", data)
}

// Info handles GET /api/players/{uid}/info
func (h *RosterHandler) Info(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.Info(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"identity": identity})
}
