package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/security/audit"
	"github.com/yourorg/botfleet/internal/security/middleware"
	"github.com/yourorg/botfleet/internal/service"
)

// botView is the wire shape for bot records. The account credential
// never leaves the server.
type botView struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"user_id"`
	UID         string     `json:"uid"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name,omitempty"`
	Status      string     `json:"status"`
	PID         *int32     `json:"pid,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toBotView(b *domain.Bot) botView {
	return botView{
		ID:          b.ID,
		TenantID:    b.TenantID,
		UID:         b.UID,
		Name:        b.Name,
		DisplayName: b.DisplayName,
		Status:      b.Status,
		PID:         b.PID,
		StartedAt:   b.StartedAt,
		CreatedAt:   b.CreatedAt,
	}
}

// actorFrom builds the service actor from token claims
func actorFrom(r *http.Request) (service.Actor, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return service.Actor{}, false
	}
	return service.Actor{TenantID: claims.TenantID, IsAdmin: claims.IsAdmin}, true
}

// BotHandler handles bot record and lifecycle endpoints
type BotHandler struct {
	service *service.BotService
	audit   *audit.Logger
	logger  *slog.Logger
}

// NewBotHandler creates a new bot handler
func NewBotHandler(svc *service.BotService, auditLog *audit.Logger, logger *slog.Logger) *BotHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotHandler{
		service: svc,
		audit:   auditLog,
		logger:  logger,
	}
}

// List handles GET /api/bots
func (h *BotHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}

	bots, err := h.service.List(actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]botView, 0, len(bots))
	for _, b := range bots {
		views = append(views, toBotView(b))
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"bots": views})
}

// CreateBotRequest represents a new bot
type CreateBotRequest struct {
	UID         string `json:"uid"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Create handles POST /api/bots
func (h *BotHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}

	var req CreateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	bot, err := h.service.Create(r.Context(), actor, service.CreateBotParams{
		UID:         req.UID,
		Credential:  req.Password,
		Name:        req.Name,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	h.audit.LogBotAction(r.Context(), claims.TenantID, claims.Username, "create", strconv.FormatInt(bot.ID, 10), "success", "")

	writeJSON(w, http.StatusCreated, "bot created", map[string]any{"bot": toBotView(bot)})
}

// Get handles GET /api/bots/{id}
func (h *BotHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid bot id", nil)
		return
	}

	bot, err := h.service.Get(actor, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"bot": toBotView(bot)})
}

// Action handles POST /api/bots/{id}/{action} for start, stop and restart
func (h *BotHandler) Action(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid bot id", nil)
		return
	}

	action := r.PathValue("action")
	var bot *domain.Bot
	switch action {
	case "start":
		bot, err = h.service.Start(r.Context(), actor, id)
	case "stop":
		bot, err = h.service.Stop(r.Context(), actor, id)
	case "restart":
		bot, err = h.service.Restart(r.Context(), actor, id)
	default:
		writeJSON(w, http.StatusBadRequest, "unknown action "+action, nil)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if err != nil {
		h.audit.LogBotAction(r.Context(), claims.TenantID, claims.Username, action, strconv.FormatInt(id, 10), "failure", err.Error())
		writeError(w, h.logger, err)
		return
	}
	h.audit.LogBotAction(r.Context(), claims.TenantID, claims.Username, action, strconv.FormatInt(id, 10), "success", "")

	writeJSON(w, http.StatusOK, "bot "+action+" successful", map[string]any{"bot": toBotView(bot)})
}

// Delete handles DELETE /api/bots/{id}
func (h *BotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, "missing auth", nil)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid bot id", nil)
		return
	}

	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	h.audit.LogBotAction(r.Context(), claims.TenantID, claims.Username, "delete", strconv.FormatInt(id, 10), "success", "")

	writeJSON(w, http.StatusOK, "bot deleted", nil)
}
