package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/security/auth"
	"github.com/yourorg/botfleet/internal/security/middleware"
	"github.com/yourorg/botfleet/internal/service"
)

// EventsHandler streams bot lifecycle events over WebSocket
type EventsHandler struct {
	hub            *service.EventHub
	bots           domain.BotRepository
	tenants        domain.TenantRepository
	tokenManager   *auth.TokenManager
	allowedOrigins []string
	logger         *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *service.EventHub, bots domain.BotRepository, tenants domain.TenantRepository, tm *auth.TokenManager, allowedOrigins []string, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		hub:            hub,
		bots:           bots,
		tenants:        tenants,
		tokenManager:   tm,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// upgrader is initialized per-request to use instance's allowed origins
func (h *EventsHandler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/events/{id}?token=... requests. Browsers
// cannot set headers on websocket upgrades, so the bearer token arrives
// as a query parameter instead.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	botID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid bot id", http.StatusBadRequest)
		return
	}

	claims, err := h.tokenManager.ValidateToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	tenant, err := h.tenants.GetByID(claims.TenantID)
	if err != nil || middleware.StaleClaims(claims, tenant) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	bot, err := h.bots.GetByID(botID)
	if err != nil {
		http.Error(w, "bot not found", http.StatusNotFound)
		return
	}
	if !claims.IsAdmin && bot.TenantID != claims.TenantID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	events, cancel := h.hub.Subscribe(botID)
	defer cancel()

	h.logger.Debug("event stream opened",
		slog.Int64("bot_id", botID),
		slog.Int64("tenant_id", claims.TenantID),
	)

	// Drain client frames so close messages are noticed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			if err := ws.WriteJSON(event); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("websocket closed", slog.Int64("bot_id", botID))
				}
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
