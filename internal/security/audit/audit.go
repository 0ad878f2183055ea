package audit

import (
	"context"
	"log/slog"
	"time"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (al *Logger) LogAction(ctx context.Context, tenantID int64, username, action, resource, resourceID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.Int64("tenant_id", tenantID),
		slog.String("username", username),
		slog.String("status", status),
		slog.String("details", details),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogBotAction(ctx context.Context, tenantID int64, username, action, botID, status, details string) {
	al.LogAction(ctx, tenantID, username, action, "bot", botID, status, details)
}

func (al *Logger) LogRosterAction(ctx context.Context, tenantID int64, username, action, target, status, details string) {
	al.LogAction(ctx, tenantID, username, action, "player", target, status, details)
}

func (al *Logger) LogTenantAction(ctx context.Context, tenantID int64, username, action, targetTenant, status, details string) {
	al.LogAction(ctx, tenantID, username, action, "tenant", targetTenant, status, details)
}

func (al *Logger) LogDenied(ctx context.Context, tenantID int64, username, reason string) {
	al.LogAction(ctx, tenantID, username, "access_denied", "api", "", "denied", reason)
}
