package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/observability/metrics"
	"github.com/yourorg/botfleet/internal/service"
)

// RosterExpiryWorker removes players whose paid duration has lapsed. The
// removal goes through the roster service so the external relationship is
// dissolved before the local record disappears; players the collaborator
// cannot drop right now are retried on the next sweep.
type RosterExpiryWorker struct {
	bots     domain.BotRepository
	players  domain.PlayerRepository
	roster   *service.RosterService
	logger   *slog.Logger
	interval time.Duration
}

// NewRosterExpiryWorker creates a new roster expiry worker
func NewRosterExpiryWorker(
	bots domain.BotRepository,
	players domain.PlayerRepository,
	roster *service.RosterService,
	logger *slog.Logger,
	interval time.Duration,
) *RosterExpiryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RosterExpiryWorker{
		bots:     bots,
		players:  players,
		roster:   roster,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the expiry loop. It runs until the context is cancelled.
func (w *RosterExpiryWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("roster expiry worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("roster expiry worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep removes every expired player through the normal remove path
func (w *RosterExpiryWorker) sweep(ctx context.Context) {
	players, err := w.players.List()
	if err != nil {
		w.logger.Error("failed to list players", slog.String("error", err.Error()))
		metrics.ObserveSweep("roster_expiry", "error")
		return
	}

	now := time.Now()
	removed := 0
	for _, player := range players {
		if ctx.Err() != nil {
			return
		}
		if player.ExpiresAt.IsZero() || player.ExpiresAt.After(now) {
			continue
		}

		bot, err := w.bots.GetByUID(player.BotUID)
		if err != nil {
			// Orphaned record, its bot is gone. Drop it directly.
			w.logger.Warn("expired player has no bot, deleting record",
				slog.Int64("player_id", player.ID),
				slog.String("bot_uid", player.BotUID),
			)
			if err := w.players.Delete(player.ID); err != nil {
				w.logger.Error("failed to delete orphaned player",
					slog.Int64("player_id", player.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		actor := service.Actor{TenantID: bot.TenantID}
		if _, err := w.roster.Remove(ctx, actor, bot.ID, player.UID); err != nil {
			w.logger.Warn("failed to remove expired player, will retry",
				slog.Int64("player_id", player.ID),
				slog.String("target", player.UID),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
		w.logger.Info("expired player removed",
			slog.Int64("bot_id", bot.ID),
			slog.String("target", player.UID),
			slog.Time("expired_at", player.ExpiresAt),
		)
	}

	if removed > 0 {
		w.logger.Info("roster expiry sweep complete", slog.Int("removed", removed))
	}
	metrics.ObserveSweep("roster_expiry", "success")
}
