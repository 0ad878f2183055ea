package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/observability/metrics"
	"github.com/yourorg/botfleet/internal/service"
)

// LivenessWorker periodically probes the processes of bots recorded as
// running and reconciles records for processes that died outside our
// control. Records are the source of intent; the process table is the
// source of truth.
type LivenessWorker struct {
	bots       domain.BotRepository
	supervisor domain.ProcessSupervisor
	hub        *service.EventHub
	logger     *slog.Logger
	interval   time.Duration
}

// NewLivenessWorker creates a new liveness worker
func NewLivenessWorker(
	bots domain.BotRepository,
	supervisor domain.ProcessSupervisor,
	hub *service.EventHub,
	logger *slog.Logger,
	interval time.Duration,
) *LivenessWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LivenessWorker{
		bots:       bots,
		supervisor: supervisor,
		hub:        hub,
		logger:     logger,
		interval:   interval,
	}
}

// Start begins the liveness loop. It runs until the context is cancelled.
func (w *LivenessWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("liveness worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("liveness worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep reconciles every running record against the process table
func (w *LivenessWorker) sweep(ctx context.Context) {
	bots, err := w.bots.List()
	if err != nil {
		w.logger.Error("failed to list bots", slog.String("error", err.Error()))
		metrics.ObserveSweep("liveness", "error")
		return
	}

	running := 0
	reaped := 0
	for _, bot := range bots {
		if ctx.Err() != nil {
			return
		}
		if bot.Status != domain.BotStatusRunning {
			continue
		}
		if bot.PID != nil && w.supervisor.Alive(*bot.PID) {
			running++
			continue
		}

		pid := int32(0)
		if bot.PID != nil {
			pid = *bot.PID
		}

		// Clear only if the record still tracks the pid observed dead. A
		// start or restart committed since the listing owns the record now.
		cleared, err := w.bots.ClearProcess(bot.ID, pid)
		if err != nil {
			w.logger.Error("failed to mark bot stopped",
				slog.Int64("bot_id", bot.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !cleared {
			continue
		}

		w.logger.Warn("bot process died outside supervision",
			slog.Int64("bot_id", bot.ID),
			slog.Int("pid", int(pid)),
		)
		reaped++
		w.hub.Publish(service.Event{
			BotID:   bot.ID,
			Type:    "reaped",
			Status:  domain.BotStatusStopped,
			Message: "process exited unexpectedly",
		})
	}

	metrics.SetRunningBots(running)
	if reaped > 0 {
		w.logger.Info("liveness sweep reconciled dead processes", slog.Int("reaped", reaped))
	}
	metrics.ObserveSweep("liveness", "success")
}
