package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/observability/metrics"
)

// Actor identifies who is performing an operation. Admins may act on any
// bot, everyone else only on their own.
type Actor struct {
	TenantID int64
	IsAdmin  bool
}

// CreateBotParams carries the fields needed to provision a new bot
type CreateBotParams struct {
	UID         string
	Credential  string
	Name        string
	DisplayName string
}

// BotService manages bot records and their supervised processes. All
// lifecycle transitions for one bot are serialized on a per-bot mutex so
// concurrent start/stop/restart/delete requests cannot interleave.
type BotService struct {
	bots        domain.BotRepository
	tenants     domain.TenantRepository
	players     domain.PlayerRepository
	supervisor  domain.ProcessSupervisor
	provisioner domain.TemplateProvisioner
	hub         *EventHub
	storageRoot string
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewBotService creates a new bot service
func NewBotService(
	bots domain.BotRepository,
	tenants domain.TenantRepository,
	players domain.PlayerRepository,
	supervisor domain.ProcessSupervisor,
	provisioner domain.TemplateProvisioner,
	hub *EventHub,
	storageRoot string,
	logger *slog.Logger,
) *BotService {
	if logger == nil {
		logger = slog.Default()
	}

	return &BotService{
		bots:        bots,
		tenants:     tenants,
		players:     players,
		supervisor:  supervisor,
		provisioner: provisioner,
		hub:         hub,
		storageRoot: storageRoot,
		logger:      logger,
		locks:       map[int64]*sync.Mutex{},
	}
}

// lockBot serializes lifecycle operations for one bot id. Lock entries are
// never removed; the map grows with the number of bots ever touched, which
// stays small.
func (s *BotService) lockBot(id int64) func() {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// authorize loads a bot and checks the actor may act on it
func (s *BotService) authorize(actor Actor, botID int64) (*domain.Bot, *domain.Tenant, error) {
	bot, err := s.bots.GetByID(botID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsAdmin && bot.TenantID != actor.TenantID {
		return nil, nil, fmt.Errorf("%w: bot belongs to another tenant", domain.ErrUnauthorized)
	}
	owner, err := s.tenants.GetByID(bot.TenantID)
	if err != nil {
		return nil, nil, err
	}
	return bot, owner, nil
}

// Create registers a bot record and provisions its instance directory.
// The quota check happens atomically inside the repository; a provisioning
// failure rolls the record back so the quota slot is not leaked.
func (s *BotService) Create(ctx context.Context, actor Actor, params CreateBotParams) (*domain.Bot, error) {
	if params.UID == "" || params.Credential == "" {
		return nil, fmt.Errorf("%w: uid and password are required", domain.ErrInvalidInput)
	}

	tenant, err := s.tenants.GetByID(actor.TenantID)
	if err != nil {
		return nil, err
	}

	name := params.Name
	if name == "" {
		name = params.UID
	}
	bot := &domain.Bot{
		TenantID:    tenant.ID,
		UID:         params.UID,
		Credential:  params.Credential,
		Name:        name,
		DisplayName: params.DisplayName,
		Status:      domain.BotStatusStopped,
		CreatedAt:   time.Now(),
	}

	if err := s.bots.Create(bot, tenant.MaxBots); err != nil {
		metrics.ObserveBotOperation("create", "failure")
		return nil, err
	}

	dir := botInstanceDir(s.storageRoot, tenant, bot.UID)
	if err := s.provisioner.Provision(dir, domain.InstanceConfig{
		UID:         bot.UID,
		Credential:  bot.Credential,
		Name:        bot.Name,
		DisplayName: bot.DisplayName,
	}); err != nil {
		if delErr := s.bots.Delete(bot.ID); delErr != nil {
			s.logger.Error("failed to roll back bot record after provision failure",
				slog.Int64("bot_id", bot.ID),
				slog.String("error", delErr.Error()),
			)
		}
		metrics.ObserveBotOperation("create", "failure")
		return nil, fmt.Errorf("%w: provision instance: %v", domain.ErrProcessControl, err)
	}

	metrics.ObserveBotOperation("create", "success")
	s.logger.Info("bot created",
		slog.Int64("bot_id", bot.ID),
		slog.Int64("tenant_id", tenant.ID),
		slog.String("uid", bot.UID),
	)
	return bot, nil
}

// Get returns one bot the actor may see
func (s *BotService) Get(actor Actor, botID int64) (*domain.Bot, error) {
	bot, _, err := s.authorize(actor, botID)
	return bot, err
}

// List returns the actor's bots, or every bot for admins
func (s *BotService) List(actor Actor) ([]*domain.Bot, error) {
	if actor.IsAdmin {
		return s.bots.List()
	}
	return s.bots.ListByTenant(actor.TenantID)
}

// Start launches a bot's process. Starting a bot whose process is already
// alive is a no-op success.
func (s *BotService) Start(ctx context.Context, actor Actor, botID int64) (*domain.Bot, error) {
	bot, owner, err := s.authorize(actor, botID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockBot(bot.ID)
	defer unlock()

	// Reload under the lock; another request may have won the race.
	bot, err = s.bots.GetByID(bot.ID)
	if err != nil {
		return nil, err
	}
	return s.startLocked(ctx, bot, owner)
}

// startLocked runs the start transition. Caller holds the bot lock.
func (s *BotService) startLocked(ctx context.Context, bot *domain.Bot, owner *domain.Tenant) (*domain.Bot, error) {
	if bot.Status == domain.BotStatusRunning && bot.PID != nil && s.supervisor.Alive(*bot.PID) {
		return bot, nil
	}

	dir := botInstanceDir(s.storageRoot, owner, bot.UID)
	handle, err := s.supervisor.Start(ctx, dir)
	if err != nil {
		metrics.ObserveBotOperation("start", "failure")
		s.hub.Publish(Event{
			BotID:   bot.ID,
			Type:    "start_failed",
			Status:  bot.Status,
			Message: err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", domain.ErrProcessControl, err)
	}

	bot.SetRunning(handle)
	if err := s.bots.Update(bot); err != nil {
		// The process is up but the record write failed. Kill it rather
		// than leave an untracked child running.
		if stopErr := s.supervisor.Stop(ctx, handle); stopErr != nil {
			s.logger.Error("failed to stop orphaned process",
				slog.Int("pid", int(handle.PID)),
				slog.String("error", stopErr.Error()),
			)
		}
		metrics.ObserveBotOperation("start", "failure")
		return nil, err
	}

	metrics.ObserveBotOperation("start", "success")
	metrics.IncrementRunning()
	s.hub.Publish(Event{
		BotID:   bot.ID,
		Type:    "started",
		Status:  bot.Status,
		PID:     bot.PID,
		Message: "bot started",
	})
	s.logger.Info("bot started",
		slog.Int64("bot_id", bot.ID),
		slog.Int("pid", int(handle.PID)),
	)
	return bot, nil
}

// Stop terminates a bot's process tree. Stopping an already stopped or
// already dead bot succeeds.
func (s *BotService) Stop(ctx context.Context, actor Actor, botID int64) (*domain.Bot, error) {
	bot, _, err := s.authorize(actor, botID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockBot(bot.ID)
	defer unlock()

	bot, err = s.bots.GetByID(bot.ID)
	if err != nil {
		return nil, err
	}
	return s.stopLocked(ctx, bot)
}

// stopLocked runs the stop transition. Caller holds the bot lock.
func (s *BotService) stopLocked(ctx context.Context, bot *domain.Bot) (*domain.Bot, error) {
	wasRunning := bot.Status == domain.BotStatusRunning

	if err := s.supervisor.Stop(ctx, bot.Handle()); err != nil {
		metrics.ObserveBotOperation("stop", "failure")
		return nil, fmt.Errorf("%w: %v", domain.ErrProcessControl, err)
	}

	bot.SetStopped()
	if err := s.bots.Update(bot); err != nil {
		return nil, err
	}

	metrics.ObserveBotOperation("stop", "success")
	if wasRunning {
		metrics.DecrementRunning()
	}
	s.hub.Publish(Event{
		BotID:   bot.ID,
		Type:    "stopped",
		Status:  bot.Status,
		Message: "bot stopped",
	})
	s.logger.Info("bot stopped", slog.Int64("bot_id", bot.ID))
	return bot, nil
}

// Restart stops then starts a bot under one lock acquisition. A failed
// stop is logged and swallowed; the start decides the outcome.
func (s *BotService) Restart(ctx context.Context, actor Actor, botID int64) (*domain.Bot, error) {
	bot, owner, err := s.authorize(actor, botID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockBot(bot.ID)
	defer unlock()

	bot, err = s.bots.GetByID(bot.ID)
	if err != nil {
		return nil, err
	}

	if _, err := s.stopLocked(ctx, bot); err != nil {
		s.logger.Warn("stop failed during restart, starting anyway",
			slog.Int64("bot_id", bot.ID),
			slog.String("error", err.Error()),
		)
		bot.SetStopped()
		if err := s.bots.Update(bot); err != nil {
			return nil, err
		}
	}

	restarted, err := s.startLocked(ctx, bot, owner)
	if err != nil {
		metrics.ObserveBotOperation("restart", "failure")
		return nil, err
	}
	metrics.ObserveBotOperation("restart", "success")
	return restarted, nil
}

// Delete stops a bot best-effort, destroys its instance directory and
// roster, then removes the record, freeing the tenant's quota slot.
func (s *BotService) Delete(ctx context.Context, actor Actor, botID int64) error {
	bot, owner, err := s.authorize(actor, botID)
	if err != nil {
		return err
	}

	unlock := s.lockBot(bot.ID)
	defer unlock()

	bot, err = s.bots.GetByID(bot.ID)
	if err != nil {
		return err
	}

	wasRunning := bot.Status == domain.BotStatusRunning
	if err := s.supervisor.Stop(ctx, bot.Handle()); err != nil {
		s.logger.Warn("failed to stop bot during delete",
			slog.Int64("bot_id", bot.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.provisioner.Destroy(botInstanceDir(s.storageRoot, owner, bot.UID)); err != nil {
		s.logger.Warn("failed to destroy instance directory",
			slog.Int64("bot_id", bot.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.players.DeleteByBotUID(bot.UID); err != nil {
		s.logger.Warn("failed to delete bot roster",
			slog.Int64("bot_id", bot.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.bots.Delete(bot.ID); err != nil {
		metrics.ObserveBotOperation("delete", "failure")
		return err
	}

	metrics.ObserveBotOperation("delete", "success")
	if wasRunning {
		metrics.DecrementRunning()
	}
	s.hub.Publish(Event{
		BotID:   bot.ID,
		Type:    "deleted",
		Status:  domain.BotStatusStopped,
		Message: "bot deleted",
	})
	s.logger.Info("bot deleted",
		slog.Int64("bot_id", bot.ID),
		slog.Int64("tenant_id", bot.TenantID),
	)
	return nil
}
