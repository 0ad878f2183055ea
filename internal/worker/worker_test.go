package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/infrastructure/jsonstore"
	"github.com/yourorg/botfleet/internal/repository"
	"github.com/yourorg/botfleet/internal/service"
)

type stubSupervisor struct {
	alive map[int32]bool
}

func (s *stubSupervisor) Start(ctx context.Context, dir string) (domain.ProcessHandle, error) {
	return domain.ProcessHandle{}, nil
}

func (s *stubSupervisor) Stop(ctx context.Context, h domain.ProcessHandle) error {
	delete(s.alive, h.PID)
	return nil
}

func (s *stubSupervisor) Alive(pid int32) bool { return s.alive[pid] }

type stubLinker struct {
	dissolved []string
}

func (l *stubLinker) Authenticate(ctx context.Context, uid, credential string) (string, error) {
	return "token", nil
}

func (l *stubLinker) EstablishRelationship(ctx context.Context, token, target string) (bool, string, error) {
	return true, "ok", nil
}

func (l *stubLinker) DissolveRelationship(ctx context.Context, token, target string) (bool, string, error) {
	l.dissolved = append(l.dissolved, target)
	return true, "friend removed", nil
}

func (l *stubLinker) ResolveIdentity(ctx context.Context, target string) (domain.Identity, error) {
	return domain.UnknownIdentity(), nil
}

func newRepos(t *testing.T) (*repository.BotRepository, *repository.PlayerRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := jsonstore.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return repository.NewBotRepository(store, logger), repository.NewPlayerRepository(store, logger)
}

func seedRunningBot(t *testing.T, bots *repository.BotRepository, uid string, pid int32) *domain.Bot {
	t.Helper()
	bot := &domain.Bot{TenantID: 1, UID: uid, Status: domain.BotStatusStopped, CreatedAt: time.Now()}
	if err := bots.Create(bot, 10); err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	bot.SetRunning(domain.ProcessHandle{PID: pid, StartedAt: time.Now()})
	if err := bots.Update(bot); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	return bot
}

func TestLivenessSweepReapsDeadProcesses(t *testing.T) {
	bots, _ := newRepos(t)
	sup := &stubSupervisor{alive: map[int32]bool{2001: true}}
	hub := service.NewEventHub()

	liveBot := seedRunningBot(t, bots, "100", 2001)
	deadBot := seedRunningBot(t, bots, "200", 2002)

	events, cancel := hub.Subscribe(deadBot.ID)
	defer cancel()

	w := NewLivenessWorker(bots, sup, hub, nil, time.Minute)
	w.sweep(context.Background())

	got, err := bots.GetByID(deadBot.ID)
	if err != nil {
		t.Fatalf("get bot: %v", err)
	}
	if got.Status != domain.BotStatusStopped || got.PID != nil {
		t.Fatalf("expected dead bot reconciled to stopped, got status=%s pid=%v", got.Status, got.PID)
	}

	got, err = bots.GetByID(liveBot.ID)
	if err != nil {
		t.Fatalf("get bot: %v", err)
	}
	if got.Status != domain.BotStatusRunning {
		t.Fatalf("live bot must stay running, got %s", got.Status)
	}

	select {
	case e := <-events:
		if e.Type != "reaped" || e.BotID != deadBot.ID {
			t.Fatalf("unexpected event: %+v", e)
		}
	default:
		t.Fatalf("expected a reaped event for the dead bot")
	}
}

// listHookBots lets a test commit a concurrent change right after the
// sweep takes its listing.
type listHookBots struct {
	*repository.BotRepository
	afterList func()
}

func (r *listHookBots) List() ([]*domain.Bot, error) {
	bots, err := r.BotRepository.List()
	if r.afterList != nil {
		hook := r.afterList
		r.afterList = nil
		hook()
	}
	return bots, err
}

func TestLivenessSweepDoesNotOverwriteConcurrentRestart(t *testing.T) {
	bots, _ := newRepos(t)
	sup := &stubSupervisor{alive: map[int32]bool{1001: true}}

	bot := seedRunningBot(t, bots, "100", 2002)

	hooked := &listHookBots{BotRepository: bots}
	hooked.afterList = func() {
		// A restart lands while the sweep holds its stale listing.
		fresh, err := bots.GetByID(bot.ID)
		if err != nil {
			t.Fatalf("get bot: %v", err)
		}
		fresh.SetRunning(domain.ProcessHandle{PID: 1001, StartedAt: time.Now()})
		if err := bots.Update(fresh); err != nil {
			t.Fatalf("commit restart: %v", err)
		}
	}

	w := NewLivenessWorker(hooked, sup, service.NewEventHub(), nil, time.Minute)
	w.sweep(context.Background())

	got, err := bots.GetByID(bot.ID)
	if err != nil {
		t.Fatalf("get bot: %v", err)
	}
	if got.Status != domain.BotStatusRunning || got.PID == nil || *got.PID != 1001 {
		t.Fatalf("restart must survive the sweep, got status=%s pid=%v", got.Status, got.PID)
	}
}

func TestLivenessSweepIgnoresStoppedBots(t *testing.T) {
	bots, _ := newRepos(t)
	sup := &stubSupervisor{alive: map[int32]bool{}}

	bot := &domain.Bot{TenantID: 1, UID: "300", Status: domain.BotStatusStopped, CreatedAt: time.Now()}
	if err := bots.Create(bot, 10); err != nil {
		t.Fatalf("seed bot: %v", err)
	}

	w := NewLivenessWorker(bots, sup, service.NewEventHub(), nil, time.Minute)
	w.sweep(context.Background())

	got, err := bots.GetByID(bot.ID)
	if err != nil {
		t.Fatalf("get bot: %v", err)
	}
	if got.Status != domain.BotStatusStopped {
		t.Fatalf("stopped bot must stay stopped, got %s", got.Status)
	}
}

func TestRosterExpirySweepRemovesLapsedPlayers(t *testing.T) {
	bots, players := newRepos(t)
	linker := &stubLinker{}
	roster := service.NewRosterService(bots, players, linker, nil)

	bot := &domain.Bot{TenantID: 1, UID: "100", Status: domain.BotStatusStopped, CreatedAt: time.Now()}
	if err := bots.Create(bot, 10); err != nil {
		t.Fatalf("seed bot: %v", err)
	}

	now := time.Now()
	expired := &domain.Player{BotUID: bot.UID, BotID: bot.ID, UID: "9001", AddedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour), Status: domain.PlayerStatusAdded}
	current := &domain.Player{BotUID: bot.UID, BotID: bot.ID, UID: "9002", AddedAt: now, ExpiresAt: now.Add(24 * time.Hour), Status: domain.PlayerStatusAdded}
	for _, p := range []*domain.Player{expired, current} {
		if err := players.Create(p); err != nil {
			t.Fatalf("seed player: %v", err)
		}
	}

	w := NewRosterExpiryWorker(bots, players, roster, nil, time.Minute)
	w.sweep(context.Background())

	if len(linker.dissolved) != 1 || linker.dissolved[0] != "9001" {
		t.Fatalf("expected exactly the expired player dissolved upstream, got %v", linker.dissolved)
	}
	if _, err := players.GetByBotAndUID(bot.UID, "9001"); err == nil {
		t.Fatalf("expired player record should be gone")
	}
	if _, err := players.GetByBotAndUID(bot.UID, "9002"); err != nil {
		t.Fatalf("current player must survive the sweep: %v", err)
	}
}

func TestRosterExpirySweepDeletesOrphanRecords(t *testing.T) {
	bots, players := newRepos(t)
	linker := &stubLinker{}
	roster := service.NewRosterService(bots, players, linker, nil)

	orphan := &domain.Player{BotUID: "gone-bot", UID: "9003", ExpiresAt: time.Now().Add(-time.Hour), Status: domain.PlayerStatusAdded}
	if err := players.Create(orphan); err != nil {
		t.Fatalf("seed player: %v", err)
	}

	w := NewRosterExpiryWorker(bots, players, roster, nil, time.Minute)
	w.sweep(context.Background())

	if len(linker.dissolved) != 0 {
		t.Fatalf("orphan records must not reach the collaborator, got %v", linker.dissolved)
	}
	if _, err := players.GetByID(orphan.ID); err == nil {
		t.Fatalf("orphan record should be deleted")
	}
}
