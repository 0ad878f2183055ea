package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/infrastructure/jsonstore"
	"github.com/yourorg/botfleet/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

type fakeSupervisor struct {
	mu       sync.Mutex
	nextPID  int32
	alive    map[int32]bool
	startErr error
	stopErr  error
	stops    []int32
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{nextPID: 1000, alive: map[int32]bool{}}
}

func (f *fakeSupervisor) Start(ctx context.Context, instanceDir string) (domain.ProcessHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return domain.ProcessHandle{}, f.startErr
	}
	f.nextPID++
	f.alive[f.nextPID] = true
	return domain.ProcessHandle{PID: f.nextPID, StartedAt: time.Now()}, nil
}

func (f *fakeSupervisor) Stop(ctx context.Context, handle domain.ProcessHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	if handle.Zero() {
		return nil
	}
	delete(f.alive, handle.PID)
	f.stops = append(f.stops, handle.PID)
	return nil
}

func (f *fakeSupervisor) Alive(pid int32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

type fakeProvisioner struct {
	mu           sync.Mutex
	provisioned  map[string]domain.InstanceConfig
	destroyed    []string
	provisionErr error
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{provisioned: map[string]domain.InstanceConfig{}}
}

func (f *fakeProvisioner) Provision(instanceDir string, cfg domain.InstanceConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.provisionErr != nil {
		return f.provisionErr
	}
	f.provisioned[instanceDir] = cfg
	return nil
}

func (f *fakeProvisioner) Destroy(instanceDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, instanceDir)
	return nil
}

// fakeLinker answers collaborator calls from canned tables. Establish
// fails for targets in failAdd, dissolve fails for targets in failRemove
// and reports gone for targets in goneRemove.
type fakeLinker struct {
	mu         sync.Mutex
	authErr    error
	failAdd    map[string]string
	failRemove map[string]string
	goneRemove map[string]string
	identities map[string]domain.Identity
	authCalls  int
}

func newFakeLinker() *fakeLinker {
	return &fakeLinker{
		failAdd:    map[string]string{},
		failRemove: map[string]string{},
		goneRemove: map[string]string{},
		identities: map[string]domain.Identity{},
	}
}

func (f *fakeLinker) Authenticate(ctx context.Context, uid, credential string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authErr != nil {
		return "", f.authErr
	}
	return "token-" + uid, nil
}

func (f *fakeLinker) EstablishRelationship(ctx context.Context, token, target string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.failAdd[target]; ok {
		return false, msg, nil
	}
	return true, "friend request accepted", nil
}

func (f *fakeLinker) DissolveRelationship(ctx context.Context, token, target string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.failRemove[target]; ok {
		return false, msg, nil
	}
	if msg, ok := f.goneRemove[target]; ok {
		return false, msg, nil
	}
	return true, "friend removed", nil
}

func (f *fakeLinker) ResolveIdentity(ctx context.Context, target string) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.identities[target]; ok {
		return id, nil
	}
	return domain.UnknownIdentity(), errors.New("player not found")
}

type fixture struct {
	tenants     *repository.TenantRepository
	bots        *repository.BotRepository
	players     *repository.PlayerRepository
	supervisor  *fakeSupervisor
	provisioner *fakeProvisioner
	linker      *fakeLinker
	hub         *EventHub
	storageRoot string
	logger      *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := jsonstore.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return &fixture{
		tenants:     repository.NewTenantRepository(store, logger),
		bots:        repository.NewBotRepository(store, logger),
		players:     repository.NewPlayerRepository(store, logger),
		supervisor:  newFakeSupervisor(),
		provisioner: newFakeProvisioner(),
		linker:      newFakeLinker(),
		hub:         NewEventHub(),
		storageRoot: t.TempDir(),
		logger:      logger,
	}
}

func (f *fixture) botService() *BotService {
	return NewBotService(f.bots, f.tenants, f.players, f.supervisor, f.provisioner, f.hub, f.storageRoot, f.logger)
}

func (f *fixture) rosterService() *RosterService {
	return NewRosterService(f.bots, f.players, f.linker, f.logger)
}

func (f *fixture) tenantService() *TenantService {
	return NewTenantService(f.tenants, f.bots, f.players, f.supervisor, f.provisioner, f.storageRoot, f.logger)
}

func (f *fixture) seedTenant(t *testing.T, username string, maxBots int) *domain.Tenant {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	tenant := &domain.Tenant{
		Username:     username,
		PasswordHash: string(hash),
		MaxBots:      maxBots,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(30 * 24 * time.Hour),
	}
	if err := f.tenants.Create(tenant); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return tenant
}

func (f *fixture) seedBot(t *testing.T, tenant *domain.Tenant, uid string) *domain.Bot {
	t.Helper()
	bot, err := f.botService().Create(context.Background(), Actor{TenantID: tenant.ID}, CreateBotParams{
		UID:        uid,
		Credential: "bot-pass",
		Name:       "bot-" + uid,
	})
	if err != nil {
		t.Fatalf("seed bot %s: %v", uid, err)
	}
	return bot
}
