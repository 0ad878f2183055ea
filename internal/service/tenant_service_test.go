package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
)

func TestCreateTenantSetsExpiry(t *testing.T) {
	f := newFixture(t)
	svc := f.tenantService()

	tenant, err := svc.Create(CreateTenantParams{
		Username: "alice",
		Password: "secret123",
		MaxBots:  3,
		Days:     30,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	remaining := time.Until(tenant.ExpiresAt)
	if remaining < 29*24*time.Hour || remaining > 31*24*time.Hour {
		t.Fatalf("expiry not ~30 days out: %v", tenant.ExpiresAt)
	}
	if tenant.IsAdmin {
		t.Fatalf("plain tenant must not be admin")
	}
}

func TestCreateTenantValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.tenantService()

	cases := []CreateTenantParams{
		{Username: "", Password: "p", MaxBots: 1, Days: 1},
		{Username: "u", Password: "", MaxBots: 1, Days: 1},
		{Username: "u", Password: "p", MaxBots: -1, Days: 1},
		{Username: "u", Password: "p", MaxBots: 1, Days: 0},
	}
	for i, params := range cases {
		if _, err := svc.Create(params); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestUpdateTenantExtendsExpiryFromNow(t *testing.T) {
	f := newFixture(t)
	svc := f.tenantService()

	tenant, err := svc.Create(CreateTenantParams{Username: "alice", Password: "secret123", MaxBots: 1, Days: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	days := 10
	maxBots := 7
	updated, err := svc.Update(tenant.ID, UpdateTenantParams{Days: &days, MaxBots: &maxBots})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.MaxBots != 7 {
		t.Fatalf("max_bots not updated: %d", updated.MaxBots)
	}
	if remaining := time.Until(updated.ExpiresAt); remaining < 9*24*time.Hour {
		t.Fatalf("expiry not extended: %v", updated.ExpiresAt)
	}
}

func TestDeleteTenantCascades(t *testing.T) {
	f := newFixture(t)
	tenant := f.seedTenant(t, "alice", 5)
	bot := f.seedBot(t, tenant, "100001")
	botSvc := f.botService()
	if _, err := botSvc.Start(context.Background(), Actor{TenantID: tenant.ID}, bot.ID); err != nil {
		t.Fatalf("start bot: %v", err)
	}
	if err := f.players.Create(&domain.Player{BotUID: bot.UID, BotID: bot.ID, UID: "200001", Status: domain.PlayerStatusAdded}); err != nil {
		t.Fatalf("seed player: %v", err)
	}
	svc := f.tenantService()

	if err := svc.Delete(context.Background(), tenant.ID); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}

	if _, err := f.tenants.GetByID(tenant.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("tenant record must be gone, got %v", err)
	}
	if bots, _ := f.bots.ListByTenant(tenant.ID); len(bots) != 0 {
		t.Fatalf("bot records must be gone, got %d", len(bots))
	}
	if players, _ := f.players.ListByBotUID(bot.UID); len(players) != 0 {
		t.Fatalf("roster must be gone, got %d", len(players))
	}
	if len(f.supervisor.stops) == 0 {
		t.Fatalf("running bot must be stopped during cascade")
	}
	if len(f.provisioner.destroyed) == 0 {
		t.Fatalf("instance directory must be destroyed during cascade")
	}
}

func TestDeleteAdminRefused(t *testing.T) {
	f := newFixture(t)
	svc := f.tenantService()
	if err := svc.EnsureAdmin("root", "rootpass123"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	admin, err := f.tenants.GetByUsername("root")
	if err != nil {
		t.Fatalf("load admin: %v", err)
	}

	if err := svc.Delete(context.Background(), admin.ID); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput deleting admin, got %v", err)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := f.tenantService()

	if err := svc.EnsureAdmin("root", "rootpass123"); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := svc.EnsureAdmin("root", "differentpass"); err != nil {
		t.Fatalf("second ensure must be a no-op: %v", err)
	}

	all, err := f.tenants.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one admin record, got %d", len(all))
	}
	if !all[0].IsAdmin {
		t.Fatalf("bootstrap account must be admin")
	}
}
