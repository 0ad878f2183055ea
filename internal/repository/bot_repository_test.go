package repository

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/infrastructure/jsonstore"
)

func newTestStore(t *testing.T) *jsonstore.Store {
	t.Helper()
	s, err := jsonstore.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestCreateEnforcesQuota(t *testing.T) {
	repo := NewBotRepository(newTestStore(t), nil)

	a := &domain.Bot{TenantID: 1, UID: "100", Status: domain.BotStatusStopped, CreatedAt: time.Now()}
	if err := repo.Create(a, 1); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	b := &domain.Bot{TenantID: 1, UID: "200", Status: domain.BotStatusStopped}
	if err := repo.Create(b, 1); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	// Deleting frees a slot
	if err := repo.Delete(a.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.Create(b, 1); err != nil {
		t.Fatalf("create after delete failed: %v", err)
	}
}

func TestCreateRejectsDuplicateUID(t *testing.T) {
	repo := NewBotRepository(newTestStore(t), nil)
	if err := repo.Create(&domain.Bot{TenantID: 1, UID: "100"}, 10); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	err := repo.Create(&domain.Bot{TenantID: 2, UID: "100"}, 10)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for duplicate uid, got %v", err)
	}
}

func TestConcurrentCreatesNeverExceedQuota(t *testing.T) {
	repo := NewBotRepository(newTestStore(t), nil)
	const max = 3
	const attempts = 12

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = repo.Create(&domain.Bot{TenantID: 7, UID: fmt.Sprintf("uid-%d", n)}, max)
		}(i)
	}
	wg.Wait()

	count, err := repo.CountByTenant(7)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != max {
		t.Fatalf("expected exactly %d bots after concurrent creates, got %d", max, count)
	}
}

func TestClearProcessStopsTrackedPID(t *testing.T) {
	repo := NewBotRepository(newTestStore(t), nil)
	bot := &domain.Bot{TenantID: 1, UID: "100"}
	if err := repo.Create(bot, 10); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	bot.SetRunning(domain.ProcessHandle{PID: 4001, StartedAt: time.Now()})
	if err := repo.Update(bot); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	cleared, err := repo.ClearProcess(bot.ID, 4001)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !cleared {
		t.Fatalf("expected the tracked pid to be cleared")
	}
	got, err := repo.GetByID(bot.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.BotStatusStopped || got.PID != nil {
		t.Fatalf("expected stopped with no pid, got status=%s pid=%v", got.Status, got.PID)
	}
}

func TestClearProcessLeavesRestartedBotAlone(t *testing.T) {
	repo := NewBotRepository(newTestStore(t), nil)
	bot := &domain.Bot{TenantID: 1, UID: "100"}
	if err := repo.Create(bot, 10); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	bot.SetRunning(domain.ProcessHandle{PID: 4002, StartedAt: time.Now()})
	if err := repo.Update(bot); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// The caller observed pid 4001 dead, but a restart moved the record on.
	cleared, err := repo.ClearProcess(bot.ID, 4001)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if cleared {
		t.Fatalf("stale clear must not win over a newer pid")
	}
	got, err := repo.GetByID(bot.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.BotStatusRunning || got.PID == nil || *got.PID != 4002 {
		t.Fatalf("expected running with pid 4002, got status=%s pid=%v", got.Status, got.PID)
	}
}

func TestClearProcessMissingBotIsNoOp(t *testing.T) {
	repo := NewBotRepository(newTestStore(t), nil)
	cleared, err := repo.ClearProcess(42, 4001)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if cleared {
		t.Fatalf("clearing an unknown bot must report not cleared")
	}
}

func TestIDsStayMonotonic(t *testing.T) {
	repo := NewBotRepository(newTestStore(t), nil)
	a := &domain.Bot{TenantID: 1, UID: "a"}
	b := &domain.Bot{TenantID: 1, UID: "b"}
	if err := repo.Create(a, 10); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(b, 10); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Delete(b.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	c := &domain.Bot{TenantID: 1, UID: "c"}
	if err := repo.Create(c, 10); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if c.ID <= a.ID {
		t.Fatalf("expected id above %d, got %d", a.ID, c.ID)
	}
}
