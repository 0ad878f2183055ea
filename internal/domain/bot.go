package domain

import (
	"context"
	"time"
)

// Bot lifecycle statuses
const (
	BotStatusStopped = "stopped"
	BotStatusRunning = "running"
)

// Bot represents a supervised worker process bound to one external account.
// Invariant: Status == running iff PID is non-nil and the process is believed
// live; at most one tracked OS process per bot.
type Bot struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"user_id"`
	UID         string     `json:"uid"`      // External account id, unique across the fleet
	Credential  string     `json:"password"` // External account credential
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Status      string     `json:"status"`
	PID         *int32     `json:"pid"`
	StartedAt   *time.Time `json:"started_at,omitempty"` // Spawn time of the tracked process
	CreatedAt   time.Time  `json:"created_at"`
}

// Handle returns the process handle recorded for the bot, or a zero handle
// when no process is tracked.
func (b *Bot) Handle() ProcessHandle {
	if b.PID == nil {
		return ProcessHandle{}
	}
	h := ProcessHandle{PID: *b.PID}
	if b.StartedAt != nil {
		h.StartedAt = *b.StartedAt
	}
	return h
}

// SetRunning records a freshly spawned process on the bot
func (b *Bot) SetRunning(h ProcessHandle) {
	pid := h.PID
	started := h.StartedAt
	b.Status = BotStatusRunning
	b.PID = &pid
	b.StartedAt = &started
}

// SetStopped clears any tracked process from the bot
func (b *Bot) SetStopped() {
	b.Status = BotStatusStopped
	b.PID = nil
	b.StartedAt = nil
}

// BotRepository defines data access for bots
type BotRepository interface {
	// Create inserts the bot, assigning its ID. The owner's bot count is
	// checked against maxBots inside the same collection-exclusive section,
	// so a concurrent create cannot slip past the quota. Returns
	// ErrQuotaExceeded when the owner is at capacity and ErrInvalidInput
	// when the external account uid is already in use.
	Create(bot *Bot, maxBots int) error
	// ClearProcess marks the bot stopped only if the record still tracks
	// pid (0 meaning no pid at all). The check and the write share the
	// collection-exclusive section, so a start committed after the caller
	// observed the process dead is never overwritten. Reports whether the
	// record was cleared.
	ClearProcess(id int64, pid int32) (bool, error)
	GetByID(id int64) (*Bot, error)
	GetByUID(uid string) (*Bot, error)
	Update(bot *Bot) error
	Delete(id int64) error
	List() ([]*Bot, error)
	ListByTenant(tenantID int64) ([]*Bot, error)
	CountByTenant(tenantID int64) (int, error)
}

// ProcessHandle identifies a spawned process tree by its top pid and spawn
// time. The spawn time guards against pid reuse: a stop must not signal a
// process whose create time disagrees with the recorded one.
type ProcessHandle struct {
	PID       int32
	StartedAt time.Time
}

// Zero reports whether no process is tracked
func (h ProcessHandle) Zero() bool { return h.PID == 0 }

// ProcessSupervisor starts and terminates bot worker processes
type ProcessSupervisor interface {
	// Start launches the instance entry point detached from the server's
	// process group, probes liveness after a grace interval, and returns
	// the handle of the live process. Missing entry point or a process
	// that dies within the grace interval yields ErrProcessControl.
	Start(ctx context.Context, instanceDir string) (ProcessHandle, error)
	// Stop terminates the tracked process and its descendants, escalating
	// from graceful to forceful after a bounded wait. A process that is
	// already gone is success.
	Stop(ctx context.Context, handle ProcessHandle) error
	// Alive probes whether the pid refers to a live process
	Alive(pid int32) bool
}

// InstanceConfig is written into a provisioned bot instance directory
type InstanceConfig struct {
	UID         string
	Credential  string
	Name        string
	DisplayName string
}

// TemplateProvisioner materializes bot instance directories from a template
type TemplateProvisioner interface {
	Provision(instanceDir string, cfg InstanceConfig) error
	Destroy(instanceDir string) error
}
