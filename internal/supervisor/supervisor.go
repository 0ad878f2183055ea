package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/yourorg/botfleet/internal/domain"
)

// Supervisor implements domain.ProcessSupervisor by spawning the bot entry
// point as a session-detached child process and terminating process trees
// with graceful-then-forceful signalling.
type Supervisor struct {
	entryPoint  string   // file that must exist in the instance dir
	command     []string // argv used to launch it
	grace       time.Duration
	stopTimeout time.Duration
	logger      *slog.Logger
}

// New creates a supervisor. command is the argv run inside the instance
// directory (e.g. ["python3", "main.py"]); entryPoint is the file whose
// absence makes start fail before spawning anything.
func New(entryPoint string, command []string, grace, stopTimeout time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if grace <= 0 {
		grace = 2 * time.Second
	}
	if stopTimeout <= 0 {
		stopTimeout = 3 * time.Second
	}
	return &Supervisor{
		entryPoint:  entryPoint,
		command:     command,
		grace:       grace,
		stopTimeout: stopTimeout,
		logger:      logger,
	}
}

// Start launches the entry point detached from the server's session, waits
// the grace interval, and probes liveness before reporting success.
func (s *Supervisor) Start(ctx context.Context, instanceDir string) (domain.ProcessHandle, error) {
	entry := filepath.Join(instanceDir, s.entryPoint)
	if _, err := os.Stat(entry); err != nil {
		return domain.ProcessHandle{}, fmt.Errorf("%w: entry point %s not found in instance directory", domain.ErrProcessControl, s.entryPoint)
	}

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Dir = instanceDir
	cmd.Stdout = nil
	cmd.Stderr = nil
	// New session: the bot outlives the request handler and is not signalled
	// with the server's own process group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return domain.ProcessHandle{}, fmt.Errorf("%w: failed to spawn process: %v", domain.ErrProcessControl, err)
	}
	pid := int32(cmd.Process.Pid)

	// Reap the child when it exits so it never lingers as a zombie
	go func() { _ = cmd.Wait() }()

	select {
	case <-ctx.Done():
		// The entry point may already have forked children within the
		// grace window; stop the whole tree, not just the parent.
		stopCtx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
		_ = s.Stop(stopCtx, domain.ProcessHandle{PID: pid})
		cancel()
		return domain.ProcessHandle{}, fmt.Errorf("%w: start cancelled: %v", domain.ErrProcessControl, ctx.Err())
	case <-time.After(s.grace):
	}

	proc, err := process.NewProcess(pid)
	if err != nil {
		return domain.ProcessHandle{}, fmt.Errorf("%w: process exited during startup", domain.ErrProcessControl)
	}
	running, err := proc.IsRunning()
	if err != nil || !running {
		return domain.ProcessHandle{}, fmt.Errorf("%w: process exited during startup", domain.ErrProcessControl)
	}

	handle := domain.ProcessHandle{PID: pid, StartedAt: time.Now()}
	if createdMs, err := proc.CreateTime(); err == nil {
		handle.StartedAt = time.UnixMilli(createdMs)
	}

	s.logger.Info("process started",
		slog.Int("pid", int(pid)),
		slog.String("instance_dir", instanceDir),
	)
	return handle, nil
}

// Stop terminates the tracked process tree. A process that no longer exists,
// or a pid that now belongs to a different process, is success: the goal
// state is already satisfied.
func (s *Supervisor) Stop(ctx context.Context, handle domain.ProcessHandle) error {
	if handle.Zero() {
		return nil
	}

	proc, err := process.NewProcess(handle.PID)
	if err != nil {
		// Already gone
		return nil
	}

	// Guard against pid reuse: only signal a process whose create time
	// matches the one recorded at spawn.
	if !handle.StartedAt.IsZero() {
		if createdMs, err := proc.CreateTime(); err == nil {
			drift := time.UnixMilli(createdMs).Sub(handle.StartedAt)
			if drift < -time.Second || drift > time.Second {
				s.logger.Warn("pid belongs to a different process, treating as stopped",
					slog.Int("pid", int(handle.PID)),
					slog.Time("recorded_start", handle.StartedAt),
					slog.Time("actual_start", time.UnixMilli(createdMs)),
				)
				return nil
			}
		}
	}

	tree := s.descendants(proc)
	tree = append(tree, proc)

	for _, p := range tree {
		if err := p.TerminateWithContext(ctx); err != nil {
			s.logger.Debug("terminate signal failed",
				slog.Int("pid", int(p.Pid)),
				slog.String("error", err.Error()),
			)
		}
	}

	survivors := s.waitGone(ctx, tree)
	for _, p := range survivors {
		if err := p.KillWithContext(ctx); err != nil {
			// ESRCH means it died between the poll and the kill
			s.logger.Debug("kill signal failed",
				slog.Int("pid", int(p.Pid)),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("process tree stopped",
		slog.Int("pid", int(handle.PID)),
		slog.Int("descendants", len(tree)-1),
		slog.Int("killed", len(survivors)),
	)
	return nil
}

// Alive probes whether the pid refers to a live process
func (s *Supervisor) Alive(pid int32) bool {
	exists, err := process.PidExists(pid)
	return err == nil && exists
}

// descendants walks the live child set breadth-first. Enumeration failures
// degrade to whatever was collected so far; at worst only the bare parent
// gets signalled.
func (s *Supervisor) descendants(root *process.Process) []*process.Process {
	var out []*process.Process
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		children, err := p.Children()
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}

// waitGone polls the tree until every process exits or the stop timeout
// elapses, returning the survivors.
func (s *Supervisor) waitGone(ctx context.Context, tree []*process.Process) []*process.Process {
	deadline := time.Now().Add(s.stopTimeout)
	remaining := tree
	for time.Now().Before(deadline) {
		var alive []*process.Process
		for _, p := range remaining {
			if running, err := p.IsRunning(); err == nil && running {
				alive = append(alive, p)
			}
		}
		remaining = alive
		if len(remaining) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return remaining
		case <-time.After(100 * time.Millisecond):
		}
	}
	return remaining
}
