package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	return New("run.sh", []string{"sh", "run.sh"}, 200*time.Millisecond, time.Second, nil)
}

func writeEntryPoint(t *testing.T, dir, script string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write entry point: %v", err)
	}
}

func TestStartMissingEntryPoint(t *testing.T) {
	s := newTestSupervisor(t)
	_, err := s.Start(context.Background(), t.TempDir())
	if !errors.Is(err, domain.ErrProcessControl) {
		t.Fatalf("expected process control failure, got %v", err)
	}
}

func TestStartStopLiveProcess(t *testing.T) {
	s := newTestSupervisor(t)
	dir := t.TempDir()
	writeEntryPoint(t, dir, "sleep 60\n")

	handle, err := s.Start(context.Background(), dir)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if handle.PID == 0 {
		t.Fatalf("expected a pid")
	}
	if !s.Alive(handle.PID) {
		t.Fatalf("expected process %d to be alive", handle.PID)
	}

	if err := s.Stop(context.Background(), handle); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	// Give the reaper a moment, then the pid must be gone
	time.Sleep(200 * time.Millisecond)
	if s.Alive(handle.PID) {
		t.Fatalf("expected process %d to be gone after stop", handle.PID)
	}
}

func TestStartProcessDiesWithinGrace(t *testing.T) {
	s := newTestSupervisor(t)
	dir := t.TempDir()
	writeEntryPoint(t, dir, "exit 1\n")

	_, err := s.Start(context.Background(), dir)
	if !errors.Is(err, domain.ErrProcessControl) {
		t.Fatalf("expected process control failure for short-lived process, got %v", err)
	}
}

func TestStartCancelledStopsProcessTree(t *testing.T) {
	s := newTestSupervisor(t)
	dir := t.TempDir()
	writeEntryPoint(t, dir, "sleep 60 &\necho $! > child.pid\nwait\n")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	if _, err := s.Start(ctx, dir); !errors.Is(err, domain.ErrProcessControl) {
		t.Fatalf("expected process control failure for cancelled start, got %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "child.pid"))
	if err != nil {
		t.Fatalf("entry point did not record its child: %v", err)
	}
	childPID, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("bad child pid %q: %v", data, err)
	}
	time.Sleep(200 * time.Millisecond)
	if s.Alive(int32(childPID)) {
		t.Fatalf("forked child %d must not survive a cancelled start", childPID)
	}
}

func TestStopZeroHandleIsNoOp(t *testing.T) {
	s := newTestSupervisor(t)
	if err := s.Stop(context.Background(), domain.ProcessHandle{}); err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
}

func TestStopAlreadyExitedProcess(t *testing.T) {
	s := newTestSupervisor(t)
	dir := t.TempDir()
	writeEntryPoint(t, dir, "sleep 60\n")

	handle, err := s.Start(context.Background(), dir)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Stop(context.Background(), handle); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	// Second stop observes an already-dead process and still succeeds
	if err := s.Stop(context.Background(), handle); err != nil {
		t.Fatalf("stop of exited process should succeed, got %v", err)
	}
}

func TestStopRefusesRecycledPID(t *testing.T) {
	s := newTestSupervisor(t)
	// os.Getpid() is alive but its create time predates the fake handle's
	// recorded spawn time by far, so Stop must not signal it.
	handle := domain.ProcessHandle{PID: int32(os.Getpid()), StartedAt: time.Now().Add(-time.Hour)}
	if err := s.Stop(context.Background(), handle); err != nil {
		t.Fatalf("expected success without signalling, got %v", err)
	}
	if !s.Alive(handle.PID) {
		t.Fatalf("test process should still be alive")
	}
}
