// Package startengine implements the daemon start procedure: spec
// validation, precondition checks, orphan reaping, and a self-exec of
// the current binary into guardian mode, waiting on a readiness pipe
// until the guardian has published its pidfile or reported a failure.
//
// Go cannot classically double-fork around a running goroutine
// scheduler (threads other than the caller already exist by the time
// Start runs), so this adapts spec.md §4.3 into self-exec plus a new
// session via SysProcAttr.Setsid, following
// Data-Corruption-goweb/go/commands/daemon/daemon_manager/daemon_manager.go's
// start() almost verbatim for the readiness-pipe dance, extended with
// the orphan-reaper step spec.md requires.
package startengine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"guardian/internal/daemonspec"
	"guardian/internal/liveness"
	"guardian/internal/pidfile"

	"golang.org/x/sys/unix"
)

// SelfExecPath, when non-empty, overrides os.Executable() — used by
// tests to point Start at the test binary itself, whose TestMain acts
// as a stand-in guardian when re-exec'd.
var SelfExecPath string

// ReadyTimeout bounds how long Start waits for the guardian to publish
// readiness before giving up and killing it. The spec does not name a
// start timeout distinct from the caller's own patience, so a generous
// default is used; callers needing a different bound can cancel ctx.
var ReadyTimeout = 10 * time.Second

// Start runs the full start procedure described in spec.md §4.3.
func Start(ctx context.Context, spec daemonspec.Spec) error {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return err
	}

	if err := daemonspec.CheckWritable(spec.StdoutPath); err != nil {
		return err
	}
	if err := daemonspec.CheckWritable(spec.StderrPath); err != nil {
		return err
	}

	alive, err := liveness.Check(spec.PidfilePath)
	if err != nil {
		return fmt.Errorf("failed to check existing daemon liveness: %w", err)
	}
	if alive {
		return daemonspec.ErrAlreadyRunning
	}

	if err := reapOrphan(spec.PidfilePath); err != nil {
		return fmt.Errorf("failed to reap orphaned worker: %w", err)
	}

	return selfExecGuardian(ctx, spec)
}

// reapOrphan handles spec.md §4.3 step 3: if a pidfile exists, check
// reports dead, but the pidfile's worker PID still exists, the
// previous guardian crashed leaving an orphan worker. Kill the
// orphan's process group and wait for it to vanish so the advisory
// lock it may hold on its own resources becomes reacquirable.
func reapOrphan(pidfilePath string) error {
	rec, shape, err := pidfile.Read(pidfilePath)
	if err != nil {
		return err
	}
	if shape != pidfile.ShapeLegacy && shape != pidfile.ShapeNew {
		return nil // absent or unreadable: nothing to reap
	}

	if processAlive(rec.PID) {
		_ = unix.Kill(-rec.PID, syscall.SIGKILL)
		_ = unix.Kill(rec.PID, syscall.SIGKILL)
		deadline := time.Now().Add(5 * time.Second)
		for processAlive(rec.PID) && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
	}

	return pidfile.Remove(pidfilePath)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// selfExecGuardian spawns the guardian, passing it the spec via a temp
// file, and blocks on a readiness pipe until the guardian reports
// success or failure, or ctx is cancelled.
func selfExecGuardian(ctx context.Context, spec daemonspec.Spec) error {
	binPath := SelfExecPath
	if binPath == "" {
		p, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve self-exec path: %w", err)
		}
		binPath = p
	}

	specFile, err := daemonspec.WriteSpecFile(spec)
	if err != nil {
		return err
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create readiness pipe: %w", err)
	}
	defer func() { _ = r.Close() }()

	args := daemonspec.InternalArgs(daemonspec.ModeGuardian, specFile)
	cmd := exec.Command(binPath, args...)
	cmd.ExtraFiles = []*os.File{w}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil

	startErr := cmd.Start()
	if cerr := w.Close(); cerr != nil {
		_ = cerr
	}
	if startErr != nil {
		_ = os.Remove(specFile)
		return fmt.Errorf("failed to start guardian process: %w", startErr)
	}

	type readyResult struct {
		ok  bool
		msg string
		err error
	}
	ready := make(chan readyResult, 1)
	go func() {
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && line == "" {
			ready <- readyResult{err: fmt.Errorf("failed reading readiness pipe: %w", err)}
			return
		}
		line = strings.TrimSpace(line)
		if line == "OK" {
			ready <- readyResult{ok: true}
			return
		}
		ready <- readyResult{ok: false, msg: strings.TrimPrefix(line, "ERR: ")}
	}()

	select {
	case res := <-ready:
		if res.err != nil {
			return res.err
		}
		if !res.ok {
			return fmt.Errorf("guardian failed to start: %s", res.msg)
		}
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	case <-time.After(ReadyTimeout):
		_ = cmd.Process.Kill()
		return errors.New("timed out waiting for guardian readiness")
	}
}
