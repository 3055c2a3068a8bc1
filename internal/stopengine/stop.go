// Package stopengine implements the stop procedure: signal the guardian
// process (never the worker directly — the guardian owns the
// escalation sequence), then poll liveness until it reports dead or the
// caller's timeout expires.
//
// Reference: Data-Corruption-goweb/go/commands/daemon/daemon_manager/daemon_manager.go's
// stop() (status-poll loop, select on done vs timeout), adapted to poll
// internal/liveness's lock probe instead of /proc/pid/exe identity.
package stopengine

import (
	"context"
	"fmt"
	"time"

	"guardian/internal/daemonspec"
	"guardian/internal/liveness"
	"guardian/internal/pidfile"

	"golang.org/x/sys/unix"
)

// Result reports what Stop actually did.
type Result int

const (
	Stopped Result = iota
	NotRunning
)

func (r Result) String() string {
	if r == NotRunning {
		return "not_running"
	}
	return "stopped"
}

// pollInterval is how often liveness is re-checked while waiting for
// the guardian to exit. spec.md doesn't name a value, so this takes
// the teacher's own 500ms status-poll cadence down to a fifth of that
// for a snappier CLI.
const pollInterval = 100 * time.Millisecond

// Stop signals the guardian identified by pidfilePath to shut down and
// waits up to timeout for it to do so.
func Stop(ctx context.Context, pidfilePath string, timeout time.Duration) (Result, error) {
	if timeout < 0 {
		return NotRunning, fmt.Errorf("%w: field \"timeout\" value %v did not pass regex check", daemonspec.ErrValidation, timeout)
	}

	rec, shape, err := pidfile.Read(pidfilePath)
	if err != nil {
		return NotRunning, err
	}
	if shape == pidfile.ShapeAbsent {
		return NotRunning, nil
	}
	if shape == pidfile.ShapeUnreadable {
		return NotRunning, fmt.Errorf("pidfile %s is unreadable; refusing to stop", pidfilePath)
	}

	alive, err := liveness.Check(pidfilePath)
	if err != nil {
		return NotRunning, err
	}
	if !alive {
		return NotRunning, nil
	}

	if err := unix.Kill(rec.GuardPID, unix.SIGTERM); err != nil {
		return NotRunning, fmt.Errorf("failed to signal guardian pid %d: %w", rec.GuardPID, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return NotRunning, ctx.Err()
		case <-deadline:
			return NotRunning, daemonspec.ErrStopTimeout
		case <-ticker.C:
			stillAlive, err := liveness.Check(pidfilePath)
			if err != nil {
				return NotRunning, err
			}
			if !stillAlive {
				return Stopped, nil
			}
		}
	}
}

// ForceKill SIGKILLs the guardian identified by pidfilePath directly,
// bypassing the escalation sequence entirely. It exists for the one
// case spec.md itself doesn't name but a production CLI needs: a
// caller who already waited out Stop's timeout and explicitly chose to
// force the issue rather than keep waiting.
//
// Reference: Data-Corruption-goweb/go/daemon/daemon.go's Kill, invoked
// by its Restart after a prompt.YesNo force-kill confirmation.
func ForceKill(pidfilePath string) error {
	rec, shape, err := pidfile.Read(pidfilePath)
	if err != nil {
		return err
	}
	if shape == pidfile.ShapeAbsent {
		return nil
	}
	if shape == pidfile.ShapeUnreadable {
		return fmt.Errorf("pidfile %s is unreadable; refusing to kill", pidfilePath)
	}
	if err := unix.Kill(-rec.GuardPID, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return fmt.Errorf("failed to SIGKILL guardian pid %d: %w", rec.GuardPID, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		alive, err := liveness.Check(pidfilePath)
		if err != nil {
			return err
		}
		if !alive {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("process group %d still alive after SIGKILL", rec.GuardPID)
		}
		time.Sleep(pollInterval)
	}
	return pidfile.Remove(pidfilePath)
}
