// Package guardian is a small library for supervising a long-running
// Unix process: start it behind a double-fork-equivalent guardian,
// track it with an advisory lock rather than a bare PID, and stop it
// with a SIGTERM-then-SIGKILL escalation.
//
// The actual engines live under internal/ to avoid an import cycle
// (they all share internal/daemonspec's Spec type); this package is a
// thin public surface over them.
package guardian

import (
	"context"
	"time"

	"guardian/internal/daemonspec"
	"guardian/internal/liveness"
	"guardian/internal/startengine"
	"guardian/internal/stopengine"
)

// Spec describes one supervised daemon.
type Spec = daemonspec.Spec

// Command selects how the worker is run: Argv for a fresh process,
// CallbackName for an in-process function registered with
// RegisterCallback.
type Command = daemonspec.Command

// Result reports what Stop actually did.
type Result = stopengine.Result

const (
	Stopped    = stopengine.Stopped
	NotRunning = stopengine.NotRunning
)

// Error sentinels, re-exported from internal/daemonspec so callers
// never need to import an internal package to use errors.Is.
var (
	ErrValidation     = daemonspec.ErrValidation
	ErrPrecondition   = daemonspec.ErrPrecondition
	ErrAlreadyRunning = daemonspec.ErrAlreadyRunning
	ErrLockContention = daemonspec.ErrLockContention
	ErrStopTimeout    = daemonspec.ErrStopTimeout
	ErrNotRunning     = daemonspec.ErrNotRunning
)

// RegisterCallback makes an in-process function available to be run as
// a worker by name, for Command{CallbackName: name}. Register during
// package init or before the first Start call that references it — the
// registry is process-wide and read by the self-exec'd worker process,
// which runs init() again in a fresh process image.
func RegisterCallback(name string, fn daemonspec.CallbackFunc) {
	daemonspec.RegisterCallback(name, fn)
}

// Start launches spec's worker under a guardian process and returns
// once the worker is running and its pidfile is published, or an error
// if validation, a precondition, or the start itself fails.
//
// See internal/startengine for the full procedure (spec validation,
// writability precondition checks, orphan reaping, self-exec, readiness
// wait).
func Start(ctx context.Context, spec Spec) error {
	return startengine.Start(ctx, spec)
}

// Stop signals the guardian identified by pidfilePath and waits up to
// timeout for it to exit. A missing pidfile is NotRunning, not an error.
func Stop(ctx context.Context, pidfilePath string, timeout time.Duration) (Result, error) {
	return stopengine.Stop(ctx, pidfilePath, timeout)
}

// Check reports whether the daemon identified by pidfilePath is alive.
// Liveness is decided by probing the advisory lock, never by checking
// whether the recorded PID merely exists in the process table.
func Check(pidfilePath string) (bool, error) {
	return liveness.Check(pidfilePath)
}

// ForceKill SIGKILLs the guardian identified by pidfilePath directly,
// bypassing the SIGTERM escalation sequence. Callers use this after a
// Stop has already timed out and the caller has decided to force the
// issue rather than keep waiting.
func ForceKill(pidfilePath string) error {
	return stopengine.ForceKill(pidfilePath)
}
