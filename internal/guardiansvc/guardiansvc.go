// Package guardiansvc is the guardian process body: the long-lived
// process internal/startengine self-execs into. It acquires the
// advisory lock, launches the worker, publishes the pidfile, replies on
// the inherited readiness pipe, then supervises the worker until it
// exits or a stop request (SIGTERM) arrives, escalating to SIGKILL per
// spec.md §4.5's term-timeout rule.
//
// Reference: Data-Corruption-goweb/go/commands/daemon/daemon_manager/daemon_manager.go
// for the readiness-pipe and pidfile sequencing, extended with the
// process-group worker signaling and lock-file steps spec.md requires
// that the teacher's single-process design doesn't need.
package guardiansvc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"guardian/internal/daemonspec"
	"guardian/internal/lock"
	"guardian/internal/pidfile"
	"guardian/internal/statussrv"

	"github.com/Data-Corruption/stdx/xlog"
	"golang.org/x/sys/unix"
)

// readyFD is the file descriptor internal/startengine's ExtraFiles
// attaches the readiness pipe's write end to in the guardian process.
const readyFD = 3

// Run is the entry point cmd/guardian's "__guardian_internal__ guardian"
// action calls. It never returns to a caller that expects normal flow:
// the guardian process lives for as long as the worker does, and its
// exit code is the worker's exit code (or a guardian-side failure code).
func Run(ctx context.Context, specFile string) int {
	ready := readinessPipe()

	spec, err := daemonspec.ReadSpecFile(specFile)
	if err != nil {
		ready.fail(err)
		return 1
	}
	// Every return below happens after any worker this guardian started
	// has been reaped, so the file is no longer needed by then.
	defer func() { _ = os.Remove(specFile) }()
	spec = spec.WithDefaults()

	ctx, closeLog := withGuardianLog(ctx, spec)
	defer closeLog()

	handle, err := lock.AcquireExclusive(lock.PathFor(spec.PidfilePath))
	if err != nil {
		if err == lock.ErrBusy {
			ready.fail(daemonspec.ErrLockContention)
		} else {
			ready.fail(err)
		}
		xlog.Errorf(ctx, "failed to acquire lock for %s: %v", spec.Name, err)
		return 1
	}
	// Held for the guardian's entire life; the kernel releases it on
	// any exit path, including SIGKILL, which is what makes it a valid
	// liveness oracle.
	defer func() { _ = handle.Close() }()

	worker, err := launchWorker(spec, specFile)
	if err != nil {
		ready.fail(fmt.Errorf("failed to start worker: %w", err))
		xlog.Errorf(ctx, "failed to start worker for %s: %v", spec.Name, err)
		return 1
	}
	xlog.Debugf(ctx, "started worker pid %d for %s", worker.Process.Pid, spec.Name)

	if err := pidfile.Write(spec.PidfilePath, pidfile.Record{
		PID:      worker.Process.Pid,
		GuardPID: os.Getpid(),
		Format:   0,
	}); err != nil {
		_ = unix.Kill(-worker.Process.Pid, syscall.SIGKILL)
		_, _ = worker.Process.Wait()
		ready.fail(fmt.Errorf("failed to write pidfile: %w", err))
		xlog.Errorf(ctx, "failed to write pidfile for %s: %v", spec.Name, err)
		return 1
	}

	ready.ok()

	return guard(ctx, spec, worker)
}

// guardianLogLevel is the level the guardian's own xlog.Logger runs at.
// It's not user-configurable via Spec — spec.md names GuardianLogPath
// as a destination, not a verbosity knob — and matches cmd/guardian's
// own default.
const guardianLogLevel = "warn"

// withGuardianLog opens an xlog.Logger under spec.GuardianLogPath, the
// same way cmd/guardian/main.go opens its own, and threads it through
// ctx. The guardian runs detached with no controlling terminal, so this
// is its only diagnostic channel once the readiness pipe is closed.
// When GuardianLogPath is empty (spec.md names it optional) logging
// calls on ctx are harmless no-ops against xlog's default discard
// logger.
func withGuardianLog(ctx context.Context, spec daemonspec.Spec) (context.Context, func()) {
	if spec.GuardianLogPath == "" {
		return ctx, func() {}
	}
	log, err := xlog.New(spec.GuardianLogPath, guardianLogLevel)
	if err != nil {
		return ctx, func() {}
	}
	return xlog.IntoContext(ctx, log), func() { _ = log.Close() }
}

// guard runs the supervised wait loop: it waits on the worker in its
// own goroutine and, if configured, runs the status listener under a
// supervisor for as long as the worker runs; a SIGTERM to the guardian
// triggers the escalation sequence against the worker's process group.
func guard(ctx context.Context, spec daemonspec.Spec, worker *exec.Cmd) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)

	waitCh := make(chan error, 1)
	go func() { waitCh <- worker.Wait() }()

	supCtx, cancelSup := context.WithCancel(context.Background())
	defer cancelSup()

	sup := NewSupervisor("guardian:" + spec.Name)
	if spec.StatusAddr != "" {
		sup.Add(statussrv.New(spec.StatusAddr, spec.Name, func() statussrv.Status {
			return statussrv.Status{
				Name:      spec.Name,
				GuardPID:  os.Getpid(),
				WorkerPID: worker.Process.Pid,
				Running:   true,
			}
		}))
	}
	go func() { _ = sup.Serve(supCtx) }()

	var waitErr error
	select {
	case waitErr = <-waitCh:
		xlog.Debugf(ctx, "worker for %s exited on its own: %v", spec.Name, waitErr)
	case <-sigCh:
		xlog.Debugf(ctx, "received SIGTERM for %s, stopping worker", spec.Name)
		waitErr = stopWorker(ctx, spec, worker, waitCh)
	}

	_ = pidfile.Remove(spec.PidfilePath)

	return exitCodeFor(waitErr)
}

// stopWorker implements spec.md §4.5's escalation: SIGTERM the worker's
// process group, wait up to TermTimeoutSeconds, then SIGKILL. A zero
// timeout skips SIGTERM entirely per the resolved open question in
// SPEC_FULL.md §4, flag 3 — some workers never install a SIGTERM handler, and
// waiting out a timeout that can never be satisfied just delays a stop
// every caller already expects to be forceful.
func stopWorker(ctx context.Context, spec daemonspec.Spec, worker *exec.Cmd, waitCh <-chan error) error {
	pgid := worker.Process.Pid

	if spec.TermTimeoutSeconds > 0 {
		_ = unix.Kill(-pgid, syscall.SIGTERM)
		select {
		case err := <-waitCh:
			return err
		case <-time.After(time.Duration(spec.TermTimeoutSeconds) * time.Second):
			xlog.Debugf(ctx, "worker for %s ignored SIGTERM after %ds, escalating to SIGKILL", spec.Name, spec.TermTimeoutSeconds)
		}
	}

	_ = unix.Kill(-pgid, syscall.SIGKILL)
	return <-waitCh
}

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return 1
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// launchWorker builds and starts the worker process, either exec'ing
// the spec's argv directly or self-exec'ing into worker mode to resolve
// a registered callback by name. Either way the worker becomes its own
// process group leader so the guardian can signal it as a unit,
// including any children it spawns.
func launchWorker(spec daemonspec.Spec, specFile string) (*exec.Cmd, error) {
	stdout, err := os.OpenFile(spec.StdoutPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout path %s: %w", spec.StdoutPath, err)
	}
	stderr, err := os.OpenFile(spec.StderrPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		_ = stdout.Close()
		return nil, fmt.Errorf("failed to open stderr path %s: %w", spec.StderrPath, err)
	}

	var cmd *exec.Cmd
	if len(spec.Command.Argv) > 0 {
		cmd = exec.Command(spec.Command.Argv[0], spec.Command.Argv[1:]...)
	} else {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve self-exec path: %w", err)
		}
		cmd = exec.Command(self, daemonspec.InternalArgs(daemonspec.ModeWorker, specFile)...)
	}

	cmd.Dir = spec.WorkingDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = buildEnv(spec)

	attr := &syscall.SysProcAttr{Setpgid: true}
	if cred, err := credentialFor(spec); err != nil {
		return nil, err
	} else if cred != nil {
		attr.Credential = cred
	}
	cmd.SysProcAttr = attr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// credentialFor resolves spec.User/spec.Group into a syscall.Credential
// so the worker — never the guardian — drops privileges, matching
// spec.md §5's "privileges are dropped in the child, never the parent"
// rule even though this design execs rather than forks.
func credentialFor(spec daemonspec.Spec) (*syscall.Credential, error) {
	if spec.User == "" && spec.Group == "" {
		return nil, nil
	}
	cred := &syscall.Credential{}
	if spec.User != "" {
		u, err := user.Lookup(spec.User)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user %q: %w", spec.User, err)
		}
		uid, err := strconv.Atoi(u.Uid)
		if err != nil {
			return nil, fmt.Errorf("invalid uid for user %q: %w", spec.User, err)
		}
		cred.Uid = uint32(uid)
	}
	if spec.Group != "" {
		g, err := user.LookupGroup(spec.Group)
		if err != nil {
			return nil, fmt.Errorf("failed to look up group %q: %w", spec.Group, err)
		}
		gid, err := strconv.Atoi(g.Gid)
		if err != nil {
			return nil, fmt.Errorf("invalid gid for group %q: %w", spec.Group, err)
		}
		cred.Gid = uint32(gid)
	}
	return cred, nil
}

func buildEnv(spec daemonspec.Spec) []string {
	env := os.Environ()
	for k, v := range spec.Environment {
		env = append(env, k+"="+v)
	}
	return env
}

// readinessPipe wraps the inherited FD 3 so Run has a single place to
// report success or failure back to internal/startengine.
type readyPipe struct {
	f *os.File
}

func readinessPipe() readyPipe {
	return readyPipe{f: os.NewFile(readyFD, "readiness-pipe")}
}

func (r readyPipe) ok() {
	if r.f == nil {
		return
	}
	_, _ = r.f.WriteString("OK\n")
	_ = r.f.Close()
}

func (r readyPipe) fail(err error) {
	if r.f == nil {
		return
	}
	_, _ = r.f.WriteString("ERR: " + err.Error() + "\n")
	_ = r.f.Close()
}
