package startengine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"guardian/internal/daemonspec"
	"guardian/internal/lock"
	"guardian/internal/pidfile"
)

// TestMain re-execs this test binary as a fake guardian process when
// GUARDIAN_TEST_HELPER is set, following the standard library's own
// os/exec_test.go TestHelperProcess pattern — SelfExecPath points
// Start at this same binary instead of a separate fixture.
func TestMain(m *testing.M) {
	if os.Getenv("GUARDIAN_TEST_HELPER") == "1" {
		os.Exit(fakeGuardianMain())
	}
	os.Exit(m.Run())
}

// fakeGuardianMain stands in for internal/guardiansvc.Run: it publishes
// a pidfile, holds the advisory lock, and reports readiness on fd 3, so
// tests exercising Start's liveness.Check precondition see the same
// on-disk state a real guardian would leave behind.
func fakeGuardianMain() int {
	pipe := os.NewFile(3, "readypipe")
	if pipe == nil {
		return 1
	}

	var specFile string
	for i, a := range os.Args {
		if a == "--spec-file" && i+1 < len(os.Args) {
			specFile = os.Args[i+1]
		}
	}
	spec, err := daemonspec.ReadSpecFile(specFile)
	if err != nil {
		_, _ = pipe.WriteString("ERR: " + err.Error() + "\n")
		return 1
	}

	h, err := lock.AcquireExclusive(lock.PathFor(spec.PidfilePath))
	if err != nil {
		_, _ = pipe.WriteString("ERR: " + err.Error() + "\n")
		return 1
	}
	defer h.Close()

	if err := pidfile.Write(spec.PidfilePath, pidfile.Record{PID: os.Getpid(), GuardPID: os.Getpid()}); err != nil {
		_, _ = pipe.WriteString("ERR: " + err.Error() + "\n")
		return 1
	}

	if _, err := pipe.WriteString("OK\n"); err != nil {
		return 1
	}
	_ = pipe.Close()
	time.Sleep(2 * time.Second)
	return 0
}

func helperSelfExecPath(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable failed: %v", err)
	}
	return exe
}

func TestReapOrphanNoPidfile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "startengine_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := reapOrphan(filepath.Join(tmpDir, "nope.pid")); err != nil {
		t.Errorf("reapOrphan on an absent pidfile returned %v", err)
	}
}

func TestReapOrphanKillsLiveWorker(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "startengine_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	child := exec.Command("sleep", "30")
	if err := child.Start(); err != nil {
		t.Skipf("could not start stand-in child process: %v", err)
	}

	pidPath := filepath.Join(tmpDir, "orphan.pid")
	if err := pidfile.Write(pidPath, pidfile.Record{PID: child.Process.Pid, GuardPID: child.Process.Pid}); err != nil {
		t.Fatalf("Write pidfile failed: %v", err)
	}

	// This test process is the stand-in orphan's parent, so reap it in
	// the background the way init reaps a real orphan: an unreaped
	// zombie still answers signal 0 and would read as alive.
	go func() { _ = child.Wait() }()

	if err := reapOrphan(pidPath); err != nil {
		t.Fatalf("reapOrphan failed: %v", err)
	}

	if processAlive(child.Process.Pid) {
		t.Errorf("orphan pid %d still alive after reapOrphan", child.Process.Pid)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Errorf("pidfile still exists after reapOrphan")
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Errorf("processAlive(self) = false; want true")
	}
	if processAlive(0) {
		t.Errorf("processAlive(0) = true; want false")
	}
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	if err := Start(context.Background(), daemonspec.Spec{}); err == nil {
		t.Errorf("Start on an invalid spec returned nil error")
	}
}

// TestStartAlreadyRunning exercises the full self-exec Start path
// (guardian spawn, lock acquisition, pidfile publish) via the
// TestMain/GUARDIAN_TEST_HELPER re-exec above, and the single-instance
// invariant that a second concurrent Start sees ErrAlreadyRunning
// rather than spawning a competing guardian.
func TestStartAlreadyRunning(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "startengine_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	SelfExecPath = helperSelfExecPath(t)
	defer func() { SelfExecPath = "" }()

	spec := daemonspec.Spec{
		Command:     daemonspec.Command{Argv: []string{"/bin/sleep", "30"}},
		PidfilePath: filepath.Join(tmpDir, "svc.pid"),
		StdoutPath:  filepath.Join(tmpDir, "svc.out"),
		StderrPath:  filepath.Join(tmpDir, "svc.err"),
	}

	os.Setenv("GUARDIAN_TEST_HELPER", "1")
	defer os.Unsetenv("GUARDIAN_TEST_HELPER")

	if err := Start(context.Background(), spec); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	if err := Start(context.Background(), spec); err != daemonspec.ErrAlreadyRunning {
		t.Errorf("second Start = %v; want %v", err, daemonspec.ErrAlreadyRunning)
	}

	rec, _, _ := pidfile.Read(spec.PidfilePath)
	_ = syscall.Kill(-rec.GuardPID, syscall.SIGKILL)
}
