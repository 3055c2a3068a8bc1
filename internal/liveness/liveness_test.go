package liveness

import (
	"os"
	"path/filepath"
	"testing"

	"guardian/internal/lock"
	"guardian/internal/pidfile"
)

func TestCheckAbsent(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "liveness_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	alive, err := Check(filepath.Join(tmpDir, "nope.pid"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if alive {
		t.Errorf("Check on absent pidfile = true; want false")
	}
}

func TestCheckHeldLock(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "liveness_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	pidPath := filepath.Join(tmpDir, "test.pid")
	if err := pidfile.Write(pidPath, pidfile.Record{PID: 100, GuardPID: 99}); err != nil {
		t.Fatalf("Write pidfile failed: %v", err)
	}

	h, err := lock.AcquireExclusive(lock.PathFor(pidPath))
	if err != nil {
		t.Fatalf("AcquireExclusive failed: %v", err)
	}
	defer h.Close()

	alive, err := Check(pidPath)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !alive {
		t.Errorf("Check with held lock = false; want true")
	}
}

func TestCheckReleasedLock(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "liveness_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	pidPath := filepath.Join(tmpDir, "test.pid")
	if err := pidfile.Write(pidPath, pidfile.Record{PID: 100, GuardPID: 99}); err != nil {
		t.Fatalf("Write pidfile failed: %v", err)
	}

	h, err := lock.AcquireExclusive(lock.PathFor(pidPath))
	if err != nil {
		t.Fatalf("AcquireExclusive failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	alive, err := Check(pidPath)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if alive {
		t.Errorf("Check with released lock = true; want false")
	}
}
