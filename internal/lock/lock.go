// Package lock implements the exclusive advisory whole-file lock that
// is the supervisor's single-instance and liveness oracle: a process
// holding the lock is alive, a lock the kernel has released means its
// holder has died, regardless of PID reuse.
//
// Reference: tomtom215-lyrebirdaudio-go/internal/lock/filelock.go
// (Acquire/Release shape) and Data-Corruption-goweb/go/daemon/daemon.go's
// lock/unlock helpers (flock on a sidecar file). Uses golang.org/x/sys/unix
// rather than the syscall package directly.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrBusy is returned by AcquireExclusive when another process already
// holds the lock. Acquisition never blocks to wait it out.
var ErrBusy = errors.New("lock busy")

// State is the result of a non-blocking Probe.
type State int

const (
	Free State = iota
	Held
)

func (s State) String() string {
	if s == Held {
		return "held"
	}
	return "free"
}

// Handle represents a held exclusive lock. The lock is released ONLY
// by closing the handle (which closes the underlying file descriptor);
// there is no separate unlock call, since the guardian must hold this
// open for its entire lifetime and the kernel must be the one to tear
// it down on any exit path, including SIGKILL.
type Handle struct {
	file *os.File
}

// Close releases the lock by closing the file descriptor.
func (h *Handle) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	return h.file.Close()
}

// Path returns the path of the lock file backing this handle.
func (h *Handle) Path() string {
	if h == nil || h.file == nil {
		return ""
	}
	return h.file.Name()
}

// PathFor derives the deterministic sidecar lock path for a pidfile path.
func PathFor(pidfilePath string) string {
	return pidfilePath + ".lock"
}

// AcquireExclusive opens (creating if needed) the lock file and
// requests a non-blocking, exclusive, whole-file advisory lock. On
// contention it returns ErrBusy immediately without blocking.
func AcquireExclusive(path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	return &Handle{file: f}, nil
}

// Probe reports whether the lock is currently held without blocking
// and without disturbing an existing holder. If the file doesn't
// exist it is treated as Free (absent lock file == not running).
func Probe(path string) (State, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return Free, nil
		}
		return Free, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		// We acquired it, which means nobody else held it. Release
		// immediately — probing must never retain the lock.
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return Free, nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return Held, nil
	}
	return Free, fmt.Errorf("failed to probe lock %s: %w", path, err)
}

// Exists reports whether a lock file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
