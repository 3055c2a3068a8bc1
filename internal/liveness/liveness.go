// Package liveness implements the single safe predicate "is this
// daemon live right now?". The lock, not the presence of a PID in the
// process table, is ground truth: a PID can be reused, a lock cannot
// be held by a dead process.
//
// Reference: spec.md §4.6.
package liveness

import (
	"guardian/internal/lock"
	"guardian/internal/pidfile"
)

// Check reports whether the daemon identified by pidfilePath is alive.
func Check(pidfilePath string) (bool, error) {
	_, shape, err := pidfile.Read(pidfilePath)
	if err != nil {
		return false, err
	}
	if shape == pidfile.ShapeAbsent || shape == pidfile.ShapeUnreadable {
		return false, nil
	}

	lockPath := lock.PathFor(pidfilePath)
	if !lock.Exists(lockPath) {
		return false, nil
	}

	state, err := lock.Probe(lockPath)
	if err != nil {
		return false, err
	}
	return state == lock.Held, nil
}
