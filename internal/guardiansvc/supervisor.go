package guardiansvc

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// Service is the shape a guardian sub-service implements: the optional
// status listener satisfies it. Kept as
// our own interface (rather than exporting suture.Service directly) so
// callers outside this package, like internal/statussrv, don't need to
// import suture to participate.
//
// Reference: tomtom215-lyrebirdaudio-go/internal/supervisor/supervisor.go's
// Service interface (Run/Name), rebuilt here on top of a real supervisor
// instead of the hand-rolled restart loop that file implements — suture
// is a teacher-pack dependency (tomtom215's go.mod) that repo never
// actually wires up.
type Service interface {
	Run(ctx context.Context) error
	Name() string
}

type shim struct{ svc Service }

func (s shim) Serve(ctx context.Context) error { return s.svc.Run(ctx) }
func (s shim) String() string                  { return s.svc.Name() }

// Supervisor runs a small, fixed set of sibling services — in the
// guardian, the status listener when one is configured — for the
// lifetime of one guardian process. The worker wait does not run under
// it; guard waits on the worker in a goroutine of its own.
type Supervisor struct {
	sup *suture.Supervisor
}

// NewSupervisor builds a supervisor identified by name in logs.
func NewSupervisor(name string) *Supervisor {
	return &Supervisor{sup: suture.NewSimple(name)}
}

// Add registers svc to run for the supervisor's lifetime.
func (s *Supervisor) Add(svc Service) {
	s.sup.Add(shim{svc: svc})
}

// Serve blocks until ctx is cancelled, running every added service
// concurrently.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.sup.Serve(ctx)
}
