// Package statussrv serves the optional per-daemon "/healthz" endpoint
// named in SPEC_FULL.md's domain stack. It never feeds the liveness
// decision in internal/liveness, which stays lock-probe only — this is
// glue for operators who want an HTTP-reachable status line in addition
// to `guardian status`.
//
// Reference: Data-Corruption-goweb/go/server/server.go's xhttp.NewServer
// call shape (AfterListen/OnShutdown hooks).
package statussrv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Data-Corruption/stdx/xhttp"
)

// Status is the JSON body served at /healthz.
type Status struct {
	Name      string `json:"name"`
	GuardPID  int    `json:"guard_pid"`
	WorkerPID int    `json:"worker_pid"`
	Running   bool   `json:"running"`
}

// Server implements guardiansvc's Service interface structurally
// (Run(ctx) error, Name() string) without importing guardiansvc, so the
// guardian process's supervisor can add it directly.
type Server struct {
	addr   string
	name   string
	status func() Status
	srv    *xhttp.Server
}

// New builds a status server bound to addr. statusFn is polled on every
// request rather than cached, since the guardian process itself is the
// only writer of the worker's liveness state.
func New(addr, name string, statusFn func() Status) *Server {
	return &Server{addr: addr, name: name, status: statusFn}
}

func (s *Server) Name() string { return "status-http:" + s.name }

// Run starts the status listener and blocks until ctx is cancelled or
// the listener fails. Following spec.md's ambient-glue rule, a failure
// here never takes the worker down with it.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.status())
	})

	srv, err := xhttp.NewServer(&xhttp.ServerConfig{
		Addr:    s.addr,
		Handler: mux,
		AfterListen: func() {
			fmt.Printf("status endpoint listening on http://%s/healthz\n", s.addr)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create status server: %w", err)
	}
	s.srv = srv

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()

	select {
	case <-ctx.Done():
		_ = srv.Close()
		return nil
	case err := <-errCh:
		return err
	}
}
