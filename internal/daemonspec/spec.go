// Package daemonspec holds the daemon specification type and the
// validation/error taxonomy shared by every engine under internal/ and
// by the public guardian package, kept separate from the root package
// to avoid an import cycle (root imports the engines, the engines need
// the Spec type).
package daemonspec

import (
	"errors"
	"fmt"
	"os"
)

// Command selects exactly one of two ways to run the worker: a fresh
// process (Argv) or an in-process callback resolved by name in the
// current binary (CallbackName). A statically compiled worker can't
// receive a closure across a self-exec boundary, so callbacks are
// looked up through RegisterCallback instead.
type Command struct {
	Argv         []string `yaml:"argv,omitempty" koanf:"argv"`
	CallbackName string   `yaml:"callback,omitempty" koanf:"callback"`
}

func (c Command) isExec() bool     { return len(c.Argv) > 0 }
func (c Command) isCallback() bool { return c.CallbackName != "" }

// Spec is the daemon specification passed to Start. Field tags match the
// snake_case keys service YAML files use, the same pairing
// tomtom215-lyrebirdaudio-go/internal/config/config.go's Config uses
// throughout — koanf's mapstructure-based Unmarshal is case-insensitive
// but not underscore-insensitive, so a field with no tag never matches
// a snake_case key.
type Spec struct {
	Command Command `yaml:"command" koanf:"command"`

	PidfilePath     string `yaml:"pidfile_path" koanf:"pidfile_path"`
	StdoutPath      string `yaml:"stdout_path" koanf:"stdout_path"`
	StderrPath      string `yaml:"stderr_path" koanf:"stderr_path"`
	GuardianLogPath string `yaml:"guardian_log_path,omitempty" koanf:"guardian_log_path"`

	// Name is set by internal/config from the service file's own base
	// name, never read from the file itself.
	Name string `yaml:"-" koanf:"-"`

	TermTimeoutSeconds int `yaml:"term_timeout_seconds" koanf:"term_timeout_seconds"`

	WorkingDir string `yaml:"working_dir,omitempty" koanf:"working_dir"`
	User       string `yaml:"user,omitempty" koanf:"user"`
	Group      string `yaml:"group,omitempty" koanf:"group"`

	Environment map[string]string `yaml:"environment,omitempty" koanf:"environment"`

	// StatusAddr, when non-empty, makes the guardian serve a
	// "/healthz" endpoint on this address for the lifetime of the
	// worker. This is the "optional HTTP status endpoint" spec.md §1
	// names as in-scope glue; it never feeds the core liveness
	// decision, which is lock-probe only (spec.md §4.6).
	StatusAddr string `yaml:"status_addr,omitempty" koanf:"status_addr"`
}

// Validation errors. Message literals required by spec.md §7/§8 are
// preserved verbatim by the formatting helpers below.
var (
	ErrValidation     = errors.New("validation error")
	ErrPrecondition   = errors.New("precondition error")
	ErrAlreadyRunning = errors.New("daemon already started")
	ErrLockContention = errors.New("lock contention")
	ErrStopTimeout    = errors.New("failed to stop daemon")
	ErrNotRunning     = errors.New("not_running")
)

// regexValidationError renders the literal substring legacy callers
// test for when an integer field fails validation.
func regexValidationError(field string, value any) error {
	return fmt.Errorf("%w: field %q value %v did not pass regex check", ErrValidation, field, value)
}

// cantWriteError renders the literal form spec.md §4.3 step 1 requires.
func cantWriteError(path string) error {
	return fmt.Errorf("%w: Error: Can't write to '%s'", ErrPrecondition, path)
}

// Validate checks the spec before any side effect is taken.
func (s Spec) Validate() error {
	if !s.Command.isExec() && !s.Command.isCallback() {
		return fmt.Errorf("%w: exactly one of command or callback is required", ErrValidation)
	}
	if s.Command.isExec() && s.Command.isCallback() {
		return fmt.Errorf("%w: exactly one of command or callback is required, not both", ErrValidation)
	}
	if s.Command.isCallback() && s.Name == "" {
		return fmt.Errorf("%w: name is required when command is a callback", ErrValidation)
	}
	if s.PidfilePath == "" {
		return fmt.Errorf("%w: pidfile_path is required", ErrValidation)
	}
	if s.StdoutPath == "" {
		return fmt.Errorf("%w: stdout_path is required", ErrValidation)
	}
	if s.StderrPath == "" {
		return fmt.Errorf("%w: stderr_path is required", ErrValidation)
	}
	if s.TermTimeoutSeconds < 0 {
		return regexValidationError("term_timeout", s.TermTimeoutSeconds)
	}
	return nil
}

// CheckWritable opens path in append mode in the parent, exactly as
// spec.md §4.3 step 1 requires, then closes it — the goal is only to
// surface a precondition failure before any fork/exec happens.
func CheckWritable(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return cantWriteError(path)
	}
	return f.Close()
}

// WithDefaults fills in spec.md §3's stated defaults.
func (s Spec) WithDefaults() Spec {
	if s.WorkingDir == "" {
		s.WorkingDir = "/"
	}
	if s.Environment == nil {
		s.Environment = map[string]string{}
	}
	return s
}
