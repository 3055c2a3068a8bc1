package daemonspec

import (
	"encoding/json"
	"fmt"
	"os"
)

// InternalSubcommand is the hidden CLI subcommand name self-exec'd
// processes are invoked with. It must never be reached by a direct
// human invocation — see cmd/guardian/main.go's run(), which dispatches
// it before the CLI app is built.
const InternalSubcommand = "__guardian_internal__"

// Mode selects what an internally-invoked process does.
type Mode string

const (
	ModeGuardian Mode = "guardian"
	ModeWorker   Mode = "worker"
)

// WriteSpecFile marshals spec to a temp JSON file so it can be handed
// to a self-exec'd process across the exec boundary (a fresh process
// image can't receive a Go struct directly). The caller owns cleanup
// until the guardian starts; the guardian process removes it when it
// exits, since a callback worker reads the same file while it runs.
func WriteSpecFile(spec Spec) (string, error) {
	f, err := os.CreateTemp("", "guardian-spec-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create spec transport file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	if err := enc.Encode(spec); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to encode spec transport file: %w", err)
	}
	return f.Name(), nil
}

// ReadSpecFile reads back a spec written by WriteSpecFile.
func ReadSpecFile(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("failed to read spec transport file %s: %w", path, err)
	}
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("failed to decode spec transport file %s: %w", path, err)
	}
	return spec, nil
}

// InternalArgs builds the argv tail appended after the executable path
// when self-exec'ing into guardian or worker mode.
func InternalArgs(mode Mode, specFile string) []string {
	return []string{InternalSubcommand, string(mode), "--spec-file", specFile}
}
