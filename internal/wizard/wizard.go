// Package wizard implements the interactive `guardian add` spec
// builder: a short charmbracelet/huh form that collects enough fields
// to write a valid service YAML file.
//
// Reference: tomtom215-lyrebirdaudio-go/internal/menu/menu.go's use of
// huh.NewForm/huh.NewGroup/huh.NewInput/huh.NewConfirm, trimmed to a
// single straight-line form instead of that file's menu/submenu tree —
// collecting one Spec has no branching structure to model.
package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"guardian/internal/config"
	"guardian/internal/daemonspec"
)

// Run prompts for a new service definition and writes it to
// serviceDir/<name>.yaml, backing up any file it would overwrite.
func Run(serviceDir string) error {
	var (
		name        string
		commandLine string
		pidfilePath string
		stdoutPath  string
		stderrPath  string
		termTimeout = "10"
		workingDir  string
		user        string
		confirmed   bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Service name").Value(&name),
			huh.NewInput().Title("Command (space-separated argv)").Value(&commandLine),
			huh.NewInput().Title("Pidfile path").Value(&pidfilePath),
			huh.NewInput().Title("Stdout path").Value(&stdoutPath),
			huh.NewInput().Title("Stderr path").Value(&stderrPath),
			huh.NewInput().Title("Term timeout (seconds, 0 to skip SIGTERM)").Value(&termTimeout),
			huh.NewInput().Title("Working directory (blank for /)").Value(&workingDir),
			huh.NewInput().Title("Run as user (blank to keep guardian's)").Value(&user),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write this service file?").
				Affirmative("Yes").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			return nil
		}
		return fmt.Errorf("wizard form failed: %w", err)
	}
	if !confirmed {
		return nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("service name is required")
	}

	timeoutSecs, err := strconv.Atoi(strings.TrimSpace(termTimeout))
	if err != nil {
		return fmt.Errorf("invalid term timeout %q: %w", termTimeout, err)
	}

	// Validate through the real Spec type before writing anything to
	// disk, so a bad wizard answer never produces an unloadable file.
	// Marshaling spec itself (rather than a separate wizard-only shape)
	// guarantees the file guardian add writes is exactly the shape
	// internal/config's loader reads back.
	spec := daemonspec.Spec{
		Command:            daemonspec.Command{Argv: strings.Fields(commandLine)},
		PidfilePath:        pidfilePath,
		StdoutPath:         stdoutPath,
		StderrPath:         stderrPath,
		TermTimeoutSeconds: timeoutSecs,
		WorkingDir:         workingDir,
		User:               user,
		Name:               name,
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("collected service definition is invalid: %w", err)
	}

	if err := config.EnsureDir(serviceDir); err != nil {
		return err
	}
	path := filepath.Join(serviceDir, name+".yaml")
	if _, err := os.Stat(path); err == nil {
		if _, err := config.BackupService(path, filepath.Join(serviceDir, "backups")); err != nil {
			return fmt.Errorf("failed to back up existing service file before overwrite: %w", err)
		}
	}

	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal service file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write service file %s: %w", path, err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
