// Package config loads daemon specifications from YAML service files
// under a service directory, with GUARDIAN_* environment variable
// overrides and an atomic Reload.
//
// Reference: tomtom215-lyrebirdaudio-go/internal/config/koanf.go's
// KoanfConfig (new-koanf-instance-then-atomic-swap reload, env-override-
// after-file precedence). Adapted from "one app config" to "one Spec
// per YAML file in a directory" since a guardian process supervises N
// independently defined daemons rather than configuring itself.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"guardian/internal/daemonspec"
)

// EnvPrefix is the prefix service-spec environment overrides use, e.g.
// GUARDIAN_WEBAPP_TERM_TIMEOUT_SECONDS overrides the "webapp" service's
// term_timeout_seconds field.
const EnvPrefix = "GUARDIAN"

// Store loads and caches service specs from a directory of YAML files,
// one file per supervised daemon (named "<service>.yaml").
type Store struct {
	mu   sync.RWMutex
	dir  string
	name string
	k    *koanf.Koanf
}

// Open loads the service named name from dir/name.yaml, applying any
// GUARDIAN_<NAME>_* environment overrides.
func Open(dir, name string) (*Store, error) {
	s := &Store{dir: dir, name: name}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the YAML file and environment overrides into a fresh
// koanf instance, then atomically swaps it in — following the teacher's
// own reload() shape so a concurrent Spec() call never observes a
// partially-loaded config.
func (s *Store) Reload() error {
	path := filepath.Join(s.dir, s.name+".yaml")

	newK := koanf.New(".")
	if err := newK.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load service file %s: %w", path, err)
	}

	prefix := EnvPrefix + "_" + strings.ToUpper(s.name) + "_"
	envProvider := env.Provider(".", env.Opt{
		Prefix: prefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.TrimPrefix(k, prefix)
			return strings.ToLower(k), v
		},
	})
	if err := newK.Load(envProvider, nil); err != nil {
		return fmt.Errorf("failed to load environment overrides for %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.k = newK
	s.mu.Unlock()
	return nil
}

// Spec unmarshals the loaded configuration into a daemonspec.Spec and
// validates it.
func (s *Store) Spec() (daemonspec.Spec, error) {
	s.mu.RLock()
	k := s.k
	s.mu.RUnlock()

	var spec daemonspec.Spec
	if err := k.Unmarshal("", &spec); err != nil {
		return daemonspec.Spec{}, fmt.Errorf("failed to unmarshal spec for %s: %w", s.name, err)
	}
	spec.Name = s.name
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return daemonspec.Spec{}, err
	}
	return spec, nil
}

// ListServiceNames returns every "<name>.yaml" file's base name found
// directly under dir, sorted lexically by filepath.Glob.
func ListServiceNames(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob service directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".yaml"))
	}
	return names, nil
}

// EnsureDir creates the service directory if it doesn't already exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create service directory %s: %w", dir, err)
	}
	return nil
}
