// Package storagepath is the path to the directory where all data
// related to the guardian CLI is stored: logs, the service directory,
// and the registry database.
//
// Reference: Data-Corruption-goweb/go/storage/storagepath/storagepath.go's
// context-threaded absolute-override-or-$HOME pattern. That version took
// its override as a plain argument sourced from a CLI flag; this one
// owns its own override variable (GUARDIAN_DATA_DIR) directly, the same
// way internal/config owns its GUARDIAN_<NAME>_* override prefix, since
// this CLI has no top-level data-dir flag of its own.
package storagepath

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// EnvOverride names the environment variable that, when set to an
// absolute path, replaces the default $HOME/.<name> storage location.
const EnvOverride = "GUARDIAN_DATA_DIR"

type ctxKey struct{}

// IntoContext threads path through ctx.
func IntoContext(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, ctxKey{}, path)
}

// FromContext retrieves a path previously stored with IntoContext, or
// the empty string if none was set.
func FromContext(ctx context.Context) string {
	if path, ok := ctx.Value(ctxKey{}).(string); ok {
		return path
	}
	return ""
}

// Init resolves the storage path — EnvOverride if set (must be
// absolute), else $HOME/.name — creates it if missing, and threads it
// into ctx.
func Init(ctx context.Context, name string) (context.Context, error) {
	if path := FromContext(ctx); path != "" {
		return ctx, fmt.Errorf("storage path already initialized in context")
	}

	path, err := resolvePath(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return IntoContext(ctx, path), nil
}

func resolvePath(name string) (string, error) {
	if alt := os.Getenv(EnvOverride); alt != "" {
		if !filepath.IsAbs(alt) {
			return "", fmt.Errorf("%s must be an absolute path", EnvOverride)
		}
		return alt, nil
	}
	home := os.Getenv("HOME")
	if home == "" || !filepath.IsAbs(home) {
		return "", fmt.Errorf("HOME environment variable is not defined or not an absolute path")
	}
	return filepath.Join(home, "."+name), nil
}
