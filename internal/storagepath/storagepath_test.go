package storagepath

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestInitWithAbsoluteOverride(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "storagepath_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	alt := filepath.Join(tmpDir, "data")
	t.Setenv(EnvOverride, alt)

	ctx, err := Init(context.Background(), "guardian")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if got := FromContext(ctx); got != alt {
		t.Errorf("FromContext = %q; want %q", got, alt)
	}
	if _, err := os.Stat(alt); err != nil {
		t.Errorf("storage directory was not created: %v", err)
	}
}

func TestInitRejectsRelativeOverride(t *testing.T) {
	t.Setenv(EnvOverride, "relative/path")
	if _, err := Init(context.Background(), "guardian"); err == nil {
		t.Errorf("Init with a relative override returned nil error")
	}
}

func TestInitRejectsDoubleInit(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "storagepath_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	t.Setenv(EnvOverride, tmpDir)

	ctx, err := Init(context.Background(), "guardian")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := Init(ctx, "guardian"); err == nil {
		t.Errorf("second Init on an already-initialized context returned nil error")
	}
}

func TestFromContextEmpty(t *testing.T) {
	if got := FromContext(context.Background()); got != "" {
		t.Errorf("FromContext on a bare context = %q; want empty string", got)
	}
}
