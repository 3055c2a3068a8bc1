package guardiansvc

import (
	"context"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"testing"
	"time"

	"guardian/internal/daemonspec"
)

func TestExitCodeForNil(t *testing.T) {
	if code := exitCodeFor(nil); code != 0 {
		t.Errorf("exitCodeFor(nil) = %d; want 0", code)
	}
}

func TestExitCodeForExitError(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 7")
	err := cmd.Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if code := exitCodeFor(err); code != 7 {
		t.Errorf("exitCodeFor = %d; want 7", code)
	}
}

func TestExitCodeForNonExitError(t *testing.T) {
	if code := exitCodeFor(os.ErrClosed); code != 1 {
		t.Errorf("exitCodeFor(non-ExitError) = %d; want 1", code)
	}
}

func TestBuildEnvIncludesSpecEnvironment(t *testing.T) {
	spec := daemonspec.Spec{Environment: map[string]string{"FOO": "bar"}}
	env := buildEnv(spec)
	found := false
	for _, kv := range env {
		if kv == "FOO=bar" {
			found = true
		}
	}
	if !found {
		t.Errorf("buildEnv did not include FOO=bar: %v", env)
	}
}

func TestCredentialForEmptySpec(t *testing.T) {
	cred, err := credentialFor(daemonspec.Spec{})
	if err != nil {
		t.Fatalf("credentialFor failed: %v", err)
	}
	if cred != nil {
		t.Errorf("credentialFor(empty spec) = %+v; want nil", cred)
	}
}

func TestCredentialForCurrentUser(t *testing.T) {
	u, err := user.Current()
	if err != nil {
		t.Skipf("user.Current unavailable: %v", err)
	}
	cred, err := credentialFor(daemonspec.Spec{User: u.Username})
	if err != nil {
		t.Fatalf("credentialFor failed: %v", err)
	}
	if cred == nil {
		t.Fatalf("credentialFor returned nil for a named user")
	}
	if want := u.Uid; want != "" && want != "0" {
		// Just sanity-check it resolved to *some* positive uid matching /etc/passwd.
		if cred.Uid == 0 {
			t.Errorf("credentialFor resolved uid 0 for non-root user %q", u.Username)
		}
	}
}

func TestCredentialForUnknownUser(t *testing.T) {
	if _, err := credentialFor(daemonspec.Spec{User: "no-such-user-xyz123"}); err == nil {
		t.Errorf("credentialFor with an unknown user returned nil error")
	}
}

func TestLaunchWorkerAndStop(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "guardiansvc_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	spec := daemonspec.Spec{
		Command:            daemonspec.Command{Argv: []string{"/bin/sh", "-c", "trap 'exit 0' TERM; sleep 30"}},
		StdoutPath:         filepath.Join(tmpDir, "out.log"),
		StderrPath:         filepath.Join(tmpDir, "err.log"),
		WorkingDir:         "/",
		TermTimeoutSeconds: 2,
	}

	cmd, err := launchWorker(spec, "")
	if err != nil {
		t.Fatalf("launchWorker failed: %v", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	err = stopWorker(context.Background(), spec, cmd, waitCh)
	if err != nil {
		t.Errorf("stopWorker returned %v; want nil (clean exit 0 after SIGTERM trap)", err)
	}
}

func TestStopWorkerEscalatesToSigkill(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "guardiansvc_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	spec := daemonspec.Spec{
		Command:            daemonspec.Command{Argv: []string{"/bin/sh", "-c", "trap '' TERM; sleep 30"}},
		StdoutPath:         filepath.Join(tmpDir, "out.log"),
		StderrPath:         filepath.Join(tmpDir, "err.log"),
		WorkingDir:         "/",
		TermTimeoutSeconds: 1,
	}

	cmd, err := launchWorker(spec, "")
	if err != nil {
		t.Fatalf("launchWorker failed: %v", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	start := time.Now()
	err = stopWorker(context.Background(), spec, cmd, waitCh)
	elapsed := time.Since(start)

	if err == nil {
		t.Errorf("stopWorker returned nil error for a SIGKILL-terminated process")
	}
	if elapsed < time.Duration(spec.TermTimeoutSeconds)*time.Second {
		t.Errorf("stopWorker returned before the term timeout elapsed (%v)", elapsed)
	}
}
