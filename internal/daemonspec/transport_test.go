package daemonspec

import (
	"os"
	"testing"
)

func TestWriteReadSpecFileRoundTrip(t *testing.T) {
	spec := Spec{
		Command:     Command{Argv: []string{"/bin/sleep", "1"}},
		PidfilePath: "/tmp/x.pid",
		StdoutPath:  "/tmp/x.out",
		StderrPath:  "/tmp/x.err",
		Name:        "x",
	}

	path, err := WriteSpecFile(spec)
	if err != nil {
		t.Fatalf("WriteSpecFile failed: %v", err)
	}
	defer os.Remove(path)

	got, err := ReadSpecFile(path)
	if err != nil {
		t.Fatalf("ReadSpecFile failed: %v", err)
	}
	if got.Name != spec.Name || got.PidfilePath != spec.PidfilePath {
		t.Errorf("ReadSpecFile = %+v; want %+v", got, spec)
	}
	if len(got.Command.Argv) != 2 || got.Command.Argv[0] != "/bin/sleep" {
		t.Errorf("Command.Argv = %v; want [/bin/sleep 1]", got.Command.Argv)
	}
}

func TestReadSpecFileMissing(t *testing.T) {
	if _, err := ReadSpecFile("/tmp/guardian-no-such-spec-file.json"); err == nil {
		t.Errorf("ReadSpecFile on a missing file returned nil error")
	}
}

func TestInternalArgs(t *testing.T) {
	args := InternalArgs(ModeWorker, "/tmp/spec.json")
	want := []string{InternalSubcommand, "worker", "--spec-file", "/tmp/spec.json"}
	if len(args) != len(want) {
		t.Fatalf("InternalArgs = %v; want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("InternalArgs[%d] = %q; want %q", i, args[i], want[i])
		}
	}
}
