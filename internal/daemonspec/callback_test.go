package daemonspec

import "testing"

func TestRegisterAndLookupCallback(t *testing.T) {
	RegisterCallback("callback-test-echo", func() int { return 7 })

	fn, ok := LookupCallback("callback-test-echo")
	if !ok {
		t.Fatalf("LookupCallback did not find registered callback")
	}
	if got := fn(); got != 7 {
		t.Errorf("callback returned %d; want 7", got)
	}
}

func TestLookupCallbackUnknown(t *testing.T) {
	if _, ok := LookupCallback("callback-test-does-not-exist"); ok {
		t.Errorf("LookupCallback found an unregistered name")
	}
}

func TestRunCallbackReturnsExitCode(t *testing.T) {
	code, err := RunCallback(func() int { return 3 })
	if err != nil {
		t.Fatalf("RunCallback returned unexpected error: %v", err)
	}
	if code != 3 {
		t.Errorf("code = %d; want 3", code)
	}
}

func TestRunCallbackRecoversPanic(t *testing.T) {
	code, err := RunCallback(func() int { panic("boom") })
	if err == nil {
		t.Fatalf("RunCallback on a panicking callback returned nil error")
	}
	if code != 1 {
		t.Errorf("code = %d; want 1", code)
	}
}
