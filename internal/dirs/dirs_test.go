package dirs

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestStateDir_HonoursXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG variables only apply on linux")
	}
	base := t.TempDir()
	t.Setenv("XDG_STATE_HOME", base)

	got, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir() error: %v", err)
	}
	if want := filepath.Join(base, "bookctl"); got != want {
		t.Errorf("StateDir() = %q, want %q", got, want)
	}
}

func TestSessionAndLogPaths(t *testing.T) {
	state := filepath.Join("tmp", "state")
	if got, want := SessionDir(state), filepath.Join(state, "session"); got != want {
		t.Errorf("SessionDir() = %q, want %q", got, want)
	}
	if got, want := LogFile(state), filepath.Join(state, "logs", "bookctl.log"); got != want {
		t.Errorf("LogFile() = %q, want %q", got, want)
	}
}

func TestEnsure_EmptyPath(t *testing.T) {
	if err := Ensure(""); err == nil {
		t.Error("Ensure(\"\") expected error")
	}
}
