package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetParleyHomeHonorsOverride(t *testing.T) {
	t.Setenv("PARLEY_HOME", "/tmp/parley-test-home")
	if got := GetParleyHome(); got != "/tmp/parley-test-home" {
		t.Fatalf("home: %s", got)
	}

	paths := GetPaths()
	if paths.Config != filepath.Join("/tmp/parley-test-home", "config.yaml") {
		t.Fatalf("config path: %s", paths.Config)
	}
	if paths.ProfileDB != filepath.Join("/tmp/parley-test-home", "profile.db") {
		t.Fatalf("profile db path: %s", paths.ProfileDB)
	}
}

func TestEnsureDirsCreatesLayout(t *testing.T) {
	t.Setenv("PARLEY_HOME", t.TempDir())

	paths, err := EnsureDirs()
	if err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	for _, dir := range []string{paths.Home, paths.Logs, paths.TempDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("missing dir %s: %v", dir, err)
		}
	}
}

func TestExpandPath(t *testing.T) {
	if got := ExpandPath("/absolute/path"); got != "/absolute/path" {
		t.Fatalf("absolute changed: %s", got)
	}
	if got := ExpandPath("relative"); got != "relative" {
		t.Fatalf("relative changed: %s", got)
	}
}
