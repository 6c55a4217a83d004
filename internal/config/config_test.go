package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseSite() != "default" {
		t.Fatalf("base site: %s", cfg.BaseSite())
	}
	if cfg.Dialogue.SessionTimeout != 30*time.Second {
		t.Fatalf("session timeout: %s", cfg.Dialogue.SessionTimeout)
	}
	if cfg.HTTP.Bind == "" {
		t.Fatal("no default bind")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
sites: [default, satellite1, satellite2]
mqtt:
  brokerUrl: tcp://broker.local:1883
dialogue:
  sessionTimeout: 45s
http:
  bind: 0.0.0.0:12101
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Sites) != 3 || cfg.Sites[2] != "satellite2" {
		t.Fatalf("sites: %v", cfg.Sites)
	}
	if cfg.MQTT.BrokerURL != "tcp://broker.local:1883" {
		t.Fatalf("broker url: %s", cfg.MQTT.BrokerURL)
	}
	if cfg.Dialogue.SessionTimeout != 45*time.Second {
		t.Fatalf("session timeout: %s", cfg.Dialogue.SessionTimeout)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "definitely_not_a_key: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateRejectsDuplicateSites(t *testing.T) {
	cfg := Default()
	cfg.Sites = []string{"default", "default"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected duplicate site error")
	}

	cfg.Sites = []string{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected empty sites error")
	}
}
