// Package config loads the platform configuration: the coordinated site set,
// the bus transport, session timing and the HTTP bind address.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	// Sites lists the coordinated endpoints, base first. Defaults to just
	// "default".
	Sites []string `yaml:"sites,omitempty"`

	MQTT     MQTTConfig     `yaml:"mqtt,omitempty"`
	Dialogue DialogueConfig `yaml:"dialogue,omitempty"`
	TTS      TTSConfig      `yaml:"tts,omitempty"`
	HTTP     HTTPConfig     `yaml:"http,omitempty"`

	// ProfileDB overrides the profile store location.
	ProfileDB string `yaml:"profileDb,omitempty"`
}

// MQTTConfig selects the bus transport. An empty BrokerURL runs the
// in-process broker; otherwise an external MQTT broker is used.
type MQTTConfig struct {
	BrokerURL string `yaml:"brokerUrl,omitempty"`
	ClientID  string `yaml:"clientId,omitempty"`
}

// DialogueConfig holds session manager timing.
type DialogueConfig struct {
	SessionTimeout time.Duration `yaml:"sessionTimeout,omitempty"`
}

// TTSConfig holds playback coordination timing.
type TTSConfig struct {
	PlayTimeout time.Duration `yaml:"playTimeout,omitempty"`
}

// HTTPConfig holds the façade bind address.
type HTTPConfig struct {
	Bind string `yaml:"bind,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Sites: []string{"default"},
		MQTT: MQTTConfig{
			ClientID: "parleyd",
		},
		Dialogue: DialogueConfig{
			SessionTimeout: 30 * time.Second,
		},
		TTS: TTSConfig{
			PlayTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Bind: "127.0.0.1:12101",
		},
	}
}

// Load reads the configuration file at path, layered over defaults. A
// missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot run with.
func (c Config) Validate() error {
	if len(c.Sites) == 0 {
		return fmt.Errorf("config: at least one site required")
	}
	seen := make(map[string]struct{}, len(c.Sites))
	for _, site := range c.Sites {
		if site == "" {
			return fmt.Errorf("config: empty site name")
		}
		if _, dup := seen[site]; dup {
			return fmt.Errorf("config: duplicate site %q", site)
		}
		seen[site] = struct{}{}
	}
	if c.Dialogue.SessionTimeout < 0 {
		return fmt.Errorf("config: negative session timeout")
	}
	if c.TTS.PlayTimeout < 0 {
		return fmt.Errorf("config: negative play timeout")
	}
	return nil
}

// BaseSite returns the first configured site.
func (c Config) BaseSite() string {
	return c.Sites[0]
}
