package config

import (
	"os"
	"path/filepath"
)

// Paths contains the filesystem layout of one platform instance.
type Paths struct {
	Home      string // Instance home directory
	Config    string // YAML configuration file path
	ProfileDB string // SQLite profile store path
	Logs      string // Logs directory
	TempDir   string // Temporary files directory
}

// GetPaths returns the path layout rooted at the parley home.
func GetPaths() Paths {
	home := GetParleyHome()
	return Paths{
		Home:      home,
		Config:    filepath.Join(home, "config.yaml"),
		ProfileDB: filepath.Join(home, "profile.db"),
		Logs:      filepath.Join(home, "logs"),
		TempDir:   filepath.Join(home, "tmp"),
	}
}

// GetParleyHome returns the platform home directory, honoring PARLEY_HOME.
func GetParleyHome() string {
	if custom := os.Getenv("PARLEY_HOME"); custom != "" {
		return ExpandPath(custom)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parley"
	}
	return filepath.Join(home, ".parley")
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if len(path) > 1 && path[0] == '~' && (path[1] == '/' || path[1] == filepath.Separator) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureDirs creates the instance directory layout.
func EnsureDirs() (Paths, error) {
	paths := GetPaths()
	for _, dir := range []string{paths.Home, paths.Logs, paths.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, err
		}
	}
	return paths, nil
}
