package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.waconsole.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".waconsole")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// CacheDBPath returns the durable cache database path for a profile.
func CacheDBPath(name string) string {
	return filepath.Join(Dir(name), "cache.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "waconsoled.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory if it does not exist.
func EnsureDir(name string) error {
	return os.MkdirAll(Dir(name), 0700)
}
