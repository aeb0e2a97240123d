// Package paths centralizes the on-disk layout of the daemon's data
// directory (~/.whatsapp-scheduler by default).
package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns the data directory. The WASCHED_DATA_DIR environment
// variable overrides the default under the user's home.
func BaseDir() string {
	if dir := os.Getenv("WASCHED_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".whatsapp-scheduler")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// AppDBPath returns the path of the app-owned database (scheduled messages
// and the contacts cache).
func AppDBPath() string {
	return filepath.Join(BaseDir(), "scheduler.db")
}

// SessionDBPath returns the whatsmeow credential store path.
func SessionDBPath() string {
	return filepath.Join(BaseDir(), "session.db")
}

// LockPath returns the single-instance lock file path.
func LockPath() string {
	return filepath.Join(BaseDir(), "LOCK")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "schedulerd.log")
}

// EnsureDirs creates the data directory tree with owner-only permissions.
func EnsureDirs() error {
	for _, d := range []string{BaseDir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
