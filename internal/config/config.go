package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon settings read from config.toml in the data dir.
// Secrets (admin credentials, JWT secret) come from the environment, not
// from this file.
type Config struct {
	ListenAddr     string   `toml:"listen_addr"`
	FrontendOrigin string   `toml:"frontend_origin"`
	TickInterval   duration `toml:"tick_interval"`
	SendPause      duration `toml:"send_pause"`
	ReconnectDelay duration `toml:"reconnect_delay"`
	RestartDelay   duration `toml:"restart_delay"`
}

// duration wraps time.Duration so it round-trips through TOML as a string.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the reference configuration: one-minute scheduler ticks,
// a two-second pause between sends, a five-second reconnect backoff and a
// one-second restart delay after logout.
func Default() *Config {
	return &Config{
		ListenAddr:     ":3001",
		FrontendOrigin: "http://localhost:5173",
		TickInterval:   duration{time.Minute},
		SendPause:      duration{2 * time.Second},
		ReconnectDelay: duration{5 * time.Second},
		RestartDelay:   duration{time.Second},
	}
}

// Load reads config from the given path, applying defaults for missing
// fields. A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
