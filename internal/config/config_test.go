package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if *cfg != *def {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, def)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.ListenAddr = ":9999"
	cfg.TickInterval = duration{30 * time.Second}
	cfg.SendPause = duration{500 * time.Millisecond}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("loaded = %+v, want %+v", loaded, cfg)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("listen_addr = \":4000\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ListenAddr != ":4000" {
		t.Errorf("ListenAddr = %q, want :4000", loaded.ListenAddr)
	}
	if loaded.TickInterval.Duration != time.Minute {
		t.Errorf("TickInterval = %v, want the default 1m", loaded.TickInterval.Duration)
	}
}

func TestDefaultTimings(t *testing.T) {
	cfg := Default()
	if cfg.TickInterval.Duration != time.Minute {
		t.Errorf("TickInterval = %v, want 1m", cfg.TickInterval.Duration)
	}
	if cfg.SendPause.Duration != 2*time.Second {
		t.Errorf("SendPause = %v, want 2s", cfg.SendPause.Duration)
	}
	if cfg.ReconnectDelay.Duration != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.ReconnectDelay.Duration)
	}
	if cfg.RestartDelay.Duration != time.Second {
		t.Errorf("RestartDelay = %v, want 1s", cfg.RestartDelay.Duration)
	}
}
