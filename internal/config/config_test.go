package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SOMA_REMOTE_URL", "https://backend.example.co")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataDir != "./data" {
		t.Errorf("Unexpected data dir: %q", cfg.DataDir)
	}
	if cfg.ListenAddr != "localhost:8090" {
		t.Errorf("Unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.SyncInterval != 60*time.Second {
		t.Errorf("Unexpected sync interval: %v", cfg.SyncInterval)
	}
	if cfg.ProbeInterval != 15*time.Second {
		t.Errorf("Unexpected probe interval: %v", cfg.ProbeInterval)
	}
	if cfg.Retention != 7*24*time.Hour {
		t.Errorf("Unexpected retention: %v", cfg.Retention)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SOMA_REMOTE_URL", "https://backend.example.co")
	t.Setenv("SOMA_REMOTE_KEY", "secret")
	t.Setenv("SOMA_DATA_DIR", "/var/lib/soma")
	t.Setenv("SOMA_LISTEN_ADDR", "localhost:9000")
	t.Setenv("SOMA_SYNC_INTERVAL", "30s")
	t.Setenv("SOMA_PROBE_INTERVAL", "5s")
	t.Setenv("SOMA_QUEUE_RETENTION", "48h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.RemoteKey != "secret" || cfg.DataDir != "/var/lib/soma" || cfg.ListenAddr != "localhost:9000" {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if cfg.SyncInterval != 30*time.Second || cfg.ProbeInterval != 5*time.Second || cfg.Retention != 48*time.Hour {
		t.Errorf("Unexpected durations: %+v", cfg)
	}
}

func TestLoadRequiresRemoteURL(t *testing.T) {
	t.Setenv("SOMA_REMOTE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error for missing remote URL")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SOMA_REMOTE_URL", "https://backend.example.co")
	t.Setenv("SOMA_SYNC_INTERVAL", "sometimes")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unparseable duration")
	}
}
