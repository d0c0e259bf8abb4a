// Package config loads Soma configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all runtime settings for the desktop process and the CLI.
type Config struct {
	// DataDir is where the offline database lives.
	DataDir string
	// ListenAddr is the local HTTP/WebSocket bind address.
	ListenAddr string
	// RemoteURL is the hosted backend root URL.
	RemoteURL string
	// RemoteKey is the backend API key.
	RemoteKey string
	// SyncInterval is the opportunistic sync cadence while online.
	SyncInterval time.Duration
	// ProbeInterval is the connectivity probe cadence.
	ProbeInterval time.Duration
	// Retention is how long synced queue items are kept before pruning.
	Retention time.Duration
}

// Load reads configuration from SOMA_* environment variables, applying
// defaults for everything except the remote URL.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:       envString("SOMA_DATA_DIR", "./data"),
		ListenAddr:    envString("SOMA_LISTEN_ADDR", "localhost:8090"),
		RemoteURL:     os.Getenv("SOMA_REMOTE_URL"),
		RemoteKey:     os.Getenv("SOMA_REMOTE_KEY"),
		SyncInterval:  60 * time.Second,
		ProbeInterval: 15 * time.Second,
		Retention:     7 * 24 * time.Hour,
	}

	var err error
	if cfg.SyncInterval, err = envDuration("SOMA_SYNC_INTERVAL", cfg.SyncInterval); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = envDuration("SOMA_PROBE_INTERVAL", cfg.ProbeInterval); err != nil {
		return nil, err
	}
	if cfg.Retention, err = envDuration("SOMA_QUEUE_RETENTION", cfg.Retention); err != nil {
		return nil, err
	}

	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("SOMA_REMOTE_URL is required")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
