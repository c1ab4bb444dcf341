package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.RelayURL != "ws://localhost:8080/ws" {
		t.Errorf("relay_url = %q", cfg.RelayURL)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("ice_servers = %v", cfg.ICEServers)
	}
	if cfg.NegotiationTimeout != 30*time.Second {
		t.Errorf("negotiation_timeout = %v", cfg.NegotiationTimeout)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Errorf("ping_period = %v", cfg.PingPeriod)
	}
	if cfg.ReadLimit != 65536 || cfg.SendBuffer != 32 || cfg.Port != 8080 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadReadsEnvSpecificFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := []byte("relay_url: wss://relay.example.com/ws\nnegotiation_timeout: 5s\n")
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RelayURL != "wss://relay.example.com/ws" {
		t.Errorf("relay_url = %q", cfg.RelayURL)
	}
	if cfg.NegotiationTimeout != 5*time.Second {
		t.Errorf("negotiation_timeout = %v", cfg.NegotiationTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.SendBuffer != 32 {
		t.Errorf("send_buffer = %d", cfg.SendBuffer)
	}
}
