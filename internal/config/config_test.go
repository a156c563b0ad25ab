package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	want := Defaults()
	if *cfg != *want {
		t.Errorf("Load() on a missing file = %+v, want %+v", cfg, want)
	}
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("port: 9999\nstorage-dir: /tmp/custom\nproxy-url: socks5://127.0.0.1:1080\ntls-fingerprint: true\noauth:\n  client_id: abc123\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.StorageDir != "/tmp/custom" {
		t.Errorf("StorageDir = %q, want /tmp/custom", cfg.StorageDir)
	}
	if cfg.OAuth.ClientID != "abc123" {
		t.Errorf("OAuth.ClientID = %q, want abc123", cfg.OAuth.ClientID)
	}
	if cfg.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Errorf("ProxyURL = %q, want socks5://127.0.0.1:1080", cfg.ProxyURL)
	}
	if !cfg.TLSFingerprint {
		t.Error("TLSFingerprint = false, want true")
	}
	// Fields the override file doesn't mention keep their default.
	if cfg.UpstreamBaseURL != Defaults().UpstreamBaseURL {
		t.Errorf("UpstreamBaseURL = %q, want default unchanged", cfg.UpstreamBaseURL)
	}
}
