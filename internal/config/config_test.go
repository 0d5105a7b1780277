package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasSaneListenAddr(t *testing.T) {
	cfg := Default()
	if cfg.Listen.SocketPath == "" {
		t.Fatal("expected a non-empty default socket path")
	}
	if cfg.Log.Level == "" {
		t.Fatal("expected a non-empty default log level")
	}
}

func TestLoadWithEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected Load(\"\") to equal Default(), got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wineserver.toml")
	body := `
[listen]
socket_path = "/tmp/custom.sock"

[log]
level = "debug"
format = "json"

[pipes]
default_timeout_ms = 250
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen.SocketPath != "/tmp/custom.sock" {
		t.Fatalf("expected overridden socket path, got %q", cfg.Listen.SocketPath)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("expected overridden log config, got %+v", cfg.Log)
	}
	if cfg.Pipes.DefaultTimeout.Milliseconds() != 250 {
		t.Fatalf("expected DefaultTimeout to be derived from TimeoutMillis, got %v", cfg.Pipes.DefaultTimeout)
	}
	// Metrics wasn't in the file, so it should still carry its default.
	if cfg.Metrics != Default().Metrics {
		t.Fatalf("expected untouched table to keep its default, got %+v", cfg.Metrics)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wineserver.toml")
	body := `
[listen]
scoket_path = "/tmp/typo.sock"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unrecognized config key")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/wineserver.toml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
