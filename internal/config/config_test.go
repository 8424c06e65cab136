package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:8765" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if !cfg.Monitor.EmitInitialState {
		t.Error("initial state announcement should default on")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  allowed_origins: ["https://app.example"]
monitor:
  source: mock
  emit_initial_state: false
artwork:
  timeout: 250ms
control:
  backend: uinput
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("allowed origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Monitor.Source != "mock" || cfg.Monitor.EmitInitialState {
		t.Errorf("monitor = %+v", cfg.Monitor)
	}
	if cfg.Monitor.InboxSize != 64 {
		t.Errorf("unset inbox_size lost its default: %d", cfg.Monitor.InboxSize)
	}
	if cfg.Artwork.Timeout != 250*time.Millisecond || cfg.Artwork.CacheSize != 64 {
		t.Errorf("artwork = %+v", cfg.Artwork)
	}
	if cfg.Control.Backend != "uinput" || cfg.Logging.Format != "json" {
		t.Errorf("control/logging = %+v %+v", cfg.Control, cfg.Logging)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"port", "server: {port: 70000}", "server.port"},
		{"connections", "server: {max_connections: 0}", "max_connections"},
		{"source", "monitor: {source: pulseaudio}", "monitor.source"},
		{"backend", "control: {backend: xdotool}", "control.backend"},
		{"backend without source", "control: {backend: mock}", "needs monitor.source"},
		{"cache", "artwork: {cache_size: -1}", "cache_size"},
		{"retries", "artwork: {retry_max: -1}", "retry_max"},
		{"level", "logging: {level: verbose}", "logging.level"},
		{"format", "logging: {format: xml}", "logging.format"},
		{"yaml", "server: [", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load = %v, want not-exist", err)
	}
	if _, err := Resolve(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("explicit missing path must fail")
	}
}

func TestUseMock(t *testing.T) {
	cfg := Default()
	cfg.UseMock()
	if cfg.Monitor.Source != "mock" || cfg.Control.Backend != "mock" {
		t.Errorf("UseMock left %+v %+v", cfg.Monitor, cfg.Control)
	}
}
