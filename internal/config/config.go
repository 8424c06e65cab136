package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/20after4/configdir"
	"gopkg.in/yaml.v3"
)

const appName = "mediarelay"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Monitor MonitorConfig `yaml:"monitor"`
	Artwork ArtworkConfig `yaml:"artwork"`
	Control ControlConfig `yaml:"control"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// Socket is the local endpoint path. Empty selects the platform default;
	// "-" disables the local endpoint.
	Socket         string        `yaml:"socket"`
	MaxConnections int           `yaml:"max_connections"`
	AuthToken      string        `yaml:"auth_token"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type MonitorConfig struct {
	// Source is "mpris" or "mock".
	Source           string        `yaml:"source"`
	EmitInitialState bool          `yaml:"emit_initial_state"`
	InboxSize        int           `yaml:"inbox_size"`
	MockTick         time.Duration `yaml:"mock_tick"`
}

type ArtworkConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	RetryMax  int           `yaml:"retry_max"`
	CacheSize int           `yaml:"cache_size"`
	MaxBytes  int64         `yaml:"max_bytes"`
}

type ControlConfig struct {
	// Backend is "mpris", "uinput" or "mock".
	Backend    string `yaml:"backend"`
	UinputPath string `yaml:"uinput_path"`
}

// RelayConfig tells the CLI and TUI clients where the relay is.
type RelayConfig struct {
	// URL is the relay's base URL, e.g. http://127.0.0.1:8765. Empty means
	// the local socket.
	URL string `yaml:"url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8765,
			Host:           "127.0.0.1",
			MaxConnections: 16,
			WriteTimeout:   5 * time.Second,
		},
		Monitor: MonitorConfig{
			Source:           "mpris",
			EmitInitialState: true,
			InboxSize:        64,
			MockTick:         time.Second,
		},
		Artwork: ArtworkConfig{
			Timeout:   5 * time.Second,
			RetryMax:  2,
			CacheSize: 64,
			MaxBytes:  8 << 20,
		},
		Control: ControlConfig{
			Backend:    "mpris",
			UinputPath: "/dev/uinput",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// DefaultPath is config.yaml in the per-user config directory.
func DefaultPath() string {
	return filepath.Join(configdir.LocalConfig(appName), "config.yaml")
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads path, or the default path when path is empty. A missing
// default file yields the defaults; a missing explicit file is an error.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg, err := Load(DefaultPath())
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

var (
	validSources  = map[string]bool{"mpris": true, "mock": true}
	validBackends = map[string]bool{"mpris": true, "uinput": true, "mock": true}
	validLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats  = map[string]bool{"console": true, "json": true}
)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	case c.Server.MaxConnections < 1:
		return fmt.Errorf("server.max_connections must be positive")
	case c.Server.WriteTimeout <= 0:
		return fmt.Errorf("server.write_timeout must be positive")
	case !validSources[c.Monitor.Source]:
		return fmt.Errorf("monitor.source %q unknown (mpris, mock)", c.Monitor.Source)
	case c.Monitor.InboxSize < 1:
		return fmt.Errorf("monitor.inbox_size must be positive")
	case c.Monitor.MockTick <= 0:
		return fmt.Errorf("monitor.mock_tick must be positive")
	case c.Artwork.Timeout <= 0:
		return fmt.Errorf("artwork.timeout must be positive")
	case c.Artwork.RetryMax < 0:
		return fmt.Errorf("artwork.retry_max must not be negative")
	case c.Artwork.CacheSize < 1:
		return fmt.Errorf("artwork.cache_size must be positive")
	case c.Artwork.MaxBytes < 1:
		return fmt.Errorf("artwork.max_bytes must be positive")
	case !validBackends[c.Control.Backend]:
		return fmt.Errorf("control.backend %q unknown (mpris, uinput, mock)", c.Control.Backend)
	case c.Control.Backend != "uinput" && c.Control.Backend != c.Monitor.Source:
		return fmt.Errorf("control.backend %q needs monitor.source %q", c.Control.Backend, c.Control.Backend)
	case !validLevels[c.Logging.Level]:
		return fmt.Errorf("logging.level %q unknown", c.Logging.Level)
	case !validFormats[c.Logging.Format]:
		return fmt.Errorf("logging.format %q unknown (console, json)", c.Logging.Format)
	}
	return nil
}

// Addr is the TCP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// UseMock switches the source and control backend to the simulation.
func (c *Config) UseMock() {
	c.Monitor.Source = "mock"
	c.Control.Backend = "mock"
}
