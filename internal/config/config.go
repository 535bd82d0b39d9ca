// Package config loads microterm's settings from defaults, an optional TOML
// file and MICROTERM_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g.
// MICROTERM_SERVER_LISTEN_ADDR or MICROTERM_PTY_READ_BUFFER_SIZE.
const EnvPrefix = "MICROTERM"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	PTY       PTYConfig       `toml:"pty"`
	Shepherd  ShepherdConfig  `toml:"shepherd"`
	Storage   StorageConfig   `toml:"storage"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit" split_words:"true"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	ListenAddr     string   `toml:"listen_addr" split_words:"true"`
	AllowedOrigins []string `toml:"allowed_origins" split_words:"true"`
	// TunnelToken enables /api/tunnel for remote shepherd clients.
	TunnelToken string `toml:"tunnel_token" split_words:"true"`
	// TLS serves HTTPS. Without CertFile and KeyFile a self-signed
	// certificate is generated under the data dir.
	TLS      bool   `toml:"tls"`
	CertFile string `toml:"cert_file" split_words:"true"`
	KeyFile  string `toml:"key_file" split_words:"true"`
}

// PTYConfig controls how shells are spawned.
type PTYConfig struct {
	ShellFallbacks []string `toml:"shell_fallbacks" split_words:"true"`
	ExtraPath      []string `toml:"extra_path" split_words:"true"`
	Locale         string   `toml:"locale"`
	ReadBufferSize int      `toml:"read_buffer_size" split_words:"true"`
}

// ShepherdConfig controls the background daemon that owns sessions.
type ShepherdConfig struct {
	Enabled    bool   `toml:"enabled"`
	SocketPath string `toml:"socket_path" split_words:"true"`
	// RemoteURL points at another host's /api/tunnel; when set, sessions
	// live on that host instead of a local shepherd.
	RemoteURL   string `toml:"remote_url" split_words:"true"`
	RemoteToken string `toml:"remote_token" split_words:"true"`
}

// StorageConfig locates the session journal.
type StorageConfig struct {
	DataDir      string `toml:"data_dir" split_words:"true"`
	HistoryLimit int    `toml:"history_limit" split_words:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// RateLimitConfig holds rate limiting configuration for session creation
// and websocket upgrades.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second" split_words:"true"`
	Burst             int     `toml:"burst"`
	Enabled           bool    `toml:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8810",
		},
		PTY: PTYConfig{
			ShellFallbacks: []string{"/bin/zsh", "/bin/bash", "/bin/sh"},
			Locale:         "en_US.UTF-8",
			ReadBufferSize: 8 * 1024,
		},
		Shepherd: ShepherdConfig{
			Enabled: true,
		},
		Storage: StorageConfig{
			HistoryLimit: 100,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			Enabled:           true,
		},
	}
}

// DefaultPath returns the config file location under the user's config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "microterm", "config.toml"), nil
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr must not be empty")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.New("server.cert_file and server.key_file must be set together")
	}
	if c.Shepherd.RemoteURL != "" && c.Shepherd.RemoteToken == "" {
		return errors.New("shepherd.remote_token is required with shepherd.remote_url")
	}
	if c.PTY.ReadBufferSize < 0 {
		return fmt.Errorf("pty.read_buffer_size must not be negative: %d", c.PTY.ReadBufferSize)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("rate_limit requires positive requests_per_second and burst")
	}
	return nil
}

// resolvePaths fills the data directory and socket path when unset.
func (c *Config) resolvePaths() error {
	if c.Storage.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		c.Storage.DataDir = filepath.Join(home, ".microterm")
	}
	if c.Shepherd.SocketPath == "" {
		c.Shepherd.SocketPath = filepath.Join(c.Storage.DataDir, "shepherd.sock")
	}
	return nil
}

// PIDPath is where the shepherd records its pid, next to its socket.
func (c *Config) PIDPath() string {
	return filepath.Join(filepath.Dir(c.Shepherd.SocketPath), "shepherd.pid")
}

// TLSDir caches the generated self-signed certificate.
func (c *Config) TLSDir() string {
	return filepath.Join(c.Storage.DataDir, "tls")
}

// DatabasePath is the session journal's SQLite file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "microterm.db")
}
