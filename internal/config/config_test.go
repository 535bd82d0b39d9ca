package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:8810", cfg.Server.ListenAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Shepherd.Enabled)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"/bin/zsh", "/bin/bash", "/bin/sh"}, cfg.PTY.ShellFallbacks)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MICROTERM_STORAGE_DATA_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.ListenAddr, cfg.Server.ListenAddr)
	assert.Equal(t, dir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dir, "shepherd.sock"), cfg.Shepherd.SocketPath)
	assert.Equal(t, filepath.Join(dir, "shepherd.pid"), cfg.PIDPath())
	assert.Equal(t, filepath.Join(dir, "microterm.db"), cfg.DatabasePath())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
listen_addr = "0.0.0.0:9000"

[pty]
locale = "C.UTF-8"
extra_path = ["/opt/tools/bin"]

[storage]
data_dir = "`+dir+`"

[logging]
level = "debug"

[rate_limit]
burst = 3
`), 0o644))

	t.Setenv("MICROTERM_LOGGING_LEVEL", "warn")
	t.Setenv("MICROTERM_SHEPHERD_ENABLED", "false")
	t.Setenv("MICROTERM_PTY_READ_BUFFER_SIZE", "4096")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddr)
	assert.Equal(t, "C.UTF-8", cfg.PTY.Locale)
	assert.Equal(t, []string{"/opt/tools/bin"}, cfg.PTY.ExtraPath)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, "warn", cfg.Logging.Level, "environment overrides the file")
	assert.False(t, cfg.Shepherd.Enabled)
	assert.Equal(t, 4096, cfg.PTY.ReadBufferSize)
	assert.Equal(t, []string{"/bin/zsh", "/bin/bash", "/bin/sh"}, cfg.PTY.ShellFallbacks, "untouched keys keep defaults")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nlisten_addr = "), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("MICROTERM_STORAGE_DATA_DIR", t.TempDir())
	t.Setenv("MICROTERM_PTY_READ_BUFFER_SIZE", "lots")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.ListenAddr = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RateLimit.Burst = 0
	assert.Error(t, cfg.Validate())

	cfg.RateLimit.Enabled = false
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Shepherd.RemoteURL = "ws://remote:8810/api/tunnel"
	assert.Error(t, cfg.Validate())
	cfg.Shepherd.RemoteToken = "secret"
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Server.CertFile = "/etc/microterm/cert.pem"
	assert.Error(t, cfg.Validate())
	cfg.Server.KeyFile = "/etc/microterm/key.pem"
	assert.NoError(t, cfg.Validate())
}
