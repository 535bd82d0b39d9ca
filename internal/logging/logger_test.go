package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewBuildsConfiguredLevel(t *testing.T) {
	logger, err := New(Config{Level: "warn", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestDevelopmentConfig(t *testing.T) {
	cfg := DevelopmentConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.Development)
	assert.Equal(t, "console", encodingFormat(cfg.Development))
	assert.Equal(t, "json", encodingFormat(false))
}

func TestNewDefaultNeverNil(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Named("pty"))
}
