package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
)

func testConfig() *config.Config {
	return &config.Config{
		AppName:            "fern",
		Version:            "test",
		LogLevel:           "debug",
		StartupMaxAttempts: 1,
	}
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig()
	logger, zapLogger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, zapLogger.Core().Enabled(-1))

	cfg.LogLevel = "loud"
	_, _, err = NewLogger(cfg)
	assert.Error(t, err)
}

func TestApp_RequiresPipelineToServe(t *testing.T) {
	cfg := testConfig()
	logger, _, err := NewLogger(cfg)
	require.NoError(t, err)

	a := New(cfg, logger)
	assert.Error(t, a.Serve(context.Background()))
	assert.Error(t, a.Migrate(context.Background()))
	assert.False(t, a.Health.IsReady())
}

func TestApp_PipelineNeedsServices(t *testing.T) {
	cfg := testConfig()
	logger, _, err := NewLogger(cfg)
	require.NoError(t, err)

	a := New(cfg, logger)
	err = a.startPipeline(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STUDENT_SERVICE_URL")
}
