package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findash/internal/config"
	"findash/internal/log"
)

func TestBootstrap(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("PORT", "9000")

	called := false
	cfg, logger := Bootstrap(log.ComponentWorker, func(c *config.Config) error {
		called = true
		return nil
	})
	assert.True(t, called)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, log.ComponentWorker, logger.Component())
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestInitSQLite(t *testing.T) {
	cfg := &config.Config{LogLevel: "error", LogFormat: "text"}
	logger := SetupLogger(cfg, log.ComponentStorage)

	repo := InitSQLite(logger, filepath.Join(t.TempDir(), "staging.db"))
	defer repo.Close()
	require.NoError(t, repo.Ping(context.Background()))
}

func TestSignalContext(t *testing.T) {
	ctx, cancel := SignalContext()
	require.NoError(t, ctx.Err())
	cancel()
	<-ctx.Done()
}
