package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Harvest.Workers)
	assert.Equal(t, 3, cfg.Harvest.MaxAttempts)
	assert.Equal(t, 1000, cfg.Harvest.BackoffBaseMs)
	assert.False(t, cfg.Harvest.SkipFailed)
	assert.Equal(t, "file", cfg.Checkpoint.Backend)
	assert.Equal(t, "data/checkpoint.json", cfg.Checkpoint.Path)
	assert.Equal(t, "dir", cfg.Artifacts.Backend)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, "truncate", cfg.Sync.Mode)
	assert.Equal(t, "yc_jobs_join", cfg.Sync.UnifiedTable)
	assert.True(t, cfg.Sync.CreateTables)
	assert.Equal(t, 2.0, cfg.Source.RequestsPerSecond)
	assert.Equal(t, "harvest.runs", cfg.Events.Topic)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("HARVEST_WORKERS", "8")
	t.Setenv("HARVEST_SKIP_FAILED", "true")
	t.Setenv("SYNC_MODE", "upsert")
	t.Setenv("SOURCE_REQUESTS_PER_SECOND", "0.5")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Harvest.Workers)
	assert.True(t, cfg.Harvest.SkipFailed)
	assert.Equal(t, "upsert", cfg.Sync.Mode)
	assert.Equal(t, 0.5, cfg.Source.RequestsPerSecond)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHECKPOINT_BACKEND=memory\nDATABASE_DRIVER=sqlite\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("CHECKPOINT_BACKEND")
		os.Unsetenv("DATABASE_DRIVER")
	})

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Checkpoint.Backend)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}
