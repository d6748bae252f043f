package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8089", cfg.HTTP.ListenAddr)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.PortfolioSweepInterval)
	assert.Equal(t, 90*24*time.Hour, cfg.Scheduler.SnapshotRetention)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Judgment.Endpoint)
	assert.Equal(t, 0.5, cfg.Judgment.RequestsPerSecond)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "http:\n  listen_addr: \":9000\"\ndatabase:\n  dsn: \"postgres://u:p@db:5432/quorum\"\n  max_open_conns: 32\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.ListenAddr)
	assert.Equal(t, "postgres://u:p@db:5432/quorum", cfg.Database.DSN)
	assert.Equal(t, 32, cfg.Database.MaxOpenConns)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.MoveSweepInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesWinLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "database:\n  dsn: \"postgres://file:file@db:5432/quorum\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("QUORUM_DATABASE_DSN", "postgres://env:env@db:5432/quorum")
	t.Setenv("QUORUM_REDIS_ADDR", "redis:6379")
	t.Setenv("QUORUM_JUDGMENT_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env:env@db:5432/quorum", cfg.Database.DSN)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Judgment.AuthToken)
}

func TestLoadRejectsEmptyDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dsn: \"\"\n"), 0o644))

	t.Setenv("QUORUM_DATABASE_DSN", "")
	_, err := Load(path)
	assert.Error(t, err)
}
