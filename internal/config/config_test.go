package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "./searchcore.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "fs", cfg.Artifact.Driver)
	assert.Equal(t, "us-east-1", cfg.Artifact.S3Region)
	assert.Equal(t, 60, cfg.Lease.HeartbeatTTLSeconds)
	assert.Equal(t, "expvar", cfg.Observability.MetricsExporter)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SEARCHCORE_STORAGE_DRIVER", "postgres")
	t.Setenv("SEARCHCORE_STORAGE_POSTGRES_DSN", "postgres://db.internal/searchcore")
	t.Setenv("SEARCHCORE_LEASE_HEARTBEAT_TTL_SECONDS", "120")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://db.internal/searchcore", cfg.Storage.PostgresDSN)
	assert.Equal(t, 120, cfg.Lease.HeartbeatTTLSeconds)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
artifact:
  driver: s3
  s3_bucket: trial-artifacts
lease:
  reap_interval_seconds: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "s3", cfg.Artifact.Driver)
	assert.Equal(t, "trial-artifacts", cfg.Artifact.S3Bucket)
	assert.Equal(t, 5, cfg.Lease.ReapIntervalSeconds)
	// untouched keys keep their defaults
	assert.Equal(t, 60, cfg.Lease.HeartbeatTTLSeconds)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unbalanced"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLeaseDurations(t *testing.T) {
	lease := LeaseConfig{HeartbeatTTLSeconds: 90, ReapIntervalSeconds: 15}
	assert.Equal(t, 90*time.Second, lease.HeartbeatTTL())
	assert.Equal(t, 15*time.Second, lease.ReapInterval())
}
