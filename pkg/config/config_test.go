package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Equal(t, 5, cfg.MaxTransitions)
	require.Equal(t, 3, cfg.MaxRetryAttempts)
	require.InDelta(t, 0.40, cfg.MinConfidence, 1e-9)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("QUEUE_HIGH_WATER", "10")
	t.Setenv("LOCK_TTL", "45s")
	t.Setenv("OBSERVE_ONLY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9999", cfg.Port)
	require.Equal(t, 10, cfg.QueueHighWater)
	require.Equal(t, 45*time.Second, cfg.LockTTL)
	require.True(t, cfg.ObserveOnly)
}

func TestYAMLFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driftgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_changed_lines: 80\nlog_level: DEBUG\n"), 0o600))
	t.Setenv("DRIFTGATE_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 80, cfg.MaxChangedLines)
	require.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driftgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7000\"\n"), 0o600))
	t.Setenv("DRIFTGATE_CONFIG", path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "7001", cfg.Port)
}

func TestBadConfigFileFails(t *testing.T) {
	t.Setenv("DRIFTGATE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}
