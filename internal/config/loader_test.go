package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default().Addr, cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.Presence.TypingTTL)
	assert.Equal(t, PresenceBackendMemory, cfg.Presence.Backend)
	assert.Equal(t, time.Minute, cfg.StatusSweepInterval)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "default config should be written")

	// Reading the written file back yields the same values.
	again, _, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, cfg.PingInterval, again.PingInterval)
	assert.Equal(t, cfg.AllowedOrigins, again.AllowedOrigins)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("FLOWCHAT_ADDR", ":9999")
	t.Setenv("FLOWCHAT_PRESENCE_BACKEND", "redis")
	t.Setenv("JWT_SECRET", "from-bare-env")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, PresenceBackendRedis, cfg.Presence.Backend)
	assert.Equal(t, "from-bare-env", cfg.JWTSecret)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presence:\n  backend: etcd\n"), 0o600))

	_, _, err := Load(nil, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}
