package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/flowchat-server/internal/config"
	"github.com/vovakirdan/flowchat-server/internal/log"
)

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "flowchat.db")
	cfg.JWTSecret = "secret"

	a, err := New(context.Background(), cfg, log.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, a.hub.Running, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestUnknownPresenceBackend(t *testing.T) {
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "flowchat.db")
	cfg.Presence.Backend = "etcd"

	_, err := New(context.Background(), cfg, log.Nop())
	require.ErrorContains(t, err, "unknown presence backend")
}
