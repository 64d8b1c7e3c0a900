package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/flowchat-server/internal/auth"
	"github.com/vovakirdan/flowchat-server/internal/config"
	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/log"
	"github.com/vovakirdan/flowchat-server/internal/metrics"
	"github.com/vovakirdan/flowchat-server/internal/presence"
	"github.com/vovakirdan/flowchat-server/internal/retry"
	"github.com/vovakirdan/flowchat-server/internal/service/chats"
	"github.com/vovakirdan/flowchat-server/internal/service/friends"
	"github.com/vovakirdan/flowchat-server/internal/service/realtime"
	"github.com/vovakirdan/flowchat-server/internal/service/statuses"
	"github.com/vovakirdan/flowchat-server/internal/store"
	"github.com/vovakirdan/flowchat-server/internal/store/sqlite"
)

const testSecret = "test-secret"

type testServer struct {
	ts    *httptest.Server
	hub   *core.Hub
	store store.Store
	auth  *auth.Service
}

// frame is an outbound envelope with its payload left raw.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.AllowedOrigins = []string{"*"}
	cfg.PingInterval = 0
	cfg.Presence.TypingTTL = time.Second
	return cfg
}

// startTestServer runs the full router against an in-memory store.
func startTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := log.Nop()
	m := metrics.New()

	hub := core.NewHub(logger, m)
	hub.Start()
	t.Cleanup(hub.Shutdown)

	pres := presence.NewMemory(presence.WithTypingTTL(cfg.Presence.TypingTTL))
	rt := realtime.New(realtime.Deps{
		Hub:      hub,
		Store:    st,
		Presence: pres,
		Logger:   logger,
		Metrics:  m,
	}, realtime.Options{
		BroadcastScope:        cfg.Presence.BroadcastScope,
		TypingExpiryBroadcast: cfg.Presence.TypingExpiryBroadcast,
		Retry:                 retry.Policy{Attempts: 1, Timeout: time.Second},
	})
	t.Cleanup(rt.Close)

	jwtCfg := auth.JWTConfigFrom(cfg)
	authService := auth.NewService(st, jwtCfg)

	friendsSvc := friends.New(st)

	router := NewRouter(Deps{
		Gate:     auth.NewGate(jwtCfg),
		Auth:     authService,
		Realtime: rt,
		Chats:    chats.New(st, pres, rt, logger),
		Friends:  friendsSvc,
		Statuses: statuses.New(st, friendsSvc, rt, logger),
		Users:    st,
		Metrics:  m,
	}, cfg, logger)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, hub: hub, store: st, auth: authService}
}

// register creates a user with a username@example.com email and returns its
// id and token.
func (s *testServer) register(t *testing.T, username string) (string, string) {
	t.Helper()
	session, err := s.auth.Register(context.Background(), username, username+"@example.com", "secret123")
	require.NoError(t, err)
	return session.User.ID, session.Token
}

func (s *testServer) wsURL() string {
	return strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
}

// dial opens an authenticated connection and waits until it is fully set up.
func (s *testServer) dial(t *testing.T, ctx context.Context, userID, token string) *websocket.Conn {
	t.Helper()

	before := s.hub.ChannelSize(core.UserChannel(userID))
	conn, _, err := websocket.Dial(ctx, s.wsURL(), &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Authorization": {"Bearer " + token}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	require.Eventually(t, func() bool {
		return s.hub.ChannelSize(core.UserChannel(userID)) > before
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"event": event, "data": json.RawMessage(raw)}))
}

// readUntil skips frames until one named event arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) frame {
	t.Helper()
	for {
		var f frame
		require.NoError(t, wsjson.Read(ctx, conn, &f), "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func decodeData[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}
