package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *fakeClock) Store {
			return NewMemory(WithClock(clock.Now))
		},
		"redis": func(t *testing.T, clock *fakeClock) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return NewRedis(client, WithClock(clock.Now))
		},
		"nats": func(t *testing.T, clock *fakeClock) Store {
			return dialTestNATS(t, WithClock(clock.Now))
		},
	}
}

// runJetStream starts an in-process NATS server with JetStream enabled.
func runJetStream(t *testing.T) string {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func dialTestNATS(t *testing.T, opts ...Option) *NATS {
	t.Helper()
	s, err := DialNATS(NATSConfig{URL: runJetStream(t), BucketPrefix: "TEST"}, nil, opts...)
	require.NoError(t, err)
	return s
}

func TestReferenceCountedPresence(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			s := factory(t, clock)
			defer s.Close()

			online, err := s.IsOnline(ctx, "alice")
			require.NoError(t, err)
			assert.False(t, online)

			became, err := s.SetOnline(ctx, "alice", "c1")
			require.NoError(t, err)
			assert.True(t, became, "first connection brings the user online")

			became, err = s.SetOnline(ctx, "alice", "c2")
			require.NoError(t, err)
			assert.False(t, became, "second connection is not a transition")

			rec, err := s.Get(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, StatusOnline, rec.Status)
			assert.Equal(t, 2, rec.Connections)
			assert.Equal(t, "c2", rec.ConnectionID)

			went, err := s.SetOffline(ctx, "alice", "c1")
			require.NoError(t, err)
			assert.False(t, went, "one connection remains")

			online, err = s.IsOnline(ctx, "alice")
			require.NoError(t, err)
			assert.True(t, online)

			clock.Advance(time.Minute)
			went, err = s.SetOffline(ctx, "alice", "c2")
			require.NoError(t, err)
			assert.True(t, went, "last connection takes the user offline")

			went, err = s.SetOffline(ctx, "alice", "c2")
			require.NoError(t, err)
			assert.False(t, went, "offline fires exactly once")

			rec, err = s.Get(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, StatusOffline, rec.Status)
			assert.Equal(t, 0, rec.Connections)
			assert.True(t, rec.LastSeenAt.Equal(clock.Now()), "lastSeenAt is the disconnect time")
		})
	}
}

func TestOnlineUsers(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, newFakeClock())
			defer s.Close()

			_, err := s.SetOnline(ctx, "bob", "c1")
			require.NoError(t, err)
			_, err = s.SetOnline(ctx, "alice", "c2")
			require.NoError(t, err)
			_, err = s.SetOnline(ctx, "carol", "c3")
			require.NoError(t, err)
			_, err = s.SetOffline(ctx, "carol", "c3")
			require.NoError(t, err)

			users, err := s.OnlineUsers(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob"}, users)
		})
	}
}

func TestTypingExpiresWithoutRefresh(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			if name == "nats" {
				t.Skip("the bucket TTL runs on the server clock, see TestNATSTypingBucketTTL")
			}
			ctx := context.Background()
			clock := newFakeClock()
			s := factory(t, clock)
			defer s.Close()

			assert.Equal(t, DefaultTypingTTL, s.TypingTTL())

			require.NoError(t, s.AddTyping(ctx, "C123", "bob"))
			require.NoError(t, s.AddTyping(ctx, "C123", "alice"))

			typing, err := s.ListTyping(ctx, "C123")
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob"}, typing)

			clock.Advance(3 * time.Second)
			require.NoError(t, s.AddTyping(ctx, "C123", "alice"))

			clock.Advance(3 * time.Second)
			typing, err = s.ListTyping(ctx, "C123")
			require.NoError(t, err)
			assert.Equal(t, []string{"alice"}, typing, "bob expired, alice was refreshed")

			require.NoError(t, s.RemoveTyping(ctx, "C123", "alice"))
			typing, err = s.ListTyping(ctx, "C123")
			require.NoError(t, err)
			assert.Empty(t, typing)

			require.NoError(t, s.RemoveTyping(ctx, "C123", "nobody"))
		})
	}
}

func TestRedisTypingKeyCarriesTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), WithTypingTTL(2*time.Second))
	defer s.Close()

	require.NoError(t, s.AddTyping(ctx, "C1", "bob"))
	assert.Equal(t, 2*time.Second, mr.TTL(typingKey("C1")))

	mr.FastForward(3 * time.Second)
	assert.False(t, mr.Exists(typingKey("C1")), "redis drops the idle typing set")
}

func TestMemoryClosed(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())

	_, err := s.SetOnline(context.Background(), "alice", "c1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRedisReconnectRacingDisconnectStaysOnline(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 32}))
	defer s.Close()

	const users = 200
	for i := 0; i < users; i++ {
		_, err := s.SetOnline(ctx, fmt.Sprintf("u%d", i), "old")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		user := fmt.Sprintf("u%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.SetOffline(ctx, user, "old")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.SetOnline(ctx, user, "new")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	online, err := s.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, online, users)

	for i := 0; i < users; i++ {
		user := fmt.Sprintf("u%d", i)
		ok, err := s.IsOnline(ctx, user)
		require.NoError(t, err)
		assert.True(t, ok, "%s holds a live connection", user)

		rec, err := s.Get(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, StatusOnline, rec.Status)
		assert.Equal(t, 1, rec.Connections)
	}
}

func TestRedisOfflineAfterBothConnectionsClose(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer s.Close()

	_, err := s.SetOnline(ctx, "alice", "c1")
	require.NoError(t, err)
	_, err = s.SetOnline(ctx, "alice", "c2")
	require.NoError(t, err)
	_, err = s.SetOffline(ctx, "alice", "c1")
	require.NoError(t, err)
	went, err := s.SetOffline(ctx, "alice", "c2")
	require.NoError(t, err)
	assert.True(t, went)

	ok, err := mr.SIsMember(onlineUsersKey, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "offline", mr.HGet(presenceKey("alice"), "status"))
}

func TestNATSKeysUnderEmptyBucket(t *testing.T) {
	s := dialTestNATS(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keys, err := keysUnder(ctx, s.conns, "nobody")
	require.NoError(t, err)
	assert.Empty(t, keys)

	online, err := s.IsOnline(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, online)

	users, err := s.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestNATSTypingBucketTTL(t *testing.T) {
	s := dialTestNATS(t, WithTypingTTL(time.Second))
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.AddTyping(ctx, "C123", "bob"))
	require.NoError(t, s.AddTyping(ctx, "C123", "alice"))
	require.NoError(t, s.AddTyping(ctx, "C999", "carol"))

	typing, err := s.ListTyping(ctx, "C123")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, typing)

	require.NoError(t, s.RemoveTyping(ctx, "C123", "alice"))
	require.NoError(t, s.RemoveTyping(ctx, "C123", "nobody"))
	typing, err = s.ListTyping(ctx, "C123")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, typing)

	require.Eventually(t, func() bool {
		typing, err := s.ListTyping(ctx, "C123")
		return err == nil && len(typing) == 0
	}, 10*time.Second, 100*time.Millisecond, "entries lapse with the bucket TTL")
}
