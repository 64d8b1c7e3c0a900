package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/flowchat-server/internal/store"
)

func startedHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, nil)
	hub.Start()
	t.Cleanup(hub.Shutdown)
	return hub
}

func TestHubRejectsUseBeforeStart(t *testing.T) {
	hub := NewHub(nil, nil)
	alice := NewClient("c1", "a", "alice", 4)

	assert.ErrorIs(t, hub.Register(alice), ErrHubNotRunning)
	assert.ErrorIs(t, hub.BroadcastAll(UserOnline("a"), nil), ErrHubNotRunning)
	assert.ErrorIs(t, hub.SendUser("a", UserOnline("a")), ErrHubNotRunning)

	hub.Start()
	hub.Start() // idempotent
	require.NoError(t, hub.Register(alice))
	hub.Shutdown()

	assert.ErrorIs(t, hub.BroadcastRoom("chat:x", UserOnline("a"), nil), ErrHubNotRunning)
	_, open := <-alice.Events
	assert.False(t, open, "shutdown closes client queues")
}

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	hub := startedHub(t)

	alice := NewClient("c1", "a", "alice", 8)
	bob := NewClient("c2", "b", "bob", 8)
	require.NoError(t, hub.Register(alice))
	require.NoError(t, hub.Register(bob))

	added, err := hub.Join(alice, ChatChannel("general"))
	require.NoError(t, err)
	assert.True(t, added)
	added, err = hub.Join(alice, ChatChannel("general"))
	require.NoError(t, err)
	assert.False(t, added, "joining twice is a no-op")
	_, err = hub.Join(bob, ChatChannel("general"))
	require.NoError(t, err)
	assert.Equal(t, 2, hub.ChannelSize(ChatChannel("general")))

	msg := &store.Message{ID: "m1", ChatID: "general", SenderID: "a", Content: "hi"}
	require.NoError(t, hub.BroadcastRoom(ChatChannel("general"), MessageReceived(msg, Sender{ID: "a", Username: "alice"}), nil))

	ev := mustEvent(t, bob.Events, EventMessageReceive)
	assert.Equal(t, "hi", ev.Message.Content)
	assert.Equal(t, "alice", ev.Sender.Username)
	mustEvent(t, alice.Events, EventMessageReceive)

	removed, err := hub.Leave(alice, ChatChannel("general"))
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = hub.Leave(alice, ChatChannel("ghost"))
	require.NoError(t, err)
	assert.False(t, removed, "leaving an unknown channel is a no-op")

	require.NoError(t, hub.BroadcastRoom(ChatChannel("general"), TypingChanged(Typing{ChatID: "general", UserID: "b", IsTyping: true}), bob))
	mustNoEvent(t, alice.Events)
	mustNoEvent(t, bob.Events)
}

func TestHubBroadcastAllSkipsExcept(t *testing.T) {
	hub := startedHub(t)

	alice := NewClient("c1", "a", "alice", 4)
	bob := NewClient("c2", "b", "bob", 4)
	require.NoError(t, hub.Register(alice))
	require.NoError(t, hub.Register(bob))

	require.NoError(t, hub.BroadcastAll(UserOnline("a"), alice))
	ev := mustEvent(t, bob.Events, EventUserOnline)
	assert.Equal(t, "a", ev.UserID)
	mustNoEvent(t, alice.Events)
}

func TestHubSlowConsumerDoesNotBlockOthers(t *testing.T) {
	hub := startedHub(t)

	slow := NewClient("c1", "a", "alice", 1)
	fast := NewClient("c2", "b", "bob", 8)
	for _, c := range []*Client{slow, fast} {
		require.NoError(t, hub.Register(c))
		_, err := hub.Join(c, ChatChannel("room"))
		require.NoError(t, err)
	}

	for range 3 {
		require.NoError(t, hub.BroadcastRoom(ChatChannel("room"), UserOnline("x"), nil))
	}

	assert.Len(t, slow.Events, 1, "slow consumer keeps only what fits")
	assert.Len(t, fast.Events, 3)
}

func TestHubUnregisterLeavesChannelsAndClosesQueue(t *testing.T) {
	hub := startedHub(t)

	alice := NewClient("c1", "a", "alice", 4)
	require.NoError(t, hub.Register(alice))
	_, err := hub.Join(alice, UserChannel("a"))
	require.NoError(t, err)
	_, err = hub.Join(alice, ChatChannel("c"))
	require.NoError(t, err)

	left := hub.Unregister(alice)
	assert.ElementsMatch(t, []string{UserChannel("a"), ChatChannel("c")}, left)
	assert.Equal(t, 0, hub.ChannelSize(ChatChannel("c")))
	assert.Equal(t, 0, hub.ClientCount())

	_, open := <-alice.Events
	assert.False(t, open)

	// Sending to an unregistered client must not panic on the closed queue.
	require.NoError(t, hub.Send(alice, UserOnline("a")))
	assert.Nil(t, hub.Unregister(alice))
}

func TestHubRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, nil)

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	require.Eventually(t, hub.Running, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.False(t, hub.Running())
}

func TestHubBroadcastRoomsDeliversOnce(t *testing.T) {
	hub := startedHub(t)

	alice := NewClient("c1", "a", "alice", 8)
	bob := NewClient("c2", "b", "bob", 8)
	require.NoError(t, hub.Register(alice))
	require.NoError(t, hub.Register(bob))
	for _, ch := range []string{ChatChannel("x"), ChatChannel("y")} {
		_, err := hub.Join(alice, ch)
		require.NoError(t, err)
		_, err = hub.Join(bob, ch)
		require.NoError(t, err)
	}

	channels := []string{ChatChannel("x"), ChatChannel("y"), ChatChannel("missing")}
	require.NoError(t, hub.BroadcastRooms(channels, UserOffline("z"), alice))

	mustEvent(t, bob.Events, EventUserOffline)
	mustNoEvent(t, bob.Events)
	mustNoEvent(t, alice.Events)
}
