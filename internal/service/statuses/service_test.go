package statuses

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/service/friends"
	"github.com/vovakirdan/flowchat-server/internal/store"
	"github.com/vovakirdan/flowchat-server/internal/store/sqlite"
)

type recordingNotifier struct {
	mu     sync.Mutex
	users  [][]string
	events []*core.Event
}

func (n *recordingNotifier) Notify(userIDs []string, ev *core.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userIDs)
	n.events = append(n.events, ev)
	return nil
}

type fixture struct {
	svc      *Service
	friends  *friends.Service
	store    *sqlite.SQLiteStore
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		friends:  friends.New(st),
		store:    st,
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = New(st, f.friends, f.notifier, nil, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.friends.SendRequest(ctx, a, b)
	require.NoError(t, err)
	require.NoError(t, f.friends.AcceptRequest(ctx, b, a))
}

func TestCreateValidatesAndDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	_, err := f.svc.Create(ctx, alice, CreateParams{Type: store.StatusTypeText})
	assert.ErrorIs(t, err, ErrContentRequired)
	_, err = f.svc.Create(ctx, alice, CreateParams{Content: "x", Type: "gif"})
	assert.ErrorIs(t, err, ErrInvalidType)
	_, err = f.svc.Create(ctx, alice, CreateParams{Content: "x", Type: store.StatusTypeImage})
	assert.ErrorIs(t, err, ErrMediaRequired)

	st, err := f.svc.Create(ctx, alice, CreateParams{Content: "hello", Type: store.StatusTypeText})
	require.NoError(t, err)
	assert.Equal(t, "#25d366", st.BackgroundColor)
	assert.Equal(t, "#ffffff", st.TextColor)
	assert.Equal(t, "Inter", st.Font)
	assert.Equal(t, f.now.Add(24*time.Hour), st.ExpiresAt)
	assert.Empty(t, f.notifier.events, "no friends, no fan-out")
}

func TestCreateFansOutToFriendsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol, dave := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol"), f.user(t, "dave")
	f.befriend(t, alice, bob)
	f.befriend(t, carol, alice)
	_, err := f.friends.SendRequest(ctx, alice, dave)
	require.NoError(t, err)

	st, err := f.svc.Create(ctx, alice, CreateParams{Content: "sunny", Type: store.StatusTypeText})
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 1)
	ev := f.notifier.events[0]
	assert.Equal(t, core.EventStatusNew, ev.Kind)
	assert.Equal(t, st.ID, ev.Status.ID)
	assert.Equal(t, core.Sender{ID: alice, Username: "alice", Email: "alice@example.com"}, *ev.Sender)
	assert.ElementsMatch(t, []string{bob, carol}, f.notifier.users[0])
}

func TestFeedGroupsByUserLatestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, eve := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "eve")
	f.befriend(t, alice, bob)

	_, err := f.svc.Create(ctx, alice, CreateParams{Content: "a1", Type: store.StatusTypeText})
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = f.svc.Create(ctx, bob, CreateParams{Content: "b1", Type: store.StatusTypeText})
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = f.svc.Create(ctx, bob, CreateParams{Content: "b2", Type: store.StatusTypeText})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, eve, CreateParams{Content: "stranger", Type: store.StatusTypeText})
	require.NoError(t, err)

	feed, err := f.svc.Feed(ctx, alice)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "bob", feed[0].User.Username)
	require.Len(t, feed[0].Statuses, 2)
	assert.Equal(t, "b2", feed[0].Statuses[0].Content)
	assert.Equal(t, "alice", feed[1].User.Username)

	f.now = f.now.Add(25 * time.Hour)
	feed, err = f.svc.Feed(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, feed, "expired statuses drop out")
}

func TestForUserRequiresFriendship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, eve := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "eve")
	f.befriend(t, alice, bob)

	_, err := f.svc.Create(ctx, alice, CreateParams{Content: "hi", Type: store.StatusTypeText})
	require.NoError(t, err)

	list, err := f.svc.ForUser(ctx, bob, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.ForUser(ctx, alice, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ForUser(ctx, eve, alice)
	assert.ErrorIs(t, err, ErrNotFriends)
}

func TestViewNotifiesAuthorOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	st, err := f.svc.Create(ctx, alice, CreateParams{Content: "look", Type: store.StatusTypeText})
	require.NoError(t, err)

	got, err := f.svc.View(ctx, alice, st.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Views, "own views are not recorded")

	got, err = f.svc.View(ctx, bob, st.ID)
	require.NoError(t, err)
	require.Len(t, got.Views, 1)
	_, err = f.svc.View(ctx, bob, st.ID)
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 1)
	ev := f.notifier.events[0]
	assert.Equal(t, core.EventStatusViewed, ev.Kind)
	assert.Equal(t, []string{alice}, f.notifier.users[0])
	assert.Equal(t, "bob", ev.StatusView.Viewer.Username)

	_, err = f.svc.View(ctx, bob, "missing")
	assert.ErrorIs(t, err, ErrStatusNotFound)

	f.now = f.now.Add(Lifetime + time.Second)
	_, err = f.svc.View(ctx, bob, st.ID)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestDeleteAndSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	st, err := f.svc.Create(ctx, alice, CreateParams{Content: "mine", Type: store.StatusTypeText})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Delete(ctx, bob, st.ID), ErrNotOwner)
	require.NoError(t, f.svc.Delete(ctx, alice, st.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, alice, st.ID), ErrStatusNotFound)

	_, err = f.svc.Create(ctx, alice, CreateParams{Content: "old", Type: store.StatusTypeText})
	require.NoError(t, err)
	f.now = f.now.Add(Lifetime + time.Minute)
	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
