package friends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/flowchat-server/internal/store"
	"github.com/vovakirdan/flowchat-server/internal/store/sqlite"
)

func newService(t *testing.T) (*Service, *sqlite.SQLiteStore) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func user(t *testing.T, st *sqlite.SQLiteStore, name string) string {
	t.Helper()
	u, err := st.CreateUser(context.Background(), name, "", "hash")
	require.NoError(t, err)
	return u.ID
}

func TestRequestAcceptFlow(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	alice, bob := user(t, st, "alice"), user(t, st, "bob")

	f, err := svc.SendRequest(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, store.FriendStatusPending, f.Status)

	_, err = svc.SendRequest(ctx, alice, bob)
	assert.ErrorIs(t, err, ErrRequestAlreadyExists)

	pending, err := svc.ListPendingRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, alice, pending[0].RequesterID)

	none, err := svc.ListPendingRequests(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, none, "outgoing requests are not listed")

	assert.ErrorIs(t, svc.AcceptRequest(ctx, alice, bob), ErrRequestNotFound, "only the recipient accepts")
	require.NoError(t, svc.AcceptRequest(ctx, bob, alice))

	ok, err := svc.AreFriends(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := svc.FriendIDs(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{alice}, ids)

	_, err = svc.SendRequest(ctx, bob, alice)
	assert.ErrorIs(t, err, ErrAlreadyFriends)

	require.NoError(t, svc.Remove(ctx, bob, alice))
	ok, err = svc.AreFriends(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCrossedRequestsBecomeFriendship(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	alice, bob := user(t, st, "alice"), user(t, st, "bob")

	_, err := svc.SendRequest(ctx, alice, bob)
	require.NoError(t, err)
	f, err := svc.SendRequest(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, store.FriendStatusAccepted, f.Status)

	ok, err := svc.AreFriends(ctx, bob, alice)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRejectAndErrors(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	alice, bob := user(t, st, "alice"), user(t, st, "bob")

	_, err := svc.SendRequest(ctx, alice, alice)
	assert.ErrorIs(t, err, ErrCannotFriendSelf)
	_, err = svc.SendRequest(ctx, alice, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.SendRequest(ctx, alice, bob)
	require.NoError(t, err)
	require.NoError(t, svc.RejectRequest(ctx, bob, alice))
	assert.ErrorIs(t, svc.RejectRequest(ctx, bob, alice), ErrRequestNotFound)

	ok, err := svc.AreFriends(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlockAndUnblock(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	alice, bob := user(t, st, "alice"), user(t, st, "bob")

	_, err := svc.SendRequest(ctx, bob, alice)
	require.NoError(t, err)
	require.NoError(t, svc.BlockUser(ctx, alice, bob))

	_, err = svc.SendRequest(ctx, bob, alice)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.ErrorIs(t, svc.UnblockUser(ctx, bob, alice), ErrNotBlocked, "only the blocker unblocks")

	require.NoError(t, svc.UnblockUser(ctx, alice, bob))
	_, err = svc.SendRequest(ctx, bob, alice)
	require.NoError(t, err)
}
