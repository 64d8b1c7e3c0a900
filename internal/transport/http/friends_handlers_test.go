package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// befriend makes two registered users friends through the API.
func (s *testServer) befriend(t *testing.T, fromToken, toID, toToken, fromID string) {
	t.Helper()
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/friends/requests", fromToken, SendFriendRequestRequest{UserID: toID}, nil))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/friends/"+fromID+"/accept", toToken, nil, nil))
}

func TestFriendRequestFlow(t *testing.T) {
	s := startTestServer(t, testConfig())
	aliceID, aliceToken := s.register(t, "alice")
	bobID, bobToken := s.register(t, "bob")

	var sent FriendResponse
	status := s.do(t, http.MethodPost, "/api/friends/requests", aliceToken, SendFriendRequestRequest{UserID: bobID}, &sent)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", sent.Status)
	assert.Equal(t, aliceID, sent.RequesterID)
	assert.Equal(t, UserResponse{ID: bobID, Username: "bob", Email: "bob@example.com"}, sent.Friend)

	status = s.do(t, http.MethodPost, "/api/friends/requests", aliceToken, SendFriendRequestRequest{UserID: bobID}, nil)
	assert.Equal(t, http.StatusConflict, status)

	var incoming []FriendResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/friends/requests/incoming", bobToken, nil, &incoming))
	require.Len(t, incoming, 1)
	assert.Equal(t, aliceID, incoming[0].Friend.ID)
	assert.Equal(t, "alice", incoming[0].Friend.Username)

	status = s.do(t, http.MethodPost, "/api/friends/"+aliceID+"/accept", aliceToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status, "the requester cannot accept")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/friends/"+aliceID+"/accept", bobToken, nil, nil))

	var list []FriendResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/friends", aliceToken, nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "accepted", list[0].Status)
	assert.Equal(t, bobID, list[0].Friend.ID)

	status = s.do(t, http.MethodPost, "/api/friends/requests", bobToken, SendFriendRequestRequest{UserID: aliceID}, nil)
	assert.Equal(t, http.StatusConflict, status)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/friends/"+aliceID, bobToken, nil, nil))
	list = nil
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/friends", aliceToken, nil, &list))
	assert.Empty(t, list)
}

func TestFriendRequestErrors(t *testing.T) {
	s := startTestServer(t, testConfig())
	aliceID, aliceToken := s.register(t, "alice")
	bobID, bobToken := s.register(t, "bob")

	status := s.do(t, http.MethodPost, "/api/friends/requests", aliceToken, SendFriendRequestRequest{UserID: aliceID}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = s.do(t, http.MethodPost, "/api/friends/requests", aliceToken, SendFriendRequestRequest{UserID: "ghost"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status = s.do(t, http.MethodPost, "/api/friends/requests", aliceToken, map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/friends/requests", aliceToken, SendFriendRequestRequest{UserID: bobID}, nil))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/friends/"+aliceID+"/reject", bobToken, nil, nil))

	status = s.do(t, http.MethodDelete, "/api/friends/"+aliceID+"/reject", bobToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBlockAndUnblock(t *testing.T) {
	s := startTestServer(t, testConfig())
	aliceID, aliceToken := s.register(t, "alice")
	bobID, bobToken := s.register(t, "bob")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/friends/"+bobID+"/block", aliceToken, nil, nil))

	status := s.do(t, http.MethodPost, "/api/friends/requests", bobToken, SendFriendRequestRequest{UserID: aliceID}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = s.do(t, http.MethodDelete, "/api/friends/"+aliceID+"/unblock", bobToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, status, "only the blocker can unblock")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/friends/"+bobID+"/unblock", aliceToken, nil, nil))

	status = s.do(t, http.MethodPost, "/api/friends/requests", bobToken, SendFriendRequestRequest{UserID: aliceID}, nil)
	assert.Equal(t, http.StatusCreated, status)
}
