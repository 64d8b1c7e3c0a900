package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/service/friends"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// FriendsHandlers provides HTTP handlers for friend management endpoints.
type FriendsHandlers struct {
	service *friends.Service
	users   store.UserStore
	log     *zerolog.Logger
}

// NewFriendsHandlers creates a new friends handlers instance.
func NewFriendsHandlers(svc *friends.Service, users store.UserStore, logger *zerolog.Logger) *FriendsHandlers {
	return &FriendsHandlers{
		service: svc,
		users:   users,
		log:     logger,
	}
}

// SendFriendRequestRequest represents the request body for sending a friend request.
type SendFriendRequestRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// FriendResponse represents a friendship in API responses. Friend is the
// other user from the caller's point of view.
type FriendResponse struct {
	RequesterID string       `json:"requesterId"`
	RecipientID string       `json:"recipientId"`
	Status      string       `json:"status"`
	Friend      UserResponse `json:"friend"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func (h *FriendsHandlers) friendToResponse(c *gin.Context, f *store.Friend, currentUserID string) FriendResponse {
	resp := FriendResponse{
		RequesterID: f.RequesterID,
		RecipientID: f.RecipientID,
		Status:      string(f.Status),
		Friend:      UserResponse{ID: f.Other(currentUserID)},
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
	if user, err := h.users.GetUserByID(c.Request.Context(), resp.Friend.ID); err == nil {
		resp.Friend.Username = user.Username
		resp.Friend.Email = user.Email
	}
	return resp
}

func (h *FriendsHandlers) respondError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, friends.ErrCannotFriendSelf):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, friends.ErrAlreadyFriends), errors.Is(err, friends.ErrRequestAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, friends.ErrBlocked):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, friends.ErrUserNotFound), errors.Is(err, friends.ErrRequestNotFound), errors.Is(err, friends.ErrNotBlocked):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("op", op).Msg("friend request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func (h *FriendsHandlers) list(c *gin.Context, uid string, list []*store.Friend) {
	response := make([]FriendResponse, 0, len(list))
	for _, f := range list {
		response = append(response, h.friendToResponse(c, f, uid))
	}
	c.JSON(http.StatusOK, response)
}

// SendRequest handles sending a friend request.
// POST /api/friends/requests
func (h *FriendsHandlers) SendRequest(c *gin.Context) {
	uid, _ := currentUserID(c)

	var req SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send friend request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	friend, err := h.service.SendRequest(c.Request.Context(), uid, req.UserID)
	if err != nil {
		h.respondError(c, err, "send_request")
		return
	}

	h.log.Info().Str("from_user_id", uid).Str("to_user_id", req.UserID).Str("status", string(friend.Status)).Msg("friend request sent")
	c.JSON(http.StatusCreated, h.friendToResponse(c, friend, uid))
}

// ListFriends handles listing accepted friends.
// GET /api/friends
func (h *FriendsHandlers) ListFriends(c *gin.Context) {
	uid, _ := currentUserID(c)

	list, err := h.service.ListFriends(c.Request.Context(), uid)
	if err != nil {
		h.respondError(c, err, "list_friends")
		return
	}
	h.list(c, uid, list)
}

// ListPendingRequests handles listing incoming pending friend requests.
// GET /api/friends/requests/incoming
func (h *FriendsHandlers) ListPendingRequests(c *gin.Context) {
	uid, _ := currentUserID(c)

	list, err := h.service.ListPendingRequests(c.Request.Context(), uid)
	if err != nil {
		h.respondError(c, err, "list_pending")
		return
	}
	h.list(c, uid, list)
}

// AcceptRequest handles accepting a friend request.
// POST /api/friends/:userId/accept
func (h *FriendsHandlers) AcceptRequest(c *gin.Context) {
	h.act(c, "accept_request", "friend request accepted", h.service.AcceptRequest)
}

// RejectRequest handles rejecting a friend request.
// DELETE /api/friends/:userId/reject
func (h *FriendsHandlers) RejectRequest(c *gin.Context) {
	h.act(c, "reject_request", "friend request rejected", h.service.RejectRequest)
}

// Remove ends a friendship.
// DELETE /api/friends/:userId
func (h *FriendsHandlers) Remove(c *gin.Context) {
	h.act(c, "remove_friend", "friend removed", h.service.Remove)
}

// BlockUser handles blocking a user.
// POST /api/friends/:userId/block
func (h *FriendsHandlers) BlockUser(c *gin.Context) {
	h.act(c, "block_user", "user blocked", h.service.BlockUser)
}

// UnblockUser handles unblocking a user.
// DELETE /api/friends/:userId/unblock
func (h *FriendsHandlers) UnblockUser(c *gin.Context) {
	h.act(c, "unblock_user", "user unblocked", h.service.UnblockUser)
}

type friendAction func(ctx context.Context, userID, otherID string) error

func (h *FriendsHandlers) act(c *gin.Context, op, done string, action friendAction) {
	uid, _ := currentUserID(c)
	other := c.Param("userId")

	if err := action(c.Request.Context(), uid, other); err != nil {
		h.respondError(c, err, op)
		return
	}
	h.log.Info().Str("user_id", uid).Str("other_user_id", other).Msg(done)
	c.JSON(http.StatusOK, gin.H{"message": done})
}
