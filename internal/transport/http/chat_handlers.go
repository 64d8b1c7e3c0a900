package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/proto"
	"github.com/vovakirdan/flowchat-server/internal/service/chats"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// ChatHandlers provides HTTP handlers for chat management endpoints.
type ChatHandlers struct {
	service *chats.Service
	store   store.UserStore
	log     *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(svc *chats.Service, users store.UserStore, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		service: svc,
		store:   users,
		log:     logger,
	}
}

// CreateChatRequest asks for the one-to-one chat with another user.
type CreateChatRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// CreateGroupRequest represents the group creation body.
type CreateGroupRequest struct {
	GroupName    string   `json:"groupName" binding:"required"`
	Participants []string `json:"participants" binding:"required"`
}

// DeleteMessageRequest is the optional body of a message deletion.
type DeleteMessageRequest struct {
	DeleteForEveryone bool `json:"deleteForEveryone"`
}

// TypingResponse lists the users typing in a chat.
type TypingResponse struct {
	ChatID string   `json:"chatId"`
	Users  []string `json:"users"`
}

// respondError maps chat service errors onto HTTP statuses.
func (h *ChatHandlers) respondError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, chats.ErrCannotChatSelf),
		errors.Is(err, chats.ErrGroupTooSmall),
		errors.Is(err, chats.ErrGroupNameRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, chats.ErrUserNotFound), errors.Is(err, chats.ErrChatNotFound), errors.Is(err, chats.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, chats.ErrNotParticipant), errors.Is(err, chats.ErrNotSender):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("op", op).Msg("chat request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// CreateOrGet handles one-to-one chat creation.
// POST /api/chats
func (h *ChatHandlers) CreateOrGet(c *gin.Context) {
	uid, _ := currentUserID(c)

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create chat request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	chat, created, err := h.service.CreateDirect(c.Request.Context(), uid, req.UserID)
	if err != nil {
		h.respondError(c, err, "create_chat")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.log.Info().Str("chat_id", chat.ID).Str("user_id", uid).Msg("chat created")
	}
	c.JSON(status, chatToProto(chat, nil))
}

// CreateGroup handles group chat creation.
// POST /api/chats/group
func (h *ChatHandlers) CreateGroup(c *gin.Context) {
	uid, _ := currentUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	chat, err := h.service.CreateGroup(c.Request.Context(), uid, req.GroupName, req.Participants)
	if err != nil {
		h.respondError(c, err, "create_group")
		return
	}

	h.log.Info().Str("chat_id", chat.ID).Str("admin_id", uid).Int("participants", len(chat.Participants)).Msg("group created")
	c.JSON(http.StatusCreated, chatToProto(chat, nil))
}

// List handles listing the user's chats.
// GET /api/chats
func (h *ChatHandlers) List(c *gin.Context) {
	uid, _ := currentUserID(c)

	views, err := h.service.List(c.Request.Context(), uid)
	if err != nil {
		h.respondError(c, err, "list_chats")
		return
	}

	response := make([]proto.Chat, 0, len(views))
	for _, v := range views {
		response = append(response, chatToProto(v.Chat, v.Online))
	}
	c.JSON(http.StatusOK, response)
}

// Get handles fetching a single chat.
// GET /api/chats/:id
func (h *ChatHandlers) Get(c *gin.Context) {
	uid, _ := currentUserID(c)

	view, err := h.service.Get(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "get_chat")
		return
	}
	c.JSON(http.StatusOK, chatToProto(view.Chat, view.Online))
}

// Delete handles chat deletion by a participant.
// DELETE /api/chats/:id
func (h *ChatHandlers) Delete(c *gin.Context) {
	uid, _ := currentUserID(c)
	chatID := c.Param("id")

	if err := h.service.DeleteChat(c.Request.Context(), uid, chatID); err != nil {
		h.respondError(c, err, "delete_chat")
		return
	}
	h.log.Info().Str("chat_id", chatID).Str("user_id", uid).Msg("chat deleted")
	c.JSON(http.StatusOK, gin.H{"message": "chat deleted"})
}

// DeleteMessage deletes a message for everyone or hides it for the caller.
// DELETE /api/chats/message/:id
func (h *ChatHandlers) DeleteMessage(c *gin.Context) {
	uid, _ := currentUserID(c)
	messageID := c.Param("id")

	var req DeleteMessageRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid delete message request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	if err := h.service.DeleteMessage(c.Request.Context(), uid, messageID, req.DeleteForEveryone); err != nil {
		h.respondError(c, err, "delete_message")
		return
	}
	h.log.Info().Str("message_id", messageID).Str("user_id", uid).Bool("for_everyone", req.DeleteForEveryone).Msg("message deleted")
	c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}

// Messages handles history paging. Query: limit, before (RFC 3339).
// GET /api/chats/:id/messages
func (h *ChatHandlers) Messages(c *gin.Context) {
	uid, _ := currentUserID(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		before = &t
	}

	msgs, err := h.service.Messages(c.Request.Context(), uid, c.Param("id"), limit, before)
	if err != nil {
		h.respondError(c, err, "list_messages")
		return
	}

	senders := make(map[string]core.Sender)
	response := make([]proto.Message, 0, len(msgs))
	for _, msg := range msgs {
		sender, ok := senders[msg.SenderID]
		if !ok {
			sender = core.Sender{ID: msg.SenderID}
			if u, err := h.store.GetUserByID(c.Request.Context(), msg.SenderID); err == nil {
				sender.Username = u.Username
				sender.Email = u.Email
			}
			senders[msg.SenderID] = sender
		}
		response = append(response, messageToProto(msg, sender))
	}
	c.JSON(http.StatusOK, response)
}

// Typing lists who is typing in a chat.
// GET /api/chats/:id/typing
func (h *ChatHandlers) Typing(c *gin.Context) {
	uid, _ := currentUserID(c)
	chatID := c.Param("id")

	users, err := h.service.Typing(c.Request.Context(), uid, chatID)
	if err != nil {
		h.respondError(c, err, "list_typing")
		return
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, TypingResponse{ChatID: chatID, Users: users})
}

// Presence returns a user's presence record.
// GET /api/users/:id/presence
func (h *ChatHandlers) Presence(c *gin.Context) {
	rec, err := h.service.Presence(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "get_presence")
		return
	}
	c.JSON(http.StatusOK, rec)
}
