package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/service/chats"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// UserHandlers provides HTTP handlers for user lookups.
type UserHandlers struct {
	service *chats.Service
	users   store.UserStore
	log     *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(svc *chats.Service, users store.UserStore, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		service: svc,
		users:   users,
		log:     logger,
	}
}

// OnlineResponse lists the users online right now.
type OnlineResponse struct {
	Users []string `json:"users"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Online   *bool  `json:"online,omitempty"`
}

// Me returns the authenticated user.
// GET /api/me
func (h *UserHandlers) Me(c *gin.Context) {
	uid, _ := currentUserID(c)

	user, err := h.users.GetUserByID(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to load current user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, UserResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

// Online lists every user with at least one live connection.
// GET /api/users/online
func (h *UserHandlers) Online(c *gin.Context) {
	users, err := h.service.OnlineUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list online users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, OnlineResponse{Users: users})
}

// SearchUsers handles searching for users.
// GET /api/users/search?q=query
func (h *UserHandlers) SearchUsers(c *gin.Context) {
	trimmed := strings.TrimSpace(c.Query("q"))
	if len(trimmed) < 3 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "search query must be at least 3 characters"})
		return
	}

	uid, _ := currentUserID(c)
	views, err := h.service.SearchUsers(c.Request.Context(), uid, trimmed)
	if err != nil {
		h.log.Error().Err(err).Str("query", trimmed).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserResponse, 0, len(views))
	for _, v := range views {
		online := v.Online
		response = append(response, UserResponse{
			ID:       v.User.ID,
			Username: v.User.Username,
			Email:    v.User.Email,
			Online:   &online,
		})
	}
	c.JSON(http.StatusOK, response)
}
