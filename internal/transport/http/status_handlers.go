package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/service/statuses"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// StatusHandlers provides HTTP handlers for statuses.
type StatusHandlers struct {
	service *statuses.Service
	log     *zerolog.Logger
}

// NewStatusHandlers creates a new status handlers instance.
func NewStatusHandlers(svc *statuses.Service, logger *zerolog.Logger) *StatusHandlers {
	return &StatusHandlers{service: svc, log: logger}
}

// CreateStatusRequest is the body of POST /api/status.
type CreateStatusRequest struct {
	Content         string `json:"content"`
	Type            string `json:"type"`
	MediaURL        string `json:"mediaUrl"`
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
	Font            string `json:"font"`
}

// StatusViewResponse is one view of a status.
type StatusViewResponse struct {
	UserID   string    `json:"userId"`
	ViewedAt time.Time `json:"viewedAt"`
}

// StatusResponse is a status in API responses.
type StatusResponse struct {
	ID              string               `json:"id"`
	UserID          string               `json:"userId"`
	Content         string               `json:"content"`
	Type            string               `json:"type"`
	MediaURL        string               `json:"mediaUrl,omitempty"`
	BackgroundColor string               `json:"backgroundColor"`
	TextColor       string               `json:"textColor"`
	Font            string               `json:"font"`
	Views           []StatusViewResponse `json:"views"`
	CreatedAt       time.Time            `json:"createdAt"`
	ExpiresAt       time.Time            `json:"expiresAt"`
}

// UserStatusesResponse groups the statuses of one user.
type UserStatusesResponse struct {
	User     UserResponse     `json:"user"`
	Statuses []StatusResponse `json:"statuses"`
}

func statusToResponse(st *store.Status) StatusResponse {
	resp := StatusResponse{
		ID:              st.ID,
		UserID:          st.UserID,
		Content:         st.Content,
		Type:            string(st.Type),
		MediaURL:        st.MediaURL,
		BackgroundColor: st.BackgroundColor,
		TextColor:       st.TextColor,
		Font:            st.Font,
		Views:           make([]StatusViewResponse, 0, len(st.Views)),
		CreatedAt:       st.CreatedAt,
		ExpiresAt:       st.ExpiresAt,
	}
	for _, v := range st.Views {
		resp.Views = append(resp.Views, StatusViewResponse{UserID: v.UserID, ViewedAt: v.ViewedAt})
	}
	return resp
}

func statusesToResponse(list []*store.Status) []StatusResponse {
	out := make([]StatusResponse, 0, len(list))
	for _, st := range list {
		out = append(out, statusToResponse(st))
	}
	return out
}

func (h *StatusHandlers) respondError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, statuses.ErrContentRequired),
		errors.Is(err, statuses.ErrContentTooLong),
		errors.Is(err, statuses.ErrInvalidType),
		errors.Is(err, statuses.ErrMediaRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, statuses.ErrNotFriends), errors.Is(err, statuses.ErrNotOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, statuses.ErrStatusNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, statuses.ErrExpired):
		c.JSON(http.StatusGone, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("op", op).Msg("status request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// Create posts a status and notifies friends.
// POST /api/status
func (h *StatusHandlers) Create(c *gin.Context) {
	uid, _ := currentUserID(c)

	var req CreateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create status request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	st, err := h.service.Create(c.Request.Context(), uid, statuses.CreateParams{
		Content:         req.Content,
		Type:            store.StatusType(req.Type),
		MediaURL:        req.MediaURL,
		BackgroundColor: req.BackgroundColor,
		TextColor:       req.TextColor,
		Font:            req.Font,
	})
	if err != nil {
		h.respondError(c, err, "create_status")
		return
	}
	h.log.Info().Str("status_id", st.ID).Str("user_id", uid).Msg("status created")
	c.JSON(http.StatusCreated, statusToResponse(st))
}

// Feed lists live statuses of the caller and their friends, grouped by user.
// GET /api/status
func (h *StatusHandlers) Feed(c *gin.Context) {
	uid, _ := currentUserID(c)

	groups, err := h.service.Feed(c.Request.Context(), uid)
	if err != nil {
		h.respondError(c, err, "status_feed")
		return
	}
	response := make([]UserStatusesResponse, 0, len(groups))
	for _, g := range groups {
		response = append(response, UserStatusesResponse{
			User:     UserResponse{ID: g.User.ID, Username: g.User.Username, Email: g.User.Email},
			Statuses: statusesToResponse(g.Statuses),
		})
	}
	c.JSON(http.StatusOK, response)
}

// Mine lists the caller's live statuses.
// GET /api/status/my
func (h *StatusHandlers) Mine(c *gin.Context) {
	uid, _ := currentUserID(c)

	list, err := h.service.Mine(c.Request.Context(), uid)
	if err != nil {
		h.respondError(c, err, "my_statuses")
		return
	}
	c.JSON(http.StatusOK, statusesToResponse(list))
}

// ForUser lists a friend's live statuses.
// GET /api/status/user/:userId
func (h *StatusHandlers) ForUser(c *gin.Context) {
	uid, _ := currentUserID(c)

	list, err := h.service.ForUser(c.Request.Context(), uid, c.Param("userId"))
	if err != nil {
		h.respondError(c, err, "user_statuses")
		return
	}
	c.JSON(http.StatusOK, statusesToResponse(list))
}

// View marks a status as seen by the caller.
// PUT /api/status/:id/view
func (h *StatusHandlers) View(c *gin.Context) {
	uid, _ := currentUserID(c)

	st, err := h.service.View(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "view_status")
		return
	}
	c.JSON(http.StatusOK, statusToResponse(st))
}

// Delete removes one of the caller's statuses.
// DELETE /api/status/:id
func (h *StatusHandlers) Delete(c *gin.Context) {
	uid, _ := currentUserID(c)
	id := c.Param("id")

	if err := h.service.Delete(c.Request.Context(), uid, id); err != nil {
		h.respondError(c, err, "delete_status")
		return
	}
	h.log.Info().Str("status_id", id).Str("user_id", uid).Msg("status deleted")
	c.JSON(http.StatusOK, gin.H{"message": "status deleted"})
}
