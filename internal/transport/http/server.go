package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/auth"
	"github.com/vovakirdan/flowchat-server/internal/config"
	"github.com/vovakirdan/flowchat-server/internal/metrics"
	"github.com/vovakirdan/flowchat-server/internal/service/chats"
	"github.com/vovakirdan/flowchat-server/internal/service/friends"
	"github.com/vovakirdan/flowchat-server/internal/service/statuses"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// Deps are the collaborators served over HTTP.
type Deps struct {
	Gate     *auth.Gate
	Auth     *auth.Service
	Realtime Realtime
	Chats    *chats.Service
	Friends  *friends.Service
	Statuses *statuses.Service
	Users    store.UserStore
	Metrics  *metrics.Metrics
}

// NewServer builds the HTTP server: health, metrics, the websocket endpoint
// and the REST API.
func NewServer(deps Deps, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the gin engine behind NewServer.
func NewRouter(deps Deps, cfg config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler(deps.Realtime))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Gate, deps.Realtime, cfg, logger)))

	api := router.Group("/api")
	api.Use(LoggerMiddleware(logger))

	accounts := NewAPIHandlers(deps.Auth, logger)
	api.POST("/register", accounts.Register)
	api.POST("/login", accounts.Login)

	chatHandlers := NewChatHandlers(deps.Chats, deps.Users, logger)
	protected := api.Group("")
	protected.Use(AuthMiddleware(deps.Gate, logger))
	protected.POST("/chats", chatHandlers.CreateOrGet)
	protected.POST("/chats/group", chatHandlers.CreateGroup)
	protected.GET("/chats", chatHandlers.List)
	protected.GET("/chats/:id", chatHandlers.Get)
	protected.DELETE("/chats/:id", chatHandlers.Delete)
	protected.GET("/chats/:id/messages", chatHandlers.Messages)
	protected.GET("/chats/:id/typing", chatHandlers.Typing)
	protected.DELETE("/chats/message/:id", chatHandlers.DeleteMessage)
	protected.GET("/users/:id/presence", chatHandlers.Presence)

	userHandlers := NewUserHandlers(deps.Chats, deps.Users, logger)
	protected.GET("/me", userHandlers.Me)
	protected.GET("/users/search", userHandlers.SearchUsers)
	protected.GET("/users/online", userHandlers.Online)

	friendHandlers := NewFriendsHandlers(deps.Friends, deps.Users, logger)
	protected.GET("/friends", friendHandlers.ListFriends)
	protected.POST("/friends/requests", friendHandlers.SendRequest)
	protected.GET("/friends/requests/incoming", friendHandlers.ListPendingRequests)
	protected.POST("/friends/:userId/accept", friendHandlers.AcceptRequest)
	protected.DELETE("/friends/:userId/reject", friendHandlers.RejectRequest)
	protected.DELETE("/friends/:userId", friendHandlers.Remove)
	protected.POST("/friends/:userId/block", friendHandlers.BlockUser)
	protected.DELETE("/friends/:userId/unblock", friendHandlers.UnblockUser)

	statusHandlers := NewStatusHandlers(deps.Statuses, logger)
	protected.POST("/status", statusHandlers.Create)
	protected.GET("/status", statusHandlers.Feed)
	protected.GET("/status/my", statusHandlers.Mine)
	protected.GET("/status/user/:userId", statusHandlers.ForUser)
	protected.PUT("/status/:id/view", statusHandlers.View)
	protected.DELETE("/status/:id", statusHandlers.Delete)

	return router
}

// HealthResponse reports the state of the connection layer.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
}

// healthHandler answers 503 once the hub has stopped accepting traffic.
func healthHandler(rt Realtime) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := rt.Stats()
		resp := HealthResponse{Status: "ok", Connections: stats.Connections, Sessions: stats.Sessions}
		if !stats.Running {
			resp.Status = "unavailable"
			c.JSON(stdhttp.StatusServiceUnavailable, resp)
			return
		}
		c.JSON(stdhttp.StatusOK, resp)
	}
}
