package routes

import (
	"github.com/damoang/angple-chat/internal/handler"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers bundles every HTTP handler mounted by Setup
type Handlers struct {
	Chat   *handler.ChatHandler
	User   *handler.UserHandler
	Status *handler.StatusHandler
	WS     *handler.WSHandler
}

// Setup configures all API routes. redisClient may be nil, which disables rate limiting.
func Setup(router *gin.Engine, h Handlers, jwtManager *jwt.Manager, redisClient *redis.Client) {
	auth := middleware.JWTAuth(jwtManager)

	// Live channel; browsers authenticate the upgrade with the auth cookie
	router.GET("/ws", auth, h.WS.Connect)

	api := router.Group("/api/v1", auth, middleware.RateLimit(redisClient, middleware.DefaultRateLimitConfig()))

	conversations := api.Group("/conversations")
	{
		conversations.GET("", h.Chat.ListConversations)
		conversations.GET("/:conversationId/messages", h.Chat.GetMessages)
	}

	messages := api.Group("/messages")
	{
		messages.POST("", h.Chat.SendMessage)
		messages.PUT("/read", h.Chat.MarkRead)
		messages.DELETE("/:messageId", h.Chat.DeleteMessage)
	}

	users := api.Group("/users")
	{
		users.PUT("/me", h.User.UpdateProfile)
		users.GET("/:userId/status", h.User.GetStatus)
	}

	statuses := api.Group("/statuses")
	{
		statuses.POST("", h.Status.Create)
		statuses.GET("", h.Status.List)
		statuses.PUT("/:statusId/view", h.Status.View)
		statuses.DELETE("/:statusId", h.Status.Delete)
	}
}
