package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatbridge-backend/internal/server"
)

func wireRouter(cfg Config, handlers Handlers, middleware Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthHandler:       handlers.Auth,
		UserHandler:       handlers.User,
		ChatHandler:       handlers.Chat,
		CompletionHandler: handlers.Completion,
		DocumentHandler:   handlers.Document,
		MemoryHandler:     handlers.Memory,
		AuthMiddleware:    middleware.Auth,
		RateLimit:         middleware.RateLimit,
		AllowedOrigins:    cfg.AllowedOrigins,
	})
}
