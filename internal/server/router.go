package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatbridge-backend/internal/handlers"
	"github.com/yungbote/chatbridge-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler       *handlers.AuthHandler
	UserHandler       *handlers.UserHandler
	ChatHandler       *handlers.ChatHandler
	CompletionHandler *handlers.CompletionHandler
	DocumentHandler   *handlers.DocumentHandler
	MemoryHandler     *handlers.MemoryHandler
	AuthMiddleware    *middleware.AuthMiddleware
	RateLimit         *middleware.RateLimitMiddleware
	AllowedOrigins    []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.POST("/register", cfg.AuthHandler.Register)
	api.POST("/login", cfg.AuthHandler.Login)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/api")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	protected.Use(cfg.RateLimit.Limit())

	// Auth
	protected.POST("/refresh", cfg.AuthHandler.Refresh)
	protected.POST("/logout", cfg.AuthHandler.Logout)

	// User
	protected.GET("/user", cfg.UserHandler.GetMe)

	// Completions
	protected.POST("/chat/completions", cfg.CompletionHandler.Complete)

	// Chats
	protected.POST("/chats", cfg.ChatHandler.Create)
	protected.GET("/chats", cfg.ChatHandler.List)
	protected.GET("/chats/:chat_id", cfg.ChatHandler.Get)
	protected.PATCH("/chats/:chat_id", cfg.ChatHandler.Update)
	protected.DELETE("/chats/:chat_id", cfg.ChatHandler.Delete)
	protected.GET("/chats/:chat_id/messages", cfg.ChatHandler.Messages)
	protected.POST("/chats/:chat_id/title", cfg.ChatHandler.GenerateTitle)

	// Documents
	protected.POST("/documents", cfg.DocumentHandler.Ingest)
	protected.GET("/documents", cfg.DocumentHandler.List)
	protected.GET("/documents/:document_id", cfg.DocumentHandler.Get)
	protected.PATCH("/documents/:document_id", cfg.DocumentHandler.Update)
	protected.DELETE("/documents/:document_id", cfg.DocumentHandler.Delete)
	protected.POST("/documents/search", cfg.DocumentHandler.Search)

	// Memories
	protected.POST("/memories", cfg.MemoryHandler.Create)
	protected.GET("/memories", cfg.MemoryHandler.List)
	protected.GET("/memories/:memory_id", cfg.MemoryHandler.Get)
	protected.PATCH("/memories/:memory_id", cfg.MemoryHandler.Update)
	protected.DELETE("/memories/:memory_id", cfg.MemoryHandler.Delete)
	protected.POST("/memories/search", cfg.MemoryHandler.Search)

	return router
}
