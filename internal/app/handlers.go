package app

import (
	"github.com/yungbote/chatbridge-backend/internal/handlers"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	User       *handlers.UserHandler
	Chat       *handlers.ChatHandler
	Completion *handlers.CompletionHandler
	Document   *handlers.DocumentHandler
	Memory     *handlers.MemoryHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:       handlers.NewAuthHandler(services.Auth),
		User:       handlers.NewUserHandler(services.User),
		Chat:       handlers.NewChatHandler(services.Chat),
		Completion: handlers.NewCompletionHandler(log, services.Chat),
		Document:   handlers.NewDocumentHandler(services.Document),
		Memory:     handlers.NewMemoryHandler(services.Memory),
	}
}
