package app

import (
	"github.com/yungbote/chatbridge-backend/internal/middleware"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
)

type Middleware struct {
	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth:      middleware.NewAuthMiddleware(log, services.Auth),
		RateLimit: middleware.NewRateLimitMiddleware(log),
	}
}
