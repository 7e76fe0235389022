package app

import (
	"strings"

	"github.com/yungbote/chatbridge-backend/internal/platform/envutil"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
)

type Config struct {
	Port           string
	AllowedOrigins []string
}

func LoadConfig(log *logger.Logger) Config {
	port := envutil.Str("PORT", "8080")

	var origins []string
	if raw := envutil.Str("ALLOWED_ORIGINS", ""); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	log.Info("Loaded config", "port", port, "allowed_origins", origins)
	return Config{
		Port:           port,
		AllowedOrigins: origins,
	}
}
