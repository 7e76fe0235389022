package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/ai"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/platform/websearch"
	"github.com/yungbote/chatbridge-backend/internal/services"
)

type Services struct {
	Auth      services.AuthService
	User      services.UserService
	Chat      services.ChatService
	Document  services.DocumentService
	Memory    services.MemoryService
	Assembler services.ContextAssembler

	AIRouter  *ai.Router
	WebSearch *websearch.Client
}

// wireServices builds the model router first so every downstream service
// shares the same provider clients. Providers whose API keys are absent are
// skipped with a warning; requests naming their models fail at routing time.
func wireServices(db *gorm.DB, log *logger.Logger, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	router := ai.NewRouter(log)
	var embedder ai.Embedder

	anthropic, err := ai.NewAnthropicClient(log)
	if err != nil {
		log.Warn("Anthropic provider disabled", "error", err)
	} else {
		if err := router.Register("claude", anthropic); err != nil {
			return Services{}, fmt.Errorf("register anthropic adapter: %w", err)
		}
	}

	google, err := ai.NewGoogleClient(log)
	if err != nil {
		log.Warn("Google provider disabled", "error", err)
	} else {
		if err := router.Register("gemini", google); err != nil {
			return Services{}, fmt.Errorf("register google adapter: %w", err)
		}
		if err := router.Register("gemma", google); err != nil {
			return Services{}, fmt.Errorf("register gemma adapter: %w", err)
		}
		embedder = google
	}
	if embedder == nil {
		log.Warn("No embedder configured, document and memory search will be degraded")
	}

	web := websearch.New(log)
	if !web.Configured() {
		log.Warn("Web search disabled, grounding requests will skip web results")
	}

	authService, err := services.NewAuthService(db, log, reposet.User, reposet.UserToken)
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}
	userService := services.NewUserService(db, log, reposet.User)
	documentService := services.NewDocumentService(db, log, reposet.Document, reposet.DocumentChunk, embedder)
	memoryService := services.NewMemoryService(db, log, reposet.Memory, embedder, router)
	assembler := services.NewContextAssembler(log, memoryService, documentService, web)
	chatService := services.NewChatService(db, log, reposet.Chat, reposet.Message, router, assembler, memoryService)

	return Services{
		Auth:      authService,
		User:      userService,
		Chat:      chatService,
		Document:  documentService,
		Memory:    memoryService,
		Assembler: assembler,
		AIRouter:  router,
		WebSearch: web,
	}, nil
}
