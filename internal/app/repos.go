package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/repos"
)

type Repos struct {
	User          repos.UserRepo
	UserToken     repos.UserTokenRepo
	Chat          repos.ChatRepo
	Message       repos.MessageRepo
	Document      repos.DocumentRepo
	DocumentChunk repos.DocumentChunkRepo
	Memory        repos.MemoryRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:          repos.NewUserRepo(db, log),
		UserToken:     repos.NewUserTokenRepo(db, log),
		Chat:          repos.NewChatRepo(db, log),
		Message:       repos.NewMessageRepo(db, log),
		Document:      repos.NewDocumentRepo(db, log),
		DocumentChunk: repos.NewDocumentChunkRepo(db, log),
		Memory:        repos.NewMemoryRepo(db, log),
	}
}
