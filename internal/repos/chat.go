package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

type ChatRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chats []*types.Chat) ([]*types.Chat, error)
	GetByIDForUser(ctx context.Context, tx *gorm.DB, chatID, userID uuid.UUID) (*types.Chat, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, includeArchived bool, limit, offset int) ([]*types.Chat, error)
	Save(ctx context.Context, tx *gorm.DB, chat *types.Chat) error
	Touch(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error
	Delete(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error
}

type chatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatRepo(db *gorm.DB, baseLog *logger.Logger) ChatRepo {
	return &chatRepo{db: db, log: baseLog.With("repo", "ChatRepo")}
}

func (cr *chatRepo) Create(ctx context.Context, tx *gorm.DB, chats []*types.Chat) ([]*types.Chat, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	if len(chats) == 0 {
		return []*types.Chat{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

func (cr *chatRepo) GetByIDForUser(ctx context.Context, tx *gorm.DB, chatID, userID uuid.UUID) (*types.Chat, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var chat types.Chat
	if err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

func (cr *chatRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, includeArchived bool, limit, offset int) ([]*types.Chat, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ?", userID)
	if !includeArchived {
		q = q.Where("archived = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var results []*types.Chat
	if err := q.Order("updated_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (cr *chatRepo) Save(ctx context.Context, tx *gorm.DB, chat *types.Chat) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	return transaction.WithContext(ctx).Save(chat).Error
}

func (cr *chatRepo) Touch(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Chat{}).
		Where("id = ?", chatID).
		Update("updated_at", time.Now().UTC()).Error
}

func (cr *chatRepo) Delete(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", chatID).
		Delete(&types.Chat{}).Error
}
