package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

type MessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, messages []*types.Message) ([]*types.Message, error)
	ListByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, limit, offset int) ([]*types.Message, error)
	LatestByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, limit int) ([]*types.Message, error)
	CountByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (int64, error)
	DeleteByChatIDs(ctx context.Context, tx *gorm.DB, chatIDs []uuid.UUID) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (mr *messageRepo) Create(ctx context.Context, tx *gorm.DB, messages []*types.Message) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	if len(messages) == 0 {
		return []*types.Message{}, nil
	}
	const batchSize = 100
	if err := transaction.WithContext(ctx).CreateInBatches(messages, batchSize).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (mr *messageRepo) ListByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, limit, offset int) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	q := transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var results []*types.Message
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// LatestByChat returns the newest limit messages in chronological order.
func (mr *messageRepo) LatestByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, limit int) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var results []*types.Message
	q := transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func (mr *messageRepo) CountByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("chat_id = ?", chatID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (mr *messageRepo) DeleteByChatIDs(ctx context.Context, tx *gorm.DB, chatIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	if len(chatIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("chat_id IN ?", chatIDs).
		Delete(&types.Message{}).Error
}
