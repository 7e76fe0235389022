package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

// MemoryFilter narrows memory queries. Zero values mean no filtering.
type MemoryFilter struct {
	Kind   string
	ChatID *uuid.UUID
}

type MemoryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, memories []*types.Memory) ([]*types.Memory, error)
	GetByIDForUser(ctx context.Context, tx *gorm.DB, memoryID, userID uuid.UUID) (*types.Memory, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, filter MemoryFilter, limit, offset int) ([]*types.Memory, error)
	CandidatesByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, filter MemoryFilter, limit int) ([]*types.Memory, error)
	Save(ctx context.Context, tx *gorm.DB, memory *types.Memory) error
	Delete(ctx context.Context, tx *gorm.DB, memoryID uuid.UUID) error
	DetachChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error
}

type memoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemoryRepo(db *gorm.DB, baseLog *logger.Logger) MemoryRepo {
	return &memoryRepo{db: db, log: baseLog.With("repo", "MemoryRepo")}
}

func (mr *memoryRepo) Create(ctx context.Context, tx *gorm.DB, memories []*types.Memory) ([]*types.Memory, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	if len(memories) == 0 {
		return []*types.Memory{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&memories).Error; err != nil {
		return nil, err
	}
	return memories, nil
}

func (mr *memoryRepo) GetByIDForUser(ctx context.Context, tx *gorm.DB, memoryID, userID uuid.UUID) (*types.Memory, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var memory types.Memory
	if err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", memoryID, userID).
		First(&memory).Error; err != nil {
		return nil, err
	}
	return &memory, nil
}

func (mr *memoryRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, filter MemoryFilter, limit, offset int) ([]*types.Memory, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ?", userID)
	q = applyMemoryFilter(q, filter)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var results []*types.Memory
	if err := q.Order("importance DESC, created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// CandidatesByUser returns embedded memories for similarity scoring in
// the caller.
func (mr *memoryRepo) CandidatesByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, filter MemoryFilter, limit int) ([]*types.Memory, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	if limit <= 0 {
		limit = 1000
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("embedding IS NOT NULL")
	q = applyMemoryFilter(q, filter)
	var results []*types.Memory
	if err := q.Order("created_at DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (mr *memoryRepo) Save(ctx context.Context, tx *gorm.DB, memory *types.Memory) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	return transaction.WithContext(ctx).Save(memory).Error
}

func (mr *memoryRepo) Delete(ctx context.Context, tx *gorm.DB, memoryID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", memoryID).
		Delete(&types.Memory{}).Error
}

// DetachChat clears chat_id on memories pointing at a chat that is being
// deleted. The memories themselves survive.
func (mr *memoryRepo) DetachChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Memory{}).
		Where("chat_id = ?", chatID).
		Update("chat_id", nil).Error
}

func applyMemoryFilter(q *gorm.DB, filter MemoryFilter) *gorm.DB {
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.ChatID != nil {
		q = q.Where("chat_id = ?", *filter.ChatID)
	}
	return q
}
