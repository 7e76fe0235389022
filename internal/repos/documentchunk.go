package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

type DocumentChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error)
	GetByDocumentIDs(ctx context.Context, tx *gorm.DB, docIDs []uuid.UUID) ([]*types.DocumentChunk, error)
	CandidatesByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.DocumentChunk, error)
	FullDeleteByDocumentIDs(ctx context.Context, tx *gorm.DB, docIDs []uuid.UUID) error
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	return &documentChunkRepo{db: db, log: baseLog.With("repo", "DocumentChunkRepo")}
}

func (r *documentChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.DocumentChunk{}, nil
	}

	// Keep batches small because Content is large
	const batchSize = 100

	if err := transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *documentChunkRepo) GetByDocumentIDs(ctx context.Context, tx *gorm.DB, docIDs []uuid.UUID) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DocumentChunk
	if len(docIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("document_id IN ?", docIDs).
		Order("document_id, \"index\" ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// CandidatesByUser returns the newest embedded chunks across all of the
// user's documents. Similarity scoring happens in the caller.
func (r *documentChunkRepo) CandidatesByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 1000
	}
	var results []*types.DocumentChunk
	if err := transaction.WithContext(ctx).
		Model(&types.DocumentChunk{}).
		Joins("JOIN document ON document.id = document_chunk.document_id AND document.deleted_at IS NULL").
		Where("document.user_id = ?", userID).
		Where("document_chunk.embedding IS NOT NULL").
		Order("document_chunk.created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentChunkRepo) FullDeleteByDocumentIDs(ctx context.Context, tx *gorm.DB, docIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(docIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Unscoped().
		Where("document_id IN ?", docIDs).
		Delete(&types.DocumentChunk{}).Error
}
