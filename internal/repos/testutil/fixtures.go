package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/types"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "pw",
		FirstName: "A",
		LastName:  "B",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedChat(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, title string) *types.Chat {
	tb.Helper()
	c := &types.Chat{
		ID:     uuid.New(),
		UserID: userID,
		Title:  title,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chat: %v", err)
	}
	return c
}

func SeedMessage(tb testing.TB, ctx context.Context, tx *gorm.DB, chatID uuid.UUID, role, content string) *types.Message {
	tb.Helper()
	m := &types.Message{
		ID:      uuid.New(),
		ChatID:  chatID,
		Role:    role,
		Content: content,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed message: %v", err)
	}
	return m
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, title, content string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		SizeBytes: len(content),
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedDocumentChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, index int, content string, embedding []float32) *types.DocumentChunk {
	tb.Helper()
	c := &types.DocumentChunk{
		ID:         uuid.New(),
		DocumentID: docID,
		Index:      index,
		Content:    content,
		Embedding:  types.EncodeEmbedding(embedding),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed document chunk: %v", err)
	}
	return c
}

func SeedMemory(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, kind, content string, importance float64, embedding []float32) *types.Memory {
	tb.Helper()
	m := &types.Memory{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		Content:    content,
		Importance: importance,
		Embedding:  types.EncodeEmbedding(embedding),
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed memory: %v", err)
	}
	return m
}
