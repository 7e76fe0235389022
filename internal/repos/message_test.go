package repos

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatbridge-backend/internal/repos/testutil"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

func TestMessageRepo(t *testing.T) {
	db := testutil.DB(t)
	repo := NewMessageRepo(db, testutil.Logger(t))
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, db, "messagerepo@example.com")
	chat := testutil.SeedChat(t, ctx, db, user.ID, "chat")

	base := time.Now().UTC().Add(-time.Minute)
	var messages []*types.Message
	for i := 0; i < 5; i++ {
		messages = append(messages, &types.Message{
			ID:        uuid.New(),
			ChatID:    chat.ID,
			Role:      types.MessageRoleUser,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	if _, err := repo.Create(ctx, nil, messages); err != nil {
		t.Fatalf("Create: %v", err)
	}

	listed, err := repo.ListByChat(ctx, nil, chat.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListByChat: %v", err)
	}
	if len(listed) != 5 {
		t.Fatalf("ListByChat: expected 5 messages, got %d", len(listed))
	}
	if listed[0].Content != "message 0" || listed[4].Content != "message 4" {
		t.Fatalf("ListByChat: not in chronological order: %q .. %q", listed[0].Content, listed[4].Content)
	}

	latest, err := repo.LatestByChat(ctx, nil, chat.ID, 3)
	if err != nil {
		t.Fatalf("LatestByChat: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("LatestByChat: expected 3 messages, got %d", len(latest))
	}
	// Newest window, oldest first.
	if latest[0].Content != "message 2" || latest[2].Content != "message 4" {
		t.Fatalf("LatestByChat: unexpected window: %q .. %q", latest[0].Content, latest[2].Content)
	}

	count, err := repo.CountByChat(ctx, nil, chat.ID)
	if err != nil {
		t.Fatalf("CountByChat: %v", err)
	}
	if count != 5 {
		t.Fatalf("CountByChat: expected 5, got %d", count)
	}

	if err := repo.DeleteByChatIDs(ctx, nil, []uuid.UUID{chat.ID}); err != nil {
		t.Fatalf("DeleteByChatIDs: %v", err)
	}
	count, err = repo.CountByChat(ctx, nil, chat.ID)
	if err != nil {
		t.Fatalf("CountByChat (after delete): %v", err)
	}
	if count != 0 {
		t.Fatalf("CountByChat (after delete): expected 0, got %d", count)
	}
}
