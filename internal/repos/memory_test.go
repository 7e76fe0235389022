package repos

import (
	"context"
	"testing"

	"github.com/yungbote/chatbridge-backend/internal/repos/testutil"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

func TestMemoryRepoFilters(t *testing.T) {
	db := testutil.DB(t)
	repo := NewMemoryRepo(db, testutil.Logger(t))
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, db, "memoryrepo@example.com")
	chat := testutil.SeedChat(t, ctx, db, user.ID, "chat")

	fact := testutil.SeedMemory(t, ctx, db, user.ID, types.MemoryKindUserFact, "works in Go", 0.9, []float32{1, 0})
	pref := testutil.SeedMemory(t, ctx, db, user.ID, types.MemoryKindPreference, "prefers short answers", 0.5, nil)
	scoped := testutil.SeedMemory(t, ctx, db, user.ID, types.MemoryKindChat, "chat scoped", 0.5, []float32{0, 1})
	scoped.ChatID = &chat.ID
	if err := repo.Save(ctx, nil, scoped); err != nil {
		t.Fatalf("Save: %v", err)
	}

	all, err := repo.ListByUser(ctx, nil, user.ID, MemoryFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListByUser: expected 3 memories, got %d", len(all))
	}
	if all[0].ID != fact.ID {
		t.Fatalf("ListByUser: expected highest importance first, got %q", all[0].Content)
	}

	byKind, err := repo.ListByUser(ctx, nil, user.ID, MemoryFilter{Kind: types.MemoryKindPreference}, 0, 0)
	if err != nil {
		t.Fatalf("ListByUser (kind): %v", err)
	}
	if len(byKind) != 1 || byKind[0].ID != pref.ID {
		t.Fatalf("ListByUser (kind): unexpected rows: %+v", byKind)
	}

	byChat, err := repo.ListByUser(ctx, nil, user.ID, MemoryFilter{ChatID: &chat.ID}, 0, 0)
	if err != nil {
		t.Fatalf("ListByUser (chat): %v", err)
	}
	if len(byChat) != 1 || byChat[0].ID != scoped.ID {
		t.Fatalf("ListByUser (chat): unexpected rows: %+v", byChat)
	}

	// Candidates require an embedding.
	candidates, err := repo.CandidatesByUser(ctx, nil, user.ID, MemoryFilter{}, 0)
	if err != nil {
		t.Fatalf("CandidatesByUser: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("CandidatesByUser: expected 2 embedded memories, got %d", len(candidates))
	}

	if err := repo.DetachChat(ctx, nil, chat.ID); err != nil {
		t.Fatalf("DetachChat: %v", err)
	}
	detached, err := repo.GetByIDForUser(ctx, nil, scoped.ID, user.ID)
	if err != nil {
		t.Fatalf("GetByIDForUser: %v", err)
	}
	if detached.ChatID != nil {
		t.Fatalf("DetachChat: chat_id still set")
	}

	if err := repo.Delete(ctx, nil, fact.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	all, err = repo.ListByUser(ctx, nil, user.ID, MemoryFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("ListByUser (after delete): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListByUser (after delete): expected 2 memories, got %d", len(all))
	}
}
