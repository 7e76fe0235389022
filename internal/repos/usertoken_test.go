package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatbridge-backend/internal/repos/testutil"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

func TestUserTokenRepo(t *testing.T) {
	db := testutil.DB(t)
	repo := NewUserTokenRepo(db, testutil.Logger(t))
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, db, "tokenrepo@example.com")

	created, err := repo.Create(ctx, nil, []*types.UserToken{
		{
			ID:           uuid.New(),
			UserID:       user.ID,
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().UTC().Add(time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	byUser, err := repo.GetByUserIDs(ctx, nil, []uuid.UUID{user.ID})
	if err != nil {
		t.Fatalf("GetByUserIDs: %v", err)
	}
	if len(byUser) != 1 || byUser[0].ID != created[0].ID {
		t.Fatalf("GetByUserIDs: unexpected result: %+v", byUser)
	}

	byAccess, err := repo.GetByAccessTokens(ctx, nil, []string{"access-1"})
	if err != nil {
		t.Fatalf("GetByAccessTokens: %v", err)
	}
	if len(byAccess) != 1 {
		t.Fatalf("GetByAccessTokens: expected 1 row, got %d", len(byAccess))
	}

	byRefresh, err := repo.GetByRefreshTokens(ctx, nil, []string{"refresh-1"})
	if err != nil {
		t.Fatalf("GetByRefreshTokens: %v", err)
	}
	if len(byRefresh) != 1 {
		t.Fatalf("GetByRefreshTokens: expected 1 row, got %d", len(byRefresh))
	}

	if err := repo.FullDeleteByUserIDs(ctx, nil, []uuid.UUID{user.ID}); err != nil {
		t.Fatalf("FullDeleteByUserIDs: %v", err)
	}
	byUser, err = repo.GetByUserIDs(ctx, nil, []uuid.UUID{user.ID})
	if err != nil {
		t.Fatalf("GetByUserIDs (after delete): %v", err)
	}
	if len(byUser) != 0 {
		t.Fatalf("GetByUserIDs (after delete): expected 0 rows, got %d", len(byUser))
	}
}
