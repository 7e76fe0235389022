package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/ai"
	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/repos"
	"github.com/yungbote/chatbridge-backend/internal/repos/testutil"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

// scriptedAdapter returns canned completions and records the requests it
// served. The recorder is locked because memory extraction calls the
// adapter from a background goroutine.
type scriptedAdapter struct {
	content string
	fail    bool

	mu       sync.Mutex
	requests []ai.Request
}

func (a *scriptedAdapter) record(req ai.Request) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
}

func (a *scriptedAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func (a *scriptedAdapter) lastRequest() ai.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return ai.Request{}
	}
	return a.requests[len(a.requests)-1]
}

func (a *scriptedAdapter) firstRequest() ai.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return ai.Request{}
	}
	return a.requests[0]
}

func (a *scriptedAdapter) Complete(ctx context.Context, req ai.Request) (*ai.Completion, error) {
	a.record(req)
	if a.fail {
		return nil, errors.New("provider down")
	}
	return &ai.Completion{
		ID:           "scripted-1",
		Model:        req.Model,
		Message:      ai.Message{Role: ai.RoleAssistant, Content: a.content},
		TokensUsed:   7,
		FinishReason: "stop",
	}, nil
}

func (a *scriptedAdapter) Stream(ctx context.Context, req ai.Request) (<-chan ai.StreamEvent, error) {
	a.record(req)
	events := make(chan ai.StreamEvent, 2)
	events <- ai.StreamEvent{Type: ai.EventContent, Text: a.content}
	events <- ai.StreamEvent{Type: ai.EventDone, Done: &ai.DoneInfo{TokensUsed: 7, FinishReason: "stop"}}
	close(events)
	return events, nil
}

func newMemoryService(t *testing.T, embedder ai.Embedder, router *ai.Router) (MemoryService, *types.User, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	svc := NewMemoryService(db, log, repos.NewMemoryRepo(db, log), embedder, router)
	user := testutil.SeedUser(t, context.Background(), db, fmt.Sprintf("%s@example.com", uuid.NewString()))
	return svc, user, db
}

func TestMemoryCreateValidation(t *testing.T) {
	svc, user, _ := newMemoryService(t, &keywordEmbedder{keyword: "go"}, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, user.ID, MemoryCreateInput{Kind: "bogus", Content: "x"}); apierr.From(err).Code != apierr.CodeInvalidRequest {
		t.Fatalf("Create (bad kind): code = %q, want %q", apierr.From(err).Code, apierr.CodeInvalidRequest)
	}
	if _, err := svc.Create(ctx, user.ID, MemoryCreateInput{Kind: types.MemoryKindGlobal, Content: "  "}); apierr.From(err).Code != apierr.CodeInvalidRequest {
		t.Fatalf("Create (empty content): code = %q, want %q", apierr.From(err).Code, apierr.CodeInvalidRequest)
	}

	created, err := svc.Create(ctx, user.ID, MemoryCreateInput{Kind: types.MemoryKindUserFact, Content: "writes go"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Importance != 0.5 {
		t.Fatalf("Create: default importance = %v, want 0.5", created.Importance)
	}
	if created.Embedding == nil {
		t.Fatalf("Create: expected an embedding")
	}

	clamped, err := svc.Create(ctx, user.ID, MemoryCreateInput{Kind: types.MemoryKindUserFact, Content: "very important", Importance: 7})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if clamped.Importance != 1 {
		t.Fatalf("Create: importance = %v, want clamped to 1", clamped.Importance)
	}
}

func TestMemorySearchRanking(t *testing.T) {
	svc, user, db := newMemoryService(t, &keywordEmbedder{keyword: "go"}, nil)
	ctx := context.Background()

	// Same similarity, different importance: importance breaks the tie.
	low := testutil.SeedMemory(t, ctx, db, user.ID, types.MemoryKindUserFact, "low", 0.2, []float32{1, 0})
	high := testutil.SeedMemory(t, ctx, db, user.ID, types.MemoryKindUserFact, "high", 0.9, []float32{1, 0})
	far := testutil.SeedMemory(t, ctx, db, user.ID, types.MemoryKindUserFact, "far", 0.9, []float32{0, 1})

	hits, err := svc.Search(ctx, user.ID, "go", repos.MemoryFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("Search: expected 3 hits, got %d", len(hits))
	}
	if hits[0].Memory.ID != high.ID || hits[1].Memory.ID != low.ID || hits[2].Memory.ID != far.ID {
		t.Fatalf("Search: order = %q, %q, %q", hits[0].Memory.Content, hits[1].Memory.Content, hits[2].Memory.Content)
	}

	// minScore drops the orthogonal memory.
	hits, err = svc.Search(ctx, user.ID, "go", repos.MemoryFilter{}, 10, 0.5)
	if err != nil {
		t.Fatalf("Search (minScore): %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Search (minScore): expected 2 hits, got %d", len(hits))
	}

	if _, err := svc.Search(ctx, user.ID, "", repos.MemoryFilter{}, 10, 0); apierr.From(err).Code != apierr.CodeInvalidRequest {
		t.Fatalf("Search (empty query): code = %q, want %q", apierr.From(err).Code, apierr.CodeInvalidRequest)
	}

	rendered, err := svc.RelevantContext(ctx, user.ID, nil, "go", 2)
	if err != nil {
		t.Fatalf("RelevantContext: %v", err)
	}
	want := "- high (type: user_fact)\n- low (type: user_fact)"
	if rendered != want {
		t.Fatalf("RelevantContext:\ngot  %q\nwant %q", rendered, want)
	}
}

func TestMemoryUpdateReembedsOnContentChange(t *testing.T) {
	embedder := &keywordEmbedder{keyword: "go"}
	svc, user, _ := newMemoryService(t, embedder, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, user.ID, MemoryCreateInput{Kind: types.MemoryKindPreference, Content: "likes tea"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newContent := "likes go"
	updated, err := svc.Update(ctx, user.ID, created.ID, MemoryUpdateInput{Content: &newContent})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if vec := types.DecodeEmbedding(updated.Embedding); len(vec) != 2 || vec[0] != 1 {
		t.Fatalf("Update: embedding not refreshed: %v", vec)
	}

	bad := 1.5
	if _, err := svc.Update(ctx, user.ID, created.ID, MemoryUpdateInput{Importance: &bad}); apierr.From(err).Code != apierr.CodeInvalidRequest {
		t.Fatalf("Update (bad importance): code = %q, want %q", apierr.From(err).Code, apierr.CodeInvalidRequest)
	}
}

func TestMemoryExtractFromConversation(t *testing.T) {
	log := testutil.Logger(t)
	router := ai.NewRouter(log)
	adapter := &scriptedAdapter{content: "[FACT] The user maintains a large Go monorepo\n" +
		"[PREFERENCE] Prefers answers with code samples\n" +
		"[CONTEXT] Currently debugging a flaky integration test\n" +
		"[FACT] short\n" +
		"unprefixed noise\n"}
	if err := router.Register("gemini", adapter); err != nil {
		t.Fatalf("Register: %v", err)
	}

	svc, user, _ := newMemoryService(t, &keywordEmbedder{keyword: "go"}, router)
	ctx := context.Background()
	chatID := uuid.New()

	created, err := svc.ExtractFromConversation(ctx, user.ID, &chatID, []ai.Message{
		{Role: ai.RoleUser, Content: "help me fix this test"},
		{Role: ai.RoleAssistant, Content: "sure"},
	})
	if err != nil {
		t.Fatalf("ExtractFromConversation: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("ExtractFromConversation: expected 3 memories, got %d", len(created))
	}
	byKind := map[string]*types.Memory{}
	for _, m := range created {
		byKind[m.Kind] = m
	}
	if byKind[types.MemoryKindUserFact] == nil || byKind[types.MemoryKindPreference] == nil || byKind[types.MemoryKindChat] == nil {
		t.Fatalf("ExtractFromConversation: missing kinds: %v", byKind)
	}
	if byKind[types.MemoryKindChat].ChatID == nil || *byKind[types.MemoryKindChat].ChatID != chatID {
		t.Fatalf("ExtractFromConversation: chat memory not scoped to the chat")
	}
	if byKind[types.MemoryKindUserFact].Importance != 0.7 {
		t.Fatalf("ExtractFromConversation: importance = %v, want 0.7", byKind[types.MemoryKindUserFact].Importance)
	}

	if adapter.calls() != 1 {
		t.Fatalf("ExtractFromConversation: expected 1 model call, got %d", adapter.calls())
	}
	req := adapter.lastRequest()
	if req.Temperature != 0.3 || req.MaxTokens != 500 {
		t.Fatalf("ExtractFromConversation: request params = %v/%v, want 0.3/500", req.Temperature, req.MaxTokens)
	}
}

func TestMemoryExtractFailuresAreSwallowed(t *testing.T) {
	log := testutil.Logger(t)
	router := ai.NewRouter(log)
	if err := router.Register("gemini", &scriptedAdapter{fail: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	svc, user, _ := newMemoryService(t, &keywordEmbedder{keyword: "go"}, router)

	created, err := svc.ExtractFromConversation(context.Background(), user.ID, nil, []ai.Message{{Role: ai.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("ExtractFromConversation: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("ExtractFromConversation: expected no memories, got %d", len(created))
	}
}

func TestParseExtractionLine(t *testing.T) {
	cases := []struct {
		line        string
		wantKind    string
		wantContent string
	}{
		{"[FACT] writes Go daily", types.MemoryKindUserFact, "writes Go daily"},
		{"[PREFERENCE] dark mode", types.MemoryKindPreference, "dark mode"},
		{"[CONTEXT] debugging now", types.MemoryKindChat, "debugging now"},
		{"no prefix at all", "", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		kind, content := parseExtractionLine(tc.line)
		if kind != tc.wantKind || content != tc.wantContent {
			t.Fatalf("parseExtractionLine(%q) = %q, %q; want %q, %q", tc.line, kind, content, tc.wantKind, tc.wantContent)
		}
	}
}
