package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/chatbridge-backend/internal/platform/websearch"
	"github.com/yungbote/chatbridge-backend/internal/repos/testutil"
)

// fakeMemories and fakeDocs override only the assembler-facing methods;
// the embedded nil interface panics if anything else is touched.
type fakeMemories struct {
	MemoryService
	section string
	err     error
}

func (f *fakeMemories) RelevantContext(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, query string, limit int) (string, error) {
	return f.section, f.err
}

type fakeDocs struct {
	DocumentService
	section string
	err     error
}

func (f *fakeDocs) ContextForQuery(ctx context.Context, userID uuid.UUID, query string, maxChunks int) (string, error) {
	return f.section, f.err
}

func webClient(t *testing.T, snippet string) *websearch.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items":[{"title":"Result","link":"https://example.com","snippet":%q}]}`, snippet)
	}))
	t.Cleanup(server.Close)
	t.Setenv("GOOGLE_SEARCH_API_KEY", "k")
	t.Setenv("GOOGLE_SEARCH_ENGINE_ID", "cx")
	t.Setenv("GOOGLE_SEARCH_BASE_URL", server.URL)
	return websearch.New(testutil.Logger(t))
}

func TestBuildSystemPromptSectionOrder(t *testing.T) {
	asm := NewContextAssembler(
		testutil.Logger(t),
		&fakeMemories{section: "- likes go (type: preference)"},
		&fakeDocs{section: "From 'Doc' (similarity: 0.90):\nchunk"},
		webClient(t, "fresh news"),
	)

	prompt := asm.BuildSystemPrompt(context.Background(), uuid.New(), nil, "query", "You are helpful.", AugmentOptions{
		UseRAG:          true,
		UseWebGrounding: true,
	})

	wantOrder := []string{
		"You are helpful.",
		"## User Memory Context",
		"## Retrieved Documents",
		"## Web Search Results",
		"fresh news",
	}
	pos := -1
	for _, marker := range wantOrder {
		idx := strings.Index(prompt, marker)
		if idx < 0 {
			t.Fatalf("BuildSystemPrompt: missing %q in:\n%s", marker, prompt)
		}
		if idx < pos {
			t.Fatalf("BuildSystemPrompt: %q out of order in:\n%s", marker, prompt)
		}
		pos = idx
	}
}

func TestBuildSystemPromptGating(t *testing.T) {
	asm := NewContextAssembler(
		testutil.Logger(t),
		&fakeMemories{section: "- a memory (type: global)"},
		&fakeDocs{section: "doc section"},
		webClient(t, "web section"),
	)

	prompt := asm.BuildSystemPrompt(context.Background(), uuid.New(), nil, "query", "", AugmentOptions{})
	if !strings.Contains(prompt, "## User Memory Context") {
		t.Fatalf("BuildSystemPrompt: memory section should always be attempted:\n%s", prompt)
	}
	if strings.Contains(prompt, "## Retrieved Documents") || strings.Contains(prompt, "## Web Search Results") {
		t.Fatalf("BuildSystemPrompt: disabled sources leaked into:\n%s", prompt)
	}
}

func TestBuildSystemPromptSourceFailureIsolated(t *testing.T) {
	asm := NewContextAssembler(
		testutil.Logger(t),
		&fakeMemories{err: errors.New("memory store down")},
		&fakeDocs{section: "doc section"},
		webClient(t, "web section"),
	)

	prompt := asm.BuildSystemPrompt(context.Background(), uuid.New(), nil, "query", "base", AugmentOptions{UseRAG: true})
	if strings.Contains(prompt, "## User Memory Context") {
		t.Fatalf("BuildSystemPrompt: failed source produced a section:\n%s", prompt)
	}
	if !strings.Contains(prompt, "## Retrieved Documents\ndoc section") {
		t.Fatalf("BuildSystemPrompt: healthy source lost:\n%s", prompt)
	}
	if !strings.HasPrefix(prompt, "base") {
		t.Fatalf("BuildSystemPrompt: base prompt lost:\n%s", prompt)
	}
}

func TestBuildSystemPromptEmptySources(t *testing.T) {
	asm := NewContextAssembler(
		testutil.Logger(t),
		&fakeMemories{},
		&fakeDocs{},
		websearch.New(testutil.Logger(t)),
	)
	prompt := asm.BuildSystemPrompt(context.Background(), uuid.New(), nil, "query", "", AugmentOptions{UseRAG: true, UseWebGrounding: true})
	if prompt != "" {
		t.Fatalf("BuildSystemPrompt: expected empty prompt, got %q", prompt)
	}
}
