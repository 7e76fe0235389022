package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("GOOGLE_SEARCH_API_KEY", "key")
	t.Setenv("GOOGLE_SEARCH_ENGINE_ID", "cx")
	t.Setenv("GOOGLE_SEARCH_BASE_URL", srv.URL)
	return New(testLogger(t))
}

func TestSearchUnconfigured(t *testing.T) {
	t.Setenv("GOOGLE_SEARCH_API_KEY", "")
	t.Setenv("GOOGLE_SEARCH_ENGINE_ID", "")
	c := New(testLogger(t))
	if c.Configured() {
		t.Fatalf("configured: want=false")
	}
	results, err := c.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("search: unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("search: want empty got=%d", len(results))
	}
}

func TestSearchCapsResultCount(t *testing.T) {
	var gotNum string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotNum = r.URL.Query().Get("num")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{}})
	})
	if _, err := c.Search(context.Background(), "query", 50); err != nil {
		t.Fatalf("search: unexpected error: %v", err)
	}
	if gotNum != "10" {
		t.Fatalf("num: want=10 got=%s", gotNum)
	}
}

func TestSearchFailureYieldsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	results, err := c.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("search: unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("search: want empty on failure got=%d", len(results))
	}
}

func TestGroundingContextFormat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"title": "First", "link": "https://a.example", "snippet": "snippet one"},
				{"title": "Second", "link": "https://b.example", "snippet": "snippet two"},
			},
		})
	})
	got := c.GroundingContext(context.Background(), "go generics", 5)
	if !strings.HasPrefix(got, "Web search results for 'go generics':") {
		t.Fatalf("header: got=%q", got)
	}
	if !strings.Contains(got, "1. First") || !strings.Contains(got, "URL: https://a.example") {
		t.Fatalf("first result missing: %q", got)
	}
	if !strings.Contains(got, "2. Second") || !strings.Contains(got, "snippet two") {
		t.Fatalf("second result missing: %q", got)
	}
}

func TestGroundingContextEmptyWhenNoResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})
	if got := c.GroundingContext(context.Background(), "query", 5); got != "" {
		t.Fatalf("context: want empty got=%q", got)
	}
}
