package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newGoogleTestClient(t *testing.T, handler http.HandlerFunc) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("GOOGLE_AI_API_KEY", "test-key")
	t.Setenv("GOOGLE_AI_BASE_URL", srv.URL)
	c, err := NewGoogleClient(testLogger(t))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func TestGoogleComplete(t *testing.T) {
	var gotBody googleRequest
	c := newGoogleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if want := "/v1beta/models/gemini-2.5-flash:generateContent"; r.URL.Path != want {
			t.Errorf("path: want=%s got=%s", want, r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key: want=test-key got=%s", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"responseId": "resp_1",
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": "Hi there"}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{"totalTokenCount": 42},
		})
	})

	out, err := c.Complete(context.Background(), Request{
		Model:        "gemini-2.5-flash",
		Messages:     []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "yes?"}},
		SystemPrompt: "be nice",
		Temperature:  0.5,
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("complete: unexpected error: %v", err)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "be nice" {
		t.Fatalf("systemInstruction missing")
	}
	if gotBody.Contents[0].Role != "user" || gotBody.Contents[1].Role != "model" {
		t.Fatalf("roles: want user/model got %s/%s", gotBody.Contents[0].Role, gotBody.Contents[1].Role)
	}
	if out.Message.Content != "Hi there" {
		t.Fatalf("content: want=%q got=%q", "Hi there", out.Message.Content)
	}
	if out.TokensUsed != 42 {
		t.Fatalf("tokens: want=42 got=%d", out.TokensUsed)
	}
	if out.FinishReason != "stop" {
		t.Fatalf("finish: want=stop got=%s", out.FinishReason)
	}
}

func TestGoogleCompleteNoUsage(t *testing.T) {
	c := newGoogleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"parts": []map[string]any{{"text": "ok"}}},
				"finishReason": "STOP",
			}},
		})
	})
	out, err := c.Complete(context.Background(), Request{Model: "gemma-3-27b-it", MaxTokens: 10})
	if err != nil {
		t.Fatalf("complete: unexpected error: %v", err)
	}
	if out.TokensUsed != 0 {
		t.Fatalf("tokens: want=0 when usage absent got=%d", out.TokensUsed)
	}
	if out.ID == "" {
		t.Fatalf("id: want synthetic id got empty")
	}
}

func TestGoogleStream(t *testing.T) {
	c := newGoogleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("path: want streamGenerateContent got=%s", r.URL.Path)
		}
		if got := r.URL.Query().Get("alt"); got != "sse" {
			t.Errorf("alt: want=sse got=%s", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`data: {"responseId":"resp_s","candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}` + "\n\n",
			`data: {"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":9}}` + "\n\n",
		}
		for _, f := range frames {
			_, _ = w.Write([]byte(f))
		}
	})

	events, err := c.Stream(context.Background(), Request{Model: "gemini-2.5-flash", MaxTokens: 10})
	if err != nil {
		t.Fatalf("stream: unexpected error: %v", err)
	}
	var text string
	var done *DoneInfo
	for ev := range events {
		switch ev.Type {
		case EventContent:
			text += ev.Text
		case EventDone:
			done = ev.Done
		case EventError:
			t.Fatalf("stream: unexpected error event: %s", ev.Error)
		}
	}
	if text != "Hello" {
		t.Fatalf("text: want=Hello got=%q", text)
	}
	if done == nil {
		t.Fatalf("stream: missing done event")
	}
	if done.ID != "resp_s" || done.TokensUsed != 9 || done.FinishReason != "stop" {
		t.Fatalf("done: got %+v", done)
	}
}

func TestGoogleStreamPreflightError(t *testing.T) {
	c := newGoogleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
	})
	if _, err := c.Stream(context.Background(), Request{Model: "gemini-2.5-flash"}); err == nil {
		t.Fatalf("stream: want preflight error")
	}
}

func TestGoogleEmbed(t *testing.T) {
	c := newGoogleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if want := "/v1beta/models/text-embedding-004:embedContent"; r.URL.Path != want {
			t.Errorf("path: want=%s got=%s", want, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float32{0.1, 0.2, 0.3}},
		})
	})
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("embed: want len=3 got=%d", len(vec))
	}
}

func TestGoogleEmbedRetriesTransient(t *testing.T) {
	var calls int
	c := newGoogleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float32{0.5}},
		})
	})
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("embed: want 2 calls got=%d", calls)
	}
	if len(vec) != 1 {
		t.Fatalf("embed: want len=1 got=%d", len(vec))
	}
}

func TestGoogleCompleteRetriesServerError(t *testing.T) {
	var calls int
	c := newGoogleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend overloaded","status":"INTERNAL"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"responseId": "resp_retry",
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": "ok"}}},
				"finishReason": "STOP",
			}},
		})
	})

	out, err := c.Complete(context.Background(), Request{Model: "gemini-2.5-flash", MaxTokens: 10})
	if err != nil {
		t.Fatalf("complete: unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
	if out.Message.Content != "ok" {
		t.Fatalf("content: want=ok got=%q", out.Message.Content)
	}
}
