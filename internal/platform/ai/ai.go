// Package ai talks to hosted model providers and normalizes their
// completion APIs behind a single adapter interface.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	Model             string
	Messages          []Message
	Temperature       float64
	MaxTokens         int
	SystemPrompt      string
	ExtendedReasoning bool
}

// Completion is the normalized non-streaming result.
type Completion struct {
	ID           string         `json:"id"`
	Model        string         `json:"model"`
	Message      Message        `json:"message"`
	TokensUsed   int            `json:"tokens_used"`
	FinishReason string         `json:"finish_reason"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

const (
	EventContent = "content"
	EventDone    = "done"
	EventError   = "error"
)

// DoneInfo summarizes a finished stream.
type DoneInfo struct {
	ID           string `json:"id"`
	Model        string `json:"model,omitempty"`
	TokensUsed   int    `json:"tokens_used"`
	FinishReason string `json:"finish_reason"`
}

// StreamEvent is one element of a completion stream. Exactly one of the
// payload fields is set depending on Type. A stream ends with either a
// done or an error event, after which the channel is closed.
type StreamEvent struct {
	Type  string    `json:"type"`
	Text  string    `json:"text,omitempty"`
	Done  *DoneInfo `json:"message,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Adapter is a single provider's completion surface.
type Adapter interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Embedder produces dense vectors for retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// knownPrefixes is the closed set of model families this gateway routes.
var knownPrefixes = []string{"claude", "gemini", "gemma"}

// Router dispatches a request to an adapter by model name prefix.
type Router struct {
	log      *logger.Logger
	adapters map[string]Adapter
}

func NewRouter(baseLog *logger.Logger) *Router {
	return &Router{
		log:      baseLog.With("component", "ai_router"),
		adapters: make(map[string]Adapter),
	}
}

// Register binds a model family prefix to an adapter. Unknown prefixes
// are rejected so routing stays a closed set.
func (r *Router) Register(prefix string, a Adapter) error {
	for _, known := range knownPrefixes {
		if prefix == known {
			r.adapters[prefix] = a
			return nil
		}
	}
	return fmt.Errorf("ai: unknown model family %q", prefix)
}

// AdapterFor resolves the adapter for a model name. It fails before any
// network activity when the model is unrecognized or its provider is
// not configured.
func (r *Router) AdapterFor(model string) (Adapter, error) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidConfiguration, fmt.Errorf("model is required"))
	}
	for _, prefix := range knownPrefixes {
		if !strings.HasPrefix(model, prefix) {
			continue
		}
		a, ok := r.adapters[prefix]
		if !ok {
			return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidConfiguration, fmt.Errorf("provider for model %q is not configured", model))
		}
		return a, nil
	}
	return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidConfiguration, fmt.Errorf("unsupported model %q", model))
}

// Families returns the configured model family prefixes.
func (r *Router) Families() []string {
	out := make([]string, 0, len(r.adapters))
	for _, prefix := range knownPrefixes {
		if _, ok := r.adapters[prefix]; ok {
			out = append(out, prefix)
		}
	}
	return out
}
