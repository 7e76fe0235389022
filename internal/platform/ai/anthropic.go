package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/chatbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
)

const (
	anthropicVersion        = "2023-06-01"
	anthropicThinkingBudget = 10000
	anthropicDefaultTimeout = 120 * time.Second
	anthropicMaxRetries     = 2
	anthropicRetryBackoff   = 250 * time.Millisecond
	anthropicRetryCap       = 5 * time.Second
)

// Friendly model names map to dated API identifiers.
var anthropicModelAliases = map[string]string{
	"claude-sonnet-4.5": "claude-sonnet-4-5-20250929",
	"claude-opus-4.1":   "claude-opus-4-1-20250805",
	"claude-haiku-3.5":  "claude-3-5-haiku-20241022",
}

// AnthropicClient serves the claude model family via the Messages API.
type AnthropicClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewAnthropicClient(baseLog *logger.Logger) (*AnthropicClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicClient{
		log:        baseLog.With("adapter", "anthropic"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: anthropicDefaultTimeout},
	}, nil
}

func resolveAnthropicModel(model string) string {
	if mapped, ok := anthropicModelAliases[model]; ok {
		return mapped
	}
	return model
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []Message          `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) buildRequest(req Request, stream bool) anthropicRequest {
	body := anthropicRequest{
		Model:     resolveAnthropicModel(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  req.Messages,
		System:    req.SystemPrompt,
		Stream:    stream,
	}
	if req.ExtendedReasoning {
		body.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: anthropicThinkingBudget}
		// The API requires default sampling when thinking is enabled.
	} else {
		t := req.Temperature
		body.Temperature = &t
	}
	return body
}

// post sends the request, retrying transport failures and retryable
// statuses with backoff. Retry-After from the provider wins over the
// default backoff.
func (c *AnthropicClient) post(ctx context.Context, body anthropicRequest, accept string) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	backoff := anthropicRetryBackoff
	var lastErr error
	for attempt := 0; ; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)
		if accept != "" {
			httpReq.Header.Set("Accept", accept)
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = apierr.Provider(0, fmt.Errorf("anthropic: %w", err))
			if attempt >= anthropicMaxRetries || !httpx.RetryableError(err) {
				return nil, lastErr
			}
		} else if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return resp, nil
		} else {
			retryable := httpx.RetryableStatus(resp.StatusCode)
			wait := httpx.RetryAfter(resp, backoff, anthropicRetryCap)
			lastErr = c.statusError(resp)
			if attempt >= anthropicMaxRetries || !retryable {
				return nil, lastErr
			}
			backoff = wait
		}
		c.log.Warn("anthropic request retrying", "attempt", attempt+1, "error", lastErr.Error())
		select {
		case <-time.After(httpx.Jitter(backoff)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

// statusError drains and closes the response body.
func (c *AnthropicClient) statusError(resp *http.Response) error {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var eb anthropicErrorBody
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
		msg = eb.Error.Message
	}
	status := http.StatusBadGateway
	if httpx.RetryableStatus(resp.StatusCode) {
		status = http.StatusServiceUnavailable
	}
	return apierr.Provider(status, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, msg))
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.post(ctx, c.buildRequest(req, false), "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apierr.Provider(0, fmt.Errorf("anthropic: decode response: %w", err))
	}
	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &Completion{
		ID:           out.ID,
		Model:        req.Model,
		Message:      Message{Role: RoleAssistant, Content: sb.String()},
		TokensUsed:   out.Usage.InputTokens + out.Usage.OutputTokens,
		FinishReason: out.StopReason,
		Metadata: map[string]any{
			"input_tokens":  out.Usage.InputTokens,
			"output_tokens": out.Usage.OutputTokens,
		},
	}, nil
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message struct {
		ID    string         `json:"id"`
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage anthropicUsage `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stream opens a streaming completion. Connection and status failures
// surface as the returned error; anything after the stream starts is
// reported as a terminal error event on the channel.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	resp, err := c.post(ctx, c.buildRequest(req, true), "text/event-stream")
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var (
			messageID    string
			inputTokens  int
			outputTokens int
			stopReason   string
			finished     bool
		)

		emit := func(ev StreamEvent) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := streamSSE(resp.Body, func(_ string, data string) error {
			var ev anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return nil
			}
			switch ev.Type {
			case "message_start":
				messageID = ev.Message.ID
				inputTokens = ev.Message.Usage.InputTokens
			case "content_block_delta":
				if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
					return emit(StreamEvent{Type: EventContent, Text: ev.Delta.Text})
				}
			case "message_delta":
				if ev.Usage.OutputTokens > 0 {
					outputTokens = ev.Usage.OutputTokens
				}
				if ev.Delta.StopReason != "" {
					stopReason = ev.Delta.StopReason
				}
			case "message_stop":
				finished = true
				return emit(StreamEvent{Type: EventDone, Done: &DoneInfo{
					ID:           messageID,
					Model:        req.Model,
					TokensUsed:   inputTokens + outputTokens,
					FinishReason: stopReason,
				}})
			case "error":
				finished = true
				msg := ev.Error.Message
				if msg == "" {
					msg = "provider stream error"
				}
				if err := emit(StreamEvent{Type: EventError, Error: msg}); err != nil {
					return err
				}
				return io.EOF
			}
			return nil
		})
		if err != nil && err != io.EOF && ctx.Err() == nil && !finished {
			c.log.Warn("anthropic stream aborted", "error", err.Error())
			_ = emitOrDrop(ctx, events, StreamEvent{Type: EventError, Error: err.Error()})
			return
		}
		if !finished && ctx.Err() == nil {
			// Stream ended without a message_stop.
			_ = emitOrDrop(ctx, events, StreamEvent{Type: EventError, Error: "provider stream ended unexpectedly"})
		}
	}()
	return events, nil
}

func emitOrDrop(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
