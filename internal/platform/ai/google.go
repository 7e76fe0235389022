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
	googleDefaultEmbedModel = "text-embedding-004"
	googleDefaultTimeout    = 120 * time.Second
	googleMaxRetries        = 2
	googleRetryBackoff      = 250 * time.Millisecond
	googleRetryCap          = 5 * time.Second
)

// GoogleClient serves the gemini and gemma model families through the
// Generative Language API, and doubles as the embedding provider.
type GoogleClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	embedModel string
	httpClient *http.Client
}

func NewGoogleClient(baseLog *logger.Logger) (*GoogleClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("GOOGLE_AI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_AI_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("GOOGLE_AI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	embedModel := strings.TrimSpace(os.Getenv("GOOGLE_EMBED_MODEL"))
	if embedModel == "" {
		embedModel = googleDefaultEmbedModel
	}
	return &GoogleClient{
		log:        baseLog.With("adapter", "google"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: googleDefaultTimeout},
	}, nil
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type googleRequest struct {
	SystemInstruction *googleContent         `json:"systemInstruction,omitempty"`
	Contents          []googleContent        `json:"contents"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig"`
}

type googleUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type googleResponse struct {
	ResponseID string `json:"responseId"`
	Candidates []struct {
		Content      googleContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *googleUsage `json:"usageMetadata"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GoogleClient) buildRequest(req Request) googleRequest {
	out := googleRequest{
		GenerationConfig: googleGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.SystemPrompt != "" {
		out.SystemInstruction = &googleContent{Parts: []googlePart{{Text: req.SystemPrompt}}}
	}
	for _, m := range req.Messages {
		role := "model"
		if m.Role == RoleUser {
			role = "user"
		}
		out.Contents = append(out.Contents, googleContent{
			Role:  role,
			Parts: []googlePart{{Text: m.Content}},
		})
	}
	return out
}

// post sends the request, retrying transport failures and retryable
// statuses with backoff. Retry-After from the provider wins over the
// default backoff.
func (c *GoogleClient) post(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	backoff := googleRetryBackoff
	var lastErr error
	for attempt := 0; ; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
		if accept != "" {
			httpReq.Header.Set("Accept", accept)
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = apierr.Provider(0, fmt.Errorf("google: %w", err))
			if attempt >= googleMaxRetries || !httpx.RetryableError(err) {
				return nil, lastErr
			}
		} else if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return resp, nil
		} else {
			retryable := httpx.RetryableStatus(resp.StatusCode)
			wait := httpx.RetryAfter(resp, backoff, googleRetryCap)
			lastErr = c.statusError(resp)
			if attempt >= googleMaxRetries || !retryable {
				return nil, lastErr
			}
			backoff = wait
		}
		c.log.Warn("google request retrying", "attempt", attempt+1, "error", lastErr.Error())
		select {
		case <-time.After(httpx.Jitter(backoff)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

// statusError drains and closes the response body.
func (c *GoogleClient) statusError(resp *http.Response) error {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var eb googleResponse
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &eb) == nil && eb.Error != nil && eb.Error.Message != "" {
		msg = eb.Error.Message
	}
	status := http.StatusBadGateway
	if httpx.RetryableStatus(resp.StatusCode) {
		status = http.StatusServiceUnavailable
	}
	return apierr.Provider(status, fmt.Errorf("google: status %d: %s", resp.StatusCode, msg))
}

func joinParts(content googleContent) string {
	var sb strings.Builder
	for _, p := range content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (c *GoogleClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", req.Model)
	resp, err := c.post(ctx, path, c.buildRequest(req), "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apierr.Provider(0, fmt.Errorf("google: decode response: %w", err))
	}
	if len(out.Candidates) == 0 {
		return nil, apierr.Provider(0, fmt.Errorf("google: response has no candidates"))
	}
	cand := out.Candidates[0]

	// Some model families report no usage; tokens stay at zero then.
	tokens := 0
	if out.UsageMetadata != nil {
		tokens = out.UsageMetadata.TotalTokenCount
	}
	id := out.ResponseID
	if id == "" {
		id = fmt.Sprintf("google-%s-%d", req.Model, time.Now().UnixNano())
	}
	return &Completion{
		ID:           id,
		Model:        req.Model,
		Message:      Message{Role: RoleAssistant, Content: joinParts(cand.Content)},
		TokensUsed:   tokens,
		FinishReason: strings.ToLower(cand.FinishReason),
		Metadata:     map[string]any{},
	}, nil
}

func (c *GoogleClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	path := fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", req.Model)
	resp, err := c.post(ctx, path, c.buildRequest(req), "text/event-stream")
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var (
			responseID   string
			tokens       int
			finishReason string
			failed       bool
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
			var chunk googleResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return nil
			}
			if chunk.Error != nil {
				failed = true
				if err := emit(StreamEvent{Type: EventError, Error: chunk.Error.Message}); err != nil {
					return err
				}
				return io.EOF
			}
			if chunk.ResponseID != "" {
				responseID = chunk.ResponseID
			}
			if chunk.UsageMetadata != nil && chunk.UsageMetadata.TotalTokenCount > 0 {
				tokens = chunk.UsageMetadata.TotalTokenCount
			}
			if len(chunk.Candidates) > 0 {
				cand := chunk.Candidates[0]
				if cand.FinishReason != "" {
					finishReason = strings.ToLower(cand.FinishReason)
				}
				if text := joinParts(cand.Content); text != "" {
					return emit(StreamEvent{Type: EventContent, Text: text})
				}
			}
			return nil
		})
		if failed || ctx.Err() != nil {
			return
		}
		if err != nil && err != io.EOF {
			c.log.Warn("google stream aborted", "error", err.Error())
			_ = emitOrDrop(ctx, events, StreamEvent{Type: EventError, Error: err.Error()})
			return
		}
		if responseID == "" {
			responseID = fmt.Sprintf("google-%s-%d", req.Model, time.Now().UnixNano())
		}
		if finishReason == "" {
			finishReason = "stop"
		}
		_ = emitOrDrop(ctx, events, StreamEvent{Type: EventDone, Done: &DoneInfo{
			ID:           responseID,
			Model:        req.Model,
			TokensUsed:   tokens,
			FinishReason: finishReason,
		}})
	}()
	return events, nil
}

type googleEmbedRequest struct {
	Content googleContent `json:"content"`
}

type googleEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed vectorizes text with the configured embedding model. Transient
// provider failures are retried inside post.
func (c *GoogleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	path := fmt.Sprintf("/v1beta/models/%s:embedContent", c.embedModel)
	body := googleEmbedRequest{Content: googleContent{Parts: []googlePart{{Text: text}}}}

	resp, err := c.post(ctx, path, body, "")
	if err != nil {
		return nil, err
	}
	var out googleEmbedResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if decodeErr != nil {
		return nil, apierr.Provider(0, fmt.Errorf("google: decode embedding: %w", decodeErr))
	}
	if len(out.Embedding.Values) == 0 {
		return nil, apierr.Provider(0, fmt.Errorf("google: empty embedding"))
	}
	return out.Embedding.Values, nil
}
