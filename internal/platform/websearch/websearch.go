// Package websearch augments completions with Google Custom Search
// results. It degrades to empty results rather than failing requests.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
)

const (
	defaultTimeout = 10 * time.Second
	maxResults     = 10
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type Client struct {
	log        *logger.Logger
	apiKey     string
	engineID   string
	baseURL    string
	httpClient *http.Client
}

// New builds a client from GOOGLE_SEARCH_API_KEY and
// GOOGLE_SEARCH_ENGINE_ID. Missing credentials are not an error; the
// client simply reports itself unconfigured and returns no results.
func New(baseLog *logger.Logger) *Client {
	baseURL := strings.TrimSpace(os.Getenv("GOOGLE_SEARCH_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/customsearch/v1"
	}
	return &Client{
		log:        baseLog.With("component", "websearch"),
		apiKey:     strings.TrimSpace(os.Getenv("GOOGLE_SEARCH_API_KEY")),
		engineID:   strings.TrimSpace(os.Getenv("GOOGLE_SEARCH_ENGINE_ID")),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != "" && c.engineID != ""
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search runs a web query. Failures of any kind yield an empty slice so
// a broken search integration never blocks a completion.
func (c *Client) Search(ctx context.Context, query string, num int) ([]Result, error) {
	if !c.Configured() {
		return nil, nil
	}
	if num <= 0 || num > maxResults {
		num = maxResults
	}
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, nil
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("web search failed", "error", err.Error())
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("web search failed", "status", resp.StatusCode)
		return nil, nil
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Warn("web search decode failed", "error", err.Error())
		return nil, nil
	}
	results := make([]Result, 0, len(out.Items))
	for _, item := range out.Items {
		results = append(results, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

// GroundingContext formats search results as a prompt section. Empty
// when the search produced nothing.
func (c *Client) GroundingContext(ctx context.Context, query string, num int) string {
	results, _ := c.Search(ctx, query, num)
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Web search results for '%s':\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&sb, "   URL: %s\n", r.URL)
		fmt.Fprintf(&sb, "   %s\n", r.Snippet)
	}
	return sb.String()
}
