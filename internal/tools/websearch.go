// Package tools provides the web search capability council models can call
// during deliberation.
package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/quorum/internal/llm"
)

// ===========================================================================
// WEB SEARCH
// ===========================================================================

// SearchToolName is the function name models use to invoke web search.
const SearchToolName = "search_web"

// SearchDef returns the search_web tool definition in function-calling
// format.
func SearchDef() llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        SearchToolName,
			Description: "Search the web for current information. Use this when you need up-to-date information, recent events, current statistics, or facts you're unsure about.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query to look up on the web",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// WebSearch searches the web using the Tavily API. Failures are reported
// inside the SearchResponse rather than as errors so callers can hand them
// to a model as observation text.
type WebSearch struct {
	apiKey            string
	endpoint          string
	maxResults        int
	httpClient        *http.Client
	cache             *searchCache
	dangerousPatterns []*regexp.Regexp
	log               zerolog.Logger
}

// SearchResponse is the outcome of one web search.
type SearchResponse struct {
	Answer  string         `json:"answer"`
	Results []SearchResult `json:"results"`

	// Error is set when the search could not run. A response carries
	// either results or an error, never both.
	Error string `json:"error,omitempty"`
}

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// tavilyRequest is the Tavily Search API request payload.
type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
	IncludeRaw    bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

const tavilyEndpoint = "https://api.tavily.com/search"

// SearchOption configures a WebSearch.
type SearchOption func(*WebSearch)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) SearchOption {
	return func(w *WebSearch) { w.httpClient = hc }
}

// WithEndpoint overrides the Tavily API URL.
func WithEndpoint(url string) SearchOption {
	return func(w *WebSearch) { w.endpoint = url }
}

// WithMaxResults bounds how many results a search returns (1-10).
func WithMaxResults(n int) SearchOption {
	return func(w *WebSearch) {
		if n < 1 {
			n = 1
		} else if n > 10 {
			n = 10
		}
		w.maxResults = n
	}
}

// WithLogger sets the search logger.
func WithLogger(log zerolog.Logger) SearchOption {
	return func(w *WebSearch) { w.log = log.With().Str("component", "websearch").Logger() }
}

// NewWebSearch creates a Tavily-backed web search.
func NewWebSearch(apiKey string, opts ...SearchOption) *WebSearch {
	w := &WebSearch{
		apiKey:     apiKey,
		endpoint:   tavilyEndpoint,
		maxResults: 5,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache: &searchCache{
			entries: make(map[string]*cacheEntry),
			maxSize: 100,
			ttl:     5 * time.Minute,
		},
		log: zerolog.Nop(),
	}
	w.compileDangerousPatterns()
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Search runs one web search. Never returns an error: missing API key,
// transport failures, and bad statuses all come back as a SearchResponse
// with Error set.
func (w *WebSearch) Search(ctx context.Context, query string) *SearchResponse {
	if w.apiKey == "" {
		return &SearchResponse{Error: "TAVILY_API_KEY not configured"}
	}

	query = strings.TrimSpace(query)
	key := cacheKey(query)
	if cached := w.cache.get(key); cached != nil {
		w.log.Debug().Str("query", query).Msg("search cache hit")
		return cached
	}

	start := time.Now()
	resp, err := w.callTavily(ctx, &tavilyRequest{
		APIKey:        w.apiKey,
		Query:         query,
		SearchDepth:   "basic",
		MaxResults:    w.maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		w.log.Error().Err(err).Str("query", query).Msg("search failed")
		return &SearchResponse{Error: err.Error()}
	}

	out := &SearchResponse{Answer: w.sanitize(resp.Answer)}
	for _, r := range resp.Results {
		out.Results = append(out.Results, SearchResult{
			Title:   w.sanitize(r.Title),
			URL:     r.URL,
			Content: w.sanitize(r.Content),
		})
	}

	w.cache.set(key, out)
	w.log.Info().Str("query", query).Int("results", len(out.Results)).
		Dur("elapsed", time.Since(start)).Msg("search complete")
	return out
}

func (w *WebSearch) callTavily(ctx context.Context, req *tavilyRequest) (*tavilyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", w.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api call failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned status %d", httpResp.StatusCode)
	}

	var resp tavilyResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// FormatResults renders a search response as observation text for a model.
func FormatResults(resp *SearchResponse) string {
	if resp.Error != "" {
		return fmt.Sprintf("Search error: %s", resp.Error)
	}

	var parts []string
	if resp.Answer != "" {
		parts = append(parts, fmt.Sprintf("Quick Answer: %s", resp.Answer))
		parts = append(parts, "")
	}

	parts = append(parts, "Search Results:")
	for i, r := range resp.Results {
		parts = append(parts, fmt.Sprintf("\n%d. %s", i+1, r.Title))
		parts = append(parts, fmt.Sprintf("   URL: %s", r.URL))
		parts = append(parts, fmt.Sprintf("   %s", r.Content))
	}
	return strings.Join(parts, "\n")
}

// ===========================================================================
// CACHE
// ===========================================================================

// searchCache provides simple TTL-based caching to reduce API calls.
type searchCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	result    *SearchResponse
	expiresAt time.Time
}

func cacheKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

func (c *searchCache) get(key string) *SearchResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.result
}

func (c *searchCache) set(key string, result *SearchResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &cacheEntry{
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *searchCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// ===========================================================================
// SANITIZATION
// ===========================================================================

// compileDangerousPatterns compiles patterns stripped from search results
// before they reach a model's context.
func (w *WebSearch) compileDangerousPatterns() {
	patterns := []string{
		`<script[^>]*>.*?</script>`,
		`javascript:`,
		`on\w+\s*=`,
		`data:\s*text/html`,
		`\x00`,
		`<iframe[^>]*>`,
		`<object[^>]*>`,
		`<embed[^>]*>`,
	}
	for _, p := range patterns {
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			w.dangerousPatterns = append(w.dangerousPatterns, re)
		}
	}
}

func (w *WebSearch) sanitize(text string) string {
	for _, pattern := range w.dangerousPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
