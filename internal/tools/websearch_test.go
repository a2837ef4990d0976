package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// TEST HELPERS
// ===========================================================================

func newTavilyServer(t *testing.T, answer string, hits int) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := tavilyResponse{Answer: answer}
		for i := 0; i < hits; i++ {
			resp.Results = append(resp.Results, struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Content string `json:"content"`
			}{
				Title:   "Result Title",
				URL:     "https://example.com",
				Content: "result content",
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// ===========================================================================
// SEARCH
// ===========================================================================

func TestSearchReturnsResults(t *testing.T) {
	srv, _ := newTavilyServer(t, "the quick answer", 2)
	ws := NewWebSearch("tv-key", WithEndpoint(srv.URL))

	resp := ws.Search(context.Background(), "golang channels")
	require.Empty(t, resp.Error)
	assert.Equal(t, "the quick answer", resp.Answer)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Result Title", resp.Results[0].Title)
	assert.Equal(t, "https://example.com", resp.Results[0].URL)
}

func TestSearchMissingAPIKey(t *testing.T) {
	ws := NewWebSearch("")

	resp := ws.Search(context.Background(), "anything")
	assert.Equal(t, "TAVILY_API_KEY not configured", resp.Error)
	assert.Empty(t, resp.Results)
}

func TestSearchBadStatusReportedAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	ws := NewWebSearch("tv-key", WithEndpoint(srv.URL))

	resp := ws.Search(context.Background(), "anything")
	assert.Contains(t, resp.Error, "status 502")
}

func TestSearchTransportFailureReportedAsError(t *testing.T) {
	ws := NewWebSearch("tv-key", WithEndpoint("http://127.0.0.1:1"))

	resp := ws.Search(context.Background(), "anything")
	assert.Contains(t, resp.Error, "api call failed")
}

func TestSearchCachesRepeatQueries(t *testing.T) {
	srv, calls := newTavilyServer(t, "answer", 1)
	ws := NewWebSearch("tv-key", WithEndpoint(srv.URL))

	first := ws.Search(context.Background(), "Cached Query")
	second := ws.Search(context.Background(), "cached query  ")
	assert.Equal(t, 1, *calls)
	assert.Equal(t, first, second)
}

func TestSearchCacheExpiry(t *testing.T) {
	srv, calls := newTavilyServer(t, "answer", 1)
	ws := NewWebSearch("tv-key", WithEndpoint(srv.URL))
	ws.cache.ttl = 10 * time.Millisecond

	ws.Search(context.Background(), "query")
	time.Sleep(20 * time.Millisecond)
	ws.Search(context.Background(), "query")
	assert.Equal(t, 2, *calls)
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	c := &searchCache{
		entries: make(map[string]*cacheEntry),
		maxSize: 2,
		ttl:     time.Minute,
	}
	c.set("a", &SearchResponse{Answer: "a"})
	// Ensure distinct expiry times so eviction order is deterministic.
	c.entries["a"].expiresAt = time.Now().Add(time.Second)
	c.set("b", &SearchResponse{Answer: "b"})
	c.set("c", &SearchResponse{Answer: "c"})

	assert.Nil(t, c.get("a"))
	assert.NotNil(t, c.get("b"))
	assert.NotNil(t, c.get("c"))
}

func TestCacheKeyNormalizesQuery(t *testing.T) {
	assert.Equal(t, cacheKey("Hello World"), cacheKey("  hello world "))
	assert.NotEqual(t, cacheKey("hello"), cacheKey("world"))
}

func TestSearchRespectsMaxResultsBounds(t *testing.T) {
	ws := NewWebSearch("tv-key", WithMaxResults(50))
	assert.Equal(t, 10, ws.maxResults)

	ws = NewWebSearch("tv-key", WithMaxResults(0))
	assert.Equal(t, 1, ws.maxResults)
}

// ===========================================================================
// SANITIZATION
// ===========================================================================

func TestSanitizeStripsDangerousContent(t *testing.T) {
	ws := NewWebSearch("tv-key")

	cases := []struct {
		in   string
		want string
	}{
		{`before <script>alert(1)</script> after`, "before  after"},
		{`click javascript:evil()`, "click evil()"},
		{`<iframe src="x"> trailing`, "trailing"},
		{`plain text stays`, "plain text stays"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ws.sanitize(tc.in))
	}
}

func TestSearchSanitizesTavilyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"answer": "safe <script>bad()</script> answer",
			"results": []map[string]string{{
				"title":   "Title <iframe x>",
				"url":     "https://example.com",
				"content": "content onload= here",
			}},
		})
	}))
	defer srv.Close()
	ws := NewWebSearch("tv-key", WithEndpoint(srv.URL))

	resp := ws.Search(context.Background(), "q")
	assert.Equal(t, "safe  answer", resp.Answer)
	assert.NotContains(t, resp.Results[0].Title, "iframe")
	assert.NotContains(t, resp.Results[0].Content, "onload=")
}

// ===========================================================================
// FORMATTING
// ===========================================================================

func TestFormatResultsWithAnswer(t *testing.T) {
	out := FormatResults(&SearchResponse{
		Answer: "42",
		Results: []SearchResult{
			{Title: "First", URL: "https://a.example", Content: "alpha"},
			{Title: "Second", URL: "https://b.example", Content: "beta"},
		},
	})

	assert.True(t, strings.HasPrefix(out, "Quick Answer: 42"))
	assert.Contains(t, out, "Search Results:")
	assert.Contains(t, out, "1. First")
	assert.Contains(t, out, "URL: https://a.example")
	assert.Contains(t, out, "2. Second")
}

func TestFormatResultsError(t *testing.T) {
	out := FormatResults(&SearchResponse{Error: "api returned status 500"})
	assert.Equal(t, "Search error: api returned status 500", out)
}

func TestFormatResultsNoAnswer(t *testing.T) {
	out := FormatResults(&SearchResponse{
		Results: []SearchResult{{Title: "Only", URL: "u", Content: "c"}},
	})
	assert.False(t, strings.HasPrefix(out, "Quick Answer"))
	assert.True(t, strings.HasPrefix(out, "Search Results:"))
}

// ===========================================================================
// RUNNER
// ===========================================================================

func TestRunnerExecutesSearch(t *testing.T) {
	srv, _ := newTavilyServer(t, "runner answer", 1)
	runner := NewRunner(NewWebSearch("tv-key", WithEndpoint(srv.URL)))

	out, err := runner.Execute(context.Background(), SearchToolName, map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Contains(t, out, "Quick Answer: runner answer")
}

func TestRunnerUnknownTool(t *testing.T) {
	runner := NewRunner(NewWebSearch(""))

	out, err := runner.Execute(context.Background(), "read_file", nil)
	require.NoError(t, err)
	assert.Equal(t, "Unknown tool: read_file", out)
}

func TestRunnerSearchErrorAsResultText(t *testing.T) {
	runner := NewRunner(NewWebSearch(""))

	out, err := runner.Execute(context.Background(), SearchToolName, map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Equal(t, "Search error: TAVILY_API_KEY not configured", out)
}

func TestSearchDefShape(t *testing.T) {
	def := SearchDef()
	assert.Equal(t, "function", def.Type)
	assert.Equal(t, SearchToolName, def.Function.Name)
	props := def.Function.Parameters["properties"].(map[string]any)
	assert.Contains(t, props, "query")
}
