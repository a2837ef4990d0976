package tools

import (
	"context"
	"fmt"
)

// Runner dispatches tool calls made by models during deliberation. Its
// Execute method satisfies the gateway's ToolExecutor signature.
type Runner struct {
	search *WebSearch
}

// NewRunner creates a tool runner backed by the given web search.
func NewRunner(search *WebSearch) *Runner {
	return &Runner{search: search}
}

// Execute runs the named tool. Unknown tool names and search failures are
// reported as result text so the calling model can read and recover from
// them; the error return is reserved for executor faults.
func (r *Runner) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case SearchToolName:
		query, _ := args["query"].(string)
		return FormatResults(r.search.Search(ctx, query)), nil
	default:
		return fmt.Sprintf("Unknown tool: %s", name), nil
	}
}

// Search exposes the underlying web search for callers that want raw
// results instead of tool-call dispatch.
func (r *Runner) Search(ctx context.Context, query string) *SearchResponse {
	return r.search.Search(ctx, query)
}
