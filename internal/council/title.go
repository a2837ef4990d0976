package council

import (
	"context"
	"strings"

	"github.com/normanking/quorum/internal/llm"
)

// defaultTitle is used when title generation fails.
const defaultTitle = "New Conversation"

// GenerateTitle produces a short conversation title from the first user
// message. Failures fall back to a generic title; they never surface.
func (e *Engine) GenerateTitle(ctx context.Context, query string) string {
	ctx, cancel := context.WithTimeout(ctx, DefaultTitleTimeout)
	defer cancel()

	resp, err := e.gw.Chat(ctx, e.titleModel, llm.UserMessage(buildTitlePrompt(query)))
	if err != nil || resp == nil {
		return defaultTitle
	}

	title := strings.TrimSpace(resp.Content)
	title = strings.Trim(title, `"'`)
	if title == "" {
		return defaultTitle
	}
	if r := []rune(title); len(r) > 50 {
		title = string(r[:47]) + "..."
	}
	return title
}
