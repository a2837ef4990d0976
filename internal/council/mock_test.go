package council

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/normanking/quorum/internal/llm"
)

// fakeGateway scripts per-model responses for engine tests. Responses
// queue per model; each call pops the next one. Models without a script
// fall back to a default response.
type fakeGateway struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	delays    map[string]time.Duration
	calls     []fakeCall
}

type fakeCall struct {
	model  string
	prompt string
	tools  bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		delays:    make(map[string]time.Duration),
	}
}

func (g *fakeGateway) respond(model string, responses ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses[model] = append(g.responses[model], responses...)
}

func (g *fakeGateway) fail(model string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[model] = err
}

func (g *fakeGateway) delay(model string, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delays[model] = d
}

func (g *fakeGateway) callsFor(model string) []fakeCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []fakeCall
	for _, c := range g.calls {
		if c.model == model {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGateway) next(model, prompt string, tools bool) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, fakeCall{model: model, prompt: prompt, tools: tools})
	err := g.errs[model]
	delay := g.delays[model]
	var content string
	if queue := g.responses[model]; len(queue) > 0 {
		content = queue[0]
		g.responses[model] = queue[1:]
	} else {
		content = "response from " + model
	}
	g.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

func lastUserContent(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func (g *fakeGateway) Chat(ctx context.Context, model string, messages []llm.Message) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := g.next(model, lastUserContent(messages), false)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Content: content, Model: model}, nil
}

func (g *fakeGateway) ChatWithTools(ctx context.Context, model string, messages []llm.Message, tools []llm.ToolDef, exec llm.ToolExecutor) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := g.next(model, lastUserContent(messages), true)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Content: content, Model: model}, nil
}

func (g *fakeGateway) ChatStream(ctx context.Context, model string, messages []llm.Message) <-chan llm.StreamEvent {
	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		send := func(ev llm.StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		content, err := g.next(model, lastUserContent(messages), false)
		if err != nil {
			send(llm.StreamEvent{Type: llm.StreamError, Err: err.Error()})
			return
		}
		// Stream word by word so token events are observable.
		for _, word := range strings.SplitAfter(content, " ") {
			if !send(llm.StreamEvent{Type: llm.StreamToken, Content: word}) {
				return
			}
		}
		send(llm.StreamEvent{Type: llm.StreamDone, Content: content})
	}()
	return out
}

func (g *fakeGateway) ChatStreamWithTools(ctx context.Context, model string, messages []llm.Message, tools []llm.ToolDef, exec llm.ToolExecutor) <-chan llm.StreamEvent {
	return g.ChatStream(ctx, model, messages)
}

// searchToolDefForTest is a minimal search tool definition for wiring the
// engine's tool support in tests.
func searchToolDefForTest() llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        "search_web",
			Description: "Search the web",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
				"required": []string{"query"},
			},
		},
	}
}

// collect drains an event channel into a slice.
func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

// eventsOfType filters events by type.
func eventsOfType(events []Event, t EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
