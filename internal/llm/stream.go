package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// streamChunk is one SSE data frame from an OpenAI-compatible stream.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// toolCallDelta is a partial tool call. OpenRouter streams tool calls as
// fragments keyed by index; the id and name arrive first, the argument
// JSON dribbles in across subsequent frames.
type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// send delivers ev unless ctx ends first, so an abandoned consumer never
// wedges a stream goroutine.
func send(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// ChatStream runs a streaming completion, emitting token events as deltas
// arrive. The channel closes after a single done or error event, or when
// the context ends.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		content, _, err := c.streamOnce(ctx, chatRequest{Model: model, Messages: messages, Stream: true}, out)
		if err != nil {
			send(ctx, out, StreamEvent{Type: StreamError, Err: err.Error()})
			return
		}
		send(ctx, out, StreamEvent{Type: StreamDone, Content: content})
	}()
	return out
}

// ChatStreamWithTools runs a streaming completion with tool resolution.
// Tokens stream as they arrive; when the model requests tools the stream
// pauses for tool_call and tool_result events, then a fresh round begins.
func (c *Client) ChatStreamWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, exec ToolExecutor) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		conversation := append([]Message(nil), messages...)
		var made []ToolCallRecord

		for round := 0; round < c.maxToolRounds; round++ {
			req := chatRequest{Model: model, Messages: conversation, Tools: tools, Stream: true}
			content, calls, err := c.streamOnce(ctx, req, out)
			if err != nil {
				send(ctx, out, StreamEvent{Type: StreamError, Err: err.Error()})
				return
			}

			if len(calls) == 0 {
				send(ctx, out, StreamEvent{Type: StreamDone, Content: content, ToolCallsMade: made})
				return
			}

			conversation = append(conversation, Message{
				Role:      "assistant",
				Content:   content,
				ToolCalls: calls,
			})
			for _, call := range calls {
				var args map[string]any
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				if !send(ctx, out, StreamEvent{Type: StreamToolCall, Tool: call.Function.Name, Args: args}) {
					return
				}

				record, resultMsg := c.resolveToolCall(ctx, call, exec)
				made = append(made, record)
				conversation = append(conversation, resultMsg)

				if !send(ctx, out, StreamEvent{Type: StreamToolResult, Tool: call.Function.Name, Result: resultMsg.Content}) {
					return
				}
			}
		}

		send(ctx, out, StreamEvent{Type: StreamDone, Content: maxToolRoundsContent, ToolCallsMade: made})
	}()
	return out
}

// streamOnce performs one SSE round trip, forwarding token events to out
// and returning the assembled content plus any tool calls the model made.
func (c *Client) streamOnce(ctx context.Context, req chatRequest, out chan<- StreamEvent) (string, []ToolCall, error) {
	if c.apiKey == "" {
		return "", nil, fmt.Errorf("OpenRouter API key not configured")
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return "", nil, fmt.Errorf("OpenRouter error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var content strings.Builder
	pending := map[int]*ToolCall{}
	reader := bufio.NewReader(resp.Body)

	for {
		select {
		case <-ctx.Done():
			return content.String(), nil, ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return content.String(), nil, fmt.Errorf("read stream: %w", err)
		}

		lineStr := strings.TrimSpace(string(line))
		if !strings.HasPrefix(lineStr, "data: ") {
			continue
		}
		data := strings.TrimPrefix(lineStr, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // skip malformed chunks
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			if content.Len()+len(delta.Content) > MaxStreamedResponseSize {
				return content.String(), nil, fmt.Errorf("streamed response exceeds %d bytes", MaxStreamedResponseSize)
			}
			content.WriteString(delta.Content)
			if !send(ctx, out, StreamEvent{Type: StreamToken, Content: delta.Content}) {
				return content.String(), nil, ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			call, ok := pending[tc.Index]
			if !ok {
				call = &ToolCall{Type: "function"}
				pending[tc.Index] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
		}
	}

	indices := make([]int, 0, len(pending))
	for i := range pending {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	calls := make([]ToolCall, 0, len(pending))
	for _, i := range indices {
		calls = append(calls, *pending[i])
	}
	return content.String(), calls, nil
}
