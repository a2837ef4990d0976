package council

import (
	"context"

	"github.com/normanking/quorum/internal/llm"
)

// RunRoundStreaming executes one round sequentially with token-level
// streaming. Models run one at a time so their tokens interleave cleanly in
// a terminal. A model that errors mid-stream contributes nothing to the
// round, even if it already produced partial content.
func (e *Engine) RunRoundStreaming(ctx context.Context, roundType RoundType, query string, rc RoundContext) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		config, err := BuildRoundConfig(roundType, query, rc)
		if err != nil {
			emit(ctx, out, Event{Type: EventError, Message: err.Error()})
			return
		}
		config.UseReasoning = e.useReasoning && config.UsesTools

		var responses []ModelResponse
		for _, model := range e.models {
			if !emit(ctx, out, Event{Type: EventModelStart, Model: model}) {
				return
			}

			result, ok := e.streamModel(ctx, model, config, out)
			if ctx.Err() != nil {
				return
			}
			if !ok {
				continue
			}

			responses = append(responses, result)
			if !emit(ctx, out, Event{Type: EventModelComplete, Model: model, Response: &result}) {
				return
			}
		}

		e.log.Debug().Str("round", string(roundType)).Int("responses", len(responses)).
			Msg("streaming round complete")
		emit(ctx, out, Event{Type: EventRoundComplete, Responses: responses})
	}()
	return out
}

// streamModel streams one model's round contribution, forwarding token and
// tool events tagged with the model. Returns ok=false when the model erred
// or produced no content.
func (e *Engine) streamModel(ctx context.Context, model string, config RoundConfig, out chan<- Event) (ModelResponse, bool) {
	prompt := config.BuildPrompt(model)

	if config.UseReasoning && e.hasTools() {
		return e.streamModelReasoning(ctx, model, prompt, config, out)
	}

	var stream <-chan llm.StreamEvent
	if config.UsesTools && e.hasTools() {
		stream = e.gw.ChatStreamWithTools(ctx, model, llm.UserMessage(prompt), e.tools, e.exec)
	} else {
		stream = e.gw.ChatStream(ctx, model, llm.UserMessage(prompt))
	}

	var fullContent string
	var toolCalls []llm.ToolCallRecord
	for ev := range stream {
		forwarded := true
		switch ev.Type {
		case llm.StreamToken:
			fullContent += ev.Content
			forwarded = emit(ctx, out, Event{Type: EventToken, Model: model, Content: ev.Content})
		case llm.StreamToolCall:
			forwarded = emit(ctx, out, Event{Type: EventToolCall, Model: model, Tool: ev.Tool, Args: ev.Args})
		case llm.StreamToolResult:
			forwarded = emit(ctx, out, Event{Type: EventToolResult, Model: model, Tool: ev.Tool, Result: ev.Result})
		case llm.StreamDone:
			if ev.Content != "" {
				fullContent = ev.Content
			}
			toolCalls = ev.ToolCallsMade
		case llm.StreamError:
			emit(ctx, out, Event{Type: EventModelError, Model: model, Error: ev.Err})
			return ModelResponse{}, false
		}
		if !forwarded {
			return ModelResponse{}, false
		}
	}

	if fullContent == "" {
		return ModelResponse{}, false
	}

	result := ModelResponse{
		Model:         model,
		Response:      fullContent,
		ToolCallsMade: toolCalls,
	}
	if config.HasRevisedAnswer {
		result.RevisedAnswer = ParseRevisedAnswer(fullContent)
	}
	return result, true
}

// streamModelReasoning runs a model's round contribution through the
// text-based reasoning loop instead of native tool calling. Transport
// failures come back as error-string content, so the model still
// contributes a (degraded) response to the round.
func (e *Engine) streamModelReasoning(ctx context.Context, model, prompt string, config RoundConfig, out chan<- Event) (ModelResponse, bool) {
	res := e.reactLoop(ctx, model, buildCouncilReActPrompt(prompt), out)
	if res.Content == "" {
		return ModelResponse{}, false
	}

	result := ModelResponse{
		Model:         model,
		Response:      res.Content,
		ToolCallsMade: res.ToolCallsMade,
	}
	if config.HasRevisedAnswer {
		result.RevisedAnswer = ParseRevisedAnswer(res.Content)
	}
	return result, true
}
