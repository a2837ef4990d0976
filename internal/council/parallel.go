package council

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/normanking/quorum/internal/llm"
)

// ExecuteRound is the contract between the debate orchestrator and a round
// execution strategy. An implementation emits per-model events and finishes
// with a single round_complete event carrying the successful responses,
// then closes the channel.
//
// Two built-in strategies:
//   - Engine.RunRoundParallel: all models concurrently, completion order
//   - Engine.RunRoundStreaming: models sequentially with token streaming
type ExecuteRound func(ctx context.Context, roundType RoundType, query string, rc RoundContext) <-chan Event

// RunRoundParallel executes one round with every council model running
// concurrently. Each model gets its own timeout; failures and timeouts
// become model_error events and the round completes with whatever
// responses survived.
func (e *Engine) RunRoundParallel(ctx context.Context, roundType RoundType, query string, rc RoundContext) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		config, err := BuildRoundConfig(roundType, query, rc)
		if err != nil {
			emit(ctx, out, Event{Type: EventError, Message: err.Error()})
			return
		}
		config.UseReasoning = e.useReasoning && config.UsesTools

		for _, model := range e.models {
			if !emit(ctx, out, Event{Type: EventModelStart, Model: model}) {
				return
			}
		}

		type modelResult struct {
			model    string
			response *ModelResponse
			err      error
		}

		results := make(chan modelResult, len(e.models))
		var wg sync.WaitGroup
		for _, model := range e.models {
			wg.Add(1)
			go func(model string) {
				defer wg.Done()
				var resp *ModelResponse
				var err error
				if config.UseReasoning && e.hasTools() {
					resp, err = e.reasonForRound(ctx, model, config, out)
				} else {
					resp, err = e.queryForRound(ctx, model, config)
				}
				results <- modelResult{model: model, response: resp, err: err}
			}(model)
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		var responses []ModelResponse
		for res := range results {
			var ev Event
			switch {
			case res.err != nil:
				ev = Event{Type: EventModelError, Model: res.model, Error: errorText(res.err, e)}
			case res.response == nil:
				ev = Event{Type: EventModelError, Model: res.model, Error: "Model returned no response"}
			default:
				ev = Event{Type: EventModelComplete, Model: res.model, Response: res.response}
				responses = append(responses, *res.response)
			}
			if !emit(ctx, out, ev) {
				return
			}
		}

		e.log.Debug().Str("round", string(roundType)).Int("responses", len(responses)).
			Msg("parallel round complete")
		emit(ctx, out, Event{Type: EventRoundComplete, Responses: responses})
	}()
	return out
}

// reasonForRound runs one model's round contribution through the text-based
// reasoning loop under the per-model timeout. Thought, action, and
// observation events are forwarded; token events are dropped because
// concurrent models would interleave their streams unreadably.
func (e *Engine) reasonForRound(ctx context.Context, model string, config RoundConfig, out chan<- Event) (*ModelResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()

	inner := make(chan Event)
	done := make(chan reactResult, 1)
	go func() {
		defer close(inner)
		done <- e.reactLoop(ctx, model, buildCouncilReActPrompt(config.BuildPrompt(model)), inner)
	}()
	for ev := range inner {
		if ev.Type == EventToken {
			continue
		}
		emit(ctx, out, ev)
	}
	res := <-done

	if res.Content == "" {
		return nil, nil
	}
	result := &ModelResponse{
		Model:         model,
		Response:      res.Content,
		ToolCallsMade: res.ToolCallsMade,
	}
	if config.HasRevisedAnswer {
		result.RevisedAnswer = ParseRevisedAnswer(res.Content)
	}
	return result, nil
}

// queryForRound runs one model's contribution to a round under the
// per-model timeout.
func (e *Engine) queryForRound(ctx context.Context, model string, config RoundConfig) (*ModelResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()

	prompt := config.BuildPrompt(model)
	messages := llm.UserMessage(prompt)

	var resp *llm.ChatResponse
	var err error
	if config.UsesTools && e.hasTools() {
		resp, err = e.gw.ChatWithTools(ctx, model, messages, e.tools, e.exec)
	} else {
		resp, err = e.gw.Chat(ctx, model, messages)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	result := &ModelResponse{
		Model:         model,
		Response:      resp.Content,
		ToolCallsMade: resp.ToolCallsMade,
	}
	if config.HasRevisedAnswer {
		result.RevisedAnswer = ParseRevisedAnswer(resp.Content)
	}
	return result, nil
}

// errorText renders a per-model failure, naming timeouts explicitly so
// consumers can tell a slow model from a broken one.
func errorText(err error, e *Engine) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Timeout after %gs", e.modelTimeout.Seconds())
	}
	return err.Error()
}
