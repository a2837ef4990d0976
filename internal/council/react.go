package council

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/normanking/quorum/internal/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// Text-based reasoning loops
//
// Some models handle native tool calling badly, so the engine can also run
// the classic Thought/Action/Observation protocol over plain completions.
// The loop is bounded; a model that never terminates cleanly gets its
// accumulated text taken as the answer.
// ═══════════════════════════════════════════════════════════════════════════

var (
	respondTailRe    = regexp.MustCompile(`(?is)Action:\s*respond\s*\(\s*\)\s*\n*(.*)`)
	synthesizeTailRe = regexp.MustCompile(`(?is)Action:\s*synthesize\s*\(\s*\)\s*\n*(.*)`)
)

// reactResult is the outcome of a council member's reasoning loop.
type reactResult struct {
	Content       string
	ToolCallsMade []llm.ToolCallRecord
}

// reactLoop runs one council member through the reasoning protocol,
// emitting token, thought, action, and observation events tagged with the
// model. Transport errors terminate the loop with an error-string result so
// the round can still count the model as responded.
func (e *Engine) reactLoop(ctx context.Context, model, prompt string, out chan<- Event) reactResult {
	messages := llm.UserMessage(prompt)
	var made []llm.ToolCallRecord
	var accumulated string

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		content, errText := e.streamTurn(ctx, model, messages, out)
		if errText != "" {
			return reactResult{Content: "Error: " + errText, ToolCallsMade: made}
		}
		accumulated = content

		step := ParseReActStep(accumulated)
		if step.Thought != "" {
			if !emit(ctx, out, Event{Type: EventThought, Model: model, Content: step.Thought}) {
				return reactResult{Content: accumulated, ToolCallsMade: made}
			}
		}

		switch step.Action {
		case ActionRespond, ActionSynthesize:
			emit(ctx, out, Event{Type: EventAction, Model: model, Tool: ActionRespond})
			return reactResult{
				Content:       terminalTail(step.Action, accumulated),
				ToolCallsMade: made,
			}

		case ActionSearchWeb:
			if !emit(ctx, out, Event{Type: EventAction, Model: model, Tool: ActionSearchWeb, Args: step.Args}) {
				return reactResult{Content: accumulated, ToolCallsMade: made}
			}

			observation := e.runSearch(ctx, step.Args)
			made = append(made, llm.ToolCallRecord{
				Tool:          ActionSearchWeb,
				Args:          map[string]any{"query": step.Args},
				ResultPreview: truncate(observation, 200),
			})
			if !emit(ctx, out, Event{Type: EventObservation, Model: model, Content: observation}) {
				return reactResult{Content: accumulated, ToolCallsMade: made}
			}

			messages = append(messages,
				llm.Message{Role: "assistant", Content: accumulated},
				llm.Message{Role: "user", Content: fmt.Sprintf("Observation: %s\n\nContinue your reasoning:", observation)},
			)

		default:
			if iteration < e.maxIterations {
				messages = append(messages,
					llm.Message{Role: "assistant", Content: accumulated},
					llm.Message{Role: "user", Content: `Please respond with a valid Action: either search_web("query") or respond()`},
				)
			} else {
				return reactResult{Content: accumulated, ToolCallsMade: made}
			}
		}
	}

	return reactResult{Content: accumulated, ToolCallsMade: made}
}

// SynthesizeWithReAct runs the chairman through the reasoning protocol over
// the deliberation context, with web search available for fact checking.
// Always produces a Synthesis; failures degrade to error-string text.
func (e *Engine) SynthesizeWithReAct(ctx context.Context, contextText string, out chan<- Event) *Synthesis {
	messages := llm.UserMessage(buildReActPrompt(contextText))
	var made []llm.ToolCallRecord
	var accumulated string

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		content, errText := e.streamTurn(ctx, e.chairman, messages, out)
		if errText != "" {
			return &Synthesis{Model: e.chairman, Text: "Error: " + errText, ToolCallsMade: made}
		}
		accumulated = content

		step := ParseReActStep(accumulated)
		if step.Thought != "" {
			if !emit(ctx, out, Event{Type: EventThought, Model: e.chairman, Content: step.Thought}) {
				return &Synthesis{Model: e.chairman, Text: accumulated, ToolCallsMade: made}
			}
		}

		switch step.Action {
		case ActionSynthesize:
			emit(ctx, out, Event{Type: EventAction, Model: e.chairman, Tool: ActionSynthesize})

			var text string
			if m := synthesizeTailRe.FindStringSubmatch(accumulated); m != nil {
				text = strings.TrimSpace(m[1])
			}
			if text == "" {
				// The model called synthesize() without writing the answer.
				// Ask for it directly.
				messages = append(messages,
					llm.Message{Role: "assistant", Content: accumulated},
					llm.Message{Role: "user", Content: "Please provide your final synthesized answer now (no Thought/Action format, just the answer):"},
				)
				text, errText = e.streamTurn(ctx, e.chairman, messages, out)
				if errText != "" {
					return &Synthesis{Model: e.chairman, Text: "Error: " + errText, ToolCallsMade: made}
				}
			}
			return &Synthesis{Model: e.chairman, Text: strings.TrimSpace(text), ToolCallsMade: made}

		case ActionSearchWeb:
			if !emit(ctx, out, Event{Type: EventAction, Model: e.chairman, Tool: ActionSearchWeb, Args: step.Args}) {
				return &Synthesis{Model: e.chairman, Text: accumulated, ToolCallsMade: made}
			}

			observation := e.runSearch(ctx, step.Args)
			made = append(made, llm.ToolCallRecord{
				Tool:          ActionSearchWeb,
				Args:          map[string]any{"query": step.Args},
				ResultPreview: truncate(observation, 200),
			})
			if !emit(ctx, out, Event{Type: EventObservation, Model: e.chairman, Content: observation}) {
				return &Synthesis{Model: e.chairman, Text: accumulated, ToolCallsMade: made}
			}

			messages = append(messages,
				llm.Message{Role: "assistant", Content: accumulated},
				llm.Message{Role: "user", Content: fmt.Sprintf("Observation: %s\n\nContinue your reasoning:", observation)},
			)

		default:
			if iteration < e.maxIterations {
				messages = append(messages,
					llm.Message{Role: "assistant", Content: accumulated},
					llm.Message{Role: "user", Content: `Please respond with a valid Action: either search_web("query") or synthesize()`},
				)
			} else {
				return &Synthesis{Model: e.chairman, Text: accumulated, ToolCallsMade: made}
			}
		}
	}

	return &Synthesis{Model: e.chairman, Text: accumulated, ToolCallsMade: made}
}

// streamTurn streams one completion, forwarding token events for the model.
// Returns the full content, or an error string when the stream failed.
func (e *Engine) streamTurn(ctx context.Context, model string, messages []llm.Message, out chan<- Event) (string, string) {
	var accumulated string
	for ev := range e.gw.ChatStream(ctx, model, messages) {
		switch ev.Type {
		case llm.StreamToken:
			accumulated += ev.Content
			if !emit(ctx, out, Event{Type: EventToken, Model: model, Content: ev.Content}) {
				return "", ctx.Err().Error()
			}
		case llm.StreamDone:
			if ev.Content != "" {
				accumulated = ev.Content
			}
		case llm.StreamError:
			return "", ev.Err
		}
	}
	return accumulated, ""
}

// runSearch executes a web search through the tool executor, reporting
// failures as observation text.
func (e *Engine) runSearch(ctx context.Context, query string) string {
	if e.exec == nil {
		return "Search failed: no tool executor configured"
	}
	result, err := e.exec(ctx, ActionSearchWeb, map[string]any{"query": query})
	if err != nil {
		return fmt.Sprintf("Search failed: %v", err)
	}
	return result
}

// terminalTail extracts the answer text following a terminal action call,
// falling back to the whole turn when nothing follows it.
func terminalTail(action, turn string) string {
	re := respondTailRe
	if action == ActionSynthesize {
		re = synthesizeTailRe
	}
	if m := re.FindStringSubmatch(turn); m != nil {
		return strings.TrimSpace(m[1])
	}
	return turn
}

// truncate cuts s to at most n runes, never splitting a multi-byte rune.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// buildCouncilReActPrompt wraps a round prompt with the reasoning protocol
// for council members, whose terminal action is respond().
func buildCouncilReActPrompt(prompt string) string {
	return fmt.Sprintf(`You are answering as part of a multi-model council, using ReAct (Reasoning + Acting).

You have access to the following tool:
- search_web(query): Search the web to verify facts or get current information

When you have enough information, call respond() and write your final answer after it.

IMPORTANT FORMAT - You MUST respond in this exact format:

Thought: <your reasoning about what you know and what you need>
Action: <either search_web("query") or respond()>

If you call search_web, you will receive an Observation with the results, then continue reasoning.
If you call respond(), write your final answer after it.

Maximum 3 reasoning steps allowed. If unsure, respond with available information.

%s

Begin your reasoning:`, prompt)
}
