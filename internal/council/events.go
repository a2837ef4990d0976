// Package council implements the multi-model deliberation engine for Quorum.
// A council of LLM backends answers a single question through either a
// two-stage ranking flow or a multi-round debate, and a chairman model
// synthesizes the final answer from the council's output.
package council

import (
	"context"
	"encoding/json"
)

// EventType identifies a deliberation event flowing from the engine to its
// consumers (CLI renderer, TUI, websocket server).
type EventType string

// Event types emitted by round executors and orchestrators. These names and
// payload shapes are the engine's API surface; presentation layers key off
// them directly.
const (
	// Round lifecycle
	EventRoundStart    EventType = "round_start"
	EventRoundComplete EventType = "round_complete"

	// Per-model lifecycle
	EventModelStart    EventType = "model_start"
	EventModelComplete EventType = "model_complete"
	EventModelError    EventType = "model_error"

	// Token streaming and tool activity
	EventToken      EventType = "token"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"

	// Reasoning loop output
	EventThought     EventType = "thought"
	EventAction      EventType = "action"
	EventObservation EventType = "observation"

	// Chairman synthesis
	EventSynthesisStart    EventType = "synthesis_start"
	EventSynthesisToken    EventType = "synthesis_token"
	EventReflection        EventType = "reflection"
	EventSynthesis         EventType = "synthesis"
	EventSynthesisComplete EventType = "synthesis_complete"

	// Flow termination
	EventError          EventType = "error"
	EventDebateComplete EventType = "debate_complete"
)

// Event is a single deliberation event. Only the fields relevant to the
// event's type are populated; everything else stays zero and is omitted
// from the JSON encoding.
type Event struct {
	Type EventType `json:"type"`

	// Model identifies which council member the event concerns.
	Model string `json:"model,omitempty"`

	// Content carries token text, thought text, or observation text.
	Content string `json:"content,omitempty"`

	// Tool activity (tool_call, tool_result, action events). Args holds
	// a map for native tool calls and the raw argument string for parsed
	// reasoning actions.
	Tool   string `json:"tool,omitempty"`
	Args   any    `json:"args,omitempty"`
	Result string `json:"result,omitempty"`

	// Error text for model_error events; Message for whole-flow error events.
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	// Round metadata (round_start, round_complete).
	RoundNumber int       `json:"round_number,omitempty"`
	RoundType   RoundType `json:"round_type,omitempty"`

	// Response carries a completed per-model result (model_complete).
	Response *ModelResponse `json:"response,omitempty"`

	// Responses carries the completed round's results (round_complete).
	Responses []ModelResponse `json:"responses,omitempty"`

	// Rounds carries the full transcript (debate_complete).
	Rounds []Round `json:"rounds,omitempty"`

	// Synthesis carries the chairman's final result.
	Synthesis *Synthesis `json:"synthesis,omitempty"`
}

// MarshalFrame encodes the event as a JSON frame for wire transports.
func (e Event) MarshalFrame() ([]byte, error) {
	return json.Marshal(e)
}

// emit sends ev on out unless ctx ends first. A false return means the
// consumer is gone and the producer must unwind; together with context
// cancellation this is what stops abandoned flows instead of wedging
// their goroutines on a send nobody reads.
func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
