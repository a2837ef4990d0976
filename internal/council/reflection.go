package council

import (
	"context"

	"github.com/normanking/quorum/internal/llm"
)

// SynthesizeWithReflection runs the chairman through a single reflective
// completion: it analyses the council output, then writes the final answer
// under a "## Synthesis" header. Tokens stream as they arrive; a reflection
// event carries the analysis once the turn completes.
func (e *Engine) SynthesizeWithReflection(ctx context.Context, contextText string, out chan<- Event) *Synthesis {
	messages := llm.UserMessage(buildReflectionPrompt(contextText))

	content, errText := e.streamTurn(ctx, e.chairman, messages, out)
	if errText != "" {
		return &Synthesis{Model: e.chairman, Text: "Error: " + errText}
	}

	reflection, synthesis := SplitReflection(content)
	emit(ctx, out, Event{Type: EventReflection, Model: e.chairman, Content: reflection})
	return &Synthesis{Model: e.chairman, Text: synthesis, Reflection: reflection}
}
