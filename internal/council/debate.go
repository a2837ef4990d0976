package council

import (
	"context"
)

// errNotEnoughModels aborts a debate whose initial round left fewer than
// two participants standing.
const errNotEnoughModels = "Not enough models responded to conduct a debate. Need at least 2 models."

// SynthesisStrategy selects how the chairman produces the final answer.
type SynthesisStrategy string

const (
	// SynthesisPlain streams a single direct synthesis completion.
	SynthesisPlain SynthesisStrategy = "plain"

	// SynthesisReflection has the chairman analyse before answering.
	SynthesisReflection SynthesisStrategy = "reflection"

	// SynthesisReAct lets the chairman search the web while synthesizing.
	SynthesisReAct SynthesisStrategy = "react"
)

// RunDebate orchestrates the debate round sequence: an initial round, then
// cycles critique/defense pairs. The sequence always ends on defense, so no
// critique goes unanswered. Round execution is delegated to execRound;
// events pass through with round metadata added to round_complete.
//
// The debate aborts with an error event when fewer than two models survive
// the initial round. Later rounds tolerate any number of survivors.
func (e *Engine) RunDebate(ctx context.Context, query string, execRound ExecuteRound, cycles int) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		if cycles < 1 {
			cycles = 1
		}

		type roundSpec struct {
			number int
			kind   RoundType
		}
		sequence := []roundSpec{{1, RoundInitial}}
		num := 2
		for i := 0; i < cycles; i++ {
			sequence = append(sequence, roundSpec{num, RoundCritique})
			num++
			sequence = append(sequence, roundSpec{num, RoundDefense})
			num++
		}

		var rounds []Round
		var initialResponses, critiqueResponses, currentResponses []ModelResponse

		for _, spec := range sequence {
			if !emit(ctx, out, Event{Type: EventRoundStart, RoundNumber: spec.number, RoundType: spec.kind}) {
				return
			}

			var rc RoundContext
			switch spec.kind {
			case RoundCritique:
				rc.InitialResponses = latest(currentResponses, initialResponses)
			case RoundDefense:
				rc.InitialResponses = latest(currentResponses, initialResponses)
				rc.CritiqueResponses = critiqueResponses
			}

			var responses []ModelResponse
			for ev := range execRound(ctx, spec.kind, query, rc) {
				if ev.Type == EventRoundComplete {
					responses = ev.Responses
					ev = Event{
						Type:        EventRoundComplete,
						RoundNumber: spec.number,
						RoundType:   spec.kind,
						Responses:   responses,
					}
				}
				if !emit(ctx, out, ev) {
					return
				}
			}

			rounds = append(rounds, Round{Number: spec.number, Type: spec.kind, Responses: responses})

			switch spec.kind {
			case RoundInitial:
				initialResponses = responses
				if len(initialResponses) < 2 {
					e.log.Warn().Int("responses", len(initialResponses)).Msg("debate aborted")
					emit(ctx, out, Event{Type: EventError, Message: errNotEnoughModels})
					return
				}
			case RoundCritique:
				critiqueResponses = responses
			case RoundDefense:
				currentResponses = responses
			}
		}

		emit(ctx, out, Event{Type: EventDebateComplete, Rounds: rounds})
	}()
	return out
}

// latest prefers the most recent defense round's output over the initial
// answers once one exists.
func latest(current, initial []ModelResponse) []ModelResponse {
	if len(current) > 0 {
		return current
	}
	return initial
}

// Debate runs the full debate flow: the round sequence followed by chairman
// synthesis under the given strategy. The final debate_complete event
// carries both the transcript and the synthesis.
func (e *Engine) Debate(ctx context.Context, query string, execRound ExecuteRound, cycles int, strategy SynthesisStrategy) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		var rounds []Round
		for ev := range e.RunDebate(ctx, query, execRound, cycles) {
			switch ev.Type {
			case EventDebateComplete:
				rounds = ev.Rounds
			case EventError:
				emit(ctx, out, ev)
				return
			default:
				if !emit(ctx, out, ev) {
					return
				}
			}
		}
		if ctx.Err() != nil {
			return
		}

		if !emit(ctx, out, Event{Type: EventSynthesisStart, Model: e.chairman}) {
			return
		}
		synthesis := e.synthesizeDebate(ctx, query, rounds, strategy, out)
		if !emit(ctx, out, Event{Type: EventSynthesisComplete, Synthesis: synthesis}) {
			return
		}

		emit(ctx, out, Event{Type: EventDebateComplete, Rounds: rounds, Synthesis: synthesis})
	}()
	return out
}

// synthesizeDebate dispatches chairman synthesis over a debate transcript.
func (e *Engine) synthesizeDebate(ctx context.Context, query string, rounds []Round, strategy SynthesisStrategy, out chan<- Event) *Synthesis {
	var synthesis *Synthesis
	switch strategy {
	case SynthesisReflection:
		synthesis = e.SynthesizeWithReflection(ctx, buildReActContextDebate(query, rounds), out)
	case SynthesisReAct:
		synthesis = e.SynthesizeWithReAct(ctx, buildReActContextDebate(query, rounds), out)
	default:
		synthesis = e.streamPlainSynthesis(ctx, buildDebateSynthesisPrompt(query, rounds), out)
	}
	emit(ctx, out, Event{Type: EventSynthesis, Model: synthesis.Model, Content: synthesis.Text})
	return synthesis
}
