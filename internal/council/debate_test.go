package council

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func debateModels() []string {
	return []string{"model-a", "model-b", "model-c"}
}

func TestRunDebate_RoundSequence(t *testing.T) {
	gw := newFakeGateway()
	e := NewEngine(gw, debateModels())

	events := collect(e.RunDebate(context.Background(), "question", e.RunRoundParallel, 2))

	starts := eventsOfType(events, EventRoundStart)
	require.Len(t, starts, 5)

	wantTypes := []RoundType{RoundInitial, RoundCritique, RoundDefense, RoundCritique, RoundDefense}
	for i, start := range starts {
		assert.Equal(t, i+1, start.RoundNumber)
		assert.Equal(t, wantTypes[i], start.RoundType)
	}

	// The sequence always ends on a defense round.
	last := starts[len(starts)-1]
	assert.Equal(t, RoundDefense, last.RoundType)

	complete := eventsOfType(events, EventDebateComplete)
	require.Len(t, complete, 1)
	require.Len(t, complete[0].Rounds, 5)
}

func TestRunDebate_DefaultsToOneCycle(t *testing.T) {
	gw := newFakeGateway()
	e := NewEngine(gw, debateModels())

	events := collect(e.RunDebate(context.Background(), "q", e.RunRoundParallel, 0))
	assert.Len(t, eventsOfType(events, EventRoundStart), 3)
}

func TestRunDebate_AbortsWithFewerThanTwoResponses(t *testing.T) {
	gw := newFakeGateway()
	gw.fail("model-b", assert.AnError)
	gw.fail("model-c", assert.AnError)
	e := NewEngine(gw, debateModels())

	events := collect(e.RunDebate(context.Background(), "q", e.RunRoundParallel, 1))

	errs := eventsOfType(events, EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, errNotEnoughModels, errs[0].Message)

	// No further rounds after the abort.
	assert.Len(t, eventsOfType(events, EventRoundStart), 1)
	assert.Empty(t, eventsOfType(events, EventDebateComplete))
}

func TestRunDebate_CritiquePromptSeesInitialResponses(t *testing.T) {
	gw := newFakeGateway()
	gw.respond("model-a", "Initial answer from A")
	gw.respond("model-b", "Initial answer from B")
	gw.respond("model-c", "Initial answer from C")
	e := NewEngine(gw, debateModels())

	collect(e.RunDebate(context.Background(), "q", e.RunRoundParallel, 1))

	calls := gw.callsFor("model-a")
	require.GreaterOrEqual(t, len(calls), 2)
	critiquePrompt := calls[1].prompt
	assert.Contains(t, critiquePrompt, "Initial answer from B")
	assert.Contains(t, critiquePrompt, "Initial answer from C")
}

func TestRunDebate_SecondCritiqueSeesDefenseFullText(t *testing.T) {
	gw := newFakeGateway()
	defense := "## Addressing Critiques\nFair points.\n\n## Revised Response\nRevised answer from A"
	// Queue: initial, critique, defense, critique, defense per model.
	gw.respond("model-a", "Initial A", "Critique A", defense, "Critique A2", defense)
	gw.respond("model-b", "Initial B", "Critique B", "Defense B", "Critique B2", "Defense B")
	gw.respond("model-c", "Initial C", "Critique C", "Defense C", "Critique C2", "Defense C")
	e := NewEngine(gw, debateModels())

	collect(e.RunDebate(context.Background(), "q", e.RunRoundParallel, 2))

	calls := gw.callsFor("model-b")
	require.Len(t, calls, 5)
	secondCritique := calls[3].prompt
	// The next critique round sees the full defense text, not just the
	// extracted revised answer.
	assert.Contains(t, secondCritique, "## Addressing Critiques")
	assert.Contains(t, secondCritique, "Revised answer from A")
	assert.NotContains(t, secondCritique, "Initial A")
}

func TestRunDebate_DefenseExtractsRevisedAnswer(t *testing.T) {
	gw := newFakeGateway()
	defense := "## Addressing Critiques\nok\n\n## Revised Response\nBetter answer"
	gw.respond("model-a", "Initial A", "Critique A", defense)
	gw.respond("model-b", "Initial B", "Critique B", "no sections here")
	gw.respond("model-c", "Initial C", "Critique C", "also plain")
	e := NewEngine(gw, debateModels())

	events := collect(e.RunDebate(context.Background(), "q", e.RunRoundParallel, 1))

	complete := eventsOfType(events, EventDebateComplete)
	require.Len(t, complete, 1)
	rounds := complete[0].Rounds
	require.Len(t, rounds, 3)

	defenseRound := rounds[2]
	require.Equal(t, RoundDefense, defenseRound.Type)
	byModel := make(map[string]ModelResponse)
	for _, r := range defenseRound.Responses {
		byModel[r.Model] = r
	}
	assert.Equal(t, "Better answer", byModel["model-a"].RevisedAnswer)
	// Without the section, the revised answer is the full text.
	assert.Equal(t, "no sections here", byModel["model-b"].RevisedAnswer)
}

func TestDebate_EmitsSynthesisEvents(t *testing.T) {
	gw := newFakeGateway()
	e := NewEngine(gw, debateModels())

	events := collect(e.Debate(context.Background(), "q", e.RunRoundParallel, 1, SynthesisPlain))

	require.Len(t, eventsOfType(events, EventSynthesisStart), 1)
	assert.NotEmpty(t, eventsOfType(events, EventSynthesisToken))
	require.Len(t, eventsOfType(events, EventSynthesis), 1)
	require.Len(t, eventsOfType(events, EventSynthesisComplete), 1)

	complete := eventsOfType(events, EventDebateComplete)
	require.Len(t, complete, 1)
	require.NotNil(t, complete[0].Synthesis)
	assert.Len(t, complete[0].Rounds, 3)
	// The chairman defaults to the first council member.
	assert.Equal(t, "model-a", complete[0].Synthesis.Model)
}

func TestDebate_ReflectionStrategy(t *testing.T) {
	gw := newFakeGateway()
	// Round responses for all models, then the chairman reflection turn.
	gw.respond("model-a",
		"Initial A", "Critique A", "Defense A",
		"The models agree on the basics.\n\n## Synthesis\nFinal consolidated answer.")
	e := NewEngine(gw, debateModels())

	events := collect(e.Debate(context.Background(), "q", e.RunRoundParallel, 1, SynthesisReflection))

	reflections := eventsOfType(events, EventReflection)
	require.Len(t, reflections, 1)
	assert.Equal(t, "The models agree on the basics.", reflections[0].Content)

	complete := eventsOfType(events, EventDebateComplete)
	require.Len(t, complete, 1)
	require.NotNil(t, complete[0].Synthesis)
	assert.Equal(t, "Final consolidated answer.", complete[0].Synthesis.Text)
	assert.Equal(t, "The models agree on the basics.", complete[0].Synthesis.Reflection)
}

func TestDebate_ErrorStopsBeforeSynthesis(t *testing.T) {
	gw := newFakeGateway()
	gw.fail("model-a", assert.AnError)
	gw.fail("model-b", assert.AnError)
	gw.fail("model-c", assert.AnError)
	e := NewEngine(gw, debateModels())

	events := collect(e.Debate(context.Background(), "q", e.RunRoundParallel, 1, SynthesisPlain))

	require.Len(t, eventsOfType(events, EventError), 1)
	assert.Empty(t, eventsOfType(events, EventSynthesisStart))
	assert.Empty(t, eventsOfType(events, EventDebateComplete))
}

func TestDebate_TranscriptFlowsIntoSynthesisPrompt(t *testing.T) {
	gw := newFakeGateway()
	gw.respond("model-a", "Initial A", "Critique A", "Defense A")
	gw.respond("model-b", "Initial B", "Critique B", "Defense B")
	gw.respond("model-c", "Initial C", "Critique C", "Defense C")
	e := NewEngine(gw, debateModels(), WithChairman("model-a"))

	collect(e.Debate(context.Background(), "q", e.RunRoundParallel, 1, SynthesisPlain))

	calls := gw.callsFor("model-a")
	require.NotEmpty(t, calls)
	synthPrompt := calls[len(calls)-1].prompt
	assert.Contains(t, synthPrompt, "ROUND 1: INITIAL")
	assert.Contains(t, synthPrompt, "ROUND 3: "+strings.ToUpper(string(RoundDefense)))
	assert.Contains(t, synthPrompt, "Defense B")
}

func TestRunDebate_CancelledConsumerUnwindsProducers(t *testing.T) {
	gw := newFakeGateway()
	e := NewEngine(gw, debateModels())

	for name, exec := range map[string]ExecuteRound{
		"parallel":  e.RunRoundParallel,
		"streaming": e.RunRoundStreaming,
	} {
		t.Run(name, func(t *testing.T) {
			before := runtime.NumGoroutine()

			// A consumer that reads one event, cancels, and walks away
			// must not strand the round and stream goroutines.
			for i := 0; i < 4; i++ {
				ctx, cancel := context.WithCancel(context.Background())
				ch := e.RunDebate(ctx, "q", exec, 2)
				<-ch
				cancel()
			}

			require.Eventually(t, func() bool {
				return runtime.NumGoroutine() <= before+2
			}, 2*time.Second, 20*time.Millisecond)
		})
	}
}
