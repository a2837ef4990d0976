package council

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/normanking/quorum/internal/llm"
)

// RankingResult is the product of the two-stage ranking flow.
type RankingResult struct {
	Stage1       []StageOneResult  `json:"stage1"`
	Stage2       []StageTwoResult  `json:"stage2"`
	LabelToModel map[string]string `json:"label_to_model"`
	Aggregate    []RankedModel     `json:"aggregate_rankings"`
}

// StageOne collects each council model's answer to the query. Models get
// tool access and decide themselves whether to search. Failed models are
// dropped; the returned slice preserves council order among survivors.
func (e *Engine) StageOne(ctx context.Context, query string) []StageOneResult {
	prompt := dateContext() + query
	messages := llm.UserMessage(prompt)

	type slot struct {
		resp *llm.ChatResponse
		err  error
	}
	slots := make([]slot, len(e.models))

	var wg sync.WaitGroup
	for i, model := range e.models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, e.modelTimeout)
			defer cancel()

			var resp *llm.ChatResponse
			var err error
			if e.hasTools() {
				resp, err = e.gw.ChatWithTools(ctx, model, messages, e.tools, e.exec)
			} else {
				resp, err = e.gw.Chat(ctx, model, messages)
			}
			slots[i] = slot{resp: resp, err: err}
		}(i, model)
	}
	wg.Wait()

	var results []StageOneResult
	for i, s := range slots {
		if s.err != nil || s.resp == nil {
			if s.err != nil {
				e.log.Warn().Err(s.err).Str("model", e.models[i]).Msg("stage one model failed")
			}
			continue
		}
		results = append(results, StageOneResult{Model: e.models[i], Response: s.resp.Content})
	}
	return results
}

// StageTwo has every council model rank the anonymized stage-one answers.
// Labels are assigned per call in stage-one order: Response A, Response B,
// and so on. Returns the judges' results and the label-to-model mapping
// needed to de-anonymize them.
func (e *Engine) StageTwo(ctx context.Context, query string, stage1 []StageOneResult) ([]StageTwoResult, map[string]string) {
	labelToModel := make(map[string]string, len(stage1))
	var blocks []string
	for i, result := range stage1 {
		label := fmt.Sprintf("Response %c", 'A'+i)
		labelToModel[label] = result.Model
		blocks = append(blocks, fmt.Sprintf("%s:\n%s", label, result.Response))
	}

	prompt := buildRankingPrompt(query, strings.Join(blocks, "\n\n"))
	messages := llm.UserMessage(prompt)

	type slot struct {
		resp *llm.ChatResponse
		err  error
	}
	slots := make([]slot, len(e.models))

	var wg sync.WaitGroup
	for i, model := range e.models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, e.modelTimeout)
			defer cancel()
			resp, err := e.gw.Chat(ctx, model, messages)
			slots[i] = slot{resp: resp, err: err}
		}(i, model)
	}
	wg.Wait()

	var results []StageTwoResult
	for i, s := range slots {
		if s.err != nil || s.resp == nil {
			if s.err != nil {
				e.log.Warn().Err(s.err).Str("model", e.models[i]).Msg("stage two model failed")
			}
			continue
		}
		results = append(results, StageTwoResult{
			Judge:   e.models[i],
			Raw:     s.resp.Content,
			Ranking: ParseRanking(s.resp.Content),
		})
	}
	return results, labelToModel
}

// RunRanking executes the ranking flow: answers, peer rankings, aggregate
// leaderboard. Synthesis is a separate step so callers choose a strategy.
func (e *Engine) RunRanking(ctx context.Context, query string) (*RankingResult, error) {
	stage1 := e.StageOne(ctx, query)
	if len(stage1) == 0 {
		return nil, fmt.Errorf("no council models responded")
	}

	stage2, labelToModel := e.StageTwo(ctx, query, stage1)

	return &RankingResult{
		Stage1:       stage1,
		Stage2:       stage2,
		LabelToModel: labelToModel,
		Aggregate:    AggregateRankings(stage2, labelToModel),
	}, nil
}

// SynthesizeRanking runs chairman synthesis over ranking-flow results under
// the given strategy, emitting synthesis events to out.
func (e *Engine) SynthesizeRanking(ctx context.Context, query string, result *RankingResult, strategy SynthesisStrategy, out chan<- Event) *Synthesis {
	var synthesis *Synthesis
	switch strategy {
	case SynthesisReflection:
		synthesis = e.SynthesizeWithReflection(ctx, buildReActContextRanking(query, result.Stage1, result.Stage2), out)
	case SynthesisReAct:
		synthesis = e.SynthesizeWithReAct(ctx, buildReActContextRanking(query, result.Stage1, result.Stage2), out)
	default:
		synthesis = e.streamPlainSynthesis(ctx, buildChairmanPrompt(query, result.Stage1, result.Stage2), out)
	}
	emit(ctx, out, Event{Type: EventSynthesis, Model: synthesis.Model, Content: synthesis.Text})
	return synthesis
}

// streamPlainSynthesis streams a single direct chairman completion,
// emitting synthesis_token events. Stream failures degrade to error-string
// synthesis text.
func (e *Engine) streamPlainSynthesis(ctx context.Context, prompt string, out chan<- Event) *Synthesis {
	var content string
	for ev := range e.gw.ChatStream(ctx, e.chairman, llm.UserMessage(prompt)) {
		switch ev.Type {
		case llm.StreamToken:
			content += ev.Content
			if !emit(ctx, out, Event{Type: EventSynthesisToken, Model: e.chairman, Content: ev.Content}) {
				return &Synthesis{Model: e.chairman, Text: content}
			}
		case llm.StreamDone:
			if ev.Content != "" {
				content = ev.Content
			}
		case llm.StreamError:
			content = fmt.Sprintf("Error: %s", ev.Err)
		}
	}
	return &Synthesis{Model: e.chairman, Text: content}
}
