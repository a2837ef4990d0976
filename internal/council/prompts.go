package council

import (
	"fmt"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Prompt templates
//
// All prompt construction lives here so the round and synthesis logic stays
// free of string assembly.
// ═══════════════════════════════════════════════════════════════════════════

// dateContext prepends the current date so models with stale training
// cutoffs anchor time-sensitive answers correctly.
func dateContext() string {
	return fmt.Sprintf("Today's date is %s.\n\n", time.Now().Format("January 2, 2006"))
}

// buildRankingPrompt renders the stage-two judging prompt over anonymized
// responses.
func buildRankingPrompt(query, responsesText string) string {
	return fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, query, responsesText)
}

// buildChairmanPrompt renders the plain (non-reasoning) synthesis prompt for
// ranking mode.
func buildChairmanPrompt(query string, stage1 []StageOneResult, stage2 []StageTwoResult) string {
	return fmt.Sprintf(`%sYou are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: %s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Peer Rankings:
%s

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`,
		dateContext(), query, formatStageOne(stage1), formatStageTwo(stage2))
}

func formatStageOne(results []StageOneResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("Model: %s\nResponse: %s", r.Model, r.Response)
	}
	return strings.Join(parts, "\n\n")
}

func formatStageTwo(results []StageTwoResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("Model: %s\nRanking: [%s]", r.Judge, strings.Join(r.Ranking, ", "))
	}
	return strings.Join(parts, "\n\n")
}

// buildTitlePrompt renders the conversation title generation prompt.
func buildTitlePrompt(query string) string {
	return fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, query)
}

// buildCritiquePrompt renders the critique round prompt. The receiving model
// is named so it knows which response to leave alone.
func buildCritiquePrompt(query, responsesText, model string) string {
	return fmt.Sprintf(`%sYou are participating in a multi-model debate on the following question:

**Question:** %s

Here are the initial responses from all participating models:

%s

Your task is to critically evaluate the OTHER models' responses (not your own). For each model except yourself, provide a thorough critique that:
- Identifies strengths and what they got right
- Points out weaknesses, errors, or gaps in reasoning
- Challenges any questionable assumptions
- Notes missing information or perspectives

Your own response is from **%s** - do NOT critique yourself.

Format your response as follows:

## Critique of [Model Name]
[Your critique]

## Critique of [Model Name]
[Your critique]

(Continue for each model except yourself)`, dateContext(), query, responsesText, model)
}

// buildDefensePrompt renders the defense round prompt for one model.
func buildDefensePrompt(query, originalResponse, critiquesForMe string) string {
	return fmt.Sprintf(`%sYou are participating in a multi-model debate on the following question:

**Question:** %s

**Your original response:**
%s

**Critiques of your response from other models:**
%s

Your task is to:
1. Address the specific criticisms raised against your response
2. Defend points where you believe you were correct
3. Acknowledge valid criticisms and incorporate them
4. Provide a REVISED response that improves upon your original

Format your response as follows:

## Addressing Critiques
[Address each major criticism, explaining where you stand firm and where you concede]

## Revised Response
[Your updated, improved answer to the original question]`, dateContext(), query, originalResponse, critiquesForMe)
}

// buildDebateSynthesisPrompt renders the plain synthesis prompt over a full
// debate transcript.
func buildDebateSynthesisPrompt(query string, rounds []Round) string {
	return fmt.Sprintf(`%sYou are the Chairman of an LLM Council. Multiple AI models have participated in a structured debate to answer a user's question. The debate consisted of %d rounds:

1. **Initial Responses**: Each model provided their initial answer
2. **Critiques**: Each model critically evaluated the other models' responses
3. **Defense/Revision**: Each model addressed critiques and revised their answer

**Original Question:** %s

**DEBATE TRANSCRIPT:**
%s

Your task as Chairman is to synthesize all of this debate into a single, comprehensive, accurate answer. Consider:
- The evolution of arguments across rounds
- Which critiques were most valid and well-addressed
- Points of consensus among the models
- The strongest revised arguments
- Any remaining disagreements and how to resolve them

Provide a clear, well-reasoned final answer that represents the council's collective wisdom after deliberation:`,
		dateContext(), len(rounds), query, formatTranscript(rounds))
}

// formatTranscript renders rounds as a banner-delimited debate transcript.
func formatTranscript(rounds []Round) string {
	divider := strings.Repeat("=", 60)
	var parts []string
	for _, round := range rounds {
		parts = append(parts, "\n"+divider)
		parts = append(parts, fmt.Sprintf("ROUND %d: %s", round.Number, strings.ToUpper(string(round.Type))))
		parts = append(parts, divider)
		for _, resp := range round.Responses {
			parts = append(parts, fmt.Sprintf("\n**%s:**\n%s", resp.Model, resp.Response))
		}
	}
	return strings.Join(parts, "\n")
}

// buildReflectionPrompt renders the chairman reflection prompt. No tools are
// offered; the chairman reasons over the context it already has.
func buildReflectionPrompt(context string) string {
	return fmt.Sprintf(`%sYou are the Chairman of an LLM Council. Your role is to deeply analyse the responses provided by the council models and produce a single, comprehensive, accurate final answer.

Before writing your final answer, reflect on the following:
1. **Areas of agreement** - Where do the models converge? Shared conclusions are likely reliable.
2. **Areas of disagreement** - Where do they diverge? Evaluate which side presents stronger evidence or reasoning.
3. **Factual claims that warrant scrutiny** - Note any claims that seem uncertain, contradictory, or surprising.
4. **Quality differences** - Which responses are most thorough, well-reasoned, and supported?

After your analysis, provide your final answer under a `+"`## Synthesis`"+` header.

%s

Begin your analysis:`, dateContext(), context)
}

// buildReActPrompt renders the chairman reasoning prompt with the web search
// tool and the Thought/Action format contract.
func buildReActPrompt(context string) string {
	return fmt.Sprintf(`%sYou are the Chairman of an LLM Council using ReAct (Reasoning + Acting) to synthesize a final answer.

You have access to the following tool:
- search_web(query): Search the web to verify facts or get current information

When you have enough information, call synthesize() to produce your final answer.

IMPORTANT FORMAT - You MUST respond in this exact format:

Thought: <your reasoning about what you know and what you need>
Action: <either search_web("query") or synthesize()>

If you call search_web, you will receive an Observation with the results, then continue reasoning.
If you call synthesize(), write your final comprehensive answer after it.

Maximum 3 reasoning steps allowed. If unsure, synthesize with available information.

%s

Begin your reasoning:`, dateContext(), context)
}

// buildReActContextRanking renders ranking-mode results as chairman context.
func buildReActContextRanking(query string, stage1 []StageOneResult, stage2 []StageTwoResult) string {
	return fmt.Sprintf(`Original Question: %s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Peer Rankings:
%s`, query, formatStageOne(stage1), formatStageTwo(stage2))
}

// buildReActContextDebate renders debate-mode results as chairman context.
func buildReActContextDebate(query string, rounds []Round) string {
	return fmt.Sprintf(`Original Question: %s

The debate consisted of %d rounds:
1. **Initial Responses**: Each model provided their initial answer
2. **Critiques**: Each model critically evaluated the other models' responses
3. **Defense/Revision**: Each model addressed critiques and revised their answer

DEBATE TRANSCRIPT:
%s`, query, len(rounds), formatTranscript(rounds))
}

// formatResponsesForCritique renders a round's answers as attributed blocks
// for interpolation into the critique prompt.
func formatResponsesForCritique(responses []ModelResponse) string {
	parts := make([]string, len(responses))
	for i, r := range responses {
		parts[i] = fmt.Sprintf("**%s:**\n%s", r.Model, r.Response)
	}
	return strings.Join(parts, "\n\n")
}
