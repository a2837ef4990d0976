package council

import "github.com/normanking/quorum/internal/llm"

// RoundType names a debate round's role in the sequence.
type RoundType string

const (
	RoundInitial  RoundType = "initial"
	RoundCritique RoundType = "critique"
	RoundDefense  RoundType = "defense"
)

// ModelResponse is one council member's contribution to a round.
type ModelResponse struct {
	Model string `json:"model"`

	// Response is the full text the model produced for the round.
	Response string `json:"response"`

	// RevisedAnswer is the extracted standalone answer for rounds that
	// request one (defense rounds). Empty otherwise.
	RevisedAnswer string `json:"revised_answer,omitempty"`

	// ToolCallsMade records any search or tool activity the model performed
	// while producing the response.
	ToolCallsMade []llm.ToolCallRecord `json:"tool_calls_made,omitempty"`
}

// Round is one completed debate round.
type Round struct {
	Number    int             `json:"round_number"`
	Type      RoundType       `json:"round_type"`
	Responses []ModelResponse `json:"responses"`
}

// RoundContext carries the prior rounds' output a round needs to build its
// prompts. The orchestrator fills it per round type: critique rounds get the
// latest baseline responses, defense rounds additionally get the critiques.
type RoundContext struct {
	// InitialResponses is the current baseline answer set: round 1 output,
	// or the latest defense round's output once one has completed.
	InitialResponses []ModelResponse

	// CritiqueResponses is the most recent critique round's output.
	CritiqueResponses []ModelResponse
}

// RoundConfig describes how a round executes. BuildPrompt closes over the
// debate context so executors stay ignorant of round semantics.
type RoundConfig struct {
	Type RoundType

	// UsesTools grants the round's models access to web search.
	UsesTools bool

	// BuildPrompt renders the round prompt for one model.
	BuildPrompt func(model string) string

	// HasRevisedAnswer marks rounds whose output carries a standalone
	// revised answer section to extract.
	HasRevisedAnswer bool

	// UseReasoning runs the round through the ReAct loop instead of a
	// plain completion.
	UseReasoning bool
}

// Synthesis is the chairman's final product.
type Synthesis struct {
	Model string `json:"model"`
	Text  string `json:"text"`

	// Reflection holds the chairman's pre-answer deliberation when the
	// reflection strategy produced one.
	Reflection string `json:"reflection,omitempty"`

	ToolCallsMade []llm.ToolCallRecord `json:"tool_calls_made,omitempty"`
}

// RankedModel is one entry in the aggregate leaderboard.
type RankedModel struct {
	Model string `json:"model"`

	// AverageRank is the mean 1-based position across all judges that
	// ranked this model, rounded to two decimals. Lower is better.
	AverageRank float64 `json:"average_rank"`

	// RankingsCount is how many judges ranked this model.
	RankingsCount int `json:"rankings_count"`
}

// StageOneResult pairs a model with its anonymized first-stage answer.
type StageOneResult struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// StageTwoResult is one judge's ranking of the anonymized answers.
type StageTwoResult struct {
	Judge   string   `json:"judge"`
	Raw     string   `json:"raw"`
	Ranking []string `json:"ranking"`
}
