package council

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/quorum/internal/llm"
)

// Default deliberation parameters.
const (
	// DefaultModelTimeout bounds one model's work in a parallel round.
	DefaultModelTimeout = 120 * time.Second

	// DefaultMaxIterations caps reasoning-loop turns.
	DefaultMaxIterations = 3

	// DefaultTitleTimeout bounds conversation title generation.
	DefaultTitleTimeout = 30 * time.Second

	// DefaultTitleModel generates conversation titles. Fast and cheap
	// matters more than depth here.
	DefaultTitleModel = "google/gemini-2.5-flash"
)

// Engine runs council deliberations: the ranking flow, the debate state
// machine, and chairman synthesis. All model traffic goes through the
// gateway; all tool traffic goes through the executor.
type Engine struct {
	gw     llm.Gateway
	exec   llm.ToolExecutor
	models []string
	tools  []llm.ToolDef

	chairman   string
	titleModel string

	modelTimeout  time.Duration
	maxIterations int
	useReasoning  bool

	log zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithChairman sets the synthesis model.
func WithChairman(model string) EngineOption {
	return func(e *Engine) { e.chairman = model }
}

// WithTitleModel sets the conversation title model.
func WithTitleModel(model string) EngineOption {
	return func(e *Engine) { e.titleModel = model }
}

// WithToolExecutor wires tool support. Without it, rounds that would use
// tools run as plain completions.
func WithToolExecutor(exec llm.ToolExecutor, defs ...llm.ToolDef) EngineOption {
	return func(e *Engine) {
		e.exec = exec
		e.tools = defs
	}
}

// WithModelTimeout overrides the per-model round timeout.
func WithModelTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.modelTimeout = d }
}

// WithReasoning makes tool-capable streaming rounds run through the
// text-based reasoning loop instead of native tool calling.
func WithReasoning(enabled bool) EngineOption {
	return func(e *Engine) { e.useReasoning = enabled }
}

// WithMaxIterations overrides the reasoning-loop turn cap.
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) { e.maxIterations = n }
}

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log.With().Str("component", "council").Logger() }
}

// NewEngine creates a deliberation engine over the given gateway and
// council membership. The first council member chairs unless WithChairman
// says otherwise.
func NewEngine(gw llm.Gateway, models []string, opts ...EngineOption) *Engine {
	e := &Engine{
		gw:            gw,
		models:        models,
		titleModel:    DefaultTitleModel,
		modelTimeout:  DefaultModelTimeout,
		maxIterations: DefaultMaxIterations,
		log:           zerolog.Nop(),
	}
	if len(models) > 0 {
		e.chairman = models[0]
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Models returns the council membership.
func (e *Engine) Models() []string { return e.models }

// Chairman returns the synthesis model.
func (e *Engine) Chairman() string { return e.chairman }

// hasTools reports whether tool support is wired.
func (e *Engine) hasTools() bool {
	return e.exec != nil && len(e.tools) > 0
}
