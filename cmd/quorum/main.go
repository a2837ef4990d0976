// Package main is the entry point for the Quorum CLI.
// Quorum puts a question to a council of LLMs, has them rank or debate
// each other's answers, and synthesizes a final response.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/quorum/internal/config"
	"github.com/normanking/quorum/internal/council"
	"github.com/normanking/quorum/internal/data"
	"github.com/normanking/quorum/internal/llm"
	"github.com/normanking/quorum/internal/logging"
	"github.com/normanking/quorum/internal/render"
	"github.com/normanking/quorum/internal/server"
	"github.com/normanking/quorum/internal/tools"
	"github.com/normanking/quorum/internal/tui"
)

var (
	version = "0.1.0"

	cfgPath  string
	logLevel string

	// Deliberation flags
	flagCycles    int
	flagStream    bool
	flagReasoning bool
	flagPlain     bool
	flagStrategy  string
	flagModels    []string
	flagNoSave    bool
	flagTUI       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quorum",
		Short: "Quorum - multi-LLM council deliberation",
		Long: `Quorum puts a question to a council of LLMs and synthesizes one answer:
  • ask     - each model answers, then anonymously ranks its peers
  • debate  - structured critique and defense rounds before synthesis
  • serve   - HTTP API with websocket event streaming

Ask the council:   quorum ask "What changed in Go 1.23?"
Run a debate:      quorum debate --cycles 2 "Is eventual consistency enough?"
Configuration:     quorum config show`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.quorum/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(debateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(conversationsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Quorum v%s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ═══════════════════════════════════════════════════════════════════════════════

// app bundles the wired components a command needs.
type app struct {
	cfg    *config.Config
	engine *council.Engine
	store  *data.Store
	log    zerolog.Logger
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

// loadApp loads config, logging, the gateway, tools, and the engine.
// openStore controls whether the conversation database is opened.
func loadApp(openStore bool) (*app, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.Setup(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, err
	}

	apiKey := cfg.OpenRouterKey()
	if apiKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is not set")
	}

	gw := llm.NewClient(apiKey,
		llm.WithEndpoint(cfg.LLM.Endpoint),
		llm.WithMaxToolRounds(cfg.LLM.MaxToolRounds),
		llm.WithLogger(log),
	)

	models := cfg.Council.Models
	if len(flagModels) > 0 {
		models = flagModels
	}

	opts := []council.EngineOption{
		council.WithChairman(cfg.Council.Chairman),
		council.WithTitleModel(cfg.Council.TitleModel),
		council.WithModelTimeout(cfg.Council.ModelTimeout()),
		council.WithMaxIterations(cfg.Council.MaxIterations),
		council.WithReasoning(cfg.Council.UseReasoning || flagReasoning),
		council.WithLogger(log),
	}

	if tavilyKey := cfg.TavilyKey(); tavilyKey != "" {
		search := tools.NewWebSearch(tavilyKey,
			tools.WithMaxResults(cfg.Search.MaxResults),
			tools.WithLogger(log),
		)
		runner := tools.NewRunner(search)
		opts = append(opts, council.WithToolExecutor(runner.Execute, tools.SearchDef()))
	} else {
		log.Debug().Msg("TAVILY_API_KEY not set, web search disabled")
	}

	a := &app{
		cfg:    cfg,
		engine: council.NewEngine(gw, models, opts...),
		log:    log,
	}

	if openStore {
		store, err := data.NewStore(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = store
	}

	return a, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func strategyFromFlag(cfg *config.Config) council.SynthesisStrategy {
	if flagStrategy != "" {
		return council.SynthesisStrategy(flagStrategy)
	}
	return council.SynthesisStrategy(cfg.Council.SynthesisStrategy)
}

// ═══════════════════════════════════════════════════════════════════════════════
// ASK COMMAND (ranking flow)
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the council: parallel answers, anonymous peer ranking, synthesis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			a, err := loadApp(!flagNoSave)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			printer := render.NewPrinter(os.Stdout, render.WithPlain(flagPlain))

			result, err := a.engine.RunRanking(ctx, query)
			if err != nil {
				return err
			}

			printer.PrintLeaderboard(result.Aggregate)

			events := make(chan council.Event, 64)
			done := make(chan *council.Synthesis, 1)
			go func() {
				defer close(events)
				done <- a.engine.SynthesizeRanking(ctx, query, result, strategyFromFlag(a.cfg), events)
			}()

			printer.PrintEvent(council.Event{Type: council.EventSynthesisStart, Model: a.engine.Chairman()})
			for ev := range events {
				printer.PrintEvent(ev)
			}
			synthesis := <-done
			printer.PrintEvent(council.Event{Type: council.EventSynthesisComplete})
			fmt.Println()

			if a.store != nil && synthesis != nil {
				saveResult(ctx, a, query, synthesis.Text, map[string]any{
					"mode":      "ranking",
					"result":    result,
					"synthesis": synthesis,
				})
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&flagModels, "models", nil, "override council models")
	cmd.Flags().StringVar(&flagStrategy, "strategy", "", "synthesis strategy (plain, reflection, react)")
	cmd.Flags().BoolVar(&flagReasoning, "reasoning", false, "enable text-based reasoning with search")
	cmd.Flags().BoolVar(&flagPlain, "plain", false, "plain output, no colors or markdown")
	cmd.Flags().BoolVar(&flagNoSave, "no-save", false, "don't persist the conversation")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// DEBATE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func debateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debate <question>",
		Short: "Run a structured debate: initial answers, critiques, defenses, synthesis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			a, err := loadApp(!flagNoSave)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			cycles := a.cfg.Council.Cycles
			if flagCycles > 0 {
				cycles = flagCycles
			}

			exec := a.engine.RunRoundParallel
			if flagStream {
				exec = a.engine.RunRoundStreaming
			}

			events := a.engine.Debate(ctx, query, exec, cycles, strategyFromFlag(a.cfg))

			var synthesis *council.Synthesis
			var rounds []council.Round

			if flagTUI {
				synthesis, err = tui.Run(query, events)
				if err != nil {
					return err
				}
			} else {
				printer := render.NewPrinter(os.Stdout, render.WithPlain(flagPlain))
				for ev := range events {
					if ev.Type == council.EventDebateComplete {
						synthesis = ev.Synthesis
						rounds = ev.Rounds
					}
					printer.PrintEvent(ev)
				}
				fmt.Println()
			}

			if a.store != nil && synthesis != nil {
				saveResult(ctx, a, query, synthesis.Text, map[string]any{
					"mode":      "debate",
					"rounds":    rounds,
					"synthesis": synthesis,
				})
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&flagCycles, "cycles", 0, "critique/defense cycles (default from config)")
	cmd.Flags().BoolVar(&flagStream, "stream", false, "stream tokens model by model instead of running in parallel")
	cmd.Flags().StringSliceVar(&flagModels, "models", nil, "override council models")
	cmd.Flags().StringVar(&flagStrategy, "strategy", "", "synthesis strategy (plain, reflection, react)")
	cmd.Flags().BoolVar(&flagReasoning, "reasoning", false, "enable text-based reasoning with search")
	cmd.Flags().BoolVar(&flagPlain, "plain", false, "plain output, no colors or markdown")
	cmd.Flags().BoolVar(&flagTUI, "tui", false, "watch the debate in the terminal dashboard")
	cmd.Flags().BoolVar(&flagNoSave, "no-save", false, "don't persist the conversation")
	return cmd
}

// saveResult persists a user turn and the assistant's final answer.
func saveResult(ctx context.Context, a *app, query, answer string, metadata map[string]any) {
	title := a.engine.GenerateTitle(ctx, query)
	conv, err := a.store.CreateConversation(ctx, title)
	if err != nil {
		a.log.Error().Err(err).Msg("create conversation failed")
		return
	}
	if _, err := a.store.AppendMessage(ctx, conv.ID, "user", query, nil); err != nil {
		a.log.Error().Err(err).Msg("append user message failed")
		return
	}
	if _, err := a.store.AppendMessage(ctx, conv.ID, "assistant", answer, metadata); err != nil {
		a.log.Error().Err(err).Msg("append assistant message failed")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with websocket event streaming",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			if host != "" {
				a.cfg.Server.Host = host
			}
			if port > 0 {
				a.cfg.Server.Port = port
			}

			srv := server.New(a.cfg.Server, a.store, a.engine,
				server.WithLogger(a.log),
				server.WithStrategy(council.SynthesisStrategy(a.cfg.Council.SynthesisStrategy)),
				server.WithCycles(a.cfg.Council.Cycles),
			)
			return srv.Run()
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "bind host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "bind port (default from config)")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONVERSATIONS COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage stored conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			conversations, err := a.store.ListConversations(cmd.Context(), 50)
			if err != nil {
				return err
			}
			if len(conversations) == 0 {
				fmt.Println("No conversations yet.")
				return nil
			}
			for _, conv := range conversations {
				fmt.Printf("%s  %s  %s\n", conv.ID, conv.UpdatedAt.Format("2006-01-02 15:04"), conv.Title)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			conv, err := a.store.GetConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printer := render.NewPrinter(os.Stdout)
			fmt.Printf("%s (%s)\n\n", conv.Title, conv.CreatedAt.Format("2006-01-02 15:04"))
			for _, msg := range conv.Messages {
				fmt.Printf("[%s]\n", msg.Role)
				if msg.Role == "assistant" {
					fmt.Println(printer.Markdown(msg.Content))
				} else {
					fmt.Println(msg.Content)
				}
				fmt.Println()
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Deleted.")
			return nil
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			var err error
			if cfgPath != "" {
				cfg, err = config.LoadFromPath(cfgPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))

			fmt.Printf("\n# OPENROUTER_API_KEY set: %v\n", cfg.OpenRouterKey() != "")
			fmt.Printf("# TAVILY_API_KEY set: %v\n", cfg.TavilyKey() != "")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = home + "/.quorum/config.yaml"
			}
			if err := config.Default().SaveToPath(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})

	return cmd
}
