// Package render prints deliberation events to a terminal with lipgloss
// styling and glamour markdown for final answers.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/normanking/quorum/internal/council"
)

// Styles holds the pre-computed lipgloss styles for event output.
type Styles struct {
	RoundHeader lipgloss.Style
	Model       lipgloss.Style
	Thought     lipgloss.Style
	Action      lipgloss.Style
	Observation lipgloss.Style
	Tool        lipgloss.Style
	Error       lipgloss.Style
	Section     lipgloss.Style
	Dim         lipgloss.Style
}

// DefaultStyles builds the style set, adapting to the terminal background.
func DefaultStyles() Styles {
	accent := lipgloss.Color("12")
	if !termenv.HasDarkBackground() {
		accent = lipgloss.Color("4")
	}

	return Styles{
		RoundHeader: lipgloss.NewStyle().Bold(true).Foreground(accent),
		Model:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		Thought:     lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8")),
		Action:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Observation: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Tool:        lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Error:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		Section:     lipgloss.NewStyle().Bold(true).Underline(true),
		Dim:         lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Printer writes styled event output to a terminal.
type Printer struct {
	out    io.Writer
	styles Styles
	width  int

	// plain disables styling and markdown rendering.
	plain bool

	// streaming tracks whether the last write was a raw token, so
	// structural output can insert a newline first.
	streaming bool
}

// Option configures a Printer.
type Option func(*Printer)

// WithWidth sets the wrap width for markdown rendering.
func WithWidth(w int) Option {
	return func(p *Printer) {
		if w > 0 {
			p.width = w
		}
	}
}

// WithPlain disables colors and markdown rendering.
func WithPlain(plain bool) Option {
	return func(p *Printer) { p.plain = plain }
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer, opts ...Option) *Printer {
	p := &Printer{
		out:    out,
		styles: DefaultStyles(),
		width:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	if termenv.ColorProfile() == termenv.Ascii {
		p.plain = true
	}
	return p
}

// PrintEvent renders one deliberation event.
func (p *Printer) PrintEvent(ev council.Event) {
	switch ev.Type {
	case council.EventRoundStart:
		p.breakStream()
		p.println(p.styles.RoundHeader.Render(fmt.Sprintf("── Round %d: %s ──", ev.RoundNumber, ev.RoundType)))

	case council.EventModelStart:
		p.breakStream()
		p.println(p.styles.Model.Render(ev.Model) + p.style(p.styles.Dim, " thinking..."))

	case council.EventToken, council.EventSynthesisToken:
		fmt.Fprint(p.out, ev.Content)
		p.streaming = true

	case council.EventThought:
		p.breakStream()
		p.println(p.style(p.styles.Thought, "Thought: "+ev.Content))

	case council.EventAction:
		p.breakStream()
		p.println(p.style(p.styles.Action, fmt.Sprintf("Action: %s(%s)", ev.Tool, formatArgs(ev.Args))))

	case council.EventObservation:
		p.breakStream()
		p.println(p.style(p.styles.Observation, "Observation: "+truncateLine(ev.Content, 300)))

	case council.EventToolCall:
		p.breakStream()
		p.println(p.style(p.styles.Tool, fmt.Sprintf("⚙ %s(%s)", ev.Tool, formatArgs(ev.Args))))

	case council.EventToolResult:
		p.breakStream()
		p.println(p.style(p.styles.Dim, "  "+truncateLine(ev.Result, 200)))

	case council.EventModelComplete:
		p.breakStream()
		p.println(p.style(p.styles.Dim, fmt.Sprintf("✓ %s responded", ev.Model)))

	case council.EventModelError:
		p.breakStream()
		p.println(p.style(p.styles.Error, fmt.Sprintf("✗ %s: %s", ev.Model, ev.Error)))

	case council.EventRoundComplete:
		p.breakStream()
		p.println("")

	case council.EventSynthesisStart:
		p.breakStream()
		p.println(p.styles.Section.Render("Final Answer") + p.style(p.styles.Dim, fmt.Sprintf(" (%s)", ev.Model)))

	case council.EventReflection:
		p.breakStream()
		p.println(p.style(p.styles.Thought, "Reflection:"))
		p.println(p.style(p.styles.Dim, ev.Content))

	case council.EventSynthesis:
		p.breakStream()
		p.println(p.Markdown(ev.Content))

	case council.EventSynthesisComplete:
		p.breakStream()

	case council.EventError:
		p.breakStream()
		p.println(p.style(p.styles.Error, "Error: "+ev.Message))

	case council.EventDebateComplete:
		p.breakStream()
		if ev.Synthesis != nil && ev.Synthesis.Text != "" {
			p.println("")
			p.println(p.Markdown(ev.Synthesis.Text))
		}
	}
}

// PrintLeaderboard renders the aggregate ranking table.
func (p *Printer) PrintLeaderboard(ranked []council.RankedModel) {
	if len(ranked) == 0 {
		return
	}
	p.breakStream()
	p.println(p.styles.Section.Render("Leaderboard"))
	for i, r := range ranked {
		p.println(fmt.Sprintf("  %d. %s  %s", i+1,
			p.style(p.styles.Model, r.Model),
			p.style(p.styles.Dim, fmt.Sprintf("avg rank %.2f (%d rankings)", r.AverageRank, r.RankingsCount))))
	}
	p.println("")
}

// Markdown renders markdown content for the terminal, falling back to the
// raw text when rendering fails.
func (p *Printer) Markdown(content string) string {
	if p.plain || strings.TrimSpace(content) == "" {
		return content
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(p.width),
	)
	if err != nil {
		return content
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func (p *Printer) breakStream() {
	if p.streaming {
		fmt.Fprintln(p.out)
		p.streaming = false
	}
}

func (p *Printer) println(s string) {
	fmt.Fprintln(p.out, s)
}

func (p *Printer) style(st lipgloss.Style, s string) string {
	if p.plain {
		return s
	}
	return st.Render(s)
}

// formatArgs renders an event's argument payload: a key=value list for
// native tool calls, a quoted string for parsed reasoning actions.
func formatArgs(args any) string {
	switch v := args.(type) {
	case nil:
		return ""
	case string:
		return fmt.Sprintf("%q", v)
	case map[string]any:
		var parts []string
		for k, val := range v {
			parts = append(parts, fmt.Sprintf("%s=%v", k, val))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func truncateLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
