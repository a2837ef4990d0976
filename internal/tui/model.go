// Package tui provides a bubbletea dashboard for watching a deliberation
// live: per-model round status, reasoning traces, and the streamed final
// answer.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/normanking/quorum/internal/council"
	"github.com/normanking/quorum/internal/render"
)

// eventMsg carries one deliberation event into the update loop.
type eventMsg council.Event

// streamDoneMsg signals the event channel closed.
type streamDoneMsg struct{}

// Model is the dashboard state.
type Model struct {
	width  int
	height int
	ready  bool

	query  string
	events <-chan council.Event

	spinner  spinner.Model
	viewport viewport.Model
	styles   Styles

	// lines is the scrollback of structural output.
	lines []string

	// modelStatus tracks each council member's state in the current round.
	modelStatus map[string]string
	modelOrder  []string

	// stream accumulates raw token output for the in-progress response.
	stream strings.Builder

	round     int
	roundType string
	running   bool
	done      bool

	synthesis *council.Synthesis
	printer   *render.Printer
}

// Styles holds the dashboard's lipgloss styles.
type Styles struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Model    lipgloss.Style
	Status   lipgloss.Style
	ErrorTxt lipgloss.Style
	Footer   lipgloss.Style
	Dim      lipgloss.Style
}

// DefaultStyles returns the dashboard styles.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		Model:    lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Status:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		ErrorTxt: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Footer:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// NewModel creates a dashboard consuming events for the given query.
func NewModel(query string, events <-chan council.Event) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(100, 30)

	return Model{
		query:       query,
		events:      events,
		spinner:     sp,
		viewport:    vp,
		styles:      DefaultStyles(),
		modelStatus: make(map[string]string),
		running:     true,
		printer:     render.NewPrinter(nil, render.WithPlain(true)),
	}
}

// Synthesis returns the final synthesis once the deliberation completed.
func (m Model) Synthesis() *council.Synthesis {
	return m.synthesis
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent reads the next engine event.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return streamDoneMsg{}
		}
		return eventMsg(ev)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 6
		if m.viewport.Height < 5 {
			m.viewport.Height = 5
		}
		m.ready = true
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(council.Event(msg))
		m.refresh()
		return m, m.waitForEvent()

	case streamDoneMsg:
		m.running = false
		m.done = true
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// apply folds one event into the dashboard state.
func (m *Model) apply(ev council.Event) {
	switch ev.Type {
	case council.EventRoundStart:
		m.flushStream()
		m.round = ev.RoundNumber
		m.roundType = string(ev.RoundType)
		m.modelStatus = make(map[string]string)
		m.modelOrder = nil
		m.appendLine(m.styles.Header.Render(fmt.Sprintf("── Round %d: %s ──", ev.RoundNumber, ev.RoundType)))

	case council.EventModelStart:
		if _, seen := m.modelStatus[ev.Model]; !seen {
			m.modelOrder = append(m.modelOrder, ev.Model)
		}
		m.modelStatus[ev.Model] = "thinking"

	case council.EventToken, council.EventSynthesisToken:
		m.stream.WriteString(ev.Content)

	case council.EventThought:
		m.flushStream()
		m.appendLine(m.styles.Dim.Render("Thought: " + firstLine(ev.Content)))

	case council.EventAction:
		m.flushStream()
		m.appendLine(m.styles.Dim.Render("Action: " + ev.Tool))

	case council.EventObservation:
		m.flushStream()
		m.appendLine(m.styles.Dim.Render("Observation: " + firstLine(ev.Content)))

	case council.EventToolCall:
		m.flushStream()
		m.appendLine(m.styles.Model.Render(fmt.Sprintf("⚙ %s", ev.Tool)))

	case council.EventModelComplete:
		m.flushStream()
		m.modelStatus[ev.Model] = "done"
		m.appendLine(m.styles.Status.Render("✓ " + ev.Model))

	case council.EventModelError:
		m.flushStream()
		m.modelStatus[ev.Model] = "failed"
		m.appendLine(m.styles.ErrorTxt.Render(fmt.Sprintf("✗ %s: %s", ev.Model, ev.Error)))

	case council.EventRoundComplete:
		m.flushStream()
		m.appendLine("")

	case council.EventSynthesisStart:
		m.flushStream()
		m.appendLine(m.styles.Header.Render("── Synthesis: " + ev.Model + " ──"))

	case council.EventReflection:
		m.flushStream()
		m.appendLine(m.styles.Dim.Render("Reflection: " + firstLine(ev.Content)))

	case council.EventSynthesis:
		m.flushStream()
		m.appendLine(m.printer.Markdown(ev.Content))

	case council.EventError:
		m.flushStream()
		m.appendLine(m.styles.ErrorTxt.Render("Error: " + ev.Message))

	case council.EventDebateComplete:
		m.flushStream()
		m.synthesis = ev.Synthesis
		if ev.Synthesis != nil && ev.Synthesis.Text != "" {
			m.appendLine("")
			m.appendLine(m.printer.Markdown(ev.Synthesis.Text))
		}

	case council.EventSynthesisComplete:
		m.flushStream()
		if ev.Synthesis != nil {
			m.synthesis = ev.Synthesis
		}
	}
}

// flushStream moves accumulated token output into the scrollback.
func (m *Model) flushStream() {
	if m.stream.Len() == 0 {
		return
	}
	m.appendLine(m.stream.String())
	m.stream.Reset()
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
}

func (m *Model) refresh() {
	content := strings.Join(m.lines, "\n")
	if m.stream.Len() > 0 {
		content += "\n" + m.stream.String()
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Quorum") + "  " + m.styles.Dim.Render(truncateQuery(m.query, m.width-10)))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.running {
		b.WriteString(m.spinner.View() + m.styles.Footer.Render(" deliberating · q to quit"))
	} else {
		b.WriteString(m.styles.Footer.Render("done · q to quit"))
	}
	return b.String()
}

// statusLine renders the per-model round status.
func (m Model) statusLine() string {
	if len(m.modelOrder) == 0 {
		return m.styles.Dim.Render("starting...")
	}

	var parts []string
	for _, model := range m.modelOrder {
		status := m.modelStatus[model]
		var mark string
		switch status {
		case "done":
			mark = m.styles.Status.Render("✓")
		case "failed":
			mark = m.styles.ErrorTxt.Render("✗")
		default:
			mark = m.spinner.View()
		}
		parts = append(parts, fmt.Sprintf("%s %s", mark, m.styles.Model.Render(shortModel(model))))
	}
	return strings.Join(parts, "  ")
}

// shortModel strips the provider prefix for compact display.
func shortModel(model string) string {
	if i := strings.IndexByte(model, '/'); i >= 0 {
		return model[i+1:]
	}
	return model
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}

func truncateQuery(q string, max int) string {
	if max < 10 {
		max = 10
	}
	if len(q) <= max {
		return q
	}
	return q[:max-3] + "..."
}

// Run starts the dashboard and blocks until the user exits.
func Run(query string, events <-chan council.Event) (*council.Synthesis, error) {
	p := tea.NewProgram(NewModel(query, events), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("run tui: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.Synthesis(), nil
	}
	return nil, nil
}
