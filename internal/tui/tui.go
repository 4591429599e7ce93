// Package tui is an interactive chat over the bridge: each line is an instruction,
// and slash commands inspect the catalog and the invocation history.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/ledger"
	"github.com/morezero/capability-bridge/pkg/orchestrator"
	"github.com/morezero/capability-bridge/pkg/session"
)

const helpText = `/caps            list the provider's capabilities
/history [k]     show the k most recent invocations (default 10)
/refresh         re-read the capability catalog
/connect         reconnect to the provider
/quit            leave the chat
Anything else is sent as an instruction.`

// Backend is what the chat needs from the bridge.
type Backend interface {
	State() session.State
	Catalog() *capability.Catalog
	Connect(ctx context.Context) error
	Refresh(ctx context.Context) error
	Run(ctx context.Context, instruction string) *orchestrator.Answer
	Recent(k int) []*invocation.Outcome
}

type runDoneMsg struct {
	answer *orchestrator.Answer
}

type actionDoneMsg struct {
	status string
	err    error
}

type theme struct {
	header   lipgloss.Style
	user     lipgloss.Style
	bridge   lipgloss.Style
	degraded lipgloss.Style
	muted    lipgloss.Style
	status   lipgloss.Style
	errLine  lipgloss.Style
	input    lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#0066cc")
	red := lipgloss.Color("#cc0000")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(blue).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(blue),
		user:     lipgloss.NewStyle().Foreground(mint).Bold(true),
		bridge:   lipgloss.NewStyle().Foreground(blue).Bold(true),
		degraded: lipgloss.NewStyle().Foreground(red).Bold(true),
		muted:    lipgloss.NewStyle().Foreground(muted),
		status:   lipgloss.NewStyle().Foreground(blue),
		errLine:  lipgloss.NewStyle().Foreground(red),
		input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
	}
}

// Model is the bubbletea model of the chat.
type Model struct {
	ctx     context.Context
	backend Backend

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    theme

	lines    []string
	busy     bool
	status   string
	width    int
	height   int
	quitting bool
}

// New builds the chat model. ctx bounds every run started from the chat.
func New(ctx context.Context, b Backend) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Ask something, or /help"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(80, 20)
	timeline.MouseWheelEnabled = true

	m := Model{
		ctx:      ctx,
		backend:  b,
		input:    input,
		timeline: timeline,
		spinner:  sp,
		theme:    newTheme(),
		status:   "ready",
	}
	m.appendLine(m.theme.muted.Render("Type /help for commands."))
	return m
}

// Run starts the chat on the terminal and blocks until the user quits.
func Run(ctx context.Context, b Backend) error {
	_, err := tea.NewProgram(New(ctx, b), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.timeline.Width = msg.Width
		m.timeline.Height = maxInt(3, msg.Height-7)
		m.input.Width = maxInt(10, msg.Width-6)
		m.render()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				break
			}
			if cmd := m.submit(line); cmd != nil {
				cmds = append(cmds, cmd)
			}
			if m.quitting {
				return m, tea.Quit
			}
		}
	case runDoneMsg:
		m.busy = false
		m.showAnswer(msg.answer)
		m.status = "ready"
	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.appendLine(m.theme.errLine.Render("error: " + msg.err.Error()))
			m.status = "action failed"
		} else {
			m.appendLine(m.theme.muted.Render(msg.status))
			m.status = msg.status
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.timeline, cmd = m.timeline.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles one entered line and returns the command that carries it out, if any.
func (m *Model) submit(line string) tea.Cmd {
	if !strings.HasPrefix(line, "/") {
		if m.busy {
			m.appendLine(m.theme.muted.Render("still working on the previous instruction"))
			return nil
		}
		m.appendLine(m.theme.user.Render("you: ") + line)
		m.busy = true
		m.status = "thinking"
		return m.runCmd(line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		m.quitting = true
	case "/help":
		m.appendLine(m.theme.muted.Render(helpText))
	case "/caps":
		m.appendLine(renderCatalog(m.backend.Catalog()))
	case "/history":
		k := ledger.DefaultCapacity
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 {
				m.appendLine(m.theme.errLine.Render("usage: /history [k]"))
				return nil
			}
			k = n
		}
		m.appendLine(RenderHistory(m.backend.Recent(k)))
	case "/refresh":
		m.busy = true
		m.status = "refreshing"
		return m.refreshCmd()
	case "/connect":
		m.busy = true
		m.status = "connecting"
		return m.connectCmd()
	default:
		m.appendLine(m.theme.errLine.Render(fmt.Sprintf("unknown command %s (try /help)", fields[0])))
	}
	return nil
}

func (m Model) runCmd(instruction string) tea.Cmd {
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		return runDoneMsg{answer: b.Run(ctx, instruction)}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		if err := b.Refresh(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("catalog refreshed (%d capabilities)", b.Catalog().Len())}
	}
}

func (m Model) connectCmd() tea.Cmd {
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		if err := b.Connect(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("connected (%d capabilities)", b.Catalog().Len())}
	}
}

func (m *Model) showAnswer(ans *orchestrator.Answer) {
	label := m.theme.bridge.Render("bridge: ")
	if ans.Kind == orchestrator.KindDegraded {
		label = m.theme.degraded.Render("bridge: ")
	}
	m.appendLine(label + ans.Text)
	if ans.Capability != "" {
		m.appendLine(m.theme.muted.Render(fmt.Sprintf("  (%s via %s)", ans.Kind, ans.Capability)))
	}
}

func (m *Model) appendLine(s string) {
	m.lines = append(m.lines, s)
	m.render()
}

func (m *Model) render() {
	m.timeline.SetContent(strings.Join(m.lines, "\n"))
	m.timeline.GotoBottom()
}

// Transcript returns the chat lines so far.
func (m Model) Transcript() []string {
	return append([]string(nil), m.lines...)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	state := m.backend.State()
	header := m.theme.header.Render(fmt.Sprintf("Capability Bridge · %s · %d capabilities", state, m.backend.Catalog().Len()))
	status := m.theme.status.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.timeline.View(),
		m.theme.input.Render(m.input.View()),
		status,
	)
}

func renderCatalog(cat *capability.Catalog) string {
	if cat.Len() == 0 {
		return "no capabilities listed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "catalog v%d:", cat.Version())
	for _, d := range cat.All() {
		fmt.Fprintf(&b, "\n  %s", d.Name)
		if req := d.Required(); len(req) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(req, ", "))
		}
		if d.Description != "" {
			fmt.Fprintf(&b, " - %s", d.Description)
		}
	}
	return b.String()
}

// RenderHistory formats outcomes newest first, one line each.
func RenderHistory(outs []*invocation.Outcome) string {
	if len(outs) == 0 {
		return "no invocations recorded"
	}
	var b strings.Builder
	for i, o := range outs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-8s %s", o.CompletedAt.Local().Format(time.TimeOnly), o.Status, o.Request.Capability)
		if o.ErrorCode != "" {
			fmt.Fprintf(&b, "  [%s] %s", o.ErrorCode, o.ErrorDetail)
		}
	}
	return b.String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
