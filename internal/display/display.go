// Package display is the terminal front end: a Bubble Tea program with a
// session status bar over a command prompt. Output from any goroutine is
// routed through the program so it lands above the prompt instead of
// tearing it.
package display

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
)

// ── Palette ──────────────────────────────────────────────────────

var (
	// BannerStyle colours the startup banner.
	BannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))

	affirmationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#bae6fd"))
	primaryStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d4d4d8"))
	secondaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#71717a"))
	urgentStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#fca5a5"))
	promptStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	echoStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#a1a1aa"))
)

const (
	prompt      = "affirm> "
	refreshRate = 500 * time.Millisecond
	historySize = 50
)

// StateFunc returns the current session snapshot for the status bar.
type StateFunc func() domain.SessionState

// UI owns the terminal while Run is executing. Output methods may be
// called from any goroutine; before Run starts and after it returns they
// write straight to stdout.
type UI struct {
	state   StateFunc
	program atomic.Pointer[tea.Program]
	lines   chan string
	ready   chan struct{}
	stopped atomic.Bool
}

// NewUI creates the display. A nil state hides the status bar.
func NewUI(state StateFunc) *UI {
	return &UI{
		state: state,
		lines: make(chan string, 16),
		ready: make(chan struct{}),
	}
}

// InputChan delivers each submitted command line.
func (u *UI) InputChan() <-chan string { return u.lines }

// WaitReady blocks until the event loop is accepting output.
func (u *UI) WaitReady() { <-u.ready }

// Quit asks the event loop to exit. Run then returns.
func (u *UI) Quit() {
	if p := u.program.Load(); p != nil {
		p.Quit()
	}
}

// Run takes over the terminal until Quit or Ctrl-C.
func (u *UI) Run() error {
	p := tea.NewProgram(newModel(u.state, u.lines, u.ready))
	u.program.Store(p)
	_, err := p.Run()
	u.stopped.Store(true)
	return err
}

// ── Output ───────────────────────────────────────────────────────

// Println writes one line above the prompt.
func (u *UI) Println(a ...interface{}) {
	u.write(strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
}

// Printf writes one formatted line above the prompt.
func (u *UI) Printf(format string, a ...interface{}) {
	u.write(fmt.Sprintf(format, a...))
}

func (u *UI) PrintAffirmation(text string) { u.styled(affirmationStyle, text) }
func (u *UI) PrintInfo(text string)        { u.styled(primaryStyle, text) }
func (u *UI) PrintHint(text string)        { u.styled(secondaryStyle, text) }
func (u *UI) PrintUrgent(text string)      { u.styled(urgentStyle, text) }

func (u *UI) styled(s lipgloss.Style, text string) {
	u.write(s.Render("  " + text))
}

func (u *UI) write(line string) {
	if p := u.program.Load(); p != nil && !u.stopped.Load() {
		p.Println(line)
		return
	}
	fmt.Println(line)
}

// ── Model ────────────────────────────────────────────────────────

type tickMsg time.Time

type model struct {
	state StateFunc
	lines chan<- string
	ready chan struct{}

	input   textinput.Model
	history []string
	recall  int // index into history while browsing, len(history) otherwise
	status  status
	width   int
}

func newModel(state StateFunc, lines chan<- string, ready chan struct{}) model {
	in := textinput.New()
	in.Prompt = prompt
	in.PromptStyle = promptStyle
	in.TextStyle = echoStyle
	in.Cursor.Style = promptStyle
	in.CharLimit = 200
	in.Width = 60
	in.Focus()
	return model{state: state, lines: lines, ready: ready, input: in}
}

func (m model) Init() tea.Cmd {
	ready := m.ready
	return tea.Batch(textinput.Blink, tick(), func() tea.Msg {
		close(ready)
		return nil
	})
}

func tick() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyUp:
			m.browse(-1)
			return m, nil
		case tea.KeyDown:
			m.browse(1)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(10, msg.Width-len(prompt))
		return m, nil

	case tickMsg:
		if m.state != nil {
			m.status = statusOf(m.state(), time.Time(msg))
		}
		return m, tea.Batch(tick(), tea.SetWindowTitle(m.status.title()))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit hands the typed line to the app and echoes it into scrollback.
func (m model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		return m, nil
	}
	m.history = pushHistory(m.history, line)
	m.recall = len(m.history)
	m.lines <- line
	return m, tea.Println(promptStyle.Render("affirm") + secondaryStyle.Render("> ") + echoStyle.Render(line))
}

// browse moves through earlier commands; stepping past the newest clears
// the prompt.
func (m *model) browse(step int) {
	if len(m.history) == 0 {
		return
	}
	m.recall = min(max(m.recall+step, 0), len(m.history))
	if m.recall == len(m.history) {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.recall])
	m.input.CursorEnd()
}

func pushHistory(h []string, line string) []string {
	if n := len(h); n > 0 && h[n-1] == line {
		return h
	}
	h = append(h, line)
	if len(h) > historySize {
		h = h[len(h)-historySize:]
	}
	return h
}

func (m model) View() string {
	var b strings.Builder
	if m.status.visible {
		b.WriteString(m.status.render(m.width))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}
