package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
)

var (
	barStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#27272a")).
			Foreground(lipgloss.Color("#a1a1aa"))
	playingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#bbf7d0"))
	pausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fde68a"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#71717a")).Italic(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#a1a1aa"))
	sepStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#52525b"))
)

// status is what the bar shows, refreshed every tick.
type status struct {
	visible  bool
	label    string
	position string
	strategy string
	elapsed  time.Duration
	timers   int
}

// statusOf summarizes a session snapshot for the bar.
func statusOf(st domain.SessionState, now time.Time) status {
	s := status{
		visible:  st.IsActive || st.IsFinished,
		label:    st.Status(),
		strategy: st.Strategy,
		timers:   st.PendingTimers,
	}
	if len(st.Affirmations) > 0 {
		s.position = fmt.Sprintf("%d/%d", st.CurrentIndex+1, len(st.Affirmations))
	}
	if st.IsActive && !st.StartedAt.IsZero() {
		s.elapsed = now.Sub(st.StartedAt)
	}
	return s
}

func (s status) title() string {
	if !s.visible {
		return "MyAffirms"
	}
	return "MyAffirms " + s.label + " " + s.position
}

// render lays the bar out across width columns (80 when unknown).
func (s status) render(width int) string {
	var state string
	switch s.label {
	case "playing":
		state = playingStyle.Render("▶ playing")
	case "paused":
		state = pausedStyle.Render("‖ paused")
	default:
		state = idleStyle.Render(s.label)
	}

	parts := []string{state}
	if s.position != "" {
		parts = append(parts, labelStyle.Render("affirmation ")+primaryStyle.Render(s.position))
	}
	if s.strategy != "" {
		parts = append(parts, labelStyle.Render(s.strategy))
	}
	if s.elapsed > 0 {
		parts = append(parts, labelStyle.Render(fmtDuration(s.elapsed)))
	}
	if s.timers > 0 {
		parts = append(parts, labelStyle.Render(fmt.Sprintf("%d timers", s.timers)))
	}

	if width <= 0 {
		width = 80
	}
	return barStyle.Width(width).Render(" " + strings.Join(parts, sepStyle.Render("  │  ")) + " ")
}

// fmtDuration renders whole seconds as "42s" or "3m07s".
func fmtDuration(d time.Duration) string {
	d = max(d, 0).Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m == 0 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
