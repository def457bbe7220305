package command

import (
	"fmt"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// Compile-time interface check.
var _ domain.SessionObserver = (*Notifier)(nil)

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

// PrintFunc is a function used to print formatted output.
// Matches the signature of display.UI.Printf.
type PrintFunc func(format string, a ...interface{})

// TextFunc resolves an affirmation id to its text for display.
type TextFunc func(affirmationID string) string

// Notifier prints session events as they happen.
type Notifier struct {
	log     *logger.Logger
	printFn PrintFunc
	textFn  TextFunc
}

// NewNotifier creates an event printer. If printFn is nil, fmt.Printf is
// used. textFn may be nil.
func NewNotifier(log *logger.Logger, printFn PrintFunc, textFn TextFunc) *Notifier {
	if printFn == nil {
		printFn = func(format string, a ...interface{}) {
			fmt.Printf(format+"\n", a...)
		}
	}
	return &Notifier{log: log, printFn: printFn, textFn: textFn}
}

// OnSessionEvent prints one line per user-visible event.
func (n *Notifier) OnSessionEvent(ev domain.SessionEvent) {
	n.log.Debug("event: %s #%d %s", ev.Type, ev.Index+1, ev.Source)
	if msg, style := Describe(ev, n.text(ev.AffirmationID)); msg != "" {
		n.printFn("%s%s%s", style, msg, reset)
	}
}

func (n *Notifier) text(id string) string {
	if n.textFn == nil || id == "" {
		return ""
	}
	return n.textFn(id)
}

// Describe renders an event as a message and an ANSI style. Events that
// are not worth showing return an empty message.
func Describe(ev domain.SessionEvent, text string) (string, string) {
	switch ev.Type {
	case domain.EventSessionStarted:
		return fmt.Sprintf("Session started (%s playback).", ev.Source), cyan + bold
	case domain.EventAffirmationStarted:
		if text == "" {
			return fmt.Sprintf("  %d.", ev.Index+1), cyan
		}
		return fmt.Sprintf("  %d. %s", ev.Index+1, text), cyan
	case domain.EventAffirmationRepeat:
		return "     (again)", dim
	case domain.EventAffirmationFailed:
		return fmt.Sprintf("  Could not play affirmation %d, moving on.", ev.Index+1), red
	case domain.EventStrategyChanged:
		return "Merged audio unavailable here; playing clips one by one.", yellow
	case domain.EventPaused:
		return "Paused. Type resume to continue.", yellow
	case domain.EventResumed:
		return "Resuming from the start of this affirmation.", yellow
	case domain.EventSessionFinished:
		return "Session complete.", cyan + bold
	case domain.EventSessionStopped:
		return "Session stopped.", yellow
	default:
		return "", ""
	}
}
