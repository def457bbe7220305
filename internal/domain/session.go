package domain

import "time"

// Settings is the immutable snapshot of playback preferences taken when a
// session starts. Changing preferences requires starting a new session.
type Settings struct {
	SpeechRate        float64       // playback / synthesis rate, 1.0 = normal
	PauseDuration     time.Duration // gap after an affirmation before the next one
	SentencePause     time.Duration // gap between sentences of one affirmation
	RepeatAffirmation bool          // play every affirmation twice
	RepeatDelay       time.Duration // wait before the repeat
	VoiceID           string
	BackgroundMusic   bool
	MusicVolume       float64 // 0..1
	MusicType         string  // "birds" or "ocean"
}

// DefaultSettings returns the settings used when the user has not chosen any.
func DefaultSettings() Settings {
	return Settings{
		SpeechRate:    1.0,
		PauseDuration: 3 * time.Second,
		SentencePause: 1 * time.Second,
		RepeatDelay:   2 * time.Second,
		VoiceID:       "en-US-AvaNeural",
		MusicVolume:   0.3,
		MusicType:     "birds",
	}
}

// SessionState is a read-only snapshot of the orchestrator's session.
type SessionState struct {
	ID            string
	IsActive      bool
	IsPaused      bool
	IsFinished    bool
	CurrentIndex  int
	Current       *Affirmation
	Affirmations  []Affirmation
	Settings      Settings
	PendingTimers int
	Strategy      string
	StartedAt     time.Time
}

// Status returns a human-readable lifecycle state.
func (s SessionState) Status() string {
	switch {
	case s.IsFinished:
		return "finished"
	case s.IsActive && s.IsPaused:
		return "paused"
	case s.IsActive:
		return "playing"
	default:
		return "idle"
	}
}

// EventType classifies a session event.
type EventType int

const (
	EventSessionStarted EventType = iota
	EventAffirmationStarted
	EventAffirmationRepeat
	EventAffirmationFinished
	EventAffirmationFailed
	EventStrategyChanged
	EventPaused
	EventResumed
	EventSessionFinished
	EventSessionStopped
)

// String returns a human-readable event type.
func (e EventType) String() string {
	switch e {
	case EventSessionStarted:
		return "session_started"
	case EventAffirmationStarted:
		return "affirmation_started"
	case EventAffirmationRepeat:
		return "affirmation_repeat"
	case EventAffirmationFinished:
		return "affirmation_finished"
	case EventAffirmationFailed:
		return "affirmation_failed"
	case EventStrategyChanged:
		return "strategy_changed"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventSessionFinished:
		return "session_finished"
	case EventSessionStopped:
		return "session_stopped"
	default:
		return "unknown"
	}
}

// Playback sources reported in SessionEvent.Source.
const (
	SourceMerged     = "merged"
	SourceSequential = "sequential"
	SourceSpeech     = "speech"
)

// SessionEvent is emitted by the orchestrator on every transition.
type SessionEvent struct {
	Type          EventType
	SessionID     string
	Index         int
	AffirmationID string
	Source        string
	Err           error
	At            time.Time
}
