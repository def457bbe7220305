package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across layers.
var (
	ErrNotFound         = errors.New("not found")
	ErrNoAffirmations   = errors.New("no active affirmations")
	ErrNothingPlayable  = errors.New("no audio and no speech synthesis available")
	ErrSessionNotActive = errors.New("session is not active")
	ErrSessionPaused    = errors.New("session is paused")
	ErrSessionNotPaused = errors.New("session is not paused")
	ErrStopped          = errors.New("playback stopped")

	// ErrUnsupportedEnvironment means the merging path cannot work at all
	// here. Callers switch strategy instead of retrying.
	ErrUnsupportedEnvironment = errors.New("audio merging unsupported")
)

// FetchError is a network or HTTP failure while retrieving a clip.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError means a payload could not be parsed as audio.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("decode: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PlaybackError is a failure of the output device or of a whole sequence.
type PlaybackError struct {
	Op  string
	Err error
}

func (e *PlaybackError) Error() string { return fmt.Sprintf("playback %s: %v", e.Op, e.Err) }

func (e *PlaybackError) Unwrap() error { return e.Err }

// SynthesisError is a failure of a speech engine.
type SynthesisError struct {
	Engine string
	Voice  string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis (%s, voice %s): %v", e.Engine, e.Voice, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
