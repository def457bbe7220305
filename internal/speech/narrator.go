// Package speech is the last-resort narration path: it picks the best
// available synthesizer voice, synthesizes text sentence by sentence and
// plays it. Speaking never fails; errors are logged and swallowed.
package speech

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
	"github.com/procodeeu/MyAffirms-sub000/internal/playback"
)

// SpeakOptions control one narration.
type SpeakOptions struct {
	Rate          float64
	Pitch         float64
	Volume        float64
	VoiceID       string
	SentencePause time.Duration
}

// BufferPlayer plays decoded audio. playback.Player satisfies it.
type BufferPlayer interface {
	PlayBuffer(ctx context.Context, buf *audio.Buffer, opts playback.PlayOptions) error
}

// NarratorOption configures the Narrator.
type NarratorOption func(*Narrator)

// WithCache sets the synthesized-audio cache.
func WithCache(c *AudioCache) NarratorOption {
	return func(n *Narrator) {
		n.cache = c
	}
}

// WithDecoder replaces the decoder for synthesized audio.
func WithDecoder(d audio.Decoder) NarratorOption {
	return func(n *Narrator) {
		n.decoder = d
	}
}

// Narrator speaks text through the best voice across its engines.
type Narrator struct {
	engines []Engine
	player  BufferPlayer
	decoder audio.Decoder
	cache   *AudioCache
	log     *logger.Logger
}

// NewNarrator creates a narrator. Engines are consulted in order when
// listing voices; voice preference is decided by SelectVoice.
func NewNarrator(engines []Engine, player BufferPlayer, log *logger.Logger, opts ...NarratorOption) *Narrator {
	n := &Narrator{
		engines: engines,
		player:  player,
		decoder: audio.NewDecoder(),
		log:     log,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.cache == nil {
		n.cache = NewAudioCache("", false, log)
	}
	return n
}

// Voices returns every voice from every engine. Engines that fail to list
// are skipped.
func (n *Narrator) Voices(ctx context.Context) []Voice {
	var all []Voice
	for _, e := range n.engines {
		vs, err := e.Voices(ctx)
		if err != nil {
			n.log.Warn("narrator: %s voices unavailable: %v", e.Name(), err)
			continue
		}
		all = append(all, vs...)
	}
	return all
}

// Available reports whether any voice can be used.
func (n *Narrator) Available(ctx context.Context) bool {
	return len(n.Voices(ctx)) > 0
}

// Speak narrates text and returns once it has been heard, ctx ends or
// synthesis gives up. It never fails.
func (n *Narrator) Speak(ctx context.Context, text string, opts SpeakOptions) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	voice, ok := SelectVoice(n.Voices(ctx), opts.VoiceID)
	if !ok {
		n.log.Warn("narrator: no voice available, skipping %q", truncate(text, 40))
		return
	}
	engine := n.engineFor(voice)
	if engine == nil {
		n.log.Warn("narrator: no engine for voice %s", voice.ID)
		return
	}
	if voice.ID != opts.VoiceID {
		n.log.Debug("narrator: requested %q, using %s/%s", opts.VoiceID, voice.Engine, voice.ID)
	}

	parts := []string{text}
	if opts.SentencePause > 0 {
		if sentences := domain.SplitSentences(text); len(sentences) > 1 {
			parts = sentences
		}
	}

	prosody := Prosody{Rate: opts.Rate, Pitch: opts.Pitch}
	slots := n.synthesizeAll(ctx, engine, voice, prosody, parts)

	for i, data := range slots {
		if ctx.Err() != nil {
			return
		}
		if data != nil {
			n.play(ctx, voice, data, opts.Volume)
		}
		if i < len(parts)-1 && !sleepCtx(ctx, opts.SentencePause) {
			return
		}
	}
}

// synthesizeAll fires every synthesis request in parallel and returns the
// audio in sentence order. Failed slots are nil.
func (n *Narrator) synthesizeAll(ctx context.Context, engine Engine, voice Voice, p Prosody, parts []string) [][]byte {
	type result struct {
		idx   int
		audio []byte
		err   error
	}
	results := make(chan result, len(parts))

	for i, part := range parts {
		go func(idx int, text string) {
			data, err := n.synthesizeWithCache(ctx, engine, voice, p, text)
			results <- result{idx: idx, audio: data, err: err}
		}(i, part)
	}

	slots := make([][]byte, len(parts))
	for range parts {
		r := <-results
		if r.err != nil {
			n.logSynthesisError(voice, r.err)
			continue
		}
		slots[r.idx] = r.audio
	}
	return slots
}

func (n *Narrator) synthesizeWithCache(ctx context.Context, engine Engine, voice Voice, p Prosody, text string) ([]byte, error) {
	if data, ok := n.cache.Get(voice, p, text); ok {
		return data, nil
	}
	data, err := engine.Synthesize(ctx, text, voice, p)
	if err != nil {
		return nil, err
	}
	n.cache.Put(voice, p, text, data)
	return data, nil
}

func (n *Narrator) play(ctx context.Context, voice Voice, data []byte, volume float64) {
	buf, err := n.decoder.Decode(data)
	if err != nil {
		n.logSynthesisError(voice, err)
		return
	}
	if err := n.player.PlayBuffer(ctx, buf, playback.PlayOptions{Volume: volume}); err != nil && ctx.Err() == nil {
		n.log.Warn("narrator: playback failed: %v", err)
	}
}

func (n *Narrator) logSynthesisError(voice Voice, err error) {
	var se *domain.SynthesisError
	if !errors.As(err, &se) {
		se = &domain.SynthesisError{Engine: voice.Engine, Voice: voice.ID, Err: err}
	}
	n.log.Warn("narrator: %v", se)
}

func (n *Narrator) engineFor(v Voice) Engine {
	for _, e := range n.engines {
		if e.Name() == v.Engine {
			return e
		}
	}
	return nil
}

// sleepCtx waits d. Returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
