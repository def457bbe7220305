// Package generation pre-renders affirmation audio: one stored clip per
// sentence, synthesized ahead of time so sessions can play clips instead
// of narrating live.
package generation

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
	"github.com/procodeeu/MyAffirms-sub000/internal/speech"
)

// Compile-time interface check.
var _ domain.AudioGenerator = (*Generator)(nil)

// ErrNoVoice is returned when no engine offers a usable voice.
var ErrNoVoice = errors.New("no synthesis voice available")

// Option configures the Generator.
type Option func(*Generator)

// WithCleanup lets the generator delete clips it saved for an affirmation
// whose generation failed part way.
func WithCleanup(s domain.AudioStorage) Option {
	return func(g *Generator) {
		g.cleanup = s
	}
}

// WithProsody sets the rate and pitch clips are rendered at.
func WithProsody(p speech.Prosody) Option {
	return func(g *Generator) {
		g.prosody = p
	}
}

// Generator synthesizes and stores sentence clips.
type Generator struct {
	engines []speech.Engine
	writer  domain.ClipWriter
	cleanup domain.AudioStorage
	prosody speech.Prosody
	log     *logger.Logger
}

// NewGenerator creates a generator that renders with engines and stores
// through writer.
func NewGenerator(engines []speech.Engine, writer domain.ClipWriter, log *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		engines: engines,
		writer:  writer,
		prosody: speech.DefaultProsody,
		log:     log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateSentenceAudio splits text into sentences, synthesizes them in
// parallel and saves them in sentence order. Returns the clip ids.
func (g *Generator) GenerateSentenceAudio(ctx context.Context, affirmationID, text, voiceID string) ([]string, error) {
	sentences := domain.SplitSentences(text)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("affirmation %s: no sentences", affirmationID)
	}

	voice, engine, err := g.pickVoice(ctx, voiceID)
	if err != nil {
		return nil, err
	}

	rendered := make([][]byte, len(sentences))
	eg, egctx := errgroup.WithContext(ctx)
	for i, s := range sentences {
		eg.Go(func() error {
			data, err := engine.Synthesize(egctx, s, voice, g.prosody)
			if err != nil {
				return fmt.Errorf("sentence %d: %w", i+1, err)
			}
			rendered[i] = data
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(sentences))
	for i, data := range rendered {
		id, err := g.writer.SaveClip(ctx, domain.AudioMetadata{
			AffirmationID: affirmationID,
			SentenceIndex: i,
			VoiceID:       voiceID,
			Text:          sentences[i],
		}, data)
		if err != nil {
			g.discard(ctx, ids)
			return nil, fmt.Errorf("saving sentence %d: %w", i+1, err)
		}
		ids = append(ids, id)
	}

	g.log.Debug("generator: %s rendered %d clips with %s/%s", affirmationID, len(ids), voice.Engine, voice.ID)
	return ids, nil
}

func (g *Generator) pickVoice(ctx context.Context, voiceID string) (speech.Voice, speech.Engine, error) {
	var all []speech.Voice
	byName := make(map[string]speech.Engine)
	for _, e := range g.engines {
		vs, err := e.Voices(ctx)
		if err != nil {
			g.log.Warn("generator: %s voices unavailable: %v", e.Name(), err)
			continue
		}
		all = append(all, vs...)
		byName[e.Name()] = e
	}

	voice, ok := speech.SelectVoice(all, voiceID)
	if !ok {
		return speech.Voice{}, nil, ErrNoVoice
	}
	engine, ok := byName[voice.Engine]
	if !ok {
		return speech.Voice{}, nil, fmt.Errorf("voice %s: engine %q not loaded", voice.ID, voice.Engine)
	}
	return voice, engine, nil
}

func (g *Generator) discard(ctx context.Context, ids []string) {
	if g.cleanup == nil || len(ids) == 0 {
		return
	}
	if _, err := g.cleanup.DeleteBatchAudio(ctx, ids); err != nil {
		g.log.Warn("generator: discarding %d partial clips: %v", len(ids), err)
	}
}
