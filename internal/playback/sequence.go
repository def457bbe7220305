package playback

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// silenceRate is the sample rate of the silent clips used for pauses.
const silenceRate = 8000

// SequenceOptions control PlaySequence. ClipPause separates consecutive
// clips; PostPause follows the last clip.
type SequenceOptions struct {
	ClipPause    time.Duration
	PostPause    time.Duration
	PlaybackRate float64
	Volume       float64

	// OnProgress, when set, is called as each clip or pause begins with
	// how long it will keep the sequence busy.
	OnProgress func(busy time.Duration)
}

func (o SequenceOptions) progress(d time.Duration) {
	if o.OnProgress != nil {
		o.OnProgress(d)
	}
}

// Player plays ordered clip URLs one at a time. Pauses are played as
// silent clips rather than slept so they share the playback clock.
type Player struct {
	loader   audio.ClipLoader
	out      Output
	registry *Registry
	log      *logger.Logger
	stopped  atomic.Bool
}

// PlayerOption configures the Player.
type PlayerOption func(*Player)

// WithRegistry shares a handle registry between players.
func WithRegistry(r *Registry) PlayerOption {
	return func(p *Player) {
		p.registry = r
	}
}

// NewPlayer creates a sequential player.
func NewPlayer(loader audio.ClipLoader, out Output, log *logger.Logger, opts ...PlayerOption) *Player {
	p := &Player{
		loader:   loader,
		out:      out,
		registry: NewRegistry(),
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PlaySequence plays urls in order. Clips that fail to fetch, decode or
// play are logged and skipped. Returns domain.ErrStopped if StopAll was
// called or ctx ended, a *domain.PlaybackError if every clip failed, and
// nil otherwise.
func (p *Player) PlaySequence(ctx context.Context, urls []string, opts SequenceOptions) error {
	p.stopped.Store(false)
	if len(urls) == 0 {
		return &domain.PlaybackError{Op: "sequence", Err: audio.ErrNoBuffers}
	}

	failed := 0
	var lastErr error
	for i, url := range urls {
		if p.halted(ctx) {
			return domain.ErrStopped
		}

		if err := p.playClip(ctx, url, opts); err != nil {
			if p.halted(ctx) {
				return domain.ErrStopped
			}
			p.log.Warn("player: clip %d/%d skipped: %v", i+1, len(urls), err)
			failed++
			lastErr = err
		}

		if i < len(urls)-1 && opts.ClipPause > 0 {
			if p.halted(ctx) {
				return domain.ErrStopped
			}
			opts.progress(opts.ClipPause)
			if err := p.Pause(ctx, opts.ClipPause); err != nil && p.halted(ctx) {
				return domain.ErrStopped
			}
		}
	}

	if failed == len(urls) {
		return &domain.PlaybackError{Op: "sequence", Err: lastErr}
	}

	if opts.PostPause > 0 {
		if p.halted(ctx) {
			return domain.ErrStopped
		}
		opts.progress(opts.PostPause)
		if err := p.Pause(ctx, opts.PostPause); err != nil && p.halted(ctx) {
			return domain.ErrStopped
		}
	}
	return nil
}

// playClip is PlayURL with progress reporting once the clip's length is
// known.
func (p *Player) playClip(ctx context.Context, url string, opts SequenceOptions) error {
	buf, err := p.loader.FetchAndDecode(ctx, url)
	if err != nil {
		return err
	}
	busy := buf.Duration()
	if opts.PlaybackRate > 0 {
		busy = time.Duration(float64(busy) / opts.PlaybackRate)
	}
	opts.progress(busy)
	return p.PlayBuffer(ctx, buf, PlayOptions{Volume: opts.Volume, Rate: opts.PlaybackRate})
}

// PlayURL fetches, decodes and plays a single clip.
func (p *Player) PlayURL(ctx context.Context, url string, opts PlayOptions) error {
	buf, err := p.loader.FetchAndDecode(ctx, url)
	if err != nil {
		return err
	}
	return p.PlayBuffer(ctx, buf, opts)
}

// PlayBuffer plays an already decoded buffer as a registered playback.
func (p *Player) PlayBuffer(ctx context.Context, buf *audio.Buffer, opts PlayOptions) error {
	pctx, cancel := context.WithCancel(ctx)
	remove := p.registry.Add(cancel)
	defer func() {
		remove()
		cancel()
	}()

	if err := p.out.Play(pctx, buf, opts); err != nil {
		if pctx.Err() != nil {
			return pctx.Err()
		}
		return &domain.PlaybackError{Op: "play", Err: err}
	}
	return nil
}

// Pause plays d of silence.
func (p *Player) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return p.PlayBuffer(ctx, audio.Silence(d, silenceRate), PlayOptions{})
}

// StopAll raises the stop flag and halts every registered playback.
func (p *Player) StopAll() {
	p.stopped.Store(true)
	if n := p.registry.StopAll(); n > 0 {
		p.log.Debug("player: stopped %d active playbacks", n)
	}
}

// Active returns the number of in-flight playbacks.
func (p *Player) Active() int {
	return p.registry.Active()
}

func (p *Player) halted(ctx context.Context) bool {
	return p.stopped.Load() || ctx.Err() != nil
}
