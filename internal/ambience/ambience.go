// Package ambience synthesizes background sound procedurally: bird chirps
// at random intervals or filtered-noise surf. It runs beside a session and
// fades in and out on its own gain ramp.
package ambience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
	"github.com/procodeeu/MyAffirms-sub000/internal/playback"
	"github.com/procodeeu/MyAffirms-sub000/internal/timer"
)

// Kind selects the ambience variant.
type Kind int

const (
	KindBirds Kind = iota
	KindOcean
)

func (k Kind) String() string {
	switch k {
	case KindBirds:
		return "birds"
	case KindOcean:
		return "ocean"
	default:
		return "unknown"
	}
}

// ParseKind accepts "birds"/"chirp" and "ocean"/"waves".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "birds", "bird", "chirp", "chirps":
		return KindBirds, nil
	case "ocean", "waves", "wave", "surf":
		return KindOcean, nil
	default:
		return 0, fmt.Errorf("unknown ambience %q", s)
	}
}

// Bird and surf parameters.
const (
	birdCount      = 3
	birdStagger    = 1100 * time.Millisecond
	chirpMin       = 80 * time.Millisecond
	chirpMax       = 120 * time.Millisecond
	chirpFreqMin   = 1200.0
	chirpFreqMax   = 2800.0
	chirpAttack    = 5 * time.Millisecond
	chirpPitchDrop = 0.6 // end frequency as a fraction of the start
	chirpLevel     = 0.35
	intervalMin    = 800 * time.Millisecond
	intervalMax    = 3300 * time.Millisecond

	surfLength = 4 * time.Second
	surfCutoff = 500.0
	surfQ      = 0.707
	surfLevel  = 0.5
)

// Option configures the Generator.
type Option func(*Generator)

// WithSeed makes chirp timing and noise reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRampTime sets how long Play and SetVolume take to reach the target.
func WithRampTime(d time.Duration) Option {
	return func(g *Generator) {
		g.rampTime = d
	}
}

// Generator produces one ambience stream at a time on an output device.
type Generator struct {
	out      playback.Streamer
	log      *logger.Logger
	rampTime time.Duration

	mu      sync.Mutex
	rng     *rand.Rand
	playing bool
	kind    Kind
	volume  float64
	mixer   *lockedMixer
	gain    *gainRamp
	handle  playback.StreamHandle
	token   *timer.Token
}

// New creates a generator writing to out.
func New(out playback.Streamer, log *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		out:      out,
		log:      log,
		rampTime: 800 * time.Millisecond,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Play starts ambience of the given kind, ramping up from silence to
// volume. A running ambience is stopped first.
func (g *Generator) Play(volume float64, kind Kind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.playing {
		g.stopLocked()
	}

	mixer := &lockedMixer{}
	gain := newGainRamp(mixer)
	handle, err := g.out.StartStream(gain)
	if err != nil {
		return fmt.Errorf("ambience: starting stream: %w", err)
	}

	g.mixer = mixer
	g.gain = gain
	g.handle = handle
	g.token = timer.NewToken(context.Background())
	g.kind = kind
	g.volume = clamp01(volume)
	g.playing = true

	switch kind {
	case KindOcean:
		mixer.Add(beep.Loop(-1, g.surfLocked().Streamer()))
	default:
		for i := 0; i < birdCount; i++ {
			g.scheduleChirpLocked(g.token, time.Duration(i)*birdStagger)
		}
	}

	gain.rampTo(g.volume, g.frames(g.rampTime))
	g.log.Debug("ambience: playing %s at %.2f", kind, g.volume)
	return nil
}

// SetVolume ramps to a new volume.
func (g *Generator) SetVolume(volume float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.volume = clamp01(volume)
	if g.playing {
		g.gain.rampTo(g.volume, g.frames(g.rampTime))
	}
}

// Volume returns the target volume.
func (g *Generator) Volume() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.volume
}

// FadeOut ramps linearly to silence over d and then stops. Returns
// immediately.
func (g *Generator) FadeOut(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.playing {
		return
	}
	if d <= 0 {
		g.stopLocked()
		return
	}

	g.gain.rampTo(0, g.frames(d))
	tok := g.token
	tok.After(d, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.token == tok && g.playing {
			g.stopLocked()
		}
	})
	g.log.Debug("ambience: fading out over %s", d)
}

// Stop silences ambience immediately and clears every pending chirp.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.playing {
		g.stopLocked()
	}
}

// Playing reports whether ambience is running.
func (g *Generator) Playing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playing
}

// Kind returns the current or last played kind.
func (g *Generator) Kind() Kind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.kind
}

func (g *Generator) stopLocked() {
	cleared := g.token.Cancel()
	g.handle.Stop()
	g.playing = false
	g.log.Debug("ambience: stopped (%d timers cleared)", cleared)
}

// ── Birds ──────────────────────────────────────────────────────────

func (g *Generator) scheduleChirpLocked(tok *timer.Token, after time.Duration) {
	tok.After(after, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.token != tok || !g.playing {
			return
		}
		g.mixer.Add(g.chirpLocked().Streamer())
		g.scheduleChirpLocked(tok, g.randDuration(intervalMin, intervalMax))
	})
}

// chirpLocked renders one chirp: a sine sweep with exponential pitch
// decay, a short linear attack and an exponential amplitude decay.
func (g *Generator) chirpLocked() *audio.Buffer {
	rate := g.out.SampleRate()
	dur := g.randDuration(chirpMin, chirpMax)
	f0 := chirpFreqMin + g.rng.Float64()*(chirpFreqMax-chirpFreqMin)

	n := int(dur.Seconds() * float64(rate))
	attack := int(chirpAttack.Seconds() * float64(rate))
	buf := audio.NewBuffer(1, n, rate)

	phase := 0.0
	decay := float64(n-attack) / 5
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(n)
		freq := f0 * math.Pow(chirpPitchDrop, frac)
		phase += 2 * math.Pi * freq / float64(rate)

		var env float64
		if i < attack {
			env = float64(i) / float64(attack)
		} else {
			env = math.Exp(-float64(i-attack) / decay)
		}
		buf.Channels[0][i] = float32(chirpLevel * env * math.Sin(phase))
	}
	return buf
}

// ── Ocean ──────────────────────────────────────────────────────────

// surfLocked renders the looping surf buffer: independent white noise per
// channel through a low-pass filter.
func (g *Generator) surfLocked() *audio.Buffer {
	rate := g.out.SampleRate()
	n := int(surfLength.Seconds() * float64(rate))
	buf := audio.NewBuffer(2, n, rate)
	lp := newLowPass(surfCutoff, surfQ, float64(rate))

	for c := range buf.Channels {
		ch := buf.Channels[c]
		for i := range ch {
			ch[i] = float32(surfLevel * (g.rng.Float64()*2 - 1))
		}
		lp.apply(ch)
	}
	return buf
}

// ── helpers ────────────────────────────────────────────────────────

func (g *Generator) randDuration(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(g.rng.Int63n(int64(hi-lo)+1))
}

func (g *Generator) frames(d time.Duration) int {
	return int(d.Seconds() * float64(g.out.SampleRate()))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
