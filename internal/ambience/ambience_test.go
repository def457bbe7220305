package ambience

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
	"github.com/procodeeu/MyAffirms-sub000/internal/playback"
)

// fakeDevice hands out the started stream so tests can pull samples.
type fakeDevice struct {
	mu      sync.Mutex
	rate    int
	streams []*fakeStream
	fail    error
}

type fakeStream struct {
	s       beep.Streamer
	mu      sync.Mutex
	stopped bool
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeStream) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (d *fakeDevice) SampleRate() int { return d.rate }

func (d *fakeDevice) StartStream(s beep.Streamer) (playback.StreamHandle, error) {
	if d.fail != nil {
		return nil, d.fail
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fs := &fakeStream{s: s}
	d.streams = append(d.streams, fs)
	return fs, nil
}

func (d *fakeDevice) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

func pull(s beep.Streamer, frames int) [][2]float64 {
	buf := make([][2]float64, frames)
	s.Stream(buf)
	return buf
}

func peak(samples [][2]float64) float64 {
	p := 0.0
	for _, s := range samples {
		p = math.Max(p, math.Max(math.Abs(s[0]), math.Abs(s[1])))
	}
	return p
}

func newTestGenerator(dev *fakeDevice, opts ...Option) *Generator {
	opts = append([]Option{WithSeed(1)}, opts...)
	return New(dev, logger.New(logger.LevelOff, nil), opts...)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		err  bool
	}{
		{"birds", KindBirds, false},
		{"Chirp", KindBirds, false},
		{"ocean", KindOcean, false},
		{" waves ", KindOcean, false},
		{"rain", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.err {
			t.Fatalf("ParseKind(%q) err = %v", tt.in, err)
		}
		if !tt.err && got != tt.want {
			t.Fatalf("ParseKind(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestOceanRampsFromSilence(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	g := newTestGenerator(dev, WithRampTime(100*time.Millisecond))

	if err := g.Play(0.5, KindOcean); err != nil {
		t.Fatalf("play: %v", err)
	}
	defer g.Stop()
	if !g.Playing() || g.Kind() != KindOcean {
		t.Fatal("expected ocean playing")
	}

	s := dev.last().s
	first := pull(s, 8)
	if p := peak(first); p > 0.01 {
		t.Fatalf("expected near silence at start, got peak %v", p)
	}

	// 100ms at 8kHz is 800 frames; past that the gain sits at volume.
	pull(s, 800)
	if g.gain.gain() != 0.5 {
		t.Fatalf("expected gain 0.5 after ramp, got %v", g.gain.gain())
	}
	if p := peak(pull(s, 4000)); p == 0 || p > 0.5 {
		t.Fatalf("unexpected surf peak %v", p)
	}
}

func TestSetVolumeRamps(t *testing.T) {
	dev := &fakeDevice{rate: 1000}
	g := newTestGenerator(dev, WithRampTime(100*time.Millisecond))
	if err := g.Play(1, KindOcean); err != nil {
		t.Fatalf("play: %v", err)
	}
	defer g.Stop()
	s := dev.last().s
	pull(s, 200)

	g.SetVolume(0.2)
	pull(s, 50)
	mid := g.gain.gain()
	if mid <= 0.2 || mid >= 1 {
		t.Fatalf("expected gain between 0.2 and 1 mid-ramp, got %v", mid)
	}
	pull(s, 100)
	if got := g.gain.gain(); math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("expected gain 0.2, got %v", got)
	}

	g.SetVolume(7)
	if g.Volume() != 1 {
		t.Fatalf("volume should clamp to 1, got %v", g.Volume())
	}
}

func TestBirdsSchedulesAndStopClearsTimers(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	g := newTestGenerator(dev)

	if err := g.Play(0.3, KindBirds); err != nil {
		t.Fatalf("play: %v", err)
	}

	// The first bird chirps immediately.
	deadline := time.Now().Add(time.Second)
	for g.mixer.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no chirp was scheduled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Let the chirp callback finish rescheduling.
	g.mu.Lock()
	g.mu.Unlock()
	if g.token.Pending() != birdCount {
		t.Fatalf("expected %d pending bird timers, got %d", birdCount, g.token.Pending())
	}

	stream := dev.last()
	g.Stop()
	if g.Playing() {
		t.Fatal("still playing after Stop")
	}
	if !stream.isStopped() {
		t.Fatal("device stream not stopped")
	}
	if g.token.Pending() != 0 {
		t.Fatalf("expected no pending timers after Stop, got %d", g.token.Pending())
	}
	g.Stop()
}

func TestChirpShape(t *testing.T) {
	dev := &fakeDevice{rate: 44100}
	g := newTestGenerator(dev)

	for i := 0; i < 20; i++ {
		c := g.chirpLocked()
		d := c.Duration()
		if d < chirpMin-time.Millisecond || d > chirpMax+time.Millisecond {
			t.Fatalf("chirp duration %s out of range", d)
		}
		if c.IsSilent() {
			t.Fatal("chirp is silent")
		}
		if c.Channels[0][0] != 0 {
			t.Fatalf("chirp must start from zero, got %v", c.Channels[0][0])
		}
		for _, s := range c.Channels[0] {
			if math.Abs(float64(s)) > chirpLevel+1e-6 {
				t.Fatalf("chirp sample %v exceeds level", s)
			}
		}
	}
}

func TestFadeOutStops(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	g := newTestGenerator(dev, WithRampTime(0))
	if err := g.Play(0.4, KindOcean); err != nil {
		t.Fatalf("play: %v", err)
	}

	g.FadeOut(30 * time.Millisecond)
	if !g.Playing() {
		t.Fatal("fade should not stop immediately")
	}

	deadline := time.Now().Add(time.Second)
	for g.Playing() {
		if time.Now().After(deadline) {
			t.Fatal("fade never stopped the generator")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !dev.last().isStopped() {
		t.Fatal("device stream not stopped after fade")
	}
}

func TestPlayReplacesRunningAmbience(t *testing.T) {
	dev := &fakeDevice{rate: 8000}
	g := newTestGenerator(dev)
	if err := g.Play(0.3, KindBirds); err != nil {
		t.Fatal(err)
	}
	first := dev.last()
	g.FadeOut(20 * time.Millisecond)

	if err := g.Play(0.3, KindOcean); err != nil {
		t.Fatal(err)
	}
	defer g.Stop()
	if !first.isStopped() {
		t.Fatal("previous stream not stopped")
	}

	// The old fade must not stop the new ambience.
	time.Sleep(60 * time.Millisecond)
	if !g.Playing() {
		t.Fatal("stale fade stopped the new ambience")
	}
}

func TestPlayStreamError(t *testing.T) {
	dev := &fakeDevice{rate: 8000, fail: errors.New("no device")}
	g := newTestGenerator(dev)
	if err := g.Play(0.3, KindOcean); err == nil {
		t.Fatal("expected error")
	}
	if g.Playing() {
		t.Fatal("generator should not be playing")
	}
}
