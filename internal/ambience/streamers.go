package ambience

import (
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
)

// gainRamp scales a stream by a gain that moves linearly toward a target,
// one step per frame, so volume changes never click.
type gainRamp struct {
	s beep.Streamer

	mu      sync.Mutex
	current float64
	target  float64
	step    float64
}

func newGainRamp(s beep.Streamer) *gainRamp {
	return &gainRamp{s: s}
}

// rampTo moves the gain to target over frames samples.
func (g *gainRamp) rampTo(target float64, frames int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.target = target
	if frames <= 0 {
		g.current = target
		g.step = 0
		return
	}
	g.step = math.Abs(target-g.current) / float64(frames)
}

func (g *gainRamp) gain() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func (g *gainRamp) Stream(samples [][2]float64) (int, bool) {
	n, ok := g.s.Stream(samples)
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range n {
		switch {
		case g.current < g.target:
			g.current = math.Min(g.current+g.step, g.target)
		case g.current > g.target:
			g.current = math.Max(g.current-g.step, g.target)
		}
		samples[i][0] *= g.current
		samples[i][1] *= g.current
	}
	return n, ok
}

func (g *gainRamp) Err() error { return g.s.Err() }

// lockedMixer guards a beep.Mixer so chirps can be added from timer
// goroutines while the device pulls samples.
type lockedMixer struct {
	mu sync.Mutex
	m  beep.Mixer
}

func (l *lockedMixer) Add(s ...beep.Streamer) {
	l.mu.Lock()
	l.m.Add(s...)
	l.mu.Unlock()
}

func (l *lockedMixer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Len()
}

func (l *lockedMixer) Stream(samples [][2]float64) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, _ := l.m.Stream(samples)
	// Keep the device stream alive between chirps.
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (l *lockedMixer) Err() error { return nil }

// lowPass is a second-order IIR low-pass filter per the Audio EQ Cookbook,
// run in place over whole channels.
type lowPass struct {
	b0, b1, b2, a1, a2 float64
}

func newLowPass(cutoff, q, sampleRate float64) lowPass {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	a0 := 1 + alpha
	return lowPass{
		b0: (1 - cosW0) / 2 / a0,
		b1: (1 - cosW0) / a0,
		b2: (1 - cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f lowPass) apply(x []float32) {
	var x1, x2, y1, y2 float64
	for i, v := range x {
		in := float64(v)
		y := f.b0*in + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		x2, x1 = x1, in
		y2, y1 = y1, y
		x[i] = float32(y)
	}
}
