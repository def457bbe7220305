// Package playback turns decoded audio into sound: the oto output device,
// the handle registry, and the sequential clip player the session drives.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"

	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// Output device defaults.
const (
	DefaultSampleRate = 44100
	ChannelCount      = 2
	pollInterval      = 10 * time.Millisecond
)

// PlayOptions control a single clip playback. Zero values mean full volume
// and normal speed.
type PlayOptions struct {
	Volume float64
	Rate   float64
}

func (o PlayOptions) volume() float64 {
	if o.Volume <= 0 {
		return 1
	}
	return o.Volume
}

func (o PlayOptions) rate() float64 {
	if o.Rate <= 0 {
		return 1
	}
	return o.Rate
}

// Output plays one buffer to completion. Play blocks until the buffer has
// been heard or ctx is cancelled, in which case it returns ctx.Err().
type Output interface {
	Play(ctx context.Context, buf *audio.Buffer, opts PlayOptions) error
}

// StreamHandle controls an open-ended stream started on a device.
type StreamHandle interface {
	Stop()
}

// Streamer is an output that also accepts long-running streams, used by
// background ambience.
type Streamer interface {
	SampleRate() int
	StartStream(s beep.Streamer) (StreamHandle, error)
}

// DeviceOption configures the Device.
type DeviceOption func(*deviceConfig)

type deviceConfig struct {
	sampleRate int
	bufferSize time.Duration
}

// WithSampleRate sets the device sample rate.
func WithSampleRate(rate int) DeviceOption {
	return func(c *deviceConfig) {
		c.sampleRate = rate
	}
}

// WithBufferSize sets the oto buffer duration. Zero lets oto decide.
func WithBufferSize(d time.Duration) DeviceOption {
	return func(c *deviceConfig) {
		c.bufferSize = d
	}
}

// Compile-time interface checks.
var (
	_ Output   = (*Device)(nil)
	_ Streamer = (*Device)(nil)
)

// Device is the system audio output. Only one may exist per process.
type Device struct {
	ctx  *oto.Context
	rate int
	log  *logger.Logger

	mu     sync.Mutex
	active map[*oto.Player]struct{}
}

// NewDevice initializes the system audio context and waits until it is
// ready. Returns an error if no audio device is available.
func NewDevice(log *logger.Logger, opts ...DeviceOption) (*Device, error) {
	cfg := deviceConfig{sampleRate: DefaultSampleRate}
	for _, opt := range opts {
		opt(&cfg)
	}

	op := &oto.NewContextOptions{
		SampleRate:   cfg.sampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.bufferSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	log.Debug("device: initialized (rate=%d, channels=%d)", cfg.sampleRate, ChannelCount)
	return &Device{
		ctx:    ctx,
		rate:   cfg.sampleRate,
		log:    log,
		active: make(map[*oto.Player]struct{}),
	}, nil
}

// SampleRate returns the device rate.
func (d *Device) SampleRate() int { return d.rate }

// Play implements Output.
func (d *Device) Play(ctx context.Context, buf *audio.Buffer, opts PlayOptions) error {
	if buf.Len() == 0 {
		return nil
	}

	var s beep.Streamer = buf.Streamer()
	ratio := opts.rate() * float64(buf.SampleRate) / float64(d.rate)
	if ratio != 1 {
		s = beep.ResampleRatio(audio.ResampleQuality, ratio, s)
	}

	p := d.ctx.NewPlayer(newStreamReader(s))
	p.SetVolume(opts.volume())
	d.track(p)
	defer d.untrack(p)

	p.Play()
	d.log.Debug("device: playing %s (rate x%.2f)", buf.Duration(), opts.rate())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for p.IsPlaying() {
		select {
		case <-ctx.Done():
			p.Pause()
			p.Close()
			d.log.Debug("device: interrupted")
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := p.Err(); err != nil {
		p.Close()
		return err
	}
	return p.Close()
}

// StartStream implements Streamer. The stream plays until it drains or the
// handle is stopped.
func (d *Device) StartStream(s beep.Streamer) (StreamHandle, error) {
	p := d.ctx.NewPlayer(newStreamReader(s))
	d.track(p)
	p.Play()
	return &deviceStream{d: d, p: p}, nil
}

// Halt pauses every player currently running on the device.
func (d *Device) Halt() {
	d.mu.Lock()
	players := make([]*oto.Player, 0, len(d.active))
	for p := range d.active {
		players = append(players, p)
	}
	d.mu.Unlock()

	for _, p := range players {
		p.Pause()
	}
	if len(players) > 0 {
		d.log.Debug("device: halted %d players", len(players))
	}
}

func (d *Device) track(p *oto.Player) {
	d.mu.Lock()
	d.active[p] = struct{}{}
	d.mu.Unlock()
}

func (d *Device) untrack(p *oto.Player) {
	d.mu.Lock()
	delete(d.active, p)
	d.mu.Unlock()
}

type deviceStream struct {
	d    *Device
	p    *oto.Player
	once sync.Once
}

func (s *deviceStream) Stop() {
	s.once.Do(func() {
		s.p.Pause()
		s.p.Close()
		s.d.untrack(s.p)
	})
}
