// Package audio holds the canonical in-memory sample buffer and everything
// that produces one: clip fetching, decoding, merging and PCM container
// encoding.
package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
)

// ResampleQuality is the beep resampler quality used for rate conversion.
const ResampleQuality = 4

// Buffer is decoded audio: one float32 slice per channel, all the same
// length, samples nominally in [-1, 1].
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(channels, length, sampleRate int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	b := &Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for c := range b.Channels {
		b.Channels[c] = make([]float32, length)
	}
	return b
}

// Silence returns a mono buffer of zeros lasting d.
func Silence(d time.Duration, sampleRate int) *Buffer {
	n := int(d.Seconds() * float64(sampleRate))
	if n < 0 {
		n = 0
	}
	return NewBuffer(1, n, sampleRate)
}

// Len returns the length in samples per channel.
func (b *Buffer) Len() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

// Duration returns the playing time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Len()) / float64(b.SampleRate) * float64(time.Second))
}

// IsSilent reports whether every sample is zero.
func (b *Buffer) IsSilent() bool {
	for _, ch := range b.Channels {
		for _, s := range ch {
			if s != 0 {
				return false
			}
		}
	}
	return true
}

// Streamer returns a beep stream over the buffer. Mono is duplicated to
// both sides; channels beyond the second are ignored.
func (b *Buffer) Streamer() beep.StreamSeeker {
	return &bufferStreamer{b: b}
}

// Format returns the beep format matching the buffer.
func (b *Buffer) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(b.SampleRate),
		NumChannels: b.NumChannels(),
		Precision:   2,
	}
}

type bufferStreamer struct {
	b   *Buffer
	pos int
}

func (s *bufferStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	total := s.b.Len()
	if s.pos >= total {
		return 0, false
	}
	left := s.b.Channels[0]
	right := left
	if len(s.b.Channels) > 1 {
		right = s.b.Channels[1]
	}
	for n < len(samples) && s.pos < total {
		samples[n][0] = float64(left[s.pos])
		samples[n][1] = float64(right[s.pos])
		n++
		s.pos++
	}
	return n, true
}

func (s *bufferStreamer) Err() error    { return nil }
func (s *bufferStreamer) Len() int      { return s.b.Len() }
func (s *bufferStreamer) Position() int { return s.pos }

func (s *bufferStreamer) Seek(p int) error {
	if p < 0 || p > s.b.Len() {
		return fmt.Errorf("seek %d out of range [0, %d]", p, s.b.Len())
	}
	s.pos = p
	return nil
}

// Resample converts b to the given sample rate. Buffers with more than
// two channels come back as stereo, since beep streams are stereo.
func Resample(b *Buffer, sampleRate int) (*Buffer, error) {
	if b.SampleRate == sampleRate {
		return b, nil
	}
	if b.SampleRate <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rates %d -> %d", b.SampleRate, sampleRate)
	}

	channels := b.NumChannels()
	if channels > 2 {
		channels = 2
	}
	r := beep.Resample(ResampleQuality, beep.SampleRate(b.SampleRate), beep.SampleRate(sampleRate), b.Streamer())

	expected := int(float64(b.Len()) * float64(sampleRate) / float64(b.SampleRate))
	out := make([][2]float64, 0, expected+ResampleQuality*2)
	chunk := make([][2]float64, 512)
	for {
		n, ok := r.Stream(chunk)
		out = append(out, chunk[:n]...)
		if !ok || n == 0 {
			break
		}
	}

	res := NewBuffer(channels, len(out), sampleRate)
	for i, frame := range out {
		for c := 0; c < channels; c++ {
			res.Channels[c][i] = float32(frame[c])
		}
	}
	return res, nil
}
