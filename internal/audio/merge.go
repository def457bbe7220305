package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// WAVMime is the content type registered for merged audio.
const WAVMime = "audio/wav"

// Merge errors.
var (
	ErrNoBuffers          = errors.New("merge: no buffers")
	ErrSampleRateMismatch = errors.New("merge: buffers have different sample rates")
)

// fetchWeight is the share of overall progress spent fetching; merging
// takes the remainder.
const fetchWeight = 0.8

// ProgressFunc receives overall progress in [0, 1].
type ProgressFunc func(progress float64)

// MergedAudio is an encoded merge result registered in a BlobStore. The
// owner must pass it to Merger.Release when done.
type MergedAudio struct {
	Data     []byte
	URL      string
	Duration time.Duration
	Size     int
}

// Merge concatenates buffers with pause of silence between consecutive
// buffers. The output has as many channels as the widest input; narrower
// inputs reuse their last channel for the extra outputs.
func Merge(buffers []*Buffer, pause time.Duration) (*Buffer, error) {
	return merge(buffers, pause, nil)
}

func merge(buffers []*Buffer, pause time.Duration, onBuffer func(done int)) (*Buffer, error) {
	if len(buffers) == 0 {
		return nil, ErrNoBuffers
	}

	rate := buffers[0].SampleRate
	channels := 0
	total := 0
	for _, b := range buffers {
		if b.SampleRate != rate {
			return nil, fmt.Errorf("%w: %d and %d", ErrSampleRateMismatch, rate, b.SampleRate)
		}
		if n := b.NumChannels(); n > channels {
			channels = n
		}
		total += b.Len()
	}

	pauseSamples := 0
	if pause > 0 {
		pauseSamples = int(pause.Seconds() * float64(rate))
	}
	total += pauseSamples * (len(buffers) - 1)

	out := NewBuffer(channels, total, rate)
	offset := 0
	for i, b := range buffers {
		src := b.NumChannels()
		for c := 0; c < channels; c++ {
			sc := c
			if sc > src-1 {
				sc = src - 1
			}
			if sc < 0 {
				continue
			}
			copy(out.Channels[c][offset:], b.Channels[sc])
		}
		offset += b.Len()
		if i < len(buffers)-1 {
			offset += pauseSamples
		}
		if onBuffer != nil {
			onBuffer(i + 1)
		}
	}
	return out, nil
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithMergeEnabled turns merging on or off. A disabled merger reports
// itself unsupported, which makes sessions use sequential playback.
func WithMergeEnabled(enabled bool) MergerOption {
	return func(m *Merger) {
		m.enabled = enabled
	}
}

// Merger fetches clip URLs, merges them and publishes the result as a blob.
type Merger struct {
	loader  *Loader
	blobs   *BlobStore
	enabled bool
	log     *logger.Logger
}

// NewMerger creates a merger backed by loader and blobs.
func NewMerger(loader *Loader, blobs *BlobStore, log *logger.Logger, opts ...MergerOption) *Merger {
	m := &Merger{
		loader:  loader,
		blobs:   blobs,
		enabled: true,
		log:     log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Supported reports whether this merger can produce merged audio.
func (m *Merger) Supported() bool {
	return m != nil && m.enabled && m.loader != nil && m.loader.CanDecode() && m.blobs != nil
}

// MergeURLs fetches every URL concurrently, merges them in order with
// pause between clips and registers the encoded WAV in the blob store.
// Returns domain.ErrUnsupportedEnvironment when merging is unavailable.
func (m *Merger) MergeURLs(ctx context.Context, urls []string, pause time.Duration, onProgress ProgressFunc) (*MergedAudio, error) {
	if !m.Supported() {
		return nil, domain.ErrUnsupportedEnvironment
	}
	if len(urls) == 0 {
		return nil, ErrNoBuffers
	}
	report := func(p float64) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	buffers := make([]*Buffer, len(urls))
	var (
		mu      sync.Mutex
		fetched int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			buf, err := m.loader.FetchAndDecode(gctx, u)
			if err != nil {
				return fmt.Errorf("clip %d: %w", i, err)
			}
			buffers[i] = buf

			mu.Lock()
			fetched++
			p := fetchWeight * float64(fetched) / float64(len(urls))
			mu.Unlock()
			report(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rate := buffers[0].SampleRate
	for i, b := range buffers {
		if b.SampleRate == rate {
			continue
		}
		m.log.Debug("merger: resampling clip %d from %d to %d Hz", i, b.SampleRate, rate)
		rb, err := Resample(b, rate)
		if err != nil {
			return nil, err
		}
		buffers[i] = rb
	}

	merged, err := merge(buffers, pause, func(done int) {
		report(fetchWeight + (1-fetchWeight)*float64(done)/float64(len(buffers)))
	})
	if err != nil {
		return nil, err
	}

	data := EncodeWAV(merged)
	url := m.blobs.Create(data, WAVMime)
	m.log.Debug("merger: merged %d clips into %s (%d bytes, %s)", len(urls), url, len(data), merged.Duration())

	return &MergedAudio{
		Data:     data,
		URL:      url,
		Duration: merged.Duration(),
		Size:     len(data),
	}, nil
}

// Release revokes the blob handle behind res. Safe to call with nil and
// more than once.
func (m *Merger) Release(res *MergedAudio) {
	if res == nil || m.blobs == nil {
		return
	}
	if m.blobs.Revoke(res.URL) {
		m.log.Debug("merger: released %s", res.URL)
	}
}
