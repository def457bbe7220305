package session

import (
	"context"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/playback"
)

// strategy is how pre-generated clips are played for the rest of a
// session. It is chosen once at Start; the only change ever made is the
// one-way switch from merged to sequential.
type strategy interface {
	name() string
	play(ctx context.Context, o *Orchestrator, r *run, urls []string, opts playback.SequenceOptions) error
}

// mergedStrategy merges an affirmation's clips into one blob with the
// sentence pause baked in and plays that blob as a single clip.
type mergedStrategy struct{}

func (mergedStrategy) name() string { return domain.SourceMerged }

func (mergedStrategy) play(ctx context.Context, o *Orchestrator, r *run, urls []string, opts playback.SequenceOptions) error {
	url, err := o.mergedURL(ctx, r, urls, opts.ClipPause)
	if err != nil {
		return err
	}
	return o.player.PlaySequence(ctx, []string{url}, playback.SequenceOptions{
		PostPause:    opts.PostPause,
		PlaybackRate: opts.PlaybackRate,
		Volume:       opts.Volume,
		OnProgress:   opts.OnProgress,
	})
}

// sequentialStrategy plays clips one by one with silent-clip pauses.
type sequentialStrategy struct{}

func (sequentialStrategy) name() string { return domain.SourceSequential }

func (sequentialStrategy) play(ctx context.Context, o *Orchestrator, _ *run, urls []string, opts playback.SequenceOptions) error {
	return o.player.PlaySequence(ctx, urls, opts)
}
