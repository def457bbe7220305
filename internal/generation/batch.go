package generation

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// GroupSize is how many affirmations are generated concurrently.
const GroupSize = 3

// Result summarizes one batch run.
type Result struct {
	Generated []string         // affirmation ids that got fresh clips
	Skipped   []string         // affirmation ids whose clips were current
	Failed    map[string]error // affirmation id -> cause
	Deleted   int              // stale clips removed
}

// ProgressFunc is called after each affirmation with the number done and
// the total.
type ProgressFunc func(done, total int)

// Batch brings a project's clips up to date.
type Batch struct {
	gen     domain.AudioGenerator
	storage domain.AudioStorage
	meta    domain.MetadataSource
	log     *logger.Logger
}

// NewBatch creates a batch runner. meta is used to check which voice
// existing clips were rendered with.
func NewBatch(gen domain.AudioGenerator, storage domain.AudioStorage, meta domain.MetadataSource, log *logger.Logger) *Batch {
	return &Batch{gen: gen, storage: storage, meta: meta, log: log}
}

// Generate renders clips for every affirmation of p in groups of
// GroupSize. Affirmations whose clips all exist with the project voice are
// skipped; the rest are regenerated and their stale clips deleted. p is
// updated in place; the caller saves it. A failed affirmation keeps its old
// ids and does not stop the batch.
func (b *Batch) Generate(ctx context.Context, p *domain.Project, onProgress ProgressFunc) (Result, error) {
	res := Result{Failed: make(map[string]error)}
	var mu sync.Mutex
	total := len(p.Affirmations)
	done := 0

	for start := 0; start < total; start += GroupSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+GroupSize, total)

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				aff := &p.Affirmations[i]
				regenerated, deleted, err := b.one(ctx, p.VoiceID, aff)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					res.Failed[aff.ID] = err
				case regenerated:
					res.Generated = append(res.Generated, aff.ID)
				default:
					res.Skipped = append(res.Skipped, aff.ID)
				}
				res.Deleted += deleted
				done++
				if onProgress != nil {
					onProgress(done, total)
				}
				if err != nil {
					return fmt.Errorf("%s: %w", aff.ID, err)
				}
				return nil
			})
		}
		// Failures never cancel siblings; Wait reports the first one and
		// the rest are in res.Failed.
		if err := g.Wait(); err != nil {
			b.log.Warn("batch: group %d-%d: %d of %d failed, first %v", start+1, end, countFailed(res.Failed, p.Affirmations[start:end]), end-start, err)
		}
	}

	b.log.Info("batch: %s: %d generated, %d skipped, %d failed", p.Name, len(res.Generated), len(res.Skipped), len(res.Failed))
	return res, nil
}

// one brings a single affirmation up to date. Returns whether it was
// regenerated and how many stale clips were deleted.
func (b *Batch) one(ctx context.Context, voiceID string, aff *domain.Affirmation) (bool, int, error) {
	if b.current(ctx, voiceID, aff) {
		return false, 0, nil
	}

	ids, err := b.gen.GenerateSentenceAudio(ctx, aff.ID, aff.Text, voiceID)
	if err != nil {
		return false, 0, fmt.Errorf("generating: %w", err)
	}

	stale := aff.SentenceIDs
	aff.SentenceIDs = ids
	aff.SentenceCount = len(ids)

	if len(stale) == 0 {
		return true, 0, nil
	}
	dr, err := b.storage.DeleteBatchAudio(ctx, stale)
	if err != nil {
		b.log.Warn("batch: deleting stale clips of %s: %v", aff.ID, err)
		return true, 0, nil
	}
	for id, derr := range dr.Errors {
		b.log.Debug("batch: stale clip %s: %v", id, derr)
	}
	return true, len(dr.Deleted), nil
}

// current reports whether aff already has one existing clip per sentence,
// all rendered with voiceID.
func (b *Batch) current(ctx context.Context, voiceID string, aff *domain.Affirmation) bool {
	if !aff.HasAudio() || len(aff.SentenceIDs) != domain.SentenceCount(aff.Text) {
		return false
	}
	for _, id := range aff.SentenceIDs {
		ok, err := b.storage.AudioExists(ctx, id)
		if err != nil || !ok {
			return false
		}
		if b.meta == nil {
			continue
		}
		m, err := b.meta.GetAudioMetadata(ctx, id)
		if err != nil || m.VoiceID != voiceID {
			return false
		}
	}
	return true
}

func countFailed(failed map[string]error, affs []domain.Affirmation) int {
	n := 0
	for _, a := range affs {
		if _, ok := failed[a.ID]; ok {
			n++
		}
	}
	return n
}
