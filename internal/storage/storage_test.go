package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

func testClip() []byte {
	b := audio.NewBuffer(1, 64, 8000)
	for i := range b.Channels[0] {
		b.Channels[0][i] = 0.5
	}
	return audio.EncodeWAV(b)
}

func TestMemoryStoreCRUD(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	blobs := audio.NewBlobStore()
	store := NewMemoryStore(blobs, log)
	ctx := context.Background()

	id, err := store.SaveClip(ctx, domain.AudioMetadata{AffirmationID: "a1", VoiceID: "v", Text: "Hello."}, testClip())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	urls, err := store.GetBatchAudioURLs(ctx, []string{id, "missing"})
	if err != nil {
		t.Fatalf("urls: %v", err)
	}
	if len(urls) != 1 || !audio.IsBlobURL(urls[id]) {
		t.Fatalf("unexpected urls %v", urls)
	}
	if data, err := blobs.Open(urls[id]); err != nil || len(data) == 0 {
		t.Fatalf("blob not readable: %v", err)
	}

	meta, err := store.GetAudioMetadata(ctx, id)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.ClipID != id || meta.AffirmationID != "a1" || meta.CreatedAt.IsZero() {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	res, err := store.DeleteBatchAudio(ctx, []string{id, "missing"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.Deleted) != 1 || !errors.Is(res.Errors["missing"], domain.ErrNotFound) {
		t.Fatalf("unexpected delete result %+v", res)
	}
	if ok, _ := store.AudioExists(ctx, id); ok {
		t.Fatal("clip still exists after delete")
	}
	if blobs.Len() != 0 {
		t.Fatalf("expected blob revoked, %d left", blobs.Len())
	}
}

func TestSQLiteStoreCRUD(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.LevelOff, nil)
	store, err := OpenSQLite(filepath.Join(dir, "clips.db"), filepath.Join(dir, "clips"), log)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	var ids []string
	for i, text := range []string{"One.", "Two."} {
		id, err := store.SaveClip(ctx, domain.AudioMetadata{AffirmationID: "a1", SentenceIndex: i, VoiceID: "v1", Text: text}, testClip())
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	urls, err := store.GetBatchAudioURLs(ctx, append(ids, "missing"))
	if err != nil {
		t.Fatalf("urls: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %v", urls)
	}
	for _, id := range ids {
		u := urls[id]
		if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, ".wav") {
			t.Fatalf("unexpected url %q", u)
		}
	}

	// The URL must be fetchable through the regular clip path.
	f := audio.NewFetcher(log)
	if _, err := f.Fetch(ctx, urls[ids[0]]); err != nil {
		t.Fatalf("fetching stored clip: %v", err)
	}

	meta, err := store.GetAudioMetadata(ctx, ids[1])
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.SentenceIndex != 1 || meta.Text != "Two." || meta.VoiceID != "v1" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if _, err := store.GetAudioMetadata(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if ok, err := store.AudioExists(ctx, ids[0]); err != nil || !ok {
		t.Fatalf("expected clip to exist: %v", err)
	}

	res, err := store.DeleteBatchAudio(ctx, []string{ids[0], "missing"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.Deleted) != 1 || len(res.Errors) != 1 {
		t.Fatalf("unexpected delete result %+v", res)
	}
	if ok, _ := store.AudioExists(ctx, ids[0]); ok {
		t.Fatal("deleted clip still exists")
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "clips"))
	if len(entries) != 1 {
		t.Fatalf("expected one clip file left, got %d", len(entries))
	}
}

func TestSQLiteAudioExistsMissingFile(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSQLite(filepath.Join(dir, "clips.db"), dir, logger.New(logger.LevelOff, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	id, err := store.SaveClip(ctx, domain.AudioMetadata{AffirmationID: "a"}, []byte("ID3 not really mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, id+".mp3")); err != nil {
		t.Fatalf("expected mp3 extension: %v", err)
	}
	if ok, _ := store.AudioExists(ctx, id); ok {
		t.Fatal("clip without a file must not count as existing")
	}
}

type countingSource struct {
	calls atomic.Int32
	meta  map[string]domain.AudioMetadata
}

func (s *countingSource) GetAudioMetadata(_ context.Context, id string) (*domain.AudioMetadata, error) {
	s.calls.Add(1)
	m, ok := s.meta[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func TestMetadataCache(t *testing.T) {
	src := &countingSource{meta: map[string]domain.AudioMetadata{
		"c1": {ClipID: "c1", VoiceID: "v1"},
	}}
	cache := NewMetadataCache(src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetAudioMetadata(ctx, "c1"); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()

	m, err := cache.GetAudioMetadata(ctx, "c1")
	if err != nil || m.VoiceID != "v1" {
		t.Fatalf("unexpected %+v, %v", m, err)
	}
	if n := src.calls.Load(); n < 1 || n > 8 {
		t.Fatalf("unexpected source calls %d", n)
	}
	before := src.calls.Load()
	cache.GetAudioMetadata(ctx, "c1")
	if src.calls.Load() != before {
		t.Fatal("cached lookup hit the source")
	}

	if _, err := cache.GetAudioMetadata(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("misses must not be cached, len=%d", cache.Len())
	}

	cache.Invalidate("c1")
	if cache.Len() != 0 {
		t.Fatal("invalidate did not drop the entry")
	}
}
