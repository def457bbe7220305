// Package storage provides sentence clip stores: an in-memory store that
// serves clips as blob handles, and a SQLite store that keeps clip bytes on
// disk and serves file URLs.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.AudioStorage   = (*MemoryStore)(nil)
	_ domain.ClipWriter     = (*MemoryStore)(nil)
	_ domain.MetadataSource = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory clip store. Clip bytes live in a BlobStore
// so their URLs play through the regular fetch path. Safe for concurrent
// access.
type MemoryStore struct {
	mu    sync.RWMutex
	clips map[string]domain.AudioMetadata
	blobs *audio.BlobStore
	log   *logger.Logger
}

// NewMemoryStore creates an empty store publishing clips into blobs.
func NewMemoryStore(blobs *audio.BlobStore, log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		clips: make(map[string]domain.AudioMetadata),
		blobs: blobs,
		log:   log,
	}
}

// SaveClip stores data and returns the new clip id.
func (s *MemoryStore) SaveClip(ctx context.Context, meta domain.AudioMetadata, data []byte) (string, error) {
	meta.ClipID = uuid.NewString()
	meta.DownloadURL = s.blobs.Create(data, audio.WAVMime)
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.clips[meta.ClipID] = meta
	s.mu.Unlock()

	s.log.Debug("storage: saved clip %s (%s #%d, %d bytes)", meta.ClipID, meta.AffirmationID, meta.SentenceIndex, len(data))
	return meta.ClipID, nil
}

// GetBatchAudioURLs returns URLs for the ids that exist. Unknown ids are
// omitted rather than reported.
func (s *MemoryStore) GetBatchAudioURLs(ctx context.Context, clipIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(clipIDs))
	for _, id := range clipIDs {
		if m, ok := s.clips[id]; ok {
			out[id] = m.DownloadURL
		}
	}
	return out, nil
}

// AudioExists reports whether a clip is stored.
func (s *MemoryStore) AudioExists(ctx context.Context, clipID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clips[clipID]
	return ok, nil
}

// DeleteBatchAudio removes clips and revokes their blob handles. Unknown
// ids are reported per id in the result.
func (s *MemoryStore) DeleteBatchAudio(ctx context.Context, clipIDs []string) (domain.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := domain.DeleteResult{Errors: make(map[string]error)}
	for _, id := range clipIDs {
		m, ok := s.clips[id]
		if !ok {
			res.Errors[id] = domain.ErrNotFound
			continue
		}
		s.blobs.Revoke(m.DownloadURL)
		delete(s.clips, id)
		res.Deleted = append(res.Deleted, id)
	}
	s.log.Debug("storage: deleted %d clips, %d failures", len(res.Deleted), len(res.Errors))
	return res, nil
}

// GetAudioMetadata returns a copy of a clip's metadata.
func (s *MemoryStore) GetAudioMetadata(ctx context.Context, clipID string) (*domain.AudioMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.clips[clipID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

// Len returns the number of stored clips.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clips)
}
