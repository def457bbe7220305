package audio

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
)

// BlobScheme prefixes every handle created by a BlobStore.
const BlobScheme = "blob:"

type blob struct {
	data []byte
	mime string
}

// BlobStore keeps in-memory audio reachable through "blob:" URL handles so
// merged audio can travel through the same URL-based playback path as
// stored clips. Every handle must be revoked by its owner. Safe for
// concurrent use.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewBlobStore creates an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

// Create registers data and returns its handle.
func (s *BlobStore) Create(data []byte, mime string) string {
	url := BlobScheme + uuid.NewString()
	s.mu.Lock()
	s.blobs[url] = blob{data: data, mime: mime}
	s.mu.Unlock()
	return url
}

// Open returns the bytes behind a handle.
func (s *BlobStore) Open(url string) ([]byte, error) {
	s.mu.RLock()
	b, ok := s.blobs[url]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b.data, nil
}

// Revoke releases a handle. Returns false if it was not registered.
func (s *BlobStore) Revoke(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[url]; !ok {
		return false
	}
	delete(s.blobs, url)
	return true
}

// Len returns the number of live handles.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IsBlobURL reports whether url is a blob handle.
func IsBlobURL(url string) bool {
	return strings.HasPrefix(url, BlobScheme)
}
