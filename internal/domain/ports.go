package domain

import "context"

// AudioStorage resolves and manages stored sentence clips. Implementations
// can be a hosted object store, SQLite plus disk, or in-memory.
type AudioStorage interface {
	GetBatchAudioURLs(ctx context.Context, clipIDs []string) (map[string]string, error)
	AudioExists(ctx context.Context, clipID string) (bool, error)
	DeleteBatchAudio(ctx context.Context, clipIDs []string) (DeleteResult, error)
}

// ClipWriter persists freshly generated clip audio and returns its id.
type ClipWriter interface {
	SaveClip(ctx context.Context, meta AudioMetadata, data []byte) (string, error)
}

// MetadataSource returns stored metadata for a clip. Callers are expected
// to cache results; implementations may be slow.
type MetadataSource interface {
	GetAudioMetadata(ctx context.Context, clipID string) (*AudioMetadata, error)
}

// AudioGenerator produces one clip per sentence of text and returns the
// clip ids in sentence order.
type AudioGenerator interface {
	GenerateSentenceAudio(ctx context.Context, affirmationID, text, voiceID string) ([]string, error)
}

// ProjectSource provides projects. Implementations can be file-based or
// backed by a hosted document store.
type ProjectSource interface {
	List(ctx context.Context) ([]*Project, error)
	Get(ctx context.Context, id string) (*Project, error)
	Save(ctx context.Context, project *Project) error
}

// SessionObserver receives session events. Implementations must not block.
type SessionObserver interface {
	OnSessionEvent(ev SessionEvent)
}

// ObserverFunc adapts a function to SessionObserver.
type ObserverFunc func(ev SessionEvent)

// OnSessionEvent calls f(ev).
func (f ObserverFunc) OnSessionEvent(ev SessionEvent) { f(ev) }
