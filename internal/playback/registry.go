package playback

import (
	"context"
	"sync"
)

// Registry tracks every in-flight playback so a global stop can halt all
// of them, whoever started them.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	active map[uint64]context.CancelFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[uint64]context.CancelFunc)}
}

// Add registers a cancel func and returns a function that unregisters it.
func (r *Registry) Add(cancel context.CancelFunc) (remove func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.active[id] = cancel
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.active, id)
		r.mu.Unlock()
	}
}

// StopAll cancels every registered playback and clears the registry.
// Returns how many were cancelled.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.active))
	for id, c := range r.active {
		cancels = append(cancels, c)
		delete(r.active, id)
	}
	r.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	return len(cancels)
}

// Active returns the number of registered playbacks.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
