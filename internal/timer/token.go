// Package timer provides the cancellation tokens that own every pending
// session timer, and the watchdog that forces a stalled session forward.
package timer

import (
	"context"
	"sync"
	"time"
)

// Token scopes one playback run. Every timer issued through it is stopped
// when the token is cancelled, so no callback fires after a transition.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	timers    map[*time.Timer]struct{}
	cancelled bool
}

// NewToken creates a token whose context derives from parent.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[*time.Timer]struct{}),
	}
}

// Context is cancelled together with the token.
func (t *Token) Context() context.Context { return t.ctx }

// After runs fn once d has elapsed unless the token is cancelled first.
// Returns false if the token is already cancelled.
func (t *Token) After(d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}

	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		_, live := t.timers[tm]
		delete(t.timers, tm)
		t.mu.Unlock()
		if live {
			fn()
		}
	})
	t.timers[tm] = struct{}{}
	return true
}

// Sleep blocks for d or until the token is cancelled, in which case it
// returns the context error.
func (t *Token) Sleep(d time.Duration) error {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return context.Canceled
	}
	tm := time.NewTimer(d)
	t.timers[tm] = struct{}{}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.timers, tm)
		t.mu.Unlock()
		tm.Stop()
	}()

	select {
	case <-tm.C:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

// Cancel stops every pending timer and cancels the context. Safe to call
// more than once; returns the number of timers stopped.
func (t *Token) Cancel() int {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return 0
	}
	t.cancelled = true
	stopped := 0
	for tm := range t.timers {
		if tm.Stop() {
			stopped++
		}
		delete(t.timers, tm)
	}
	t.mu.Unlock()

	t.cancel()
	return stopped
}

// Cancelled reports whether Cancel has been called or the parent ended.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled || t.ctx.Err() != nil
}

// Pending returns the number of timers still waiting to fire.
func (t *Token) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
