package timer

import (
	"context"
	"sync"
	"time"

	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// Target is what the watchdog supervises. LastProgress reports the last
// time playback moved forward, or the end of a wait already under way; ok
// is false when there is nothing to watch (idle, paused or finished).
type Target interface {
	LastProgress() (at time.Time, ok bool)
	Next() error
}

// Option configures the watchdog.
type Option func(*Watchdog)

// WithTickInterval sets how often the watchdog checks progress.
func WithTickInterval(d time.Duration) Option {
	return func(w *Watchdog) {
		w.tickInterval = d
	}
}

// WithStallTimeout sets how long a session may go without progress before
// it is forced to the next affirmation.
func WithStallTimeout(d time.Duration) Option {
	return func(w *Watchdog) {
		w.stallTimeout = d
	}
}

// Watchdog runs in the background and advances a session that has made no
// progress for longer than the stall timeout.
type Watchdog struct {
	target       Target
	log          *logger.Logger
	tickInterval time.Duration
	stallTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	forced  int
}

// NewWatchdog creates a watchdog for target.
func NewWatchdog(target Target, log *logger.Logger, opts ...Option) *Watchdog {
	w := &Watchdog{
		target:       target,
		log:          log,
		tickInterval: 5 * time.Second,
		stallTimeout: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the background loop. Non-blocking.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.log.Warn("watchdog: already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(childCtx, w.done)

	w.log.Debug("watchdog: started (tick=%s, stall=%s)", w.tickInterval, w.stallTimeout)
}

// Stop shuts down the loop and waits for it to exit.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	done := w.done
	w.mu.Unlock()

	<-done
	w.log.Debug("watchdog: stopped")
}

// Forced returns how many times the watchdog advanced the target.
func (w *Watchdog) Forced() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.forced
}

func (w *Watchdog) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check advances the target if it has stalled. Returns true if it did.
func (w *Watchdog) check() bool {
	at, ok := w.target.LastProgress()
	if !ok {
		return false
	}
	idle := w.now().Sub(at)
	if idle < w.stallTimeout {
		return false
	}

	w.log.Warn("watchdog: no progress for %s, forcing next affirmation", idle.Round(time.Second))
	if err := w.target.Next(); err != nil {
		w.log.Warn("watchdog: next: %v", err)
		return false
	}

	w.mu.Lock()
	w.forced++
	w.mu.Unlock()
	return true
}
