// Package session implements the affirmation session state machine. It
// owns the active session's timers, merged audio handle and ambience, and
// drives playback through merged, sequential or narrated paths.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procodeeu/MyAffirms-sub000/internal/ambience"
	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
	"github.com/procodeeu/MyAffirms-sub000/internal/playback"
	"github.com/procodeeu/MyAffirms-sub000/internal/speech"
	"github.com/procodeeu/MyAffirms-sub000/internal/timer"
)

// Merger produces merged audio for a list of clip URLs.
type Merger interface {
	Supported() bool
	MergeURLs(ctx context.Context, urls []string, pause time.Duration, onProgress audio.ProgressFunc) (*audio.MergedAudio, error)
	Release(res *audio.MergedAudio)
}

// SequencePlayer plays clip URLs in order and can halt everything it has
// started.
type SequencePlayer interface {
	PlaySequence(ctx context.Context, urls []string, opts playback.SequenceOptions) error
	StopAll()
}

// Narrator is the speech fallback.
type Narrator interface {
	Speak(ctx context.Context, text string, opts speech.SpeakOptions)
}

// Ambience is the background sound generator.
type Ambience interface {
	Play(volume float64, kind ambience.Kind) error
	FadeOut(d time.Duration)
	Stop()
}

// Compile-time interface checks.
var (
	_ Merger         = (*audio.Merger)(nil)
	_ SequencePlayer = (*playback.Player)(nil)
	_ Narrator       = (*speech.Narrator)(nil)
	_ Ambience       = (*ambience.Generator)(nil)
	_ timer.Target   = (*Orchestrator)(nil)
)

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithMerger enables the merged strategy when the merger is supported.
func WithMerger(m Merger) Option {
	return func(o *Orchestrator) {
		o.merger = m
	}
}

// WithNarrator sets the speech fallback.
func WithNarrator(n Narrator) Option {
	return func(o *Orchestrator) {
		o.narrator = n
	}
}

// WithAmbience sets the background sound generator.
func WithAmbience(a Ambience) Option {
	return func(o *Orchestrator) {
		o.ambience = a
	}
}

// WithObserver receives every session event.
func WithObserver(obs domain.SessionObserver) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithFadeOut sets how long ambience fades when a session ends.
func WithFadeOut(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.fadeOut = d
	}
}

// Orchestrator runs one session at a time. Starting a new session tears
// down the previous one first. All methods are safe for concurrent use.
type Orchestrator struct {
	storage  domain.AudioStorage
	player   SequencePlayer
	merger   Merger
	narrator Narrator
	ambience Ambience
	observer domain.SessionObserver
	log      *logger.Logger
	fadeOut  time.Duration

	mu           sync.Mutex
	base         context.Context
	id           string
	affirmations []domain.Affirmation
	settings     domain.Settings
	index        int
	active       bool
	paused       bool
	finished     bool
	strategy     strategy
	token        *timer.Token
	blob         *audio.MergedAudio
	blobIndex    int
	startedAt    time.Time
	lastProgress time.Time
	done         chan struct{}
}

// New creates an orchestrator. storage resolves clip URLs and player
// plays them; everything else is optional.
func New(storage domain.AudioStorage, player SequencePlayer, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		storage: storage,
		player:  player,
		log:     log,
		fadeOut: 2 * time.Second,
		done:    closedChan(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is one playback run over the current affirmation. Each run owns a
// token; every transition cancels it.
type run struct {
	tok      *timer.Token
	index    int
	aff      domain.Affirmation
	settings domain.Settings
	last     bool
}

// Start begins a session over the active affirmations. Settings are
// copied; ctx bounds the whole session, not just this call.
func (o *Orchestrator) Start(ctx context.Context, affirmations []domain.Affirmation, settings domain.Settings) error {
	active := make([]domain.Affirmation, 0, len(affirmations))
	hasClips := false
	for _, a := range affirmations {
		if !a.IsActive {
			continue
		}
		active = append(active, a)
		if a.HasAudio() {
			hasClips = true
		}
	}
	if len(active) == 0 {
		return domain.ErrNoAffirmations
	}
	if !hasClips && o.narrator == nil {
		return domain.ErrNothingPlayable
	}

	o.mu.Lock()
	evs := o.teardownLocked(false)

	o.base = ctx
	o.id = uuid.NewString()
	o.affirmations = active
	o.settings = settings
	o.index = 0
	o.active = true
	o.paused = false
	o.finished = false
	o.startedAt = time.Now()
	o.lastProgress = o.startedAt
	o.done = make(chan struct{})

	o.strategy = sequentialStrategy{}
	if o.merger != nil && o.merger.Supported() {
		o.strategy = mergedStrategy{}
	}

	if settings.BackgroundMusic && o.ambience != nil {
		o.startAmbienceLocked()
	}

	evs = append(evs, o.eventLocked(domain.EventSessionStarted, o.strategy.name(), nil))
	r := o.newRunLocked()
	id, strat := o.id, o.strategy.name()
	o.mu.Unlock()

	o.log.Info("session %s started: %d affirmations, strategy %s", id[:8], len(active), strat)
	o.emit(evs...)
	go o.loop(r)
	return nil
}

// Next abandons the current affirmation and moves on. Past the last
// affirmation the session finishes. A paused session stays paused at the
// new index.
func (o *Orchestrator) Next() error {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return domain.ErrSessionNotActive
	}
	o.haltLocked()

	var evs []domain.SessionEvent
	var r *run
	o.index++
	o.lastProgress = time.Now()
	if o.index >= len(o.affirmations) {
		evs = o.finishLocked()
	} else if !o.paused {
		r = o.newRunLocked()
	}
	o.mu.Unlock()

	o.emit(evs...)
	if r != nil {
		go o.loop(r)
	}
	return nil
}

// Pause halts audio and timers, keeping the current index.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return domain.ErrSessionNotActive
	}
	if o.paused {
		o.mu.Unlock()
		return domain.ErrSessionPaused
	}
	o.haltLocked()
	o.paused = true
	ev := o.eventLocked(domain.EventPaused, "", nil)
	o.mu.Unlock()

	o.log.Info("session: paused at %d", ev.Index+1)
	o.emit(ev)
	return nil
}

// Resume replays the current affirmation from its beginning. There is no
// mid-clip resume.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return domain.ErrSessionNotActive
	}
	if !o.paused {
		o.mu.Unlock()
		return domain.ErrSessionNotPaused
	}
	o.paused = false
	o.lastProgress = time.Now()
	ev := o.eventLocked(domain.EventResumed, "", nil)
	r := o.newRunLocked()
	o.mu.Unlock()

	o.log.Info("session: resumed at %d", ev.Index+1)
	o.emit(ev)
	go o.loop(r)
	return nil
}

// Stop ends the session and returns to idle. Safe to call repeatedly.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	evs := o.teardownLocked(true)
	o.affirmations = nil
	o.index = 0
	o.finished = false
	o.mu.Unlock()

	o.emit(evs...)
}

// Done is closed when the session finishes or is stopped.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// State returns a snapshot of the session.
func (o *Orchestrator) State() domain.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := domain.SessionState{
		ID:           o.id,
		IsActive:     o.active,
		IsPaused:     o.paused,
		IsFinished:   o.finished,
		CurrentIndex: o.index,
		Affirmations: append([]domain.Affirmation(nil), o.affirmations...),
		Settings:     o.settings,
		StartedAt:    o.startedAt,
	}
	if o.strategy != nil {
		st.Strategy = o.strategy.name()
	}
	if o.token != nil {
		st.PendingTimers = o.token.Pending()
	}
	if o.active && o.index < len(o.affirmations) {
		cur := o.affirmations[o.index]
		st.Current = &cur
	}
	return st
}

// LastProgress reports when playback last moved forward. While a clip or
// pause of known length is under way it reports when that wait ends, which
// may be in the future. ok is false unless a session is playing.
func (o *Orchestrator) LastProgress() (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastProgress, o.active && !o.paused
}

// ── run loop ──────────────────────────────────────────────────────

// loop plays affirmations from r.index until the session finishes or the
// run's token is cancelled by a transition.
func (o *Orchestrator) loop(r *run) {
	for {
		o.emit(o.event(domain.EventAffirmationStarted, r, "", nil))
		source, err := o.playAffirmation(r)
		if r.tok.Cancelled() {
			return
		}
		if err != nil {
			o.log.Warn("session: affirmation %d failed, advancing: %v", r.index+1, err)
			o.emit(o.event(domain.EventAffirmationFailed, r, source, err))
		} else {
			o.emit(o.event(domain.EventAffirmationFinished, r, source, nil))
		}

		// A transition may have landed while the events above were
		// delivered; only the run that still owns a live session advances.
		o.mu.Lock()
		if o.token != r.tok || r.tok.Cancelled() || !o.active || o.paused {
			o.mu.Unlock()
			return
		}
		o.index++
		o.lastProgress = time.Now()
		if o.index >= len(o.affirmations) {
			evs := o.finishLocked()
			o.mu.Unlock()
			o.emit(evs...)
			return
		}
		r = o.nextRunLocked(r.tok)
		o.mu.Unlock()
	}
}

// playAffirmation plays the current affirmation once, then once more
// after RepeatDelay when repeating. The post pause follows only the first
// play and only when another affirmation comes next.
func (o *Orchestrator) playAffirmation(r *run) (string, error) {
	ctx := r.tok.Context()
	urls := o.resolveURLs(ctx, r.aff)

	var sentencePause time.Duration
	if domain.SentenceCount(r.aff.Text) > 1 {
		sentencePause = r.settings.SentencePause
	}
	var post time.Duration
	if !r.last {
		post = r.settings.PauseDuration
	}

	source, err := o.playOnce(r, urls, sentencePause, post)
	if errors.Is(err, domain.ErrStopped) || !r.settings.RepeatAffirmation {
		return source, err
	}

	o.hold(r, r.settings.RepeatDelay)
	if err := r.tok.Sleep(r.settings.RepeatDelay); err != nil {
		return source, domain.ErrStopped
	}
	o.emit(o.event(domain.EventAffirmationRepeat, r, "", nil))

	repeatSource, repeatErr := o.playOnce(r, urls, sentencePause, 0)
	if err == nil && repeatErr != nil && !errors.Is(repeatErr, domain.ErrStopped) {
		o.log.Warn("session: repeat of affirmation %d failed: %v", r.index+1, repeatErr)
		return source, nil
	}
	if repeatErr == nil {
		return repeatSource, nil
	}
	return source, repeatErr
}

// playOnce tries the session strategy, then sequential clips, then the
// narrator.
func (o *Orchestrator) playOnce(r *run, urls []string, sentencePause, post time.Duration) (string, error) {
	ctx := r.tok.Context()
	opts := playback.SequenceOptions{
		ClipPause:    sentencePause,
		PostPause:    post,
		PlaybackRate: r.settings.SpeechRate,
		OnProgress:   func(busy time.Duration) { o.hold(r, busy) },
	}

	if len(urls) > 0 {
		strat := o.currentStrategy()
		if _, merged := strat.(mergedStrategy); merged {
			err := strat.play(ctx, o, r, urls, opts)
			switch {
			case err == nil:
				return domain.SourceMerged, nil
			case r.tok.Cancelled() || errors.Is(err, domain.ErrStopped):
				return "", domain.ErrStopped
			case errors.Is(err, domain.ErrUnsupportedEnvironment):
				o.switchToSequential(r, err)
			default:
				o.log.Warn("session: merged playback failed, using sequential for affirmation %d: %v", r.index+1, err)
			}
		}

		err := sequentialStrategy{}.play(ctx, o, r, urls, opts)
		switch {
		case err == nil:
			return domain.SourceSequential, nil
		case r.tok.Cancelled() || errors.Is(err, domain.ErrStopped):
			return "", domain.ErrStopped
		default:
			o.log.Warn("session: clips for affirmation %d unplayable: %v", r.index+1, err)
		}
	}

	if o.narrator == nil {
		return "", fmt.Errorf("affirmation %s: no playable audio", r.aff.ID)
	}
	o.narrator.Speak(ctx, r.aff.Text, speech.SpeakOptions{
		Rate:          r.settings.SpeechRate,
		Pitch:         1,
		Volume:        1,
		VoiceID:       r.settings.VoiceID,
		SentencePause: sentencePause,
	})
	if r.tok.Cancelled() {
		return "", domain.ErrStopped
	}
	if post > 0 {
		o.hold(r, post)
		if err := r.tok.Sleep(post); err != nil {
			return "", domain.ErrStopped
		}
	}
	return domain.SourceSpeech, nil
}

// resolveURLs returns the affirmation's clip URLs in sentence order.
// Missing clips are skipped; a lookup failure yields none.
func (o *Orchestrator) resolveURLs(ctx context.Context, aff domain.Affirmation) []string {
	if !aff.HasAudio() {
		return nil
	}
	byID, err := o.storage.GetBatchAudioURLs(ctx, aff.SentenceIDs)
	if err != nil {
		o.log.Warn("session: resolving clips for %s: %v", aff.ID, err)
		return nil
	}
	urls := make([]string, 0, len(aff.SentenceIDs))
	for _, id := range aff.SentenceIDs {
		u, ok := byID[id]
		if !ok || u == "" {
			o.log.Warn("session: clip %s of %s missing from storage", id, aff.ID)
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

// mergedURL returns the blob URL of the merged affirmation, merging only
// when the held blob belongs to another affirmation.
func (o *Orchestrator) mergedURL(ctx context.Context, r *run, urls []string, pause time.Duration) (string, error) {
	o.mu.Lock()
	if o.blob != nil && o.blobIndex == r.index && o.token == r.tok {
		url := o.blob.URL
		o.mu.Unlock()
		return url, nil
	}
	o.mu.Unlock()

	res, err := o.merger.MergeURLs(ctx, urls, pause, func(float64) { o.touch() })
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.token != r.tok || r.tok.Cancelled() {
		o.merger.Release(res)
		return "", domain.ErrStopped
	}
	o.releaseBlobLocked()
	o.blob = res
	o.blobIndex = r.index
	return res.URL, nil
}

// ── transitions ───────────────────────────────────────────────────

func (o *Orchestrator) newRunLocked() *run {
	o.token = timer.NewToken(o.base)
	return o.nextRunLocked(o.token)
}

func (o *Orchestrator) nextRunLocked(tok *timer.Token) *run {
	return &run{
		tok:      tok,
		index:    o.index,
		aff:      o.affirmations[o.index],
		settings: o.settings,
		last:     o.index == len(o.affirmations)-1,
	}
}

// haltLocked cancels the current token and silences every playback.
func (o *Orchestrator) haltLocked() {
	if o.token != nil {
		if n := o.token.Cancel(); n > 0 {
			o.log.Debug("session: cleared %d pending timers", n)
		}
	}
	o.player.StopAll()
}

// finishLocked moves an active session to finished.
func (o *Orchestrator) finishLocked() []domain.SessionEvent {
	o.haltLocked()
	o.index = len(o.affirmations) - 1
	o.active = false
	o.paused = false
	o.finished = true
	o.releaseBlobLocked()
	if o.ambience != nil {
		o.ambience.FadeOut(o.fadeOut)
	}
	closeOnce(o.done)
	o.log.Info("session: finished")
	return []domain.SessionEvent{o.eventLocked(domain.EventSessionFinished, "", nil)}
}

// teardownLocked releases everything the current session holds. fade
// selects a faded rather than immediate ambience stop.
func (o *Orchestrator) teardownLocked(fade bool) []domain.SessionEvent {
	var evs []domain.SessionEvent
	wasActive := o.active

	if o.token != nil {
		o.haltLocked()
		o.token = nil
	}
	o.releaseBlobLocked()
	if o.ambience != nil {
		if fade {
			o.ambience.FadeOut(o.fadeOut)
		} else {
			o.ambience.Stop()
		}
	}
	if wasActive {
		evs = append(evs, o.eventLocked(domain.EventSessionStopped, "", nil))
		closeOnce(o.done)
		o.log.Info("session: stopped")
	}
	o.active = false
	o.paused = false
	return evs
}

func (o *Orchestrator) releaseBlobLocked() {
	if o.blob == nil {
		return
	}
	o.merger.Release(o.blob)
	o.blob = nil
}

func (o *Orchestrator) startAmbienceLocked() {
	kind, err := ambience.ParseKind(o.settings.MusicType)
	if err != nil {
		o.log.Warn("session: %v, using birds", err)
		kind = ambience.KindBirds
	}
	if err := o.ambience.Play(o.settings.MusicVolume, kind); err != nil {
		o.log.Warn("session: ambience unavailable: %v", err)
	}
}

func (o *Orchestrator) currentStrategy() strategy {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.strategy
}

// switchToSequential permanently drops the merged strategy for this
// session.
func (o *Orchestrator) switchToSequential(r *run, cause error) {
	o.mu.Lock()
	if o.token != r.tok {
		o.mu.Unlock()
		return
	}
	if _, seq := o.strategy.(sequentialStrategy); seq {
		o.mu.Unlock()
		return
	}
	o.strategy = sequentialStrategy{}
	ev := o.eventLocked(domain.EventStrategyChanged, domain.SourceSequential, cause)
	o.mu.Unlock()

	o.log.Warn("session: merging unsupported, sequential playback for the rest of the session")
	o.emit(ev)
}

func (o *Orchestrator) touch() {
	o.mu.Lock()
	o.lastProgress = time.Now()
	o.mu.Unlock()
}

// hold marks progress for r and pushes the stall clock past a wait of
// length busy that is about to begin.
func (o *Orchestrator) hold(r *run, busy time.Duration) {
	o.mu.Lock()
	if o.token == r.tok {
		o.lastProgress = time.Now().Add(busy)
	}
	o.mu.Unlock()
}

// ── events ────────────────────────────────────────────────────────

func (o *Orchestrator) eventLocked(t domain.EventType, source string, err error) domain.SessionEvent {
	ev := domain.SessionEvent{
		Type:      t,
		SessionID: o.id,
		Index:     o.index,
		Source:    source,
		Err:       err,
		At:        time.Now(),
	}
	if o.index >= 0 && o.index < len(o.affirmations) {
		ev.AffirmationID = o.affirmations[o.index].ID
	}
	return ev
}

func (o *Orchestrator) event(t domain.EventType, r *run, source string, err error) domain.SessionEvent {
	o.mu.Lock()
	id := o.id
	o.mu.Unlock()
	return domain.SessionEvent{
		Type:          t,
		SessionID:     id,
		Index:         r.index,
		AffirmationID: r.aff.ID,
		Source:        source,
		Err:           err,
		At:            time.Now(),
	}
}

// emit delivers events to the observer. Must be called without o.mu held.
func (o *Orchestrator) emit(evs ...domain.SessionEvent) {
	if o.observer == nil {
		return
	}
	for _, ev := range evs {
		o.observer.OnSessionEvent(ev)
	}
}

func closeOnce(c chan struct{}) {
	select {
	case <-c:
	default:
		close(c)
	}
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
