package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/procodeeu/MyAffirms-sub000/internal/ambience"
	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
	"github.com/procodeeu/MyAffirms-sub000/internal/playback"
	"github.com/procodeeu/MyAffirms-sub000/internal/speech"
	"github.com/procodeeu/MyAffirms-sub000/internal/timer"
)

// ── fakes ─────────────────────────────────────────────────────────

type played struct {
	length int
	silent bool
}

// fakeOutput records plays. Non-silent plays fail when their ordinal is in
// failOn, and wait on block when it is set. With paced set every play
// takes its real duration.
type fakeOutput struct {
	mu     sync.Mutex
	plays  []played
	voiced int
	failOn map[int]bool
	block  chan struct{}
	paced  bool
}

func (f *fakeOutput) Play(ctx context.Context, buf *audio.Buffer, _ playback.PlayOptions) error {
	silent := buf.IsSilent()
	f.mu.Lock()
	f.plays = append(f.plays, played{length: buf.Len(), silent: silent})
	n := f.voiced
	if !silent {
		f.voiced++
	}
	fail := !silent && f.failOn[n]
	block := f.block
	f.mu.Unlock()

	if fail {
		return errors.New("device error")
	}
	if f.paced {
		select {
		case <-time.After(buf.Duration()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if block != nil && !silent {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeOutput) snapshot() []played {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]played(nil), f.plays...)
}

func (f *fakeOutput) voicedLengths() []int {
	var out []int
	for _, p := range f.snapshot() {
		if !p.silent {
			out = append(out, p.length)
		}
	}
	return out
}

// fakeStorage maps clip ids to URLs.
type fakeStorage struct {
	urls map[string]string
}

func (s *fakeStorage) GetBatchAudioURLs(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if u, ok := s.urls[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *fakeStorage) AudioExists(_ context.Context, id string) (bool, error) {
	_, ok := s.urls[id]
	return ok, nil
}

func (s *fakeStorage) DeleteBatchAudio(_ context.Context, ids []string) (domain.DeleteResult, error) {
	for _, id := range ids {
		delete(s.urls, id)
	}
	return domain.DeleteResult{Deleted: ids}, nil
}

type fakeMerger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *fakeMerger) Supported() bool { return true }

func (m *fakeMerger) MergeURLs(context.Context, []string, time.Duration, audio.ProgressFunc) (*audio.MergedAudio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return nil, m.err
}

func (m *fakeMerger) Release(*audio.MergedAudio) {}

func (m *fakeMerger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeNarrator struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNarrator) Speak(_ context.Context, text string, _ speech.SpeakOptions) {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	n.mu.Unlock()
}

func (n *fakeNarrator) spoken() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

type fakeAmbience struct {
	mu      sync.Mutex
	kind    ambience.Kind
	plays   int
	fades   int
	stopped int
}

func (a *fakeAmbience) Play(_ float64, kind ambience.Kind) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kind = kind
	a.plays++
	return nil
}

func (a *fakeAmbience) FadeOut(time.Duration) {
	a.mu.Lock()
	a.fades++
	a.mu.Unlock()
}

func (a *fakeAmbience) Stop() {
	a.mu.Lock()
	a.stopped++
	a.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (r *recorder) OnSessionEvent(ev domain.SessionEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(t domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// ── harness ───────────────────────────────────────────────────────

type harness struct {
	out     *fakeOutput
	blobs   *audio.BlobStore
	storage *fakeStorage
	loader  *audio.Loader
	player  *playback.Player
	events  *recorder
	log     *logger.Logger
}

func newHarness(out *fakeOutput) *harness {
	log := logger.New(logger.LevelOff, nil)
	blobs := audio.NewBlobStore()
	loader := audio.NewLoader(audio.NewFetcher(log, audio.WithBlobStore(blobs)), audio.NewDecoder())
	return &harness{
		out:     out,
		blobs:   blobs,
		storage: &fakeStorage{urls: make(map[string]string)},
		loader:  loader,
		player:  playback.NewPlayer(loader, out, log),
		events:  &recorder{},
		log:     log,
	}
}

func (h *harness) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{WithObserver(h.events), WithFadeOut(0)}, opts...)
	return New(h.storage, h.player, h.log, opts...)
}

// onFirst records every event and runs fn on the first event of type t,
// from the session's own goroutine.
func (h *harness) onFirst(t domain.EventType, fn func()) Option {
	var once sync.Once
	return WithObserver(domain.ObserverFunc(func(ev domain.SessionEvent) {
		h.events.OnSessionEvent(ev)
		if ev.Type == t {
			once.Do(fn)
		}
	}))
}

// affirmation stores one voiced clip of length samples per id.
func (h *harness) affirmation(id, text string, lengths ...int) domain.Affirmation {
	a := domain.Affirmation{ID: id, Text: text, IsActive: true}
	for i, n := range lengths {
		b := audio.NewBuffer(1, n, 8000)
		for j := range b.Channels[0] {
			b.Channels[0][j] = 0.25
		}
		clipID := id + "-" + string(rune('a'+i))
		h.storage.urls[clipID] = h.blobs.Create(audio.EncodeWAV(b), audio.WAVMime)
		a.SentenceIDs = append(a.SentenceIDs, clipID)
	}
	a.SentenceCount = len(lengths)
	return a
}

func waitDone(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func settings(pause time.Duration) domain.Settings {
	return domain.Settings{SpeechRate: 1, PauseDuration: pause}
}

// ── tests ─────────────────────────────────────────────────────────

func TestSessionCadence(t *testing.T) {
	h := newHarness(&fakeOutput{})
	o := h.orchestrator()
	affs := []domain.Affirmation{
		h.affirmation("a0", "I am calm.", 100),
		h.affirmation("a1", "I am focused.", 200),
		h.affirmation("a2", "I am grateful.", 300),
	}

	if err := o.Start(context.Background(), affs, settings(2*time.Second)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	want := []played{
		{100, false}, {16000, true},
		{200, false}, {16000, true},
		{300, false},
	}
	got := h.out.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d plays, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("play %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	st := o.State()
	if !st.IsFinished || st.IsActive || st.Status() != "finished" {
		t.Fatalf("expected finished state, got %+v", st)
	}
	if st.Strategy != domain.SourceSequential {
		t.Fatalf("expected sequential strategy, got %q", st.Strategy)
	}
	if h.events.count(domain.EventAffirmationFinished) != 3 || h.events.count(domain.EventSessionFinished) != 1 {
		t.Fatal("missing finish events")
	}
}

func TestSentencePauseOnlyForMultiSentence(t *testing.T) {
	h := newHarness(&fakeOutput{})
	o := h.orchestrator()
	affs := []domain.Affirmation{
		h.affirmation("a0", "I breathe. I relax.", 100, 100),
	}
	s := settings(time.Second)
	s.SentencePause = 500 * time.Millisecond

	if err := o.Start(context.Background(), affs, s); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	want := []played{{100, false}, {4000, true}, {100, false}}
	got := h.out.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("play %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestRepeatWithFailingClipStillAdvances(t *testing.T) {
	out := &fakeOutput{failOn: map[int]bool{1: true}}
	h := newHarness(out)
	o := h.orchestrator()
	affs := []domain.Affirmation{
		h.affirmation("a0", "One.", 100),
		h.affirmation("a1", "Two.", 200),
	}
	s := settings(0)
	s.RepeatAffirmation = true
	s.RepeatDelay = 5 * time.Millisecond

	if err := o.Start(context.Background(), affs, s); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	got := out.voicedLengths()
	want := []int{100, 100, 200, 200}
	if len(got) != len(want) {
		t.Fatalf("expected voiced plays %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("voiced play %d: expected %d, got %d", i, want[i], got[i])
		}
	}
	if n := h.events.count(domain.EventAffirmationRepeat); n != 2 {
		t.Fatalf("expected 2 repeat events, got %d", n)
	}
	if !o.State().IsFinished {
		t.Fatal("session should finish")
	}
}

func TestFailedClipsFallBackToSpeech(t *testing.T) {
	out := &fakeOutput{failOn: map[int]bool{0: true}}
	h := newHarness(out)
	n := &fakeNarrator{}
	o := h.orchestrator(WithNarrator(n))
	affs := []domain.Affirmation{
		h.affirmation("a0", "Broken clip.", 100),
		{ID: "a1", Text: "No clips yet.", IsActive: true},
	}

	if err := o.Start(context.Background(), affs, settings(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	spoken := n.spoken()
	if len(spoken) != 2 || spoken[0] != "Broken clip." || spoken[1] != "No clips yet." {
		t.Fatalf("unexpected narration %v", spoken)
	}
}

func TestFailureWithoutNarratorAdvances(t *testing.T) {
	out := &fakeOutput{failOn: map[int]bool{0: true}}
	h := newHarness(out)
	o := h.orchestrator()
	affs := []domain.Affirmation{
		h.affirmation("a0", "Broken.", 100),
		h.affirmation("a1", "Fine.", 200),
	}

	if err := o.Start(context.Background(), affs, settings(time.Second)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	if h.events.count(domain.EventAffirmationFailed) != 1 {
		t.Fatal("expected one failed affirmation")
	}
	// The post pause of a fully failed affirmation is skipped.
	want := []played{{100, false}, {200, false}}
	got := out.snapshot()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestStartErrors(t *testing.T) {
	h := newHarness(&fakeOutput{})
	o := h.orchestrator()

	inactive := []domain.Affirmation{{ID: "x", Text: "Hidden.", IsActive: false}}
	if err := o.Start(context.Background(), inactive, settings(0)); !errors.Is(err, domain.ErrNoAffirmations) {
		t.Fatalf("expected ErrNoAffirmations, got %v", err)
	}

	noClips := []domain.Affirmation{{ID: "y", Text: "Silent.", IsActive: true}}
	if err := o.Start(context.Background(), noClips, settings(0)); !errors.Is(err, domain.ErrNothingPlayable) {
		t.Fatalf("expected ErrNothingPlayable, got %v", err)
	}
	if o.State().IsActive {
		t.Fatal("failed start must not activate a session")
	}
}

func TestTransitionsWhenIdle(t *testing.T) {
	h := newHarness(&fakeOutput{})
	o := h.orchestrator()

	if err := o.Pause(); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("pause: expected ErrSessionNotActive, got %v", err)
	}
	if err := o.Resume(); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("resume: expected ErrSessionNotActive, got %v", err)
	}
	if err := o.Next(); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("next: expected ErrSessionNotActive, got %v", err)
	}
	o.Stop()
	if h.events.count(domain.EventSessionStopped) != 0 {
		t.Fatal("stopping an idle orchestrator must not emit events")
	}
}

func TestPauseResumeRestartsAffirmation(t *testing.T) {
	out := &fakeOutput{block: make(chan struct{})}
	h := newHarness(out)
	o := h.orchestrator()
	affs := []domain.Affirmation{
		h.affirmation("a0", "First.", 100),
		h.affirmation("a1", "Second.", 200),
	}

	if err := o.Start(context.Background(), affs, settings(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first play", func() bool { return len(out.voicedLengths()) == 1 })

	if err := o.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := o.Pause(); !errors.Is(err, domain.ErrSessionPaused) {
		t.Fatalf("expected ErrSessionPaused, got %v", err)
	}
	st := o.State()
	if !st.IsPaused || st.CurrentIndex != 0 || st.PendingTimers != 0 {
		t.Fatalf("unexpected paused state %+v", st)
	}
	if _, ok := o.LastProgress(); ok {
		t.Fatal("paused session should not report progress")
	}

	if err := o.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := o.Resume(); !errors.Is(err, domain.ErrSessionNotPaused) {
		t.Fatalf("expected ErrSessionNotPaused, got %v", err)
	}
	waitFor(t, "replay", func() bool { return len(out.voicedLengths()) == 2 })

	close(out.block)
	waitDone(t, o)

	got := out.voicedLengths()
	want := []int{100, 100, 200}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("voiced play %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestNextAdvancesAndFinishes(t *testing.T) {
	out := &fakeOutput{block: make(chan struct{})}
	h := newHarness(out)
	amb := &fakeAmbience{}
	o := h.orchestrator(WithAmbience(amb))
	affs := []domain.Affirmation{
		h.affirmation("a0", "First.", 100),
		h.affirmation("a1", "Second.", 200),
	}
	s := settings(0)
	s.BackgroundMusic = true
	s.MusicType = "ocean"

	if err := o.Start(context.Background(), affs, s); err != nil {
		t.Fatalf("start: %v", err)
	}
	if amb.kind != ambience.KindOcean || amb.plays != 1 {
		t.Fatalf("expected ocean ambience, got %s x%d", amb.kind, amb.plays)
	}
	waitFor(t, "first play", func() bool { return len(out.voicedLengths()) == 1 })

	if err := o.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	waitFor(t, "second play", func() bool { return len(out.voicedLengths()) == 2 })
	if got := o.State().CurrentIndex; got != 1 {
		t.Fatalf("expected index 1, got %d", got)
	}

	if err := o.Next(); err != nil {
		t.Fatalf("next at last: %v", err)
	}
	waitDone(t, o)
	st := o.State()
	if !st.IsFinished || st.CurrentIndex != 1 {
		t.Fatalf("expected finished at last index, got %+v", st)
	}
	amb.mu.Lock()
	fades := amb.fades
	amb.mu.Unlock()
	if fades != 1 {
		t.Fatalf("expected ambience fade on finish, got %d", fades)
	}
	if v := out.voicedLengths(); len(v) != 2 {
		t.Fatalf("nothing should play after finish, got %v", v)
	}
}

func TestNextWhilePausedStaysPaused(t *testing.T) {
	out := &fakeOutput{block: make(chan struct{})}
	h := newHarness(out)
	o := h.orchestrator()
	affs := []domain.Affirmation{
		h.affirmation("a0", "First.", 100),
		h.affirmation("a1", "Second.", 200),
		h.affirmation("a2", "Third.", 300),
	}

	if err := o.Start(context.Background(), affs, settings(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first play", func() bool { return len(out.voicedLengths()) == 1 })
	if err := o.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := o.Next(); err != nil {
		t.Fatal(err)
	}

	st := o.State()
	if !st.IsPaused || st.CurrentIndex != 1 {
		t.Fatalf("expected paused at 1, got %+v", st)
	}
	time.Sleep(20 * time.Millisecond)
	if v := out.voicedLengths(); len(v) != 1 {
		t.Fatalf("paused session played %v", v)
	}
	o.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	out := &fakeOutput{block: make(chan struct{})}
	h := newHarness(out)
	amb := &fakeAmbience{}
	o := h.orchestrator(WithAmbience(amb))
	affs := []domain.Affirmation{h.affirmation("a0", "Only.", 100)}
	s := settings(0)
	s.BackgroundMusic = true

	if err := o.Start(context.Background(), affs, s); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "play", func() bool { return len(out.voicedLengths()) == 1 })

	o.Stop()
	first := o.State()
	o.Stop()
	second := o.State()

	if first.Status() != "idle" || second.Status() != "idle" {
		t.Fatalf("expected idle, got %s then %s", first.Status(), second.Status())
	}
	if first.CurrentIndex != second.CurrentIndex || first.PendingTimers != 0 || second.PendingTimers != 0 {
		t.Fatalf("state changed across Stop calls: %+v vs %+v", first, second)
	}
	if n := h.events.count(domain.EventSessionStopped); n != 1 {
		t.Fatalf("expected one stop event, got %d", n)
	}
	select {
	case <-o.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestUnsupportedMergeSwitchesOnce(t *testing.T) {
	h := newHarness(&fakeOutput{})
	m := &fakeMerger{err: domain.ErrUnsupportedEnvironment}
	o := h.orchestrator(WithMerger(m))
	affs := []domain.Affirmation{
		h.affirmation("a0", "One.", 100),
		h.affirmation("a1", "Two.", 200),
		h.affirmation("a2", "Three.", 300),
	}

	if err := o.Start(context.Background(), affs, settings(0)); err != nil {
		t.Fatal(err)
	}
	waitDone(t, o)

	if m.callCount() != 1 {
		t.Fatalf("expected one merge attempt, got %d", m.callCount())
	}
	if got := o.State().Strategy; got != domain.SourceSequential {
		t.Fatalf("expected sequential after switch, got %q", got)
	}
	if n := h.events.count(domain.EventStrategyChanged); n != 1 {
		t.Fatalf("expected one strategy change, got %d", n)
	}
	if v := h.out.voicedLengths(); len(v) != 3 {
		t.Fatalf("expected every affirmation played, got %v", v)
	}
}

func TestMergeFailureFallsBackPerAffirmation(t *testing.T) {
	h := newHarness(&fakeOutput{})
	m := &fakeMerger{err: errors.New("fetch failed")}
	o := h.orchestrator(WithMerger(m))
	affs := []domain.Affirmation{
		h.affirmation("a0", "One.", 100),
		h.affirmation("a1", "Two.", 200),
	}

	if err := o.Start(context.Background(), affs, settings(0)); err != nil {
		t.Fatal(err)
	}
	waitDone(t, o)

	if m.callCount() != 2 {
		t.Fatalf("expected a merge attempt per affirmation, got %d", m.callCount())
	}
	if got := o.State().Strategy; got != domain.SourceMerged {
		t.Fatalf("strategy should stay merged, got %q", got)
	}
	if v := h.out.voicedLengths(); len(v) != 2 {
		t.Fatalf("expected sequential fallback plays, got %v", v)
	}
}

func TestMergedPlaybackReleasesBlobs(t *testing.T) {
	h := newHarness(&fakeOutput{})
	merger := audio.NewMerger(h.loader, h.blobs, h.log)
	o := h.orchestrator(WithMerger(merger))
	affs := []domain.Affirmation{
		h.affirmation("a0", "I rest. I heal.", 100, 50),
		h.affirmation("a1", "I grow.", 80),
	}
	stored := h.blobs.Len()
	s := settings(0)
	s.SentencePause = 10 * time.Millisecond

	if err := o.Start(context.Background(), affs, s); err != nil {
		t.Fatal(err)
	}
	waitDone(t, o)

	// 100 + 80 pause samples at 8kHz + 50.
	got := h.out.voicedLengths()
	if len(got) != 2 || got[0] != 230 || got[1] != 80 {
		t.Fatalf("expected merged plays [230 80], got %v", got)
	}
	if h.blobs.Len() != stored {
		t.Fatalf("merged blobs leaked: %d stored, %d now", stored, h.blobs.Len())
	}
	if h.events.count(domain.EventStrategyChanged) != 0 {
		t.Fatal("merged session should not switch strategy")
	}
}

func TestStartReplacesRunningSession(t *testing.T) {
	out := &fakeOutput{block: make(chan struct{})}
	h := newHarness(out)
	o := h.orchestrator()
	first := []domain.Affirmation{h.affirmation("a0", "Old.", 100)}
	second := []domain.Affirmation{h.affirmation("b0", "New.", 200)}

	if err := o.Start(context.Background(), first, settings(0)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first play", func() bool { return len(out.voicedLengths()) == 1 })
	oldID := o.State().ID

	if err := o.Start(context.Background(), second, settings(0)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second session play", func() bool { return len(out.voicedLengths()) == 2 })
	st := o.State()
	if st.ID == oldID || len(st.Affirmations) != 1 || st.Affirmations[0].ID != "b0" {
		t.Fatalf("expected a fresh session, got %+v", st)
	}
	if h.events.count(domain.EventSessionStopped) != 1 {
		t.Fatal("replaced session should report stopped")
	}

	close(out.block)
	waitDone(t, o)
}

func TestStopFromObserverBetweenAffirmations(t *testing.T) {
	h := newHarness(&fakeOutput{})
	var o *Orchestrator
	o = h.orchestrator(h.onFirst(domain.EventAffirmationFinished, func() { o.Stop() }))
	affs := []domain.Affirmation{
		h.affirmation("a0", "I am calm.", 100),
		h.affirmation("a1", "I am here.", 200),
	}

	if err := o.Start(context.Background(), affs, settings(time.Second)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)
	waitFor(t, "stopped event", func() bool { return h.events.count(domain.EventSessionStopped) == 1 })
	time.Sleep(20 * time.Millisecond)

	st := o.State()
	if st.IsActive || st.IsFinished || st.CurrentIndex != 0 {
		t.Fatalf("expected idle session, got %+v", st)
	}
	if got := h.out.voicedLengths(); len(got) != 1 || got[0] != 100 {
		t.Fatalf("expected only the first clip, got %v", got)
	}
	if h.events.count(domain.EventSessionFinished) != 0 || h.events.count(domain.EventAffirmationStarted) != 1 {
		t.Fatal("stopped session kept playing")
	}
}

func TestPauseFromObserverKeepsIndex(t *testing.T) {
	h := newHarness(&fakeOutput{})
	var o *Orchestrator
	o = h.orchestrator(h.onFirst(domain.EventAffirmationFinished, func() {
		if err := o.Pause(); err != nil {
			t.Errorf("pause: %v", err)
		}
	}))
	affs := []domain.Affirmation{
		h.affirmation("a0", "I am calm.", 100),
		h.affirmation("a1", "I am here.", 200),
	}

	if err := o.Start(context.Background(), affs, settings(time.Second)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "pause", func() bool { return h.events.count(domain.EventPaused) == 1 })
	time.Sleep(20 * time.Millisecond)

	st := o.State()
	if !st.IsPaused || st.CurrentIndex != 0 || st.PendingTimers != 0 {
		t.Fatalf("expected paused at 0, got %+v", st)
	}
	if h.events.count(domain.EventAffirmationStarted) != 1 {
		t.Fatal("paused session started another affirmation")
	}

	if err := o.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, o)
	got := h.out.voicedLengths()
	want := []int{100, 100, 200}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestNextFromObserverAdvancesOnce(t *testing.T) {
	h := newHarness(&fakeOutput{})
	var o *Orchestrator
	o = h.orchestrator(h.onFirst(domain.EventAffirmationFinished, func() {
		if err := o.Next(); err != nil {
			t.Errorf("next: %v", err)
		}
	}))
	affs := []domain.Affirmation{
		h.affirmation("a0", "I am calm.", 100),
		h.affirmation("a1", "I am here.", 200),
		h.affirmation("a2", "I am enough.", 300),
	}

	if err := o.Start(context.Background(), affs, settings(time.Second)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	got := h.out.voicedLengths()
	want := []int{100, 200, 300}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if h.events.count(domain.EventSessionFinished) != 1 {
		t.Fatal("expected one finish")
	}
}

func TestWatchdogWaitsOutLongPause(t *testing.T) {
	h := newHarness(&fakeOutput{paced: true})
	o := h.orchestrator()
	affs := []domain.Affirmation{
		h.affirmation("a0", "I am calm.", 100),
		h.affirmation("a1", "I am here.", 200),
	}

	w := timer.NewWatchdog(o, h.log, timer.WithTickInterval(10*time.Millisecond), timer.WithStallTimeout(100*time.Millisecond))
	w.Start(context.Background())
	defer w.Stop()

	start := time.Now()
	if err := o.Start(context.Background(), affs, settings(300*time.Millisecond)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)

	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("pause was cut short: session took %s", elapsed)
	}
	if n := w.Forced(); n != 0 {
		t.Fatalf("watchdog forced %d advances during a configured pause", n)
	}
	if got := h.out.voicedLengths(); len(got) != 2 {
		t.Fatalf("expected both affirmations, got %v", got)
	}
}

func TestWatchdogAdvancesStalledClip(t *testing.T) {
	h := newHarness(&fakeOutput{block: make(chan struct{})})
	o := h.orchestrator()
	affs := []domain.Affirmation{
		h.affirmation("a0", "I am calm.", 100),
		h.affirmation("a1", "I am here.", 200),
	}

	w := timer.NewWatchdog(o, h.log, timer.WithTickInterval(10*time.Millisecond), timer.WithStallTimeout(100*time.Millisecond))
	w.Start(context.Background())
	defer w.Stop()

	if err := o.Start(context.Background(), affs, settings(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o)
	waitFor(t, "second forced advance", func() bool { return w.Forced() == 2 })
	time.Sleep(30 * time.Millisecond)

	if n := w.Forced(); n != 2 {
		t.Fatalf("expected 2 forced advances, got %d", n)
	}
	if !o.State().IsFinished {
		t.Fatal("expected finished session")
	}
}
