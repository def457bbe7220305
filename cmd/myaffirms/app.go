package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/procodeeu/MyAffirms-sub000/internal/ambience"
	"github.com/procodeeu/MyAffirms-sub000/internal/command"
	"github.com/procodeeu/MyAffirms-sub000/internal/display"
	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/generation"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
	"github.com/procodeeu/MyAffirms-sub000/internal/project"
	"github.com/procodeeu/MyAffirms-sub000/internal/session"
	"github.com/procodeeu/MyAffirms-sub000/internal/storage"
)

type cliApp struct {
	projects *project.Source
	meta     *storage.MetadataCache
	batch    *generation.Batch
	orch     *session.Orchestrator
	ambience *ambience.Generator
	parser   *command.Parser
	log      *logger.Logger
	ui       *display.UI
	settings domain.Settings
	voiceID  string // -voice override; empty uses the project voice

	mu       sync.Mutex
	selected *domain.Project
	texts    map[string]string // affirmation id -> text of the selected project
}

func (a *cliApp) run(ctx context.Context, projectID string, generate bool) {
	a.ui.PrintAffirmation("Welcome. Take a breath; we will begin when you are ready.")
	a.ui.Println("")

	if projectID != "" {
		a.selectProject(ctx, projectID)
	} else {
		a.showProjects(ctx)
	}
	if generate && a.current() != nil {
		a.generate(ctx)
	}

	uiCh := a.ui.InputChan()
	for {
		var input string
		select {
		case <-ctx.Done():
			return
		case v, ok := <-uiCh:
			if !ok {
				return
			}
			input = v
		}

		cmd := a.parser.Parse(input)
		a.log.Debug("command: %s (arg=%q)", cmd.Kind, cmd.Arg)
		if quit := a.handle(ctx, cmd); quit {
			return
		}
	}
}

// handle runs one command. Returns true when the app should exit.
func (a *cliApp) handle(ctx context.Context, cmd command.Command) bool {
	switch cmd.Kind {
	case command.Help:
		a.showHelp()
	case command.List:
		a.showProjects(ctx)
	case command.Select:
		a.selectProject(ctx, cmd.Arg)
	case command.Play:
		a.play(ctx)
	case command.Pause:
		a.report(a.orch.Pause())
	case command.Resume:
		a.report(a.orch.Resume())
	case command.Next:
		a.report(a.orch.Next())
	case command.Stop:
		a.orch.Stop()
	case command.Status:
		a.status()
	case command.Ambience:
		a.setAmbience(cmd.Arg)
	case command.Volume:
		a.setVolume(cmd)
	case command.Generate:
		a.generate(ctx)
	case command.Quit:
		a.orch.Stop()
		a.ui.PrintAffirmation("Be well.")
		time.Sleep(300 * time.Millisecond)
		return true
	case command.Unknown:
		if cmd.Arg != "" {
			a.ui.PrintHint(fmt.Sprintf("Not sure what %q means. Type 'help' for commands.", cmd.Arg))
		}
	}
	return false
}

// ── projects ─────────────────────────────────────────────────────

func (a *cliApp) showProjects(ctx context.Context) {
	list, err := a.projects.List(ctx)
	if err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Error loading projects: %v", err))
		return
	}
	if len(list) == 0 {
		a.ui.PrintHint("No projects yet.")
		return
	}

	a.ui.PrintInfo("Projects:")
	for i, p := range list {
		a.ui.PrintInfo(fmt.Sprintf("[%d] %s", i+1, p.Name))
		a.ui.PrintHint(fmt.Sprintf("%d affirmations, %d active", len(p.Affirmations), len(p.Active())))
	}
	a.ui.PrintHint("Pick a project by number, then type 'play'.")
}

// selectProject accepts a list number, a project id or a project name.
func (a *cliApp) selectProject(ctx context.Context, arg string) {
	list, err := a.projects.List(ctx)
	if err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Error: %v", err))
		return
	}

	var chosen *domain.Project
	var idx int
	if _, err := fmt.Sscanf(arg, "%d", &idx); err == nil && idx >= 1 && idx <= len(list) {
		chosen = list[idx-1]
	}
	for _, p := range list {
		if chosen == nil && (p.ID == arg || strings.EqualFold(p.Name, arg)) {
			chosen = p
		}
	}
	if chosen == nil {
		a.ui.PrintHint(fmt.Sprintf("No project %q. Type 'list' to see them.", arg))
		return
	}

	a.setSelected(chosen)
	a.ui.PrintInfo(fmt.Sprintf("=== %s ===", chosen.Name))
	missing := 0
	for i, aff := range chosen.Affirmations {
		line := fmt.Sprintf("%d. %s", i+1, aff.Text)
		if !aff.IsActive {
			line += " (off)"
		}
		if !aff.HasAudio() {
			missing++
		}
		a.ui.PrintAffirmation(line)
	}
	if missing > 0 {
		a.ui.PrintHint(fmt.Sprintf("%d affirmations have no clips yet; type 'generate' to render them.", missing))
	}
}

func (a *cliApp) setSelected(p *domain.Project) {
	texts := make(map[string]string, len(p.Affirmations))
	for _, aff := range p.Affirmations {
		texts[aff.ID] = aff.Text
	}
	a.mu.Lock()
	a.selected = p
	a.texts = texts
	a.mu.Unlock()
}

func (a *cliApp) current() *domain.Project {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selected
}

// affirmationText resolves ids for the event notifier.
func (a *cliApp) affirmationText(id string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.texts[id]
}

func (a *cliApp) generate(ctx context.Context) {
	p := a.current()
	if p == nil {
		a.ui.PrintHint("Pick a project first.")
		return
	}
	if a.orch.State().IsActive {
		a.ui.PrintHint("Stop the session before generating.")
		return
	}
	if a.voiceID != "" {
		p.VoiceID = a.voiceID
	}
	if p.VoiceID == "" {
		p.VoiceID = domain.DefaultSettings().VoiceID
	}

	var previous []string
	for _, aff := range p.Affirmations {
		previous = append(previous, aff.SentenceIDs...)
	}

	a.ui.PrintHint(fmt.Sprintf("Rendering clips for %s...", p.Name))
	res, err := a.batch.Generate(ctx, p, func(done, total int) {
		a.ui.PrintHint(fmt.Sprintf("  %d/%d", done, total))
	})
	if err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Generation stopped: %v", err))
	}
	a.meta.Invalidate(previous...)
	if err := a.projects.Save(ctx, p); err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Error saving project: %v", err))
		return
	}
	a.setSelected(p)

	a.ui.PrintInfo(fmt.Sprintf("%d rendered, %d already current, %d failed.", len(res.Generated), len(res.Skipped), len(res.Failed)))
	for id, ferr := range res.Failed {
		a.ui.PrintUrgent(fmt.Sprintf("  %s: %v", a.affirmationText(id), ferr))
	}
}

// ── session ──────────────────────────────────────────────────────

func (a *cliApp) play(ctx context.Context) {
	p := a.current()
	if p == nil {
		a.ui.PrintHint("Pick a project first.")
		return
	}

	settings := a.settings
	settings.VoiceID = a.voiceID
	if settings.VoiceID == "" {
		settings.VoiceID = p.VoiceID
	}
	if settings.VoiceID == "" {
		settings.VoiceID = domain.DefaultSettings().VoiceID
	}

	err := a.orch.Start(ctx, p.Affirmations, settings)
	switch {
	case errors.Is(err, domain.ErrNoAffirmations):
		a.ui.PrintHint("This project has no active affirmations.")
	case errors.Is(err, domain.ErrNothingPlayable):
		a.ui.PrintHint("Nothing to play: no clips and no speech engine. Try 'generate'.")
	case err != nil:
		a.ui.PrintUrgent(fmt.Sprintf("Error starting session: %v", err))
	}
}

func (a *cliApp) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSessionNotActive):
		a.ui.PrintHint("No session is playing. Type 'play' to start.")
	case errors.Is(err, domain.ErrSessionPaused):
		a.ui.PrintHint("Already paused.")
	case errors.Is(err, domain.ErrSessionNotPaused):
		a.ui.PrintHint("Not paused.")
	default:
		a.ui.PrintUrgent(fmt.Sprintf("Error: %v", err))
	}
}

func (a *cliApp) status() {
	st := a.orch.State()
	a.ui.PrintInfo(fmt.Sprintf("Status:   %s", st.Status()))
	if st.ID == "" {
		return
	}
	a.ui.PrintInfo(fmt.Sprintf("Session:  %s", st.ID[:8]))
	a.ui.PrintInfo(fmt.Sprintf("Position: %d/%d", st.CurrentIndex+1, len(st.Affirmations)))
	a.ui.PrintInfo(fmt.Sprintf("Playback: %s", st.Strategy))
	if st.Current != nil {
		a.ui.PrintAffirmation(st.Current.Text)
	}
	if st.IsActive {
		a.ui.PrintHint(fmt.Sprintf("Started %s ago, %d timers pending", time.Since(st.StartedAt).Round(time.Second), st.PendingTimers))
	}
}

// ── ambience ─────────────────────────────────────────────────────

func (a *cliApp) setAmbience(arg string) {
	if arg == "off" || arg == "none" {
		a.ambience.FadeOut(time.Second)
		return
	}
	kind, err := ambience.ParseKind(arg)
	if err != nil {
		a.ui.PrintHint("Ambience is birds, ocean or off.")
		return
	}
	vol := a.ambience.Volume()
	if vol == 0 {
		vol = a.settings.MusicVolume
	}
	if err := a.ambience.Play(vol, kind); err != nil {
		a.ui.PrintUrgent(fmt.Sprintf("Ambience unavailable: %v", err))
	}
}

// setVolume accepts 0..1 or a percentage.
func (a *cliApp) setVolume(cmd command.Command) {
	v, ok := cmd.Number()
	if !ok {
		a.ui.PrintHint("Volume is a number from 0 to 100.")
		return
	}
	if v > 1 || strings.HasSuffix(cmd.Arg, "%") {
		v /= 100
	}
	a.ambience.SetVolume(v)
	a.ui.PrintHint(fmt.Sprintf("Ambience volume %.0f%%.", a.ambience.Volume()*100))
}

func (a *cliApp) showHelp() {
	a.ui.PrintInfo("Commands:")
	a.ui.PrintInfo("  list               Show projects")
	a.ui.PrintInfo("  1, 2, select name  Pick a project")
	a.ui.PrintInfo("  generate           Render missing clips for the project")
	a.ui.PrintInfo("  play               Start a session")
	a.ui.PrintInfo("  pause / resume     Pause, or replay the current affirmation")
	a.ui.PrintInfo("  next / skip        Move to the next affirmation")
	a.ui.PrintInfo("  stop               End the session")
	a.ui.PrintInfo("  status             Show session progress")
	a.ui.PrintInfo("  ambience birds     Background sound: birds, ocean or off")
	a.ui.PrintInfo("  volume 30          Ambience volume in percent")
	a.ui.PrintInfo("  help               Show this message")
	a.ui.PrintInfo("  quit               Exit")
}
