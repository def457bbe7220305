// MyAffirms plays affirmation sessions in the terminal.
//
// Usage:
//
//	myaffirms [-project id] [-generate] [-music] [-verbose] [-quiet]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/procodeeu/MyAffirms-sub000/internal/ambience"
	"github.com/procodeeu/MyAffirms-sub000/internal/audio"
	"github.com/procodeeu/MyAffirms-sub000/internal/command"
	"github.com/procodeeu/MyAffirms-sub000/internal/display"
	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/generation"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
	"github.com/procodeeu/MyAffirms-sub000/internal/playback"
	"github.com/procodeeu/MyAffirms-sub000/internal/project"
	"github.com/procodeeu/MyAffirms-sub000/internal/session"
	"github.com/procodeeu/MyAffirms-sub000/internal/speech"
	"github.com/procodeeu/MyAffirms-sub000/internal/storage"
	"github.com/procodeeu/MyAffirms-sub000/internal/timer"
)

// clipStore is what the app needs from a clip store.
type clipStore interface {
	domain.AudioStorage
	domain.ClipWriter
	domain.MetadataSource
}

func main() {
	_ = godotenv.Load()

	defaults := domain.DefaultSettings()

	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", ".myaffirms/logs/myaffirms.log", "file to write logs to (use \"stderr\" to log to console)")
	dataDir := flag.String("data-dir", ".myaffirms", "directory for projects, clips and caches")
	dbPath := flag.String("db", "", "SQLite clip database (default <data-dir>/clips.db, \"memory\" for in-memory clips)")
	projectID := flag.String("project", "", "project to select on startup")
	generate := flag.Bool("generate", false, "render missing clips for the selected project before playing")
	voiceID := flag.String("voice", "", "voice for generation and narration (default: project voice)")
	rate := flag.Float64("rate", defaults.SpeechRate, "speech rate, 1.0 = normal")
	pause := flag.Duration("pause", defaults.PauseDuration, "pause between affirmations")
	sentencePause := flag.Duration("sentence-pause", defaults.SentencePause, "pause between sentences of one affirmation")
	repeat := flag.Bool("repeat", false, "play every affirmation twice")
	repeatDelay := flag.Duration("repeat-delay", defaults.RepeatDelay, "wait before the repeat")
	music := flag.Bool("music", false, "play background ambience during sessions")
	musicVolume := flag.Float64("music-volume", defaults.MusicVolume, "ambience volume, 0..1")
	musicType := flag.String("music-type", defaults.MusicType, "ambience kind: birds or ocean")
	noMerge := flag.Bool("no-merge", false, "play sentence clips one by one instead of merging them")
	diskCache := flag.Bool("disk-cache", true, "persist narration audio to disk")
	flag.Parse()

	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	// Logs go to a file by default so the prompt stays clean.
	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		if dir := filepath.Dir(*logFile); dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── audio path ──
	device, err := playback.NewDevice(log.Named("device"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: no audio output: %v\n", err)
		os.Exit(1)
	}
	defer device.Halt()

	blobs := audio.NewBlobStore()
	loader := audio.NewLoader(audio.NewFetcher(log.Named("fetch"), audio.WithBlobStore(blobs)), audio.NewDecoder())
	player := playback.NewPlayer(loader, device, log.Named("player"))
	merger := audio.NewMerger(loader, blobs, log.Named("merge"), audio.WithMergeEnabled(!*noMerge))
	amb := ambience.New(device, log.Named("ambience"))

	// ── clip storage ──
	var clips clipStore
	switch *dbPath {
	case "memory":
		clips = storage.NewMemoryStore(blobs, log.Named("storage"))
	default:
		path := *dbPath
		if path == "" {
			path = filepath.Join(*dataDir, "clips.db")
		}
		sq, err := storage.OpenSQLite(path, filepath.Join(*dataDir, "clips"), log.Named("storage"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer sq.Close()
		clips = sq
	}
	meta := storage.NewMetadataCache(clips)

	projects, err := project.NewSource(filepath.Join(*dataDir, "projects"), clips, log.Named("project"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if _, err := projects.Seed(ctx); err != nil {
		log.Error("seeding projects: %v", err)
	}

	// ── speech ──
	var engines []speech.Engine
	espeak := speech.NewEspeakEngine(log.Named("espeak"))
	if espeak.Available() {
		engines = append(engines, espeak)
	}
	azureKey := os.Getenv(speech.EnvAzureSpeechKey)
	azureRegion := os.Getenv(speech.EnvAzureSpeechRegion)
	if azureKey != "" && azureRegion != "" {
		engines = append(engines, speech.NewAzureClient(azureKey, azureRegion, log.Named("azure")))
		log.Info("azure speech enabled (region=%s)", azureRegion)
	} else {
		log.Info("azure speech disabled: set %s and %s to enable", speech.EnvAzureSpeechKey, speech.EnvAzureSpeechRegion)
	}

	var narrator *speech.Narrator
	if len(engines) > 0 {
		narrator = speech.NewNarrator(engines, player, log.Named("narrator"),
			speech.WithCache(speech.NewAudioCache(filepath.Join(*dataDir, "tts-cache"), *diskCache, log.Named("cache"))),
		)
	}
	gen := generation.NewGenerator(engines, clips, log.Named("generator"), generation.WithCleanup(clips))
	batch := generation.NewBatch(gen, clips, meta, log.Named("batch"))

	// ── session ──
	app := &cliApp{
		projects: projects,
		meta:     meta,
		batch:    batch,
		ambience: amb,
		parser:   command.NewParser(log.Named("command")),
		log:      log,
		voiceID:  *voiceID,
		settings: domain.Settings{
			SpeechRate:        *rate,
			PauseDuration:     *pause,
			SentencePause:     *sentencePause,
			RepeatAffirmation: *repeat,
			RepeatDelay:       *repeatDelay,
			BackgroundMusic:   *music,
			MusicVolume:       *musicVolume,
			MusicType:         *musicType,
		},
	}
	ui := display.NewUI(func() domain.SessionState { return app.orch.State() })
	app.ui = ui
	notifier := command.NewNotifier(log.Named("events"), ui.Printf, app.affirmationText)

	opts := []session.Option{
		session.WithMerger(merger),
		session.WithAmbience(amb),
		session.WithObserver(notifier),
	}
	if narrator != nil {
		opts = append(opts, session.WithNarrator(narrator))
	} else {
		log.Warn("no speech engine: affirmations without clips cannot be played")
	}
	app.orch = session.New(clips, player, log.Named("session"), opts...)

	watchdog := timer.NewWatchdog(app.orch, log.Named("watchdog"))
	watchdog.Start(ctx)
	defer watchdog.Stop()

	fmt.Print(display.RenderBanner("one calm sentence at a time"))
	fmt.Println(display.BannerStyle.Render("  Type 'help' for commands, 'quit' to exit."))
	fmt.Println()

	go func() {
		ui.WaitReady()
		app.run(ctx, *projectID, *generate)
		ui.Quit()
	}()

	// Bubble Tea owns the terminal and blocks until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	app.orch.Stop()
	amb.Stop()
	cancel()

	// Give faded ambience a moment to release the device.
	time.Sleep(50 * time.Millisecond)
}
