// Package project provides project sources. Projects are stored as one
// JSON document per project in a directory.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// Compile-time interface check.
var _ domain.ProjectSource = (*Source)(nil)

// Source reads and writes projects under a directory. Safe for concurrent
// use within one process.
type Source struct {
	dir   string
	clips domain.AudioStorage
	log   *logger.Logger

	mu sync.Mutex
}

// NewSource creates a source rooted at dir. clips is used to delete audio
// made stale by text edits; it may be nil.
func NewSource(dir string, clips domain.AudioStorage, log *logger.Logger) (*Source, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating project dir: %w", err)
	}
	return &Source{dir: dir, clips: clips, log: log}, nil
}

// List returns every project sorted by name. Unreadable files are logged
// and skipped.
func (s *Source) List(ctx context.Context) ([]*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	var out []*domain.Project
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		p, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			s.log.Warn("project: skipping %s: %v", e.Name(), err)
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	s.log.Debug("project: listed %d projects", len(out))
	return out, nil
}

// Get returns a project by id.
func (s *Source) Get(ctx context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

// Save writes a project, assigning ids to it and its affirmations where
// missing.
func (s *Source) Save(ctx context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(p)
}

// UpdateText changes an affirmation's text. When the text actually
// changes its clips become stale: the ids are cleared and the clips
// deleted.
func (s *Source) UpdateText(ctx context.Context, projectID, affirmationID, text string) error {
	s.mu.Lock()
	p, aff, err := s.affirmation(projectID, affirmationID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	text = strings.TrimSpace(text)
	if aff.Text == text {
		s.mu.Unlock()
		return nil
	}

	stale := aff.SentenceIDs
	aff.Text = text
	aff.SentenceIDs = nil
	aff.SentenceCount = 0
	err = s.write(p)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if len(stale) > 0 && s.clips != nil {
		res, err := s.clips.DeleteBatchAudio(ctx, stale)
		if err != nil {
			s.log.Warn("project: deleting stale clips of %s: %v", affirmationID, err)
		} else {
			s.log.Debug("project: %s edited, %d stale clips deleted", affirmationID, len(res.Deleted))
		}
	}
	return nil
}

// SetSentenceIDs records freshly generated clip ids for an affirmation.
func (s *Source) SetSentenceIDs(ctx context.Context, projectID, affirmationID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, aff, err := s.affirmation(projectID, affirmationID)
	if err != nil {
		return err
	}
	aff.SentenceIDs = append([]string(nil), ids...)
	aff.SentenceCount = len(ids)
	return s.write(p)
}

// SetActive toggles whether an affirmation is included in sessions.
func (s *Source) SetActive(ctx context.Context, projectID, affirmationID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, aff, err := s.affirmation(projectID, affirmationID)
	if err != nil {
		return err
	}
	aff.IsActive = active
	return s.write(p)
}

// Seed writes a starter project when the directory holds none. Returns
// the number of projects written.
func (s *Source) Seed(ctx context.Context) (int, error) {
	existing, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	starter := &domain.Project{
		ID:      "morning",
		Name:    "Morning",
		VoiceID: domain.DefaultSettings().VoiceID,
	}
	for _, text := range []string{
		"I am calm and present.",
		"I welcome today with curiosity. Every step I take moves me forward.",
		"I treat myself with kindness.",
		"I have everything I need to begin.",
	} {
		starter.Affirmations = append(starter.Affirmations, domain.Affirmation{Text: text, IsActive: true})
	}
	if err := s.Save(ctx, starter); err != nil {
		return 0, err
	}
	s.log.Info("project: seeded starter project %q", starter.Name)
	return 1, nil
}

// ── files ─────────────────────────────────────────────────────────

func (s *Source) affirmation(projectID, affirmationID string) (*domain.Project, *domain.Affirmation, error) {
	p, err := s.read(projectID)
	if err != nil {
		return nil, nil, err
	}
	for i := range p.Affirmations {
		if p.Affirmations[i].ID == affirmationID {
			return p, &p.Affirmations[i], nil
		}
	}
	return nil, nil, fmt.Errorf("affirmation %s in %s: %w", affirmationID, projectID, domain.ErrNotFound)
}

func (s *Source) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Source) read(id string) (*domain.Project, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, domain.ErrNotFound
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug("project not found: %s", id)
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading project %s: %w", id, err)
	}

	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing project %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// write saves p atomically through a temp file and rename.
func (s *Source) write(p *domain.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for i := range p.Affirmations {
		if p.Affirmations[i].ID == "" {
			p.Affirmations[i].ID = uuid.NewString()
		}
	}
	p.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding project %s: %w", p.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, p.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("saving project %s: %w", p.ID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("saving project %s: %w", p.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("saving project %s: %w", p.ID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(p.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("saving project %s: %w", p.ID, err)
	}
	s.log.Debug("project: saved %s (%d affirmations)", p.ID, len(p.Affirmations))
	return nil
}
