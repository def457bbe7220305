package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/procodeeu/MyAffirms-sub000/internal/domain"
	"github.com/procodeeu/MyAffirms-sub000/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.AudioStorage   = (*SQLiteStore)(nil)
	_ domain.ClipWriter     = (*SQLiteStore)(nil)
	_ domain.MetadataSource = (*SQLiteStore)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS clips (
	id             TEXT PRIMARY KEY,
	affirmation_id TEXT NOT NULL,
	sentence_index INTEGER NOT NULL,
	voice_id       TEXT NOT NULL,
	text           TEXT NOT NULL,
	path           TEXT NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS clips_affirmation ON clips(affirmation_id);
`

// SQLiteStore keeps clip metadata in SQLite and clip bytes as files under
// a clips directory. URLs it hands out are file:// URLs.
type SQLiteStore struct {
	db  *sql.DB
	dir string
	log *logger.Logger
}

// OpenSQLite opens (or creates) the database at dbPath and the clips
// directory at clipsDir.
func OpenSQLite(dbPath, clipsDir string, log *logger.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(clipsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating clips dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening clip database: %w", err)
	}
	// One writer; sqlite3 serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating clip schema: %w", err)
	}
	log.Debug("storage: opened %s (clips in %s)", dbPath, clipsDir)
	return &SQLiteStore{db: db, dir: clipsDir, log: log}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveClip writes data to the clips directory and records its metadata.
func (s *SQLiteStore) SaveClip(ctx context.Context, meta domain.AudioMetadata, data []byte) (string, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+clipExt(data))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing clip: %w", err)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clips (id, affirmation_id, sentence_index, voice_id, text, path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, meta.AffirmationID, meta.SentenceIndex, meta.VoiceID, meta.Text, path, meta.CreatedAt.UnixMilli())
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("recording clip: %w", err)
	}
	s.log.Debug("storage: saved clip %s (%s #%d)", id, meta.AffirmationID, meta.SentenceIndex)
	return id, nil
}

// GetBatchAudioURLs returns file URLs for the ids that exist.
func (s *SQLiteStore) GetBatchAudioURLs(ctx context.Context, clipIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(clipIDs))
	if len(clipIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path FROM clips WHERE id IN (`+placeholders(len(clipIDs))+`)`, args(clipIDs)...)
	if err != nil {
		return nil, fmt.Errorf("querying clips: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("scanning clip: %w", err)
		}
		out[id] = fileURL(path)
	}
	return out, rows.Err()
}

// AudioExists reports whether the clip row and its file both exist.
func (s *SQLiteStore) AudioExists(ctx context.Context, clipID string) (bool, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM clips WHERE id = ?`, clipID).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying clip %s: %w", clipID, err)
	}
	if _, err := os.Stat(path); err != nil {
		s.log.Warn("storage: clip %s row exists but file is missing", clipID)
		return false, nil
	}
	return true, nil
}

// DeleteBatchAudio removes clip rows and files, reporting failures per id.
func (s *SQLiteStore) DeleteBatchAudio(ctx context.Context, clipIDs []string) (domain.DeleteResult, error) {
	res := domain.DeleteResult{Errors: make(map[string]error)}
	for _, id := range clipIDs {
		if err := s.deleteOne(ctx, id); err != nil {
			res.Errors[id] = err
			continue
		}
		res.Deleted = append(res.Deleted, id)
	}
	s.log.Debug("storage: deleted %d clips, %d failures", len(res.Deleted), len(res.Errors))
	return res, nil
}

func (s *SQLiteStore) deleteOne(ctx context.Context, id string) error {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM clips WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing clip file: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM clips WHERE id = ?`, id)
	return err
}

// GetAudioMetadata returns the stored metadata for a clip.
func (s *SQLiteStore) GetAudioMetadata(ctx context.Context, clipID string) (*domain.AudioMetadata, error) {
	var (
		m       domain.AudioMetadata
		path    string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, affirmation_id, sentence_index, voice_id, text, path, created_at FROM clips WHERE id = ?`, clipID).
		Scan(&m.ClipID, &m.AffirmationID, &m.SentenceIndex, &m.VoiceID, &m.Text, &path, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying clip %s: %w", clipID, err)
	}
	m.DownloadURL = fileURL(path)
	m.CreatedAt = time.UnixMilli(created)
	return &m, nil
}

// ── helpers ───────────────────────────────────────────────────────

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func args(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func clipExt(data []byte) string {
	if len(data) >= 4 && string(data[:4]) == "RIFF" {
		return ".wav"
	}
	return ".mp3"
}
