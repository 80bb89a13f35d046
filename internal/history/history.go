// Package history persists one row per processed track in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"audiograb/internal/config"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
)

const driver = "sqlite"

// Entry is one processed track.
type Entry struct {
	ID        int64             `json:"id"`
	JobUUID   string            `json:"jobUuid"`
	VideoID   string            `json:"videoId"`
	URL       string            `json:"url"`
	Title     string            `json:"title"`
	Format    string            `json:"format"`
	Quality   int               `json:"quality"`
	Filename  string            `json:"filename"`
	SizeBytes int64             `json:"sizeBytes"`
	Status    entity.FileStatus `json:"status"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (e Entry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("jobUuid", e.JobUUID),
		slog.String("videoId", e.VideoID),
		slog.String("title", e.Title),
		slog.String("status", string(e.Status)),
		slog.Int64("sizeBytes", e.SizeBytes),
	)
}

// Stats aggregates every recorded entry.
type Stats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
	Bytes      int64 `json:"bytes"`
}

// Store is the SQLite history repository. A nil *Store is a disabled history:
// Record is a no-op, reads return errs.ErrHistoryDisabled.
type Store struct {
	log   *slog.Logger
	db    *sql.DB
	limit int
}

// Open opens the database named by cfg.DSN and migrates it.
// An empty DSN disables history and yields a nil store.
func Open(ctx context.Context, log *slog.Logger, cfg config.History) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil //nolint:nilnil // disabled history
	}

	if path := dbPath(cfg.DSN); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	// One connection: sqlite serialises writers anyway and :memory: is per connection.
	db.SetMaxOpenConns(1)

	s := &Store{
		log:   log.With(slog.String("package", "history")),
		db:    db,
		limit: max(cfg.Limit, 1),
	}

	if err := s.Migrate(ctx); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// dbPath returns the file behind a DSN, empty for in-memory databases.
func dbPath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}

	return path
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_uuid TEXT NOT NULL,
		video_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		format TEXT NOT NULL,
		quality INTEGER NOT NULL DEFAULT 0,
		filename TEXT,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_downloads_created_at ON downloads(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_downloads_job_uuid ON downloads(job_uuid)`,
	`ALTER TABLE downloads ADD COLUMN error TEXT NOT NULL DEFAULT ''`,
}

// Migrate applies the migrations newer than the database's user_version.
func (s *Store) Migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if err := s.migrate(ctx, i); err != nil {
			return err
		}
	}

	if version < len(migrations) {
		s.log.InfoContext(ctx, "history migrated", slog.Int("from", version), slog.Int("to", len(migrations)))
	}

	return nil
}

func (s *Store) migrate(ctx context.Context, i int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: %w", i, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
		return fmt.Errorf("migration %d failed: %w", i, err)
	}

	// PRAGMA takes no bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
		return fmt.Errorf("migration %d: set version: %w", i, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", i, err)
	}

	return nil
}

// Record inserts e. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s == nil {
		return nil
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads
		(job_uuid, video_id, url, title, format, quality, filename, size_bytes, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobUUID, e.VideoID, e.URL, e.Title, e.Format, e.Quality,
		e.Filename, e.SizeBytes, string(e.Status), e.Error, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}

	s.log.DebugContext(ctx, "history recorded", slog.Any("entry", e))

	return nil
}

// List returns the newest entries first. A non-positive limit uses the configured default.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil {
		return nil, errs.ErrHistoryDisabled
	}

	if limit <= 0 {
		limit = s.limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_uuid, video_id, url, COALESCE(title, ''), format, quality,
			COALESCE(filename, ''), size_bytes, status, error, created_at
		FROM downloads
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}

	for rows.Next() {
		var (
			e       Entry
			status  string
			created int64
		)

		err := rows.Scan(&e.ID, &e.JobUUID, &e.VideoID, &e.URL, &e.Title, &e.Format, &e.Quality,
			&e.Filename, &e.SizeBytes, &status, &e.Error, &created)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		e.Status = entity.FileStatus(status)
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	return entries, nil
}

// Stats aggregates every recorded entry.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s == nil {
		return Stats{}, errs.ErrHistoryDisabled
	}

	var st Stats

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN size_bytes ELSE 0 END), 0)
		FROM downloads`, string(entity.FileStatusFinished), string(entity.FileStatusFinished),
	).Scan(&st.Total, &st.Successful, &st.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("history stats: %w", err)
	}

	st.Failed = st.Total - st.Successful

	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}

	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("close history: %w", err)
	}

	return nil
}
