// Package archive keeps finished transcription runs in a local SQLite
// database so past transcripts can be listed and re-rendered.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chaz8081/gostt-stream/internal/store"
)

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// ErrNotFound is returned when no archived run matches.
var ErrNotFound = errors.New("archive: run not found")

// Run is one archived transcription.
type Run struct {
	ID         string          `json:"id"`
	Request    store.Request   `json:"request"`
	State      string          `json:"state"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Segments   []store.Segment `json:"segments"`
}

// Store is a SQLite-backed run archive.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates or opens the archive database at path.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    request TEXT NOT NULL,
    state TEXT NOT NULL,
    error TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    start_ms INTEGER NOT NULL,
    end_ms INTEGER NOT NULL,
    text TEXT NOT NULL,
    PRIMARY KEY(run_id, seq),
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun writes run and its segments in one transaction. Saving the same
// id again replaces the earlier record.
func (s *Store) SaveRun(ctx context.Context, run Run) (err error) {
	req, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("archive: encode request: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM segments WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("archive: clear segments: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs(run_id, request, state, error, started_at, finished_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET request=excluded.request, state=excluded.state,
		   error=excluded.error, started_at=excluded.started_at, finished_at=excluded.finished_at`,
		run.ID, string(req), run.State, run.Error,
		formatTime(run.StartedAt), formatTime(run.FinishedAt),
	); err != nil {
		return fmt.Errorf("archive: insert run: %w", err)
	}

	for i, seg := range run.Segments {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO segments(run_id, seq, start_ms, end_ms, text) VALUES(?, ?, ?, ?, ?)`,
			run.ID, i, seg.StartMs, seg.EndMs, seg.Text,
		); err != nil {
			return fmt.Errorf("archive: insert segment %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	s.log.Debug("run archived", "run", run.ID, "segments", len(run.Segments))
	return nil
}

// GetRun loads one run with its segments.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, request, state, error, started_at, finished_at FROM runs WHERE run_id = ?`, id)
	return s.scanRun(ctx, row)
}

// LatestRun loads the most recently finished run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, request, state, error, started_at, finished_at
		 FROM runs ORDER BY finished_at DESC LIMIT 1`)
	return s.scanRun(ctx, row)
}

func (s *Store) scanRun(ctx context.Context, row *sql.Row) (Run, error) {
	var (
		run               Run
		req               string
		runErr            sql.NullString
		started, finished string
	)
	if err := row.Scan(&run.ID, &req, &run.State, &runErr, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, fmt.Errorf("archive: scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(req), &run.Request); err != nil {
		return Run{}, fmt.Errorf("archive: decode request: %w", err)
	}
	run.Error = runErr.String
	if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
		run.StartedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, finished); err == nil {
		run.FinishedAt = ts
	}

	segs, err := s.ListSegments(ctx, run.ID)
	if err != nil {
		return Run{}, err
	}
	run.Segments = segs
	return run, nil
}

// ListSegments returns a run's segments in recognition order.
func (s *Store) ListSegments(ctx context.Context, runID string) ([]store.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_ms, end_ms, text FROM segments WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("archive: list segments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var segs []store.Segment
	for rows.Next() {
		var seg store.Segment
		if err := rows.Scan(&seg.StartMs, &seg.EndMs, &seg.Text); err != nil {
			return nil, fmt.Errorf("archive: scan segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// ListRuns returns up to limit runs, newest first, without their segments.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, request, state, error, started_at, finished_at
		 FROM runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			run               Run
			req               string
			runErr            sql.NullString
			started, finished string
		)
		if err := rows.Scan(&run.ID, &req, &run.State, &runErr, &started, &finished); err != nil {
			return nil, fmt.Errorf("archive: scan run: %w", err)
		}
		_ = json.Unmarshal([]byte(req), &run.Request)
		run.Error = runErr.String
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
