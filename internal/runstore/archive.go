package runstore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver (pure Go, no cgo)

	"github.com/boriskellerman/gimli-sub008/internal/model"
)

// Archive journals terminal runs to SQLite so observability survives the
// in-memory store's TTL eviction. Writes are best-effort: a failed insert is
// logged and dropped, never propagated to the completing caller.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	session_key  TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	started_at   TIMESTAMP,
	completed_at TIMESTAMP,
	summary      TEXT NOT NULL DEFAULT '',
	output       TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);
`

// OpenArchive opens (creating if needed) a run archive at path.
// Use ":memory:" for an ephemeral archive in tests.
func OpenArchive(path string, logger *slog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runstore: open archive: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent completions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(archiveSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runstore: create archive schema: %w", err)
	}
	return &Archive{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Record upserts a terminal run into the archive.
func (a *Archive) Record(r model.Run) {
	_, err := a.db.Exec(`
		INSERT INTO runs (run_id, name, session_key, status, created_at, started_at, completed_at, summary, output, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			summary = excluded.summary,
			output = excluded.output,
			error = excluded.error`,
		r.ID, r.Name, r.SessionKey, string(r.Status), r.CreatedAt,
		nullableTime(r.StartedAt), nullableTime(r.CompletedAt),
		r.Summary, r.Output, r.Error,
	)
	if err != nil && a.logger != nil {
		a.logger.Warn("run archive insert failed", "run_id", r.ID, "error", err)
	}
}

// History returns archived runs, newest first.
func (a *Archive) History(limit, offset int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := a.db.Query(`
		SELECT run_id, name, session_key, status, created_at, started_at, completed_at, summary, output, error
		FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("runstore: archive query: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		var started, completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.Name, &r.SessionKey, &status, &r.CreatedAt,
			&started, &completed, &r.Summary, &r.Output, &r.Error); err != nil {
			return nil, fmt.Errorf("runstore: archive scan: %w", err)
		}
		r.Status = model.RunStatus(status)
		if started.Valid {
			t := started.Time
			r.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
