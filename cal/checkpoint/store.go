// Package checkpoint provides SQLite-backed persistence for calibration
// state, so a run can be resumed from its last registered checkpoint.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pipecal/pipecal/cal"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	label      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	state_yaml TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, seq);
`

// Store persists CalLibrary checkpoints keyed by run id.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// NewRun registers a run and returns its id. An empty runID gets a fresh
// UUID.
func (s *Store) NewRun(ctx context.Context, runID, label string) (string, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	const q = `INSERT INTO runs (run_id, label, created_at) VALUES (?, ?, ?)
ON CONFLICT(run_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, runID, label, time.Now().Unix()); err != nil {
		return "", fmt.Errorf("register run: %w", err)
	}
	return runID, nil
}

// Save stores the library as the next checkpoint of the run and returns the
// checkpoint sequence number.
func (s *Store) Save(ctx context.Context, runID string, lib *cal.CalLibrary) (int64, error) {
	data, err := lib.Export()
	if err != nil {
		return 0, fmt.Errorf("serialize state: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints WHERE run_id = ?`, runID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("next checkpoint seq: %w", err)
	}
	const q = `INSERT INTO checkpoints (run_id, seq, state_yaml, created_at) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, runID, seq, string(data), time.Now().Unix()); err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit checkpoint: %w", err)
	}
	return seq, nil
}

// LoadLatest restores the most recent checkpoint of a run. Returns nil with
// no error when the run has no checkpoints yet.
func (s *Store) LoadLatest(ctx context.Context, runID string) (*cal.CalLibrary, error) {
	const q = `SELECT state_yaml FROM checkpoints WHERE run_id = ? ORDER BY seq DESC LIMIT 1`
	var data string
	err := s.db.QueryRowContext(ctx, q, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return cal.ImportCalLibrary([]byte(data))
}

// RunInfo summarizes one stored run.
type RunInfo struct {
	RunID       string
	Label       string
	CreatedAt   time.Time
	Checkpoints int64
}

// ListRuns returns every stored run, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	const q = `SELECT r.run_id, r.label, r.created_at, COUNT(c.id)
FROM runs r LEFT JOIN checkpoints c ON c.run_id = r.run_id
GROUP BY r.run_id ORDER BY r.created_at, r.run_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var info RunInfo
		var created int64
		if err := rows.Scan(&info.RunID, &info.Label, &created, &info.Checkpoints); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		info.CreatedAt = time.Unix(created, 0)
		out = append(out, info)
	}
	return out, rows.Err()
}
