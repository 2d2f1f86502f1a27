package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/FocuswithJustin/reqifnorm/core/flatten"
	"github.com/FocuswithJustin/reqifnorm/core/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	root         TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL,
	total_files  INTEGER NOT NULL,
	successful   INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	requirements INTEGER NOT NULL,
	links        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	file         TEXT NOT NULL,
	source       TEXT NOT NULL,
	size_kb      REAL NOT NULL,
	success      INTEGER NOT NULL,
	requirements INTEGER NOT NULL,
	links        INTEGER NOT NULL,
	attachments  INTEGER NOT NULL,
	parse_ms     REAL NOT NULL,
	error        TEXT,
	error_level  TEXT,
	blake3       TEXT,
	sample       TEXT,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_results_blake3 ON results(blake3);
`

// Store persists corpus runs in SQLite.
type Store struct {
	db *sql.DB
}

// RunInfo is the stored summary of one run.
type RunInfo struct {
	ID        string
	Root      string
	StartedAt time.Time
	Duration  time.Duration
	Summary   Summary
}

// OpenStore opens (creating if needed) the run database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenStoreReadOnly opens an existing run database for browsing. It
// fails when path does not hold a run database.
func OpenStoreReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'runs'`).Scan(&n); err != nil || n == 0 {
		db.Close()
		return nil, fmt.Errorf("%s is not a run database", path)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes a run and all its file results in one transaction.
func (s *Store) Save(ctx context.Context, rep *Report) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, root, started_at, duration_ms, total_files, successful, failed, requirements, links)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.Root, rep.StartedAt.UTC().Format(time.RFC3339Nano), rep.Duration.Milliseconds(),
		rep.Summary.TotalFiles, rep.Summary.Successful, rep.Summary.Failed,
		rep.Summary.TotalRequirements, rep.Summary.TotalLinks)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
		(run_id, seq, file, source, size_kb, success, requirements, links, attachments,
		 parse_ms, error, error_level, blake3, sample)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rep.Results {
		var sample sql.NullString
		if r.SampleRequirement != nil {
			data, err := json.Marshal(r.SampleRequirement)
			if err != nil {
				return fmt.Errorf("marshal sample for %s: %w", r.File, err)
			}
			sample = sql.NullString{String: string(data), Valid: true}
		}
		_, err = stmt.ExecContext(ctx, rep.RunID, i, r.File, r.Source, r.SizeKB, r.Success,
			r.RequirementsCount, r.LinksCount, r.AttachmentsCount, r.ParseTimeMS,
			nullable(r.Error), nullable(string(r.ErrorLevel)), nullable(r.Fingerprint), sample)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", r.File, err)
		}
	}

	return tx.Commit()
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, root, started_at, duration_ms,
		total_files, successful, failed, requirements, links
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var ri RunInfo
		var started string
		var durMS int64
		if err := rows.Scan(&ri.ID, &ri.Root, &started, &durMS,
			&ri.Summary.TotalFiles, &ri.Summary.Successful, &ri.Summary.Failed,
			&ri.Summary.TotalRequirements, &ri.Summary.TotalLinks); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		ri.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad timestamp %q: %w", ri.ID, started, err)
		}
		ri.Duration = time.Duration(durMS) * time.Millisecond
		runs = append(runs, ri)
	}
	return runs, rows.Err()
}

// Results loads the file results of a run in their original order.
func (s *Store) Results(ctx context.Context, runID string) ([]*FileResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file, source, size_kb, success, requirements,
		links, attachments, parse_ms, error, error_level, blake3, sample
		FROM results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []*FileResult
	for rows.Next() {
		r := &FileResult{}
		var errMsg, level, fp, sample sql.NullString
		if err := rows.Scan(&r.File, &r.Source, &r.SizeKB, &r.Success, &r.RequirementsCount,
			&r.LinksCount, &r.AttachmentsCount, &r.ParseTimeMS, &errMsg, &level, &fp, &sample); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Error = errMsg.String
		r.ErrorLevel = Level(level.String)
		r.Fingerprint = fp.String
		if sample.Valid {
			r.SampleRequirement = &flatten.Requirement{}
			if err := json.Unmarshal([]byte(sample.String), r.SampleRequirement); err != nil {
				return nil, fmt.Errorf("decode sample for %s: %w", r.File, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SeenBefore returns the id of the latest run that already processed a
// file with this fingerprint, or "" if none did.
func (s *Store) SeenBefore(ctx context.Context, fingerprint string) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `SELECT r.run_id FROM results r
		JOIN runs ON runs.id = r.run_id
		WHERE r.blake3 = ? ORDER BY runs.started_at DESC LIMIT 1`, fingerprint).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup fingerprint: %w", err)
	}
	return runID, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
