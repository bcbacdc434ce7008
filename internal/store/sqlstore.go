package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersionV1 = 1

const schemaV1 = `
CREATE TABLE schema_version (version INTEGER NOT NULL);
INSERT INTO schema_version(version) VALUES (1);

CREATE TABLE runs (
    id        TEXT PRIMARY KEY,
    started   TEXT NOT NULL,
    ended     TEXT,
    succeeded INTEGER NOT NULL DEFAULT 0,
    skipped   INTEGER NOT NULL DEFAULT 0,
    failed    INTEGER NOT NULL DEFAULT 0,
    cancelled INTEGER NOT NULL DEFAULT 0,
    finished  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES runs(id),
    loader      TEXT NOT NULL,
    item        TEXT NOT NULL,
    status      TEXT NOT NULL,
    step        TEXT,
    cause       TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_records_run ON records(run_id);
`

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations. Creates the
// parent directory if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersionV1 {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

func (s *SqlStore) CreateRun(id string, started time.Time) error {
	_, err := s.db.Exec("INSERT INTO runs(id, started) VALUES(?, ?)",
		id, started.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *SqlStore) AddRecord(runID string, rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO records(run_id, loader, item, status, step, cause, duration_ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Loader, rec.Item, rec.Status, rec.Step, rec.Cause,
		rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("add record: %w", err)
	}
	return nil
}

func (s *SqlStore) FinishRun(id string, ended time.Time, counts Counts) error {
	res, err := s.db.Exec(
		`UPDATE runs SET ended=?, succeeded=?, skipped=?, failed=?, cancelled=?, finished=1
		 WHERE id=?`,
		ended.UTC().Format(time.RFC3339Nano),
		counts.Succeeded, counts.Skipped, counts.Failed, counts.Cancelled, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SqlStore) GetRun(id string) (*Run, error) {
	var run Run
	var started, ended sql.NullString
	var finished int
	err := s.db.QueryRow(
		`SELECT id, started, ended, succeeded, skipped, failed, cancelled, finished
		 FROM runs WHERE id=?`, id,
	).Scan(&run.ID, &started, &ended,
		&run.Counts.Succeeded, &run.Counts.Skipped,
		&run.Counts.Failed, &run.Counts.Cancelled, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.Finished = finished != 0
	if started.Valid {
		if run.Started, err = time.Parse(time.RFC3339Nano, started.String); err != nil {
			return nil, fmt.Errorf("parse run start time: %w", err)
		}
	}
	if ended.Valid && ended.String != "" {
		if run.Ended, err = time.Parse(time.RFC3339Nano, ended.String); err != nil {
			return nil, fmt.Errorf("parse run end time: %w", err)
		}
	}
	return &run, nil
}

func (s *SqlStore) ListRecords(runID string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT loader, item, status, step, cause, duration_ms
		 FROM records WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var step, cause sql.NullString
		var durationMS int64
		if err := rows.Scan(&rec.Loader, &rec.Item, &rec.Status, &step, &cause, &durationMS); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Step = step.String
		rec.Cause = cause.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SqlStore) Close() error { return s.db.Close() }
