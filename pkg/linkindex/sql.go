package linkindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/scottthesecond/syncframe/pkg/record"
)

// Driver names supported by SQLStore, matching the "SQLite for default,
// Postgres for shared deployments" reference backing store of spec §6.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLStore is a Store backed by a relational database via sqlx, following
// the reference schema in spec §6 (links, cursors, runs, conflicts).
// Disablement is stored on the cursors row per job/adapter/table, so a
// job is disabled iff disabled_at IS NOT NULL on any of its cursor rows.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// linkRow mirrors the links table; db tags follow the sqlx convention
// used throughout the corpus's sync-state row structs.
type linkRow struct {
	SrcAdapter  string    `db:"src_adapter"`
	SrcTable    string    `db:"src_table"`
	SrcID       string    `db:"src_id"`
	DestAdapter string    `db:"dest_adapter"`
	DestTable   string    `db:"dest_table"`
	DestID      string    `db:"dest_id"`
	LastSyncTS  time.Time `db:"last_sync_ts"`
}

type cursorRow struct {
	JobID       string         `db:"job_id"`
	Adapter     string         `db:"adapter"`
	TableName   string         `db:"table_name"`
	CursorToken sql.NullString `db:"cursor_token"`
	FailCount   int            `db:"fail_count"`
	DisabledAt  sql.NullTime   `db:"disabled_at"`
}

type conflictRow struct {
	ConflictID  string    `db:"conflict_id"`
	JobID       string    `db:"job_id"`
	SrcAdapter  string    `db:"src_adapter"`
	SrcTable    string    `db:"src_table"`
	SrcID       string    `db:"src_id"`
	DestAdapter string    `db:"dest_adapter"`
	DestTable   string    `db:"dest_table"`
	DestID      string    `db:"dest_id"`
	SrcPayload  string    `db:"src_payload"`
	DestPayload string    `db:"dest_payload"`
	DetectedAt  time.Time `db:"detected_at"`
}

type runRow struct {
	RunID       string    `db:"run_id"`
	JobID       string    `db:"job_id"`
	StartedAt   time.Time `db:"started_at"`
	EndedAt     time.Time `db:"ended_at"`
	Status      string    `db:"status"`
	SummaryJSON string    `db:"summary_json"`
}

// OpenSQLStore opens (but does not migrate) a database at dsn using
// driver (DriverSQLite or DriverPostgres) and wraps it as a Store.
// Callers are expected to have already applied the reference schema
// from spec §6; SQLStore does not run migrations.
func OpenSQLStore(driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("linkindex: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("linkindex: ping %s: %w", driver, err)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites "?" placeholders to the dialect the underlying driver
// expects ("$1" for postgres), so every query below can be written once
// against the sqlite-style placeholder and still run on both backends.
func (s *SQLStore) rebind(query string) string {
	return s.db.Rebind(query)
}

// UpsertLink stores the pair as a symmetric, undirected binding: one row
// with (src, dest) in the src_*/dest_* columns and a mirror row with
// (dest, src), so FindDest/FindSource both match regardless of which
// tuple the querying pass calls "src" — the A->B and B->A halves of a
// cycle see the same link either way.
func (s *SQLStore) UpsertLink(ctx context.Context, src, dest Tuple) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("linkindex: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Break any previous binding touching either tuple (no half-links),
	// in either column orientation.
	for _, t := range []Tuple{src, dest} {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`DELETE FROM links WHERE (src_adapter=? AND src_table=? AND src_id=?)
			    OR (dest_adapter=? AND dest_table=? AND dest_id=?)`),
			t.Adapter, t.Table, t.ID, t.Adapter, t.Table, t.ID); err != nil {
			return fmt.Errorf("linkindex: unlink: %w", err)
		}
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO links (src_adapter, src_table, src_id, dest_adapter, dest_table, dest_id, last_sync_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		src.Adapter, src.Table, src.ID, dest.Adapter, dest.Table, dest.ID, now); err != nil {
		return fmt.Errorf("linkindex: insert link: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO links (src_adapter, src_table, src_id, dest_adapter, dest_table, dest_id, last_sync_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		dest.Adapter, dest.Table, dest.ID, src.Adapter, src.Table, src.ID, now); err != nil {
		return fmt.Errorf("linkindex: insert mirror link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("linkindex: commit: %w", err)
	}
	return nil
}

func (s *SQLStore) FindDest(ctx context.Context, src Tuple) (string, error) {
	var destID string
	err := s.db.GetContext(ctx, &destID, s.rebind(
		`SELECT dest_id FROM links WHERE src_adapter=? AND src_table=? AND src_id=?`),
		src.Adapter, src.Table, src.ID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return destID, err
}

func (s *SQLStore) FindSource(ctx context.Context, dest Tuple) (string, error) {
	var srcID string
	err := s.db.GetContext(ctx, &srcID, s.rebind(
		`SELECT src_id FROM links WHERE dest_adapter=? AND dest_table=? AND dest_id=?`),
		dest.Adapter, dest.Table, dest.ID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return srcID, err
}

func (s *SQLStore) LoadCursor(ctx context.Context, jobID, adapter, table string) (record.Cursor, error) {
	var row cursorRow
	err := s.db.GetContext(ctx, &row, s.rebind(
		`SELECT job_id, adapter, table_name, cursor_token, fail_count, disabled_at
		 FROM cursors WHERE job_id=? AND adapter=? AND table_name=?`),
		jobID, adapter, table)
	if err == sql.ErrNoRows {
		return record.NilCursor, nil
	}
	if err != nil {
		return record.NilCursor, err
	}
	if !row.CursorToken.Valid {
		return record.NilCursor, nil
	}
	return record.NewCursor(row.CursorToken.String), nil
}

func (s *SQLStore) SaveCursor(ctx context.Context, jobID, adapter, table string, cursor record.Cursor) error {
	token := sql.NullString{}
	if cursor.Valid {
		token = sql.NullString{String: cursor.Value, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO cursors (job_id, adapter, table_name, cursor_token, fail_count)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT (job_id, adapter, table_name)
		 DO UPDATE SET cursor_token = excluded.cursor_token`),
		jobID, adapter, table, token)
	return err
}

func (s *SQLStore) IsJobDisabled(ctx context.Context, jobID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.rebind(
		`SELECT COUNT(*) FROM cursors WHERE job_id=? AND disabled_at IS NOT NULL`), jobID)
	return count > 0, err
}

func (s *SQLStore) SetJobDisabled(ctx context.Context, jobID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE cursors SET disabled_at=? WHERE job_id=?`), at, jobID)
	if err == nil {
		log.Warn().Str("job_id", jobID).Time("disabled_at", at).Msg("job disabled")
	}
	return err
}

func (s *SQLStore) IncrementFailCount(ctx context.Context, jobID, adapter, table string) (int, error) {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO cursors (job_id, adapter, table_name, fail_count)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT (job_id, adapter, table_name)
		 DO UPDATE SET fail_count = cursors.fail_count + 1`),
		jobID, adapter, table)
	if err != nil {
		return 0, err
	}
	return s.GetFailCount(ctx, jobID, adapter, table)
}

func (s *SQLStore) ResetFailCount(ctx context.Context, jobID, adapter, table string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE cursors SET fail_count=0 WHERE job_id=? AND adapter=? AND table_name=?`),
		jobID, adapter, table)
	return err
}

func (s *SQLStore) GetFailCount(ctx context.Context, jobID, adapter, table string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.rebind(
		`SELECT fail_count FROM cursors WHERE job_id=? AND adapter=? AND table_name=?`),
		jobID, adapter, table)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

func (s *SQLStore) InsertConflict(ctx context.Context, c Conflict) error {
	srcPayload, err := json.Marshal(c.SrcPayload)
	if err != nil {
		return fmt.Errorf("linkindex: marshal src payload: %w", err)
	}
	destPayload, err := json.Marshal(c.DestPayload)
	if err != nil {
		return fmt.Errorf("linkindex: marshal dest payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO conflicts (conflict_id, job_id, src_adapter, src_table, src_id,
		  dest_adapter, dest_table, dest_id, src_payload, dest_payload, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ConflictID, c.JobID, c.Src.Adapter, c.Src.Table, c.Src.ID,
		c.Dest.Adapter, c.Dest.Table, c.Dest.ID, srcPayload, destPayload, c.DetectedAt)
	return err
}

func (s *SQLStore) GetConflicts(ctx context.Context, jobID string) ([]Conflict, error) {
	var rows []conflictRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(
		`SELECT conflict_id, job_id, src_adapter, src_table, src_id,
		   dest_adapter, dest_table, dest_id, src_payload, dest_payload, detected_at
		 FROM conflicts WHERE job_id=?`), jobID); err != nil {
		return nil, err
	}

	out := make([]Conflict, 0, len(rows))
	for _, row := range rows {
		var srcPayload, destPayload record.Record
		if err := json.Unmarshal([]byte(row.SrcPayload), &srcPayload); err != nil {
			return nil, fmt.Errorf("linkindex: unmarshal src payload: %w", err)
		}
		if err := json.Unmarshal([]byte(row.DestPayload), &destPayload); err != nil {
			return nil, fmt.Errorf("linkindex: unmarshal dest payload: %w", err)
		}
		out = append(out, Conflict{
			ConflictID:  row.ConflictID,
			JobID:       row.JobID,
			Src:         Tuple{Adapter: row.SrcAdapter, Table: row.SrcTable, ID: row.SrcID},
			Dest:        Tuple{Adapter: row.DestAdapter, Table: row.DestTable, ID: row.DestID},
			SrcPayload:  srcPayload,
			DestPayload: destPayload,
			DetectedAt:  row.DetectedAt,
		})
	}
	return out, nil
}

func (s *SQLStore) ResolveConflict(ctx context.Context, conflictID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM conflicts WHERE conflict_id=?`), conflictID)
	return err
}

func (s *SQLStore) InsertRun(ctx context.Context, run RunSummary) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO runs (run_id, job_id, started_at, ended_at, status, summary_json)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		run.RunID, run.JobID, run.StartedAt, run.EndedAt, string(run.Status), run.SummaryJSON)
	return err
}

// Schema returns the reference DDL from spec §6 for the given driver:
// the postgres variant uses TIMESTAMPTZ and JSONB columns where the
// sqlite variant uses TIMESTAMP and TEXT. Callers run it once at startup
// against a fresh database.
func Schema(driver string) string {
	if driver == DriverPostgres {
		return postgresSchema
	}
	return sqliteSchema
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS links (
	src_adapter TEXT NOT NULL,
	src_table TEXT NOT NULL,
	src_id TEXT NOT NULL,
	dest_adapter TEXT NOT NULL,
	dest_table TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	last_sync_ts TIMESTAMP,
	PRIMARY KEY (src_adapter, src_table, src_id, dest_adapter, dest_table, dest_id)
);
CREATE INDEX IF NOT EXISTS links_dest_idx ON links (dest_adapter, dest_table, dest_id);
CREATE TABLE IF NOT EXISTS cursors (
	job_id TEXT NOT NULL,
	adapter TEXT NOT NULL,
	table_name TEXT NOT NULL,
	cursor_token TEXT,
	fail_count INTEGER NOT NULL DEFAULT 0,
	disabled_at TIMESTAMP NULL,
	PRIMARY KEY (job_id, adapter, table_name)
);
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	started_at TIMESTAMP,
	ended_at TIMESTAMP,
	status TEXT,
	summary_json TEXT
);
CREATE TABLE IF NOT EXISTS conflicts (
	conflict_id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	src_adapter TEXT NOT NULL,
	src_table TEXT NOT NULL,
	src_id TEXT NOT NULL,
	dest_adapter TEXT NOT NULL,
	dest_table TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	src_payload TEXT,
	dest_payload TEXT,
	detected_at TIMESTAMP
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS links (
	src_adapter TEXT NOT NULL,
	src_table TEXT NOT NULL,
	src_id TEXT NOT NULL,
	dest_adapter TEXT NOT NULL,
	dest_table TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	last_sync_ts TIMESTAMPTZ,
	PRIMARY KEY (src_adapter, src_table, src_id, dest_adapter, dest_table, dest_id)
);
CREATE INDEX IF NOT EXISTS links_dest_idx ON links (dest_adapter, dest_table, dest_id);
CREATE TABLE IF NOT EXISTS cursors (
	job_id TEXT NOT NULL,
	adapter TEXT NOT NULL,
	table_name TEXT NOT NULL,
	cursor_token TEXT,
	fail_count INTEGER NOT NULL DEFAULT 0,
	disabled_at TIMESTAMPTZ NULL,
	PRIMARY KEY (job_id, adapter, table_name)
);
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	started_at TIMESTAMPTZ,
	ended_at TIMESTAMPTZ,
	status TEXT,
	summary_json TEXT
);
CREATE TABLE IF NOT EXISTS conflicts (
	conflict_id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	src_adapter TEXT NOT NULL,
	src_table TEXT NOT NULL,
	src_id TEXT NOT NULL,
	dest_adapter TEXT NOT NULL,
	dest_table TEXT NOT NULL,
	dest_id TEXT NOT NULL,
	src_payload JSONB,
	dest_payload JSONB,
	detected_at TIMESTAMPTZ
);
`
