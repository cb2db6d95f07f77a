package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/scottthesecond/syncframe/pkg/record"
)

// SQLAdapter exercises a relational table (MySQL or Postgres) as one
// side of a sync job, polling a watermark column instead of tailing
// binlog/WAL — GetUpdates' monotonic-replay contract only needs "give me
// everything newer than this point," which a plain watermark query
// answers without a replication client. Grounded on
// pkg/streams/mysql.go's sqlx.Open + go-sql-driver/mysql wiring, adapted
// from GTID binlog streaming to polling per DESIGN.md's dropped-module
// note for github.com/go-mysql-org/go-mysql.
type SQLAdapter struct {
	db     *sqlx.DB
	driver string // "mysql" or "postgres"

	table          string
	idColumn       string
	watermarkCol   string
	deletedColumn  string
}

// NewSQLAdapter opens dsn with driver ("mysql" or "postgres") and wraps
// table. idColumn is the primary key column surfaced as record.ID;
// watermarkCol must be monotonically increasing on every write;
// deletedColumn marks a soft-deleted row (SQLAdapter never issues a hard
// DELETE for the same reason MongoAdapter doesn't: a deleted row must
// stay visible to a watermark query that runs after the delete).
func NewSQLAdapter(driver, dsn, table, idColumn, watermarkCol, deletedColumn string) (*SQLAdapter, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("adapter: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("adapter: ping %s: %w", driver, err)
	}
	log.Info().Str("driver", driver).Str("table", table).Msg("sql adapter connected")

	return &SQLAdapter{
		db: db, driver: driver,
		table: table, idColumn: idColumn,
		watermarkCol: watermarkCol, deletedColumn: deletedColumn,
	}, nil
}

// Close releases the underlying connection pool.
func (a *SQLAdapter) Close() error {
	return a.db.Close()
}

func (a *SQLAdapter) GetUpdates(ctx context.Context, cursor record.Cursor) (record.ChangeSet, record.Cursor, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s > ? ORDER BY %s ASC`, a.table, a.watermarkCol, a.watermarkCol)
	since := time.Unix(0, 0).UTC()
	if cursor.Valid {
		parsed, err := time.Parse(time.RFC3339Nano, cursor.Value)
		if err != nil {
			return record.ChangeSet{}, cursor, fmt.Errorf("adapter: bad sql cursor %q: %w", cursor.Value, err)
		}
		since = parsed
	}

	rows, err := a.db.Queryx(a.db.Rebind(query), since)
	if err != nil {
		return record.ChangeSet{}, cursor, fmt.Errorf("adapter: query updates: %w", err)
	}
	defer rows.Close()

	var cs record.ChangeSet
	latest := since
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return record.ChangeSet{}, cursor, fmt.Errorf("adapter: scan row: %w", err)
		}

		id := fmt.Sprintf("%v", row[a.idColumn])
		if ts, ok := row[a.watermarkCol].(time.Time); ok && ts.After(latest) {
			latest = ts
		}

		if deleted, _ := row[a.deletedColumn].(bool); deleted {
			cs.Deletes = append(cs.Deletes, id)
			continue
		}
		delete(row, a.idColumn)
		cs.Upserts = append(cs.Upserts, record.Record{ID: id, Fields: row})
	}
	if err := rows.Err(); err != nil {
		return record.ChangeSet{}, cursor, fmt.Errorf("adapter: rows: %w", err)
	}

	return cs, record.NewCursor(latest.UTC().Format(time.RFC3339Nano)), nil
}

func (a *SQLAdapter) ApplyChanges(ctx context.Context, changes record.ChangeSet) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("adapter: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range changes.Upserts {
		if err := a.upsertRow(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, id := range changes.Deletes {
		query := fmt.Sprintf(`UPDATE %s SET %s = ?, %s = ? WHERE %s = ?`,
			a.table, a.deletedColumn, a.watermarkCol, a.idColumn)
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), true, time.Now().UTC(), id); err != nil {
			return fmt.Errorf("adapter: soft delete %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("adapter: commit: %w", err)
	}
	return nil
}

func (a *SQLAdapter) upsertRow(ctx context.Context, tx *sqlx.Tx, rec record.Record) error {
	cols := []string{a.idColumn, a.watermarkCol}
	vals := []any{rec.ID, time.Now().UTC()}
	for k, v := range rec.Fields {
		cols = append(cols, k)
		vals = append(vals, v)
	}

	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	var query string
	switch a.driver {
	case "postgres":
		query = fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s`,
			a.table, join(cols), join(placeholders), a.idColumn, conflictAssignments(cols, a.idColumn))
	default: // mysql
		query = fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s`,
			a.table, join(cols), join(placeholders), dupAssignments(cols, a.idColumn))
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(query), vals...); err != nil {
		return fmt.Errorf("adapter: upsert %s: %w", rec.ID, err)
	}
	return nil
}

func (a *SQLAdapter) SerializeCursor(cursor record.Cursor) string {
	if !cursor.Valid {
		return ""
	}
	return cursor.Value
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func dupAssignments(cols []string, idCol string) string {
	out := ""
	first := true
	for _, c := range cols {
		if c == idCol {
			continue
		}
		if !first {
			out += ", "
		}
		out += fmt.Sprintf("%s = VALUES(%s)", c, c)
		first = false
	}
	return out
}

func conflictAssignments(cols []string, idCol string) string {
	out := ""
	first := true
	for _, c := range cols {
		if c == idCol {
			continue
		}
		if !first {
			out += ", "
		}
		out += fmt.Sprintf("%s = excluded.%s", c, c)
		first = false
	}
	return out
}
