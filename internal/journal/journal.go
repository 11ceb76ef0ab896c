// Package journal persists coordinator history entries in SQLite so views survive restarts.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

// Journal is an append-only history store.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Single writer; avoids "database is locked" between pooled connections.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS history_entries (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		record_id   TEXT NOT NULL,
		name        TEXT DEFAULT '',
		value       TEXT DEFAULT '',
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_record ON history_entries(record_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append writes one entry.
func (j *Journal) Append(ctx context.Context, e coordinator.HistoryEntry) error {
	var name, value string
	switch e.Kind {
	case coordinator.HistoryCreate:
		if e.Create == nil {
			return fmt.Errorf("create entry for %s has no payload", e.RecordID)
		}
		name = e.Create.Name
	case coordinator.HistoryDecrypt:
		if e.Decrypt == nil {
			return fmt.Errorf("decrypt entry for %s has no payload", e.RecordID)
		}
		// uint64 values above MaxInt64 do not fit an SQLite integer.
		value = strconv.FormatUint(e.Decrypt.Value, 10)
	default:
		return fmt.Errorf("unknown history kind %q", e.Kind)
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO history_entries (kind, record_id, name, value, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		string(e.Kind), e.RecordID, name, value, e.Timestamp.UnixNano(),
	)
	return err
}

// Load returns every entry in append order.
func (j *Journal) Load(ctx context.Context) ([]coordinator.HistoryEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT kind, record_id, name, value, recorded_at FROM history_entries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []coordinator.HistoryEntry
	for rows.Next() {
		var kind, recordID, name, value string
		var at int64
		if err := rows.Scan(&kind, &recordID, &name, &value, &at); err != nil {
			return nil, err
		}
		ts := time.Unix(0, at).UTC()
		switch coordinator.HistoryKind(kind) {
		case coordinator.HistoryCreate:
			entries = append(entries, coordinator.NewCreateEntry(recordID, name, ts))
		case coordinator.HistoryDecrypt:
			v, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("corrupt decrypt entry for %s: %w", recordID, err)
			}
			entries = append(entries, coordinator.NewDecryptEntry(recordID, v, ts))
		default:
			return nil, fmt.Errorf("unknown history kind %q", kind)
		}
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history_entries`).Scan(&n)
	return n, err
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
