// CLAUDE:SUMMARY Key-value table backend on SQLite (modernc, WAL) — one kv_rows table keyed by (table_name, row_key) with ordered JSON bodies
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/redflag/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_rows (
    table_name TEXT NOT NULL,
    row_key    TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    body       TEXT NOT NULL,
    updated_at DATETIME DEFAULT (datetime('now')),
    PRIMARY KEY (table_name, row_key)
);

CREATE INDEX IF NOT EXISTS idx_kv_rows_seq ON kv_rows(table_name, seq);
`

// DB wraps the SQLite handle backing the store.
type DB struct {
	*sql.DB
}

func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// seq is computed inside the insert; one connection serializes it
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}

func (db *DB) LoadTable(ctx context.Context, table string) ([]storage.Row, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT body FROM kv_rows WHERE table_name = ? ORDER BY seq", table)
	if err != nil {
		return nil, storage.Fail("load", table, err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, storage.Fail("load", table, err)
		}
		var r storage.Row
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, storage.Fail("load", table, fmt.Errorf("decoding row: %w", err))
		}
		out = append(out, r)
	}
	return out, storage.Fail("load", table, rows.Err())
}

func (db *DB) UpsertRow(ctx context.Context, table string, key storage.Key, row storage.Row) error {
	body, err := json.Marshal(key.Apply(row))
	if err != nil {
		return storage.Fail("upsert", table, err)
	}
	// seq keeps first-insert order; a replace does not move the row
	_, err = db.ExecContext(ctx, `
		INSERT INTO kv_rows (table_name, row_key, seq, body)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM kv_rows WHERE table_name = ?), ?)
		ON CONFLICT(table_name, row_key) DO UPDATE SET
			body = excluded.body,
			updated_at = datetime('now')`,
		table, key.String(), table, string(body))
	return storage.Fail("upsert", table, err)
}

func (db *DB) DeleteRow(ctx context.Context, table string, key storage.Key) (bool, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM kv_rows WHERE table_name = ? AND row_key = ?", table, key.String())
	if err != nil {
		return false, storage.Fail("delete", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.Fail("delete", table, err)
	}
	return n > 0, nil
}

// Tables lists the tables that currently hold rows.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT DISTINCT table_name FROM kv_rows ORDER BY table_name")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
