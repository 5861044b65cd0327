// CLAUDE:SUMMARY Direct SQLite assertion helpers for E2E tests — reads the kv_rows table behind the sqlite storage backend
package e2e

import (
	"database/sql"
	"encoding/json"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// DBAssert provides direct SQLite assertions on the store file.
// It keeps one persistent connection to avoid file descriptor exhaustion.
type DBAssert struct {
	path string

	mu   sync.Mutex
	conn *sql.DB
}

func NewDBAssert(path string) *DBAssert {
	return &DBAssert{path: path}
}

// Close releases the persistent connection.
func (d *DBAssert) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

func (d *DBAssert) db() (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	db, err := sql.Open("sqlite", "file:"+d.path+"?_pragma=busy_timeout(10000)&mode=ro")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	d.conn = db
	return db, nil
}

// Count returns the number of rows stored for table.
func (d *DBAssert) Count(t *testing.T, table string) int {
	t.Helper()
	db, err := d.db()
	if err != nil {
		t.Fatalf("opening %s: %v", d.path, err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM kv_rows WHERE table_name = ?", table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

// AssertCount fails the test unless table holds want rows.
func (d *DBAssert) AssertCount(t *testing.T, table string, want int) {
	t.Helper()
	if got := d.Count(t, table); got != want {
		t.Errorf("%s rows = %d, want %d", table, got, want)
	}
}

// Rows returns every row of table as column -> value maps.
func (d *DBAssert) Rows(t *testing.T, table string) []map[string]string {
	t.Helper()
	db, err := d.db()
	if err != nil {
		t.Fatalf("opening %s: %v", d.path, err)
	}
	rows, err := db.Query("SELECT body FROM kv_rows WHERE table_name = ? ORDER BY seq", table)
	if err != nil {
		t.Fatalf("querying %s: %v", table, err)
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			t.Fatalf("scanning %s: %v", table, err)
		}
		var m map[string]string
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			t.Fatalf("decoding %s row: %v", table, err)
		}
		out = append(out, m)
	}
	return out
}
