// CLAUDE:SUMMARY Key-value table backend on PostgreSQL (sqlx + lib/pq), schema via embedded golang-migrate migrations, advisory-lock Locker
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/hazyhaar/redflag/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements storage.Store and storage.Locker.
type Store struct {
	db *sqlx.DB
}

// Open connects and applies pending migrations.
func Open(dataSourceName string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("connecting postgres: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("postgres storage ready")
	return &Store{db: db}, nil
}

// Migrate runs the embedded migrations up to the latest version.
func Migrate(db *sqlx.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *Store) LoadTable(ctx context.Context, table string) ([]storage.Row, error) {
	var bodies []string
	err := s.db.SelectContext(ctx, &bodies,
		`SELECT body FROM kv_rows WHERE table_name = $1 ORDER BY seq`, table)
	if err != nil {
		return nil, storage.Fail("load", table, err)
	}
	rows := make([]storage.Row, 0, len(bodies))
	for _, b := range bodies {
		var r storage.Row
		if err := json.Unmarshal([]byte(b), &r); err != nil {
			return nil, storage.Fail("load", table, fmt.Errorf("decoding row: %w", err))
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (s *Store) UpsertRow(ctx context.Context, table string, key storage.Key, row storage.Row) error {
	body, err := json.Marshal(key.Apply(row))
	if err != nil {
		return storage.Fail("upsert", table, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_rows (table_name, row_key, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (table_name, row_key) DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = now()`,
		table, key.String(), string(body))
	return storage.Fail("upsert", table, err)
}

func (s *Store) DeleteRow(ctx context.Context, table string, key storage.Key) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_rows WHERE table_name = $1 AND row_key = $2`, table, key.String())
	if err != nil {
		return false, storage.Fail("delete", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.Fail("delete", table, err)
	}
	return n > 0, nil
}

// WithLock holds a session-level advisory lock on a dedicated connection
// while fn runs.
func (s *Store) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return storage.Fail("lock", name, err)
	}
	defer conn.Close()

	id := lockID(name)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, id); err != nil {
		return storage.Fail("lock", name, err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, id); err != nil {
			slog.Error("advisory unlock failed", "lock", name, "error", err)
		}
	}()
	return fn(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

func lockID(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
