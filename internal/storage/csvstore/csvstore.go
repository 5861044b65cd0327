// CLAUDE:SUMMARY Flat-file storage backend — one semicolon-separated CSV per table, column order preserved, atomic rewrite on every mutation
// Package csvstore implements storage.Store over a directory of
// semicolon-separated CSV files, one file per table with a header row.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/hazyhaar/redflag/internal/storage"
)

var tableRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Store keeps every table in <dir>/<table>.csv.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates dir if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating csv dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(table string) (string, error) {
	if !tableRe.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return filepath.Join(s.dir, table+".csv"), nil
}

func (s *Store) LoadTable(_ context.Context, table string) ([]storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, rows, err := s.read(table)
	if err != nil {
		return nil, storage.Fail("load", table, err)
	}
	return rows, nil
}

func (s *Store) UpsertRow(_ context.Context, table string, key storage.Key, row storage.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, rows, err := s.read(table)
	if err != nil {
		return storage.Fail("upsert", table, err)
	}
	row = key.Apply(row)
	for _, name := range row.Names() {
		if !contains(header, name) {
			header = append(header, name)
		}
	}
	replaced := false
	for i, r := range rows {
		if key.Matches(r) {
			rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, row)
	}
	return storage.Fail("upsert", table, s.write(table, header, rows))
}

func (s *Store) DeleteRow(_ context.Context, table string, key storage.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, rows, err := s.read(table)
	if err != nil {
		return false, storage.Fail("delete", table, err)
	}
	kept := rows[:0]
	deleted := false
	for _, r := range rows {
		if !deleted && key.Matches(r) {
			deleted = true
			continue
		}
		kept = append(kept, r)
	}
	if !deleted {
		return false, nil
	}
	if err := s.write(table, header, kept); err != nil {
		return false, storage.Fail("delete", table, err)
	}
	return true, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read(table string) ([]string, []storage.Row, error) {
	path, err := s.path(table)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	var rows []storage.Row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, err)
		}
		row := make(storage.Row, 0, len(header))
		for i, name := range header {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			row = append(row, storage.Column{Name: name, Value: v})
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func (s *Store) write(table string, header []string, rows []storage.Row) error {
	path, err := s.path(table)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, table+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	w.Comma = ';'
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	rec := make([]string, len(header))
	for _, row := range rows {
		for i, name := range header {
			rec[i] = row.Value(name)
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
