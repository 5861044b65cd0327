// CLAUDE:SUMMARY Storage port — ordered rows, key matching, backend-agnostic Store/Locker interfaces and the unavailable error
// Package storage defines the table-oriented persistence port shared by the
// flat-file and key-value backends. Backends are chosen once at startup and
// injected; business code only sees Store.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnavailable is wrapped by every backend failure.
var ErrUnavailable = errors.New("storage unavailable")

// OpError records which operation and table failed.
type OpError struct {
	Op    string
	Table string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *OpError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

// Fail wraps err as an OpError. nil stays nil.
func Fail(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Table: table, Err: err}
}

// Store is the persistence port.
type Store interface {
	// LoadTable returns every row of table in storage order. A table that
	// does not exist yet is empty, not an error.
	LoadTable(ctx context.Context, table string) ([]Row, error)
	// UpsertRow inserts row, or replaces the row whose key columns match.
	UpsertRow(ctx context.Context, table string, key Key, row Row) error
	// DeleteRow removes the matching row and reports whether one existed.
	DeleteRow(ctx context.Context, table string, key Key) (bool, error)
	Close() error
}

// Locker is implemented by backends that can serialize a critical section
// across processes.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// WithLock runs fn under the backend lock when s supports one, otherwise
// directly. Callers still hold their own in-process mutex.
func WithLock(ctx context.Context, s Store, name string, fn func(ctx context.Context) error) error {
	if l, ok := s.(Locker); ok {
		return l.WithLock(ctx, name, fn)
	}
	return fn(ctx)
}

// Column is one named value of a row.
type Column struct {
	Name  string
	Value string
}

// Row is an ordered list of columns. Column order is the serialization
// order used by every backend.
type Row []Column

// Get returns the value of column name.
func (r Row) Get(name string) (string, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Value returns the value of column name or "".
func (r Row) Value(name string) string {
	v, _ := r.Get(name)
	return v
}

// Set replaces the value of column name, appending it if absent.
func (r *Row) Set(name, value string) {
	for i, c := range *r {
		if c.Name == name {
			(*r)[i].Value = value
			return
		}
	}
	*r = append(*r, Column{Name: name, Value: value})
}

// Names returns the column names in order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}

func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// MarshalJSON encodes the row as a JSON object keeping column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string values, keeping key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row: expected object, got %v", tok)
	}
	out := Row{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row: expected key, got %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("row: column %s: %w", name, err)
		}
		out = append(out, Column{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// Key identifies a row by one or more columns.
type Key []Column

// KeyOf builds a key from alternating name/value pairs.
func KeyOf(pairs ...string) Key {
	if len(pairs)%2 != 0 {
		panic("storage.KeyOf: odd number of arguments")
	}
	k := make(Key, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		k = append(k, Column{Name: pairs[i], Value: pairs[i+1]})
	}
	return k
}

// Matches reports whether every key column equals the row's value.
func (k Key) Matches(r Row) bool {
	if len(k) == 0 {
		return false
	}
	for _, c := range k {
		v, ok := r.Get(c.Name)
		if !ok || v != c.Value {
			return false
		}
	}
	return true
}

// String is the canonical encoding used as a primary key by kv backends.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, c := range k {
		parts[i] = url.QueryEscape(c.Name) + "=" + url.QueryEscape(c.Value)
	}
	return strings.Join(parts, "&")
}

// Apply returns row with the key columns set, key columns first when the
// row did not carry them.
func (k Key) Apply(row Row) Row {
	out := make(Row, 0, len(row)+len(k))
	for _, c := range k {
		if _, ok := row.Get(c.Name); !ok {
			out = append(out, c)
		}
	}
	out = append(out, row...)
	for _, c := range k {
		out.Set(c.Name, c.Value)
	}
	return out
}

// Find returns the first row matching key.
func Find(rows []Row, key Key) (Row, bool) {
	for _, r := range rows {
		if key.Matches(r) {
			return r, true
		}
	}
	return nil, false
}
