package storage

import (
	"context"
	"errors"
	"sync"
)

var errClosed = errors.New("store closed")

// Memory is a process-local Store. Data is lost on exit.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Row
	closed bool
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

func (m *Memory) LoadTable(_ context.Context, table string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, Fail("load", table, errClosed)
	}
	rows := m.tables[table]
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *Memory) UpsertRow(_ context.Context, table string, key Key, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Fail("upsert", table, errClosed)
	}
	row = key.Apply(row)
	rows := m.tables[table]
	for i, r := range rows {
		if key.Matches(r) {
			rows[i] = row
			return nil
		}
	}
	m.tables[table] = append(rows, row)
	return nil
}

func (m *Memory) DeleteRow(_ context.Context, table string, key Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, Fail("delete", table, errClosed)
	}
	rows := m.tables[table]
	for i, r := range rows {
		if key.Matches(r) {
			m.tables[table] = append(rows[:i:i], rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
