// Package trace records storage operations with request-id correlation and
// persists them asynchronously to a StorageTraces table.
//
// Usage:
//
//	traced := trace.Wrap(store)
//	defer traced.Close()
//	// every LoadTable/UpsertRow/DeleteRow through traced is logged and persisted.
package trace

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/pkg/idgen"

	"github.com/hazyhaar/redflag/internal/storage"
)

// Table receives the persisted traces.
const Table = "StorageTraces"

const slowOp = 100 * time.Millisecond

// Entry is a single storage trace record.
type Entry struct {
	ID         string
	RequestID  string
	Op         string // load, upsert, delete
	Table      string
	DurationUs int64
	Error      string
	Timestamp  int64 // unix microseconds
}

func (e *Entry) row() storage.Row {
	return storage.Row{
		{Name: "trace_id", Value: e.ID},
		{Name: "request_id", Value: e.RequestID},
		{Name: "op", Value: e.Op},
		{Name: "table_name", Value: e.Table},
		{Name: "duration_us", Value: strconv.FormatInt(e.DurationUs, 10)},
		{Name: "error", Value: e.Error},
		{Name: "timestamp", Value: strconv.FormatInt(e.Timestamp, 10)},
	}
}

// Store is a storage.Store decorator. Traces are written straight to the
// wrapped store so they are never traced themselves.
type Store struct {
	inner storage.Store
	ch    chan *Entry
	done  chan struct{}
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

func Wrap(inner storage.Store) *Store {
	s := &Store{
		inner: inner,
		ch:    make(chan *Entry, 1024),
		done:  make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

func (s *Store) LoadTable(ctx context.Context, table string) ([]storage.Row, error) {
	start := time.Now()
	rows, err := s.inner.LoadTable(ctx, table)
	s.Record(ctx, "load", table, time.Since(start), err)
	return rows, err
}

func (s *Store) UpsertRow(ctx context.Context, table string, key storage.Key, row storage.Row) error {
	start := time.Now()
	err := s.inner.UpsertRow(ctx, table, key, row)
	s.Record(ctx, "upsert", table, time.Since(start), err)
	return err
}

func (s *Store) DeleteRow(ctx context.Context, table string, key storage.Key) (bool, error) {
	start := time.Now()
	deleted, err := s.inner.DeleteRow(ctx, table, key)
	s.Record(ctx, "delete", table, time.Since(start), err)
	return deleted, err
}

// WithLock passes through to the wrapped backend's lock, if any.
func (s *Store) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return storage.WithLock(ctx, s.inner, name, fn)
}

// Close flushes pending traces and closes the wrapped store.
func (s *Store) Close() error {
	s.stop()
	return s.inner.Close()
}

func (s *Store) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		<-s.done
	})
}

// Record logs a storage operation with timing and optional error.
func (s *Store) Record(ctx context.Context, op, table string, d time.Duration, err error) {
	requestID := RequestID(ctx)

	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	} else if d > slowOp {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("component", "storage"),
		slog.String("op", op),
		slog.String("table", table),
		slog.Duration("duration", d),
	}
	if requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	slog.LogAttrs(ctx, level, "storage", attrs...)

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	s.recordAsync(&Entry{
		ID:         idgen.New(),
		RequestID:  requestID,
		Op:         op,
		Table:      table,
		DurationUs: d.Microseconds(),
		Error:      errMsg,
		Timestamp:  time.Now().UnixMicro(),
	})
}

// recordAsync drops entries once the store is closed.
func (s *Store) recordAsync(e *Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		// buffer full, drop
	}
}

func (s *Store) flushLoop() {
	defer close(s.done)
	batch := make([]*Entry, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, e := range batch {
		if err := s.inner.UpsertRow(ctx, Table, storage.KeyOf("trace_id", e.ID), e.row()); err != nil {
			slog.Error("trace store: insert", "error", err)
			return
		}
	}
}
