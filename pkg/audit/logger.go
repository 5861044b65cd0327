package audit

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/pkg/idgen"

	"github.com/hazyhaar/redflag/internal/storage"
)

// Table receives the audit trail.
const Table = "AuditLog"

// StoreLogger writes audit entries through the storage port asynchronously.
type StoreLogger struct {
	store storage.Store
	ch    chan *Entry
	done  chan struct{}
	once  sync.Once
}

func NewStoreLogger(store storage.Store) *StoreLogger {
	l := &StoreLogger{
		store: store,
		ch:    make(chan *Entry, 256),
		done:  make(chan struct{}),
	}
	go l.flushLoop()
	return l
}

func (l *StoreLogger) Log(ctx context.Context, entry *Entry) error {
	l.fillDefaults(entry)
	return l.insert(ctx, entry)
}

func (l *StoreLogger) LogAsync(entry *Entry) {
	l.fillDefaults(entry)
	select {
	case l.ch <- entry:
	default:
		slog.Warn("audit buffer full, dropping entry", "action", entry.Action)
	}
}

// Close flushes pending entries. The store is left open.
func (l *StoreLogger) Close() error {
	l.once.Do(func() {
		close(l.ch)
		<-l.done
	})
	return nil
}

func (l *StoreLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = "aud_" + idgen.New()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
	if e.Transport == "" {
		e.Transport = TransportHTTP
	}
}

func (l *StoreLogger) flushLoop() {
	defer close(l.done)
	batch := make([]*Entry, 0, 32)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-l.ch:
			if !ok {
				l.flushBatch(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 32 {
				l.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (l *StoreLogger) flushBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, e := range batch {
		if err := l.insert(ctx, e); err != nil {
			slog.Error("audit write failed", "error", err, "action", e.Action)
		}
	}
}

func (l *StoreLogger) insert(ctx context.Context, e *Entry) error {
	return l.store.UpsertRow(ctx, Table, storage.KeyOf("entry_id", e.EntryID), storage.Row{
		{Name: "entry_id", Value: e.EntryID},
		{Name: "timestamp", Value: strconv.FormatInt(e.Timestamp, 10)},
		{Name: "action", Value: e.Action},
		{Name: "transport", Value: e.Transport},
		{Name: "actor", Value: e.Actor},
		{Name: "request_id", Value: e.RequestID},
		{Name: "parameters", Value: e.Parameters},
		{Name: "result", Value: e.Result},
		{Name: "error_message", Value: e.Error},
		{Name: "duration_ms", Value: strconv.FormatInt(e.DurationMs, 10)},
		{Name: "status", Value: e.Status},
	})
}
