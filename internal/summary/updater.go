package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/storage"
)

// Table is the storage table holding the single summary row.
const Table = "PopulationSummary"

// Key addresses the summary row.
var Key = storage.KeyOf("summary_id", "1")

const lockName = "population_summary"

// ErrDesync is returned by Reconcile when the stored row disagrees with
// the session rows.
var ErrDesync = errors.New("population summary out of sync")

var timeNow = time.Now

// Source lists every finalized entry. The survey store implements it over
// the SessionResponses table.
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// Strategy names how a removal was folded out of the summary.
type Strategy string

const (
	StrategyRecompute  Strategy = "recompute"
	StrategyArithmetic Strategy = "arithmetic"
)

// Updater serializes every read-modify-write of the summary row. Within a
// process a mutex orders commits; backends implementing storage.Locker
// extend that across processes.
type Updater struct {
	store     storage.Store
	source    Source
	tolerance decimal.Decimal

	mu sync.Mutex
}

func NewUpdater(store storage.Store, source Source, tolerance decimal.Decimal) *Updater {
	return &Updater{store: store, source: source, tolerance: tolerance}
}

// Load reads the stored summary. A missing row is the empty summary.
func (u *Updater) Load(ctx context.Context) (Summary, error) {
	rows, err := u.store.LoadTable(ctx, Table)
	if err != nil {
		return Summary{}, fmt.Errorf("loading summary: %w", err)
	}
	row, ok := storage.Find(rows, Key)
	if !ok {
		return Summary{}, nil
	}
	return FromRow(row)
}

func (u *Updater) save(ctx context.Context, s Summary) error {
	if err := u.store.UpsertRow(ctx, Table, Key, s.Row()); err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	return nil
}

func (u *Updater) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return storage.WithLock(ctx, u.store, lockName, fn)
}

// Commit runs persist and updates the summary in one critical section.
// persist reports whether it replaced an existing session row: a new row is
// folded in incrementally, a replaced one triggers a recompute from the
// source so the old score is not counted twice. A nil persist is a new row.
func (u *Updater) Commit(ctx context.Context, e Entry, persist func(ctx context.Context) (bool, error)) (Summary, error) {
	var out Summary
	err := u.locked(ctx, func(ctx context.Context) error {
		replaced := false
		if persist != nil {
			var err error
			if replaced, err = persist(ctx); err != nil {
				return err
			}
		}
		if replaced {
			entries, err := u.source.Entries(ctx)
			if err != nil {
				return fmt.Errorf("recomputing summary: %w", err)
			}
			out = Recompute(entries, timeNow())
			return u.save(ctx, out)
		}
		cur, err := u.Load(ctx)
		if err != nil {
			return err
		}
		out = cur.Apply(e, timeNow())
		return u.save(ctx, out)
	})
	return out, err
}

// Remove runs remove, which deletes a session and returns its entry, then
// folds that entry out of the summary. It recomputes from the remaining
// rows and falls back to arithmetic reversal when the source cannot be read.
func (u *Updater) Remove(ctx context.Context, remove func(ctx context.Context) (Entry, error)) (Summary, Strategy, error) {
	var out Summary
	var strategy Strategy
	err := u.locked(ctx, func(ctx context.Context) error {
		e, err := remove(ctx)
		if err != nil {
			return err
		}
		entries, err := u.source.Entries(ctx)
		if err == nil {
			strategy = StrategyRecompute
			out = Recompute(entries, timeNow())
			return u.save(ctx, out)
		}
		slog.Warn("summary recompute failed, reversing arithmetically", "error", err)
		cur, lerr := u.Load(ctx)
		if lerr != nil {
			return lerr
		}
		strategy = StrategyArithmetic
		out = cur.Reverse(e, timeNow())
		return u.save(ctx, out)
	})
	return out, strategy, err
}

// Reconcile recomputes the summary from the source and rewrites the row.
// It returns ErrDesync, along with the corrected summary, when the stored
// row had drifted beyond the tolerance.
func (u *Updater) Reconcile(ctx context.Context) (Summary, error) {
	var out Summary
	var drifted bool
	err := u.locked(ctx, func(ctx context.Context) error {
		stored, err := u.Load(ctx)
		if err != nil {
			return err
		}
		entries, err := u.source.Entries(ctx)
		if err != nil {
			return fmt.Errorf("recomputing summary: %w", err)
		}
		out = Recompute(entries, timeNow())
		if Desync(stored, out, u.tolerance) {
			drifted = true
			slog.Warn("population summary desync",
				"stored_count", stored.Count, "actual_count", out.Count,
				"stored_avg", stored.AvgScore.String(), "actual_avg", out.AvgScore.String())
		}
		return u.save(ctx, out)
	})
	if err != nil {
		return Summary{}, err
	}
	if drifted {
		return out, ErrDesync
	}
	return out, nil
}
