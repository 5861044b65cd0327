package summary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/storage"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApply_FirstEntrySetsMinMax(t *testing.T) {
	s := Summary{}.Apply(Entry{Score: d("0.4"), Violations: 2}, t0)
	if s.Count != 1 || !s.MinScore.Equal(d("0.4")) || !s.MaxScore.Equal(d("0.4")) {
		t.Fatalf("summary = %+v", s)
	}
	if !s.AvgScore.Equal(d("0.4")) || !s.AvgViolations.Equal(d("2")) {
		t.Errorf("averages = %s / %s", s.AvgScore, s.AvgViolations)
	}
}

func TestApply_Sequence(t *testing.T) {
	var s Summary
	for _, e := range []Entry{{d("0.2"), 0}, {d("0.8"), 3}, {d("0.5"), 1}} {
		s = s.Apply(e, t0)
	}
	if s.Count != 3 || !s.SumScore.Equal(d("1.5")) || !s.AvgScore.Equal(d("0.5")) {
		t.Errorf("summary = %+v", s)
	}
	if !s.MinScore.Equal(d("0.2")) || !s.MaxScore.Equal(d("0.8")) {
		t.Errorf("min/max = %s/%s", s.MinScore, s.MaxScore)
	}
	if s.SumViolations != 4 {
		t.Errorf("SumViolations = %d", s.SumViolations)
	}
}

func TestReverse_ToEmptyResets(t *testing.T) {
	s := Summary{}.Apply(Entry{d("0.9"), 4}, t0).Reverse(Entry{d("0.9"), 4}, t0)
	if s.Count != 0 || !s.SumScore.IsZero() || !s.MaxScore.IsZero() || !s.AvgScore.IsZero() || s.SumViolations != 0 {
		t.Errorf("summary = %+v, want zero", s)
	}
	if !s.Comparison(d("0.5")).Equal(d("0.5")) {
		t.Errorf("Comparison on empty = %s", s.Comparison(d("0.5")))
	}
}

func TestReverse_Arithmetic(t *testing.T) {
	s := Recompute([]Entry{{d("0.2"), 1}, {d("0.6"), 1}, {d("0.7"), 0}}, t0)
	s = s.Reverse(Entry{d("0.6"), 1}, t0)
	if s.Count != 2 || !s.SumScore.Equal(d("0.9")) || !s.AvgScore.Equal(d("0.45")) || s.SumViolations != 1 {
		t.Errorf("summary = %+v", s)
	}
}

// Committing an entry and removing it again restores count, sum and average.
func TestUpdater_CommitThenRemoveRestores(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	u := NewUpdater(store, &rowSource{store: store}, decimal.Zero)
	for id, score := range map[string]string{"1": "0.125", "2": "0.3", "3": "0.41176"} {
		if _, err := u.Commit(ctx, Entry{Score: d(score)}, persistRow(store, id, score)); err != nil {
			t.Fatal(err)
		}
	}
	before, err := u.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}

	after, err := u.Commit(ctx, Entry{Score: d("0.77")}, persistRow(store, "4", "0.77"))
	if err != nil {
		t.Fatal(err)
	}
	if after.Count != before.Count+1 || !after.SumScore.Equal(before.SumScore.Add(d("0.77"))) {
		t.Fatalf("after commit = %+v", after)
	}

	restored, strategy, err := u.Remove(ctx, func(ctx context.Context) (Entry, error) {
		_, err := store.DeleteRow(ctx, "Sessions", storage.KeyOf("id", "4"))
		return Entry{Score: d("0.77")}, err
	})
	if err != nil {
		t.Fatal(err)
	}
	if strategy != StrategyRecompute {
		t.Errorf("strategy = %s", strategy)
	}
	if restored.Count != before.Count || !restored.SumScore.Equal(before.SumScore) || !restored.AvgScore.Equal(before.AvgScore) {
		t.Errorf("restored = %+v, want %+v", restored, before)
	}

	// arithmetic reversal obeys the same law
	arith := after.Reverse(Entry{Score: d("0.77")}, t0)
	if arith.Count != before.Count || !arith.SumScore.Equal(before.SumScore) || !arith.AvgScore.Equal(before.AvgScore) {
		t.Errorf("reversed = %+v, want %+v", arith, before)
	}
}

func TestDesync(t *testing.T) {
	a := Recompute([]Entry{{d("0.5"), 1}}, t0)
	b := a
	b.AvgScore = a.AvgScore.Add(d("0.0000001"))
	if Desync(a, b, d("0.000001")) {
		t.Error("difference under tolerance reported")
	}
	b.AvgScore = a.AvgScore.Add(d("0.01"))
	if !Desync(a, b, d("0.000001")) {
		t.Error("difference over tolerance not reported")
	}
	c := a
	c.Count++
	if !Desync(a, c, d("1")) {
		t.Error("count mismatch not reported")
	}
}

func TestRowRoundTrip(t *testing.T) {
	s := Recompute([]Entry{{d("0.25"), 1}, {d("0.75"), 2}}, t0)
	got, err := FromRow(s.Row())
	if err != nil {
		t.Fatal(err)
	}
	if Desync(s, got, decimal.Zero) || !got.LastUpdate.Equal(t0) {
		t.Errorf("FromRow = %+v, want %+v", got, s)
	}
	if names := s.Row().Names(); len(names) != len(Columns) || names[0] != "summary_id" {
		t.Errorf("columns = %v", names)
	}
}

func TestFromRow_FloatCount(t *testing.T) {
	row := storage.Row{{Name: "count", Value: "3.0"}, {Name: "avg_toxic_score", Value: "0.4"}}
	s, err := FromRow(row)
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 3 || !s.AvgScore.Equal(d("0.4")) {
		t.Errorf("FromRow = %+v", s)
	}
}

// rowSource reads entries back out of a test table.
type rowSource struct {
	store storage.Store
	fail  bool
}

func (r *rowSource) Entries(ctx context.Context) ([]Entry, error) {
	if r.fail {
		return nil, errors.New("source down")
	}
	rows, err := r.store.LoadTable(ctx, "Sessions")
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, Entry{Score: d(row.Value("score"))})
	}
	return out, nil
}

func persistRow(store storage.Store, id, score string) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		key := storage.KeyOf("id", id)
		rows, err := store.LoadTable(ctx, "Sessions")
		if err != nil {
			return false, err
		}
		_, existed := storage.Find(rows, key)
		return existed, store.UpsertRow(ctx, "Sessions", key, storage.Row{{Name: "score", Value: score}})
	}
}

func TestUpdater_CommitNewAndReplace(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	u := NewUpdater(store, &rowSource{store: store}, d("0.000001"))

	if _, err := u.Commit(ctx, Entry{Score: d("0.2")}, persistRow(store, "1", "0.2")); err != nil {
		t.Fatal(err)
	}
	if _, err := u.Commit(ctx, Entry{Score: d("0.6")}, persistRow(store, "2", "0.6")); err != nil {
		t.Fatal(err)
	}
	s, err := u.Commit(ctx, Entry{Score: d("0.4")}, persistRow(store, "1", "0.4"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 2 || !s.SumScore.Equal(d("1")) || !s.AvgScore.Equal(d("0.5")) {
		t.Errorf("after replace = %+v", s)
	}
	stored, err := u.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if Desync(s, stored, decimal.Zero) {
		t.Errorf("stored = %+v, want %+v", stored, s)
	}
}

func TestUpdater_PersistFailureLeavesSummary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	u := NewUpdater(store, &rowSource{store: store}, decimal.Zero)
	boom := errors.New("boom")
	_, err := u.Commit(ctx, Entry{Score: d("0.3")}, func(context.Context) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	s, err := u.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 0 {
		t.Errorf("Count = %d after failed persist", s.Count)
	}
}

func TestUpdater_ConcurrentCommitsNoLostUpdate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	u := NewUpdater(store, &rowSource{store: store}, decimal.Zero)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := u.Commit(ctx, Entry{Score: d("0.25"), Violations: 1}, nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	s, err := u.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != n || !s.SumScore.Equal(d("10")) || s.SumViolations != n {
		t.Errorf("summary = %+v", s)
	}
}

func TestUpdater_RemoveRecomputesThenFallsBack(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	src := &rowSource{store: store}
	u := NewUpdater(store, src, decimal.Zero)
	for id, score := range map[string]string{"1": "0.1", "2": "0.9", "3": "0.5"} {
		if _, err := u.Commit(ctx, Entry{Score: d(score)}, persistRow(store, id, score)); err != nil {
			t.Fatal(err)
		}
	}

	s, strategy, err := u.Remove(ctx, func(ctx context.Context) (Entry, error) {
		_, err := store.DeleteRow(ctx, "Sessions", storage.KeyOf("id", "2"))
		return Entry{Score: d("0.9")}, err
	})
	if err != nil {
		t.Fatal(err)
	}
	if strategy != StrategyRecompute || s.Count != 2 || !s.MaxScore.Equal(d("0.5")) {
		t.Errorf("recompute: strategy %s summary %+v", strategy, s)
	}

	src.fail = true
	s, strategy, err = u.Remove(ctx, func(context.Context) (Entry, error) {
		return Entry{Score: d("0.1")}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if strategy != StrategyArithmetic || s.Count != 1 || !s.SumScore.Equal(d("0.5")) {
		t.Errorf("arithmetic: strategy %s summary %+v", strategy, s)
	}
}

func TestUpdater_ReconcileReportsDesync(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	u := NewUpdater(store, &rowSource{store: store}, d("0.000001"))
	if err := store.UpsertRow(ctx, "Sessions", storage.KeyOf("id", "1"), storage.Row{{Name: "score", Value: "0.4"}}); err != nil {
		t.Fatal(err)
	}

	s, err := u.Reconcile(ctx)
	if !errors.Is(err, ErrDesync) {
		t.Fatalf("err = %v, want ErrDesync", err)
	}
	if s.Count != 1 {
		t.Errorf("Count = %d", s.Count)
	}
	if _, err := u.Reconcile(ctx); err != nil {
		t.Errorf("second Reconcile: %v", err)
	}
}
