// CLAUDE:SUMMARY Population summary arithmetic — incremental apply, arithmetic reverse, recompute from rows, desync check, row codec
// Package summary maintains the running statistics over every finalized
// score. The stored row is a cache; session rows are the source of truth.
package summary

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/storage"
)

// Entry is one finalized session as seen by the summary.
type Entry struct {
	Score      decimal.Decimal
	Violations int
}

// Summary is the single PopulationSummary row. With Count == 0 every
// statistic is zero.
type Summary struct {
	Count         int64           `json:"count"`
	SumScore      decimal.Decimal `json:"sum_toxic_score"`
	MaxScore      decimal.Decimal `json:"max_toxic_score"`
	MinScore      decimal.Decimal `json:"min_toxic_score"`
	AvgScore      decimal.Decimal `json:"avg_toxic_score"`
	SumViolations int64           `json:"sum_filter_violations"`
	AvgViolations decimal.Decimal `json:"avg_filter_violations"`
	LastUpdate    time.Time       `json:"last_update"`
}

// Apply folds a new entry into s.
func (s Summary) Apply(e Entry, at time.Time) Summary {
	if s.Count == 0 {
		s.MaxScore, s.MinScore = e.Score, e.Score
	} else {
		s.MaxScore = decimal.Max(s.MaxScore, e.Score)
		s.MinScore = decimal.Min(s.MinScore, e.Score)
	}
	s.Count++
	s.SumScore = s.SumScore.Add(e.Score)
	s.SumViolations += int64(e.Violations)
	s.LastUpdate = at
	return s.withAverages()
}

// Reverse removes an entry arithmetically. Max and min cannot be recovered
// this way and are kept unless the summary becomes empty; prefer Recompute
// when rows are available.
func (s Summary) Reverse(e Entry, at time.Time) Summary {
	if s.Count <= 1 {
		return Summary{LastUpdate: at}
	}
	s.Count--
	s.SumScore = s.SumScore.Sub(e.Score)
	s.SumViolations -= int64(e.Violations)
	if s.SumViolations < 0 {
		s.SumViolations = 0
	}
	s.LastUpdate = at
	return s.withAverages()
}

// Recompute builds the summary from the full entry set.
func Recompute(entries []Entry, at time.Time) Summary {
	s := Summary{}
	for _, e := range entries {
		s = s.Apply(e, at)
	}
	s.LastUpdate = at
	return s
}

func (s Summary) withAverages() Summary {
	if s.Count == 0 {
		return Summary{LastUpdate: s.LastUpdate}
	}
	n := decimal.NewFromInt(s.Count)
	s.AvgScore = s.SumScore.Div(n)
	s.AvgViolations = decimal.NewFromInt(s.SumViolations).Div(n)
	return s
}

// Comparison is the average a new score is judged against, or def when no
// score has been recorded.
func (s Summary) Comparison(def decimal.Decimal) decimal.Decimal {
	if s.Count == 0 {
		return def
	}
	return s.AvgScore
}

// Desync reports whether stored differs from recomputed beyond tol.
func Desync(stored, recomputed Summary, tol decimal.Decimal) bool {
	if stored.Count != recomputed.Count || stored.SumViolations != recomputed.SumViolations {
		return true
	}
	pairs := [][2]decimal.Decimal{
		{stored.SumScore, recomputed.SumScore},
		{stored.AvgScore, recomputed.AvgScore},
		{stored.MaxScore, recomputed.MaxScore},
		{stored.MinScore, recomputed.MinScore},
	}
	for _, p := range pairs {
		if p[0].Sub(p[1]).Abs().GreaterThan(tol) {
			return true
		}
	}
	return false
}

// Columns is the serialized column order of the summary row.
var Columns = []string{
	"summary_id", "count", "sum_toxic_score", "max_toxic_score", "min_toxic_score",
	"avg_toxic_score", "sum_filter_violations", "avg_filter_violations", "last_update",
}

// Row encodes s for storage.
func (s Summary) Row() storage.Row {
	return storage.Row{
		{Name: "summary_id", Value: "1"},
		{Name: "count", Value: strconv.FormatInt(s.Count, 10)},
		{Name: "sum_toxic_score", Value: s.SumScore.String()},
		{Name: "max_toxic_score", Value: s.MaxScore.String()},
		{Name: "min_toxic_score", Value: s.MinScore.String()},
		{Name: "avg_toxic_score", Value: s.AvgScore.String()},
		{Name: "sum_filter_violations", Value: strconv.FormatInt(s.SumViolations, 10)},
		{Name: "avg_filter_violations", Value: s.AvgViolations.String()},
		{Name: "last_update", Value: s.LastUpdate.UTC().Format(time.RFC3339)},
	}
}

// FromRow decodes a stored summary row. Empty cells read as zero.
func FromRow(r storage.Row) (Summary, error) {
	var s Summary
	var err error
	if s.Count, err = parseInt(r, "count"); err != nil {
		return Summary{}, err
	}
	if s.SumViolations, err = parseInt(r, "sum_filter_violations"); err != nil {
		return Summary{}, err
	}
	dec := []struct {
		col string
		dst *decimal.Decimal
	}{
		{"sum_toxic_score", &s.SumScore},
		{"max_toxic_score", &s.MaxScore},
		{"min_toxic_score", &s.MinScore},
		{"avg_toxic_score", &s.AvgScore},
		{"avg_filter_violations", &s.AvgViolations},
	}
	for _, d := range dec {
		v := strings.TrimSpace(r.Value(d.col))
		if v == "" {
			continue
		}
		if *d.dst, err = decimal.NewFromString(v); err != nil {
			return Summary{}, fmt.Errorf("summary %s %q: %w", d.col, v, err)
		}
	}
	if v := r.Value("last_update"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			s.LastUpdate = t
		}
	}
	return s, nil
}

func parseInt(r storage.Row, col string) (int64, error) {
	v := strings.TrimSpace(r.Value(col))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// older rows stored counts as floats
		d, derr := decimal.NewFromString(v)
		if derr != nil {
			return 0, fmt.Errorf("summary %s %q: %w", col, v, err)
		}
		n = d.IntPart()
	}
	return n, nil
}
