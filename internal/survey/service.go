// CLAUDE:SUMMARY Survey persistence service — identity resolution, finalize with summary commit, secondary saves, cascade delete with summary reversal
// Package survey persists finalized rounds and keeps the population summary
// consistent with them.
package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/identity"
	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/summary"
)

var (
	// ErrSessionNotFound means no finalized round exists for the pair.
	ErrSessionNotFound = errors.New("session not found")
	// ErrIdentityMismatch means the identity is held by a different pair.
	ErrIdentityMismatch = errors.New("session identity belongs to another pair")
)

var timeNow = time.Now

// Service writes session records through the storage port.
type Service struct {
	store             storage.Store
	updater           *summary.Updater
	comparisonDefault decimal.Decimal
}

func NewService(store storage.Store, tolerance, comparisonDefault decimal.Decimal) *Service {
	s := &Service{store: store, comparisonDefault: comparisonDefault}
	s.updater = summary.NewUpdater(store, s, tolerance)
	return s
}

// Responses loads every finalized round. Undecodable rows are skipped.
func (s *Service) Responses(ctx context.Context) ([]SessionResponse, error) {
	rows, err := s.store.LoadTable(ctx, TableResponses)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", TableResponses, err)
	}
	out := make([]SessionResponse, 0, len(rows))
	for i, row := range rows {
		r, err := ResponseFromRow(row)
		if err != nil {
			slog.Warn("skipping session row", "row", i, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Entries implements summary.Source.
func (s *Service) Entries(ctx context.Context) ([]summary.Entry, error) {
	rs, err := s.Responses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]summary.Entry, len(rs))
	for i, r := range rs {
		out[i] = r.Entry()
	}
	return out, nil
}

// identities lists the identity held by every stored row. Only the id and
// pair columns are read, so a row whose answer maps no longer decode still
// holds its identity.
func (s *Service) identities(ctx context.Context) ([]identity.Entry, []storage.Row, error) {
	rows, err := s.store.LoadTable(ctx, TableResponses)
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s: %w", TableResponses, err)
	}
	out := make([]identity.Entry, 0, len(rows))
	for i, row := range rows {
		id, err := strconv.ParseInt(strings.TrimSpace(row.Value("id")), 10, 64)
		if err != nil {
			slog.Warn("session row without identity", "row", i, "error", err)
			continue
		}
		out = append(out, identity.Entry{ID: id, UserID: row.Value("user_id"), Partner: row.Value("partner_name")})
	}
	return out, rows, nil
}

// ResolveIdentity returns the identity the pair would be stored under.
func (s *Service) ResolveIdentity(ctx context.Context, userID, partner string) (int64, error) {
	entries, _, err := s.identities(ctx)
	if err != nil {
		return 0, err
	}
	return identity.Resolve(entries, identity.Derive(userID, partner), userID, partner), nil
}

// Finalized is the outcome of a successful Finalize.
type Finalized struct {
	ID       int64
	Replaced bool
	// Comparison is the population average before this round was counted.
	Comparison decimal.Decimal
	Summary    summary.Summary
}

// Finalize stores the round under its resolved identity and folds it into
// the population summary. A re-submitted pair replaces its row and the
// summary is recomputed.
func (s *Service) Finalize(ctx context.Context, r SessionResponse) (Finalized, error) {
	out := Finalized{Comparison: s.comparisonDefault}
	sum, err := s.updater.Commit(ctx, r.Entry(), func(ctx context.Context) (bool, error) {
		entries, _, err := s.identities(ctx)
		if err != nil {
			return false, err
		}
		id, existed := identity.Lookup(entries, r.UserID, r.PartnerName)
		if !existed {
			id = identity.Resolve(entries, identity.Derive(r.UserID, r.PartnerName), r.UserID, r.PartnerName)
		}
		if prev, err := s.updater.Load(ctx); err == nil {
			out.Comparison = prev.Comparison(s.comparisonDefault)
		} else {
			slog.Warn("summary unreadable, using default comparison", "error", err)
		}
		r.ID = id
		r.UpdatedAt = timeNow()
		if err := s.store.UpsertRow(ctx, TableResponses, KeyFor(id), r.Row()); err != nil {
			return false, fmt.Errorf("saving %s: %w", TableResponses, err)
		}
		out.ID, out.Replaced = id, existed
		return existed, nil
	})
	if err != nil {
		return Finalized{}, err
	}
	out.Summary = sum
	slog.Info("session finalized", "id", out.ID, "replaced", out.Replaced, "count", sum.Count)
	return out, nil
}

// requireSession checks that id is a finalized round of the pair.
func (s *Service) requireSession(ctx context.Context, id int64, userID, partner string) error {
	rows, err := s.store.LoadTable(ctx, TableResponses)
	if err != nil {
		return fmt.Errorf("loading %s: %w", TableResponses, err)
	}
	row, ok := storage.Find(rows, KeyFor(id))
	if !ok {
		return fmt.Errorf("session %d: %w", id, ErrSessionNotFound)
	}
	if identity.Normalize(row.Value("user_id")) != identity.Normalize(userID) ||
		identity.Normalize(row.Value("partner_name")) != identity.Normalize(partner) {
		return fmt.Errorf("session %d: %w", id, ErrIdentityMismatch)
	}
	return nil
}

func (s *Service) upsertSecondary(ctx context.Context, table string, id int64, userID, partner string, row storage.Row) error {
	if err := s.requireSession(ctx, id, userID, partner); err != nil {
		return err
	}
	if err := s.store.UpsertRow(ctx, table, KeyFor(id), row); err != nil {
		return fmt.Errorf("saving %s: %w", table, err)
	}
	return nil
}

func (s *Service) SaveGTK(ctx context.Context, r GTKResponse) error {
	r.UpdatedAt = timeNow()
	return s.upsertSecondary(ctx, TableGTK, r.ID, r.UserID, r.PartnerName, r.Row())
}

func (s *Service) SaveToxicityRating(ctx context.Context, r Rating) error {
	r.UpdatedAt = timeNow()
	return s.upsertSecondary(ctx, TableRating, r.ID, r.UserID, r.PartnerName, r.row("toxicity_rating"))
}

func (s *Service) SaveFeedback(ctx context.Context, r Rating) error {
	r.UpdatedAt = timeNow()
	return s.upsertSecondary(ctx, TableFeedback, r.ID, r.UserID, r.PartnerName, r.row("feedback_rating"))
}

func (s *Service) SaveInsight(ctx context.Context, r Insight) error {
	r.UpdatedAt = timeNow()
	return s.upsertSecondary(ctx, TableInsights, r.ID, r.UserID, r.PartnerName, r.Row())
}

// TableResult records whether a cascade found a row in one table.
type TableResult struct {
	Table   string `json:"table"`
	Deleted bool   `json:"deleted"`
}

// DeleteReport describes a completed deletion.
type DeleteReport struct {
	ID       int64            `json:"id"`
	Tables   []TableResult    `json:"tables"`
	Strategy summary.Strategy `json:"strategy"`
	Summary  summary.Summary  `json:"summary"`
}

// DeleteSession removes the pair's round from every per-session table and
// reverses its contribution to the summary. Only an existing pair is
// resolved; no free identity is probed for.
func (s *Service) DeleteSession(ctx context.Context, userID, partner string) (DeleteReport, error) {
	report := DeleteReport{}
	sum, strategy, err := s.updater.Remove(ctx, func(ctx context.Context) (summary.Entry, error) {
		entries, rows, err := s.identities(ctx)
		if err != nil {
			return summary.Entry{}, err
		}
		id, ok := identity.Lookup(entries, userID, partner)
		if !ok {
			return summary.Entry{}, fmt.Errorf("%s/%s: %w", userID, partner, ErrSessionNotFound)
		}
		row, _ := storage.Find(rows, KeyFor(id))
		victim := entryFromRow(row)
		report.ID = id
		// The primary row goes last: until it is gone the pair still
		// resolves, so a cascade that failed halfway can be retried.
		for i := len(SessionTables) - 1; i >= 0; i-- {
			table := SessionTables[i]
			deleted, err := s.store.DeleteRow(ctx, table, KeyFor(id))
			if err != nil {
				return summary.Entry{}, fmt.Errorf("deleting from %s: %w", table, err)
			}
			report.Tables = append(report.Tables, TableResult{Table: table, Deleted: deleted})
		}
		return victim, nil
	})
	if err != nil {
		return DeleteReport{}, err
	}
	report.Summary, report.Strategy = sum, strategy
	slog.Info("session deleted", "id", report.ID, "strategy", strategy, "count", sum.Count)
	return report, nil
}

// RecomputeSummary rebuilds the summary from the session rows. The
// returned bool reports whether the stored row had drifted.
func (s *Service) RecomputeSummary(ctx context.Context) (summary.Summary, bool, error) {
	sum, err := s.updater.Reconcile(ctx)
	if errors.Is(err, summary.ErrDesync) {
		return sum, true, nil
	}
	return sum, false, err
}

func (s *Service) LoadSummary(ctx context.Context) (summary.Summary, error) {
	return s.updater.Load(ctx)
}

// Comparison is the current population average, or the configured default
// when the summary is empty or unreadable.
func (s *Service) Comparison(ctx context.Context) decimal.Decimal {
	sum, err := s.updater.Load(ctx)
	if err != nil {
		slog.Warn("summary unreadable, using default comparison", "error", err)
		return s.comparisonDefault
	}
	return sum.Comparison(s.comparisonDefault)
}
