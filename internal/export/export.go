// CLAUDE:SUMMARY JSONL export of finalized survey rounds joined with their per-session tables, with salted user anonymization
// Package export provides JSONL dataset export with anonymization.
package export

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/hazyhaar/redflag/internal/scoring"
	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/survey"
)

const version = "1.0"

// SessionExport is one finalized round in the export.
type SessionExport struct {
	ExportedAt       string                    `json:"exported_at"`
	Version          string                    `json:"export_version"`
	ID               string                    `json:"id"`
	UserID           string                    `json:"user_id"` // anonymized unless raw
	Name             string                    `json:"name,omitempty"`
	Email            string                    `json:"email,omitempty"`
	PartnerName      string                    `json:"partner_name,omitempty"`
	Language         string                    `json:"language"`
	ToxicScore       *string                   `json:"toxic_score"`
	FilterViolations int                       `json:"filter_violations"`
	FilterResponses  map[string]int            `json:"filter_responses"`
	RedFlagResponses map[string]scoring.Answer `json:"redflag_responses"`
	GTKResponses     map[string]int            `json:"gtk_responses,omitempty"`
	ToxicityRating   string                    `json:"toxicity_rating,omitempty"`
	FeedbackRating   string                    `json:"feedback_rating,omitempty"`
	InsightStatus    string                    `json:"insight_status,omitempty"`
	InsightModel     string                    `json:"insight_model,omitempty"`
	SessionStart     *time.Time                `json:"session_start_time,omitempty"`
	ResultStart      *time.Time                `json:"result_start_time,omitempty"`
	SessionEnd       *time.Time                `json:"session_end_time,omitempty"`
}

// Options controls an export.
type Options struct {
	// Raw keeps names, emails, partner names and real identifiers.
	Raw bool
}

// Exporter produces JSONL exports from the storage port.
type Exporter struct {
	store storage.Store
}

func NewExporter(store storage.Store) *Exporter {
	return &Exporter{store: store}
}

// Export writes one JSON line per finalized round and returns the count.
func (e *Exporter) Export(ctx context.Context, w io.Writer, opts Options) (int, error) {
	rows, err := e.store.LoadTable(ctx, survey.TableResponses)
	if err != nil {
		return 0, fmt.Errorf("loading %s: %w", survey.TableResponses, err)
	}
	side := map[string]map[string]storage.Row{}
	for _, table := range survey.SessionTables[1:] {
		byID, err := e.index(ctx, table)
		if err != nil {
			return 0, err
		}
		side[table] = byID
	}

	anon := newAnonMap()
	now := time.Now().UTC().Format(time.RFC3339)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	n := 0
	for i, row := range rows {
		r, err := survey.ResponseFromRow(row)
		if err != nil {
			slog.Warn("export: skipping session row", "row", i, "error", err)
			continue
		}
		id := strconv.FormatInt(r.ID, 10)
		rec := SessionExport{
			ExportedAt:       now,
			Version:          version,
			ID:               id,
			UserID:           r.UserID,
			Language:         string(r.Language),
			FilterViolations: r.FilterViolations,
			FilterResponses:  r.FilterResponses,
			RedFlagResponses: r.RedFlagResponses,
			ToxicityRating:   side[survey.TableRating][id].Value("toxicity_rating"),
			FeedbackRating:   side[survey.TableFeedback][id].Value("feedback_rating"),
			InsightStatus:    side[survey.TableInsights][id].Value("status"),
			InsightModel:     side[survey.TableInsights][id].Value("model_name"),
			SessionStart:     timePtr(r.SessionStart),
			ResultStart:      timePtr(r.ResultStart),
			SessionEnd:       timePtr(r.SessionEnd),
		}
		if r.ToxicScore.Defined {
			s := r.ToxicScore.Value.String()
			rec.ToxicScore = &s
		}
		if gtk, ok := side[survey.TableGTK][id]; ok {
			if err := json.Unmarshal([]byte(gtk.Value("responses")), &rec.GTKResponses); err != nil {
				slog.Debug("export: unreadable gtk responses", "id", id, "error", err)
			}
		}
		if opts.Raw {
			rec.Name, rec.Email, rec.PartnerName = r.Name, r.Email, r.PartnerName
		} else {
			rec.UserID = anon.get(r.UserID)
			rec.ID = anon.get("session:" + id)
		}
		if err := enc.Encode(rec); err != nil {
			return n, fmt.Errorf("writing export: %w", err)
		}
		n++
	}
	return n, nil
}

func (e *Exporter) index(ctx context.Context, table string) (map[string]storage.Row, error) {
	rows, err := e.store.LoadTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", table, err)
	}
	out := make(map[string]storage.Row, len(rows))
	for _, r := range rows {
		out[r.Value("id")] = r
	}
	return out, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// anonMap maps real identifiers to randomized stable IDs within one export.
type anonMap struct {
	mapping map[string]string
	salt    string
}

func newAnonMap() *anonMap {
	salt := make([]byte, 16)
	rand.Read(salt)
	return &anonMap{
		mapping: make(map[string]string),
		salt:    hex.EncodeToString(salt),
	}
}

func (m *anonMap) get(realID string) string {
	if anon, ok := m.mapping[realID]; ok {
		return anon
	}
	hash := sha256.Sum256([]byte(m.salt + realID))
	anon := "anon_" + hex.EncodeToString(hash[:6])
	m.mapping[realID] = anon
	return anon
}
