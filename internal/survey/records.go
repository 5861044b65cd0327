// CLAUDE:SUMMARY Typed per-session records with declared column order — responses, get-to-know, ratings, feedback, insights
package survey

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/scoring"
	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/summary"
)

// Per-session tables, all keyed by column "id".
const (
	TableResponses = "SessionResponses"
	TableGTK       = "SessionGTKResponses"
	TableRating    = "SessionToxicityRating"
	TableFeedback  = "SessionFeedback"
	TableInsights  = "SessionInsights"
)

// SessionTables lists every per-session table, primary table first.
var SessionTables = []string{TableResponses, TableGTK, TableRating, TableFeedback, TableInsights}

// KeyFor is the storage key of a session identity.
func KeyFor(id int64) storage.Key {
	return storage.KeyOf("id", strconv.FormatInt(id, 10))
}

// SessionResponse is the finalized survey of one (user, partner) round.
type SessionResponse struct {
	ID               int64
	UserID           string
	Name             string
	Email            string
	PartnerName      string
	Language         catalog.Language
	ToxicScore       scoring.Score
	FilterViolations int
	SessionStart     time.Time
	ResultStart      time.Time
	SessionEnd       time.Time
	FilterResponses  map[string]int
	RedFlagResponses map[string]scoring.Answer
	UpdatedAt        time.Time
}

// Entry is the record as seen by the population summary. An undefined
// score counts as zero.
func (r SessionResponse) Entry() summary.Entry {
	return summary.Entry{Score: r.ToxicScore.OrZero(), Violations: r.FilterViolations}
}

// entryFromRow reads the summary entry straight from the score columns,
// for rows whose answer maps do not decode.
func entryFromRow(row storage.Row) summary.Entry {
	e := summary.Entry{Score: decimal.Zero, Violations: atoi(row.Value("filter_violations"))}
	if v, err := decimal.NewFromString(strings.TrimSpace(row.Value("toxic_score"))); err == nil {
		e.Score = v
	}
	return e
}

func (r SessionResponse) Row() storage.Row {
	score := ""
	if r.ToxicScore.Defined {
		score = r.ToxicScore.Value.String()
	}
	return storage.Row{
		{Name: "id", Value: strconv.FormatInt(r.ID, 10)},
		{Name: "user_id", Value: r.UserID},
		{Name: "name", Value: r.Name},
		{Name: "email", Value: r.Email},
		{Name: "partner_name", Value: r.PartnerName},
		{Name: "language", Value: string(r.Language)},
		{Name: "toxic_score", Value: score},
		{Name: "filter_violations", Value: strconv.Itoa(r.FilterViolations)},
		{Name: "session_start_time", Value: formatTime(r.SessionStart)},
		{Name: "result_start_time", Value: formatTime(r.ResultStart)},
		{Name: "session_end_time", Value: formatTime(r.SessionEnd)},
		{Name: "filter_responses", Value: encodeInts(r.FilterResponses)},
		{Name: "redflag_responses", Value: encodeAnswers(r.RedFlagResponses)},
		{Name: "updated_at", Value: formatTime(r.UpdatedAt)},
	}
}

// ResponseFromRow decodes a SessionResponses row. Malformed answer maps are
// an error; a malformed score reads as undefined.
func ResponseFromRow(row storage.Row) (SessionResponse, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(row.Value("id")), 10, 64)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("session id %q: %w", row.Value("id"), err)
	}
	r := SessionResponse{
		ID:           id,
		UserID:       row.Value("user_id"),
		Name:         row.Value("name"),
		Email:        row.Value("email"),
		PartnerName:  row.Value("partner_name"),
		Language:     catalog.Language(row.Value("language")),
		SessionStart: parseTime(row.Value("session_start_time")),
		ResultStart:  parseTime(row.Value("result_start_time")),
		SessionEnd:   parseTime(row.Value("session_end_time")),
		UpdatedAt:    parseTime(row.Value("updated_at")),
	}
	if v := strings.TrimSpace(row.Value("toxic_score")); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			r.ToxicScore = scoring.Score{Value: d, Defined: true}
		}
	}
	r.FilterViolations = atoi(row.Value("filter_violations"))
	if r.FilterResponses, err = decodeInts(row.Value("filter_responses")); err != nil {
		return SessionResponse{}, fmt.Errorf("session %d filter_responses: %w", id, err)
	}
	if r.RedFlagResponses, err = decodeAnswers(row.Value("redflag_responses")); err != nil {
		return SessionResponse{}, fmt.Errorf("session %d redflag_responses: %w", id, err)
	}
	return r, nil
}

// GTKResponse holds the get-to-know answers of a round.
type GTKResponse struct {
	ID          int64
	UserID      string
	PartnerName string
	Responses   map[string]int
	UpdatedAt   time.Time
}

func (r GTKResponse) Row() storage.Row {
	return storage.Row{
		{Name: "id", Value: strconv.FormatInt(r.ID, 10)},
		{Name: "user_id", Value: r.UserID},
		{Name: "partner_name", Value: r.PartnerName},
		{Name: "responses", Value: encodeInts(r.Responses)},
		{Name: "updated_at", Value: formatTime(r.UpdatedAt)},
	}
}

// Rating is a 1..5 self-assessment; the same shape serves the toxicity
// opinion and the feedback tables.
type Rating struct {
	ID          int64
	UserID      string
	PartnerName string
	Value       int
	UpdatedAt   time.Time
}

func (r Rating) row(column string) storage.Row {
	return storage.Row{
		{Name: "id", Value: strconv.FormatInt(r.ID, 10)},
		{Name: "user_id", Value: r.UserID},
		{Name: "partner_name", Value: r.PartnerName},
		{Name: column, Value: strconv.Itoa(r.Value)},
		{Name: "updated_at", Value: formatTime(r.UpdatedAt)},
	}
}

// Insight is a generated narrative and the inputs it was generated from.
type Insight struct {
	ID               int64
	UserID           string
	PartnerName      string
	Language         catalog.Language
	ToxicScore       decimal.Decimal
	AvgScore         decimal.Decimal
	FilterViolations int
	ViolatedFilters  []string
	RedFlagQuestions []string
	RedFlagRatings   []int
	Model            string
	Prompt           string
	Text             string
	Status           string
	UpdatedAt        time.Time
}

func (r Insight) Row() storage.Row {
	ratings := make([]string, len(r.RedFlagRatings))
	for i, v := range r.RedFlagRatings {
		ratings[i] = strconv.Itoa(v)
	}
	return storage.Row{
		{Name: "id", Value: strconv.FormatInt(r.ID, 10)},
		{Name: "user_id", Value: r.UserID},
		{Name: "partner_name", Value: r.PartnerName},
		{Name: "language", Value: string(r.Language)},
		{Name: "toxic_score", Value: r.ToxicScore.String()},
		{Name: "avg_toxic_score", Value: r.AvgScore.String()},
		{Name: "filter_violations", Value: strconv.Itoa(r.FilterViolations)},
		{Name: "violated_filter_questions", Value: strings.Join(r.ViolatedFilters, "|")},
		{Name: "redflag_questions", Value: strings.Join(r.RedFlagQuestions, "|")},
		{Name: "redflag_ratings", Value: strings.Join(ratings, "|")},
		{Name: "model_name", Value: r.Model},
		{Name: "prompt_text", Value: r.Prompt},
		{Name: "generated_insight", Value: r.Text},
		{Name: "insight_length", Value: strconv.Itoa(len(strings.Fields(r.Text)))},
		{Name: "status", Value: r.Status},
		{Name: "updated_at", Value: formatTime(r.UpdatedAt)},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func atoi(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return int(d.IntPart())
	}
	return 0
}

func encodeInts(m map[string]int) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeInts(s string) (map[string]int, error) {
	out := map[string]int{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// encodeAnswers writes not-applicable answers as an empty string.
func encodeAnswers(m map[string]scoring.Answer) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		if a := m[k]; a.NotApplicable {
			b.WriteString(`""`)
		} else {
			b.WriteString(strconv.Itoa(a.Value))
		}
	}
	b.WriteByte('}')
	return b.String()
}

func decodeAnswers(s string) (map[string]scoring.Answer, error) {
	out := map[string]scoring.Answer{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		switch string(v) {
		case `""`, "null":
			out[k] = scoring.Answer{NotApplicable: true}
			continue
		}
		n, err := decimal.NewFromString(string(v))
		if err != nil || !n.IsInteger() {
			return nil, fmt.Errorf("answer %s: not an integer: %s", k, v)
		}
		out[k] = scoring.Answer{Value: int(n.IntPart())}
	}
	return out, nil
}
