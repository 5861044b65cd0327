// CLAUDE:SUMMARY Per-visitor survey progress — cursor, profile, per-round answers, computed scores and saved flags, partial reset for a new round
// Package session holds the transient state of one visitor and the linear
// step controller that advances it.
package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/scoring"
)

// User is the part of the progress that survives a new round.
type User struct {
	ID       string           `json:"user_id"`
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Language catalog.Language `json:"language"`
}

// Saved tracks which per-round records already reached storage.
type Saved struct {
	Responses bool `json:"responses"`
	GTK       bool `json:"gtk"`
	Rating    bool `json:"rating"`
	Feedback  bool `json:"feedback"`
	Insight   bool `json:"insight"`
	Report    bool `json:"report"`
}

// Progress is the state one visitor accumulates. Each step writes only its
// own fields.
type Progress struct {
	Cursor int  `json:"cursor"`
	User   User `json:"user"`

	PartnerName     string                    `json:"partner_name"`
	FilterAnswers   map[string]int            `json:"filter_answers"`
	WeightedAnswers map[string]scoring.Answer `json:"weighted_answers"`
	GTKAnswers      map[string]int            `json:"gtk_answers"`
	ToxicityRating  int                       `json:"toxicity_rating"`
	FeedbackRating  int                       `json:"feedback_rating"`
	EmailReport     bool                      `json:"email_report"`

	// WeightedOrder caches the shuffled presentation order of weighted
	// question ids for the round.
	WeightedOrder []int `json:"-"`

	FilterViolations int             `json:"filter_violations"`
	ToxicScore       scoring.Score   `json:"toxic_score"`
	Comparison       decimal.Decimal `json:"comparison"`
	Identity         int64           `json:"identity"`

	Saved         Saved  `json:"saved"`
	InsightText   string `json:"insight,omitempty"`
	InsightStatus string `json:"insight_status,omitempty"`
	ReportStatus  string `json:"report_status,omitempty"`
	InsightModel  string `json:"-"`
	InsightPrompt string `json:"-"`

	Round        int       `json:"round"`
	SessionStart time.Time `json:"session_start_time"`
	ResultStart  time.Time `json:"result_start_time,omitzero"`
	SessionEnd   time.Time `json:"session_end_time,omitzero"`
}

// NewProgress starts a visitor at the first step.
func NewProgress(userID string, now time.Time) *Progress {
	p := &Progress{User: User{ID: userID, Language: catalog.EN}, Round: 1, SessionStart: now}
	p.clearRound()
	return p
}

func (p *Progress) clearRound() {
	p.PartnerName = ""
	p.FilterAnswers = map[string]int{}
	p.WeightedAnswers = map[string]scoring.Answer{}
	p.GTKAnswers = map[string]int{}
	p.ToxicityRating = 0
	p.FeedbackRating = 0
	p.EmailReport = false
	p.WeightedOrder = nil
	p.FilterViolations = 0
	p.ToxicScore = scoring.Score{}
	p.Comparison = decimal.Zero
	p.Identity = 0
	p.Saved = Saved{}
	p.InsightText, p.InsightStatus, p.ReportStatus = "", "", ""
	p.InsightModel, p.InsightPrompt = "", ""
	p.ResultStart, p.SessionEnd = time.Time{}, time.Time{}
}

// Fails reports whether the round's score is above the comparison average.
func (p *Progress) Fails() bool {
	return p.ToxicScore.Exceeds(p.Comparison)
}
