// CLAUDE:SUMMARY The eleven survey steps — each validates its own input, writes only its own Progress fields and reports completion
// Package steps implements the survey pages run by session.Controller.
package steps

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/email"
	"github.com/hazyhaar/redflag/internal/insight"
	"github.com/hazyhaar/redflag/internal/messages"
	"github.com/hazyhaar/redflag/internal/scoring"
	"github.com/hazyhaar/redflag/internal/session"
	"github.com/hazyhaar/redflag/internal/survey"
)

// Step names, in controller order.
const (
	NameLanguage    = "language"
	NameProfile     = "profile"
	NamePartner     = "partner_name"
	NameWelcome     = "welcome"
	NameFilters     = "filter_questions"
	NameWeighted    = "weighted_questions"
	NameGetToKnow   = "get_to_know"
	NameSelfOpinion = "self_opinion"
	NameResults     = "results"
	NameFeedback    = "feedback"
	NameReport      = "report"
)

var timeNow = time.Now

// Catalog is the read side of the question catalog.
type Catalog interface {
	Filters(ctx context.Context) ([]catalog.FilterQuestion, error)
	Weighted(ctx context.Context) ([]catalog.WeightedQuestion, error)
	GetToKnow(ctx context.Context) ([]catalog.GetToKnowQuestion, error)
	CategoryNames(ctx context.Context, lang catalog.Language) map[int]string
}

// Recorder persists finalized rounds.
type Recorder interface {
	Finalize(ctx context.Context, r survey.SessionResponse) (survey.Finalized, error)
	SaveGTK(ctx context.Context, r survey.GTKResponse) error
	SaveToxicityRating(ctx context.Context, r survey.Rating) error
	SaveFeedback(ctx context.Context, r survey.Rating) error
	SaveInsight(ctx context.Context, r survey.Insight) error
}

type Insighter interface {
	Generate(ctx context.Context, r insight.Request) insight.Outcome
}

type Mailer interface {
	Send(ctx context.Context, r email.Report) email.Outcome
}

// Deps wires the steps to their collaborators. Insight and Mailer may be
// nil; the features then report disabled.
type Deps struct {
	Catalog          Catalog
	Recorder         Recorder
	Insight          Insighter
	Mailer           Mailer
	TopRedFlagCount  int
	MinRedFlagRating float64
	// Rand drives the weighted question order; nil uses the global source.
	Rand *rand.Rand
}

// New returns the survey steps in order.
func New(d Deps) []session.Step {
	return []session.Step{
		languageStep{},
		profileStep{},
		partnerStep{},
		welcomeStep{},
		&filterStep{d: d},
		&weightedStep{d: d},
		&getToKnowStep{d: d},
		selfOpinionStep{},
		&resultsStep{d: d},
		&feedbackStep{d: d},
		&reportStep{d: d},
	}
}

// notify adds a localized notice for key.
func notify(page *session.Page, p *session.Progress, level, key string) {
	page.Notice(level, key, messages.Text(key, p.User.Language))
}

// catalogFailure turns a catalog or scoring error into the matching notice.
func catalogFailure(page *session.Page, p *session.Progress, step string, err error) {
	key := messages.CatalogUnavailable
	if errors.Is(err, scoring.ErrInvalidScoringMode) {
		key = messages.ScoringConfig
	}
	slog.Error("step blocked", "step", step, "error", err)
	notify(page, p, session.LevelError, key)
}

func decodeOrNotify(in session.Input, v any, page *session.Page, p *session.Progress) bool {
	ok, err := in.Decode(v)
	if err != nil {
		notify(page, p, session.LevelWarning, messages.InvalidInput)
		return false
	}
	return ok
}
