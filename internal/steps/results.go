package steps

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/email"
	"github.com/hazyhaar/redflag/internal/insight"
	"github.com/hazyhaar/redflag/internal/messages"
	"github.com/hazyhaar/redflag/internal/scoring"
	"github.com/hazyhaar/redflag/internal/session"
	"github.com/hazyhaar/redflag/internal/survey"
)

// Analysis is the result breakdown shown on the results and report pages.
type Analysis struct {
	Score            decimal.Decimal         `json:"toxic_score"`
	ScoreDefined     bool                    `json:"score_defined"`
	ScorePercent     decimal.Decimal         `json:"toxic_score_percent"`
	Average          decimal.Decimal         `json:"average"`
	AveragePercent   decimal.Decimal         `json:"average_percent"`
	Compared         bool                    `json:"compared"`
	Fails            bool                    `json:"fails"`
	FilterViolations int                     `json:"filter_violations"`
	Categories       []scoring.CategoryScore `json:"categories,omitempty"`
	RedFlags         []scoring.RedFlag       `json:"red_flags,omitempty"`
	Violations       []scoring.Violation     `json:"violations,omitempty"`
}

func analyze(ctx context.Context, d Deps, p *session.Progress) (Analysis, error) {
	weighted, err := d.Catalog.Weighted(ctx)
	if err != nil {
		return Analysis{}, err
	}
	filters, err := d.Catalog.Filters(ctx)
	if err != nil {
		return Analysis{}, err
	}
	lang := p.User.Language
	return Analysis{
		Score:            p.ToxicScore.OrZero(),
		ScoreDefined:     p.ToxicScore.Defined,
		ScorePercent:     p.ToxicScore.Percent(),
		Average:          p.Comparison,
		AveragePercent:   p.Comparison.Mul(decimal.NewFromInt(100)).Round(1),
		Compared:         p.Saved.Responses,
		Fails:            p.Fails(),
		FilterViolations: p.FilterViolations,
		Categories:       scoring.CategoryScores(p.WeightedAnswers, weighted, d.Catalog.CategoryNames(ctx, lang)),
		RedFlags:         scoring.TopRedFlags(p.WeightedAnswers, weighted, lang, d.TopRedFlagCount, d.MinRedFlagRating),
		Violations:       scoring.ViolatedFilters(p.FilterAnswers, filters, lang),
	}, nil
}

// resultsStep finalizes the round. Every cycle on the page retries the
// saves that have not reached storage yet.
type resultsStep struct{ d Deps }

func (*resultsStep) Name() string { return NameResults }

func (s *resultsStep) View(ctx context.Context, p *session.Progress, page *session.Page) {
	s.saveAndShow(ctx, p, page)
}

func (s *resultsStep) Run(ctx context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	wasSaved := roundSaved(p)
	saved := s.saveAndShow(ctx, p, page)
	// a round saved during this cycle is shown before moving on
	return saved && wasSaved && !in.Empty()
}

func roundSaved(p *session.Progress) bool {
	return p.Saved.Responses && p.Saved.GTK && p.Saved.Rating
}

func (s *resultsStep) saveAndShow(ctx context.Context, p *session.Progress, page *session.Page) bool {
	wasSaved := roundSaved(p)
	saved := s.save(ctx, p, page)
	s.show(ctx, p, page)
	if saved && !wasSaved {
		notify(page, p, session.LevelInfo, messages.Saved)
	}
	return saved
}

func (s *resultsStep) show(ctx context.Context, p *session.Progress, page *session.Page) {
	a, err := analyze(ctx, s.d, p)
	if err != nil {
		catalogFailure(page, p, NameResults, err)
		return
	}
	page.Payload = a
	switch {
	case !p.ToxicScore.Defined:
		notify(page, p, session.LevelInfo, messages.ScoreUndefined)
	case !a.Compared:
	case a.Fails:
		notify(page, p, session.LevelWarning, messages.ScoreFail)
	default:
		notify(page, p, session.LevelInfo, messages.ScorePass)
	}
	if p.FilterViolations > 0 {
		notify(page, p, session.LevelWarning, messages.FilterFail)
	} else {
		notify(page, p, session.LevelInfo, messages.FilterPass)
	}
}

func (s *resultsStep) save(ctx context.Context, p *session.Progress, page *session.Page) bool {
	now := timeNow()
	if p.ResultStart.IsZero() {
		p.ResultStart = now
	}
	if !p.Saved.Responses {
		p.SessionEnd = now
		f, err := s.d.Recorder.Finalize(ctx, survey.SessionResponse{
			UserID:           p.User.ID,
			Name:             p.User.Name,
			Email:            p.User.Email,
			PartnerName:      p.PartnerName,
			Language:         p.User.Language,
			ToxicScore:       p.ToxicScore,
			FilterViolations: p.FilterViolations,
			SessionStart:     p.SessionStart,
			ResultStart:      p.ResultStart,
			SessionEnd:       p.SessionEnd,
			FilterResponses:  p.FilterAnswers,
			RedFlagResponses: p.WeightedAnswers,
		})
		if err != nil {
			return saveFailed(page, p, survey.TableResponses, err)
		}
		p.Identity, p.Comparison = f.ID, f.Comparison
		p.Saved.Responses = true
	}
	if !p.Saved.GTK {
		err := s.d.Recorder.SaveGTK(ctx, survey.GTKResponse{
			ID: p.Identity, UserID: p.User.ID, PartnerName: p.PartnerName, Responses: p.GTKAnswers,
		})
		if err != nil {
			return saveFailed(page, p, survey.TableGTK, err)
		}
		p.Saved.GTK = true
	}
	if !p.Saved.Rating {
		err := s.d.Recorder.SaveToxicityRating(ctx, survey.Rating{
			ID: p.Identity, UserID: p.User.ID, PartnerName: p.PartnerName, Value: p.ToxicityRating,
		})
		if err != nil {
			return saveFailed(page, p, survey.TableRating, err)
		}
		p.Saved.Rating = true
	}
	return true
}

func saveFailed(page *session.Page, p *session.Progress, table string, err error) bool {
	slog.Warn("save failed", "table", table, "user_id", p.User.ID, "error", err)
	notify(page, p, session.LevelWarning, messages.SaveFailed)
	return false
}

type feedbackStep struct{ d Deps }

func (*feedbackStep) Name() string { return NameFeedback }

// Run accepts {"feedback_rating": 1..5}. A failed save keeps the rating so
// the next cycle can retry.
func (s *feedbackStep) Run(ctx context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	var req struct {
		FeedbackRating *int `json:"feedback_rating"`
	}
	if !decodeOrNotify(in, &req, page, p) {
		return false
	}
	if req.FeedbackRating != nil {
		if !ratingValid(*req.FeedbackRating) {
			notify(page, p, session.LevelWarning, messages.RatingRange)
			return false
		}
		if *req.FeedbackRating != p.FeedbackRating {
			p.FeedbackRating = *req.FeedbackRating
			p.Saved.Feedback = false
		}
	}
	if !ratingValid(p.FeedbackRating) {
		notify(page, p, session.LevelWarning, messages.RatingRange)
		return false
	}
	if !p.Saved.Feedback {
		err := s.d.Recorder.SaveFeedback(ctx, survey.Rating{
			ID: p.Identity, UserID: p.User.ID, PartnerName: p.PartnerName, Value: p.FeedbackRating,
		})
		if err != nil {
			return saveFailed(page, p, survey.TableFeedback, err)
		}
		p.Saved.Feedback = true
	}
	return true
}

// ReportView is the payload of the report page.
type ReportView struct {
	Analysis
	Insight       string `json:"insight,omitempty"`
	InsightStatus string `json:"insight_status"`
	CanEmail      bool   `json:"can_email"`
	ReportStatus  string `json:"report_status,omitempty"`
}

// reportStep generates the insight once per round and optionally emails
// the report.
type reportStep struct{ d Deps }

func (*reportStep) Name() string { return NameReport }

func (s *reportStep) View(ctx context.Context, p *session.Progress, page *session.Page) {
	s.prepare(ctx, p, page)
}

// Run accepts {"email_report": true|false}.
func (s *reportStep) Run(ctx context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	a, ok := s.prepare(ctx, p, page)
	if !ok {
		return false
	}
	var req struct {
		EmailReport bool `json:"email_report"`
	}
	if !decodeOrNotify(in, &req, page, p) {
		return false
	}
	p.EmailReport = req.EmailReport
	if !p.EmailReport || p.Saved.Report || p.User.Email == "" {
		return true
	}

	out := email.Outcome{Status: email.StatusDisabled}
	if s.d.Mailer != nil {
		out = s.d.Mailer.Send(ctx, email.Report{
			To:               p.User.Email,
			UserName:         p.User.Name,
			PartnerName:      p.PartnerName,
			Language:         p.User.Language,
			Score:            a.Score,
			Average:          a.Average,
			Fails:            a.Fails,
			FilterViolations: a.FilterViolations,
			Categories:       a.Categories,
			Insight:          p.InsightText,
		})
	}
	p.ReportStatus = string(out.Status)
	switch out.Status {
	case email.StatusSent:
		p.Saved.Report = true
		notify(page, p, session.LevelInfo, messages.ReportSent)
	case email.StatusFailed:
		notify(page, p, session.LevelWarning, messages.ReportFailed)
		return false
	}
	return true
}

func (s *reportStep) prepare(ctx context.Context, p *session.Progress, page *session.Page) (Analysis, bool) {
	a, err := analyze(ctx, s.d, p)
	if err != nil {
		catalogFailure(page, p, NameReport, err)
		return Analysis{}, false
	}
	if p.InsightStatus == "" {
		s.generate(ctx, p, a)
	}
	// disabled outcomes are not recorded
	if p.InsightStatus != "" && p.InsightStatus != string(insight.StatusDisabled) && !p.Saved.Insight {
		s.persist(ctx, p, a)
	}
	if p.InsightStatus == string(insight.StatusFailed) {
		notify(page, p, session.LevelInfo, messages.InsightUnavailable)
	}
	page.Payload = ReportView{
		Analysis:      a,
		Insight:       p.InsightText,
		InsightStatus: p.InsightStatus,
		CanEmail:      p.User.Email != "",
		ReportStatus:  p.ReportStatus,
	}
	return a, true
}

func (s *reportStep) generate(ctx context.Context, p *session.Progress, a Analysis) {
	out := insight.Outcome{Status: insight.StatusDisabled}
	if s.d.Insight != nil {
		out = s.d.Insight.Generate(ctx, insight.Request{
			UserName:         p.User.Name,
			PartnerName:      p.PartnerName,
			Language:         p.User.Language,
			Score:            a.Score,
			Average:          a.Average,
			FilterViolations: a.FilterViolations,
			RedFlags:         a.RedFlags,
			Violations:       a.Violations,
		})
	}
	p.InsightStatus, p.InsightText = string(out.Status), out.Text
	p.InsightModel, p.InsightPrompt = out.Model, out.Prompt
}

func (s *reportStep) persist(ctx context.Context, p *session.Progress, a Analysis) {
	rec := survey.Insight{
		ID:               p.Identity,
		UserID:           p.User.ID,
		PartnerName:      p.PartnerName,
		Language:         p.User.Language,
		ToxicScore:       a.Score,
		AvgScore:         a.Average,
		FilterViolations: a.FilterViolations,
		Model:            p.InsightModel,
		Prompt:           p.InsightPrompt,
		Text:             p.InsightText,
		Status:           p.InsightStatus,
	}
	for _, v := range a.Violations {
		rec.ViolatedFilters = append(rec.ViolatedFilters, v.Text)
	}
	for _, f := range a.RedFlags {
		rec.RedFlagQuestions = append(rec.RedFlagQuestions, f.Text)
		rec.RedFlagRatings = append(rec.RedFlagRatings, f.Rating)
	}
	if err := s.d.Recorder.SaveInsight(ctx, rec); err != nil {
		slog.Warn("insight not saved", "user_id", p.User.ID, "error", err)
		return
	}
	p.Saved.Insight = true
}
