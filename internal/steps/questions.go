package steps

import (
	"context"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/messages"
	"github.com/hazyhaar/redflag/internal/scoring"
	"github.com/hazyhaar/redflag/internal/session"
)

// QuestionView is one question as shown to the user.
type QuestionView struct {
	Key     string   `json:"key"`
	Text    string   `json:"text"`
	Mode    string   `json:"mode"`
	Options []string `json:"options,omitempty"`
	Hint    string   `json:"hint,omitempty"`
}

func questionView(q catalog.Question, mode catalog.ScoringMode, hint string, lang catalog.Language) QuestionView {
	opts, _ := catalog.Levels(q, lang)
	return QuestionView{Key: q.Key(), Text: catalog.Text(q, lang), Mode: string(mode), Options: opts, Hint: hint}
}

type filterStep struct{ d Deps }

func (*filterStep) Name() string { return NameFilters }

func (s *filterStep) View(ctx context.Context, p *session.Progress, page *session.Page) {
	qs, err := s.d.Catalog.Filters(ctx)
	if err != nil {
		catalogFailure(page, p, NameFilters, err)
		return
	}
	page.Payload = filterViews(qs, p.User.Language)
}

func filterViews(qs []catalog.FilterQuestion, lang catalog.Language) []QuestionView {
	out := make([]QuestionView, len(qs))
	for i, q := range qs {
		out[i] = questionView(q, q.Mode, "", lang)
	}
	return out
}

// Run accepts {"answers": {"F1": 2, ...}}. Limit answers are option
// indexes; YES/NO answers are 1 for yes and 0 for no.
func (s *filterStep) Run(ctx context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	qs, err := s.d.Catalog.Filters(ctx)
	if err != nil {
		catalogFailure(page, p, NameFilters, err)
		return false
	}
	page.Payload = filterViews(qs, p.User.Language)

	var req struct {
		Answers map[string]int `json:"answers"`
	}
	if !decodeOrNotify(in, &req, page, p) {
		return false
	}
	answers := make(map[string]int, len(qs))
	for _, q := range qs {
		v, ok := req.Answers[q.Key()]
		if !ok {
			notify(page, p, session.LevelWarning, messages.AnswerAll)
			return false
		}
		if !filterAnswerValid(q, v) {
			notify(page, p, session.LevelWarning, messages.InvalidInput)
			return false
		}
		answers[q.Key()] = v
	}
	violations, err := scoring.ScoreFilters(answers, qs)
	if err != nil {
		catalogFailure(page, p, NameFilters, err)
		return false
	}
	p.FilterAnswers = answers
	p.FilterViolations = violations
	return true
}

func filterAnswerValid(q catalog.FilterQuestion, v int) bool {
	switch q.Mode {
	case catalog.ModeYesNo:
		return v == 0 || v == 1
	default:
		if v < 0 {
			return false
		}
		return len(q.Options.EN) == 0 || v < len(q.Options.EN)
	}
}

type weightedStep struct{ d Deps }

func (*weightedStep) Name() string { return NameWeighted }

// ordered returns the questions in the round's presentation order,
// shuffling once per round.
func (s *weightedStep) ordered(p *session.Progress, qs []catalog.WeightedQuestion) []catalog.WeightedQuestion {
	byID := make(map[int]catalog.WeightedQuestion, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	if len(p.WeightedOrder) == len(qs) {
		out := make([]catalog.WeightedQuestion, 0, len(qs))
		for _, id := range p.WeightedOrder {
			q, ok := byID[id]
			if !ok {
				break
			}
			out = append(out, q)
		}
		if len(out) == len(qs) {
			return out
		}
	}
	out := catalog.Shuffle(qs, s.d.Rand)
	p.WeightedOrder = make([]int, len(out))
	for i, q := range out {
		p.WeightedOrder[i] = q.ID
	}
	return out
}

func (s *weightedStep) views(p *session.Progress, qs []catalog.WeightedQuestion) []QuestionView {
	ordered := s.ordered(p, qs)
	out := make([]QuestionView, len(ordered))
	for i, q := range ordered {
		out[i] = questionView(q, q.Mode, q.Hint, p.User.Language)
	}
	return out
}

func (s *weightedStep) View(ctx context.Context, p *session.Progress, page *session.Page) {
	qs, err := s.d.Catalog.Weighted(ctx)
	if err != nil {
		catalogFailure(page, p, NameWeighted, err)
		return
	}
	page.Payload = s.views(p, qs)
}

// Run accepts {"answers": {"Q1": 7, "Q2": null, ...}}. null marks a
// question not applicable; YES/NO answers are 1 for yes and 0 for no.
func (s *weightedStep) Run(ctx context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	qs, err := s.d.Catalog.Weighted(ctx)
	if err != nil {
		catalogFailure(page, p, NameWeighted, err)
		return false
	}
	page.Payload = s.views(p, qs)

	var req struct {
		Answers map[string]*int `json:"answers"`
	}
	if !decodeOrNotify(in, &req, page, p) {
		return false
	}
	answers := make(map[string]scoring.Answer, len(qs))
	for _, q := range qs {
		if _, err := scoring.MaxValue(q.Mode); err != nil {
			catalogFailure(page, p, NameWeighted, &scoring.ModeError{Key: q.Key(), Mode: q.Mode})
			return false
		}
		v, ok := req.Answers[q.Key()]
		if !ok {
			notify(page, p, session.LevelWarning, messages.AnswerAll)
			return false
		}
		a, valid := WeightedAnswer(q.Mode, v)
		if !valid {
			notify(page, p, session.LevelWarning, messages.InvalidInput)
			return false
		}
		answers[q.Key()] = a
	}
	score, err := scoring.ScoreWeighted(answers, qs)
	if err != nil {
		catalogFailure(page, p, NameWeighted, err)
		return false
	}
	p.WeightedAnswers = answers
	p.ToxicScore = score
	return true
}

// WeightedAnswer converts a submitted weighted answer to its stored form.
// A nil value means not applicable; YES/NO 1 is stored as 7.
func WeightedAnswer(mode catalog.ScoringMode, v *int) (scoring.Answer, bool) {
	if v == nil {
		return scoring.Answer{NotApplicable: true}, true
	}
	switch mode {
	case catalog.ModeYesNo:
		switch *v {
		case 1:
			return scoring.Answer{Value: scoring.BooleanYesScore}, true
		case 0:
			return scoring.Answer{}, true
		}
		return scoring.Answer{}, false
	default:
		if *v < 0 || *v > scoring.RangeMax {
			return scoring.Answer{}, false
		}
		return scoring.Answer{Value: *v}, true
	}
}

type getToKnowStep struct{ d Deps }

func (*getToKnowStep) Name() string { return NameGetToKnow }

func gtkViews(qs []catalog.GetToKnowQuestion, lang catalog.Language) []QuestionView {
	out := make([]QuestionView, len(qs))
	for i, q := range qs {
		out[i] = questionView(q, q.Mode, q.Hint, lang)
	}
	return out
}

func (s *getToKnowStep) View(ctx context.Context, p *session.Progress, page *session.Page) {
	qs, err := s.d.Catalog.GetToKnow(ctx)
	if err != nil {
		catalogFailure(page, p, NameGetToKnow, err)
		return
	}
	page.Payload = gtkViews(qs, p.User.Language)
}

// Run accepts {"answers": {"GTK1": 3, ...}}: 1-based level indexes, or
// 0..10 for questions without levels.
func (s *getToKnowStep) Run(ctx context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	qs, err := s.d.Catalog.GetToKnow(ctx)
	if err != nil {
		catalogFailure(page, p, NameGetToKnow, err)
		return false
	}
	page.Payload = gtkViews(qs, p.User.Language)

	var req struct {
		Answers map[string]int `json:"answers"`
	}
	if !decodeOrNotify(in, &req, page, p) {
		return false
	}
	answers := make(map[string]int, len(qs))
	for _, q := range qs {
		v, ok := req.Answers[q.Key()]
		if !ok {
			notify(page, p, session.LevelWarning, messages.AnswerAll)
			return false
		}
		lo, hi := 0, scoring.RangeMax
		if n := len(q.Levels.EN); n > 0 {
			lo, hi = 1, n
		}
		if v < lo || v > hi {
			notify(page, p, session.LevelWarning, messages.InvalidInput)
			return false
		}
		answers[q.Key()] = v
	}
	p.GTKAnswers = answers
	return true
}

// ratingValid reports whether v is a 1..5 rating.
func ratingValid(v int) bool { return v >= 1 && v <= 5 }

type selfOpinionStep struct{}

func (selfOpinionStep) Name() string { return NameSelfOpinion }

func (selfOpinionStep) Run(_ context.Context, p *session.Progress, in session.Input, page *session.Page) bool {
	var req struct {
		ToxicityRating int `json:"toxicity_rating"`
	}
	if !decodeOrNotify(in, &req, page, p) {
		return false
	}
	if !ratingValid(req.ToxicityRating) {
		notify(page, p, session.LevelWarning, messages.RatingRange)
		return false
	}
	p.ToxicityRating = req.ToxicityRating
	return true
}
