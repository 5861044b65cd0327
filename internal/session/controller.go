package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNewRoundNotAllowed is returned when a new round is requested before
// the last step completed.
var ErrNewRoundNotAllowed = errors.New("new round only available after the report")

// PartnerStep is the cursor a new round restarts at.
const PartnerStep = 2

// Input is the raw payload of one render cycle.
type Input json.RawMessage

// Empty reports whether the cycle carried no data.
func (in Input) Empty() bool {
	t := bytes.TrimSpace(in)
	return len(t) == 0 || string(t) == "null"
}

// Decode unmarshals the input into v. An empty input leaves v untouched and
// returns false.
func (in Input) Decode(v any) (bool, error) {
	if in.Empty() {
		return false, nil
	}
	if err := json.Unmarshal(in, v); err != nil {
		return false, err
	}
	return true, nil
}

// Notice levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notice is a user-facing message identified by a message key.
type Notice struct {
	Key   string `json:"key"`
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Page collects what a step wants shown for this cycle.
type Page struct {
	Notices []Notice
	Payload any
}

func (pg *Page) Notice(level, key, text string) {
	pg.Notices = append(pg.Notices, Notice{Key: key, Level: level, Text: text})
}

// Step is one page of the survey. Run consumes the cycle's input and
// reports whether the step's data is complete.
type Step interface {
	Name() string
	Run(ctx context.Context, p *Progress, in Input, page *Page) bool
}

// Viewer is implemented by steps that can describe themselves without
// consuming input. The controller uses it to show the step it just
// advanced to.
type Viewer interface {
	View(ctx context.Context, p *Progress, page *Page)
}

// View is returned to the UI after every cycle.
type View struct {
	Step             string          `json:"step"`
	Index            int             `json:"index"`
	Total            int             `json:"total"`
	Advanced         bool            `json:"advanced"`
	Complete         bool            `json:"complete"`
	ToxicScore       decimal.Decimal `json:"toxic_score"`
	ScoreDefined     bool            `json:"score_defined"`
	FilterViolations int             `json:"filter_violations"`
	Notices          []Notice        `json:"notices,omitempty"`
	Payload          any             `json:"payload,omitempty"`
}

// Controller runs an ordered, linear list of steps.
type Controller struct {
	steps []Step
}

func NewController(steps ...Step) *Controller {
	return &Controller{steps: steps}
}

// Names lists the step names in order.
func (c *Controller) Names() []string {
	out := make([]string, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.Name()
	}
	return out
}

func (c *Controller) Len() int { return len(c.steps) }

// Terminal reports whether every step completed.
func (c *Controller) Terminal(p *Progress) bool {
	return p.Cursor >= len(c.steps)
}

// Cycle runs the current step once and advances at most one step.
func (c *Controller) Cycle(ctx context.Context, p *Progress, in Input) View {
	if c.Terminal(p) {
		return c.view(p, "", false, Page{})
	}
	step := c.steps[p.Cursor]
	var page Page
	advanced := step.Run(ctx, p, in, &page)
	if !advanced {
		return c.view(p, step.Name(), false, page)
	}
	p.Cursor++
	if c.Terminal(p) {
		return c.view(p, "", true, page)
	}
	next := c.steps[p.Cursor]
	if v, ok := next.(Viewer); ok {
		v.View(ctx, p, &page)
	}
	return c.view(p, next.Name(), true, page)
}

// Current describes the current step without running it.
func (c *Controller) Current(ctx context.Context, p *Progress) View {
	if c.Terminal(p) {
		return c.view(p, "", false, Page{})
	}
	step := c.steps[p.Cursor]
	var page Page
	if v, ok := step.(Viewer); ok {
		v.View(ctx, p, &page)
	}
	return c.view(p, step.Name(), false, page)
}

// NewRound restarts at the partner step for another partner, keeping the
// user's profile and language.
func (c *Controller) NewRound(p *Progress, now time.Time) error {
	if !c.Terminal(p) {
		return ErrNewRoundNotAllowed
	}
	p.clearRound()
	p.Cursor = PartnerStep
	p.Round++
	p.SessionStart = now
	return nil
}

func (c *Controller) view(p *Progress, name string, advanced bool, page Page) View {
	return View{
		Step:             name,
		Index:            p.Cursor,
		Total:            len(c.steps),
		Advanced:         advanced,
		Complete:         c.Terminal(p),
		ToxicScore:       p.ToxicScore.OrZero(),
		ScoreDefined:     p.ToxicScore.Defined,
		FilterViolations: p.FilterViolations,
		Notices:          page.Notices,
		Payload:          page.Payload,
	}
}
