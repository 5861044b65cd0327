package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/scoring"
)

// stubStep completes when ready is true and counts its runs.
type stubStep struct {
	name  string
	ready bool
	runs  int
}

func (s *stubStep) Name() string { return s.name }

func (s *stubStep) Run(_ context.Context, _ *Progress, _ Input, page *Page) bool {
	s.runs++
	if !s.ready {
		page.Notice(LevelError, "catalog_unavailable", "not ready")
	}
	return s.ready
}

var stepNames = []string{
	"Language", "Profile", "PartnerName", "Welcome", "FilterQuestions", "WeightedQuestions",
	"GetToKnow", "SelfOpinion", "Results", "Feedback", "Report",
}

func allReady() (*Controller, []*stubStep) {
	stubs := make([]*stubStep, len(stepNames))
	steps := make([]Step, len(stepNames))
	for i, n := range stepNames {
		stubs[i] = &stubStep{name: n, ready: true}
		steps[i] = stubs[i]
	}
	return NewController(steps...), stubs
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestCycle_AdvancesOneStepPerCycle(t *testing.T) {
	c, stubs := allReady()
	p := NewProgress("u1", t0)
	ctx := context.Background()

	for i := 0; i < len(stepNames); i++ {
		if p.Cursor != i {
			t.Fatalf("before cycle %d: cursor = %d", i, p.Cursor)
		}
		v := c.Cycle(ctx, p, nil)
		if !v.Advanced || v.Index != i+1 {
			t.Fatalf("cycle %d: view = %+v", i, v)
		}
	}
	if !c.Terminal(p) || p.Cursor != len(stepNames) {
		t.Fatalf("cursor = %d, want %d", p.Cursor, len(stepNames))
	}
	for i, s := range stubs {
		if s.runs != 1 {
			t.Errorf("step %d (%s) ran %d times", i, s.name, s.runs)
		}
	}
	v := c.Cycle(ctx, p, nil)
	if !v.Complete || v.Advanced || p.Cursor != len(stepNames) {
		t.Errorf("terminal cycle = %+v", v)
	}
}

func TestCycle_BlockedStepDoesNotAdvance(t *testing.T) {
	c, stubs := allReady()
	stubs[4].ready = false
	p := NewProgress("u1", t0)
	p.Cursor = 4
	for i := 0; i < 3; i++ {
		v := c.Cycle(context.Background(), p, nil)
		if v.Advanced || v.Step != "FilterQuestions" || len(v.Notices) != 1 {
			t.Fatalf("view = %+v", v)
		}
	}
	if p.Cursor != 4 {
		t.Errorf("cursor = %d", p.Cursor)
	}
}

func TestNewRound_OnlyFromTerminal(t *testing.T) {
	c, _ := allReady()
	p := NewProgress("u1", t0)
	p.Cursor = len(stepNames) - 1
	if err := c.NewRound(p, t0); !errors.Is(err, ErrNewRoundNotAllowed) {
		t.Fatalf("err = %v, want ErrNewRoundNotAllowed", err)
	}
	if p.Cursor != len(stepNames)-1 {
		t.Errorf("cursor moved to %d", p.Cursor)
	}
}

func TestNewRound_KeepsProfileClearsRound(t *testing.T) {
	c, _ := allReady()
	p := NewProgress("u1", t0)
	p.User = User{ID: "u1", Name: "Ada", Email: "ada@example.com", Language: catalog.TR}
	p.PartnerName = "Bob"
	p.FilterAnswers["F1"] = 1
	p.WeightedAnswers["Q1"] = scoring.Answer{Value: 9}
	p.GTKAnswers["GTK1"] = 2
	p.WeightedOrder = []int{3, 1, 2}
	p.ToxicScore = scoring.Score{Value: decimal.RequireFromString("0.7"), Defined: true}
	p.FilterViolations = 2
	p.Identity = 99
	p.Saved = Saved{Responses: true, Report: true}
	p.Cursor = len(stepNames)

	later := t0.Add(time.Hour)
	if err := c.NewRound(p, later); err != nil {
		t.Fatal(err)
	}
	if p.Cursor != PartnerStep || p.Round != 2 || !p.SessionStart.Equal(later) {
		t.Errorf("cursor %d round %d start %v", p.Cursor, p.Round, p.SessionStart)
	}
	if p.User.ID != "u1" || p.User.Name != "Ada" || p.User.Email != "ada@example.com" || p.User.Language != catalog.TR {
		t.Errorf("user = %+v", p.User)
	}
	if p.PartnerName != "" || len(p.FilterAnswers) != 0 || len(p.WeightedAnswers) != 0 || len(p.GTKAnswers) != 0 {
		t.Errorf("answers not cleared: %+v", p)
	}
	if p.WeightedOrder != nil || p.ToxicScore.Defined || p.FilterViolations != 0 || p.Identity != 0 || p.Saved != (Saved{}) {
		t.Errorf("round state not cleared: %+v", p)
	}
}

func TestInput_Decode(t *testing.T) {
	var v struct{ A int }
	for _, in := range []Input{nil, Input("  "), Input("null")} {
		ok, err := in.Decode(&v)
		if ok || err != nil {
			t.Errorf("Decode(%q) = %v, %v", in, ok, err)
		}
	}
	ok, err := Input(`{"A":3}`).Decode(&v)
	if !ok || err != nil || v.A != 3 {
		t.Errorf("Decode = %v, %v, %+v", ok, err, v)
	}
	if _, err := Input(`{`).Decode(&v); err == nil {
		t.Error("malformed input accepted")
	}
}

func TestManager_CreateWithAndSweep(t *testing.T) {
	now := t0
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })

	m := NewManager(30 * time.Minute)
	h1, p1 := m.Create()
	h2, _ := m.Create()
	if h1 == h2 || p1.User.ID == "" {
		t.Fatalf("handles %q %q user %q", h1, h2, p1.User.ID)
	}

	now = t0.Add(20 * time.Minute)
	if err := m.With(h1, func(p *Progress) error { p.Cursor = 3; return nil }); err != nil {
		t.Fatal(err)
	}
	if n := m.Sweep(t0.Add(40 * time.Minute)); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if err := m.With(h2, func(*Progress) error { return nil }); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("evicted session err = %v", err)
	}
	var cursor int
	if err := m.With(h1, func(p *Progress) error { cursor = p.Cursor; return nil }); err != nil || cursor != 3 {
		t.Errorf("With = %v cursor %d", err, cursor)
	}
}

func TestManager_WithSerializes(t *testing.T) {
	m := NewManager(0)
	h, _ := m.Create()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.With(h, func(p *Progress) error { p.Cursor++; return nil })
		}()
	}
	wg.Wait()
	var got int
	_ = m.With(h, func(p *Progress) error { got = p.Cursor; return nil })
	if got != 50 {
		t.Errorf("cursor = %d, want 50", got)
	}
}
