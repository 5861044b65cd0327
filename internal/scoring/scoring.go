// CLAUDE:SUMMARY Scoring engine — filter violation count and weighted toxicity score in exact decimal with sign-sensitive denominator
// Package scoring turns raw survey answers into a filter violation count and
// a normalized toxicity score. All score arithmetic is decimal.
package scoring

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/catalog"
)

// ErrInvalidScoringMode flags catalog data with an unknown scoring mode.
var ErrInvalidScoringMode = errors.New("invalid scoring mode")

// ModeError names the question carrying the unknown mode.
type ModeError struct {
	Key  string
	Mode catalog.ScoringMode
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("question %s: %v %q", e.Key, ErrInvalidScoringMode, string(e.Mode))
}

func (e *ModeError) Unwrap() error { return ErrInvalidScoringMode }

// Maximum answer values per weighted scoring mode. YES/NO questions use 7,
// not 10; historical scores depend on this.
const (
	RangeMax        = 10
	BooleanYesScore = 7
)

// Answer is one weighted-question response. NotApplicable excludes the
// question from scoring.
type Answer struct {
	Value         int  `json:"value"`
	NotApplicable bool `json:"not_applicable,omitempty"`
}

// Score is a weighted toxicity score. Defined is false when no question was
// applicable; such a score is treated as zero downstream.
type Score struct {
	Value      decimal.Decimal `json:"value"`
	Defined    bool            `json:"defined"`
	Applicable int             `json:"applicable"`
}

// OrZero returns the value, or zero for an undefined score.
func (s Score) OrZero() decimal.Decimal {
	if !s.Defined {
		return decimal.Zero
	}
	return s.Value
}

// Exceeds reports whether a defined score is strictly above avg.
func (s Score) Exceeds(avg decimal.Decimal) bool {
	return s.Defined && s.Value.GreaterThan(avg)
}

// Percent is the score scaled to 0-100 and rounded to one decimal.
func (s Score) Percent() decimal.Decimal {
	return s.OrZero().Mul(decimal.NewFromInt(100)).Round(1)
}

// ScoreFilters counts filter questions whose recorded answer is at or above
// the upper limit. Unanswered questions are ignored.
func ScoreFilters(responses map[string]int, questions []catalog.FilterQuestion) (int, error) {
	violations := 0
	for _, q := range questions {
		switch q.Mode {
		case catalog.ModeLimit, catalog.ModeYesNo:
		default:
			return 0, &ModeError{Key: q.Key(), Mode: q.Mode}
		}
		v, ok := responses[q.Key()]
		if !ok {
			continue
		}
		if v >= q.UpperLimit {
			violations++
		}
	}
	return violations, nil
}

// MaxValue is the highest answer a weighted question of mode can take.
func MaxValue(mode catalog.ScoringMode) (int, error) {
	switch mode {
	case catalog.ModeRange:
		return RangeMax, nil
	case catalog.ModeYesNo:
		return BooleanYesScore, nil
	}
	return 0, ErrInvalidScoringMode
}

// ScoreWeighted computes sum(w*a) / sum(w*max*sign(w)) over the applicable
// answers. Missing and not-applicable answers are excluded.
func ScoreWeighted(responses map[string]Answer, questions []catalog.WeightedQuestion) (Score, error) {
	var num, den decimal.Decimal
	applicable := 0
	for _, q := range questions {
		maxValue, err := MaxValue(q.Mode)
		if err != nil {
			return Score{}, &ModeError{Key: q.Key(), Mode: q.Mode}
		}
		a, ok := responses[q.Key()]
		if !ok || a.NotApplicable {
			continue
		}
		num = num.Add(q.Weight.Mul(decimal.NewFromInt(int64(a.Value))))
		den = den.Add(q.Weight.Abs().Mul(decimal.NewFromInt(int64(maxValue))))
		applicable++
	}
	if applicable == 0 {
		return Score{}, nil
	}
	return Score{Value: num.Div(den), Defined: true, Applicable: applicable}, nil
}
