package scoring

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/catalog"
)

// CategoryScore is the weighted mean rating (0-10 scale) of one category.
type CategoryScore struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Score decimal.Decimal `json:"score"`
	Count int             `json:"count"`
}

// Normalized is the category score scaled to 0-1.
func (c CategoryScore) Normalized() decimal.Decimal {
	return c.Score.Div(decimal.NewFromInt(RangeMax))
}

// CategoryScores groups applicable answers by category and returns
// sum(r*|w|)/sum(|w|) per category, ordered by category id. names overrides
// the category name stored on the question.
func CategoryScores(responses map[string]Answer, questions []catalog.WeightedQuestion, names map[int]string) []CategoryScore {
	type acc struct {
		name          string
		weighted, sum decimal.Decimal
		count         int
	}
	byID := map[int]*acc{}
	for _, q := range questions {
		a, ok := responses[q.Key()]
		if !ok || a.NotApplicable {
			continue
		}
		name := names[q.CategoryID]
		if name == "" {
			name = q.CategoryName
		}
		if name == "" {
			continue
		}
		c := byID[q.CategoryID]
		if c == nil {
			c = &acc{name: name}
			byID[q.CategoryID] = c
		}
		w := q.Weight.Abs()
		c.weighted = c.weighted.Add(w.Mul(decimal.NewFromInt(int64(a.Value))))
		c.sum = c.sum.Add(w)
		c.count++
	}

	out := make([]CategoryScore, 0, len(byID))
	for id, c := range byID {
		out = append(out, CategoryScore{ID: id, Name: c.name, Score: c.weighted.Div(c.sum), Count: c.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RedFlag is a highly rated weighted answer.
type RedFlag struct {
	Key    string `json:"key"`
	ID     int    `json:"id"`
	Text   string `json:"text"`
	Rating int    `json:"rating"`
}

// TopRedFlags returns at most n answers rated at least minRating, highest
// first, ties in question id order. Text is in lang.
func TopRedFlags(responses map[string]Answer, questions []catalog.WeightedQuestion, lang catalog.Language, n int, minRating float64) []RedFlag {
	var flags []RedFlag
	for _, q := range questions {
		a, ok := responses[q.Key()]
		if !ok || a.NotApplicable || float64(a.Value) < minRating {
			continue
		}
		flags = append(flags, RedFlag{Key: q.Key(), ID: q.ID, Text: catalog.Text(q, lang), Rating: a.Value})
	}
	sort.SliceStable(flags, func(i, j int) bool {
		if flags[i].Rating != flags[j].Rating {
			return flags[i].Rating > flags[j].Rating
		}
		return flags[i].ID < flags[j].ID
	})
	if n >= 0 && len(flags) > n {
		flags = flags[:n]
	}
	return flags
}

// Violation is a filter answer at or above its limit.
type Violation struct {
	Key    string `json:"key"`
	Text   string `json:"text"`
	Answer int    `json:"answer"`
}

// ViolatedFilters lists violated filter questions in catalog order.
func ViolatedFilters(responses map[string]int, questions []catalog.FilterQuestion, lang catalog.Language) []Violation {
	var out []Violation
	for _, q := range questions {
		v, ok := responses[q.Key()]
		if ok && v >= q.UpperLimit {
			out = append(out, Violation{Key: q.Key(), Text: catalog.Text(q, lang), Answer: v})
		}
	}
	return out
}
