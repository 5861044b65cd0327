// CLAUDE:SUMMARY Insight prompt builder — EN/TR counselor prompt from score, population average, red flags and violated filters
// Package insight asks a language model for a short narrative about a
// finished survey. It is optional: without providers it reports disabled.
package insight

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/scoring"
)

const (
	systemEN = "You are a supportive relationship counselor providing empathetic insights based on survey results."
	systemTR = "Anket sonuçlarına dayalı empatik içgörüler sağlayan destekleyici bir ilişki danışmanısınız."

	// DefaultMaxWords bounds the generated insight.
	DefaultMaxWords = 100
)

// similarBand is the distance, in percentage points, under which a score is
// described as similar to the average.
var similarBand = decimal.NewFromInt(5)

// Request carries the survey results an insight is generated from.
type Request struct {
	UserName         string
	PartnerName      string
	Language         catalog.Language
	Score            decimal.Decimal
	Average          decimal.Decimal
	FilterViolations int
	RedFlags         []scoring.RedFlag
	Violations       []scoring.Violation
	MaxWords         int
}

// Position describes the score relative to the average.
type Position string

const (
	Higher  Position = "higher"
	Lower   Position = "lower"
	Similar Position = "similar"
)

func percent(d decimal.Decimal) decimal.Decimal {
	return d.Mul(decimal.NewFromInt(100)).Round(1)
}

// RelativePosition compares score and average in percentage points.
func RelativePosition(score, avg decimal.Decimal) (Position, decimal.Decimal) {
	diff := percent(score).Sub(percent(avg))
	switch {
	case diff.Abs().LessThan(similarBand):
		return Similar, diff.Abs()
	case diff.IsPositive():
		return Higher, diff
	default:
		return Lower, diff.Abs()
	}
}

// BuildPrompt returns the system message and the user prompt.
func BuildPrompt(r Request) (system, user string) {
	maxWords := r.MaxWords
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	pos, diff := RelativePosition(r.Score, r.Average)
	if r.Language == catalog.TR {
		return systemTR, buildTR(r, pos, diff, maxWords)
	}
	return systemEN, buildEN(r, pos, diff, maxWords)
}

// FullText is the prompt as logged alongside the stored insight.
func FullText(system, user string) string {
	return "System: " + system + "\n\nUser: " + user
}

func buildEN(r Request, pos Position, diff decimal.Decimal, maxWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on a relationship toxicity survey, give %s brief, supportive insights about their partner %s.\n\n", r.UserName, r.PartnerName)
	b.WriteString("Survey results:\n")
	fmt.Fprintf(&b, "- Toxicity score: %s%% (0%% = not toxic, 100%% = very toxic)\n", percent(r.Score).StringFixed(1))
	fmt.Fprintf(&b, "- Average toxicity score (all users): %s%%\n", percent(r.Average).StringFixed(1))
	fmt.Fprintf(&b, "- Relative toxicity: %s than average (%s points difference)\n", pos, diff.StringFixed(1))
	fmt.Fprintf(&b, "- Filter violations: %s failed %d safety filter(s)", r.PartnerName, r.FilterViolations)
	if len(r.Violations) > 0 {
		b.WriteString("\n\nViolated safety filters:")
		for i, v := range r.Violations {
			fmt.Fprintf(&b, "\n%d. %s", i+1, v.Text)
		}
	}
	if len(r.RedFlags) > 0 {
		b.WriteString("\n\nTop-rated red flag questions:")
		for i, f := range r.RedFlags {
			fmt.Fprintf(&b, "\n%d. %s (Rating: %d/10)", i+1, f.Text, f.Rating)
		}
	}
	b.WriteString("\n\nPlease provide:\n")
	b.WriteString("1. An analysis of what these results might indicate (the longest part).\n")
	b.WriteString("2. Brief supportive advice in one or two sentences.\n")
	b.WriteString("3. One blunt, deadpan sentence of reality, never abusive.\n\n")
	fmt.Fprintf(&b, "IMPORTANT: stay strictly under %d words. Be supportive rather than judgmental.", maxWords)
	return b.String()
}

func buildTR(r Request, pos Position, diff decimal.Decimal, maxWords int) string {
	relative := map[Position]string{Higher: "daha yüksek", Lower: "daha düşük", Similar: "benzer"}[pos]
	var b strings.Builder
	fmt.Fprintf(&b, "Bir ilişki toksisite anketine dayanarak, %s için partneri %s hakkında kısa, destekleyici içgörüler sağlayın.\n\n", r.UserName, r.PartnerName)
	b.WriteString("Anket sonuçları:\n")
	fmt.Fprintf(&b, "- Toksisite skoru: %%%s (%%0 = toksik değil, %%100 = çok toksik)\n", percent(r.Score).StringFixed(1))
	fmt.Fprintf(&b, "- Ortalama toksisite skoru (tüm kullanıcılar): %%%s\n", percent(r.Average).StringFixed(1))
	fmt.Fprintf(&b, "- Göreceli toksisite: ortalamadan %s (%s puan fark)\n", relative, diff.StringFixed(1))
	fmt.Fprintf(&b, "- Filtre ihlalleri: %s %d güvenlik filtresini geçemedi", r.PartnerName, r.FilterViolations)
	if len(r.Violations) > 0 {
		b.WriteString("\n\nİhlal edilen güvenlik filtreleri:")
		for i, v := range r.Violations {
			fmt.Fprintf(&b, "\n%d. %s", i+1, v.Text)
		}
	}
	if len(r.RedFlags) > 0 {
		b.WriteString("\n\nEn yüksek puanlı kırmızı bayrak soruları:")
		for i, f := range r.RedFlags {
			fmt.Fprintf(&b, "\n%d. %s (Puan: %d/10)", i+1, f.Text, f.Rating)
		}
	}
	b.WriteString("\n\nLütfen şunları sağlayın:\n")
	b.WriteString("1. Bu sonuçların ne gösterebileceğine dair bir analiz (en uzun bölüm).\n")
	b.WriteString("2. Bir iki cümlelik kısa destekleyici tavsiye.\n")
	b.WriteString("3. Tek cümlelik, doğrudan ve duygusuz bir gerçeklik, asla aşağılayıcı olmadan.\n\n")
	fmt.Fprintf(&b, "ÖNEMLİ: Yanıtınız kesinlikle %d kelimeden az olmalı ve Türkçe yazılmalı. Yargılayıcı değil destekleyici olun.", maxWords)
	return b.String()
}
