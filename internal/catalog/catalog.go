// CLAUDE:SUMMARY Question catalog — typed filter/weighted/get-to-know questions and categories loaded from storage tables, shuffling and EN/TR lookup
// Package catalog loads the read-only question sets from the storage port.
// Questions are plain data; scoring lives in package scoring.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/storage"
)

// Catalog tables.
const (
	TableFilters    = "FilterQuestions"
	TableWeighted   = "WeightedQuestions"
	TableGetToKnow  = "GetToKnowQuestions"
	TableCategories = "Categories"
)

// ErrCatalogEmpty means a question table has no usable rows.
var ErrCatalogEmpty = errors.New("question catalog empty")

// ScoringMode is the answer scale declared by a question row.
type ScoringMode string

const (
	ModeRange ScoringMode = "Range(0-10)"
	ModeYesNo ScoringMode = "YES/NO"
	ModeLimit ScoringMode = "Limit"
)

// Language is a supported survey language.
type Language string

const (
	EN Language = "EN"
	TR Language = "TR"
)

// ParseLanguage accepts "en"/"tr" in any case.
func ParseLanguage(s string) (Language, bool) {
	switch Language(strings.ToUpper(strings.TrimSpace(s))) {
	case EN:
		return EN, true
	case TR:
		return TR, true
	}
	return "", false
}

// Localized holds a text in both languages.
type Localized struct {
	EN string `json:"en" yaml:"en"`
	TR string `json:"tr" yaml:"tr"`
}

// In returns the TR text for TR and the EN text otherwise.
func (l Localized) In(lang Language) string {
	if lang == TR && l.TR != "" {
		return l.TR
	}
	return l.EN
}

// LocalizedList holds an ordered list of labels in both languages.
type LocalizedList struct {
	EN []string `json:"en" yaml:"en"`
	TR []string `json:"tr" yaml:"tr"`
}

func (l LocalizedList) In(lang Language) []string {
	if lang == TR && len(l.TR) > 0 {
		return l.TR
	}
	return l.EN
}

// Question is the presentation view shared by every question kind.
type Question interface {
	// Key is the response key: F{id}, Q{id} or GTK{id}.
	Key() string
	Localized() Localized
	LevelList() LocalizedList
}

// Text returns the question text in lang.
func Text(q Question, lang Language) string {
	return q.Localized().In(lang)
}

// Levels returns the labeled levels of q in lang, if it has any.
func Levels(q Question, lang Language) ([]string, bool) {
	l := q.LevelList().In(lang)
	return l, len(l) > 0
}

type FilterQuestion struct {
	ID         int
	Name       string
	Mode       ScoringMode
	UpperLimit int
	Options    LocalizedList
	Text       Localized
}

func (q FilterQuestion) Key() string              { return FilterKey(q.ID) }
func (q FilterQuestion) Localized() Localized     { return q.Text }
func (q FilterQuestion) LevelList() LocalizedList { return q.Options }

type WeightedQuestion struct {
	ID             int
	CategoryID     int
	CategoryName   string
	Name           string
	Mode           ScoringMode
	Weight         decimal.Decimal
	WorstSituation string
	Text           Localized
	Hint           string
}

func (q WeightedQuestion) Key() string              { return WeightedKey(q.ID) }
func (q WeightedQuestion) Localized() Localized     { return q.Text }
func (q WeightedQuestion) LevelList() LocalizedList { return LocalizedList{} }

type GetToKnowQuestion struct {
	ID     int
	Name   string
	Mode   ScoringMode
	Levels LocalizedList
	Text   Localized
	Hint   string
}

func (q GetToKnowQuestion) Key() string              { return GetToKnowKey(q.ID) }
func (q GetToKnowQuestion) Localized() Localized     { return q.Text }
func (q GetToKnowQuestion) LevelList() LocalizedList { return q.Levels }

type Category struct {
	ID   int
	Name Localized
}

func FilterKey(id int) string    { return "F" + strconv.Itoa(id) }
func WeightedKey(id int) string  { return "Q" + strconv.Itoa(id) }
func GetToKnowKey(id int) string { return "GTK" + strconv.Itoa(id) }

// Catalog reads question tables through the storage port.
type Catalog struct {
	store storage.Store
}

func New(store storage.Store) *Catalog {
	return &Catalog{store: store}
}

func (c *Catalog) Filters(ctx context.Context) ([]FilterQuestion, error) {
	return load(ctx, c.store, TableFilters, parseFilter)
}

func (c *Catalog) Weighted(ctx context.Context) ([]WeightedQuestion, error) {
	return load(ctx, c.store, TableWeighted, parseWeighted)
}

func (c *Catalog) GetToKnow(ctx context.Context) ([]GetToKnowQuestion, error) {
	return load(ctx, c.store, TableGetToKnow, parseGetToKnow)
}

func (c *Catalog) Categories(ctx context.Context) ([]Category, error) {
	return load(ctx, c.store, TableCategories, parseCategory)
}

// CategoryNames maps category id to its name in lang. A missing Categories
// table yields an empty map.
func (c *Catalog) CategoryNames(ctx context.Context, lang Language) map[int]string {
	cats, err := c.Categories(ctx)
	if err != nil {
		slog.Debug("categories unavailable", "error", err)
		return map[int]string{}
	}
	names := make(map[int]string, len(cats))
	for _, cat := range cats {
		names[cat.ID] = cat.Name.In(lang)
	}
	return names
}

func load[T any](ctx context.Context, store storage.Store, table string, parse func(storage.Row) (T, error)) ([]T, error) {
	rows, err := store.LoadTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", table, err)
	}
	out := make([]T, 0, len(rows))
	for i, r := range rows {
		q, err := parse(r)
		if err != nil {
			slog.Warn("skipping catalog row", "table", table, "row", i, "error", err)
			continue
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", table, ErrCatalogEmpty)
	}
	return out, nil
}

// Shuffle returns a shuffled copy; the input is not modified.
func Shuffle[T any](qs []T, r *rand.Rand) []T {
	out := make([]T, len(qs))
	copy(out, qs)
	shuffle := rand.Shuffle
	if r != nil {
		shuffle = r.Shuffle
	}
	shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func parseFilter(r storage.Row) (FilterQuestion, error) {
	id, err := requiredInt(r, "Filter_ID")
	if err != nil {
		return FilterQuestion{}, err
	}
	limit, err := requiredInt(r, "Upper_Limit")
	if err != nil {
		return FilterQuestion{}, err
	}
	return FilterQuestion{
		ID:         id,
		Name:       r.Value("Filter_Name"),
		Mode:       ScoringMode(strings.TrimSpace(r.Value("Scoring"))),
		UpperLimit: limit,
		Options: LocalizedList{
			EN: parseList(r.Value("Options_EN")),
			TR: parseList(r.Value("Options_TR")),
		},
		Text: Localized{
			EN: strings.TrimSpace(r.Value("Filter_Question_EN")),
			TR: strings.TrimSpace(r.Value("Filter_Question_TR")),
		},
	}, nil
}

func parseWeighted(r storage.Row) (WeightedQuestion, error) {
	id, err := requiredInt(r, "ID")
	if err != nil {
		return WeightedQuestion{}, err
	}
	weight := decimal.NewFromInt(1)
	if s := strings.TrimSpace(r.Value("Weight")); s != "" {
		weight, err = decimal.NewFromString(s)
		if err != nil {
			return WeightedQuestion{}, fmt.Errorf("Weight %q: %w", s, err)
		}
	}
	if weight.IsZero() {
		return WeightedQuestion{}, fmt.Errorf("question %d: zero weight", id)
	}
	catID, _ := strconv.Atoi(strings.TrimSpace(r.Value("Category_ID")))
	return WeightedQuestion{
		ID:             id,
		CategoryID:     catID,
		CategoryName:   r.Value("Category_Name"),
		Name:           r.Value("RedFlag_Name"),
		Mode:           ScoringMode(strings.TrimSpace(r.Value("Scoring"))),
		Weight:         weight,
		WorstSituation: r.Value("Worst_Situation"),
		Text: Localized{
			EN: strings.TrimSpace(r.Value("Question_EN")),
			TR: strings.TrimSpace(r.Value("Question_TR")),
		},
		Hint: r.Value("Hint"),
	}, nil
}

func parseGetToKnow(r storage.Row) (GetToKnowQuestion, error) {
	id, err := requiredInt(r, "GTK_ID")
	if err != nil {
		return GetToKnowQuestion{}, err
	}
	return GetToKnowQuestion{
		ID:   id,
		Name: r.Value("GTK_Name"),
		Mode: ScoringMode(strings.TrimSpace(r.Value("Scoring"))),
		Levels: LocalizedList{
			EN: parseList(r.Value("Levels_EN")),
			TR: parseList(r.Value("Levels_TR")),
		},
		Text: Localized{
			EN: strings.TrimSpace(r.Value("Question_EN")),
			TR: strings.TrimSpace(r.Value("Question_TR")),
		},
		Hint: r.Value("Hint"),
	}, nil
}

func parseCategory(r storage.Row) (Category, error) {
	id, err := requiredInt(r, "Category_ID")
	if err != nil {
		return Category{}, err
	}
	return Category{
		ID: id,
		Name: Localized{
			EN: r.Value("Category_Name_EN"),
			TR: r.Value("Category_Name_TR"),
		},
	}, nil
}

func requiredInt(r storage.Row, col string) (int, error) {
	s := strings.TrimSpace(r.Value(col))
	if s == "" {
		return 0, fmt.Errorf("%s missing", col)
	}
	// numeric columns exported from spreadsheets may carry ".0"
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return int(f), nil
	}
	return 0, fmt.Errorf("%s %q: not an integer", col, s)
}

// parseList accepts a JSON array or a |-separated list.
func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formatList(l []string) string {
	return strings.Join(l, "|")
}
