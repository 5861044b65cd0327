package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/redflag/internal/storage"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// seedFile mirrors default_catalog.yaml.
type seedFile struct {
	Categories []struct {
		ID   int       `yaml:"id"`
		Name Localized `yaml:"name"`
	} `yaml:"categories"`
	Filters []struct {
		ID         int           `yaml:"id"`
		Name       string        `yaml:"name"`
		Scoring    string        `yaml:"scoring"`
		UpperLimit int           `yaml:"upper_limit"`
		Options    LocalizedList `yaml:"options"`
		Question   Localized     `yaml:"question"`
	} `yaml:"filters"`
	Weighted []struct {
		ID             int       `yaml:"id"`
		CategoryID     int       `yaml:"category_id"`
		CategoryName   string    `yaml:"category_name"`
		Name           string    `yaml:"name"`
		Scoring        string    `yaml:"scoring"`
		Weight         string    `yaml:"weight"`
		WorstSituation string    `yaml:"worst_situation"`
		Question       Localized `yaml:"question"`
		Hint           string    `yaml:"hint"`
	} `yaml:"weighted"`
	GetToKnow []struct {
		ID       int           `yaml:"id"`
		Name     string        `yaml:"name"`
		Scoring  string        `yaml:"scoring"`
		Levels   LocalizedList `yaml:"levels"`
		Question Localized     `yaml:"question"`
		Hint     string        `yaml:"hint"`
	} `yaml:"get_to_know"`
}

type seedTable struct {
	name  string
	idCol string
	rows  []storage.Row
}

// Seed fills every empty catalog table from the embedded default catalog.
// Tables that already hold rows are left alone. It returns the number of
// rows written.
func Seed(ctx context.Context, store storage.Store) (int, error) {
	return SeedFrom(ctx, store, defaultCatalog)
}

// SeedFrom is Seed with an explicit YAML document.
func SeedFrom(ctx context.Context, store storage.Store, doc []byte) (int, error) {
	var f seedFile
	if err := yaml.Unmarshal(doc, &f); err != nil {
		return 0, fmt.Errorf("parsing seed catalog: %w", err)
	}

	tables := []seedTable{
		{name: TableCategories, idCol: "Category_ID"},
		{name: TableFilters, idCol: "Filter_ID"},
		{name: TableWeighted, idCol: "ID"},
		{name: TableGetToKnow, idCol: "GTK_ID"},
	}
	for _, c := range f.Categories {
		tables[0].rows = append(tables[0].rows, storage.Row{
			{Name: "Category_ID", Value: strconv.Itoa(c.ID)},
			{Name: "Category_Name_TR", Value: c.Name.TR},
			{Name: "Category_Name_EN", Value: c.Name.EN},
		})
	}
	for _, q := range f.Filters {
		tables[1].rows = append(tables[1].rows, storage.Row{
			{Name: "Filter_ID", Value: strconv.Itoa(q.ID)},
			{Name: "Filter_Name", Value: q.Name},
			{Name: "Scoring", Value: q.Scoring},
			{Name: "Upper_Limit", Value: strconv.Itoa(q.UpperLimit)},
			{Name: "Options_TR", Value: formatList(q.Options.TR)},
			{Name: "Options_EN", Value: formatList(q.Options.EN)},
			{Name: "Filter_Question_TR", Value: q.Question.TR},
			{Name: "Filter_Question_EN", Value: q.Question.EN},
		})
	}
	for _, q := range f.Weighted {
		tables[2].rows = append(tables[2].rows, storage.Row{
			{Name: "ID", Value: strconv.Itoa(q.ID)},
			{Name: "Category_ID", Value: strconv.Itoa(q.CategoryID)},
			{Name: "Category_Name", Value: q.CategoryName},
			{Name: "RedFlag_Name", Value: q.Name},
			{Name: "Scoring", Value: q.Scoring},
			{Name: "Weight", Value: q.Weight},
			{Name: "Worst_Situation", Value: q.WorstSituation},
			{Name: "Question_TR", Value: q.Question.TR},
			{Name: "Question_EN", Value: q.Question.EN},
			{Name: "Hint", Value: q.Hint},
		})
	}
	for _, q := range f.GetToKnow {
		tables[3].rows = append(tables[3].rows, storage.Row{
			{Name: "GTK_ID", Value: strconv.Itoa(q.ID)},
			{Name: "GTK_Name", Value: q.Name},
			{Name: "Scoring", Value: q.Scoring},
			{Name: "Levels_TR", Value: formatList(q.Levels.TR)},
			{Name: "Levels_EN", Value: formatList(q.Levels.EN)},
			{Name: "Question_TR", Value: q.Question.TR},
			{Name: "Question_EN", Value: q.Question.EN},
			{Name: "Hint", Value: q.Hint},
		})
	}

	written := 0
	for _, t := range tables {
		existing, err := store.LoadTable(ctx, t.name)
		if err != nil {
			return written, fmt.Errorf("checking %s: %w", t.name, err)
		}
		if len(existing) > 0 {
			continue
		}
		for _, row := range t.rows {
			key := storage.KeyOf(t.idCol, row.Value(t.idCol))
			if err := store.UpsertRow(ctx, t.name, key, row); err != nil {
				return written, fmt.Errorf("seeding %s: %w", t.name, err)
			}
			written++
		}
		slog.Info("seeded catalog table", "table", t.name, "rows", len(t.rows))
	}
	return written, nil
}
