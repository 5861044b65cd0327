package csvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/storage/storagetest"
)

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open(t.TempDir())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestUpsert_AppendsNewColumnsKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := storage.KeyOf("id", "1")
	if err := s.UpsertRow(ctx, "SessionResponses", key, storage.Row{{Name: "b", Value: "1"}, {Name: "a", Value: "2"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertRow(ctx, "SessionResponses", storage.KeyOf("id", "2"), storage.Row{{Name: "c", Value: "3"}, {Name: "a", Value: "4"}}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "SessionResponses.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "id;b;a;c" {
		t.Errorf("header = %q, want id;b;a;c", lines[0])
	}
	if lines[1] != "1;1;2;" {
		t.Errorf("row 1 = %q, want 1;1;2;", lines[1])
	}
	if lines[2] != "2;;4;3" {
		t.Errorf("row 2 = %q, want 2;;4;3", lines[2])
	}
}

func TestLoad_ToleratesShortRecords(t *testing.T) {
	dir := t.TempDir()
	content := "Filter_ID;Scoring;Upper_Limit\n1;YES/NO;1\n2;Limit\n"
	if err := os.WriteFile(filepath.Join(dir, "FilterQuestions.csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := Open(dir)
	rows, err := s.LoadTable(context.Background(), "FilterQuestions")
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[1].Value("Upper_Limit") != "" {
		t.Errorf("missing field = %q, want empty", rows[1].Value("Upper_Limit"))
	}
}

func TestInvalidTableName(t *testing.T) {
	s, _ := Open(t.TempDir())
	_, err := s.LoadTable(context.Background(), "../etc/passwd")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
