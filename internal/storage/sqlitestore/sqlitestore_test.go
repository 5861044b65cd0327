package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/storage/storagetest"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sub", "redflag.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTest(t)
	})
}

func TestUpsert_ReplaceKeepsPosition(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		if err := db.UpsertRow(ctx, "T", storage.KeyOf("id", id), storage.Row{{Name: "v", Value: "old"}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpsertRow(ctx, "T", storage.KeyOf("id", "1"), storage.Row{{Name: "v", Value: "new"}}); err != nil {
		t.Fatal(err)
	}
	rows, err := db.LoadTable(ctx, "T")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0].Value("id") != "1" || rows[0].Value("v") != "new" {
		t.Errorf("rows[0] = %v, want id=1 v=new", rows[0])
	}
}

func TestTables(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	db.UpsertRow(ctx, "B", storage.KeyOf("id", "1"), nil)
	db.UpsertRow(ctx, "A", storage.KeyOf("id", "1"), nil)
	names, err := db.Tables(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("Tables = %v, want [A B]", names)
	}
}
