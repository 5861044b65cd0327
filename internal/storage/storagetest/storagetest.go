// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"testing"

	"github.com/hazyhaar/redflag/internal/storage"
)

// Run exercises open against the Store contract. open must return a fresh,
// empty store on each call.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing table is empty", func(t *testing.T) {
		s := open(t)
		rows, err := s.LoadTable(ctx, "Nothing")
		if err != nil {
			t.Fatalf("LoadTable: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("len(rows) = %d, want 0", len(rows))
		}
	})

	t.Run("upsert inserts then replaces", func(t *testing.T) {
		s := open(t)
		key := storage.KeyOf("id", "42")
		first := storage.Row{{Name: "name", Value: "a"}, {Name: "score", Value: "0.5"}}
		if err := s.UpsertRow(ctx, "T", key, first); err != nil {
			t.Fatalf("UpsertRow: %v", err)
		}
		second := storage.Row{{Name: "id", Value: "42"}, {Name: "name", Value: "b"}, {Name: "score", Value: "0.7"}}
		if err := s.UpsertRow(ctx, "T", key, second); err != nil {
			t.Fatalf("UpsertRow: %v", err)
		}
		other := storage.Row{{Name: "id", Value: "43"}, {Name: "name", Value: "c"}, {Name: "score", Value: "0.1"}}
		if err := s.UpsertRow(ctx, "T", storage.KeyOf("id", "43"), other); err != nil {
			t.Fatalf("UpsertRow: %v", err)
		}

		rows, err := s.LoadTable(ctx, "T")
		if err != nil {
			t.Fatalf("LoadTable: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("len(rows) = %d, want 2", len(rows))
		}
		got, ok := storage.Find(rows, key)
		if !ok {
			t.Fatal("row 42 not found")
		}
		if got.Value("name") != "b" || got.Value("score") != "0.7" {
			t.Errorf("row 42 = %v, want name=b score=0.7", got)
		}
	})

	t.Run("key columns are stored", func(t *testing.T) {
		s := open(t)
		key := storage.KeyOf("summary_id", "1")
		if err := s.UpsertRow(ctx, "S", key, storage.Row{{Name: "count", Value: "3"}}); err != nil {
			t.Fatalf("UpsertRow: %v", err)
		}
		rows, err := s.LoadTable(ctx, "S")
		if err != nil {
			t.Fatalf("LoadTable: %v", err)
		}
		if len(rows) != 1 || rows[0].Value("summary_id") != "1" || rows[0].Value("count") != "3" {
			t.Errorf("rows = %v", rows)
		}
	})

	t.Run("delete reports existence", func(t *testing.T) {
		s := open(t)
		key := storage.KeyOf("id", "7")
		if err := s.UpsertRow(ctx, "T", key, storage.Row{{Name: "v", Value: "x"}}); err != nil {
			t.Fatalf("UpsertRow: %v", err)
		}
		deleted, err := s.DeleteRow(ctx, "T", key)
		if err != nil {
			t.Fatalf("DeleteRow: %v", err)
		}
		if !deleted {
			t.Error("deleted = false, want true")
		}
		deleted, err = s.DeleteRow(ctx, "T", key)
		if err != nil {
			t.Fatalf("DeleteRow: %v", err)
		}
		if deleted {
			t.Error("second delete = true, want false")
		}
		rows, _ := s.LoadTable(ctx, "T")
		if len(rows) != 0 {
			t.Errorf("len(rows) = %d, want 0", len(rows))
		}
	})

	t.Run("values survive round trip", func(t *testing.T) {
		s := open(t)
		tricky := `{"Q1":"7","Q2":""}; semi;colon "quoted"` + "\nnewline"
		key := storage.KeyOf("id", "1")
		if err := s.UpsertRow(ctx, "T", key, storage.Row{{Name: "payload", Value: tricky}}); err != nil {
			t.Fatalf("UpsertRow: %v", err)
		}
		rows, err := s.LoadTable(ctx, "T")
		if err != nil {
			t.Fatalf("LoadTable: %v", err)
		}
		if len(rows) != 1 || rows[0].Value("payload") != tricky {
			t.Errorf("payload = %q, want %q", rows[0].Value("payload"), tricky)
		}
	})
}
