package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/redflag/internal/storage"
)

func TestStore_RecordsAndPersists(t *testing.T) {
	mem := storage.NewMemory()
	s := Wrap(mem)
	ctx := WithRequestID(context.Background(), "req-1")

	if err := s.UpsertRow(ctx, "T", storage.KeyOf("id", "1"), storage.Row{{Name: "id", Value: "1"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadTable(ctx, "T"); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.DeleteRow(ctx, "T", storage.KeyOf("id", "1")); err != nil || !ok {
		t.Fatalf("DeleteRow = %v, %v", ok, err)
	}

	s.stop()
	rows, err := mem.LoadTable(context.Background(), Table)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("traces = %d, want 3", len(rows))
	}
	ops := map[string]bool{}
	for _, r := range rows {
		ops[r.Value("op")] = true
		if r.Value("request_id") != "req-1" || r.Value("table_name") != "T" {
			t.Errorf("trace row = %v", r)
		}
	}
	if !ops["load"] || !ops["upsert"] || !ops["delete"] {
		t.Errorf("ops = %v", ops)
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if seen == "" || rec.Header().Get(HeaderRequestID) != seen {
		t.Errorf("generated id %q header %q", seen, rec.Header().Get(HeaderRequestID))
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Errorf("inbound id not kept: %q", seen)
	}
}

func TestStore_CallsAfterCloseAreNotTraced(t *testing.T) {
	mem := storage.NewMemory()
	s := Wrap(mem)
	ctx := context.Background()
	if _, err := s.LoadTable(ctx, "T"); err != nil {
		t.Fatal(err)
	}
	s.stop()
	s.stop()

	if err := s.UpsertRow(ctx, "T", storage.KeyOf("id", "1"), storage.Row{{Name: "id", Value: "1"}}); err != nil {
		t.Fatal(err)
	}
	rows, err := mem.LoadTable(ctx, Table)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("traces = %d, want 1", len(rows))
	}
}
