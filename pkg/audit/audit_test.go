package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/pkg/trace"
)

func TestDo_WritesEntries(t *testing.T) {
	mem := storage.NewMemory()
	l := NewStoreLogger(mem)
	ctx := WithActor(trace.WithRequestID(context.Background(), "req-9"), TransportMCP, "operator")

	type req struct{ User string }
	got, err := Do(ctx, l, "delete_session", req{User: "u1"}, func(_ context.Context, r req) (string, error) {
		return "deleted " + r.User, nil
	})
	if err != nil || got != "deleted u1" {
		t.Fatalf("Do = %q, %v", got, err)
	}
	boom := errors.New("boom")
	if _, err := Do(ctx, l, "recompute_summary", req{}, func(context.Context, req) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	l.Close()

	rows, err := mem.LoadTable(context.Background(), Table)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("entries = %d, want 2", len(rows))
	}
	byAction := map[string]storage.Row{}
	for _, r := range rows {
		byAction[r.Value("action")] = r
	}
	ok := byAction["delete_session"]
	if ok.Value("status") != "success" || ok.Value("transport") != TransportMCP || ok.Value("actor") != "operator" ||
		ok.Value("request_id") != "req-9" || ok.Value("parameters") != `{"User":"u1"}` {
		t.Errorf("success entry = %v", ok)
	}
	if failed := byAction["recompute_summary"]; failed.Value("status") != "error" || failed.Value("error_message") != "boom" {
		t.Errorf("error entry = %v", failed)
	}
}

func TestMiddleware_NilLogger(t *testing.T) {
	ep := Middleware(nil, "x")(func(context.Context, any) (any, error) { return 1, nil })
	if v, err := ep(context.Background(), nil); err != nil || v != 1 {
		t.Errorf("ep = %v, %v", v, err)
	}
}
