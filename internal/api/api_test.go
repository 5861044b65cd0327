package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/auth"
	"github.com/hazyhaar/redflag/internal/export"
	"github.com/hazyhaar/redflag/internal/messages"
	"github.com/hazyhaar/redflag/internal/scoring"
	"github.com/hazyhaar/redflag/internal/session"
	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/survey"
	"github.com/hazyhaar/redflag/pkg/audit"
)

// echoStep advances on any non-empty input.
type echoStep string

func (s echoStep) Name() string { return string(s) }

func (s echoStep) Run(_ context.Context, _ *session.Progress, in session.Input, page *session.Page) bool {
	if in.Empty() {
		page.Notice(session.LevelInfo, messages.AnswerAll, "")
		return false
	}
	return true
}

type testEnv struct {
	srv   *httptest.Server
	store storage.Store
	svc   *survey.Service
	audit *audit.StoreLogger
}

func setup(t *testing.T, adminPassword string) *testEnv {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { store.Close() })

	hash := ""
	if adminPassword != "" {
		var err error
		if hash, err = auth.HashPassword(adminPassword); err != nil {
			t.Fatal(err)
		}
	}
	svc := survey.NewService(store, decimal.RequireFromString("0.000001"), decimal.RequireFromString("0.5"))
	ctl := session.NewController(echoStep("a"), echoStep("b"), echoStep("c"))
	a := New(session.NewManager(0), ctl, svc, export.NewExporter(store), auth.New("test-secret", 60, hash))
	logger := audit.NewStoreLogger(store)
	a.SetAuditLogger(logger)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, svc: svc, audit: logger}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func view(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	v, ok := body["view"].(map[string]any)
	if !ok {
		t.Fatalf("no view in %v", body)
	}
	return v
}

func TestSessionLifecycle(t *testing.T) {
	e := setup(t, "")

	resp, body := e.do(t, "POST", "/api/sessions", "", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	token, _ := body["token"].(string)
	if token == "" || body["user_id"] == "" {
		t.Fatalf("create body = %v", body)
	}
	if got := view(t, body)["step"]; got != "a" {
		t.Errorf("first step = %v", got)
	}
	if resp.Header.Get("X-Request-ID") == "" || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("headers = %v", resp.Header)
	}

	// Empty cycle re-renders the step.
	_, body = e.do(t, "POST", "/api/sessions/current/cycle", token, "")
	if v := view(t, body); v["step"] != "a" || v["advanced"] != false {
		t.Errorf("empty cycle view = %v", v)
	}

	resp, body = e.do(t, "POST", "/api/sessions/current/new-round", token, "")
	if resp.StatusCode != http.StatusConflict || body["error"] != messages.NewRoundLocked {
		t.Errorf("early new round = %d %v", resp.StatusCode, body)
	}

	for _, want := range []string{"b", "c", ""} {
		_, body = e.do(t, "POST", "/api/sessions/current/cycle", token, `{"x":1}`)
		if v := view(t, body); v["step"] != want || v["advanced"] != true {
			t.Fatalf("cycle view = %v, want step %q", v, want)
		}
	}
	_, body = e.do(t, "GET", "/api/sessions/current", token, "")
	if view(t, body)["complete"] != true {
		t.Errorf("current = %v", body)
	}

	resp, body = e.do(t, "POST", "/api/sessions/current/new-round", token, "")
	if resp.StatusCode != http.StatusOK || view(t, body)["step"] != "c" {
		t.Errorf("new round = %d %v", resp.StatusCode, body)
	}
}

func TestCycle_Errors(t *testing.T) {
	e := setup(t, "")

	resp, body := e.do(t, "POST", "/api/sessions/current/cycle", "", `{}`)
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != messages.Unauthorized {
		t.Errorf("no token = %d %v", resp.StatusCode, body)
	}

	_, body = e.do(t, "POST", "/api/sessions", "", "")
	token := body["token"].(string)
	resp, body = e.do(t, "POST", "/api/sessions/current/cycle", token, `{"x":`)
	if resp.StatusCode != http.StatusBadRequest || body["error"] != messages.InvalidInput {
		t.Errorf("bad json = %d %v", resp.StatusCode, body)
	}

	big := `{"x":"` + strings.Repeat("a", maxBodySize) + `"}`
	resp, _ = e.do(t, "POST", "/api/sessions/current/cycle", token, big)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized = %d", resp.StatusCode)
	}

	// A token for a handle the manager no longer holds.
	stale, err := auth.New("test-secret", 60, "").SessionToken("gone", "u")
	if err != nil {
		t.Fatal(err)
	}
	resp, body = e.do(t, "GET", "/api/sessions/current", stale, "")
	if resp.StatusCode != http.StatusGone || body["error"] != messages.SessionExpired {
		t.Errorf("stale = %d %v", resp.StatusCode, body)
	}
}

func TestSummary(t *testing.T) {
	e := setup(t, "")
	if _, err := e.svc.Finalize(context.Background(), survey.SessionResponse{
		UserID: "u1", PartnerName: "bob",
		ToxicScore: scoring.Score{Value: decimal.RequireFromString("0.4"), Defined: true},
	}); err != nil {
		t.Fatal(err)
	}
	resp, body := e.do(t, "GET", "/api/summary", "", "")
	if resp.StatusCode != http.StatusOK || body["count"] != float64(1) || body["avg_toxic_score"] != "0.4" {
		t.Errorf("summary = %d %v", resp.StatusCode, body)
	}
}

func TestAdminLogin(t *testing.T) {
	disabled := setup(t, "")
	resp, _ := disabled.do(t, "POST", "/api/admin/login", "", `{"password":"x"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("disabled login = %d", resp.StatusCode)
	}

	e := setup(t, "hunter2")
	resp, _ = e.do(t, "POST", "/api/admin/login", "", `{"password":"nope"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password = %d", resp.StatusCode)
	}
	resp, body := e.do(t, "POST", "/api/admin/login", "", `{"password":"hunter2"}`)
	if resp.StatusCode != http.StatusOK || body["token"] == "" {
		t.Errorf("login = %d %v", resp.StatusCode, body)
	}

	// Session tokens do not open admin routes.
	_, body = e.do(t, "POST", "/api/sessions", "", "")
	resp, _ = e.do(t, "POST", "/api/admin/summary/recompute", body["token"].(string), "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("session token on admin route = %d", resp.StatusCode)
	}
}

func TestAdmin_DeleteRecomputeExport(t *testing.T) {
	e := setup(t, "hunter2")
	ctx := context.Background()
	for _, r := range []survey.SessionResponse{
		{UserID: "u1", PartnerName: "bob", Email: "ada@example.com", ToxicScore: scoring.Score{Value: decimal.RequireFromString("0.9"), Defined: true}},
		{UserID: "u2", PartnerName: "cem", ToxicScore: scoring.Score{Value: decimal.RequireFromString("0.1"), Defined: true}},
	} {
		if _, err := e.svc.Finalize(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	_, body := e.do(t, "POST", "/api/admin/login", "", `{"password":"hunter2"}`)
	token := body["token"].(string)

	resp, _ := e.do(t, "DELETE", "/api/admin/sessions", token, `{"user_id":"u9","partner_name":"bob"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown pair = %d", resp.StatusCode)
	}
	resp, _ = e.do(t, "DELETE", "/api/admin/sessions", token, `{"user_id":"u1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing partner = %d", resp.StatusCode)
	}
	resp, body = e.do(t, "DELETE", "/api/admin/sessions", token, `{"user_id":"U1","partner_name":" Bob "}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete = %d %v", resp.StatusCode, body)
	}
	if sum := body["summary"].(map[string]any); sum["count"] != float64(1) {
		t.Errorf("summary after delete = %v", sum)
	}

	resp, body = e.do(t, "POST", "/api/admin/summary/recompute", token, "")
	if resp.StatusCode != http.StatusOK || body["drifted"] != false {
		t.Errorf("recompute = %d %v", resp.StatusCode, body)
	}

	req, _ := http.NewRequest("GET", e.srv.URL+"/api/admin/export", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	eresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(eresp.Body)
	eresp.Body.Close()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if eresp.StatusCode != http.StatusOK || len(lines) != 1 || strings.Contains(buf.String(), `"u2"`) {
		t.Errorf("export = %d %q", eresp.StatusCode, buf.String())
	}

	e.audit.Close()
	rows, err := e.store.LoadTable(ctx, audit.Table)
	if err != nil {
		t.Fatal(err)
	}
	actions := map[string]string{}
	for _, r := range rows {
		actions[r.Value("action")+"/"+r.Value("status")] = r.Value("actor")
	}
	if actions["delete_session/success"] != auth.RoleAdmin || actions["delete_session/error"] == "" || actions["recompute_summary/success"] == "" || actions["export/success"] == "" {
		t.Errorf("audit = %v", actions)
	}
}
