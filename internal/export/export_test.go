package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/scoring"
	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/survey"
)

func seed(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()
	svc := survey.NewService(store, decimal.RequireFromString("0.000001"), decimal.RequireFromString("0.5"))
	for _, partner := range []string{"Bob", "Carl"} {
		f, err := svc.Finalize(ctx, survey.SessionResponse{
			UserID:           "user-1",
			Name:             "Ada",
			Email:            "ada@example.com",
			PartnerName:      partner,
			Language:         catalog.EN,
			ToxicScore:       scoring.Score{Value: decimal.RequireFromString("0.3"), Defined: true, Applicable: 1},
			SessionStart:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			FilterResponses:  map[string]int{"F1": 0},
			RedFlagResponses: map[string]scoring.Answer{"Q1": {Value: 3}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := svc.SaveGTK(ctx, survey.GTKResponse{ID: f.ID, UserID: "user-1", PartnerName: partner, Responses: map[string]int{"GTK1": 2}}); err != nil {
			t.Fatal(err)
		}
		if err := svc.SaveFeedback(ctx, survey.Rating{ID: f.ID, UserID: "user-1", PartnerName: partner, Value: 4}); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func decode(t *testing.T, buf *bytes.Buffer) []SessionExport {
	t.Helper()
	var out []SessionExport
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec SessionExport
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestExport_Anonymized(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewExporter(seed(t)).Export(context.Background(), &buf, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
	if strings.Contains(buf.String(), "ada@example.com") || strings.Contains(buf.String(), "Bob") {
		t.Errorf("personal data leaked:\n%s", buf.String())
	}
	recs := decode(t, &buf)
	if recs[0].UserID != recs[1].UserID || !strings.HasPrefix(recs[0].UserID, "anon_") {
		t.Errorf("user ids %q %q", recs[0].UserID, recs[1].UserID)
	}
	if recs[0].ID == recs[1].ID || !strings.HasPrefix(recs[0].ID, "anon_") {
		t.Errorf("session ids %q %q", recs[0].ID, recs[1].ID)
	}
	if recs[0].FeedbackRating != "4" || recs[0].GTKResponses["GTK1"] != 2 || *recs[0].ToxicScore != "0.3" {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestExport_Raw(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewExporter(seed(t)).Export(context.Background(), &buf, Options{Raw: true}); err != nil {
		t.Fatal(err)
	}
	recs := decode(t, &buf)
	if recs[0].UserID != "user-1" || recs[0].Email != "ada@example.com" || recs[0].PartnerName == "" {
		t.Errorf("raw record = %+v", recs[0])
	}
}
