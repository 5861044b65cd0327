package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/storage/storagetest"
)

func TestMemory_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return storage.NewMemory()
	})
}

func TestMemory_ClosedIsUnavailable(t *testing.T) {
	m := storage.NewMemory()
	m.Close()
	_, err := m.LoadTable(context.Background(), "T")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestRow_JSONKeepsOrder(t *testing.T) {
	r := storage.Row{{Name: "z", Value: "1"}, {Name: "a", Value: "2"}, {Name: "m", Value: ""}}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"z":"1","a":"2","m":""}` {
		t.Errorf("json = %s", data)
	}
	var back storage.Row
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if len(back) != 3 || back[0].Name != "z" || back[1].Name != "a" || back[2].Name != "m" {
		t.Errorf("order lost: %v", back)
	}
}

func TestKey_ApplyAndMatch(t *testing.T) {
	key := storage.KeyOf("id", "5")
	row := key.Apply(storage.Row{{Name: "x", Value: "y"}})
	if row[0].Name != "id" || row[0].Value != "5" {
		t.Errorf("Apply = %v, want id first", row)
	}
	if !key.Matches(row) {
		t.Error("Matches = false, want true")
	}
	if storage.KeyOf("id", "6").Matches(row) {
		t.Error("Matches other id = true")
	}
	// a row that already carries the key keeps its column position
	row = key.Apply(storage.Row{{Name: "x", Value: "y"}, {Name: "id", Value: "9"}})
	if row[1].Name != "id" || row[1].Value != "5" {
		t.Errorf("Apply = %v, want id overwritten in place", row)
	}
}

func TestOpError_Unwrap(t *testing.T) {
	base := errors.New("disk full")
	err := storage.Fail("upsert", "T", base)
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Error("want ErrUnavailable")
	}
	if !errors.Is(err, base) {
		t.Error("want underlying error")
	}
	if storage.Fail("upsert", "T", nil) != nil {
		t.Error("Fail(nil) should be nil")
	}
}
