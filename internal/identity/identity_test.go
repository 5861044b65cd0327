package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
)

func TestDerive_Deterministic(t *testing.T) {
	a := Derive("user-1", "Bob")
	b := Derive("user-1", "Bob")
	if a != b {
		t.Errorf("Derive not deterministic: %d != %d", a, b)
	}
}

func TestDerive_Normalizes(t *testing.T) {
	if Derive(" Alice ", "Bob") != Derive("alice", "bob") {
		t.Error(`Derive(" Alice ", "Bob") != Derive("alice", "bob")`)
	}
	if Derive("alice", "bob") == Derive("alice", "rob") {
		t.Error("distinct partners share an identity")
	}
}

func TestDerive_MatchesHexPrefixRule(t *testing.T) {
	sum := sha256.Sum256([]byte("alice_bob"))
	n, err := strconv.ParseInt(hex.EncodeToString(sum[:])[:8], 16, 64)
	if err != nil {
		t.Fatal(err)
	}
	want := n % Modulus
	if want == 0 {
		want = 1
	}
	if got := Derive("Alice", "BOB"); got != want {
		t.Errorf("Derive = %d, want %d", got, want)
	}
}

func TestDerive_Range(t *testing.T) {
	for i := 0; i < 500; i++ {
		id := Derive(strconv.Itoa(i), "p")
		if id < 1 || id >= Modulus {
			t.Fatalf("Derive(%d) = %d out of range", i, id)
		}
	}
}

func TestResolve_NewPairUsesCandidate(t *testing.T) {
	entries := []Entry{{ID: 10, UserID: "u", Partner: "x"}}
	if got := Resolve(entries, 20, "u", "y"); got != 20 {
		t.Errorf("Resolve = %d, want 20", got)
	}
}

func TestResolve_ExistingPairReusesStoredID(t *testing.T) {
	// the pair was stored under a probed id, not its raw hash
	entries := []Entry{
		{ID: 100, UserID: "other", Partner: "someone"},
		{ID: 101, UserID: "Alice", Partner: "Bob "},
	}
	for i := 0; i < 2; i++ {
		if got := Resolve(entries, 100, "alice", "bob"); got != 101 {
			t.Errorf("call %d: Resolve = %d, want 101", i, got)
		}
	}
}

func TestResolve_ProbesPastCollisions(t *testing.T) {
	entries := []Entry{
		{ID: 7, UserID: "a", Partner: "b"},
		{ID: 8, UserID: "c", Partner: "d"},
		{ID: 10, UserID: "e", Partner: "f"},
	}
	got := Resolve(entries, 7, "new", "pair")
	if got != 9 {
		t.Errorf("Resolve = %d, want 9", got)
	}
	if again := Resolve(entries, 7, "new", "pair"); again != got {
		t.Errorf("Resolve not idempotent: %d then %d", got, again)
	}
}

func TestResolve_WrapsAtModulus(t *testing.T) {
	entries := []Entry{{ID: Modulus - 1, UserID: "a", Partner: "b"}}
	if got := Resolve(entries, Modulus-1, "x", "y"); got != 1 {
		t.Errorf("Resolve = %d, want 1", got)
	}
}

func TestLookup(t *testing.T) {
	entries := []Entry{{ID: 5, UserID: "u", Partner: "p"}}
	if id, ok := Lookup(entries, " U", "P "); !ok || id != 5 {
		t.Errorf("Lookup = %d, %v", id, ok)
	}
	if _, ok := Lookup(entries, "u", "q"); ok {
		t.Error("Lookup found unrelated pair")
	}
}
