// CLAUDE:SUMMARY Deterministic session identity from (user, partner) — sha256 truncated to 31 bits, collision probing against stored pairs
// Package identity derives the numeric key shared by every per-session table.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"strings"
)

// Modulus bounds identities to the positive 31-bit range.
const Modulus = 1<<31 - 1

// Normalize lowercases and trims an identifier before hashing or comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Derive maps a (user, partner) pair to an identity in [1, Modulus).
// Zero is reserved as the "no identity" value.
func Derive(userID, partner string) int64 {
	sum := sha256.Sum256([]byte(Normalize(userID) + "_" + Normalize(partner)))
	// the first 8 hex digits of the digest
	n := int64(binary.BigEndian.Uint32(sum[:4])) % Modulus
	if n == 0 {
		n = 1
	}
	return n
}

// Entry is one stored identity with the pair it was issued for.
type Entry struct {
	ID      int64
	UserID  string
	Partner string
}

func (e Entry) matches(userID, partner string) bool {
	return Normalize(e.UserID) == Normalize(userID) && Normalize(e.Partner) == Normalize(partner)
}

// Lookup returns the identity already stored for the pair.
func Lookup(entries []Entry, userID, partner string) (int64, bool) {
	for _, e := range entries {
		if e.matches(userID, partner) {
			return e.ID, true
		}
	}
	return 0, false
}

// Resolve returns the stored identity of the pair when present. Otherwise it
// returns candidate, or the first identity above it not held by another pair.
// The result depends only on entries, so repeated calls agree.
func Resolve(entries []Entry, candidate int64, userID, partner string) int64 {
	if id, ok := Lookup(entries, userID, partner); ok {
		return id
	}
	taken := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		taken[e.ID] = struct{}{}
	}
	id := candidate
	for {
		if _, ok := taken[id]; !ok {
			break
		}
		next := id + 1
		if next >= Modulus {
			next = 1
		}
		slog.Warn("identity collision", "candidate", candidate, "taken", id, "probe", next)
		id = next
	}
	return id
}
