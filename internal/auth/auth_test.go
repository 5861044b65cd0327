package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAdminLogin(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	a := New("secret", 60, hash)

	if _, err := a.AdminLogin("wrong"); !errors.Is(err, ErrBadPassword) {
		t.Errorf("wrong password err = %v", err)
	}
	tok, err := a.AdminLogin("s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	if c := a.ExtractClaims(r, RoleAdmin); c == nil {
		t.Error("admin claims missing")
	}
	if c := a.ExtractClaims(r, RoleSession); c != nil {
		t.Error("admin token accepted as session token")
	}

	if _, err := New("secret", 60, "").AdminLogin("anything"); !errors.Is(err, ErrAdminDisabled) {
		t.Errorf("no hash err = %v", err)
	}
}

func TestSessionToken(t *testing.T) {
	a := New("secret", 60, "")
	tok, err := a.SessionToken("h1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	c, err := a.ValidateToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.Role != RoleSession || c.Handle != "h1" || c.UserID != "u1" {
		t.Errorf("claims = %+v", c)
	}

	if _, err := New("other", 60, "").ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign secret err = %v", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	a := New("secret", 1, "")
	tok, err := a.SessionToken("h1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	orig := timeNow
	timeNow = func() time.Time { return orig().Add(2 * time.Minute) }
	defer func() { timeNow = orig }()
	if _, err := a.ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired err = %v", err)
	}
}

func TestExtractClaims_Malformed(t *testing.T) {
	a := New("secret", 60, "")
	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer not.a.jwt"} {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", h)
		if a.ExtractClaims(r, RoleSession) != nil {
			t.Errorf("header %q accepted", h)
		}
	}
}
