// CLAUDE:SUMMARY JWT authentication — survey session and admin tokens, bcrypt admin password check, claims extraction from HTTP requests
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Token roles.
const (
	RoleSession = "session"
	RoleAdmin   = "admin"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	// ErrAdminDisabled means no admin password hash is configured.
	ErrAdminDisabled = errors.New("admin login disabled")
	ErrBadPassword   = errors.New("invalid credentials")
)

var timeNow = time.Now

type Auth struct {
	secret    []byte
	expiry    time.Duration
	adminHash string
}

type Claims struct {
	Role string `json:"role"`
	// Handle is the in-memory survey session handle for session tokens.
	Handle string `json:"handle,omitempty"`
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func New(secret string, expiryMinutes int, adminHash string) *Auth {
	return &Auth{
		secret:    []byte(secret),
		expiry:    time.Duration(expiryMinutes) * time.Minute,
		adminHash: adminHash,
	}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// AdminLogin checks password against the configured hash and returns an
// admin token.
func (a *Auth) AdminLogin(password string) (string, error) {
	if a.adminHash == "" {
		return "", ErrAdminDisabled
	}
	if !CheckPassword(a.adminHash, password) {
		return "", ErrBadPassword
	}
	return a.generate(Claims{Role: RoleAdmin})
}

// SessionToken binds a survey session handle to a token.
func (a *Auth) SessionToken(handle, userID string) (string, error) {
	return a.generate(Claims{Role: RoleSession, Handle: handle, UserID: userID})
}

func (a *Auth) generate(claims Claims) (string, error) {
	now := timeNow()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(timeNow))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractClaims reads the JWT from the Authorization header (Bearer token).
// Returns nil if no valid token with the given role is present.
func (a *Auth) ExtractClaims(r *http.Request, role string) *Claims {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil
	}
	claims, err := a.ValidateToken(parts[1])
	if err != nil || claims.Role != role {
		return nil
	}
	return claims
}
