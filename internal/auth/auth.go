// Package auth issues and verifies the bearer tokens used by the protected
// platform endpoints, and handles credential hashing with salted bcrypt.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenTTL is the bearer token lifetime.
const TokenTTL = 24 * time.Hour

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Identity is the claim set carried by every bearer token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name"`
}

type tokenClaims struct {
	Identity
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with a process-wide HMAC secret.
type Manager struct {
	secret []byte
	now    func() time.Time
}

func NewManager(secret string) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("missing secret key")
	}
	return &Manager{secret: []byte(secret), now: time.Now}, nil
}

// Issue mints a signed token for the identity, valid for TokenTTL.
func (m *Manager) Issue(id Identity) (string, error) {
	if m == nil {
		return "", errors.New("manager not ready")
	}
	if strings.TrimSpace(id.ID) == "" || strings.TrimSpace(id.Email) == "" {
		return "", errors.New("incomplete identity")
	}
	now := m.now()
	claims := tokenClaims{
		Identity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses a token and returns the embedded identity.
func (m *Manager) Verify(token string) (*Identity, error) {
	if m == nil {
		return nil, errors.New("manager not ready")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return &claims.Identity, nil
}

// HasRole reports whether the identity carries one of the allowed roles.
func (id *Identity) HasRole(roles ...string) bool {
	if id == nil {
		return false
	}
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}

// HashPassword derives a salted bcrypt hash for storage.
func HashPassword(plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", errors.New("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a stored hash against a candidate password.
func VerifyPassword(hash string, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
