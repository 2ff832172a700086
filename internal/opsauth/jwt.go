package opsauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that fails parsing,
// signature verification, or expiry, without distinguishing which.
var ErrInvalidToken = errors.New("opsauth: invalid token")

// sessionTTL is how long an ops session token is valid for; there is no
// refresh-token tier since the ops surface is a single operator account,
// not a multi-user session system.
const sessionTTL = 8 * time.Hour

// Claims identifies the operator session. Subject is always "operator":
// the ops surface has exactly one account, so there is no user id to carry.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager issues and validates ops session tokens.
type Manager struct {
	signingKey []byte
}

func NewManager(signingKey string) *Manager {
	return &Manager{signingKey: []byte(signingKey)}
}

// IssueSessionToken returns a signed JWT good for sessionTTL, along with
// the jti so the caller can blacklist it on logout.
func (m *Manager) IssueSessionToken() (token string, jti string, err error) {
	now := time.Now().UTC()
	jti = uuid.New().String()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			ID:        jti,
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(m.signingKey)
	if err != nil {
		return "", "", fmt.Errorf("opsauth: sign token: %w", err)
	}
	return signed, jti, nil
}

// Validate parses and verifies tokenString, returning its claims.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("opsauth: unexpected signing method %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
