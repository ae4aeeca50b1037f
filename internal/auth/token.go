// Package auth issues and verifies operator session tokens. Sentinel has a
// single operator credential: a bcrypt password hash supplied via
// configuration, exchanged for a short-lived HS256 JWT.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the operator password is wrong.
var ErrInvalidCredentials = errors.New("invalid operator credentials")

// OperatorClaims are the JWT claims for an operator session token.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Operator string `json:"operator"`
	Type     string `json:"type"` // always "operator"
}

// TokenIssuer issues and verifies operator session JWTs with a shared
// HMAC secret.
type TokenIssuer struct {
	secret       []byte
	passwordHash string // bcrypt hash of the operator password; empty = auth disabled
	issuer       string
	ttl          time.Duration
}

// NewTokenIssuer creates a TokenIssuer. passwordHash may be empty to disable
// authentication entirely (development mode).
func NewTokenIssuer(secret []byte, passwordHash, issuerURL string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	return &TokenIssuer{
		secret:       secret,
		passwordHash: passwordHash,
		issuer:       issuerURL,
		ttl:          ttl,
	}
}

// Enabled reports whether an operator credential is configured.
func (t *TokenIssuer) Enabled() bool {
	return t.passwordHash != ""
}

// Login checks the operator password and returns a signed session token.
func (t *TokenIssuer) Login(operator, password string) (string, error) {
	if !t.Enabled() {
		return "", errors.New("operator authentication is not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(t.passwordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return t.issue(operator)
}

func (t *TokenIssuer) issue(operator string) (string, error) {
	now := time.Now().UTC()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Operator: operator,
		Type:     "operator",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an operator session token.
func (t *TokenIssuer) Verify(tokenStr string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&OperatorClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify operator token: %w", err)
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid operator token claims")
	}
	if claims.Type != "operator" {
		return nil, errors.New("not an operator session token")
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash of a password, for generating the
// configuration value.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
