package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityTokenTTL is how long a minted identity token stays exchangeable.
// The orchestrator exchanges it immediately; the margin covers clock skew.
const IdentityTokenTTL = 60 * time.Second

var ErrIdentityTokenInvalid = fmt.Errorf("identity token invalid or expired")

// TokenMinter mints and verifies the short-lived identity tokens issued after
// a verified assertion and exchanged for a session.
type TokenMinter struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenMinter creates a TokenMinter with the given HMAC secret.
func NewTokenMinter(secret []byte) *TokenMinter {
	return &TokenMinter{secret: secret, ttl: IdentityTokenTTL}
}

// Mint creates a signed identity token for a user.
func (m *TokenMinter) Mint(userID string) (string, error) {
	jti := make([]byte, 8)
	if _, err := rand.Read(jti); err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ID:        hex.EncodeToString(jti),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign identity token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns the user ID.
func (m *TokenMinter) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrIdentityTokenInvalid
	}
	return claims.Subject, nil
}
