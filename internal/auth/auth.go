package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// User represents an identity record. Accounts are passwordless; the only
// way to prove ownership is a registered passkey.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Labels         []string  `json:"labels,omitempty"`
	WebAuthnUserID []byte    `json:"webauthn_user_id,omitempty"` // stable opaque 64-byte random handle
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EnsureWebAuthnUserID generates a random WebAuthn user handle if one isn't set.
// Returns true if a new handle was generated (caller should persist the user).
func (u *User) EnsureWebAuthnUserID() (bool, error) {
	if len(u.WebAuthnUserID) > 0 {
		return false, nil
	}
	id := make([]byte, 64)
	if _, err := rand.Read(id); err != nil {
		return false, fmt.Errorf("generate webauthn user id: %w", err)
	}
	u.WebAuthnUserID = id
	return true, nil
}

// Session represents an active signed-in session.
type Session struct {
	Token     string    `json:"token"` // 64-char hex token (also the bucket key)
	UserID    string    `json:"user_id"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestContext is extracted from the request by middleware and placed in context.
type RequestContext struct {
	User    *User
	Session *Session
}

// contextKey is an unexported type for context keys.
type contextKey struct{}

// ContextKey is the key used to store RequestContext in context.Context.
var ContextKey = contextKey{}

// NormalizeEmail lowercases and trims an email so that lookups and account
// creation agree on a single spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail performs the minimal sanity check applied before account creation.
func ValidEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\n")
}

// GenerateUserID creates a random 16-char hex user ID.
func GenerateUserID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
