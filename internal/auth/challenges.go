package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ChallengeTTL bounds how long a started ceremony may wait for the client's
// second round trip.
const ChallengeTTL = 5 * time.Minute

// Ceremony purposes. A user has at most one live challenge per purpose.
const (
	PurposeRegister = "register"
	PurposeSignIn   = "signin"
)

// Challenge holds the server half of an in-flight WebAuthn ceremony: the
// serialized session data the library needs to verify the client's response.
// Consumed (deleted) at most once, and only after a verified response.
type Challenge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"` // empty for device-initiated sign-in
	Purpose   string    `json:"purpose"`
	Session   []byte    `json:"session"`  // marshaled webauthn.SessionData
	NewUser   bool      `json:"new_user"` // user was provisioned by this ceremony
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeStore is the interface for ceremony challenge persistence.
type ChallengeStore interface {
	// PutChallenge stores a challenge. When UserID is set, any outstanding
	// challenge for the same (user, purpose) is replaced, so at most one
	// ceremony per user per purpose is ever live.
	PutChallenge(ch Challenge) error
	// GetChallenge returns ErrChallengeNotFound when the challenge is absent,
	// already consumed, or past its TTL.
	GetChallenge(id string) (*Challenge, error)
	// DeleteChallenge is idempotent.
	DeleteChallenge(id string) error
	// DeleteExpiredChallenges removes stale records; returns how many.
	DeleteExpiredChallenges() (int, error)
}

// GenerateChallengeID creates a random 32-char hex challenge record ID.
func GenerateChallengeID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
