package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// UserStore is the interface for user persistence.
type UserStore interface {
	CreateUser(user User) error
	GetUser(id string) (*User, error)
	// GetUserByEmail does an exact lookup of the normalized email.
	// Returns nil, nil when absent.
	GetUserByEmail(email string) (*User, error)
	UpdateUser(user User) error
	DeleteUser(id string) error
	UserCount() (int, error)
}

// SessionStore is the interface for session persistence.
type SessionStore interface {
	CreateSession(session Session) error
	GetSession(token string) (*Session, error)
	DeleteSession(token string) error
	DeleteSessionsForUser(userID string) error
	DeleteExpiredSessions() (int, error)
}

// ProfileProvisioner creates the profile document that accompanies a new
// account, and removes it again when the sign-up saga unwinds.
type ProfileProvisioner interface {
	CreateProfileForUser(userID, username string) (profileID string, err error)
	DeleteProfile(profileID string) error
}

// Service sequences the passkey ceremonies over the stores.
type Service struct {
	Users       UserStore
	Sessions    SessionStore
	Challenges  ChallengeStore
	Credentials CredentialStore
	Profiles    ProfileProvisioner
	WebAuthn    *webauthn.WebAuthn
	Tokens      *TokenMinter
	Log         *slog.Logger

	CookieSecure  bool
	SessionExpiry time.Duration
	DeviceSecret  []byte // HMAC key for the device cookie
	SignInURL     string // where registration redirects when a passkey already exists

	rateLimiter *RateLimiter
}

// ServiceConfig holds the configuration for creating a Service.
type ServiceConfig struct {
	Users         UserStore
	Sessions      SessionStore
	Challenges    ChallengeStore
	Credentials   CredentialStore
	Profiles      ProfileProvisioner
	WebAuthn      *webauthn.WebAuthn
	TokenSecret   []byte
	Log           *slog.Logger
	CookieSecure  bool
	SessionExpiry time.Duration
	SignInURL     string
}

// NewService creates a new ceremony service.
func NewService(cfg ServiceConfig) *Service {
	signInURL := cfg.SignInURL
	if signInURL == "" {
		signInURL = "/user/signin"
	}
	return &Service{
		Users:         cfg.Users,
		Sessions:      cfg.Sessions,
		Challenges:    cfg.Challenges,
		Credentials:   cfg.Credentials,
		Profiles:      cfg.Profiles,
		WebAuthn:      cfg.WebAuthn,
		Tokens:        NewTokenMinter(cfg.TokenSecret),
		Log:           cfg.Log,
		CookieSecure:  cfg.CookieSecure,
		SessionExpiry: cfg.SessionExpiry,
		DeviceSecret:  cfg.TokenSecret,
		SignInURL:     signInURL,
		rateLimiter:   NewRateLimiter(),
	}
}

// ExchangeIdentityToken swaps a minted identity token for a session.
func (s *Service) ExchangeIdentityToken(ctx context.Context, token, ip, userAgent string) (*Session, *User, error) {
	userID, err := s.Tokens.Verify(token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.Users.GetUser(userID)
	if err != nil || user == nil {
		return nil, nil, ErrIdentityTokenInvalid
	}
	session, err := s.createSession(user.ID, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// ValidateSession checks a session token and returns a RequestContext if valid.
func (s *Service) ValidateSession(ctx context.Context, token string) *RequestContext {
	session, err := s.Sessions.GetSession(token)
	if err != nil || session == nil {
		return nil
	}

	if time.Now().After(session.ExpiresAt) {
		_ = s.Sessions.DeleteSession(token)
		return nil
	}

	user, err := s.Users.GetUser(session.UserID)
	if err != nil || user == nil {
		return nil
	}

	return &RequestContext{User: user, Session: session}
}

// SignOut revokes a session.
func (s *Service) SignOut(token string) error {
	return s.Sessions.DeleteSession(token)
}

// SignOutEverywhere revokes every session belonging to a user.
func (s *Service) SignOutEverywhere(userID string) error {
	return s.Sessions.DeleteSessionsForUser(userID)
}

// HasPasskeys returns whether the user has any credentials registered.
func (s *Service) HasPasskeys(userID string) bool {
	creds, err := s.Credentials.ListCredentialsForUser(userID)
	if err != nil {
		return false
	}
	return len(creds) > 0
}

// CleanupExpired removes expired sessions and challenges. Returns counts.
func (s *Service) CleanupExpired() (sessions, challenges int) {
	n, err := s.Sessions.DeleteExpiredSessions()
	if err != nil {
		s.Log.Warn("session sweep failed", "error", err)
	}
	sessions = n
	n, err = s.Challenges.DeleteExpiredChallenges()
	if err != nil {
		s.Log.Warn("challenge sweep failed", "error", err)
	}
	challenges = n
	s.rateLimiter.Cleanup()
	return sessions, challenges
}

// resolveOrCreateUser looks up a user by normalized email, provisioning a
// passwordless account when absent. Returns whether a new user was created.
func (s *Service) resolveOrCreateUser(email string) (*User, bool, error) {
	user, err := s.Users.GetUserByEmail(email)
	if err != nil {
		return nil, false, fmt.Errorf("lookup user: %w", err)
	}
	if user != nil {
		return user, false, nil
	}

	id, err := GenerateUserID()
	if err != nil {
		return nil, false, fmt.Errorf("generate user id: %w", err)
	}
	now := time.Now().UTC()
	created := User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now}
	if err := s.Users.CreateUser(created); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return &created, true, nil
}

func (s *Service) createSession(userID, ip, userAgent string) (*Session, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	session := Session{
		Token:     token,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(s.SessionExpiry),
	}
	if err := s.Sessions.CreateSession(session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

// putChallenge persists ceremony session data and returns the challenge ID.
func (s *Service) putChallenge(userID, purpose string, sessionData []byte, newUser bool) (string, error) {
	id, err := GenerateChallengeID()
	if err != nil {
		return "", fmt.Errorf("generate challenge id: %w", err)
	}
	now := time.Now().UTC()
	ch := Challenge{
		ID:        id,
		UserID:    userID,
		Purpose:   purpose,
		Session:   sessionData,
		NewUser:   newUser,
		CreatedAt: now,
		ExpiresAt: now.Add(ChallengeTTL),
	}
	if err := s.Challenges.PutChallenge(ch); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return id, nil
}
