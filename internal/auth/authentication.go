package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// AuthenticationStart is the outcome of a begun sign-in ceremony.
type AuthenticationStart struct {
	ChallengeID string                        `json:"challengeId"`
	Options     *protocol.CredentialAssertion `json:"options"`
}

// SignInResult is the outcome of a completed sign-in ceremony.
type SignInResult struct {
	User       *User
	Session    *Session
	Credential *Credential
}

// BeginAuthentication starts a sign-in ceremony for a known email. A missing
// account or an account without passkeys yields ErrNoPasskeys and the caller
// tells the user to sign up first.
func (s *Service) BeginAuthentication(ctx context.Context, email, ip string) (*AuthenticationStart, error) {
	if !s.rateLimiter.Allow(ip) {
		return nil, ErrRateLimited
	}

	user, err := s.Users.GetUserByEmail(NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrNoPasskeys
	}

	creds, err := s.Credentials.ListCredentialsForUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, ErrNoPasskeys
	}

	cu := &ceremonyUser{user: user, creds: toLibraryCredentials(creds)}
	assertion, sessionData, err := s.WebAuthn.BeginLogin(cu,
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}

	data, err := json.Marshal(sessionData)
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}
	challengeID, err := s.putChallenge(user.ID, PurposeSignIn, data, false)
	if err != nil {
		return nil, err
	}

	return &AuthenticationStart{ChallengeID: challengeID, Options: assertion}, nil
}

// BeginDeviceAuthentication starts a sign-in ceremony from the device cookie:
// credential IDs the browser has used before, resolved through the exact
// credential index. No matches yields ErrNoPasskeys.
func (s *Service) BeginDeviceAuthentication(ctx context.Context, deviceCookie, ip string) (*AuthenticationStart, error) {
	if !s.rateLimiter.Allow(ip) {
		return nil, ErrRateLimited
	}

	credIDs, err := DecodeDeviceCookie(deviceCookie, s.DeviceSecret)
	if err != nil || len(credIDs) == 0 {
		return nil, ErrNoPasskeys
	}

	creds, err := s.Credentials.GetCredentialsByIDs(credIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve device credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, ErrNoPasskeys
	}

	assertion, sessionData, err := s.WebAuthn.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationPreferred),
		webauthn.WithAllowedCredentials(allowedDescriptors(creds)),
	)
	if err != nil {
		return nil, fmt.Errorf("begin device login: %w", err)
	}

	data, err := json.Marshal(sessionData)
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}
	// No user is known yet, so the challenge is keyed by ID alone.
	challengeID, err := s.putChallenge("", PurposeSignIn, data, false)
	if err != nil {
		return nil, err
	}

	return &AuthenticationStart{ChallengeID: challengeID, Options: assertion}, nil
}

// FinishAuthentication verifies the assertion against the stored challenge,
// updates the credential's sign counter, and exchanges a freshly minted
// identity token for a session.
func (s *Service) FinishAuthentication(ctx context.Context, challengeID string, resp *protocol.ParsedCredentialAssertionData, ip, userAgent string) (*SignInResult, error) {
	if !s.rateLimiter.Allow(ip) {
		return nil, ErrRateLimited
	}

	ch, err := s.Challenges.GetChallenge(challengeID)
	if err != nil {
		return nil, ErrChallengeNotFound
	}
	if ch.Purpose != PurposeSignIn {
		return nil, ErrChallengeNotFound
	}

	var sessionData webauthn.SessionData
	if err := json.Unmarshal(ch.Session, &sessionData); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}

	var (
		user    *User
		libCred *webauthn.Credential
	)
	if ch.UserID != "" {
		user, err = s.Users.GetUser(ch.UserID)
		if err != nil || user == nil {
			return nil, fmt.Errorf("resolve ceremony user: %w", ErrUserNotFound)
		}
		creds, err := s.Credentials.ListCredentialsForUser(user.ID)
		if err != nil {
			return nil, fmt.Errorf("list credentials: %w", err)
		}
		cu := &ceremonyUser{user: user, creds: toLibraryCredentials(creds)}
		libCred, err = s.WebAuthn.ValidateLogin(cu, sessionData, resp)
		if err != nil {
			s.rateLimiter.RecordFailure(ip)
			s.Log.Warn("sign-in verification failed", "user", user.ID, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
	} else {
		libCred, err = s.WebAuthn.ValidateDiscoverableLogin(s.resolveCeremonyUser(&user), sessionData, resp)
		if err != nil {
			s.rateLimiter.RecordFailure(ip)
			s.Log.Warn("device sign-in verification failed", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		if user == nil {
			return nil, fmt.Errorf("resolve credential owner: %w", ErrUserNotFound)
		}
	}

	// Verified. Consume the challenge exactly once.
	if err := s.Challenges.DeleteChallenge(challengeID); err != nil {
		s.Log.Warn("challenge delete failed", "challenge", challengeID, "error", err)
	}

	if err := s.Credentials.UpdateCredentialSignCount(libCred.ID, libCred.Authenticator.SignCount, libCred.Authenticator.CloneWarning); err != nil {
		s.Log.Warn("sign count update failed", "user", user.ID, "error", err)
	}

	idToken, err := s.Tokens.Mint(user.ID)
	if err != nil {
		return nil, err
	}
	session, user, err := s.ExchangeIdentityToken(ctx, idToken, ip, userAgent)
	if err != nil {
		return nil, err
	}

	s.rateLimiter.Reset(ip)
	s.Log.Info("passkey sign-in", "user", user.ID)

	stored, err := s.Credentials.GetCredential(libCred.ID)
	if err != nil {
		stored = nil
	}
	return &SignInResult{User: user, Session: session, Credential: stored}, nil
}

// resolveCeremonyUser returns a DiscoverableUserHandler that resolves the
// credential owner by user handle, falling back to the credential ID index,
// and captures the resolved user for the caller.
func (s *Service) resolveCeremonyUser(out **User) webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		var user *User
		if len(userHandle) > 0 {
			u, err := s.Credentials.GetUserByHandle(userHandle)
			if err == nil && u != nil {
				user = u
			}
		}
		if user == nil {
			cred, err := s.Credentials.GetCredential(rawID)
			if err != nil || cred == nil {
				return nil, ErrCredentialNotFound
			}
			u, err := s.Users.GetUser(cred.UserID)
			if err != nil || u == nil {
				return nil, ErrUserNotFound
			}
			user = u
		}
		*out = user
		creds, err := s.Credentials.ListCredentialsForUser(user.ID)
		if err != nil {
			return nil, fmt.Errorf("list credentials: %w", err)
		}
		return &ceremonyUser{user: user, creds: toLibraryCredentials(creds)}, nil
	}
}
