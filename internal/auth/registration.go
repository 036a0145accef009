package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// RegistrationStart is the outcome of BeginRegistration. Exactly one of
// (ChallengeID, Options) or RedirectURL is populated: a user who already owns
// a passkey is sent to sign-in and no challenge is created.
type RegistrationStart struct {
	ChallengeID string                       `json:"challengeId,omitempty"`
	Options     *protocol.CredentialCreation `json:"options,omitempty"`
	RedirectURL string                       `json:"redirect,omitempty"`
}

// SignUpResult is the outcome of a completed registration ceremony.
type SignUpResult struct {
	User       *User
	Session    *Session
	Credential *Credential
	ProfileID  string
}

// BeginRegistration resolves (or provisions) the account for an email and
// starts a registration ceremony for it.
func (s *Service) BeginRegistration(ctx context.Context, email, ip string) (*RegistrationStart, error) {
	if !s.rateLimiter.Allow(ip) {
		return nil, ErrRateLimited
	}

	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	user, created, err := s.resolveOrCreateUser(email)
	if err != nil {
		return nil, err
	}

	// One passkey per account: a user who already registered signs in instead.
	existing, err := s.Credentials.ListCredentialsForUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	if len(existing) > 0 {
		return &RegistrationStart{RedirectURL: s.SignInURL}, nil
	}

	changed, err := user.EnsureWebAuthnUserID()
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.Users.UpdateUser(*user); err != nil {
			return nil, fmt.Errorf("persist user: %w", err)
		}
	}

	cu := &ceremonyUser{user: user}
	creation, sessionData, err := s.WebAuthn.BeginRegistration(cu,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementPreferred,
			UserVerification:        protocol.VerificationPreferred,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}

	data, err := json.Marshal(sessionData)
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}
	challengeID, err := s.putChallenge(user.ID, PurposeRegister, data, created)
	if err != nil {
		return nil, err
	}

	return &RegistrationStart{ChallengeID: challengeID, Options: creation}, nil
}

// FinishRegistration verifies the client's attestation response against the
// stored challenge. An unverified response has zero side effects. A verified
// one runs the sign-up saga (credential, then profile, then session), where
// each step has a compensating delete so a partial failure leaves nothing
// behind.
func (s *Service) FinishRegistration(ctx context.Context, challengeID string, resp *protocol.ParsedCredentialCreationData, ip, userAgent string) (*SignUpResult, error) {
	if !s.rateLimiter.Allow(ip) {
		return nil, ErrRateLimited
	}

	ch, err := s.Challenges.GetChallenge(challengeID)
	if err != nil {
		return nil, ErrChallengeNotFound
	}
	if ch.Purpose != PurposeRegister {
		return nil, ErrChallengeNotFound
	}

	user, err := s.Users.GetUser(ch.UserID)
	if err != nil || user == nil {
		return nil, fmt.Errorf("resolve ceremony user: %w", ErrUserNotFound)
	}

	var sessionData webauthn.SessionData
	if err := json.Unmarshal(ch.Session, &sessionData); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}

	cu := &ceremonyUser{user: user}
	libCred, err := s.WebAuthn.CreateCredential(cu, sessionData, resp)
	if err != nil {
		s.rateLimiter.RecordFailure(ip)
		s.Log.Warn("registration verification failed", "user", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	// Verified. Consume the challenge exactly once before committing state.
	if err := s.Challenges.DeleteChallenge(challengeID); err != nil {
		s.Log.Warn("challenge delete failed", "challenge", challengeID, "error", err)
	}

	result, err := s.completeSignUp(user, ch.NewUser, libCred, ip, userAgent)
	if err != nil {
		return nil, err
	}
	s.rateLimiter.Reset(ip)
	return result, nil
}

// completeSignUp commits the post-verification state. Steps unwind in reverse
// on failure; a user provisioned by this same ceremony is removed too.
func (s *Service) completeSignUp(user *User, newUser bool, libCred *webauthn.Credential, ip, userAgent string) (*SignUpResult, error) {
	compensateUser := func() {
		if newUser {
			if err := s.Users.DeleteUser(user.ID); err != nil {
				s.Log.Error("sign-up compensation: delete user failed", "user", user.ID, "error", err)
			}
		}
	}

	cred := fromLibraryCredential(libCred, user.ID, defaultCredentialName(libCred))
	if err := s.Credentials.CreateCredential(cred); err != nil {
		compensateUser()
		return nil, fmt.Errorf("store credential: %w", err)
	}

	profileID, err := s.Profiles.CreateProfileForUser(user.ID, usernameFromEmail(user.Email))
	if err != nil {
		if derr := s.Credentials.DeleteCredential(cred.ID); derr != nil {
			s.Log.Error("sign-up compensation: delete credential failed", "user", user.ID, "error", derr)
		}
		compensateUser()
		return nil, fmt.Errorf("create profile: %w", err)
	}

	session, err := s.createSession(user.ID, ip, userAgent)
	if err != nil {
		if derr := s.Profiles.DeleteProfile(profileID); derr != nil {
			s.Log.Error("sign-up compensation: delete profile failed", "profile", profileID, "error", derr)
		}
		if derr := s.Credentials.DeleteCredential(cred.ID); derr != nil {
			s.Log.Error("sign-up compensation: delete credential failed", "user", user.ID, "error", derr)
		}
		compensateUser()
		return nil, err
	}

	s.Log.Info("passkey registered", "user", user.ID, "profile", profileID)
	return &SignUpResult{User: user, Session: session, Credential: &cred, ProfileID: profileID}, nil
}

// usernameFromEmail derives the initial profile username from the local part.
func usernameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

func defaultCredentialName(cred *webauthn.Credential) string {
	if cred.Authenticator.Attachment == protocol.Platform {
		return "Platform passkey"
	}
	return "Passkey"
}
