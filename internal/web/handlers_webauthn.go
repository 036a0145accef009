package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/corvid-app/corvid/internal/auth"
	"github.com/corvid-app/corvid/internal/metrics"
)

// Ceremony endpoints always answer with a tagged result so clients can
// switch on "type" instead of guessing from the status code.
type taggedResult struct {
	Type string `json:"type"`
	Body any    `json:"body"`
}

func writeSuccess(w http.ResponseWriter, body any) {
	writeJSON(w, http.StatusOK, taggedResult{Type: "success", Body: body})
}

func writeRedirect(w http.ResponseWriter, url string) {
	writeJSON(w, http.StatusOK, taggedResult{
		Type: "redirect",
		Body: map[string]any{"status": http.StatusSeeOther, "url": url},
	})
}

func writeCeremonyError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, taggedResult{
		Type: "error",
		Body: map[string]string{"message": msg},
	})
}

type beginBody struct {
	Email string `json:"email"`
}

func (s *Server) apiRegisterBegin(w http.ResponseWriter, r *http.Request) {
	var body beginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeCeremonyError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	metrics.RegistrationsBegun.Inc()
	start, err := s.deps.Auth.BeginRegistration(r.Context(), body.Email, clientIP(r))
	if err != nil {
		s.ceremonyFailure(w, "registration begin failed", err)
		return
	}
	if start.RedirectURL != "" {
		writeRedirect(w, start.RedirectURL)
		return
	}
	writeSuccess(w, map[string]any{
		"challengeId": start.ChallengeID,
		"options":     start.Options,
	})
}

func (s *Server) apiRegisterFinish(w http.ResponseWriter, r *http.Request) {
	challengeID := r.URL.Query().Get("challenge")
	if challengeID == "" {
		writeCeremonyError(w, http.StatusBadRequest, "missing challenge id")
		return
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		metrics.RegistrationsFinished.WithLabelValues(metrics.OutcomeVerifyFailed).Inc()
		writeCeremonyError(w, http.StatusBadRequest, "malformed credential response")
		return
	}

	result, err := s.deps.Auth.FinishRegistration(r.Context(), challengeID, parsed, clientIP(r), r.UserAgent())
	if err != nil {
		metrics.RegistrationsFinished.WithLabelValues(ceremonyOutcome(err)).Inc()
		s.ceremonyFailure(w, "registration finish failed", err)
		return
	}
	metrics.RegistrationsFinished.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.SessionsCreated.Inc()

	auth.SetSessionCookies(w, result.Session.Token, result.Session.ExpiresAt, s.deps.Auth.CookieSecure)
	auth.EnsureCSRFCookie(w, r, s.deps.Auth.CookieSecure)
	s.rememberDevice(w, r, result.Credential.ID)

	writeSuccess(w, map[string]any{"redirect": "/"})
}

func (s *Server) apiSignInBegin(w http.ResponseWriter, r *http.Request) {
	var body beginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeCeremonyError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	metrics.SignInsBegun.WithLabelValues("email").Inc()
	start, err := s.deps.Auth.BeginAuthentication(r.Context(), body.Email, clientIP(r))
	if err != nil {
		s.ceremonyFailure(w, "signin begin failed", err)
		return
	}
	writeSuccess(w, map[string]any{
		"challengeId": start.ChallengeID,
		"options":     start.Options,
	})
}

func (s *Server) apiSignInDeviceBegin(w http.ResponseWriter, r *http.Request) {
	metrics.SignInsBegun.WithLabelValues("device").Inc()

	cookie := auth.GetDeviceCookie(r)
	if cookie == "" {
		writeCeremonyError(w, http.StatusNotFound, "no remembered passkeys on this device")
		return
	}
	start, err := s.deps.Auth.BeginDeviceAuthentication(r.Context(), cookie, clientIP(r))
	if err != nil {
		s.ceremonyFailure(w, "device signin begin failed", err)
		return
	}
	writeSuccess(w, map[string]any{
		"challengeId": start.ChallengeID,
		"options":     start.Options,
	})
}

func (s *Server) apiSignInFinish(w http.ResponseWriter, r *http.Request) {
	challengeID := r.URL.Query().Get("challenge")
	if challengeID == "" {
		writeCeremonyError(w, http.StatusBadRequest, "missing challenge id")
		return
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		metrics.SignInsFinished.WithLabelValues(metrics.OutcomeVerifyFailed).Inc()
		writeCeremonyError(w, http.StatusBadRequest, "malformed assertion response")
		return
	}

	result, err := s.deps.Auth.FinishAuthentication(r.Context(), challengeID, parsed, clientIP(r), r.UserAgent())
	if err != nil {
		metrics.SignInsFinished.WithLabelValues(ceremonyOutcome(err)).Inc()
		s.ceremonyFailure(w, "signin finish failed", err)
		return
	}
	metrics.SignInsFinished.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.SessionsCreated.Inc()

	auth.SetSessionCookies(w, result.Session.Token, result.Session.ExpiresAt, s.deps.Auth.CookieSecure)
	auth.EnsureCSRFCookie(w, r, s.deps.Auth.CookieSecure)
	if result.Credential != nil {
		s.rememberDevice(w, r, result.Credential.ID)
	}

	writeSuccess(w, map[string]any{"redirect": "/"})
}

// rememberDevice folds the just-used credential into the device cookie
// so the next visit can offer a one-tap sign-in. A tampered or stale
// existing cookie is simply replaced; the ceremony already succeeded.
func (s *Server) rememberDevice(w http.ResponseWriter, r *http.Request, credentialID []byte) {
	var existing [][]byte
	if cookie := auth.GetDeviceCookie(r); cookie != "" {
		if ids, err := auth.DecodeDeviceCookie(cookie, s.deps.Auth.DeviceSecret); err == nil {
			existing = ids
		}
	}
	updated := auth.AppendDeviceCredential(existing, credentialID)
	auth.SetDeviceCookie(w, auth.EncodeDeviceCookie(updated, s.deps.Auth.DeviceSecret), s.deps.Auth.CookieSecure)
}

// ceremonyFailure maps service errors onto tagged HTTP responses.
// Internal details never reach the client.
func (s *Server) ceremonyFailure(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		writeCeremonyError(w, http.StatusTooManyRequests, "too many attempts, try again later")
	case errors.Is(err, auth.ErrNoPasskeys):
		writeCeremonyError(w, http.StatusNotFound, "no passkey registered for this account")
	case errors.Is(err, auth.ErrChallengeNotFound):
		writeCeremonyError(w, http.StatusBadRequest, "challenge expired or already used")
	case errors.Is(err, auth.ErrVerificationFailed):
		writeCeremonyError(w, http.StatusUnauthorized, "passkey verification failed")
	case errors.Is(err, auth.ErrInvalidEmail):
		writeCeremonyError(w, http.StatusBadRequest, "invalid email address")
	default:
		s.deps.Log.Error(msg, "error", err)
		writeCeremonyError(w, http.StatusInternalServerError, "internal error")
	}
}

func ceremonyOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrVerificationFailed):
		return metrics.OutcomeVerifyFailed
	case errors.Is(err, auth.ErrChallengeNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
