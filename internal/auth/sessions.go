package auth

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

const (
	// SessionCookieName is the current session cookie.
	SessionCookieName = "corvid_session"
	// LegacySessionCookieName is the pre-rename cookie. It is still written
	// and read so sessions survive for clients that only hold the old name.
	LegacySessionCookieName = "corvid_sid"

	sessionTokenBytes = 32 // 32 bytes = 64 hex chars
)

// GenerateSessionToken creates a cryptographically random 64-char hex token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SetSessionCookies sets the session cookie on the response under both names.
func SetSessionCookies(w http.ResponseWriter, token string, expiry time.Time, secure bool) {
	for _, name := range []string{SessionCookieName, LegacySessionCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    token,
			Path:     "/",
			Expires:  expiry,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
			Secure:   secure,
		})
	}
}

// ClearSessionCookies removes both session cookies.
func ClearSessionCookies(w http.ResponseWriter, secure bool) {
	for _, name := range []string{SessionCookieName, LegacySessionCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
			Secure:   secure,
		})
	}
}

// GetSessionToken extracts the session token from the request, preferring the
// current cookie name and falling back to the legacy one.
func GetSessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if cookie, err := r.Cookie(LegacySessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
