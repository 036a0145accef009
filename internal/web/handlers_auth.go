package web

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/corvid-app/corvid/internal/auth"
)

func (s *Server) apiSignOut(w http.ResponseWriter, r *http.Request) {
	if token := auth.GetSessionToken(r); token != "" {
		if err := s.deps.Auth.SignOut(token); err != nil {
			s.deps.Log.Warn("signout failed", "error", err)
		}
	}
	auth.ClearSessionCookies(w, s.deps.Auth.CookieSecure)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (s *Server) apiMe(w http.ResponseWriter, r *http.Request) {
	rc := auth.GetRequestContext(r.Context())
	profileID := ""
	if profile, err := s.deps.Profiles.GetProfileByUser(rc.User.ID); err == nil && profile != nil {
		profileID = profile.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          rc.User.ID,
		"email":       rc.User.Email,
		"labels":      rc.User.Labels,
		"profileId":   profileID,
		"hasPasskeys": s.deps.Auth.HasPasskeys(rc.User.ID),
		"createdAt":   rc.User.CreatedAt,
	})
}

// apiSignOutAll revokes every session for the account, e.g. after a
// passkey is removed on a shared machine.
func (s *Server) apiSignOutAll(w http.ResponseWriter, r *http.Request) {
	rc := auth.GetRequestContext(r.Context())
	if err := s.deps.Auth.SignOutEverywhere(rc.User.ID); err != nil {
		s.deps.Log.Error("signout everywhere failed", "user", rc.User.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	auth.ClearSessionCookies(w, s.deps.Auth.CookieSecure)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

type passkeyInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Transport []string `json:"transport,omitempty"`
	CreatedAt string   `json:"createdAt"`
}

func (s *Server) apiListPasskeys(w http.ResponseWriter, r *http.Request) {
	rc := auth.GetRequestContext(r.Context())
	creds, err := s.deps.Auth.Credentials.ListCredentialsForUser(rc.User.ID)
	if err != nil {
		s.deps.Log.Error("list passkeys failed", "user", rc.User.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]passkeyInfo, 0, len(creds))
	for _, c := range creds {
		out = append(out, passkeyInfo{
			ID:        base64.RawURLEncoding.EncodeToString(c.ID),
			Name:      c.Name,
			Transport: c.Transport,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"passkeys": out})
}

func (s *Server) apiDeletePasskey(w http.ResponseWriter, r *http.Request) {
	rc := auth.GetRequestContext(r.Context())
	credID, err := base64.RawURLEncoding.DecodeString(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid passkey id")
		return
	}

	cred, err := s.deps.Auth.Credentials.GetCredential(credID)
	if err != nil || cred == nil {
		writeError(w, http.StatusNotFound, "passkey not found")
		return
	}
	if cred.UserID != rc.User.ID {
		writeError(w, http.StatusForbidden, "not your passkey")
		return
	}

	if err := s.deps.Auth.Credentials.DeleteCredential(credID); err != nil {
		s.deps.Log.Error("delete passkey failed", "user", rc.User.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.deps.Log.Info("passkey deleted", "user", rc.User.ID, "name", cred.Name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
