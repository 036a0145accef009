// Package web exposes the HTTP API: passkey ceremonies, session
// management, and the social surface (profiles, posts, conversations).
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corvid-app/corvid/internal/auth"
	"github.com/corvid-app/corvid/internal/social"
)

// ProfileStore is the profile persistence the handlers need.
type ProfileStore interface {
	GetProfile(id string) (*social.Profile, error)
	GetProfileByUsername(username string) (*social.Profile, error)
	GetProfileByUser(userID string) (*social.Profile, error)
	UpdateProfile(p social.Profile) error
}

// PostStore is the post persistence the handlers need.
type PostStore interface {
	CreatePost(p social.Post) error
	GetPost(id string) (*social.Post, error)
	ListPostsByProfile(profileID string) ([]social.Post, error)
	UpdatePost(p social.Post) error
	DeletePost(id string) error
}

// ConversationStore is the conversation persistence the handlers need.
type ConversationStore interface {
	SaveConversation(c social.Conversation) error
	GetConversation(id string) (*social.Conversation, error)
	ListConversationsByOwner(profileID string) ([]social.Conversation, error)
	DeleteConversation(id string) error
}

// Dependencies carries everything the HTTP layer needs.
type Dependencies struct {
	Auth          *auth.Service
	Profiles      ProfileStore
	Posts         PostStore
	Conversations ConversationStore
	Log           *slog.Logger
}

// Server is the HTTP server for the API.
type Server struct {
	deps Dependencies
	mux  *http.ServeMux
	srv  *http.Server
}

// NewServer builds a Server listening on addr.
func NewServer(addr string, deps Dependencies) *Server {
	s := &Server{
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	sessionMw := auth.SessionMiddleware(s.deps.Auth)

	// Session-gated handlers; mutating methods also pass the CSRF
	// double-submit check.
	requireSession := func(h http.Handler) http.Handler {
		return sessionMw(auth.CSRFMiddleware(h))
	}

	// Passkey ceremonies.
	s.mux.HandleFunc("POST /api/auth/register/begin", s.apiRegisterBegin)
	s.mux.HandleFunc("POST /api/auth/register/finish", s.apiRegisterFinish)
	s.mux.HandleFunc("POST /api/auth/signin/begin", s.apiSignInBegin)
	s.mux.HandleFunc("POST /api/auth/signin/device/begin", s.apiSignInDeviceBegin)
	s.mux.HandleFunc("POST /api/auth/signin/finish", s.apiSignInFinish)

	// Session and account. Sign-out is cookie-authenticated but not
	// session-gated; it still passes the CSRF check.
	s.mux.Handle("POST /api/auth/signout", auth.CSRFMiddleware(http.HandlerFunc(s.apiSignOut)))
	s.mux.Handle("POST /api/auth/signout/all", requireSession(http.HandlerFunc(s.apiSignOutAll)))
	s.mux.Handle("GET /api/auth/me", requireSession(http.HandlerFunc(s.apiMe)))
	s.mux.Handle("GET /api/auth/passkeys", requireSession(http.HandlerFunc(s.apiListPasskeys)))
	s.mux.Handle("DELETE /api/auth/passkeys/{id}", requireSession(http.HandlerFunc(s.apiDeletePasskey)))

	// Profiles.
	s.mux.Handle("GET /api/profiles/me", requireSession(http.HandlerFunc(s.apiMyProfile)))
	s.mux.Handle("PATCH /api/profiles/me", requireSession(http.HandlerFunc(s.apiUpdateProfile)))
	s.mux.HandleFunc("GET /api/profiles/{username}", s.apiGetProfile)
	s.mux.HandleFunc("GET /api/profiles/{username}/posts", s.apiListProfilePosts)

	// Posts.
	s.mux.Handle("POST /api/posts", requireSession(http.HandlerFunc(s.apiCreatePost)))
	s.mux.HandleFunc("GET /api/posts/{id}", s.apiGetPost)
	s.mux.Handle("POST /api/posts/{id}/like", requireSession(http.HandlerFunc(s.apiToggleLike)))
	s.mux.Handle("DELETE /api/posts/{id}", requireSession(http.HandlerFunc(s.apiDeletePost)))

	// Conversations.
	s.mux.Handle("GET /api/conversations", requireSession(http.HandlerFunc(s.apiListConversations)))
	s.mux.Handle("POST /api/conversations", requireSession(http.HandlerFunc(s.apiSaveConversation)))
	s.mux.Handle("GET /api/conversations/{id}", requireSession(http.HandlerFunc(s.apiGetConversation)))
	s.mux.Handle("DELETE /api/conversations/{id}", requireSession(http.HandlerFunc(s.apiDeleteConversation)))

	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// Handler returns the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving HTTP until the listener fails or the
// server is shut down.
func (s *Server) ListenAndServe() error {
	s.deps.Log.Info("http server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
