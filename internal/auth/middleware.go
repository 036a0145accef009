package auth

import (
	"context"
	"net/http"
)

// SessionMiddleware resolves the session cookie into a RequestContext.
// Requests without a valid session get 401; a stale cookie is cleared.
func SessionMiddleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetSessionToken(r)
			if token != "" {
				if rc := svc.ValidateSession(r.Context(), token); rc != nil {
					// Keep the double-submit cookie alive for browser sessions.
					EnsureCSRFCookie(w, r, svc.CookieSecure)
					ctx := context.WithValue(r.Context(), ContextKey, rc)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				ClearSessionCookies(w, svc.CookieSecure)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication required"}`))
		})
	}
}

// CSRFMiddleware validates CSRF tokens on state-changing requests
// (POST/PUT/DELETE/PATCH). Safe methods pass through.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !ValidateCSRF(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"CSRF validation failed"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetRequestContext extracts the RequestContext placed by SessionMiddleware.
func GetRequestContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(ContextKey).(*RequestContext)
	return rc
}
