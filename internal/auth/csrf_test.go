package auth

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateCSRFToken(t *testing.T) {
	t.Run("returns 64-char hex string", func(t *testing.T) {
		token, err := GenerateCSRFToken()
		if err != nil {
			t.Fatalf("GenerateCSRFToken failed: %v", err)
		}
		if len(token) != 64 {
			t.Errorf("expected 64 chars, got %d", len(token))
		}
		if _, err := hex.DecodeString(token); err != nil {
			t.Errorf("token is not valid hex: %v", err)
		}
	})

	t.Run("tokens are unique", func(t *testing.T) {
		t1, _ := GenerateCSRFToken()
		t2, _ := GenerateCSRFToken()
		if t1 == t2 {
			t.Error("two generated CSRF tokens should not be identical")
		}
	})
}

func TestSetCSRFCookie(t *testing.T) {
	t.Run("readable by the client", func(t *testing.T) {
		w := httptest.NewRecorder()
		SetCSRFCookie(w, "csrf-token-value", false)

		cookies := w.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("expected 1 cookie, got %d", len(cookies))
		}
		c := cookies[0]
		if c.Name != CSRFCookieName {
			t.Errorf("expected cookie name %q, got %q", CSRFCookieName, c.Name)
		}
		if c.Value != "csrf-token-value" {
			t.Errorf("expected cookie value %q, got %q", "csrf-token-value", c.Value)
		}
		if c.HttpOnly {
			t.Error("CSRF cookie must NOT be HttpOnly (JS needs to read it)")
		}
		if c.Path != "/" {
			t.Errorf("expected path '/', got %q", c.Path)
		}
		if c.SameSite != http.SameSiteStrictMode {
			t.Errorf("expected SameSiteStrictMode, got %v", c.SameSite)
		}
	})

	t.Run("secure flag propagated", func(t *testing.T) {
		w := httptest.NewRecorder()
		SetCSRFCookie(w, "token", true)
		if c := w.Result().Cookies()[0]; !c.Secure {
			t.Error("expected Secure to be true")
		}
	})
}

func TestValidateCSRF(t *testing.T) {
	t.Run("matching header and cookie", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "matching-token"})
		req.Header.Set(CSRFHeaderName, "matching-token")
		if !ValidateCSRF(req) {
			t.Error("expected validation to pass with matching header and cookie")
		}
	})

	t.Run("mismatched header and cookie", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "cookie-token"})
		req.Header.Set(CSRFHeaderName, "different-token")
		if ValidateCSRF(req) {
			t.Error("expected validation to fail with mismatched tokens")
		}
	})

	t.Run("missing cookie", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", nil)
		req.Header.Set(CSRFHeaderName, "some-token")
		if ValidateCSRF(req) {
			t.Error("expected validation to fail with missing cookie")
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "cookie-token"})
		if ValidateCSRF(req) {
			t.Error("expected validation to fail with missing header")
		}
	})

	t.Run("empty cookie value", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: ""})
		req.Header.Set(CSRFHeaderName, "")
		if ValidateCSRF(req) {
			t.Error("expected validation to fail with empty cookie value")
		}
	})
}

func TestCSRFMiddleware(t *testing.T) {
	passes := func(t *testing.T, req *http.Request) bool {
		t.Helper()
		called := false
		handler := CSRFMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return called
	}

	t.Run("passes safe methods through", func(t *testing.T) {
		for _, method := range []string{"GET", "HEAD", "OPTIONS"} {
			if !passes(t, httptest.NewRequest(method, "/api/auth/me", nil)) {
				t.Errorf("expected handler to be called for %s request", method)
			}
		}
	})

	t.Run("blocks POST without token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/posts", nil)
		if passes(t, req) {
			t.Error("expected POST without CSRF token to be blocked")
		}
	})

	t.Run("blocks DELETE with mismatched token", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/posts/p1", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "cookie-token"})
		req.Header.Set(CSRFHeaderName, "other-token")
		if passes(t, req) {
			t.Error("expected DELETE with mismatched token to be blocked")
		}
	})

	t.Run("blocked requests get a JSON 403", func(t *testing.T) {
		handler := CSRFMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run")
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/posts", nil))
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
	})

	t.Run("passes POST with matching token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/posts", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "matching"})
		req.Header.Set(CSRFHeaderName, "matching")
		if !passes(t, req) {
			t.Error("expected POST with matching token to pass")
		}
	})
}
