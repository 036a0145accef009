package auth

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var deviceSecret = []byte("0123456789abcdef0123456789abcdef")

func TestDeviceCookieRoundTrip(t *testing.T) {
	ids := [][]byte{[]byte("cred-1"), []byte("cred-2")}

	value := EncodeDeviceCookie(ids, deviceSecret)
	decoded, err := DecodeDeviceCookie(value, deviceSecret)
	if err != nil {
		t.Fatalf("DecodeDeviceCookie: %v", err)
	}
	if len(decoded) != 2 || !bytes.Equal(decoded[0], ids[0]) || !bytes.Equal(decoded[1], ids[1]) {
		t.Errorf("decoded = %v, want %v", decoded, ids)
	}
}

func TestDeviceCookieTamperRejected(t *testing.T) {
	value := EncodeDeviceCookie([][]byte{[]byte("cred-1")}, deviceSecret)

	tampered := strings.Replace(value, value[:4], "AAAA", 1)
	if tampered == value {
		tampered = "BBBB" + value[4:]
	}
	if _, err := DecodeDeviceCookie(tampered, deviceSecret); !errors.Is(err, ErrDeviceCookieInvalid) {
		t.Errorf("tampered payload: err = %v, want ErrDeviceCookieInvalid", err)
	}

	if _, err := DecodeDeviceCookie(value, []byte("another secret")); !errors.Is(err, ErrDeviceCookieInvalid) {
		t.Errorf("wrong secret: err = %v, want ErrDeviceCookieInvalid", err)
	}

	if _, err := DecodeDeviceCookie("no-separator", deviceSecret); !errors.Is(err, ErrDeviceCookieInvalid) {
		t.Errorf("missing tag: err = %v, want ErrDeviceCookieInvalid", err)
	}
}

func TestAppendDeviceCredential(t *testing.T) {
	var ids [][]byte
	for _, id := range []string{"a", "b", "c"} {
		ids = AppendDeviceCredential(ids, []byte(id))
	}
	// Most recent first.
	if !bytes.Equal(ids[0], []byte("c")) || len(ids) != 3 {
		t.Fatalf("ids = %v", ids)
	}

	// Re-adding an existing ID moves it to the front without duplicating.
	ids = AppendDeviceCredential(ids, []byte("a"))
	if len(ids) != 3 || !bytes.Equal(ids[0], []byte("a")) {
		t.Errorf("after re-add: %v", ids)
	}

	// The list is capped.
	for _, id := range []string{"d", "e", "f", "g"} {
		ids = AppendDeviceCredential(ids, []byte(id))
	}
	if len(ids) != maxDeviceCredentials {
		t.Errorf("len = %d, want %d", len(ids), maxDeviceCredentials)
	}
	if !bytes.Equal(ids[0], []byte("g")) {
		t.Errorf("front = %q, want g", ids[0])
	}
}

func TestDeviceCookieAttributes(t *testing.T) {
	rec := httptest.NewRecorder()
	SetDeviceCookie(rec, "value", true)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != DeviceCookieName {
		t.Errorf("name = %q", c.Name)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
		t.Errorf("cookie flags: HttpOnly=%v Secure=%v SameSite=%v", c.HttpOnly, c.Secure, c.SameSite)
	}
}
