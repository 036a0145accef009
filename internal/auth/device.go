package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// DeviceCookieName remembers which credential IDs this browser has used,
	// so sign-in can skip the email prompt.
	DeviceCookieName = "corvid_device"

	// maxDeviceCredentials caps the cookie so it cannot grow unbounded.
	maxDeviceCredentials = 5

	deviceCookieMaxAge = 180 * 24 * time.Hour
)

var ErrDeviceCookieInvalid = fmt.Errorf("device cookie invalid")

// EncodeDeviceCookie serializes credential IDs as a comma-joined base64url
// list with an HMAC tag so a tampered cookie is rejected, not looked up.
func EncodeDeviceCookie(credIDs [][]byte, secret []byte) string {
	parts := make([]string, 0, len(credIDs))
	for _, id := range credIDs {
		parts = append(parts, base64.RawURLEncoding.EncodeToString(id))
	}
	payload := strings.Join(parts, ",")
	return payload + "." + deviceCookieMAC(payload, secret)
}

// DecodeDeviceCookie parses and authenticates a device cookie value.
func DecodeDeviceCookie(value string, secret []byte) ([][]byte, error) {
	dot := strings.LastIndexByte(value, '.')
	if dot < 0 {
		return nil, ErrDeviceCookieInvalid
	}
	payload, tag := value[:dot], value[dot+1:]
	if !hmac.Equal([]byte(tag), []byte(deviceCookieMAC(payload, secret))) {
		return nil, ErrDeviceCookieInvalid
	}
	if payload == "" {
		return nil, nil
	}
	var ids [][]byte
	for _, part := range strings.Split(payload, ",") {
		id, err := base64.RawURLEncoding.DecodeString(part)
		if err != nil {
			return nil, ErrDeviceCookieInvalid
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AppendDeviceCredential adds a credential ID to the front of the list,
// dropping duplicates and trimming to the cap.
func AppendDeviceCredential(credIDs [][]byte, id []byte) [][]byte {
	result := [][]byte{id}
	for _, existing := range credIDs {
		if !bytes.Equal(existing, id) {
			result = append(result, existing)
		}
	}
	if len(result) > maxDeviceCredentials {
		result = result[:maxDeviceCredentials]
	}
	return result
}

// SetDeviceCookie writes the device cookie.
func SetDeviceCookie(w http.ResponseWriter, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(deviceCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	})
}

// GetDeviceCookie reads the raw device cookie value, empty if absent.
func GetDeviceCookie(r *http.Request) string {
	cookie, err := r.Cookie(DeviceCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func deviceCookieMAC(payload string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
