package web

import (
	"net"
	"net/http"
)

// clientIP extracts the remote IP without the port. Rate limiting keys
// on this, so a malformed RemoteAddr falls back to the raw value rather
// than an empty key.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
