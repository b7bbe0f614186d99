// Package identity derives a caller identity from inbound request headers.
// It performs pure header parsing: no token verification, no I/O.
package identity

import (
	"strings"

	"imgguard/internal/core"
)

// Anonymous is the identifier assigned to callers without any
// recognizable address header. It is a valid identifier, not an error:
// anonymous callers still consume quota under a shared key.
const Anonymous = "anonymous"

// Resolve extracts the caller identifier from request headers.
// Precedence, first match wins: CF-Connecting-IP, X-Real-IP, the first
// comma-separated entry of X-Forwarded-For, then Anonymous.
func Resolve(req core.Request) string {
	if ip := strings.TrimSpace(core.Header(req, "CF-Connecting-IP")); ip != "" {
		return ip
	}

	if ip := strings.TrimSpace(core.Header(req, "X-Real-IP")); ip != "" {
		return ip
	}

	if fwd := core.Header(req, "X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	return Anonymous
}

// IsAuthenticated reports whether the request carries a plausible bearer
// credential: an Authorization header of the form "Bearer <nonempty>".
// Only presence is detected; verifying the token is the caller's job.
func IsAuthenticated(req core.Request) bool {
	auth := core.Header(req, "Authorization")

	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}

	return strings.TrimSpace(token) != ""
}
