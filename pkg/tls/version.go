package tls

import "crypto/tls"

// ParseTLSVersion maps a version string like "1.2" to the crypto/tls
// constant. Unknown or empty strings fall back to TLS 1.2.
func ParseTLSVersion(version string) uint16 {
	switch version {
	case "1.0":
		return tls.VersionTLS10
	case "1.1":
		return tls.VersionTLS11
	case "1.2":
		return tls.VersionTLS12
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
