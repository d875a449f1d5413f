// Package redact scrubs forge credentials embedded in clone URLs from
// diagnostics before they reach logs or operator mail.
package redact

import "regexp"

var credentialPattern = regexp.MustCompile(`://[^@\s]+@`)

// Credentials replaces any userinfo component of URLs found in s with
// a fixed placeholder.
func Credentials(s string) string {
	return credentialPattern.ReplaceAllString(s, "://[REDACTED]@")
}

// Error is a convenience wrapper for scrubbing error text. A nil error
// yields an empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Credentials(err.Error())
}
