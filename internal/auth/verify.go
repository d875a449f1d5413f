// Package auth validates inbound webhook deliveries: HMAC signatures
// for GitHub, a shared token for GitLab, and source-IP allow-listing
// for both. A failed IP or missing-credential check yields a redirect
// decision rather than a hard forbidden so the response does not leak
// which check failed.
package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"

	"github.com/forgesync/forgesync/internal/log"
)

// Decision is the outcome of a verification check.
type Decision int

const (
	// Authorized means the request may be processed.
	Authorized Decision = iota
	// RedirectLogin means the request is rejected ambiguously
	// (disallowed IP or missing credential).
	RedirectLogin
	// Forbidden means the presented credential was positively wrong.
	Forbidden
	// UnsupportedAlgorithm means the signature used a hash we do not speak.
	UnsupportedAlgorithm
)

// Result carries a decision plus a short operator-facing reason.
type Result struct {
	Decision Decision
	Reason   string
}

func authorized() Result { return Result{Decision: Authorized} }

// ParsePrefixes parses CIDR blocks into netip prefixes. Both IPv4 and
// IPv6 networks are accepted.
func ParsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("parse network %q: %w", c, err)
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}

// ClientIP extracts the client address from the first entry of a
// comma-separated forwarded-for header, falling back to remoteAddr.
func ClientIP(forwardedFor, remoteAddr string) (netip.Addr, error) {
	candidate := remoteAddr
	if forwardedFor != "" {
		candidate, _, _ = strings.Cut(forwardedFor, ",")
	}
	candidate = strings.TrimSpace(candidate)
	if addrPort, err := netip.ParseAddrPort(candidate); err == nil {
		return addrPort.Addr(), nil
	}
	addr, err := netip.ParseAddr(candidate)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse client address %q: %w", candidate, err)
	}
	return addr, nil
}

func allowed(addr netip.Addr, networks []netip.Prefix) bool {
	for _, n := range networks {
		if n.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// GitHubVerifier checks GitHub webhook deliveries: the source IP must
// belong to GitHub's published hook networks and the payload must carry
// a valid HMAC-SHA1 signature of the raw body.
type GitHubVerifier struct {
	secret   []byte
	networks []netip.Prefix
}

// NewGitHubVerifier builds a verifier from the webhook secret and the
// allow-listed hook CIDR blocks.
func NewGitHubVerifier(secret string, networks []netip.Prefix) *GitHubVerifier {
	return &GitHubVerifier{secret: []byte(secret), networks: networks}
}

// Verify checks the source IP and the X-Hub-Signature header value
// against the raw request body.
func (v *GitHubVerifier) Verify(body []byte, signature string, addr netip.Addr) Result {
	if !allowed(addr, v.networks) {
		log.Warn("webhook not from github IP", "addr", addr)
		return Result{Decision: RedirectLogin, Reason: "not from github IP"}
	}

	if signature == "" {
		log.Warn("webhook without signature")
		return Result{Decision: RedirectLogin, Reason: "no signature"}
	}
	algo, digest, found := strings.Cut(signature, "=")
	if !found || algo != "sha1" {
		log.Warn("webhook signature not sha-1", "algorithm", algo)
		return Result{Decision: UnsupportedAlgorithm, Reason: "signature not sha1"}
	}

	mac := hmac.New(sha1.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(digest)) {
		log.Warn("webhook with wrong signature")
		return Result{Decision: Forbidden, Reason: "wrong signature"}
	}

	return authorized()
}

// GitLabVerifier checks GitLab webhook deliveries: the source IP must
// belong to the organization-internal networks and the delivery must
// carry the configured shared token.
type GitLabVerifier struct {
	token    string
	networks []netip.Prefix
}

// NewGitLabVerifier builds a verifier from the shared webhook token and
// the internal CIDR blocks.
func NewGitLabVerifier(token string, networks []netip.Prefix) *GitLabVerifier {
	return &GitLabVerifier{token: token, networks: networks}
}

// Verify checks the source IP and the X-Gitlab-Token header value.
func (v *GitLabVerifier) Verify(token string, addr netip.Addr) Result {
	if !allowed(addr, v.networks) {
		log.Warn("webhook not from internal IP", "addr", addr)
		return Result{Decision: RedirectLogin, Reason: "not from internal IP"}
	}
	if token == "" {
		log.Warn("webhook without token")
		return Result{Decision: RedirectLogin, Reason: "no token"}
	}
	if token != v.token {
		log.Warn("webhook with wrong token")
		return Result{Decision: Forbidden, Reason: "wrong token"}
	}
	return authorized()
}
