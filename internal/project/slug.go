package project

import (
	"strings"
	"unicode"
)

// Slugify normalizes a forge login or repository name the way the
// metadata store keys it: lowercase, runs of spaces and hyphens
// collapsed to a single hyphen, everything outside [a-z0-9_-] dropped.
// Underscores survive here; ProjectSlug folds them.
func Slugify(value string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.TrimSpace(value) {
		r = unicode.ToLower(r)
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastHyphen = false
		case r == '-', unicode.IsSpace(r):
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ProjectSlug derives the project key from a repository name: slugified
// with underscores folded to hyphens, so snake_case and kebab-case
// repository names map to the same project.
func ProjectSlug(name string) string {
	return strings.ReplaceAll(Slugify(name), "_", "-")
}
