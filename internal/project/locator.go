// Package project maps a webhook event's repository identity to the
// internal project and namespace records.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forgesync/forgesync/internal/forge"
	"github.com/forgesync/forgesync/internal/store"
)

// ErrNotFound is returned when no project matches the event's
// repository identity. This is fatal for the request: there is nothing
// to converge.
var ErrNotFound = errors.New("project not found")

// Locator resolves forge repository identities against the metadata
// store and recognizes repositories excluded from synchronization.
type Locator struct {
	store        *store.Store
	excludeSlugs []string
}

// NewLocator builds a locator. excludeSlugs are substrings; a
// repository whose slug contains any of them is never synchronized
// (legacy release-mirror repositories).
func NewLocator(s *store.Store, excludeSlugs []string) *Locator {
	return &Locator{store: s, excludeSlugs: excludeSlugs}
}

// Excluded reports whether the repository is exempt from all sync
// processing. Callers acknowledge the event and stop.
func (l *Locator) Excluded(repoName string) bool {
	slug := ProjectSlug(repoName)
	for _, pattern := range l.excludeSlugs {
		if pattern != "" && strings.Contains(slug, pattern) {
			return true
		}
	}
	return false
}

// Locate resolves (forge, owner login, repository name) to the project
// and namespace records. Returns ErrNotFound when either is unknown.
func (l *Locator) Locate(ctx context.Context, kind forge.Kind, owner, repoName string) (*store.Project, *store.Namespace, error) {
	var (
		ns  *store.Namespace
		err error
	)
	ownerSlug := Slugify(owner)
	switch kind {
	case forge.KindGitLab:
		ns, err = l.store.NamespaceBySlugGitLab(ctx, ownerSlug)
	default:
		ns, err = l.store.NamespaceBySlugGitHub(ctx, ownerSlug)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("namespace %q on %s: %w", ownerSlug, kind, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	p, err := l.store.Project(ctx, ns.Slug, ProjectSlug(repoName))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("project %s/%s: %w", ns.Slug, ProjectSlug(repoName), ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	return p, ns, nil
}
