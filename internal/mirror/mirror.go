// Package mirror owns the local bare repository kept per project. The
// mirror holds a superset of the branches of every forge copy, exposed
// through named remotes (github/<namespace>, gitlab/<namespace>)
// created lazily on first need.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/forgesync/forgesync/internal/log"
)

// Manager creates and opens project mirrors below a root directory.
type Manager struct {
	root string
}

// NewManager returns a manager storing mirrors below root.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Open returns the mirror for a project, initializing an empty bare
// repository on first touch.
func (m *Manager) Open(namespace, slug string) (*Mirror, error) {
	path := filepath.Join(m.root, namespace, slug+".git")
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create mirror dir for %s/%s: %w", namespace, slug, mkErr)
		}
		log.Info("initializing mirror", "project", namespace+"/"+slug)
		repo, err = git.PlainInit(path, true)
	}
	if err != nil {
		return nil, fmt.Errorf("open mirror %s/%s: %w", namespace, slug, err)
	}
	return &Mirror{repo: repo, key: namespace + "/" + slug}, nil
}

// Mirror is one project's local bare repository.
type Mirror struct {
	repo *git.Repository
	key  string
}

// HasRemote reports whether a named remote exists.
func (r *Mirror) HasRemote(name string) bool {
	_, err := r.repo.Remote(name)
	return err == nil
}

// EnsureRemote returns after the named remote exists, creating it bound
// to url if needed. The url may embed credentials and must not be
// logged.
func (r *Mirror) EnsureRemote(name, url string) error {
	_, err := r.repo.Remote(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, git.ErrRemoteNotFound) {
		return fmt.Errorf("lookup remote %s: %w", name, err)
	}
	log.Debug("creating remote", "project", r.key, "remote", name)
	_, err = r.repo.CreateRemote(&config.RemoteConfig{
		Name:  name,
		URLs:  []string{url},
		Fetch: []config.RefSpec{config.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", name))},
	})
	if err != nil {
		return fmt.Errorf("create remote %s: %w", name, err)
	}
	return nil
}

// DeleteRemote removes a named remote. A missing remote is not an
// error.
func (r *Mirror) DeleteRemote(name string) error {
	err := r.repo.DeleteRemote(name)
	if err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
		return fmt.Errorf("delete remote %s: %w", name, err)
	}
	return nil
}

// Fetch updates the remote-tracking refs for a named remote. A failed
// fetch is retried exactly once before the error is reported.
func (r *Mirror) Fetch(ctx context.Context, name string) error {
	err := r.fetchOnce(ctx, name)
	if err == nil {
		return nil
	}
	log.Debug("fetch failed, retrying once", "project", r.key, "remote", name)
	if err = r.fetchOnce(ctx, name); err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	return nil
}

func (r *Mirror) fetchOnce(ctx context.Context, name string) error {
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: name,
		Force:      true,
		Tags:       git.NoTags,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// RemoteRef returns the SHA of a branch as last fetched from the named
// remote, and whether the ref exists.
func (r *Mirror) RemoteRef(name, branch string) (string, bool, error) {
	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(name, branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve %s/%s: %w", name, branch, err)
	}
	return ref.Hash().String(), true, nil
}

// LocalBranch returns the SHA of a local branch and whether it exists.
func (r *Mirror) LocalBranch(branch string) (string, bool) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return "", false
	}
	return ref.Hash().String(), true
}

// SetBranch creates the local branch at sha, or resets its tip there.
// The mirror always mirrors the remote tip exactly; there is no merge.
func (r *Mirror) SetBranch(branch, sha string) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), plumbing.NewHash(sha))
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("set branch %s to %s: %w", branch, sha, err)
	}
	return nil
}

// DeleteBranch force-removes a local branch. A missing branch is not an
// error.
func (r *Mirror) DeleteBranch(branch string) error {
	name := plumbing.NewBranchReferenceName(branch)
	if _, err := r.repo.Reference(name, false); errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	}
	if err := r.repo.Storer.RemoveReference(name); err != nil {
		return fmt.Errorf("delete branch %s: %w", branch, err)
	}
	return nil
}

// Push sends a local branch to the named remote. With force, divergent
// remote history is overwritten. A remote already at the pushed tip is
// success.
func (r *Mirror) Push(ctx context.Context, name, branch string, force bool) error {
	spec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	if force {
		spec = "+" + spec
	}
	err := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: name,
		RefSpecs:   []config.RefSpec{config.RefSpec(spec)},
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("push %s to %s: %w", branch, name, err)
	}
	return nil
}
