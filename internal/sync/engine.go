// Package sync implements the webhook-driven convergence engine: given
// a normalized event it decides which remotes to fetch, compare and
// push so that both forges and the local mirror agree, without ever
// entering a webhook ping-pong loop between the two forges.
package sync

import (
	"context"
	"fmt"

	"github.com/forgesync/forgesync/internal/event"
	"github.com/forgesync/forgesync/internal/forge"
	"github.com/forgesync/forgesync/internal/log"
	"github.com/forgesync/forgesync/internal/notify"
	"github.com/forgesync/forgesync/internal/redact"
	"github.com/forgesync/forgesync/internal/store"
)

// CommitMismatchError reports that the fetched tip of the source remote
// does not match the commit the event claims. This happens when a
// second push lands between event delivery and our fetch; the engine
// takes no action and lets the follow-up event converge.
type CommitMismatchError struct {
	Fetched string
	Claimed string
}

func (e *CommitMismatchError) Error() string {
	return fmt.Sprintf("Push: wrong commit: %s vs %s", e.Fetched, e.Claimed)
}

// Engine converges forge state in response to normalized events.
type Engine struct {
	registry *forge.Registry
	locator  Locator
	mirrors  MirrorOpener
	store    Store
	notifier notify.Notifier

	// forceDiverged opts in to force-pushing over divergent history on
	// ordinary branch sync. Off by default: divergence is operator
	// territory.
	forceDiverged bool

	locks *projectLocks
}

// Options configures an Engine.
type Options struct {
	Registry      *forge.Registry
	Locator       Locator
	Mirrors       MirrorOpener
	Store         Store
	Notifier      notify.Notifier
	ForceDiverged bool
}

// NewEngine builds the convergence engine.
func NewEngine(opts Options) *Engine {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Engine{
		registry:      opts.Registry,
		locator:       opts.Locator,
		mirrors:       opts.Mirrors,
		store:         opts.Store,
		notifier:      notifier,
		forceDiverged: opts.ForceDiverged,
		locks:         newProjectLocks(),
	}
}

// forgeNamespace returns the namespace path as the given forge knows
// it, falling back to the canonical slug.
func forgeNamespace(kind forge.Kind, ns *store.Namespace) string {
	switch kind {
	case forge.KindGitHub:
		if ns.SlugGitHub != "" {
			return ns.SlugGitHub
		}
	case forge.KindGitLab:
		if ns.SlugGitLab != "" {
			return ns.SlugGitLab
		}
	}
	return ns.Slug
}

func remoteName(kind forge.Kind, ns *store.Namespace) string {
	return string(kind) + "/" + ns.Slug
}

// HandlePush converges both forges after a push. It reports whether
// the branch was already in sync (in which case no push was issued,
// breaking the webhook loop between the forges).
func (e *Engine) HandlePush(ctx context.Context, ev *event.Push) (alreadySynced bool, err error) {
	if e.locator.Excluded(ev.Repo) {
		log.Debug("push for excluded repository", "repo", ev.Repo)
		return false, nil
	}
	if event.ExcludedBranch(ev.Branch) {
		log.Debug("push for excluded branch", "branch", ev.Branch)
		return false, nil
	}

	proj, ns, err := e.locator.Locate(ctx, ev.Forge, ev.Owner, ev.Repo)
	if err != nil {
		return false, err
	}
	key := ns.Slug + "/" + proj.Slug
	log.Debug("push detected", "project", key, "forge", ev.Forge, "branch", ev.Branch, "commit", ev.After)

	unlock := e.locks.lock(key)
	defer unlock()

	src, err := e.registry.Get(ev.Forge)
	if err != nil {
		return false, err
	}
	dst, err := e.registry.Get(ev.Forge.Other())
	if err != nil {
		return false, err
	}

	m, err := e.mirrors.Open(ns.Slug, proj.Slug)
	if err != nil {
		return false, err
	}

	srcRemote := remoteName(src.Kind(), ns)
	dstRemote := remoteName(dst.Kind(), ns)
	if err := m.EnsureRemote(srcRemote, src.CloneURL(forgeNamespace(src.Kind(), ns), proj.Slug)); err != nil {
		return false, err
	}
	if err := m.EnsureRemote(dstRemote, dst.CloneURL(forgeNamespace(dst.Kind(), ns), proj.Slug)); err != nil {
		return false, err
	}

	// A failed fetch on either side is not fatal; convergence proceeds
	// with whatever was fetched and the tip guard below catches lies.
	if err := m.Fetch(ctx, srcRemote); err != nil {
		log.Warn("fetch failed", "project", key, "remote", srcRemote, "error", redact.Error(err))
	}
	if err := m.Fetch(ctx, dstRemote); err != nil {
		log.Warn("fetch failed", "project", key, "remote", dstRemote, "error", redact.Error(err))
	}

	if ev.Deleted() {
		return false, e.propagateDeletion(ctx, m, dst, proj, ns, ev.Branch)
	}

	// Make sure we actually fetched the commit the event announces.
	srcSHA, ok, err := m.RemoteRef(srcRemote, ev.Branch)
	if err != nil {
		return false, err
	}
	if !ok || srcSHA != ev.After {
		mismatch := &CommitMismatchError{Fetched: srcSHA, Claimed: ev.After}
		log.Error("commit mismatch", "project", key, "branch", ev.Branch, "detail", mismatch.Error())
		return false, mismatch
	}

	if err := m.SetBranch(ev.Branch, ev.After); err != nil {
		return false, err
	}
	if err := e.store.UpsertBranch(ctx, proj.ID, ev.Branch, ev.After); err != nil {
		log.Warn("branch record update failed", "project", key, "branch", ev.Branch, "error", err)
	}

	// Tip equality short-circuit: if the other forge already has this
	// commit, pushing would be a no-op and would only re-trigger its
	// webhook. This is what terminates the A->B->A event loop.
	dstSHA, ok, err := m.RemoteRef(dstRemote, ev.Branch)
	if err != nil {
		return false, err
	}
	if ok && dstSHA == ev.After {
		log.Debug("already synced", "project", key, "branch", ev.Branch)
		return true, nil
	}

	log.Info("pushing", "project", key, "branch", ev.Branch, "commit", ev.After, "to", dst.Kind())
	if err := m.Push(ctx, dstRemote, ev.Branch, false); err != nil {
		if e.forceDiverged {
			log.Warn("push rejected, force pushing", "project", key, "branch", ev.Branch)
			err = m.Push(ctx, dstRemote, ev.Branch, true)
		}
		if err != nil {
			// Usually divergent history after a force push on the
			// source. Never overwritten silently; the operators decide.
			detail := redact.Error(err)
			log.Error("forge sync failed", "project", key, "branch", ev.Branch, "error", detail)
			subject := fmt.Sprintf("Forge sync failed for %s/%s", ns.Slug, proj.Slug)
			if nerr := e.notifier.Notify(ctx, subject, detail); nerr != nil {
				log.Error("operator notification failed", "error", nerr)
			}
		}
	}
	return false, nil
}

// propagateDeletion handles the all-zero-SHA push: the branch is gone
// on the source forge, so drop it locally and on the other forge. No
// push or fetch logic runs past this point.
func (e *Engine) propagateDeletion(ctx context.Context, m Mirror, dst forge.Adapter, proj *store.Project, ns *store.Namespace, branch string) error {
	key := ns.Slug + "/" + proj.Slug
	if _, ok := m.LocalBranch(branch); !ok {
		log.Debug("deletion for unknown branch", "project", key, "branch", branch)
		return nil
	}
	if err := m.DeleteBranch(branch); err != nil {
		return err
	}
	if err := dst.DeleteBranch(ctx, forgeNamespace(dst.Kind(), ns), proj.Slug, branch); err != nil {
		// The other forge keeps its copy; surface the diagnostic but
		// do not fail the delivery over it.
		log.Error("remote branch deletion failed", "project", key, "branch", branch, "error", redact.Error(err))
	}
	if err := e.store.MarkBranchDeleted(ctx, proj.ID, branch); err != nil {
		log.Warn("branch tombstone failed", "project", key, "branch", branch, "error", err)
	}
	log.Info("deleted branch", "project", key, "branch", branch)
	return nil
}

// HandleCheckSuite registers a check suite idempotently. Excluded
// repositories are acknowledged without touching storage.
func (e *Engine) HandleCheckSuite(ctx context.Context, ev *event.CheckSuiteEvent) error {
	if e.locator.Excluded(ev.Repo) {
		return nil
	}
	return e.store.RecordCheckSuite(ctx, ev.ID)
}
