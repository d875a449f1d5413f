package sync

import (
	"context"
	"fmt"

	"github.com/forgesync/forgesync/internal/event"
	"github.com/forgesync/forgesync/internal/forge"
	"github.com/forgesync/forgesync/internal/log"
	"github.com/forgesync/forgesync/internal/project"
	"github.com/forgesync/forgesync/internal/redact"
	"github.com/forgesync/forgesync/internal/store"
)

// prToMainMessage is the advisory comment posted on pull requests that
// target the protected branch from outside the namespace.
const prToMainMessage = "Hi ! This project doesn't usually accept pull requests on the main branch.\n" +
	"If this wasn't intentionnal, you can change the base branch of this PR to devel\n" +
	"(No need to close it for that). Best, a bot."

// Policy maintains the pr/<number> branches mirroring open pull
// requests onto the other forge and posts the advisory comment when a
// PR targets the protected branch.
type Policy struct {
	eng *Engine
}

// NewPolicy builds the pull request policy engine on top of the
// convergence engine's wiring.
func NewPolicy(eng *Engine) *Policy {
	return &Policy{eng: eng}
}

// HandlePullRequest reacts to a pull request lifecycle event from the
// forge that natively hosts pull requests.
func (p *Policy) HandlePullRequest(ctx context.Context, ev *event.PullRequestEvent) error {
	e := p.eng
	proj, ns, err := e.locator.Locate(ctx, forge.KindGitHub, ev.Owner, ev.Repo)
	if err != nil {
		return err
	}
	key := ns.Slug + "/" + proj.Slug
	branch := fmt.Sprintf("pr/%d", ev.Number)
	log.Debug("pull request event", "project", key, "branch", branch, "action", ev.Action)

	unlock := e.locks.lock(key)
	defer unlock()

	native, err := e.registry.Get(forge.KindGitHub)
	if err != nil {
		return err
	}
	other, err := e.registry.Get(forge.KindGitLab)
	if err != nil {
		return err
	}
	nativeNS := forgeNamespace(native.Kind(), ns)
	headLogin := project.Slugify(ev.HeadOwner)

	if ev.Action == "opened" || ev.Action == "reopened" {
		if err := p.adviseAgainstProtectedBase(ctx, native, nativeNS, proj, ns, ev, headLogin); err != nil {
			// Advisory only; a failed comment never blocks the sync.
			log.Warn("protected-branch advisory failed", "project", key, "pr", ev.Number, "error", err)
		}
	}

	m, err := e.mirrors.Open(ns.Slug, proj.Slug)
	if err != nil {
		return err
	}
	headRemote := "github/" + headLogin

	switch ev.Action {
	case "opened", "reopened", "synchronize":
		if err := m.EnsureRemote(headRemote, ev.HeadCloneURL); err != nil {
			return err
		}
		if err := m.Fetch(ctx, headRemote); err != nil {
			log.Error("pull request head fetch failed", "project", key, "pr", ev.Number, "error", redact.Error(err))
			return nil
		}
		if err := m.SetBranch(branch, ev.HeadSHA); err != nil {
			return err
		}
		if err := e.store.UpsertBranch(ctx, proj.ID, branch, ev.HeadSHA); err != nil {
			log.Warn("branch record update failed", "project", key, "branch", branch, "error", err)
		}

		otherRemote := remoteName(other.Kind(), ns)
		if err := m.EnsureRemote(otherRemote, other.CloneURL(forgeNamespace(other.Kind(), ns), proj.Slug)); err != nil {
			return err
		}
		// The actual push is deferred to the queue worker so the
		// webhook responds before the forge's delivery timeout.
		return e.store.EnqueuePush(ctx, store.PushEntry{
			NamespaceSlug: ns.Slug,
			ProjectID:     proj.ID,
			RemoteName:    otherRemote,
			Branch:        branch,
		})

	case "closed":
		if _, ok := m.LocalBranch(branch); ok {
			if err := m.DeleteBranch(branch); err != nil {
				return err
			}
			if err := m.DeleteRemote(headRemote); err != nil {
				return err
			}
		}
		if err := other.DeleteBranch(ctx, forgeNamespace(other.Kind(), ns), proj.Slug, branch); err != nil {
			log.Info("branch not deleted", "project", key, "branch", branch, "error", redact.Error(err))
		} else {
			log.Info("deleted branch", "project", key, "branch", branch)
		}
		if err := e.store.MarkBranchDeleted(ctx, proj.ID, branch); err != nil {
			log.Warn("branch tombstone failed", "project", key, "branch", branch, "error", err)
		}
	}
	return nil
}

// adviseAgainstProtectedBase posts the retarget suggestion when an
// external contributor opens a PR against the protected branch while a
// devel branch exists. Never blocks or closes anything.
func (p *Policy) adviseAgainstProtectedBase(ctx context.Context, native forge.Adapter, nativeNS string, proj *store.Project, ns *store.Namespace, ev *event.PullRequestEvent, headLogin string) error {
	if proj.AcceptPRToMaster {
		return nil
	}
	pr, err := native.PullRequest(ctx, nativeNS, proj.Slug, ev.Number)
	if err != nil {
		return err
	}
	if pr.BaseRef != "master" && pr.BaseRef != "main" {
		return nil
	}
	if headLogin == ns.SlugGitHub {
		return nil
	}
	branches, err := native.ListBranches(ctx, nativeNS, proj.Slug)
	if err != nil {
		return err
	}
	hasDevel := false
	for _, b := range branches {
		if b == "devel" {
			hasDevel = true
			break
		}
	}
	if !hasDevel {
		return nil
	}
	log.Info("new pr to protected branch", "project", ns.Slug+"/"+proj.Slug, "pr", ev.Number)
	return native.CreateComment(ctx, nativeNS, proj.Slug, ev.Number, prToMainMessage)
}
