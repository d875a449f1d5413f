package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forgesync/forgesync/internal/event"
	"github.com/forgesync/forgesync/internal/forge"
	"github.com/forgesync/forgesync/internal/log"
)

// statusContext is the commit status context name published on the
// forge that does not run the CI.
const statusContext = "gitlab-ci"

// PipelineRelay translates pipeline events from the CI-running forge
// into commit statuses on the other forge.
type PipelineRelay struct {
	eng *Engine
	// ciBaseURL is the CI forge's web root, used to build the status
	// target link.
	ciBaseURL string
}

// NewPipelineRelay builds the relay. ciBaseURL is the base web URL of
// the GitLab instance running the pipelines.
func NewPipelineRelay(eng *Engine, ciBaseURL string) *PipelineRelay {
	return &PipelineRelay{eng: eng, ciBaseURL: strings.TrimSuffix(ciBaseURL, "/")}
}

// relayState maps the CI forge's status vocabulary onto the normalized
// three-valued commit state. Anything else is not worth relaying.
func relayState(status string) (forge.CommitState, bool) {
	switch status {
	case "pending":
		return forge.StatePending, true
	case "success":
		return forge.StateSuccess, true
	case "failed":
		return forge.StateFailure, true
	}
	return "", false
}

// HandlePipeline publishes the pipeline's status on the other forge.
// For a pr/<n> branch the status lands directly on the event's commit;
// for ordinary branches it lands on the other forge's branch tip. A
// branch that does not exist there yet is an expected race with the
// corresponding push event and only logs a warning.
func (p *PipelineRelay) HandlePipeline(ctx context.Context, ev *event.PipelineEvent) error {
	e := p.eng
	proj, ns, err := e.locator.Locate(ctx, forge.KindGitLab, ev.Owner, ev.Repo)
	if err != nil {
		return err
	}
	key := ns.Slug + "/" + proj.Slug
	log.Debug("pipeline status", "project", key, "pipeline", ev.ID, "branch", ev.Branch, "commit", ev.SHA, "status", ev.Status)

	state, ok := relayState(ev.Status)
	if !ok {
		return nil
	}

	target, err := e.registry.Get(forge.KindGitLab.Other())
	if err != nil {
		return err
	}
	targetNS := forgeNamespace(target.Kind(), ns)
	status := forge.Status{
		State:     state,
		TargetURL: fmt.Sprintf("%s/%s/%s/-/pipelines/%d", p.ciBaseURL, forgeNamespace(forge.KindGitLab, ns), proj.Slug, ev.ID),
		Context:   statusContext,
	}

	if strings.HasPrefix(ev.Branch, "pr/") {
		return target.SetCommitStatus(ctx, targetNS, proj.Slug, ev.SHA, status)
	}

	tip, err := target.BranchTip(ctx, targetNS, proj.Slug, ev.Branch)
	if errors.Is(err, forge.ErrBranchNotFound) {
		// A brand-new branch's pipeline event can arrive before its
		// push event has created the branch on the other forge.
		log.Warn("branch does not exist on target forge, unable to report the pipeline status",
			"project", key, "branch", ev.Branch)
		return nil
	}
	if err != nil {
		return err
	}
	return target.SetCommitStatus(ctx, targetNS, proj.Slug, tip, status)
}
