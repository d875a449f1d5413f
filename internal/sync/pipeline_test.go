package sync

import (
	"context"
	"testing"

	"github.com/forgesync/forgesync/internal/event"
	"github.com/forgesync/forgesync/internal/forge"
)

func pipelineEvent(branch, status string) *event.PipelineEvent {
	return &event.PipelineEvent{
		Owner:  "acme",
		Repo:   "widget",
		Branch: branch,
		SHA:    shaNew,
		Status: status,
		ID:     314,
	}
}

func TestPipelineRelayToBranchTip(t *testing.T) {
	rig := newTestRig(t)
	rig.github.branchTips["devel"] = shaOld
	relay := NewPipelineRelay(rig.engine, "https://gitlab.example.org")

	if err := relay.HandlePipeline(context.Background(), pipelineEvent("devel", "failed")); err != nil {
		t.Fatalf("HandlePipeline() error: %v", err)
	}
	if len(rig.github.statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(rig.github.statuses))
	}
	call := rig.github.statuses[0]
	// The status lands on the branch tip as GitHub knows it.
	if call.sha != shaOld {
		t.Errorf("status sha = %q, want branch tip %q", call.sha, shaOld)
	}
	if call.status.State != forge.StateFailure {
		t.Errorf("state = %q, want failure", call.status.State)
	}
	if call.status.Context != "gitlab-ci" {
		t.Errorf("context = %q, want gitlab-ci", call.status.Context)
	}
	if want := "https://gitlab.example.org/acme/widget/-/pipelines/314"; call.status.TargetURL != want {
		t.Errorf("target url = %q, want %q", call.status.TargetURL, want)
	}
}

func TestPipelineRelayPRBranch(t *testing.T) {
	rig := newTestRig(t)
	relay := NewPipelineRelay(rig.engine, "https://gitlab.example.org")

	if err := relay.HandlePipeline(context.Background(), pipelineEvent("pr/42", "success")); err != nil {
		t.Fatal(err)
	}
	if len(rig.github.statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(rig.github.statuses))
	}
	// pr/* statuses go straight onto the pipeline's commit.
	if rig.github.statuses[0].sha != shaNew {
		t.Errorf("status sha = %q, want %q", rig.github.statuses[0].sha, shaNew)
	}
	if rig.github.statuses[0].status.State != forge.StateSuccess {
		t.Errorf("state = %q, want success", rig.github.statuses[0].status.State)
	}
}

func TestPipelineRelayMissingBranchIsWarning(t *testing.T) {
	rig := newTestRig(t)
	relay := NewPipelineRelay(rig.engine, "https://gitlab.example.org")

	// The branch does not exist on GitHub yet: the pipeline event beat
	// the push event. That is benign.
	if err := relay.HandlePipeline(context.Background(), pipelineEvent("brand-new", "pending")); err != nil {
		t.Fatalf("missing branch should not error: %v", err)
	}
	if len(rig.github.statuses) != 0 {
		t.Error("no status should be set for a missing branch")
	}
}

func TestPipelineRelayIgnoresOtherStatuses(t *testing.T) {
	rig := newTestRig(t)
	rig.github.branchTips["devel"] = shaOld
	relay := NewPipelineRelay(rig.engine, "https://gitlab.example.org")

	for _, status := range []string{"running", "created", "canceled", "skipped"} {
		if err := relay.HandlePipeline(context.Background(), pipelineEvent("devel", status)); err != nil {
			t.Fatalf("HandlePipeline(%s) error: %v", status, err)
		}
	}
	if len(rig.github.statuses) != 0 {
		t.Errorf("statuses = %d, want 0 for unmapped pipeline states", len(rig.github.statuses))
	}
}
