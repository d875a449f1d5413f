// Package forge abstracts the two code-hosting services behind a small
// closed Adapter interface so the sync engine never dispatches on a
// forge name to pick an API call.
package forge

import "context"

// Kind identifies one of the two supported forges.
type Kind string

const (
	KindGitHub Kind = "github"
	KindGitLab Kind = "gitlab"
)

// Other returns the opposite forge, the push/relay target for an event
// sourced from k.
func (k Kind) Other() Kind {
	if k == KindGitHub {
		return KindGitLab
	}
	return KindGitHub
}

// CommitState is the normalized three-valued commit status vocabulary.
type CommitState string

const (
	StatePending CommitState = "pending"
	StateSuccess CommitState = "success"
	StateFailure CommitState = "failure"
)

// Status is a commit status to publish on a forge.
type Status struct {
	State     CommitState
	TargetURL string
	Context   string
}

// PullRequest carries the subset of pull request metadata the policy
// engine needs.
type PullRequest struct {
	Number       int
	BaseRef      string
	HeadSHA      string
	HeadOwner    string
	HeadCloneURL string
}

// Adapter is the per-forge API surface consumed by the sync engine,
// the pipeline relay and the PR policy engine.
type Adapter interface {
	Kind() Kind

	// BranchTip returns the SHA of the branch head on the forge copy
	// of the repository. Returns ErrBranchNotFound if the branch does
	// not exist there.
	BranchTip(ctx context.Context, namespace, slug, branch string) (string, error)

	// ListBranches returns the names of all branches of the repository.
	ListBranches(ctx context.Context, namespace, slug string) ([]string, error)

	// DeleteBranch removes a branch on the forge. A branch that is
	// already gone is treated as success.
	DeleteBranch(ctx context.Context, namespace, slug, branch string) error

	// SetCommitStatus publishes a commit status for the given SHA.
	SetCommitStatus(ctx context.Context, namespace, slug, sha string, status Status) error

	// CreateComment posts a comment on a pull/merge request.
	CreateComment(ctx context.Context, namespace, slug string, number int, body string) error

	// PullRequest fetches a pull/merge request by number.
	PullRequest(ctx context.Context, namespace, slug string, number int) (*PullRequest, error)

	// CloneURL returns the credential-embedded clone URL for the
	// repository. The result must never be logged unredacted.
	CloneURL(namespace, slug string) string
}
