// Package event normalizes the forge-specific webhook payloads into
// the internal event types consumed by the sync engine.
package event

import (
	"strings"

	"github.com/forgesync/forgesync/internal/forge"
)

// ZeroSHA is the sentinel commit ID forges send when a branch was
// deleted rather than moved.
const ZeroSHA = "0000000000000000000000000000000000000000"

// refPrefix is stripped from push payload refs to obtain the branch name.
const refPrefix = "refs/heads/"

// Push is a normalized push event.
type Push struct {
	Forge  forge.Kind
	Owner  string
	Repo   string
	Branch string
	Before string
	After  string
}

// Deleted reports whether the push signals a branch deletion.
func (p *Push) Deleted() bool {
	return p.After == ZeroSHA
}

// PullRequestEvent is a normalized pull request lifecycle event.
type PullRequestEvent struct {
	Owner        string
	Repo         string
	Number       int
	Action       string
	HeadSHA      string
	BaseRef      string
	HeadOwner    string
	HeadCloneURL string
}

// PipelineEvent is a normalized CI pipeline status event.
type PipelineEvent struct {
	Owner  string
	Repo   string
	Branch string
	SHA    string
	Status string
	ID     int64
}

// CheckSuiteEvent is a normalized check suite registration event.
type CheckSuiteEvent struct {
	Owner string
	Repo  string
	ID    int64
}

// excludedPrefixes lists branch name prefixes the sync engine must
// treat as no-ops: pr/* branches belong to the pull request flow,
// release/* branches to release management, and the bot config-update
// branches rewrite themselves constantly.
var excludedPrefixes = []string{
	"pr/",
	"release/",
	"pre-commit-ci-update-config",
}

// ExcludedBranch reports whether pushes to the branch are ignored by
// the generic sync flow.
func ExcludedBranch(name string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
