package sync

import (
	"context"

	"github.com/forgesync/forgesync/internal/forge"
	"github.com/forgesync/forgesync/internal/mirror"
	"github.com/forgesync/forgesync/internal/store"
)

// Mirror is the slice of the mirror manager the engine mutates.
type Mirror interface {
	HasRemote(name string) bool
	EnsureRemote(name, url string) error
	DeleteRemote(name string) error
	Fetch(ctx context.Context, name string) error
	RemoteRef(name, branch string) (string, bool, error)
	LocalBranch(branch string) (string, bool)
	SetBranch(branch, sha string) error
	DeleteBranch(branch string) error
	Push(ctx context.Context, name, branch string, force bool) error
}

// MirrorOpener opens the per-project mirror.
type MirrorOpener interface {
	Open(namespace, slug string) (Mirror, error)
}

// Locator resolves event repository identities to project records.
type Locator interface {
	Excluded(repoName string) bool
	Locate(ctx context.Context, kind forge.Kind, owner, repoName string) (*store.Project, *store.Namespace, error)
}

// Store is the durable state the engine maintains: branch advisory
// records, the deferred push queue and check suite registrations.
type Store interface {
	UpsertBranch(ctx context.Context, projectID int64, name, sha string) error
	MarkBranchDeleted(ctx context.Context, projectID int64, name string) error
	EnqueuePush(ctx context.Context, e store.PushEntry) error
	RecordCheckSuite(ctx context.Context, id int64) error
}

type managerOpener struct {
	m *mirror.Manager
}

func (o managerOpener) Open(namespace, slug string) (Mirror, error) {
	return o.m.Open(namespace, slug)
}

// NewMirrorOpener adapts a mirror.Manager to the MirrorOpener interface.
func NewMirrorOpener(m *mirror.Manager) MirrorOpener {
	return managerOpener{m: m}
}
