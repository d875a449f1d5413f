// Package queue drains the durable deferred push queue: pull request
// branches are pushed to the other forge outside the webhook
// request/response cycle, with bounded retries and force-push
// escalation.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgesync/forgesync/internal/log"
	"github.com/forgesync/forgesync/internal/mirror"
	"github.com/forgesync/forgesync/internal/notify"
	"github.com/forgesync/forgesync/internal/redact"
	"github.com/forgesync/forgesync/internal/store"
)

// DefaultInterval is the worker poll interval.
const DefaultInterval = time.Minute

// DefaultMaxRetries is the cumulative failure ceiling after which an
// entry is dropped.
const DefaultMaxRetries = 10

// Store is the queue state the worker consumes.
type Store interface {
	PickPush(ctx context.Context) (*store.PushEntry, error)
	DeletePush(ctx context.Context, id int64) error
	BumpPushRetry(ctx context.Context, id int64) (int, error)
	ProjectByID(ctx context.Context, id int64) (*store.Project, error)
}

// Mirror is the slice of a project mirror the worker needs.
type Mirror interface {
	Push(ctx context.Context, name, branch string, force bool) error
}

// MirrorOpener opens the per-project mirror.
type MirrorOpener interface {
	Open(namespace, slug string) (Mirror, error)
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

// Worker is the single queue drainer. Exactly one worker runs, so at
// most one push attempt per entry is in flight at any time.
type Worker struct {
	store      Store
	mirrors    MirrorOpener
	notifier   notify.Notifier
	interval   time.Duration
	maxRetries int
}

// Options configures a Worker.
type Options struct {
	Store      Store
	Mirrors    MirrorOpener
	Notifier   notify.Notifier
	Interval   time.Duration
	MaxRetries int
}

// NewWorker builds the queue worker.
func NewWorker(opts Options) *Worker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Worker{
		store:      opts.Store,
		mirrors:    opts.Mirrors,
		notifier:   notifier,
		interval:   interval,
		maxRetries: maxRetries,
	}
}

// Run polls the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				log.Error("push queue cycle failed", "error", err)
			}
		}
	}
}

// RunOnce processes at most one pending entry: push, escalate to a
// forced push on failure, and either delete the entry or bump its
// retry counter. Past the ceiling the entry is dropped for good and
// the operators are told.
func (w *Worker) RunOnce(ctx context.Context) error {
	entry, err := w.store.PickPush(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pushErr := w.push(ctx, entry)
	if pushErr == nil {
		log.Info("pushed", "namespace", entry.NamespaceSlug, "remote", entry.RemoteName, "branch", entry.Branch)
		return w.store.DeletePush(ctx, entry.ID)
	}

	count, err := w.store.BumpPushRetry(ctx, entry.ID)
	if err != nil {
		return err
	}
	if count < w.maxRetries {
		log.Warn("push failed, will retry", "namespace", entry.NamespaceSlug, "branch", entry.Branch,
			"attempt", count, "error", redact.Error(pushErr))
		return nil
	}

	// Ceiling reached: drop the entry permanently and surface it.
	if err := w.store.DeletePush(ctx, entry.ID); err != nil {
		return err
	}
	detail := redact.Error(pushErr)
	log.Error("push permanently failed, dropping queue entry",
		"namespace", entry.NamespaceSlug, "remote", entry.RemoteName, "branch", entry.Branch, "error", detail)
	subject := fmt.Sprintf("Push permanently failed for %s (%s %s)", entry.NamespaceSlug, entry.RemoteName, entry.Branch)
	if err := w.notifier.Notify(ctx, subject, detail); err != nil {
		log.Error("operator notification failed", "error", err)
	}
	return nil
}

// push attempts a normal push and escalates once to a forced push.
// PR branches get rebased and rewritten routinely, so force is the
// correct fallback here, unlike ordinary branch sync.
func (w *Worker) push(ctx context.Context, entry *store.PushEntry) error {
	proj, err := w.store.ProjectByID(ctx, entry.ProjectID)
	if err != nil {
		return fmt.Errorf("resolve project %d: %w", entry.ProjectID, err)
	}
	m, err := w.mirrors.Open(entry.NamespaceSlug, proj.Slug)
	if err != nil {
		return err
	}
	if err := m.Push(ctx, entry.RemoteName, entry.Branch, false); err != nil {
		log.Warn("push failed, force pushing",
			"namespace", entry.NamespaceSlug, "branch", entry.Branch, "error", redact.Error(err))
		return m.Push(ctx, entry.RemoteName, entry.Branch, true)
	}
	return nil
}
