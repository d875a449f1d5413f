package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "forgesync.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProject(t *testing.T, s *Store) *Project {
	t.Helper()
	ctx := context.Background()
	ns := Namespace{Slug: "acme", Name: "Acme", SlugGitHub: "acme-io", SlugGitLab: "acme"}
	if err := s.UpsertNamespace(ctx, ns); err != nil {
		t.Fatal(err)
	}
	p, err := s.CreateProject(ctx, Project{Name: "Widget", Slug: "widget", NamespaceSlug: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNamespaceLookups(t *testing.T) {
	s := openTestStore(t)
	seedProject(t, s)
	ctx := context.Background()

	ns, err := s.NamespaceBySlugGitHub(ctx, "acme-io")
	if err != nil {
		t.Fatalf("NamespaceBySlugGitHub() error: %v", err)
	}
	if ns.Slug != "acme" {
		t.Errorf("Slug = %q, want acme", ns.Slug)
	}

	if _, err := s.NamespaceBySlugGitLab(ctx, "no-such"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing namespace error = %v, want ErrNotFound", err)
	}
}

func TestProjectLookup(t *testing.T) {
	s := openTestStore(t)
	p := seedProject(t, s)
	ctx := context.Background()

	got, err := s.Project(ctx, "acme", "widget")
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	if got.ID != p.ID || got.AcceptPRToMaster {
		t.Errorf("Project() = %+v", got)
	}

	if _, err := s.Project(ctx, "acme", "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing project error = %v, want ErrNotFound", err)
	}
}

func TestBranchTombstone(t *testing.T) {
	s := openTestStore(t)
	p := seedProject(t, s)
	ctx := context.Background()

	if err := s.UpsertBranch(ctx, p.ID, "devel", "abc123"); err != nil {
		t.Fatal(err)
	}
	b, err := s.Branch(ctx, p.ID, "devel")
	if err != nil {
		t.Fatal(err)
	}
	if b.SHA != "abc123" || b.Deleted {
		t.Errorf("Branch() = %+v", b)
	}

	if err := s.MarkBranchDeleted(ctx, p.ID, "devel"); err != nil {
		t.Fatal(err)
	}
	b, err = s.Branch(ctx, p.ID, "devel")
	if err != nil {
		t.Fatalf("tombstoned branch should still be readable: %v", err)
	}
	if !b.Deleted {
		t.Error("branch not tombstoned")
	}

	// A later push for the same branch clears the tombstone.
	if err := s.UpsertBranch(ctx, p.ID, "devel", "def456"); err != nil {
		t.Fatal(err)
	}
	b, _ = s.Branch(ctx, p.ID, "devel")
	if b.Deleted || b.SHA != "def456" {
		t.Errorf("revived branch = %+v", b)
	}
}

func TestPushQueue(t *testing.T) {
	s := openTestStore(t)
	p := seedProject(t, s)
	ctx := context.Background()

	entry := PushEntry{NamespaceSlug: "acme", ProjectID: p.ID, RemoteName: "gitlab/acme", Branch: "pr/42"}
	if err := s.EnqueuePush(ctx, entry); err != nil {
		t.Fatal(err)
	}
	// Duplicate enqueue is a no-op.
	if err := s.EnqueuePush(ctx, entry); err != nil {
		t.Fatal(err)
	}
	entries, err := s.ListPushes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("ListPushes() returned %d entries, want 1", len(entries))
	}

	picked, err := s.PickPush(ctx)
	if err != nil {
		t.Fatalf("PickPush() error: %v", err)
	}
	if picked.Branch != "pr/42" || picked.RemoteName != "gitlab/acme" {
		t.Errorf("PickPush() = %+v", picked)
	}

	count, err := s.BumpPushRetry(ctx, picked.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("retry count = %d, want 1", count)
	}

	if err := s.DeletePush(ctx, picked.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PickPush(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty queue error = %v, want ErrNotFound", err)
	}
}

func TestRecordCheckSuite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.RecordCheckSuite(ctx, 12345); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := s.RecordCheckSuite(ctx, 12345); err != nil {
		t.Fatal(err)
	}
}
