package project

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/forgesync/forgesync/internal/forge"
	"github.com/forgesync/forgesync/internal/store"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Acme", "acme"},
		{"My Widget", "my-widget"},
		{"snake_case_repo", "snake_case_repo"},
		{"Trailing Space ", "trailing-space"},
		{"UPPER-case", "upper-case"},
		{"dots.are.dropped", "dotsaredropped"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestProjectSlug(t *testing.T) {
	if got := ProjectSlug("my_widget_lib"); got != "my-widget-lib" {
		t.Errorf("ProjectSlug() = %q, want my-widget-lib", got)
	}
}

func newTestLocator(t *testing.T) *Locator {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	if err := s.UpsertNamespace(ctx, store.Namespace{
		Slug: "acme", Name: "Acme", SlugGitHub: "acme-io", SlugGitLab: "acme",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateProject(ctx, store.Project{
		Name: "Widget", Slug: "widget", NamespaceSlug: "acme",
	}); err != nil {
		t.Fatal(err)
	}
	return NewLocator(s, []string{"ros-release"})
}

func TestLocate(t *testing.T) {
	l := newTestLocator(t)
	ctx := context.Background()

	p, ns, err := l.Locate(ctx, forge.KindGitHub, "acme-io", "widget")
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if p.Slug != "widget" || ns.Slug != "acme" {
		t.Errorf("Locate() = %s/%s", ns.Slug, p.Slug)
	}

	// The GitLab group path resolves through the gitlab slug column.
	if _, _, err := l.Locate(ctx, forge.KindGitLab, "acme", "widget"); err != nil {
		t.Errorf("Locate(gitlab) error: %v", err)
	}

	// Unknown owner is a hard not-found.
	if _, _, err := l.Locate(ctx, forge.KindGitHub, "strangers", "widget"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown owner error = %v, want ErrNotFound", err)
	}
	if _, _, err := l.Locate(ctx, forge.KindGitHub, "acme-io", "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown repo error = %v, want ErrNotFound", err)
	}
}

func TestExcluded(t *testing.T) {
	l := newTestLocator(t)
	tests := []struct {
		repo string
		want bool
	}{
		{"widget-ros-release", true},
		{"ros-release", true},
		{"widget", false},
		{"release-notes", false},
	}
	for _, tt := range tests {
		if got := l.Excluded(tt.repo); got != tt.want {
			t.Errorf("Excluded(%q) = %v, want %v", tt.repo, got, tt.want)
		}
	}
}
