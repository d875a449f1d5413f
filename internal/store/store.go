// Package store persists the sync engine's durable records in a single
// sqlite database: namespace/project metadata, branch advisory rows,
// the deferred push queue and check suite registrations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS namespaces (
	slug        TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	slug_github TEXT NOT NULL DEFAULT '',
	slug_gitlab TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS projects (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	name                TEXT NOT NULL,
	slug                TEXT NOT NULL,
	namespace_slug      TEXT NOT NULL REFERENCES namespaces(slug) ON DELETE CASCADE,
	accept_pr_to_master INTEGER NOT NULL DEFAULT 0,
	archived            INTEGER NOT NULL DEFAULT 0,
	UNIQUE (namespace_slug, slug)
);
CREATE TABLE IF NOT EXISTS branches (
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	sha        TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, name)
);
CREATE TABLE IF NOT EXISTS push_queue (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace_slug TEXT NOT NULL,
	project_id     INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	remote_name    TEXT NOT NULL,
	branch         TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	UNIQUE (project_id, remote_name, branch)
);
CREATE TABLE IF NOT EXISTS check_suites (
	id INTEGER PRIMARY KEY
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Namespace is an owner of projects, with its per-forge login slugs.
type Namespace struct {
	Slug       string
	Name       string
	SlugGitHub string
	SlugGitLab string
}

// Project is one mirrored software unit.
type Project struct {
	ID               int64
	Name             string
	Slug             string
	NamespaceSlug    string
	AcceptPRToMaster bool
	Archived         bool
}

// Branch is the advisory record of a tracked ref. Deleted branches are
// tombstoned, never removed, so stale events cannot resurrect them.
type Branch struct {
	ProjectID int64
	Name      string
	SHA       string
	UpdatedAt time.Time
	Deleted   bool
}

// PushEntry is one pending outbound push.
type PushEntry struct {
	ID            int64
	NamespaceSlug string
	ProjectID     int64
	RemoteName    string
	Branch        string
	RetryCount    int
	CreatedAt     time.Time
}

// UpsertNamespace creates or updates a namespace record.
func (s *Store) UpsertNamespace(ctx context.Context, ns Namespace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO namespaces (slug, name, slug_github, slug_gitlab) VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET name=excluded.name, slug_github=excluded.slug_github, slug_gitlab=excluded.slug_gitlab`,
		ns.Slug, ns.Name, ns.SlugGitHub, ns.SlugGitLab)
	if err != nil {
		return fmt.Errorf("upsert namespace %s: %w", ns.Slug, err)
	}
	return nil
}

func scanNamespace(row *sql.Row) (*Namespace, error) {
	var ns Namespace
	err := row.Scan(&ns.Slug, &ns.Name, &ns.SlugGitHub, &ns.SlugGitLab)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan namespace: %w", err)
	}
	return &ns, nil
}

// NamespaceBySlugGitHub finds the namespace owning a GitHub login.
func (s *Store) NamespaceBySlugGitHub(ctx context.Context, slug string) (*Namespace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT slug, name, slug_github, slug_gitlab FROM namespaces WHERE slug_github = ?`, slug)
	return scanNamespace(row)
}

// NamespaceBySlugGitLab finds the namespace owning a GitLab group path.
func (s *Store) NamespaceBySlugGitLab(ctx context.Context, slug string) (*Namespace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT slug, name, slug_github, slug_gitlab FROM namespaces WHERE slug_gitlab = ?`, slug)
	return scanNamespace(row)
}

// Namespace finds a namespace by its canonical slug.
func (s *Store) Namespace(ctx context.Context, slug string) (*Namespace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT slug, name, slug_github, slug_gitlab FROM namespaces WHERE slug = ?`, slug)
	return scanNamespace(row)
}

// CreateProject inserts a project and returns it with its assigned ID.
func (s *Store) CreateProject(ctx context.Context, p Project) (*Project, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, slug, namespace_slug, accept_pr_to_master, archived)
		VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Slug, p.NamespaceSlug, p.AcceptPRToMaster, p.Archived)
	if err != nil {
		return nil, fmt.Errorf("create project %s/%s: %w", p.NamespaceSlug, p.Slug, err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create project %s/%s: %w", p.NamespaceSlug, p.Slug, err)
	}
	return &p, nil
}

// Project finds a project by namespace and slug.
func (s *Store) Project(ctx context.Context, namespaceSlug, slug string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, namespace_slug, accept_pr_to_master, archived
		FROM projects WHERE namespace_slug = ? AND slug = ?`, namespaceSlug, slug)
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.NamespaceSlug, &p.AcceptPRToMaster, &p.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

// ProjectByID finds a project by its row ID.
func (s *Store) ProjectByID(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, namespace_slug, accept_pr_to_master, archived
		FROM projects WHERE id = ?`, id)
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.NamespaceSlug, &p.AcceptPRToMaster, &p.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects ordered by namespace and slug.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, namespace_slug, accept_pr_to_master, archived
		FROM projects ORDER BY namespace_slug, slug`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.NamespaceSlug, &p.AcceptPRToMaster, &p.Archived); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SetArchived flags a project as archived upstream.
func (s *Store) SetArchived(ctx context.Context, projectID int64, archived bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET archived = ? WHERE id = ?`, archived, projectID)
	if err != nil {
		return fmt.Errorf("archive project %d: %w", projectID, err)
	}
	return nil
}

// UpsertBranch records the current tip of a branch and clears any
// deletion tombstone.
func (s *Store) UpsertBranch(ctx context.Context, projectID int64, name, sha string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (project_id, name, sha, updated_at, deleted) VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(project_id, name) DO UPDATE SET sha=excluded.sha, updated_at=excluded.updated_at, deleted=0`,
		projectID, name, sha, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert branch %s: %w", name, err)
	}
	return nil
}

// MarkBranchDeleted tombstones a branch record.
func (s *Store) MarkBranchDeleted(ctx context.Context, projectID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (project_id, name, sha, updated_at, deleted) VALUES (?, ?, '', ?, 1)
		ON CONFLICT(project_id, name) DO UPDATE SET updated_at=excluded.updated_at, deleted=1`,
		projectID, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("tombstone branch %s: %w", name, err)
	}
	return nil
}

// Branch returns the advisory record for a branch.
func (s *Store) Branch(ctx context.Context, projectID int64, name string) (*Branch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, name, sha, updated_at, deleted FROM branches
		WHERE project_id = ? AND name = ?`, projectID, name)
	var b Branch
	err := row.Scan(&b.ProjectID, &b.Name, &b.SHA, &b.UpdatedAt, &b.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan branch: %w", err)
	}
	return &b, nil
}

// EnqueuePush adds a pending push. Re-enqueueing the same
// (project, remote, branch) is a no-op so repeated PR synchronize
// events do not pile up duplicate work.
func (s *Store) EnqueuePush(ctx context.Context, e PushEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO push_queue (namespace_slug, project_id, remote_name, branch, retry_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		e.NamespaceSlug, e.ProjectID, e.RemoteName, e.Branch, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueue push %s -> %s: %w", e.Branch, e.RemoteName, err)
	}
	return nil
}

// PickPush returns one arbitrary pending push, or ErrNotFound when the
// queue is empty. Order across entries is deliberately unspecified.
func (s *Store) PickPush(ctx context.Context) (*PushEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, namespace_slug, project_id, remote_name, branch, retry_count, created_at
		FROM push_queue ORDER BY RANDOM() LIMIT 1`)
	var e PushEntry
	err := row.Scan(&e.ID, &e.NamespaceSlug, &e.ProjectID, &e.RemoteName, &e.Branch, &e.RetryCount, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan push entry: %w", err)
	}
	return &e, nil
}

// ListPushes returns all pending pushes for inspection.
func (s *Store) ListPushes(ctx context.Context) ([]PushEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, namespace_slug, project_id, remote_name, branch, retry_count, created_at
		FROM push_queue ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pushes: %w", err)
	}
	defer rows.Close()
	var entries []PushEntry
	for rows.Next() {
		var e PushEntry
		if err := rows.Scan(&e.ID, &e.NamespaceSlug, &e.ProjectID, &e.RemoteName, &e.Branch, &e.RetryCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeletePush removes a queue entry.
func (s *Store) DeletePush(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete push %d: %w", id, err)
	}
	return nil
}

// BumpPushRetry increments a queue entry's retry counter and returns
// the new count.
func (s *Store) BumpPushRetry(ctx context.Context, id int64) (int, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE push_queue SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("bump push retry %d: %w", id, err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT retry_count FROM push_queue WHERE id = ?`, id)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("read push retry %d: %w", id, err)
	}
	return count, nil
}

// RecordCheckSuite registers a check suite ID idempotently.
func (s *Store) RecordCheckSuite(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO check_suites (id) VALUES (?)`, id)
	if err != nil {
		return fmt.Errorf("record check suite %d: %w", id, err)
	}
	return nil
}
