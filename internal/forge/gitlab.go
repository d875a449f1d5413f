package forge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/forgesync/forgesync/internal/log"
)

// GitLab implements Adapter against a GitLab instance's v4 API.
type GitLab struct {
	client  *gitlab.Client
	baseURL string
	token   string
}

// NewGitLab creates a GitLab adapter for the instance at baseURL.
func NewGitLab(baseURL, token string) (*GitLab, error) {
	if token == "" {
		return nil, fmt.Errorf("GitLab token not provided. Set GITLAB_TOKEN env var or the gitlab.token config key")
	}
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("create gitlab client: %w", err)
	}
	return &GitLab{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
	}, nil
}

func (g *GitLab) Kind() Kind { return KindGitLab }

func (g *GitLab) pid(namespace, slug string) string {
	return namespace + "/" + slug
}

func (g *GitLab) BranchTip(ctx context.Context, namespace, slug, branch string) (string, error) {
	b, resp, err := g.client.Branches.GetBranch(g.pid(namespace, slug), branch, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", ErrBranchNotFound
		}
		return "", fmt.Errorf("get branch %s/%s@%s: %w", namespace, slug, branch, err)
	}
	if b.Commit == nil {
		return "", fmt.Errorf("get branch %s/%s@%s: no commit in response", namespace, slug, branch)
	}
	return b.Commit.ID, nil
}

func (g *GitLab) ListBranches(ctx context.Context, namespace, slug string) ([]string, error) {
	opts := &gitlab.ListBranchesOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	var names []string
	for {
		branches, resp, err := g.client.Branches.ListBranches(g.pid(namespace, slug), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list branches %s/%s: %w", namespace, slug, err)
		}
		for _, b := range branches {
			names = append(names, b.Name)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

func (g *GitLab) DeleteBranch(ctx context.Context, namespace, slug, branch string) error {
	resp, err := g.client.Branches.DeleteBranch(g.pid(namespace, slug), branch, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			log.Debug("branch already absent on gitlab", "repo", namespace+"/"+slug, "branch", branch)
			return nil
		}
		return fmt.Errorf("delete branch %s/%s@%s: %w", namespace, slug, branch, err)
	}
	return nil
}

func (g *GitLab) SetCommitStatus(ctx context.Context, namespace, slug, sha string, status Status) error {
	state := gitlab.Pending
	switch status.State {
	case StateSuccess:
		state = gitlab.Success
	case StateFailure:
		state = gitlab.Failed
	}
	opts := &gitlab.SetCommitStatusOptions{
		State:     state,
		Context:   gitlab.Ptr(status.Context),
		TargetURL: gitlab.Ptr(status.TargetURL),
	}
	_, _, err := g.client.Commits.SetCommitStatus(g.pid(namespace, slug), sha, opts, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("set status on %s/%s@%s: %w", namespace, slug, sha, err)
	}
	return nil
}

func (g *GitLab) CreateComment(ctx context.Context, namespace, slug string, number int, body string) error {
	opts := &gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(body)}
	_, _, err := g.client.Notes.CreateMergeRequestNote(g.pid(namespace, slug), number, opts, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("comment on %s/%s!%d: %w", namespace, slug, number, err)
	}
	return nil
}

func (g *GitLab) PullRequest(ctx context.Context, namespace, slug string, number int) (*PullRequest, error) {
	mr, _, err := g.client.MergeRequests.GetMergeRequest(g.pid(namespace, slug), number, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get merge request %s/%s!%d: %w", namespace, slug, number, err)
	}
	pr := &PullRequest{
		Number:  number,
		BaseRef: mr.TargetBranch,
		HeadSHA: mr.SHA,
	}
	if mr.Author != nil {
		pr.HeadOwner = mr.Author.Username
	}
	// Resolve the head repository for cross-fork merge requests.
	if mr.SourceProjectID != 0 {
		src, _, err := g.client.Projects.GetProject(mr.SourceProjectID, nil, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("get source project of %s/%s!%d: %w", namespace, slug, number, err)
		}
		pr.HeadCloneURL = src.HTTPURLToRepo
	}
	return pr, nil
}

func (g *GitLab) CloneURL(namespace, slug string) string {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return fmt.Sprintf("%s/%s/%s.git", g.baseURL, namespace, slug)
	}
	return fmt.Sprintf("%s://gitlab-ci-token:%s@%s/%s/%s.git", u.Scheme, g.token, u.Host, namespace, slug)
}
