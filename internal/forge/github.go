package forge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/forgesync/forgesync/internal/log"
)

// GitHub implements Adapter against the GitHub REST API.
type GitHub struct {
	client *github.Client
	user   string
	token  string
}

// NewGitHub creates a GitHub adapter using a personal access token.
func NewGitHub(user, token string) (*GitHub, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token not provided. Set GITHUB_TOKEN env var or the github.token config key")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHub{
		client: github.NewClient(tc),
		user:   user,
		token:  token,
	}, nil
}

func (g *GitHub) Kind() Kind { return KindGitHub }

func (g *GitHub) BranchTip(ctx context.Context, namespace, slug, branch string) (string, error) {
	b, resp, err := g.client.Repositories.GetBranch(ctx, namespace, slug, branch, 0)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", ErrBranchNotFound
		}
		return "", fmt.Errorf("get branch %s/%s@%s: %w", namespace, slug, branch, err)
	}
	return b.GetCommit().GetSHA(), nil
}

func (g *GitHub) ListBranches(ctx context.Context, namespace, slug string) ([]string, error) {
	opts := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var names []string
	for {
		branches, resp, err := g.client.Repositories.ListBranches(ctx, namespace, slug, opts)
		if err != nil {
			return nil, fmt.Errorf("list branches %s/%s: %w", namespace, slug, err)
		}
		for _, b := range branches {
			names = append(names, b.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

func (g *GitHub) DeleteBranch(ctx context.Context, namespace, slug, branch string) error {
	resp, err := g.client.Git.DeleteRef(ctx, namespace, slug, "heads/"+branch)
	if err != nil {
		// A ref that is already gone counts as deleted.
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity) {
			log.Debug("branch already absent on github", "repo", namespace+"/"+slug, "branch", branch)
			return nil
		}
		return fmt.Errorf("delete branch %s/%s@%s: %w", namespace, slug, branch, err)
	}
	return nil
}

func (g *GitHub) SetCommitStatus(ctx context.Context, namespace, slug, sha string, status Status) error {
	repoStatus := &github.RepoStatus{
		State:     github.String(string(status.State)),
		TargetURL: github.String(status.TargetURL),
		Context:   github.String(status.Context),
	}
	_, _, err := g.client.Repositories.CreateStatus(ctx, namespace, slug, sha, repoStatus)
	if err != nil {
		return fmt.Errorf("set status on %s/%s@%s: %w", namespace, slug, sha, err)
	}
	return nil
}

func (g *GitHub) CreateComment(ctx context.Context, namespace, slug string, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	_, _, err := g.client.Issues.CreateComment(ctx, namespace, slug, number, comment)
	if err != nil {
		return fmt.Errorf("comment on %s/%s#%d: %w", namespace, slug, number, err)
	}
	return nil
}

func (g *GitHub) PullRequest(ctx context.Context, namespace, slug string, number int) (*PullRequest, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, namespace, slug, number)
	if err != nil {
		return nil, fmt.Errorf("get pull request %s/%s#%d: %w", namespace, slug, number, err)
	}
	return &PullRequest{
		Number:       number,
		BaseRef:      pr.GetBase().GetRef(),
		HeadSHA:      pr.GetHead().GetSHA(),
		HeadOwner:    pr.GetHead().GetRepo().GetOwner().GetLogin(),
		HeadCloneURL: pr.GetHead().GetRepo().GetCloneURL(),
	}, nil
}

func (g *GitHub) CloneURL(namespace, slug string) string {
	return fmt.Sprintf("https://%s:%s@github.com/%s/%s.git", g.user, g.token, namespace, slug)
}
