package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgesync/forgesync/internal/forge"
)

// githubPushPayload mirrors the fields of a GitHub push event we use.
type githubPushPayload struct {
	Ref        string `json:"ref"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// DecodeGitHubPush parses a GitHub push event payload.
func DecodeGitHubPush(raw []byte) (*Push, error) {
	var p githubPushPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode github push: %w", err)
	}
	if !strings.HasPrefix(p.Ref, refPrefix) {
		return nil, fmt.Errorf("decode github push: unexpected ref %q", p.Ref)
	}
	return &Push{
		Forge:  forge.KindGitHub,
		Owner:  p.Repository.Owner.Login,
		Repo:   p.Repository.Name,
		Branch: strings.TrimPrefix(p.Ref, refPrefix),
		Before: p.Before,
		After:  p.After,
	}, nil
}

type githubPullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head struct {
			SHA  string `json:"sha"`
			Repo struct {
				CloneURL string `json:"clone_url"`
				Owner    struct {
					Login string `json:"login"`
				} `json:"owner"`
			} `json:"repo"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// DecodeGitHubPullRequest parses a GitHub pull_request event payload.
func DecodeGitHubPullRequest(raw []byte) (*PullRequestEvent, error) {
	var p githubPullRequestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode github pull_request: %w", err)
	}
	if p.Number == 0 {
		return nil, fmt.Errorf("decode github pull_request: missing number")
	}
	return &PullRequestEvent{
		Owner:        p.Repository.Owner.Login,
		Repo:         p.Repository.Name,
		Number:       p.Number,
		Action:       p.Action,
		HeadSHA:      p.PullRequest.Head.SHA,
		BaseRef:      p.PullRequest.Base.Ref,
		HeadOwner:    p.PullRequest.Head.Repo.Owner.Login,
		HeadCloneURL: p.PullRequest.Head.Repo.CloneURL,
	}, nil
}

type githubCheckSuitePayload struct {
	CheckSuite struct {
		ID int64 `json:"id"`
	} `json:"check_suite"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// DecodeGitHubCheckSuite parses a GitHub check_suite event payload.
func DecodeGitHubCheckSuite(raw []byte) (*CheckSuiteEvent, error) {
	var p githubCheckSuitePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode github check_suite: %w", err)
	}
	return &CheckSuiteEvent{
		Owner: p.Repository.Owner.Login,
		Repo:  p.Repository.Name,
		ID:    p.CheckSuite.ID,
	}, nil
}

// gitlabPushPayload mirrors the fields of a GitLab Push Hook we use.
type gitlabPushPayload struct {
	Ref     string `json:"ref"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Project struct {
		Name              string `json:"name"`
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	Repository struct {
		Name string `json:"name"`
	} `json:"repository"`
}

func (p *gitlabPushPayload) namespace() string {
	ns, _, _ := strings.Cut(p.Project.PathWithNamespace, "/")
	return ns
}

// DecodeGitLabPush parses a GitLab Push Hook payload.
func DecodeGitLabPush(raw []byte) (*Push, error) {
	var p gitlabPushPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode gitlab push: %w", err)
	}
	if !strings.HasPrefix(p.Ref, refPrefix) {
		return nil, fmt.Errorf("decode gitlab push: unexpected ref %q", p.Ref)
	}
	repo := p.Repository.Name
	if repo == "" {
		repo = p.Project.Name
	}
	return &Push{
		Forge:  forge.KindGitLab,
		Owner:  p.namespace(),
		Repo:   repo,
		Branch: strings.TrimPrefix(p.Ref, refPrefix),
		Before: p.Before,
		After:  p.After,
	}, nil
}

type gitlabPipelinePayload struct {
	ObjectAttributes struct {
		ID     int64  `json:"id"`
		Ref    string `json:"ref"`
		SHA    string `json:"sha"`
		Status string `json:"status"`
	} `json:"object_attributes"`
	Project struct {
		Name              string `json:"name"`
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
}

// DecodeGitLabPipeline parses a GitLab Pipeline Hook payload.
func DecodeGitLabPipeline(raw []byte) (*PipelineEvent, error) {
	var p gitlabPipelinePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode gitlab pipeline: %w", err)
	}
	ns, _, _ := strings.Cut(p.Project.PathWithNamespace, "/")
	return &PipelineEvent{
		Owner:  ns,
		Repo:   p.Project.Name,
		Branch: p.ObjectAttributes.Ref,
		SHA:    p.ObjectAttributes.SHA,
		Status: p.ObjectAttributes.Status,
		ID:     p.ObjectAttributes.ID,
	}, nil
}
