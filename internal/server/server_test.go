package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forgesync/forgesync/internal/auth"
	"github.com/forgesync/forgesync/internal/event"
	"github.com/forgesync/forgesync/internal/project"
	"github.com/forgesync/forgesync/internal/sync"
)

const (
	githubSecret = "hook-secret"
	gitlabToken  = "gl-token"
	hookIP       = "203.0.113.5"
)

type fakePushes struct {
	events []*event.Push
	synced bool
	err    error
}

func (f *fakePushes) HandlePush(_ context.Context, ev *event.Push) (bool, error) {
	f.events = append(f.events, ev)
	return f.synced, f.err
}

type fakePullRequests struct {
	events []*event.PullRequestEvent
	err    error
}

func (f *fakePullRequests) HandlePullRequest(_ context.Context, ev *event.PullRequestEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

type fakePipelines struct {
	events []*event.PipelineEvent
	err    error
}

func (f *fakePipelines) HandlePipeline(_ context.Context, ev *event.PipelineEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

type fakeCheckSuites struct {
	events []*event.CheckSuiteEvent
	err    error
}

func (f *fakeCheckSuites) HandleCheckSuite(_ context.Context, ev *event.CheckSuiteEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

type rig struct {
	server       *Server
	pushes       *fakePushes
	pullRequests *fakePullRequests
	pipelines    *fakePipelines
	checkSuites  *fakeCheckSuites
}

func newRig(t *testing.T) *rig {
	t.Helper()
	networks, err := auth.ParsePrefixes([]string{"203.0.113.0/24"})
	if err != nil {
		t.Fatal(err)
	}
	r := &rig{
		pushes:       &fakePushes{},
		pullRequests: &fakePullRequests{},
		pipelines:    &fakePipelines{},
		checkSuites:  &fakeCheckSuites{},
	}
	r.server = New(Options{
		GitHub:       auth.NewGitHubVerifier(githubSecret, networks),
		GitLab:       auth.NewGitLabVerifier(gitlabToken, networks),
		Pushes:       r.pushes,
		PullRequests: r.pullRequests,
		Pipelines:    r.pipelines,
		CheckSuites:  r.checkSuites,
	})
	return r
}

func sign(secret, body string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func githubRequest(eventType, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", hookIP)
	req.Header.Set("X-Hub-Signature", sign(githubSecret, body))
	req.Header.Set("X-Github-Event", eventType)
	return req
}

func gitlabRequest(eventType, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", hookIP)
	req.Header.Set("X-Gitlab-Token", gitlabToken)
	req.Header.Set("X-Gitlab-Event", eventType)
	return req
}

func (r *rig) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.server.Handler().ServeHTTP(rec, req)
	return rec
}

const pushBody = `{
	"ref": "refs/heads/devel",
	"before": "1111111111111111111111111111111111111111",
	"after": "2222222222222222222222222222222222222222",
	"repository": {"name": "widget", "owner": {"login": "acme-io"}}
}`

func TestGitHubPing(t *testing.T) {
	rec := newRig(t).do(githubRequest("ping", "{}"))
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Errorf("got %d %q, want 200 pong", rec.Code, rec.Body.String())
	}
}

func TestGitHubPush(t *testing.T) {
	r := newRig(t)
	rec := r.do(githubRequest("push", pushBody))
	if rec.Code != http.StatusOK || rec.Body.String() != "push event detected" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	if len(r.pushes.events) != 1 {
		t.Fatalf("handler invocations = %d, want 1", len(r.pushes.events))
	}
	ev := r.pushes.events[0]
	if ev.Branch != "devel" || ev.Owner != "acme-io" || ev.Repo != "widget" {
		t.Errorf("decoded event = %+v", ev)
	}
}

func TestGitHubPushAlreadySynced(t *testing.T) {
	r := newRig(t)
	r.pushes.synced = true
	rec := r.do(githubRequest("push", pushBody))
	if rec.Code != http.StatusOK || rec.Body.String() != "already synced" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGitHubPushCommitMismatch(t *testing.T) {
	r := newRig(t)
	r.pushes.err = &sync.CommitMismatchError{
		Fetched: "3333333333333333333333333333333333333333",
		Claimed: "2222222222222222222222222222222222222222",
	}
	rec := r.do(githubRequest("push", pushBody))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Push: wrong commit") {
		t.Errorf("body = %q, want mismatch detail", rec.Body.String())
	}
}

func TestGitHubPushUnknownProject(t *testing.T) {
	r := newRig(t)
	r.pushes.err = project.ErrNotFound
	rec := r.do(githubRequest("push", pushBody))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGitHubMissingSignatureRedirects(t *testing.T) {
	req := githubRequest("push", pushBody)
	req.Header.Del("X-Hub-Signature")
	rec := newRig(t).do(req)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

func TestGitHubForeignIPRedirects(t *testing.T) {
	req := githubRequest("push", pushBody)
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	rec := newRig(t).do(req)
	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", rec.Code)
	}
}

func TestGitHubUnsupportedAlgorithm(t *testing.T) {
	req := githubRequest("push", pushBody)
	req.Header.Set("X-Hub-Signature", "sha256=deadbeef")
	rec := newRig(t).do(req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "I only speak sha1.") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestGitHubTamperedBody(t *testing.T) {
	req := githubRequest("push", pushBody)
	req.Header.Set("X-Hub-Signature", sign(githubSecret, pushBody+" "))
	r := newRig(t)
	rec := r.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wrong signature.") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(r.pushes.events) != 0 {
		t.Error("handler must not run on a failed signature check")
	}
}

func TestGitHubUnknownEvent(t *testing.T) {
	rec := newRig(t).do(githubRequest("workflow_run", "{}"))
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "event not found") {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGitHubPullRequest(t *testing.T) {
	body := `{
		"action": "opened",
		"number": 42,
		"pull_request": {
			"base": {"ref": "master"},
			"head": {
				"sha": "2222222222222222222222222222222222222222",
				"repo": {"clone_url": "https://github.com/fork/widget.git", "owner": {"login": "fork"}}
			}
		},
		"repository": {"name": "widget", "owner": {"login": "acme-io"}}
	}`
	r := newRig(t)
	rec := r.do(githubRequest("pull_request", body))
	if rec.Code != http.StatusOK || rec.Body.String() != "pull_request event detected" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	if len(r.pullRequests.events) != 1 || r.pullRequests.events[0].Number != 42 {
		t.Errorf("pull request events = %+v", r.pullRequests.events)
	}
}

func TestGitHubCheckSuite(t *testing.T) {
	body := `{
		"check_suite": {"id": 7},
		"repository": {"name": "widget", "owner": {"login": "acme-io"}}
	}`
	r := newRig(t)
	rec := r.do(githubRequest("check_suite", body))
	if rec.Code != http.StatusOK || rec.Body.String() != "check_suite event detected" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	if len(r.checkSuites.events) != 1 || r.checkSuites.events[0].ID != 7 {
		t.Errorf("check suite events = %+v", r.checkSuites.events)
	}
}

func TestGitLabPing(t *testing.T) {
	rec := newRig(t).do(gitlabRequest("ping", "{}"))
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGitLabPush(t *testing.T) {
	body := `{
		"ref": "refs/heads/master",
		"before": "1111111111111111111111111111111111111111",
		"after": "2222222222222222222222222222222222222222",
		"project": {"name": "Widget", "path_with_namespace": "acme/widget"},
		"repository": {"name": "widget"}
	}`
	r := newRig(t)
	rec := r.do(gitlabRequest("Push Hook", body))
	if rec.Code != http.StatusOK || rec.Body.String() != "push event detected" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	if len(r.pushes.events) != 1 || r.pushes.events[0].Owner != "acme" {
		t.Errorf("push events = %+v", r.pushes.events)
	}
}

func TestGitLabPipeline(t *testing.T) {
	body := `{
		"object_attributes": {"id": 99, "ref": "master", "sha": "2222222222222222222222222222222222222222", "status": "success"},
		"project": {"name": "widget", "path_with_namespace": "acme/widget"}
	}`
	r := newRig(t)
	rec := r.do(gitlabRequest("Pipeline Hook", body))
	if rec.Code != http.StatusOK || rec.Body.String() != "pipeline event detected" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	if len(r.pipelines.events) != 1 || r.pipelines.events[0].ID != 99 {
		t.Errorf("pipeline events = %+v", r.pipelines.events)
	}
}

func TestGitLabMissingTokenRedirects(t *testing.T) {
	req := gitlabRequest("Push Hook", "{}")
	req.Header.Del("X-Gitlab-Token")
	rec := newRig(t).do(req)
	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", rec.Code)
	}
}

func TestGitLabWrongToken(t *testing.T) {
	req := gitlabRequest("Push Hook", "{}")
	req.Header.Set("X-Gitlab-Token", "nope")
	rec := newRig(t).do(req)
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "wrong token.") {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGitLabUnknownEvent(t *testing.T) {
	rec := newRig(t).do(gitlabRequest("Tag Push Hook", "{}"))
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "event not found") {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}
