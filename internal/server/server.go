// Package server exposes the two inbound webhook endpoints. It owns
// request plumbing only: authentication, payload decoding and the
// fixed plaintext response vocabulary; all convergence decisions live
// in the sync package.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/forgesync/forgesync/internal/auth"
	"github.com/forgesync/forgesync/internal/event"
	"github.com/forgesync/forgesync/internal/log"
	"github.com/forgesync/forgesync/internal/project"
	"github.com/forgesync/forgesync/internal/sync"
)

// maxBody bounds webhook payload size. Forge payloads are small; a
// megabyte is generous.
const maxBody = 1 << 20

// PushHandler converges repository state after a push event.
type PushHandler interface {
	HandlePush(ctx context.Context, ev *event.Push) (alreadySynced bool, err error)
}

// PullRequestHandler reacts to pull request lifecycle events.
type PullRequestHandler interface {
	HandlePullRequest(ctx context.Context, ev *event.PullRequestEvent) error
}

// PipelineHandler relays pipeline status to the other forge.
type PipelineHandler interface {
	HandlePipeline(ctx context.Context, ev *event.PipelineEvent) error
}

// CheckSuiteHandler records check suite registrations.
type CheckSuiteHandler interface {
	HandleCheckSuite(ctx context.Context, ev *event.CheckSuiteEvent) error
}

// Options wires the webhook server.
type Options struct {
	GitHub       *auth.GitHubVerifier
	GitLab       *auth.GitLabVerifier
	Pushes       PushHandler
	PullRequests PullRequestHandler
	Pipelines    PipelineHandler
	CheckSuites  CheckSuiteHandler
}

// Server handles inbound webhook deliveries from both forges.
type Server struct {
	github       *auth.GitHubVerifier
	gitlab       *auth.GitLabVerifier
	pushes       PushHandler
	pullRequests PullRequestHandler
	pipelines    PipelineHandler
	checkSuites  CheckSuiteHandler

	mux *http.ServeMux
}

// New builds the webhook server.
func New(opts Options) *Server {
	s := &Server{
		github:       opts.GitHub,
		gitlab:       opts.GitLab,
		pushes:       opts.Pushes,
		pullRequests: opts.PullRequests,
		pipelines:    opts.Pipelines,
		checkSuites:  opts.CheckSuites,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/github", s.handleGitHub)
	mux.HandleFunc("POST /webhooks/gitlab", s.handleGitLab)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ok")
	})
	s.mux = mux
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	addr, err := auth.ClientIP(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
	if err != nil {
		log.Warn("webhook with unparseable client address", "error", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	res := s.github.Verify(body, r.Header.Get("X-Hub-Signature"), addr)
	if !s.authorize(w, r, res, "wrong signature.") {
		return
	}

	kind := r.Header.Get("X-Github-Event")
	if kind == "" {
		kind = "ping"
	}
	switch kind {
	case "ping":
		io.WriteString(w, "pong")
	case "push":
		ev, err := event.DecodeGitHubPush(body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.dispatchPush(w, r, ev, "push event detected")
	case "pull_request":
		ev, err := event.DecodeGitHubPullRequest(body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if !s.report(w, r, s.pullRequests.HandlePullRequest(r.Context(), ev)) {
			return
		}
		io.WriteString(w, "pull_request event detected")
	case "check_suite":
		ev, err := event.DecodeGitHubCheckSuite(body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if !s.report(w, r, s.checkSuites.HandleCheckSuite(r.Context(), ev)) {
			return
		}
		io.WriteString(w, "check_suite event detected")
	default:
		http.Error(w, "event not found", http.StatusForbidden)
	}
}

func (s *Server) handleGitLab(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	addr, err := auth.ClientIP(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
	if err != nil {
		log.Warn("webhook with unparseable client address", "error", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	res := s.gitlab.Verify(r.Header.Get("X-Gitlab-Token"), addr)
	if !s.authorize(w, r, res, "wrong token.") {
		return
	}

	switch r.Header.Get("X-Gitlab-Event") {
	case "ping":
		io.WriteString(w, "pong")
	case "Push Hook":
		ev, err := event.DecodeGitLabPush(body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.dispatchPush(w, r, ev, "push event detected")
	case "Pipeline Hook":
		ev, err := event.DecodeGitLabPipeline(body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if !s.report(w, r, s.pipelines.HandlePipeline(r.Context(), ev)) {
			return
		}
		io.WriteString(w, "pipeline event detected")
	default:
		http.Error(w, "event not found", http.StatusForbidden)
	}
}

// authorize translates a verification result into a response. It
// returns true when processing may continue.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, res auth.Result, forbiddenBody string) bool {
	switch res.Decision {
	case auth.Authorized:
		return true
	case auth.UnsupportedAlgorithm:
		http.Error(w, "I only speak sha1.", http.StatusNotImplemented)
	case auth.Forbidden:
		http.Error(w, forbiddenBody, http.StatusForbidden)
	default:
		http.Redirect(w, r, "/login", http.StatusFound)
	}
	return false
}

func (s *Server) dispatchPush(w http.ResponseWriter, r *http.Request, ev *event.Push, ack string) {
	synced, err := s.pushes.HandlePush(r.Context(), ev)
	var mismatch *sync.CommitMismatchError
	switch {
	case errors.As(err, &mismatch):
		http.Error(w, mismatch.Error(), http.StatusBadRequest)
	case !s.report(w, r, err):
	case synced:
		io.WriteString(w, "already synced")
	default:
		io.WriteString(w, ack)
	}
}

// report maps handler errors to terminal responses. It returns true
// when the caller should write its success acknowledgement.
func (s *Server) report(w http.ResponseWriter, _ *http.Request, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, project.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		log.Error("webhook processing failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return false
}
