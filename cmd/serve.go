package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/forgesync/forgesync/config"
	"github.com/forgesync/forgesync/internal/auth"
	"github.com/forgesync/forgesync/internal/forge"
	"github.com/forgesync/forgesync/internal/log"
	"github.com/forgesync/forgesync/internal/mirror"
	"github.com/forgesync/forgesync/internal/notify"
	"github.com/forgesync/forgesync/internal/project"
	"github.com/forgesync/forgesync/internal/queue"
	"github.com/forgesync/forgesync/internal/server"
	"github.com/forgesync/forgesync/internal/store"
	"github.com/forgesync/forgesync/internal/sync"
)

// NewCmdServe creates the serve command.
func NewCmdServe(opts *Options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the push queue worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, listen)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *Options, listen string) error {
	cfg, err := opts.setup()
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	gh, err := forge.NewGitHub(cfg.GitHub.User, cfg.GitHub.Token)
	if err != nil {
		return err
	}
	gl, err := forge.NewGitLab(cfg.GitLab.URL, cfg.GitLab.Token)
	if err != nil {
		return err
	}

	notifier := buildNotifier(cfg)
	mirrors := mirror.NewManager(cfg.MirrorDir)

	eng := sync.NewEngine(sync.Options{
		Registry:      forge.NewRegistry(gh, gl),
		Locator:       project.NewLocator(st, cfg.Sync.ExcludeSlugs),
		Mirrors:       sync.NewMirrorOpener(mirrors),
		Store:         st,
		Notifier:      notifier,
		ForceDiverged: cfg.Sync.ForceDiverged,
	})

	ghNetworks, err := auth.ParsePrefixes(cfg.GitHub.HookNetworks)
	if err != nil {
		return err
	}
	glNetworks, err := auth.ParsePrefixes(cfg.GitLab.Networks)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		GitHub:       auth.NewGitHubVerifier(cfg.GitHub.WebhookSecret, ghNetworks),
		GitLab:       auth.NewGitLabVerifier(cfg.GitLab.WebhookSecret, glNetworks),
		Pushes:       eng,
		PullRequests: sync.NewPolicy(eng),
		Pipelines:    sync.NewPipelineRelay(eng, cfg.GitLab.URL),
		CheckSuites:  eng,
	})

	worker := queue.NewWorker(queue.Options{
		Store:      st,
		Mirrors:    queue.NewMirrorOpener(mirrors),
		Notifier:   notifier,
		Interval:   cfg.Queue.Interval.Std(),
		MaxRetries: cfg.Queue.MaxRetries,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.SMTP == nil {
		return notify.LogNotifier{}
	}
	return &notify.SMTPNotifier{
		Addr:     cfg.SMTP.Addr,
		From:     cfg.SMTP.From,
		To:       cfg.SMTP.To,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	}
}
