package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forgesync/forgesync/internal/mirror"
	"github.com/forgesync/forgesync/internal/queue"
)

// NewCmdQueue creates the queue command with subcommands.
func NewCmdQueue(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or drain the deferred push queue",
	}

	cmd.AddCommand(NewCmdQueueList(opts))
	cmd.AddCommand(NewCmdQueueDrain(opts))

	return cmd
}

// NewCmdQueueList creates the queue list subcommand.
func NewCmdQueueList(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending push queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListPushes(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("queue is empty")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAMESPACE\tREMOTE\tBRANCH\tRETRIES\tCREATED")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
					e.ID, e.NamespaceSlug, e.RemoteName, e.Branch, e.RetryCount,
					e.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

// NewCmdQueueDrain creates the queue drain subcommand.
func NewCmdQueueDrain(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Attempt every pending push once, now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListPushes(cmd.Context())
			if err != nil {
				return err
			}

			worker := queue.NewWorker(queue.Options{
				Store:      st,
				Mirrors:    queue.NewMirrorOpener(mirror.NewManager(cfg.MirrorDir)),
				Notifier:   buildNotifier(cfg),
				MaxRetries: cfg.Queue.MaxRetries,
			})
			for range entries {
				if err := worker.RunOnce(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Printf("attempted %d pending push(es)\n", len(entries))
			return nil
		},
	}
}
