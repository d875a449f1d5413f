package cmd

import (
	"github.com/spf13/cobra"
)

// New creates the root command with all subcommands registered.
func New() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "forgesync",
		Short: "Webhook-driven forge synchronization daemon",
		Long: `A daemon that keeps project repositories mirrored between GitHub and a
GitLab instance: it receives webhooks from both forges, converges
branches through a local mirror, relays pipeline status, and enforces
a pull request branch-targeting policy.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")

	rootCmd.AddCommand(NewCmdServe(opts))
	rootCmd.AddCommand(NewCmdQueue(opts))
	rootCmd.AddCommand(NewCmdProject(opts))
	rootCmd.AddCommand(NewCmdConfig())
	rootCmd.AddCommand(NewCmdVersion())

	return rootCmd
}
