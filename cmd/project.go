package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forgesync/forgesync/internal/project"
	"github.com/forgesync/forgesync/internal/store"
)

// NewCmdProject creates the project command with subcommands.
func NewCmdProject(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage synchronized projects",
	}

	cmd.AddCommand(NewCmdProjectAdd(opts))
	cmd.AddCommand(NewCmdProjectList(opts))
	cmd.AddCommand(NewCmdProjectArchive(opts))

	return cmd
}

// NewCmdProjectAdd creates the project add subcommand.
func NewCmdProjectAdd(opts *Options) *cobra.Command {
	var githubSlug, gitlabSlug string
	var acceptPRToMaster bool

	cmd := &cobra.Command{
		Use:   "add <namespace> <name>",
		Short: "Register a project for synchronization",
		Long: `Register a project for synchronization.

The namespace is created if it does not exist yet. By default the
namespace slug is used on both forges; use --github-slug or
--gitlab-slug when the owner name differs on one of them.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			nsSlug := project.Slugify(args[0])
			ns := store.Namespace{
				Slug:       nsSlug,
				Name:       args[0],
				SlugGitHub: nsSlug,
				SlugGitLab: nsSlug,
			}
			if githubSlug != "" {
				ns.SlugGitHub = project.Slugify(githubSlug)
			}
			if gitlabSlug != "" {
				ns.SlugGitLab = project.Slugify(gitlabSlug)
			}
			if err := st.UpsertNamespace(cmd.Context(), ns); err != nil {
				return err
			}

			p, err := st.CreateProject(cmd.Context(), store.Project{
				Name:             args[1],
				Slug:             project.ProjectSlug(args[1]),
				NamespaceSlug:    ns.Slug,
				AcceptPRToMaster: acceptPRToMaster,
			})
			if err != nil {
				return err
			}
			fmt.Printf("added %s/%s\n", ns.Slug, p.Slug)
			return nil
		},
	}

	cmd.Flags().StringVar(&githubSlug, "github-slug", "", "Namespace slug on GitHub, when it differs")
	cmd.Flags().StringVar(&gitlabSlug, "gitlab-slug", "", "Namespace slug on GitLab, when it differs")
	cmd.Flags().BoolVar(&acceptPRToMaster, "accept-pr-to-master", false, "Skip the advisory comment on PRs targeting the main branch")

	return cmd
}

// NewCmdProjectArchive creates the project archive subcommand.
func NewCmdProjectArchive(opts *Options) *cobra.Command {
	var restore bool

	cmd := &cobra.Command{
		Use:   "archive <namespace> <slug>",
		Short: "Archive a project (stops counting it as active)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := st.Project(cmd.Context(), project.Slugify(args[0]), project.ProjectSlug(args[1]))
			if err != nil {
				return err
			}
			if err := st.SetArchived(cmd.Context(), p.ID, !restore); err != nil {
				return err
			}
			if restore {
				fmt.Printf("restored %s/%s\n", p.NamespaceSlug, p.Slug)
			} else {
				fmt.Printf("archived %s/%s\n", p.NamespaceSlug, p.Slug)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&restore, "restore", false, "Un-archive the project instead")

	return cmd
}

// NewCmdProjectList creates the project list subcommand.
func NewCmdProjectList(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			projects, err := st.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("no projects registered")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAMESPACE\tSLUG\tNAME\tARCHIVED")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", p.NamespaceSlug, p.Slug, p.Name, p.Archived)
			}
			return w.Flush()
		},
	}
}
