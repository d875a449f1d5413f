package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgesync/forgesync/config"
)

// NewCmdConfig creates the config command with subcommands.
func NewCmdConfig() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or manage configuration",
		RunE:  runConfigShow,
	}

	cmd.AddCommand(NewCmdConfigShow())
	cmd.AddCommand(NewCmdConfigPath())
	cmd.AddCommand(NewCmdConfigInit())

	return cmd
}

// NewCmdConfigShow creates the config show subcommand.
func NewCmdConfigShow() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current merged configuration",
		Long:  `Show the configuration after merging defaults, the global file and the local file.`,
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out, err := cfg.ToYAML()
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// NewCmdConfigPath creates the config path subcommand.
func NewCmdConfigPath() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range []string{config.ConfigPath(), config.LocalConfigPath()} {
				marker := " (not found)"
				if _, err := os.Stat(path); err == nil {
					marker = ""
				}
				fmt.Printf("%s%s\n", path, marker)
			}
			return nil
		},
	}
}

// NewCmdConfigInit creates the config init subcommand.
func NewCmdConfigInit() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(config.ConfigPath()); err == nil {
				return fmt.Errorf("config file already exists at %s", config.ConfigPath())
			}
			if err := config.Default().Save(); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", config.ConfigPath())
			return nil
		},
	}
}
