// Package cli implements the expgrid command line interface: filling,
// inspecting, resetting, and dropping experiment grids described by a
// configuration file.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"expgrid/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "expgrid",
		Short:         "Experiment grid runner",
		Long:          "Manages shared-table experiment grids: fill parameter combinations, inspect progress, reset failures, and drop tables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Credentials may come from a .env next to the config; explicit
			// environment variables win.
			return config.LoadDotEnv(".env")
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "experiment.yml", "Experiment configuration file")

	rootCmd.AddCommand(newFillCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newDropCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(os.Stdout, "expgrid version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
