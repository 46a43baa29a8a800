package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewVersionCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// Skip config loading; version must work without a valid config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "BehaviorLens version %s\n", cliVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit: %s\n", cliGitCommit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Built:  %s\n", cliBuildDate)
		},
	}
}
