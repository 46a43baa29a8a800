package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sreerevanth/behaviorlens/pkg/monitor/rule"
)

func NewRulesCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with rule files",
	}

	cmd.AddCommand(newRulesValidateCommand(root))

	return cmd
}

func newRulesValidateCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Parse and compile every rule file in a directory",
		Long: `Load each YAML rule file in the given directory (default: the
configured rules directory), compile its trigger expression, and report
any errors without starting the service.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root.Config().Rules.Directory
			if len(args) == 1 {
				dir = args[0]
			}
			return validateRuleDir(cmd, dir)
		},
	}
}

func validateRuleDir(cmd *cobra.Command, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read rules dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no rule files in %s\n", dir)
		return nil
	}

	failed := 0
	for _, path := range paths {
		r, err := rule.LoadFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s: %v\n", filepath.Base(path), err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK    %s (%s, trigger: %s)\n", filepath.Base(path), r.Name, r.Trigger)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d rule files failed validation", failed, len(paths))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d rule files valid\n", len(paths))
	return nil
}
