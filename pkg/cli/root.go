package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sreerevanth/behaviorlens/pkg/config"
	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
)

var (
	cliVersion   = "dev"
	cliBuildDate = "unknown"
	cliGitCommit = "unknown"
)

type RootCommand struct {
	cmd *cobra.Command
	cfg *config.Config
}

func NewRootCommand() *RootCommand {
	root := &RootCommand{}

	cmd := &cobra.Command{
		Use:   "behaviorlens",
		Short: "BehaviorLens - behaviour monitoring and alerting",
		Long: `BehaviorLens watches streams of behaviour events, evaluates them
against declarative rules over sliding time windows, and raises alerts
through console, webhook, and email channels.

It exposes a REST API for event intake, rule management, and alert
triage, and persists everything it sees to a local archive.`,
		PersistentPreRunE: root.persistentPreRunE,
		SilenceUsage:      true,
	}

	pflags := cmd.PersistentFlags()
	pflags.String("config", "", "Config file path (TOML)")
	pflags.String("log-level", "", "Log level (debug, info, warn, error)")

	viper.BindPFlag("config", pflags.Lookup("config"))
	viper.BindPFlag("log-level", pflags.Lookup("log-level"))

	root.cmd = cmd
	root.addSubCommands()

	return root
}

func (r *RootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	r.cfg = cfg
	return nil
}

func (r *RootCommand) addSubCommands() {
	r.cmd.AddCommand(NewVersionCommand(r))
	r.cmd.AddCommand(NewServeCommand(r))
	r.cmd.AddCommand(NewRulesCommand(r))
}

func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

func (r *RootCommand) Config() *config.Config {
	return r.cfg
}

func (r *RootCommand) ExecuteContext(ctx context.Context) error {
	return r.cmd.ExecuteContext(ctx)
}

func Execute() {
	root := NewRootCommand()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func SetVersion(version, buildDate, gitCommit string) {
	cliVersion = version
	cliBuildDate = buildDate
	cliGitCommit = gitCommit
}
