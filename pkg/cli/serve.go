package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sreerevanth/behaviorlens/pkg/api"
	"github.com/sreerevanth/behaviorlens/pkg/engine"
	"github.com/sreerevanth/behaviorlens/pkg/infra/eventbus"
	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
	"github.com/sreerevanth/behaviorlens/pkg/infra/store"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/alert"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/event"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/rule"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/subject"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/window"
	"github.com/sreerevanth/behaviorlens/pkg/notify"
)

func NewServeCommand(root *RootCommand) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring service",
		Long: `Start the BehaviorLens service: event intake API, rule evaluation
loop, and alert dispatch workers. Blocks until interrupted.`,
		Example: `  # Run with defaults
  behaviorlens serve

  # Run with a config file on a different address
  behaviorlens serve --config /etc/behaviorlens/config.toml --addr 0.0.0.0:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	return cmd
}

func runServe(ctx context.Context, root *RootCommand, addr string) error {
	cfg := root.Config()

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	archive, err := store.NewArchive(filepath.Join(cfg.General.DataDir, "behaviorlens.db"))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	bus := eventbus.NewInMemoryEventBus()
	defer bus.Close()

	subjects := subject.NewMemoryStore()
	subjectSvc := subject.NewService(subjects, bus)
	windows := window.NewAggregator()

	rules := rule.NewMemoryStore()
	loaded, err := rule.LoadDir(ctx, cfg.Rules.Directory, rules)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	logger.Info(ctx, "rules loaded", "count", loaded, "dir", cfg.Rules.Directory)

	intake := event.NewService(subjects, windows, archive, bus, event.Options{
		RatePerSubject:  cfg.Intake.RatePerSubject,
		Burst:           cfg.Intake.Burst,
		FutureTolerance: cfg.Intake.FutureToleranceD,
	})

	alerts := alert.NewService(alert.NewMemoryStore(), archive, bus)

	dispatcher := notify.NewDispatcher(notify.Build(cfg), notify.DispatcherOptions{
		QueueSize:   cfg.Dispatch.QueueSize,
		Workers:     cfg.Dispatch.Workers,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		RetryDelay:  cfg.Dispatch.RetryDelayD,
	})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	eng := engine.New(rules, subjects, windows, alerts, archive, dispatcher, archive, engine.Options{
		EvalInterval:      cfg.Engine.EvalIntervalD,
		AnomalyThreshold:  cfg.Engine.AnomalyThreshold,
		DefaultCooldown:   cfg.Engine.DefaultCooldownD,
		RetentionDays:     cfg.Retention.Days,
		RetentionSchedule: cfg.Retention.Schedule,
	})

	engineCtx, stopEngine := context.WithCancel(ctx)

	engineErrCh := make(chan error, 1)
	go func() {
		engineErrCh <- eng.Run(engineCtx)
		close(engineErrCh)
	}()

	// The engine goroutine must be joined before the deferred
	// dispatcher.Stop and bus.Close run, or a mid-tick evaluation
	// would dispatch into a stopped pipeline.
	defer func() {
		stopEngine()
		<-engineErrCh
	}()

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.API.ListenAddr
	if addr != "" {
		serverCfg.Addr = addr
	}
	serverCfg.EnableCORS = cfg.API.EnableCORS
	serverCfg.APIKey = cfg.Security.APIKey
	serverCfg.RateLimitPerMin = cfg.Security.RateLimitPerMin

	server := api.NewServer(api.NewHandlers(subjectSvc, intake, rules, alerts, archive, eng, dispatcher), serverCfg)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting", "addr", serverCfg.Addr)
		if err := server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown requested")
	case err := <-engineErrCh:
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	case err := <-serverErrCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info(context.Background(), "server stopped")
	return nil
}
