// Package daemonrun boots the daemon process: logging, dependency checks,
// the task store, delivery, and signal-driven shutdown.
package daemonrun

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"subclean/internal/api"
	"subclean/internal/callback"
	"subclean/internal/config"
	"subclean/internal/daemon"
	"subclean/internal/deps"
	"subclean/internal/logging"
	"subclean/internal/queue"
	"subclean/internal/storage"
	"subclean/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides the configured log level when non-empty.
	LogLevel string
}

// Run starts the daemon and blocks until a termination signal arrives or the
// API listener fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if strings.TrimSpace(opts.LogLevel) != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// Missing binaries degrade the health probe rather than blocking startup,
	// so an operator can bring them in without restarting.
	for _, status := range deps.CheckBinaries(deps.Required(cfg)) {
		if !status.Available {
			logger.Warn("required binary unavailable",
				logging.String("name", status.Name),
				logging.String("detail", status.Detail))
		}
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}

	deliverer, err := storage.NewDeliverer(signalCtx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("init delivery: %w", err)
	}

	runner := workflow.NewCleanRunner(cfg, logger, deliverer)
	notifier := callback.NewNotifier(cfg, logger)
	manager := workflow.NewManager(cfg, store, logger, runner, notifier)
	server := api.NewServer(cfg, store, logger)

	d, err := daemon.New(cfg, store, logger, manager, server)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-d.Done():
		if err != nil {
			return fmt.Errorf("api listener: %w", err)
		}
		return nil
	}
}
