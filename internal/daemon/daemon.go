// Package daemon ties the task store, the worker pool, and the HTTP API into
// a single-instance background service. A file lock in the log directory
// keeps a second daemon from sharing the same work directories.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"subclean/internal/api"
	"subclean/internal/config"
	"subclean/internal/logging"
	"subclean/internal/queue"
	"subclean/internal/workflow"
)

type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	manager *workflow.Manager
	server  *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	apiErr  chan error
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, manager *workflow.Manager, server *api.Server) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil || server == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and api server")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "subcleand.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		manager:  manager,
		server:   server,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		apiErr:   make(chan error, 1),
	}, nil
}

// Start acquires the instance lock, launches the worker pool, and begins
// serving the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another subclean daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.apiErr <- d.server.ListenAndServe(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Done reports the API listener's exit. A nil value means a clean shutdown.
func (d *Daemon) Done() <-chan error {
	return d.apiErr
}

// Stop halts background processing and releases the instance lock. In-flight
// tasks are recorded as failed before the workers exit.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	d.wg.Wait()

	// Workers record their own task's failure on cancellation, but a task
	// claimed right before the cancel can slip past that write. Sweep any
	// remaining processing rows so nothing waits on heartbeat reclamation.
	ctx, cancelSweep := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSweep()
	if failed, err := d.store.FailInFlight(ctx, queue.ShutdownReason); err != nil {
		d.logger.Warn("fail in-flight tasks failed", logging.Error(err))
	} else if failed > 0 {
		d.logger.Info("failed in-flight tasks at shutdown", logging.Int64("count", failed))
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock failed", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the task store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}
