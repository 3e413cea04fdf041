package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"subclean/internal/callback"
	"subclean/internal/config"
	"subclean/internal/logging"
	"subclean/internal/queue"
)

// Manager coordinates the worker pool over the task store.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     callback.Notifier
	runner       Runner
	heartbeat    *HeartbeatMonitor
	pollInterval time.Duration
	retryDelay   time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, runner Runner, notifier callback.Notifier) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = callback.NewNop()
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger.With(logging.String(logging.FieldComponent, "workflow")),
		notifier:     notifier,
		runner:       runner,
		pollInterval: time.Duration(cfg.Workers.QueuePollInterval) * time.Second,
		retryDelay:   time.Duration(cfg.Workers.ErrorRetryInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workers.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workers.HeartbeatTimeout)*time.Second,
		),
	}
}

// Start launches the worker pool and the stale-task reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if m.runner == nil {
		return errors.New("workflow runner not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Workers.Count
	if workers < 1 {
		workers = 1
	}
	m.logger.Info("starting workers", logging.Int("count", workers))

	m.wg.Add(workers + 1)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}
	go m.runReclaimer(runCtx)
	return nil
}

// Stop terminates background processing and waits for workers to finish
// their current frames.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := m.store.ClaimPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim pending task failed", logging.Error(err))
			sleepCtx(ctx, m.retryDelay)
			continue
		}
		if task == nil {
			sleepCtx(ctx, m.pollInterval)
			continue
		}

		m.processTask(ctx, logger, task)
	}
}

// processTask runs one claimed task and records its terminal state. The
// heartbeat loop spans exactly the runner's lifetime.
func (m *Manager) processTask(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	ctx = logging.WithTaskID(ctx, task.UUID)
	logger = logging.WithContext(ctx, logger)
	logger.Info("task claimed")

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, task.UUID)

	result, runErr := m.runner.Run(ctx, task)
	stopHeartbeat()
	hbWG.Wait()

	// Terminal transitions use a fresh context: a canceled run must still be
	// recorded as failed rather than left in processing.
	finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var final *queue.Task
	var err error
	if runErr != nil {
		message := runErr.Error()
		kind := FailureKindOf(runErr)
		if errors.Is(runErr, context.Canceled) {
			message = queue.ShutdownReason
			kind = queue.FailureResource
		}
		logger.Error("task failed", logging.String("kind", string(kind)), logging.Error(runErr))
		final, err = m.store.MarkFailed(finalCtx, task.UUID, kind, message)
	} else {
		logger.Info("task completed", logging.String("video_url", result.VideoURL))
		final, err = m.store.MarkCompleted(finalCtx, task.UUID, result.OutputPath, result.VideoURL, result.StatsJSON)
	}
	if err != nil {
		logger.Error("record terminal state failed", logging.Error(err))
		return
	}

	if notifyErr := m.notifier.Notify(finalCtx, final); notifyErr != nil {
		logger.Warn("callback delivery gave up", logging.Error(notifyErr))
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	interval := m.heartbeat.interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One pass at startup covers tasks orphaned by a previous crash.
	if err := m.heartbeat.ReclaimStale(ctx); err != nil && ctx.Err() == nil {
		m.logger.Warn("reclaim stale tasks failed", logging.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.heartbeat.ReclaimStale(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("reclaim stale tasks failed", logging.Error(err))
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
