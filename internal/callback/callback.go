// Package callback delivers task completion webhooks. Delivery is best
// effort: failures are retried a bounded number of times and then logged,
// but they never change the task's recorded status.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"subclean/internal/config"
	"subclean/internal/logging"
	"subclean/internal/queue"
)

const userAgent = "subclean/0.1.0"

// Notifier posts the terminal state of a task to its callback URL, when one
// was registered.
type Notifier interface {
	Notify(ctx context.Context, task *queue.Task) error
}

// NewNotifier builds the webhook notifier from config.
func NewNotifier(cfg *config.Config, logger *slog.Logger) Notifier {
	timeout := time.Duration(cfg.Callback.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.Callback.MaxRetries
	if retries < 0 {
		retries = 0
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &webhookNotifier{
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		backoff: time.Second,
		logger:  logger.With(logging.String(logging.FieldComponent, "callback")),
	}
}

// NewNop returns a notifier that does nothing, for tests and one-shot runs.
func NewNop() Notifier { return nopNotifier{} }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *queue.Task) error { return nil }

type webhookNotifier struct {
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// Notify posts the task payload. Tasks without a callback URL are skipped.
// The payload document is the same one the status endpoint serves.
func (n *webhookNotifier) Notify(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return nil
	}
	url := strings.TrimSpace(task.CallbackURL)
	if url == "" {
		return nil
	}

	body, err := json.Marshal(task.Payload())
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.backoff * time.Duration(attempt)):
			}
		}
		if lastErr = n.post(ctx, url, body); lastErr == nil {
			n.logger.Info("callback delivered",
				logging.String(logging.FieldTaskID, task.UUID),
				logging.Int("attempt", attempt+1))
			return nil
		}
		n.logger.Warn("callback attempt failed",
			logging.String(logging.FieldTaskID, task.UUID),
			logging.Int("attempt", attempt+1),
			logging.Error(lastErr))
	}
	return fmt.Errorf("callback to %s: %w", url, lastErr)
}

func (n *webhookNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("callback returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
