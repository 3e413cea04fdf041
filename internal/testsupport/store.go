package testsupport

import (
	"context"
	"testing"

	"subclean/internal/config"
	"subclean/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a pending task for tests using the provided store.
func NewTask(t testing.TB, store *queue.Store, inputPath string) *queue.Task {
	t.Helper()

	task, err := store.NewTask(context.Background(), inputPath, "", "", "")
	if err != nil {
		t.Fatalf("store.NewTask: %v", err)
	}
	return task
}
