package queue_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"subclean/internal/queue"
	"subclean/internal/testsupport"
)

func TestNewTaskAndGetByUUID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	task, err := store.NewTask(ctx, "/work/in.mp4", "https://example.com/in.mp4", "https://example.com/hook", `{"inpaint_radius":4}`)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if task.UUID == "" {
		t.Fatal("task has no UUID")
	}
	if task.Status != queue.StatusPending {
		t.Fatalf("new task status = %s", task.Status)
	}

	loaded, err := store.GetByUUID(ctx, task.UUID)
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if loaded == nil || loaded.InputPath != "/work/in.mp4" || loaded.CallbackURL != "https://example.com/hook" {
		t.Fatalf("loaded task mismatch: %+v", loaded)
	}
	if loaded.CreatedAt.IsZero() || loaded.UpdatedAt.IsZero() {
		t.Fatal("timestamps not persisted")
	}
}

func TestGetByUUIDUnknownReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	task, err := store.GetByUUID(context.Background(), "no-such-task")
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if task != nil {
		t.Fatalf("expected nil for unknown uuid, got %+v", task)
	}
}

func TestClaimPendingOrderAndExhaustion(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.NewTask(t, store, "/work/a.mp4")
	second := testsupport.NewTask(t, store, "/work/b.mp4")

	claimed, err := store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending: %v", err)
	}
	if claimed == nil || claimed.UUID != first.UUID {
		t.Fatalf("expected oldest task %s, got %+v", first.UUID, claimed)
	}
	if claimed.Status != queue.StatusProcessing {
		t.Fatalf("claimed status = %s", claimed.Status)
	}
	if claimed.StartedAt == nil || claimed.LastHeartbeat == nil {
		t.Fatal("claim did not stamp started_at/heartbeat")
	}

	claimed, err = store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("second ClaimPending: %v", err)
	}
	if claimed == nil || claimed.UUID != second.UUID {
		t.Fatalf("expected %s, got %+v", second.UUID, claimed)
	}

	claimed, err = store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("exhausted ClaimPending: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil on empty queue, got %+v", claimed)
	}
}

func TestConcurrentClaimsNeverShareTask(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	const total = 8
	for i := 0; i < total; i++ {
		testsupport.NewTask(t, store, "/work/in.mp4")
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := store.ClaimPending(ctx)
				if err != nil {
					t.Errorf("ClaimPending: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				seen[task.UUID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("claimed %d distinct tasks, want %d", len(seen), total)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("task %s claimed %d times", id, count)
		}
	}
}

func TestMarkCompletedStoresResult(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewTask(t, store, "/work/in.mp4")
	claimed, _ := store.ClaimPending(ctx)

	stats := `{"frames":120,"masked_frames":40}`
	done, err := store.MarkCompleted(ctx, claimed.UUID, "/out/clean.mp4", "https://cdn.example.com/clean.mp4", stats)
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if done.Status != queue.StatusCompleted {
		t.Fatalf("status = %s", done.Status)
	}
	if done.VideoURL != "https://cdn.example.com/clean.mp4" || done.StatsJSON != stats {
		t.Fatalf("result fields not stored: %+v", done)
	}
	if done.FinishedAt == nil {
		t.Fatal("finished_at not stamped")
	}
	if done.LastHeartbeat != nil {
		t.Fatal("heartbeat not cleared on completion")
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewTask(t, store, "/work/in.mp4")
	claimed, _ := store.ClaimPending(ctx)
	if _, err := store.MarkCompleted(ctx, claimed.UUID, "/out/clean.mp4", "", ""); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	if _, err := store.MarkFailed(ctx, claimed.UUID, queue.FailureProcessing, "late failure"); err == nil {
		t.Fatal("MarkFailed overwrote a completed task")
	}
	if _, err := store.MarkCompleted(ctx, claimed.UUID, "/out/other.mp4", "", ""); err == nil {
		t.Fatal("MarkCompleted applied twice")
	}

	task, _ := store.GetByUUID(ctx, claimed.UUID)
	if task.Status != queue.StatusCompleted || task.OutputPath != "/out/clean.mp4" {
		t.Fatalf("terminal state mutated: %+v", task)
	}
}

func TestMarkFailedRecordsKind(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewTask(t, store, "/work/in.mp4")
	claimed, _ := store.ClaimPending(ctx)

	failed, err := store.MarkFailed(ctx, claimed.UUID, queue.FailureInput, "no video stream found")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if failed.Status != queue.StatusFailed || failed.FailureKind != queue.FailureInput {
		t.Fatalf("failure fields: %+v", failed)
	}
	if failed.ErrorMessage != "no video stream found" {
		t.Fatalf("error message = %q", failed.ErrorMessage)
	}
}

func TestReclaimStaleFailsOrphans(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewTask(t, store, "/work/in.mp4")
	claimed, _ := store.ClaimPending(ctx)

	// Heartbeat is fresh: nothing to reclaim.
	reclaimed, err := store.ReclaimStale(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("reclaimed %d fresh tasks", reclaimed)
	}

	// Cutoff in the future makes the heartbeat stale.
	reclaimed, err = store.ReclaimStale(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	task, _ := store.GetByUUID(ctx, claimed.UUID)
	if task.Status != queue.StatusFailed || task.FailureKind != queue.FailureResource {
		t.Fatalf("reclaimed task: %+v", task)
	}
	if task.ErrorMessage != queue.StaleReclaimReason {
		t.Fatalf("error message = %q", task.ErrorMessage)
	}
}

func TestFailInFlightOnlyTouchesProcessing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewTask(t, store, "/work/a.mp4")
	pending := testsupport.NewTask(t, store, "/work/b.mp4")
	claimed, _ := store.ClaimPending(ctx)

	failed, err := store.FailInFlight(ctx, queue.ShutdownReason)
	if err != nil {
		t.Fatalf("FailInFlight: %v", err)
	}
	if failed != 1 {
		t.Fatalf("failed %d tasks, want 1", failed)
	}

	swept, _ := store.GetByUUID(ctx, claimed.UUID)
	if swept.Status != queue.StatusFailed || swept.FailureKind != queue.FailureResource || swept.ErrorMessage != queue.ShutdownReason {
		t.Fatalf("swept task: %+v", swept)
	}
	untouched, _ := store.GetByUUID(ctx, pending.UUID)
	if untouched.Status != queue.StatusPending {
		t.Fatalf("pending task mutated: %+v", untouched)
	}
}

func TestUpdateHeartbeatOnlyTouchesProcessing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	pending := testsupport.NewTask(t, store, "/work/in.mp4")
	if err := store.UpdateHeartbeat(ctx, pending.UUID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}
	task, _ := store.GetByUUID(ctx, pending.UUID)
	if task.LastHeartbeat != nil {
		t.Fatal("heartbeat set on pending task")
	}
}

func TestListAndClear(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewTask(t, store, "/work/a.mp4")
	testsupport.NewTask(t, store, "/work/b.mp4")
	claimed, _ := store.ClaimPending(ctx)
	if _, err := store.MarkCompleted(ctx, claimed.UUID, "/out/a.mp4", "", ""); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d tasks", len(all))
	}

	completed, err := store.List(ctx, queue.StatusCompleted)
	if err != nil {
		t.Fatalf("List completed: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("completed count = %d", len(completed))
	}

	removed, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if removed != 1 {
		t.Fatalf("ClearCompleted removed %d", removed)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 1 || health.Pending != 1 {
		t.Fatalf("health after clear: %+v", health)
	}
}

func TestPayloadSharedShape(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewTask(t, store, "/work/in.mp4")
	claimed, _ := store.ClaimPending(ctx)
	done, err := store.MarkCompleted(ctx, claimed.UUID, "/out/clean.mp4", "https://cdn.example.com/clean.mp4", `{"frames":10}`)
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	raw, err := json.Marshal(done.Payload())
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body := string(raw)
	for _, want := range []string{`"task_id"`, `"status":"completed"`, `"video_url"`, `"time_ms"`, `"stats":{"frames":10}`} {
		if !strings.Contains(body, want) {
			t.Errorf("payload missing %s: %s", want, body)
		}
	}
	if strings.Contains(body, `"error"`) {
		t.Errorf("completed payload carries error field: %s", body)
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want queue.Status
		ok   bool
	}{
		{"pending", queue.StatusPending, true},
		{" Processing ", queue.StatusProcessing, true},
		{"COMPLETED", queue.StatusCompleted, true},
		{"archived", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := queue.ParseStatus(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("ParseStatus(%q) = %q, %v", tc.in, got, ok)
		}
	}
}
