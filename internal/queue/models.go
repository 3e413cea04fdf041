package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a cleaning task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is absorbing: completed and failed
// tasks never change state again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FailureKind categorizes task failures for the caller: bad input, a
// processing fault, or an environment/resource problem such as a crashed
// worker.
type FailureKind string

const (
	FailureInput      FailureKind = "input"
	FailureProcessing FailureKind = "processing"
	FailureResource   FailureKind = "resource"
)

// StaleReclaimReason is the error message set when a task is failed because
// its worker stopped heartbeating.
const StaleReclaimReason = "worker heartbeat expired"

// ShutdownReason is the error message set when in-flight tasks are failed
// during daemon shutdown.
const ShutdownReason = "daemon stopped"

// Task is one video cleaning job persisted in SQLite. UUID is the public
// identifier; ID is internal to the store.
type Task struct {
	ID            int64
	UUID          string
	Status        Status
	InputPath     string
	SourceURL     string
	CallbackURL   string
	ConfigJSON    string
	OutputPath    string
	VideoURL      string
	StatsJSON     string
	ErrorMessage  string
	FailureKind   FailureKind
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	LastHeartbeat *time.Time
}

// ElapsedMS returns the processing wall time in milliseconds, or 0 while the
// task has not finished.
func (t *Task) ElapsedMS() int64 {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt).Milliseconds()
}

// Payload is the task state document shared verbatim between the status
// endpoint and the completion callback.
type Payload struct {
	TaskID   string          `json:"task_id"`
	Status   Status          `json:"status"`
	VideoURL string          `json:"video_url,omitempty"`
	TimeMS   int64           `json:"time_ms"`
	Stats    json.RawMessage `json:"stats,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Payload builds the external representation of the task.
func (t *Task) Payload() Payload {
	payload := Payload{
		TaskID:   t.UUID,
		Status:   t.Status,
		VideoURL: t.VideoURL,
		TimeMS:   t.ElapsedMS(),
		Error:    t.ErrorMessage,
	}
	if strings.TrimSpace(t.StatsJSON) != "" {
		payload.Stats = json.RawMessage(t.StatsJSON)
	}
	return payload
}

// HealthSummary describes aggregated task counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}
