package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"subclean/internal/config"
)

// Store manages task persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.WorkDir, "tasks.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// NewTask inserts a pending task and returns it with its generated UUID.
func (s *Store) NewTask(ctx context.Context, inputPath, sourceURL, callbackURL, configJSON string) (*Task, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
            uuid, status, input_path, source_url, callback_url, config_json,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		StatusPending,
		nullableString(inputPath),
		nullableString(sourceURL),
		nullableString(callbackURL),
		nullableString(configJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return s.GetByUUID(ctx, id)
}

// GetByUUID fetches a task by its public identifier. Unknown identifiers
// return (nil, nil).
func (s *Store) GetByUUID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE uuid = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ClaimPending atomically moves the oldest pending task to processing and
// returns it. Returns (nil, nil) when nothing is pending. The claim is a
// single conditional UPDATE, so concurrent workers never share a task.
func (s *Store) ClaimPending(ctx context.Context) (*Task, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE tasks
         SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = (
             SELECT id FROM tasks WHERE status = ? ORDER BY created_at, id LIMIT 1
         ) AND status = ?
         RETURNING `+taskColumns,
		StatusProcessing, now, now, now,
		StatusPending, StatusPending,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending task: %w", err)
	}
	return task, nil
}

// MarkCompleted finalizes a processing task with its delivery results. The
// status guard keeps terminal states absorbing: a task already completed or
// failed is never rewritten.
func (s *Store) MarkCompleted(ctx context.Context, id string, outputPath, videoURL, statsJSON string) (*Task, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, output_path = ?, video_url = ?, stats_json = ?,
             error_message = NULL, failure_kind = NULL,
             finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE uuid = ? AND status = ?`,
		StatusCompleted,
		nullableString(outputPath),
		nullableString(videoURL),
		nullableString(statsJSON),
		now, now,
		id, StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	if err := requireTransition(res, id, StatusCompleted); err != nil {
		return nil, err
	}
	return s.GetByUUID(ctx, id)
}

// MarkFailed finalizes a processing task with an error. Same absorbing-state
// guard as MarkCompleted.
func (s *Store) MarkFailed(ctx context.Context, id string, kind FailureKind, message string) (*Task, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, error_message = ?, failure_kind = ?,
             finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE uuid = ? AND status = ?`,
		StatusFailed,
		message,
		string(kind),
		now, now,
		id, StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	if err := requireTransition(res, id, StatusFailed); err != nil {
		return nil, err
	}
	return s.GetByUUID(ctx, id)
}

func requireTransition(res sql.Result, id string, to Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %s: not processing, refusing transition to %s", id, to)
	}
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight task.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET last_heartbeat = ?, updated_at = ? WHERE uuid = ? AND status = ?`,
		now, now, id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale fails processing tasks whose heartbeat is older than cutoff.
// A task orphaned by a crashed worker surfaces as failed with a resource
// reason instead of hanging in processing forever.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, error_message = ?, failure_kind = ?,
             finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusFailed,
		StaleReclaimReason,
		string(FailureResource),
		now, now,
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// FailInFlight fails every processing task, used during shutdown so no task
// is left dangling in processing.
func (s *Store) FailInFlight(ctx context.Context, message string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, error_message = ?, failure_kind = ?,
             finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusFailed, message, string(FailureResource), now, now,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("fail in-flight tasks: %w", err)
	}
	return res.RowsAffected()
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates task state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// ClearCompleted removes completed tasks.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes failed tasks.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all tasks.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}

const taskColumns = "id, uuid, status, input_path, source_url, callback_url, config_json, output_path, video_url, stats_json, error_message, failure_kind, created_at, updated_at, started_at, finished_at, last_heartbeat"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id           int64
		publicID     string
		statusStr    string
		inputPath    sql.NullString
		sourceURL    sql.NullString
		callbackURL  sql.NullString
		configJSON   sql.NullString
		outputPath   sql.NullString
		videoURL     sql.NullString
		statsJSON    sql.NullString
		errorMessage sql.NullString
		failureKind  sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		heartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&publicID,
		&statusStr,
		&inputPath,
		&sourceURL,
		&callbackURL,
		&configJSON,
		&outputPath,
		&videoURL,
		&statsJSON,
		&errorMessage,
		&failureKind,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           id,
		UUID:         publicID,
		Status:       Status(statusStr),
		InputPath:    inputPath.String,
		SourceURL:    sourceURL.String,
		CallbackURL:  callbackURL.String,
		ConfigJSON:   configJSON.String,
		OutputPath:   outputPath.String,
		VideoURL:     videoURL.String,
		StatsJSON:    statsJSON.String,
		ErrorMessage: errorMessage.String,
		FailureKind:  FailureKind(failureKind.String),
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	task.StartedAt = parseNullableTime(startedRaw)
	task.FinishedAt = parseNullableTime(finishedRaw)
	task.LastHeartbeat = parseNullableTime(heartbeatRaw)
	return task, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
