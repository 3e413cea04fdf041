package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subclean/internal/config"
	"subclean/internal/queue"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and manage the task queue",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))
	tasksCmd.AddCommand(newTasksClearCommand(ctx))
	tasksCmd.AddCommand(newTasksHealthCommand(ctx))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilter(statusFlag)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				tasks, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no tasks found")
					return nil
				}

				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []string{
						task.UUID,
						string(task.Status),
						task.CreatedAt.Local().Format(time.DateTime),
						formatElapsed(task),
						task.InputPath,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(),
					renderTable([]string{"TASK", "STATUS", "CREATED", "ELAPSED", "INPUT"}, rows, 3))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Comma-separated status filter (pending, processing, completed, failed)")
	return cmd
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show the full state of one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				task, err := store.GetByUUID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %s not found", args[0])
				}

				rows := [][]string{
					{"Task", task.UUID},
					{"Status", string(task.Status)},
					{"Created", task.CreatedAt.Local().Format(time.DateTime)},
					{"Updated", task.UpdatedAt.Local().Format(time.DateTime)},
					{"Started", formatTimePtr(task.StartedAt)},
					{"Finished", formatTimePtr(task.FinishedAt)},
					{"Input", orDash(task.InputPath)},
					{"Source URL", orDash(task.SourceURL)},
					{"Callback URL", orDash(task.CallbackURL)},
					{"Video URL", orDash(task.VideoURL)},
				}
				if task.Status == queue.StatusFailed {
					rows = append(rows,
						[]string{"Failure kind", string(task.FailureKind)},
						[]string{"Error", orDash(task.ErrorMessage)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"FIELD", "VALUE"}, rows))

				if strings.TrimSpace(task.StatsJSON) != "" {
					var pretty bytes.Buffer
					if err := json.Indent(&pretty, []byte(task.StatsJSON), "", "  "); err == nil {
						fmt.Fprintln(cmd.OutOrStdout(), "stats:")
						fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
					}
				}
				return nil
			})
		},
	}
}

func newTasksClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, flag := range []bool{clearCompleted, clearFailed, clearAll} {
				if flag {
					selected++
				}
			}
			if selected != 1 {
				return fmt.Errorf("specify exactly one of --completed, --failed, or --all")
			}

			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				var removed int64
				var err error
				switch {
				case clearAll:
					removed, err = store.Clear(cmd.Context())
				case clearCompleted:
					removed, err = store.ClearCompleted(cmd.Context())
				default:
					removed, err = store.ClearFailed(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d task(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed tasks")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed tasks")
	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every task regardless of state")
	return cmd
}

func newTasksHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show aggregate queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"pending", strconv.Itoa(summary.Pending)},
					{"processing", strconv.Itoa(summary.Processing)},
					{"completed", strconv.Itoa(summary.Completed)},
					{"failed", strconv.Itoa(summary.Failed)},
					{"total", strconv.Itoa(summary.Total)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"STATUS", "COUNT"}, rows, 1))
				return nil
			})
		},
	}
}

func parseStatusFilter(raw string) ([]queue.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	statuses := make([]queue.Status, 0, len(parts))
	for _, part := range parts {
		status, ok := queue.ParseStatus(strings.TrimSpace(part))
		if !ok {
			return nil, fmt.Errorf("unknown status %q", strings.TrimSpace(part))
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func formatElapsed(task *queue.Task) string {
	ms := task.ElapsedMS()
	if ms == 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).String()
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.Local().Format(time.DateTime)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
