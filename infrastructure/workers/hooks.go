package workers

import (
	"context"
	"log/slog"
)

// LogStartHook logs each task as it begins processing.
func LogStartHook[T Task](log *slog.Logger) PreProcessHook[T] {
	return func(ctx context.Context, task T) error {
		log.InfoContext(ctx, "processing task", "task_id", task.GetID())
		return nil
	}
}

// LogEndHook logs each task's result.
func LogEndHook[T Task](log *slog.Logger) PostProcessHook[T] {
	return func(ctx context.Context, task T, err error) error {
		if err != nil {
			log.ErrorContext(ctx, "task failed", "task_id", task.GetID(), "error", err)
			return nil
		}
		log.InfoContext(ctx, "task completed", "task_id", task.GetID())
		return nil
	}
}
