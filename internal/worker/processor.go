package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/event-scheduler/internal/domain"
	"github.com/cuongbtq/event-scheduler/internal/store"
)

// processTask claims a run, executes its handler under the job timeout, and
// records the terminal status. A nil return means the message can be acked.
// Duplicate deliveries resolve here: a run that is no longer claimable was
// already picked up, so the duplicate is acked without executing anything.
func (w *Worker) processTask(ctx context.Context, task *taskMessage) error {
	env := task.Message.Envelope

	w.logger.Info("Processing task",
		slog.String("run_id", env.RunID),
		slog.String("event_class", env.EventClass),
		slog.String("tenant_id", env.TenantID),
		slog.String("worker_id", w.workerID),
	)

	// Step 1: claim the run (ENQUEUED -> IN_PROGRESS)
	if err := w.runs.Mark(ctx, env.RunID, domain.RunStatusInProgress, nil); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Another delivery of the same run got here first, or the
			// run was aborted before we saw it
			w.logger.Warn("Run not claimable, skipping duplicate delivery",
				slog.String("run_id", env.RunID),
			)
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			// The enqueued record was reaped before delivery
			w.logger.Warn("Run record missing, dropping task",
				slog.String("run_id", env.RunID),
			)
			return nil
		}
		// Database error, likely transient
		return NewRetryableError(fmt.Errorf("failed to claim run: %w", err))
	}

	// Step 2: resolve the handler
	handler, ok := w.handlers.For(task.Message.Handler)
	if !ok {
		cause := fmt.Sprintf("no handler registered for %q", task.Message.Handler)
		if markErr := w.runs.Mark(ctx, env.RunID, domain.RunStatusFailed, &store.MarkFields{Exception: cause}); markErr != nil {
			w.logger.Error("Failed to mark run FAILED",
				slog.String("run_id", env.RunID),
				slog.String("error", markErr.Error()),
			)
		}
		return fmt.Errorf("%w: %s", ErrUnknownHandler, task.Message.Handler)
	}

	// Step 3: bounded execution context
	taskCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	// Step 4: heartbeat while the handler runs
	heartbeatDone := make(chan struct{})
	go w.sendRunHeartbeat(taskCtx, env.RunID, heartbeatDone)
	defer close(heartbeatDone)

	// Step 5: execute
	result, err := handler(taskCtx, env)

	// Step 6: record the terminal status
	if err != nil {
		w.logger.Error("Task execution failed",
			slog.String("run_id", env.RunID),
			slog.String("event_class", env.EventClass),
			slog.String("error", err.Error()),
		)

		if markErr := w.runs.Mark(ctx, env.RunID, domain.RunStatusFailed, &store.MarkFields{Exception: err.Error()}); markErr != nil {
			w.logger.Error("Failed to mark run FAILED",
				slog.String("run_id", env.RunID),
				slog.String("error", markErr.Error()),
			)
			// The failure is not recorded yet; requeue so a later
			// attempt can write it
			return NewRetryableError(fmt.Errorf("failed to record failure: %w", markErr))
		}

		// Failure is recorded as the run's terminal status; the message
		// itself must not be retried
		return fmt.Errorf("task execution failed: %w", err)
	}

	w.logger.Info("Task completed",
		slog.String("run_id", env.RunID),
		slog.String("event_class", env.EventClass),
	)

	if markErr := w.runs.Mark(ctx, env.RunID, domain.RunStatusCompleted, &store.MarkFields{ResultSummary: result}); markErr != nil {
		w.logger.Error("Failed to mark run COMPLETED",
			slog.String("run_id", env.RunID),
			slog.String("error", markErr.Error()),
		)
		// Work is done but unrecorded; requeue so the completion gets
		// written (the duplicate claim will no-op if it already was)
		return NewRetryableError(fmt.Errorf("failed to record completion: %w", markErr))
	}

	return nil
}

// sendRunHeartbeat periodically refreshes the run's updated_at timestamp
func (w *Worker) sendRunHeartbeat(ctx context.Context, runID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := w.runs.Touch(ctx, runID); err != nil {
				w.logger.Warn("Failed to update run heartbeat",
					slog.String("run_id", runID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
