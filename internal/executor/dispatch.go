package executor

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// Dispatcher fronts the backend adaptors with a single ExecuteTask
// callable. Both the trigger engine and the lifecycle controller hand off
// through it; backend selection happens per call, by name.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// ExecuteTask validates the envelope's event class and submits it to the
// configured backend.
func (d *Dispatcher) ExecuteTask(ctx context.Context, env domain.TaskEnvelope) error {
	if _, err := HandlerFor(env.EventClass); err != nil {
		return err
	}

	backend, err := d.registry.Backend()
	if err != nil {
		return err
	}

	d.logger.Debug("Dispatching task",
		slog.String("backend", backend.Name()),
		slog.String("run_id", env.RunID),
		slog.String("event_class", env.EventClass),
		slog.String("task_kind", env.TaskKind),
	)

	return backend.ExecuteTask(ctx, env)
}
