package lifecycle

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/event-scheduler/internal/domain"
	"github.com/cuongbtq/event-scheduler/internal/executor"
	"github.com/cuongbtq/event-scheduler/internal/store"
)

// TriggerEngine is the scheduled-job surface the controller drives.
type TriggerEngine interface {
	Register(ctx context.Context, desc *domain.JobDescriptor) error
	Reschedule(ctx context.Context, jobID, cronExpr, timezone string, payload map[string]interface{}) error
	Remove(ctx context.Context, jobID string) error
	Get(ctx context.Context, jobID string) (*domain.JobDescriptor, error)
	List(ctx context.Context, tenantID string) ([]string, error)
}

// RunLog is the event log surface the controller drives.
type RunLog interface {
	OpenRun(ctx context.Context, tenantID, eventClass, actor, jobID string) (string, error)
	Mark(ctx context.Context, runID, status string, fields *store.MarkFields) error
	Get(ctx context.Context, runID string) (*domain.Run, error)
	List(ctx context.Context, filter store.RunFilter) ([]*domain.Run, error)
}

// AdmissionGate decides whether a run may be admitted.
type AdmissionGate interface {
	CheckRun(ctx context.Context, tenantID, eventClass string) error
	CheckLimit(ctx context.Context, tenantID, kind string) error
}

// Dispatcher submits tasks to the configured backend.
type Dispatcher interface {
	ExecuteTask(ctx context.Context, env domain.TaskEnvelope) error
}

// BackendProbe confirms an execution backend is configured before any
// authoritative record is written.
type BackendProbe interface {
	Backend() (executor.Backend, error)
}

// Controller is the surface callers interact with. Every operation follows
// the same ordering: validate, consult the gate, write the authoritative
// record, then act. If acting fails the record is marked failed.
type Controller struct {
	engine     TriggerEngine
	runs       RunLog
	gate       AdmissionGate
	dispatcher Dispatcher
	probe      BackendProbe
	logger     *slog.Logger
}

// NewController creates a Controller. Construction has no side effects;
// the trigger engine is started separately.
func NewController(engine TriggerEngine, runs RunLog, gate AdmissionGate, dispatcher Dispatcher, probe BackendProbe, logger *slog.Logger) *Controller {
	return &Controller{
		engine:     engine,
		runs:       runs,
		gate:       gate,
		dispatcher: dispatcher,
		probe:      probe,
		logger:     logger,
	}
}

// AddScheduled registers a recurring job and returns its job_id.
func (c *Controller) AddScheduled(ctx context.Context, tenantID, eventClass, cronExpr, timezone string, payload map[string]interface{}, actor string) (string, error) {
	if !domain.IsValidEventClass(eventClass) {
		return "", domain.InvalidInputf("unknown event class %q", eventClass)
	}

	if _, err := c.probe.Backend(); err != nil {
		return "", err
	}

	// Coalesce and misfire grace defaults are applied by the engine from
	// its configuration.
	desc := &domain.JobDescriptor{
		TenantID:   tenantID,
		EventClass: eventClass,
		CronExpr:   cronExpr,
		Timezone:   timezone,
		Payload:    payload,
		CreatedBy:  actor,
	}

	if err := c.engine.Register(ctx, desc); err != nil {
		return "", err
	}

	return desc.JobID, nil
}

// UpdateScheduled swaps the trigger and/or payload of an existing job.
func (c *Controller) UpdateScheduled(ctx context.Context, jobID, cronExpr, timezone string, payload map[string]interface{}) error {
	return c.engine.Reschedule(ctx, jobID, cronExpr, timezone, payload)
}

// DeleteScheduled removes a job. Once it returns no further fires are
// produced; an in-flight run from a past fire keeps going and must be
// aborted through the event log if unwanted.
func (c *Controller) DeleteScheduled(ctx context.Context, jobID string) error {
	return c.engine.Remove(ctx, jobID)
}

// GetScheduled returns the job descriptor.
func (c *Controller) GetScheduled(ctx context.Context, jobID string) (*domain.JobDescriptor, error) {
	return c.engine.Get(ctx, jobID)
}

// ListScheduled returns the tenant's registered job_ids.
func (c *Controller) ListScheduled(ctx context.Context, tenantID string) ([]string, error) {
	return c.engine.List(ctx, tenantID)
}

// EnqueueOnce admits and dispatches a one-shot run, returning its run_id.
func (c *Controller) EnqueueOnce(ctx context.Context, tenantID, eventClass string, payload map[string]interface{}, actor string) (string, error) {
	if !domain.IsValidEventClass(eventClass) {
		return "", domain.InvalidInputf("unknown event class %q", eventClass)
	}

	if _, err := c.probe.Backend(); err != nil {
		return "", err
	}

	if err := c.gate.CheckRun(ctx, tenantID, eventClass); err != nil {
		return "", err
	}

	runID, err := c.runs.OpenRun(ctx, tenantID, eventClass, actor, "")
	if err != nil {
		return "", err
	}

	env := domain.TaskEnvelope{
		EventClass: eventClass,
		TenantID:   tenantID,
		RunID:      runID,
		Actor:      actor,
		TaskKind:   domain.TaskKindOneShot,
		Params:     payload,
	}

	if err := c.dispatcher.ExecuteTask(ctx, env); err != nil {
		// Roll the admission forward to failed so the mutex releases and
		// the ledger records the cause
		if markErr := c.runs.Mark(ctx, runID, domain.RunStatusFailed, &store.MarkFields{Exception: err.Error()}); markErr != nil {
			c.logger.Error("Failed to mark run failed after dispatch error",
				slog.String("run_id", runID),
				slog.Any("error", markErr),
			)
		}
		return "", err
	}

	c.logger.Info("One-shot run enqueued",
		slog.String("run_id", runID),
		slog.String("tenant_id", tenantID),
		slog.String("event_class", eventClass),
		slog.String("actor", actor),
	)

	return runID, nil
}

// MarkRun applies a status transition reported by an executing handler.
func (c *Controller) MarkRun(ctx context.Context, runID, status string, exception string, summary map[string]interface{}) error {
	switch status {
	case domain.RunStatusInProgress, domain.RunStatusCompleted, domain.RunStatusFailed, domain.RunStatusAborted:
	default:
		return domain.InvalidInputf("unknown run status %q", status)
	}

	var fields *store.MarkFields
	if exception != "" || summary != nil {
		fields = &store.MarkFields{Exception: exception, ResultSummary: summary}
	}

	return c.runs.Mark(ctx, runID, status, fields)
}

// GetRun returns a single run record.
func (c *Controller) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return c.runs.Get(ctx, runID)
}

// ListRuns pages through a tenant's run records, newest first.
func (c *Controller) ListRuns(ctx context.Context, filter store.RunFilter) ([]*domain.Run, error) {
	return c.runs.List(ctx, filter)
}

// CheckLimit exposes the uniform resource-limit contract for external
// callers (bot count, intents, training examples).
func (c *Controller) CheckLimit(ctx context.Context, tenantID, kind string) error {
	return c.gate.CheckLimit(ctx, tenantID, kind)
}
