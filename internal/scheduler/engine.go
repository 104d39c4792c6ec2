package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// JobStore is the slice of the job store the engine needs.
type JobStore interface {
	Put(ctx context.Context, desc *domain.JobDescriptor) error
	Get(ctx context.Context, jobID string) (*domain.JobDescriptor, error)
	Delete(ctx context.Context, jobID string) error
	ListByTenant(ctx context.Context, tenantID string) ([]string, error)
	ScanDue(ctx context.Context, now time.Time) ([]*domain.JobDescriptor, error)
	UpdateIfPresent(ctx context.Context, jobID, cronExpr, timezone string, payload map[string]interface{}, nextFire *time.Time) error
	AdvanceNextFire(ctx context.Context, jobID string, prevFire, nextFire time.Time) (bool, error)
}

// Dispatcher hands a fired task to the configured execution backend.
type Dispatcher interface {
	ExecuteTask(ctx context.Context, env domain.TaskEnvelope) error
}

// FireLog records the outcome of fires. It is satisfied by the event log;
// MarkFailed is only called when dispatch fails after a run was opened.
type FireLog interface {
	OpenRun(ctx context.Context, tenantID, eventClass, actor, jobID string) (string, error)
	FindActive(ctx context.Context, tenantID, eventClass string) (*domain.Run, error)
	MarkFailed(ctx context.Context, runID, cause string) error
	GCExpiredEnqueued(ctx context.Context, olderThan time.Time) (int64, error)
}

// Config holds engine settings.
type Config struct {
	TickInterval        time.Duration
	MisfireGraceSeconds int // default applied when a descriptor carries none
	Coalesce            bool
	EnqueuedRunTTL      time.Duration
}

// Engine is the trigger engine: it owns the job store scan loop, computes
// fire instants from cron triggers, and dispatches due fires. All state
// lives in the job store; the engine rebuilds its view on every tick, so a
// crash needs no recovery beyond restarting the loop.
type Engine struct {
	store      JobStore
	fires      FireLog
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a trigger engine. Start must be called before any
// scheduled fire is produced; the registration API works regardless.
func NewEngine(store JobStore, fires FireLog, dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.EnqueuedRunTTL <= 0 {
		cfg.EnqueuedRunTTL = 24 * time.Hour
	}

	return &Engine{
		store:      store,
		fires:      fires,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Register validates the descriptor's trigger, computes its first fire
// instant and stores it. The job_id is generated here and returned on the
// descriptor.
func (e *Engine) Register(ctx context.Context, desc *domain.JobDescriptor) error {
	trigger, err := ParseTrigger(desc.CronExpr, desc.Timezone)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	next := trigger.Next(now)

	if desc.JobID == "" {
		desc.JobID = uuid.New().String()
	}
	desc.Timezone = trigger.Timezone
	desc.NextFireTime = &next
	desc.CreatedAt = now
	desc.UpdatedAt = now
	desc.Coalesce = e.cfg.Coalesce
	if desc.MisfireGraceSeconds == 0 {
		desc.MisfireGraceSeconds = e.cfg.MisfireGraceSeconds
	}

	if err := e.store.Put(ctx, desc); err != nil {
		return err
	}

	e.logger.Info("Scheduled job registered",
		slog.String("job_id", desc.JobID),
		slog.String("tenant_id", desc.TenantID),
		slog.String("event_class", desc.EventClass),
		slog.String("cron", desc.CronExpr),
		slog.Time("next_fire_time", next),
	)

	return nil
}

// Reschedule atomically swaps the trigger and/or payload of an existing
// job and recomputes its next fire instant. Empty cronExpr or nil payload
// keep the stored values.
func (e *Engine) Reschedule(ctx context.Context, jobID, cronExpr, timezone string, payload map[string]interface{}) error {
	desc, err := e.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if cronExpr == "" {
		cronExpr = desc.CronExpr
	}
	if timezone == "" {
		timezone = desc.Timezone
	}
	if payload == nil {
		payload = desc.Payload
	}

	trigger, err := ParseTrigger(cronExpr, timezone)
	if err != nil {
		return err
	}

	next := trigger.Next(time.Now().UTC())
	if err := e.store.UpdateIfPresent(ctx, jobID, trigger.Expr, trigger.Timezone, payload, &next); err != nil {
		return err
	}

	e.logger.Info("Scheduled job rescheduled",
		slog.String("job_id", jobID),
		slog.String("cron", trigger.Expr),
		slog.Time("next_fire_time", next),
	)

	return nil
}

// Remove deletes the descriptor. Once it returns, no further fires will be
// produced for jobID; in-flight runs from past fires continue.
func (e *Engine) Remove(ctx context.Context, jobID string) error {
	if err := e.store.Delete(ctx, jobID); err != nil {
		return err
	}

	e.logger.Info("Scheduled job removed", slog.String("job_id", jobID))
	return nil
}

// Get returns the descriptor for jobID.
func (e *Engine) Get(ctx context.Context, jobID string) (*domain.JobDescriptor, error) {
	return e.store.Get(ctx, jobID)
}

// List returns the job_ids registered for a tenant.
func (e *Engine) List(ctx context.Context, tenantID string) ([]string, error) {
	return e.store.ListByTenant(ctx, tenantID)
}

// Start begins the tick loop and the enqueued-run reaper.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go e.run()
	go e.reapLoop()

	e.logger.Info("Trigger engine started",
		slog.Duration("tick_interval", e.cfg.TickInterval),
	)
}

// Stop halts the tick loop and waits for in-flight dispatches to settle.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("Trigger engine stopped")
}

// run is the main tick loop
func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case tickTime := <-ticker.C:
			if err := e.checkDueJobs(tickTime.UTC()); err != nil {
				e.logger.Warn("Scheduler tick error", slog.Any("error", err))
			}
		}
	}
}

// reapLoop periodically deletes ENQUEUED runs that were never picked up,
// releasing the tenant mutex they hold.
func (e *Engine) reapLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-e.cfg.EnqueuedRunTTL)
			if _, err := e.fires.GCExpiredEnqueued(e.ctx, cutoff); err != nil {
				e.logger.Warn("Enqueued-run reaper error", slog.Any("error", err))
			}
		}
	}
}

// checkDueJobs scans for due jobs and fires each one.
func (e *Engine) checkDueJobs(now time.Time) error {
	jobs, err := e.store.ScanDue(e.ctx, now)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		select {
		case <-e.ctx.Done():
			return e.ctx.Err()
		default:
		}

		if err := e.fire(job, now); err != nil {
			e.logger.Error("Failed to fire scheduled job",
				slog.String("job_id", job.JobID),
				slog.String("event_class", job.EventClass),
				slog.Any("error", err),
			)
			// Keep going; one broken job must not starve the rest
		}
	}

	return nil
}

// fire handles one due job: misfire check, overlap suppression, run
// admission, next-fire advancement, dispatch.
func (e *Engine) fire(job *domain.JobDescriptor, now time.Time) error {
	scheduledAt := *job.NextFireTime

	trigger, err := ParseTrigger(job.CronExpr, job.Timezone)
	if err != nil {
		// Descriptor was validated at registration; a parse failure here
		// means stored state is corrupt. Leave the row for inspection.
		return err
	}

	next := trigger.NextAfterFire(scheduledAt, now, job.Coalesce)

	// Advancing first makes deletion races safe: if the row is gone or was
	// rescheduled, the swap fails and this fire is abandoned with no run.
	advanced, err := e.store.AdvanceNextFire(e.ctx, job.JobID, scheduledAt, next)
	if err != nil {
		return err
	}
	if !advanced {
		e.logger.Debug("Fire abandoned, descriptor changed underneath",
			slog.String("job_id", job.JobID),
		)
		return nil
	}

	if Misfired(scheduledAt, now, job.MisfireGraceSeconds) {
		// Coalescing collapses the missed fires into the most recent one,
		// which gets its own grace check: the backlog is dropped only when
		// every missed instant is out of grace.
		dropped := true
		if job.Coalesce {
			latest := trigger.LatestDue(scheduledAt, now)
			if !Misfired(latest, now, job.MisfireGraceSeconds) {
				e.logger.Warn("Coalescing missed fires into one catch-up run",
					slog.String("job_id", job.JobID),
					slog.Time("oldest_missed", scheduledAt),
					slog.Time("scheduled_at", latest),
				)
				scheduledAt = latest
				dropped = false
			}
		}

		if dropped {
			e.logger.Warn("Dropping misfired job run",
				slog.String("job_id", job.JobID),
				slog.Time("scheduled_at", scheduledAt),
				slog.Int("grace_seconds", job.MisfireGraceSeconds),
			)
			return nil
		}
	}

	// max_instances_per_job = 1: a fire while the previous run is still
	// active is dropped, not queued.
	active, err := e.fires.FindActive(e.ctx, job.TenantID, job.EventClass)
	if err != nil {
		return err
	}
	if active != nil {
		e.logger.Warn("Suppressing fire, previous run still active",
			slog.String("job_id", job.JobID),
			slog.String("active_run_id", active.RunID),
			slog.String("active_status", active.Status),
		)
		return nil
	}

	runID, err := e.fires.OpenRun(e.ctx, job.TenantID, job.EventClass, domain.ActorScheduler, job.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentRun) {
			// Lost the race to a one-shot admission; same outcome as the
			// active check above.
			return nil
		}
		return err
	}

	env := domain.TaskEnvelope{
		EventClass: job.EventClass,
		TenantID:   job.TenantID,
		RunID:      runID,
		Actor:      domain.ActorScheduler,
		TaskKind:   domain.TaskKindScheduled,
		Params:     job.Payload,
	}

	if err := e.dispatcher.ExecuteTask(e.ctx, env); err != nil {
		if markErr := e.fires.MarkFailed(e.ctx, runID, err.Error()); markErr != nil {
			e.logger.Error("Failed to mark run failed after dispatch error",
				slog.String("run_id", runID),
				slog.Any("error", markErr),
			)
		}
		return err
	}

	e.logger.Info("Scheduled fire dispatched",
		slog.String("job_id", job.JobID),
		slog.String("run_id", runID),
		slog.String("event_class", job.EventClass),
		slog.Time("scheduled_at", scheduledAt),
		slog.Time("next_fire_time", next),
	)

	return nil
}
