package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// EventLog is the append-and-mutate store of run records. The partial
// unique index on (tenant_id, event_class) over active statuses makes
// OpenRun the scheduler's mutex.
type EventLog struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewEventLog creates a new EventLog
func NewEventLog(db *sqlx.DB, logger *slog.Logger) *EventLog {
	return &EventLog{db: db, logger: logger}
}

const runColumns = `run_id, tenant_id, event_class, job_id, status,
	started_at, ended_at, exception, result_summary, actor, created_at, updated_at`

type runRow struct {
	RunID         string         `db:"run_id"`
	TenantID      string         `db:"tenant_id"`
	EventClass    string         `db:"event_class"`
	JobID         sql.NullString `db:"job_id"`
	Status        string         `db:"status"`
	StartedAt     time.Time      `db:"started_at"`
	EndedAt       *time.Time     `db:"ended_at"`
	Exception     sql.NullString `db:"exception"`
	ResultSummary []byte         `db:"result_summary"`
	Actor         string         `db:"actor"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r *runRow) toRun() *domain.Run {
	run := &domain.Run{
		RunID:      r.RunID,
		TenantID:   r.TenantID,
		EventClass: r.EventClass,
		JobID:      r.JobID.String,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		Exception:  r.Exception.String,
		Actor:      r.Actor,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}

	if len(r.ResultSummary) > 0 {
		// A summary that fails to decode is dropped, not fatal
		_ = json.Unmarshal(r.ResultSummary, &run.ResultSummary)
	}

	return run
}

// OpenRun creates a run record in ENQUEUED status and returns its run_id.
// If another run for the same (tenant, event class) is still active the
// insert hits the partial unique index and domain.ErrConcurrentRun is
// returned without any record being created.
func (l *EventLog) OpenRun(ctx context.Context, tenantID, eventClass, actor, jobID string) (string, error) {
	runID := uuid.New().String()

	query := `
		INSERT INTO event_runs (
			run_id, tenant_id, event_class, job_id, status,
			started_at, actor, created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5,
			NOW(), $6, NOW(), NOW()
		)
	`

	_, err := l.db.ExecContext(ctx, query, runID, tenantID, eventClass, jobID, domain.RunStatusEnqueued, actor)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return "", domain.ErrConcurrentRun
		}
		return "", fmt.Errorf("failed to open run: %w", err)
	}

	l.logger.Info("Run opened",
		slog.String("run_id", runID),
		slog.String("tenant_id", tenantID),
		slog.String("event_class", eventClass),
		slog.String("actor", actor),
	)

	return runID, nil
}

// MarkFields carries the optional fields merged during a status transition.
type MarkFields struct {
	Exception     string
	ResultSummary map[string]interface{}
}

// Mark transitions a run to status, merging fields. The transition graph is
// enforced inside the UPDATE predicate so concurrent writers cannot move a
// run backwards. ended_at is set exactly when the new status is terminal.
func (l *EventLog) Mark(ctx context.Context, runID, status string, fields *MarkFields) error {
	preds := domain.LegalPredecessors(status)
	if len(preds) == 0 {
		return fmt.Errorf("%w: no status may transition to %q", domain.ErrInvalidTransition, status)
	}

	var exception string
	var summary []byte
	if fields != nil {
		exception = fields.Exception
		if fields.ResultSummary != nil {
			var err error
			summary, err = json.Marshal(fields.ResultSummary)
			if err != nil {
				return fmt.Errorf("failed to encode result summary: %w", err)
			}
		}
	}

	query := `
		UPDATE event_runs
		SET status = $1,
		    exception = COALESCE(NULLIF($2, ''), exception),
		    result_summary = COALESCE($3, result_summary),
		    ended_at = CASE WHEN $4 THEN NOW() ELSE ended_at END,
		    updated_at = NOW()
		WHERE run_id = $5 AND status = ANY($6)
	`

	result, err := l.db.ExecContext(ctx, query,
		status, exception, summary, domain.IsTerminalStatus(status), runID, pq.Array(preds))
	if err != nil {
		return fmt.Errorf("failed to mark run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		// Distinguish an unknown run from an illegal transition
		var current string
		err := l.db.GetContext(ctx, &current, `SELECT status FROM event_runs WHERE run_id = $1`, runID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read run status: %w", err)
		}
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
	}

	l.logger.Info("Run status updated",
		slog.String("run_id", runID),
		slog.String("status", status),
	)

	return nil
}

// MarkFailed transitions a run to FAILED with the cause recorded as the
// exception.
func (l *EventLog) MarkFailed(ctx context.Context, runID, cause string) error {
	return l.Mark(ctx, runID, domain.RunStatusFailed, &MarkFields{Exception: cause})
}

// Touch refreshes updated_at on an in-progress run. Workers call this
// periodically so stalled runs can be told apart from live ones.
func (l *EventLog) Touch(ctx context.Context, runID string) error {
	query := `
		UPDATE event_runs
		SET updated_at = NOW()
		WHERE run_id = $1 AND status = $2
	`

	result, err := l.db.ExecContext(ctx, query, runID, domain.RunStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to touch run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		l.logger.Warn("Run heartbeat touched no rows (run may no longer be in progress)",
			slog.String("run_id", runID),
		)
	}

	return nil
}

// FindActive returns the unique non-terminal run for (tenant, event class),
// or nil if none exists.
func (l *EventLog) FindActive(ctx context.Context, tenantID, eventClass string) (*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM event_runs
		WHERE tenant_id = $1 AND event_class = $2 AND status = ANY($3)
	`

	var row runRow
	err := l.db.GetContext(ctx, &row, query, tenantID, eventClass, pq.Array(domain.ActiveStatuses))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active run: %w", err)
	}

	return row.toRun(), nil
}

// AggregateDaily counts the runs for (tenant, event class) whose
// started_at falls inside the UTC calendar day containing day and whose
// status counts against quota.
func (l *EventLog) AggregateDaily(ctx context.Context, tenantID, eventClass string, day time.Time) (int, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT COUNT(*)
		FROM event_runs
		WHERE tenant_id = $1
		  AND event_class = $2
		  AND status = ANY($3)
		  AND started_at >= $4
		  AND started_at < $5
	`

	var count int
	err := l.db.GetContext(ctx, &count, query,
		tenantID, eventClass, pq.Array(domain.CountedStatuses), dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate daily runs: %w", err)
	}

	return count, nil
}

// RunCursor is an opaque position in the run listing: the (started_at,
// run_id) pair of the last record on the previous page.
type RunCursor struct {
	StartedAt time.Time
	RunID     string
}

// RunFilter narrows a List call.
type RunFilter struct {
	TenantID   string
	EventClass string
	Status     string
	PageSize   int
	Cursor     *RunCursor
}

// List returns runs for a tenant, newest first with deterministic ties on
// (started_at DESC, run_id DESC). One extra row is fetched so the caller
// can detect whether more pages exist.
func (l *EventLog) List(ctx context.Context, filter RunFilter) ([]*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM event_runs
		WHERE tenant_id = $1
	`
	args := []interface{}{filter.TenantID}
	argIdx := 2

	if filter.EventClass != "" {
		query += fmt.Sprintf(" AND event_class = $%d", argIdx)
		args = append(args, filter.EventClass)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (started_at, run_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.StartedAt, filter.Cursor.RunID)
		argIdx += 2
	}

	query += " ORDER BY started_at DESC, run_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []runRow
	if err := l.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*domain.Run, len(rows))
	for i := range rows {
		runs[i] = rows[i].toRun()
	}

	return runs, nil
}

// GCExpiredEnqueued deletes ENQUEUED runs created before olderThan. These
// are admissions whose dispatch never happened (for example a crash between
// OpenRun and publish); reaping them releases the tenant mutex.
func (l *EventLog) GCExpiredEnqueued(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM event_runs
		WHERE status = $1 AND created_at < $2
	`

	result, err := l.db.ExecContext(ctx, query, domain.RunStatusEnqueued, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to gc enqueued runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		l.logger.Info("Reaped expired enqueued runs",
			slog.Int64("count", affected),
			slog.Time("older_than", olderThan),
		)
	}

	return affected, nil
}

// Get returns a single run by id or domain.ErrNotFound.
func (l *EventLog) Get(ctx context.Context, runID string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM event_runs WHERE run_id = $1`

	var row runRow
	if err := l.db.GetContext(ctx, &row, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return row.toRun(), nil
}
