package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// uniqueViolation is the Postgres error code for unique constraint breaches
const uniqueViolation = "23505"

// JobStore persists scheduled job descriptors. The descriptor row is the
// authoritative source of next_fire_time; in-memory caches must be
// rebuildable from it.
type JobStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewJobStore creates a new JobStore
func NewJobStore(db *sqlx.DB, logger *slog.Logger) *JobStore {
	return &JobStore{db: db, logger: logger}
}

const jobColumns = `job_id, tenant_id, event_class, cron_expr, timezone, payload,
	next_fire_time, coalesce_fires, misfire_grace_seconds, created_by, created_at, updated_at`

type jobRow struct {
	JobID               string     `db:"job_id"`
	TenantID            string     `db:"tenant_id"`
	EventClass          string     `db:"event_class"`
	CronExpr            string     `db:"cron_expr"`
	Timezone            string     `db:"timezone"`
	Payload             []byte     `db:"payload"`
	NextFireTime        *time.Time `db:"next_fire_time"`
	Coalesce            bool       `db:"coalesce_fires"`
	MisfireGraceSeconds int        `db:"misfire_grace_seconds"`
	CreatedBy           string     `db:"created_by"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

func (r *jobRow) toDescriptor() (*domain.JobDescriptor, error) {
	desc := &domain.JobDescriptor{
		JobID:               r.JobID,
		TenantID:            r.TenantID,
		EventClass:          r.EventClass,
		CronExpr:            r.CronExpr,
		Timezone:            r.Timezone,
		NextFireTime:        r.NextFireTime,
		Coalesce:            r.Coalesce,
		MisfireGraceSeconds: r.MisfireGraceSeconds,
		CreatedBy:           r.CreatedBy,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}

	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &desc.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode job payload: %w", err)
		}
	}

	return desc, nil
}

// Put inserts a new job descriptor. A duplicate job_id returns
// domain.ErrAlreadyExists.
func (s *JobStore) Put(ctx context.Context, desc *domain.JobDescriptor) error {
	payload, err := json.Marshal(desc.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	query := `
		INSERT INTO scheduled_jobs (
			job_id, tenant_id, event_class, cron_expr, timezone, payload,
			next_fire_time, coalesce_fires, misfire_grace_seconds, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12
		)
	`

	_, err = s.db.ExecContext(
		ctx,
		query,
		desc.JobID,
		desc.TenantID,
		desc.EventClass,
		desc.CronExpr,
		desc.Timezone,
		payload,
		desc.NextFireTime,
		desc.Coalesce,
		desc.MisfireGraceSeconds,
		desc.CreatedBy,
		desc.CreatedAt,
		desc.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create scheduled job: %w", err)
	}

	return nil
}

// Get returns the descriptor for jobID or domain.ErrNotFound.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.JobDescriptor, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE job_id = $1`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get scheduled job: %w", err)
	}

	return row.toDescriptor()
}

// Delete removes the descriptor for jobID. Absence is reported as
// domain.ErrNotFound so callers can distinguish a real delete.
func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// ListByTenant returns the job_ids registered for a tenant. Order is
// unspecified.
func (s *JobStore) ListByTenant(ctx context.Context, tenantID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT job_id FROM scheduled_jobs WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled jobs: %w", err)
	}
	return ids, nil
}

// ScanDue returns jobs whose next_fire_time is at or before now, ascending
// by next_fire_time. Paused jobs (NULL next_fire_time) are skipped.
func (s *JobStore) ScanDue(ctx context.Context, now time.Time) ([]*domain.JobDescriptor, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE next_fire_time IS NOT NULL AND next_fire_time <= $1
		ORDER BY next_fire_time ASC
	`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, fmt.Errorf("failed to scan due jobs: %w", err)
	}

	jobs := make([]*domain.JobDescriptor, 0, len(rows))
	for i := range rows {
		desc, err := rows[i].toDescriptor()
		if err != nil {
			s.logger.Error("Skipping undecodable job row",
				slog.String("job_id", rows[i].JobID),
				slog.Any("error", err),
			)
			continue
		}
		jobs = append(jobs, desc)
	}

	return jobs, nil
}

// UpdateIfPresent atomically swaps the trigger and payload of an existing
// job. Missing rows return domain.ErrNotFound, so a reschedule racing an
// external delete cannot resurrect the job.
func (s *JobStore) UpdateIfPresent(ctx context.Context, jobID, cronExpr, timezone string, payload map[string]interface{}, nextFire *time.Time) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	query := `
		UPDATE scheduled_jobs
		SET cron_expr = $1,
		    timezone = $2,
		    payload = $3,
		    next_fire_time = $4,
		    updated_at = NOW()
		WHERE job_id = $5
	`

	result, err := s.db.ExecContext(ctx, query, cronExpr, timezone, encoded, nextFire, jobID)
	if err != nil {
		return fmt.Errorf("failed to update scheduled job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// AdvanceNextFire moves next_fire_time from prevFire to nextFire. The
// update is conditional on the stored value still being prevFire; false
// means a concurrent reschedule or delete won the race and the caller must
// not act on the stale fire.
func (s *JobStore) AdvanceNextFire(ctx context.Context, jobID string, prevFire time.Time, nextFire time.Time) (bool, error) {
	query := `
		UPDATE scheduled_jobs
		SET next_fire_time = $1,
		    updated_at = NOW()
		WHERE job_id = $2 AND next_fire_time = $3
	`

	result, err := s.db.ExecContext(ctx, query, nextFire, jobID, prevFire)
	if err != nil {
		return false, fmt.Errorf("failed to advance next fire time: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}
