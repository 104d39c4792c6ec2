package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/event-scheduler/internal/config"
	"github.com/cuongbtq/event-scheduler/internal/domain"
	"github.com/cuongbtq/event-scheduler/internal/store"
)

// RunCounts is the slice of the event log the gate reads.
type RunCounts interface {
	FindActive(ctx context.Context, tenantID, eventClass string) (*domain.Run, error)
	AggregateDaily(ctx context.Context, tenantID, eventClass string, day time.Time) (int, error)
}

// Settings reads per-tenant limit configuration.
type Settings interface {
	Get(ctx context.Context, tenantID string) (*store.TenantSettings, error)
}

// Gate makes admission decisions before any run record is opened. It holds
// no state of its own; every decision reads the event log and tenant
// settings fresh. Daily windows roll over at UTC midnight.
type Gate struct {
	runs     RunCounts
	settings Settings
	cfg      config.QuotaConfig
	logger   *slog.Logger
	timeNow  func() time.Time
}

// NewGate creates a quota gate
func NewGate(runs RunCounts, settings Settings, cfg config.QuotaConfig, logger *slog.Logger) *Gate {
	return &Gate{
		runs:     runs,
		settings: settings,
		cfg:      cfg,
		logger:   logger,
		timeNow:  time.Now,
	}
}

// CheckRun decides whether a new run for (tenant, event class) may be
// admitted today. Nil means allow; a LimitExceededError or
// ErrConcurrentRun means deny.
func (g *Gate) CheckRun(ctx context.Context, tenantID, eventClass string) error {
	active, err := g.runs.FindActive(ctx, tenantID, eventClass)
	if err != nil {
		return err
	}
	if active != nil {
		return domain.ErrConcurrentRun
	}

	limit, err := g.dailyLimit(ctx, tenantID, eventClass)
	if err != nil {
		return err
	}

	if limit <= 0 {
		// No limit configured anywhere means unlimited
		return nil
	}

	count, err := g.runs.AggregateDaily(ctx, tenantID, eventClass, g.timeNow().UTC())
	if err != nil {
		return err
	}

	if count >= limit {
		g.logger.Warn("Daily limit reached",
			slog.String("tenant_id", tenantID),
			slog.String("event_class", eventClass),
			slog.Int("count", count),
			slog.Int("limit", limit),
		)
		return domain.NewLimitExceeded("Daily limit exceeded.")
	}

	return nil
}

// CheckLimit is the uniform limit contract for non-run resources (bot
// count, intent count, training examples). Nil means allow.
func (g *Gate) CheckLimit(ctx context.Context, tenantID, kind string) error {
	settings, err := g.settings.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if settings == nil {
		return nil
	}

	limit, ok := settings.ResourceLimits[kind]
	if !ok || limit <= 0 {
		return nil
	}

	if settings.ResourceCounts[kind] >= limit {
		return domain.NewLimitExceeded(fmt.Sprintf("Limit for %s exceeded.", kind))
	}

	return nil
}

// dailyLimit resolves the effective daily limit for (tenant, event
// class): tenant settings first, then process-wide per-class defaults,
// then the global default.
func (g *Gate) dailyLimit(ctx context.Context, tenantID, eventClass string) (int, error) {
	settings, err := g.settings.Get(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	if settings != nil {
		if limit, ok := settings.DailyLimits[eventClass]; ok {
			return limit, nil
		}
	}

	if limit, ok := g.cfg.DailyLimits[eventClass]; ok {
		return limit, nil
	}

	return g.cfg.DefaultDailyLimit, nil
}
