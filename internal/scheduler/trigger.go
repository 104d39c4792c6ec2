package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// cronParser accepts the classic five cron fields: minute, hour,
// day-of-month, month, day-of-week.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger is a parsed cron expression bound to a timezone. Fire instants
// are computed in the job's zone, so "0 3 * * *" means 03:00 local to the
// job wherever the scheduler runs.
type Trigger struct {
	Expr     string
	Timezone string
	schedule cron.Schedule
}

// ParseTrigger validates expr as a 5-field cron expression and binds it to
// timezone (UTC when empty). Parse failures are reported as invalid input.
func ParseTrigger(expr, timezone string) (*Trigger, error) {
	if expr == "" {
		return nil, domain.InvalidInputf("cron expression is required")
	}

	tz := timezone
	if tz == "" {
		tz = "UTC"
	}

	if _, err := time.LoadLocation(tz); err != nil {
		return nil, domain.InvalidInputf("unknown timezone %q", tz)
	}

	// robfig/cron resolves the zone itself via the CRON_TZ prefix
	schedule, err := cronParser.Parse(fmt.Sprintf("CRON_TZ=%s %s", tz, expr))
	if err != nil {
		return nil, domain.InvalidInputf("cron expression %q does not parse: %v", expr, err)
	}

	return &Trigger{
		Expr:     expr,
		Timezone: tz,
		schedule: schedule,
	}, nil
}

// Next returns the first fire instant strictly after t.
func (tr *Trigger) Next(t time.Time) time.Time {
	return tr.schedule.Next(t)
}

// NextAfterFire decides the fire instant that follows a fire scheduled at
// scheduledAt and observed at now. With coalesce enabled, every fire
// missed between scheduledAt and now collapses into the one being handled;
// without it, catch-up fires are emitted one by one on subsequent ticks.
func (tr *Trigger) NextAfterFire(scheduledAt, now time.Time, coalesce bool) time.Time {
	if coalesce {
		return tr.schedule.Next(now)
	}
	return tr.schedule.Next(scheduledAt)
}

// LatestDue returns the last fire instant at or before now, walking the
// schedule forward from scheduledAt. scheduledAt must itself be a fire
// instant; it is returned unchanged when no later instant is due yet.
func (tr *Trigger) LatestDue(scheduledAt, now time.Time) time.Time {
	latest := scheduledAt
	for {
		next := tr.schedule.Next(latest)
		if next.After(now) {
			return latest
		}
		latest = next
	}
}

// Misfired reports whether a fire scheduled at scheduledAt and observed at
// now is past its grace window and must be dropped. Grace zero still
// tolerates one tick of scan latency, since ticks almost never land on the
// exact fire instant.
func Misfired(scheduledAt, now time.Time, graceSeconds int) bool {
	grace := time.Duration(graceSeconds) * time.Second
	if grace <= 0 {
		grace = time.Second
	}
	return now.Sub(scheduledAt) > grace
}
