package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		timezone string
		wantErr  bool
	}{
		{
			name: "every minute",
			expr: "* * * * *",
		},
		{
			name: "daily at 3am",
			expr: "0 3 * * *",
		},
		{
			name:     "explicit timezone",
			expr:     "30 2 * * 1",
			timezone: "Asia/Ho_Chi_Minh",
		},
		{
			name:    "empty expression",
			expr:    "",
			wantErr: true,
		},
		{
			name:    "six fields rejected",
			expr:    "0 0 3 * * *",
			wantErr: true,
		},
		{
			name:    "garbage expression",
			expr:    "not a cron",
			wantErr: true,
		},
		{
			name:     "unknown timezone",
			expr:     "* * * * *",
			timezone: "Mars/Olympus_Mons",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := ParseTrigger(tt.expr, tt.timezone)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidInput))
				return
			}

			require.NoError(t, err)
			require.NotNil(t, trigger)
			assert.Equal(t, tt.expr, trigger.Expr)
		})
	}
}

func TestParseTrigger_DefaultsToUTC(t *testing.T) {
	trigger, err := ParseTrigger("0 3 * * *", "")
	require.NoError(t, err)
	assert.Equal(t, "UTC", trigger.Timezone)
}

func TestTrigger_Next(t *testing.T) {
	trigger, err := ParseTrigger("0 3 * * *", "UTC")
	require.NoError(t, err)

	from := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	next := trigger.Next(from)
	assert.Equal(t, time.Date(2026, 8, 2, 3, 0, 0, 0, time.UTC), next)

	// Strictly after: asking at the fire instant moves to the next day
	atFire := time.Date(2026, 8, 2, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 3, 3, 0, 0, 0, time.UTC), trigger.Next(atFire))
}

func TestTrigger_Next_HonorsTimezone(t *testing.T) {
	trigger, err := ParseTrigger("0 3 * * *", "Asia/Ho_Chi_Minh")
	require.NoError(t, err)

	// 03:00 in UTC+7 is 20:00 UTC the previous day
	from := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	next := trigger.Next(from)
	assert.Equal(t, time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC), next.UTC())
}

func TestTrigger_NextAfterFire(t *testing.T) {
	trigger, err := ParseTrigger("0 * * * *", "UTC")
	require.NoError(t, err)

	scheduledAt := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	// Observed three hours late: fires at 02:00 and 03:00 were missed
	now := time.Date(2026, 8, 1, 4, 0, 30, 0, time.UTC)

	t.Run("coalesce collapses missed fires", func(t *testing.T) {
		next := trigger.NextAfterFire(scheduledAt, now, true)
		assert.Equal(t, time.Date(2026, 8, 1, 5, 0, 0, 0, time.UTC), next)
	})

	t.Run("no coalesce replays fires one by one", func(t *testing.T) {
		next := trigger.NextAfterFire(scheduledAt, now, false)
		assert.Equal(t, time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC), next)
	})

	t.Run("on-time fire behaves identically either way", func(t *testing.T) {
		onTime := scheduledAt.Add(500 * time.Millisecond)
		assert.Equal(t, trigger.NextAfterFire(scheduledAt, onTime, true),
			trigger.NextAfterFire(scheduledAt, onTime, false))
	})
}

func TestTrigger_LatestDue(t *testing.T) {
	trigger, err := ParseTrigger("0 * * * *", "UTC")
	require.NoError(t, err)

	scheduledAt := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)

	t.Run("walks forward to the most recent missed fire", func(t *testing.T) {
		now := time.Date(2026, 8, 1, 6, 0, 1, 0, time.UTC)
		assert.Equal(t, time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC),
			trigger.LatestDue(scheduledAt, now))
	})

	t.Run("returns scheduledAt when nothing later is due", func(t *testing.T) {
		now := scheduledAt.Add(30 * time.Minute)
		assert.Equal(t, scheduledAt, trigger.LatestDue(scheduledAt, now))
	})

	t.Run("includes a fire landing exactly at now", func(t *testing.T) {
		now := time.Date(2026, 8, 1, 5, 0, 0, 0, time.UTC)
		assert.Equal(t, now, trigger.LatestDue(scheduledAt, now))
	})
}

func TestMisfired(t *testing.T) {
	scheduledAt := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		now          time.Time
		graceSeconds int
		want         bool
	}{
		{
			name:         "within grace",
			now:          scheduledAt.Add(time.Hour),
			graceSeconds: 7200,
			want:         false,
		},
		{
			name:         "exactly at grace boundary",
			now:          scheduledAt.Add(2 * time.Hour),
			graceSeconds: 7200,
			want:         false,
		},
		{
			name:         "past grace",
			now:          scheduledAt.Add(2*time.Hour + time.Second),
			graceSeconds: 7200,
			want:         true,
		},
		{
			name:         "zero grace tolerates one tick of latency",
			now:          scheduledAt.Add(time.Second),
			graceSeconds: 0,
			want:         false,
		},
		{
			name:         "zero grace drops past the tick tolerance",
			now:          scheduledAt.Add(time.Second + time.Millisecond),
			graceSeconds: 0,
			want:         true,
		},
		{
			name:         "zero grace keeps exactly on-time fire",
			now:          scheduledAt,
			graceSeconds: 0,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Misfired(scheduledAt, tt.now, tt.graceSeconds))
		})
	}
}
