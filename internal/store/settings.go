package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TenantSettings holds the configured limits for one tenant. DailyLimits
// is keyed by event class; ResourceLimits by resource kind (bots, intents,
// training_examples and so on). Missing keys fall back to process-wide
// defaults.
type TenantSettings struct {
	TenantID       string
	DailyLimits    map[string]int
	ResourceLimits map[string]int
	ResourceCounts map[string]int
}

// SettingsStore reads per-tenant limit configuration.
type SettingsStore struct {
	db *sqlx.DB
}

// NewSettingsStore creates a new SettingsStore
func NewSettingsStore(db *sqlx.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the settings row for tenantID, or nil if the tenant has no
// explicit settings.
func (s *SettingsStore) Get(ctx context.Context, tenantID string) (*TenantSettings, error) {
	query := `
		SELECT tenant_id, daily_limits, resource_limits, resource_counts
		FROM tenant_settings
		WHERE tenant_id = $1
	`

	var row struct {
		TenantID       string `db:"tenant_id"`
		DailyLimits    []byte `db:"daily_limits"`
		ResourceLimits []byte `db:"resource_limits"`
		ResourceCounts []byte `db:"resource_counts"`
	}

	err := s.db.GetContext(ctx, &row, query, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant settings: %w", err)
	}

	settings := &TenantSettings{TenantID: row.TenantID}

	if len(row.DailyLimits) > 0 {
		if err := json.Unmarshal(row.DailyLimits, &settings.DailyLimits); err != nil {
			return nil, fmt.Errorf("failed to decode daily limits: %w", err)
		}
	}

	if len(row.ResourceLimits) > 0 {
		if err := json.Unmarshal(row.ResourceLimits, &settings.ResourceLimits); err != nil {
			return nil, fmt.Errorf("failed to decode resource limits: %w", err)
		}
	}

	if len(row.ResourceCounts) > 0 {
		if err := json.Unmarshal(row.ResourceCounts, &settings.ResourceCounts); err != nil {
			return nil, fmt.Errorf("failed to decode resource counts: %w", err)
		}
	}

	return settings, nil
}
