package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"villagegate/internal/metrics"
	"villagegate/internal/model"
)

// SetOverride installs a temporary mode override for duration minutes,
// replacing any previous override for the same gate. The unique constraint
// on (village_id, gate_id) plus ON CONFLICT makes the replacement atomic, so
// concurrent requests cannot end up with two live overrides.
func (db *DB) SetOverride(ctx context.Context, villageID, gateID string, mode model.Mode, durationMinutes int, createdBy string) (*model.GateOverride, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid operation mode %q", mode)
	}
	if err := model.ValidateOverrideDuration(durationMinutes); err != nil {
		return nil, err
	}

	now := time.Now()
	o := &model.GateOverride{
		ID:         uuid.NewString(),
		VillageID:  villageID,
		GateID:     gateID,
		Mode:       mode,
		ExpiryTime: now.Add(time.Duration(durationMinutes) * time.Minute),
		CreatedBy:  createdBy,
		CreatedAt:  now,
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO gate_overrides (
			id, village_id, gate_id, operation_mode, expiry_time, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(village_id, gate_id) DO UPDATE SET
			operation_mode = excluded.operation_mode,
			expiry_time = excluded.expiry_time,
			created_by = excluded.created_by,
			created_at = excluded.created_at`,
		o.ID, o.VillageID, o.GateID, string(o.Mode), o.ExpiryTime, o.CreatedBy, o.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert override: %w", err)
	}

	metrics.IncOverrideAction("set")
	_ = db.AppendEvent(ctx, &GateEvent{
		VillageID: villageID,
		GateID:    gateID,
		Type:      EventOverrideSet,
		Mode:      mode,
		Source:    "override",
		Detail:    fmt.Sprintf("user=%s duration=%dm", createdBy, durationMinutes),
		CreatedAt: now,
	})

	return db.GetOverrideRecord(ctx, villageID, gateID)
}

// GetOverride returns the live override for a gate, or nil when none exists
// or the stored one has expired. Expiry is a pure time comparison; expired
// rows linger until replaced or cleared.
func (db *DB) GetOverride(ctx context.Context, villageID, gateID string, now time.Time) (*model.GateOverride, error) {
	o, err := db.GetOverrideRecord(ctx, villageID, gateID)
	if err != nil {
		return nil, err
	}
	if !o.Active(now) {
		return nil, nil
	}
	return o, nil
}

// GetOverrideRecord returns the stored override row regardless of expiry,
// or nil when the gate has none.
func (db *DB) GetOverrideRecord(ctx context.Context, villageID, gateID string) (*model.GateOverride, error) {
	var o model.GateOverride
	var mode string
	err := db.QueryRowContext(ctx, `
		SELECT id, village_id, gate_id, operation_mode, expiry_time, created_by, created_at
		FROM gate_overrides
		WHERE village_id = ? AND gate_id = ?`,
		villageID, gateID,
	).Scan(&o.ID, &o.VillageID, &o.GateID, &mode, &o.ExpiryTime, &o.CreatedBy, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}
	o.Mode = model.Mode(mode)
	return &o, nil
}

// ClearOverride removes any override for the gate before its expiry.
func (db *DB) ClearOverride(ctx context.Context, villageID, gateID string) error {
	res, err := db.ExecContext(ctx,
		"DELETE FROM gate_overrides WHERE village_id = ? AND gate_id = ?",
		villageID, gateID,
	)
	if err != nil {
		return fmt.Errorf("clear override: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		metrics.IncOverrideAction("clear")
		_ = db.AppendEvent(ctx, &GateEvent{
			VillageID: villageID,
			GateID:    gateID,
			Type:      EventOverrideClear,
			Source:    "override",
		})
	}
	return nil
}

// ListOverrides returns all stored overrides for a village, live or not.
func (db *DB) ListOverrides(ctx context.Context, villageID string) ([]model.GateOverride, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, village_id, gate_id, operation_mode, expiry_time, created_by, created_at
		FROM gate_overrides
		WHERE village_id = ?
		ORDER BY gate_id`,
		villageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []model.GateOverride
	for rows.Next() {
		var o model.GateOverride
		var mode string
		if err := rows.Scan(&o.ID, &o.VillageID, &o.GateID, &mode, &o.ExpiryTime, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Mode = model.Mode(mode)
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
