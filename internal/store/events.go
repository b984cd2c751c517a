package store

import (
	"context"
	"fmt"
	"time"

	"villagegate/internal/model"
)

// Gate event types recorded in the log.
const (
	EventModeChange    = "mode_change"
	EventAccessGranted = "access_granted"
	EventAccessDenied  = "access_denied"
	EventOverrideSet   = "override_set"
	EventOverrideClear = "override_cleared"
)

// GateEvent is one row of the append-only gate event log.
type GateEvent struct {
	ID        int64      `json:"id"`
	VillageID string     `json:"village_id"`
	GateID    string     `json:"gate_id"`
	Type      string     `json:"event_type"`
	Mode      model.Mode `json:"mode,omitempty"`
	Source    string     `json:"source,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// AppendEvent records a gate event.
func (db *DB) AppendEvent(ctx context.Context, e *GateEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO gate_events (village_id, gate_id, event_type, mode, source, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.VillageID, e.GateID, e.Type, string(e.Mode), e.Source, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// ListEventsSince returns events for a village newer than since, most recent
// first, capped at limit.
func (db *DB) ListEventsSince(ctx context.Context, villageID string, since time.Time, limit int) ([]GateEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, village_id, gate_id, event_type, mode, source, detail, created_at
		FROM gate_events
		WHERE village_id = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`,
		villageID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []GateEvent
	for rows.Next() {
		var e GateEvent
		var mode string
		if err := rows.Scan(&e.ID, &e.VillageID, &e.GateID, &e.Type, &mode, &e.Source, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Mode = model.Mode(mode)
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteOldEvents drops events older than the retention window and reports
// how many were removed.
func (db *DB) DeleteOldEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := db.ExecContext(ctx, "DELETE FROM gate_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return res.RowsAffected()
}
