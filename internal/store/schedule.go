package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"villagegate/internal/model"
)

// ErrScheduleNotFound is returned when a schedule id does not exist.
var ErrScheduleNotFound = errors.New("gate schedule not found")

// ErrScheduleOverlap is returned when a write would produce two windows
// covering the same gate at the same time. Abutting windows are legal.
var ErrScheduleOverlap = errors.New("schedule overlaps with an existing schedule for this gate")

// CreateSchedule validates and inserts a new weekly window. The ID is
// assigned here.
func (db *DB) CreateSchedule(ctx context.Context, s *model.GateSchedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := db.checkOverlap(ctx, s, ""); err != nil {
		return err
	}

	s.ID = uuid.NewString()
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := db.ExecContext(ctx, `
		INSERT INTO gate_schedules (
			id, village_id, gate_id, name, description, operation_mode,
			days_of_week, start_time, end_time, created_at, updated_at, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.VillageID, s.GateID, s.Name, s.Description, string(s.Mode),
		model.DaysCSV(s.DaysOfWeek), s.StartTime, s.EndTime, s.CreatedAt, s.UpdatedAt, s.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// UpdateSchedule replaces the mutable fields of an existing window, holding
// the same invariants as create.
func (db *DB) UpdateSchedule(ctx context.Context, s *model.GateSchedule) error {
	if s.ID == "" {
		return ErrScheduleNotFound
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := db.checkOverlap(ctx, s, s.ID); err != nil {
		return err
	}

	s.UpdatedAt = time.Now()
	res, err := db.ExecContext(ctx, `
		UPDATE gate_schedules
		SET name = ?, description = ?, operation_mode = ?, days_of_week = ?,
		    start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ? AND village_id = ?`,
		s.Name, s.Description, string(s.Mode), model.DaysCSV(s.DaysOfWeek),
		s.StartTime, s.EndTime, s.UpdatedAt, s.ID, s.VillageID,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a window.
func (db *DB) DeleteSchedule(ctx context.Context, villageID, scheduleID string) error {
	res, err := db.ExecContext(ctx,
		"DELETE FROM gate_schedules WHERE id = ? AND village_id = ?",
		scheduleID, villageID,
	)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// GetSchedule returns a single window by id.
func (db *DB) GetSchedule(ctx context.Context, villageID, scheduleID string) (*model.GateSchedule, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, village_id, gate_id, name, description, operation_mode,
		       days_of_week, start_time, end_time, created_at, updated_at, created_by
		FROM gate_schedules
		WHERE id = ? AND village_id = ?`,
		scheduleID, villageID,
	)
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	return s, err
}

// ListSchedules returns all windows for a gate, ordered by start time.
// An empty gateID lists the whole village.
func (db *DB) ListSchedules(ctx context.Context, villageID, gateID string) ([]model.GateSchedule, error) {
	query := `
		SELECT id, village_id, gate_id, name, description, operation_mode,
		       days_of_week, start_time, end_time, created_at, updated_at, created_by
		FROM gate_schedules
		WHERE village_id = ?`
	args := []any{villageID}
	if gateID != "" {
		query += " AND gate_id = ?"
		args = append(args, gateID)
	}
	query += " ORDER BY start_time"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.GateSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// checkOverlap rejects a write intersecting any other window for the gate.
// excludeID skips the record being updated.
func (db *DB) checkOverlap(ctx context.Context, s *model.GateSchedule, excludeID string) error {
	existing, err := db.ListSchedules(ctx, s.VillageID, s.GateID)
	if err != nil {
		return err
	}
	for i := range existing {
		if existing[i].ID == excludeID {
			continue
		}
		if s.Overlaps(&existing[i]) {
			return ErrScheduleOverlap
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*model.GateSchedule, error) {
	var s model.GateSchedule
	var mode, days string
	var description, createdBy sql.NullString
	if err := row.Scan(
		&s.ID, &s.VillageID, &s.GateID, &s.Name, &description, &mode,
		&days, &s.StartTime, &s.EndTime, &s.CreatedAt, &s.UpdatedAt, &createdBy,
	); err != nil {
		return nil, err
	}
	s.Mode = model.Mode(mode)
	s.Description = description.String
	s.CreatedBy = createdBy.String

	parsed, err := model.ParseDaysCSV(days)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
	}
	s.DaysOfWeek = parsed
	return &s, nil
}
