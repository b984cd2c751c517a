package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mode is the operation mode of a gate.
type Mode string

const (
	// ModeStaffAssisted means a person manually allows or denies passage.
	ModeStaffAssisted Mode = "staff_assisted"
	// ModeAutomated means the system allows passage without staff intervention.
	ModeAutomated Mode = "automated"
)

// DefaultMode applies whenever no schedule window and no override is live.
// Staff-assisted is the conservative fail-safe: unattended automation must
// never be the silent default.
const DefaultMode = ModeStaffAssisted

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStaffAssisted, ModeAutomated:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid operation mode %q", s)
}

func (m Mode) Valid() bool {
	return m == ModeStaffAssisted || m == ModeAutomated
}

// Days of week use 0=Monday .. 6=Sunday.
const (
	Monday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// WeekdayIndex converts a time.Time weekday (Sunday=0) to the 0=Monday scheme.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// GateSchedule is a recurring weekly window during which a gate operates in a
// given mode. Windows never cross midnight: StartTime < EndTime.
type GateSchedule struct {
	ID          string    `json:"id"`
	VillageID   string    `json:"village_id"`
	GateID      string    `json:"gate_id"` // opaque per-site key, e.g. "main_gate"
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Mode        Mode      `json:"operation_mode"`
	DaysOfWeek  []int     `json:"days_of_week"` // 0=Monday .. 6=Sunday
	StartTime   string    `json:"start_time"`   // "08:00"
	EndTime     string    `json:"end_time"`     // "18:00"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// AppliesOn reports whether the schedule covers the given weekday (0=Monday).
func (s *GateSchedule) AppliesOn(weekday int) bool {
	for _, d := range s.DaysOfWeek {
		if d == weekday {
			return true
		}
	}
	return false
}

// Window returns the parsed start and end minutes of the window.
func (s *GateSchedule) Window() (start, end int, err error) {
	start, err = ParseTimeOfDay(s.StartTime)
	if err != nil {
		return 0, 0, fmt.Errorf("start_time: %w", err)
	}
	end, err = ParseTimeOfDay(s.EndTime)
	if err != nil {
		return 0, 0, fmt.Errorf("end_time: %w", err)
	}
	return start, end, nil
}

// Validate checks the schedule invariants enforced at write time.
func (s *GateSchedule) Validate() error {
	if s.GateID == "" {
		return fmt.Errorf("gate_id is required")
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("invalid operation mode %q", s.Mode)
	}
	if len(s.DaysOfWeek) == 0 {
		return fmt.Errorf("days_of_week must not be empty")
	}
	for _, d := range s.DaysOfWeek {
		if d < Monday || d > Sunday {
			return fmt.Errorf("day of week %d out of range 0..6", d)
		}
	}
	start, end, err := s.Window()
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("start_time must be before end_time")
	}
	return nil
}

// Overlaps reports whether two schedules intersect: same gate, at least one
// shared day, and intersecting time ranges. Abutting windows (end == start)
// do not overlap.
func (s *GateSchedule) Overlaps(other *GateSchedule) bool {
	if s.GateID != other.GateID || s.VillageID != other.VillageID {
		return false
	}
	shared := false
	for _, d := range other.DaysOfWeek {
		if s.AppliesOn(d) {
			shared = true
			break
		}
	}
	if !shared {
		return false
	}
	aStart, aEnd, err := s.Window()
	if err != nil {
		return false
	}
	bStart, bEnd, err := other.Window()
	if err != nil {
		return false
	}
	return aStart < bEnd && bStart < aEnd
}

// Override duration bounds in minutes.
const (
	MinOverrideMinutes = 1
	MaxOverrideMinutes = 1440 // 24 hours
)

// GateOverride is a temporary exception to scheduled mode. At most one live
// override exists per (village, gate); a new one replaces the old.
type GateOverride struct {
	ID         string    `json:"id"`
	VillageID  string    `json:"village_id"`
	GateID     string    `json:"gate_id"`
	Mode       Mode      `json:"operation_mode"`
	ExpiryTime time.Time `json:"expiry_time"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// Active reports whether the override is live at the given instant. An
// override with ExpiryTime <= now is treated as absent; no sweep required.
func (o *GateOverride) Active(now time.Time) bool {
	return o != nil && o.ExpiryTime.After(now)
}

// ValidateOverrideDuration checks the allowed override duration window.
func ValidateOverrideDuration(minutes int) error {
	if minutes < MinOverrideMinutes || minutes > MaxOverrideMinutes {
		return fmt.Errorf("duration must be between %d and %d minutes", MinOverrideMinutes, MaxOverrideMinutes)
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM" into minutes since midnight.
func ParseTimeOfDay(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time of day out of range: %s", s)
	}
	return hour*60 + minute, nil
}

// FormatTimeOfDay renders minutes since midnight as "HH:MM".
func FormatTimeOfDay(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// MinutesOfDay returns the minutes elapsed since local midnight of t.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// DaysCSV renders a day set for storage ("0,2,4").
func DaysCSV(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// ParseDaysCSV parses a stored day set.
func ParseDaysCSV(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid day %q: %w", p, err)
		}
		days = append(days, d)
	}
	return days, nil
}
