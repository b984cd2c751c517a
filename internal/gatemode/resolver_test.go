package gatemode

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"villagegate/internal/model"
)

// 2026-01-05 is a Monday.
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func newTestResolver() *Resolver {
	return NewResolver(zerolog.Nop())
}

func schedule(id string, mode model.Mode, days []int, start, end string) model.GateSchedule {
	return model.GateSchedule{
		ID:         id,
		VillageID:  "village-1",
		GateID:     "main_gate",
		Name:       id,
		Mode:       mode,
		DaysOfWeek: days,
		StartTime:  start,
		EndTime:    end,
	}
}

func override(mode model.Mode, expiry time.Time) *model.GateOverride {
	return &model.GateOverride{
		ID:         "override-1",
		VillageID:  "village-1",
		GateID:     "main_gate",
		Mode:       mode,
		ExpiryTime: expiry,
		CreatedBy:  "staff-1",
	}
}

func TestEffectiveMode(t *testing.T) {
	weekday := schedule("sched-1", model.ModeAutomated, []int{model.Monday}, "08:00", "18:00")

	tests := []struct {
		name       string
		now        time.Time
		schedules  []model.GateSchedule
		override   *model.GateOverride
		wantMode   model.Mode
		wantSource ModeSource
		wantID     string
	}{
		{
			name:       "no schedules no override defaults to staff assisted",
			now:        at(monday, 10, 0),
			wantMode:   model.ModeStaffAssisted,
			wantSource: SourceDefault,
		},
		{
			name:       "inside schedule window",
			now:        at(monday, 10, 0),
			schedules:  []model.GateSchedule{weekday},
			wantMode:   model.ModeAutomated,
			wantSource: SourceSchedule,
			wantID:     "sched-1",
		},
		{
			name:       "after schedule window falls back to default",
			now:        at(monday, 19, 0),
			schedules:  []model.GateSchedule{weekday},
			wantMode:   model.ModeStaffAssisted,
			wantSource: SourceDefault,
		},
		{
			name:       "start boundary is inclusive",
			now:        at(monday, 8, 0),
			schedules:  []model.GateSchedule{weekday},
			wantMode:   model.ModeAutomated,
			wantSource: SourceSchedule,
			wantID:     "sched-1",
		},
		{
			name:       "end boundary is exclusive",
			now:        at(monday, 18, 0),
			schedules:  []model.GateSchedule{weekday},
			wantMode:   model.ModeStaffAssisted,
			wantSource: SourceDefault,
		},
		{
			name:       "wrong weekday falls back to default",
			now:        at(monday.AddDate(0, 0, 1), 10, 0), // Tuesday
			schedules:  []model.GateSchedule{weekday},
			wantMode:   model.ModeStaffAssisted,
			wantSource: SourceDefault,
		},
		{
			name:       "active override beats schedule",
			now:        at(monday, 10, 0),
			schedules:  []model.GateSchedule{weekday},
			override:   override(model.ModeStaffAssisted, at(monday, 11, 0)),
			wantMode:   model.ModeStaffAssisted,
			wantSource: SourceOverride,
			wantID:     "override-1",
		},
		{
			name:       "expired override is treated as absent",
			now:        at(monday, 10, 0),
			schedules:  []model.GateSchedule{weekday},
			override:   override(model.ModeStaffAssisted, at(monday, 9, 0)),
			wantMode:   model.ModeAutomated,
			wantSource: SourceSchedule,
			wantID:     "sched-1",
		},
		{
			name:       "override expiring exactly now is absent",
			now:        at(monday, 10, 0),
			schedules:  []model.GateSchedule{weekday},
			override:   override(model.ModeStaffAssisted, at(monday, 10, 0)),
			wantMode:   model.ModeAutomated,
			wantSource: SourceSchedule,
			wantID:     "sched-1",
		},
		{
			name: "malformed time window is skipped",
			now:  at(monday, 10, 0),
			schedules: []model.GateSchedule{
				schedule("bad-1", model.ModeAutomated, []int{model.Monday}, "garbage", "18:00"),
			},
			wantMode:   model.ModeStaffAssisted,
			wantSource: SourceDefault,
		},
		{
			name: "inverted time window is skipped",
			now:  at(monday, 10, 0),
			schedules: []model.GateSchedule{
				schedule("bad-2", model.ModeAutomated, []int{model.Monday}, "18:00", "08:00"),
			},
			wantMode:   model.ModeStaffAssisted,
			wantSource: SourceDefault,
		},
		{
			name: "overlapping matches tie-break on earliest start",
			now:  at(monday, 10, 0),
			schedules: []model.GateSchedule{
				schedule("late", model.ModeStaffAssisted, []int{model.Monday}, "09:00", "17:00"),
				schedule("early", model.ModeAutomated, []int{model.Monday}, "08:00", "12:00"),
			},
			wantMode:   model.ModeAutomated,
			wantSource: SourceSchedule,
			wantID:     "early",
		},
	}

	r := newTestResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.EffectiveMode(tt.now, "main_gate", tt.schedules, tt.override)

			if got.Mode != tt.wantMode {
				t.Errorf("mode: expected %s, got %s", tt.wantMode, got.Mode)
			}
			if got.Source != tt.wantSource {
				t.Errorf("source: expected %s, got %s", tt.wantSource, got.Source)
			}
			if got.SourceID != tt.wantID {
				t.Errorf("source id: expected %q, got %q", tt.wantID, got.SourceID)
			}
			if !got.Timestamp.Equal(tt.now) {
				t.Errorf("timestamp: expected %v, got %v", tt.now, got.Timestamp)
			}
		})
	}
}

func TestEffectiveModeOverrideCarriesExpiry(t *testing.T) {
	r := newTestResolver()
	expiry := at(monday, 11, 30)

	got := r.EffectiveMode(at(monday, 10, 0), "main_gate", nil, override(model.ModeAutomated, expiry))

	if got.ExpiryTime == nil || !got.ExpiryTime.Equal(expiry) {
		t.Errorf("expected expiry %v, got %v", expiry, got.ExpiryTime)
	}
}

func TestEffectiveModeScheduleCarriesWindow(t *testing.T) {
	r := newTestResolver()
	schedules := []model.GateSchedule{
		schedule("sched-1", model.ModeAutomated, []int{model.Monday}, "08:00", "18:00"),
	}

	got := r.EffectiveMode(at(monday, 10, 0), "main_gate", schedules, nil)

	if got.WindowStart != "08:00" || got.WindowEnd != "18:00" {
		t.Errorf("expected window 08:00-18:00, got %s-%s", got.WindowStart, got.WindowEnd)
	}
}

func TestEffectiveModeIsIdempotent(t *testing.T) {
	r := newTestResolver()
	now := at(monday, 10, 0)
	schedules := []model.GateSchedule{
		schedule("sched-1", model.ModeAutomated, []int{model.Monday}, "08:00", "18:00"),
	}
	ov := override(model.ModeStaffAssisted, at(monday, 12, 0))

	first := r.EffectiveMode(now, "main_gate", schedules, ov)
	second := r.EffectiveMode(now, "main_gate", schedules, ov)

	if first.Mode != second.Mode || first.Source != second.Source || first.SourceID != second.SourceID {
		t.Errorf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestEffectiveModeDoesNotMutateInputs(t *testing.T) {
	r := newTestResolver()
	schedules := []model.GateSchedule{
		schedule("b", model.ModeStaffAssisted, []int{model.Monday}, "09:00", "17:00"),
		schedule("a", model.ModeAutomated, []int{model.Monday}, "08:00", "12:00"),
	}

	r.EffectiveMode(at(monday, 10, 0), "main_gate", schedules, nil)

	if schedules[0].ID != "b" || schedules[1].ID != "a" {
		t.Error("resolver reordered the caller's schedule slice")
	}
}
