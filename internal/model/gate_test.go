package model

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"08:00", 480, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"garbage", 0, true},
		{"12", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestWeekdayIndex(t *testing.T) {
	// 2026-01-05 is a Monday.
	monday := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	for offset, want := range []int{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday} {
		got := WeekdayIndex(monday.AddDate(0, 0, offset))
		if got != want {
			t.Errorf("day offset %d: expected index %d, got %d", offset, want, got)
		}
	}
}

func TestGateScheduleValidate(t *testing.T) {
	valid := GateSchedule{
		GateID:     "main_gate",
		Mode:       ModeAutomated,
		DaysOfWeek: []int{Monday, Wednesday},
		StartTime:  "08:00",
		EndTime:    "18:00",
	}

	tests := []struct {
		name    string
		mutate  func(s *GateSchedule)
		wantErr bool
	}{
		{"valid schedule", func(s *GateSchedule) {}, false},
		{"missing gate id", func(s *GateSchedule) { s.GateID = "" }, true},
		{"bad mode", func(s *GateSchedule) { s.Mode = "open_sesame" }, true},
		{"empty day set", func(s *GateSchedule) { s.DaysOfWeek = nil }, true},
		{"day out of range", func(s *GateSchedule) { s.DaysOfWeek = []int{7} }, true},
		{"inverted window", func(s *GateSchedule) { s.StartTime, s.EndTime = "18:00", "08:00" }, true},
		{"zero-length window", func(s *GateSchedule) { s.EndTime = s.StartTime }, true},
		{"unparseable start", func(s *GateSchedule) { s.StartTime = "soon" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			s.DaysOfWeek = append([]int(nil), valid.DaysOfWeek...)
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGateScheduleOverlaps(t *testing.T) {
	base := GateSchedule{
		VillageID:  "v1",
		GateID:     "main_gate",
		Mode:       ModeAutomated,
		DaysOfWeek: []int{Monday},
		StartTime:  "08:00",
		EndTime:    "12:00",
	}

	tests := []struct {
		name  string
		other GateSchedule
		want  bool
	}{
		{
			name:  "same window same day",
			other: base,
			want:  true,
		},
		{
			name: "partial time overlap",
			other: GateSchedule{
				VillageID: "v1", GateID: "main_gate",
				DaysOfWeek: []int{Monday}, StartTime: "11:00", EndTime: "14:00",
			},
			want: true,
		},
		{
			name: "abutting windows do not overlap",
			other: GateSchedule{
				VillageID: "v1", GateID: "main_gate",
				DaysOfWeek: []int{Monday}, StartTime: "12:00", EndTime: "18:00",
			},
			want: false,
		},
		{
			name: "different day",
			other: GateSchedule{
				VillageID: "v1", GateID: "main_gate",
				DaysOfWeek: []int{Tuesday}, StartTime: "08:00", EndTime: "12:00",
			},
			want: false,
		},
		{
			name: "different gate",
			other: GateSchedule{
				VillageID: "v1", GateID: "secondary_gate",
				DaysOfWeek: []int{Monday}, StartTime: "08:00", EndTime: "12:00",
			},
			want: false,
		},
		{
			name: "shared day among several",
			other: GateSchedule{
				VillageID: "v1", GateID: "main_gate",
				DaysOfWeek: []int{Friday, Monday}, StartTime: "10:00", EndTime: "11:00",
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Overlaps(&tt.other); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestOverrideActive(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	var nilOverride *GateOverride
	if nilOverride.Active(now) {
		t.Error("nil override should be inactive")
	}

	live := &GateOverride{ExpiryTime: now.Add(time.Minute)}
	if !live.Active(now) {
		t.Error("future expiry should be active")
	}

	expired := &GateOverride{ExpiryTime: now}
	if expired.Active(now) {
		t.Error("expiry equal to now should be inactive")
	}
}

func TestValidateOverrideDuration(t *testing.T) {
	for _, minutes := range []int{1, 60, 1440} {
		if err := ValidateOverrideDuration(minutes); err != nil {
			t.Errorf("duration %d should be valid: %v", minutes, err)
		}
	}
	for _, minutes := range []int{0, -5, 1441} {
		if err := ValidateOverrideDuration(minutes); err == nil {
			t.Errorf("duration %d should be rejected", minutes)
		}
	}
}

func TestDaysCSVRoundTrip(t *testing.T) {
	days := []int{Monday, Wednesday, Sunday}

	parsed, err := ParseDaysCSV(DaysCSV(days))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != len(days) {
		t.Fatalf("expected %d days, got %d", len(days), len(parsed))
	}
	for i, d := range days {
		if parsed[i] != d {
			t.Errorf("day %d: expected %d, got %d", i, d, parsed[i])
		}
	}

	if _, err := ParseDaysCSV("1,x"); err == nil {
		t.Error("expected error for malformed day set")
	}
}
