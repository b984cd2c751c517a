package gatemode

import (
	"time"

	"villagegate/internal/model"
)

// ChangeType classifies what causes an upcoming mode change.
type ChangeType string

const (
	ChangeOverrideExpiry ChangeType = "override_expiry"
	ChangeScheduleStart  ChangeType = "schedule_start"
	ChangeScheduleEnd    ChangeType = "schedule_end"
)

// NextChange describes the next instant the effective mode of a gate changes.
type NextChange struct {
	GateID        string     `json:"gate_id"`
	HasNextChange bool       `json:"has_next_change"`
	ChangeTime    time.Time  `json:"change_time,omitempty"`
	ChangeType    ChangeType `json:"change_type,omitempty"`
	NextMode      model.Mode `json:"next_mode,omitempty"`
	ScheduleID    string     `json:"schedule_id,omitempty"`
	DaysUntil     int        `json:"days_until,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// scheduleEdge is a start or end boundary of some schedule window, placed on
// the calendar relative to now.
type scheduleEdge struct {
	at        time.Time
	minute    int
	daysUntil int
	schedule  model.GateSchedule
	isEnd     bool
}

// NextChange finds the earliest instant after now at which the effective mode
// may change: the live override's expiry, or the nearest schedule boundary
// within a 7-day window. Weekly recurrence means nothing new appears beyond
// one full week, so the scan is bounded. With no usable schedules at all the
// answer is "no upcoming change".
func (r *Resolver) NextChange(now time.Time, gateID string, schedules []model.GateSchedule, override *model.GateOverride) NextChange {
	valid := r.validSchedules(gateID, schedules)
	if len(valid) == 0 {
		return NextChange{GateID: gateID, Timestamp: now}
	}

	edge := r.nextScheduleEdge(now, valid)

	// The override is the proximate cause when its expiry comes first; an
	// expiry landing exactly on a schedule boundary is still reported as
	// override_expiry.
	if override.Active(now) && (edge == nil || !override.ExpiryTime.After(edge.at)) {
		after := r.EffectiveMode(override.ExpiryTime, gateID, schedules, nil)
		return NextChange{
			GateID:        gateID,
			HasNextChange: true,
			ChangeTime:    override.ExpiryTime,
			ChangeType:    ChangeOverrideExpiry,
			NextMode:      after.Mode,
			ScheduleID:    after.SourceID,
			DaysUntil:     daysBetween(now, override.ExpiryTime),
			Timestamp:     now,
		}
	}

	if edge == nil {
		return NextChange{GateID: gateID, Timestamp: now}
	}

	change := NextChange{
		GateID:        gateID,
		HasNextChange: true,
		ChangeTime:    edge.at,
		ScheduleID:    edge.schedule.ID,
		DaysUntil:     edge.daysUntil,
		Timestamp:     now,
	}
	if edge.isEnd {
		change.ChangeType = ChangeScheduleEnd
		// Another window may start at the exact same instant; continuous
		// coverage must be reported as that window's mode, not as a
		// spurious fallback to the default.
		change.NextMode = r.modeStartingAt(edge.at, valid)
	} else {
		change.ChangeType = ChangeScheduleStart
		change.NextMode = edge.schedule.Mode
	}
	return change
}

// validSchedules drops records the resolver cannot use, logging each one.
func (r *Resolver) validSchedules(gateID string, schedules []model.GateSchedule) []model.GateSchedule {
	var valid []model.GateSchedule
	for _, s := range schedules {
		if _, _, ok := r.usableWindow(gateID, &s); ok {
			valid = append(valid, s)
		}
	}
	return valid
}

// nextScheduleEdge finds the earliest schedule boundary strictly after now.
// Today contributes both remaining starts and remaining ends; for each of the
// following days only starts matter, since no window crosses midnight and
// every end is preceded by its start on the same day. An end tying with a
// start at the same instant wins, so abutment is seen from the ending window.
func (r *Resolver) nextScheduleEdge(now time.Time, valid []model.GateSchedule) *scheduleEdge {
	weekday := model.WeekdayIndex(now)
	minute := model.MinutesOfDay(now)

	var best *scheduleEdge
	consider := func(e scheduleEdge) {
		if best == nil || e.at.Before(best.at) || (e.at.Equal(best.at) && e.isEnd && !best.isEnd) {
			edge := e
			best = &edge
		}
	}

	for _, s := range valid {
		if !s.AppliesOn(weekday) {
			continue
		}
		start, end, _ := s.Window()
		if start > minute {
			consider(scheduleEdge{at: onDay(now, 0, start), minute: start, schedule: s})
		}
		if end > minute {
			consider(scheduleEdge{at: onDay(now, 0, end), minute: end, schedule: s, isEnd: true})
		}
	}
	if best != nil {
		return best
	}

	// Nothing left today: the next edge is the earliest start on the next
	// day that has any schedule, up to a full week out (the same weekday
	// next week catches windows that already passed today).
	for offset := 1; offset <= 7; offset++ {
		day := (weekday + offset) % 7
		for _, s := range valid {
			if !s.AppliesOn(day) {
				continue
			}
			start, _, _ := s.Window()
			consider(scheduleEdge{at: onDay(now, offset, start), minute: start, daysUntil: offset, schedule: s})
		}
		if best != nil {
			return best
		}
	}
	return nil
}

// modeStartingAt resolves which mode takes effect the moment a window ends:
// the mode of a window starting exactly then, else the default.
func (r *Resolver) modeStartingAt(at time.Time, valid []model.GateSchedule) model.Mode {
	weekday := model.WeekdayIndex(at)
	minute := model.MinutesOfDay(at)
	for _, s := range valid {
		if !s.AppliesOn(weekday) {
			continue
		}
		if start, _, _ := s.Window(); start == minute {
			return s.Mode
		}
	}
	return model.DefaultMode
}

// onDay places a minute-of-day on the calendar offset days after now, in
// now's location.
func onDay(now time.Time, offset, minute int) time.Time {
	d := now.AddDate(0, 0, offset)
	return time.Date(d.Year(), d.Month(), d.Day(), minute/60, minute%60, 0, 0, now.Location())
}

// daysBetween counts calendar-day boundaries crossed between two instants.
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	return int(t.Sub(f) / (24 * time.Hour))
}
