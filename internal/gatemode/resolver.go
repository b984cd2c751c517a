// Package gatemode resolves the effective operation mode of a gate from its
// weekly schedule windows and temporary overrides. It is pure computation:
// callers load the records, pass them in together with a pre-localized "now",
// and get back a decision. Nothing here touches storage or mutates its inputs.
package gatemode

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"villagegate/internal/metrics"
	"villagegate/internal/model"
)

// ModeSource tells where the effective mode came from.
type ModeSource string

const (
	SourceOverride ModeSource = "override"
	SourceSchedule ModeSource = "schedule"
	SourceDefault  ModeSource = "default"
)

// EffectiveMode is the mode that actually applies at an instant.
type EffectiveMode struct {
	GateID      string     `json:"gate_id"`
	Mode        model.Mode `json:"effective_mode"`
	Source      ModeSource `json:"source"`
	SourceID    string     `json:"source_id,omitempty"`
	ExpiryTime  *time.Time `json:"expiry_time,omitempty"`  // set when Source == override
	WindowStart string     `json:"window_start,omitempty"` // set when Source == schedule
	WindowEnd   string     `json:"window_end,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Resolver computes effective modes. It carries only a logger for
// data-quality warnings; resolution itself is deterministic and stateless,
// so a single Resolver is safe for concurrent use.
type Resolver struct {
	logger zerolog.Logger
}

// NewResolver creates a resolver that reports data-quality findings to logger.
func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{logger: logger.With().Str("component", "gatemode").Logger()}
}

// EffectiveMode applies the override > schedule > default precedence at now.
// now must already be in the site's local timezone. Malformed schedule
// records are skipped with a warning, never an error: this is a read path
// that must always produce an answer for gate control to proceed safely.
func (r *Resolver) EffectiveMode(now time.Time, gateID string, schedules []model.GateSchedule, override *model.GateOverride) EffectiveMode {
	if override.Active(now) {
		expiry := override.ExpiryTime
		return EffectiveMode{
			GateID:     gateID,
			Mode:       override.Mode,
			Source:     SourceOverride,
			SourceID:   override.ID,
			ExpiryTime: &expiry,
			Timestamp:  now,
		}
	}

	matches := r.activeSchedules(now, gateID, schedules)
	if len(matches) == 0 {
		return EffectiveMode{
			GateID:    gateID,
			Mode:      model.DefaultMode,
			Source:    SourceDefault,
			Timestamp: now,
		}
	}

	// The store forbids overlapping windows, so more than one match means
	// bad data slipped through. Tie-break on earliest start and keep going.
	if len(matches) > 1 {
		metrics.IncDataWarning()
		r.logger.Warn().
			Str("gate_id", gateID).
			Int("matches", len(matches)).
			Msg("overlapping schedules matched; using earliest start time")
	}
	best := matches[0]
	return EffectiveMode{
		GateID:      gateID,
		Mode:        best.Mode,
		Source:      SourceSchedule,
		SourceID:    best.ID,
		WindowStart: best.StartTime,
		WindowEnd:   best.EndTime,
		Timestamp:   now,
	}
}

// activeSchedules returns the valid schedules covering now, sorted by start
// time (then ID, for a stable tie-break).
func (r *Resolver) activeSchedules(now time.Time, gateID string, schedules []model.GateSchedule) []model.GateSchedule {
	weekday := model.WeekdayIndex(now)
	minute := model.MinutesOfDay(now)

	var matches []model.GateSchedule
	for _, s := range schedules {
		start, end, ok := r.usableWindow(gateID, &s)
		if !ok || !s.AppliesOn(weekday) {
			continue
		}
		if start <= minute && minute < end {
			matches = append(matches, s)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		si, _, _ := matches[i].Window()
		sj, _, _ := matches[j].Window()
		if si != sj {
			return si < sj
		}
		return matches[i].ID < matches[j].ID
	})
	return matches
}

// usableWindow parses a schedule's window and rejects records the store
// should never have produced. Such records are inapplicable, not fatal.
func (r *Resolver) usableWindow(gateID string, s *model.GateSchedule) (start, end int, ok bool) {
	start, end, err := s.Window()
	if err != nil {
		metrics.IncDataWarning()
		r.logger.Warn().
			Str("gate_id", gateID).
			Str("schedule_id", s.ID).
			Err(err).
			Msg("skipping schedule with malformed time window")
		return 0, 0, false
	}
	if start >= end {
		metrics.IncDataWarning()
		r.logger.Warn().
			Str("gate_id", gateID).
			Str("schedule_id", s.ID).
			Str("start_time", s.StartTime).
			Str("end_time", s.EndTime).
			Msg("skipping schedule with inverted time window")
		return 0, 0, false
	}
	if len(s.DaysOfWeek) == 0 {
		metrics.IncDataWarning()
		r.logger.Warn().
			Str("gate_id", gateID).
			Str("schedule_id", s.ID).
			Msg("skipping schedule with empty day set")
		return 0, 0, false
	}
	return start, end, true
}
