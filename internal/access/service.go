// Package access decides whether a requester may operate a gate given the
// gate's current effective mode.
package access

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"villagegate/internal/events"
	"villagegate/internal/gatemode"
	"villagegate/internal/metrics"
	"villagegate/internal/model"
	"villagegate/internal/store"
)

// Role of the person requesting a gate operation. Authentication happens
// upstream; only the resolved role arrives here.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleResident Role = "resident"
)

// Actions a requester can ask of a gate.
const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// EventRecorder persists access decisions for monitoring and audit.
type EventRecorder interface {
	AppendEvent(ctx context.Context, e *store.GateEvent) error
}

// Service applies the gate access policy and records every decision.
type Service struct {
	villageID string
	recorder  EventRecorder
	bus       *events.Bus
	logger    zerolog.Logger
}

// NewService creates an access decision service. bus may be nil.
func NewService(villageID string, recorder EventRecorder, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		villageID: villageID,
		recorder:  recorder,
		bus:       bus,
		logger:    logger.With().Str("component", "access").Logger(),
	}
}

// Authorize decides whether the requester may perform action on the gate
// whose effective mode is em. Staff and admins may always operate a gate;
// residents only while it runs automated, since in staff-assisted mode passage
// is granted by a person, not by the system.
func (s *Service) Authorize(ctx context.Context, role Role, userID, action string, em gatemode.EffectiveMode) error {
	if action != ActionOpen && action != ActionClose {
		return fmt.Errorf("invalid action %q: must be %q or %q", action, ActionOpen, ActionClose)
	}

	switch role {
	case RoleAdmin, RoleStaff:
		s.record(ctx, userID, action, em, true, "")
		return nil
	case RoleResident:
		if em.Mode == model.ModeStaffAssisted {
			reason := "gate is in staff-assisted mode; contact security staff for access"
			s.record(ctx, userID, action, em, false, reason)
			return &DeniedError{GateID: em.GateID, Reason: reason}
		}
		s.record(ctx, userID, action, em, true, "")
		return nil
	default:
		reason := fmt.Sprintf("role %q may not operate gates", role)
		s.record(ctx, userID, action, em, false, reason)
		return &DeniedError{GateID: em.GateID, Reason: reason}
	}
}

func (s *Service) record(ctx context.Context, userID, action string, em gatemode.EffectiveMode, granted bool, reason string) {
	decision := store.EventAccessGranted
	if !granted {
		decision = store.EventAccessDenied
	}
	metrics.IncAccessDecision(decision)

	event := &store.GateEvent{
		VillageID: s.villageID,
		GateID:    em.GateID,
		Type:      decision,
		Mode:      em.Mode,
		Source:    string(em.Source),
		Detail:    fmt.Sprintf("user=%s action=%s %s", userID, action, reason),
	}
	if err := s.recorder.AppendEvent(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("gate_id", em.GateID).Msg("failed to record access decision")
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:   events.TypeAccessDecision,
			GateID: em.GateID,
			Mode:   em.Mode,
			Source: string(em.Source),
			Detail: event.Detail,
		})
	}

	log := s.logger.Info()
	if !granted {
		log = s.logger.Warn()
	}
	log.Str("gate_id", em.GateID).
		Str("user_id", userID).
		Str("action", action).
		Str("mode", string(em.Mode)).
		Bool("granted", granted).
		Msg("access decision")
}

// DeniedError is returned when a gate operation is refused.
type DeniedError struct {
	GateID string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access to gate %s denied: %s", e.GateID, e.Reason)
}

// IsDenied checks if error is an access denial.
func IsDenied(err error) bool {
	_, ok := err.(*DeniedError)
	return ok
}
