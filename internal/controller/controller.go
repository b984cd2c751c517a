// Package controller drives the physical gates: it periodically re-resolves
// each gate's effective mode, reacts to mode transitions, and executes
// open/close requests against the gate hardware.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"villagegate/internal/access"
	"villagegate/internal/config"
	"villagegate/internal/events"
	"villagegate/internal/gatemode"
	"villagegate/internal/metrics"
	"villagegate/internal/model"
	"villagegate/internal/store"
)

// Store is the persistence surface the controller needs.
type Store interface {
	ListSchedules(ctx context.Context, villageID, gateID string) ([]model.GateSchedule, error)
	GetOverride(ctx context.Context, villageID, gateID string, now time.Time) (*model.GateOverride, error)
	AppendEvent(ctx context.Context, e *store.GateEvent) error
}

// StatusPublisher pushes gate snapshots to external readers. Optional.
type StatusPublisher interface {
	Publish(ctx context.Context, em gatemode.EffectiveMode, nc gatemode.NextChange) error
}

// GatePosition is the physical state of a gate barrier.
type GatePosition string

const (
	PositionOpen   GatePosition = "open"
	PositionClosed GatePosition = "closed"
)

// GateState is the controller's view of one gate.
type GateState struct {
	GateID      string
	Name        string
	Position    GatePosition
	Effective   gatemode.EffectiveMode
	NextChange  gatemode.NextChange
	EvaluatedAt time.Time
}

// Config holds controller tuning.
type Config struct {
	VillageID string
	Gates     []config.GateConfig
	// Location is the site timezone all schedule arithmetic runs in.
	// Defaults to time.Local.
	Location     *time.Location
	PollInterval time.Duration
	// ActuationRate and ActuationBurst throttle hardware commands so a
	// misbehaving caller cannot cycle the motors.
	ActuationRate  float64
	ActuationBurst int
}

// Controller owns the evaluation loop and the gate actuators.
type Controller struct {
	cfg      Config
	store    Store
	resolver *gatemode.Resolver
	access   *access.Service
	bus      *events.Bus
	status   StatusPublisher
	limiter  *rate.Limiter
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	gates   map[string]*GateState
	running bool
	stopCh  chan struct{}
}

// New creates a controller for the configured gates. status may be nil when
// no Redis is configured.
func New(cfg Config, st Store, acc *access.Service, bus *events.Bus, status StatusPublisher, logger zerolog.Logger) *Controller {
	gates := make(map[string]*GateState, len(cfg.Gates))
	for _, g := range cfg.Gates {
		gates[g.ID] = &GateState{GateID: g.ID, Name: g.Name, Position: PositionClosed}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Controller{
		cfg:      cfg,
		store:    st,
		resolver: gatemode.NewResolver(logger),
		access:   acc,
		bus:      bus,
		status:   status,
		limiter:  rate.NewLimiter(rate.Limit(cfg.ActuationRate), cfg.ActuationBurst),
		logger:   logger.With().Str("component", "controller").Logger(),
		now:      func() time.Time { return time.Now().In(loc) },
		gates:    gates,
		stopCh:   make(chan struct{}),
	}
}

// Run evaluates all gates immediately and then on every poll tick until the
// context is cancelled or Stop is called.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info().
		Int("gates", len(c.gates)).
		Dur("poll_interval", c.cfg.PollInterval).
		Msg("gate controller started")

	c.evaluateAll(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("gate controller stopped by context")
			return
		case <-c.stopCh:
			c.logger.Info().Msg("gate controller stopped")
			return
		case <-ticker.C:
			c.evaluateAll(ctx)
		}
	}
}

// Stop halts the evaluation loop.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.running {
		c.running = false
		close(c.stopCh)
	}
	c.mu.Unlock()
}

func (c *Controller) evaluateAll(ctx context.Context) {
	now := c.now()
	for _, g := range c.cfg.Gates {
		if err := c.evaluate(ctx, now, g.ID); err != nil {
			c.logger.Error().Err(err).Str("gate_id", g.ID).Msg("gate evaluation failed")
		}
	}
}

// evaluate recomputes one gate's effective mode and handles a transition if
// the mode moved since the last pass.
func (c *Controller) evaluate(ctx context.Context, now time.Time, gateID string) error {
	schedules, err := c.store.ListSchedules(ctx, c.cfg.VillageID, gateID)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	override, err := c.store.GetOverride(ctx, c.cfg.VillageID, gateID, now)
	if err != nil {
		return fmt.Errorf("load override: %w", err)
	}

	em := c.resolver.EffectiveMode(now, gateID, schedules, override)
	nc := c.resolver.NextChange(now, gateID, schedules, override)
	metrics.IncResolution(string(em.Source))

	c.mu.Lock()
	state, ok := c.gates[gateID]
	if !ok {
		state = &GateState{GateID: gateID, Position: PositionClosed}
		c.gates[gateID] = state
	}
	previous := state.Effective.Mode
	hadPrevious := !state.EvaluatedAt.IsZero()
	state.Effective = em
	state.NextChange = nc
	state.EvaluatedAt = now
	c.mu.Unlock()

	if !hadPrevious || previous != em.Mode {
		c.onModeChange(ctx, previous, em, hadPrevious)
	}

	if c.status != nil {
		if err := c.status.Publish(ctx, em, nc); err != nil {
			c.logger.Warn().Err(err).Str("gate_id", gateID).Msg("failed to publish gate status")
		}
	}
	return nil
}

func (c *Controller) onModeChange(ctx context.Context, previous model.Mode, em gatemode.EffectiveMode, hadPrevious bool) {
	metrics.IncModeChange(em.GateID, string(em.Mode))

	detail := fmt.Sprintf("mode %s (source %s)", em.Mode, em.Source)
	if hadPrevious {
		detail = fmt.Sprintf("mode %s -> %s (source %s)", previous, em.Mode, em.Source)
	}
	c.logger.Info().
		Str("gate_id", em.GateID).
		Str("mode", string(em.Mode)).
		Str("source", string(em.Source)).
		Msg("gate mode changed")

	event := &store.GateEvent{
		VillageID: c.cfg.VillageID,
		GateID:    em.GateID,
		Type:      store.EventModeChange,
		Mode:      em.Mode,
		Source:    string(em.Source),
		Detail:    detail,
		CreatedAt: em.Timestamp,
	}
	if err := c.store.AppendEvent(ctx, event); err != nil {
		c.logger.Error().Err(err).Str("gate_id", em.GateID).Msg("failed to record mode change")
	}

	c.bus.Publish(events.Event{
		Type:      events.TypeModeChanged,
		GateID:    em.GateID,
		Mode:      em.Mode,
		Source:    string(em.Source),
		Detail:    detail,
		CreatedAt: em.Timestamp,
	})
}

// Actuate executes an open or close request on a gate after checking the
// access policy against the gate's current effective mode.
func (c *Controller) Actuate(ctx context.Context, gateID string, action string, role access.Role, userID string) error {
	c.mu.Lock()
	state, ok := c.gates[gateID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown gate %q", gateID)
	}

	// Resolve fresh rather than trusting the last poll: an override set a
	// second ago must apply to this request.
	now := c.now()
	schedules, err := c.store.ListSchedules(ctx, c.cfg.VillageID, gateID)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	override, err := c.store.GetOverride(ctx, c.cfg.VillageID, gateID, now)
	if err != nil {
		return fmt.Errorf("load override: %w", err)
	}
	em := c.resolver.EffectiveMode(now, gateID, schedules, override)

	if err := c.access.Authorize(ctx, role, userID, action, em); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("actuation throttled: %w", err)
	}

	position := PositionClosed
	if action == access.ActionOpen {
		position = PositionOpen
	}
	c.mu.Lock()
	state.Position = position
	c.mu.Unlock()

	c.logger.Info().
		Str("gate_id", gateID).
		Str("action", action).
		Str("user_id", userID).
		Msg("gate actuated")
	return nil
}

// Status returns a snapshot of one gate's state.
func (c *Controller) Status(gateID string) (GateState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.gates[gateID]
	if !ok {
		return GateState{}, false
	}
	return *state, true
}
