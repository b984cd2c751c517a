// Package status publishes each gate's current effective mode to Redis so
// other services (mobile backends, display panels) can read it without
// touching the database.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"villagegate/internal/gatemode"
)

// ErrNotFound is returned when no status has been published for a gate yet
// or the entry has expired.
var ErrNotFound = errors.New("gate status not found")

// GateStatus is the snapshot stored per gate.
type GateStatus struct {
	VillageID  string                 `json:"village_id"`
	Effective  gatemode.EffectiveMode `json:"effective"`
	NextChange gatemode.NextChange    `json:"next_change"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Publisher writes gate status snapshots with a TTL. An expired key tells
// readers the controller stopped refreshing and the value is stale.
type Publisher struct {
	rdb       *redis.Client
	villageID string
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewPublisher creates a status publisher for one village.
func NewPublisher(rdb *redis.Client, villageID string, ttl time.Duration, logger zerolog.Logger) *Publisher {
	return &Publisher{
		rdb:       rdb,
		villageID: villageID,
		ttl:       ttl,
		logger:    logger.With().Str("component", "status").Logger(),
	}
}

func (p *Publisher) key(gateID string) string {
	return fmt.Sprintf("villagegate:status:%s:%s", p.villageID, gateID)
}

// Publish stores the current snapshot for a gate.
func (p *Publisher) Publish(ctx context.Context, em gatemode.EffectiveMode, nc gatemode.NextChange) error {
	snapshot := GateStatus{
		VillageID:  p.villageID,
		Effective:  em,
		NextChange: nc,
		UpdatedAt:  em.Timestamp,
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal gate status: %w", err)
	}
	if err := p.rdb.Set(ctx, p.key(em.GateID), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish gate status: %w", err)
	}
	p.logger.Debug().
		Str("gate_id", em.GateID).
		Str("mode", string(em.Mode)).
		Msg("published gate status")
	return nil
}

// Get reads the last published snapshot for a gate.
func (p *Publisher) Get(ctx context.Context, gateID string) (*GateStatus, error) {
	data, err := p.rdb.Get(ctx, p.key(gateID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read gate status: %w", err)
	}
	var snapshot GateStatus
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gate status: %w", err)
	}
	return &snapshot, nil
}
