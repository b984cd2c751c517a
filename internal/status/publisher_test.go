package status

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"villagegate/internal/gatemode"
	"villagegate/internal/model"
)

func newTestPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPublisher(rdb, "village-1", time.Minute, zerolog.Nop()), mr
}

func TestPublishAndGet(t *testing.T) {
	pub, _ := newTestPublisher(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	em := gatemode.EffectiveMode{
		GateID:      "gate-main",
		Mode:        model.ModeAutomated,
		Source:      gatemode.SourceSchedule,
		SourceID:    "sched-1",
		WindowStart: "08:00",
		WindowEnd:   "18:00",
		Timestamp:   now,
	}
	nc := gatemode.NextChange{
		GateID:        "gate-main",
		HasNextChange: true,
		ChangeTime:    now.Add(8 * time.Hour),
		ChangeType:    gatemode.ChangeScheduleEnd,
		NextMode:      model.ModeStaffAssisted,
		ScheduleID:    "sched-1",
		Timestamp:     now,
	}

	require.NoError(t, pub.Publish(ctx, em, nc))

	got, err := pub.Get(ctx, "gate-main")
	require.NoError(t, err)
	assert.Equal(t, "village-1", got.VillageID)
	assert.Equal(t, model.ModeAutomated, got.Effective.Mode)
	assert.Equal(t, gatemode.SourceSchedule, got.Effective.Source)
	assert.True(t, got.NextChange.HasNextChange)
	assert.Equal(t, gatemode.ChangeScheduleEnd, got.NextChange.ChangeType)
	assert.True(t, got.UpdatedAt.Equal(now))
}

func TestGetMissing(t *testing.T) {
	pub, _ := newTestPublisher(t)

	_, err := pub.Get(context.Background(), "gate-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishSetsTTL(t *testing.T) {
	pub, mr := newTestPublisher(t)
	ctx := context.Background()

	em := gatemode.EffectiveMode{
		GateID:    "gate-main",
		Mode:      model.ModeStaffAssisted,
		Source:    gatemode.SourceDefault,
		Timestamp: time.Now(),
	}
	require.NoError(t, pub.Publish(ctx, em, gatemode.NextChange{GateID: "gate-main"}))

	mr.FastForward(2 * time.Minute)

	_, err := pub.Get(ctx, "gate-main")
	assert.ErrorIs(t, err, ErrNotFound, "entries expire when the controller stops refreshing")
}

func TestPublishOverwrites(t *testing.T) {
	pub, _ := newTestPublisher(t)
	ctx := context.Background()

	first := gatemode.EffectiveMode{GateID: "gate-main", Mode: model.ModeAutomated, Source: gatemode.SourceSchedule, Timestamp: time.Now()}
	second := gatemode.EffectiveMode{GateID: "gate-main", Mode: model.ModeStaffAssisted, Source: gatemode.SourceOverride, Timestamp: time.Now()}

	require.NoError(t, pub.Publish(ctx, first, gatemode.NextChange{GateID: "gate-main"}))
	require.NoError(t, pub.Publish(ctx, second, gatemode.NextChange{GateID: "gate-main"}))

	got, err := pub.Get(ctx, "gate-main")
	require.NoError(t, err)
	assert.Equal(t, model.ModeStaffAssisted, got.Effective.Mode)
	assert.Equal(t, gatemode.SourceOverride, got.Effective.Source)
}
