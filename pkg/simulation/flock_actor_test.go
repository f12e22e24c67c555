package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/telemetry"
)

type countingSink struct {
	mu   sync.Mutex
	msgs []telemetry.Message
}

func (c *countingSink) Send(msg telemetry.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *countingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func startSimulation(t *testing.T, mutate func(*Config), sink telemetry.Sink) *Simulation {
	t.Helper()
	cfg := DefaultConfig()
	cfg.FlockSize = 4
	cfg.Seed = 99
	if mutate != nil {
		mutate(cfg)
	}
	ctx := context.Background()
	sim, err := New(ctx, cfg, Options{Sink: sink, Log: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sim.Stop(ctx) })
	return sim
}

func nextFrame(t *testing.T, sim *Simulation) *Frame {
	t.Helper()
	select {
	case f := <-sim.Frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func TestSimulation_TickExportsAndPublishesFrame(t *testing.T) {
	sink := &countingSink{}
	sim := startSimulation(t, nil, sink)
	ctx := context.Background()

	require.NoError(t, sim.Tick(ctx, 16*time.Millisecond))
	f := nextFrame(t, sim)

	assert.Equal(t, uint64(1), f.Tick)
	assert.Len(t, f.Agents, 4)
	assert.Equal(t, telemetry.Report{Sent: 8}, f.Report, "polar encoding sends two messages per agent")
	assert.Equal(t, 8, sink.count())
	assert.Equal(t, flock.PresetReference, f.Preset)

	assert.Equal(t, 1.0, testutil.ToFloat64(sim.Metrics.Ticks))
	assert.Equal(t, 8.0, testutil.ToFloat64(sim.Metrics.Telemetry.WithLabelValues("sent")))
	assert.Equal(t, 4.0, testutil.ToFloat64(sim.Metrics.Agents))
}

func TestSimulation_NegativeDeltaIsRejected(t *testing.T) {
	sink := &countingSink{}
	sim := startSimulation(t, nil, sink)
	ctx := context.Background()

	require.NoError(t, sim.Tick(ctx, -time.Millisecond))
	require.NoError(t, sim.Tick(ctx, time.Millisecond))

	// mailbox order: the valid tick is the first to produce a frame
	f := nextFrame(t, sim)
	assert.Equal(t, uint64(1), f.Tick)
	assert.Equal(t, 1.0, testutil.ToFloat64(sim.Metrics.RejectedTicks))
}

func TestSimulation_PresetSwitchAndStats(t *testing.T) {
	sim := startSimulation(t, func(c *Config) { c.Telemetry.Encoding = "cartesian" }, &countingSink{})
	ctx := context.Background()

	require.NoError(t, sim.SwitchPreset(ctx, flock.PresetDrift))
	require.NoError(t, sim.Tick(ctx, 16*time.Millisecond))
	f := nextFrame(t, sim)
	assert.Equal(t, flock.PresetDrift, f.Preset)
	assert.Equal(t, telemetry.Report{Sent: 4}, f.Report)

	stats, err := sim.Stats(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stats["tick"])
	assert.Equal(t, 4.0, stats["agents"])
	assert.Equal(t, flock.PresetDrift, stats["preset"])
	assert.Equal(t, 4.0, stats["sent"])
}

func TestSimulation_UnknownPresetIsIgnored(t *testing.T) {
	sim := startSimulation(t, nil, &countingSink{})
	ctx := context.Background()

	require.NoError(t, sim.SwitchPreset(ctx, "chaos"))
	stats, err := sim.Stats(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, flock.PresetReference, stats["preset"])
}

func TestSimulation_Override(t *testing.T) {
	sim := startSimulation(t, nil, &countingSink{})
	ctx := context.Background()

	require.NoError(t, sim.Override(ctx, map[string]interface{}{"avoidGain": 55.0}))
	stats, err := sim.Stats(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "custom", stats["preset"])
}

func TestSimulation_RunStopsAfterMaxTicks(t *testing.T) {
	sim := startSimulation(t, func(c *Config) { c.TickRate = 200 }, &countingSink{})
	ctx := context.Background()

	require.NoError(t, sim.Run(ctx, 3))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(sim.Metrics.Ticks) == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestOverrideParams(t *testing.T) {
	base := flock.DefaultParams()
	s, err := structpb.NewStruct(map[string]interface{}{
		"alignRadius": 90.0,
		"floor":       map[string]interface{}{"enabled": false},
	})
	require.NoError(t, err)

	got, err := overrideParams(base, s)
	require.NoError(t, err)

	assert.Equal(t, 90.0, got.AlignRadius)
	assert.False(t, got.Floor.Enabled)
	assert.Equal(t, base.Floor.Speed, got.Floor.Speed, "nested fields not named keep their value")
	assert.Equal(t, base.CohesionGain, got.CohesionGain)

	bad, err := structpb.NewStruct(map[string]interface{}{"gravity": 9.81})
	require.NoError(t, err)
	_, err = overrideParams(base, bad)
	assert.Error(t, err)
}

func TestSimulation_StopAfterTick(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlockSize = 3
	cfg.Seed = 7
	ctx := context.Background()
	sim, err := New(ctx, cfg, Options{Sink: &countingSink{}, Log: zerolog.Nop()})
	require.NoError(t, err)

	require.NoError(t, sim.Tick(ctx, 16*time.Millisecond))
	nextFrame(t, sim)

	assert.NoError(t, sim.Stop(ctx))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick rate", func(c *Config) { c.TickRate = 0 }},
		{"single agent", func(c *Config) { c.FlockSize = 1 }},
		{"bad encoding", func(c *Config) { c.Telemetry.Encoding = "spherical" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			sim, err := New(context.Background(), cfg, Options{Sink: &countingSink{}, Log: zerolog.Nop()})
			assert.Error(t, err)
			assert.Nil(t, sim)
		})
	}
}
