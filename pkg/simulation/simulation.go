package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/tochemey/goakt/v3/actor"
	golog "github.com/tochemey/goakt/v3/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/telemetry"
)

// Simulation is the explicit context that ties a flock actor to its actor
// system, telemetry sink and metrics. There are no package-level singletons.
type Simulation struct {
	System  actor.ActorSystem
	PID     *actor.PID
	Frames  <-chan *Frame
	Metrics *Metrics
	cfg     *Config
}

// Options let callers swap the telemetry sink and the goakt logger, mostly
// for tests.
type Options struct {
	Sink        telemetry.Sink
	ActorLogger golog.Logger
	Log         zerolog.Logger
}

// New builds the flock from cfg, starts an actor system and spawns the
// flock actor in it.
func New(ctx context.Context, cfg *Config, opts Options) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params, err := cfg.FlockParams()
	if err != nil {
		return nil, err
	}
	encoding, err := telemetry.ParseEncoding(cfg.Telemetry.Encoding)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	f, err := flock.New(cfg.FlockSize, flock.Spawn{
		PositionExtent: cfg.SpawnExtent,
		VelocityExtent: cfg.SpawnVelocity,
	}, params, rand.New(rand.NewPCG(seed, seed>>1|1)))
	if err != nil {
		return nil, fmt.Errorf("failed to build flock: %w", err)
	}

	sink := opts.Sink
	if sink == nil {
		if cfg.Telemetry.Enabled {
			sink = telemetry.NewUDPSink(cfg.Telemetry.Host, cfg.Telemetry.Port, opts.Log)
		} else {
			sink = telemetry.Discard
		}
	}
	actorLogger := opts.ActorLogger
	if actorLogger == nil {
		actorLogger = golog.DiscardLogger
	}

	system, err := actor.NewActorSystem("FlockWorld",
		actor.WithLogger(actorLogger),
		actor.WithActorInitMaxRetries(3))
	if err != nil {
		return nil, fmt.Errorf("failed to create actor system: %w", err)
	}
	if err := system.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start actor system: %w", err)
	}

	frames := make(chan *Frame, 10) // buffer to avoid blocking the actor
	metrics := NewMetrics()
	preset := cfg.Preset
	if cfg.Params != nil {
		preset = "custom"
	}
	pid, err := system.Spawn(ctx, "flock", NewFlockActor(f, telemetry.NewExporter(sink, encoding), metrics, frames, preset))
	if err != nil {
		_ = system.Stop(ctx)
		return nil, fmt.Errorf("failed to spawn flock: %w", err)
	}

	opts.Log.Info().
		Int("agents", cfg.FlockSize).
		Uint64("seed", seed).
		Str("preset", preset).
		Str("encoding", encoding.String()).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("simulation started")

	return &Simulation{
		System:  system,
		PID:     pid,
		Frames:  frames,
		Metrics: metrics,
		cfg:     cfg,
	}, nil
}

// Tick asks the flock to advance by dt. It does not wait for the tick to run.
func (s *Simulation) Tick(ctx context.Context, dt time.Duration) error {
	return s.tell(ctx, NewTick(dt))
}

// SwitchPreset asks the flock to adopt the named tuning.
func (s *Simulation) SwitchPreset(ctx context.Context, name string) error {
	return s.tell(ctx, NewPresetSwitch(name))
}

// Override asks the flock to change individual tuning fields, keyed by their
// json names, e.g. {"avoidGain": 60, "ceiling": {"speed": 80}}.
func (s *Simulation) Override(ctx context.Context, fields map[string]interface{}) error {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("invalid override: %w", err)
	}
	return s.tell(ctx, msg)
}

// Stats asks the flock for its counters.
func (s *Simulation) Stats(ctx context.Context, timeout time.Duration) (map[string]interface{}, error) {
	reply, err := actor.Ask(ctx, s.PID, &emptypb.Empty{}, timeout)
	if err != nil {
		return nil, err
	}
	st, ok := reply.(*structpb.Struct)
	if !ok {
		return nil, fmt.Errorf("unexpected stats reply %T", reply)
	}
	return st.AsMap(), nil
}

// Run drives the flock from a wall-clock ticker until ctx is done or
// maxTicks ticks were sent (0 means no limit). Each tick carries the real
// elapsed time since the previous one.
func (s *Simulation) Run(ctx context.Context, maxTicks int) error {
	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()

	clock := NewClock(time.Now())
	for sent := 0; maxTicks == 0 || sent < maxTicks; sent++ {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := s.Tick(ctx, clock.Lap(now)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Simulation) Stop(ctx context.Context) error {
	return s.System.Stop(ctx)
}

func (s *Simulation) tell(ctx context.Context, msg proto.Message) error {
	return actor.Tell(ctx, s.PID, msg)
}
