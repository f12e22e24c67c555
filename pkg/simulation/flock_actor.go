package simulation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tochemey/goakt/v3/actor"
	"github.com/tochemey/goakt/v3/goaktpb"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/telemetry"
)

// Messages understood by FlockActor. They are protobuf well-known types, so
// no generated code is needed:
//
//	*durationpb.Duration    advance the flock by the elapsed time
//	*wrapperspb.StringValue switch to the named preset
//	*structpb.Struct        override individual Params fields (json names)
//	*emptypb.Empty          Ask for a stats reply (*structpb.Struct)

// NewTick builds the message that advances the flock by dt.
func NewTick(dt time.Duration) *durationpb.Duration { return durationpb.New(dt) }

// NewPresetSwitch builds the message that swaps the tuning.
func NewPresetSwitch(name string) *wrapperspb.StringValue { return wrapperspb.String(name) }

// Frame is what the renderer gets after every tick.
type Frame struct {
	Tick   uint64
	Agents []flock.Agent
	Report telemetry.Report
	Preset string
}

// FlockActor owns the flock. Its mailbox serialises every tick, so the
// flock is only ever touched by one goroutine at a time.
type FlockActor struct {
	flock    *flock.Flock
	exporter *telemetry.Exporter
	metrics  *Metrics
	frames   chan<- *Frame
	preset   string

	tick        uint64
	last        telemetry.Report
	totals      telemetry.Report
	ticksSince  int
	lastLogTime time.Time
}

var _ actor.Actor = (*FlockActor)(nil)

// NewFlockActor wires a flock to its exporter. frames may be nil when nobody
// renders; metrics may be nil when nobody scrapes.
func NewFlockActor(f *flock.Flock, exporter *telemetry.Exporter, metrics *Metrics, frames chan<- *Frame, preset string) *FlockActor {
	return &FlockActor{
		flock:       f,
		exporter:    exporter,
		metrics:     metrics,
		frames:      frames,
		preset:      preset,
		lastLogTime: time.Now(),
	}
}

func (a *FlockActor) PreStart(ctx *actor.Context) error {
	ctx.ActorSystem().Logger().Infof("Flock of %d boids ready (preset %s, %s telemetry)",
		a.flock.Len(), a.preset, a.exporter.Encoding())
	if a.metrics != nil {
		a.metrics.Agents.Set(float64(a.flock.Len()))
	}
	return nil
}

func (a *FlockActor) PostStop(ctx *actor.Context) error {
	ctx.ActorSystem().Logger().Infof("Flock is shutdown after %d ticks (telemetry sent %d dropped %d)",
		a.tick, a.totals.Sent, a.totals.Dropped)
	return nil
}

func (a *FlockActor) Receive(ctx *actor.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case *goaktpb.PostStart:
		ctx.Logger().Info("Flock started, waiting for ticks...")

	case *durationpb.Duration:
		a.step(ctx, msg.AsDuration())

	case *wrapperspb.StringValue:
		p, ok := flock.Preset(msg.GetValue())
		if !ok {
			ctx.Logger().Warnf("unknown preset %q, keeping %s", msg.GetValue(), a.preset)
			return
		}
		if err := a.flock.SetParams(p); err != nil {
			ctx.Logger().Warnf("preset %s rejected: %v", msg.GetValue(), err)
			return
		}
		a.preset = msg.GetValue()
		ctx.Logger().Infof("switched to preset %s", a.preset)

	case *structpb.Struct:
		p, err := overrideParams(a.flock.Params(), msg)
		if err == nil {
			err = a.flock.SetParams(p)
		}
		if err != nil {
			ctx.Logger().Warnf("param override rejected: %v", err)
			return
		}
		a.preset = "custom"

	case *emptypb.Empty:
		stats, err := a.stats()
		if err != nil {
			ctx.Logger().Errorf("failed to build stats: %v", err)
			return
		}
		ctx.Response(stats)

	default:
		ctx.Unhandled()
	}
}

// step runs one full tick: velocities, positions, telemetry.
func (a *FlockActor) step(ctx *actor.ReceiveContext, dt time.Duration) {
	start := time.Now()
	if err := a.flock.Tick(dt.Seconds()); err != nil {
		ctx.Logger().Warnf("tick rejected: %v", err)
		if a.metrics != nil {
			a.metrics.RejectedTicks.Inc()
		}
		return
	}
	agents := a.flock.Agents()
	a.last = a.exporter.Emit(agents)
	a.totals.Sent += a.last.Sent
	a.totals.Dropped += a.last.Dropped
	a.tick++
	a.ticksSince++

	if a.metrics != nil {
		a.metrics.ObserveTick(time.Since(start), a.last, a.flock.MeanSpeed())
	}
	a.pushFrame(agents)
	a.logBenchmarks(ctx)
}

func (a *FlockActor) pushFrame(agents []flock.Agent) {
	if a.frames == nil {
		return
	}
	select {
	case a.frames <- &Frame{Tick: a.tick, Agents: agents, Report: a.last, Preset: a.preset}:
	default:
		// renderer busy, skip frame
	}
}

func (a *FlockActor) logBenchmarks(ctx *actor.ReceiveContext) {
	if time.Since(a.lastLogTime) >= time.Second {
		ctx.Logger().Infof("TICK RATE: %d/sec | tick %d | telemetry sent %d dropped %d | mean speed %.1f",
			a.ticksSince, a.tick, a.totals.Sent, a.totals.Dropped, a.flock.MeanSpeed())
		a.ticksSince = 0
		a.lastLogTime = time.Now()
	}
}

func (a *FlockActor) stats() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"tick":      float64(a.tick),
		"agents":    float64(a.flock.Len()),
		"preset":    a.preset,
		"meanSpeed": a.flock.MeanSpeed(),
		"sent":      float64(a.totals.Sent),
		"dropped":   float64(a.totals.Dropped),
	})
}

// overrideParams lays the fields present in s over base. Nested speed
// limits merge field by field.
func overrideParams(base flock.Params, s *structpb.Struct) (flock.Params, error) {
	b, err := protojson.Marshal(s)
	if err != nil {
		return base, fmt.Errorf("failed to encode override: %w", err)
	}
	out := base
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return base, fmt.Errorf("failed to apply override: %w", err)
	}
	return out, nil
}
