// Package flock simulates a 2-D flock of boids.
//
// Boids is an artificial life program, developed by Craig Reynolds in 1986,
// which simulates the flocking behaviour of birds. https://en.wikipedia.org/wiki/Boids
//
// A Flock is not safe for concurrent use: one driver owns it and calls Tick
// (or UpdateVelocities then UpdatePositions) sequentially.
package flock

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/geometry"
)

var (
	ErrTooFewAgents  = errors.New("flock needs at least two agents")
	ErrNegativeDelta = errors.New("elapsed time must be finite and >= 0")
)

// Agent is a single boid. Its identity is its index in the flock.
type Agent struct {
	Position geometry.Vector2D `json:"position"`
	Velocity geometry.Vector2D `json:"velocity"`
}

// Spawn bounds the random initial state: positions and velocities are drawn
// uniformly from [-extent, +extent] on both axes.
type Spawn struct {
	PositionExtent float64
	VelocityExtent float64
}

type Flock struct {
	agents []Agent
	prev   []Agent // pre-update copy reused across ticks
	params Params
}

// New creates a flock of n agents at random positions and velocities.
func New(n int, spawn Spawn, params Params, rng *rand.Rand) (*Flock, error) {
	if n <= 1 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewAgents, n)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	agents := make([]Agent, n)
	for i := range agents {
		agents[i] = Agent{
			Position: geometry.Vector2D{
				X: uniform(rng, spawn.PositionExtent),
				Y: uniform(rng, spawn.PositionExtent),
			},
			Velocity: geometry.Vector2D{
				X: uniform(rng, spawn.VelocityExtent),
				Y: uniform(rng, spawn.VelocityExtent),
			},
		}
	}
	return FromAgents(agents, params)
}

// FromAgents builds a flock from a known state. The slice is copied.
func FromAgents(agents []Agent, params Params) (*Flock, error) {
	if len(agents) <= 1 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewAgents, len(agents))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	f := &Flock{
		agents: make([]Agent, len(agents)),
		prev:   make([]Agent, len(agents)),
		params: params,
	}
	copy(f.agents, agents)
	return f, nil
}

func uniform(rng *rand.Rand, extent float64) float64 {
	return (rng.Float64()*2 - 1) * extent
}

// Len returns the number of agents.
func (f *Flock) Len() int { return len(f.agents) }

// Params returns the current tuning.
func (f *Flock) Params() Params { return f.params }

// SetParams swaps the tuning used from the next tick on.
func (f *Flock) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f.params = p
	return nil
}

// Agents returns a copy of the current state, in flock order.
func (f *Flock) Agents() []Agent {
	out := make([]Agent, len(f.agents))
	copy(out, f.agents)
	return out
}

// Each calls fn for every agent in flock order. fn receives values, so the
// flock cannot be mutated through it.
func (f *Flock) Each(fn func(i int, a Agent)) {
	for i, a := range f.agents {
		fn(i, a)
	}
}

// Tick advances the flock by dt seconds: velocities first, then positions.
// On a precondition violation nothing is mutated.
func (f *Flock) Tick(dt float64) error {
	if err := f.UpdateVelocities(dt); err != nil {
		return err
	}
	return f.UpdatePositions(dt)
}

// UpdateVelocities applies cohesion, alignment, avoidance, centering and
// speed regulation. Every rule reads the state as it was before this call.
//
// The neighbour scan is a plain O(n²) pass, fine for the few dozen agents
// this is tuned for; large flocks will need a different strategy.
func (f *Flock) UpdateVelocities(dt float64) error {
	if err := checkDelta(dt); err != nil {
		return err
	}
	copy(f.prev, f.agents)
	p := f.params
	n := float64(len(f.prev))

	var sum geometry.Vector2D
	for _, a := range f.prev {
		sum = sum.Add(a.Position)
	}
	// n >= 2 is guaranteed by the constructors
	centroid, _ := sum.Div(n)

	alignSq := p.AlignRadius * p.AlignRadius
	avoidSq := p.AvoidRadius * p.AvoidRadius

	for i := range f.agents {
		me := f.prev[i]
		v := me.Velocity

		// 1. Cohesion
		v = v.Add(centroid.Sub(me.Position).Mul(dt * p.CohesionGain))

		// Collect alignment and avoidance in a single pass
		var neighbourVel, avoid geometry.Vector2D
		for j, other := range f.prev {
			if j == i {
				continue
			}
			offset := other.Position.Sub(me.Position)
			distSq := offset.LenSqr()
			if distSq < alignSq {
				neighbourVel = neighbourVel.Add(other.Velocity)
			}
			if distSq < avoidSq && distSq > 0 {
				avoid = avoid.Sub(offset.Mul(1 / math.Sqrt(distSq)))
			}
		}

		// 2. Alignment, divided by the flock size rather than the neighbour count
		match, _ := neighbourVel.Sub(me.Velocity).Div(n - 1)
		v = v.Add(match.Mul(dt * p.AlignGain))

		// 3. Separation
		v = v.Add(avoid.Mul(dt * p.AvoidGain))

		// 4. Centering, deliberately not scaled by dt
		pull, _ := me.Position.Div(p.BoundsDivisor)
		v = v.Sub(pull)

		// 5. Speed regulation
		f.agents[i].Velocity = regulate(v, p)
	}
	return nil
}

func regulate(v geometry.Vector2D, p Params) geometry.Vector2D {
	if p.Ceiling.Enabled && v.Len() > p.Ceiling.Speed {
		v = v.Mul(p.Ceiling.Factor)
	}
	if p.Floor.Enabled && v.Len() < p.Floor.Speed {
		v = v.Mul(p.Floor.Factor)
	}
	return v
}

// UpdatePositions integrates position += velocity * dt for every agent.
func (f *Flock) UpdatePositions(dt float64) error {
	if err := checkDelta(dt); err != nil {
		return err
	}
	for i := range f.agents {
		a := &f.agents[i]
		a.Position = a.Position.Add(a.Velocity.Mul(dt))
	}
	return nil
}

// MeanSpeed is the average velocity magnitude across the flock.
func (f *Flock) MeanSpeed() float64 {
	total := 0.0
	for _, a := range f.agents {
		total += a.Velocity.Len()
	}
	return total / float64(len(f.agents))
}

func checkDelta(dt float64) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return fmt.Errorf("%w: got %v", ErrNegativeDelta, dt)
	}
	return nil
}
