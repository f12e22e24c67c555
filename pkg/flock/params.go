package flock

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidParams is returned when a tuning cannot drive a stable flock.
var ErrInvalidParams = errors.New("invalid flock parameters")

// SpeedLimit is one side of the soft speed regulator.
// When Enabled and the speed crosses Speed, the velocity is multiplied by Factor.
type SpeedLimit struct {
	Enabled bool    `json:"enabled"`
	Speed   float64 `json:"speed"`
	Factor  float64 `json:"factor"`
}

// Params controls the physics constants of the flock.
// Passing a new Params to SetParams changes the rules between ticks.
type Params struct {
	CohesionGain float64 `json:"cohesionGain"` // pull toward the centroid, per second
	AlignGain    float64 `json:"alignGain"`    // velocity matching, per second
	AvoidGain    float64 `json:"avoidGain"`    // short range repulsion, per second

	AlignRadius float64 `json:"alignRadius"` // how far can they see?
	AvoidRadius float64 `json:"avoidRadius"` // personal space

	// BoundsDivisor sets the spring back to the origin: v -= p / BoundsDivisor
	// on every tick, independent of dt.
	BoundsDivisor float64 `json:"boundsDivisor"`

	Ceiling SpeedLimit `json:"ceiling"` // damp above Speed, Factor < 1
	Floor   SpeedLimit `json:"floor"`   // boost below Speed, Factor > 1
}

const (
	PresetReference = "reference"
	PresetDrift     = "drift"
)

var presets = map[string]Params{
	// tight and energetic: both regulator sides active
	PresetReference: {
		CohesionGain:  0.05,
		AlignGain:     0.1,
		AvoidGain:     40,
		AlignRadius:   150,
		AvoidRadius:   50,
		BoundsDivisor: 5000,
		Ceiling:       SpeedLimit{Enabled: true, Speed: 100, Factor: 0.99},
		Floor:         SpeedLimit{Enabled: true, Speed: 30, Factor: 1.1},
	},
	// looser, slower flock that is allowed to come to rest
	PresetDrift: {
		CohesionGain:  0.02,
		AlignGain:     0.25,
		AvoidGain:     60,
		AlignRadius:   100,
		AvoidRadius:   40,
		BoundsDivisor: 8000,
		Ceiling:       SpeedLimit{Enabled: true, Speed: 60, Factor: 0.98},
	},
}

// DefaultParams returns the reference tuning.
func DefaultParams() Params {
	return presets[PresetReference]
}

// Preset returns the named tuning.
func Preset(name string) (Params, bool) {
	p, ok := presets[name]
	return p, ok
}

// PresetNames lists the known tunings in stable order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects tunings that would divide by zero or turn the regulator
// into an amplifier on the wrong side.
func (p Params) Validate() error {
	gains := []struct {
		name string
		v    float64
	}{
		{"cohesionGain", p.CohesionGain},
		{"alignGain", p.AlignGain},
		{"avoidGain", p.AvoidGain},
		{"alignRadius", p.AlignRadius},
		{"avoidRadius", p.AvoidRadius},
		{"boundsDivisor", p.BoundsDivisor},
	}
	for _, g := range gains {
		if math.IsNaN(g.v) || math.IsInf(g.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidParams, g.name)
		}
	}
	if p.AlignRadius < 0 || p.AvoidRadius < 0 {
		return fmt.Errorf("%w: radii must be >= 0", ErrInvalidParams)
	}
	if p.BoundsDivisor <= 0 {
		return fmt.Errorf("%w: boundsDivisor must be > 0, got %g", ErrInvalidParams, p.BoundsDivisor)
	}
	if p.Ceiling.Enabled && (p.Ceiling.Factor <= 0 || p.Ceiling.Factor >= 1 || p.Ceiling.Speed < 0) {
		return fmt.Errorf("%w: ceiling factor must be in (0,1), got %g", ErrInvalidParams, p.Ceiling.Factor)
	}
	if p.Floor.Enabled && (p.Floor.Factor <= 1 || p.Floor.Speed < 0) {
		return fmt.Errorf("%w: floor factor must be > 1, got %g", ErrInvalidParams, p.Floor.Factor)
	}
	return nil
}
