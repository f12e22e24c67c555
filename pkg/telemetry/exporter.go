// Package telemetry turns flock state into addressed messages for an
// external renderer or sound engine.
package telemetry

import (
	"fmt"
	"strings"

	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/flock"
)

// Message is one addressed packet: an OSC-style address and float32 arguments.
type Message struct {
	Address string
	Args    []float32
}

// Sink accepts addressed messages. It is already connected; the exporter
// borrows it and never closes it.
type Sink interface {
	Send(msg Message) error
}

// Encoding selects how an agent is mapped to messages.
type Encoding int

const (
	// EncodingPolar sends /boid/angle{N} and /boid/length{N}, N starting at 1.
	EncodingPolar Encoding = iota
	// EncodingCartesian sends "/boid/position {N}" with [x, y], N starting at 0.
	EncodingCartesian
)

func (e Encoding) String() string {
	switch e {
	case EncodingPolar:
		return "polar"
	case EncodingCartesian:
		return "cartesian"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// ParseEncoding maps a config value to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "polar":
		return EncodingPolar, nil
	case "cartesian":
		return EncodingCartesian, nil
	default:
		return 0, fmt.Errorf("unknown telemetry encoding %q", s)
	}
}

// Report counts what happened during one Emit.
type Report struct {
	Sent    int
	Dropped int
}

type Exporter struct {
	sink     Sink
	encoding Encoding
}

func NewExporter(sink Sink, encoding Encoding) *Exporter {
	return &Exporter{sink: sink, encoding: encoding}
}

func (e *Exporter) Encoding() Encoding { return e.encoding }

// Emit sends every agent's position. Delivery is fire-and-forget: a failed
// send is counted in the report and otherwise ignored, and nothing is retried.
func (e *Exporter) Emit(agents []flock.Agent) Report {
	var r Report
	for i, a := range agents {
		for _, msg := range e.Encode(i, a) {
			if err := e.sink.Send(msg); err != nil {
				r.Dropped++
				continue
			}
			r.Sent++
		}
	}
	return r
}

// Encode maps the agent at index i to its messages.
func (e *Exporter) Encode(i int, a flock.Agent) []Message {
	pos := a.Position
	if e.encoding == EncodingCartesian {
		return []Message{{
			Address: fmt.Sprintf("/boid/position %d", i),
			Args:    []float32{float32(pos.X), float32(pos.Y)},
		}}
	}
	n := i + 1
	return []Message{
		{Address: fmt.Sprintf("/boid/angle%d", n), Args: []float32{float32(pos.Angle())}},
		{Address: fmt.Sprintf("/boid/length%d", n), Args: []float32{float32(pos.Len())}},
	}
}
