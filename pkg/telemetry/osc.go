package telemetry

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog"
)

// UDPSink delivers messages as OSC packets over UDP.
type UDPSink struct {
	client *osc.Client
	target string
	log    zerolog.Logger
}

// NewUDPSink targets host:port. UDP is connectionless, so nothing is dialed
// until the first Send.
func NewUDPSink(host string, port int, log zerolog.Logger) *UDPSink {
	return &UDPSink{
		client: osc.NewClient(host, port),
		target: fmt.Sprintf("%s:%d", host, port),
		log:    log.With().Str("sink", "osc").Logger(),
	}
}

func (s *UDPSink) Target() string { return s.target }

// Send encodes msg as an OSC message with float32 arguments.
func (s *UDPSink) Send(msg Message) error {
	if err := s.client.Send(ToOSC(msg)); err != nil {
		s.log.Debug().Err(err).Str("address", msg.Address).Str("target", s.target).Msg("osc send failed")
		return err
	}
	return nil
}

// ToOSC converts msg to its OSC form.
func ToOSC(msg Message) *osc.Message {
	m := osc.NewMessage(msg.Address)
	for _, arg := range msg.Args {
		m.Append(arg)
	}
	return m
}

// FromOSC converts an OSC message back to a Message. Non float32 arguments
// are rejected.
func FromOSC(m *osc.Message) (Message, error) {
	out := Message{Address: m.Address, Args: make([]float32, 0, len(m.Arguments))}
	for i, arg := range m.Arguments {
		f, ok := arg.(float32)
		if !ok {
			return Message{}, fmt.Errorf("argument %d of %s is %T, want float32", i, m.Address, arg)
		}
		out.Args = append(out.Args, f)
	}
	return out, nil
}

// Discard is a Sink that accepts and drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Send(Message) error { return nil }
