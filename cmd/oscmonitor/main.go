// Command oscmonitor listens for the flock's OSC telemetry and logs it.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog"

	"github.com/lao-tseu-is-alive/go-flock-osc/internal/logging"
	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/telemetry"
)

func main() {
	addr := flag.String("listen", "127.0.0.1:5510", "UDP address to listen on")
	flag.Parse()

	log := logging.ConfigureRuntime()

	conn, err := net.ListenPacket("udp", *addr)
	if err != nil {
		log.Fatal().Err(err).Str("listen", *addr).Msg("cannot listen")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Info().Str("listen", conn.LocalAddr().String()).Msg("waiting for boids")
	if err := serve(conn, log); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Fatal().Err(err).Msg("monitor stopped")
	}
}

func serve(conn net.PacketConn, log zerolog.Logger) error {
	buf := make([]byte, 65535)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return err
		}
		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			log.Warn().Err(err).Stringer("from", from).Msg("not an OSC packet")
			continue
		}
		logPacket(packet, log)
	}
}

func logPacket(p osc.Packet, log zerolog.Logger) {
	switch p := p.(type) {
	case *osc.Message:
		msg, err := telemetry.FromOSC(p)
		if err != nil {
			log.Warn().Err(err).Msg("unexpected arguments")
			return
		}
		log.Info().Str("address", msg.Address).Interface("args", msg.Args).Msg("boid")
	case *osc.Bundle:
		for _, m := range p.Messages {
			logPacket(m, log)
		}
		for _, b := range p.Bundles {
			logPacket(b, log)
		}
	}
}
