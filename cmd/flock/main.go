package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/rs/zerolog"
	golog "github.com/tochemey/goakt/v3/log"

	"github.com/lao-tseu-is-alive/go-flock-osc/internal/logging"
	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/render"
	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/simulation"
)

func main() {
	var (
		configFile = flag.String("config", "", "JSON config file (defaults are used when empty)")
		headless   = flag.Bool("headless", false, "run without a window")
		ticks      = flag.Int("ticks", 0, "headless only: stop after this many ticks (0 runs until interrupted)")
		actorLogs  = flag.Bool("actor-logs", false, "print the actor system logs")
	)
	flag.Parse()

	log := logging.ConfigureRuntime()

	cfg := simulation.DefaultConfig()
	if *configFile != "" {
		loaded, err := simulation.LoadConfig(*configFile)
		if err != nil {
			log.Fatal().Err(err).Str("config", *configFile).Msg("invalid configuration")
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := simulation.Options{Log: log}
	if *actorLogs {
		opts.ActorLogger = golog.DefaultLogger
	}
	sim, err := simulation.New(ctx, cfg, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start simulation")
	}
	defer func() {
		if err := sim.Stop(context.Background()); err != nil {
			log.Warn().Err(err).Msg("actor system did not stop cleanly")
		}
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, sim, log)
	}

	if *headless {
		if err := sim.Run(ctx, *ticks); err != nil {
			log.Error().Err(err).Msg("simulation stopped")
		}
		return
	}

	ebiten.SetWindowSize(int(cfg.WorldWidth), int(cfg.WorldHeight))
	ebiten.SetWindowTitle("Flock")
	ebiten.SetTPS(cfg.TickRate)
	if err := ebiten.RunGame(render.NewGame(ctx, sim, cfg, log)); err != nil {
		log.Error().Err(err).Msg("window closed")
	}
}

func serveMetrics(addr string, sim *simulation.Simulation, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", sim.Metrics.Handler())
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics endpoint failed")
	}
}
