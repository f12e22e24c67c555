// Package render draws the flock in a window. It is a read-only consumer of
// simulation frames.
package render

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/rs/zerolog"

	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/simulation"
)

var (
	backgroundColor = color.RGBA{R: 221, G: 160, B: 221, A: 255} // plum
	arrowColor      = color.RGBA{R: 70, G: 130, B: 180, A: 255}  // steel blue
	presetKeys      = map[ebiten.Key]string{
		ebiten.Key1: flock.PresetReference,
		ebiten.Key2: flock.PresetDrift,
	}
)

// Game renders the flock with ebiten. It only reads frames; every mutation
// goes through the flock actor.
type Game struct {
	ctx       context.Context
	sim       *simulation.Simulation
	cfg       *simulation.Config
	log       zerolog.Logger
	lastFrame *simulation.Frame
	clock     *simulation.Clock
	paused    bool

	// Timing instrumentation
	updateAvg float64 // Rolling average in ms
	drawAvg   float64
}

func NewGame(ctx context.Context, sim *simulation.Simulation, cfg *simulation.Config, log zerolog.Logger) *Game {
	return &Game{
		ctx:       ctx,
		sim:       sim,
		cfg:       cfg,
		log:       log,
		lastFrame: &simulation.Frame{}, // avoid nil pointer
		clock:     simulation.NewClock(time.Now()),
	}
}

func (g *Game) Update() error {
	start := time.Now()
	defer func() {
		// exponential moving average
		g.updateAvg = g.updateAvg*0.95 + float64(time.Since(start).Microseconds())/1000.0*0.05
	}()

	// latest frame, non-blocking
	select {
	case f := <-g.sim.Frames:
		g.lastFrame = f
	default:
	}

	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	for key, preset := range presetKeys {
		if inpututil.IsKeyJustPressed(key) {
			if err := g.sim.SwitchPreset(g.ctx, preset); err != nil {
				g.log.Warn().Err(err).Str("preset", preset).Msg("preset switch not delivered")
			}
		}
	}

	if g.paused {
		// the pause must not count as one long tick on resume
		g.clock.Reset(time.Now())
		return nil
	}
	return g.sim.Tick(g.ctx, g.clock.Lap(time.Now()))
}

func (g *Game) Draw(screen *ebiten.Image) {
	start := time.Now()
	defer func() {
		g.drawAvg = g.drawAvg*0.95 + float64(time.Since(start).Microseconds())/1000.0*0.05
	}()

	screen.Fill(backgroundColor)
	for _, a := range g.lastFrame.Agents {
		g.drawArrow(screen, a)
	}

	msg := fmt.Sprintf("TPS: %.1f  FPS: %.1f\nTick: %d  Preset: %s\nOSC sent: %d  dropped: %d\nUpdate: %.2fms  Draw: %.2fms\n[1] reference  [2] drift  [space] pause",
		ebiten.ActualTPS(), ebiten.ActualFPS(),
		g.lastFrame.Tick, g.lastFrame.Preset,
		g.lastFrame.Report.Sent, g.lastFrame.Report.Dropped,
		g.updateAvg, g.drawAvg)
	ebitenutil.DebugPrint(screen, msg)
}

// drawArrow draws a line from the position to position+velocity with a
// small head, the velocity being the arrow itself.
func (g *Game) drawArrow(screen *ebiten.Image, a flock.Agent) {
	from := ToScreen(g.cfg, a.Position)
	to := ToScreen(g.cfg, a.Position.Add(a.Velocity))
	vector.StrokeLine(screen, float32(from.X), float32(from.Y), float32(to.X), float32(to.Y), 3, arrowColor, true)

	shaft := to.Sub(from)
	if shaft.LenSqr() < 1 {
		return
	}
	back := shaft.Normalize().Mul(-8)
	for _, turn := range []float64{0.5, -0.5} {
		wing := geometry.NewVectorPolar(back.Len(), back.Angle()+turn)
		tip := to.Add(wing)
		vector.StrokeLine(screen, float32(to.X), float32(to.Y), float32(tip.X), float32(tip.Y), 3, arrowColor, true)
	}
}

// ToScreen maps world coordinates (origin in the middle, y up) to pixels.
// ViewExtent world units fit between the centre and the nearest window edge.
func ToScreen(cfg *simulation.Config, p geometry.Vector2D) geometry.Vector2D {
	scale := math.Min(cfg.WorldWidth, cfg.WorldHeight) / (2 * cfg.ViewExtent)
	return geometry.Vector2D{
		X: cfg.WorldWidth/2 + p.X*scale,
		Y: cfg.WorldHeight/2 - p.Y*scale,
	}
}

func (g *Game) Layout(w, h int) (int, int) { return int(g.cfg.WorldWidth), int(g.cfg.WorldHeight) }
