package simulation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/telemetry"
)

//go:embed config.schema.json
var configSchema string

type TelemetryConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Encoding string `json:"encoding"` // "polar" or "cartesian"
}

type Config struct {
	// Population
	FlockSize     int     `json:"flockSize"`
	SpawnExtent   float64 `json:"spawnExtent"`   // positions drawn from [-extent, extent]
	SpawnVelocity float64 `json:"spawnVelocity"` // velocities drawn from [-extent, extent]
	Seed          uint64  `json:"seed"`          // 0 picks a random seed

	// Physics: a named tuning, optionally replaced wholesale by Params
	Preset string        `json:"preset"`
	Params *flock.Params `json:"params,omitempty"`

	// Driving loop
	TickRate int `json:"tickRate"` // ticks per second

	// Renderer
	WorldWidth  float64 `json:"worldWidth"`
	WorldHeight float64 `json:"worldHeight"`
	ViewExtent  float64 `json:"viewExtent"` // world units from the origin to the window edge

	Telemetry   TelemetryConfig `json:"telemetry"`
	MetricsAddr string          `json:"metricsAddr"` // empty disables the /metrics endpoint
}

func DefaultConfig() *Config {
	return &Config{
		FlockSize:     15,
		SpawnExtent:   1000,
		SpawnVelocity: 1000,
		Preset:        flock.PresetReference,
		TickRate:      60,
		WorldWidth:    1000,
		WorldHeight:   800,
		ViewExtent:    1200,
		Telemetry: TelemetryConfig{
			Enabled:  true,
			Host:     "127.0.0.1",
			Port:     5510,
			Encoding: telemetry.EncodingPolar.String(),
		},
	}
}

// FlockParams resolves the tuning: explicit Params win over Preset.
func (c *Config) FlockParams() (flock.Params, error) {
	if c.Params != nil {
		return *c.Params, c.Params.Validate()
	}
	p, ok := flock.Preset(c.Preset)
	if !ok {
		return flock.Params{}, fmt.Errorf("unknown preset %q, want one of %v", c.Preset, flock.PresetNames())
	}
	return p, nil
}

// TickInterval is the wall-clock period of one tick.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Validate checks c against the embedded JSON schema and then the rules the
// schema cannot express.
func (c *Config) Validate() error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := validateDocument(b); err != nil {
		return err
	}
	if _, err := c.FlockParams(); err != nil {
		return err
	}
	if _, err := telemetry.ParseEncoding(c.Telemetry.Encoding); err != nil {
		return err
	}
	return nil
}

// LoadConfig loads configuration from a JSON file on top of DefaultConfig and
// validates it against the schema.
func LoadConfig(configFile string) (*Config, error) {
	b, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	// the raw document is validated so unknown keys are caught
	if err := validateDocument(b); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateDocument(b []byte) error {
	sch, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("failed to decode config json: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
