// Package config loads the immutable controller configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/anggasct/lifeline/pkg/core"
)

// maxFileSize bounds config files read from disk
const maxFileSize = 1 << 20

// Config is the complete controller configuration. It is built once at startup and never
// mutated afterwards; components that keep it hold a Clone.
type Config struct {
	Detection      Detection      `yaml:"detection" toml:"detection"`
	Lanes          Lanes          `yaml:"lanes" toml:"lanes"`
	TrafficControl TrafficControl `yaml:"traffic_control" toml:"traffic_control"`
	Debounce       Debounce       `yaml:"debounce" toml:"debounce"`
	Watchdog       Watchdog       `yaml:"watchdog" toml:"watchdog"`
	Queue          Queue          `yaml:"queue" toml:"queue"`
	Telemetry      Telemetry      `yaml:"telemetry" toml:"telemetry"`
	Logging        Logging        `yaml:"logging" toml:"logging"`
	Metrics        Metrics        `yaml:"metrics" toml:"metrics"`
}

// Detection configures which detector output qualifies for arbitration
type Detection struct {
	ConfidenceThreshold float64       `yaml:"confidence_threshold" toml:"confidence_threshold"`
	Classes             []string      `yaml:"classes" toml:"classes"`
	Freshness           time.Duration `yaml:"freshness" toml:"freshness"`
}

// Lanes configures directions, their regions and how they interact
type Lanes struct {
	// Directions is also the round-robin order
	Directions     []core.Direction   `yaml:"directions" toml:"directions"`
	Precedence     []core.Direction   `yaml:"precedence" toml:"precedence"`
	ConflictGroups [][]core.Direction `yaml:"conflict_groups" toml:"conflict_groups"`
	// Regions are matched in order; the first match wins
	Regions []Region `yaml:"regions" toml:"regions"`
}

// Region maps a rectangle of the camera frame to a direction
type Region struct {
	Direction core.Direction `yaml:"direction" toml:"direction"`
	Bounds    []float64      `yaml:"bounds" toml:"bounds"`
}

// TrafficControl holds the phase timings
type TrafficControl struct {
	DefaultGreenDuration   time.Duration `yaml:"default_green_duration" toml:"default_green_duration"`
	AmbulanceGreenDuration time.Duration `yaml:"ambulance_green_duration" toml:"ambulance_green_duration"`
	YellowDuration         time.Duration `yaml:"yellow_duration" toml:"yellow_duration"`
	AllRedDuration         time.Duration `yaml:"all_red_duration" toml:"all_red_duration"`
	CooldownDuration       time.Duration `yaml:"cooldown_duration" toml:"cooldown_duration"`
	PriorityExtensionCap   time.Duration `yaml:"priority_extension_cap" toml:"priority_extension_cap"`
	RequestTimeout         time.Duration `yaml:"request_timeout" toml:"request_timeout"`
	ManualOverrideEnabled  bool          `yaml:"manual_override_enabled" toml:"manual_override_enabled"`
}

// Debounce configures how much evidence raises a priority request
type Debounce struct {
	Count  int           `yaml:"count" toml:"count"`
	Window time.Duration `yaml:"window" toml:"window"`
	Gap    time.Duration `yaml:"gap" toml:"gap"`
}

// Watchdog configures detection-feed liveness supervision
type Watchdog struct {
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// Queue sizes the decision-loop event queue (per precedence class)
type Queue struct {
	Capacity int `yaml:"capacity" toml:"capacity"`
}

// Telemetry sizes the observer dispatch buffer
type Telemetry struct {
	Buffer int `yaml:"buffer" toml:"buffer"`
}

// Logging configures the zerolog logger
type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Metrics configures the Prometheus endpoint of the CLI
type Metrics struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// Default returns the stock configuration for a four-way intersection filmed at 1280x720
func Default() *Config {
	return &Config{
		Detection: Detection{
			ConfidenceThreshold: 0.5,
			Classes:             []string{"ambulance", "emergency_vehicle"},
			Freshness:           2 * time.Second,
		},
		Lanes: Lanes{
			Directions: []core.Direction{core.North, core.East, core.South, core.West},
			Precedence: []core.Direction{core.North, core.South, core.East, core.West},
			ConflictGroups: [][]core.Direction{
				{core.North, core.South},
				{core.East, core.West},
			},
			Regions: []Region{
				{Direction: core.North, Bounds: []float64{0, 0, 640, 360}},
				{Direction: core.East, Bounds: []float64{640, 0, 1280, 360}},
				{Direction: core.South, Bounds: []float64{640, 360, 1280, 720}},
				{Direction: core.West, Bounds: []float64{0, 360, 640, 720}},
			},
		},
		TrafficControl: TrafficControl{
			DefaultGreenDuration:   30 * time.Second,
			AmbulanceGreenDuration: 60 * time.Second,
			YellowDuration:         3 * time.Second,
			AllRedDuration:         2 * time.Second,
			CooldownDuration:       5 * time.Second,
			PriorityExtensionCap:   120 * time.Second,
			RequestTimeout:         30 * time.Second,
			ManualOverrideEnabled:  true,
		},
		Debounce: Debounce{
			Count:  3,
			Window: time.Second,
			Gap:    time.Second,
		},
		Watchdog: Watchdog{
			Timeout: 3 * time.Second,
		},
		Queue: Queue{
			Capacity: 256,
		},
		Telemetry: Telemetry{
			Buffer: 1024,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		Metrics: Metrics{
			Listen: ":9102",
		},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file on top of Default and validates the
// result. Keys omitted from the file keep their default values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", cleanPath, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", cleanPath, err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("config file must be .yaml, .yml or .toml, got %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", cleanPath, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize lower-cases names and fills precedence from the direction list when omitted
func (c *Config) normalize() {
	for i, d := range c.Lanes.Directions {
		c.Lanes.Directions[i] = core.ParseDirection(string(d))
	}
	for i, d := range c.Lanes.Precedence {
		c.Lanes.Precedence[i] = core.ParseDirection(string(d))
	}
	for _, group := range c.Lanes.ConflictGroups {
		for i, d := range group {
			group[i] = core.ParseDirection(string(d))
		}
	}
	for i := range c.Lanes.Regions {
		c.Lanes.Regions[i].Direction = core.ParseDirection(string(c.Lanes.Regions[i].Direction))
	}
	for i, class := range c.Detection.Classes {
		c.Detection.Classes[i] = strings.ToLower(strings.TrimSpace(class))
	}
	if len(c.Lanes.Precedence) == 0 {
		c.Lanes.Precedence = slices.Clone(c.Lanes.Directions)
	}
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	out := *c
	out.Detection.Classes = slices.Clone(c.Detection.Classes)
	out.Lanes.Directions = slices.Clone(c.Lanes.Directions)
	out.Lanes.Precedence = slices.Clone(c.Lanes.Precedence)
	out.Lanes.ConflictGroups = make([][]core.Direction, len(c.Lanes.ConflictGroups))
	for i, g := range c.Lanes.ConflictGroups {
		out.Lanes.ConflictGroups[i] = slices.Clone(g)
	}
	out.Lanes.Regions = make([]Region, len(c.Lanes.Regions))
	for i, r := range c.Lanes.Regions {
		out.Lanes.Regions[i] = Region{Direction: r.Direction, Bounds: slices.Clone(r.Bounds)}
	}
	return &out
}

// HasDirection reports whether d is a configured direction
func (c *Config) HasDirection(d core.Direction) bool {
	return slices.Contains(c.Lanes.Directions, d)
}
