package config

import (
	"fmt"
	"time"

	"github.com/anggasct/lifeline/pkg/core"
)

// Validate checks the configuration and reports every issue found at once
func (c *Config) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if t := c.Detection.ConfidenceThreshold; t < 0 || t > 1 {
		add("detection.confidence_threshold must be within [0,1], got %v", t)
	}
	if len(c.Detection.Classes) == 0 {
		add("detection.classes must not be empty")
	}
	if c.Detection.Freshness <= 0 {
		add("detection.freshness must be positive")
	}

	known := make(map[core.Direction]bool, len(c.Lanes.Directions))
	if len(c.Lanes.Directions) == 0 {
		add("lanes.directions must not be empty")
	}
	for _, d := range c.Lanes.Directions {
		if d == "" || d == core.DirectionUnknown {
			add("lanes.directions contains invalid name %q", d)
			continue
		}
		if known[d] {
			add("lanes.directions contains duplicate %q", d)
		}
		known[d] = true
	}

	seen := make(map[core.Direction]bool, len(c.Lanes.Precedence))
	for _, d := range c.Lanes.Precedence {
		if !known[d] {
			add("lanes.precedence names unknown direction %q", d)
		}
		if seen[d] {
			add("lanes.precedence contains duplicate %q", d)
		}
		seen[d] = true
	}
	if len(seen) != len(known) {
		add("lanes.precedence must list every direction exactly once")
	}

	grouped := make(map[core.Direction]int)
	for gi, group := range c.Lanes.ConflictGroups {
		for _, d := range group {
			if !known[d] {
				add("lanes.conflict_groups[%d] names unknown direction %q", gi, d)
				continue
			}
			if prev, ok := grouped[d]; ok {
				add("direction %q is in conflict groups %d and %d", d, prev, gi)
			}
			grouped[d] = gi
		}
	}
	for d := range known {
		if _, ok := grouped[d]; !ok {
			add("direction %q is not in any conflict group", d)
		}
	}

	for i, r := range c.Lanes.Regions {
		if !known[r.Direction] {
			add("lanes.regions[%d] names unknown direction %q", i, r.Direction)
		}
		if len(r.Bounds) != 4 {
			add("lanes.regions[%d].bounds must be [x1, y1, x2, y2]", i)
			continue
		}
		if r.Bounds[0] >= r.Bounds[2] || r.Bounds[1] >= r.Bounds[3] {
			add("lanes.regions[%d].bounds must satisfy x1 < x2 and y1 < y2", i)
		}
	}

	tc := c.TrafficControl
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"traffic_control.default_green_duration", tc.DefaultGreenDuration},
		{"traffic_control.ambulance_green_duration", tc.AmbulanceGreenDuration},
		{"traffic_control.yellow_duration", tc.YellowDuration},
		{"traffic_control.all_red_duration", tc.AllRedDuration},
		{"traffic_control.priority_extension_cap", tc.PriorityExtensionCap},
		{"traffic_control.request_timeout", tc.RequestTimeout},
		{"debounce.gap", c.Debounce.Gap},
		{"watchdog.timeout", c.Watchdog.Timeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			add("%s must be positive", p.name)
		}
	}
	if tc.CooldownDuration < 0 {
		add("traffic_control.cooldown_duration must not be negative")
	}
	if tc.PriorityExtensionCap < tc.AmbulanceGreenDuration {
		add("traffic_control.priority_extension_cap (%s) must be >= ambulance_green_duration (%s)",
			tc.PriorityExtensionCap, tc.AmbulanceGreenDuration)
	}

	if c.Debounce.Count < 1 {
		add("debounce.count must be at least 1")
	}
	if c.Debounce.Window < 0 {
		add("debounce.window must not be negative")
	}
	if c.Queue.Capacity < 1 {
		add("queue.capacity must be at least 1")
	}
	if c.Telemetry.Buffer < 1 {
		add("telemetry.buffer must be at least 1")
	}

	if len(issues) > 0 {
		return core.NewConfigurationError("config", issues...)
	}
	return nil
}
