// Package lifeline provides an emergency-vehicle priority controller for a signalized
// intersection. It turns asynchronous detector output into safe, time-bounded light
// commands: conflicting directions are never GREEN together, every new GREEN is preceded
// by an all-red clearance, priority episodes are debounced and capped, a stalled
// detection feed forces a fail-safe, and operators can override or emergency-stop the
// automatic control.
package lifeline

import (
	"time"

	"github.com/anggasct/lifeline/pkg/config"
	"github.com/anggasct/lifeline/pkg/core"
	"github.com/anggasct/lifeline/pkg/observers"
)

// Core types
type (
	// Direction identifies an approach to the intersection
	Direction = core.Direction

	// Color is the aspect shown by a signal head
	Color = core.Color

	// Mode is the system-wide operating mode
	Mode = core.Mode

	// Detection is one object reported by the detector
	Detection = core.Detection

	// BBox is a detection bounding box in frame pixels
	BBox = core.BBox

	// Request is a priority request for one lane
	Request = core.Request

	// SignalState maps each direction to its light
	SignalState = core.SignalState

	// TransitionEvent records one system-mode transition
	TransitionEvent = core.TransitionEvent

	// SignalChange records one applied light change
	SignalChange = core.SignalChange

	// Decision records what the arbiter did with an input
	Decision = core.Decision

	// Config is the immutable controller configuration
	Config = config.Config
)

// Re-export observer types
type (
	// LoggingObserver writes telemetry to a zerolog logger
	LoggingObserver = observers.LoggingObserver

	// MetricsObserver exports telemetry as Prometheus metrics
	MetricsObserver = observers.MetricsObserver

	// StreamObserver forwards transitions to a channel
	StreamObserver = observers.StreamObserver
)

// Re-export constants
const (
	North = core.North
	South = core.South
	East  = core.East
	West  = core.West

	Red    = core.Red
	Yellow = core.Yellow
	Green  = core.Green

	ModeNormal         = core.ModeNormal
	ModeAllRedBuffer   = core.ModeAllRedBuffer
	ModePriorityActive = core.ModePriorityActive
	ModeCooldown       = core.ModeCooldown
	ModeOverride       = core.ModeOverride
	ModeEmergencyStop  = core.ModeEmergencyStop
)

// Re-export constructors
var (
	// DefaultConfig returns the stock four-way configuration
	DefaultConfig = config.Default

	// LoadConfig reads a YAML or TOML configuration file
	LoadConfig = config.Load

	// NewLoggingObserver creates a zerolog-backed observer
	NewLoggingObserver = observers.NewLoggingObserver

	// NewMetricsObserver creates a Prometheus observer
	NewMetricsObserver = observers.NewMetricsObserver

	// NewStreamObserver creates a channel-backed observer
	NewStreamObserver = observers.NewStreamObserver
)

// Duration converts an integer to a time.Duration
func Duration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
