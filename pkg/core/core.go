// Package core provides the central value types shared by the Lifeline controller packages.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Direction identifies an approach to the intersection
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"

	// DirectionUnknown is returned by the lane mapper when no region matches
	DirectionUnknown Direction = "unknown"
)

// ParseDirection normalizes a direction name
func ParseDirection(s string) Direction {
	return Direction(strings.ToLower(strings.TrimSpace(s)))
}

func (d Direction) String() string {
	return string(d)
}

// Color is the aspect shown by a signal head
type Color string

const (
	Red    Color = "red"
	Yellow Color = "yellow"
	Green  Color = "green"
)

// ParseColor returns the color named by s, or an error for anything else
func ParseColor(s string) (Color, error) {
	switch c := Color(strings.ToLower(strings.TrimSpace(s))); c {
	case Red, Yellow, Green:
		return c, nil
	default:
		return "", NewValidationError("color", s, "unknown color")
	}
}

// Valid reports whether c is one of the three signal colors
func (c Color) Valid() bool {
	return c == Red || c == Yellow || c == Green
}

func (c Color) String() string {
	return string(c)
}

// Mode is the system-wide operating mode. Exactly one mode is current at any instant
// and it decides which component may mutate the signal state.
type Mode int

const (
	ModeNormal Mode = iota
	ModeAllRedBuffer
	ModePriorityActive
	ModeCooldown
	ModeOverride
	ModeEmergencyStop
)

var modeNames = [...]string{
	ModeNormal:         "NORMAL",
	ModeAllRedBuffer:   "ALL_RED_BUFFER",
	ModePriorityActive: "PRIORITY_ACTIVE",
	ModeCooldown:       "COOLDOWN",
	ModeOverride:       "OVERRIDE",
	ModeEmergencyStop:  "EMERGENCY_STOP",
}

// Modes lists every mode in declaration order
func Modes() []Mode {
	return []Mode{ModeNormal, ModeAllRedBuffer, ModePriorityActive, ModeCooldown, ModeOverride, ModeEmergencyStop}
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// MarshalText renders the mode name
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Light is the state of one signal head
type Light struct {
	Color Color     `json:"color"`
	Since time.Time `json:"since"`
}

// SignalState maps each configured direction to its light
type SignalState map[Direction]Light

// Colors flattens the state into direction -> color
func (s SignalState) Colors() map[Direction]Color {
	out := make(map[Direction]Color, len(s))
	for d, l := range s {
		out[d] = l.Color
	}
	return out
}

// Clone returns an independent copy
func (s SignalState) Clone() SignalState {
	out := make(SignalState, len(s))
	for d, l := range s {
		out[d] = l
	}
	return out
}
