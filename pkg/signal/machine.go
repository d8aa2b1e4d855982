// Package signal holds the authoritative per-direction light state and enforces the
// conflict matrix and all-red clearance on every change.
package signal

import (
	"fmt"
	"slices"
	"time"

	"github.com/anggasct/lifeline/pkg/config"
	"github.com/anggasct/lifeline/pkg/core"
)

// Machine is the per-direction light FSM (RED -> GREEN -> YELLOW -> RED). Two directions
// conflict when they belong to different conflict groups. Machine is not safe for
// concurrent use; the controller decision loop is its only writer.
type Machine struct {
	directions []core.Direction
	group      map[core.Direction]int
	allRed     time.Duration
	lights     core.SignalState
}

// New creates a machine with every light RED since now
func New(directions []core.Direction, groups [][]core.Direction, allRed time.Duration, now time.Time) *Machine {
	m := &Machine{
		directions: slices.Clone(directions),
		group:      make(map[core.Direction]int, len(directions)),
		allRed:     allRed,
		lights:     make(core.SignalState, len(directions)),
	}
	for i, g := range groups {
		for _, d := range g {
			m.group[d] = i
		}
	}
	for _, d := range directions {
		if _, ok := m.group[d]; !ok {
			// ungrouped directions conflict with everything
			m.group[d] = -1 - len(m.lights)
		}
		m.lights[d] = core.Light{Color: core.Red, Since: now}
	}
	return m
}

// FromConfig creates a machine from validated configuration
func FromConfig(cfg *config.Config, now time.Time) *Machine {
	return New(cfg.Lanes.Directions, cfg.Lanes.ConflictGroups, cfg.TrafficControl.AllRedDuration, now)
}

// Directions returns the controlled directions in configured order
func (m *Machine) Directions() []core.Direction {
	return slices.Clone(m.directions)
}

// Conflicts reports whether a and b may never be GREEN together
func (m *Machine) Conflicts(a, b core.Direction) bool {
	if a == b {
		return false
	}
	ga, okA := m.group[a]
	gb, okB := m.group[b]
	return !okA || !okB || ga != gb
}

// Color returns the current color of d
func (m *Machine) Color(d core.Direction) core.Color {
	return m.lights[d].Color
}

// Snapshot returns a copy of the light state
func (m *Machine) Snapshot() core.SignalState {
	return m.lights.Clone()
}

// legal reports whether the per-direction FSM allows from -> to. RED is always reachable.
func legal(from, to core.Color) bool {
	switch to {
	case core.Red:
		return true
	case core.Green:
		return from == core.Red
	case core.Yellow:
		return from == core.Green
	}
	return false
}

// CanGreen checks the conflict matrix for d at now without changing anything
func (m *Machine) CanGreen(d core.Direction, now time.Time) error {
	for _, other := range m.directions {
		if !m.Conflicts(d, other) {
			continue
		}
		l := m.lights[other]
		if l.Color != core.Red {
			return core.NewConflictError(d, core.Green, other, fmt.Sprintf("%s is %s", other, l.Color))
		}
		if held := now.Sub(l.Since); held < m.allRed {
			return core.NewConflictError(d, core.Green, other,
				fmt.Sprintf("%s red for %s, clearance needs %s", other, held, m.allRed))
		}
	}
	return nil
}

// Set applies one light change. Unknown directions or colors and illegal FSM edges are
// ValidationErrors; a GREEN that would break the conflict matrix is a ConflictError. A
// rejected change leaves the state untouched. Setting the current color is a no-op and
// returns a nil change.
func (m *Machine) Set(d core.Direction, c core.Color, now time.Time, reason string) (*core.SignalChange, error) {
	cur, ok := m.lights[d]
	if !ok {
		return nil, core.NewValidationError("direction", string(d), "unknown direction")
	}
	if !c.Valid() {
		return nil, core.NewValidationError("color", string(c), "unknown color")
	}
	if cur.Color == c {
		return nil, nil
	}
	if !legal(cur.Color, c) {
		return nil, core.NewValidationError("color", string(c),
			fmt.Sprintf("%s cannot go from %s to %s", d, cur.Color, c))
	}
	if c == core.Green {
		if err := m.CanGreen(d, now); err != nil {
			return nil, err
		}
	}

	m.lights[d] = core.Light{Color: c, Since: now}
	return &core.SignalChange{Timestamp: now, Direction: d, From: cur.Color, To: c, Reason: reason}, nil
}

// ClearGreens turns every GREEN light YELLOW
func (m *Machine) ClearGreens(now time.Time, reason string) []core.SignalChange {
	var changes []core.SignalChange
	for _, d := range m.directions {
		if m.lights[d].Color == core.Green {
			changes = append(changes, m.apply(d, core.Yellow, now, reason))
		}
	}
	return changes
}

// ForceAllRed turns every light RED immediately
func (m *Machine) ForceAllRed(now time.Time, reason string) []core.SignalChange {
	var changes []core.SignalChange
	for _, d := range m.directions {
		if m.lights[d].Color != core.Red {
			changes = append(changes, m.apply(d, core.Red, now, reason))
		}
	}
	return changes
}

// AllRed reports whether every light is RED
func (m *Machine) AllRed() bool {
	for _, l := range m.lights {
		if l.Color != core.Red {
			return false
		}
	}
	return true
}

// Greens lists directions currently GREEN
func (m *Machine) Greens() []core.Direction {
	var out []core.Direction
	for _, d := range m.directions {
		if m.lights[d].Color == core.Green {
			out = append(out, d)
		}
	}
	return out
}

// Verify checks that no two conflicting directions are GREEN
func (m *Machine) Verify() error {
	greens := m.Greens()
	for i, a := range greens {
		for _, b := range greens[i+1:] {
			if m.Conflicts(a, b) {
				return core.NewConflictError(a, core.Green, b, "conflicting directions both green")
			}
		}
	}
	return nil
}

func (m *Machine) apply(d core.Direction, c core.Color, now time.Time, reason string) core.SignalChange {
	from := m.lights[d].Color
	m.lights[d] = core.Light{Color: c, Since: now}
	return core.SignalChange{Timestamp: now, Direction: d, From: from, To: c, Reason: reason}
}
