package lifeline

import (
	"testing"
	"time"

	"github.com/anggasct/lifeline/pkg/core"
)

func TestTestObserver_FindTransition(t *testing.T) {
	obs := NewTestObserver()
	now := time.Now()
	obs.OnTransition(core.NewTransitionEvent(now, core.ModeNormal, core.ModeAllRedBuffer, "cycle_advance", core.East, nil))
	obs.OnTransition(core.NewTransitionEvent(now, core.ModeAllRedBuffer, core.ModeNormal, "cycle", core.East, nil))
	obs.OnTransition(core.NewTransitionEvent(now, core.ModeNormal, core.ModeAllRedBuffer, "priority_request", core.North, nil))

	if got := obs.FindTransition(0, core.ModeAllRedBuffer, ""); got != 0 {
		t.Errorf("Expected index 0, got %d", got)
	}
	if got := obs.FindTransition(1, core.ModeAllRedBuffer, ""); got != 2 {
		t.Errorf("Expected index 2, got %d", got)
	}
	if got := obs.FindTransition(0, core.ModeAllRedBuffer, "priority_request"); got != 2 {
		t.Errorf("Expected index 2 for reason match, got %d", got)
	}
	if got := obs.FindTransition(0, core.ModeEmergencyStop, ""); got != -1 {
		t.Errorf("Expected -1 for a missing mode, got %d", got)
	}
	if last := obs.LastTransition(); last == nil || last.Lane != core.North {
		t.Errorf("Expected the last transition for north, got %+v", last)
	}
}

func TestTestObserver_DecisionsOf(t *testing.T) {
	obs := NewTestObserver()
	obs.OnDecision(core.Decision{Kind: core.DecisionDebouncing, Lane: core.West})
	obs.OnDecision(core.Decision{Kind: core.DecisionRaised, Lane: core.West})
	obs.OnDecision(core.Decision{Kind: core.DecisionDebouncing, Lane: core.East})

	if got := len(obs.DecisionsOf(core.DecisionDebouncing)); got != 2 {
		t.Errorf("Expected 2 debouncing decisions, got %d", got)
	}
	if got := obs.DecisionsOf(core.DecisionRaised); len(got) != 1 || got[0].Lane != core.West {
		t.Errorf("Expected one raised decision for west, got %+v", got)
	}
}

func TestCreateTestConfig_IsValid(t *testing.T) {
	if err := CreateTestConfig().Validate(); err != nil {
		t.Fatalf("Expected the test configuration to validate, got %v", err)
	}
	center := regionCenters[core.South]
	d := AmbulanceAt(center[0], center[1], 0.9)
	if x, y := d.BBox.Center(); x != center[0] || y != center[1] {
		t.Errorf("Expected the box centered on %v, got (%v, %v)", center, x, y)
	}
}
