package visualization_test

import (
	"strings"
	"testing"

	"github.com/anggasct/lifeline"
	"github.com/anggasct/lifeline/pkg/core"
	"github.com/anggasct/lifeline/visualization"
)

func TestDOTGeneration(t *testing.T) {
	generator := visualization.NewDOTGenerator(lifeline.Transitions())

	dotContent, err := generator.Generate()
	if err != nil {
		t.Fatalf("Failed to generate DOT: %v", err)
	}

	if !strings.Contains(dotContent, "digraph Modes") {
		t.Error("DOT content should contain graph declaration")
	}
	for _, m := range core.Modes() {
		if !strings.Contains(dotContent, "\""+m.String()+"\" [") {
			t.Errorf("DOT content should contain node %s", m)
		}
	}
	if !strings.Contains(dotContent, "\"ALL_RED_BUFFER\" -> \"PRIORITY_ACTIVE\"") {
		t.Error("DOT content should contain the buffer to priority edge")
	}
	if strings.Contains(dotContent, "\"NORMAL\" -> \"PRIORITY_ACTIVE\"") {
		t.Error("DOT content must not contain a direct NORMAL to PRIORITY_ACTIVE edge")
	}
	if !strings.Contains(dotContent, "\"PRIORITY_ACTIVE\" -> \"EMERGENCY_STOP\" [style=dashed]") {
		t.Error("Emergency stop edges should be dashed")
	}
	if !strings.Contains(dotContent, "lightgreen") {
		t.Error("DOT content should highlight the initial mode")
	}

	again, _ := generator.Generate()
	if again != dotContent {
		t.Error("DOT output should be deterministic")
	}
}

func TestDOTGenerationOptions(t *testing.T) {
	current := core.ModeOverride
	options := visualization.DefaultDOTOptions()
	options.RankDirection = "LR"
	options.Current = &current
	options.ShowSelfLoops = false

	dotContent, err := visualization.NewDOTGenerator(lifeline.Transitions(), options).Generate()
	if err != nil {
		t.Fatalf("Failed to generate DOT: %v", err)
	}
	if !strings.Contains(dotContent, "rankdir=LR") {
		t.Error("DOT content should honor the rank direction")
	}
	if !strings.Contains(dotContent, "OVERRIDE\\n(current)") {
		t.Error("DOT content should mark the current mode")
	}
	if strings.Contains(dotContent, "\"ALL_RED_BUFFER\" -> \"ALL_RED_BUFFER\"") {
		t.Error("Self loops should be hidden")
	}
}

func TestDOTGenerationEmptyTable(t *testing.T) {
	if _, err := visualization.NewDOTGenerator(nil).Generate(); err == nil {
		t.Error("Expected an error for an empty table")
	}
}

func TestConflictGraph(t *testing.T) {
	dirs := []core.Direction{core.North, core.East, core.South, core.West}
	axis := map[core.Direction]int{core.North: 0, core.South: 0, core.East: 1, core.West: 1}
	dotContent := visualization.ConflictGraph(dirs, func(a, b core.Direction) bool {
		return axis[a] != axis[b]
	})

	if got := strings.Count(dotContent, " -- "); got != 4 {
		t.Errorf("Expected 4 conflict edges, got %d", got)
	}
	if strings.Contains(dotContent, "\"north\" -- \"south\"") {
		t.Error("Compatible directions should not be connected")
	}
	if !strings.Contains(dotContent, "\"north\" -- \"east\"") {
		t.Error("Conflicting directions should be connected")
	}
}
