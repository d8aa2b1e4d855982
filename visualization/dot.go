// Package visualization renders the controller's mode graph and conflict matrix as
// Graphviz DOT.
package visualization

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/anggasct/lifeline/pkg/core"
)

// ConflictFunc reports whether two directions may never be GREEN together
type ConflictFunc func(a, b core.Direction) bool

// DOTGenerator generates Graphviz DOT for a system-mode transition table
type DOTGenerator struct {
	table   map[core.Mode][]core.Mode
	options DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	RankDirection string // "TB", "LR", "BT", "RL"
	NodeShape     string
	// Initial is drawn in green
	Initial core.Mode
	// Current, when set, is drawn bold; use it to mark a live controller's mode
	Current       *core.Mode
	ShowSelfLoops bool
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		RankDirection: "TB",
		NodeShape:     "box",
		Initial:       core.ModeAllRedBuffer,
		ShowSelfLoops: true,
	}
}

// NewDOTGenerator creates a new DOT generator for the given transition table
func NewDOTGenerator(table map[core.Mode][]core.Mode, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	return &DOTGenerator{table: table, options: opts}
}

// Generate creates a DOT representation of the mode graph. Output is deterministic.
func (g *DOTGenerator) Generate() (string, error) {
	if len(g.table) == 0 {
		return "", fmt.Errorf("transition table is empty")
	}
	var dot strings.Builder

	dot.WriteString("digraph Modes {\n")
	dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	dot.WriteString(fmt.Sprintf("  node [shape=%s];\n", g.options.NodeShape))
	dot.WriteString("  edge [fontsize=10];\n\n")

	dot.WriteString("  // Modes\n")
	for _, m := range g.modes() {
		g.writeNode(&dot, m)
	}

	dot.WriteString("\n  // Transitions\n")
	for _, from := range g.modes() {
		targets := slices.Clone(g.table[from])
		slices.Sort(targets)
		for _, to := range targets {
			if from == to && !g.options.ShowSelfLoops {
				continue
			}
			style := "solid"
			if to == core.ModeEmergencyStop {
				style = "dashed"
			}
			dot.WriteString(fmt.Sprintf("  %q -> %q [style=%s];\n", from.String(), to.String(), style))
		}
	}

	dot.WriteString("}\n")
	return dot.String(), nil
}

// modes returns every mode named by the table in declaration order
func (g *DOTGenerator) modes() []core.Mode {
	seen := make(map[core.Mode]bool)
	for from, tos := range g.table {
		seen[from] = true
		for _, to := range tos {
			seen[to] = true
		}
	}
	out := make([]core.Mode, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

func (g *DOTGenerator) writeNode(dot *strings.Builder, m core.Mode) {
	fillColor := "lightblue"
	label := m.String()

	switch m {
	case core.ModeEmergencyStop:
		fillColor = "lightcoral"
	case core.ModeAllRedBuffer:
		fillColor = "mistyrose"
	case core.ModePriorityActive:
		fillColor = "lightyellow"
	case core.ModeOverride:
		fillColor = "lavender"
	}
	if m == g.options.Initial {
		fillColor = "lightgreen"
		label += "\\n(initial)"
	}

	style := "filled"
	if g.options.Current != nil && *g.options.Current == m {
		style = "filled,bold"
		label += "\\n(current)"
	}
	dot.WriteString(fmt.Sprintf("  %q [style=%q fillcolor=%s label=\"%s\"];\n",
		m.String(), style, fillColor, label))
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(content), 0644)
}

// GenerateSVG renders the DOT output through the Graphviz dot binary
func (g *DOTGenerator) GenerateSVG() (string, error) {
	content, err := g.Generate()
	if err != nil {
		return "", err
	}
	return renderSVG(content)
}

// ConflictGraph renders the conflict matrix: one undirected edge per pair of directions
// that may never be GREEN together
func ConflictGraph(directions []core.Direction, conflicts ConflictFunc) string {
	var dot strings.Builder
	dot.WriteString("graph Conflicts {\n")
	dot.WriteString("  node [shape=circle style=filled fillcolor=lightgrey];\n\n")
	for _, d := range directions {
		dot.WriteString(fmt.Sprintf("  %q;\n", d.String()))
	}
	dot.WriteString("\n")
	for i, a := range directions {
		for _, b := range directions[i+1:] {
			if conflicts(a, b) {
				dot.WriteString(fmt.Sprintf("  %q -- %q [color=red];\n", a.String(), b.String()))
			}
		}
	}
	dot.WriteString("}\n")
	return dot.String()
}

func renderSVG(dotContent string) (string, error) {
	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}
	return out.String(), nil
}
