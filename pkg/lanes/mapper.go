// Package lanes maps detections to the intersection approach they were seen on.
package lanes

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/anggasct/lifeline/pkg/config"
	"github.com/anggasct/lifeline/pkg/core"
)

// Rect is a half-open rectangle: a point is inside when X1 <= x < X2 and Y1 <= y < Y2,
// so regions sharing an edge never both claim a point on it.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// Contains reports whether (x, y) lies inside r
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X1 && x < r.X2 && y >= r.Y1 && y < r.Y2
}

// Region is one configured lane area
type Region struct {
	Direction core.Direction
	Bounds    Rect
}

// Verdict explains what the mapper decided about a detection
type Verdict int

const (
	Accepted Verdict = iota
	BelowThreshold
	WrongClass
	OutsideRegions
	InvalidConfidence
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case BelowThreshold:
		return "below_threshold"
	case WrongClass:
		return "wrong_class"
	case OutsideRegions:
		return "outside_regions"
	case InvalidConfidence:
		return "invalid_confidence"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Mapper filters detections and resolves their lane. It is immutable after construction
// and safe for concurrent use.
type Mapper struct {
	regions   []Region
	classes   []string
	threshold float64
}

// NewMapper creates a mapper. Regions keep the given order, which is the tie-break for
// overlapping rectangles.
func NewMapper(regions []Region, classes []string, threshold float64) *Mapper {
	lowered := make([]string, len(classes))
	for i, c := range classes {
		lowered[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return &Mapper{
		regions:   slices.Clone(regions),
		classes:   lowered,
		threshold: threshold,
	}
}

// FromConfig builds a mapper from validated configuration
func FromConfig(cfg *config.Config) *Mapper {
	regions := make([]Region, 0, len(cfg.Lanes.Regions))
	for _, r := range cfg.Lanes.Regions {
		regions = append(regions, Region{
			Direction: r.Direction,
			Bounds:    Rect{X1: r.Bounds[0], Y1: r.Bounds[1], X2: r.Bounds[2], Y2: r.Bounds[3]},
		})
	}
	return NewMapper(regions, cfg.Detection.Classes, cfg.Detection.ConfidenceThreshold)
}

// Regions returns a copy of the configured regions in match order
func (m *Mapper) Regions() []Region {
	return slices.Clone(m.regions)
}

// Qualifies checks confidence and class. Confidence outside [0, 1], NaN included, is
// rejected before the threshold is considered.
func (m *Mapper) Qualifies(d core.Detection) Verdict {
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return InvalidConfidence
	}
	if d.Confidence < m.threshold {
		return BelowThreshold
	}
	if !slices.Contains(m.classes, strings.ToLower(strings.TrimSpace(d.Class))) {
		return WrongClass
	}
	return Accepted
}

// Resolve returns the direction whose region contains the bbox center, or
// core.DirectionUnknown
func (m *Mapper) Resolve(box core.BBox) core.Direction {
	x, y := box.Center()
	for _, r := range m.regions {
		if r.Bounds.Contains(x, y) {
			return r.Direction
		}
	}
	return core.DirectionUnknown
}

// Map applies Qualifies then Resolve. The returned detection carries the resolved lane.
func (m *Mapper) Map(d core.Detection) (core.Detection, Verdict) {
	if v := m.Qualifies(d); v != Accepted {
		return d, v
	}
	lane := m.Resolve(d.BBox)
	if lane == core.DirectionUnknown {
		return d.WithLane(lane), OutsideRegions
	}
	return d.WithLane(lane), Accepted
}

// BestPerLane maps a frame of detections and keeps the highest-confidence accepted
// detection for each lane. Rejected detections are returned with their verdicts.
func (m *Mapper) BestPerLane(frame []core.Detection) (accepted []core.Detection, rejected []Rejection) {
	best := make(map[core.Direction]int)
	for _, d := range frame {
		mapped, v := m.Map(d)
		if v != Accepted {
			rejected = append(rejected, Rejection{Detection: mapped, Verdict: v})
			continue
		}
		if i, ok := best[mapped.Lane]; ok {
			if mapped.Confidence > accepted[i].Confidence {
				accepted[i] = mapped
			}
			continue
		}
		best[mapped.Lane] = len(accepted)
		accepted = append(accepted, mapped)
	}
	slices.SortStableFunc(accepted, func(a, b core.Detection) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})
	return accepted, rejected
}

// Rejection pairs a dropped detection with the reason
type Rejection struct {
	Detection core.Detection
	Verdict   Verdict
}
