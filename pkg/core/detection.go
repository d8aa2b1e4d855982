package core

import (
	"time"

	"github.com/google/uuid"
)

// BBox is an axis-aligned bounding box in frame pixel coordinates
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Center returns the box center
func (b BBox) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Detection is one object reported by the external detector
type Detection struct {
	Timestamp  time.Time `json:"timestamp"`
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       BBox      `json:"bbox"`
	Lane       Direction `json:"lane,omitempty"`
}

// WithLane returns a copy of d resolved to lane
func (d Detection) WithLane(lane Direction) Detection {
	d.Lane = lane
	return d
}

// Source records who asked for a priority episode
type Source string

const (
	SourceDetection Source = "detection"
	SourceManual    Source = "manual"
)

// Request is a priority request for one lane
type Request struct {
	ID          string        `json:"id"`
	Lane        Direction     `json:"lane"`
	RequestedAt time.Time     `json:"requested_at"`
	Duration    time.Duration `json:"duration"`
	Source      Source        `json:"source"`
	LastSeen    time.Time     `json:"last_seen"`
}

// NewRequest creates a request with a fresh ID
func NewRequest(lane Direction, at time.Time, duration time.Duration, source Source) Request {
	return Request{
		ID:          uuid.New().String(),
		Lane:        lane,
		RequestedAt: at,
		Duration:    duration,
		Source:      source,
		LastSeen:    at,
	}
}
