package lifeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anggasct/lifeline/pkg/config"
	"github.com/anggasct/lifeline/pkg/core"
)

// TestObserver is a mock observer for testing that captures all telemetry
type TestObserver struct {
	mutex       sync.RWMutex
	Transitions []core.TransitionEvent
	Changes     []core.SignalChange
	Decisions   []core.Decision
	Drops       []core.DroppedEvent
	Stale       []core.StaleInput
	FailSafes   []core.FailSafeEvent
	Commands    []core.CommandRecord
	Errors      []error
}

// NewTestObserver creates a new test observer
func NewTestObserver() *TestObserver {
	return &TestObserver{}
}

// Observer interface implementations
func (o *TestObserver) OnTransition(ev core.TransitionEvent) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Transitions = append(o.Transitions, ev)
}

func (o *TestObserver) OnSignalChange(ch core.SignalChange) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Changes = append(o.Changes, ch)
}

// ExtendedObserver interface implementations
func (o *TestObserver) OnDecision(d core.Decision) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Decisions = append(o.Decisions, d)
}

func (o *TestObserver) OnDrop(d core.DroppedEvent) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Drops = append(o.Drops, d)
}

func (o *TestObserver) OnStaleInput(s core.StaleInput) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Stale = append(o.Stale, s)
}

func (o *TestObserver) OnFailSafe(ev core.FailSafeEvent) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.FailSafes = append(o.FailSafes, ev)
}

func (o *TestObserver) OnCommand(r core.CommandRecord) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Commands = append(o.Commands, r)
}

func (o *TestObserver) OnError(err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Errors = append(o.Errors, err)
}

// Helper methods for test assertions
func (o *TestObserver) TransitionList() []core.TransitionEvent {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return append([]core.TransitionEvent(nil), o.Transitions...)
}

func (o *TestObserver) ChangeList() []core.SignalChange {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return append([]core.SignalChange(nil), o.Changes...)
}

func (o *TestObserver) FailSafeList() []core.FailSafeEvent {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return append([]core.FailSafeEvent(nil), o.FailSafes...)
}

func (o *TestObserver) DecisionsOf(kind core.DecisionKind) []core.Decision {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	var out []core.Decision
	for _, d := range o.Decisions {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// FindTransition returns the index of the first transition at or after from that enters
// mode for reason ("" matches any reason), or -1
func (o *TestObserver) FindTransition(from int, mode core.Mode, reason string) int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	for i := from; i < len(o.Transitions); i++ {
		ev := o.Transitions[i]
		if ev.To == mode && (reason == "" || ev.Reason == reason) {
			return i
		}
	}
	return -1
}

func (o *TestObserver) LastTransition() *core.TransitionEvent {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	if len(o.Transitions) == 0 {
		return nil
	}
	ev := o.Transitions[len(o.Transitions)-1]
	return &ev
}

// Test configuration and controllers

// CreateTestConfig returns a configuration with millisecond phase timings. The round-robin
// green and the watchdog are long so they stay out of the way unless a test shortens them.
func CreateTestConfig() *config.Config {
	cfg := config.Default()
	cfg.TrafficControl.DefaultGreenDuration = 5 * time.Second
	cfg.TrafficControl.AmbulanceGreenDuration = 300 * time.Millisecond
	cfg.TrafficControl.YellowDuration = 20 * time.Millisecond
	cfg.TrafficControl.AllRedDuration = 30 * time.Millisecond
	cfg.TrafficControl.CooldownDuration = 50 * time.Millisecond
	cfg.TrafficControl.PriorityExtensionCap = 600 * time.Millisecond
	cfg.TrafficControl.RequestTimeout = 5 * time.Second
	cfg.Watchdog.Timeout = time.Hour
	cfg.Queue.Capacity = 64
	return cfg
}

// StartTestController creates and starts a controller with a recording observer. It is
// stopped when the test ends.
func StartTestController(t *testing.T, cfg *config.Config, extra ...Observer) (*Controller, *TestObserver) {
	t.Helper()
	observer := NewTestObserver()
	opts := []Option{WithObserver(observer)}
	for _, o := range extra {
		opts = append(opts, WithObserver(o))
	}
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("Expected no error creating controller, got: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Expected no error starting controller, got: %v", err)
	}
	t.Cleanup(c.Stop)
	return c, observer
}

// Detection builders

// AmbulanceAt returns a fresh ambulance detection centered on (x, y)
func AmbulanceAt(x, y, confidence float64) core.Detection {
	return core.Detection{
		Timestamp:  time.Now(),
		Class:      "ambulance",
		Confidence: confidence,
		BBox:       core.BBox{X1: x - 20, Y1: y - 20, X2: x + 20, Y2: y + 20},
	}
}

// regionCenters are inside the default regions
var regionCenters = map[core.Direction][2]float64{
	core.North: {320, 180},
	core.East:  {960, 180},
	core.South: {960, 540},
	core.West:  {320, 540},
}

// PushAmbulance pushes n qualifying detections for lane
func PushAmbulance(t *testing.T, c *Controller, lane core.Direction, n int) {
	t.Helper()
	center := regionCenters[lane]
	for i := 0; i < n; i++ {
		if err := c.PushDetection(AmbulanceAt(center[0], center[1], 0.95)); err != nil {
			t.Fatalf("Expected no error pushing detection, got: %v", err)
		}
	}
}

// Test assertions and utilities

// WaitFor polls cond until it holds or the timeout expires
func WaitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out after %s waiting for %s", timeout, msg)
}

// WaitForMode waits until the controller reports mode
func WaitForMode(t *testing.T, c *Controller, mode core.Mode) {
	t.Helper()
	WaitFor(t, 3*time.Second, "mode "+mode.String(), func() bool {
		return c.Mode() == mode
	})
}

// AssertMode checks the current mode
func AssertMode(t *testing.T, c *Controller, expected core.Mode) {
	t.Helper()
	if got := c.Mode(); got != expected {
		t.Errorf("Expected mode %s, got %s", expected, got)
	}
}

// AssertAllRed checks that every light in s is RED
func AssertAllRed(t *testing.T, s Snapshot) {
	t.Helper()
	for d, l := range s.Signals {
		if l.Color != core.Red {
			t.Errorf("Expected %s to be red, got %s", d, l.Color)
		}
	}
}

// AssertOnlyGreen checks that exactly the given directions are GREEN and the rest RED
func AssertOnlyGreen(t *testing.T, s Snapshot, greens ...core.Direction) {
	t.Helper()
	want := make(map[core.Direction]bool, len(greens))
	for _, d := range greens {
		want[d] = true
	}
	for d, l := range s.Signals {
		switch {
		case want[d] && l.Color != core.Green:
			t.Errorf("Expected %s to be green, got %s", d, l.Color)
		case !want[d] && l.Color != core.Red:
			t.Errorf("Expected %s to be red, got %s", d, l.Color)
		}
	}
}

// AssertCommandSucceeded checks that a command was processed without error
func AssertCommandSucceeded(t *testing.T, result *CommandResult) {
	t.Helper()
	if !result.Success() {
		t.Errorf("Expected command to succeed, got processed=%v error=%v", result.Processed, result.Error)
	}
}

// AssertErrorCode checks the error code carried by a command result
func AssertErrorCode(t *testing.T, result *CommandResult, expected core.ErrorCode) {
	t.Helper()
	if got := core.GetErrorCode(result.Error); got != expected {
		t.Errorf("Expected error code %s, got %s (%v)", expected, got, result.Error)
	}
}
