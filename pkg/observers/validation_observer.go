package observers

import (
	"fmt"
	"sync"
	"time"

	"github.com/anggasct/lifeline/pkg/core"
)

// ConflictFunc reports whether two directions may never be GREEN together
type ConflictFunc func(a, b core.Direction) bool

// ValidationObserver replays the telemetry stream and records every safety violation it
// can see: conflicting greens, PRIORITY_ACTIVE entered without a full all-red interval and
// mode transitions outside the allowed table.
type ValidationObserver struct {
	conflicts          ConflictFunc
	allRed             time.Duration
	allowedTransitions map[core.Mode]map[core.Mode]bool
	colors             map[core.Direction]core.Color
	allRedSince        time.Time
	visited            map[core.Mode]bool
	violations         []string
	mutex              sync.RWMutex
}

// NewValidationObserver creates a validation observer. All directions start RED.
func NewValidationObserver(conflicts ConflictFunc, allRed time.Duration) *ValidationObserver {
	return &ValidationObserver{
		conflicts:          conflicts,
		allRed:             allRed,
		allowedTransitions: make(map[core.Mode]map[core.Mode]bool),
		colors:             make(map[core.Direction]core.Color),
		visited:            make(map[core.Mode]bool),
		violations:         make([]string, 0),
	}
}

// AddAllowedTransition adds an allowed transition. Without any, transitions are not checked.
func (o *ValidationObserver) AddAllowedTransition(from, to core.Mode) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, exists := o.allowedTransitions[from]; !exists {
		o.allowedTransitions[from] = make(map[core.Mode]bool)
	}
	o.allowedTransitions[from][to] = true
}

// OnTransition validates transitions
func (o *ValidationObserver) OnTransition(ev core.TransitionEvent) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.visited[ev.To] = true
	if len(o.allowedTransitions) > 0 && !o.allowedTransitions[ev.From][ev.To] {
		o.violations = append(o.violations, fmt.Sprintf(
			"invalid transition from %s to %s (%s)", ev.From, ev.To, ev.Reason))
	}
	if ev.To == core.ModePriorityActive {
		if ev.From != core.ModeAllRedBuffer {
			o.violations = append(o.violations, fmt.Sprintf(
				"%s entered from %s without an all-red buffer", ev.To, ev.From))
		} else if !o.isAllRed() || ev.Timestamp.Sub(o.allRedSince) < o.allRed {
			o.violations = append(o.violations, fmt.Sprintf(
				"%s entered after only %s of all red", ev.To, ev.Timestamp.Sub(o.allRedSince)))
		}
	}
}

// OnSignalChange validates the conflict matrix after every change
func (o *ValidationObserver) OnSignalChange(ch core.SignalChange) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	wasAllRed := o.isAllRed()
	o.colors[ch.Direction] = ch.To
	if !wasAllRed && o.isAllRed() {
		o.allRedSince = ch.Timestamp
	}
	if ch.To != core.Green {
		return
	}
	for d, c := range o.colors {
		if c == core.Green && o.conflicts(ch.Direction, d) {
			o.violations = append(o.violations, fmt.Sprintf(
				"%s and %s green together at %s", ch.Direction, d, ch.Timestamp.Format(time.RFC3339Nano)))
		}
	}
}

// OnError records errors
func (o *ValidationObserver) OnError(err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.violations = append(o.violations, fmt.Sprintf("error occurred: %v", err))
}

// OnDecision is not validated
func (o *ValidationObserver) OnDecision(core.Decision) {}

// OnDrop is not validated
func (o *ValidationObserver) OnDrop(core.DroppedEvent) {}

// OnStaleInput is not validated
func (o *ValidationObserver) OnStaleInput(core.StaleInput) {}

// OnFailSafe is not validated
func (o *ValidationObserver) OnFailSafe(core.FailSafeEvent) {}

// OnCommand is not validated
func (o *ValidationObserver) OnCommand(core.CommandRecord) {}

func (o *ValidationObserver) isAllRed() bool {
	for _, c := range o.colors {
		if c != core.Red {
			return false
		}
	}
	return true
}

// GetViolations returns all validation violations
func (o *ValidationObserver) GetViolations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make([]string, len(o.violations))
	copy(result, o.violations)
	return result
}

// Visited reports whether mode was ever entered
func (o *ValidationObserver) Visited(mode core.Mode) bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.visited[mode]
}

// HasViolations returns whether any violations occurred
func (o *ValidationObserver) HasViolations() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) > 0
}

// Reset resets the validation state
func (o *ValidationObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.colors = make(map[core.Direction]core.Color)
	o.allRedSince = time.Time{}
	o.visited = make(map[core.Mode]bool)
	o.violations = make([]string, 0)
}
