package core

import (
	"time"

	"github.com/google/uuid"
)

// TransitionEvent records one system-mode transition
type TransitionEvent struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	From      Mode                `json:"from"`
	To        Mode                `json:"to"`
	Reason    string              `json:"reason"`
	Lane      Direction           `json:"lane,omitempty"`
	Signals   map[Direction]Color `json:"signals"`
}

// NewTransitionEvent stamps a transition with a fresh ID
func NewTransitionEvent(at time.Time, from, to Mode, reason string, lane Direction, signals map[Direction]Color) TransitionEvent {
	return TransitionEvent{
		ID:        uuid.New().String(),
		Timestamp: at,
		From:      from,
		To:        to,
		Reason:    reason,
		Lane:      lane,
		Signals:   signals,
	}
}

// SignalChange records one applied light change
type SignalChange struct {
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	From      Color     `json:"from"`
	To        Color     `json:"to"`
	Reason    string    `json:"reason"`
}

// DecisionKind classifies what the arbiter did with an input
type DecisionKind string

const (
	DecisionIgnored    DecisionKind = "ignored"
	DecisionDebouncing DecisionKind = "debouncing"
	DecisionRaised     DecisionKind = "raised"
	DecisionExtended   DecisionKind = "extended"
	DecisionCapped     DecisionKind = "capped"
	DecisionQueued     DecisionKind = "queued"
	DecisionDropped    DecisionKind = "dropped"
)

// Decision is emitted for every detection that reaches the controller
type Decision struct {
	Timestamp time.Time    `json:"timestamp"`
	Kind      DecisionKind `json:"kind"`
	Lane      Direction    `json:"lane,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Request   *Request     `json:"request,omitempty"`
}

// DroppedEvent reports an input lost to queue overload
type DroppedEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Class     string    `json:"class"`
	Kind      string    `json:"kind"`
	Total     uint64    `json:"total"`
}

// FailSafeEvent reports watchdog activity
type FailSafeEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Stalled   bool          `json:"stalled"`
	Silence   time.Duration `json:"silence"`
	Cancelled *Request      `json:"cancelled,omitempty"`
}

// StaleInput reports a detection discarded for age
type StaleInput struct {
	Detection Detection     `json:"detection"`
	Age       time.Duration `json:"age"`
}

// CommandRecord reports the outcome of one operator command
type CommandRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Op           string    `json:"op"`
	Processed    bool      `json:"processed"`
	Changed      bool      `json:"changed"`
	PreviousMode Mode      `json:"previous_mode"`
	Mode         Mode      `json:"mode"`
	Error        error     `json:"-"`
}
