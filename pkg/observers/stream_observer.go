package observers

import (
	"sync/atomic"

	"github.com/anggasct/lifeline/pkg/core"
)

// StreamObserver forwards transition events to a buffered channel, for dashboards and
// other consumers that prefer channels. A full channel drops the event and counts it.
type StreamObserver struct {
	ch      chan core.TransitionEvent
	dropped atomic.Uint64
}

// NewStreamObserver creates a stream with the given buffer size
func NewStreamObserver(buffer int) *StreamObserver {
	return &StreamObserver{ch: make(chan core.TransitionEvent, buffer)}
}

// Events returns the receive side of the stream
func (o *StreamObserver) Events() <-chan core.TransitionEvent {
	return o.ch
}

// Dropped returns how many events did not fit into the buffer
func (o *StreamObserver) Dropped() uint64 {
	return o.dropped.Load()
}

// OnTransition forwards the event
func (o *StreamObserver) OnTransition(ev core.TransitionEvent) {
	select {
	case o.ch <- ev:
	default:
		o.dropped.Add(1)
	}
}

// OnSignalChange is not streamed
func (o *StreamObserver) OnSignalChange(core.SignalChange) {}
