package lifeline

import (
	"sync"
	"sync/atomic"

	"github.com/anggasct/lifeline/pkg/core"
)

// record is one telemetry item; exactly one field is set
type record struct {
	transition *core.TransitionEvent
	change     *core.SignalChange
	decision   *core.Decision
	drop       *core.DroppedEvent
	stale      *core.StaleInput
	failsafe   *core.FailSafeEvent
	command    *core.CommandRecord
	err        error
}

// dispatcher hands telemetry to observers on its own goroutine so the decision loop never
// waits on an observer. When the buffer is full new records are counted and discarded.
type dispatcher struct {
	observers *ObserverManager
	ch        chan record
	done      chan struct{}
	dropped   atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func newDispatcher(observers *ObserverManager, buffer int) *dispatcher {
	return &dispatcher{
		observers: observers,
		ch:        make(chan record, buffer),
		done:      make(chan struct{}),
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for r := range d.ch {
		d.deliver(r)
	}
}

func (d *dispatcher) deliver(r record) {
	switch {
	case r.transition != nil:
		d.observers.NotifyTransition(*r.transition)
	case r.change != nil:
		d.observers.NotifySignalChange(*r.change)
	case r.decision != nil:
		d.observers.NotifyDecision(*r.decision)
	case r.drop != nil:
		d.observers.NotifyDrop(*r.drop)
	case r.stale != nil:
		d.observers.NotifyStaleInput(*r.stale)
	case r.failsafe != nil:
		d.observers.NotifyFailSafe(*r.failsafe)
	case r.command != nil:
		d.observers.NotifyCommand(*r.command)
	case r.err != nil:
		d.observers.NotifyError(r.err)
	}
}

func (d *dispatcher) emit(r record) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- r:
	default:
		d.dropped.Add(1)
	}
}

// close stops intake and waits until everything buffered was delivered
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done
}
