package lifeline

import (
	"fmt"
	"sync"

	"github.com/anggasct/lifeline/pkg/core"
)

// Observer receives the ordered telemetry stream of the controller
type Observer interface {
	// Required methods

	// OnTransition is called for every system-mode transition, in order
	OnTransition(event core.TransitionEvent)

	// OnSignalChange is called for every applied light change
	OnSignalChange(change core.SignalChange)
}

// ExtendedObserver provides additional optional observation methods
type ExtendedObserver interface {
	Observer

	// OnDecision is called for every detection or priority request that reached the arbiter
	OnDecision(decision core.Decision)

	// OnDrop is called when an input is lost to queue overload
	OnDrop(dropped core.DroppedEvent)

	// OnStaleInput is called when a detection is discarded for age
	OnStaleInput(stale core.StaleInput)

	// OnFailSafe is called when the watchdog trips or the feed recovers
	OnFailSafe(event core.FailSafeEvent)

	// OnCommand is called with the outcome of every operator command
	OnCommand(record core.CommandRecord)

	// OnError is called when an internal fault or an observer panic occurs
	OnError(err error)
}

// BaseObserver provides a default implementation with no-op methods
type BaseObserver struct{}

// OnTransition implements the required Observer method
func (o *BaseObserver) OnTransition(event core.TransitionEvent) {}

// OnSignalChange implements the required Observer method
func (o *BaseObserver) OnSignalChange(change core.SignalChange) {}

// OnDecision implements the optional ExtendedObserver method
func (o *BaseObserver) OnDecision(decision core.Decision) {}

// OnDrop implements the optional ExtendedObserver method
func (o *BaseObserver) OnDrop(dropped core.DroppedEvent) {}

// OnStaleInput implements the optional ExtendedObserver method
func (o *BaseObserver) OnStaleInput(stale core.StaleInput) {}

// OnFailSafe implements the optional ExtendedObserver method
func (o *BaseObserver) OnFailSafe(event core.FailSafeEvent) {}

// OnCommand implements the optional ExtendedObserver method
func (o *BaseObserver) OnCommand(record core.CommandRecord) {}

// OnError implements the optional ExtendedObserver method
func (o *BaseObserver) OnError(err error) {}

// ObserverManager manages a collection of observers. A panicking observer is reported
// through OnError and never stops delivery to the others.
type ObserverManager struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewObserverManager creates a new observer manager
func NewObserverManager() *ObserverManager {
	return &ObserverManager{
		observers: make([]Observer, 0),
	}
}

// AddObserver adds an observer to the manager
func (om *ObserverManager) AddObserver(observer Observer) {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.observers = append(om.observers, observer)
}

// RemoveObserver removes an observer from the manager
func (om *ObserverManager) RemoveObserver(observer Observer) {
	om.mu.Lock()
	defer om.mu.Unlock()
	for i, obs := range om.observers {
		if obs == observer {
			om.observers = append(om.observers[:i], om.observers[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered observers
func (om *ObserverManager) Len() int {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return len(om.observers)
}

func (om *ObserverManager) snapshot() []Observer {
	om.mu.RLock()
	defer om.mu.RUnlock()
	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)
	return observers
}

// safely runs fn and turns a panic into an OnError notification for that observer
func safely(observer Observer, method string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if extObs, ok := observer.(ExtendedObserver); ok {
				func() {
					defer func() { recover() }()
					extObs.OnError(fmt.Errorf("observer panic in %s: %v", method, r))
				}()
			}
		}
	}()
	fn()
}

// NotifyTransition notifies all observers of a mode transition
func (om *ObserverManager) NotifyTransition(event core.TransitionEvent) {
	for _, observer := range om.snapshot() {
		safely(observer, "OnTransition", func() { observer.OnTransition(event) })
	}
}

// NotifySignalChange notifies all observers of a light change
func (om *ObserverManager) NotifySignalChange(change core.SignalChange) {
	for _, observer := range om.snapshot() {
		safely(observer, "OnSignalChange", func() { observer.OnSignalChange(change) })
	}
}

// NotifyDecision notifies extended observers of an arbiter decision
func (om *ObserverManager) NotifyDecision(decision core.Decision) {
	om.notifyExtended("OnDecision", func(o ExtendedObserver) { o.OnDecision(decision) })
}

// NotifyDrop notifies extended observers of a dropped input
func (om *ObserverManager) NotifyDrop(dropped core.DroppedEvent) {
	om.notifyExtended("OnDrop", func(o ExtendedObserver) { o.OnDrop(dropped) })
}

// NotifyStaleInput notifies extended observers of a stale detection
func (om *ObserverManager) NotifyStaleInput(stale core.StaleInput) {
	om.notifyExtended("OnStaleInput", func(o ExtendedObserver) { o.OnStaleInput(stale) })
}

// NotifyFailSafe notifies extended observers of watchdog activity
func (om *ObserverManager) NotifyFailSafe(event core.FailSafeEvent) {
	om.notifyExtended("OnFailSafe", func(o ExtendedObserver) { o.OnFailSafe(event) })
}

// NotifyCommand notifies extended observers of a command outcome
func (om *ObserverManager) NotifyCommand(record core.CommandRecord) {
	om.notifyExtended("OnCommand", func(o ExtendedObserver) { o.OnCommand(record) })
}

// NotifyError notifies extended observers of errors
func (om *ObserverManager) NotifyError(err error) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			func() {
				defer func() { recover() }()
				extObs.OnError(err)
			}()
		}
	}
}

func (om *ObserverManager) notifyExtended(method string, fn func(ExtendedObserver)) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			safely(observer, method, func() { fn(extObs) })
		}
	}
}
