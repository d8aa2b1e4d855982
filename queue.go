package lifeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/anggasct/lifeline/pkg/core"
)

// class is the precedence class of a queued event. Lower values are served first.
type class int

const (
	classCritical class = iota
	classSafety
	classTimer
	classOperator
	classDetection
	numClasses
)

var classNames = [numClasses]string{
	classCritical:  "critical",
	classSafety:    "safety",
	classTimer:     "timer",
	classOperator:  "operator",
	classDetection: "detection",
}

func (c class) String() string {
	return classNames[c]
}

type eventKind int

const (
	evDetection eventKind = iota
	evFrame
	evLaneClear
	evTimer
	evFailSafe
	evRecovered
	evCommand
)

var eventKindNames = [...]string{
	evDetection: "detection",
	evFrame:     "frame",
	evLaneClear: "lane_clear",
	evTimer:     "timer",
	evFailSafe:  "failsafe",
	evRecovered: "recovered",
	evCommand:   "command",
}

func (k eventKind) String() string {
	return eventKindNames[k]
}

// event is one input to the decision loop
type event struct {
	kind      eventKind
	at        time.Time
	detection core.Detection
	frame     []core.Detection
	lane      core.Direction
	gen       uint64
	phase     phase
	silence   time.Duration
	cmd       *command
}

func (e event) class() class {
	switch e.kind {
	case evFailSafe, evRecovered:
		return classSafety
	case evTimer:
		return classTimer
	case evCommand:
		if e.cmd.kind == cmdEmergencyStop || e.cmd.kind == cmdResume {
			return classCritical
		}
		return classOperator
	default:
		return classDetection
	}
}

type ring struct {
	buf  []event
	head int
	size int
}

func (r *ring) push(ev event) (evicted event, full bool) {
	if r.size == len(r.buf) {
		evicted = r.buf[r.head]
		r.buf[r.head] = ev
		r.head = (r.head + 1) % len(r.buf)
		return evicted, true
	}
	r.buf[(r.head+r.size)%len(r.buf)] = ev
	r.size++
	return event{}, false
}

func (r *ring) pop() (event, bool) {
	if r.size == 0 {
		return event{}, false
	}
	ev := r.buf[r.head]
	r.buf[r.head] = event{}
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return ev, true
}

// eventQueue is a bounded multi-producer queue feeding the decision loop. Each precedence
// class has its own ring; a full ring drops its oldest entry.
type eventQueue struct {
	mu      sync.Mutex
	rings   [numClasses]ring
	closed  bool
	notify  chan struct{}
	dropped [numClasses]atomic.Uint64
}

func newEventQueue(capacity int) *eventQueue {
	q := &eventQueue{notify: make(chan struct{}, 1)}
	for i := range q.rings {
		q.rings[i].buf = make([]event, capacity)
	}
	return q
}

// push enqueues ev. When the ring was full the evicted event is returned with evicted=true.
// ok is false once the queue is closed.
func (q *eventQueue) push(ev event) (old event, evicted bool, ok bool) {
	c := ev.class()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return event{}, false, false
	}
	old, evicted = q.rings[c].push(ev)
	q.mu.Unlock()

	if evicted {
		q.dropped[c].Add(1)
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return old, evicted, true
}

// pop returns the oldest event of the highest non-empty class
func (q *eventQueue) pop() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.rings {
		if ev, ok := q.rings[i].pop(); ok {
			return ev, true
		}
	}
	return event{}, false
}

// close rejects further pushes and returns whatever was still queued
func (q *eventQueue) close() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	var rest []event
	for i := range q.rings {
		for {
			ev, ok := q.rings[i].pop()
			if !ok {
				break
			}
			rest = append(rest, ev)
		}
	}
	return rest
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i := range q.rings {
		n += q.rings[i].size
	}
	return n
}

func (q *eventQueue) droppedIn(c class) uint64 {
	return q.dropped[c].Load()
}

func (q *eventQueue) droppedTotal() uint64 {
	var n uint64
	for i := range q.dropped {
		n += q.dropped[i].Load()
	}
	return n
}
