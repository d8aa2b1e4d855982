package lifeline

import (
	"testing"

	"github.com/anggasct/lifeline/pkg/core"
)

func detectionEvent(lane core.Direction) event {
	return event{kind: evDetection, detection: core.Detection{Lane: lane}}
}

func TestEventQueue_DropsOldestWhenFull(t *testing.T) {
	q := newEventQueue(2)

	for _, lane := range []core.Direction{core.North, core.East} {
		if _, evicted, ok := q.push(detectionEvent(lane)); !ok || evicted {
			t.Fatalf("Expected push of %s to fit, evicted=%v ok=%v", lane, evicted, ok)
		}
	}
	old, evicted, ok := q.push(detectionEvent(core.South))
	if !ok || !evicted {
		t.Fatalf("Expected the third push to evict, evicted=%v ok=%v", evicted, ok)
	}
	if old.detection.Lane != core.North {
		t.Errorf("Expected the oldest event to be evicted, got %s", old.detection.Lane)
	}
	if got := q.droppedIn(classDetection); got != 1 {
		t.Errorf("Expected 1 drop in detection class, got %d", got)
	}

	var lanes []core.Direction
	for {
		ev, ok := q.pop()
		if !ok {
			break
		}
		lanes = append(lanes, ev.detection.Lane)
	}
	if len(lanes) != 2 || lanes[0] != core.East || lanes[1] != core.South {
		t.Errorf("Expected [east south], got %v", lanes)
	}
}

func TestEventQueue_ServesHigherClassesFirst(t *testing.T) {
	q := newEventQueue(4)

	q.push(detectionEvent(core.North))
	q.push(event{kind: evCommand, cmd: &command{kind: cmdSetSignal}})
	q.push(event{kind: evTimer, phase: phaseCooldown})
	q.push(event{kind: evFailSafe})
	q.push(event{kind: evCommand, cmd: &command{kind: cmdEmergencyStop}})

	want := []class{classCritical, classSafety, classTimer, classOperator, classDetection}
	for i, w := range want {
		ev, ok := q.pop()
		if !ok {
			t.Fatalf("Expected event %d", i)
		}
		if got := ev.class(); got != w {
			t.Errorf("Pop %d: expected class %s, got %s", i, w, got)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("Expected an empty queue")
	}
}

func TestEventQueue_ClassesDoNotEvictEachOther(t *testing.T) {
	q := newEventQueue(1)

	q.push(event{kind: evCommand, cmd: &command{kind: cmdEmergencyStop}})
	q.push(detectionEvent(core.North))
	q.push(detectionEvent(core.East))

	if got := q.len(); got != 2 {
		t.Errorf("Expected 2 queued events, got %d", got)
	}
	if got := q.droppedIn(classCritical); got != 0 {
		t.Errorf("Expected no critical drops, got %d", got)
	}
	if got := q.droppedTotal(); got != 1 {
		t.Errorf("Expected 1 drop in total, got %d", got)
	}
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue(4)
	q.push(detectionEvent(core.North))
	q.push(event{kind: evRecovered})

	rest := q.close()
	if len(rest) != 2 || rest[0].kind != evRecovered {
		t.Errorf("Expected the remaining events in precedence order, got %d", len(rest))
	}
	if _, _, ok := q.push(detectionEvent(core.East)); ok {
		t.Error("Expected push after close to fail")
	}
}

func TestEventQueue_NotifyCoalesces(t *testing.T) {
	q := newEventQueue(4)
	q.push(detectionEvent(core.North))
	q.push(detectionEvent(core.East))

	select {
	case <-q.notify:
	default:
		t.Fatal("Expected a pending notification")
	}
	select {
	case <-q.notify:
		t.Error("Expected notifications to coalesce")
	default:
	}
}
