package lifeline

import (
	"testing"
	"time"
)

func TestPhaseTimer_StaleGenerationIgnored(t *testing.T) {
	fired := make(chan event, 4)
	pt := newPhaseTimer(func(ev event) { fired <- ev })
	defer pt.stop()

	now := time.Now()
	pt.arm(now, time.Hour, phaseCycleGreen)
	staleGen := pt.gen
	pt.arm(now, 5*time.Millisecond, phasePriority)

	if pt.current(staleGen, phaseCycleGreen) {
		t.Error("Expected the replaced timer to be stale")
	}

	select {
	case ev := <-fired:
		if ev.phase != phasePriority {
			t.Errorf("Expected the priority timer to fire, got %s", ev.phase)
		}
		if !pt.current(ev.gen, ev.phase) {
			t.Error("Expected the latest firing to be current")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected the timer to fire")
	}
}

func TestPhaseTimer_Cancel(t *testing.T) {
	fired := make(chan event, 1)
	pt := newPhaseTimer(func(ev event) { fired <- ev })

	pt.arm(time.Now(), 5*time.Millisecond, phaseCooldown)
	gen := pt.gen
	pt.cancel()

	if pt.current(gen, phaseCooldown) {
		t.Error("Expected a cancelled timer to be stale")
	}
	if !pt.due.IsZero() || pt.phase != phaseNone {
		t.Errorf("Expected cancel to reset the slot, got phase %s", pt.phase)
	}
	select {
	case ev := <-fired:
		// a firing racing the cancel is still rejected by its generation
		if pt.current(ev.gen, ev.phase) {
			t.Error("Expected a racing firing to be stale")
		}
	case <-time.After(30 * time.Millisecond):
	}
}

func TestPhaseTimer_Due(t *testing.T) {
	pt := newPhaseTimer(func(event) {})
	defer pt.stop()

	now := time.Now()
	pt.arm(now, 2*time.Second, phaseBufferAllRed)
	if got := pt.due.Sub(now); got != 2*time.Second {
		t.Errorf("Expected due in 2s, got %s", got)
	}
	if pt.phase.String() != "buffer_all_red" {
		t.Errorf("Unexpected phase name %q", pt.phase)
	}
}
