package observers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/lifeline/pkg/core"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func axisConflicts(a, b core.Direction) bool {
	axis := func(d core.Direction) int {
		if d == core.North || d == core.South {
			return 0
		}
		return 1
	}
	return a != b && axis(a) != axis(b)
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggingObserverTransition(t *testing.T) {
	var buf bytes.Buffer
	o := NewLoggingObserver(zerolog.New(&buf).Level(zerolog.InfoLevel))

	o.OnTransition(core.NewTransitionEvent(t0, core.ModeAllRedBuffer, core.ModePriorityActive, "priority_active", core.North, nil))
	o.OnSignalChange(core.SignalChange{Timestamp: t0, Direction: core.North, From: core.Red, To: core.Green})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1, "signal changes log at debug")
	assert.Equal(t, "mode transition", lines[0]["message"])
	assert.Equal(t, "ALL_RED_BUFFER", lines[0]["from"])
	assert.Equal(t, "PRIORITY_ACTIVE", lines[0]["to"])
	assert.Equal(t, "north", lines[0]["lane"])
	assert.Equal(t, "controller", lines[0]["component"])
}

func TestLoggingObserverLevels(t *testing.T) {
	var buf bytes.Buffer
	o := NewLoggingObserver(zerolog.New(&buf))

	o.OnTransition(core.NewTransitionEvent(t0, core.ModeNormal, core.ModeEmergencyStop, "emergency_stop", "", nil))
	o.OnFailSafe(core.FailSafeEvent{Timestamp: t0, Stalled: true, Silence: 4 * time.Second})
	o.OnCommand(core.CommandRecord{Op: "set_signal", Error: errors.New("conflict")})
	o.OnDrop(core.DroppedEvent{Class: "detection", Kind: "detection", Total: 3})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "warn", lines[2]["level"])
	assert.Equal(t, "conflict", lines[2]["error"])
	assert.Equal(t, float64(3), lines[3]["total"])
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewMetricsObserver(reg)
	require.NoError(t, err)

	o.OnTransition(core.NewTransitionEvent(t0, core.ModeNormal, core.ModeAllRedBuffer, "priority_request", core.North, nil))
	o.OnTransition(core.NewTransitionEvent(t0, core.ModeAllRedBuffer, core.ModePriorityActive, "priority_active", core.North, nil))
	o.OnSignalChange(core.SignalChange{Direction: core.North, From: core.Red, To: core.Green})
	o.OnDecision(core.Decision{Kind: core.DecisionRaised, Lane: core.North})
	o.OnDrop(core.DroppedEvent{Class: "detection"})
	o.OnStaleInput(core.StaleInput{})
	o.OnFailSafe(core.FailSafeEvent{Stalled: true})
	o.OnFailSafe(core.FailSafeEvent{Stalled: false})
	o.OnCommand(core.CommandRecord{Op: "resume", Processed: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(o.transitions.WithLabelValues("ALL_RED_BUFFER", "PRIORITY_ACTIVE", "priority_active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.mode.WithLabelValues("PRIORITY_ACTIVE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.mode.WithLabelValues("ALL_RED_BUFFER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.light.WithLabelValues("north")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.decisions.WithLabelValues("raised", "north")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.dropped.WithLabelValues("detection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.stale))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.failsafes))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.commands.WithLabelValues("resume", "true")))
}

func TestMetricsObserverDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetricsObserver(reg)
	require.NoError(t, err)

	_, err = NewMetricsObserver(reg)
	assert.Error(t, err)
}

func TestValidationObserverConflictingGreens(t *testing.T) {
	o := NewValidationObserver(axisConflicts, 2*time.Second)

	o.OnSignalChange(core.SignalChange{Timestamp: t0, Direction: core.North, From: core.Red, To: core.Green})
	o.OnSignalChange(core.SignalChange{Timestamp: t0, Direction: core.South, From: core.Red, To: core.Green})
	assert.False(t, o.HasViolations())

	o.OnSignalChange(core.SignalChange{Timestamp: t0, Direction: core.East, From: core.Red, To: core.Green})
	assert.True(t, o.HasViolations())
	assert.Len(t, o.GetViolations(), 2)
}

func TestValidationObserverPriorityNeedsBuffer(t *testing.T) {
	o := NewValidationObserver(axisConflicts, 2*time.Second)

	o.OnSignalChange(core.SignalChange{Timestamp: t0, Direction: core.East, From: core.Red, To: core.Green})
	o.OnSignalChange(core.SignalChange{Timestamp: t0.Add(time.Second), Direction: core.East, From: core.Green, To: core.Yellow})
	o.OnSignalChange(core.SignalChange{Timestamp: t0.Add(2 * time.Second), Direction: core.East, From: core.Yellow, To: core.Red})

	o.OnTransition(core.NewTransitionEvent(t0.Add(3*time.Second), core.ModeAllRedBuffer, core.ModePriorityActive, "priority_active", core.North, nil))
	require.True(t, o.HasViolations())
	assert.Contains(t, o.GetViolations()[0], "all red")

	o.Reset()
	o.OnTransition(core.NewTransitionEvent(t0, core.ModeNormal, core.ModePriorityActive, "priority_active", core.North, nil))
	assert.Contains(t, o.GetViolations()[0], "without an all-red buffer")
	assert.True(t, o.Visited(core.ModePriorityActive))
}

func TestValidationObserverTransitionTable(t *testing.T) {
	o := NewValidationObserver(axisConflicts, time.Second)
	o.AddAllowedTransition(core.ModeNormal, core.ModeAllRedBuffer)

	o.OnTransition(core.NewTransitionEvent(t0, core.ModeNormal, core.ModeAllRedBuffer, "cycle_advance", "", nil))
	assert.False(t, o.HasViolations())

	o.OnTransition(core.NewTransitionEvent(t0, core.ModeNormal, core.ModeCooldown, "bogus", "", nil))
	assert.True(t, o.HasViolations())
}

func TestStreamObserverDropsWhenFull(t *testing.T) {
	o := NewStreamObserver(1)
	o.OnTransition(core.NewTransitionEvent(t0, core.ModeNormal, core.ModeAllRedBuffer, "a", "", nil))
	o.OnTransition(core.NewTransitionEvent(t0, core.ModeAllRedBuffer, core.ModeNormal, "b", "", nil))

	ev := <-o.Events()
	assert.Equal(t, "a", ev.Reason)
	assert.Equal(t, uint64(1), o.Dropped())
}
