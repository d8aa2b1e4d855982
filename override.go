package lifeline

import (
	"time"

	"github.com/anggasct/lifeline/pkg/core"
)

// enableOverride cancels pending arbiter activity and phase timers and freezes the lights
// for the operator. Watchdog supervision keeps running.
func (c *Controller) enableOverride(now time.Time) (bool, error) {
	const op = "enable_override"
	if !c.cfg.TrafficControl.ManualOverrideEnabled {
		return false, core.NewNotAuthorizedError(op, "manual override is disabled by configuration")
	}
	switch {
	case c.mode == core.ModeEmergencyStop:
		return false, core.NewAbortedError(op, "emergency stop latched")
	case c.failsafe:
		return false, core.NewAbortedError(op, "watchdog fail-safe active")
	case c.override:
		return false, nil
	}

	c.epoch.Add(1)
	c.timer.cancel()
	for _, r := range c.arb.Cancel() {
		r := r // per-iteration copy: the pointer outlives the loop (go1.21 loop semantics)
		c.emitDecision(now, core.DecisionDropped, r.Lane, "override", &r)
	}
	c.override = true
	c.transition(now, core.ModeOverride, "override_enabled", "")
	return true, nil
}

// disableOverride returns to automatic control through a fresh ALL_RED_BUFFER
func (c *Controller) disableOverride(now time.Time) (bool, error) {
	const op = "disable_override"
	if !c.cfg.TrafficControl.ManualOverrideEnabled {
		return false, core.NewNotAuthorizedError(op, "manual override is disabled by configuration")
	}
	if !c.override {
		return false, nil
	}
	if c.mode == core.ModeEmergencyStop {
		return false, core.NewAbortedError(op, "emergency stop latched")
	}

	c.epoch.Add(1)
	c.override = false
	if c.failsafe {
		// the fail-safe hold already owns the lights; recovery resumes automatic control
		return true, nil
	}
	c.beginBuffer(now, "override_disabled", "")
	return true, nil
}

// setSignal applies one operator light change. Override decides who may change the
// lights, never whether the conflict matrix holds.
func (c *Controller) setSignal(now time.Time, d core.Direction, color core.Color) (bool, error) {
	const op = "set_signal"
	parsed, err := core.ParseColor(string(color))
	if err != nil {
		return false, err
	}
	if !c.cfg.HasDirection(d) {
		return false, core.NewValidationError("direction", string(d), "unknown direction")
	}
	if !c.override {
		return false, core.NewNotAuthorizedError(op, "manual override is not enabled")
	}
	if c.mode != core.ModeOverride {
		return false, core.NewAbortedError(op, "controller is in "+c.mode.String())
	}

	change, err := c.sig.Set(d, parsed, now, "operator")
	if err != nil {
		return false, err
	}
	c.emitChange(change)
	return change != nil, nil
}

// emergencyStop forces every light RED at once, clears all pending work and latches
func (c *Controller) emergencyStop(now time.Time) bool {
	if c.mode == core.ModeEmergencyStop {
		return false
	}
	c.epoch.Add(1)
	c.timer.cancel()
	c.emitChanges(c.sig.ForceAllRed(now, "emergency_stop"))
	for _, r := range c.arb.Cancel() {
		r := r // per-iteration copy: the pointer outlives the loop (go1.21 loop semantics)
		c.emitDecision(now, core.DecisionDropped, r.Lane, "emergency_stop", &r)
	}
	c.override = false
	c.transition(now, core.ModeEmergencyStop, "emergency_stop", "")
	return true
}

// resume leaves EMERGENCY_STOP through a fresh ALL_RED_BUFFER. A stalled feed keeps the
// buffer on hold until the watchdog sees heartbeats again.
func (c *Controller) resume(now time.Time) bool {
	if c.mode != core.ModeEmergencyStop {
		return false
	}
	c.epoch.Add(1)
	c.beginBuffer(now, "resume", "")
	return true
}
