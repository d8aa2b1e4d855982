package lifeline

import (
	"time"

	"github.com/anggasct/lifeline/pkg/core"
)

// beginBuffer enters ALL_RED_BUFFER: greens clear through YELLOW, then every direction
// holds RED for all_red_duration before anything may turn GREEN again.
func (c *Controller) beginBuffer(now time.Time, reason string, lane core.Direction) {
	c.timer.cancel()
	if !c.transition(now, core.ModeAllRedBuffer, reason, lane) {
		return
	}
	c.emitChanges(c.sig.ClearGreens(now, reason))

	if c.failsafe {
		c.emitChanges(c.sig.ForceAllRed(now, "failsafe"))
		return
	}
	if c.sig.AllRed() {
		c.timer.arm(now, c.cfg.TrafficControl.AllRedDuration, phaseBufferAllRed)
		return
	}
	c.timer.arm(now, c.cfg.TrafficControl.YellowDuration, phaseBufferYellow)
}

// holdAllRed forces RED everywhere and restarts the full clearance interval
func (c *Controller) holdAllRed(now time.Time, reason string) {
	c.emitChanges(c.sig.ForceAllRed(now, reason))
	c.timer.arm(now, c.cfg.TrafficControl.AllRedDuration, phaseBufferAllRed)
}

// resolveNext picks the mode that follows a completed buffer, highest precedence first
func (c *Controller) resolveNext(now time.Time) {
	switch {
	case c.failsafe:
		return
	case c.override:
		c.transition(now, core.ModeOverride, "override", "")
	case c.arb.Active() != nil && !c.arb.Started():
		c.startEpisode(now)
	default:
		c.startCycle(now)
	}
}

func (c *Controller) startCycle(now time.Time) {
	dirs := c.cfg.Lanes.Directions
	d := dirs[c.cycleIdx%len(dirs)]
	if !c.transition(now, core.ModeNormal, "cycle", d) {
		return
	}
	change, err := c.sig.Set(d, core.Green, now, "cycle")
	if err != nil {
		c.internalFault(now, err)
		return
	}
	c.emitChange(change)
	c.timer.arm(now, c.cfg.TrafficControl.DefaultGreenDuration, phaseCycleGreen)
}

func (c *Controller) startEpisode(now time.Time) {
	req := c.arb.Active()
	if !c.transition(now, core.ModePriorityActive, "priority_active", req.Lane) {
		return
	}
	change, err := c.sig.Set(req.Lane, core.Green, now, "priority")
	if err != nil {
		c.internalFault(now, err)
		return
	}
	c.emitChange(change)

	deadline, _ := c.arb.Start(now)
	c.stats.PriorityActivations++
	c.timer.arm(now, deadline.Sub(now), phasePriority)
}

// endEpisode finishes the active priority request and enters COOLDOWN. It reports
// whether anything was active.
func (c *Controller) endEpisode(now time.Time, reason string) bool {
	done := c.arb.Finish()
	if done == nil {
		return false
	}
	pending, due := c.timer.phase, c.timer.due
	c.timer.cancel()
	if !c.transition(now, core.ModeCooldown, reason, done.Lane) {
		return true
	}

	if c.sig.Color(done.Lane) == core.Green {
		change, err := c.sig.Set(done.Lane, core.Yellow, now, reason)
		if err != nil {
			c.internalFault(now, err)
			return true
		}
		c.emitChange(change)
		c.timer.arm(now, c.cfg.TrafficControl.YellowDuration, phaseCooldownYellow)
		return true
	}
	if pending == phaseBufferYellow && !c.sig.AllRed() {
		// the clearance yellow keeps its remaining time
		c.timer.arm(now, due.Sub(now), phaseCooldownYellow)
		return true
	}
	c.emitChanges(c.sig.ForceAllRed(now, reason))
	c.timer.arm(now, c.cfg.TrafficControl.CooldownDuration, phaseCooldown)
	return true
}

func (c *Controller) handleTimer(now time.Time, gen uint64, ph phase) {
	if !c.timer.current(gen, ph) {
		return
	}
	c.timer.phase = phaseNone

	switch ph {
	case phaseCycleGreen:
		dirs := c.cfg.Lanes.Directions
		c.cycleIdx = (c.cycleIdx + 1) % len(dirs)
		c.beginBuffer(now, "cycle_advance", dirs[c.cycleIdx])
	case phaseBufferYellow:
		c.holdAllRed(now, "clearance")
	case phaseBufferAllRed:
		c.resolveNext(now)
	case phasePriority:
		c.endEpisode(now, "priority_expired")
	case phaseCooldownYellow:
		c.emitChanges(c.sig.ForceAllRed(now, "cooldown"))
		c.timer.arm(now, c.cfg.TrafficControl.CooldownDuration, phaseCooldown)
	case phaseCooldown:
		next, expired := c.arb.CooldownElapsed(now)
		for i := range expired {
			c.emitDecision(now, core.DecisionDropped, expired[i].Lane, "request_timeout", &expired[i])
		}
		lane := core.Direction("")
		if next != nil {
			lane = next.Lane
			c.emitDecision(now, core.DecisionRaised, next.Lane, "dequeued", next)
		}
		c.beginBuffer(now, "cooldown_elapsed", lane)
	}
}
