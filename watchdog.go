package lifeline

import (
	"context"
	"time"

	"github.com/anggasct/lifeline/pkg/core"
)

// watch arms a deadline at last heartbeat + timeout and posts a fail-safe when it passes
// without a newer heartbeat. While stalled, the next heartbeat posts the recovery.
func (c *Controller) watch(ctx context.Context) {
	timeout := c.cfg.Watchdog.Timeout
	timer := time.NewTimer(c.untilStall(time.Now(), timeout))
	defer timer.Stop()

	stalled := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-c.beat:
			if !stalled {
				continue
			}
			stalled = false
			c.stalled.Store(false)
			c.log.Info().Msg("detection feed recovered")
			c.post(event{kind: evRecovered, at: now})
			timer.Reset(c.untilStall(time.Now(), timeout))
		case now := <-timer.C:
			last := c.lastBeat.Load()
			silence := now.Sub(time.Unix(0, last))
			if silence < timeout {
				timer.Reset(timeout - silence)
				continue
			}
			stalled = true
			c.stalled.Store(true)
			c.log.Warn().Dur("silence", silence).Dur("timeout", timeout).Msg("detection feed stalled")
			c.post(event{kind: evFailSafe, at: now, silence: silence})
			if c.lastBeat.Load() != last {
				c.wake()
			}
		}
	}
}

func (c *Controller) untilStall(now time.Time, timeout time.Duration) time.Duration {
	return max(time.Unix(0, c.lastBeat.Load()).Add(timeout).Sub(now), 0)
}

// wake tells a stalled watchdog that a heartbeat arrived
func (c *Controller) wake() {
	select {
	case c.beat <- time.Now():
	default:
	}
}

// enterFailSafe drives every light RED, cancels all requests and holds ALL_RED_BUFFER
// until the feed recovers. Only EMERGENCY_STOP outranks it.
func (c *Controller) enterFailSafe(now time.Time, silence time.Duration) {
	if c.failsafe {
		return
	}
	c.failsafe = true
	c.stats.FailSafes++
	c.epoch.Add(1)

	fs := core.FailSafeEvent{Timestamp: now, Stalled: true, Silence: silence}
	cancelled := c.arb.Cancel()
	if len(cancelled) > 0 {
		fs.Cancelled = &cancelled[0]
	}
	for i := range cancelled {
		c.emitDecision(now, core.DecisionDropped, cancelled[i].Lane, "failsafe", &cancelled[i])
	}
	c.telemetry.emit(record{failsafe: &fs})

	if c.mode == core.ModeEmergencyStop {
		return
	}
	c.timer.cancel()
	c.emitChanges(c.sig.ForceAllRed(now, "failsafe"))
	c.transition(now, core.ModeAllRedBuffer, "watchdog_timeout", "")
}

// recoverFailSafe restarts the full all-red interval before automatic control resumes
func (c *Controller) recoverFailSafe(now time.Time) {
	if !c.failsafe {
		return
	}
	c.failsafe = false
	c.epoch.Add(1)
	c.telemetry.emit(record{failsafe: &core.FailSafeEvent{Timestamp: now, Stalled: false}})

	if c.mode != core.ModeAllRedBuffer {
		return
	}
	if !c.transition(now, core.ModeAllRedBuffer, "feed_recovered", "") {
		return
	}
	c.holdAllRed(now, "feed_recovered")
}
