package lifeline

import (
	"time"

	"github.com/anggasct/lifeline/pkg/arbiter"
	"github.com/anggasct/lifeline/pkg/core"
	"github.com/anggasct/lifeline/pkg/lanes"
)

// PushDetection hands one detection to the decision loop. It never blocks; under overload
// the oldest queued detection is dropped and reported. A zero timestamp is stamped now.
func (c *Controller) PushDetection(d core.Detection) error {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	return c.push(event{kind: evDetection, at: time.Now(), detection: d}, "push_detection")
}

// PushFrame hands every detection of one video frame to the decision loop. Only the most
// confident qualifying detection per lane is arbitrated.
func (c *Controller) PushFrame(frame []core.Detection) error {
	now := time.Now()
	cp := make([]core.Detection, len(frame))
	for i, d := range frame {
		if d.Timestamp.IsZero() {
			d.Timestamp = now
		}
		cp[i] = d
	}
	return c.push(event{kind: evFrame, at: now, frame: cp}, "push_frame")
}

// LaneClear reports that the emergency vehicle on lane has left. An active episode for
// that lane ends early.
func (c *Controller) LaneClear(lane core.Direction) error {
	return c.push(event{kind: evLaneClear, at: time.Now(), lane: core.ParseDirection(string(lane))}, "lane_clear")
}

// Heartbeat signals that the detection feed is alive. It stores a timestamp and only
// wakes the watchdog while the fail-safe is engaged.
func (c *Controller) Heartbeat() {
	c.lastBeat.Store(time.Now().UnixNano())
	if c.stalled.Load() {
		c.wake()
	}
}

func (c *Controller) push(ev event, op string) error {
	if !c.running.Load() {
		return core.NewNotStartedError(op)
	}
	if !c.enqueue(ev) {
		return core.NewNotStartedError(op)
	}
	return nil
}

// fresh discards detections older than the freshness bound
func (c *Controller) fresh(now time.Time, d core.Detection) bool {
	age := now.Sub(d.Timestamp)
	if age <= c.cfg.Detection.Freshness {
		return true
	}
	c.stats.Stale++
	c.telemetry.emit(record{stale: &core.StaleInput{Detection: d, Age: age}})
	return false
}

func (c *Controller) handleDetection(now time.Time, d core.Detection) {
	c.stats.Detections++
	if !c.fresh(now, d) {
		return
	}
	mapped, verdict := c.mapper.Map(d)
	if verdict != lanes.Accepted {
		c.stats.Rejected++
		c.emitDecision(now, core.DecisionIgnored, mapped.Lane, verdict.String(), nil)
		return
	}
	c.stats.Accepted++
	c.arbitrate(now, mapped.Lane)
}

func (c *Controller) handleFrame(now time.Time, frame []core.Detection) {
	c.stats.Detections += uint64(len(frame))
	live := make([]core.Detection, 0, len(frame))
	for _, d := range frame {
		if c.fresh(now, d) {
			live = append(live, d)
		}
	}

	accepted, rejected := c.mapper.BestPerLane(live)
	for _, r := range rejected {
		c.stats.Rejected++
		c.emitDecision(now, core.DecisionIgnored, r.Detection.Lane, r.Verdict.String(), nil)
	}
	if len(accepted) == 0 {
		return
	}
	seen := make([]core.Direction, len(accepted))
	for i, d := range accepted {
		c.stats.Accepted++
		seen[i] = d.Lane
	}
	if c.ignored(now, seen...) {
		return
	}
	for _, out := range c.arb.ObserveAll(seen, now) {
		c.applyOutcome(now, out)
	}
}

// suppressed names the higher-precedence condition that keeps detections away from the
// arbiter, or returns ""
func (c *Controller) suppressed() string {
	switch {
	case c.mode == core.ModeEmergencyStop:
		return "emergency_stop"
	case c.failsafe:
		return "failsafe"
	case c.override:
		return "override"
	default:
		return ""
	}
}

func (c *Controller) arbitrate(now time.Time, lane core.Direction) {
	if c.ignored(now, lane) {
		return
	}
	c.applyOutcome(now, c.arb.Observe(lane, now))
}

// ignored reports and counts detections a higher-precedence condition keeps away from
// the arbiter
func (c *Controller) ignored(now time.Time, dirs ...core.Direction) bool {
	reason := c.suppressed()
	if reason == "" {
		return false
	}
	for _, lane := range dirs {
		c.stats.Ignored++
		c.emitDecision(now, core.DecisionIgnored, lane, reason, nil)
	}
	return true
}

// applyOutcome emits the decision and drives the mode change it implies
func (c *Controller) applyOutcome(now time.Time, out arbiter.Outcome) {
	c.emitDecision(now, out.Kind, out.Lane, out.Reason, out.Request)

	switch out.Kind {
	case core.DecisionRaised:
		if c.mode == core.ModeNormal {
			c.beginBuffer(now, "priority_request", out.Lane)
		}
	case core.DecisionExtended, core.DecisionCapped:
		if c.mode == core.ModePriorityActive && !out.Deadline.IsZero() {
			c.timer.arm(now, out.Deadline.Sub(now), phasePriority)
		}
	}
}

func (c *Controller) handleLaneClear(now time.Time, lane core.Direction) {
	active := c.arb.Active()
	if active == nil || active.Lane != lane {
		return
	}
	c.endEpisode(now, "lane_clear")
}
