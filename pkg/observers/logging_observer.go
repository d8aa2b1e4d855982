// Package observers provides telemetry sinks for the controller
package observers

import (
	"github.com/rs/zerolog"

	"github.com/anggasct/lifeline/pkg/core"
)

// LoggingObserver writes controller telemetry as structured zerolog events. Transitions,
// fail-safes and rejected commands log at info or above; per-detection decisions and light
// changes log at debug.
type LoggingObserver struct {
	log zerolog.Logger
}

// NewLoggingObserver creates a logging observer tagged with component=controller
func NewLoggingObserver(log zerolog.Logger) *LoggingObserver {
	return &LoggingObserver{log: log.With().Str("component", "controller").Logger()}
}

// OnTransition logs mode transitions
func (o *LoggingObserver) OnTransition(ev core.TransitionEvent) {
	e := o.log.Info()
	if ev.To == core.ModeEmergencyStop {
		e = o.log.Warn()
	}
	e = e.Str("id", ev.ID).
		Stringer("from", ev.From).
		Stringer("to", ev.To).
		Str("reason", ev.Reason)
	if ev.Lane != "" {
		e = e.Stringer("lane", ev.Lane)
	}
	e.Msg("mode transition")
}

// OnSignalChange logs light changes
func (o *LoggingObserver) OnSignalChange(ch core.SignalChange) {
	o.log.Debug().
		Stringer("direction", ch.Direction).
		Stringer("from", ch.From).
		Stringer("to", ch.To).
		Str("reason", ch.Reason).
		Msg("signal change")
}

// OnDecision logs arbiter decisions
func (o *LoggingObserver) OnDecision(d core.Decision) {
	e := o.log.Debug()
	if d.Kind == core.DecisionRaised || d.Kind == core.DecisionDropped {
		e = o.log.Info()
	}
	if d.Request != nil {
		e = e.Str("request", d.Request.ID).Str("source", string(d.Request.Source))
	}
	e.Str("kind", string(d.Kind)).
		Stringer("lane", d.Lane).
		Str("reason", d.Reason).
		Msg("arbiter decision")
}

// OnDrop logs inputs lost to overload
func (o *LoggingObserver) OnDrop(d core.DroppedEvent) {
	o.log.Warn().
		Str("class", d.Class).
		Str("kind", d.Kind).
		Uint64("total", d.Total).
		Msg("event dropped")
}

// OnStaleInput logs discarded detections
func (o *LoggingObserver) OnStaleInput(s core.StaleInput) {
	o.log.Debug().
		Str("class", s.Detection.Class).
		Dur("age", s.Age).
		Msg("stale detection discarded")
}

// OnFailSafe logs watchdog activity
func (o *LoggingObserver) OnFailSafe(ev core.FailSafeEvent) {
	if !ev.Stalled {
		o.log.Info().Msg("fail-safe cleared, clearance buffer restarted")
		return
	}
	e := o.log.Error().Dur("silence", ev.Silence)
	if ev.Cancelled != nil {
		e = e.Stringer("cancelled_lane", ev.Cancelled.Lane)
	}
	e.Msg("fail-safe: detection feed stalled, all red")
}

// OnCommand logs operator commands
func (o *LoggingObserver) OnCommand(r core.CommandRecord) {
	e := o.log.Info()
	if r.Error != nil {
		e = o.log.Warn().Err(r.Error)
	}
	e.Str("op", r.Op).
		Bool("changed", r.Changed).
		Stringer("mode", r.Mode).
		Msg("operator command")
}

// OnError logs errors
func (o *LoggingObserver) OnError(err error) {
	o.log.Error().Err(err).Msg("controller error")
}
