package observers

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anggasct/lifeline/pkg/core"
)

const namespace = "lifeline"

// MetricsObserver exports controller telemetry as Prometheus metrics. Collectors live on
// the registerer given to NewMetricsObserver.
type MetricsObserver struct {
	transitions *prometheus.CounterVec
	signals     *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	stale       prometheus.Counter
	failsafes   prometheus.Counter
	commands    *prometheus.CounterVec
	errors      prometheus.Counter
	mode        *prometheus.GaugeVec
	light       *prometheus.GaugeVec

	mutex sync.Mutex
	last  core.Mode
}

// NewMetricsObserver creates the collectors and registers them on reg
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	o := &MetricsObserver{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "System-mode transitions.",
		}, []string{"from", "to", "reason"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_changes_total",
			Help:      "Applied light changes.",
		}, []string{"direction", "color"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "arbiter",
			Name:      "decisions_total",
			Help:      "Arbiter decisions by kind.",
		}, []string{"kind", "lane"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Inputs dropped by the bounded event queue.",
		}, []string{"class"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_detections_total",
			Help:      "Detections discarded for age.",
		}),
		failsafes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "failsafes_total",
			Help:      "Watchdog fail-safe activations.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Operator commands by outcome.",
		}, []string{"op", "success"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Internal faults and observer errors.",
		}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "1 for the current system mode, 0 otherwise.",
		}, []string{"mode"}),
		light: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signal_green",
			Help:      "1 while the direction shows GREEN.",
		}, []string{"direction"}),
	}

	for _, c := range []prometheus.Collector{
		o.transitions, o.signals, o.decisions, o.dropped, o.stale,
		o.failsafes, o.commands, o.errors, o.mode, o.light,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	for _, m := range core.Modes() {
		o.mode.WithLabelValues(m.String()).Set(0)
	}
	return o, nil
}

// OnTransition records transition metrics
func (o *MetricsObserver) OnTransition(ev core.TransitionEvent) {
	o.transitions.WithLabelValues(ev.From.String(), ev.To.String(), ev.Reason).Inc()

	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.mode.WithLabelValues(o.last.String()).Set(0)
	o.mode.WithLabelValues(ev.To.String()).Set(1)
	o.last = ev.To
}

// OnSignalChange records light metrics
func (o *MetricsObserver) OnSignalChange(ch core.SignalChange) {
	o.signals.WithLabelValues(ch.Direction.String(), ch.To.String()).Inc()
	green := 0.0
	if ch.To == core.Green {
		green = 1
	}
	o.light.WithLabelValues(ch.Direction.String()).Set(green)
}

// OnDecision records arbiter decisions
func (o *MetricsObserver) OnDecision(d core.Decision) {
	o.decisions.WithLabelValues(string(d.Kind), d.Lane.String()).Inc()
}

// OnDrop records dropped inputs
func (o *MetricsObserver) OnDrop(d core.DroppedEvent) {
	o.dropped.WithLabelValues(d.Class).Inc()
}

// OnStaleInput records stale detections
func (o *MetricsObserver) OnStaleInput(core.StaleInput) {
	o.stale.Inc()
}

// OnFailSafe records fail-safe activations
func (o *MetricsObserver) OnFailSafe(ev core.FailSafeEvent) {
	if ev.Stalled {
		o.failsafes.Inc()
	}
}

// OnCommand records operator commands
func (o *MetricsObserver) OnCommand(r core.CommandRecord) {
	o.commands.WithLabelValues(r.Op, strconv.FormatBool(r.Processed && r.Error == nil)).Inc()
}

// OnError records errors
func (o *MetricsObserver) OnError(error) {
	o.errors.Inc()
}
