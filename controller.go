package lifeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/anggasct/lifeline/pkg/arbiter"
	"github.com/anggasct/lifeline/pkg/config"
	"github.com/anggasct/lifeline/pkg/core"
	"github.com/anggasct/lifeline/pkg/lanes"
	"github.com/anggasct/lifeline/pkg/signal"
)

// Stats are running counters of the controller
type Stats struct {
	Detections          uint64 `json:"detections"`
	Accepted            uint64 `json:"accepted"`
	Rejected            uint64 `json:"rejected"`
	Stale               uint64 `json:"stale"`
	Ignored             uint64 `json:"ignored"`
	PriorityActivations uint64 `json:"priority_activations"`
	FailSafes           uint64 `json:"failsafes"`
	Dropped             uint64 `json:"dropped"`
	TelemetryDropped    uint64 `json:"telemetry_dropped"`
}

// Snapshot is a consistent read-only view of the controller, published by the decision
// loop after every handled event
type Snapshot struct {
	Mode             core.Mode        `json:"mode"`
	Signals          core.SignalState `json:"signals"`
	Priority         *core.Request    `json:"priority,omitempty"`
	PriorityDeadline time.Time        `json:"priority_deadline,omitempty"`
	Queue            []core.Request   `json:"queue,omitempty"`
	Arbiter          string           `json:"arbiter"`
	Override         bool             `json:"override"`
	FailSafe         bool             `json:"failsafe"`
	CycleDirection   core.Direction   `json:"cycle_direction"`
	Stats            Stats            `json:"stats"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the lifecycle logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithObserver registers an observer before start
func WithObserver(observer Observer) Option {
	return func(c *Controller) {
		c.observers.AddObserver(observer)
	}
}

// Controller is the single-writer decision loop owning the signal state and system mode.
// All exported methods are safe for concurrent use.
type Controller struct {
	cfg       *config.Config
	log       zerolog.Logger
	observers *ObserverManager

	queue     *eventQueue
	telemetry *dispatcher
	snap      atomic.Pointer[Snapshot]
	epoch     atomic.Uint64
	lastBeat  atomic.Int64
	stalled   atomic.Bool
	beat      chan time.Time
	running   atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup

	lifecycle sync.Mutex
	started   bool
	stopped   bool
	cancel    context.CancelFunc

	// owned by the decision loop
	mapper   *lanes.Mapper
	arb      *arbiter.Arbiter
	sig      *signal.Machine
	timer    *phaseTimer
	mode     core.Mode
	override bool
	failsafe bool
	cycleIdx int
	stats    Stats
}

// New validates cfg and creates a stopped controller. The configuration is copied and
// never mutated afterwards.
func New(cfg *config.Config, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, core.NewConfigurationError("controller", "configuration is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	c := &Controller{
		cfg:       cfg,
		log:       zerolog.Nop(),
		observers: NewObserverManager(),
		queue:     newEventQueue(cfg.Queue.Capacity),
		beat:      make(chan time.Time, 1),
		done:      make(chan struct{}),
		mapper:    lanes.FromConfig(cfg),
		arb:       arbiter.New(arbiter.SettingsFromConfig(cfg)),
		sig:       signal.FromConfig(cfg, time.Now()),
		mode:      core.ModeNormal,
	}
	c.timer = newPhaseTimer(c.post)
	for _, opt := range opts {
		opt(c)
	}
	c.telemetry = newDispatcher(c.observers, cfg.Telemetry.Buffer)
	c.publish(time.Now())
	return c, nil
}

// Config returns a copy of the controller configuration
func (c *Controller) Config() *config.Config {
	return c.cfg.Clone()
}

// AddObserver registers an observer
func (c *Controller) AddObserver(observer Observer) {
	c.observers.AddObserver(observer)
}

// RemoveObserver unregisters an observer
func (c *Controller) RemoveObserver(observer Observer) {
	c.observers.RemoveObserver(observer)
}

// Start launches the decision loop, the watchdog and the telemetry dispatcher. The
// controller starts in ALL_RED_BUFFER and enters the round-robin once it completes.
func (c *Controller) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.started {
		return core.NewControllerError(core.ErrCodeInvalidState, "start", "controller already started")
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.lastBeat.Store(time.Now().UnixNano())
	c.running.Store(true)

	go c.telemetry.run()
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.watch(ctx)
	}()

	c.log.Info().
		Strs("directions", directionNames(c.cfg.Lanes.Directions)).
		Dur("watchdog_timeout", c.cfg.Watchdog.Timeout).
		Msg("controller started")
	return nil
}

// Stop terminates the controller and waits for its goroutines. Queued commands are
// answered with an error. Stop is idempotent.
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.started || c.stopped {
		return
	}
	c.stopped = true

	c.running.Store(false)
	c.cancel()
	c.wg.Wait()

	for _, ev := range c.queue.close() {
		if ev.kind == evCommand {
			ev.cmd.reply <- &CommandResult{
				Error: core.NewControllerError(core.ErrCodeNotStarted, ev.cmd.kind.String(), "controller stopped"),
			}
		}
	}
	c.telemetry.close()
	c.log.Info().Msg("controller stopped")
}

// Running reports whether the decision loop is accepting input
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Snapshot returns the latest published state. It never blocks the decision loop.
func (c *Controller) Snapshot() Snapshot {
	s := *c.snap.Load()
	s.Signals = s.Signals.Clone()
	s.Queue = slices.Clone(s.Queue)
	s.Stats.Dropped = c.queue.droppedTotal()
	s.Stats.TelemetryDropped = c.telemetry.dropped.Load()
	return s
}

// Mode returns the current system mode
func (c *Controller) Mode() core.Mode {
	return c.snap.Load().Mode
}

// post is used by producers that cannot fail: timers and the watchdog
func (c *Controller) post(ev event) {
	c.enqueue(ev)
}

// enqueue pushes ev and accounts for whatever the push evicted
func (c *Controller) enqueue(ev event) bool {
	old, evicted, ok := c.queue.push(ev)
	if !ok {
		return false
	}
	if evicted {
		cls := old.class()
		if old.kind == evCommand {
			old.cmd.reply <- &CommandResult{
				Error: core.NewAbortedError(old.cmd.kind.String(), "dropped under load"),
			}
		}
		c.telemetry.emit(record{drop: &core.DroppedEvent{
			Timestamp: time.Now(),
			Class:     cls.String(),
			Kind:      old.kind.String(),
			Total:     c.queue.droppedIn(cls),
		}})
	}
	return true
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	defer c.timer.cancel()

	now := time.Now()
	c.beginBuffer(now, "startup", "")
	c.publish(now)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.queue.notify:
		}
		for ctx.Err() == nil {
			ev, ok := c.queue.pop()
			if !ok {
				break
			}
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev event) {
	now := time.Now()
	var result *CommandResult
	switch ev.kind {
	case evDetection:
		c.handleDetection(now, ev.detection)
	case evFrame:
		c.handleFrame(now, ev.frame)
	case evLaneClear:
		c.handleLaneClear(now, ev.lane)
	case evTimer:
		c.handleTimer(now, ev.gen, ev.phase)
	case evFailSafe:
		c.enterFailSafe(now, ev.silence)
	case evRecovered:
		c.recoverFailSafe(now)
	case evCommand:
		result = c.handleCommand(now, ev.cmd)
	}

	if err := c.sig.Verify(); err != nil {
		c.internalFault(now, err)
	}
	c.publish(now)

	if result != nil {
		result.Mode = c.mode
		ev.cmd.reply <- result
	}
}

func (c *Controller) publish(now time.Time) {
	st := c.arb.Status()
	dirs := c.cfg.Lanes.Directions
	s := &Snapshot{
		Mode:             c.mode,
		Signals:          c.sig.Snapshot(),
		Priority:         st.Active,
		PriorityDeadline: st.Deadline,
		Queue:            st.Queue,
		Arbiter:          st.State.String(),
		Override:         c.override,
		FailSafe:         c.failsafe,
		CycleDirection:   dirs[c.cycleIdx%len(dirs)],
		Stats:            c.stats,
		UpdatedAt:        now,
	}
	c.snap.Store(s)
}

// allowedTransitions is the static system-mode transition table
var allowedTransitions = map[core.Mode][]core.Mode{
	core.ModeNormal: {
		core.ModeAllRedBuffer, core.ModeOverride, core.ModeEmergencyStop,
	},
	core.ModeAllRedBuffer: {
		core.ModeNormal, core.ModeAllRedBuffer, core.ModePriorityActive, core.ModeCooldown,
		core.ModeOverride, core.ModeEmergencyStop,
	},
	core.ModePriorityActive: {
		core.ModeCooldown, core.ModeAllRedBuffer, core.ModeOverride, core.ModeEmergencyStop,
	},
	core.ModeCooldown: {
		core.ModeAllRedBuffer, core.ModeOverride, core.ModeEmergencyStop,
	},
	core.ModeOverride: {
		core.ModeAllRedBuffer, core.ModeEmergencyStop,
	},
	core.ModeEmergencyStop: {
		core.ModeAllRedBuffer,
	},
}

// Transitions returns a copy of the system-mode transition table
func Transitions() map[core.Mode][]core.Mode {
	out := make(map[core.Mode][]core.Mode, len(allowedTransitions))
	for from, to := range allowedTransitions {
		out[from] = slices.Clone(to)
	}
	return out
}

// CanTransition reports whether the mode table permits from -> to
func CanTransition(from, to core.Mode) bool {
	return slices.Contains(allowedTransitions[from], to)
}

// transition moves the system mode. A change the table forbids is an internal fault.
func (c *Controller) transition(now time.Time, to core.Mode, reason string, lane core.Direction) bool {
	from := c.mode
	if !CanTransition(from, to) {
		c.internalFault(now, core.NewControllerError(core.ErrCodeInvalidState, "transition",
			fmt.Sprintf("illegal mode change %s -> %s (%s)", from, to, reason)))
		return false
	}
	c.mode = to
	ev := core.NewTransitionEvent(now, from, to, reason, lane, c.sig.Snapshot().Colors())
	c.telemetry.emit(record{transition: &ev})
	return true
}

// internalFault forces the safe state and latches EMERGENCY_STOP
func (c *Controller) internalFault(now time.Time, err error) {
	c.timer.cancel()
	c.emitChanges(c.sig.ForceAllRed(now, "internal_fault"))
	c.arb.Cancel()
	c.override = false
	c.epoch.Add(1)

	from := c.mode
	c.mode = core.ModeEmergencyStop
	ev := core.NewTransitionEvent(now, from, core.ModeEmergencyStop, "internal_fault", "", c.sig.Snapshot().Colors())
	c.telemetry.emit(record{transition: &ev})
	c.telemetry.emit(record{err: err})
}

func (c *Controller) emitChanges(changes []core.SignalChange) {
	for i := range changes {
		c.telemetry.emit(record{change: &changes[i]})
	}
}

func (c *Controller) emitChange(change *core.SignalChange) {
	if change != nil {
		c.telemetry.emit(record{change: change})
	}
}

func (c *Controller) emitDecision(now time.Time, kind core.DecisionKind, lane core.Direction, reason string, req *core.Request) {
	c.telemetry.emit(record{decision: &core.Decision{
		Timestamp: now,
		Kind:      kind,
		Lane:      lane,
		Reason:    reason,
		Request:   req,
	}})
}

func directionNames(dirs []core.Direction) []string {
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = d.String()
	}
	return out
}
