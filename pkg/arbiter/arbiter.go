// Package arbiter decides when a lane gets an emergency-priority episode.
//
// The Arbiter is a plain state machine without goroutines or timers: every call takes
// the current time and the caller (the controller decision loop) schedules whatever
// timers the returned values ask for. It is not safe for concurrent use.
package arbiter

import (
	"fmt"
	"slices"
	"time"

	"github.com/anggasct/lifeline/pkg/config"
	"github.com/anggasct/lifeline/pkg/core"
)

// State of the arbiter
type State int

const (
	Idle State = iota
	Debouncing
	Active
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Debouncing:
		return "DEBOUNCING"
	case Active:
		return "ACTIVE"
	case Cooldown:
		return "COOLDOWN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Settings are the arbitration knobs taken from configuration
type Settings struct {
	DebounceCount  int
	DebounceWindow time.Duration
	DebounceGap    time.Duration
	GreenDuration  time.Duration
	ExtensionCap   time.Duration
	RequestTimeout time.Duration
	Precedence     []core.Direction
}

// SettingsFromConfig extracts arbiter settings
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DebounceCount:  cfg.Debounce.Count,
		DebounceWindow: cfg.Debounce.Window,
		DebounceGap:    cfg.Debounce.Gap,
		GreenDuration:  cfg.TrafficControl.AmbulanceGreenDuration,
		ExtensionCap:   cfg.TrafficControl.PriorityExtensionCap,
		RequestTimeout: cfg.TrafficControl.RequestTimeout,
		Precedence:     slices.Clone(cfg.Lanes.Precedence),
	}
}

// Outcome describes what an input did
type Outcome struct {
	Kind    core.DecisionKind
	Lane    core.Direction
	Reason  string
	Request *core.Request
	// Deadline is set for Extended and Capped outcomes of a started episode
	Deadline time.Time
}

// Status is a read-only view of the arbiter
type Status struct {
	State     State
	Active    *core.Request
	StartedAt time.Time
	Deadline  time.Time
	Queue     []core.Request
	Pending   map[core.Direction]int
}

type streak struct {
	count int
	first time.Time
	last  time.Time
}

// Arbiter holds debounce streaks, the active request and the contention queue
type Arbiter struct {
	settings Settings
	rank     map[core.Direction]int

	streaks   map[core.Direction]*streak
	active    *core.Request
	startedAt time.Time
	deadline  time.Time
	cooldown  bool
	queue     []core.Request
}

// New creates an idle arbiter
func New(settings Settings) *Arbiter {
	rank := make(map[core.Direction]int, len(settings.Precedence))
	for i, d := range settings.Precedence {
		rank[d] = i
	}
	return &Arbiter{
		settings: settings,
		rank:     rank,
		streaks:  make(map[core.Direction]*streak),
	}
}

// State returns the current arbiter state
func (a *Arbiter) State() State {
	switch {
	case a.active != nil:
		return Active
	case a.cooldown:
		return Cooldown
	case len(a.streaks) > 0:
		return Debouncing
	default:
		return Idle
	}
}

// Active returns a copy of the active request, or nil
func (a *Arbiter) Active() *core.Request {
	if a.active == nil {
		return nil
	}
	r := *a.active
	return &r
}

// Started reports whether the active episode has its lane GREEN
func (a *Arbiter) Started() bool {
	return a.active != nil && !a.startedAt.IsZero()
}

// Deadline is the end of the started episode
func (a *Arbiter) Deadline() time.Time {
	return a.deadline
}

// Observe feeds one qualifying detection for lane
func (a *Arbiter) Observe(lane core.Direction, at time.Time) Outcome {
	if a.active != nil && a.active.Lane == lane {
		a.active.LastSeen = at
		return a.extend(at, a.settings.GreenDuration, "detection")
	}
	if i := a.queued(lane); i >= 0 {
		a.queue[i].LastSeen = at
		req := a.queue[i]
		return Outcome{Kind: core.DecisionQueued, Lane: lane, Reason: "already queued", Request: &req}
	}

	s := a.streaks[lane]
	if s == nil || at.Sub(s.last) > a.settings.DebounceGap {
		s = &streak{first: at}
		a.streaks[lane] = s
	}
	s.count++
	s.last = at
	a.prune(at)

	if !a.debounced(s) {
		return Outcome{
			Kind:   core.DecisionDebouncing,
			Lane:   lane,
			Reason: fmt.Sprintf("%d/%d detections", s.count, a.settings.DebounceCount),
		}
	}
	delete(a.streaks, lane)

	req := core.NewRequest(lane, at, a.settings.GreenDuration, core.SourceDetection)
	return a.admit(req, "debounced")
}

// ObserveAll feeds qualifying detections for several lanes seen at the same instant. The
// lanes are observed in precedence order, so when more than one becomes eligible the
// precedence winner is raised and the others queue behind it.
func (a *Arbiter) ObserveAll(lanes []core.Direction, at time.Time) []Outcome {
	ordered := slices.Clone(lanes)
	slices.SortStableFunc(ordered, func(x, y core.Direction) int {
		return a.precedence(x) - a.precedence(y)
	})
	out := make([]Outcome, 0, len(ordered))
	for _, lane := range ordered {
		out = append(out, a.Observe(lane, at))
	}
	return out
}

// Request raises a manual request, skipping debounce. A zero duration means the
// configured priority green; anything longer than the extension cap is trimmed to it.
func (a *Arbiter) Request(lane core.Direction, duration time.Duration, source core.Source, now time.Time) Outcome {
	if duration <= 0 {
		duration = a.settings.GreenDuration
	}
	if duration > a.settings.ExtensionCap {
		duration = a.settings.ExtensionCap
	}

	if a.active != nil && a.active.Lane == lane {
		a.active.LastSeen = now
		if duration > a.active.Duration {
			a.active.Duration = duration
		}
		return a.extend(now, duration, string(source))
	}
	if i := a.queued(lane); i >= 0 {
		a.queue[i].LastSeen = now
		if duration > a.queue[i].Duration {
			a.queue[i].Duration = duration
		}
		req := a.queue[i]
		return Outcome{Kind: core.DecisionQueued, Lane: lane, Reason: "already queued", Request: &req}
	}

	delete(a.streaks, lane)
	return a.admit(core.NewRequest(lane, now, duration, source), string(source))
}

// Start marks the active episode's lane GREEN and returns its deadline
func (a *Arbiter) Start(now time.Time) (time.Time, bool) {
	if a.active == nil {
		return time.Time{}, false
	}
	a.startedAt = now
	a.deadline = now.Add(min(a.active.Duration, a.settings.ExtensionCap))
	return a.deadline, true
}

// Finish ends the active episode and enters cooldown. It returns the finished request,
// or nil when nothing was active.
func (a *Arbiter) Finish() *core.Request {
	if a.active == nil {
		return nil
	}
	done := a.active
	delete(a.streaks, done.Lane)
	a.active = nil
	a.startedAt = time.Time{}
	a.deadline = time.Time{}
	a.cooldown = true
	return done
}

// CooldownElapsed leaves cooldown. The earliest queued request, ties broken by precedence,
// becomes active. Queued detection requests not refreshed within the request timeout are
// discarded and returned as expired.
func (a *Arbiter) CooldownElapsed(now time.Time) (next *core.Request, expired []core.Request) {
	a.cooldown = false
	if a.active != nil {
		return nil, nil
	}

	kept := a.queue[:0]
	for _, r := range a.queue {
		if r.Source == core.SourceDetection && now.Sub(r.LastSeen) > a.settings.RequestTimeout {
			expired = append(expired, r)
			continue
		}
		kept = append(kept, r)
	}
	a.queue = kept
	if len(a.queue) == 0 {
		return nil, expired
	}

	slices.SortStableFunc(a.queue, func(x, y core.Request) int {
		if c := x.RequestedAt.Compare(y.RequestedAt); c != 0 {
			return c
		}
		return a.precedence(x.Lane) - a.precedence(y.Lane)
	})
	head := a.queue[0]
	a.queue = slices.Delete(a.queue, 0, 1)
	a.active = &head
	return a.Active(), expired
}

// Cancel drops every request and streak. It returns what was active or queued.
func (a *Arbiter) Cancel() []core.Request {
	var cancelled []core.Request
	if a.active != nil {
		cancelled = append(cancelled, *a.active)
	}
	cancelled = append(cancelled, a.queue...)

	a.active = nil
	a.startedAt = time.Time{}
	a.deadline = time.Time{}
	a.cooldown = false
	a.queue = nil
	clear(a.streaks)
	return cancelled
}

// Status returns a snapshot
func (a *Arbiter) Status() Status {
	st := Status{
		State:     a.State(),
		Active:    a.Active(),
		StartedAt: a.startedAt,
		Deadline:  a.deadline,
		Queue:     slices.Clone(a.queue),
	}
	if len(a.streaks) > 0 {
		st.Pending = make(map[core.Direction]int, len(a.streaks))
		for d, s := range a.streaks {
			st.Pending[d] = s.count
		}
	}
	return st
}

func (a *Arbiter) admit(req core.Request, reason string) Outcome {
	if a.active == nil && !a.cooldown {
		a.active = &req
		return Outcome{Kind: core.DecisionRaised, Lane: req.Lane, Reason: reason, Request: a.Active()}
	}
	a.queue = append(a.queue, req)
	return Outcome{Kind: core.DecisionQueued, Lane: req.Lane, Reason: reason, Request: &req}
}

func (a *Arbiter) extend(now time.Time, duration time.Duration, reason string) Outcome {
	out := Outcome{Kind: core.DecisionExtended, Lane: a.active.Lane, Reason: reason, Request: a.Active()}
	if a.startedAt.IsZero() {
		out.Reason = "episode not started"
		return out
	}

	limit := a.startedAt.Add(a.settings.ExtensionCap)
	candidate := now.Add(duration)
	if !candidate.Before(limit) {
		candidate = limit
		out.Kind = core.DecisionCapped
	}
	if candidate.After(a.deadline) {
		a.deadline = candidate
	}
	out.Deadline = a.deadline
	return out
}

func (a *Arbiter) debounced(s *streak) bool {
	if s.count >= a.settings.DebounceCount {
		return true
	}
	return a.settings.DebounceWindow > 0 && s.last.Sub(s.first) >= a.settings.DebounceWindow
}

// prune forgets streaks whose lane has gone quiet
func (a *Arbiter) prune(now time.Time) {
	for d, s := range a.streaks {
		if now.Sub(s.last) > a.settings.DebounceGap {
			delete(a.streaks, d)
		}
	}
}

func (a *Arbiter) queued(lane core.Direction) int {
	return slices.IndexFunc(a.queue, func(r core.Request) bool { return r.Lane == lane })
}

func (a *Arbiter) precedence(lane core.Direction) int {
	if r, ok := a.rank[lane]; ok {
		return r
	}
	return len(a.rank)
}
