package lifeline

import "time"

// phase names what the pending phase timer will do when it fires
type phase int

const (
	phaseNone phase = iota
	phaseCycleGreen
	phaseBufferYellow
	phaseBufferAllRed
	phasePriority
	phaseCooldownYellow
	phaseCooldown
)

var phaseNames = [...]string{
	phaseNone:           "none",
	phaseCycleGreen:     "cycle_green",
	phaseBufferYellow:   "buffer_yellow",
	phaseBufferAllRed:   "buffer_all_red",
	phasePriority:       "priority",
	phaseCooldownYellow: "cooldown_yellow",
	phaseCooldown:       "cooldown",
}

func (p phase) String() string {
	return phaseNames[p]
}

// phaseTimer is the single cancellable timer slot of the decision loop. Every arm or
// cancel bumps the generation; a firing whose generation is no longer current is stale
// and must be ignored. Only the decision loop touches it.
type phaseTimer struct {
	t     *time.Timer
	gen   uint64
	phase phase
	due   time.Time
	post  func(event)
}

func newPhaseTimer(post func(event)) *phaseTimer {
	return &phaseTimer{post: post}
}

// arm replaces any pending timer
func (p *phaseTimer) arm(now time.Time, d time.Duration, ph phase) {
	p.stop()
	p.gen++
	p.phase = ph
	p.due = now.Add(d)

	gen := p.gen
	p.t = time.AfterFunc(max(d, 0), func() {
		p.post(event{kind: evTimer, at: time.Now(), gen: gen, phase: ph})
	})
}

// cancel drops the pending timer
func (p *phaseTimer) cancel() {
	p.stop()
	p.gen++
	p.phase = phaseNone
	p.due = time.Time{}
}

// current reports whether a fired timer is still the pending one
func (p *phaseTimer) current(gen uint64, ph phase) bool {
	return gen == p.gen && ph == p.phase && ph != phaseNone
}

func (p *phaseTimer) stop() {
	if p.t != nil {
		p.t.Stop()
		p.t = nil
	}
}
