package arbiter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/lifeline/pkg/arbiter"
	"github.com/anggasct/lifeline/pkg/config"
	"github.com/anggasct/lifeline/pkg/core"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func newArbiter() *arbiter.Arbiter {
	return arbiter.New(arbiter.Settings{
		DebounceCount:  3,
		DebounceWindow: time.Second,
		DebounceGap:    500 * time.Millisecond,
		GreenDuration:  60 * time.Second,
		ExtensionCap:   120 * time.Second,
		RequestTimeout: 30 * time.Second,
		Precedence:     []core.Direction{core.North, core.South, core.East, core.West},
	})
}

func TestSingleDetectionDoesNotRaise(t *testing.T) {
	a := newArbiter()

	out := a.Observe(core.North, at(0))
	assert.Equal(t, core.DecisionDebouncing, out.Kind)
	assert.Equal(t, arbiter.Debouncing, a.State())
	assert.Nil(t, a.Active())
}

func TestRaiseAfterCount(t *testing.T) {
	a := newArbiter()

	a.Observe(core.North, at(0))
	a.Observe(core.North, at(100*time.Millisecond))
	out := a.Observe(core.North, at(200*time.Millisecond))

	require.Equal(t, core.DecisionRaised, out.Kind)
	require.NotNil(t, out.Request)
	assert.Equal(t, core.North, out.Request.Lane)
	assert.Equal(t, core.SourceDetection, out.Request.Source)
	assert.Equal(t, 60*time.Second, out.Request.Duration)
	assert.Equal(t, arbiter.Active, a.State())
}

func TestRaiseAfterWindow(t *testing.T) {
	a := arbiter.New(arbiter.Settings{
		DebounceCount:  100,
		DebounceWindow: time.Second,
		DebounceGap:    700 * time.Millisecond,
		GreenDuration:  time.Minute,
		ExtensionCap:   2 * time.Minute,
		RequestTimeout: time.Minute,
	})

	assert.Equal(t, core.DecisionDebouncing, a.Observe(core.East, at(0)).Kind)
	assert.Equal(t, core.DecisionDebouncing, a.Observe(core.East, at(600*time.Millisecond)).Kind)
	assert.Equal(t, core.DecisionRaised, a.Observe(core.East, at(1200*time.Millisecond)).Kind)
}

func TestGapResetsStreak(t *testing.T) {
	a := newArbiter()

	a.Observe(core.North, at(0))
	a.Observe(core.North, at(100*time.Millisecond))
	// quiet for longer than the gap
	out := a.Observe(core.North, at(2*time.Second))
	assert.Equal(t, core.DecisionDebouncing, out.Kind)
	assert.Equal(t, 1, a.Status().Pending[core.North])
}

func TestStaleStreaksArePruned(t *testing.T) {
	a := newArbiter()

	a.Observe(core.West, at(0))
	a.Observe(core.North, at(5*time.Second))

	st := a.Status()
	assert.NotContains(t, st.Pending, core.West)
	assert.Equal(t, 1, st.Pending[core.North])
}

func raise(t *testing.T, a *arbiter.Arbiter, lane core.Direction, from time.Duration) {
	t.Helper()
	for i := 0; i < 3; i++ {
		a.Observe(lane, at(from+time.Duration(i)*100*time.Millisecond))
	}
	require.Equal(t, arbiter.Active, a.State())
}

func TestStartSetsDeadline(t *testing.T) {
	a := newArbiter()
	raise(t, a, core.North, 0)
	assert.False(t, a.Started())

	deadline, ok := a.Start(at(3 * time.Second))
	require.True(t, ok)
	assert.True(t, a.Started())
	assert.Equal(t, at(63*time.Second), deadline)
}

func TestExtensionBeforeStartKeepsDeadline(t *testing.T) {
	a := newArbiter()
	raise(t, a, core.North, 0)

	out := a.Observe(core.North, at(time.Second))
	assert.Equal(t, core.DecisionExtended, out.Kind)
	assert.True(t, out.Deadline.IsZero())
}

func TestExtensionIsCapped(t *testing.T) {
	a := newArbiter()
	raise(t, a, core.North, 0)
	a.Start(at(0))

	out := a.Observe(core.North, at(30*time.Second))
	assert.Equal(t, core.DecisionExtended, out.Kind)
	assert.Equal(t, at(90*time.Second), out.Deadline)

	out = a.Observe(core.North, at(80*time.Second))
	assert.Equal(t, core.DecisionCapped, out.Kind)
	assert.Equal(t, at(120*time.Second), out.Deadline)

	out = a.Observe(core.North, at(119*time.Second))
	assert.Equal(t, core.DecisionCapped, out.Kind)
	assert.Equal(t, at(120*time.Second), a.Deadline())
}

func TestExtensionNeverShortens(t *testing.T) {
	a := newArbiter()
	a.Request(core.North, 100*time.Second, core.SourceManual, at(0))
	a.Start(at(0))

	out := a.Observe(core.North, at(time.Second))
	assert.Equal(t, at(100*time.Second), out.Deadline)
}

func TestOtherLaneQueuesWhileActive(t *testing.T) {
	a := newArbiter()
	raise(t, a, core.North, 0)
	a.Start(at(0))

	a.Observe(core.South, at(5*time.Second))
	a.Observe(core.South, at(5100*time.Millisecond))
	out := a.Observe(core.South, at(5200*time.Millisecond))
	require.Equal(t, core.DecisionQueued, out.Kind)
	assert.Equal(t, core.North, a.Active().Lane)

	// further sightings refresh the queued entry instead of duplicating it
	out = a.Observe(core.South, at(20*time.Second))
	assert.Equal(t, core.DecisionQueued, out.Kind)
	require.Len(t, a.Status().Queue, 1)
	assert.Equal(t, at(20*time.Second), a.Status().Queue[0].LastSeen)
}

func TestQueueServedOnlyAfterCooldown(t *testing.T) {
	a := newArbiter()
	raise(t, a, core.North, 0)
	a.Start(at(0))
	a.Request(core.South, 0, core.SourceManual, at(5*time.Second))

	done := a.Finish()
	require.NotNil(t, done)
	assert.Equal(t, core.North, done.Lane)
	assert.Equal(t, arbiter.Cooldown, a.State())
	assert.Nil(t, a.Active())

	// requests arriving during cooldown wait too
	out := a.Request(core.East, 0, core.SourceManual, at(61*time.Second))
	assert.Equal(t, core.DecisionQueued, out.Kind)

	next, expired := a.CooldownElapsed(at(65 * time.Second))
	assert.Empty(t, expired)
	require.NotNil(t, next)
	assert.Equal(t, core.South, next.Lane)
	assert.Equal(t, arbiter.Active, a.State())
	assert.False(t, a.Started())
	assert.Len(t, a.Status().Queue, 1)
}

func TestCooldownTieBrokenByPrecedence(t *testing.T) {
	a := newArbiter()
	a.Request(core.East, 0, core.SourceManual, at(0))
	a.Request(core.West, 0, core.SourceManual, at(time.Second))
	a.Request(core.South, 0, core.SourceManual, at(time.Second))
	a.Finish()

	next, _ := a.CooldownElapsed(at(10 * time.Second))
	require.NotNil(t, next)
	assert.Equal(t, core.South, next.Lane)
}

func TestQueuedDetectionRequestsExpire(t *testing.T) {
	a := newArbiter()
	raise(t, a, core.North, 0)
	raise(t, a, core.South, time.Second)
	a.Finish()

	next, expired := a.CooldownElapsed(at(90 * time.Second))
	assert.Nil(t, next)
	require.Len(t, expired, 1)
	assert.Equal(t, core.South, expired[0].Lane)
	assert.Equal(t, arbiter.Idle, a.State())
}

func TestManualDurationClampedToCap(t *testing.T) {
	a := newArbiter()
	out := a.Request(core.West, time.Hour, core.SourceManual, at(0))
	require.Equal(t, core.DecisionRaised, out.Kind)
	assert.Equal(t, 120*time.Second, out.Request.Duration)
}

func TestCancelClearsEverything(t *testing.T) {
	a := newArbiter()
	raise(t, a, core.North, 0)
	a.Request(core.East, 0, core.SourceManual, at(time.Second))
	a.Observe(core.West, at(time.Second))

	cancelled := a.Cancel()
	assert.Len(t, cancelled, 2)
	assert.Equal(t, arbiter.Idle, a.State())
	assert.Nil(t, a.Active())
	assert.Empty(t, a.Status().Queue)
	assert.Empty(t, a.Status().Pending)
}

func TestFinishWhenIdle(t *testing.T) {
	a := newArbiter()
	assert.Nil(t, a.Finish())
	assert.Equal(t, arbiter.Idle, a.State())
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.Default()
	s := arbiter.SettingsFromConfig(cfg)
	assert.Equal(t, cfg.Debounce.Count, s.DebounceCount)
	assert.Equal(t, cfg.TrafficControl.PriorityExtensionCap, s.ExtensionCap)
	assert.Equal(t, cfg.Lanes.Precedence, s.Precedence)
}

func TestObserveAllRaisesPrecedenceWinner(t *testing.T) {
	a := newArbiter()
	for _, d := range []time.Duration{0, 100 * time.Millisecond} {
		a.Observe(core.East, at(d))
		a.Observe(core.North, at(d))
	}

	outs := a.ObserveAll([]core.Direction{core.East, core.North}, at(200*time.Millisecond))
	require.Len(t, outs, 2)
	assert.Equal(t, core.DecisionRaised, outs[0].Kind)
	assert.Equal(t, core.North, outs[0].Lane)
	assert.Equal(t, core.DecisionQueued, outs[1].Kind)
	assert.Equal(t, core.East, outs[1].Lane)

	st := a.Status()
	require.NotNil(t, st.Active)
	assert.Equal(t, core.North, st.Active.Lane)
	require.Len(t, st.Queue, 1)
	assert.Equal(t, core.East, st.Queue[0].Lane)
}
