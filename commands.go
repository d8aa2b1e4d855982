package lifeline

import (
	"context"
	"time"

	"github.com/anggasct/lifeline/pkg/core"
)

type commandKind int

const (
	cmdActivatePriority commandKind = iota
	cmdDeactivatePriority
	cmdEnableOverride
	cmdDisableOverride
	cmdSetSignal
	cmdEmergencyStop
	cmdResume
)

var commandNames = [...]string{
	cmdActivatePriority:   "activate_priority",
	cmdDeactivatePriority: "deactivate_priority",
	cmdEnableOverride:     "enable_override",
	cmdDisableOverride:    "disable_override",
	cmdSetSignal:          "set_signal",
	cmdEmergencyStop:      "emergency_stop",
	cmdResume:             "resume",
}

func (k commandKind) String() string {
	return commandNames[k]
}

// epochChecked commands are aborted when a higher-precedence event landed between their
// submission and their processing
func (k commandKind) epochChecked() bool {
	switch k {
	case cmdActivatePriority, cmdEnableOverride, cmdDisableOverride, cmdSetSignal:
		return true
	default:
		return false
	}
}

type command struct {
	kind     commandKind
	lane     core.Direction
	color    core.Color
	duration time.Duration
	epoch    uint64
	reply    chan *CommandResult
}

// CommandResult represents the result of an operator command
type CommandResult struct {
	// Processed is true when the decision loop handled the command
	Processed bool
	// Changed is true when the command altered mode, lights or priority state
	Changed      bool
	PreviousMode core.Mode
	Mode         core.Mode
	Error        error
}

// Success returns true if the command was processed without error
func (r *CommandResult) Success() bool {
	return r.Processed && r.Error == nil
}

// ActivatePriority requests a priority episode for lane. A zero duration uses
// ambulance_green_duration; longer requests are trimmed to the extension cap. The request
// obeys the same contention rules as detected ones.
func (c *Controller) ActivatePriority(ctx context.Context, lane core.Direction, duration time.Duration) *CommandResult {
	return c.submit(ctx, &command{kind: cmdActivatePriority, lane: core.ParseDirection(string(lane)), duration: duration})
}

// DeactivatePriority ends the active episode. Without one it succeeds and changes nothing.
func (c *Controller) DeactivatePriority(ctx context.Context) *CommandResult {
	return c.submit(ctx, &command{kind: cmdDeactivatePriority})
}

// EnableOverride hands light control to the operator
func (c *Controller) EnableOverride(ctx context.Context) *CommandResult {
	return c.submit(ctx, &command{kind: cmdEnableOverride})
}

// DisableOverride returns control to automatic operation through a fresh all-red buffer
func (c *Controller) DisableOverride(ctx context.Context) *CommandResult {
	return c.submit(ctx, &command{kind: cmdDisableOverride})
}

// SetSignal sets one light while the override is enabled
func (c *Controller) SetSignal(ctx context.Context, direction core.Direction, color core.Color) *CommandResult {
	return c.submit(ctx, &command{
		kind:  cmdSetSignal,
		lane:  core.ParseDirection(string(direction)),
		color: color,
	})
}

// EmergencyStop forces every light RED and latches EMERGENCY_STOP until Resume
func (c *Controller) EmergencyStop(ctx context.Context) *CommandResult {
	return c.submit(ctx, &command{kind: cmdEmergencyStop})
}

// Resume leaves EMERGENCY_STOP through a fresh all-red buffer
func (c *Controller) Resume(ctx context.Context) *CommandResult {
	return c.submit(ctx, &command{kind: cmdResume})
}

// submit queues cmd and waits for its result. When ctx ends first the command may still
// be applied later.
func (c *Controller) submit(ctx context.Context, cmd *command) *CommandResult {
	op := cmd.kind.String()
	if !c.running.Load() {
		return &CommandResult{Error: core.NewNotStartedError(op)}
	}
	cmd.epoch = c.epoch.Load()
	cmd.reply = make(chan *CommandResult, 1)
	if !c.enqueue(event{kind: evCommand, at: time.Now(), cmd: cmd}) {
		return &CommandResult{Error: core.NewNotStartedError(op)}
	}

	select {
	case res := <-cmd.reply:
		return res
	case <-ctx.Done():
		return &CommandResult{Error: ctx.Err()}
	case <-c.done:
		select {
		case res := <-cmd.reply:
			return res
		default:
			return &CommandResult{Error: core.NewControllerError(core.ErrCodeNotStarted, op, "controller stopped")}
		}
	}
}

// handleCommand runs cmd and returns its result. The caller replies after publishing the
// snapshot so a caller that reads Snapshot right after the reply sees the effect.
func (c *Controller) handleCommand(now time.Time, cmd *command) *CommandResult {
	res := &CommandResult{Processed: true, PreviousMode: c.mode}

	if cmd.kind.epochChecked() && cmd.epoch != c.epoch.Load() {
		res.Error = core.NewAbortedError(cmd.kind.String(), "superseded by a higher-precedence event")
	} else {
		res.Changed, res.Error = c.execute(now, cmd)
	}
	res.Mode = c.mode

	c.telemetry.emit(record{command: &core.CommandRecord{
		Timestamp:    now,
		Op:           cmd.kind.String(),
		Processed:    res.Processed,
		Changed:      res.Changed,
		PreviousMode: res.PreviousMode,
		Mode:         res.Mode,
		Error:        res.Error,
	}})
	return res
}

func (c *Controller) execute(now time.Time, cmd *command) (bool, error) {
	switch cmd.kind {
	case cmdActivatePriority:
		return c.activatePriority(now, cmd.lane, cmd.duration)
	case cmdDeactivatePriority:
		return c.deactivatePriority(now), nil
	case cmdEnableOverride:
		return c.enableOverride(now)
	case cmdDisableOverride:
		return c.disableOverride(now)
	case cmdSetSignal:
		return c.setSignal(now, cmd.lane, cmd.color)
	case cmdEmergencyStop:
		return c.emergencyStop(now), nil
	case cmdResume:
		return c.resume(now), nil
	}
	return false, core.NewValidationError("command", cmd.kind.String(), "unknown command")
}

func (c *Controller) activatePriority(now time.Time, lane core.Direction, duration time.Duration) (bool, error) {
	const op = "activate_priority"
	if !c.cfg.HasDirection(lane) {
		return false, core.NewValidationError("direction", string(lane), "unknown direction")
	}
	if duration < 0 {
		return false, core.NewValidationError("duration", duration.String(), "duration must not be negative")
	}
	switch {
	case c.mode == core.ModeEmergencyStop:
		return false, core.NewAbortedError(op, "emergency stop latched")
	case c.failsafe:
		return false, core.NewAbortedError(op, "watchdog fail-safe active")
	case c.override:
		return false, core.NewNotAuthorizedError(op, "manual override is enabled")
	}

	c.applyOutcome(now, c.arb.Request(lane, duration, core.SourceManual, now))
	return true, nil
}

func (c *Controller) deactivatePriority(now time.Time) bool {
	return c.endEpisode(now, "deactivated")
}
