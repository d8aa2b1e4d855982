// Package feed reads and replays recorded detector output.
//
// A feed is JSON lines, one record per line, each stamped with its offset from the start
// of the recording:
//
//	{"at_ms": 0,    "type": "detection", "detection": {"class": "ambulance", "confidence": 0.9, "bbox": {...}}}
//	{"at_ms": 40,   "type": "frame", "frame": [{...}, {...}]}
//	{"at_ms": 900,  "type": "lane_clear", "lane": "north"}
//	{"at_ms": 1200, "type": "command", "command": {"op": "set_signal", "lane": "south", "color": "green"}}
//
// Every record also counts as a heartbeat, so a gap in the recording longer than the
// watchdog timeout trips the fail-safe during replay.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/anggasct/lifeline"
	"github.com/anggasct/lifeline/pkg/core"
)

// Record types
const (
	TypeDetection = "detection"
	TypeFrame     = "frame"
	TypeLaneClear = "lane_clear"
	TypeCommand   = "command"
	TypeHeartbeat = "heartbeat"
)

// Command is an operator command embedded in a feed
type Command struct {
	Op         string         `json:"op"`
	Lane       core.Direction `json:"lane,omitempty"`
	Color      core.Color     `json:"color,omitempty"`
	DurationMS int            `json:"duration_ms,omitempty"`
}

// Record is one line of a feed
type Record struct {
	AtMS      int64            `json:"at_ms"`
	Type      string           `json:"type"`
	Detection *core.Detection  `json:"detection,omitempty"`
	Frame     []core.Detection `json:"frame,omitempty"`
	Lane      core.Direction   `json:"lane,omitempty"`
	Command   *Command         `json:"command,omitempty"`
}

// At returns the record offset
func (r Record) At() time.Duration {
	return time.Duration(r.AtMS) * time.Millisecond
}

func (r Record) validate() error {
	if r.AtMS < 0 {
		return fmt.Errorf("negative offset %d", r.AtMS)
	}
	switch r.Type {
	case TypeDetection:
		if r.Detection == nil {
			return errors.New("detection record without detection")
		}
	case TypeFrame:
	case TypeLaneClear:
		if r.Lane == "" {
			return errors.New("lane_clear record without lane")
		}
	case TypeCommand:
		if r.Command == nil || r.Command.Op == "" {
			return errors.New("command record without op")
		}
	case TypeHeartbeat:
	default:
		return fmt.Errorf("unknown record type %q", r.Type)
	}
	return nil
}

// Reader decodes a feed line by line
type Reader struct {
	scanner *bufio.Scanner
	line    int
	last    int64
}

// NewReader creates a feed reader
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Reader{scanner: s}
}

// Next returns the next record, or io.EOF. Blank lines and lines starting with # are
// skipped. Offsets must not go backwards.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return Record{}, fmt.Errorf("feed line %d: %w", r.line, err)
		}
		if err := rec.validate(); err != nil {
			return Record{}, fmt.Errorf("feed line %d: %w", r.line, err)
		}
		if rec.AtMS < r.last {
			return Record{}, fmt.Errorf("feed line %d: offset %d before %d", r.line, rec.AtMS, r.last)
		}
		r.last = rec.AtMS
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

// Target receives replayed input. *lifeline.Controller implements it.
type Target interface {
	PushDetection(d core.Detection) error
	PushFrame(frame []core.Detection) error
	LaneClear(lane core.Direction) error
	Heartbeat()

	ActivatePriority(ctx context.Context, lane core.Direction, duration time.Duration) *lifeline.CommandResult
	DeactivatePriority(ctx context.Context) *lifeline.CommandResult
	EnableOverride(ctx context.Context) *lifeline.CommandResult
	DisableOverride(ctx context.Context) *lifeline.CommandResult
	SetSignal(ctx context.Context, direction core.Direction, color core.Color) *lifeline.CommandResult
	EmergencyStop(ctx context.Context) *lifeline.CommandResult
	Resume(ctx context.Context) *lifeline.CommandResult
}

// Stats summarize a replay
type Stats struct {
	Records        int
	Detections     int
	Commands       int
	FailedCommands int
}

// Replayer feeds records into a target, pacing them by their offsets
type Replayer struct {
	target Target
	speed  float64
	log    zerolog.Logger
}

// NewReplayer creates a replayer. speed scales the pacing: 2 plays twice as fast, 0
// disables pacing.
func NewReplayer(target Target, speed float64, log zerolog.Logger) *Replayer {
	return &Replayer{target: target, speed: speed, log: log}
}

// Replay reads r until EOF or ctx ends. Detection timestamps are restamped to the replay
// clock so recordings never look stale.
func (p *Replayer) Replay(ctx context.Context, r *Reader) (Stats, error) {
	var stats Stats
	start := time.Now()
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		if err := p.wait(ctx, start, rec.At()); err != nil {
			return stats, err
		}

		stats.Records++
		p.target.Heartbeat()
		if err := p.apply(ctx, rec, &stats); err != nil {
			return stats, err
		}
	}
}

func (p *Replayer) wait(ctx context.Context, start time.Time, at time.Duration) error {
	if p.speed <= 0 {
		return ctx.Err()
	}
	due := start.Add(time.Duration(float64(at) / p.speed))
	d := time.Until(due)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Replayer) apply(ctx context.Context, rec Record, stats *Stats) error {
	now := time.Now()
	switch rec.Type {
	case TypeDetection:
		d := *rec.Detection
		d.Timestamp = now
		stats.Detections++
		return p.target.PushDetection(d)
	case TypeFrame:
		frame := make([]core.Detection, len(rec.Frame))
		for i, d := range rec.Frame {
			d.Timestamp = now
			frame[i] = d
		}
		stats.Detections += len(frame)
		return p.target.PushFrame(frame)
	case TypeLaneClear:
		return p.target.LaneClear(rec.Lane)
	case TypeCommand:
		stats.Commands++
		res, err := p.command(ctx, rec.Command)
		if err != nil {
			return err
		}
		if !res.Success() {
			stats.FailedCommands++
			p.log.Warn().Str("op", rec.Command.Op).Err(res.Error).Int64("at_ms", rec.AtMS).Msg("replayed command failed")
		}
	}
	return nil
}

func (p *Replayer) command(ctx context.Context, c *Command) (*lifeline.CommandResult, error) {
	switch strings.ToLower(c.Op) {
	case "activate_priority":
		return p.target.ActivatePriority(ctx, c.Lane, time.Duration(c.DurationMS)*time.Millisecond), nil
	case "deactivate_priority":
		return p.target.DeactivatePriority(ctx), nil
	case "enable_override":
		return p.target.EnableOverride(ctx), nil
	case "disable_override":
		return p.target.DisableOverride(ctx), nil
	case "set_signal":
		return p.target.SetSignal(ctx, c.Lane, c.Color), nil
	case "emergency_stop":
		return p.target.EmergencyStop(ctx), nil
	case "resume":
		return p.target.Resume(ctx), nil
	default:
		return nil, fmt.Errorf("unknown command op %q", c.Op)
	}
}
