package feed

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/lifeline"
	"github.com/anggasct/lifeline/pkg/core"
)

const sample = `# recorded on the north approach
{"at_ms": 0, "type": "detection", "detection": {"class": "ambulance", "confidence": 0.9, "bbox": {"x1": 300, "y1": 160, "x2": 340, "y2": 200}}}

{"at_ms": 10, "type": "frame", "frame": [{"class": "ambulance", "confidence": 0.8, "bbox": {"x1": 300, "y1": 160, "x2": 340, "y2": 200}}, {"class": "car", "confidence": 0.99, "bbox": {"x1": 900, "y1": 500, "x2": 940, "y2": 540}}]}
{"at_ms": 20, "type": "heartbeat"}
{"at_ms": 30, "type": "lane_clear", "lane": "north"}
{"at_ms": 40, "type": "command", "command": {"op": "set_signal", "lane": "east", "color": "green"}}
`

type fakeTarget struct {
	mu         sync.Mutex
	detections []core.Detection
	frames     int
	clears     []core.Direction
	beats      int
	ops        []string
}

func (f *fakeTarget) PushDetection(d core.Detection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detections = append(f.detections, d)
	return nil
}

func (f *fakeTarget) PushFrame(frame []core.Detection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	f.detections = append(f.detections, frame...)
	return nil
}

func (f *fakeTarget) LaneClear(lane core.Direction) error {
	f.clears = append(f.clears, lane)
	return nil
}

func (f *fakeTarget) Heartbeat() { f.beats++ }

func (f *fakeTarget) result(op string) *lifeline.CommandResult {
	f.ops = append(f.ops, op)
	if op == "set_signal" {
		return &lifeline.CommandResult{Processed: true, Error: core.NewNotAuthorizedError(op, "override off")}
	}
	return &lifeline.CommandResult{Processed: true}
}

func (f *fakeTarget) ActivatePriority(context.Context, core.Direction, time.Duration) *lifeline.CommandResult {
	return f.result("activate_priority")
}
func (f *fakeTarget) DeactivatePriority(context.Context) *lifeline.CommandResult {
	return f.result("deactivate_priority")
}
func (f *fakeTarget) EnableOverride(context.Context) *lifeline.CommandResult {
	return f.result("enable_override")
}
func (f *fakeTarget) DisableOverride(context.Context) *lifeline.CommandResult {
	return f.result("disable_override")
}
func (f *fakeTarget) SetSignal(context.Context, core.Direction, core.Color) *lifeline.CommandResult {
	return f.result("set_signal")
}
func (f *fakeTarget) EmergencyStop(context.Context) *lifeline.CommandResult {
	return f.result("emergency_stop")
}
func (f *fakeTarget) Resume(context.Context) *lifeline.CommandResult {
	return f.result("resume")
}

func TestReaderParsesRecords(t *testing.T) {
	r := NewReader(strings.NewReader(sample))

	var types []string
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, rec.Type)
	}
	assert.Equal(t, []string{TypeDetection, TypeFrame, TypeHeartbeat, TypeLaneClear, TypeCommand}, types)
}

func TestReaderRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"malformed":      `{"at_ms": 0, "type": `,
		"unknown type":   `{"at_ms": 0, "type": "radar"}`,
		"missing lane":   `{"at_ms": 0, "type": "lane_clear"}`,
		"missing op":     `{"at_ms": 0, "type": "command", "command": {}}`,
		"negative":       `{"at_ms": -5, "type": "heartbeat"}`,
		"no detection":   `{"at_ms": 0, "type": "detection"}`,
		"goes backwards": "{\"at_ms\": 50, \"type\": \"heartbeat\"}\n{\"at_ms\": 10, \"type\": \"heartbeat\"}",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewReader(strings.NewReader(input))
			var err error
			for err == nil {
				_, err = r.Next()
			}
			assert.NotErrorIs(t, err, io.EOF)
			assert.Contains(t, err.Error(), "feed line")
		})
	}
}

func TestReplayDrivesTarget(t *testing.T) {
	target := &fakeTarget{}
	p := NewReplayer(target, 0, zerolog.Nop())

	stats, err := p.Replay(context.Background(), NewReader(strings.NewReader(sample)))
	require.NoError(t, err)

	assert.Equal(t, Stats{Records: 5, Detections: 3, Commands: 1, FailedCommands: 1}, stats)
	assert.Equal(t, 5, target.beats)
	assert.Equal(t, 1, target.frames)
	assert.Equal(t, []core.Direction{core.North}, target.clears)
	assert.Equal(t, []string{"set_signal"}, target.ops)
	for _, d := range target.detections {
		assert.WithinDuration(t, time.Now(), d.Timestamp, time.Second, "detections are restamped")
	}
}

func TestReplayUnknownCommand(t *testing.T) {
	input := `{"at_ms": 0, "type": "command", "command": {"op": "self_destruct"}}`
	_, err := NewReplayer(&fakeTarget{}, 0, zerolog.Nop()).Replay(context.Background(), NewReader(strings.NewReader(input)))
	assert.ErrorContains(t, err, "self_destruct")
}

func TestReplayPacingHonorsContext(t *testing.T) {
	input := "{\"at_ms\": 0, \"type\": \"heartbeat\"}\n{\"at_ms\": 60000, \"type\": \"heartbeat\"}"
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	stats, err := NewReplayer(&fakeTarget{}, 1, zerolog.Nop()).Replay(ctx, NewReader(strings.NewReader(input)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, stats.Records)
}

func TestReplayAgainstController(t *testing.T) {
	cfg := lifeline.DefaultConfig()
	cfg.TrafficControl.AllRedDuration = 20 * time.Millisecond
	cfg.TrafficControl.YellowDuration = 10 * time.Millisecond
	c, err := lifeline.New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	var b strings.Builder
	for i := 0; i < 3; i++ {
		b.WriteString(`{"at_ms": 0, "type": "detection", "detection": {"class": "ambulance", "confidence": 0.9, "bbox": {"x1": 900, "y1": 140, "x2": 1000, "y2": 220}}}` + "\n")
	}
	_, err = NewReplayer(c, 0, zerolog.Nop()).Replay(context.Background(), NewReader(strings.NewReader(b.String())))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := c.Snapshot()
		return s.Mode == core.ModePriorityActive && s.Priority != nil && s.Priority.Lane == core.East
	}, 2*time.Second, 5*time.Millisecond)
}
