// Package pacer drives a bounded run of sequenced frames over a channel at a
// fixed rate.
package pacer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/1ureka/pointstream/internal/protocol"
	"github.com/1ureka/pointstream/internal/util"
)

// ErrChannelClosed is returned when the channel closes before it ever opened.
var ErrChannelClosed = errors.New("channel closed before opening")

// Channel is the sending side the pacer writes to. The pacer is its only
// writer for the duration of Run.
type Channel interface {
	Send(ctx context.Context, data []byte) error
	Ready() <-chan struct{}
	Done() <-chan struct{}
}

// Config describes one run.
type Config struct {
	FrequencyHz float64
	Duration    time.Duration
	PointCount  int
}

// Validate rejects non-positive parameters.
func (c Config) Validate() error {
	if c.FrequencyHz <= 0 || math.IsNaN(c.FrequencyHz) || math.IsInf(c.FrequencyHz, 0) {
		return fmt.Errorf("frequency must be positive, got %v", c.FrequencyHz)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	}
	if c.PointCount < 1 {
		return fmt.Errorf("point count must be positive, got %d", c.PointCount)
	}
	return nil
}

// FrameCount is round(duration * frequency).
func (c Config) FrameCount() int {
	return int(math.Round(c.Duration.Seconds() * c.FrequencyHz))
}

// Interval is 1 / frequency.
func (c Config) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.FrequencyHz)
}

// Report summarizes a finished run.
type Report struct {
	Planned   int  // frames the run was configured for
	Attempted int  // ticks that reached a send attempt
	Sent      int  // sends that returned no error
	Failed    int  // sends that returned an error (encode or transport)
	Closed    bool // the channel closed before all ticks ran
}

// Option customizes Run.
type Option func(*runner)

// WithAfter replaces time.After for the inter-tick sleep.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(r *runner) { r.after = after }
}

// WithEncoder replaces protocol.Encode.
func WithEncoder(encode func(seq uint32, pointCount int) ([]byte, error)) Option {
	return func(r *runner) { r.encode = encode }
}

type runner struct {
	after  func(time.Duration) <-chan time.Time
	encode func(seq uint32, pointCount int) ([]byte, error)
}

// Run waits for ch to become ready, then emits frames 0..FrameCount()-1, one
// per interval. A failed send is logged and counted; the run continues. The
// run ends early if ch closes or ctx is cancelled.
func Run(ctx context.Context, ch Channel, cfg Config, opts ...Option) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}

	r := &runner{after: time.After, encode: protocol.Encode}
	for _, opt := range opts {
		opt(r)
	}

	report := Report{Planned: cfg.FrameCount()}
	interval := cfg.Interval()

	// Phase 1: wait for the channel to open.
	select {
	case <-ch.Ready():
	case <-ch.Done():
		return report, ErrChannelClosed
	case <-ctx.Done():
		return report, ctx.Err()
	}

	util.LogInfo("beginning transmission of %d frames (%d points, every %v)", report.Planned, cfg.PointCount, interval)

	// Phase 2: one frame per tick.
	for seq := 0; seq < report.Planned; seq++ {
		select {
		case <-ch.Done():
			report.Closed = true
			util.LogWarning("channel closed after %d/%d frames", seq, report.Planned)
			return report, nil
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		report.Attempted++
		if n, err := r.sendFrame(ctx, ch, uint32(seq), cfg.PointCount, interval); err != nil {
			report.Failed++
			util.Stats.AddFailed()
			util.LogWarning("error sending frame %d/%d: %v", seq+1, report.Planned, err)
		} else {
			report.Sent++
			util.Stats.AddSent(n)
			util.LogDebug("sent frame %d/%d", seq+1, report.Planned)
		}

		select {
		case <-r.after(interval):
		case <-ch.Done():
			if seq+1 < report.Planned {
				report.Closed = true
				util.LogWarning("channel closed after %d/%d frames", seq+1, report.Planned)
			}
			return report, nil
		case <-ctx.Done():
			return report, ctx.Err()
		}
	}

	util.LogSuccess("data stream transmission completed: %d sent, %d failed", report.Sent, report.Failed)
	return report, nil
}

// sendFrame encodes and sends one frame, bounding the send by one interval
// so a stalled channel cannot hold the loop.
func (r *runner) sendFrame(ctx context.Context, ch Channel, seq uint32, pointCount int, interval time.Duration) (int, error) {
	data, err := r.encode(seq, pointCount)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	if err := ch.Send(sendCtx, data); err != nil {
		return 0, err
	}
	return len(data), nil
}
