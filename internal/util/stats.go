package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide frame/session counter.
var Stats = &stats{}

type stats struct {
	FramesSent      atomic.Int64 // frames handed to the DataChannel without error
	FramesFailed    atomic.Int64 // frames dropped by a failed send
	FramesRecv      atomic.Int64 // frames decoded from the DataChannel
	FramesMalformed atomic.Int64 // inbound messages rejected by the codec
	BytesSent       atomic.Int64 // cumulative bytes written to DataChannel
	BytesRecv       atomic.Int64 // cumulative bytes read  from DataChannel
	SessionsOpened  atomic.Int64 // cumulative PeerSessions created
	SessionsClosed  atomic.Int64 // cumulative PeerSessions that reached CLOSED
}

func (s *stats) AddSent(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.FramesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddFailed()        { s.FramesFailed.Add(1) }
func (s *stats) AddMalformed()     { s.FramesMalformed.Add(1) }
func (s *stats) AddSessionOpened() { s.SessionsOpened.Add(1) }
func (s *stats) AddSessionClosed() { s.SessionsClosed.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics every
// interval. It stops when ctx is cancelled. A non-positive interval disables it.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevFrames, prevFailed int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				frames := Stats.FramesSent.Load() + Stats.FramesRecv.Load()
				failed := Stats.FramesFailed.Load() + Stats.FramesMalformed.Load()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs
				dF := frames - prevFrames
				dE := failed - prevFailed

				if dF > 0 || dE > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, dF, dE))
				}

				prevSent = sent
				prevRecv = recv
				prevFrames = frames
				prevFailed = failed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, frames, dropped int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Frames: %3d ✓ %3d ✗",
		formatBytes(inS),
		formatBytes(outS),
		frames,
		dropped,
	)
}
