// Package app contains the top-level orchestration for the producer and
// consumer roles.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/pointstream/internal/config"
	"github.com/1ureka/pointstream/internal/pacer"
	"github.com/1ureka/pointstream/internal/signaling"
	"github.com/1ureka/pointstream/internal/transport"
	"github.com/1ureka/pointstream/internal/util"
)

// flushTimeout bounds waiting for the last frames to be acknowledged.
const flushTimeout = 10 * time.Second

func transportOptions(cfg config.Config) transport.Options {
	return transport.Options{
		ICEServers:      cfg.ICEServers,
		MaxMessageBytes: cfg.ReceiveLimit(),
	}
}

// RunProducer orchestrates the full producer lifecycle:
//  1. Establish a session with the consumer through the relay
//  2. Stream frames at the configured rate for the configured duration
//  3. Wait for the consumer to acknowledge every sent frame
//  4. Close the session
func RunProducer(ctx context.Context, cfg config.Config) (pacer.Report, error) {
	util.StartStatsReporter(ctx, cfg.StatsInterval)

	sess, ch, err := signaling.EstablishAsProducer(ctx, signaling.ProducerConfig{
		Relay:          cfg.RelayURL,
		Label:          cfg.ChannelLabel,
		ConnectTimeout: cfg.ConnectTimeout,
		Transport:      transportOptions(cfg),
	})
	if err != nil {
		return pacer.Report{}, fmt.Errorf("failed to establish session: %w", err)
	}
	defer sess.Close()

	sess.OnStateChange(func(st transport.State) {
		util.LogDebug("session state: %s", st)
	})

	report, err := pacer.Run(ctx, ch, pacer.Config{
		FrequencyHz: cfg.FrequencyHz,
		Duration:    cfg.Duration,
		PointCount:  cfg.PointCount,
	})
	if err != nil {
		return report, err
	}
	if report.Closed {
		util.LogWarning("consumer closed the channel after %d/%d frames", report.Attempted, report.Planned)
		return report, nil
	}

	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := ch.Flush(flushCtx); err != nil {
		util.LogWarning("last frames may not have been delivered: %v", err)
	}
	return report, nil
}
