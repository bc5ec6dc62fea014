package app

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/1ureka/pointstream/internal/config"
	"github.com/1ureka/pointstream/internal/ingest"
	"github.com/1ureka/pointstream/internal/registry"
	"github.com/1ureka/pointstream/internal/signaling"
	"github.com/1ureka/pointstream/internal/transport"
	"github.com/1ureka/pointstream/internal/util"
)

// Consumer accepts offers over the relay and ingests frames from every
// resulting session.
type Consumer struct {
	cfg     config.Config
	opts    transport.Options
	onFrame ingest.Handler

	Registry *registry.Registry
	server   *signaling.Server

	mu  sync.Mutex
	ctx context.Context
}

// NewConsumer creates a Consumer. onFrame, when non-nil, receives every
// decoded frame off the transport's delivery path.
func NewConsumer(cfg config.Config, onFrame ingest.Handler) *Consumer {
	c := &Consumer{
		cfg:     cfg,
		opts:    transportOptions(cfg),
		onFrame: onFrame,
	}
	c.Registry = registry.New(c.newSession)
	c.server = signaling.NewServer(c.Registry)
	return c
}

// Start begins serving the relay endpoints on the configured listen address.
// Sink workers stop when ctx ends.
func (c *Consumer) Start(ctx context.Context) (net.Addr, error) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	// One API for all sessions of this consumer.
	c.opts.API = transport.NewAPI(c.opts.MaxMessageBytes)
	return c.server.Start(c.cfg.ListenAddr())
}

// Close stops the relay and closes every live session.
func (c *Consumer) Close() error {
	return c.server.Close()
}

// newSession creates one transport session per inbound offer and wires its
// messages into a dedicated Sink.
func (c *Consumer) newSession() (registry.Session, error) {
	sess, err := transport.NewSession(c.opts)
	if err != nil {
		return nil, err
	}

	log := util.NewScope(sess.ID())
	sink := ingest.NewSink(sess.ID(), c.cfg.QueueCapacity, c.onFrame)
	sess.OnMessage(sink.HandleMessage)
	sess.OnStateChange(func(st transport.State) {
		switch st {
		case transport.StateConnected:
			log.Info("data channel open")
		case transport.StateClosed:
			log.Info("session closed")
		default:
			log.Debug("session state: %s", st)
		}
	})

	c.mu.Lock()
	base := c.ctx
	c.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	sinkCtx, cancel := context.WithCancel(base)
	go func() {
		select {
		case <-sess.Done():
		case <-sinkCtx.Done():
		}
		cancel()
	}()
	go sink.Run(sinkCtx)

	return sess, nil
}

// RunConsumer serves offers until ctx is cancelled, then closes every
// session.
func RunConsumer(ctx context.Context, cfg config.Config) error {
	util.StartStatsReporter(ctx, cfg.StatsInterval)

	c := NewConsumer(cfg, nil)
	addr, err := c.Start(ctx)
	if err != nil {
		return err
	}
	util.LogSuccess("signaling server listening on %s (POST /offer, GET /ws)", addr)

	<-ctx.Done()
	util.LogInfo("shutting down, closing %d session(s)", c.Registry.Len())
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
