package transport

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pointstream/internal/util"
)

// Channel wraps the session's pion DataChannel, adding backpressure control.
// It shares its Ready/Done lifecycle with the owning Session.
type Channel struct {
	raw   *webrtc.DataChannel
	sess  *Session
	high  uint64
	drain chan struct{}

	open bool // guarded by sess.mu
}

func newChannel(raw *webrtc.DataChannel, sess *Session) *Channel {
	c := &Channel{
		raw:   raw,
		sess:  sess,
		high:  sess.opts.HighWaterMark,
		drain: make(chan struct{}, 1),
	}

	raw.SetBufferedAmountLowThreshold(sess.opts.LowWaterMark)
	raw.OnBufferedAmountLow(func() {
		select {
		case c.drain <- struct{}{}:
		default:
		}
	})

	return c
}

// Label returns the DataChannel label.
func (c *Channel) Label() string { return c.raw.Label() }

// Ready is closed once the owning session is CONNECTED.
func (c *Channel) Ready() <-chan struct{} { return c.sess.ready }

// Done is closed once the owning session is CLOSED.
func (c *Channel) Done() <-chan struct{} { return c.sess.done }

// Send writes one binary message. When the send buffer is above the high
// water mark it blocks until the buffer drains, ctx is cancelled, or the
// session closes. Every failure is a *TransportError.
func (c *Channel) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.sess.done:
		return &TransportError{Op: "send", Err: ErrClosed}
	default:
	}

	if c.raw.BufferedAmount() > c.high {
		select {
		case <-c.drain:
		case <-c.sess.done:
			return &TransportError{Op: "send", Err: ErrClosed}
		case <-ctx.Done():
			return &TransportError{Op: "send", Err: fmt.Errorf("backpressure: %w", ctx.Err())}
		}
	}

	if err := c.raw.Send(data); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Flush blocks until every message handed to Send has been acknowledged by
// the remote peer, ctx ends, or the session closes. It must not run
// concurrently with Send.
func (c *Channel) Flush(ctx context.Context) error {
	if c.raw.BufferedAmount() == 0 {
		return nil
	}

	c.raw.SetBufferedAmountLowThreshold(0)
	defer c.raw.SetBufferedAmountLowThreshold(c.sess.opts.LowWaterMark)

	for c.raw.BufferedAmount() > 0 {
		select {
		case <-c.drain:
		case <-c.sess.done:
			return &TransportError{Op: "flush", Err: ErrClosed}
		case <-ctx.Done():
			return &TransportError{Op: "flush", Err: ctx.Err()}
		}
	}
	return nil
}

// installMessageHandler forwards binary messages to fn; text messages are
// logged and dropped.
func (c *Channel) installMessageHandler(fn func([]byte)) {
	c.raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			util.LogWarning("[%s] received a non-binary message (%d bytes), dropping", c.sess.shortID(), len(msg.Data))
			return
		}
		fn(msg.Data)
	})
}
