package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/pointstream/internal/transport"
	"github.com/1ureka/pointstream/internal/util"
)

// ProducerConfig describes how the producer reaches the consumer.
type ProducerConfig struct {
	Relay          string // relay endpoint
	Label          string // DataChannel label
	ConnectTimeout time.Duration
	Transport      transport.Options
	Exchanger      *Exchanger // nil uses the zero Exchanger
}

// EstablishAsProducer executes the full producer-side flow:
//  1. Create a Session and open its DataChannel
//  2. Produce a complete local offer
//  3. Exchange it for an answer through the relay
//  4. Apply the answer
//  5. Wait until the session is CONNECTED
//
// On any failure the session is closed and nothing is returned.
func EstablishAsProducer(ctx context.Context, cfg ProducerConfig) (*transport.Session, *transport.Channel, error) {
	sess, err := transport.NewSession(cfg.Transport)
	if err != nil {
		return nil, nil, err
	}

	ch, err := establish(ctx, sess, cfg)
	if err != nil {
		_ = sess.Close()
		return nil, nil, err
	}
	return sess, ch, nil
}

func establish(ctx context.Context, sess *transport.Session, cfg ProducerConfig) (*transport.Channel, error) {
	ch, err := sess.OpenChannel(cfg.Label)
	if err != nil {
		return nil, err
	}

	offer, err := sess.InitiateOffer(ctx)
	if err != nil {
		return nil, fmt.Errorf("initiate offer: %w", err)
	}
	util.LogDebug("offer ready (%d bytes), sending to %s", len(offer.Body), cfg.Relay)

	ex := cfg.Exchanger
	if ex == nil {
		ex = &Exchanger{}
	}
	answer, err := ex.ExchangeOffer(ctx, cfg.Relay, offer)
	if err != nil {
		return nil, err
	}

	if err := sess.ApplyAnswer(answer); err != nil {
		return nil, fmt.Errorf("apply answer: %w", err)
	}
	util.LogInfo("answer applied, waiting for channel %q to open", cfg.Label)

	waitCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := sess.WaitConnected(waitCtx); err != nil {
		return nil, fmt.Errorf("wait for connection: %w", err)
	}

	util.LogSuccess("WebRTC DataChannel established")
	return ch, nil
}
