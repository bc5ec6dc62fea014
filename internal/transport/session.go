// Package transport owns the per-connection PeerSession: one pion
// PeerConnection plus its DataChannel, driven through an explicit
// NEW -> NEGOTIATING -> CONNECTED -> CLOSED state machine.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pointstream/internal/protocol"
	"github.com/1ureka/pointstream/internal/util"
)

// Session wraps a single PeerConnection + DataChannel pair.
//
// CONNECTED requires both the PeerConnection reporting connected and the
// DataChannel reporting open. CLOSED is terminal and is entered on
// PeerConnection failure/closure, DataChannel closure, a failed handshake
// step, or Close.
type Session struct {
	id        string
	createdAt time.Time
	opts      Options
	pc        *webrtc.PeerConnection

	ready chan struct{}
	done  chan struct{}

	mu          sync.Mutex
	state       State
	offerer     bool
	answered    bool
	pcConnected bool
	ch          *Channel
	onMessage   func([]byte)
	onState     func(State)

	engineOnce sync.Once
	engineErr  error
}

// NewSession creates a Session in state NEW backed by a fresh PeerConnection.
func NewSession(opts Options) (*Session, error) {
	opts = opts.withDefaults()

	pc, err := newPeerConnection(opts)
	if err != nil {
		return nil, &TransportError{Op: "new peer connection", Err: err}
	}

	s := &Session{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		opts:      opts,
		pc:        pc,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		state:     StateNew,
	}

	pc.OnConnectionStateChange(s.handleConnectionState)

	// Answerer side: the channel is created by the remote peer.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ch != nil {
			util.LogWarning("[%s] ignoring extra data channel %q", s.shortID(), dc.Label())
			_ = dc.Close()
			return
		}
		util.LogDebug("[%s] data channel created by remote peer: %s", s.shortID(), dc.Label())
		s.attachLocked(dc)
	})

	util.Stats.AddSessionOpened()
	return s, nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// ID returns the session identity.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready returns a channel that is closed when the session reaches CONNECTED.
// It is never closed for a session that goes straight to CLOSED.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done returns a channel that is closed when the session reaches CLOSED.
func (s *Session) Done() <-chan struct{} { return s.done }

// Channel returns the session's DataChannel handle, or nil if none exists yet.
func (s *Session) Channel() *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// OnStateChange registers a callback invoked after every state transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// OnMessage registers fn to be invoked once per inbound binary message, in
// arrival order. The slice is only valid for the duration of the call.
func (s *Session) OnMessage(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
	if s.ch != nil {
		s.ch.installMessageHandler(fn)
	}
}

// WaitConnected blocks until the session is CONNECTED, CLOSED, or ctx ends.
func (s *Session) WaitConnected(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Handshake
// ---------------------------------------------------------------------------

// OpenChannel creates the session's DataChannel. It must precede
// InitiateOffer so the offer carries the channel.
func (s *Session) OpenChannel(label string) (*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNew {
		return nil, &InvalidStateError{Op: "OpenChannel", State: s.state}
	}
	if s.ch != nil {
		return nil, fmt.Errorf("OpenChannel: channel %q already open", s.ch.Label())
	}

	dc, err := newDataChannel(s.pc, label)
	if err != nil {
		return nil, &TransportError{Op: "create data channel", Err: err}
	}
	s.attachLocked(dc)
	return s.ch, nil
}

// InitiateOffer produces the local offer. It blocks until candidate
// gathering is complete so the returned description is final.
func (s *Session) InitiateOffer(ctx context.Context) (protocol.SessionDescription, error) {
	s.mu.Lock()
	if s.state != StateNew {
		err := &InvalidStateError{Op: "InitiateOffer", State: s.state}
		s.mu.Unlock()
		return protocol.SessionDescription{}, err
	}
	if s.ch == nil {
		s.mu.Unlock()
		return protocol.SessionDescription{}, ErrNoChannel
	}
	s.offerer = true
	notify := s.setStateLocked(StateNegotiating)
	s.mu.Unlock()
	notify()

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, s.fail("create offer", err)
	}

	local, err := s.setLocalAndGather(ctx, offer)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	return protocol.SessionDescription{Kind: protocol.KindOffer, Body: local.SDP}, nil
}

// ApplyAnswer applies the remote answer to an offer produced by InitiateOffer.
func (s *Session) ApplyAnswer(desc protocol.SessionDescription) error {
	if err := desc.Expect(protocol.KindAnswer); err != nil {
		return fmt.Errorf("ApplyAnswer: %w", err)
	}

	s.mu.Lock()
	if s.state != StateNegotiating || !s.offerer || s.answered {
		err := &InvalidStateError{Op: "ApplyAnswer", State: s.state}
		s.mu.Unlock()
		return err
	}
	s.answered = true
	s.mu.Unlock()

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  desc.Body,
	}); err != nil {
		return s.fail("set remote description", err)
	}
	return nil
}

// AcceptOffer applies a remote offer and returns the local answer once
// candidate gathering is complete.
func (s *Session) AcceptOffer(ctx context.Context, desc protocol.SessionDescription) (protocol.SessionDescription, error) {
	if err := desc.Expect(protocol.KindOffer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("AcceptOffer: %w", err)
	}

	s.mu.Lock()
	if s.state != StateNew {
		err := &InvalidStateError{Op: "AcceptOffer", State: s.state}
		s.mu.Unlock()
		return protocol.SessionDescription{}, err
	}
	notify := s.setStateLocked(StateNegotiating)
	s.mu.Unlock()
	notify()

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  desc.Body,
	}); err != nil {
		return protocol.SessionDescription{}, s.fail("set remote description", err)
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, s.fail("create answer", err)
	}

	local, err := s.setLocalAndGather(ctx, answer)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	return protocol.SessionDescription{Kind: protocol.KindAnswer, Body: local.SDP}, nil
}

// setLocalAndGather applies desc locally and waits for ICE gathering to
// finish, returning the complete local description.
func (s *Session) setLocalAndGather(ctx context.Context, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(desc); err != nil {
		return nil, s.fail("set local description", err)
	}

	select {
	case <-gatherComplete:
	case <-s.done:
		return nil, &TransportError{Op: "gather candidates", Err: ErrClosed}
	case <-ctx.Done():
		return nil, s.fail("gather candidates", ctx.Err())
	}

	local := s.pc.LocalDescription()
	if local == nil {
		return nil, s.fail("gather candidates", errors.New("missing local description"))
	}
	return local, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close moves the session to CLOSED and releases the DataChannel and
// PeerConnection. Safe to call multiple times.
func (s *Session) Close() error {
	s.shutdown("closed locally")
	return s.closeEngine()
}

// attachLocked binds dc as the session's channel. Caller holds s.mu.
func (s *Session) attachLocked(dc *webrtc.DataChannel) {
	s.ch = newChannel(dc, s)
	if s.onMessage != nil {
		s.ch.installMessageHandler(s.onMessage)
	}

	dc.OnOpen(func() {
		util.LogDebug("[%s] data channel %q is open", s.shortID(), dc.Label())
		s.mu.Lock()
		s.ch.open = true
		notify := s.maybeConnectedLocked()
		s.mu.Unlock()
		notify()
	})

	dc.OnClose(func() {
		s.shutdown("data channel closed")
	})
}

func (s *Session) handleConnectionState(state webrtc.PeerConnectionState) {
	util.LogDebug("[%s] peer connection state: %s", s.shortID(), state.String())

	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.mu.Lock()
		s.pcConnected = true
		notify := s.maybeConnectedLocked()
		s.mu.Unlock()
		notify()
	case webrtc.PeerConnectionStateDisconnected:
		// Transient; pion reports Failed if ICE does not recover, which closes the session.
		util.LogWarning("[%s] peer connection disconnected, waiting for ICE to recover", s.shortID())
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		s.shutdown("peer connection " + state.String())
	}
}

// maybeConnectedLocked advances NEGOTIATING -> CONNECTED once both the
// connection and the channel are usable. Caller holds s.mu and must invoke
// the returned func after unlocking.
func (s *Session) maybeConnectedLocked() func() {
	if s.state != StateNegotiating || !s.pcConnected || s.ch == nil || !s.ch.open {
		return func() {}
	}
	notify := s.setStateLocked(StateConnected)
	close(s.ready)
	return notify
}

// setStateLocked records a transition. CLOSED is never left. Caller holds
// s.mu and must invoke the returned func after unlocking.
func (s *Session) setStateLocked(to State) func() {
	if s.state == StateClosed || s.state == to {
		return func() {}
	}
	s.state = to
	fn := s.onState
	return func() {
		if fn != nil {
			fn(to)
		}
	}
}

// shutdown enters CLOSED exactly once. Engine teardown runs asynchronously
// because shutdown is reached from pion callbacks.
func (s *Session) shutdown(reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	notify := s.setStateLocked(StateClosed)
	s.mu.Unlock()

	close(s.done)
	util.Stats.AddSessionClosed()
	util.LogDebug("[%s] session closed: %s", s.shortID(), reason)
	notify()

	go func() { _ = s.closeEngine() }()
}

func (s *Session) closeEngine() error {
	s.engineOnce.Do(func() {
		s.mu.Lock()
		ch := s.ch
		s.mu.Unlock()

		var dcErr error
		if ch != nil {
			dcErr = ch.raw.Close()
		}
		s.engineErr = errors.Join(dcErr, s.pc.Close())
	})
	return s.engineErr
}

// fail closes the session after a handshake step failed and returns the
// wrapped error.
func (s *Session) fail(op string, err error) error {
	s.shutdown(op + " failed")
	return &TransportError{Op: op, Err: err}
}

func (s *Session) shortID() string {
	if len(s.id) > 8 {
		return s.id[:8]
	}
	return s.id
}
