// Package registry retains server-side sessions for as long as they are
// alive. Every inbound offer gets its own session; a session leaves the
// registry only after it reports CLOSED.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/1ureka/pointstream/internal/protocol"
	"github.com/1ureka/pointstream/internal/util"
)

// Session is the subset of transport.Session the registry needs.
type Session interface {
	ID() string
	AcceptOffer(ctx context.Context, offer protocol.SessionDescription) (protocol.SessionDescription, error)
	Done() <-chan struct{}
	Close() error
}

// Factory creates a fresh session in state NEW.
type Factory func() (Session, error)

// Registry maps session identity to a live session.
type Registry struct {
	newSession Factory

	mu       sync.Mutex
	sessions map[string]Session
	closed   bool
}

// New creates an empty registry that builds sessions with f.
func New(f Factory) *Registry {
	return &Registry{
		newSession: f,
		sessions:   make(map[string]Session),
	}
}

// OnIncomingOffer creates a new session, registers it, and has it accept
// the offer. A session is never reused across offers. On failure the session
// is closed, which also removes it.
func (r *Registry) OnIncomingOffer(ctx context.Context, offer protocol.SessionDescription) (protocol.SessionDescription, error) {
	s, err := r.newSession()
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("create session: %w", err)
	}

	if err := r.register(s); err != nil {
		_ = s.Close()
		return protocol.SessionDescription{}, err
	}

	answer, err := s.AcceptOffer(ctx, offer)
	if err != nil {
		_ = s.Close()
		return protocol.SessionDescription{}, fmt.Errorf("accept offer: %w", err)
	}

	util.NewScope(s.ID()).Info("answer produced, %d session(s) active", r.Len())
	return answer, nil
}

// register adds a session to the table and starts an auto-cleanup goroutine
// that removes the entry once the session is done.
func (r *Registry) register(s Session) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("registry closed")
	}
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	go func() {
		<-s.Done()
		r.mu.Lock()
		delete(r.sessions, s.ID())
		r.mu.Unlock()
		util.NewScope(s.ID()).Debug("released from registry")
	}()
	return nil
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of retained sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns a snapshot of retained session identities.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll closes every retained session and rejects further offers.
// Entries are removed by their cleanup goroutines as each session closes.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
