package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1ureka/pointstream/internal/protocol"
	"github.com/1ureka/pointstream/internal/registry"
)

// Compile-time interface check.
var _ registry.Session = (*mockSession)(nil)

type mockSession struct {
	id        string
	acceptErr error
	gate      chan struct{} // when non-nil, AcceptOffer blocks until closed

	done      chan struct{}
	closeOnce sync.Once
}

func (m *mockSession) ID() string { return m.id }

func (m *mockSession) AcceptOffer(_ context.Context, offer protocol.SessionDescription) (protocol.SessionDescription, error) {
	if m.gate != nil {
		<-m.gate
	}
	if m.acceptErr != nil {
		return protocol.SessionDescription{}, m.acceptErr
	}
	return protocol.SessionDescription{Kind: protocol.KindAnswer, Body: "answer-for-" + offer.Body}, nil
}

func (m *mockSession) Done() <-chan struct{} { return m.done }

func (m *mockSession) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// mockFactory hands out sessions with sequential ids and remembers them.
type mockFactory struct {
	mu       sync.Mutex
	n        atomic.Int64
	created  []*mockSession
	gate     chan struct{}
	failWith error
}

func (f *mockFactory) New() (registry.Session, error) {
	s := &mockSession{
		id:        fmt.Sprintf("session-%d", f.n.Add(1)),
		done:      make(chan struct{}),
		gate:      f.gate,
		acceptErr: f.failWith,
	}
	f.mu.Lock()
	f.created = append(f.created, s)
	f.mu.Unlock()
	return s, nil
}

var offer = protocol.SessionDescription{Kind: protocol.KindOffer, Body: "offer"}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestOnIncomingOfferReturnsAnswer(t *testing.T) {
	f := &mockFactory{}
	r := registry.New(f.New)

	answer, err := r.OnIncomingOffer(context.Background(), offer)
	if err != nil {
		t.Fatalf("OnIncomingOffer: %v", err)
	}
	if answer.Kind != protocol.KindAnswer || answer.Body != "answer-for-offer" {
		t.Errorf("unexpected answer: %+v", answer)
	}
	if r.Len() != 1 {
		t.Errorf("Len: got %d, want 1", r.Len())
	}
}

// TestRegistryIsolation sends two concurrent offers and checks that they
// yield two distinct sessions, each retained until it closes on its own.
func TestRegistryIsolation(t *testing.T) {
	f := &mockFactory{gate: make(chan struct{})}
	r := registry.New(f.New)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.OnIncomingOffer(context.Background(), offer)
			errs <- err
		}()
	}

	// Both sessions are registered while their handshakes are in flight.
	waitFor(t, 5*time.Second, func() bool { return r.Len() == 2 })
	close(f.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("OnIncomingOffer: %v", err)
		}
	}

	f.mu.Lock()
	first, second := f.created[0], f.created[1]
	f.mu.Unlock()
	if first.ID() == second.ID() {
		t.Fatal("sessions must have distinct identities")
	}

	_ = first.Close()
	waitFor(t, 5*time.Second, func() bool { return r.Len() == 1 })
	if _, ok := r.Get(first.ID()); ok {
		t.Error("closed session should be released")
	}
	if _, ok := r.Get(second.ID()); !ok {
		t.Error("open session must be retained")
	}

	_ = second.Close()
	waitFor(t, 5*time.Second, func() bool { return r.Len() == 0 })
}

// TestRegistryNeverReuses creates a new session for every offer.
func TestRegistryNeverReuses(t *testing.T) {
	f := &mockFactory{}
	r := registry.New(f.New)

	for range 3 {
		if _, err := r.OnIncomingOffer(context.Background(), offer); err != nil {
			t.Fatalf("OnIncomingOffer: %v", err)
		}
	}
	if got := len(r.IDs()); got != 3 {
		t.Errorf("IDs: got %d, want 3", got)
	}
}

// TestRegistryAcceptFailure closes and releases a session whose handshake
// fails.
func TestRegistryAcceptFailure(t *testing.T) {
	f := &mockFactory{failWith: errors.New("bad offer")}
	r := registry.New(f.New)

	if _, err := r.OnIncomingOffer(context.Background(), offer); err == nil {
		t.Fatal("expected error, got nil")
	}

	f.mu.Lock()
	s := f.created[0]
	f.mu.Unlock()
	select {
	case <-s.Done():
	default:
		t.Fatal("failed session should be closed")
	}
	waitFor(t, 5*time.Second, func() bool { return r.Len() == 0 })
}

// TestRegistryFactoryFailure surfaces factory errors.
func TestRegistryFactoryFailure(t *testing.T) {
	r := registry.New(func() (registry.Session, error) {
		return nil, errors.New("engine unavailable")
	})
	if _, err := r.OnIncomingOffer(context.Background(), offer); err == nil {
		t.Fatal("expected error, got nil")
	}
	if r.Len() != 0 {
		t.Errorf("Len: got %d, want 0", r.Len())
	}
}

// TestRegistryCloseAll closes every session and rejects new offers.
func TestRegistryCloseAll(t *testing.T) {
	f := &mockFactory{}
	r := registry.New(f.New)

	for range 2 {
		if _, err := r.OnIncomingOffer(context.Background(), offer); err != nil {
			t.Fatalf("OnIncomingOffer: %v", err)
		}
	}

	r.CloseAll()
	waitFor(t, 5*time.Second, func() bool { return r.Len() == 0 })

	if _, err := r.OnIncomingOffer(context.Background(), offer); err == nil {
		t.Fatal("expected error after CloseAll")
	}
}
