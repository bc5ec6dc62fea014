// Package ingest handles inbound DataChannel messages on the consumer side.
// Decoding and logging run inline on the transport's delivery goroutine;
// anything heavier is handed to a worker through a bounded queue.
package ingest

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/1ureka/pointstream/internal/protocol"
	"github.com/1ureka/pointstream/internal/util"
)

// DefaultCapacity is the number of decoded frames a Sink buffers for its
// handler before dropping the oldest.
const DefaultCapacity = 16

// Handler processes one decoded frame off the delivery path.
type Handler func(*protocol.Frame)

// Sink decodes frames for one session.
type Sink struct {
	log      util.Scope
	handler  Handler
	capacity int

	mu      sync.Mutex
	pending *queue.Queue
	lastSeq int64
	dropped int

	signal chan struct{}
}

// NewSink creates a Sink. A nil handler makes the Sink decode-and-log only;
// capacity <= 0 selects DefaultCapacity.
func NewSink(name string, capacity int, handler Handler) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		log:      util.NewScope(name),
		handler:  handler,
		capacity: capacity,
		pending:  queue.New(),
		lastSeq:  -1,
		signal:   make(chan struct{}, 1),
	}
}

// HandleMessage decodes one inbound message. Malformed messages are logged
// and dropped; they never affect the session.
func (s *Sink) HandleMessage(data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		util.Stats.AddMalformed()
		s.log.Warning("failed to parse incoming frame: %v", err)
		return
	}
	util.Stats.AddRecv(len(data))

	seq := frame.Seq()
	if !frame.Consistent() {
		s.log.Warning("frame marker components disagree: %v", frame.Samples[0])
	}
	s.log.Info("received frame %d with shape (%d, %d)", seq, frame.Len(), protocol.Components)

	s.mu.Lock()
	if s.lastSeq >= 0 && int64(seq) != s.lastSeq+1 {
		s.log.Warning("frame %d follows %d", seq, s.lastSeq)
	}
	s.lastSeq = int64(seq)

	if s.handler == nil {
		s.mu.Unlock()
		return
	}

	if s.pending.Length() >= s.capacity {
		old := s.pending.Remove().(*protocol.Frame)
		s.dropped++
		s.log.Warning("handler queue full, dropping frame %d", old.Seq())
	}
	s.pending.Add(frame)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Run feeds queued frames to the handler until ctx is cancelled. It returns
// immediately when the Sink has no handler.
func (s *Sink) Run(ctx context.Context) {
	if s.handler == nil {
		return
	}

	for {
		select {
		case <-s.signal:
			s.drain()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sink) drain() {
	for {
		s.mu.Lock()
		if s.pending.Length() == 0 {
			s.mu.Unlock()
			return
		}
		frame := s.pending.Remove().(*protocol.Frame)
		s.mu.Unlock()

		s.handler(frame)
	}
}

// Pending returns the number of frames waiting for the handler.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Length()
}

// Dropped returns how many frames were discarded because the queue was full.
func (s *Sink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
