package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/sdp/v3"

	"github.com/1ureka/pointstream/internal/protocol"
	"github.com/1ureka/pointstream/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Acceptor turns an inbound offer into an answer. registry.Registry
// satisfies it.
type Acceptor interface {
	OnIncomingOffer(ctx context.Context, offer protocol.SessionDescription) (protocol.SessionDescription, error)
	CloseAll()
}

// Server is the consumer-side relay endpoint.
//
//	POST /offer  {"sdp": ..., "type": "offer"} -> 200 {"sdp": ..., "type": "answer"}
//	GET  /ws     one offer message in, one answer message out
type Server struct {
	acceptor Acceptor

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// NewServer creates a relay server that hands offers to acceptor.
func NewServer(acceptor Acceptor) *Server {
	return &Server{acceptor: acceptor}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /offer", s.handleOffer)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Start begins listening on addr. Returns the bound address, which differs
// from addr when addr uses port 0.
func (s *Server) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start signaling server: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.srv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("signaling server stopped: %v", err)
		}
	}()

	return listener.Addr(), nil
}

// Close stops accepting offers and closes every session created through
// this server.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Close()
	}
	s.acceptor.CloseAll()
	return err
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "invalid offer", http.StatusBadRequest)
		return
	}

	answer, status, err := s.answer(r.Context(), body)
	if err != nil {
		util.LogWarning("offer from %s rejected: %v", r.RemoteAddr, err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(answer)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageBytes)
	_, body, err := conn.ReadMessage()
	if err != nil {
		util.LogWarning("ws offer from %s: %v", r.RemoteAddr, err)
		return
	}

	answer, status, err := s.answer(r.Context(), body)
	if err != nil {
		util.LogWarning("offer from %s rejected: %v", r.RemoteAddr, err)
		code := websocket.ClosePolicyViolation
		if status >= http.StatusInternalServerError {
			code = websocket.CloseInternalServerErr
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, http.StatusText(status)))
		return
	}

	if err := conn.WriteJSON(answer); err != nil {
		util.LogWarning("ws answer to %s: %v", r.RemoteAddr, err)
		return
	}
	// Wait for the peer's close so the answer is not cut off by ours.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, _ = conn.ReadMessage()
}

// answer validates an offer body and produces the answer along with the
// HTTP status describing the outcome.
func (s *Server) answer(ctx context.Context, body []byte) (protocol.SessionDescription, int, error) {
	var offer protocol.SessionDescription
	if err := json.Unmarshal(body, &offer); err != nil {
		return protocol.SessionDescription{}, http.StatusBadRequest, fmt.Errorf("decode offer: %w", err)
	}
	if err := offer.Expect(protocol.KindOffer); err != nil {
		return protocol.SessionDescription{}, http.StatusBadRequest, err
	}
	if err := checkOffer(offer.Body); err != nil {
		return protocol.SessionDescription{}, http.StatusBadRequest, err
	}

	answer, err := s.acceptor.OnIncomingOffer(ctx, offer)
	if err != nil {
		return protocol.SessionDescription{}, http.StatusInternalServerError, err
	}
	return answer, http.StatusOK, nil
}

// checkOffer parses the offer SDP and requires a data channel section.
func checkOffer(body string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(body)); err != nil {
		return fmt.Errorf("parse offer sdp: %w", err)
	}
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media == "application" {
			return nil
		}
	}
	return errors.New("offer has no data channel section")
}
