package signaling

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pointstream/internal/protocol"
)

var testOffer = protocol.SessionDescription{Kind: protocol.KindOffer, Body: "v=0"}

// relay returns a server that answers every POST with status and body.
func relay(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: got %q", ct)
		}
		got, _ := io.ReadAll(r.Body)
		if string(got) != `{"sdp":"v=0","type":"offer"}` {
			t.Errorf("request body: got %s", got)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestExchangeOfferHTTP(t *testing.T) {
	ts := relay(t, http.StatusOK, `{"sdp":"X","type":"answer"}`)

	answer, err := ExchangeOffer(context.Background(), ts.URL+"/offer", testOffer)
	if err != nil {
		t.Fatalf("ExchangeOffer: %v", err)
	}
	want := protocol.SessionDescription{Kind: protocol.KindAnswer, Body: "X"}
	if answer != want {
		t.Errorf("answer: got %+v, want %+v", answer, want)
	}
}

func TestExchangeOfferStatus(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusBadRequest, http.StatusNotFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			ts := relay(t, status, "relay unavailable")

			_, err := ExchangeOffer(context.Background(), ts.URL, testOffer)
			var sigErr *SignalingError
			if !errors.As(err, &sigErr) {
				t.Fatalf("expected *SignalingError, got %T: %v", err, err)
			}
			if sigErr.Status != status {
				t.Errorf("Status: got %d, want %d", sigErr.Status, status)
			}
			if errors.Is(err, ErrMalformedResponse) {
				t.Error("status failure must not be reported as malformed")
			}
		})
	}
}

func TestExchangeOfferMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "<html>ok</html>"},
		{"missing sdp", `{"type":"answer"}`},
		{"offer instead of answer", `{"sdp":"X","type":"offer"}`},
		{"unknown type", `{"sdp":"X","type":"pranswer"}`},
		{"array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := relay(t, http.StatusOK, tt.body)

			_, err := ExchangeOffer(context.Background(), ts.URL, testOffer)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
			var sigErr *SignalingError
			if !errors.As(err, &sigErr) || sigErr.Status != http.StatusOK {
				t.Errorf("expected SignalingError{200}, got %v", err)
			}
		})
	}
}

func TestExchangeOfferUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := ExchangeOffer(context.Background(), url, testOffer)
	var sigErr *SignalingError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected *SignalingError, got %T: %v", err, err)
	}
	if sigErr.Status != 0 {
		t.Errorf("Status: got %d, want 0", sigErr.Status)
	}
}

func TestExchangeOfferRejectsInput(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		local    protocol.SessionDescription
	}{
		{"answer as local", "http://localhost/offer", protocol.SessionDescription{Kind: protocol.KindAnswer, Body: "v=0"}},
		{"empty body", "http://localhost/offer", protocol.SessionDescription{Kind: protocol.KindOffer}},
		{"bad scheme", "ftp://localhost/offer", testOffer},
		{"bad url", "http://[::1", testOffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ExchangeOffer(context.Background(), tt.endpoint, tt.local); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

// wsRelay answers a single offer per connection over WebSocket.
func wsRelay(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var offer protocol.SessionDescription
		if err := conn.ReadJSON(&offer); err != nil {
			t.Errorf("read offer: %v", err)
			return
		}
		if offer != testOffer {
			t.Errorf("offer: got %+v", offer)
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(reply))
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestExchangeOfferWebSocket(t *testing.T) {
	ts := wsRelay(t, `{"sdp":"X","type":"answer"}`)

	answer, err := ExchangeOffer(context.Background(), wsURL(ts.URL)+"/ws", testOffer)
	if err != nil {
		t.Fatalf("ExchangeOffer: %v", err)
	}
	if answer.Kind != protocol.KindAnswer || answer.Body != "X" {
		t.Errorf("answer: got %+v", answer)
	}
}

func TestExchangeOfferWebSocketMalformed(t *testing.T) {
	ts := wsRelay(t, `{"sdp":"","type":"answer"}`)

	_, err := ExchangeOffer(context.Background(), wsURL(ts.URL), testOffer)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestExchangeOfferWebSocketRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := ExchangeOffer(context.Background(), wsURL(ts.URL), testOffer)
	var sigErr *SignalingError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected *SignalingError, got %T: %v", err, err)
	}
	if sigErr.Status != http.StatusForbidden {
		t.Errorf("Status: got %d, want 403", sigErr.Status)
	}
}
