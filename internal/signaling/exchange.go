package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pointstream/internal/protocol"
)

// Exchanger performs one offer/answer round trip with the relay. The zero
// value uses http.DefaultClient and websocket.DefaultDialer.
type Exchanger struct {
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// ExchangeOffer sends local to endpoint with a zero Exchanger.
func ExchangeOffer(ctx context.Context, endpoint string, local protocol.SessionDescription) (protocol.SessionDescription, error) {
	var e Exchanger
	return e.ExchangeOffer(ctx, endpoint, local)
}

// ExchangeOffer sends local to the relay at endpoint and returns the remote
// answer. Any failure is a *SignalingError. No retry is attempted.
func (e *Exchanger) ExchangeOffer(ctx context.Context, endpoint string, local protocol.SessionDescription) (protocol.SessionDescription, error) {
	if err := local.Expect(protocol.KindOffer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("exchange offer: %w", err)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return protocol.SessionDescription{}, &SignalingError{Err: fmt.Errorf("invalid relay endpoint: %w", err)}
	}

	switch u.Scheme {
	case "http", "https":
		return e.exchangeHTTP(ctx, endpoint, local)
	case "ws", "wss":
		return e.exchangeWS(ctx, endpoint, local)
	default:
		return protocol.SessionDescription{}, &SignalingError{Err: fmt.Errorf("unsupported relay scheme %q", u.Scheme)}
	}
}

func (e *Exchanger) exchangeHTTP(ctx context.Context, endpoint string, local protocol.SessionDescription) (protocol.SessionDescription, error) {
	body, err := json.Marshal(local)
	if err != nil {
		return protocol.SessionDescription{}, &SignalingError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return protocol.SessionDescription{}, &SignalingError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return protocol.SessionDescription{}, &SignalingError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageBytes))
	if resp.StatusCode != http.StatusOK {
		return protocol.SessionDescription{}, &SignalingError{Status: resp.StatusCode, Err: statusDetail(data)}
	}
	if err != nil {
		return protocol.SessionDescription{}, &SignalingError{Status: resp.StatusCode, Err: err}
	}
	return decodeAnswer(resp.StatusCode, data)
}

func (e *Exchanger) exchangeWS(ctx context.Context, endpoint string, local protocol.SessionDescription) (protocol.SessionDescription, error) {
	dialer := e.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return protocol.SessionDescription{}, &SignalingError{Status: resp.StatusCode, Err: err}
		}
		return protocol.SessionDescription{}, &SignalingError{Err: err}
	}
	defer conn.Close()

	// Unblocks the read below when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadLimit(maxMessageBytes)
	if err := conn.WriteJSON(local); err != nil {
		return protocol.SessionDescription{}, &SignalingError{Err: err}
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return protocol.SessionDescription{}, &SignalingError{Err: err}
	}

	answer, err := decodeAnswer(http.StatusOK, data)
	if err != nil {
		return protocol.SessionDescription{}, err
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return answer, nil
}

// decodeAnswer parses a relay body that must hold a complete answer.
func decodeAnswer(status int, data []byte) (protocol.SessionDescription, error) {
	var desc protocol.SessionDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return protocol.SessionDescription{}, malformed(status, err)
	}
	if err := desc.Expect(protocol.KindAnswer); err != nil {
		return protocol.SessionDescription{}, malformed(status, err)
	}
	return desc, nil
}

func statusDetail(body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return nil
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return errors.New(msg)
}
