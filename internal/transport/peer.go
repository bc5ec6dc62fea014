package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pointstream/internal/protocol"
	"github.com/1ureka/pointstream/internal/util"
)

const (
	HighWaterMark = 16 * 1024 * 1024 // pause sending when bufferedAmount exceeds this
	LowWaterMark  = 4 * 1024 * 1024  // resume sending when bufferedAmount drops below this
)

const (
	// DefaultReceiveBufferBytes is pion's SCTP receive buffer when nothing
	// larger is needed.
	DefaultReceiveBufferBytes = 1 << 20

	// MaxMessageBytes is the largest single message a Session can carry.
	// The receive buffer is sized from it and must fit in a uint32.
	MaxMessageBytes = protocol.MaxFrameBytes

	// minReceiveBufferBytes is the smallest buffer pion/sctp accepts during
	// association setup.
	minReceiveBufferBytes = 1500
)

// Options configures the transport engine behind a Session.
type Options struct {
	// API constructs PeerConnections. When nil, NewAPI(MaxMessageBytes) is
	// used.
	API *webrtc.API

	// MaxMessageBytes is the largest inbound message the default API must
	// reassemble. Zero selects the package MaxMessageBytes. Ignored when API
	// is set.
	MaxMessageBytes int

	// ICEServers are STUN/TURN URLs used for candidate gathering. Empty means
	// host candidates only.
	ICEServers []string

	// HighWaterMark / LowWaterMark bound the DataChannel send buffer. Zero
	// selects the package defaults.
	HighWaterMark uint64
	LowWaterMark  uint64
}

func (o Options) withDefaults() Options {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = MaxMessageBytes
	}
	if o.API == nil {
		o.API = NewAPI(o.MaxMessageBytes)
	}
	if o.HighWaterMark == 0 {
		o.HighWaterMark = HighWaterMark
	}
	if o.LowWaterMark == 0 {
		o.LowWaterMark = LowWaterMark
	}
	return o
}

// NewAPI returns a pion API whose internal logging goes through the
// application logger and whose SCTP receive buffer can hold a message of
// maxMessageBytes.
func NewAPI(maxMessageBytes int) *webrtc.API {
	se := webrtc.SettingEngine{
		LoggerFactory: util.PionLoggerFactory(),
	}
	se.SetSCTPMaxReceiveBufferSize(ReceiveBufferBytes(maxMessageBytes))
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// ReceiveBufferBytes returns the SCTP receive buffer needed to reassemble a
// message of maxMessageBytes with room for the next one in flight.
// maxMessageBytes is clamped to MaxMessageBytes.
func ReceiveBufferBytes(maxMessageBytes int) uint32 {
	if maxMessageBytes < 0 {
		maxMessageBytes = 0
	}
	if maxMessageBytes > MaxMessageBytes {
		maxMessageBytes = MaxMessageBytes
	}

	buf := DefaultReceiveBufferBytes
	if n := maxMessageBytes * 4; n > buf {
		buf = n
	}
	if buf < minReceiveBufferBytes {
		buf = minReceiveBufferBytes
	}
	return uint32(buf)
}

// newPeerConnection creates a PeerConnection configured with the given ICE servers.
func newPeerConnection(o Options) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(o.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: o.ICEServers},
		}
	}
	return o.API.NewPeerConnection(config)
}

// newDataChannel creates an ordered, fully reliable DataChannel. Frames are
// consumed in arrival order, so SCTP ordering is required here.
func newDataChannel(pc *webrtc.PeerConnection, label string) (*webrtc.DataChannel, error) {
	return pc.CreateDataChannel(label, nil)
}
