// Package protocol defines the wire formats shared by producer and consumer:
// the binary point frame carried over the DataChannel and the session
// description exchanged through the relay.
package protocol

import "fmt"

const (
	// Components is the number of float32 values in one sample (x, y, z).
	Components = 3

	// SampleSize is the encoded size of one sample: Components * 4 bytes.
	SampleSize = Components * 4

	// MaxFrameBytes bounds one encoded frame. The transport sizes its
	// receive buffer from it.
	MaxFrameBytes = 64 << 20

	// MaxPointCount is the most samples a frame of MaxFrameBytes holds.
	MaxPointCount = MaxFrameBytes / SampleSize
)

// Sample is a single 3-component point.
type Sample [Components]float32

// Frame is one decoded DataChannel message. Samples[0] carries the sequence
// marker; every other sample is payload.
type Frame struct {
	Samples []Sample
}

// Len returns the number of samples in the frame, marker included.
func (f *Frame) Len() int { return len(f.Samples) }

// Seq returns the sequence number embedded in the marker sample.
func (f *Frame) Seq() uint32 {
	if len(f.Samples) == 0 {
		return 0
	}
	return uint32(f.Samples[0][0])
}

// Consistent reports whether all three marker components agree.
func (f *Frame) Consistent() bool {
	if len(f.Samples) == 0 {
		return false
	}
	m := f.Samples[0]
	return m[0] == m[1] && m[1] == m[2]
}

// MalformedFrameError is returned by Decode when a message length is not a
// positive multiple of SampleSize.
type MalformedFrameError struct {
	Length int
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: %d bytes is not a positive multiple of %d", e.Length, SampleSize)
}
