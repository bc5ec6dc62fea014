package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
)

// maxExactSeq is the largest sequence number a float32 marker holds exactly.
const maxExactSeq = 1 << 24

// Encode builds a frame of pointCount samples filled with random values in
// [0, 1), with sample 0 overwritten by (seq, seq, seq).
func Encode(seq uint32, pointCount int) ([]byte, error) {
	return EncodeWith(seq, pointCount, rand.Float32)
}

// EncodeWith is Encode with a caller-supplied payload generator.
func EncodeWith(seq uint32, pointCount int, fill func() float32) ([]byte, error) {
	if pointCount < 1 || pointCount > MaxPointCount {
		return nil, fmt.Errorf("point count must be in [1, %d], got %d", MaxPointCount, pointCount)
	}
	if seq > maxExactSeq {
		return nil, fmt.Errorf("sequence number %d exceeds float32 precision (%d)", seq, maxExactSeq)
	}

	buf := make([]byte, pointCount*SampleSize)

	marker := math.Float32bits(float32(seq))
	for c := range Components {
		binary.LittleEndian.PutUint32(buf[c*4:], marker)
	}

	for off := SampleSize; off < len(buf); off += 4 {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(fill()))
	}
	return buf, nil
}

// Decode parses a DataChannel message into a Frame. The input is not retained.
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 || len(data)%SampleSize != 0 {
		return nil, &MalformedFrameError{Length: len(data)}
	}

	samples := make([]Sample, len(data)/SampleSize)
	for i := range samples {
		base := i * SampleSize
		for c := range Components {
			bits := binary.LittleEndian.Uint32(data[base+c*4:])
			samples[i][c] = math.Float32frombits(bits)
		}
	}
	return &Frame{Samples: samples}, nil
}
