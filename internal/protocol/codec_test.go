package protocol_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/1ureka/pointstream/internal/protocol"
)

// TestEncodeDecodeRoundTrip verifies that the sequence marker survives an
// encode/decode cycle for a range of sizes and sequence numbers.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		seq   uint32
		count int
	}{
		{0, 1},
		{1, 1},
		{7, 2},
		{39, 100},
		{239, 4096},
		{1 << 24, 3},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("seq=%d count=%d", tc.seq, tc.count), func(t *testing.T) {
			encoded, err := protocol.Encode(tc.seq, tc.count)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if len(encoded) != tc.count*protocol.SampleSize {
				t.Fatalf("encoded length: got %d, want %d", len(encoded), tc.count*protocol.SampleSize)
			}

			frame, err := protocol.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if frame.Len() != tc.count {
				t.Fatalf("sample count: got %d, want %d", frame.Len(), tc.count)
			}

			want := protocol.Sample{float32(tc.seq), float32(tc.seq), float32(tc.seq)}
			if frame.Samples[0] != want {
				t.Errorf("marker: got %v, want %v", frame.Samples[0], want)
			}
			if frame.Seq() != tc.seq {
				t.Errorf("Seq: got %d, want %d", frame.Seq(), tc.seq)
			}
			if !frame.Consistent() {
				t.Errorf("marker should be consistent")
			}
		})
	}
}

// TestEncodePayloadRange checks that payload samples fall in [0, 1).
func TestEncodePayloadRange(t *testing.T) {
	encoded, err := protocol.Encode(5, 1000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	frame, err := protocol.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i, s := range frame.Samples[1:] {
		for _, v := range s {
			if v < 0 || v >= 1 {
				t.Fatalf("sample %d out of range: %v", i+1, s)
			}
		}
	}
}

// TestEncodeLittleEndianLayout pins the wire layout: sample 0 of frame 1 is
// three little-endian float32 ones (0x3f800000).
func TestEncodeLittleEndianLayout(t *testing.T) {
	encoded, err := protocol.EncodeWith(1, 2, func() float32 { return 0.5 })
	if err != nil {
		t.Fatalf("EncodeWith failed: %v", err)
	}

	want := []byte{
		0x00, 0x00, 0x80, 0x3f,
		0x00, 0x00, 0x80, 0x3f,
		0x00, 0x00, 0x80, 0x3f,
		0x00, 0x00, 0x00, 0x3f,
		0x00, 0x00, 0x00, 0x3f,
		0x00, 0x00, 0x00, 0x3f,
	}
	if !bytes.Equal(encoded, want) {
		t.Errorf("layout mismatch:\n got % x\nwant % x", encoded, want)
	}
}

// TestEncodeRejectsInvalidInput covers non-positive counts and sequence
// numbers a float32 cannot represent exactly.
func TestEncodeRejectsInvalidInput(t *testing.T) {
	testCases := []struct {
		name  string
		seq   uint32
		count int
	}{
		{"zero points", 0, 0},
		{"negative points", 0, -4},
		{"frame too large", 0, protocol.MaxPointCount + 1},
		{"sequence beyond float32 precision", 1<<24 + 1, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := protocol.Encode(tc.seq, tc.count); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

// TestDecodeLengthValidation verifies that only positive multiples of 12
// bytes are accepted.
func TestDecodeLengthValidation(t *testing.T) {
	testCases := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"empty", 0, true},
		{"1 byte", 1, true},
		{"10 bytes", 10, true},
		{"11 bytes", 11, true},
		{"12 bytes", 12, false},
		{"13 bytes", 13, true},
		{"24 bytes", 24, false},
		{"30 bytes", 30, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := protocol.Decode(make([]byte, tc.size))
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("Decode failed: %v", err)
				}
				if frame.Len() != tc.size/protocol.SampleSize {
					t.Errorf("sample count: got %d, want %d", frame.Len(), tc.size/protocol.SampleSize)
				}
				return
			}

			var malformed *protocol.MalformedFrameError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedFrameError, got %v", err)
			}
			if malformed.Length != tc.size {
				t.Errorf("Length: got %d, want %d", malformed.Length, tc.size)
			}
		})
	}
}

// TestDecodeDoesNotAlias verifies that mutating the input after decoding
// leaves the frame untouched.
func TestDecodeDoesNotAlias(t *testing.T) {
	encoded, err := protocol.Encode(3, 2)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	frame, err := protocol.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	for i := range encoded {
		encoded[i] = 0xFF
	}

	if frame.Seq() != 3 {
		t.Errorf("frame aliased input buffer: Seq=%d", frame.Seq())
	}
}

// TestFrameConsistent flags a marker whose components disagree.
func TestFrameConsistent(t *testing.T) {
	frame := &protocol.Frame{Samples: []protocol.Sample{{4, 4, 5}}}
	if frame.Consistent() {
		t.Error("expected inconsistent marker")
	}

	empty := &protocol.Frame{}
	if empty.Consistent() {
		t.Error("empty frame should not be consistent")
	}
}
