// Package wiegand decodes the Wiegand two-line protocol into raw frames.
//
// A Decoder receives one falling-edge callback per bit from an edge.Source:
// an edge on D0 is a 0, an edge on D1 is a 1. Bits accumulate in a private
// working frame. A frame is complete once the bus has been silent for longer
// than the maximum bit interval; completion is detected lazily by polling
// TryFinishFrame, which copies the working frame into the published frame.
// The published frame only changes inside TryFinishFrame and Clear, so
// callers see a stable snapshot between polls.
//
// Card formats (facility codes, parity, IDs) are not interpreted here.
package wiegand

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxBits is the widest frame the decoder accepts.
	MaxBits = 36
	// MaxBytes is the size of the packed bit buffer.
	MaxBytes = (MaxBits + 7) / 8
	// DefaultMaxBitInterval is the silence, in microseconds, that ends a frame.
	DefaultMaxBitInterval uint32 = 5000
)

// State is the capture state of a Decoder.
type State int

const (
	Uninitialized State = iota
	Idle
	Receiving
	Done
	Error
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Idle:
		return "Idle"
	case Receiving:
		return "Receiving"
	case Done:
		return "Done"
	case Error:
		return "Error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrAlreadyInitialized is returned by Begin on a decoder that has left Uninitialized.
var ErrAlreadyInitialized = errors.New("wiegand: decoder already initialized")

// Frame is a captured sequence of bits.
//
// Bits is packed most-recent-first: the last bit received is bit 0 of
// Bits[0], the one before it bit 1, and so on across the array.
type Frame struct {
	Bits        [MaxBytes]byte
	BitCount    int
	TotalMicros uint32 // last bit timestamp minus first bit timestamp
}

// Bit returns the i-th received bit, 0 being the first bit of the frame.
func (f Frame) Bit(i int) byte {
	k := f.BitCount - 1 - i // position counted from the most recent bit
	return (f.Bits[k/8] >> (k % 8)) & 1
}

// BitString renders the frame as '0'/'1' characters in receive order.
func (f Frame) BitString() string {
	var sb strings.Builder
	sb.Grow(f.BitCount)
	for i := 0; i < f.BitCount; i++ {
		sb.WriteByte('0' + f.Bit(i))
	}
	return sb.String()
}

// Value returns the frame as an integer, first bit most significant.
func (f Frame) Value() uint64 {
	var v uint64
	for i := MaxBytes - 1; i >= 0; i-- {
		v = v<<8 | uint64(f.Bits[i])
	}
	return v
}

// Hex renders Value in upper-case hexadecimal.
func (f Frame) Hex() string {
	return fmt.Sprintf("%X", f.Value())
}

// push shifts every bit up one position and stores bit in the LSB of Bits[0].
func (f *Frame) push(bit byte) {
	for i := MaxBytes - 1; i > 0; i-- {
		f.Bits[i] = f.Bits[i]<<1 | f.Bits[i-1]>>7
	}
	f.Bits[0] = f.Bits[0]<<1 | bit&1
}
