// Package edge delivers falling-edge notifications from the two Wiegand data
// lines to a decoder.
//
// A Source binds a line to a handler that is told which logical bit value the
// line carries. Line ownership is first-come-first-served and tracked by a
// Registry; which lines can raise edges at all is a Capabilities table supplied
// by the platform. The linux implementation uses the GPIO character device,
// PeriphSource uses periph.io, and FakeSource lets tests fire edges by hand.
package edge

import (
	"errors"
	"fmt"
)

// Bit is the logical value carried by a data line.
type Bit uint8

const (
	Zero Bit = 0 // D0
	One  Bit = 1 // D1
)

// Handler is called once per falling edge on a bound line.
// Calls for different lines may arrive on different goroutines; ordering of
// near-simultaneous edges is whatever the platform delivers.
type Handler func(Bit)

var (
	// ErrNotCapable is returned when the platform cannot raise edge events on a line.
	ErrNotCapable = errors.New("line is not edge capable")
	// ErrLineClaimed is returned when a line is already bound.
	ErrLineClaimed = errors.New("line already claimed")
	// ErrNotBound is returned by operations on a line that was never bound.
	ErrNotBound = errors.New("line not bound")
)

// Source is a platform facility that turns voltage transitions into Handler calls.
type Source interface {
	// Bind claims the line for owner and starts delivering its falling edges to h.
	// Fails with ErrNotCapable or ErrLineClaimed.
	Bind(line int, value Bit, owner any, h Handler) error

	// Unbind stops delivery on a bound line and releases its claim.
	// Fails with ErrNotBound. Must not be called from the line's Handler.
	Unbind(line int) error

	// SetInput configures the line as an input.
	SetInput(line int) error

	// ClearPending drops any edge latched before this call.
	ClearPending(line int)

	// Enable resumes edge delivery on a bound line.
	Enable(line int) error

	// Disable stops edge delivery on a bound line. Bindings are kept.
	Disable(line int) error

	// Capabilities returns the platform's line table.
	Capabilities() Capabilities

	// Close releases all lines.
	Close() error
}

// LineCaps describes a single line as the platform exposes it.
type LineCaps struct {
	Line        int
	Name        string
	EdgeCapable bool
}

// Capabilities maps a line identifier to its descriptor.
type Capabilities map[int]LineCaps

// Lookup returns the descriptor for line, or ErrNotCapable if the line is
// unknown or cannot raise edges.
func (c Capabilities) Lookup(line int) (LineCaps, error) {
	caps, ok := c[line]
	if !ok || !caps.EdgeCapable {
		return LineCaps{}, fmt.Errorf("line %d: %w", line, ErrNotCapable)
	}
	return caps, nil
}
