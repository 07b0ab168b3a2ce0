//go:build !linux

package edge

import "errors"

// ChipSource is not available on non-Linux platforms.
type ChipSource struct{}

// NewChipSource returns an error on non-Linux platforms.
func NewChipSource(name string, registry *Registry) (*ChipSource, error) {
	return nil, errors.New("edge: gpio character device not supported on this platform (requires Linux)")
}

// Capabilities returns an empty table.
func (s *ChipSource) Capabilities() Capabilities { return nil }

// Bind always fails with ErrNotCapable.
func (s *ChipSource) Bind(line int, value Bit, owner any, h Handler) error { return ErrNotCapable }

// Unbind always fails with ErrNotBound.
func (s *ChipSource) Unbind(line int) error { return ErrNotBound }

// SetInput always fails with ErrNotCapable.
func (s *ChipSource) SetInput(line int) error { return ErrNotCapable }

// ClearPending is a no-op.
func (s *ChipSource) ClearPending(line int) {}

// Enable always fails with ErrNotBound.
func (s *ChipSource) Enable(line int) error { return ErrNotBound }

// Disable always fails with ErrNotBound.
func (s *ChipSource) Disable(line int) error { return ErrNotBound }

// Close is a no-op.
func (s *ChipSource) Close() error { return nil }
