//go:build linux

package edge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// Consumer is the label the kernel shows for lines held by this process.
const Consumer = "wiegand-reader"

// ChipSource delivers edges from a Linux GPIO character device.
// Lines are requested with pull-up bias since Wiegand data lines idle high.
type ChipSource struct {
	chip     *gpiocdev.Chip
	caps     Capabilities
	registry *Registry

	mu    sync.Mutex
	lines map[int]*chipLine
}

type chipLine struct {
	req     *gpiocdev.Line
	value   Bit
	handler Handler
	gate    Gate
}

// NewChipSource opens the named chip (e.g. "gpiochip0") and builds its
// capability table from the kernel's line info. Lines already held by another
// consumer are reported as not edge capable.
func NewChipSource(name string, registry *Registry) (*ChipSource, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}

	caps := make(Capabilities, chip.Lines())
	for offset := 0; offset < chip.Lines(); offset++ {
		info, err := chip.LineInfo(offset)
		if err != nil {
			continue
		}
		caps[offset] = LineCaps{Line: offset, Name: info.Name, EdgeCapable: !info.Used}
	}

	return &ChipSource{
		chip:     chip,
		caps:     caps,
		registry: registry,
		lines:    make(map[int]*chipLine),
	}, nil
}

// Capabilities returns the chip's line table.
func (s *ChipSource) Capabilities() Capabilities {
	return s.caps
}

// Bind requests the line with falling-edge detection.
func (s *ChipSource) Bind(line int, value Bit, owner any, h Handler) error {
	if _, err := s.caps.Lookup(line); err != nil {
		return err
	}
	if err := s.registry.Claim(line, owner); err != nil {
		return err
	}

	cl := &chipLine{value: value, handler: h}
	cl.gate.Clear(monotonicNow())
	cl.gate.Open()

	s.mu.Lock()
	s.lines[line] = cl
	s.mu.Unlock()

	req, err := s.chip.RequestLine(line,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			s.deliver(evt.Offset, evt.Timestamp)
		}))
	if err != nil {
		s.mu.Lock()
		delete(s.lines, line)
		s.mu.Unlock()
		s.registry.Release(line)
		return fmt.Errorf("request line %d: %w", line, err)
	}

	s.mu.Lock()
	cl.req = req
	s.mu.Unlock()
	return nil
}

// Unbind closes the line request and releases the claim.
func (s *ChipSource) Unbind(line int) error {
	s.mu.Lock()
	cl, ok := s.lines[line]
	if ok {
		delete(s.lines, line)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("line %d: %w", line, ErrNotBound)
	}

	cl.gate.Shut()
	var err error
	if cl.req != nil {
		if cerr := cl.req.Close(); cerr != nil {
			err = fmt.Errorf("close line %d: %w", line, cerr)
		}
	}
	s.registry.Release(line)
	return err
}

// SetInput reconfigures a bound line as a pulled-up input. Unbound lines are
// only checked; Bind requests them as inputs.
func (s *ChipSource) SetInput(line int) error {
	if _, err := s.caps.Lookup(line); err != nil {
		return err
	}
	req := s.request(line)
	if req == nil {
		return nil
	}
	if err := req.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
		return fmt.Errorf("reconfigure line %d: %w", line, err)
	}
	return nil
}

// ClearPending drops events the kernel stamped before now.
func (s *ChipSource) ClearPending(line int) {
	s.mu.Lock()
	cl, ok := s.lines[line]
	s.mu.Unlock()
	if ok {
		cl.gate.Clear(monotonicNow())
	}
}

// Enable re-arms falling-edge detection on a bound line.
func (s *ChipSource) Enable(line int) error {
	s.mu.Lock()
	cl, ok := s.lines[line]
	s.mu.Unlock()
	if !ok || cl.req == nil {
		return fmt.Errorf("line %d: %w", line, ErrNotBound)
	}

	err := cl.req.Reconfigure(gpiocdev.WithFallingEdge)
	cl.gate.Open()
	if err != nil {
		return fmt.Errorf("enable edges on line %d: %w", line, err)
	}
	return nil
}

// Disable turns off edge detection on a bound line. The gate is shut first so
// events already queued by the kernel are dropped as well.
func (s *ChipSource) Disable(line int) error {
	s.mu.Lock()
	cl, ok := s.lines[line]
	s.mu.Unlock()
	if !ok || cl.req == nil {
		return fmt.Errorf("line %d: %w", line, ErrNotBound)
	}

	cl.gate.Shut()
	if err := cl.req.Reconfigure(gpiocdev.WithoutEdges); err != nil {
		return fmt.Errorf("disable edges on line %d: %w", line, err)
	}
	return nil
}

// Close releases every bound line and the chip.
// Must not be called from a Handler: closing a line waits for its handler to return.
func (s *ChipSource) Close() error {
	s.mu.Lock()
	lines := s.lines
	s.lines = make(map[int]*chipLine)
	s.mu.Unlock()

	var errs []error
	for line, cl := range lines {
		cl.gate.Shut()
		if cl.req != nil {
			if err := cl.req.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close line %d: %w", line, err))
			}
		}
		s.registry.Release(line)
	}
	if err := s.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	return errors.Join(errs...)
}

func (s *ChipSource) request(line int) *gpiocdev.Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cl, ok := s.lines[line]; ok {
		return cl.req
	}
	return nil
}

func (s *ChipSource) deliver(line int, ts time.Duration) {
	s.mu.Lock()
	cl, ok := s.lines[line]
	s.mu.Unlock()

	if !ok || !cl.gate.Admit(ts) {
		return
	}
	cl.handler(cl.value)
}

// monotonicNow reads CLOCK_MONOTONIC, the clock the kernel stamps line events with.
func monotonicNow() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return time.Duration(ts.Nano())
}
