package edge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// waitSlice bounds each WaitForEdge call so watchers notice Close.
const waitSlice = 100 * time.Millisecond

// PeriphSource delivers edges through periph.io's GPIO drivers.
// Each bound line gets a goroutine blocked in WaitForEdge; periph does not
// timestamp edges, so the watcher stamps them on receipt.
type PeriphSource struct {
	caps     Capabilities
	pins     map[int]gpio.PinIO
	registry *Registry
	epoch    time.Time

	mu    sync.Mutex
	lines map[int]*periphLine

	done chan struct{}
	wg   sync.WaitGroup
}

type periphLine struct {
	pin     gpio.PinIO
	value   Bit
	handler Handler
	gate    Gate

	stop   chan struct{}
	exited chan struct{}
}

// NewPeriphSource initializes periph's host drivers and lists every numbered pin.
func NewPeriphSource(registry *Registry) (*PeriphSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return newPeriphSource(gpioreg.All(), registry), nil
}

func newPeriphSource(all []gpio.PinIO, registry *Registry) *PeriphSource {
	caps := make(Capabilities)
	pins := make(map[int]gpio.PinIO)
	for _, p := range all {
		n := p.Number()
		if n < 0 {
			continue
		}
		pins[n] = p
		caps[n] = LineCaps{Line: n, Name: p.Name(), EdgeCapable: true}
	}

	return &PeriphSource{
		caps:     caps,
		pins:     pins,
		registry: registry,
		epoch:    time.Now(),
		lines:    make(map[int]*periphLine),
		done:     make(chan struct{}),
	}
}

// Capabilities returns the pin table.
func (s *PeriphSource) Capabilities() Capabilities {
	return s.caps
}

// Bind configures the pin for falling edges and starts its watcher.
func (s *PeriphSource) Bind(line int, value Bit, owner any, h Handler) error {
	if _, err := s.caps.Lookup(line); err != nil {
		return err
	}
	if err := s.registry.Claim(line, owner); err != nil {
		return err
	}

	pin := s.pins[line]
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		s.registry.Release(line)
		return fmt.Errorf("configure pin %s: %w", pin.Name(), err)
	}

	pl := &periphLine{
		pin:     pin,
		value:   value,
		handler: h,
		stop:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	pl.gate.Clear(s.since())
	pl.gate.Open()

	s.mu.Lock()
	s.lines[line] = pl
	s.mu.Unlock()

	s.wg.Add(1)
	go s.watch(pl)
	return nil
}

// Unbind stops the line's watcher, halts the pin and releases the claim.
func (s *PeriphSource) Unbind(line int) error {
	s.mu.Lock()
	pl, ok := s.lines[line]
	if ok {
		delete(s.lines, line)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("line %d: %w", line, ErrNotBound)
	}

	pl.gate.Shut()
	close(pl.stop)
	<-pl.exited

	var err error
	if herr := pl.pin.Halt(); herr != nil {
		err = fmt.Errorf("halt pin %s: %w", pl.pin.Name(), herr)
	}
	s.registry.Release(line)
	return err
}

// SetInput configures the pin as a pulled-up input, keeping edge detection
// on bound lines.
func (s *PeriphSource) SetInput(line int) error {
	if _, err := s.caps.Lookup(line); err != nil {
		return err
	}
	edge := gpio.NoEdge
	s.mu.Lock()
	if _, ok := s.lines[line]; ok {
		edge = gpio.FallingEdge
	}
	s.mu.Unlock()

	pin := s.pins[line]
	if err := pin.In(gpio.PullUp, edge); err != nil {
		return fmt.Errorf("configure pin %s: %w", pin.Name(), err)
	}
	return nil
}

// ClearPending drops edges received before now.
func (s *PeriphSource) ClearPending(line int) {
	if pl := s.line(line); pl != nil {
		pl.gate.Clear(s.since())
	}
}

// Enable lets the line's edges through again.
func (s *PeriphSource) Enable(line int) error {
	pl := s.line(line)
	if pl == nil {
		return fmt.Errorf("line %d: %w", line, ErrNotBound)
	}
	pl.gate.Open()
	return nil
}

// Disable drops the line's edges. The watcher keeps running so no edge
// detection state has to be rebuilt on Enable.
func (s *PeriphSource) Disable(line int) error {
	pl := s.line(line)
	if pl == nil {
		return fmt.Errorf("line %d: %w", line, ErrNotBound)
	}
	pl.gate.Shut()
	return nil
}

// Close stops all watchers and halts the pins.
// Must not be called from a Handler.
func (s *PeriphSource) Close() error {
	close(s.done)
	s.wg.Wait()

	s.mu.Lock()
	lines := s.lines
	s.lines = make(map[int]*periphLine)
	s.mu.Unlock()

	var errs []error
	for line, pl := range lines {
		if err := pl.pin.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt pin %s: %w", pl.pin.Name(), err))
		}
		s.registry.Release(line)
	}

	return errors.Join(errs...)
}

func (s *PeriphSource) watch(pl *periphLine) {
	defer s.wg.Done()
	defer close(pl.exited)
	for {
		select {
		case <-s.done:
			return
		case <-pl.stop:
			return
		default:
		}

		if !pl.pin.WaitForEdge(waitSlice) {
			continue
		}
		if pl.gate.Admit(s.since()) {
			pl.handler(pl.value)
		}
	}
}

func (s *PeriphSource) line(line int) *periphLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[line]
}

func (s *PeriphSource) since() time.Duration {
	return time.Since(s.epoch)
}
