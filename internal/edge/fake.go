package edge

import (
	"fmt"
	"sync"
	"time"
)

// FakeSource is a test double that delivers edges when told to.
// Handlers run synchronously on the goroutine calling Fire or Deliver.
type FakeSource struct {
	// Caps lists the lines the fake pretends to support.
	Caps Capabilities

	// Calls records every operation in order, e.g. "bind 2", "disable 3".
	Calls []string

	// CloseError, if set, is returned by Close.
	CloseError error

	// Closed tracks if Close was called.
	Closed bool

	registry *Registry

	mu      sync.Mutex
	tick    time.Duration
	lines   map[int]*fakeLine
	pending []pendingEdge
}

type fakeLine struct {
	value   Bit
	handler Handler
	gate    Gate
	input   bool
}

type pendingEdge struct {
	line int
	ts   time.Duration
}

// NewFakeSource creates a FakeSource where every listed line is edge capable.
func NewFakeSource(lines ...int) *FakeSource {
	caps := make(Capabilities, len(lines))
	for _, l := range lines {
		caps[l] = LineCaps{Line: l, Name: fmt.Sprintf("GPIO%d", l), EdgeCapable: true}
	}
	return NewFakeSourceWithCaps(caps, NewRegistry())
}

// NewFakeSourceWithCaps creates a FakeSource with an explicit capability table
// and registry. Sharing a registry between fakes models one platform with
// several decoders.
func NewFakeSourceWithCaps(caps Capabilities, registry *Registry) *FakeSource {
	return &FakeSource{
		Caps:     caps,
		registry: registry,
		lines:    make(map[int]*fakeLine),
	}
}

// Bind claims the line and stores the handler.
func (f *FakeSource) Bind(line int, value Bit, owner any, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, fmt.Sprintf("bind %d", line))
	if _, err := f.Caps.Lookup(line); err != nil {
		return err
	}
	if err := f.registry.Claim(line, owner); err != nil {
		return err
	}

	fl := f.line(line)
	fl.value = value
	fl.handler = h
	fl.gate.Open()
	return nil
}

// Unbind drops the handler and releases the claim.
func (f *FakeSource) Unbind(line int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, fmt.Sprintf("unbind %d", line))
	fl, ok := f.lines[line]
	if !ok || fl.handler == nil {
		return fmt.Errorf("line %d: %w", line, ErrNotBound)
	}
	fl.handler = nil
	fl.gate.Shut()
	f.registry.Release(line)
	return nil
}

// Capabilities returns Caps.
func (f *FakeSource) Capabilities() Capabilities {
	return f.Caps
}

// SetInput marks the line as an input.
func (f *FakeSource) SetInput(line int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, fmt.Sprintf("input %d", line))
	if _, err := f.Caps.Lookup(line); err != nil {
		return err
	}
	f.line(line).input = true
	return nil
}

// ClearPending drops edges latched on the line so far.
func (f *FakeSource) ClearPending(line int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, fmt.Sprintf("clear %d", line))
	if fl, ok := f.lines[line]; ok {
		f.tick++
		fl.gate.Clear(f.tick)
	}
}

// Enable opens the line's gate.
func (f *FakeSource) Enable(line int) error {
	return f.setGate(line, "enable", true)
}

// Disable shuts the line's gate.
func (f *FakeSource) Disable(line int) error {
	return f.setGate(line, "disable", false)
}

func (f *FakeSource) setGate(line int, op string, open bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, fmt.Sprintf("%s %d", op, line))
	fl, ok := f.lines[line]
	if !ok || fl.handler == nil {
		return fmt.Errorf("line %d: %w", line, ErrNotBound)
	}
	if open {
		fl.gate.Open()
	} else {
		fl.gate.Shut()
	}
	return nil
}

// Close releases all bound lines.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for line, fl := range f.lines {
		if fl.handler != nil {
			f.registry.Release(line)
		}
	}
	f.lines = make(map[int]*fakeLine)
	f.Closed = true
	return f.CloseError
}

// Fire simulates a falling edge on line and reports whether it reached a handler.
func (f *FakeSource) Fire(line int) bool {
	f.mu.Lock()
	f.tick++
	h, value, ok := f.admit(line, f.tick)
	f.mu.Unlock()

	if !ok {
		return false
	}
	h(value)
	return true
}

// Latch records an edge on line without delivering it, like a hardware flag
// that is set but not yet serviced. Deliver hands latched edges over.
func (f *FakeSource) Latch(line int) {
	f.mu.Lock()
	f.tick++
	f.pending = append(f.pending, pendingEdge{line: line, ts: f.tick})
	f.mu.Unlock()
}

// Deliver hands over latched edges in order and returns how many reached a handler.
func (f *FakeSource) Deliver() int {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	n := 0
	for _, p := range pending {
		f.mu.Lock()
		h, value, ok := f.admit(p.line, p.ts)
		f.mu.Unlock()
		if ok {
			h(value)
			n++
		}
	}
	return n
}

// IsInput reports whether SetInput was called for line.
func (f *FakeSource) IsInput(line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.lines[line]
	return ok && fl.input
}

// IsEnabled reports whether line is bound with its gate open.
func (f *FakeSource) IsEnabled(line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.lines[line]
	return ok && fl.handler != nil && fl.gate.IsOpen()
}

// Reset clears the recorded calls.
func (f *FakeSource) Reset() {
	f.mu.Lock()
	f.Calls = nil
	f.mu.Unlock()
}

func (f *FakeSource) line(line int) *fakeLine {
	fl, ok := f.lines[line]
	if !ok {
		fl = &fakeLine{}
		f.lines[line] = fl
	}
	return fl
}

func (f *FakeSource) admit(line int, ts time.Duration) (Handler, Bit, bool) {
	fl, ok := f.lines[line]
	if !ok || fl.handler == nil || !fl.gate.Admit(ts) {
		return nil, 0, false
	}
	return fl.handler, fl.value, true
}
