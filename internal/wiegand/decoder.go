package wiegand

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sweeney/wiegand-reader/internal/diag"
	"github.com/sweeney/wiegand-reader/internal/edge"
)

// Decoder captures frames from one Wiegand bus.
//
// mu is the decoder's critical section: edge callbacks, TryFinishFrame and
// Clear all hold it, so a bit can never land half way through a publish.
type Decoder struct {
	low, high      int
	source         edge.Source
	clock          Clock
	sink           diag.Sink
	maxBitInterval uint32

	// epoch changes whenever pending edges are cleared; an edge that was
	// admitted under an older epoch is dropped.
	epoch atomic.Uint64

	mu        sync.Mutex
	state     State  // authoritative capture state
	work      Frame  // in-progress frame; TotalMicros unused
	first     uint32 // timestamp of the first bit of work
	last      uint32 // timestamp of the latest bit of work
	status    State  // state as of the last poll
	published Frame
	overruns  uint64
	failed    bool // Begin failed; Clear cannot leave Error
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxBitInterval sets the silence, in microseconds, that completes a frame.
func WithMaxBitInterval(us uint32) Option {
	return func(d *Decoder) { d.maxBitInterval = us }
}

// WithSink sets where overrun notices and Dump output go.
func WithSink(s diag.Sink) Option {
	return func(d *Decoder) { d.sink = s }
}

// New creates an uninitialized decoder for the D0 line low and the D1 line high.
// Nothing is bound until Begin.
func New(low, high int, source edge.Source, clock Clock, opts ...Option) *Decoder {
	d := &Decoder{
		low:            low,
		high:           high,
		source:         source,
		clock:          clock,
		sink:           diag.Discard,
		maxBitInterval: DefaultMaxBitInterval,
		state:          Uninitialized,
		status:         Uninitialized,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Begin binds both lines and moves the decoder to Idle.
//
// A decoder can only be started once; later calls return ErrAlreadyInitialized.
// If either line cannot be bound the decoder enters Error for good, any line
// it did bind is released, and the returned error wraps edge.ErrNotCapable or
// edge.ErrLineClaimed.
func (d *Decoder) Begin() error {
	// Lines bound before a failure are released once mu is dropped, so a
	// handler waiting on mu can return while its line is closed.
	var bound []int
	defer func() {
		for _, line := range bound {
			if err := d.source.Unbind(line); err != nil {
				d.sink.Notice("wiegand: unbind line %d: %v", line, err)
			}
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Uninitialized {
		return ErrAlreadyInitialized
	}

	lines := []struct {
		name  string
		line  int
		value edge.Bit
	}{
		{"D0", d.low, edge.Zero},
		{"D1", d.high, edge.One},
	}

	for _, l := range lines {
		if err := d.source.SetInput(l.line); err != nil {
			d.fail()
			return fmt.Errorf("set %s line %d as input: %w", l.name, l.line, err)
		}
	}
	// Edges raised while binding wait on mu and are then dropped by
	// ClearPending and the epoch change, so the decoder never sees its own
	// setup as a bit.
	var ok []int
	for _, l := range lines {
		if err := d.source.Bind(l.line, l.value, d, d.handle); err != nil {
			d.fail()
			bound = ok
			return fmt.Errorf("bind %s line %d: %w", l.name, l.line, err)
		}
		ok = append(ok, l.line)
	}
	for _, l := range lines {
		d.source.ClearPending(l.line)
	}
	d.epoch.Add(1)

	d.state = Idle
	d.clearLocked()
	return nil
}

func (d *Decoder) fail() {
	d.state = Error
	d.failed = true
}

// handle is the edge handler. It runs on the edge source's goroutine.
func (d *Decoder) handle(bit edge.Bit) {
	d.readBit(bit, d.epoch.Load())
}

func (d *Decoder) readBit(bit edge.Bit, epoch uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Uninitialized || d.state == Error {
		return
	}
	if epoch != d.epoch.Load() {
		return
	}

	now := d.clock.Micros()
	switch {
	case d.state == Done:
		// previous frame was never consumed
		d.discardLocked(now)
	case d.state == Receiving && now < d.last:
		// clock wrapped mid-frame
		d.state = Error
		return
	case d.state == Receiving && now-d.last > d.maxBitInterval:
		// previous frame ended but nobody polled
		d.discardLocked(now)
	case d.state == Idle:
		d.first = now
	}

	if d.work.BitCount >= MaxBits {
		d.state = Error
		return
	}

	d.work.BitCount++
	d.work.push(byte(bit))
	d.last = now
	d.state = Receiving
}

// discardLocked drops the working frame and starts a new one at now.
func (d *Decoder) discardLocked(now uint32) {
	dropped := d.work.BitCount
	d.state = Idle
	d.first = now
	d.work = Frame{}
	d.overruns++
	d.sink.Notice("wiegand: buffer overrun, dropped %d bit frame", dropped)
}

// TryFinishFrame publishes the working frame once the bus has been silent
// for longer than the maximum bit interval, and reports whether it did.
//
// It must be called regularly; no timer completes frames on its own. After it
// returns, Status, BitCount, Buffer and TotalMicros are stable until the next
// call. Their contents are only meaningful when Status is Done.
func (d *Decoder) TryFinishFrame() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finishLocked()
}

// TakeFrame is TryFinishFrame followed by handing the frame over, as one
// step. On success the published frame is returned and capture restarts
// from Idle, so an edge arriving right after the poll begins the next frame
// instead of overrunning this one. The published frame stays readable
// through Frame until the next publish or Clear.
func (d *Decoder) TakeFrame() (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.finishLocked() {
		return Frame{}, false
	}

	now := d.clock.Micros()
	d.state = Idle
	d.status = Idle
	d.work = Frame{}
	d.first = now
	d.last = now
	return d.published, true
}

func (d *Decoder) finishLocked() bool {
	if d.state == Uninitialized {
		return false
	}

	now := d.clock.Micros()
	if d.state == Receiving && now < d.last {
		d.state = Error
	}
	if d.state == Receiving && now-d.last > d.maxBitInterval {
		d.state = Done
		d.status = Done
		d.published = Frame{
			Bits:        d.work.Bits,
			BitCount:    d.work.BitCount,
			TotalMicros: d.last - d.first,
		}
		return true
	}

	d.status = d.state
	return false
}

// Clear discards all captured data and returns the decoder to Idle.
// It is the only way out of Error, except after a failed Begin.
func (d *Decoder) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
}

// clearLocked is Clear for callers already holding mu.
func (d *Decoder) clearLocked() {
	if d.state == Uninitialized || d.failed {
		return
	}

	now := d.clock.Micros()
	d.state = Idle
	d.status = Idle
	d.first = now
	d.last = now
	d.work = Frame{}
	d.published = Frame{}
}

// Suspend stops edge delivery on both lines. Captured data is left alone.
func (d *Decoder) Suspend() {
	if !d.initialized() {
		return
	}
	for _, line := range []int{d.low, d.high} {
		if err := d.source.Disable(line); err != nil {
			d.sink.Notice("wiegand: suspend line %d: %v", line, err)
		}
	}
}

// Resume drops edges latched while suspended and restarts delivery.
func (d *Decoder) Resume() {
	if !d.initialized() {
		return
	}
	for _, line := range []int{d.low, d.high} {
		d.source.ClearPending(line)
	}
	d.epoch.Add(1)
	for _, line := range []int{d.low, d.high} {
		if err := d.source.Enable(line); err != nil {
			d.sink.Notice("wiegand: resume line %d: %v", line, err)
		}
	}
}

// Dump writes the published state to the diagnostic sink.
func (d *Decoder) Dump() {
	d.mu.Lock()
	if d.state == Uninitialized {
		d.mu.Unlock()
		return
	}
	status, f := d.status, d.published
	d.mu.Unlock()

	d.sink.Notice("%s", formatDump(status, f))
}

func formatDump(status State, f Frame) string {
	if status != Done {
		return fmt.Sprintf("wiegand: status=%s", status)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "wiegand: status=%s bits=%d elapsed=%dus buffer={", status, f.BitCount, f.TotalMicros)
	for i := MaxBytes - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02X", f.Bits[i])
		if i > 0 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString("}")
	return sb.String()
}

func (d *Decoder) initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state != Uninitialized
}

// Lines returns the D0 and D1 line identifiers.
func (d *Decoder) Lines() (low, high int) {
	return d.low, d.high
}

// MaxBitInterval returns the silence threshold in microseconds.
func (d *Decoder) MaxBitInterval() uint32 {
	return d.maxBitInterval
}

// Status returns the state as of the last TryFinishFrame or Clear.
func (d *Decoder) Status() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// BitCount returns the bit count of the published frame.
func (d *Decoder) BitCount() int {
	return d.Frame().BitCount
}

// Buffer returns the packed bits of the published frame.
func (d *Decoder) Buffer() [MaxBytes]byte {
	return d.Frame().Bits
}

// TotalMicros returns the first-to-last bit duration of the published frame.
func (d *Decoder) TotalMicros() uint32 {
	return d.Frame().TotalMicros
}

// Frame returns a copy of the published frame.
func (d *Decoder) Frame() Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.published
}

// Overruns returns how many unconsumed frames were dropped.
func (d *Decoder) Overruns() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overruns
}
