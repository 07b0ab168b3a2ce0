package reader

import (
	"strings"
	"testing"
	"time"

	"github.com/sweeney/wiegand-reader/internal/edge"
	"github.com/sweeney/wiegand-reader/internal/wiegand"
)

const (
	d0 = 5
	d1 = 6
)

type bus struct {
	src   *edge.FakeSource
	clock *wiegand.FakeClock
	dec   *wiegand.Decoder
}

func newBus(t *testing.T) *bus {
	t.Helper()
	b := &bus{
		src:   edge.NewFakeSource(d0, d1),
		clock: wiegand.NewFakeClock(0),
	}
	b.dec = wiegand.New(d0, d1, b.src, b.clock)
	if err := b.dec.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return b
}

func (b *bus) send(bits string, gap uint32) {
	for i := 0; i < len(bits); i++ {
		if i > 0 {
			b.clock.Advance(gap)
		}
		if bits[i] == '1' {
			b.src.Fire(d1)
		} else {
			b.src.Fire(d0)
		}
	}
}

func TestNewMonitor(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(newBus(t).dec, start)

	if m.LastFrame() != nil {
		t.Error("new monitor should have no last frame")
	}
	if m.CountsSnapshot() != (Counts{}) {
		t.Errorf("expected zero counts, got %+v", m.CountsSnapshot())
	}
	if !m.lastHeartbeat.Equal(start) {
		t.Errorf("expected lastHeartbeat %v, got %v", start, m.lastHeartbeat)
	}
}

func TestProcessNoActivity(t *testing.T) {
	b := newBus(t)
	m := NewMonitor(b.dec, time.Now())

	if events := m.Process(time.Now()); len(events) != 0 {
		t.Errorf("expected no events, got %v", events)
	}
	if m.CurrentStatus() != wiegand.Idle {
		t.Errorf("expected Idle, got %s", m.CurrentStatus())
	}
}

func TestProcessFrame(t *testing.T) {
	b := newBus(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(b.dec, now)

	bits := "10101010101010101010101011"
	b.send(bits, 1000)

	if events := m.Process(now); len(events) != 0 {
		t.Fatalf("expected no events mid-frame, got %v", events)
	}
	if m.CurrentStatus() != wiegand.Receiving {
		t.Errorf("expected Receiving, got %s", m.CurrentStatus())
	}

	b.clock.Advance(6000)
	events := m.Process(now.Add(time.Second))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	e := events[0]
	if e.Type != EventFrame {
		t.Errorf("expected FRAME, got %s", e.Type)
	}
	if e.BitCount != 26 {
		t.Errorf("expected 26 bits, got %d", e.BitCount)
	}
	if e.Bits != bits {
		t.Errorf("bits: got %s, want %s", e.Bits, bits)
	}
	if e.Hex != "2AAAAAB" {
		t.Errorf("hex: got %s", e.Hex)
	}
	if e.ElapsedMicros != 25000 {
		t.Errorf("expected 25000us, got %d", e.ElapsedMicros)
	}
	if !e.Timestamp.Equal(now.Add(time.Second)) {
		t.Errorf("unexpected timestamp %v", e.Timestamp)
	}

	// The frame was consumed.
	if m.CurrentStatus() != wiegand.Idle {
		t.Errorf("expected Idle after consuming, got %s", m.CurrentStatus())
	}
	if m.CountsSnapshot().Frames != 1 {
		t.Errorf("expected 1 frame counted, got %d", m.CountsSnapshot().Frames)
	}
	last := m.LastFrame()
	if last == nil || last.Bits != bits {
		t.Errorf("unexpected last frame %+v", last)
	}

	if events := m.Process(now.Add(2 * time.Second)); len(events) != 0 {
		t.Errorf("expected no repeat events, got %v", events)
	}
}

func TestProcessBackToBackFramesNoOverrun(t *testing.T) {
	b := newBus(t)
	m := NewMonitor(b.dec, time.Now())

	for i := 0; i < 3; i++ {
		b.send("1100", 1000)
		b.clock.Advance(6000)
		events := m.Process(time.Now())
		if len(events) != 1 || events[0].Type != EventFrame {
			t.Fatalf("frame %d: unexpected events %v", i, events)
		}
		b.clock.Advance(1000)
	}

	c := m.CountsSnapshot()
	if c.Frames != 3 || c.Overruns != 0 {
		t.Errorf("unexpected counts %+v", c)
	}
}

func TestProcessError(t *testing.T) {
	b := newBus(t)
	m := NewMonitor(b.dec, time.Now())

	b.send(strings.Repeat("1", wiegand.MaxBits+1), 100)
	b.clock.Advance(6000)

	events := m.Process(time.Now())
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("expected one ERROR event, got %v", events)
	}
	if m.CountsSnapshot().Errors != 1 {
		t.Errorf("expected 1 error counted, got %d", m.CountsSnapshot().Errors)
	}

	// Cleared, so the next frame is captured.
	b.send("01", 100)
	b.clock.Advance(6000)
	events = m.Process(time.Now())
	if len(events) != 1 || events[0].Type != EventFrame {
		t.Fatalf("expected FRAME after error, got %v", events)
	}
}

func TestProcessOverrun(t *testing.T) {
	b := newBus(t)
	m := NewMonitor(b.dec, time.Now())

	b.send("111", 1000)
	b.clock.Advance(10000) // silence passes without a poll
	b.send("00", 1000)
	b.clock.Advance(6000)

	events := m.Process(time.Now())
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", events)
	}
	if events[0].Type != EventOverrun || events[0].Dropped != 1 {
		t.Errorf("unexpected overrun event %+v", events[0])
	}
	if events[1].Type != EventFrame || events[1].Bits != "00" {
		t.Errorf("unexpected frame event %+v", events[1])
	}
	if m.CountsSnapshot().Overruns != 1 {
		t.Errorf("expected 1 overrun, got %d", m.CountsSnapshot().Overruns)
	}
}

// edgeAfterTake fires one edge as soon as a frame has been taken, like a
// reader starting its next transmission while the poll is still running.
type edgeAfterTake struct {
	*wiegand.Decoder
	src   *edge.FakeSource
	line  int
	fired bool
}

func (e *edgeAfterTake) TakeFrame() (wiegand.Frame, bool) {
	f, ok := e.Decoder.TakeFrame()
	if ok && !e.fired {
		e.fired = true
		e.src.Fire(e.line)
	}
	return f, ok
}

func TestProcessEdgeDuringConsume(t *testing.T) {
	b := newBus(t)
	dec := &edgeAfterTake{Decoder: b.dec, src: b.src, line: d1}
	m := NewMonitor(dec, time.Now())

	b.send("01010101010101010101010101", 1000)
	b.clock.Advance(6000)
	events := m.Process(time.Now())
	if len(events) != 1 || events[0].BitCount != 26 {
		t.Fatalf("expected one 26-bit frame, got %+v", events)
	}
	if !dec.fired {
		t.Fatal("edge was not fired during consume")
	}

	// The edge fired during the consume is the first bit of the second frame.
	second := "10101010101010101010101010"
	b.clock.Advance(1000)
	b.send(second[1:], 1000)
	b.clock.Advance(6000)

	events = m.Process(time.Now())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventFrame || events[0].BitCount != 26 {
		t.Errorf("expected 26-bit frame, got %s with %d bits", events[0].Type, events[0].BitCount)
	}
	if events[0].Bits != second {
		t.Errorf("bits: got %s, want %s", events[0].Bits, second)
	}
	if events[0].ElapsedMicros != 25000 {
		t.Errorf("expected 25000us, got %d", events[0].ElapsedMicros)
	}
	if n := m.CountsSnapshot().Overruns; n != 0 {
		t.Errorf("expected no overruns, got %d", n)
	}
}

// scripted is a FrameSource that returns fixed answers.
type scripted struct {
	finish   bool
	status   wiegand.State
	frame    wiegand.Frame
	overruns uint64
	cleared  int
}

func (s *scripted) TakeFrame() (wiegand.Frame, bool) {
	if !s.finish {
		return wiegand.Frame{}, false
	}
	s.finish = false
	s.status = wiegand.Idle
	return s.frame, true
}

func (s *scripted) Status() wiegand.State { return s.status }
func (s *scripted) Clear()                { s.cleared++; s.status = wiegand.Idle; s.finish = false }
func (s *scripted) Overruns() uint64      { return s.overruns }

func TestProcessReceivingDoesNotClear(t *testing.T) {
	s := &scripted{status: wiegand.Receiving}
	m := NewMonitor(s, time.Now())

	m.Process(time.Now())
	if s.cleared != 0 {
		t.Errorf("decoder should not be cleared mid-frame, cleared %d times", s.cleared)
	}
}

func TestLastFrameIsCopy(t *testing.T) {
	s := &scripted{finish: true, status: wiegand.Done, frame: wiegand.Frame{BitCount: 1}}
	m := NewMonitor(s, time.Now())
	m.Process(time.Now())

	last := m.LastFrame()
	last.Bits = "changed"
	if m.LastFrame().Bits == "changed" {
		t.Error("LastFrame should return a copy")
	}
}

func TestCheckHeartbeat(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &scripted{status: wiegand.Idle}
	m := NewMonitor(s, start)

	if hb := m.CheckHeartbeat(start.Add(14*time.Minute), 15*time.Minute); hb != nil {
		t.Error("expected no heartbeat before interval")
	}

	hb := m.CheckHeartbeat(start.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}

	if hb := m.CheckHeartbeat(start.Add(20*time.Minute), 15*time.Minute); hb != nil {
		t.Error("expected no heartbeat before next interval")
	}
	if hb := m.CheckHeartbeat(start.Add(30*time.Minute), 15*time.Minute); hb == nil {
		t.Error("expected second heartbeat")
	}
}

func TestCheckHeartbeatDisabled(t *testing.T) {
	start := time.Now()
	m := NewMonitor(&scripted{}, start)

	if hb := m.CheckHeartbeat(start.Add(time.Hour), 0); hb != nil {
		t.Error("heartbeat should be disabled with zero interval")
	}
	if hb := m.CheckHeartbeat(start.Add(time.Hour), -time.Second); hb != nil {
		t.Error("heartbeat should be disabled with negative interval")
	}
}
