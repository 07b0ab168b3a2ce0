package edge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func newTestPin(name string, num int) *gpiotest.Pin {
	return &gpiotest.Pin{N: name, Num: num, EdgesChan: make(chan gpio.Level)}
}

func newTestPeriph(t *testing.T, pins ...*gpiotest.Pin) (*PeriphSource, *Registry) {
	t.Helper()
	all := make([]gpio.PinIO, 0, len(pins))
	for _, p := range pins {
		all = append(all, p)
	}
	reg := NewRegistry()
	return newPeriphSource(all, reg), reg
}

func waitBit(t *testing.T, got <-chan Bit) Bit {
	t.Helper()
	select {
	case b := <-got:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for edge")
		return 0
	}
}

func TestPeriphSourceCapabilities(t *testing.T) {
	s, _ := newTestPeriph(t,
		newTestPin("GPIO17", 17),
		newTestPin("GPIO18", 18),
		&gpiotest.Pin{N: "unnumbered", Num: -1},
	)

	caps := s.Capabilities()
	assert.Len(t, caps, 2)
	assert.Equal(t, LineCaps{Line: 17, Name: "GPIO17", EdgeCapable: true}, caps[17])

	_, err := caps.Lookup(-1)
	assert.ErrorIs(t, err, ErrNotCapable)
}

func TestPeriphSourceBindDelivers(t *testing.T) {
	d0, d1 := newTestPin("GPIO17", 17), newTestPin("GPIO18", 18)
	s, reg := newTestPeriph(t, d0, d1)
	got := make(chan Bit, 4)
	handle := func(b Bit) { got <- b }

	require.NoError(t, s.Bind(17, Zero, "owner", handle))
	require.NoError(t, s.Bind(18, One, "owner", handle))
	assert.Equal(t, gpio.PullUp, d0.Pull())
	assert.Equal(t, []int{17, 18}, reg.Lines())

	d1.EdgesChan <- gpio.Low
	assert.Equal(t, One, waitBit(t, got))
	d0.EdgesChan <- gpio.Low
	assert.Equal(t, Zero, waitBit(t, got))

	require.NoError(t, s.Close())
	assert.Empty(t, reg.Lines())
}

func TestPeriphSourceBindErrors(t *testing.T) {
	s, _ := newTestPeriph(t, newTestPin("GPIO17", 17))
	defer s.Close()

	err := s.Bind(4, Zero, "a", func(Bit) {})
	assert.ErrorIs(t, err, ErrNotCapable)

	require.NoError(t, s.Bind(17, Zero, "a", func(Bit) {}))
	err = s.Bind(17, One, "b", func(Bit) {})
	assert.ErrorIs(t, err, ErrLineClaimed)
}

func TestPeriphSourceBindWithoutEdgeSupport(t *testing.T) {
	// A pin that cannot raise edges refuses FallingEdge in In.
	s, reg := newTestPeriph(t, &gpiotest.Pin{N: "GPIO17", Num: 17})
	defer s.Close()

	err := s.Bind(17, Zero, "a", func(Bit) {})
	assert.Error(t, err)
	_, claimed := reg.Owner(17)
	assert.False(t, claimed)
}

func TestPeriphSourceDisableDropsEdges(t *testing.T) {
	pin := newTestPin("GPIO17", 17)
	s, _ := newTestPeriph(t, pin)
	defer s.Close()
	got := make(chan Bit, 4)

	require.NoError(t, s.Bind(17, Zero, "a", func(b Bit) { got <- b }))
	require.NoError(t, s.Disable(17))

	// The second send only completes once the watcher has finished with the first.
	pin.EdgesChan <- gpio.Low
	pin.EdgesChan <- gpio.Low

	require.NoError(t, s.Enable(17))
	pin.EdgesChan <- gpio.Low
	assert.Equal(t, Zero, waitBit(t, got))
	assert.Empty(t, got)

	assert.ErrorIs(t, s.Enable(18), ErrNotBound)
	assert.ErrorIs(t, s.Disable(18), ErrNotBound)
}

func TestPeriphSourceUnbind(t *testing.T) {
	pin := newTestPin("GPIO17", 17)
	s, reg := newTestPeriph(t, pin)
	defer s.Close()

	require.NoError(t, s.Bind(17, Zero, "a", func(Bit) {}))
	require.NoError(t, s.Unbind(17))
	assert.Empty(t, reg.Lines())
	assert.ErrorIs(t, s.Unbind(17), ErrNotBound)

	// The line can be bound again once released.
	got := make(chan Bit, 1)
	require.NoError(t, s.Bind(17, One, "b", func(b Bit) { got <- b }))
	pin.EdgesChan <- gpio.Low
	assert.Equal(t, One, waitBit(t, got))
}

func TestPeriphSourceSetInput(t *testing.T) {
	pin := newTestPin("GPIO17", 17)
	s, _ := newTestPeriph(t, pin)
	defer s.Close()

	require.NoError(t, s.SetInput(17))
	assert.Equal(t, gpio.PullUp, pin.Pull())
	assert.Equal(t, gpio.High, pin.Read())
	assert.ErrorIs(t, s.SetInput(3), ErrNotCapable)
}
