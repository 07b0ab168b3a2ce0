package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	bits []Bit
}

func (r *recorder) handle(b Bit) { r.bits = append(r.bits, b) }

func TestFakeSourceFireDeliversBoundValue(t *testing.T) {
	f := NewFakeSource(2, 3)
	rec := &recorder{}

	require.NoError(t, f.Bind(2, Zero, rec, rec.handle))
	require.NoError(t, f.Bind(3, One, rec, rec.handle))

	assert.True(t, f.Fire(3))
	assert.True(t, f.Fire(2))
	assert.True(t, f.Fire(3))
	assert.Equal(t, []Bit{One, Zero, One}, rec.bits)
}

func TestFakeSourceFireUnboundLine(t *testing.T) {
	f := NewFakeSource(2)
	assert.False(t, f.Fire(2))
	assert.False(t, f.Fire(99))
}

func TestFakeSourceBindUnsupportedLine(t *testing.T) {
	f := NewFakeSource(2)
	err := f.Bind(9, Zero, nil, func(Bit) {})
	assert.ErrorIs(t, err, ErrNotCapable)
}

func TestFakeSourceSharedRegistry(t *testing.T) {
	caps := Capabilities{2: {Line: 2, EdgeCapable: true}}
	reg := NewRegistry()
	a := NewFakeSourceWithCaps(caps, reg)
	b := NewFakeSourceWithCaps(caps, reg)

	require.NoError(t, a.Bind(2, Zero, "a", func(Bit) {}))
	assert.ErrorIs(t, b.Bind(2, Zero, "b", func(Bit) {}), ErrLineClaimed)
}

func TestFakeSourceDisableEnable(t *testing.T) {
	f := NewFakeSource(2)
	rec := &recorder{}
	require.NoError(t, f.Bind(2, One, rec, rec.handle))

	require.NoError(t, f.Disable(2))
	assert.False(t, f.IsEnabled(2))
	assert.False(t, f.Fire(2))

	require.NoError(t, f.Enable(2))
	assert.True(t, f.IsEnabled(2))
	assert.True(t, f.Fire(2))
	assert.Len(t, rec.bits, 1)
}

func TestFakeSourceEnableUnbound(t *testing.T) {
	f := NewFakeSource(2)
	assert.ErrorIs(t, f.Enable(2), ErrNotBound)
	assert.ErrorIs(t, f.Disable(2), ErrNotBound)
}

func TestFakeSourceClearPendingDropsLatchedEdges(t *testing.T) {
	f := NewFakeSource(2)
	rec := &recorder{}
	require.NoError(t, f.Bind(2, Zero, rec, rec.handle))

	f.Latch(2)
	f.ClearPending(2)
	f.Latch(2)

	assert.Equal(t, 1, f.Deliver())
	assert.Len(t, rec.bits, 1)
}

func TestFakeSourceLatchedWhileDisabled(t *testing.T) {
	f := NewFakeSource(2)
	rec := &recorder{}
	require.NoError(t, f.Bind(2, Zero, rec, rec.handle))

	require.NoError(t, f.Disable(2))
	f.Latch(2)
	assert.Equal(t, 0, f.Deliver())
	assert.Empty(t, rec.bits)
}

func TestFakeSourceCalls(t *testing.T) {
	f := NewFakeSource(2)
	require.NoError(t, f.SetInput(2))
	require.NoError(t, f.Bind(2, Zero, nil, func(Bit) {}))
	f.ClearPending(2)

	assert.Equal(t, []string{"input 2", "bind 2", "clear 2"}, f.Calls)
	assert.True(t, f.IsInput(2))

	f.Reset()
	assert.Empty(t, f.Calls)
}

func TestFakeSourceCloseReleasesLines(t *testing.T) {
	caps := Capabilities{2: {Line: 2, EdgeCapable: true}}
	reg := NewRegistry()
	f := NewFakeSourceWithCaps(caps, reg)
	require.NoError(t, f.Bind(2, Zero, "a", func(Bit) {}))

	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
	assert.Empty(t, reg.Lines())
	assert.False(t, f.Fire(2))
}

func TestFakeSourceUnbind(t *testing.T) {
	caps := Capabilities{2: {Line: 2, Name: "GPIO2", EdgeCapable: true}}
	reg := NewRegistry()
	f := NewFakeSourceWithCaps(caps, reg)
	require.NoError(t, f.Bind(2, Zero, "a", func(Bit) {}))

	require.NoError(t, f.Unbind(2))
	assert.Empty(t, reg.Lines())
	assert.False(t, f.Fire(2))
	assert.False(t, f.IsEnabled(2))
	assert.ErrorIs(t, f.Unbind(2), ErrNotBound)
	assert.ErrorIs(t, f.Unbind(7), ErrNotBound)
	assert.Equal(t, []string{"bind 2", "unbind 2", "unbind 2", "unbind 7"}, f.Calls)

	require.NoError(t, f.Bind(2, One, "b", func(Bit) {}))
	assert.Equal(t, caps, f.Capabilities())
}
