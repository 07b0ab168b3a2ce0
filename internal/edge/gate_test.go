package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateStartsShut(t *testing.T) {
	var g Gate
	assert.False(t, g.IsOpen())
	assert.False(t, g.Admit(10))
}

func TestGateWatermark(t *testing.T) {
	var g Gate
	g.Open()
	g.Clear(100)

	assert.False(t, g.Admit(99))
	assert.True(t, g.Admit(100))
	assert.True(t, g.Admit(101))

	g.Shut()
	assert.False(t, g.Admit(200))
}
