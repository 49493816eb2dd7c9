package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nevisdale/twisim/internal/ssd1306"
	"github.com/nevisdale/twisim/internal/twi"
)

func Test_DemoBoot(t *testing.T) {
	d, err := newDemo(nil)
	require.NoError(t, err)

	require.NoError(t, d.boot())
	assert.True(t, d.display.On)
	assert.Equal(t, ssd1306.Horizontal, d.display.Mode())
	assert.EqualValues(t, 1, d.boots)
	assert.EqualValues(t, 0x00, d.rom.Peek(0))
	assert.EqualValues(t, 0x01, d.rom.Peek(1))

	// boot count 1 lights the last block of the top page
	assert.True(t, d.display.RAMPixel(120, 2))
	assert.False(t, d.display.RAMPixel(112, 2))

	require.NoError(t, d.boot())
	assert.EqualValues(t, 2, d.boots)
	assert.EqualValues(t, 0x02, d.rom.Peek(1))
	assert.True(t, d.display.RAMPixel(112, 2))
	assert.False(t, d.display.RAMPixel(120, 2))
}

func Test_DemoStep(t *testing.T) {
	d, err := newDemo(nil)
	require.NoError(t, err)
	require.NoError(t, d.boot())

	for i := 0; i < 30; i++ {
		require.NoError(t, d.Step())
	}

	assert.Equal(t, 30, d.x)
	assert.True(t, d.display.RAMPixel(30, 8))
	assert.True(t, d.display.RAMPixel(30, 63))
	assert.False(t, d.display.RAMPixel(29, 8))
	assert.False(t, d.display.RAMPixel(30, 7), "top page is left alone")
	assert.EqualValues(t, 1, d.peer.Regs[0])

	for _, c := range d.board.Controllers() {
		assert.Equal(t, twi.StateIdle, c.Transaction().State, c.Name())
		assert.False(t, c.Pending(), c.Name())
	}
}

func Test_IntParm(t *testing.T) {
	v, err := intParm("", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	v, err = intParm("7", 4)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = intParm("x", 4)
	assert.Error(t, err)
}
