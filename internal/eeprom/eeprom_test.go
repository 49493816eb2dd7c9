package eeprom

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"

	"github.com/nevisdale/twisim/internal/bus"
)

func newTestDev(t *testing.T) (*EEPROM, *i2c.Dev) {
	b := bus.New("i2c0", nil)
	e := New(nil)
	require.NoError(t, b.Attach(DefaultAddress, e))
	return e, &i2c.Dev{Addr: DefaultAddress, Bus: b}
}

func Test_Erased(t *testing.T) {
	e := New(nil)
	assert.EqualValues(t, 0xFF, e.Peek(0))
	assert.EqualValues(t, 0xFF, e.Peek(Size-1))
	assert.False(t, e.Dirty())
}

func Test_WriteRead(t *testing.T) {
	e, dev := newTestDev(t)

	_, err := dev.Write([]byte{0x01, 0x00, 0xDE, 0xAD})
	require.NoError(t, err)
	assert.True(t, e.Dirty())

	r := make([]byte, 3)
	require.NoError(t, dev.Tx([]byte{0x01, 0x00}, r))
	assert.Equal(t, []byte{0xDE, 0xAD, 0xFF}, r)
	assert.EqualValues(t, 0x0103, e.Address())
}

func Test_PageWrap(t *testing.T) {
	e, dev := newTestDev(t)

	// two bytes before the end of page 0, four bytes of data
	_, err := dev.Write([]byte{0x00, 0x3E, 1, 2, 3, 4})
	require.NoError(t, err)

	assert.EqualValues(t, 1, e.Peek(0x3E))
	assert.EqualValues(t, 2, e.Peek(0x3F))
	assert.EqualValues(t, 3, e.Peek(0x00))
	assert.EqualValues(t, 4, e.Peek(0x01))
	assert.EqualValues(t, 0xFF, e.Peek(0x40), "next page untouched")
}

func Test_SequentialReadCrossesPages(t *testing.T) {
	e, dev := newTestDev(t)
	_, err := dev.Write([]byte{0x00, 0x3F, 0x11})
	require.NoError(t, err)
	_, err = dev.Write([]byte{0x00, 0x40, 0x22})
	require.NoError(t, err)

	r := make([]byte, 2)
	require.NoError(t, dev.Tx([]byte{0x00, 0x3F}, r))
	assert.Equal(t, []byte{0x11, 0x22}, r)

	// the pointer wraps at the end of the array
	_, err = dev.Write([]byte{0x7F, 0xFF})
	require.NoError(t, err)
	e.Read()
	assert.Zero(t, e.Address())
}

func Test_CommitAtStop(t *testing.T) {
	e := New(nil)
	e.Start(false)
	e.Write(0x00)
	e.Write(0x10)
	e.Write(0x55)
	assert.EqualValues(t, 0xFF, e.Peek(0x10), "not committed before STOP")
	e.Stop()
	assert.EqualValues(t, 0x55, e.Peek(0x10))

	// a pointer-only transfer commits nothing
	e.Start(false)
	e.Write(0x00)
	e.Write(0x20)
	e.Stop()
	assert.EqualValues(t, 0xFF, e.Peek(0x20))

	// data bytes before the address completes are refused
	e.Start(true)
	assert.False(t, e.Write(0x01))
}

func Test_LoadSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eeprom.bin")

	e := New(nil)
	require.NoError(t, e.Load(path), "missing image starts erased")

	e.Start(false)
	for _, b := range []uint8{0x12, 0x34, 0xAB} {
		e.Write(b)
	}
	e.Stop()
	require.NoError(t, e.Save(path))
	assert.False(t, e.Dirty())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, Size)
	assert.EqualValues(t, 0xAB, raw[0x1234])

	other := New(nil)
	require.NoError(t, other.Load(path))
	assert.EqualValues(t, 0xAB, other.Peek(0x1234))

	short := filepath.Join(dir, "short.bin")
	require.NoError(t, os.WriteFile(short, bytes.Repeat([]byte{0}, 16), 0o644))
	assert.True(t, errors.Is(other.Load(short), ErrImageSize))
}
