package firmware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/nevisdale/twisim/internal/bus"
	"github.com/nevisdale/twisim/internal/eeprom"
	"github.com/nevisdale/twisim/internal/machine"
	"github.com/nevisdale/twisim/internal/ssd1306"
	"github.com/nevisdale/twisim/internal/twi"
)

const slaveAddress = 0x52

// nackDevice takes its address and refuses every data byte.
type nackDevice struct{}

func (nackDevice) Start(bool) bool  { return true }
func (nackDevice) Write(uint8) bool { return false }
func (nackDevice) Read() uint8      { return 0xFF }
func (nackDevice) Stop()            {}

func newTestBoard(t *testing.T) (*machine.Board, *Master, *Slave) {
	b := machine.New(nil)
	_, err := b.AddBus(0, "i2c0")
	require.NoError(t, err)
	_, err = b.AddTWI(twi.Config{Name: "twi0", Bus: 0, IRQ: 0}, machine.TWI0Base)
	require.NoError(t, err)
	_, err = b.AddTWI(twi.Config{Name: "twi1", Bus: 0, IRQ: 1}, machine.TWI1Base)
	require.NoError(t, err)

	m := NewMaster("twi0", b, machine.TWI0Base, nil)
	s := NewSlave("twi1", b, machine.TWI1Base, nil)
	b.IRQ().Handle(1, s.ISR)
	s.Listen(slaveAddress, true)
	return b, m, s
}

func masterState(b *machine.Board) twi.State {
	return b.Controllers()[0].Transaction().State
}

func Test_MasterToSlave(t *testing.T) {
	t.Run("write", func(t *testing.T) {
		b, m, s := newTestBoard(t)
		require.NoError(t, m.Tx(slaveAddress, []byte{0x10, 0xAA, 0xBB}, nil))

		assert.EqualValues(t, 0xAA, s.Regs[0x10])
		assert.EqualValues(t, 0xBB, s.Regs[0x11])
		assert.EqualValues(t, 0x12, s.Pointer())
		assert.Equal(t, 1, s.Stops)
		assert.Equal(t, twi.StateIdle, masterState(b))
		assert.False(t, b.SimBus(0).Busy())
	})

	t.Run("read", func(t *testing.T) {
		b, m, s := newTestBoard(t)
		s.Regs[0x20] = 0x01
		s.Regs[0x21] = 0x02
		s.Regs[0x22] = 0x03

		r := make([]byte, 3)
		require.NoError(t, m.Tx(slaveAddress, []byte{0x20}, r))
		assert.Equal(t, []byte{0x01, 0x02, 0x03}, r)
		assert.Equal(t, 1, s.Stops, "repeated START ends the pointer write")
		assert.Equal(t, twi.StateIdle, b.Controllers()[1].Transaction().State)
		assert.False(t, b.IRQ().High(1))
	})

	t.Run("general call", func(t *testing.T) {
		_, m, s := newTestBoard(t)
		require.NoError(t, m.Tx(0x00, []byte{0x06, 0x04}, nil))
		assert.Equal(t, []uint8{0x06, 0x04}, s.GeneralCalls)
	})
}

func Test_Recorded(t *testing.T) {
	b, m, _ := newTestBoard(t)
	disp := ssd1306.New(nil)
	require.NoError(t, b.SimBus(0).Attach(ssd1306.DefaultAddress, disp))

	rec := &i2ctest.Record{Bus: m}
	dev := &i2c.Dev{Addr: ssd1306.DefaultAddress, Bus: rec}
	_, err := dev.Write([]byte{0x00, 0xAF, 0xA7})
	require.NoError(t, err)

	assert.True(t, disp.On)
	assert.True(t, disp.Inverted)
	require.Len(t, rec.Ops, 1)
	assert.EqualValues(t, ssd1306.DefaultAddress, rec.Ops[0].Addr)
	assert.Equal(t, []byte{0x00, 0xAF, 0xA7}, rec.Ops[0].W)
}

func Test_EEPROM(t *testing.T) {
	b, m, _ := newTestBoard(t)
	e := eeprom.New(nil)
	require.NoError(t, b.SimBus(0).Attach(eeprom.DefaultAddress, e))
	dev := &i2c.Dev{Addr: eeprom.DefaultAddress, Bus: m}

	require.NoError(t, dev.Tx([]byte{0x00, 0x05, 'h', 'i'}, nil))
	r := make([]byte, 2)
	require.NoError(t, dev.Tx([]byte{0x00, 0x05}, r))
	assert.Equal(t, "hi", string(r))
	assert.True(t, e.Dirty())
}

func Test_Errors(t *testing.T) {
	type testArgs struct {
		setup    func(b *machine.Board)
		addr     uint16
		w        []byte
		r        []byte
		expected error
	}

	testDo := func(t *testing.T, in testArgs) {
		b, m, s := newTestBoard(t)
		if in.setup != nil {
			in.setup(b)
		}

		err := m.Tx(in.addr, in.w, in.r)
		assert.True(t, errors.Is(err, in.expected), "got %v", err)
		assert.Equal(t, twi.StateIdle, masterState(b))
		assert.False(t, b.Controllers()[0].Pending())

		// the controller is usable again
		if b.SimBus(0).Busy() {
			b.SimBus(0).RequestStop(bus.ExternalPort)
		}
		require.NoError(t, m.Tx(slaveAddress, []byte{0x00, 0x5A}, nil))
		assert.EqualValues(t, 0x5A, s.Regs[0])
	}

	t.Run("address nack on write", func(t *testing.T) {
		testDo(t, testArgs{addr: 0x21, w: []byte{1}, expected: ErrAddressNack})
	})

	t.Run("address nack on read", func(t *testing.T) {
		testDo(t, testArgs{addr: 0x21, r: make([]byte, 1), expected: ErrAddressNack})
	})

	t.Run("data nack", func(t *testing.T) {
		testDo(t, testArgs{
			setup: func(b *machine.Board) {
				require.NoError(t, b.SimBus(0).Attach(0x20, nackDevice{}))
			},
			addr:     0x20,
			w:        []byte{1, 2},
			expected: ErrDataNack,
		})
	})

	t.Run("arbitration lost", func(t *testing.T) {
		testDo(t, testArgs{
			setup: func(b *machine.Board) {
				b.SimBus(0).LoseArbitration(0)
			},
			addr:     slaveAddress,
			w:        []byte{1},
			expected: ErrArbitrationLost,
		})
	})

	t.Run("bus held by another master", func(t *testing.T) {
		testDo(t, testArgs{
			setup: func(b *machine.Board) {
				b.SimBus(0).RequestStart(bus.ExternalPort)
			},
			addr:     slaveAddress,
			w:        []byte{1},
			expected: ErrTimeout,
		})
	})
}

func Test_AddressRange(t *testing.T) {
	_, m, _ := newTestBoard(t)
	assert.Error(t, m.Tx(0x80, nil, nil))
}

func Test_Scan(t *testing.T) {
	b, m, _ := newTestBoard(t)
	require.NoError(t, b.SimBus(0).Attach(ssd1306.DefaultAddress, ssd1306.New(nil)))
	require.NoError(t, b.SimBus(0).Attach(eeprom.DefaultAddress, eeprom.New(nil)))

	assert.Equal(t, []uint16{ssd1306.DefaultAddress, eeprom.DefaultAddress, slaveAddress}, m.Scan())
}

func Test_SetSpeed(t *testing.T) {
	type testArgs struct {
		speed     physic.Frequency
		prescaler uint8
		twbr      uint8
	}

	testDo := func(t *testing.T, in testArgs) {
		b, m, _ := newTestBoard(t)
		require.NoError(t, m.SetSpeed(in.speed))
		f, twbr := m.Speed()
		assert.Equal(t, in.speed, f)
		assert.Equal(t, in.twbr, twbr)
		assert.Equal(t, in.prescaler, b.Read8(machine.TWI0Base)&0x03)
	}

	t.Run("standard mode", func(t *testing.T) {
		testDo(t, testArgs{speed: 100 * physic.KiloHertz, prescaler: 0, twbr: 72})
	})
	t.Run("fast mode", func(t *testing.T) {
		testDo(t, testArgs{speed: 400 * physic.KiloHertz, prescaler: 0, twbr: 12})
	})
	t.Run("slow", func(t *testing.T) {
		testDo(t, testArgs{speed: physic.KiloHertz, prescaler: 3, twbr: 124})
	})

	_, m, _ := newTestBoard(t)
	assert.True(t, errors.Is(m.SetSpeed(10*physic.Hertz), ErrSpeed))
	assert.True(t, errors.Is(m.SetSpeed(2*physic.MegaHertz), ErrSpeed))
	assert.True(t, errors.Is(m.SetSpeed(0), ErrSpeed))
}

func Test_StatusError(t *testing.T) {
	err := &StatusError{Want: []twi.Status{twi.StatusStart}, Got: twi.StatusSRStop}
	assert.Equal(t, "firmware: unexpected status 0xA0 SR_STOP, want [START]", err.Error())
}
