package twi

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type busMock struct {
	mock.Mock
}

func (m *busMock) Connect(t Target) Port {
	args := m.Called(t)
	return args.Get(0).(Port)
}

func (m *busMock) RequestStart(p Port) StartResult {
	args := m.Called(p)
	return args.Get(0).(StartResult)
}

func (m *busMock) RequestStop(p Port) {
	m.Called(p)
}

func (m *busMock) SendByte(p Port, b uint8) Outcome {
	args := m.Called(p, b)
	return args.Get(0).(Outcome)
}

func (m *busMock) RequestByte(p Port, ack bool) (uint8, Outcome) {
	args := m.Called(p, ack)
	return args.Get(0).(uint8), args.Get(1).(Outcome)
}

type lineMock struct {
	mock.Mock
}

func (m *lineMock) Assert() {
	m.Called()
}

func (m *lineMock) Deassert() {
	m.Called()
}

type testResolver struct {
	bus  Bus
	line Line
}

func (r *testResolver) Bus(id BusID) (Bus, bool) {
	return r.bus, r.bus != nil && id == 0
}

func (r *testResolver) Line(id LineID) (Line, bool) {
	return r.line, r.line != nil && id == 0
}

const testPort = Port(3)

func newTestController(t *testing.T) (*Controller, *busMock, *lineMock) {
	bus := &busMock{}
	bus.On("Connect", mock.Anything).Return(testPort).Once()
	line := &lineMock{}

	c, err := New(Config{Name: "twi0"}, &testResolver{bus: bus, line: line})
	require.NoError(t, err)

	t.Cleanup(func() {
		bus.AssertExpectations(t)
		line.AssertExpectations(t)
	})
	return c, bus, line
}

// control writes TWCR.
func control(c *Controller, bits uint8) {
	c.WriteRegister(RegControl, bits)
}

// cont is the usual "clear TWINT and carry on" write.
func cont(c *Controller, extra uint8) {
	control(c, ControlTWEN|ControlTWINT|extra)
}
