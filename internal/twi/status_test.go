package twi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StatusFor(t *testing.T) {
	type testArgs struct {
		role     Role
		dir      Direction
		phase    Phase
		outcome  Outcome
		expected Status
	}

	testDo := func(t *testing.T, in testArgs) {
		s, err := StatusFor(in.role, in.dir, in.phase, in.outcome)
		require.NoError(t, err)
		assert.Equal(t, in.expected, s, "got %s", s)
		assert.Zero(t, uint8(s)&0x07, "low bits must be clear")
	}

	cases := map[string]testArgs{
		"start":                {RoleMaster, DirectionNone, PhaseStart, OutcomeNone, 0x08},
		"repeated start":       {RoleMaster, DirectionNone, PhaseRepeatedStart, OutcomeNone, 0x10},
		"MT SLA ack":           {RoleMaster, DirectionTransmit, PhaseAddressSent, OutcomeAck, 0x18},
		"MT SLA nack":          {RoleMaster, DirectionTransmit, PhaseAddressSent, OutcomeNack, 0x20},
		"MT data ack":          {RoleMaster, DirectionTransmit, PhaseDataSent, OutcomeAck, 0x28},
		"MT data nack":         {RoleMaster, DirectionTransmit, PhaseDataSent, OutcomeNack, 0x30},
		"MT arbitration lost":  {RoleMaster, DirectionTransmit, PhaseDataSent, OutcomeArbitrationLost, 0x38},
		"MT SLA arb lost":      {RoleMaster, DirectionTransmit, PhaseAddressSent, OutcomeArbitrationLost, 0x38},
		"MR SLA arb lost":      {RoleMaster, DirectionReceive, PhaseAddressSent, OutcomeArbitrationLost, 0x38},
		"MR nack bit arb lost": {RoleMaster, DirectionReceive, PhaseDataReceived, OutcomeArbitrationLost, 0x38},
		"MR SLA ack":           {RoleMaster, DirectionReceive, PhaseAddressSent, OutcomeAck, 0x40},
		"MR SLA nack":          {RoleMaster, DirectionReceive, PhaseAddressSent, OutcomeNack, 0x48},
		"MR data ack":          {RoleMaster, DirectionReceive, PhaseDataReceived, OutcomeAck, 0x50},
		"MR data nack":         {RoleMaster, DirectionReceive, PhaseDataReceived, OutcomeNack, 0x58},
		"SR SLA ack":           {RoleSlave, DirectionReceive, PhaseAddressReceived, OutcomeAck, 0x60},
		"SR arb lost SLA":      {RoleSlave, DirectionReceive, PhaseAddressReceived, OutcomeArbitrationLost, 0x68},
		"SR general call":      {RoleSlave, DirectionReceive, PhaseAddressReceived, OutcomeGeneralCall, 0x70},
		"SR arb lost gcall":    {RoleSlave, DirectionReceive, PhaseAddressReceived, OutcomeArbitrationLostGeneralCall, 0x78},
		"SR data ack":          {RoleSlave, DirectionReceive, PhaseDataReceived, OutcomeAck, 0x80},
		"SR data nack":         {RoleSlave, DirectionReceive, PhaseDataReceived, OutcomeNack, 0x88},
		"SR gcall data ack":    {RoleSlave, DirectionReceive, PhaseDataReceived, OutcomeGeneralCall, 0x90},
		"SR gcall data nack":   {RoleSlave, DirectionReceive, PhaseDataReceived, OutcomeGeneralCallNack, 0x98},
		"SR stop":              {RoleSlave, DirectionReceive, PhaseStop, OutcomeNone, 0xA0},
		"ST stop":              {RoleSlave, DirectionTransmit, PhaseStop, OutcomeNone, 0xA0},
		"ST SLA ack":           {RoleSlave, DirectionTransmit, PhaseAddressReceived, OutcomeAck, 0xA8},
		"ST arb lost SLA":      {RoleSlave, DirectionTransmit, PhaseAddressReceived, OutcomeArbitrationLost, 0xB0},
		"ST data ack":          {RoleSlave, DirectionTransmit, PhaseDataSent, OutcomeAck, 0xB8},
		"ST data nack":         {RoleSlave, DirectionTransmit, PhaseDataSent, OutcomeNack, 0xC0},
		"ST last data ack":     {RoleSlave, DirectionTransmit, PhaseDataSent, OutcomeLastByte, 0xC8},
		"no info":              {RoleMaster, DirectionNone, PhaseNoInfo, OutcomeNone, 0xF8},
		"bus error":            {RoleMaster, DirectionNone, PhaseBusError, OutcomeNone, 0x00},
		"slave bus error":      {RoleSlave, DirectionNone, PhaseBusError, OutcomeNone, 0x00},
		"slave no info":        {RoleSlave, DirectionNone, PhaseNoInfo, OutcomeNone, 0xF8},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			testDo(t, in)
		})
	}
}

func Test_StatusFor_Unreachable(t *testing.T) {
	_, err := StatusFor(RoleSlave, DirectionReceive, PhaseStart, OutcomeNone)
	require.Error(t, err)

	var unreachable *UnreachableStateError
	require.True(t, errors.As(err, &unreachable))
	assert.Equal(t, RoleSlave, unreachable.Role)
	assert.Equal(t, PhaseStart, unreachable.Phase)

	assert.Panics(t, func() {
		mustStatus(RoleMaster, DirectionTransmit, PhaseDataReceived, OutcomeAck)
	})
}

func Test_StatusTableCoversEveryCode(t *testing.T) {
	seen := make(map[Status]bool)
	for _, s := range statusTable {
		seen[s] = true
	}
	for s := range statusNames {
		assert.True(t, seen[s], "status 0x%02X has no table entry", uint8(s))
	}
}

func Test_StatusString(t *testing.T) {
	assert.Equal(t, "START", StatusStart.String())
	assert.Equal(t, "SR_STOP", StatusSRStop.String())
	assert.Equal(t, "BUS_ERROR", StatusBusError.String())
	assert.Equal(t, "STATUS_07", Status(0x07).String())
}
