package twi

import "fmt"

// Status is the code held in bits 7-3 of the status register. The low three
// bits of a Status are always zero.
type Status uint8

const (
	StatusStart           Status = 0x08 // START transmitted
	StatusRepeatedStart   Status = 0x10 // repeated START transmitted
	StatusMTAddressAck    Status = 0x18 // SLA+W transmitted, ACK received
	StatusMTAddressNack   Status = 0x20 // SLA+W transmitted, NACK received
	StatusMTDataAck       Status = 0x28 // data transmitted, ACK received
	StatusMTDataNack      Status = 0x30 // data transmitted, NACK received
	StatusArbitrationLost Status = 0x38 // arbitration lost in SLA+R/W, data or NACK bit
	StatusMRAddressAck    Status = 0x40 // SLA+R transmitted, ACK received
	StatusMRAddressNack   Status = 0x48 // SLA+R transmitted, NACK received
	StatusMRDataAck       Status = 0x50 // data received, ACK returned
	StatusMRDataNack      Status = 0x58 // data received, NACK returned

	StatusSRAddressAck        Status = 0x60 // own SLA+W received, ACK returned
	StatusSRArbLostAddressAck Status = 0x68 // arbitration lost, own SLA+W received
	StatusSRGeneralCallAck    Status = 0x70 // general call received, ACK returned
	StatusSRArbLostGeneralAck Status = 0x78 // arbitration lost, general call received
	StatusSRDataAck           Status = 0x80 // addressed, data received, ACK returned
	StatusSRDataNack          Status = 0x88 // addressed, data received, NACK returned
	StatusSRGeneralDataAck    Status = 0x90 // general call data received, ACK returned
	StatusSRGeneralDataNack   Status = 0x98 // general call data received, NACK returned
	StatusSRStop              Status = 0xA0 // STOP or repeated START while selected

	StatusSTAddressAck        Status = 0xA8 // own SLA+R received, ACK returned
	StatusSTArbLostAddressAck Status = 0xB0 // arbitration lost, own SLA+R received
	StatusSTDataAck           Status = 0xB8 // data transmitted, ACK received
	StatusSTDataNack          Status = 0xC0 // data transmitted, NACK received
	StatusSTLastDataAck       Status = 0xC8 // last data byte transmitted, ACK received

	StatusNoInfo   Status = 0xF8 // no relevant state information
	StatusBusError Status = 0x00 // illegal START or STOP condition
)

var statusNames = map[Status]string{
	StatusStart:               "START",
	StatusRepeatedStart:       "REP_START",
	StatusMTAddressAck:        "MT_SLA_ACK",
	StatusMTAddressNack:       "MT_SLA_NACK",
	StatusMTDataAck:           "MT_DATA_ACK",
	StatusMTDataNack:          "MT_DATA_NACK",
	StatusArbitrationLost:     "ARB_LOST",
	StatusMRAddressAck:        "MR_SLA_ACK",
	StatusMRAddressNack:       "MR_SLA_NACK",
	StatusMRDataAck:           "MR_DATA_ACK",
	StatusMRDataNack:          "MR_DATA_NACK",
	StatusSRAddressAck:        "SR_SLA_ACK",
	StatusSRArbLostAddressAck: "SR_ARB_LOST_SLA_ACK",
	StatusSRGeneralCallAck:    "SR_GCALL_ACK",
	StatusSRArbLostGeneralAck: "SR_ARB_LOST_GCALL_ACK",
	StatusSRDataAck:           "SR_DATA_ACK",
	StatusSRDataNack:          "SR_DATA_NACK",
	StatusSRGeneralDataAck:    "SR_GCALL_DATA_ACK",
	StatusSRGeneralDataNack:   "SR_GCALL_DATA_NACK",
	StatusSRStop:              "SR_STOP",
	StatusSTAddressAck:        "ST_SLA_ACK",
	StatusSTArbLostAddressAck: "ST_ARB_LOST_SLA_ACK",
	StatusSTDataAck:           "ST_DATA_ACK",
	StatusSTDataNack:          "ST_DATA_NACK",
	StatusSTLastDataAck:       "ST_LAST_DATA",
	StatusNoInfo:              "NO_INFO",
	StatusBusError:            "BUS_ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_%02X", uint8(s))
}

// Role is the bus role the controller played when a status was produced.
type Role uint8

const (
	RoleMaster Role = iota
	RoleSlave
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	}
	return "???"
}

// Direction is the data direction of a transfer, as seen from the
// controller. DirectionNone is used before SLA+R/W has been exchanged.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionTransmit
	DirectionReceive
)

func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionTransmit:
		return "transmit"
	case DirectionReceive:
		return "receive"
	}
	return "???"
}

// Phase is the protocol step that just completed.
type Phase uint8

const (
	PhaseStart Phase = iota
	PhaseRepeatedStart
	PhaseAddressSent
	PhaseAddressReceived
	PhaseDataSent
	PhaseDataReceived
	PhaseStop
	PhaseBusError
	PhaseNoInfo
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseRepeatedStart:
		return "repeated-start"
	case PhaseAddressSent:
		return "address-sent"
	case PhaseAddressReceived:
		return "address-received"
	case PhaseDataSent:
		return "data-sent"
	case PhaseDataReceived:
		return "data-received"
	case PhaseStop:
		return "stop"
	case PhaseBusError:
		return "bus-error"
	case PhaseNoInfo:
		return "no-relevant-info"
	}
	return "???"
}

// Outcome is the bus result of the completed phase.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeAck
	OutcomeNack
	OutcomeArbitrationLost
	OutcomeGeneralCall
	OutcomeGeneralCallNack
	OutcomeArbitrationLostGeneralCall
	// OutcomeLastByte is an ACK received for a byte the slave announced as
	// its last one (TWEA cleared).
	OutcomeLastByte
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeAck:
		return "ack"
	case OutcomeNack:
		return "nack"
	case OutcomeArbitrationLost:
		return "arbitration-lost"
	case OutcomeGeneralCall:
		return "general-call"
	case OutcomeGeneralCallNack:
		return "general-call-nack"
	case OutcomeArbitrationLostGeneralCall:
		return "arbitration-lost-general-call"
	case OutcomeLastByte:
		return "last-byte"
	}
	return "???"
}

type statusKey struct {
	role    Role
	dir     Direction
	phase   Phase
	outcome Outcome
}

var statusTable = map[statusKey]Status{
	{RoleMaster, DirectionNone, PhaseStart, OutcomeNone}:         StatusStart,
	{RoleMaster, DirectionNone, PhaseRepeatedStart, OutcomeNone}: StatusRepeatedStart,

	{RoleMaster, DirectionTransmit, PhaseAddressSent, OutcomeAck}:             StatusMTAddressAck,
	{RoleMaster, DirectionTransmit, PhaseAddressSent, OutcomeNack}:            StatusMTAddressNack,
	{RoleMaster, DirectionTransmit, PhaseAddressSent, OutcomeArbitrationLost}: StatusArbitrationLost,
	{RoleMaster, DirectionTransmit, PhaseDataSent, OutcomeAck}:                StatusMTDataAck,
	{RoleMaster, DirectionTransmit, PhaseDataSent, OutcomeNack}:               StatusMTDataNack,
	{RoleMaster, DirectionTransmit, PhaseDataSent, OutcomeArbitrationLost}:    StatusArbitrationLost,

	{RoleMaster, DirectionReceive, PhaseAddressSent, OutcomeAck}:              StatusMRAddressAck,
	{RoleMaster, DirectionReceive, PhaseAddressSent, OutcomeNack}:             StatusMRAddressNack,
	{RoleMaster, DirectionReceive, PhaseAddressSent, OutcomeArbitrationLost}:  StatusArbitrationLost,
	{RoleMaster, DirectionReceive, PhaseDataReceived, OutcomeAck}:             StatusMRDataAck,
	{RoleMaster, DirectionReceive, PhaseDataReceived, OutcomeNack}:            StatusMRDataNack,
	{RoleMaster, DirectionReceive, PhaseDataReceived, OutcomeArbitrationLost}: StatusArbitrationLost,

	{RoleSlave, DirectionReceive, PhaseAddressReceived, OutcomeAck}:                        StatusSRAddressAck,
	{RoleSlave, DirectionReceive, PhaseAddressReceived, OutcomeArbitrationLost}:            StatusSRArbLostAddressAck,
	{RoleSlave, DirectionReceive, PhaseAddressReceived, OutcomeGeneralCall}:                StatusSRGeneralCallAck,
	{RoleSlave, DirectionReceive, PhaseAddressReceived, OutcomeArbitrationLostGeneralCall}: StatusSRArbLostGeneralAck,
	{RoleSlave, DirectionReceive, PhaseDataReceived, OutcomeAck}:                           StatusSRDataAck,
	{RoleSlave, DirectionReceive, PhaseDataReceived, OutcomeNack}:                          StatusSRDataNack,
	{RoleSlave, DirectionReceive, PhaseDataReceived, OutcomeGeneralCall}:                   StatusSRGeneralDataAck,
	{RoleSlave, DirectionReceive, PhaseDataReceived, OutcomeGeneralCallNack}:               StatusSRGeneralDataNack,
	{RoleSlave, DirectionReceive, PhaseStop, OutcomeNone}:                                  StatusSRStop,

	{RoleSlave, DirectionTransmit, PhaseAddressReceived, OutcomeAck}:             StatusSTAddressAck,
	{RoleSlave, DirectionTransmit, PhaseAddressReceived, OutcomeArbitrationLost}: StatusSTArbLostAddressAck,
	{RoleSlave, DirectionTransmit, PhaseDataSent, OutcomeAck}:                    StatusSTDataAck,
	{RoleSlave, DirectionTransmit, PhaseDataSent, OutcomeNack}:                   StatusSTDataNack,
	{RoleSlave, DirectionTransmit, PhaseDataSent, OutcomeLastByte}:               StatusSTLastDataAck,
	{RoleSlave, DirectionTransmit, PhaseStop, OutcomeNone}:                       StatusSRStop,

	{RoleMaster, DirectionNone, PhaseNoInfo, OutcomeNone}:   StatusNoInfo,
	{RoleSlave, DirectionNone, PhaseNoInfo, OutcomeNone}:    StatusNoInfo,
	{RoleMaster, DirectionNone, PhaseBusError, OutcomeNone}: StatusBusError,
	{RoleSlave, DirectionNone, PhaseBusError, OutcomeNone}:  StatusBusError,
}

// UnreachableStateError reports a (role, direction, phase, outcome)
// combination that has no status code. It always indicates a defect in the
// state machine.
type UnreachableStateError struct {
	Role      Role
	Direction Direction
	Phase     Phase
	Outcome   Outcome
}

func (e *UnreachableStateError) Error() string {
	return fmt.Sprintf("twi: no status code for role=%s dir=%s phase=%s outcome=%s",
		e.Role, e.Direction, e.Phase, e.Outcome)
}

// StatusFor returns the architecturally defined status code for a completed
// protocol step.
func StatusFor(role Role, dir Direction, phase Phase, outcome Outcome) (Status, error) {
	s, ok := statusTable[statusKey{role, dir, phase, outcome}]
	if !ok {
		return 0, &UnreachableStateError{role, dir, phase, outcome}
	}
	return s, nil
}

// mustStatus is used by the state machine, where a missing entry is a bug.
func mustStatus(role Role, dir Direction, phase Phase, outcome Outcome) Status {
	s, err := StatusFor(role, dir, phase, outcome)
	if err != nil {
		panic(err)
	}
	return s
}
