package twi

import "fmt"

// State is the active transaction state. Exactly one is active at a time.
type State uint8

const (
	StateIdle State = iota
	StateMasterStartPending
	StateMasterAddressPhase
	StateMasterDataPhase
	StateSlaveAddressed
	StateSlaveDataPhase
	StateArbitrationLost
	StateBusError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateMasterStartPending:
		return "MasterStartPending"
	case StateMasterAddressPhase:
		return "MasterAddressPhase"
	case StateMasterDataPhase:
		return "MasterDataPhase"
	case StateSlaveAddressed:
		return "SlaveAddressed"
	case StateSlaveDataPhase:
		return "SlaveDataPhase"
	case StateArbitrationLost:
		return "ArbitrationLost"
	case StateBusError:
		return "BusError"
	}
	return "???"
}

func (s State) master() bool {
	switch s {
	case StateMasterStartPending, StateMasterAddressPhase, StateMasterDataPhase:
		return true
	}
	return false
}

// Transaction is the full transaction state: the enumeration plus the scalar
// flags that qualify it.
type Transaction struct {
	State     State
	Direction Direction

	LastByteAcked bool
	GeneralCall   bool
	RepeatedStart bool
}

func (t Transaction) String() string {
	switch t.State {
	case StateMasterDataPhase, StateSlaveAddressed, StateSlaveDataPhase:
		return fmt.Sprintf("%s(%s)", t.State, t.Direction)
	}
	return t.State.String()
}
