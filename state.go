package canfd

// CAN controller bus state, ordered by increasing severity
type BusState uint8

const (
	StateErrorActive  BusState = 0 // RX/TX error count < 96
	StateErrorWarning BusState = 1 // RX/TX error count < 128
	StateErrorPassive BusState = 2 // RX/TX error count < 256
	StateBusOff       BusState = 3 // RX/TX error count >= 256
	StateStopped      BusState = 4 // device is stopped
)

var stateMap = map[BusState]string{
	StateErrorActive:  "ERROR-ACTIVE",
	StateErrorWarning: "ERROR-WARNING",
	StateErrorPassive: "ERROR-PASSIVE",
	StateBusOff:       "BUS-OFF",
	StateStopped:      "STOPPED",
}

func (s BusState) String() string {
	name, ok := stateMap[s]
	if !ok {
		return "UNKNOWN"
	}
	return name
}

// One of the two hardware transmit buffers
type TxSlot uint8

const (
	Slot0 TxSlot = 0
	Slot1 TxSlot = 1
)

func (s TxSlot) String() string {
	if s == Slot1 {
		return "TX1"
	}
	return "TX0"
}
