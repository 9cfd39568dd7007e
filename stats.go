package canfd

// Cumulative controller statistics, never reset while the controller exists
type Stats struct {
	RxPackets    uint64
	RxBytes      uint64
	RxErrors     uint64
	RxOverErrors uint64
	RxDropped    uint64
	TxPackets    uint64
	TxBytes      uint64
	TxErrors     uint64

	BusError        uint64
	ArbitrationLost uint64
	ErrorWarning    uint64
	ErrorPassive    uint64
	BusOff          uint64
	Restarts        uint64
}

// Bus error counters as reported by the hardware
type BerrCounter struct {
	TxErr uint16
	RxErr uint16
}
