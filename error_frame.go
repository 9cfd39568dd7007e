package canfd

import "fmt"

// Error frame classes, same layout as SocketCAN error frames
const (
	ErrClassTxTimeout uint32 = 0x001 // TX timeout
	ErrClassLostArb   uint32 = 0x002 // lost arbitration, see data[0]
	ErrClassCrtl      uint32 = 0x004 // controller problems, see data[1]
	ErrClassProt      uint32 = 0x008 // protocol violations, see data[2..3]
	ErrClassTrx       uint32 = 0x010 // transceiver status, see data[4]
	ErrClassAck       uint32 = 0x020 // received no ACK on transmission
	ErrClassBusOff    uint32 = 0x040 // bus off
	ErrClassBusError  uint32 = 0x080 // bus error
	ErrClassRestarted uint32 = 0x100 // controller restarted
)

// data[1] : controller problems
const (
	ErrCrtlRxOverflow uint8 = 0x01
	ErrCrtlTxOverflow uint8 = 0x02
	ErrCrtlRxWarning  uint8 = 0x04
	ErrCrtlTxWarning  uint8 = 0x08
	ErrCrtlRxPassive  uint8 = 0x10
	ErrCrtlTxPassive  uint8 = 0x20
	ErrCrtlActive     uint8 = 0x40
)

// data[2] : protocol error type
const (
	ErrProtBit      uint8 = 0x01
	ErrProtForm     uint8 = 0x02
	ErrProtStuff    uint8 = 0x04
	ErrProtBit0     uint8 = 0x08
	ErrProtBit1     uint8 = 0x10
	ErrProtOverload uint8 = 0x20
	ErrProtActive   uint8 = 0x40
	ErrProtTx       uint8 = 0x80
)

// Length of an error frame payload
const ErrorFrameLen = 8

// Diagnostic frame synthesized by the controller on error conditions
//
//	data[0] lost arbitration bit
//	data[1] controller problem
//	data[2] protocol error type
//	data[3] protocol error location
//	data[6] tx error counter
//	data[7] rx error counter
type ErrorFrame struct {
	Class uint32
	Data  [ErrorFrameLen]byte
}

func (f ErrorFrame) Is(class uint32) bool {
	return f.Class&class != 0
}

func (f ErrorFrame) TxErrors() uint8 {
	return f.Data[6]
}

func (f ErrorFrame) RxErrors() uint8 {
	return f.Data[7]
}

var errClassNames = []struct {
	class uint32
	name  string
}{
	{ErrClassTxTimeout, "TX-TIMEOUT"},
	{ErrClassLostArb, "LOST-ARB"},
	{ErrClassCrtl, "CRTL"},
	{ErrClassProt, "PROT"},
	{ErrClassTrx, "TRX"},
	{ErrClassAck, "ACK"},
	{ErrClassBusOff, "BUS-OFF"},
	{ErrClassBusError, "BUS-ERROR"},
	{ErrClassRestarted, "RESTARTED"},
}

func (f ErrorFrame) String() string {
	s := ""
	for _, c := range errClassNames {
		if f.Class&c.class == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += c.name
	}
	if s == "" {
		s = "NONE"
	}
	return fmt.Sprintf("[%s] % x", s, f.Data)
}
