package regs

import "strings"

// MODE register
const (
	ModeReset    uint32 = 0
	ModeWork     uint32 = 1 << 0
	ModeSleep    uint32 = 1 << 1
	ModeSelfTest uint32 = 1 << 2
	ModeSilent   uint32 = 1 << 3
	ModeLBack    uint32 = 1 << 4
	ModeRxSTx    uint32 = 1 << 5
	ModeTxOrder  uint32 = 1 << 6
	ModeRxSort   uint32 = 1 << 7
	ModeAutoRetx uint32 = 1 << 10
	ModeSpaceRx  uint32 = 1 << 12
	ModeBRSD     uint32 = 1 << 13
	ModeFDOE     uint32 = 1 << 15
)

// CMD register, one transmit request per slot
const (
	CmdTx0Req  uint32 = 1 << 0
	CmdTx1Req  uint32 = 1 << 1
	CmdReqFull        = CmdTx0Req | CmdTx1Req
)

// Raw content of the INT register
type IntStatus uint32

// INT / INT_MASK / STATE flags
const (
	RxFinish        IntStatus = 1 << 0
	TxFinish        IntStatus = 1 << 1
	ErrWarn         IntStatus = 1 << 2
	RxBufOv         IntStatus = 1 << 3
	PassiveErr      IntStatus = 1 << 4
	TxLostArb       IntStatus = 1 << 5
	BusErr          IntStatus = 1 << 6
	RxFifoFull      IntStatus = 1 << 7
	RxFifoOv        IntStatus = 1 << 8
	BusOff          IntStatus = 1 << 9
	BusOffRecovery  IntStatus = 1 << 10
	TscOv           IntStatus = 1 << 11
	TxeFifoOv       IntStatus = 1 << 12
	TxeFifoFull     IntStatus = 1 << 13
	Wakeup          IntStatus = 1 << 14
	IntAll          IntStatus = 0xFFFF
	ErrorInterrupts           = ErrWarn | RxBufOv | PassiveErr | TxLostArb | BusErr
)

var intNames = []string{
	"RX_FINISH", "TX_FINISH", "ERR_WARN", "RX_BUF_OV", "PASSIVE_ERR",
	"TX_LOSTARB", "BUS_ERR", "RX_FIFO_FULL", "RX_FIFO_OV", "BUS_OFF",
	"BUS_OFF_RECOVERY", "TSC_OV", "TXE_FIFO_OV", "TXE_FIFO_FULL", "WAKEUP",
}

func (s IntStatus) Has(flag IntStatus) bool {
	return s&flag != 0
}

func (s IntStatus) String() string {
	var names []string
	for i, name := range intNames {
		if s&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// ERR_CODE register
const (
	ErrTypeMask  uint32 = 7 << 26
	ErrTypeShift        = 26
	ErrDirRx     uint32 = 1 << 25
	ErrLocMask   uint32 = 0xFFFF
)

// Error types found in ERR_CODE
const (
	ErrTypeBit   = 0
	ErrTypeStuff = 1
	ErrTypeForm  = 2
	ErrTypeAck   = 3
	ErrTypeCRC   = 4
)

// TXFIC / RXFIC frame information word
const (
	FicFormat uint32 = 1 << 7 // extended identifier
	FicRTR    uint32 = 1 << 6
	FicFDF    uint32 = 1 << 5
	FicBRS    uint32 = 1 << 4
	FicDLC    uint32 = 0xF

	TxFDEnable    = FicFDF
	TxFDBRSEnable = FicBRS
)

// RXFC register
const FifoEnable uint32 = 1 << 0

// Acceptance mask letting any 29 bit identifier through
const AcceptAllMask uint32 = 0x1FFFFFFF
