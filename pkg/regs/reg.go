package regs

import "fmt"

// Offset of a 32 bit register inside the controller block
type Reg uint32

const (
	Mode        Reg = 0x00
	Cmd         Reg = 0x04
	State       Reg = 0x08
	Int         Reg = 0x0c
	IntMask     Reg = 0x10
	LostArbCode Reg = 0x28
	ErrCode     Reg = 0x2c
	RxErrCnt    Reg = 0x34
	TxErrCnt    Reg = 0x38
	IDCode      Reg = 0x3c
	IDMask      Reg = 0x40
	NBTP        Reg = 0x100
	DBTP        Reg = 0x104
	TDCR        Reg = 0x108
	TSCC        Reg = 0x10c
	TSCV        Reg = 0x110
	TxEFC       Reg = 0x114
	RxFC        Reg = 0x118
	AFC         Reg = 0x11c
	IDCode0     Reg = 0x120
	IDMask0     Reg = 0x124
	IDCode1     Reg = 0x128
	IDMask1     Reg = 0x12c
	IDCode2     Reg = 0x130
	IDMask2     Reg = 0x134
	IDCode3     Reg = 0x138
	IDMask3     Reg = 0x13c
	IDCode4     Reg = 0x140
	IDMask4     Reg = 0x144
	TxFIC       Reg = 0x200
	TxID        Reg = 0x204
	TxDat0      Reg = 0x208
	RxFIC       Reg = 0x300
	RxID        Reg = 0x304
	RxTS        Reg = 0x308
	RxDat0      Reg = 0x30c
	RxFRD       Reg = 0x400 // reading pops one word of the rx fifo
	TxEFRD      Reg = 0x500
)

// Size of the register block
const Size = 0x600

// Number of 32 bit data words per frame buffer
const DataWords = 16

// Number of words popped from RxFRD for one frame : info, id, timestamp, data
const RxFrameWords = 3 + DataWords

// Acceptance filter id / mask register pairs
var FilterPairs = [6][2]Reg{
	{IDCode, IDMask},
	{IDCode0, IDMask0},
	{IDCode1, IDMask1},
	{IDCode2, IDMask2},
	{IDCode3, IDMask3},
	{IDCode4, IDMask4},
}

// Transmit data word i
func TxDat(i int) Reg {
	return TxDat0 + Reg(4*i)
}

// Receive data word i
func RxDat(i int) Reg {
	return RxDat0 + Reg(4*i)
}

var regNames = map[Reg]string{
	Mode:        "MODE",
	Cmd:         "CMD",
	State:       "STATE",
	Int:         "INT",
	IntMask:     "INT_MASK",
	LostArbCode: "LOSTARB_CODE",
	ErrCode:     "ERR_CODE",
	RxErrCnt:    "RX_ERR_CNT",
	TxErrCnt:    "TX_ERR_CNT",
	IDCode:      "IDCODE",
	IDMask:      "IDMASK",
	NBTP:        "NBTP",
	DBTP:        "DBTP",
	TDCR:        "TDCR",
	TSCC:        "TSCC",
	TSCV:        "TSCV",
	TxEFC:       "TXEFC",
	RxFC:        "RXFC",
	AFC:         "AFC",
	IDCode0:     "IDCODE0",
	IDMask0:     "IDMASK0",
	IDCode1:     "IDCODE1",
	IDMask1:     "IDMASK1",
	IDCode2:     "IDCODE2",
	IDMask2:     "IDMASK2",
	IDCode3:     "IDCODE3",
	IDMask3:     "IDMASK3",
	IDCode4:     "IDCODE4",
	IDMask4:     "IDMASK4",
	TxFIC:       "TXFIC",
	TxID:        "TXID",
	RxFIC:       "RXFIC",
	RxID:        "RXID",
	RxTS:        "RXTS",
	RxFRD:       "RXFRD",
	TxEFRD:      "TXEFRD",
}

func (r Reg) String() string {
	if name, ok := regNames[r]; ok {
		return name
	}
	if r >= TxDat0 && r < TxDat(DataWords) && (r-TxDat0)%4 == 0 {
		return fmt.Sprintf("TXDAT%d", (r-TxDat0)/4)
	}
	if r >= RxDat0 && r < RxDat(DataWords) && (r-RxDat0)%4 == 0 {
		return fmt.Sprintf("RXDAT%d", (r-RxDat0)/4)
	}
	return fmt.Sprintf("REG[0x%03x]", uint32(r))
}

// Registers shown in a register dump, in address order
var Dump = []Reg{
	Mode, Cmd, State, Int, IntMask, LostArbCode, ErrCode, RxErrCnt, TxErrCnt,
	IDCode, IDMask, NBTP, DBTP, TDCR, TSCC, TSCV, TxEFC, RxFC, AFC,
	IDCode0, IDMask0, IDCode1, IDMask1, IDCode2, IDMask2, IDCode3, IDMask3, IDCode4, IDMask4,
	TxFIC, TxID,
}
