package sim

import (
	"errors"
	"fmt"
	"sync"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/internal/fifo"
	"github.com/samsamfire/gocanfd/pkg/regs"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNotReceiving = errors.New("controller is not receiving")
	ErrFiltered     = errors.New("frame rejected by acceptance filters")
	ErrOverrun      = errors.New("receive fifo overrun")
)

// Default receive fifo depth, in frames
const DefaultRxFrames = 8

type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
	OpAssert
	OpDeassert
)

// Access is one recorded interaction with the hardware
type Access struct {
	Kind  OpKind
	Reg   regs.Reg
	Value uint32
}

func (a Access) String() string {
	switch a.Kind {
	case OpRead:
		return fmt.Sprintf("read  %v 0x%08x", a.Reg, a.Value)
	case OpWrite:
		return fmt.Sprintf("write %v 0x%08x", a.Reg, a.Value)
	case OpAssert:
		return "reset assert"
	default:
		return "reset deassert"
	}
}

// Hardware models the controller register block, its receive fifo,
// the two transmit slots and the reset line. It implements [regs.Accessor]
// and [canfd.ResetLine].
type Hardware struct {
	mu           sync.Mutex
	file         [regs.Size / 4]uint32
	rx           *fifo.Fifo
	inReset      bool
	pending      [2]*canfd.Frame
	sent         []canfd.Frame
	ops          []Access
	recording    bool
	timestamp    uint32
	autoComplete bool
	onTransmit   func(canfd.Frame)
	irq          chan struct{}
}

// New creates hardware with a receive fifo of rxFrames frames
func New(rxFrames int) *Hardware {
	if rxFrames <= 0 {
		rxFrames = DefaultRxFrames
	}
	return &Hardware{
		rx:  fifo.NewFifo(uint16(rxFrames * regs.RxFrameWords)),
		irq: make(chan struct{}, 1),
	}
}

// Transmission requests complete as soon as they are made,
// as if every frame was acknowledged on the bus
func (h *Hardware) SetAutoComplete(autoComplete bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.autoComplete = autoComplete
}

// Called for every frame put on the bus by a transmit request
func (h *Hardware) OnTransmit(handler func(canfd.Frame)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTransmit = handler
}

// SetRecording keeps a log of register accesses and transmitted frames,
// see [Hardware.Ops] and [Hardware.Sent]. Off by default, the logs are unbounded.
func (h *Hardware) SetRecording(recording bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recording = recording
}

// IRQ is signaled whenever an unmasked interrupt is raised
func (h *Hardware) IRQ() <-chan struct{} {
	return h.irq
}

func (h *Hardware) Read(r regs.Reg) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var value uint32
	switch r {
	case regs.RxFRD:
		value, _ = h.rx.Pop()
	case regs.Cmd:
		value = h.cmd()
	default:
		value = h.file[r/4]
	}
	h.record(Access{Kind: OpRead, Reg: r, Value: value})
	return value
}

func (h *Hardware) Write(r regs.Reg, value uint32) {
	h.mu.Lock()
	h.record(Access{Kind: OpWrite, Reg: r, Value: value})
	if h.inReset {
		h.mu.Unlock()
		return
	}
	var transmitted []canfd.Frame
	switch r {
	case regs.Int:
		h.file[r/4] &^= value
	case regs.Cmd:
		transmitted = h.request(value)
	case regs.RxFRD, regs.TxEFRD:
	default:
		h.file[r/4] = value
	}
	handler := h.onTransmit
	h.mu.Unlock()
	if handler != nil {
		for _, frame := range transmitted {
			handler(frame)
		}
	}
}

// Request bits read back as set while the slot is pending
func (h *Hardware) cmd() uint32 {
	var value uint32
	if h.pending[canfd.Slot0] != nil {
		value |= regs.CmdTx0Req
	}
	if h.pending[canfd.Slot1] != nil {
		value |= regs.CmdTx1Req
	}
	return value
}

func (h *Hardware) running() bool {
	return !h.inReset && h.file[regs.Mode/4]&regs.ModeWork != 0
}

func (h *Hardware) request(value uint32) []canfd.Frame {
	var transmitted []canfd.Frame
	for _, slot := range []canfd.TxSlot{canfd.Slot0, canfd.Slot1} {
		bit := regs.CmdTx0Req << slot
		if value&bit == 0 {
			continue
		}
		if !h.running() {
			log.Warnf("[SIM] %v request while in reset mode, ignored", slot)
			continue
		}
		if h.pending[slot] != nil {
			log.Warnf("[SIM] %v request while slot is pending, ignored", slot)
			continue
		}
		frame := h.latch()
		h.pending[slot] = &frame
		if h.recording {
			h.sent = append(h.sent, frame)
		}
		transmitted = append(transmitted, frame)
		log.Debugf("[SIM] %v request %v", slot, frame)
		mode := h.file[regs.Mode/4]
		if mode&regs.ModeLBack != 0 {
			if err := h.receive(frame); err != nil {
				log.Debugf("[SIM] loopback of %v failed : %v", frame, err)
			}
		}
		if mode&regs.ModeLBack != 0 || h.autoComplete {
			h.complete(slot)
		}
	}
	return transmitted
}

// Decode the frame held by the transmit buffer registers
func (h *Hardware) latch() canfd.Frame {
	info := h.file[regs.TxFIC/4]
	id := h.file[regs.TxID/4]
	frame := canfd.Frame{
		Extended: info&regs.FicFormat != 0,
		Remote:   info&regs.FicRTR != 0,
		FD:       info&regs.FicFDF != 0,
		BRS:      info&regs.FicBRS != 0,
	}
	dlc := uint8(info & regs.FicDLC)
	if frame.FD {
		frame.Len = canfd.DLCToLen(dlc)
	} else {
		frame.Len = canfd.ClassicLen(dlc)
	}
	if frame.Extended {
		frame.ID = id & canfd.EffMask
	} else {
		frame.ID = id & canfd.SffMask
	}
	if frame.Remote {
		frame.Len = canfd.ClassicLen(dlc)
		return frame
	}
	words := make([]uint32, regs.WordCount(frame.Len))
	for i := range words {
		words[i] = h.file[regs.TxDat(i)/4]
	}
	regs.UnpackWords(frame.Data[:frame.Len], words)
	return frame
}

func (h *Hardware) complete(slot canfd.TxSlot) bool {
	if h.pending[slot] == nil {
		return false
	}
	h.pending[slot] = nil
	h.raise(regs.TxFinish)
	return true
}

// Complete finishes the pending transmission of slot, as if acknowledged on the bus
func (h *Hardware) Complete(slot canfd.TxSlot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.complete(slot)
}

func (h *Hardware) Pending(slot canfd.TxSlot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending[slot] != nil
}

// Sent returns every frame requested for transmission so far
func (h *Hardware) Sent() []canfd.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]canfd.Frame(nil), h.sent...)
}

func (h *Hardware) accepts(id uint32) bool {
	for _, pair := range regs.FilterPairs {
		code := h.file[pair[0]/4]
		mask := h.file[pair[1]/4]
		if (id^code)&^mask&canfd.EffMask == 0 {
			return true
		}
	}
	return false
}

func (h *Hardware) receive(frame canfd.Frame) error {
	if !h.running() || h.file[regs.RxFC/4]&regs.FifoEnable == 0 {
		return ErrNotReceiving
	}
	if !h.accepts(frame.ID) {
		return ErrFiltered
	}
	if h.rx.GetSpace() < regs.RxFrameWords {
		h.raise(regs.RxBufOv)
		return ErrOverrun
	}
	var info uint32
	if frame.Extended {
		info |= regs.FicFormat
	}
	if frame.Remote {
		info |= regs.FicRTR
	}
	if frame.FD {
		info |= regs.FicFDF
		if frame.BRS {
			info |= regs.FicBRS
		}
	}
	info |= uint32(canfd.LenToDLC(frame.Len))
	words := make([]uint32, 0, regs.RxFrameWords)
	words = append(words, info, frame.ID, h.timestamp)
	data := regs.PackWords(frame.Payload())
	words = append(words, data[:]...)
	h.rx.Write(words)
	h.timestamp++
	h.raise(regs.RxFinish)
	return nil
}

// Receive puts a frame seen on the bus into the receive fifo
func (h *Hardware) Receive(frame canfd.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.receive(frame)
}

// Number of complete frames waiting in the receive fifo
func (h *Hardware) RxPending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rx.GetOccupied() / regs.RxFrameWords
}

func (h *Hardware) raise(status regs.IntStatus) {
	h.file[regs.Int/4] |= uint32(status)
	if uint32(status)&^h.file[regs.IntMask/4] == 0 {
		return
	}
	select {
	case h.irq <- struct{}{}:
	default:
	}
}

// Raise sets interrupt flags
func (h *Hardware) Raise(status regs.IntStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.raise(status)
}

// Peek returns a register value without side effects and without recording the access
func (h *Hardware) Peek(r regs.Reg) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r == regs.Cmd {
		return h.cmd()
	}
	return h.file[r/4]
}

// Poke sets a register value without side effects and without recording the access
func (h *Hardware) Poke(r regs.Reg, value uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.file[r/4] = value
}

func (h *Hardware) SetErrorCounters(tx uint32, rx uint32) {
	h.Poke(regs.TxErrCnt, tx)
	h.Poke(regs.RxErrCnt, rx)
}

// SetState sets the STATE register flags (ERR_WARN, BUS_OFF)
func (h *Hardware) SetState(state regs.IntStatus) {
	h.Poke(regs.State, uint32(state))
}

func (h *Hardware) SetErrCode(code uint32) {
	h.Poke(regs.ErrCode, code)
}

func (h *Hardware) SetLostArb(code uint32) {
	h.Poke(regs.LostArbCode, code)
}

// Ops returns the recorded register accesses
func (h *Hardware) Ops() []Access {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Access(nil), h.ops...)
}

func (h *Hardware) record(access Access) {
	if h.recording {
		h.ops = append(h.ops, access)
	}
}

func (h *Hardware) ClearOps() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = nil
}

// Assert holds the controller in reset, register writes are ignored
func (h *Hardware) Assert() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Access{Kind: OpAssert})
	h.inReset = true
}

// Registers cleared by the reset line, configuration registers keep their value
var resetRegs = []regs.Reg{
	regs.Mode, regs.Cmd, regs.State, regs.Int, regs.LostArbCode,
	regs.ErrCode, regs.RxErrCnt, regs.TxErrCnt,
}

// Deassert releases the reset line. The protocol engine restarts with empty
// fifo and slots, error counters and status cleared.
func (h *Hardware) Deassert() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Access{Kind: OpDeassert})
	h.inReset = false
	for _, r := range resetRegs {
		h.file[r/4] = 0
	}
	h.pending = [2]*canfd.Frame{}
	h.rx.Reset()
}
