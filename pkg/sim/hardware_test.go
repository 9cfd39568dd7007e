package sim

import (
	"testing"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/regs"
	"github.com/stretchr/testify/assert"
)

func newHardware(rxFrames int) *Hardware {
	h := New(rxFrames)
	h.SetRecording(true)
	return h
}

func startHardware(h *Hardware, mode uint32) {
	for _, pair := range regs.FilterPairs {
		h.Write(pair[0], 0)
		h.Write(pair[1], regs.AcceptAllMask)
	}
	h.Write(regs.RxFC, regs.FifoEnable)
	h.Write(regs.Mode, mode|regs.ModeWork)
}

func writeTxBuffer(h *Hardware, info uint32, id uint32, data []byte) {
	h.Write(regs.TxID, id)
	h.Write(regs.TxFIC, info)
	words := regs.PackWords(data)
	for i := 0; i < regs.WordCount(uint8(len(data))); i++ {
		h.Write(regs.TxDat(i), words[i])
	}
}

func TestResetLine(t *testing.T) {
	h := newHardware(0)
	startHardware(h, 0)
	h.Write(regs.NBTP, 0x1234)
	h.Raise(regs.BusErr)
	h.ClearOps()

	h.Assert()
	h.Write(regs.Mode, regs.ModeWork)
	h.Deassert()

	assert.Zero(t, h.Peek(regs.Mode))
	assert.Zero(t, h.Peek(regs.Int))
	assert.EqualValues(t, 0x1234, h.Peek(regs.NBTP))
	assert.Equal(t, regs.FifoEnable, h.Peek(regs.RxFC))
	ops := h.Ops()
	assert.Len(t, ops, 3)
	assert.Equal(t, OpAssert, ops[0].Kind)
	assert.Equal(t, OpWrite, ops[1].Kind)
	assert.Equal(t, OpDeassert, ops[2].Kind)
}

func TestIntWriteOneToClear(t *testing.T) {
	h := newHardware(0)
	h.Raise(regs.RxFinish | regs.TxFinish | regs.BusErr)
	h.Write(regs.Int, uint32(regs.TxFinish|regs.BusErr))
	assert.Equal(t, uint32(regs.RxFinish), h.Read(regs.Int))
}

func TestTransmitRequest(t *testing.T) {
	h := newHardware(0)
	var seen []canfd.Frame
	h.OnTransmit(func(frame canfd.Frame) { seen = append(seen, frame) })

	writeTxBuffer(h, 3, 0x123, []byte{1, 2, 3})
	h.Write(regs.Cmd, regs.CmdTx0Req)
	assert.Empty(t, h.Sent(), "request in reset mode must be ignored")

	startHardware(h, 0)
	writeTxBuffer(h, 3, 0x123, []byte{1, 2, 3})
	h.Write(regs.Cmd, regs.CmdTx0Req)
	assert.True(t, h.Pending(canfd.Slot0))
	assert.Equal(t, regs.CmdTx0Req, h.Read(regs.Cmd))

	writeTxBuffer(h, regs.FicFormat|regs.FicFDF|regs.FicBRS|9, 0x1abcdef, make([]byte, 12))
	h.Write(regs.Cmd, regs.CmdTx1Req)
	assert.Equal(t, regs.CmdReqFull, h.Read(regs.Cmd))

	// Writing zero does not cancel requests
	h.Write(regs.Cmd, 0)
	assert.Equal(t, regs.CmdReqFull, h.Read(regs.Cmd))

	sent := h.Sent()
	assert.Len(t, sent, 2)
	assert.Equal(t, sent, seen)
	assert.EqualValues(t, 0x123, sent[0].ID)
	assert.Equal(t, []byte{1, 2, 3}, sent[0].Payload())
	assert.True(t, sent[1].Extended)
	assert.True(t, sent[1].FD)
	assert.True(t, sent[1].BRS)
	assert.EqualValues(t, 12, sent[1].Len)

	assert.True(t, h.Complete(canfd.Slot0))
	assert.False(t, h.Complete(canfd.Slot0))
	assert.Equal(t, regs.CmdTx1Req, h.Read(regs.Cmd))
	assert.True(t, regs.IntStatus(h.Peek(regs.Int)).Has(regs.TxFinish))
}

func TestLoopback(t *testing.T) {
	h := newHardware(0)
	startHardware(h, regs.ModeSelfTest|regs.ModeLBack)
	writeTxBuffer(h, 8, 0x42, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	h.Write(regs.Cmd, regs.CmdTx0Req)

	assert.False(t, h.Pending(canfd.Slot0))
	assert.Equal(t, 1, h.RxPending())
	status := regs.IntStatus(h.Peek(regs.Int))
	assert.True(t, status.Has(regs.TxFinish|regs.RxFinish))

	info := h.Read(regs.RxFRD)
	assert.EqualValues(t, 8, info&regs.FicDLC)
	assert.EqualValues(t, 0x42, h.Read(regs.RxFRD))
	h.Read(regs.RxFRD)
	assert.EqualValues(t, 0x04030201, h.Read(regs.RxFRD))
	assert.EqualValues(t, 0x08070605, h.Read(regs.RxFRD))
}

func TestAutoComplete(t *testing.T) {
	h := newHardware(0)
	h.SetAutoComplete(true)
	startHardware(h, 0)
	writeTxBuffer(h, 1, 0x10, []byte{0xff})
	h.Write(regs.Cmd, regs.CmdTx1Req)
	assert.False(t, h.Pending(canfd.Slot1))
	assert.Len(t, h.Sent(), 1)
	assert.Zero(t, h.RxPending())
}

func TestReceiveFilters(t *testing.T) {
	h := newHardware(0)
	frame := canfd.NewFrame(0x123, false, []byte{1})
	assert.Equal(t, ErrNotReceiving, h.Receive(frame))

	h.Write(regs.RxFC, regs.FifoEnable)
	h.Write(regs.Mode, regs.ModeWork)
	assert.Equal(t, ErrFiltered, h.Receive(frame))

	h.Write(regs.IDMask0, 0x0F)
	h.Write(regs.IDCode0, 0x120)
	assert.Nil(t, h.Receive(frame))
	assert.Equal(t, ErrFiltered, h.Receive(canfd.NewFrame(0x133, false, nil)))
}

func TestReceiveOverrun(t *testing.T) {
	h := newHardware(2)
	startHardware(h, 0)
	frame := canfd.NewFrame(0x1, false, []byte{1})
	assert.Nil(t, h.Receive(frame))
	assert.Nil(t, h.Receive(frame))
	assert.Equal(t, ErrOverrun, h.Receive(frame))
	assert.Equal(t, 2, h.RxPending())
	assert.True(t, regs.IntStatus(h.Peek(regs.Int)).Has(regs.RxBufOv))
}

func TestReceiveEmptyFifoReadsZero(t *testing.T) {
	h := newHardware(0)
	assert.Zero(t, h.Read(regs.RxFRD))
}

func TestIRQ(t *testing.T) {
	h := newHardware(0)
	h.Raise(regs.RxFinish)
	select {
	case <-h.IRQ():
	default:
		t.Fatal("expected interrupt")
	}

	h.Poke(regs.IntMask, uint32(regs.IntAll))
	h.Raise(regs.RxFinish)
	select {
	case <-h.IRQ():
		t.Fatal("masked interrupt signaled")
	default:
	}
}

func TestRecordingOffByDefault(t *testing.T) {
	h := New(0)
	h.SetAutoComplete(true)
	startHardware(h, 0)
	for i := 0; i < 100; i++ {
		writeTxBuffer(h, 2, 0x10, []byte{1, 2})
		h.Write(regs.Cmd, regs.CmdTx0Req)
		assert.Nil(t, h.Receive(canfd.NewFrame(0x20, false, []byte{3})))
		for j := 0; j < regs.RxFrameWords; j++ {
			h.Read(regs.RxFRD)
		}
	}
	assert.Empty(t, h.Ops())
	assert.Empty(t, h.Sent())

	h.SetRecording(true)
	h.Read(regs.Mode)
	assert.Len(t, h.Ops(), 1)
}
