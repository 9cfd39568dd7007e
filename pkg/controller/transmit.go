package controller

import (
	"fmt"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/regs"
	log "github.com/sirupsen/logrus"
)

// Frame information word of a frame to transmit
func (c *Controller) frameInfo(frame *canfd.Frame) uint32 {
	info := uint32(canfd.LenToDLC(frame.Len)) & regs.FicDLC
	if frame.Extended {
		info |= regs.FicFormat
	}
	if frame.Remote {
		info |= regs.FicRTR
	}
	if frame.FD && c.fdMode() {
		info |= regs.FicFDF
		if frame.BRS {
			info |= regs.FicBRS
		}
	}
	return info
}

// Transmit hands frame to a free hardware slot and requests its transmission.
// Completion is signaled later by a TX_FINISH interrupt.
func (c *Controller) Transmit(frame canfd.Frame) (canfd.TxSlot, error) {
	if err := frame.Validate(); err != nil {
		return 0, err
	}
	if frame.FD && !c.fdMode() {
		return 0, canfd.ErrFDDisabled
	}
	switch c.state {
	case canfd.StateStopped:
		return 0, canfd.ErrNotRunning
	case canfd.StateBusOff:
		return 0, fmt.Errorf("%w : bus-off", canfd.ErrNotRunning)
	}
	cmd := c.regs.Read(regs.Cmd)
	if cmd&regs.CmdReqFull == regs.CmdReqFull {
		return 0, canfd.ErrBusy
	}

	c.stack.QueueStop()
	slot := canfd.Slot0
	if cmd&regs.CmdTx0Req != 0 {
		slot = canfd.Slot1
	}

	info := c.frameInfo(&frame)
	id := frame.ID & canfd.SffMask
	if frame.Extended {
		id = frame.ID & canfd.EffMask
	}
	c.regs.Write(regs.TxID, id)
	c.regs.Write(regs.TxFIC, info)

	if !frame.Remote {
		length := frame.Len
		if info&regs.FicFDF != 0 {
			length = canfd.DLCToLen(uint8(info & regs.FicDLC))
		}
		words := regs.PackWords(frame.Payload())
		for i := 0; i < regs.WordCount(length); i++ {
			c.regs.Write(regs.TxDat(i), words[i])
		}
	}

	c.stack.EchoSubmitted(slot, frame)
	c.inflight = append(c.inflight, slot)
	c.regs.Write(regs.Cmd, regs.CmdTx0Req<<slot)
	log.Debugf("[CANFD][TX] %v %v", slot, frame)
	return slot, nil
}
