package controller

import (
	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/regs"
	log "github.com/sirupsen/logrus"
)

// Pop one frame from the receive fifo and deliver it.
// The words must be read in this exact order.
func (c *Controller) receive() {
	info := c.regs.Read(regs.RxFRD)
	id := c.regs.Read(regs.RxFRD)
	_ = c.regs.Read(regs.RxFRD) // timestamp
	var words [regs.DataWords]uint32
	for i := range words {
		words[i] = c.regs.Read(regs.RxFRD)
	}

	frame := decodeFrame(info, id, words[:])
	if err := c.stack.DeliverFrame(frame); err != nil {
		c.stats.RxDropped++
		log.Debugf("[CANFD][RX] dropped %v : %v", frame, err)
		return
	}
	c.stats.RxPackets++
	c.stats.RxBytes += uint64(len(frame.Payload()))
	log.Debugf("[CANFD][RX] %v", frame)
}

func decodeFrame(info uint32, id uint32, words []uint32) canfd.Frame {
	dlc := uint8(info & regs.FicDLC)
	frame := canfd.Frame{
		Extended: info&regs.FicFormat != 0,
		Remote:   info&regs.FicRTR != 0,
		FD:       info&regs.FicFDF != 0,
		BRS:      info&regs.FicFDF != 0 && info&regs.FicBRS != 0,
	}
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
	if !frame.Remote {
		regs.UnpackWords(frame.Data[:frame.Len], words)
	}
	return frame
}
