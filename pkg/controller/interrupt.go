package controller

import (
	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/regs"
	log "github.com/sirupsen/logrus"
)

// Interrupt handlers, run in this order for every flag present in the status
var interruptHandlers = []struct {
	flags  regs.IntStatus
	handle func(c *Controller, status regs.IntStatus)
}{
	{regs.TxFinish, (*Controller).txFinish},
	{regs.RxFinish, (*Controller).rxFinish},
	{regs.ErrorInterrupts, (*Controller).errorInterrupt},
}

// HandleInterrupt processes every condition flagged in status then
// acknowledges exactly those flags.
func (c *Controller) HandleInterrupt(status regs.IntStatus) {
	for _, h := range interruptHandlers {
		if status&h.flags != 0 {
			h.handle(c, status)
		}
	}
	c.regs.Write(regs.Int, uint32(status))
}

// Interrupt reads the pending status and handles it, returns the handled status
func (c *Controller) Interrupt() regs.IntStatus {
	status := regs.IntStatus(c.regs.Read(regs.Int))
	if status == 0 {
		return 0
	}
	c.HandleInterrupt(status)
	return status
}

func (c *Controller) txFinish(regs.IntStatus) {
	info := c.regs.Read(regs.TxFIC)
	dlc := uint8(info & regs.FicDLC)
	if info&regs.FicFDF != 0 {
		c.stats.TxBytes += uint64(canfd.DLCToLen(dlc))
	} else {
		// DLC codes 9 to 15 of a classic frame still carry 8 bytes,
		// the counter reflects bytes on the bus and not the raw code
		c.stats.TxBytes += uint64(canfd.ClassicLen(dlc))
	}
	c.stats.TxPackets++
	c.regs.Write(regs.Cmd, 0)

	if len(c.inflight) > 0 {
		slot := c.inflight[0]
		c.inflight = c.inflight[1:]
		c.stack.EchoComplete(slot)
	} else {
		log.Warnf("[CANFD][TX] transmission finished without pending request")
	}
	c.stack.QueueResume()
}

func (c *Controller) rxFinish(regs.IntStatus) {
	c.receive()
}
