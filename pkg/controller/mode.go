package controller

import (
	"time"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/samsamfire/gocanfd/pkg/regs"
	log "github.com/sirupsen/logrus"
)

// Minimum time the reset line is held asserted
const ResetHold = 2 * time.Microsecond

func (c *Controller) enterReset() {
	c.reset.Assert()
	time.Sleep(ResetHold)
	c.reset.Deassert()
	c.regs.Write(regs.Mode, regs.ModeReset)
	c.mode = modeReset
}

// Other mode bits are kept as programmed
func (c *Controller) enterNormal() {
	c.regs.Write(regs.Mode, c.regs.Read(regs.Mode)|regs.ModeWork)
	c.mode = modeNormal
}

func (c *Controller) writeBitTiming() {
	c.regs.Write(regs.NBTP, bittiming.EncodeNominal(c.nominal))
	if !c.fdMode() {
		return
	}
	c.regs.Write(regs.DBTP, bittiming.EncodeData(c.data))
	if tdco, ok := bittiming.ComputeTDC(c.clockHz, c.data.Bitrate); ok {
		c.regs.Write(regs.TDCR, bittiming.EncodeTDC(tdco))
		log.Debugf("[CANFD] transmitter delay compensation offset %d", tdco)
	}
}

// Program the controller from scratch and start participating on the bus
func (c *Controller) start() {
	c.enterReset()

	// all interrupt sources enabled
	c.regs.Write(regs.IntMask, 0)

	for _, pair := range regs.FilterPairs {
		c.regs.Write(pair[0], 0)
		c.regs.Write(pair[1], regs.AcceptAllMask)
	}
	c.regs.Write(regs.RxFC, c.regs.Read(regs.RxFC)|regs.FifoEnable)

	if c.fdMode() {
		c.regs.Write(regs.Mode, c.regs.Read(regs.Mode)|regs.ModeFDOE)
		c.regs.Write(regs.TxFIC, c.regs.Read(regs.TxFIC)|regs.TxFDEnable)
	}
	if c.ctrlMode&CtrlModeLoopback != 0 {
		c.regs.Write(regs.Mode, c.regs.Read(regs.Mode)|regs.ModeSelfTest|regs.ModeLBack)
	}
	c.regs.Write(regs.Mode, c.regs.Read(regs.Mode)|regs.ModeAutoRetx)

	c.writeBitTiming()
	c.enterNormal()
	c.state = canfd.StateErrorActive
	c.inflight = nil
	c.dump("start")
}

// Leave the bus, every interrupt source masked
func (c *Controller) stop() {
	c.state = canfd.StateStopped
	c.enterReset()
	c.regs.Write(regs.IntMask, uint32(regs.IntAll))
	c.inflight = nil
	c.dump("stop")
}

func (c *Controller) dump(event string) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	log.Debugf("[CANFD] %v : MODE 0x%08x INT_MASK 0x%08x NBTP 0x%08x DBTP 0x%08x TDCR 0x%08x",
		event,
		c.regs.Read(regs.Mode),
		c.regs.Read(regs.IntMask),
		c.regs.Read(regs.NBTP),
		c.regs.Read(regs.DBTP),
		c.regs.Read(regs.TDCR),
	)
}
