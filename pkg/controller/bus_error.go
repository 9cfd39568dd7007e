package controller

import (
	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/regs"
	log "github.com/sirupsen/logrus"
)

// State shared by the error handlers of one interrupt
type errorEvent struct {
	frame   canfd.ErrorFrame
	txerr   uint32
	rxerr   uint32
	hwState regs.IntStatus
	target  canfd.BusState
}

// Error handlers, run in this order
var errorHandlers = []struct {
	flag   regs.IntStatus
	handle func(c *Controller, ev *errorEvent)
}{
	{regs.RxBufOv, (*Controller).rxOverrun},
	{regs.ErrWarn, (*Controller).errorWarning},
	{regs.BusErr, (*Controller).busError},
	{regs.PassiveErr, (*Controller).errorPassive},
	{regs.TxLostArb, (*Controller).lostArbitration},
}

func saturate(count uint32) uint8 {
	return uint8(min(count, 0xff))
}

func (c *Controller) errorInterrupt(status regs.IntStatus) {
	ev := &errorEvent{
		rxerr:   c.regs.Read(regs.RxErrCnt),
		txerr:   c.regs.Read(regs.TxErrCnt),
		hwState: regs.IntStatus(c.regs.Read(regs.State)),
		target:  c.state,
	}
	c.berr = canfd.BerrCounter{TxErr: uint16(ev.txerr), RxErr: uint16(ev.rxerr)}
	ev.frame.Data[6] = saturate(ev.txerr)
	ev.frame.Data[7] = saturate(ev.rxerr)

	for _, h := range errorHandlers {
		if status.Has(h.flag) {
			h.handle(c, ev)
		}
	}

	switch {
	case ev.target == c.state:
	case c.state == canfd.StateBusOff || c.state == canfd.StateStopped:
		// only a new start leaves these states
		log.Debugf("[CANFD] ignoring transition %v -> %v", c.state, ev.target)
	default:
		c.changeState(ev)
	}

	if err := c.stack.DeliverErrorFrame(ev.frame); err != nil {
		c.stats.RxDropped++
		log.Errorf("[CANFD] dropped error frame %v (%v), clearing pending interrupts", ev.frame, err)
		return
	}
	c.stats.RxPackets++
	c.stats.RxBytes += canfd.ErrorFrameLen
}

// Overrun recovery is a full reset cycle, frames in the fifo are lost
func (c *Controller) rxOverrun(ev *errorEvent) {
	log.Debugf("[CANFD] receive fifo overrun")
	ev.frame.Class |= canfd.ErrClassCrtl
	ev.frame.Data[1] |= canfd.ErrCrtlRxOverflow
	c.stats.RxOverErrors++
	c.stats.RxErrors++
	c.enterReset()
	c.enterNormal()
}

func (c *Controller) errorWarning(ev *errorEvent) {
	switch {
	case ev.hwState.Has(regs.BusOff):
		ev.target = canfd.StateBusOff
	case ev.hwState.Has(regs.ErrWarn):
		ev.target = canfd.StateErrorWarning
	default:
		ev.target = canfd.StateErrorActive
	}
}

func (c *Controller) busError(ev *errorEvent) {
	c.stats.BusError++
	c.stats.RxErrors++
	code := c.regs.Read(regs.ErrCode)
	ev.frame.Class |= canfd.ErrClassProt | canfd.ErrClassBusError
	switch (code & regs.ErrTypeMask) >> regs.ErrTypeShift {
	case regs.ErrTypeBit:
		ev.frame.Data[2] |= canfd.ErrProtBit
	case regs.ErrTypeStuff:
		ev.frame.Data[2] |= canfd.ErrProtStuff
	case regs.ErrTypeForm:
		ev.frame.Data[2] |= canfd.ErrProtForm
	default:
		ev.frame.Data[3] = uint8(code & regs.ErrLocMask)
	}
	if code&regs.ErrDirRx == 0 {
		ev.frame.Data[2] |= canfd.ErrProtTx
	}
	log.Debugf("[CANFD] bus error code 0x%08x", code)
}

// The flag toggles between passive and warning
func (c *Controller) errorPassive(ev *errorEvent) {
	if ev.target == canfd.StateErrorPassive {
		ev.target = canfd.StateErrorWarning
	} else {
		ev.target = canfd.StateErrorPassive
	}
}

func (c *Controller) lostArbitration(ev *errorEvent) {
	c.stats.ArbitrationLost++
	c.stats.TxErrors++
	ev.frame.Class |= canfd.ErrClassLostArb
	ev.frame.Data[0] = uint8(c.regs.Read(regs.LostArbCode))
}

func txStateBits(state canfd.BusState) uint8 {
	switch state {
	case canfd.StateErrorWarning:
		return canfd.ErrCrtlTxWarning
	case canfd.StateErrorPassive:
		return canfd.ErrCrtlTxPassive
	case canfd.StateErrorActive:
		return canfd.ErrCrtlActive
	}
	return 0
}

func rxStateBits(state canfd.BusState) uint8 {
	switch state {
	case canfd.StateErrorWarning:
		return canfd.ErrCrtlRxWarning
	case canfd.StateErrorPassive:
		return canfd.ErrCrtlRxPassive
	case canfd.StateErrorActive:
		return canfd.ErrCrtlActive
	}
	return 0
}

// The side with the most errors takes the new state, on a tie both do
func (c *Controller) changeState(ev *errorEvent) {
	txState, rxState := canfd.StateErrorActive, canfd.StateErrorActive
	if ev.txerr >= ev.rxerr {
		txState = ev.target
	}
	if ev.txerr <= ev.rxerr {
		rxState = ev.target
	}
	newState := max(txState, rxState)
	if newState > c.state {
		switch newState {
		case canfd.StateErrorWarning:
			c.stats.ErrorWarning++
		case canfd.StateErrorPassive:
			c.stats.ErrorPassive++
		case canfd.StateBusOff:
			c.stats.BusOff++
		}
	}
	log.Infof("[CANFD] state %v -> %v (tx %d rx %d)", c.state, newState, ev.txerr, ev.rxerr)
	c.state = newState

	if newState == canfd.StateBusOff {
		ev.frame.Class |= canfd.ErrClassBusOff
		log.Warnf("[CANFD] controller is bus-off")
		c.stack.NotifyBusOff()
		return
	}
	ev.frame.Class |= canfd.ErrClassCrtl
	if txState >= rxState {
		ev.frame.Data[1] |= txStateBits(txState)
	}
	if txState <= rxState {
		ev.frame.Data[1] |= rxStateBits(rxState)
	}
}
