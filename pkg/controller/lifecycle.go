package controller

import (
	"fmt"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/samsamfire/gocanfd/pkg/regs"
	log "github.com/sirupsen/logrus"
)

// Open powers the controller and starts it, the transmit queue is woken up.
// Power stays acquired until [Controller.Close].
func (c *Controller) Open() error {
	if c.running {
		return nil
	}
	if err := c.power.Acquire(); err != nil {
		return fmt.Errorf("open : %w", err)
	}
	c.start()
	c.running = true
	c.stack.QueueResume()
	log.Infof("[CANFD] controller started, %v, nominal %v", c.ctrlMode, c.nominal)
	return nil
}

// Close stops the controller and releases its power
func (c *Controller) Close() error {
	if !c.running {
		return nil
	}
	c.stack.QueueStop()
	c.stop()
	c.running = false
	c.power.Release()
	log.Infof("[CANFD] controller stopped")
	return nil
}

// Suspend quiesces a running controller before its clocks are gated
func (c *Controller) Suspend() error {
	if !c.running {
		return nil
	}
	c.stack.QueueStop()
	c.stop()
	c.power.Release()
	log.Debugf("[CANFD] suspended")
	return nil
}

// Resume replays the start sequence of a running controller
func (c *Controller) Resume() error {
	if !c.running {
		return nil
	}
	if err := c.power.Acquire(); err != nil {
		return fmt.Errorf("resume : %w", err)
	}
	c.start()
	c.stack.QueueResume()
	log.Debugf("[CANFD] resumed")
	return nil
}

// Restart leaves the bus-off state by restarting the controller.
// A RESTARTED error frame is delivered first.
func (c *Controller) Restart() error {
	if !c.running || c.state != canfd.StateBusOff {
		return canfd.ErrNotBusOff
	}
	frame := canfd.ErrorFrame{Class: canfd.ErrClassRestarted}
	if err := c.stack.DeliverErrorFrame(frame); err != nil {
		c.stats.RxDropped++
		log.Errorf("[CANFD] dropped restart error frame : %v", err)
	} else {
		c.stats.RxPackets++
		c.stats.RxBytes += canfd.ErrorFrameLen
	}
	c.stats.Restarts++
	c.start()
	c.stack.QueueResume()
	log.Infof("[CANFD] restarted after bus-off")
	return nil
}

// BerrCounter reads the hardware error counters, the controller is powered for the read
func (c *Controller) BerrCounter() (canfd.BerrCounter, error) {
	if err := c.power.Acquire(); err != nil {
		return canfd.BerrCounter{}, fmt.Errorf("berr counter : %w", err)
	}
	defer c.power.Release()
	return canfd.BerrCounter{
		TxErr: uint16(c.regs.Read(regs.TxErrCnt)),
		RxErr: uint16(c.regs.Read(regs.RxErrCnt)),
	}, nil
}

// SetBitTiming changes the timings used by the next start
func (c *Controller) SetBitTiming(nominal bittiming.Params, data bittiming.Params) error {
	if c.running {
		return canfd.ErrRunning
	}
	return c.configure(Config{CtrlMode: c.ctrlMode, Nominal: nominal, Data: data})
}
