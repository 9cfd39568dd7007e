package controller

import (
	"fmt"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/samsamfire/gocanfd/pkg/regs"
	log "github.com/sirupsen/logrus"
)

// Control mode flags, same values as the SocketCAN ctrlmode
type CtrlMode uint32

const (
	CtrlModeLoopback       CtrlMode = 0x01
	CtrlModeTripleSampling CtrlMode = 0x04
	CtrlModeFD             CtrlMode = 0x20
)

func (m CtrlMode) String() string {
	s := ""
	for _, f := range []struct {
		flag CtrlMode
		name string
	}{{CtrlModeLoopback, "loopback"}, {CtrlModeTripleSampling, "triple-sampling"}, {CtrlModeFD, "fd"}} {
		if m&f.flag != 0 {
			if s != "" {
				s += ","
			}
			s += f.name
		}
	}
	if s == "" {
		return "classic"
	}
	return s
}

// Config holds the controller settings applied on every start
type Config struct {
	CtrlMode CtrlMode
	Nominal  bittiming.Params // nominal timing, raw segments or bitrate only
	Data     bittiming.Params // data phase timing, only used in FD mode
}

// Platform collaborators of the controller. Reset and Power are optional.
type Platform struct {
	Reset canfd.ResetLine
	Clock canfd.Clock
	Power canfd.Power
}

type mode uint8

const (
	modeReset mode = iota
	modeNormal
)

// Controller drives one CAN-FD controller through its registers.
// It has no internal locking, calls must be serialized by the caller.
type Controller struct {
	regs     regs.Accessor
	stack    canfd.Stack
	reset    canfd.ResetLine
	power    canfd.Power
	clockHz  uint32
	mode     mode
	state    canfd.BusState
	running  bool
	berr     canfd.BerrCounter
	stats    canfd.Stats
	ctrlMode CtrlMode
	nominal  bittiming.Params
	data     bittiming.Params
	inflight []canfd.TxSlot
}

type nopReset struct{}

func (nopReset) Assert()   {}
func (nopReset) Deassert() {}

type nopPower struct{}

func (nopPower) Acquire() error { return nil }
func (nopPower) Release()       {}

// Create a new controller, the hardware is not touched until [Controller.Open]
func New(r regs.Accessor, stack canfd.Stack, platform Platform, config Config) (*Controller, error) {
	if r == nil || stack == nil {
		return nil, fmt.Errorf("controller needs a register accessor and a stack")
	}
	if platform.Clock == nil {
		return nil, canfd.ErrNoClock
	}
	c := &Controller{
		regs:    r,
		stack:   stack,
		reset:   platform.Reset,
		power:   platform.Power,
		clockHz: platform.Clock.Rate(),
		state:   canfd.StateStopped,
		mode:    modeReset,
	}
	if c.clockHz == 0 {
		return nil, canfd.ErrNoClock
	}
	if c.reset == nil {
		c.reset = nopReset{}
	}
	if c.power == nil {
		c.power = nopPower{}
	}
	if err := c.configure(config); err != nil {
		return nil, err
	}
	return c, nil
}

// Resolve and store the timings of config
func (c *Controller) configure(config Config) error {
	nominal := config.Nominal
	if config.CtrlMode&CtrlModeTripleSampling != 0 {
		nominal.TripleSampling = true
	}
	nominal, err := bittiming.Resolve(bittiming.Nominal, c.clockHz, nominal)
	if err != nil {
		return err
	}
	var data bittiming.Params
	if config.CtrlMode&CtrlModeFD != 0 {
		data, err = bittiming.Resolve(bittiming.Data, c.clockHz, config.Data)
		if err != nil {
			return err
		}
	}
	c.ctrlMode = config.CtrlMode
	c.nominal = nominal
	c.data = data
	log.Debugf("[CANFD] %v nominal %v", c.ctrlMode, c.nominal)
	if c.ctrlMode&CtrlModeFD != 0 {
		log.Debugf("[CANFD] %v data %v", c.ctrlMode, c.data)
	}
	return nil
}

// Current bus state
func (c *Controller) State() canfd.BusState {
	return c.state
}

func (c *Controller) Stats() canfd.Stats {
	return c.stats
}

// Error counters as of the last error interrupt
func (c *Controller) CachedBerrCounter() canfd.BerrCounter {
	return c.berr
}

func (c *Controller) CtrlMode() CtrlMode {
	return c.ctrlMode
}

func (c *Controller) Clock() uint32 {
	return c.clockHz
}

// Nominal and data timings in use
func (c *Controller) BitTiming() (nominal bittiming.Params, data bittiming.Params) {
	return c.nominal, c.data
}

// Running reports whether the controller was opened and not closed
func (c *Controller) Running() bool {
	return c.running
}

func (c *Controller) fdMode() bool {
	return c.ctrlMode&CtrlModeFD != 0
}
