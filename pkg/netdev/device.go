package netdev

import (
	"context"
	"fmt"
	"sync"
	"time"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/regs"
	log "github.com/sirupsen/logrus"
)

// Default number of frames waiting for dispatch before new frames are dropped
const DefaultBacklog = 64

// Flag added to the subscription key of extended identifiers
const extendedKey uint32 = 1 << 31

// Interface for handling a received frame
type FrameListener interface {
	Handle(frame canfd.Frame)
}

// Interface for handling a diagnostic frame
type ErrorListener interface {
	HandleError(frame canfd.ErrorFrame)
}

// Controller is the part of the controller driven by the device
type Controller interface {
	Open() error
	Close() error
	Restart() error
	Transmit(frame canfd.Frame) (canfd.TxSlot, error)
	Interrupt() regs.IntStatus
	State() canfd.BusState
	Stats() canfd.Stats
}

type Options struct {
	Backlog      int           // receive backlog size, [DefaultBacklog] if zero
	ReceiveOwn   bool          // completed transmissions are also delivered to listeners
	RestartDelay time.Duration // automatic restart after bus-off, disabled if zero
}

type event struct {
	frame    canfd.Frame
	errFrame canfd.ErrorFrame
	isError  bool
}

// Device is the upper layer of a controller, equivalent of a network device.
// It serializes every controller call, buffers received frames and dispatches
// them to subscribed listeners from its own goroutine.
// The [canfd.Stack] methods are called by the controller while mu is held.
type Device struct {
	mu           sync.Mutex
	ctrl         Controller
	options      Options
	up           bool
	carrier      bool
	queueStopped bool
	echo         [2]*canfd.Frame
	backlog      chan event
	wake         chan struct{}
	restartTimer *time.Timer

	lmu            sync.Mutex
	frameListeners map[uint32][]FrameListener
	allListeners   []FrameListener
	errorListeners []ErrorListener

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(options Options) *Device {
	if options.Backlog <= 0 {
		options.Backlog = DefaultBacklog
	}
	return &Device{
		options:        options,
		queueStopped:   true,
		backlog:        make(chan event, options.Backlog),
		wake:           make(chan struct{}, 1),
		frameListeners: make(map[uint32][]FrameListener),
	}
}

// Attach the controller driven by this device, must be called before [Device.Up]
func (d *Device) Attach(ctrl Controller) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctrl = ctrl
}

// Up opens the controller and starts dispatching received frames
func (d *Device) Up() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctrl == nil {
		return fmt.Errorf("no controller attached")
	}
	if d.up {
		return nil
	}
	if err := d.ctrl.Open(); err != nil {
		return err
	}
	d.up = true
	d.carrier = true
	d.stopChan = make(chan struct{})
	d.wg.Add(1)
	go d.dispatch(d.stopChan)
	log.Infof("[NETDEV] device up")
	return nil
}

// Down closes the controller, frames still in the backlog are dispatched first
func (d *Device) Down() error {
	d.mu.Lock()
	if !d.up {
		d.mu.Unlock()
		return nil
	}
	if d.restartTimer != nil {
		d.restartTimer.Stop()
		d.restartTimer = nil
	}
	err := d.ctrl.Close()
	d.up = false
	d.carrier = false
	d.echo = [2]*canfd.Frame{}
	close(d.stopChan)
	d.signalWake()
	d.mu.Unlock()
	d.wg.Wait()
	log.Infof("[NETDEV] device down")
	return err
}

// Send a frame, waiting for the transmit queue to be available
func (d *Device) Send(ctx context.Context, frame canfd.Frame) error {
	for {
		d.mu.Lock()
		if !d.up {
			d.mu.Unlock()
			return canfd.ErrNotRunning
		}
		if !d.carrier {
			d.mu.Unlock()
			return fmt.Errorf("%w : no carrier", canfd.ErrNotRunning)
		}
		if !d.queueStopped {
			_, err := d.ctrl.Transmit(frame)
			if err != canfd.ErrBusy {
				// The wake token consumed by this sender is handed over
				// to the next one while the queue is still running
				if !d.queueStopped {
					d.signalWake()
				}
				d.mu.Unlock()
				return err
			}
			d.queueStopped = true
		}
		d.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}
	}
}

// TrySend sends a frame only if the transmit queue is running
func (d *Device) TrySend(frame canfd.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.up || !d.carrier {
		return canfd.ErrNotRunning
	}
	if d.queueStopped {
		return canfd.ErrQueueStopped
	}
	_, err := d.ctrl.Transmit(frame)
	return err
}

// Interrupt handles pending controller interrupts
func (d *Device) Interrupt() regs.IntStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctrl == nil {
		return 0
	}
	return d.ctrl.Interrupt()
}

// Restart the controller after a bus-off
func (d *Device) Restart() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restart()
}

func (d *Device) restart() error {
	if !d.up {
		return canfd.ErrNotRunning
	}
	if err := d.ctrl.Restart(); err != nil {
		return err
	}
	d.carrier = true
	return nil
}

func (d *Device) State() canfd.BusState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctrl == nil {
		return canfd.StateStopped
	}
	return d.ctrl.State()
}

func (d *Device) Stats() canfd.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctrl == nil {
		return canfd.Stats{}
	}
	return d.ctrl.Stats()
}

// Carrier is false while the controller is down or bus-off
func (d *Device) Carrier() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.carrier
}

// QueueStopped reports whether transmissions are currently refused
func (d *Device) QueueStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queueStopped
}
