package host

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	canfd "github.com/samsamfire/gocanfd"
	log "github.com/sirupsen/logrus"
)

// Uplink forwards frames received by the controller to a host bus
type Uplink struct {
	bus       Bus
	forwarded atomic.Uint64
	skipped   atomic.Uint64
}

func NewUplink(bus Bus) *Uplink {
	return &Uplink{bus: bus}
}

func (u *Uplink) Handle(frame canfd.Frame) {
	f, err := FromFrame(frame)
	if err != nil {
		u.skipped.Add(1)
		log.Debugf("[HOST] not forwarded : %v", err)
		return
	}
	if err := u.bus.Send(f); err != nil {
		log.Warnf("[HOST] %v", err)
		return
	}
	u.forwarded.Add(1)
}

// Counters of forwarded frames and of FD frames that could not be forwarded
func (u *Uplink) Counters() (forwarded uint64, skipped uint64) {
	return u.forwarded.Load(), u.skipped.Load()
}

// Sender transmits frames through the controller
type Sender interface {
	Send(ctx context.Context, frame canfd.Frame) error
}

// Downlink forwards frames received on a host bus to the controller
type Downlink struct {
	ctx       context.Context
	sender    Sender
	timeout   time.Duration
	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// Each frame waits at most timeout for the controller transmit queue
func NewDownlink(ctx context.Context, sender Sender, timeout time.Duration) *Downlink {
	return &Downlink{ctx: ctx, sender: sender, timeout: timeout}
}

func (d *Downlink) Handle(f Frame) {
	if f.ID&ErrFlag != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	if err := d.sender.Send(ctx, ToFrame(f)); err != nil {
		d.dropped.Add(1)
		if !errors.Is(err, context.Canceled) {
			log.Warnf("[HOST] frame %x not sent : %v", f.ID, err)
		}
		return
	}
	d.forwarded.Add(1)
}

func (d *Downlink) Counters() (forwarded uint64, dropped uint64) {
	return d.forwarded.Load(), d.dropped.Load()
}
