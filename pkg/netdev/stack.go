package netdev

import (
	"time"

	canfd "github.com/samsamfire/gocanfd"
	log "github.com/sirupsen/logrus"
)

// Implements [canfd.Stack], called with mu held
var _ canfd.Stack = (*Device)(nil)

func (d *Device) enqueue(ev event) error {
	select {
	case d.backlog <- ev:
		return nil
	default:
		return canfd.ErrNoBuffer
	}
}

func (d *Device) DeliverFrame(frame canfd.Frame) error {
	return d.enqueue(event{frame: frame})
}

func (d *Device) DeliverErrorFrame(frame canfd.ErrorFrame) error {
	return d.enqueue(event{errFrame: frame, isError: true})
}

func (d *Device) EchoSubmitted(slot canfd.TxSlot, frame canfd.Frame) {
	if d.echo[slot] != nil {
		log.Warnf("[NETDEV] echo slot %v still in use", slot)
	}
	d.echo[slot] = &frame
}

// Completed frames are looped back to listeners when receive own is set
func (d *Device) EchoComplete(slot canfd.TxSlot) {
	frame := d.echo[slot]
	d.echo[slot] = nil
	if frame == nil {
		log.Warnf("[NETDEV] completion of empty echo slot %v", slot)
		return
	}
	if !d.options.ReceiveOwn {
		return
	}
	if err := d.enqueue(event{frame: *frame}); err != nil {
		log.Debugf("[NETDEV] echo of %v dropped : %v", *frame, err)
	}
}

func (d *Device) QueueStop() {
	d.queueStopped = true
}

func (d *Device) QueueResume() {
	d.queueStopped = false
	d.signalWake()
}

func (d *Device) NotifyBusOff() {
	d.carrier = false
	d.signalWake()
	if d.options.RestartDelay <= 0 {
		log.Warnf("[NETDEV] bus-off, waiting for restart")
		return
	}
	log.Warnf("[NETDEV] bus-off, restarting in %v", d.options.RestartDelay)
	if d.restartTimer != nil {
		d.restartTimer.Stop()
	}
	d.restartTimer = time.AfterFunc(d.options.RestartDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.restartTimer = nil
		if !d.up {
			return
		}
		if err := d.restart(); err != nil {
			log.Errorf("[NETDEV] automatic restart failed : %v", err)
		}
	})
}

func (d *Device) signalWake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
