package netdev

import (
	canfd "github.com/samsamfire/gocanfd"
	log "github.com/sirupsen/logrus"
)

func subscriptionKey(id uint32, extended bool) uint32 {
	if extended {
		return (id & canfd.EffMask) | extendedKey
	}
	return id & canfd.SffMask
}

// Subscribe to a specific frame identifier
func (d *Device) Subscribe(id uint32, extended bool, listener FrameListener) {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	key := subscriptionKey(id, extended)
	// Verify that we are not adding the same listener twice
	for _, l := range d.frameListeners[key] {
		if l == listener {
			log.Warnf("[NETDEV] listener for frame id %x already added", id)
			return
		}
	}
	d.frameListeners[key] = append(d.frameListeners[key], listener)
}

// Unsubscribe a listener from a frame identifier
func (d *Device) Unsubscribe(id uint32, extended bool, listener FrameListener) {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	key := subscriptionKey(id, extended)
	listeners := d.frameListeners[key]
	for i, l := range listeners {
		if l == listener {
			d.frameListeners[key] = append(listeners[:i:i], listeners[i+1:]...)
			break
		}
	}
	if len(d.frameListeners[key]) == 0 {
		delete(d.frameListeners, key)
	}
}

// SubscribeAll receives every frame whatever its identifier
func (d *Device) SubscribeAll(listener FrameListener) {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	d.allListeners = append(d.allListeners, listener)
}

func (d *Device) SubscribeErrors(listener ErrorListener) {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	d.errorListeners = append(d.errorListeners, listener)
}

func (d *Device) handle(ev event) {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	if ev.isError {
		for _, listener := range d.errorListeners {
			listener.HandleError(ev.errFrame)
		}
		return
	}
	for _, listener := range d.allListeners {
		listener.Handle(ev.frame)
	}
	for _, listener := range d.frameListeners[subscriptionKey(ev.frame.ID, ev.frame.Extended)] {
		listener.Handle(ev.frame)
	}
}

// Dispatch received frames until stop is closed, then drain the backlog
func (d *Device) dispatch(stop chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.backlog:
			d.handle(ev)
		case <-stop:
			for {
				select {
				case ev := <-d.backlog:
					d.handle(ev)
				default:
					return
				}
			}
		}
	}
}
