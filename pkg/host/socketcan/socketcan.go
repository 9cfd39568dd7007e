package socketcan

import (
	"fmt"
	"sync/atomic"

	sockcan "github.com/brutella/can"
	"github.com/samsamfire/gocanfd/pkg/host"
	log "github.com/sirupsen/logrus"
)

// Basic wrapper for socketcan it uses the implementation
// that can be found here : https://github.com/brutella/can
// Raw CAN sockets only carry classic frames, longer frames are refused
// before reaching the socket.

func init() {
	host.RegisterInterface("socketcan", NewSocketCanBus)
}

type SocketcanBus struct {
	name       string
	bus        *sockcan.Bus
	rxCallback host.FrameListener
	sent       atomic.Uint64
	received   atomic.Uint64
	refused    atomic.Uint64
}

func NewSocketCanBus(name string) (host.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, fmt.Errorf("socketcan %v : %w", name, err)
	}
	return &SocketcanBus{name: name, bus: bus}, nil
}

// "Connect" implementation of Bus interface
func (socketcan *SocketcanBus) Connect(...any) error {
	go func() {
		err := socketcan.bus.ConnectAndPublish()
		if err != nil {
			log.Warnf("[HOST][SOCKETCAN] %v stopped : %v", socketcan.name, err)
		}
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (socketcan *SocketcanBus) Disconnect() error {
	sent, received, refused := socketcan.Counters()
	log.Debugf("[HOST][SOCKETCAN] %v closing, sent %v received %v refused %v", socketcan.name, sent, received, refused)
	return socketcan.bus.Disconnect()
}

// "Send" implementation of Bus interface
func (socketcan *SocketcanBus) Send(frame host.Frame) error {
	if frame.DLC > 8 {
		socketcan.refused.Add(1)
		log.Debugf("[HOST][SOCKETCAN] %v refused frame %x with dlc %v", socketcan.name, frame.ID, frame.DLC)
		return fmt.Errorf("%w : dlc %v", host.ErrNotClassic, frame.DLC)
	}
	if err := socketcan.bus.Publish(toSockcan(frame)); err != nil {
		return err
	}
	socketcan.sent.Add(1)
	return nil
}

// "Subscribe" implementation of Bus interface
func (socketcan *SocketcanBus) Subscribe(rxCallback host.FrameListener) error {
	socketcan.rxCallback = rxCallback
	// brutella/can defines a "Handle" interface for handling received CAN frames
	socketcan.bus.Subscribe(socketcan)
	return nil
}

// brutella/can specific "Handle" implementation
func (socketcan *SocketcanBus) Handle(frame sockcan.Frame) {
	if frame.Length > 8 {
		socketcan.refused.Add(1)
		log.Debugf("[HOST][SOCKETCAN] %v dropped received frame %x with length %v", socketcan.name, frame.ID, frame.Length)
		return
	}
	socketcan.received.Add(1)
	if socketcan.rxCallback != nil {
		socketcan.rxCallback.Handle(fromSockcan(frame))
	}
}

// Counters returns the frames sent, received and refused by this bus
func (socketcan *SocketcanBus) Counters() (sent uint64, received uint64, refused uint64) {
	return socketcan.sent.Load(), socketcan.received.Load(), socketcan.refused.Load()
}

func toSockcan(frame host.Frame) sockcan.Frame {
	return sockcan.Frame{
		ID:     frame.ID,
		Length: frame.DLC,
		Flags:  frame.Flags,
		Data:   frame.Data,
	}
}

func fromSockcan(frame sockcan.Frame) host.Frame {
	return host.Frame{ID: frame.ID, DLC: frame.Length, Flags: frame.Flags, Data: frame.Data}
}
