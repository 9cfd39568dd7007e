package host

import (
	"errors"
	"fmt"
	"sort"

	canfd "github.com/samsamfire/gocanfd"
)

// Identifier flags, SocketCAN layout
const (
	EffFlag uint32 = 0x80000000 // extended frame format
	RtrFlag uint32 = 0x40000000 // remote transmission request
	ErrFlag uint32 = 0x20000000 // error frame
)

var ErrNotClassic = errors.New("frame does not fit a classic CAN frame")

// A classic CAN frame as exchanged with host interfaces
type Frame struct {
	ID    uint32
	Flags uint8
	DLC   uint8
	Data  [8]byte
}

// FromFrame converts a controller frame, only frames up to 8 bytes can be converted
func FromFrame(frame canfd.Frame) (Frame, error) {
	if frame.Len > canfd.MaxClassicLen {
		return Frame{}, fmt.Errorf("%w : %v", ErrNotClassic, frame)
	}
	f := Frame{ID: frame.ID & canfd.SffMask, DLC: frame.Len}
	if frame.Extended {
		f.ID = frame.ID&canfd.EffMask | EffFlag
	}
	if frame.Remote {
		f.ID |= RtrFlag
	}
	copy(f.Data[:], frame.Payload())
	return f, nil
}

// ToFrame converts a host frame to a classic controller frame
func ToFrame(f Frame) canfd.Frame {
	frame := canfd.Frame{
		Extended: f.ID&EffFlag != 0,
		Remote:   f.ID&RtrFlag != 0,
		Len:      min(f.DLC, canfd.MaxClassicLen),
	}
	if frame.Extended {
		frame.ID = f.ID & canfd.EffMask
	} else {
		frame.ID = f.ID & canfd.SffMask
	}
	if !frame.Remote {
		copy(frame.Data[:frame.Len], f.Data[:frame.Len])
	}
	return frame
}

// Interface for handling a received CAN frame
type FrameListener interface {
	Handle(frame Frame)
}

// A CAN Bus interface
type Bus interface {
	Connect(...any) error                   // Connect to the CAN bus
	Disconnect() error                      // Disconnect from CAN bus
	Send(frame Frame) error                 // Send a frame on the bus
	Subscribe(callback FrameListener) error // Subscribe to all received CAN frames
}

type NewInterfaceFunc func(channel string) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// Register a new CAN bus interface type
// This should be called inside an init() function of plugin
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
}

// Registered interface types, sorted
func Interfaces() []string {
	names := make([]string, 0, len(interfaceRegistry))
	for name := range interfaceRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create a new CAN bus with given interface
// Currently supported : socketcan, virtual
func NewBus(canInterface string, channel string) (Bus, error) {
	createInterface, ok := interfaceRegistry[canInterface]
	if !ok {
		return nil, fmt.Errorf("unsupported interface : %v", canInterface)
	}
	return createInterface(channel)
}
