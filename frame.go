package canfd

import "fmt"

const (
	MaxClassicLen = 8
	MaxFDLen      = 64

	SffMask uint32 = 0x000007FF
	EffMask uint32 = 0x1FFFFFFF
)

// A CAN or CAN-FD frame as exchanged with the controller
type Frame struct {
	ID       uint32
	Extended bool // 29 bit identifier
	Remote   bool // remote transmission request
	FD       bool // FD format frame
	BRS      bool // bit rate switch for the data phase
	Len      uint8
	Data     [MaxFDLen]byte
}

// Create a new data frame, FD format is selected when the payload
// does not fit a classic frame
func NewFrame(id uint32, extended bool, data []byte) Frame {
	frame := Frame{ID: id, Extended: extended, Len: uint8(len(data))}
	if len(data) > MaxClassicLen {
		frame.FD = true
	}
	copy(frame.Data[:], data)
	return frame
}

// Payload returns the valid data bytes of the frame
func (f *Frame) Payload() []byte {
	if f.Remote || int(f.Len) > MaxFDLen {
		return nil
	}
	return f.Data[:f.Len]
}

// Validate checks the frame can be represented on the bus
func (f *Frame) Validate() error {
	if f.Extended && f.ID > EffMask {
		return fmt.Errorf("%w : extended id %x out of range", ErrInvalidFrame, f.ID)
	}
	if !f.Extended && f.ID > SffMask {
		return fmt.Errorf("%w : standard id %x out of range", ErrInvalidFrame, f.ID)
	}
	if !f.FD {
		if f.BRS {
			return fmt.Errorf("%w : bit rate switch on classic frame", ErrInvalidFrame)
		}
		if f.Len > MaxClassicLen {
			return fmt.Errorf("%w : classic frame length %d", ErrInvalidFrame, f.Len)
		}
		return nil
	}
	if f.Remote {
		return fmt.Errorf("%w : remote request in FD format", ErrInvalidFrame)
	}
	if f.Len > MaxFDLen {
		return fmt.Errorf("%w : fd frame length %d", ErrInvalidFrame, f.Len)
	}
	return nil
}

func (f Frame) String() string {
	kind := "STD"
	if f.Extended {
		kind = "EXT"
	}
	if f.FD {
		kind += "|FD"
		if f.BRS {
			kind += "|BRS"
		}
	}
	if f.Remote {
		return fmt.Sprintf("%x [%s|RTR] len %d", f.ID, kind, f.Len)
	}
	return fmt.Sprintf("%x [%s] len %d % x", f.ID, kind, f.Len, f.Data[:min(int(f.Len), MaxFDLen)])
}

// FD lengths above 8 bytes, indexed by DLC - 9
var fdLengths = [7]uint8{12, 16, 20, 24, 32, 48, 64}

// LenToDLC returns the smallest DLC code able to carry length bytes.
// Lengths between two FD sizes round up, lengths above 64 saturate.
func LenToDLC(length uint8) uint8 {
	if length <= MaxClassicLen {
		return length
	}
	for i, l := range fdLengths {
		if length <= l {
			return uint8(i) + 9
		}
	}
	return 0xF
}

// DLCToLen returns the FD byte length of a 4 bit DLC code
func DLCToLen(dlc uint8) uint8 {
	dlc &= 0xF
	if dlc <= MaxClassicLen {
		return dlc
	}
	return fdLengths[dlc-9]
}

// ClassicLen returns the classic CAN length of a DLC code, codes above 8 mean 8 bytes
func ClassicLen(dlc uint8) uint8 {
	dlc &= 0xF
	if dlc > MaxClassicLen {
		return MaxClassicLen
	}
	return dlc
}
