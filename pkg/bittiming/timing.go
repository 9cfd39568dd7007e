package bittiming

import (
	"fmt"

	canfd "github.com/samsamfire/gocanfd"
	"golang.org/x/exp/constraints"
)

// Synchronisation segment, always one time quantum
const SyncSeg = 1

// Params holds the timing of one bus phase (nominal or data).
// All segments are expressed in time quanta.
type Params struct {
	Bitrate        uint32 // resulting bitrate in bit/s, informative
	SamplePoint    uint32 // sample point in one-tenth of a percent, informative
	BRP            uint32 // bitrate prescaler, even
	SJW            uint32 // synchronisation jump width
	PropSeg        uint32
	PhaseSeg1      uint32
	PhaseSeg2      uint32
	TripleSampling bool
}

// Tseg1 is the part of the bit before the sample point (without sync segment)
func (p Params) Tseg1() uint32 {
	return p.PropSeg + p.PhaseSeg1
}

// Number of time quanta in one bit
func (p Params) Quanta() uint32 {
	return SyncSeg + p.Tseg1() + p.PhaseSeg2
}

// Bitrate obtained with this timing for a given clock
func (p Params) BitrateFor(clockHz uint32) uint32 {
	if p.BRP == 0 || p.Quanta() == 0 {
		return 0
	}
	return clockHz / (p.BRP * p.Quanta())
}

func (p Params) String() string {
	return fmt.Sprintf("bitrate %d sp %d.%d%% brp %d sjw %d prop %d ph1 %d ph2 %d",
		p.Bitrate, p.SamplePoint/10, p.SamplePoint%10, p.BRP, p.SJW, p.PropSeg, p.PhaseSeg1, p.PhaseSeg2)
}

// Const describes the limits of a bit timing register
type Const struct {
	Name     string
	Tseg1Min uint32
	Tseg1Max uint32
	Tseg2Min uint32
	Tseg2Max uint32
	SJWMax   uint32
	BRPMin   uint32
	BRPMax   uint32
	BRPInc   uint32
}

// Nominal (arbitration phase) limits
var Nominal = Const{
	Name:     "nominal",
	Tseg1Min: 1,
	Tseg1Max: 128,
	Tseg2Min: 1,
	Tseg2Max: 128,
	SJWMax:   128,
	BRPMin:   1,
	BRPMax:   256,
	BRPInc:   2,
}

// Data phase limits
var Data = Const{
	Name:     "data",
	Tseg1Min: 1,
	Tseg1Max: 32,
	Tseg2Min: 1,
	Tseg2Max: 16,
	SJWMax:   16,
	BRPMin:   1,
	BRPMax:   256,
	BRPInc:   2,
}

// Validate checks that the parameters fit the register fields described by c.
// The hardware stores brp/2 - 1 so the prescaler must be even.
func (p Params) Validate(c Const) error {
	if p.BRP < 2 || p.BRP%2 != 0 || p.BRP > c.BRPMax {
		return fmt.Errorf("%w : %v brp %d must be even in [2,%d]", canfd.ErrInvalidTiming, c.Name, p.BRP, c.BRPMax)
	}
	if p.SJW < 1 || p.SJW > c.SJWMax {
		return fmt.Errorf("%w : %v sjw %d not in [1,%d]", canfd.ErrInvalidTiming, c.Name, p.SJW, c.SJWMax)
	}
	if tseg1 := p.Tseg1(); tseg1 < c.Tseg1Min || tseg1 > c.Tseg1Max {
		return fmt.Errorf("%w : %v tseg1 %d not in [%d,%d]", canfd.ErrInvalidTiming, c.Name, tseg1, c.Tseg1Min, c.Tseg1Max)
	}
	if p.PhaseSeg2 < c.Tseg2Min || p.PhaseSeg2 > c.Tseg2Max {
		return fmt.Errorf("%w : %v tseg2 %d not in [%d,%d]", canfd.ErrInvalidTiming, c.Name, p.PhaseSeg2, c.Tseg2Min, c.Tseg2Max)
	}
	return nil
}

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
