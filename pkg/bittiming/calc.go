package bittiming

import (
	"fmt"
	"math"

	canfd "github.com/samsamfire/gocanfd"
	log "github.com/sirupsen/logrus"
)

// Maximum accepted bitrate error, in one-tenth of a percent
const MaxBitrateError = 50

// Default sample point recommended by CiA for a bitrate, in one-tenth of a percent
func DefaultSamplePoint(bitrate uint32) uint32 {
	switch {
	case bitrate > 800_000:
		return 750
	case bitrate > 500_000:
		return 800
	default:
		return 875
	}
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Split tseg (tseg1 + tseg2) around the nominal sample point.
// Returns the real sample point and its error, the real sample point is never after the nominal one.
func splitSamplePoint(c Const, nominal uint32, tseg uint32) (tseg1, tseg2, samplePoint, spError uint32) {
	spError = math.MaxUint32
	for i := 0; i <= 1; i++ {
		t2 := int(tseg+SyncSeg) - int(nominal*(tseg+SyncSeg))/1000 - i
		t2 = clamp(t2, int(c.Tseg2Min), int(c.Tseg2Max))
		t1 := int(tseg) - t2
		if t1 > int(c.Tseg1Max) {
			t1 = int(c.Tseg1Max)
			t2 = int(tseg) - t1
		}
		sp := uint32(1000 * (int(tseg+SyncSeg) - t2) / int(tseg+SyncSeg))
		e := absDiff(nominal, sp)
		if sp <= nominal && e < spError {
			samplePoint = sp
			spError = e
			tseg1 = uint32(t1)
			tseg2 = uint32(t2)
		}
	}
	return tseg1, tseg2, samplePoint, spError
}

// Calculate finds the timing closest to bitrate and samplePoint (one-tenth of a percent,
// 0 selects the CiA default) for the given clock. sjw is kept when non zero and limited
// to the phase segment 2.
func Calculate(c Const, clockHz uint32, bitrate uint32, samplePoint uint32, sjw uint32) (Params, error) {
	if clockHz == 0 {
		return Params{}, canfd.ErrNoClock
	}
	if bitrate == 0 {
		return Params{}, fmt.Errorf("%w : %v bitrate is zero", canfd.ErrInvalidTiming, c.Name)
	}
	if samplePoint == 0 {
		samplePoint = DefaultSamplePoint(bitrate)
	}

	bestBitrateError := uint32(math.MaxUint32)
	bestSpError := uint32(math.MaxUint32)
	var bestTseg, bestBRP uint32

	// tseg even = round down, odd = round up
	for tseg := (c.Tseg1Max+c.Tseg2Max)*2 + 1; tseg >= (c.Tseg1Min+c.Tseg2Min)*2; tseg-- {
		tsegAll := SyncSeg + tseg/2
		brp := uint32(uint64(clockHz)/(uint64(tsegAll)*uint64(bitrate))) + tseg%2
		brp = (brp / c.BRPInc) * c.BRPInc
		if brp < c.BRPMin || brp > c.BRPMax {
			continue
		}
		actual := clockHz / (brp * tsegAll)
		bitrateError := absDiff(bitrate, actual)
		if bitrateError > bestBitrateError {
			continue
		}
		// reset sample point error if we have a better bitrate
		if bitrateError < bestBitrateError {
			bestSpError = math.MaxUint32
		}
		_, _, _, spError := splitSamplePoint(c, samplePoint, tseg/2)
		if spError > bestSpError {
			continue
		}
		bestSpError = spError
		bestBitrateError = bitrateError
		bestTseg = tseg / 2
		bestBRP = brp
		if bitrateError == 0 && spError == 0 {
			break
		}
	}
	if bestBRP == 0 {
		return Params{}, fmt.Errorf("%w : no %v timing for bitrate %d with clock %d", canfd.ErrInvalidTiming, c.Name, bitrate, clockHz)
	}
	if bestBitrateError != 0 {
		permille := uint64(bestBitrateError) * 1000 / uint64(bitrate)
		if permille > MaxBitrateError {
			return Params{}, fmt.Errorf("%w : %v bitrate error %d.%d%%", canfd.ErrBitrateError, c.Name, permille/10, permille%10)
		}
		log.Warnf("[TIMING] %v bitrate error %d.%d%%", c.Name, permille/10, permille%10)
	}

	tseg1, tseg2, realSp, _ := splitSamplePoint(c, samplePoint, bestTseg)
	p := Params{
		SamplePoint: realSp,
		BRP:         bestBRP,
		PropSeg:     tseg1 / 2,
		PhaseSeg1:   tseg1 - tseg1/2,
		PhaseSeg2:   tseg2,
	}
	switch {
	case sjw == 0 || c.SJWMax == 0:
		p.SJW = 1
	default:
		p.SJW = min(sjw, c.SJWMax, tseg2)
	}
	p.Bitrate = p.BitrateFor(clockHz)
	return p, nil
}

// Resolve completes p for clockHz : parameters given as raw segments are validated and
// their bitrate filled in, parameters given as a bitrate only are calculated.
func Resolve(c Const, clockHz uint32, p Params) (Params, error) {
	if p.BRP == 0 {
		calculated, err := Calculate(c, clockHz, p.Bitrate, p.SamplePoint, p.SJW)
		if err != nil {
			return Params{}, err
		}
		calculated.TripleSampling = p.TripleSampling
		p = calculated
	}
	if err := p.Validate(c); err != nil {
		return Params{}, err
	}
	if p.SJW > p.PhaseSeg2 {
		log.Warnf("[TIMING] %v sjw %d greater than phase segment 2 (%d)", c.Name, p.SJW, p.PhaseSeg2)
	}
	if clockHz != 0 {
		p.Bitrate = p.BitrateFor(clockHz)
		p.SamplePoint = 1000 * (SyncSeg + p.Tseg1()) / p.Quanta()
	}
	return p, nil
}
