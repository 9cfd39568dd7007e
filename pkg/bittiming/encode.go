package bittiming

// Nominal Bit Timing & Prescaler Register (NBTP)
const (
	nbtpTripleSampling uint32 = 1 << 31
	nbtpSJWShift              = 24
	nbtpSJWMask        uint32 = 0x7f
	nbtpBRPShift              = 16
	nbtpBRPMask        uint32 = 0xff
	nbtpTseg2Shift            = 8
	nbtpTseg2Mask      uint32 = 0x7f
	nbtpTseg1Shift            = 0
	nbtpTseg1Mask      uint32 = 0x7f
)

// Data Bit Timing & Prescaler Register (DBTP)
const (
	dbtpTripleSampling uint32 = 1 << 21
	dbtpSJWShift              = 17
	dbtpSJWMask        uint32 = 0xf
	dbtpBRPShift              = 9
	dbtpBRPMask        uint32 = 0xff
	dbtpTseg2Shift            = 5
	dbtpTseg2Mask      uint32 = 0xf
	dbtpTseg1Shift            = 0
	dbtpTseg1Mask      uint32 = 0x1f
)

// Transmitter Delay Compensation Register (TDCR)
const (
	tdcrOffsetShift        = 1
	tdcrOffsetMask  uint32 = 0x3f
	tdcrEnable      uint32 = 1 << 0

	// TDC is only needed above this data bitrate
	TDCMinBitrate = 2_200_000
	TDCOffsetMax  = 63
)

type layout struct {
	triple     uint32
	sjwShift   uint32
	sjwMask    uint32
	brpShift   uint32
	brpMask    uint32
	tseg1Shift uint32
	tseg1Mask  uint32
	tseg2Shift uint32
	tseg2Mask  uint32
}

var nominalLayout = layout{
	triple:     nbtpTripleSampling,
	sjwShift:   nbtpSJWShift,
	sjwMask:    nbtpSJWMask,
	brpShift:   nbtpBRPShift,
	brpMask:    nbtpBRPMask,
	tseg1Shift: nbtpTseg1Shift,
	tseg1Mask:  nbtpTseg1Mask,
	tseg2Shift: nbtpTseg2Shift,
	tseg2Mask:  nbtpTseg2Mask,
}

var dataLayout = layout{
	triple:     dbtpTripleSampling,
	sjwShift:   dbtpSJWShift,
	sjwMask:    dbtpSJWMask,
	brpShift:   dbtpBRPShift,
	brpMask:    dbtpBRPMask,
	tseg1Shift: dbtpTseg1Shift,
	tseg1Mask:  dbtpTseg1Mask,
	tseg2Shift: dbtpTseg2Shift,
	tseg2Mask:  dbtpTseg2Mask,
}

func (l *layout) encode(p Params) uint32 {
	brp := (p.BRP>>1 - 1) & l.brpMask
	sjw := (p.SJW - 1) & l.sjwMask
	tseg1 := (p.Tseg1() - 1) & l.tseg1Mask
	tseg2 := (p.PhaseSeg2 - 1) & l.tseg2Mask
	reg := brp<<l.brpShift | sjw<<l.sjwShift | tseg1<<l.tseg1Shift | tseg2<<l.tseg2Shift
	if p.TripleSampling {
		reg |= l.triple
	}
	return reg
}

// Decoded registers have no propagation segment, the whole tseg1 is phase segment 1
func (l *layout) decode(reg uint32) Params {
	return Params{
		BRP:            ((reg>>l.brpShift)&l.brpMask + 1) << 1,
		SJW:            (reg>>l.sjwShift)&l.sjwMask + 1,
		PhaseSeg1:      (reg>>l.tseg1Shift)&l.tseg1Mask + 1,
		PhaseSeg2:      (reg>>l.tseg2Shift)&l.tseg2Mask + 1,
		TripleSampling: reg&l.triple != 0,
	}
}

// EncodeNominal packs nominal timing into the NBTP register layout.
// Parameters must have been validated against [Nominal].
func EncodeNominal(p Params) uint32 {
	return nominalLayout.encode(p)
}

// EncodeData packs data phase timing into the DBTP register layout.
// Parameters must have been validated against [Data].
func EncodeData(p Params) uint32 {
	return dataLayout.encode(p)
}

func DecodeNominal(reg uint32) Params {
	return nominalLayout.decode(reg)
}

func DecodeData(reg uint32) Params {
	return dataLayout.decode(reg)
}

// ComputeTDC returns the transmitter delay compensation offset for a data bitrate.
// ok is false when compensation should stay disabled.
func ComputeTDC(clockHz uint32, dataBitrate uint32) (tdco uint8, ok bool) {
	if dataBitrate <= TDCMinBitrate {
		return 0, false
	}
	offset := (clockHz / dataBitrate) * 2 / 3
	return uint8(clamp(offset, 0, TDCOffsetMax)), true
}

// EncodeTDC returns the TDCR value enabling compensation with offset tdco
func EncodeTDC(tdco uint8) uint32 {
	return (uint32(tdco)&tdcrOffsetMask)<<tdcrOffsetShift | tdcrEnable
}
