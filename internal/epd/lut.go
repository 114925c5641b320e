package epd

// LUTSize is the length of a waveform table accepted by the controller.
const LUTSize = 30

// LUT is a waveform lookup table controlling pixel transition timing.
type LUT []byte

// FullUpdateLUT drives a complete refresh.
var FullUpdateLUT = LUT{
	0x22, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x11,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x1E, 0x1E, 0x1E, 0x1E, 0x1E, 0x1E, 0x1E, 0x1E,
	0x01, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// PartialUpdateLUT is the vendor's fast waveform. It ghosts more than
// FullUpdateLUT.
var PartialUpdateLUT = LUT{
	0x18, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x0F, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// LUTByName returns the table for "full" or "partial".
func LUTByName(name string) (LUT, bool) {
	switch name {
	case "full", "":
		return FullUpdateLUT, true
	case "partial":
		return PartialUpdateLUT, true
	default:
		return nil, false
	}
}
