package crystal

import (
	"math"
)

// HighResolution returns the resolution in Ångström reached at the nearer
// detector edge, for a beam centred on the detector. distance is in mm,
// wavelength in Ångström.
func HighResolution(distance, wavelength float64, h CBFHeader) float64 {
	short := h.PixelSize * math.Floor(h.FastPixels/2)
	long := h.PixelSize * math.Floor(h.SlowPixels/2)
	d := distance / 1000

	res := func(edge float64) float64 {
		return wavelength / (2 * math.Sin(0.5*math.Atan(edge/d)))
	}
	return math.Max(res(short), res(long))
}
