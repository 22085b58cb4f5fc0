// Package units provides shared conversions between the spot-size and
// angle conventions used by the plan formats and the beam model.
package units

import "math"

// fwhmPerSigma converts a Gaussian standard deviation to a full width at
// half maximum: 2*sqrt(2*ln 2).
var fwhmPerSigma = 2.0 * math.Sqrt(2.0*math.Ln2)

// FWHM converts a Gaussian sigma [mm] to full width at half maximum [mm].
func FWHM(sigma float64) float64 {
	return sigma * fwhmPerSigma
}

// Sigma converts a full width at half maximum [mm] to a Gaussian sigma [mm].
func Sigma(fwhm float64) float64 {
	return fwhm / fwhmPerSigma
}

// Degrees converts an angle from radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Radians converts an angle from degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
