package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFWHMSigmaRoundTrip(t *testing.T) {
	assert.InDelta(t, 2.354820045, FWHM(1.0), 1e-9)
	assert.InDelta(t, 1.0, Sigma(FWHM(1.0)), 1e-12)
	assert.InDelta(t, 7.0644601, FWHM(3.0), 1e-6)
}

func TestAngleConversions(t *testing.T) {
	assert.InDelta(t, 180.0, Degrees(math.Pi), 1e-12)
	assert.InDelta(t, math.Pi/4, Radians(45.0), 1e-12)
	assert.InDelta(t, 30.0, Degrees(Radians(30.0)), 1e-12)
}
