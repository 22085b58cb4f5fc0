package beammodel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = `energy_nominal,energy_measured,espread,sigma_x,sigma_y,div_x,div_y,cov_x,cov_y,ppmu
70.0,69.5,0.70,6.00,6.20,0.0040,0.0042,-0.90,-0.88,0.80e8
100.0,99.4,0.60,4.50,4.60,0.0035,0.0036,-0.85,-0.84,1.00e8
150.0,149.3,0.50,3.50,3.60,0.0030,0.0031,-0.80,-0.79,1.40e8
226.0,225.5,0.40,2.80,2.90,0.0025,0.0026,-0.75,-0.74,2.00e8
`

func writeModel(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beammodel.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	m, err := Load(writeModel(t, testCSV), 500.0)
	require.NoError(t, err)

	assert.Equal(t, 500.0, m.Position())

	lo, hi := m.EnergyRange()
	assert.Equal(t, 70.0, lo)
	assert.Equal(t, 226.0, hi)

	// Calibration points reproduce exactly.
	assert.InDelta(t, 99.4, m.MeasuredEnergy(100.0), 1e-9)
	assert.InDelta(t, 0.50, m.EnergySpread(150.0), 1e-9)
	assert.InDelta(t, 1.0e8, m.ParticlesPerMU(100.0), 1e-3)
	assert.InDelta(t, 6.00, m.SigmaX(70.0), 1e-9)
	assert.InDelta(t, 2.90, m.SigmaY(226.0), 1e-9)
	assert.InDelta(t, -0.80, m.CorrelationX(150.0), 1e-9)

	// Between calibration points values are linear.
	assert.InDelta(t, (4.50+3.50)/2, m.SigmaX(125.0), 1e-9)
	assert.InDelta(t, (0.0035+0.0030)/2, m.DivergenceX(125.0), 1e-12)
	assert.InDelta(t, (0.0036+0.0031)/2, m.DivergenceY(125.0), 1e-12)
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.csv"), 500.0)
		require.Error(t, err)
	})

	t.Run("wrong header", func(t *testing.T) {
		csv := `energy,measured,espread,sigma_x,sigma_y,div_x,div_y,cov_x,cov_y,ppmu
70,69.5,0.7,6,6.2,0.004,0.0042,-0.9,-0.88,0.8e8
100,99.4,0.6,4.5,4.6,0.0035,0.0036,-0.85,-0.84,1e8
`
		_, err := Load(writeModel(t, csv), 500.0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "column 1")
	})

	t.Run("too few calibration points", func(t *testing.T) {
		csv := `energy_nominal,energy_measured,espread,sigma_x,sigma_y,div_x,div_y,cov_x,cov_y,ppmu
70,69.5,0.7,6,6.2,0.004,0.0042,-0.9,-0.88,0.8e8
`
		_, err := Load(writeModel(t, csv), 500.0)
		require.Error(t, err)
	})

	t.Run("non-increasing energies", func(t *testing.T) {
		csv := `energy_nominal,energy_measured,espread,sigma_x,sigma_y,div_x,div_y,cov_x,cov_y,ppmu
100,99.4,0.6,4.5,4.6,0.0035,0.0036,-0.85,-0.84,1e8
70,69.5,0.7,6,6.2,0.004,0.0042,-0.9,-0.88,0.8e8
`
		_, err := Load(writeModel(t, csv), 500.0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "strictly increasing")
	})

	t.Run("non-numeric value", func(t *testing.T) {
		csv := `energy_nominal,energy_measured,espread,sigma_x,sigma_y,div_x,div_y,cov_x,cov_y,ppmu
70,69.5,0.7,six,6.2,0.004,0.0042,-0.9,-0.88,0.8e8
100,99.4,0.6,4.5,4.6,0.0035,0.0036,-0.85,-0.84,1e8
`
		_, err := Load(writeModel(t, csv), 500.0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sigma_x")
	})
}
