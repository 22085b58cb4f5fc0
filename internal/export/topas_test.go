package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbassler/dicomexport/internal/plan"
)

type flatModel struct {
	position float64
}

func (m flatModel) MeasuredEnergy(e float64) float64 { return e - 1.0 }
func (m flatModel) EnergySpread(e float64) float64   { return 0.5 }
func (m flatModel) ParticlesPerMU(e float64) float64 { return 1e8 }
func (m flatModel) SigmaX(e float64) float64         { return 3.0 }
func (m flatModel) SigmaY(e float64) float64         { return 3.5 }
func (m flatModel) DivergenceX(e float64) float64    { return 0.003 }
func (m flatModel) DivergenceY(e float64) float64    { return 0.004 }
func (m flatModel) CorrelationX(e float64) float64   { return -0.9 }
func (m flatModel) CorrelationY(e float64) float64   { return -0.8 }
func (m flatModel) Position() float64                { return m.position }

func exportField() *plan.Field {
	f := plan.NewField()
	f.Number = 1
	f.SOPInstanceUID = "1.2.3.4"
	f.CumMU = 30.0
	f.Layers = []*plan.Layer{
		{
			Spots:            []plan.Spot{{X: 100.0, Y: -50.0, MU: 10.0}, {X: 0, Y: 0, MU: 10.0}},
			EnergyNominal:    150.0,
			EnergyMeasured:   149.0,
			ESpread:          0.5,
			CumMU:            20.0,
			MUToParticleCoef: 1e8,
			SADX:             2000.0,
			SADY:             2500.0,
			Isocenter:        [3]float64{1, 2, 3},
			GantryAngle:      90.0,
			Number:           1,
		},
		{
			Spots:            []plan.Spot{{X: 10.0, Y: 10.0, MU: 10.0}},
			EnergyNominal:    120.0,
			EnergyMeasured:   119.0,
			ESpread:          0.5,
			CumMU:            10.0,
			MUToParticleCoef: 1e8,
			SADX:             2000.0,
			SADY:             2500.0,
			Number:           2,
		},
	}
	return f
}

func TestScale(t *testing.T) {
	f := exportField()
	// 30 MU at 1e8 particles/MU over 1e6 histories.
	assert.InDelta(t, 3000.0, Scale(f, 1000000), 1e-9)

	f.Scaling = 2.0
	assert.InDelta(t, 6000.0, Scale(f, 1000000), 1e-9)
}

func TestGenerateTOPAS(t *testing.T) {
	f := exportField()
	bm := flatModel{position: 500.0}

	text := GenerateTOPAS(f, bm, true, 1000000)

	t.Run("header", func(t *testing.T) {
		assert.Contains(t, text, "# Topas input file for field 1")
		assert.Contains(t, text, "# SOP_INSTANCE_UID 1.2.3.4")
		assert.Contains(t, text, "# TOTAL_NUMBER_OF_PARTICLES: 3000000000")
		assert.Contains(t, text, "# TOTAL_MU: 30.00")
	})

	t.Run("variables from first layer", func(t *testing.T) {
		assert.Contains(t, text, "d:Rt/Plan/IsoCenterX                 = 1.00 mm")
		assert.Contains(t, text, "d:Ge/gantryAngle                     = 90.00 deg")
	})

	t.Run("time features", func(t *testing.T) {
		assert.Contains(t, text, "i:Tf/NumberOfSequentialTimes         = 3")
		assert.Contains(t, text, "d:Tf/TimelineEnd                     = 4 s")
		// Nominal energies, three steps.
		assert.Contains(t, text, "dv:Tf/Energy/Values                   = 3 150.000 150.000 120.000 MeV")
		// Optics are constant under the flat model.
		assert.Contains(t, text, "dv:Tf/SigmaX/Values                   = 3 3.00000 3.00000 3.00000 mm")
		assert.Contains(t, text, "uv:Tf/CorrelationX/Values                   = 3 -0.90000 -0.90000 -0.90000")
	})

	t.Run("projection", func(t *testing.T) {
		// posX = 100 * (2000 - 500) / 2000 = 75; angle = atan(100/2000) deg.
		assert.Contains(t, text, "dv:Tf/spotPositionX/Values                   = 3 75.00 0.00 7.50 mm")
		assert.Contains(t, text, "dv:Tf/spotAngleX/Values                   = 3 2.862 0.000 0.286 deg")
		// posY = -50 * (2500 - 500) / 2500 = -40.
		assert.Contains(t, text, "dv:Tf/spotPositionY/Values                   = 3 -40.00 0.00 8.00 mm")
	})

	t.Run("spot weights rescaled to histories", func(t *testing.T) {
		// Each spot carries 10 MU * 1e8 / scale(3000) histories.
		assert.Contains(t, text, "uv:Tf/spotWeight/Values                   = 3 333333 333333 333333")
	})
}

func TestGenerateTOPASMeasuredEnergies(t *testing.T) {
	f := exportField()
	text := GenerateTOPAS(f, flatModel{position: 500.0}, false, 1000000)
	assert.Contains(t, text, "dv:Tf/Energy/Values                   = 3 149.000 149.000 119.000 MeV")
}

func TestProjectionZeroAtModelPlane(t *testing.T) {
	f := exportField()
	// With the model plane at the SAD, projected x positions collapse to 0.
	text := timeFeatures(f, flatModel{position: 2000.0}, true, 1000000)
	assert.Contains(t, text, "dv:Tf/spotPositionX/Values                   = 3 0.00 0.00 0.00 mm")
}

func TestGenerateTOPASRangeShifter(t *testing.T) {
	f := exportField()
	rs, err := plan.NewRangeShifter("RS_3CM", 1, "BINARY")
	require.NoError(t, err)
	rs.Inserted = true
	rs.IsocenterDistance = 390.0
	f.RangeShifter = rs

	text := GenerateTOPAS(f, flatModel{position: 500.0}, true, 1000000)
	assert.Contains(t, text, "s:Ge/RangeShifter/Material           = \"Lexan\"")
	assert.Contains(t, text, "d:Ge/RangeShifter/HLZ                = 15.00 mm")
	// TransZ is offset to the device center: -(390 + 15).
	assert.Contains(t, text, "d:Ge/RangeShifter/TransZ            = -405.00 mm")

	// Without a range shifter the section is absent entirely.
	f.RangeShifter = nil
	text = GenerateTOPAS(f, flatModel{position: 500.0}, true, 1000000)
	assert.NotContains(t, text, "RangeShifter")
}

func TestOutPath(t *testing.T) {
	assert.Equal(t, "plan_field01.txt", outPath("plan.txt", 1, ""))
	assert.Equal(t, "plan_field02_layer03.txt", outPath("plan.txt", 2, "_layer03"))
	assert.Equal(t, "out/run_field12.txt", outPath("out/run.txt", 12, ""))
}

func TestTopasArrayPrefixes(t *testing.T) {
	s := topasArray([]int{1, 2}, []float64{1.5, 2.5}, "Energy", 3, "MeV")
	assert.True(t, strings.Contains(s, "dv:Tf/Energy/Values"))
	assert.Contains(t, s, "dv:Tf/Energy/Times                   = 2 1 2 s")
	assert.Contains(t, s, "= 2 1.500 2.500 MeV")

	s = topasArray([]int{1}, []float64{0.25}, "EnergySpread", 5, "")
	assert.True(t, strings.Contains(s, "uv:Tf/EnergySpread/Values"))
}
