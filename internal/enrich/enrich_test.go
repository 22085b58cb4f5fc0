package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbassler/dicomexport/internal/plan"
	"github.com/nbassler/dicomexport/internal/units"
)

// stubModel returns energy-derived values so tests can verify the lookup
// key without a calibration file.
type stubModel struct{}

func (stubModel) MeasuredEnergy(e float64) float64 { return e - 0.5 }
func (stubModel) EnergySpread(e float64) float64   { return e * 0.01 }
func (stubModel) ParticlesPerMU(e float64) float64 { return e * 1e6 }
func (stubModel) SigmaX(e float64) float64         { return 100.0 / e }
func (stubModel) SigmaY(e float64) float64         { return 120.0 / e }
func (stubModel) DivergenceX(e float64) float64    { return 0.003 }
func (stubModel) DivergenceY(e float64) float64    { return 0.004 }
func (stubModel) CorrelationX(e float64) float64   { return -0.8 }
func (stubModel) CorrelationY(e float64) float64   { return -0.7 }
func (stubModel) Position() float64                { return 500.0 }

func testPlan() *plan.Plan {
	p := plan.New()
	f := plan.NewField()
	f.Number = 1
	f.Layers = []*plan.Layer{
		{
			Spots:         []plan.Spot{{MU: 2.0}, {MU: 3.0}},
			EnergyNominal: 100.0,
		},
		{
			Spots:         []plan.Spot{{MU: 4.0}},
			EnergyNominal: 200.0,
		},
	}
	p.Fields = []*plan.Field{f}
	return p
}

func TestApply(t *testing.T) {
	p := testPlan()
	p.Model = stubModel{}

	require.NoError(t, Apply(p))

	l1 := p.Fields[0].Layers[0]
	assert.InDelta(t, 99.5, l1.EnergyMeasured, 1e-9)
	assert.InDelta(t, 1.0, l1.ESpread, 1e-9)
	assert.InDelta(t, 1e8, l1.MUToParticleCoef, 1e-3)
	assert.InDelta(t, units.FWHM(1.0), l1.SizeX, 1e-9)
	assert.InDelta(t, units.FWHM(1.2), l1.SizeY, 1e-9)
	assert.InDelta(t, 5.0, l1.CumMU, 1e-12)

	l2 := p.Fields[0].Layers[1]
	assert.InDelta(t, 199.5, l2.EnergyMeasured, 1e-9)
	assert.InDelta(t, 4.0, l2.CumMU, 1e-12)

	// Field total is the exact sum of the layer sums.
	assert.InDelta(t, 9.0, p.Fields[0].CumMU, 1e-12)
	assert.InDelta(t, 5.0*1e8+4.0*2e8, p.Fields[0].Particles(), 1e-3)
}

func TestApplyIsIdempotent(t *testing.T) {
	p := testPlan()
	p.Model = stubModel{}

	require.NoError(t, Apply(p))
	first := *p.Fields[0].Layers[0]
	fieldMU := p.Fields[0].CumMU

	require.NoError(t, Apply(p))
	assert.Equal(t, first.CumMU, p.Fields[0].Layers[0].CumMU)
	assert.Equal(t, first.EnergyMeasured, p.Fields[0].Layers[0].EnergyMeasured)
	assert.Equal(t, first.SizeX, p.Fields[0].Layers[0].SizeX)
	assert.Equal(t, fieldMU, p.Fields[0].CumMU)
}

func TestApplyRequiresModel(t *testing.T) {
	p := testPlan()
	err := Apply(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingBeamModel)
}
