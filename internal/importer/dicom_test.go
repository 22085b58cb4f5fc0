package importer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbassler/dicomexport/internal/plan"
)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

// startCP carries the geometry of a typical opening control point.
func startCP() controlPoint {
	return controlPoint{
		isocenter:     &[3]float64{1.0, 2.0, 3.0},
		gantryAngle:   fp(90.0),
		couchAngle:    fp(10.0),
		snoutPosition: fp(421.0),
		sadX:          fp(2000.0),
		sadY:          fp(2500.0),
		spotSizeX:     fp(8.0),
		spotSizeY:     fp(8.5),
		metersetRate:  fp(480.0),
	}
}

func TestAssembleLayersCarryForward(t *testing.T) {
	f := plan.NewField()
	f.MetersetPerWeight = 0.1 // 10 MU declared over final weight 100

	cp0 := startCP()
	cp0.energy = fp(150.0)
	cp0.numSpots = ip(2)
	cp0.positions = []float64{-10, 5, 10, -5}
	cp0.weights = []float64{40, 60}
	cp0.repaint = ip(1)

	// Exit control point: same map, zero weights.
	cp1 := controlPoint{
		energy:    fp(150.0),
		numSpots:  ip(2),
		positions: []float64{-10, 5, 10, -5},
		weights:   []float64{0, 0},
	}

	// Second energy step carries only what changed; geometry carries over.
	cp2 := controlPoint{
		energy:    fp(120.0),
		numSpots:  ip(1),
		positions: []float64{0, 0},
		weights:   []float64{50},
	}
	cp3 := controlPoint{
		energy:    fp(120.0),
		numSpots:  ip(1),
		positions: []float64{0, 0},
		weights:   []float64{0},
	}

	err := assembleLayers(f, []controlPoint{cp0, cp1, cp2, cp3}, nil)
	require.NoError(t, err)

	// Two delivered layers; exit points are filtered, numbering is dense.
	require.Len(t, f.Layers, 2)
	assert.Equal(t, 1, f.Layers[0].Number)
	assert.Equal(t, 2, f.Layers[1].Number)

	l1 := f.Layers[0]
	assert.Equal(t, 150.0, l1.EnergyNominal)
	assert.InDelta(t, 10.0, l1.CumMU, 1e-9)
	assert.Equal(t, 1, l1.Repaint)
	wantSpots := []plan.Spot{
		{X: -10, Y: 5, MU: 4.0, SizeX: 8.0, SizeY: 8.5},
		{X: 10, Y: -5, MU: 6.0, SizeX: 8.0, SizeY: 8.5},
	}
	if diff := cmp.Diff(wantSpots, l1.Spots); diff != "" {
		t.Errorf("layer 1 spots mismatch (-want +got):\n%s", diff)
	}

	// Geometry persists onto the second layer without being restated.
	l2 := f.Layers[1]
	assert.Equal(t, 120.0, l2.EnergyNominal)
	assert.Equal(t, [3]float64{1.0, 2.0, 3.0}, l2.Isocenter)
	assert.Equal(t, 90.0, l2.GantryAngle)
	assert.Equal(t, 10.0, l2.CouchAngle)
	assert.Equal(t, 2000.0, l2.SADX)
	assert.Equal(t, 2500.0, l2.SADY)
	assert.Equal(t, 480.0, l2.MetersetRate)
	assert.InDelta(t, 5.0, l2.CumMU, 1e-9)
}

func TestAssembleLayersRangeShifter(t *testing.T) {
	catalogEntry, err := plan.NewRangeShifter("RS_2CM", 3, "BINARY")
	require.NoError(t, err)
	catalog := map[int]*plan.RangeShifter{3: catalogEntry}

	f := plan.NewField()
	f.MetersetPerWeight = 1.0

	cp := startCP()
	cp.energy = fp(100.0)
	cp.numSpots = ip(1)
	cp.positions = []float64{0, 0}
	cp.weights = []float64{1}
	cp.rangeShifterIn = &rangeShifterSetting{number: 3, wet: 23.3, isocenterDistance: 389.0}

	require.NoError(t, assembleLayers(f, []controlPoint{cp}, catalog))

	rs := f.RangeShifter
	require.NotNil(t, rs)
	assert.True(t, rs.Inserted)
	assert.Equal(t, 23.3, rs.WaterEquivalentThickness)
	assert.Equal(t, 389.0, rs.IsocenterDistance)
	assert.Equal(t, "Lexan", rs.Material)

	// The attachment is a copy; the catalog entry stays pristine.
	assert.False(t, catalogEntry.Inserted)
	assert.Equal(t, 0.0, catalogEntry.WaterEquivalentThickness)
}

func TestAssembleLayersUndeclaredRangeShifter(t *testing.T) {
	f := plan.NewField()
	cp := startCP()
	cp.rangeShifterIn = &rangeShifterSetting{number: 7}

	err := assembleLayers(f, []controlPoint{cp}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestAssembleLayersCountMismatches(t *testing.T) {
	t.Run("positions vs spot count", func(t *testing.T) {
		f := plan.NewField()
		cp := startCP()
		cp.energy = fp(100.0)
		cp.numSpots = ip(2)
		cp.positions = []float64{0, 0} // one pair for two declared spots
		cp.weights = []float64{1, 1}

		err := assembleLayers(f, []controlPoint{cp}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInconsistentCount)
	})

	t.Run("weights vs spot count", func(t *testing.T) {
		f := plan.NewField()
		cp := startCP()
		cp.energy = fp(100.0)
		cp.numSpots = ip(2)
		cp.positions = []float64{0, 0, 1, 1}
		cp.weights = []float64{1}

		err := assembleLayers(f, []controlPoint{cp}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInconsistentCount)
	})

	t.Run("positions without count", func(t *testing.T) {
		f := plan.NewField()
		cp := startCP()
		cp.positions = []float64{0, 0}
		cp.weights = []float64{1}

		err := assembleLayers(f, []controlPoint{cp}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
}

func TestDeliveryStateApply(t *testing.T) {
	var st deliveryState
	cp := startCP()
	st.apply(&cp)

	assert.Equal(t, [3]float64{1.0, 2.0, 3.0}, st.isocenter)
	assert.Equal(t, 90.0, st.gantryAngle)
	assert.Equal(t, 8.0, st.spotSizeX)

	// A sparse control point leaves unset attributes untouched.
	st.apply(&controlPoint{energy: fp(90.0)})
	assert.Equal(t, 90.0, st.energy)
	assert.Equal(t, 90.0, st.gantryAngle)
	assert.Equal(t, [3]float64{1.0, 2.0, 3.0}, st.isocenter)

	l := st.newLayer([]plan.Spot{{MU: 1}}, 1.0, 4)
	assert.Equal(t, 90.0, l.EnergyNominal)
	assert.Equal(t, 90.0, l.EnergyMeasured)
	assert.Equal(t, 4, l.Number)
	assert.Equal(t, 421.0, l.SnoutPosition)
}
