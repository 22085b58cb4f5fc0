package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbassler/dicomexport/internal/plan"
)

const testRST = `# raster scan test file
patient_id PAT456
patient_name Doe^Jane
plan_label RST_TEST
plan_date 2026-08-01
beam_mu 100.0
rashi RS_2CM
submachines 3
submachine 120.0 8.0 2
-10.0 0.0 1.0
10.0 0.0 1.0
submachine 140.0 7.5
0.0 -10.0 2.0
submachine 160.0 7.0
0.0 0.0 0.0
`

func writeRST(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.rst")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRST(t *testing.T) {
	p, err := Load(writeRST(t, testRST))
	require.NoError(t, err)

	assert.Equal(t, "PAT456", p.PatientID)
	assert.Equal(t, "Doe^Jane", p.PatientName)
	assert.Equal(t, "RST_TEST", p.Label)
	assert.Equal(t, "2026-08-01", p.Date)
	assert.NotEmpty(t, p.UID)

	require.Len(t, p.Fields, 1)
	f := p.Fields[0]
	assert.InDelta(t, 100.0, f.CumMU, 1e-9)
	assert.InDelta(t, 4.0, f.MetersetWeightFinal, 1e-9)
	assert.InDelta(t, 25.0, f.MetersetPerWeight, 1e-9)

	require.NotNil(t, f.RangeShifter)
	assert.Equal(t, "RS_2CM", f.RangeShifter.ID)
	assert.True(t, f.RangeShifter.Inserted)

	// The zero-weight submachine is dropped, survivors numbered densely.
	require.Len(t, f.Layers, 2)
	assert.Equal(t, 1, f.Layers[0].Number)
	assert.Equal(t, 2, f.Layers[1].Number)

	l1 := f.Layers[0]
	assert.Equal(t, 120.0, l1.EnergyNominal)
	assert.Equal(t, 2, l1.Repaint)
	require.Equal(t, 2, l1.NumSpots())
	// Weight 1.0 of total 4.0 over 100 MU is 25 MU per spot.
	assert.InDelta(t, 25.0, l1.Spots[0].MU, 1e-9)
	assert.InDelta(t, 50.0, l1.CumMU, 1e-9)
	assert.Equal(t, 8.0, l1.Spots[0].SizeX)

	l2 := f.Layers[1]
	assert.Equal(t, 140.0, l2.EnergyNominal)
	assert.InDelta(t, 50.0, l2.CumMU, 1e-9)
}

func TestLoadRSTErrors(t *testing.T) {
	t.Run("submachine count mismatch", func(t *testing.T) {
		rst := `beam_mu 10.0
submachines 2
submachine 100.0 8.0
0.0 0.0 1.0
`
		_, err := Load(writeRST(t, rst))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInconsistentCount)
	})

	t.Run("point before any submachine", func(t *testing.T) {
		rst := `beam_mu 10.0
0.0 0.0 1.0
`
		_, err := Load(writeRST(t, rst))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("missing beam_mu", func(t *testing.T) {
		rst := `submachines 1
submachine 100.0 8.0
0.0 0.0 1.0
`
		_, err := Load(writeRST(t, rst))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("unknown range shifter", func(t *testing.T) {
		rst := `beam_mu 10.0
rashi RS_UNKNOWN
submachines 1
submachine 100.0 8.0
0.0 0.0 1.0
`
		_, err := Load(writeRST(t, rst))
		require.Error(t, err)
		assert.ErrorIs(t, err, plan.ErrUnsupportedDevice)
	})

	t.Run("malformed point", func(t *testing.T) {
		rst := `beam_mu 10.0
submachines 1
submachine 100.0 8.0
0.0 0.0
`
		_, err := Load(writeRST(t, rst))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
}
