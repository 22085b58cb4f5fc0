package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbassler/dicomexport/internal/units"
)

// A small two-layer PLD file. The second layer declares 5 spots but only
// carries 4 with nonzero MU, mirroring the padded exports seen in the
// field; the third layer has zero MU everywhere and must be dropped.
const testPLD = `Plan,PAT123,Doe^John,JD,John,TESTPLAN,Field1,120.50,980.00,3
Layer,4.25,100.00,60.00,2,1
Element,-10.0,5.0,30.0
Element,1e-12,-5.0,30.0
Layer,3.80,150.00,120.00,5,1
Element,-20.0,0.0,15.0
Element,-10.0,0.0,15.0
Element,0.0,0.0,0.0
Element,10.0,0.0,15.0
Element,20.0,0.0,15.0
Layer,3.50,180.00,120.00,2,1
Element,0.0,0.0,0.0
Element,5.0,5.0,0.0
`

func writePLD(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.pld")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPLD(t *testing.T) {
	p, err := Load(writePLD(t, testPLD))
	require.NoError(t, err)

	assert.Equal(t, "PAT123", p.PatientID)
	assert.Equal(t, "Doe^John", p.PatientName)
	assert.Equal(t, "JD", p.PatientInitials)
	assert.Equal(t, "John", p.PatientFirstName)
	assert.Equal(t, "TESTPLAN", p.Label)
	assert.Equal(t, "Field1", p.BeamName)
	assert.NotEmpty(t, p.UID)

	require.Len(t, p.Fields, 1)
	f := p.Fields[0]
	assert.Equal(t, 1, f.Number)
	assert.InDelta(t, 120.50, f.CumMU, 1e-9)
	assert.InDelta(t, 980.00, f.MetersetWeightFinal, 1e-9)

	// The all-zero layer is dropped; the survivors are numbered densely.
	require.Len(t, f.Layers, 2)
	assert.Equal(t, 1, f.Layers[0].Number)
	assert.Equal(t, 2, f.Layers[1].Number)

	l1 := f.Layers[0]
	assert.Equal(t, 100.0, l1.EnergyNominal)
	assert.Equal(t, 100.0, l1.EnergyMeasured)
	require.Equal(t, 2, l1.NumSpots())
	assert.InDelta(t, 60.0, l1.CumMU, 1e-9)
	// Sub-epsilon positions snap to exactly zero.
	assert.Equal(t, 0.0, l1.Spots[1].X)
	// Sigma 4.25 mm converts to FWHM.
	assert.InDelta(t, units.FWHM(4.25), l1.Spots[0].SizeX, 1e-9)
	assert.Equal(t, 1, l1.Repaint)

	// Zero-MU spots are dropped within surviving layers too.
	l2 := f.Layers[1]
	assert.Equal(t, 150.0, l2.EnergyNominal)
	assert.Equal(t, 4, l2.NumSpots())
	assert.InDelta(t, 60.0, l2.CumMU, 1e-9)
}

func TestLoadPLDRejectsMalformedInput(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		_, err := Load(writePLD(t, ""))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("short header", func(t *testing.T) {
		_, err := Load(writePLD(t, "Plan,PAT123,Doe\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("bad meterset", func(t *testing.T) {
		_, err := Load(writePLD(t, "Plan,PAT,N,I,F,L,B,abc,980.0,1\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("short layer header", func(t *testing.T) {
		pld := "Plan,PAT,N,I,F,L,B,100.0,980.0,1\nLayer,4.25,100.0\n"
		_, err := Load(writePLD(t, pld))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("short element", func(t *testing.T) {
		pld := "Plan,PAT,N,I,F,L,B,100.0,980.0,1\n" +
			"Layer,4.25,100.0,60.0,1,1\nElement,-10.0,5.0\n"
		_, err := Load(writePLD(t, pld))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
}
