package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbassler/dicomexport/internal/enrich"
	"github.com/nbassler/dicomexport/internal/plan"
)

func exportPlan() *plan.Plan {
	p := plan.New()
	p.Label = "EXPORT_TEST"
	p.Model = flatModel{position: 500.0}
	f := exportField()
	f.Number = 1
	p.Fields = []*plan.Field{f}
	return p
}

func TestPlanTOPAS(t *testing.T) {
	p := exportPlan()
	base := filepath.Join(t.TempDir(), "plan.txt")

	require.NoError(t, Plan(p, base, Options{Nominal: true, NStat: 1000000, Format: "topas"}))

	data, err := os.ReadFile(filepath.Join(filepath.Dir(base), "plan_field01.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Topas input file for field 1")
	assert.Contains(t, string(data), "i:Tf/NumberOfSequentialTimes")
}

func TestPlanRacehorse(t *testing.T) {
	p := exportPlan()
	// Keep the MU gate satisfied: rounded sums must match the layer totals.
	for _, l := range p.Fields[0].Layers {
		l.CumMU = l.SpotMU()
	}
	base := filepath.Join(t.TempDir(), "plan.txt")

	require.NoError(t, Plan(p, base, Options{NStat: 1000000, Format: "racehorse"}))

	// One file per layer.
	for _, name := range []string{"plan_field01_layer01.txt", "plan_field01_layer02.txt"} {
		data, err := os.ReadFile(filepath.Join(filepath.Dir(base), name))
		require.NoError(t, err)
		assert.Contains(t, string(data), "RACEHORSE Spot List")
	}
}

func TestPlanSingleField(t *testing.T) {
	p := exportPlan()
	second := exportField()
	second.Number = 2
	p.Fields = append(p.Fields, second)
	base := filepath.Join(t.TempDir(), "plan.txt")

	require.NoError(t, Plan(p, base, Options{FieldNumber: 2, Nominal: true, NStat: 1000000, Format: "topas"}))

	_, err := os.Stat(filepath.Join(filepath.Dir(base), "plan_field02.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(base), "plan_field01.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestPlanErrors(t *testing.T) {
	t.Run("missing model", func(t *testing.T) {
		p := exportPlan()
		p.Model = nil
		err := Plan(p, filepath.Join(t.TempDir(), "plan.txt"), Options{Format: "topas", NStat: 1})
		require.Error(t, err)
		assert.ErrorIs(t, err, enrich.ErrMissingBeamModel)
	})

	t.Run("field out of range", func(t *testing.T) {
		p := exportPlan()
		err := Plan(p, filepath.Join(t.TempDir(), "plan.txt"),
			Options{FieldNumber: 5, Format: "topas", NStat: 1})
		require.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		p := exportPlan()
		err := Plan(p, filepath.Join(t.TempDir(), "plan.txt"),
			Options{Format: "phasespace", NStat: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown export format")
	})
}
