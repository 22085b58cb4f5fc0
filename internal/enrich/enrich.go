// Package enrich applies a beam model to an imported plan, filling in the
// physical quantities the source dialects do not carry: measured energy,
// energy spread, MU-to-particle coefficients and the model spot size. The
// plan is mutated in place and the cumulative MU totals are recomputed
// from the spot level up, so applying the same model twice is a no-op.
package enrich

import (
	"errors"
	"fmt"
	"log"

	"github.com/nbassler/dicomexport/internal/plan"
	"github.com/nbassler/dicomexport/internal/units"
)

// ErrMissingBeamModel reports an enrichment attempt on a plan that has no
// beam model assigned.
var ErrMissingBeamModel = errors.New("no beam model assigned to plan")

// Apply enriches every layer of every field of p from p.Model. All model
// lookups are keyed by the layer's nominal energy.
func Apply(p *plan.Plan) error {
	if p.Model == nil {
		return fmt.Errorf("%w: cannot enrich plan %q", ErrMissingBeamModel, p.Label)
	}
	for _, f := range p.Fields {
		var fieldMU float64
		for _, l := range f.Layers {
			e := l.EnergyNominal
			l.EnergyMeasured = p.Model.MeasuredEnergy(e)
			l.ESpread = p.Model.EnergySpread(e)
			l.MUToParticleCoef = p.Model.ParticlesPerMU(e)
			l.SizeX = units.FWHM(p.Model.SigmaX(e))
			l.SizeY = units.FWHM(p.Model.SigmaY(e))
			l.CumMU = l.SpotMU()
			fieldMU += l.CumMU
		}
		f.CumMU = fieldMU
		log.Printf("enriched field %d: %d layers, %.4f MU, %.4e particles",
			f.Number, f.NumLayers(), f.CumMU, f.Particles())
	}
	return nil
}
