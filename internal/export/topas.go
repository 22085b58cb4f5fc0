// Package export renders an enriched plan into the supported output
// formats: TOPAS Monte Carlo input files driven by per-spot time
// features, and Racehorse per-layer spot lists. All generation goes
// through strings; the file layer only decides names and writes bytes.
package export

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/nbassler/dicomexport/internal/plan"
	"github.com/nbassler/dicomexport/internal/units"
)

// Scale returns the per-history particle multiplier for a field: the
// ratio of the field's particle budget to the requested history count,
// times the field's MU rescaling factor.
func Scale(f *plan.Field, nstat int) float64 {
	return f.Particles() / float64(nstat) * f.Scaling
}

// GenerateTOPAS renders one field as a complete TOPAS input file. The
// source is an emittance beam steered spot by spot through time features;
// one sequential time step corresponds to one spot. When nominal is
// false the measured layer energies are emitted instead of the planned
// ones. Beam optics are always looked up at the nominal energy, since
// that is the key the beam model is calibrated against.
func GenerateTOPAS(f *plan.Field, bm plan.BeamModel, nominal bool, nstat int) string {
	nstatScale := Scale(f, nstat)
	logFieldData(f, bm, nstat)

	var txt topasText
	var b strings.Builder
	b.WriteString(txt.header(f, nstatScale, nstat))
	b.WriteString(txt.header2())
	b.WriteString(txt.variables(f, [3]float64{}))
	b.WriteString(txt.geometryBeamPosition(bm.Position()))
	b.WriteString(txt.geometryRangeShifter(f))
	b.WriteString(txt.fieldBeam())
	b.WriteString(timeFeatures(f, bm, nominal, nstat))
	return b.String()
}

// timeFeatures builds the TIME FEATURES section: one step per spot, with
// the beam energy, optics and history count switched at each step.
func timeFeatures(f *plan.Field, bm plan.BeamModel, nominal bool, nstat int) string {
	n := f.NumSpots()
	var (
		times    = make([]int, n)
		energies = make([]float64, n)
		espreads = make([]float64, n)
		posX     = make([]float64, n)
		angX     = make([]float64, n)
		posY     = make([]float64, n)
		angY     = make([]float64, n)
		sigX     = make([]float64, n)
		sigY     = make([]float64, n)
		sigXp    = make([]float64, n)
		sigYp    = make([]float64, n)
		corX     = make([]float64, n)
		corY     = make([]float64, n)
		weights  = make([]float64, n)
	)

	invScale := 1.0 / Scale(f, nstat)

	i := 0
	for _, l := range f.Layers {
		energy := l.EnergyNominal
		if !nominal {
			energy = l.EnergyMeasured
		}
		for _, s := range l.Spots {
			times[i] = i + 1
			energies[i] = energy
			espreads[i] = l.ESpread
			// Spot coordinates are given at the isocenter plane; project
			// them back to the beam model reference plane.
			posX[i] = s.X * (l.SADX - bm.Position()) / l.SADX
			angX[i] = units.Degrees(math.Atan(s.X / l.SADX))
			posY[i] = s.Y * (l.SADY - bm.Position()) / l.SADY
			angY[i] = units.Degrees(math.Atan(s.Y / l.SADY))
			sigX[i] = bm.SigmaX(l.EnergyNominal)
			sigY[i] = bm.SigmaY(l.EnergyNominal)
			sigXp[i] = bm.DivergenceX(l.EnergyNominal)
			sigYp[i] = bm.DivergenceY(l.EnergyNominal)
			corX[i] = bm.CorrelationX(l.EnergyNominal)
			corY[i] = bm.CorrelationY(l.EnergyNominal)
			weights[i] = s.MU * l.MUToParticleCoef * invScale
			i++
		}
	}

	var b strings.Builder
	b.WriteString("##############################################\n")
	b.WriteString("###  T  I  M  E    F  E  A  T  U  R  E  S  ###\n")
	b.WriteString("##############################################\n\n")

	fmt.Fprintf(&b, "i:Tf/NumberOfSequentialTimes         = %d\n", n)
	fmt.Fprintf(&b, "d:Tf/TimelineStart                   = %d s\n", 1)
	fmt.Fprintf(&b, "d:Tf/TimelineEnd                     = %d s\n\n", n+1)

	b.WriteString(topasArray(times, energies, "Energy", 3, "MeV"))
	b.WriteString(topasArray(times, espreads, "EnergySpread", 5, ""))
	b.WriteString(topasArray(times, posX, "spotPositionX", 2, "mm"))
	b.WriteString(topasArray(times, angX, "spotAngleX", 3, "deg"))
	b.WriteString(topasArray(times, posY, "spotPositionY", 2, "mm"))
	b.WriteString(topasArray(times, angY, "spotAngleY", 3, "deg"))
	b.WriteString(topasArray(times, sigX, "SigmaX", 5, "mm"))
	b.WriteString(topasArray(times, sigY, "SigmaY", 5, "mm"))
	b.WriteString(topasArray(times, sigXp, "SigmaXprime", 5, ""))
	b.WriteString(topasArray(times, sigYp, "SigmaYprime", 5, ""))
	b.WriteString(topasArray(times, corX, "CorrelationX", 5, ""))
	b.WriteString(topasArray(times, corY, "CorrelationY", 5, ""))
	b.WriteString(topasArray(times, weights, "spotWeight", 0, ""))

	return b.String()
}

// topasArray renders one step-function time feature. Dimensioned values
// get the dv: prefix with their unit; dimensionless values get uv:.
func topasArray(times []int, values []float64, name string, precision int, unit string) string {
	prefix := "dv"
	if unit == "" {
		prefix = "uv"
	}

	ts := make([]string, len(times))
	for i, t := range times {
		ts[i] = fmt.Sprintf("%d", t)
	}
	vs := make([]string, len(values))
	for i, v := range values {
		vs[i] = fmt.Sprintf("%.*f", precision, v)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "s:Tf/%s/Function                 = \"Step\"\n", name)
	fmt.Fprintf(&b, "dv:Tf/%s/Times                   = %d %s s\n",
		name, len(times), strings.Join(ts, " "))
	fmt.Fprintf(&b, "%s:Tf/%s/Values                   = %d %s %s\n",
		prefix, name, len(values), strings.Join(vs, " "), unit)
	b.WriteString("\n\n")
	return b.String()
}

func logFieldData(f *plan.Field, bm plan.BeamModel, nstat int) {
	sadX, sadY := 0.0, 0.0
	if len(f.Layers) > 0 {
		sadX, sadY = f.Layers[0].SADX, f.Layers[0].SADY
	}
	log.Printf("Beam model position:          %g mm upstream of isocenter", bm.Position())
	log.Printf("SAD X/Y:                      %.2f mm / %.2f mm", sadX, sadY)
	log.Printf("Proton budget for this plan:  %.3e protons", f.Particles())
	log.Printf("Requested histories:          %.3e", float64(nstat))
	log.Printf("Scaling factor:               %.4e", Scale(f, nstat))
	log.Printf("Number of spots:              %d", f.NumSpots())
	log.Printf("Number of energy layers:      %d", f.NumLayers())
	log.Printf("Beam Meterset:                %.2f MU", f.CumMU)
}
