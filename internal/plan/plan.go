// Package plan holds the canonical in-memory representation of a
// spot-scanning proton treatment plan: a Plan owns Fields, a Field owns
// energy Layers, a Layer owns Spots. Importers populate the hierarchy,
// the enrichment stage mutates it in place, exporters read it.
//
// Aggregate quantities (particle budgets, spot extrema, energy range) are
// always computed on demand from the owned children rather than cached, so
// they cannot drift when a stage mutates the hierarchy after construction.
package plan

import (
	"fmt"
	"strings"
)

// BeamModel is the calibration surface the pipeline consumes. All queries
// are keyed by the nominal (planned) beam energy in MeV. Behaviour outside
// the calibrated energy range is the implementation's responsibility.
type BeamModel interface {
	// MeasuredEnergy returns the calibrated physical energy [MeV].
	MeasuredEnergy(nominalMeV float64) float64
	// EnergySpread returns the energy spread [MeV].
	EnergySpread(nominalMeV float64) float64
	// ParticlesPerMU returns the MU-to-particle conversion coefficient.
	ParticlesPerMU(nominalMeV float64) float64
	// SigmaX and SigmaY return the beam-spot sigma per lateral axis [mm].
	SigmaX(nominalMeV float64) float64
	SigmaY(nominalMeV float64) float64
	// DivergenceX and DivergenceY return the angular divergence per axis.
	DivergenceX(nominalMeV float64) float64
	DivergenceY(nominalMeV float64) float64
	// CorrelationX and CorrelationY return the position-angle correlation.
	CorrelationX(nominalMeV float64) float64
	CorrelationY(nominalMeV float64) float64
	// Position returns the reference plane distance upstream of the
	// isocenter [mm] at which the model parameters are defined.
	Position() float64
}

// Spot is a single static pencil-beam placement. Positions are in the
// plan's beam frame [mm]; MU is the delivered dose proxy and must be >= 0.
// Spots are never mutated after import.
type Spot struct {
	X     float64 // lateral position [mm]
	Y     float64 // lateral position [mm]
	MU    float64 // monitor units
	SizeX float64 // nominal spot size FWHM [mm]
	SizeY float64 // nominal spot size FWHM [mm]
}

// Layer is all spots delivered at one nominal energy within a field.
type Layer struct {
	Spots []Spot

	EnergyNominal  float64 // planned energy [MeV]
	EnergyMeasured float64 // calibrated energy [MeV], equals nominal until enrichment
	ESpread        float64 // energy spread [MeV], set by enrichment
	CumMU          float64 // sum of spot MU, recomputed at enrichment
	Repaint        int     // number of repaintings

	// MUToParticleCoef converts MU to particle count. Zero until the
	// beam model has been applied.
	MUToParticleCoef float64

	// SizeX and SizeY are the beam-model spot size [mm FWHM] at the
	// nominal energy, set by enrichment. Distinct from the per-spot
	// nominal sizes carried by the source record.
	SizeX float64
	SizeY float64

	// Delivery geometry carried forward from the source record.
	Isocenter     [3]float64 // [mm]
	GantryAngle   float64    // [deg]
	CouchAngle    float64    // [deg]
	SnoutPosition float64    // [mm]
	SADX          float64    // source-axis distance, X axis [mm]
	SADY          float64    // source-axis distance, Y axis [mm]

	TablePosition [3]float64 // vertical, longitudinal, lateral [mm]
	MetersetRate  float64    // [MU/min], optional

	// Number is the 1-based layer sequence number. Only layers that
	// survive the non-empty filter consume a number.
	Number int
}

// NumSpots returns the number of spots in the layer.
func (l *Layer) NumSpots() int { return len(l.Spots) }

// SpotMU returns the exact sum of the layer's spot MU values.
func (l *Layer) SpotMU() float64 {
	var sum float64
	for _, s := range l.Spots {
		sum += s.MU
	}
	return sum
}

// Particles returns the particle count of the layer. Meaningful only after
// the beam model has been applied.
func (l *Layer) Particles() float64 {
	if l.MUToParticleCoef <= 0.0 {
		return 0.0
	}
	return l.CumMU * l.MUToParticleCoef
}

// XMin returns the smallest spot x position, or 0 for an empty layer.
func (l *Layer) XMin() float64 { return l.reduce(func(s Spot) float64 { return s.X }, false) }

// XMax returns the largest spot x position, or 0 for an empty layer.
func (l *Layer) XMax() float64 { return l.reduce(func(s Spot) float64 { return s.X }, true) }

// YMin returns the smallest spot y position, or 0 for an empty layer.
func (l *Layer) YMin() float64 { return l.reduce(func(s Spot) float64 { return s.Y }, false) }

// YMax returns the largest spot y position, or 0 for an empty layer.
func (l *Layer) YMax() float64 { return l.reduce(func(s Spot) float64 { return s.Y }, true) }

func (l *Layer) reduce(pick func(Spot) float64, max bool) float64 {
	if len(l.Spots) == 0 {
		return 0.0
	}
	best := pick(l.Spots[0])
	for _, s := range l.Spots[1:] {
		v := pick(s)
		if (max && v > best) || (!max && v < best) {
			best = v
		}
	}
	return best
}

func (l *Layer) String() string {
	var b strings.Builder
	sep := "------------------------------------------------\n"
	b.WriteString(sep)
	fmt.Fprintf(&b, "Energy nominal        : %10.4f MeV\n", l.EnergyNominal)
	fmt.Fprintf(&b, "Energy measured       : %10.4f MeV\n", l.EnergyMeasured)
	fmt.Fprintf(&b, "Energy spread         : %10.4f MeV\n", l.ESpread)
	fmt.Fprintf(&b, "Cumulative MU         : %10.4f\n", l.CumMU)
	fmt.Fprintf(&b, "Cumulative particles  : %10.4e (estimated)\n", l.Particles())
	fmt.Fprintf(&b, "Number of spots       : %10d\n", l.NumSpots())
	b.WriteString(sep)
	fmt.Fprintf(&b, "Spot layer min/max X  : %+10.4f %+10.4f mm\n", l.XMin(), l.XMax())
	fmt.Fprintf(&b, "Spot layer min/max Y  : %+10.4f %+10.4f mm\n", l.YMin(), l.YMax())
	b.WriteString(sep)
	return b.String()
}

// Field is one complete beam delivery from one gantry/couch setup.
type Field struct {
	Layers []*Layer

	Dose  float64 // planned dose [Gy]
	CumMU float64 // planned meterset [MU], recomputed at enrichment

	// MetersetWeightFinal is the declared final cumulative meterset
	// weight of the source record; MetersetPerWeight is the per-field
	// ratio used to rescale normalized spot weights into MU.
	MetersetWeightFinal float64
	MetersetPerWeight   float64

	// Scaling is a plan-wide MU rescaling multiplier applied at export.
	Scaling float64

	SOPInstanceUID string

	// Number is the 1-based field number in delivery order. The first
	// field of a plan is always 1, regardless of the source record's
	// own indexing.
	Number int

	// RangeShifter is nil when no beam-line range shifter is present.
	// It is always an independent copy of the catalog entry, never a
	// shared reference.
	RangeShifter *RangeShifter
}

// NewField returns a Field with the default scaling multiplier.
func NewField() *Field { return &Field{Scaling: 1.0} }

// NumLayers returns the number of energy layers in the field.
func (f *Field) NumLayers() int { return len(f.Layers) }

// NumSpots returns the number of spots across all layers.
func (f *Field) NumSpots() int {
	n := 0
	for _, l := range f.Layers {
		n += l.NumSpots()
	}
	return n
}

// Particles returns the total particle budget of the field. Meaningful
// only after the beam model has been applied.
func (f *Field) Particles() float64 {
	var sum float64
	for _, l := range f.Layers {
		sum += l.Particles()
	}
	return sum
}

// EMin returns the lowest nominal layer energy, or 0 for an empty field.
func (f *Field) EMin() float64 {
	if len(f.Layers) == 0 {
		return 0.0
	}
	min := f.Layers[0].EnergyNominal
	for _, l := range f.Layers[1:] {
		if l.EnergyNominal < min {
			min = l.EnergyNominal
		}
	}
	return min
}

// EMax returns the highest nominal layer energy, or 0 for an empty field.
func (f *Field) EMax() float64 {
	if len(f.Layers) == 0 {
		return 0.0
	}
	max := f.Layers[0].EnergyNominal
	for _, l := range f.Layers[1:] {
		if l.EnergyNominal > max {
			max = l.EnergyNominal
		}
	}
	return max
}

// XMin returns the smallest spot x position across all non-empty layers.
func (f *Field) XMin() float64 { return f.extremum((*Layer).XMin, false) }

// XMax returns the largest spot x position across all non-empty layers.
func (f *Field) XMax() float64 { return f.extremum((*Layer).XMax, true) }

// YMin returns the smallest spot y position across all non-empty layers.
func (f *Field) YMin() float64 { return f.extremum((*Layer).YMin, false) }

// YMax returns the largest spot y position across all non-empty layers.
func (f *Field) YMax() float64 { return f.extremum((*Layer).YMax, true) }

func (f *Field) extremum(pick func(*Layer) float64, max bool) float64 {
	found := false
	var best float64
	for _, l := range f.Layers {
		if l.NumSpots() == 0 {
			continue
		}
		v := pick(l)
		if !found || (max && v > best) || (!max && v < best) {
			best = v
			found = true
		}
	}
	if !found {
		return 0.0
	}
	return best
}

func (f *Field) String() string {
	const indent = "    "
	var b strings.Builder
	sep := indent + "------------------------------------------------\n"
	b.WriteString(sep)
	fmt.Fprintf(&b, indent+"Energy layers          : %10d\n", f.NumLayers())
	fmt.Fprintf(&b, indent+"Total MUs              : %10.4f\n", f.CumMU)
	b.WriteString(sep)
	for i, l := range f.Layers {
		fmt.Fprintf(&b, indent+"   Layer %3d: %10.4f MeV    %10d spots\n",
			i+1, l.EnergyNominal, l.NumSpots())
	}
	fmt.Fprintf(&b, indent+"Lowest energy          : %10.4f MeV\n", f.EMin())
	fmt.Fprintf(&b, indent+"Highest energy         : %10.4f MeV\n", f.EMax())
	b.WriteString(sep)
	fmt.Fprintf(&b, indent+"Spot field min/max X   : %+10.4f %+10.4f mm\n", f.XMin(), f.XMax())
	fmt.Fprintf(&b, indent+"Spot field min/max Y   : %+10.4f %+10.4f mm\n", f.YMin(), f.YMax())
	b.WriteString(sep)
	return b.String()
}

// Plan is a proton therapy plan consisting of one or more fields.
type Plan struct {
	Fields []*Field

	PatientID        string
	PatientName      string
	PatientInitials  string
	PatientFirstName string
	Label            string
	Date             string
	BeamName         string
	UID              string

	// Model is nil until explicitly assigned; enrichment requires it.
	Model BeamModel

	// Scaling is the plan-wide MU rescaling multiplier.
	Scaling float64
}

// New returns an empty Plan with the default scaling multiplier.
func New() *Plan { return &Plan{Scaling: 1.0} }

// NumFields returns the number of fields in the plan.
func (p *Plan) NumFields() int { return len(p.Fields) }

// NumLayers returns the number of layers across all fields.
func (p *Plan) NumLayers() int {
	n := 0
	for _, f := range p.Fields {
		n += f.NumLayers()
	}
	return n
}

// NumSpots returns the number of spots across all fields.
func (p *Plan) NumSpots() int {
	n := 0
	for _, f := range p.Fields {
		n += f.NumSpots()
	}
	return n
}

// String returns a human-readable plan overview for diagnostics.
func (p *Plan) String() string {
	var b strings.Builder
	b.WriteString("Diagnostics:\n")
	b.WriteString("---------------------------------------------------\n")
	fmt.Fprintf(&b, "Patient Name           : '%s'       [%s]\n", p.PatientName, p.PatientInitials)
	fmt.Fprintf(&b, "Patient ID             : %s\n", p.PatientID)
	fmt.Fprintf(&b, "Plan label             : %s\n", p.Label)
	fmt.Fprintf(&b, "Plan date              : %s\n", p.Date)
	fmt.Fprintf(&b, "Number of Fields       : %2d\n", p.NumFields())
	for i, f := range p.Fields {
		b.WriteString("---------------------------------------------------\n")
		fmt.Fprintf(&b, "   Field                  : %02d/%02d:\n", i+1, p.NumFields())
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	return b.String()
}
