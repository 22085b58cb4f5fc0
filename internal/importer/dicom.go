package importer

import (
	"fmt"
	"log"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/nbassler/dicomexport/internal/dicomutil"
	"github.com/nbassler/dicomexport/internal/plan"
)

// rtIonPlanSOPClassUID identifies a DICOM RT Ion Plan storage object.
const rtIonPlanSOPClassUID = "1.2.840.10008.5.1.4.1.1.481.8"

// loadDICOM imports a DICOM RT Ion plan.
//
// The record models a field as a flat sequence of ion control points where
// a full energy layer spans two adjacent control points and most delivery
// attributes appear only on the control point where they change. The
// import therefore runs in two stages: decode each control point into a
// sparse controlPoint value, then assemble layers while carrying the
// running delivery state forward (see deliveryState).
func loadDICOM(path string) (*plan.Plan, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrMalformedInput, path, err)
	}

	modality, err := dicomutil.ReqString(ds, dicomutil.Modality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if modality != "RTPLAN" {
		return nil, fmt.Errorf("%w: %s is not an RTPLAN (Modality %q)", ErrMalformedInput, path, modality)
	}
	sopClass, err := dicomutil.ReqString(ds, dicomutil.SOPClassUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if sopClass != rtIonPlanSOPClassUID {
		return nil, fmt.Errorf("%w: %s is not an RT Ion plan (SOP Class UID %s)", ErrMalformedInput, path, sopClass)
	}

	p := plan.New()
	p.PatientID = dicomutil.OptString(ds, dicomutil.PatientID, "")
	p.PatientName = dicomutil.OptString(ds, dicomutil.PatientName, "")
	p.Label = dicomutil.OptString(ds, dicomutil.RTPlanLabel, "")
	p.Date = dicomutil.OptString(ds, dicomutil.RTPlanDate, "")

	p.UID, err = dicomutil.ReqString(ds, dicomutil.SOPInstanceUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	// Field-level dose and meterset come from the fraction group.
	groups, err := dicomutil.ReqSequence(ds, dicomutil.FractionGroupSequence)
	if err != nil || len(groups) == 0 {
		return nil, fmt.Errorf("%w: no fraction group in %s", ErrMalformedInput, path)
	}
	group := groups[0]

	nFields, err := reqIntIn(group, dicomutil.NumberOfBeams)
	if err != nil {
		return nil, err
	}

	rbsElem, err := dicomutil.Req(group, dicomutil.ReferencedBeamSequence)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	refBeams, err := dicomutil.Items(rbsElem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(refBeams) != nFields {
		return nil, fmt.Errorf("%w: fraction group declares %d beams but references %d",
			ErrInconsistentCount, nFields, len(refBeams))
	}

	for i, rb := range refBeams {
		f := plan.NewField()
		f.Number = i + 1
		f.SOPInstanceUID = p.UID
		if f.Dose, err = reqFloatIn(rb, dicomutil.BeamDose); err != nil {
			return nil, err
		}
		if f.CumMU, err = reqFloatIn(rb, dicomutil.BeamMeterset); err != nil {
			return nil, err
		}
		p.Fields = append(p.Fields, f)
	}

	beams, err := dicomutil.ReqSequence(ds, dicomutil.IonBeamSequence)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(beams) != nFields {
		return nil, fmt.Errorf("%w: IonBeamSequence has %d beams, FractionGroupSequence declares %d",
			ErrInconsistentCount, len(beams), nFields)
	}

	for i, beam := range beams {
		if err := importFieldLayers(p.Fields[i], beam); err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return p, nil
}

// importFieldLayers decodes one ion beam item and populates f's layers.
func importFieldLayers(f *plan.Field, beam []*dicom.Element) error {
	var err error
	if f.MetersetWeightFinal, err = reqFloatIn(beam, dicomutil.FinalCumulativeMetersetWeight); err != nil {
		return err
	}
	if f.MetersetWeightFinal <= 0.0 {
		return fmt.Errorf("%w: final cumulative meterset weight is %g, cannot derive meterset ratio",
			ErrMalformedInput, f.MetersetWeightFinal)
	}
	// Spot weights in the record are normalized; this ratio converts them
	// to physical MU.
	f.MetersetPerWeight = f.CumMU / f.MetersetWeightFinal

	catalog, err := decodeRangeShifters(beam)
	if err != nil {
		return err
	}

	cps, err := decodeControlPoints(beam)
	if err != nil {
		return err
	}

	return assembleLayers(f, cps, catalog)
}

// decodeRangeShifters builds the per-field device lookup table, keyed by
// the record's range shifter reference number.
func decodeRangeShifters(beam []*dicom.Element) (map[int]*plan.RangeShifter, error) {
	seq, ok := dicomutil.Find(beam, dicomutil.RangeShifterSequence)
	if !ok {
		return nil, nil
	}
	items, err := dicomutil.Items(seq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	catalog := make(map[int]*plan.RangeShifter, len(items))
	for _, item := range items {
		number, err := reqIntIn(item, dicomutil.RangeShifterNumber)
		if err != nil {
			return nil, err
		}
		id, err := reqStringIn(item, dicomutil.RangeShifterID)
		if err != nil {
			return nil, err
		}
		rsType := ""
		if e, ok := dicomutil.Find(item, dicomutil.RangeShifterType); ok {
			rsType, _ = dicomutil.String(e)
		}
		rs, err := plan.NewRangeShifter(id, number, rsType)
		if err != nil {
			return nil, err
		}
		catalog[number] = rs
	}
	return catalog, nil
}

// rangeShifterSetting is a decoded RangeShifterSettingsSequence entry that
// inserts a device into the beam line.
type rangeShifterSetting struct {
	number            int
	wet               float64
	isocenterDistance float64
}

// controlPoint is the sparse decoded form of one ion control point. Nil
// pointer fields were not present on this control point and keep their
// previous running value during assembly.
type controlPoint struct {
	isocenter         *[3]float64
	gantryAngle       *float64
	couchAngle        *float64
	snoutPosition     *float64
	sadX, sadY        *float64
	spotSizeX         *float64
	spotSizeY         *float64
	tableVertical     *float64
	tableLongitudinal *float64
	tableLateral      *float64
	metersetRate      *float64

	energy   *float64
	numSpots *int
	// positions is the flattened (x, y) pair list; weights are the
	// normalized per-spot meterset weights.
	positions []float64
	weights   []float64
	repaint   *int

	rangeShifterIn *rangeShifterSetting
}

// decodeControlPoints decodes the ion control point sequence, checking the
// declared control point count.
func decodeControlPoints(beam []*dicom.Element) ([]controlPoint, error) {
	declared, err := reqIntIn(beam, dicomutil.NumberOfControlPoints)
	if err != nil {
		return nil, err
	}
	seq, err := dicomutil.Req(beam, dicomutil.IonControlPointSequence)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	items, err := dicomutil.Items(seq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(items) != declared {
		return nil, fmt.Errorf("%w: beam declares %d control points but carries %d",
			ErrInconsistentCount, declared, len(items))
	}

	cps := make([]controlPoint, 0, len(items))
	for i, item := range items {
		cp, err := decodeControlPoint(item)
		if err != nil {
			return nil, fmt.Errorf("control point %d: %w", i, err)
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

func decodeControlPoint(item []*dicom.Element) (controlPoint, error) {
	var cp controlPoint

	if e, ok := dicomutil.Find(item, dicomutil.LateralSpreadingDeviceSettingsSequence); ok {
		settings, err := dicomutil.Items(e)
		if err != nil {
			return cp, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		if len(settings) != 2 {
			return cp, fmt.Errorf("%w: LateralSpreadingDeviceSettingsSequence has %d elements, expected 2",
				ErrMalformedInput, len(settings))
		}
		sadX, err := reqFloatIn(settings[0], dicomutil.IsocenterToLateralSpreadingDeviceDistance)
		if err != nil {
			return cp, err
		}
		sadY, err := reqFloatIn(settings[1], dicomutil.IsocenterToLateralSpreadingDeviceDistance)
		if err != nil {
			return cp, err
		}
		cp.sadX, cp.sadY = &sadX, &sadY
	}

	if e, ok := dicomutil.Find(item, dicomutil.RangeShifterSettingsSequence); ok {
		settings, err := dicomutil.Items(e)
		if err != nil {
			return cp, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		for _, s := range settings {
			setting := ""
			if se, ok := dicomutil.Find(s, dicomutil.RangeShifterSetting); ok {
				setting, _ = dicomutil.String(se)
			}
			if strings.ToUpper(setting) != "IN" {
				continue
			}
			number, err := reqIntIn(s, dicomutil.ReferencedRangeShifterNumber)
			if err != nil {
				return cp, err
			}
			in := rangeShifterSetting{number: number}
			if we, ok := dicomutil.Find(s, dicomutil.RangeShifterWaterEquivalentThickness); ok {
				in.wet, _ = dicomutil.Float(we)
			}
			if de, ok := dicomutil.Find(s, dicomutil.IsocenterToRangeShifterDistance); ok {
				in.isocenterDistance, _ = dicomutil.Float(de)
			}
			cp.rangeShifterIn = &in
		}
	}

	if e, ok := dicomutil.Find(item, dicomutil.IsocenterPosition); ok {
		vs, err := dicomutil.Floats(e)
		if err != nil {
			return cp, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		if len(vs) != 3 {
			return cp, fmt.Errorf("%w: isocenter has %d components, expected 3", ErrMalformedInput, len(vs))
		}
		cp.isocenter = &[3]float64{vs[0], vs[1], vs[2]}
	}

	cp.gantryAngle = optFloatIn(item, dicomutil.GantryAngle)
	cp.couchAngle = optFloatIn(item, dicomutil.PatientSupportAngle)
	cp.snoutPosition = optFloatIn(item, dicomutil.SnoutPosition)
	cp.tableVertical = optFloatIn(item, dicomutil.TableTopVerticalPosition)
	cp.tableLongitudinal = optFloatIn(item, dicomutil.TableTopLongitudinalPosition)
	cp.tableLateral = optFloatIn(item, dicomutil.TableTopLateralPosition)
	cp.metersetRate = optFloatIn(item, dicomutil.MetersetRate)
	cp.energy = optFloatIn(item, dicomutil.NominalBeamEnergy)

	if e, ok := dicomutil.Find(item, dicomutil.NumberOfScanSpotPositions); ok {
		n, err := dicomutil.Int(e)
		if err != nil {
			return cp, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		cp.numSpots = &n
	}
	if e, ok := dicomutil.Find(item, dicomutil.ScanSpotPositionMap); ok {
		vs, err := dicomutil.Floats(e)
		if err != nil {
			return cp, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		cp.positions = vs
	}
	if e, ok := dicomutil.Find(item, dicomutil.ScanSpotMetersetWeights); ok {
		vs, err := dicomutil.Floats(e)
		if err != nil {
			return cp, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		cp.weights = vs
	}
	if e, ok := dicomutil.Find(item, dicomutil.ScanningSpotSize); ok {
		vs, err := dicomutil.Floats(e)
		if err != nil {
			return cp, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		if len(vs) != 2 {
			return cp, fmt.Errorf("%w: scanning spot size has %d components, expected 2",
				ErrMalformedInput, len(vs))
		}
		cp.spotSizeX, cp.spotSizeY = &vs[0], &vs[1]
	}
	cp.repaint = optIntIn(item, dicomutil.NumberOfPaintings)

	return cp, nil
}

// deliveryState is the running delivery state across a field's control
// point sequence. Attributes appear only on the control points where they
// change; each assembled layer snapshots the state current at the control
// point that carried its spot data.
//
// Geometry and range-shifter state are assumed field-invariant. A plan
// varying them across layers is consumed without error; each layer still
// records the value current at its control point.
type deliveryState struct {
	isocenter     [3]float64
	gantryAngle   float64
	couchAngle    float64
	snoutPosition float64
	sadX, sadY    float64
	spotSizeX     float64
	spotSizeY     float64
	tablePosition [3]float64
	metersetRate  float64
	energy        float64
	numSpots      int
	repaint       int
}

// apply folds one decoded control point into the running state.
func (st *deliveryState) apply(cp *controlPoint) {
	if cp.isocenter != nil {
		st.isocenter = *cp.isocenter
	}
	if cp.gantryAngle != nil {
		st.gantryAngle = *cp.gantryAngle
	}
	if cp.couchAngle != nil {
		st.couchAngle = *cp.couchAngle
	}
	if cp.snoutPosition != nil {
		st.snoutPosition = *cp.snoutPosition
	}
	if cp.sadX != nil {
		st.sadX = *cp.sadX
	}
	if cp.sadY != nil {
		st.sadY = *cp.sadY
	}
	if cp.spotSizeX != nil {
		st.spotSizeX = *cp.spotSizeX
	}
	if cp.spotSizeY != nil {
		st.spotSizeY = *cp.spotSizeY
	}
	if cp.tableVertical != nil {
		st.tablePosition[0] = *cp.tableVertical
	}
	if cp.tableLongitudinal != nil {
		st.tablePosition[1] = *cp.tableLongitudinal
	}
	if cp.tableLateral != nil {
		st.tablePosition[2] = *cp.tableLateral
	}
	if cp.metersetRate != nil {
		st.metersetRate = *cp.metersetRate
	}
	if cp.energy != nil {
		st.energy = *cp.energy
	}
	if cp.numSpots != nil {
		st.numSpots = *cp.numSpots
	}
	if cp.repaint != nil {
		st.repaint = *cp.repaint
	}
}

// newLayer snapshots the running state into a Layer carrying the given
// spots. Measured energy equals nominal until enrichment runs.
func (st *deliveryState) newLayer(spots []plan.Spot, cumMU float64, number int) *plan.Layer {
	return &plan.Layer{
		Spots:          spots,
		EnergyNominal:  st.energy,
		EnergyMeasured: st.energy,
		CumMU:          cumMU,
		Repaint:        st.repaint,
		Isocenter:      st.isocenter,
		GantryAngle:    st.gantryAngle,
		CouchAngle:     st.couchAngle,
		SnoutPosition:  st.snoutPosition,
		SADX:           st.sadX,
		SADY:           st.sadY,
		TablePosition:  st.tablePosition,
		MetersetRate:   st.metersetRate,
		Number:         number,
	}
}

// assembleLayers walks the control point sequence and appends the
// non-empty layers to f. A control point carrying a scan spot position map
// closes one energy step; the paired exit control point repeats the map
// with zero weights and is dropped by the positive-MU filter, so layer
// numbering stays dense.
func assembleLayers(f *plan.Field, cps []controlPoint, catalog map[int]*plan.RangeShifter) error {
	var st deliveryState
	layerNr := 1

	for i := range cps {
		cp := &cps[i]
		st.apply(cp)

		if cp.rangeShifterIn != nil {
			rs, ok := catalog[cp.rangeShifterIn.number]
			if !ok {
				return fmt.Errorf("%w: control point %d references undeclared range shifter %d",
					ErrMalformedInput, i, cp.rangeShifterIn.number)
			}
			// Copy so field-level mutation cannot alias the catalog
			// entry; range-shifter state is treated as field-invariant.
			attached := rs.Copy()
			attached.Inserted = true
			attached.WaterEquivalentThickness = cp.rangeShifterIn.wet
			attached.IsocenterDistance = cp.rangeShifterIn.isocenterDistance
			f.RangeShifter = attached
		}

		if cp.positions == nil {
			continue
		}
		if cp.numSpots == nil {
			return fmt.Errorf("%w: control point %d carries spot positions without a spot count",
				ErrMalformedInput, i)
		}
		n := st.numSpots
		if len(cp.positions) != 2*n {
			return fmt.Errorf("%w: control point %d has %d position values for %d spots",
				ErrInconsistentCount, i, len(cp.positions), n)
		}
		if len(cp.weights) != n {
			return fmt.Errorf("%w: control point %d has %d meterset weights for %d spots",
				ErrInconsistentCount, i, len(cp.weights), n)
		}

		spots := make([]plan.Spot, 0, n)
		var sumMU float64
		for s := 0; s < n; s++ {
			mu := cp.weights[s] * f.MetersetPerWeight
			spots = append(spots, plan.Spot{
				X:     cp.positions[2*s],
				Y:     cp.positions[2*s+1],
				MU:    mu,
				SizeX: st.spotSizeX,
				SizeY: st.spotSizeY,
			})
			sumMU += mu
		}

		// Only layers with delivered MU survive; empty layers do not
		// consume a sequence number.
		if sumMU > 0.0 {
			f.Layers = append(f.Layers, st.newLayer(spots, sumMU, layerNr))
			layerNr++
		} else {
			log.Printf("skipping empty layer at control point %d (%.4g MeV)", i, st.energy)
		}
	}
	return nil
}

// Element-list accessors mapping missing required attributes onto the
// import error taxonomy.

func reqStringIn(elems []*dicom.Element, t tag.Tag) (string, error) {
	e, err := dicomutil.Req(elems, t)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return dicomutil.String(e)
}

func reqFloatIn(elems []*dicom.Element, t tag.Tag) (float64, error) {
	e, err := dicomutil.Req(elems, t)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	v, err := dicomutil.Float(e)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return v, nil
}

func reqIntIn(elems []*dicom.Element, t tag.Tag) (int, error) {
	v, err := reqFloatIn(elems, t)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func optFloatIn(elems []*dicom.Element, t tag.Tag) *float64 {
	e, ok := dicomutil.Find(elems, t)
	if !ok {
		return nil
	}
	v, err := dicomutil.Float(e)
	if err != nil {
		return nil
	}
	return &v
}

func optIntIn(elems []*dicom.Element, t tag.Tag) *int {
	v := optFloatIn(elems, t)
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
