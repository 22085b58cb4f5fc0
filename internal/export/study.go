package export

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nbassler/dicomexport/internal/ct"
	"github.com/nbassler/dicomexport/internal/plan"
	"github.com/nbassler/dicomexport/internal/rtstruct"
)

// Study writes complete simulation input for a patient study: the plan's
// time features embedded in a full geometry setup with the CT patient
// model, dose grid cloning and scoring. One file is written per field.
// fieldNumber selects a single field (1-based) when >= 1.
func Study(series *ct.Series, ss *rtstruct.StructureSet, p *plan.Plan,
	basePath, dosePath string, fieldNumber, nstat int) error {
	if p.Model == nil {
		return fmt.Errorf("plan %q has no beam model assigned", p.Label)
	}
	if fieldNumber > len(p.Fields) {
		return fmt.Errorf("field %d requested, plan has %d fields",
			fieldNumber, len(p.Fields))
	}

	// The structure set and the CT series must share a frame of reference
	// for the dose grid cloning to make geometric sense. Archives are
	// sometimes inconsistent here, so this is a warning, not an error.
	if ctFOR := series.FrameOfReferenceUID(); ctFOR != "" && ctFOR != ss.FrameOfReferenceUID {
		log.Printf("frame of reference mismatch: CT %s vs RTSTRUCT %s",
			ctFOR, ss.FrameOfReferenceUID)
	}

	fields := p.Fields
	if fieldNumber >= 1 {
		fields = []*plan.Field{p.Fields[fieldNumber-1]}
	}
	for _, f := range fields {
		if err := studyField(series, f, p.Model, basePath, dosePath, nstat); err != nil {
			return err
		}
	}
	return nil
}

func studyField(series *ct.Series, f *plan.Field, bm plan.BeamModel,
	basePath, dosePath string, nstat int) error {
	// Simulation results land next to the input, named per field; the
	// extension is decided by the simulation's DICOM writer.
	ext := filepath.Ext(basePath)
	stem := strings.TrimSuffix(basePath, ext)
	resultBase := fmt.Sprintf("%s_field%d", stem, f.Number)

	nstatScale := Scale(f, nstat)

	var txt topasText
	var b strings.Builder
	b.WriteString(txt.header(f, nstatScale, nstat))
	b.WriteString(txt.header2())
	if series.SPRToMaterialPath != "" {
		b.WriteString(txt.sprToMaterial(series.SPRToMaterialPath))
	}
	b.WriteString(txt.variables(f, series.DicomOrigin))
	b.WriteString(txt.setup(100000, 0))
	b.WriteString(txt.worldSetup())
	b.WriteString(txt.geometryPatientDICOM(dosePath))
	b.WriteString(txt.geometryGantry())
	b.WriteString(txt.geometryCouch())
	b.WriteString(txt.geometryDCMToIEC())
	b.WriteString(txt.geometryBeamPosition(bm.Position()))
	b.WriteString(txt.geometryRangeShifter(f))
	b.WriteString(txt.fieldBeam())
	b.WriteString(txt.scorerSetupDICOM(true, resultBase))
	b.WriteString(timeFeatures(f, bm, true, nstat))

	logFieldData(f, bm, nstat)

	path := resultBase + ".txt"
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.Printf("wrote simulation input for field %d: %s", f.Number, path)
	return nil
}
