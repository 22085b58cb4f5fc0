package export

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/nbassler/dicomexport/internal/plan"
	"github.com/nbassler/dicomexport/internal/version"
)

// topasText builds the static blocks of a TOPAS input file. Each method
// returns one section terminated by a blank line so callers can
// concatenate them in any order.
type topasText struct{}

func banner(title string) string {
	return "##############################################\n" +
		"### " + centerPad(title, 38) + " ###\n" +
		"##############################################\n"
}

func centerPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	right := width - len(s) - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}

// header identifies the field, its particle budget and the applied
// history scaling.
func (topasText) header(f *plan.Field, nstatScale float64, nstat int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Topas input file for field %d\n", f.Number)
	b.WriteString("# " + strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&b, "# SOP_INSTANCE_UID %s\n", f.SOPInstanceUID)
	b.WriteString("# \n")
	fmt.Fprintf(&b, "# TOTAL_NUMBER_OF_PARTICLES: %.0f\n", f.Particles())
	fmt.Fprintf(&b, "# TOTAL_MU: %.2f\n", f.CumMU)
	fmt.Fprintf(&b, "# REQUESTED_HISTORIES: %d\n", nstat)
	fmt.Fprintf(&b, "# PARTICLE_SCALING: %.2f\n", nstatScale)
	b.WriteString("#\n")
	return b.String()
}

// header2 records generation time, user and tool version.
func (topasText) header2() string {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	} else if env := os.Getenv("USER"); env != "" {
		username = env
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Generated %s by user '%s'\n",
		time.Now().Format("2006-01-02 15:04:05"), username)
	fmt.Fprintf(&b, "# using %s %s\n", version.CreatorName, version.Version)
	b.WriteString("# https://github.com/nbassler/dicomexport\n")
	b.WriteString("#\n")
	return b.String()
}

// sprToMaterial includes the stopping-power-ratio conversion table.
func (topasText) sprToMaterial(sprPath string) string {
	var b strings.Builder
	b.WriteString(banner("SPR TO MATERIAL PATH"))
	fmt.Fprintf(&b, "includeFile                          = %s\n", sprPath)
	b.WriteString("\n")
	return b.String()
}

// variables emits the per-field delivery geometry. Isocenter, gantry,
// couch and snout position are taken from the first layer; varying them
// per control point is not supported.
func (topasText) variables(f *plan.Field, dicomOrigin [3]float64) string {
	var (
		isocenter     [3]float64
		gantryAngle   float64
		couchAngle    float64
		snoutPosition = 421.0
	)
	if len(f.Layers) > 0 {
		l := f.Layers[0]
		isocenter = l.Isocenter
		gantryAngle = l.GantryAngle
		couchAngle = l.CouchAngle
		// Spot-list formats carry no snout position; keep the default then.
		if l.SnoutPosition != 0 {
			snoutPosition = l.SnoutPosition
		}
	}

	var b strings.Builder
	b.WriteString(banner("V A R I A B L E S"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "d:Rt/Plan/IsoCenterX                 = %.2f mm\n", isocenter[0])
	fmt.Fprintf(&b, "d:Rt/Plan/IsoCenterY                 = %.2f mm\n", isocenter[1])
	fmt.Fprintf(&b, "d:Rt/Plan/IsoCenterZ                 = %.2f mm\n", isocenter[2])
	fmt.Fprintf(&b, "d:Ge/snoutPosition                   = %.2f mm\n", snoutPosition)
	fmt.Fprintf(&b, "d:Ge/gantryAngle                     = %.2f deg\n", gantryAngle)
	fmt.Fprintf(&b, "d:Ge/couchAngle                      = %.2f deg\n", couchAngle)
	fmt.Fprintf(&b, "dc:Ge/Patient/DicomOriginX           = %.2f mm\n", dicomOrigin[0])
	fmt.Fprintf(&b, "dc:Ge/Patient/DicomOriginY           = %.2f mm\n", dicomOrigin[1])
	fmt.Fprintf(&b, "dc:Ge/Patient/DicomOriginZ           = %.2f mm\n", dicomOrigin[2])
	b.WriteString("\n")
	return b.String()
}

// setup emits the physics list and run control parameters.
func (topasText) setup(showHistoryInterval, nrThreads int) string {
	const modules = `sv:Ph/Default/Modules                = 6 ` +
		`"g4em-standard_opt4" "g4h-phy_QGSP_BIC_AllHP" "g4decay" ` +
		`"g4ion-binarycascade" "g4h-elastic_HP" "g4stopping"`

	var b strings.Builder
	b.WriteString(banner("T O P A S    S E T U P"))
	b.WriteString("# " + modules + "\n")
	fmt.Fprintf(&b, "i:Ts/ShowHistoryCountAtInterval         = %d\n", showHistoryInterval)
	fmt.Fprintf(&b, "i:Ts/NumberOfThreads                    = %d\n", nrThreads)
	b.WriteString("b:Ts/DumpParameters                     = \"False\"\n")
	b.WriteString("b:Ge/Patient/IgnoreInconsistentFrameOfReferenceUID = \"True\"\n")
	b.WriteString("\n")
	return b.String()
}

func (topasText) worldSetup() string {
	var b strings.Builder
	b.WriteString(banner("W O R L D    S E T U P"))
	b.WriteString("s:Ge/World/Type            = \"TsBox\"\n")
	b.WriteString("s:Ge/World/Material        = \"Air\"\n")
	b.WriteString("d:Ge/World/HLX             = 90. cm\n")
	b.WriteString("d:Ge/World/HLY             = 90. cm\n")
	b.WriteString("d:Ge/World/HLZ             = 90. cm\n")
	b.WriteString("b:Ge/World/Invisible       = \"True\"\n")
	b.WriteString("\n")
	return b.String()
}

// geometryPatientDICOM loads the patient CT series and clones the dose
// grid from the referenced RTDOSE file.
func (topasText) geometryPatientDICOM(dosePath string) string {
	dir, file := splitDosePath(dosePath)
	var b strings.Builder
	b.WriteString(banner("G E O M E T R Y"))
	b.WriteString("s:Ge/Patient/Parent                  = \"World\"\n")
	b.WriteString("s:Ge/Patient/Type                    = \"TsDicomPatient\"\n")
	fmt.Fprintf(&b, "s:Ge/Patient/DicomDirectory          = \"%s\"\n", dir)
	b.WriteString("sv:Ge/Patient/DicomModalityTags      = 1 \"CT\"\n")
	fmt.Fprintf(&b, "s:Ge/Patient/CloneRTDoseGridFrom     = Ge/Patient/DicomDirectory + \"/%s\"\n", file)
	b.WriteString("d:Ge/Patient/TransX                  = Ge/Patient/DicomOriginX - Rt/Plan/IsoCenterX mm\n")
	b.WriteString("d:Ge/Patient/TransY                  = Ge/Patient/DicomOriginY - Rt/Plan/IsoCenterY mm\n")
	b.WriteString("d:Ge/Patient/TransZ                  = Ge/Patient/DicomOriginZ - Rt/Plan/IsoCenterZ mm\n")
	b.WriteString("d:Ge/Patient/RotX                    = 0.00 deg\n")
	b.WriteString("d:Ge/Patient/RotY                    = 0.00 deg\n")
	b.WriteString("d:Ge/Patient/RotZ                    = 0.00 deg\n")
	b.WriteString("s:Ge/Patient/Color                   = \"Red\"\n")
	b.WriteString("\n")
	return b.String()
}

func (topasText) geometryGantry() string {
	var b strings.Builder
	b.WriteString(banner("G E O M E T R Y   G A N T R Y"))
	b.WriteString("s:Ge/Gantry/Parent                   = \"DCM_to_IEC\"\n")
	b.WriteString("s:Ge/Gantry/Type                     = \"Group\"\n")
	b.WriteString("d:Ge/Gantry/TransX                   = 0.00 mm\n")
	b.WriteString("d:Ge/Gantry/TransY                   = 0.00 mm\n")
	b.WriteString("d:Ge/Gantry/TransZ                   = 0.00 mm\n")
	b.WriteString("d:Ge/Gantry/RotX                     = 0.00 deg\n")
	b.WriteString("d:Ge/Gantry/RotY                     = Ge/gantryAngle deg\n")
	b.WriteString("d:Ge/Gantry/RotZ                     = 0.00 deg\n")
	b.WriteString("\n")
	return b.String()
}

func (topasText) geometryCouch() string {
	var b strings.Builder
	b.WriteString(banner("G E O M E T R Y    C O U C H"))
	b.WriteString("s:Ge/Couch/Parent                  = \"World\"\n")
	b.WriteString("s:Ge/Couch/Type                    = \"Group\"\n")
	b.WriteString("d:Ge/Couch/RotX                    = 0. deg\n")
	b.WriteString("d:Ge/Couch/RotY                    = -1.0 * Ge/couchAngle deg\n")
	b.WriteString("d:Ge/Couch/RotZ                    = 0. deg\n")
	b.WriteString("d:Ge/Couch/TransX                  = 0.0 mm\n")
	b.WriteString("d:Ge/Couch/TransY                  = 0.0 mm\n")
	b.WriteString("d:Ge/Couch/TransZ                  = 0.0 mm\n")
	b.WriteString("\n")
	return b.String()
}

func (topasText) geometryDCMToIEC() string {
	var b strings.Builder
	b.WriteString(banner("G E O M E T R Y    DCM_to_IEC"))
	b.WriteString("s:Ge/DCM_to_IEC/Parent               = \"Couch\"\n")
	b.WriteString("s:Ge/DCM_to_IEC/Type                 = \"Group\"\n")
	b.WriteString("d:Ge/DCM_to_IEC/TransX               = 0.0 mm\n")
	b.WriteString("d:Ge/DCM_to_IEC/TransY               = 0.0 mm\n")
	b.WriteString("d:Ge/DCM_to_IEC/TransZ               = 0.0 mm\n")
	b.WriteString("d:Ge/DCM_to_IEC/RotX                 = 90.00 deg\n")
	b.WriteString("d:Ge/DCM_to_IEC/RotY                 = 0.0 deg\n")
	b.WriteString("d:Ge/DCM_to_IEC/RotZ                 = 0.0 deg\n")
	b.WriteString("\n")
	return b.String()
}

// geometryBeamPosition places the source at the beam model reference
// plane, steered per spot by the time features.
func (topasText) geometryBeamPosition(beamModelPosition float64) string {
	var b strings.Builder
	b.WriteString(banner("GEOM.  B E A M   P O S I T I O N"))
	b.WriteString("s:Ge/BeamPosition/Parent             = \"Gantry\"\n")
	b.WriteString("s:Ge/BeamPosition/Type               = \"Group\"\n")
	fmt.Fprintf(&b, "d:Ge/BeamPosition/TransZ             = -%g mm\n", beamModelPosition)
	b.WriteString("d:Ge/BeamPosition/TransX             = Tf/spotPositionX/Value mm\n")
	b.WriteString("d:Ge/BeamPosition/TransY             = -1.0 * Tf/spotPositionY/Value mm\n")
	b.WriteString("d:Ge/BeamPosition/RotX               = -1.0 * Tf/spotAngleY/Value deg\n")
	b.WriteString("d:Ge/BeamPosition/RotY               = -1.0 * Tf/spotAngleX/Value deg\n")
	b.WriteString("d:Ge/BeamPosition/RotZ               = 0.00 deg\n")
	b.WriteString("\n")
	return b.String()
}

// geometryRangeShifter emits the range shifter box, or nothing when the
// field has no range shifter.
func (topasText) geometryRangeShifter(f *plan.Field) string {
	rs := f.RangeShifter
	if rs == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(banner("R A N G E   S H I F T E R"))
	b.WriteString("s:Ge/RangeShifter/Parent             = \"Gantry\"\n")
	b.WriteString("s:Ge/RangeShifter/Type               = \"TsBox\"\n")
	fmt.Fprintf(&b, "s:Ge/RangeShifter/Material           = \"%s\"\n", rs.Material)
	b.WriteString("b:Ge/RangeShifter/Isparallel         = \"True\"\n")
	b.WriteString("sv:Ph/Default/LayeredMassGeometryWorlds = 2 \"Patient/RTDoseGrid\" \"RangeShifter\"\n")
	fmt.Fprintf(&b, "d:Ge/RangeShifter/HLX                = %.2f mm\n", 200.0)
	fmt.Fprintf(&b, "d:Ge/RangeShifter/HLY                = %.2f mm\n", 200.0)
	fmt.Fprintf(&b, "d:Ge/RangeShifter/HLZ                = %.2f mm\n", rs.Thickness*0.5)
	b.WriteString("s:Ge/RangeShifter/Color              = \"Orange\"\n")
	fmt.Fprintf(&b, "d:Ge/RangeShifter/TransZ            = %.2f mm\n",
		-(rs.IsocenterDistance + rs.Thickness*0.5))
	b.WriteString("\n")
	return b.String()
}

// fieldBeam declares the emittance source driven by the time features.
func (topasText) fieldBeam() string {
	var b strings.Builder
	b.WriteString(banner("B  E  A  M"))
	b.WriteString("s:So/Field/Type                      = \"Emittance\"\n")
	b.WriteString("s:So/Field/Component                 = \"BeamPosition\"\n")
	b.WriteString("s:So/Field/BeamParticle              = \"proton\"\n")
	b.WriteString("d:So/Field/BeamEnergy                = Tf/Energy/Value MeV\n")
	b.WriteString("u:So/Field/BeamEnergySpread          = Tf/EnergySpread/Value\n")
	b.WriteString("s:So/Field/Distribution              = \"BiGaussian\"\n")
	b.WriteString("d:So/Field/SigmaX                    = Tf/SigmaX/Value mm\n")
	b.WriteString("d:So/Field/SigmaY                    = Tf/SigmaY/Value mm\n")
	b.WriteString("u:So/Field/SigmaXprime               = Tf/SigmaXprime/Value\n")
	b.WriteString("u:So/Field/SigmaYprime               = Tf/SigmaYprime/Value\n")
	b.WriteString("u:So/Field/CorrelationX              = Tf/CorrelationX/Value\n")
	b.WriteString("u:So/Field/CorrelationY              = Tf/CorrelationY/Value\n")
	b.WriteString("\n")
	b.WriteString("i:So/Field/NumberOfHistoriesInRun    = Tf/spotWeight/Value\n")
	b.WriteString("\n")
	return b.String()
}

// scorerSetupDICOM scores dose on the cloned RTDOSE grid.
func (topasText) scorerSetupDICOM(doseToWater bool, outputPath string) string {
	var b strings.Builder
	b.WriteString(banner("S C O R E R    S E T U P"))
	if doseToWater {
		b.WriteString("s:Sc/Dose/Quantity                   = \"DoseToWater\"\n")
		b.WriteString("b:Sc/Dose/PreCalculateStoppingPowerRatios = \"True\"\n")
	} else {
		b.WriteString("s:Sc/Dose/Quantity                   = \"DoseToMedium\"\n")
	}
	b.WriteString("s:Sc/Dose/Component                  = \"Patient/RTDoseGrid\"\n")
	b.WriteString("s:Sc/Dose/ReferencedDicomPatient     = \"Patient\"\n")
	b.WriteString("s:Sc/Dose/IfOutputFileAlreadyExists  = \"Overwrite\"\n")
	b.WriteString("s:Sc/Dose/OutputType                 = \"DICOM\"\n")
	fmt.Fprintf(&b, "s:Sc/Dose/OutputFile                 = \"%s\"\n", outputPath)
	b.WriteString("b:Sc/Dose/DICOMOutput32BitsPerPixel  = \"F\"\n")
	b.WriteString("\n")
	return b.String()
}

func splitDosePath(dosePath string) (dir, file string) {
	idx := strings.LastIndexByte(dosePath, '/')
	if idx < 0 {
		return ".", dosePath
	}
	return dosePath[:idx], dosePath[idx+1:]
}
