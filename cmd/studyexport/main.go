// Command studyexport converts a full DICOM study directory (CT series,
// RT Structure Set, RT Ion plan and RTDOSE grid) into complete simulation
// input files, one per field.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/nbassler/dicomexport/internal/beammodel"
	"github.com/nbassler/dicomexport/internal/config"
	"github.com/nbassler/dicomexport/internal/ct"
	"github.com/nbassler/dicomexport/internal/enrich"
	"github.com/nbassler/dicomexport/internal/export"
	"github.com/nbassler/dicomexport/internal/importer"
	"github.com/nbassler/dicomexport/internal/rtstruct"
	"github.com/nbassler/dicomexport/internal/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <study dir> [output file]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "The study directory must contain a DICOM CT series (CT*.dcm), one\n")
	fmt.Fprintf(os.Stderr, "RTSTRUCT file (RS*.dcm), one RTPLAN file (RN*.dcm) and at least one\n")
	fmt.Fprintf(os.Stderr, "RTDOSE file (RD*.dcm). The field number is appended to the output name\n")
	fmt.Fprintf(os.Stderr, "before the extension (default output: topas.txt).\n\nOptions:\n")
	flag.PrintDefaults()
}

func main() {
	var (
		beamModelPath = flag.String("b", "", "beam model CSV path (required)")
		sprPath       = flag.String("s", "", "SPR to material mapping path")
		bmPosition    = flag.Float64("p", config.DefaultBeamModelPosition,
			"beam model position in mm, relative to isocenter, positive upstream")
		fieldNr = flag.Int("f", 0, "field number to export; 0 exports all fields")
		nstat   = flag.Int("N", config.DefaultNStat, "target histories for simulation")
		verbose = flag.Bool("v", false, "verbose logging")
		showVer = flag.Bool("V", false, "print version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	if !*verbose {
		log.SetOutput(io.Discard)
	}

	studyDir := flag.Arg(0)
	outPath := "topas.txt"
	if flag.NArg() > 1 {
		outPath = flag.Arg(1)
	}

	if err := run(studyDir, outPath, *beamModelPath, *sprPath, *bmPosition, *fieldNr, *nstat); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(studyDir, outPath, beamModelPath, sprPath string, bmPosition float64, fieldNr, nstat int) error {
	if beamModelPath == "" {
		return fmt.Errorf("no beam model provided, use -b to specify a beam model CSV file")
	}

	series, err := ct.Load(studyDir)
	if err != nil {
		return err
	}
	series.SPRToMaterialPath = sprPath

	ss, err := rtstruct.Load(studyDir)
	if err != nil {
		return err
	}

	p, err := importer.Load(studyDir)
	if err != nil {
		return err
	}
	bm, err := beammodel.Load(beamModelPath, bmPosition)
	if err != nil {
		return err
	}
	p.Model = bm
	if err := enrich.Apply(p); err != nil {
		return err
	}

	dosePath, err := findDoseFile(studyDir)
	if err != nil {
		return err
	}

	return export.Study(series, ss, p, outPath, dosePath, fieldNr, nstat)
}

// findDoseFile locates the RTDOSE file whose grid the simulation clones.
func findDoseFile(studyDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(studyDir, "RD*.dcm"))
	if err != nil {
		return "", fmt.Errorf("failed to scan %s: %w", studyDir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no RTDOSE file (RD*.dcm) found in %s", studyDir)
	}
	if len(matches) > 1 {
		log.Printf("multiple RTDOSE files found, using %s", matches[0])
	}
	return matches[0], nil
}
