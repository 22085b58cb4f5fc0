// Command planexport converts a spot-scanning treatment plan (DICOM RT
// Ion, IBA PLD or raster-scan RST) into Monte Carlo simulation input or
// Racehorse spot lists, using a beam model CSV for the machine physics.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/nbassler/dicomexport/internal/beammodel"
	"github.com/nbassler/dicomexport/internal/config"
	"github.com/nbassler/dicomexport/internal/enrich"
	"github.com/nbassler/dicomexport/internal/export"
	"github.com/nbassler/dicomexport/internal/importer"
	"github.com/nbassler/dicomexport/internal/report"
	"github.com/nbassler/dicomexport/internal/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <plan file> [output file]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Convert DICOM-RT Ion plans to MC-compatible spot lists using a beam model.\n")
	fmt.Fprintf(os.Stderr, "The field number is appended to the output name before the extension\n")
	fmt.Fprintf(os.Stderr, "(default output: plan.txt).\n\nOptions:\n")
	flag.PrintDefaults()
}

func main() {
	var (
		beamModelPath = flag.String("b", "", "beam model CSV path (required unless -d)")
		bmPosition    = flag.Float64("p", config.DefaultBeamModelPosition,
			"beam model position in mm, relative to isocenter, positive upstream")
		fieldNr = flag.Int("f", 0, "field number to export; 0 exports all fields")
		diag    = flag.Bool("d", false, "print plan diagnostics and exit")
		actual  = flag.Bool("a", false, "emit measured energies instead of nominal ones")
		scale   = flag.Float64("s", 1.0, "additional MU scaling multiplier")
		nstat   = flag.Int("N", config.DefaultNStat, "target histories for simulation")
		format  = flag.String("fmt", config.DefaultFormat, "export format: topas or racehorse")
		doPlots = flag.Bool("report", false, "write HTML spot maps and per-layer PNG plots")
		cfgPath = flag.String("config", "", "export configuration JSON path")
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

	if err := run(planArgs{
		planPath:      flag.Arg(0),
		outPath:       argOr(1, "plan.txt"),
		beamModelPath: *beamModelPath,
		bmPosition:    *bmPosition,
		fieldNr:       *fieldNr,
		diag:          *diag,
		nominal:       !*actual,
		scale:         *scale,
		nstat:         *nstat,
		format:        *format,
		doPlots:       *doPlots,
		cfgPath:       *cfgPath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type planArgs struct {
	planPath      string
	outPath       string
	beamModelPath string
	bmPosition    float64
	fieldNr       int
	diag          bool
	nominal       bool
	scale         float64
	nstat         int
	format        string
	doPlots       bool
	cfgPath       string
	snoutPosition float64
}

func run(args planArgs) error {
	// Config file values fill in anything not given on the command line;
	// explicit flags keep priority by being read before the config.
	if args.cfgPath != "" {
		cfg, err := config.Load(args.cfgPath)
		if err != nil {
			return err
		}
		if args.bmPosition == config.DefaultBeamModelPosition {
			args.bmPosition = cfg.GetBeamModelPosition()
		}
		if args.nstat == config.DefaultNStat {
			args.nstat = cfg.GetNStat()
		}
		if args.format == config.DefaultFormat {
			args.format = cfg.GetFormat()
		}
		if args.scale == 1.0 {
			args.scale = cfg.GetScaling()
		}
		if args.nominal {
			args.nominal = cfg.GetNominal()
		}
		args.snoutPosition = cfg.GetSnoutPosition()
	}

	p, err := importer.Load(args.planPath)
	if err != nil {
		return err
	}
	p.Scaling = args.scale
	for _, f := range p.Fields {
		f.Scaling = args.scale
		// Spot-list formats carry no snout position; the configured machine
		// default fills the gap.
		if args.snoutPosition != 0 {
			for _, l := range f.Layers {
				if l.SnoutPosition == 0 {
					l.SnoutPosition = args.snoutPosition
				}
			}
		}
	}

	if args.diag {
		fmt.Println(p)
		return nil
	}

	if args.beamModelPath == "" {
		return fmt.Errorf("no beam model provided, use -b to specify a beam model CSV file")
	}
	bm, err := beammodel.Load(args.beamModelPath, args.bmPosition)
	if err != nil {
		return err
	}
	p.Model = bm
	if err := enrich.Apply(p); err != nil {
		return err
	}

	if args.doPlots {
		for _, f := range p.Fields {
			htmlPath := fmt.Sprintf("spotmap_field%02d.html", f.Number)
			if err := report.FieldSpotMapHTML(f, htmlPath); err != nil {
				log.Printf("spot map for field %d failed: %v", f.Number, err)
			}
			if err := report.LayerSpotPlots(f, "plots"); err != nil {
				log.Printf("layer plots for field %d failed: %v", f.Number, err)
			}
		}
	}

	return export.Plan(p, args.outPath, export.Options{
		FieldNumber: args.fieldNr,
		Nominal:     args.nominal,
		NStat:       args.nstat,
		Format:      args.format,
	})
}

func argOr(i int, def string) string {
	if flag.NArg() > i {
		return flag.Arg(i)
	}
	return def
}
