package export

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nbassler/dicomexport/internal/enrich"
	"github.com/nbassler/dicomexport/internal/plan"
)

// Options controls plan export.
type Options struct {
	// FieldNumber selects a single field (1-based) when >= 1; all fields
	// are exported otherwise.
	FieldNumber int
	// Nominal emits planned energies; when false the measured energies
	// from the beam model are used.
	Nominal bool
	// NStat is the requested Monte Carlo history count.
	NStat int
	// Format is "topas" or "racehorse".
	Format string
}

// Plan writes one file per exported field (TOPAS) or one file per layer
// (Racehorse) next to basePath, suffixing field and layer numbers before
// the extension. The plan must carry a beam model.
func Plan(p *plan.Plan, basePath string, opts Options) error {
	if p.Model == nil {
		return fmt.Errorf("%w: cannot export plan %q", enrich.ErrMissingBeamModel, p.Label)
	}

	var fields []*plan.Field
	if opts.FieldNumber >= 1 {
		if opts.FieldNumber > len(p.Fields) {
			return fmt.Errorf("field %d requested, plan has %d fields",
				opts.FieldNumber, len(p.Fields))
		}
		fields = []*plan.Field{p.Fields[opts.FieldNumber-1]}
	} else {
		fields = p.Fields
	}

	for _, f := range fields {
		switch opts.Format {
		case "racehorse":
			// Mono-energetic format: one file per layer.
			for i, l := range f.Layers {
				path := outPath(basePath, f.Number, fmt.Sprintf("_layer%02d", l.Number))
				text, err := GenerateRacehorse(f, i, filepath.Base(path))
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				log.Printf("exported field %d layer %d to %s", f.Number, l.Number, path)
			}
		case "topas":
			path := outPath(basePath, f.Number, "")
			text := GenerateTOPAS(f, p.Model, opts.Nominal, opts.NStat)
			if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			log.Printf("exported field %d to %s", f.Number, path)
		default:
			return fmt.Errorf("unknown export format: %q", opts.Format)
		}
	}
	return nil
}

// outPath inserts the field number and an optional extra suffix between
// the stem and the extension of base.
func outPath(base string, fieldNumber int, extra string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_field%02d%s%s", stem, fieldNumber, extra, ext)
}
