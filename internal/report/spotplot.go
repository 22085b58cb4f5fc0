package report

import (
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/nbassler/dicomexport/internal/plan"
)

// LayerSpotPlots writes one PNG scatter plot per energy layer of the
// field into outputDir. Marker size scales with the spot's share of the
// layer MU.
func LayerSpotPlots(f *plan.Field, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	for _, l := range f.Layers {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Field %d layer %d - %.2f MeV, %.2f MU",
			f.Number, l.Number, l.EnergyNominal, l.CumMU)
		p.X.Label.Text = "X (mm)"
		p.Y.Label.Text = "Y (mm)"

		pts := make(plotter.XYs, 0, len(l.Spots))
		for _, s := range l.Spots {
			pts = append(pts, plotter.XY{X: s.X, Y: s.Y})
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("layer %d scatter: %w", l.Number, err)
		}
		sc.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}

		// Scale marker radius by each spot's MU share of the layer.
		layerMU := l.CumMU
		spots := l.Spots
		sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			st := sc.GlyphStyle
			if layerMU > 0 {
				frac := spots[i].MU * float64(len(spots)) / layerMU
				r := vg.Points(2 + 2*frac)
				if r > vg.Points(8) {
					r = vg.Points(8)
				}
				st.Radius = r
			}
			return st
		}

		p.Add(sc)
		p.Add(plotter.NewGrid())

		file := filepath.Join(outputDir,
			fmt.Sprintf("field%02d_layer%02d.png", f.Number, l.Number))
		if err := p.Save(6*vg.Inch, 6*vg.Inch, file); err != nil {
			return fmt.Errorf("failed to save %s: %w", file, err)
		}
		log.Printf("wrote layer plot: %s", file)
	}
	return nil
}
