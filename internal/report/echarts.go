// Package report renders visual summaries of an imported plan: an
// interactive HTML spot map per field and static PNG scatter plots per
// energy layer. Reports are diagnostic output; failures here never abort
// the conversion pipeline.
package report

import (
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/nbassler/dicomexport/internal/plan"
)

// viridis is the color ramp for the MU visual map.
var viridis = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// FieldSpotMapHTML writes an interactive scatter plot of all spots in the
// field, colored by MU, to path. One series per energy layer.
func FieldSpotMapHTML(f *plan.Field, path string) error {
	maxMU := 0.0
	maxAbs := 0.0
	for _, l := range f.Layers {
		for _, s := range l.Spots {
			if s.MU > maxMU {
				maxMU = s.MU
			}
			if v := abs(s.X); v > maxAbs {
				maxAbs = v
			}
			if v := abs(s.Y); v > maxAbs {
				maxAbs = v
			}
		}
	}
	if maxMU == 0 {
		maxMU = 1
	}
	// Pad the axes so edge spots stay visible.
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: fmt.Sprintf("Spot map field %d", f.Number),
			Theme:     "dark",
			Width:     "900px",
			Height:    "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Spot map field %d", f.Number),
			Subtitle: fmt.Sprintf("layers=%d spots=%d meterset=%.2f MU",
				f.NumLayers(), f.NumSpots(), f.CumMU),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (mm)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxMU),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)

	for _, l := range f.Layers {
		data := make([]opts.ScatterData, 0, len(l.Spots))
		for _, s := range l.Spots {
			data = append(data, opts.ScatterData{Value: []interface{}{s.X, s.Y, s.MU}})
		}
		scatter.AddSeries(fmt.Sprintf("%.2f MeV", l.EnergyNominal), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create spot map: %w", err)
	}
	defer file.Close()
	if err := scatter.Render(file); err != nil {
		return fmt.Errorf("failed to render spot map: %w", err)
	}
	log.Printf("wrote spot map for field %d: %s", f.Number, path)
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
