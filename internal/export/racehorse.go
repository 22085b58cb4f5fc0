package export

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nbassler/dicomexport/internal/plan"
	"github.com/nbassler/dicomexport/internal/version"
)

// ErrMUConsistency reports a Racehorse layer whose emitted spot MU total,
// after output rounding, no longer matches the layer's cumulative MU. The
// file is not written when this check fails.
var ErrMUConsistency = errors.New("emitted MU inconsistent with layer total")

// muGateRelTol is the maximum relative deviation between the sum of the
// rounded emitted MU values and the layer total.
const muGateRelTol = 1.0e-4

// GenerateRacehorse renders one energy layer of a field as a Racehorse
// spot list. Racehorse files are mono-energetic, so a field exports as
// one file per layer. Spot MU values are emitted with two decimals; the
// rounded total is checked against the layer's cumulative MU before the
// content is handed back.
func GenerateRacehorse(f *plan.Field, layerIndex int, name string) (string, error) {
	if layerIndex < 0 || layerIndex >= len(f.Layers) {
		return "", fmt.Errorf("layer index %d out of range, field has %d layers",
			layerIndex, len(f.Layers))
	}
	l := f.Layers[layerIndex]

	var b strings.Builder
	b.WriteString("* ----- RACEHORSE Spot List -----\n")
	fmt.Fprintf(&b, "* Field: %02d  Layer: %02d\n", f.Number, l.Number)
	b.WriteString("\n")
	b.WriteString(racehorseHeader(name, time.Now()))

	var emittedMU float64
	for n, s := range l.Spots {
		mu := math.Round(s.MU*100.0) / 100.0
		fmt.Fprintf(&b, "%2d,%8.2f,%8.2f,%8.2f\n", n, s.X, s.Y, mu)
		emittedMU += mu
	}

	if l.CumMU > 0.0 {
		rel := math.Abs(emittedMU-l.CumMU) / l.CumMU
		if rel > muGateRelTol {
			return "", fmt.Errorf("%w: layer %d emits %.4f MU of %.4f (relative deviation %.2e)",
				ErrMUConsistency, l.Number, emittedMU, l.CumMU, rel)
		}
	}
	return b.String(), nil
}

// racehorseHeader emits the #HEADER and #VALUES preamble.
func racehorseHeader(name string, now time.Time) string {
	var b strings.Builder
	b.WriteString("#HEADER\n")
	fmt.Fprintf(&b, "NAME, %s\n", name)
	fmt.Fprintf(&b, "DATE, %s\n", now.Format("02-01-2006"))
	fmt.Fprintf(&b, "CREATORNAME, %s\n", version.CreatorName)
	fmt.Fprintf(&b, "CREATORVERSION, %s\n", version.Version)
	b.WriteString("\n")
	b.WriteString("#VALUES\n")
	b.WriteString("Index;Position x;Position y;Dose\n")
	return b.String()
}
