package importer

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nbassler/dicomexport/internal/plan"
	"github.com/nbassler/dicomexport/internal/units"
)

// pldEpsilon snaps positions and MU within this distance of zero to
// exactly zero, suppressing formatting noise in legacy exports.
const pldEpsilon = 1.0e-10

// loadPLD imports an IBA-style PLD spot list. PLD files always carry a
// single field. The first line holds plan and field identity plus totals;
// the rest alternates one "Layer" header line with one "Element" line per
// spot.
func loadPLD(path string) (*plan.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PLD file: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	log.Printf("read %d lines from %s", len(lines), path)

	p := plan.New()
	f := plan.NewField()
	f.Number = 1
	p.Fields = []*plan.Field{f}
	// PLD files carry no plan UID; assign one so downstream output headers
	// stay traceable to a single import.
	p.UID = uuid.NewString()
	f.SOPInstanceUID = p.UID

	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("%w: PLD file %s is empty", ErrMalformedInput, path)
	}

	// First line: plan and field identity plus declared totals.
	tokens := strings.Split(lines[0], ",")
	if len(tokens) < 10 {
		return nil, fmt.Errorf("%w: PLD header has %d fields, expected at least 10",
			ErrMalformedInput, len(tokens))
	}
	p.PatientID = strings.TrimSpace(tokens[1])
	p.PatientName = strings.TrimSpace(tokens[2])
	p.PatientInitials = strings.TrimSpace(tokens[3])
	p.PatientFirstName = strings.TrimSpace(tokens[4])
	p.Label = strings.TrimSpace(tokens[5])
	p.BeamName = strings.TrimSpace(tokens[6])

	if f.CumMU, err = pldFloat(tokens[7]); err != nil {
		return nil, fmt.Errorf("%w: bad field meterset: %v", ErrMalformedInput, err)
	}
	if f.MetersetWeightFinal, err = pldFloat(tokens[8]); err != nil {
		return nil, fmt.Errorf("%w: bad cumulative set weight: %v", ErrMalformedInput, err)
	}
	declaredLayers, err := pldInt(tokens[9])
	if err != nil {
		return nil, fmt.Errorf("%w: bad layer count: %v", ErrMalformedInput, err)
	}

	for i := 1; i < len(lines); {
		line := lines[i]
		if !strings.Contains(line, "Layer") {
			i++
			continue
		}
		tokens := strings.Split(line, ",")
		if len(tokens) < 5 {
			return nil, fmt.Errorf("%w: layer header at line %d has %d fields, expected at least 5",
				ErrMalformedInput, i+1, len(tokens))
		}

		// Spot size is recorded as a Gaussian sigma; the canonical model
		// carries FWHM.
		sigma, err := pldFloat(tokens[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad spot size at line %d: %v", ErrMalformedInput, i+1, err)
		}
		fwhm := units.FWHM(sigma)

		energy, err := pldFloat(tokens[2])
		if err != nil {
			return nil, fmt.Errorf("%w: bad energy at line %d: %v", ErrMalformedInput, i+1, err)
		}
		// tokens[3] is the layer's declared cumulative MU; the canonical
		// layer stores the exact spot sum instead, so the declared value
		// is only read to keep the token positions honest.
		if _, err := pldFloat(tokens[3]); err != nil {
			return nil, fmt.Errorf("%w: bad cumulative MU at line %d: %v", ErrMalformedInput, i+1, err)
		}
		expectedSpots, err := pldInt(tokens[4])
		if err != nil {
			return nil, fmt.Errorf("%w: bad spot count at line %d: %v", ErrMalformedInput, i+1, err)
		}
		repaint := 0
		if len(tokens) > 5 {
			if repaint, err = pldInt(tokens[5]); err != nil {
				repaint = 0
			}
		}

		var spots []plan.Spot
		var sumMU float64
		j := i + 1
		for ; j < len(lines) && strings.Contains(lines[j], "Element"); j++ {
			el := strings.Split(lines[j], ",")
			if len(el) < 4 {
				return nil, fmt.Errorf("%w: element at line %d has %d fields, expected at least 4",
					ErrMalformedInput, j+1, len(el))
			}
			x, err := pldFloat(el[1])
			if err != nil {
				return nil, fmt.Errorf("%w: bad element x at line %d: %v", ErrMalformedInput, j+1, err)
			}
			y, err := pldFloat(el[2])
			if err != nil {
				return nil, fmt.Errorf("%w: bad element y at line %d: %v", ErrMalformedInput, j+1, err)
			}
			mu, err := pldFloat(el[3])
			if err != nil {
				return nil, fmt.Errorf("%w: bad element MU at line %d: %v", ErrMalformedInput, j+1, err)
			}

			x = snapZero(x)
			y = snapZero(y)
			if mu < pldEpsilon {
				mu = 0.0
			}
			// Zero-MU spots are dropped; legacy files pad layers with them.
			if mu > 0.0 {
				spots = append(spots, plan.Spot{X: x, Y: y, MU: mu, SizeX: fwhm, SizeY: fwhm})
				sumMU += mu
			}
		}

		// Legacy files routinely round-advertise their counts; a mismatch
		// is a diagnostic, not a failure.
		if len(spots) != expectedSpots {
			log.Printf("expected %d spots, found %d in layer %d at %.2f MeV",
				expectedSpots, len(spots), len(f.Layers), energy)
		}

		if len(spots) > 0 {
			f.Layers = append(f.Layers, &plan.Layer{
				Spots:          spots,
				EnergyNominal:  energy,
				EnergyMeasured: energy,
				CumMU:          sumMU,
				Repaint:        repaint,
				Number:         len(f.Layers) + 1,
			})
			log.Printf("appended layer %d with %d spots", len(f.Layers), len(spots))
		}

		i = j
	}

	if declaredLayers != len(f.Layers) {
		log.Printf("PLD header declares %d layers, imported %d with nonzero MU",
			declaredLayers, len(f.Layers))
	}
	return p, nil
}

func snapZero(v float64) float64 {
	if v > -pldEpsilon && v < pldEpsilon {
		return 0.0
	}
	return v
}

func pldFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func pldInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
