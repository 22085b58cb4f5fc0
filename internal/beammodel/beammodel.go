// Package beammodel loads a per-machine beam calibration table and exposes
// it as energy-keyed interpolation functions. The pipeline core consumes it
// through the plan.BeamModel interface and never looks inside.
//
// The table is a CSV file with one row per calibrated nominal energy:
//
//	energy_nominal,energy_measured,espread,sigma_x,sigma_y,div_x,div_y,cov_x,cov_y,ppmu
//
// Rows must be ordered by strictly increasing nominal energy. Queries are
// piecewise-linear between calibration points; behaviour outside the
// calibrated range follows the interpolant's boundary handling and is not
// clamped here.
package beammodel

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// columns is the required CSV header, in order.
var columns = []string{
	"energy_nominal", "energy_measured", "espread",
	"sigma_x", "sigma_y", "div_x", "div_y", "cov_x", "cov_y", "ppmu",
}

// Model is a loaded beam calibration surface. It implements plan.BeamModel.
type Model struct {
	path     string
	position float64 // reference plane distance upstream of isocenter [mm]

	energies []float64 // nominal energies of the calibration points

	energy      interp.PiecewiseLinear
	espread     interp.PiecewiseLinear
	sigmaX      interp.PiecewiseLinear
	sigmaY      interp.PiecewiseLinear
	divergenceX interp.PiecewiseLinear
	divergenceY interp.PiecewiseLinear
	correlX     interp.PiecewiseLinear
	correlY     interp.PiecewiseLinear
	ppmu        interp.PiecewiseLinear
}

// Load reads a beam model CSV and builds the interpolators. position is the
// beam model reference plane distance upstream of the isocenter [mm].
func Load(path string, position float64) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open beam model: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read beam model CSV: %w", err)
	}
	if len(records) < 3 {
		return nil, fmt.Errorf("beam model %s has %d calibration points, need at least 2", path, len(records)-1)
	}

	header := records[0]
	if len(header) != len(columns) {
		return nil, fmt.Errorf("beam model header has %d columns, expected %d", len(header), len(columns))
	}
	for i, want := range columns {
		if strings.ToLower(strings.TrimSpace(header[i])) != want {
			return nil, fmt.Errorf("beam model column %d is %q, expected %q", i+1, header[i], want)
		}
	}

	table := make([][]float64, len(columns))
	for rowIdx, rec := range records[1:] {
		if len(rec) != len(columns) {
			return nil, fmt.Errorf("beam model row %d has %d fields, expected %d", rowIdx+2, len(rec), len(columns))
		}
		for col, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("beam model row %d column %q: %v", rowIdx+2, columns[col], err)
			}
			table[col] = append(table[col], v)
		}
	}

	energies := table[0]
	for i := 1; i < len(energies); i++ {
		if energies[i] <= energies[i-1] {
			return nil, fmt.Errorf("beam model energies must be strictly increasing, row %d (%g MeV) is not", i+2, energies[i])
		}
	}

	m := &Model{path: path, position: position, energies: energies}
	fits := []struct {
		pl  *interp.PiecewiseLinear
		col int
	}{
		{&m.energy, 1}, {&m.espread, 2},
		{&m.sigmaX, 3}, {&m.sigmaY, 4},
		{&m.divergenceX, 5}, {&m.divergenceY, 6},
		{&m.correlX, 7}, {&m.correlY, 8},
		{&m.ppmu, 9},
	}
	for _, f := range fits {
		if err := f.pl.Fit(energies, table[f.col]); err != nil {
			return nil, fmt.Errorf("failed to fit beam model column %q: %v", columns[f.col], err)
		}
	}
	return m, nil
}

// EnergyRange returns the lowest and highest calibrated nominal energies.
func (m *Model) EnergyRange() (min, max float64) {
	return m.energies[0], m.energies[len(m.energies)-1]
}

// MeasuredEnergy returns the calibrated physical energy [MeV].
func (m *Model) MeasuredEnergy(nominalMeV float64) float64 { return m.energy.Predict(nominalMeV) }

// EnergySpread returns the energy spread [MeV].
func (m *Model) EnergySpread(nominalMeV float64) float64 { return m.espread.Predict(nominalMeV) }

// ParticlesPerMU returns the MU-to-particle conversion coefficient.
func (m *Model) ParticlesPerMU(nominalMeV float64) float64 { return m.ppmu.Predict(nominalMeV) }

// SigmaX returns the beam-spot sigma along x [mm].
func (m *Model) SigmaX(nominalMeV float64) float64 { return m.sigmaX.Predict(nominalMeV) }

// SigmaY returns the beam-spot sigma along y [mm].
func (m *Model) SigmaY(nominalMeV float64) float64 { return m.sigmaY.Predict(nominalMeV) }

// DivergenceX returns the angular divergence along x.
func (m *Model) DivergenceX(nominalMeV float64) float64 { return m.divergenceX.Predict(nominalMeV) }

// DivergenceY returns the angular divergence along y.
func (m *Model) DivergenceY(nominalMeV float64) float64 { return m.divergenceY.Predict(nominalMeV) }

// CorrelationX returns the position-angle correlation along x.
func (m *Model) CorrelationX(nominalMeV float64) float64 { return m.correlX.Predict(nominalMeV) }

// CorrelationY returns the position-angle correlation along y.
func (m *Model) CorrelationY(nominalMeV float64) float64 { return m.correlY.Predict(nominalMeV) }

// Position returns the reference plane distance upstream of isocenter [mm].
func (m *Model) Position() float64 { return m.position }

func (m *Model) String() string {
	lo, hi := m.EnergyRange()
	return fmt.Sprintf("<BeamModel %s: %d points, %.1f-%.1f MeV, position %.1f mm>",
		m.path, len(m.energies), lo, hi, m.position)
}
