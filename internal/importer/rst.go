package importer

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nbassler/dicomexport/internal/plan"
)

// loadRST imports a GSI-style raster-scan submachine file. The format is
// line oriented: keyword lines set plan and field attributes, each
// "submachine" line opens an energy step, and bare numeric triplets
// (x y weight) list the raster points of the current step. Point weights
// are normalized per file; the beam_mu total rescales them into MU.
func loadRST(path string) (*plan.Plan, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open RST file: %w", err)
	}
	defer file.Close()

	p := plan.New()
	f := plan.NewField()
	f.Number = 1
	p.Fields = []*plan.Field{f}
	// Raster files carry no UID of their own.
	p.UID = uuid.NewString()
	f.SOPInstanceUID = p.UID

	var (
		beamMU           float64
		declaredMachines = -1
		current          *plan.Layer
		raw              []*plan.Layer
		totalWeight      float64
		lineNo           int
	)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "patient_id":
			p.PatientID = joinTail(fields)
		case "patient_name":
			p.PatientName = joinTail(fields)
		case "plan_label":
			p.Label = joinTail(fields)
		case "plan_date":
			p.Date = joinTail(fields)
		case "beam_mu":
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: beam_mu line %d has no value", ErrMalformedInput, lineNo)
			}
			if beamMU, err = strconv.ParseFloat(fields[1], 64); err != nil {
				return nil, fmt.Errorf("%w: bad beam_mu at line %d: %v", ErrMalformedInput, lineNo, err)
			}
		case "submachines":
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: submachines line %d has no value", ErrMalformedInput, lineNo)
			}
			if declaredMachines, err = strconv.Atoi(fields[1]); err != nil {
				return nil, fmt.Errorf("%w: bad submachine count at line %d: %v", ErrMalformedInput, lineNo, err)
			}
		case "submachine":
			// submachine <energy MeV> <fwhm mm> [repaint]
			if len(fields) < 3 {
				return nil, fmt.Errorf("%w: submachine line %d has %d fields, expected at least 3",
					ErrMalformedInput, lineNo, len(fields))
			}
			energy, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad submachine energy at line %d: %v", ErrMalformedInput, lineNo, err)
			}
			fwhm, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad submachine focus at line %d: %v", ErrMalformedInput, lineNo, err)
			}
			repaint := 0
			if len(fields) > 3 {
				if repaint, err = strconv.Atoi(fields[3]); err != nil {
					repaint = 0
				}
			}
			current = &plan.Layer{
				EnergyNominal:  energy,
				EnergyMeasured: energy,
				SizeX:          fwhm,
				SizeY:          fwhm,
				Repaint:        repaint,
			}
			raw = append(raw, current)
		case "rashi":
			// rashi <id>: beam-line range shifter by catalog identifier.
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: rashi line %d has no identifier", ErrMalformedInput, lineNo)
			}
			rs, err := plan.NewRangeShifter(fields[1], 1, "BINARY")
			if err != nil {
				return nil, err
			}
			rs.Inserted = true
			f.RangeShifter = rs
		default:
			// A raster point of the current submachine: x y weight.
			if current == nil {
				return nil, fmt.Errorf("%w: point at line %d precedes any submachine", ErrMalformedInput, lineNo)
			}
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: point at line %d has %d fields, expected 3",
					ErrMalformedInput, lineNo, len(fields))
			}
			var pt [3]float64
			for i, s := range fields {
				if pt[i], err = strconv.ParseFloat(s, 64); err != nil {
					return nil, fmt.Errorf("%w: bad point value %q at line %d: %v",
						ErrMalformedInput, s, lineNo, err)
				}
			}
			// Sizes per point mirror the submachine focus; MU is assigned
			// once the total weight is known.
			current.Spots = append(current.Spots, plan.Spot{
				X: pt[0], Y: pt[1], MU: pt[2],
				SizeX: current.SizeX, SizeY: current.SizeY,
			})
			totalWeight += pt[2]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read RST file: %w", err)
	}

	if declaredMachines >= 0 && declaredMachines != len(raw) {
		return nil, fmt.Errorf("%w: %d submachines declared, %d found",
			ErrInconsistentCount, declaredMachines, len(raw))
	}
	if totalWeight <= 0.0 {
		return nil, fmt.Errorf("%w: total raster weight is not positive", ErrMalformedInput)
	}
	if beamMU <= 0.0 {
		return nil, fmt.Errorf("%w: beam_mu missing or not positive", ErrMalformedInput)
	}

	// Rescale normalized point weights into MU and keep only layers that
	// actually deliver dose. Surviving layers are numbered densely.
	muPerWeight := beamMU / totalWeight
	for _, l := range raw {
		var sumMU float64
		spots := l.Spots[:0]
		for _, s := range l.Spots {
			s.MU *= muPerWeight
			if s.MU > 0.0 {
				spots = append(spots, s)
				sumMU += s.MU
			}
		}
		l.Spots = spots
		l.CumMU = sumMU
		if sumMU > 0.0 {
			l.Number = len(f.Layers) + 1
			f.Layers = append(f.Layers, l)
		} else {
			log.Printf("skipping submachine at %.2f MeV with zero MU", l.EnergyNominal)
		}
	}
	f.CumMU = beamMU
	f.MetersetWeightFinal = totalWeight
	f.MetersetPerWeight = muPerWeight

	log.Printf("imported %d of %d submachines from %s", len(f.Layers), len(raw), path)
	return p, nil
}

func joinTail(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}
