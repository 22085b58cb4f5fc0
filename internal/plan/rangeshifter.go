package plan

import (
	"errors"
	"fmt"
)

// ErrUnsupportedDevice reports a range-shifter identifier that is not in
// the device catalog. This is always fatal: silently substituting a wrong
// device would change the simulated dose.
var ErrUnsupportedDevice = errors.New("unsupported beam-line device")

// RangeShifter is a fixed-thickness beam-path device reducing particle
// range. Instances attached to a Field are independent copies of the
// catalog entry, so per-field mutation (insertion flag, measured geometry)
// never leaks back into the catalog or across fields.
type RangeShifter struct {
	ID       string // vendor catalog identifier
	Number   int    // source-format-specific device reference number
	Type     string // source-declared type, e.g. "BINARY"
	Material string

	Thickness               float64 // physical thickness [mm]
	WaterEquivalentThickness float64 // [mm]

	// IsocenterDistance is from the isocenter to the downstream edge of
	// the device [mm].
	IsocenterDistance float64

	Inserted bool
}

// rangeShifterSpec is a catalog entry: the physical properties of a known
// device, keyed by its vendor identifier.
type rangeShifterSpec struct {
	material  string
	thickness float64 // [mm]
}

// rangeShifterCatalog lists the beam-line devices of the supported delivery
// machines. Identifiers are matched case-sensitively, as they appear in
// treatment planning system exports.
var rangeShifterCatalog = map[string]rangeShifterSpec{
	"RS_2CM": {material: "Lexan", thickness: 20.0},
	"RS_3CM": {material: "Lexan", thickness: 30.0},
	"RS_5CM": {material: "Lexan", thickness: 50.0},
	"RS_7CM": {material: "Lexan", thickness: 70.0},
}

// NewRangeShifter builds a RangeShifter from the catalog entry for id.
// An unrecognised identifier returns ErrUnsupportedDevice.
func NewRangeShifter(id string, number int, rsType string) (*RangeShifter, error) {
	spec, ok := rangeShifterCatalog[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown range shifter id %q", ErrUnsupportedDevice, id)
	}
	return &RangeShifter{
		ID:        id,
		Number:    number,
		Type:      rsType,
		Material:  spec.material,
		Thickness: spec.thickness,
	}, nil
}

// Copy returns an independent copy of the range shifter.
func (rs *RangeShifter) Copy() *RangeShifter {
	if rs == nil {
		return nil
	}
	cp := *rs
	return &cp
}
