// Package importer reconstructs the canonical plan hierarchy from the
// supported source dialects: DICOM RT Ion plans (.dcm), IBA pencil-beam
// delivery files (.pld) and raster-scan submachine files (.rst). Each
// dialect has its own translator; all of them produce the same plan.Plan
// and enforce the same invariant that only layers with positive total MU
// survive the import.
package importer

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nbassler/dicomexport/internal/plan"
)

// ErrMalformedInput reports a source record missing mandatory identity or
// structural attributes. Fatal for the file being imported.
var ErrMalformedInput = errors.New("malformed plan input")

// ErrInconsistentCount reports a declared element count that does not match
// the number of elements actually present. Fatal for hierarchical records;
// the legacy PLD dialect tolerates spot-count mismatches (see loadPLD).
var ErrInconsistentCount = errors.New("inconsistent element count")

// Load imports a treatment plan from path. A directory is scanned for a
// plan file (RN*.dcm, *.pld, *.rst, in that order of preference);
// otherwise the dialect is selected by file extension.
func Load(path string) (*plan.Plan, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access plan path: %w", err)
	}
	if info.IsDir() {
		path, err = findPlanFile(path)
		if err != nil {
			return nil, err
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".dcm":
		return loadDICOM(path)
	case ".pld":
		return loadPLD(path)
	case ".rst":
		return loadRST(path)
	default:
		return nil, fmt.Errorf("unsupported plan file format: %s", filepath.Ext(path))
	}
}

// findPlanFile locates a single plan file inside a study directory.
func findPlanFile(dir string) (string, error) {
	var candidates []string
	for _, pattern := range []string{"RN*.dcm", "*.pld", "*.rst"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", fmt.Errorf("failed to scan %s: %w", dir, err)
		}
		candidates = append(candidates, matches...)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no plan files found in directory: %s", dir)
	}
	if len(candidates) > 1 {
		log.Printf("multiple plan files found in %s, using %s", dir, candidates[0])
	}
	return candidates[0], nil
}
