// Package rtstruct loads a DICOM RT Structure Set. Contour point data is
// not needed by the pipeline; only ROI identity and display colors are
// kept, plus the frame of reference UID used for geometry consistency
// checks against the CT series.
package rtstruct

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/suyashkumar/dicom"

	"github.com/nbassler/dicomexport/internal/dicomutil"
)

// ROI is one region of interest of the structure set.
type ROI struct {
	Name   string
	Number int
	Color  [3]int // RGB display color
}

// StructureSet is a loaded RT Structure Set.
type StructureSet struct {
	ROIs []ROI

	PatientID           string
	PatientName         string
	FrameOfReferenceUID string
}

// NumROIs returns the number of ROIs in the structure set.
func (s *StructureSet) NumROIs() int { return len(s.ROIs) }

// Load reads an RT Structure Set from path. A directory is scanned for
// the first RS*.dcm file.
func Load(path string) (*StructureSet, error) {
	file, err := resolve(path)
	if err != nil {
		return nil, err
	}
	ds, err := dicom.ParseFile(file, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DICOM file: %w", err)
	}

	modality, err := dicomutil.ReqString(ds, dicomutil.Modality)
	if err != nil {
		return nil, err
	}
	if modality != "RTSTRUCT" {
		return nil, fmt.Errorf("%s is not an RT Structure Set (modality %q)", file, modality)
	}

	ss := &StructureSet{
		PatientID:   dicomutil.OptString(ds, dicomutil.PatientID, ""),
		PatientName: dicomutil.OptString(ds, dicomutil.PatientName, ""),
	}

	// Required for geometry consistency checks against the CT series.
	ss.FrameOfReferenceUID, err = dicomutil.ReqString(ds, dicomutil.FrameOfReferenceUID)
	if err != nil {
		return nil, err
	}

	names := map[int]string{}
	items, err := dicomutil.ReqSequence(ds, dicomutil.StructureSetROISequence)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		num, name, err := roiIdentity(item)
		if err != nil {
			return nil, err
		}
		names[num] = name
	}

	colors := map[int][3]int{}
	if e, findErr := ds.FindElementByTag(dicomutil.ROIContourSequence); findErr == nil {
		contourItems, err := dicomutil.Items(e)
		if err != nil {
			return nil, err
		}
		for _, item := range contourItems {
			num, color, ok, err := roiColor(item)
			if err != nil {
				return nil, err
			}
			if ok {
				colors[num] = color
			}
		}
	}

	numbers := make([]int, 0, len(names))
	for num := range names {
		numbers = append(numbers, num)
	}
	sort.Ints(numbers)
	for _, num := range numbers {
		color, ok := colors[num]
		if !ok {
			color = [3]int{255, 255, 255}
		}
		ss.ROIs = append(ss.ROIs, ROI{Name: names[num], Number: num, Color: color})
	}

	log.Printf("imported RT Structure Set %s with %d ROIs", filepath.Base(file), ss.NumROIs())
	return ss, nil
}

func resolve(path string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(path, "RS*.dcm"))
	if err == nil && len(matches) > 0 {
		sort.Strings(matches)
		log.Printf("using RT Structure Set file: %s", filepath.Base(matches[0]))
		return matches[0], nil
	}
	return path, nil
}

func roiIdentity(item []*dicom.Element) (int, string, error) {
	numEl, err := dicomutil.Req(item, dicomutil.ROINumber)
	if err != nil {
		return 0, "", err
	}
	num, err := dicomutil.Int(numEl)
	if err != nil {
		return 0, "", err
	}
	nameEl, err := dicomutil.Req(item, dicomutil.ROIName)
	if err != nil {
		return 0, "", err
	}
	name, err := dicomutil.String(nameEl)
	if err != nil {
		return 0, "", err
	}
	return num, name, nil
}

func roiColor(item []*dicom.Element) (int, [3]int, bool, error) {
	numEl, err := dicomutil.Req(item, dicomutil.ReferencedROINumber)
	if err != nil {
		return 0, [3]int{}, false, err
	}
	num, err := dicomutil.Int(numEl)
	if err != nil {
		return 0, [3]int{}, false, err
	}
	colorEl, ok := dicomutil.Find(item, dicomutil.ROIDisplayColor)
	if !ok {
		return num, [3]int{}, false, nil
	}
	vals, err := dicomutil.Floats(colorEl)
	if err != nil || len(vals) != 3 {
		return num, [3]int{}, false, nil
	}
	return num, [3]int{int(vals[0]), int(vals[1]), int(vals[2])}, true, nil
}
