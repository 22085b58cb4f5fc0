// Package ct loads a DICOM CT image series for study export. Pixel data
// is not needed by the pipeline; only the slice geometry and patient
// identity attributes are kept.
package ct

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/suyashkumar/dicom"

	"github.com/nbassler/dicomexport/internal/dicomutil"
)

// Slice is one CT image of the series.
type Slice struct {
	SOPClassUID       string
	SOPInstanceUID    string
	Modality          string
	SeriesDescription string

	PixelSpacing         [2]float64
	SliceLocation        float64
	ImageOrientation     [6]float64
	ImagePositionPatient [3]float64
	InstanceNumber       int

	Rows    int
	Columns int

	PatientID           string
	PatientName         string
	PatientPosition     string
	FrameOfReferenceUID string
}

// Series is a loaded CT image series, sorted by z position. Attributes
// that DICOM stores per image but are constant across a series are read
// from the first slice.
type Series struct {
	Slices []Slice

	// DicomOrigin is the patient position of the first slice [mm].
	DicomOrigin [3]float64

	// SPRToMaterialPath points to the stopping-power-ratio conversion
	// table included in generated simulation input.
	SPRToMaterialPath string
}

// NumSlices returns the number of slices in the series.
func (s *Series) NumSlices() int { return len(s.Slices) }

// PatientID returns the patient ID of the series.
func (s *Series) PatientID() string {
	if len(s.Slices) == 0 {
		return ""
	}
	return s.Slices[0].PatientID
}

// PatientPosition returns the patient position code of the series.
func (s *Series) PatientPosition() string {
	if len(s.Slices) == 0 {
		return ""
	}
	return s.Slices[0].PatientPosition
}

// FrameOfReferenceUID returns the frame of reference of the series.
func (s *Series) FrameOfReferenceUID() string {
	if len(s.Slices) == 0 {
		return ""
	}
	return s.Slices[0].FrameOfReferenceUID
}

// SliceThickness returns the spacing between the first two slices, or 0
// for a single-slice series.
func (s *Series) SliceThickness() float64 {
	if len(s.Slices) < 2 {
		return 0.0
	}
	return s.Slices[1].ImagePositionPatient[2] - s.Slices[0].ImagePositionPatient[2]
}

// Load reads all CT*.dcm files in dir into a Series. File names cannot be
// trusted to sort correctly across archives, so slices are ordered by
// their z position.
func Load(dir string) (*Series, error) {
	files, err := filepath.Glob(filepath.Join(dir, "CT*.dcm"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CT files matching CT*.dcm in %s", dir)
	}

	series := &Series{Slices: make([]Slice, 0, len(files))}
	for _, file := range files {
		slice, err := loadSlice(file)
		if err != nil {
			return nil, fmt.Errorf("CT slice %s: %w", filepath.Base(file), err)
		}
		series.Slices = append(series.Slices, slice)
	}

	sort.Slice(series.Slices, func(i, j int) bool {
		return series.Slices[i].ImagePositionPatient[2] < series.Slices[j].ImagePositionPatient[2]
	})
	series.DicomOrigin = series.Slices[0].ImagePositionPatient

	log.Printf("loaded CT series: %d slices from %s", series.NumSlices(), dir)
	return series, nil
}

func loadSlice(path string) (Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return Slice{}, fmt.Errorf("failed to parse DICOM file: %w", err)
	}

	var s Slice

	spacing, err := dicomutil.ReqFloats(ds, dicomutil.PixelSpacing, 2)
	if err != nil {
		return Slice{}, err
	}
	copy(s.PixelSpacing[:], spacing)

	if s.SliceLocation, err = dicomutil.ReqFloat(ds, dicomutil.SliceLocation); err != nil {
		return Slice{}, err
	}
	orientation, err := dicomutil.ReqFloats(ds, dicomutil.ImageOrientationPatient, 6)
	if err != nil {
		return Slice{}, err
	}
	copy(s.ImageOrientation[:], orientation)

	position, err := dicomutil.ReqFloats(ds, dicomutil.ImagePositionPatient, 3)
	if err != nil {
		return Slice{}, err
	}
	copy(s.ImagePositionPatient[:], position)

	if s.Rows, err = dicomutil.ReqInt(ds, dicomutil.Rows); err != nil {
		return Slice{}, err
	}
	if s.Columns, err = dicomutil.ReqInt(ds, dicomutil.Columns); err != nil {
		return Slice{}, err
	}
	if s.PatientPosition, err = dicomutil.ReqString(ds, dicomutil.PatientPosition); err != nil {
		return Slice{}, err
	}

	s.SOPClassUID = dicomutil.OptString(ds, dicomutil.SOPClassUID, "")
	s.SOPInstanceUID = dicomutil.OptString(ds, dicomutil.SOPInstanceUID, "")
	s.Modality = dicomutil.OptString(ds, dicomutil.Modality, "")
	s.SeriesDescription = dicomutil.OptString(ds, dicomutil.SeriesDescription, "")
	s.InstanceNumber = dicomutil.OptInt(ds, dicomutil.InstanceNumber, 0)
	s.PatientName = dicomutil.OptString(ds, dicomutil.PatientName, "")
	s.PatientID = dicomutil.OptString(ds, dicomutil.PatientID, "")
	s.FrameOfReferenceUID = dicomutil.OptString(ds, dicomutil.FrameOfReferenceUID, "")

	return s, nil
}
