package dicomutil

import "github.com/suyashkumar/dicom/pkg/tag"

// Attribute tags used by the importers and the imaging collaborators.
// Declared here by (group,element) so the code does not depend on the
// dictionary names generated by the dicom library.
var (
	// General identity
	SOPClassUID    = tag.Tag{Group: 0x0008, Element: 0x0016}
	SOPInstanceUID = tag.Tag{Group: 0x0008, Element: 0x0018}
	Modality       = tag.Tag{Group: 0x0008, Element: 0x0060}
	SeriesDescription = tag.Tag{Group: 0x0008, Element: 0x103E}

	PatientName      = tag.Tag{Group: 0x0010, Element: 0x0010}
	PatientID        = tag.Tag{Group: 0x0010, Element: 0x0020}
	PatientPosition  = tag.Tag{Group: 0x0018, Element: 0x5100}
	SliceThickness   = tag.Tag{Group: 0x0018, Element: 0x0050}

	// Image geometry
	ImagePositionPatient    = tag.Tag{Group: 0x0020, Element: 0x0032}
	ImageOrientationPatient = tag.Tag{Group: 0x0020, Element: 0x0037}
	FrameOfReferenceUID     = tag.Tag{Group: 0x0020, Element: 0x0052}
	InstanceNumber          = tag.Tag{Group: 0x0020, Element: 0x0013}
	SliceLocation           = tag.Tag{Group: 0x0020, Element: 0x1041}
	Rows                    = tag.Tag{Group: 0x0028, Element: 0x0010}
	Columns                 = tag.Tag{Group: 0x0028, Element: 0x0011}
	PixelSpacing            = tag.Tag{Group: 0x0028, Element: 0x0030}

	// RT plan
	RTPlanLabel = tag.Tag{Group: 0x300A, Element: 0x0002}
	RTPlanDate  = tag.Tag{Group: 0x300A, Element: 0x0006}

	FractionGroupSequence  = tag.Tag{Group: 0x300A, Element: 0x0070}
	NumberOfBeams          = tag.Tag{Group: 0x300A, Element: 0x0080}
	ReferencedBeamSequence = tag.Tag{Group: 0x300C, Element: 0x0004}
	BeamDose               = tag.Tag{Group: 0x300A, Element: 0x0084}
	BeamMeterset           = tag.Tag{Group: 0x300A, Element: 0x0086}

	IonBeamSequence               = tag.Tag{Group: 0x300A, Element: 0x03A2}
	NumberOfControlPoints         = tag.Tag{Group: 0x300A, Element: 0x0110}
	FinalCumulativeMetersetWeight = tag.Tag{Group: 0x300A, Element: 0x010E}
	IonControlPointSequence       = tag.Tag{Group: 0x300A, Element: 0x03A8}

	NominalBeamEnergy  = tag.Tag{Group: 0x300A, Element: 0x0114}
	GantryAngle        = tag.Tag{Group: 0x300A, Element: 0x011E}
	PatientSupportAngle = tag.Tag{Group: 0x300A, Element: 0x0122}
	TableTopVerticalPosition     = tag.Tag{Group: 0x300A, Element: 0x0128}
	TableTopLongitudinalPosition = tag.Tag{Group: 0x300A, Element: 0x012A}
	TableTopLateralPosition      = tag.Tag{Group: 0x300A, Element: 0x012C}
	IsocenterPosition  = tag.Tag{Group: 0x300A, Element: 0x012E}
	SnoutPosition      = tag.Tag{Group: 0x300A, Element: 0x030D}
	MetersetRate       = tag.Tag{Group: 0x300A, Element: 0x035A}

	RangeShifterSequence = tag.Tag{Group: 0x300A, Element: 0x0314}
	RangeShifterNumber   = tag.Tag{Group: 0x300A, Element: 0x0316}
	RangeShifterID       = tag.Tag{Group: 0x300A, Element: 0x0318}
	RangeShifterType     = tag.Tag{Group: 0x300A, Element: 0x0320}

	RangeShifterSettingsSequence  = tag.Tag{Group: 0x300A, Element: 0x0360}
	RangeShifterSetting           = tag.Tag{Group: 0x300A, Element: 0x0362}
	IsocenterToRangeShifterDistance = tag.Tag{Group: 0x300A, Element: 0x0364}
	RangeShifterWaterEquivalentThickness = tag.Tag{Group: 0x300A, Element: 0x0366}
	ReferencedRangeShifterNumber  = tag.Tag{Group: 0x300C, Element: 0x0100}

	LateralSpreadingDeviceSettingsSequence       = tag.Tag{Group: 0x300A, Element: 0x0370}
	IsocenterToLateralSpreadingDeviceDistance    = tag.Tag{Group: 0x300A, Element: 0x0374}

	NumberOfScanSpotPositions = tag.Tag{Group: 0x300A, Element: 0x0392}
	ScanSpotPositionMap       = tag.Tag{Group: 0x300A, Element: 0x0394}
	ScanSpotMetersetWeights   = tag.Tag{Group: 0x300A, Element: 0x0396}
	ScanningSpotSize          = tag.Tag{Group: 0x300A, Element: 0x0398}
	NumberOfPaintings         = tag.Tag{Group: 0x300A, Element: 0x039A}

	// RT structure set
	StructureSetROISequence = tag.Tag{Group: 0x3006, Element: 0x0020}
	ROINumber               = tag.Tag{Group: 0x3006, Element: 0x0022}
	ROIName                 = tag.Tag{Group: 0x3006, Element: 0x0026}
	ROIDisplayColor         = tag.Tag{Group: 0x3006, Element: 0x002A}
	ROIContourSequence      = tag.Tag{Group: 0x3006, Element: 0x0039}
	ReferencedROINumber     = tag.Tag{Group: 0x3006, Element: 0x0084}
)
