// Package tag defines the standard DICOM tags read by the RT dose core
package tag

// Tag represents a DICOM tag with Group and Element
type Tag struct {
	Group   uint16
	Element uint16
}

// New creates a new Tag
func New(group, element uint16) Tag {
	return Tag{Group: group, Element: element}
}

// Equals compares two tags
func (t Tag) Equals(other Tag) bool {
	return t.Group == other.Group && t.Element == other.Element
}

// IsPrivate returns true if this is a private tag (odd group number)
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// SOP Common Module
var (
	SOPClassUID    = Tag{0x0008, 0x0016}
	SOPInstanceUID = Tag{0x0008, 0x0018}
	Modality       = Tag{0x0008, 0x0060}
)

// Cross-reference sequences
var (
	ReferencedSOPClassUID    = Tag{0x0008, 0x1150}
	ReferencedSOPInstanceUID = Tag{0x0008, 0x1155}
)

// Image Plane Module (Group 0020, 0028)
var (
	ImagePositionPatient    = Tag{0x0020, 0x0032}
	ImageOrientationPatient = Tag{0x0020, 0x0037}
	Rows                    = Tag{0x0028, 0x0010}
	Columns                 = Tag{0x0028, 0x0011}
	PixelSpacing            = Tag{0x0028, 0x0030}
)

// RT Plan Module (Group 300A)
var (
	RTPlanLabel                = Tag{0x300A, 0x0002}
	RTPlanName                 = Tag{0x300A, 0x0003}
	RTPlanDescription          = Tag{0x300A, 0x0004}
	RTPlanDate                 = Tag{0x300A, 0x0006}
	RTPlanTime                 = Tag{0x300A, 0x0007}
	RTPlanGeometry             = Tag{0x300A, 0x000C}
	DoseReferenceSequence      = Tag{0x300A, 0x0010}
	DoseReferenceStructureType = Tag{0x300A, 0x0014}
	DoseReferenceDescription   = Tag{0x300A, 0x0016}
	TargetPrescriptionDose     = Tag{0x300A, 0x0026}
	FractionGroupSequence      = Tag{0x300A, 0x0070}
	NumberOfFractionsPlanned   = Tag{0x300A, 0x0078}
	BeamDose                   = Tag{0x300A, 0x0084}
)

// RT relationship sequences (Group 300C)
var (
	ReferencedRTPlanSequence = Tag{0x300C, 0x0002}
	ReferencedBeamSequence   = Tag{0x300C, 0x0004}
)

// RT Dose Module (Group 3004)
var (
	DVHType                  = Tag{0x3004, 0x0001}
	DoseUnits                = Tag{0x3004, 0x0002}
	DoseType                 = Tag{0x3004, 0x0004}
	DoseComment              = Tag{0x3004, 0x0006}
	DoseSummationType        = Tag{0x3004, 0x000A}
	GridFrameOffsetVector    = Tag{0x3004, 0x000C}
	DoseGridScaling          = Tag{0x3004, 0x000E}
	DVHSequence              = Tag{0x3004, 0x0050}
	DVHDoseScaling           = Tag{0x3004, 0x0052}
	DVHVolumeUnits           = Tag{0x3004, 0x0054}
	DVHNumberOfBins          = Tag{0x3004, 0x0056}
	DVHData                  = Tag{0x3004, 0x0058}
	DVHReferencedROISequence = Tag{0x3004, 0x0060}
	DVHMinimumDose           = Tag{0x3004, 0x0070}
	DVHMaximumDose           = Tag{0x3004, 0x0072}
	DVHMeanDose              = Tag{0x3004, 0x0074}
)

// RT Structure Set Module (Group 3006)
var (
	StructureSetLabel        = Tag{0x3006, 0x0002}
	StructureSetROISequence  = Tag{0x3006, 0x0020}
	ROINumber                = Tag{0x3006, 0x0022}
	ROIName                  = Tag{0x3006, 0x0026}
	ROIDisplayColor          = Tag{0x3006, 0x002A}
	ROIContourSequence       = Tag{0x3006, 0x0039}
	ContourSequence          = Tag{0x3006, 0x0040}
	ContourGeometricType     = Tag{0x3006, 0x0042}
	NumberOfContourPoints    = Tag{0x3006, 0x0046}
	ContourData              = Tag{0x3006, 0x0050}
	RTROIObservationsSequence = Tag{0x3006, 0x0080}
	ReferencedROINumber      = Tag{0x3006, 0x0084}
	ROIObservationLabel      = Tag{0x3006, 0x0085}
	RTROIInterpretedType     = Tag{0x3006, 0x00A4}
)
