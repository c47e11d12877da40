package dicom

// Kind identifies the three RT record kinds the linker routes on
type Kind int

const (
	KindStructureSet Kind = iota
	KindPlan
	KindDose
)

// String returns the DICOM modality-style name of the kind
func (k Kind) String() string {
	switch k {
	case KindStructureSet:
		return "RTSTRUCT"
	case KindPlan:
		return "RTPLAN"
	case KindDose:
		return "RTDOSE"
	}
	return "UNKNOWN"
}

// RTRecord is the closed variant over the three record kinds. A dose
// record additionally carries raw grid voxel access; the records
// themselves never hold decoded pixel data.
type RTRecord struct {
	Kind Kind

	// Key is the source record key. A plan built only as a forward
	// reference from a dose record has no key.
	Key string

	Data *Record

	// Grid is the raw dose grid for KindDose records, nil otherwise.
	Grid *DoseGrid
}

// NewStructureSetRecord wraps a structure-set record
func NewStructureSetRecord(key string, data *Record) RTRecord {
	return RTRecord{Kind: KindStructureSet, Key: key, Data: data}
}

// NewPlanRecord wraps a plan record
func NewPlanRecord(key string, data *Record) RTRecord {
	return RTRecord{Kind: KindPlan, Key: key, Data: data}
}

// NewDoseRecord wraps a dose record together with its raw voxel grid
func NewDoseRecord(key string, data *Record, grid *DoseGrid) RTRecord {
	return RTRecord{Kind: KindDose, Key: key, Data: data, Grid: grid}
}
