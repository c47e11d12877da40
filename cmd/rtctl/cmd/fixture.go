package cmd

import (
	"fmt"
	"math/big"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/oncura/rtdose.go/pkg/dicom"
	"github.com/oncura/rtdose.go/pkg/dicom/tag"
)

// CaseFixture is the YAML description of a treatment case: a reference
// image series plus structure, plan and dose records. It exists so the
// CLI can exercise the compute core without a DICOM reader.
type CaseFixture struct {
	Series     SeriesFixture      `yaml:"series"`
	Structures []StructureFixture `yaml:"structures"`
	Plans      []PlanFixture      `yaml:"plans"`
	Doses      []DoseFixture      `yaml:"doses"`
}

type SeriesFixture struct {
	UID          string     `yaml:"uid"`
	Rows         int        `yaml:"rows"`
	Columns      int        `yaml:"columns"`
	PixelSpacing [2]float64 `yaml:"pixelSpacing"`
	Position     [2]float64 `yaml:"position"`
	SliceZs      []float64  `yaml:"sliceZs"`
}

type StructureFixture struct {
	UID   string       `yaml:"uid"`
	Label string       `yaml:"label"`
	ROIs  []ROIFixture `yaml:"rois"`
}

type ROIFixture struct {
	Number   int              `yaml:"number"`
	Name     string           `yaml:"name"`
	Contours []ContourFixture `yaml:"contours"`
}

type ContourFixture struct {
	Z      float64      `yaml:"z"`
	Points [][2]float64 `yaml:"points"`
}

type PlanFixture struct {
	UID            string                 `yaml:"uid"`
	Label          string                 `yaml:"label"`
	Name           string                 `yaml:"name"`
	DoseReferences []DoseReferenceFixture `yaml:"doseReferences"`
	Fractions      *FractionsFixture      `yaml:"fractions"`
}

type DoseReferenceFixture struct {
	Type          string  `yaml:"type"`
	TargetDoseGy  float64 `yaml:"targetDoseGy"`
	Description   string  `yaml:"description"`
}

type FractionsFixture struct {
	Planned     int       `yaml:"planned"`
	BeamDosesGy []float64 `yaml:"beamDosesGy"`
}

type DoseFixture struct {
	UID          string     `yaml:"uid"`
	PlanUID      string     `yaml:"planUID"`
	GridScaling  float64    `yaml:"gridScaling"`
	Rows         int        `yaml:"rows"`
	Columns      int        `yaml:"columns"`
	PixelSpacing [2]float64 `yaml:"pixelSpacing"`
	Position     [3]float64 `yaml:"position"`
	FrameOffsets []float64  `yaml:"frameOffsets"`

	// Values holds one flat value array per frame; a single constant
	// fills every voxel of every frame instead
	Values   [][]float64 `yaml:"values"`
	Constant *float64    `yaml:"constant"`
}

// LoadCaseFixture reads and validates a case fixture file
func LoadCaseFixture(path string) (*CaseFixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading case fixture: %w", err)
	}
	var fx CaseFixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parsing case fixture: %w", err)
	}
	if fx.Series.Rows <= 0 || fx.Series.Columns <= 0 {
		return nil, fmt.Errorf("case fixture: series needs positive dimensions")
	}
	return &fx, nil
}

// BuildCase converts the fixture into the record collections the
// compute core links. Missing UIDs are filled with generated ones.
func (fx *CaseFixture) BuildCase() (structures, plans, doses []dicom.RTRecord, series *dicom.Series, err error) {
	series = fx.buildSeries()

	for _, sf := range fx.Structures {
		uid := sf.uid()
		structures = append(structures, dicom.NewStructureSetRecord(uid, sf.record(uid)))
	}
	for _, pf := range fx.Plans {
		uid := pf.uid()
		plans = append(plans, dicom.NewPlanRecord(uid, pf.record(uid)))
	}
	for _, df := range fx.Doses {
		uid := df.uid()
		grid, err := df.grid()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		doses = append(doses, dicom.NewDoseRecord(uid, df.record(uid), grid))
	}
	return structures, plans, doses, series, nil
}

func (fx *CaseFixture) buildSeries() *dicom.Series {
	slices := make([]*dicom.ImageSlice, 0, len(fx.Series.SliceZs))
	for _, z := range fx.Series.SliceZs {
		slices = append(slices, &dicom.ImageSlice{
			SOPInstanceUID:  newUID(),
			Rows:            fx.Series.Rows,
			Columns:         fx.Series.Columns,
			PixelSpacing:    fx.Series.PixelSpacing,
			RowDirection:    [3]float64{1, 0, 0},
			ColumnDirection: [3]float64{0, 1, 0},
			Position:        [3]float64{fx.Series.Position[0], fx.Series.Position[1], z},
			Pixels:          make([]uint16, fx.Series.Rows*fx.Series.Columns),
		})
	}
	uid := fx.Series.UID
	if uid == "" {
		uid = newUID()
	}
	return dicom.NewSeries(uid, slices)
}

func (sf StructureFixture) uid() string {
	if sf.UID != "" {
		return sf.UID
	}
	return newUID()
}

func (sf StructureFixture) record(uid string) *dicom.Record {
	rec := dicom.NewRecord()
	rec.Set(tag.SOPInstanceUID, uid)
	rec.Set(tag.StructureSetLabel, sf.Label)
	for _, roi := range sf.ROIs {
		roiItem := dicom.NewRecord()
		roiItem.Set(tag.ROINumber, roi.Number)
		roiItem.Set(tag.ROIName, roi.Name)
		rec.AddSequenceItem(tag.StructureSetROISequence, roiItem)

		rcItem := dicom.NewRecord()
		rcItem.Set(tag.ReferencedROINumber, roi.Number)
		for _, ct := range roi.Contours {
			ctItem := dicom.NewRecord()
			ctItem.Set(tag.ContourGeometricType, "CLOSED_PLANAR")
			ctItem.Set(tag.NumberOfContourPoints, len(ct.Points))
			data := make([]float64, 0, len(ct.Points)*3)
			for _, p := range ct.Points {
				data = append(data, p[0], p[1], ct.Z)
			}
			ctItem.Set(tag.ContourData, data)
			rcItem.AddSequenceItem(tag.ContourSequence, ctItem)
		}
		rec.AddSequenceItem(tag.ROIContourSequence, rcItem)
	}
	return rec
}

func (pf PlanFixture) uid() string {
	if pf.UID != "" {
		return pf.UID
	}
	return newUID()
}

func (pf PlanFixture) record(uid string) *dicom.Record {
	rec := dicom.NewRecord()
	rec.Set(tag.SOPInstanceUID, uid)
	rec.Set(tag.RTPlanLabel, pf.Label)
	rec.Set(tag.RTPlanName, pf.Name)
	for _, ref := range pf.DoseReferences {
		item := dicom.NewRecord()
		item.Set(tag.DoseReferenceStructureType, ref.Type)
		item.Set(tag.TargetPrescriptionDose, ref.TargetDoseGy)
		if ref.Description != "" {
			item.Set(tag.DoseReferenceDescription, ref.Description)
		}
		rec.AddSequenceItem(tag.DoseReferenceSequence, item)
	}
	if pf.Fractions != nil {
		fg := dicom.NewRecord()
		fg.Set(tag.NumberOfFractionsPlanned, pf.Fractions.Planned)
		for _, beamDose := range pf.Fractions.BeamDosesGy {
			beam := dicom.NewRecord()
			beam.Set(tag.BeamDose, beamDose)
			fg.AddSequenceItem(tag.ReferencedBeamSequence, beam)
		}
		rec.AddSequenceItem(tag.FractionGroupSequence, fg)
	}
	return rec
}

func (df DoseFixture) uid() string {
	if df.UID != "" {
		return df.UID
	}
	return newUID()
}

func (df DoseFixture) record(uid string) *dicom.Record {
	rec := dicom.NewRecord()
	rec.Set(tag.SOPInstanceUID, uid)
	rec.Set(tag.DoseUnits, "GY")
	rec.Set(tag.DoseGridScaling, df.GridScaling)
	rec.Set(tag.GridFrameOffsetVector, df.FrameOffsets)
	rec.Set(tag.ImagePositionPatient, []float64{df.Position[0], df.Position[1], df.Position[2]})
	refPlan := dicom.NewRecord()
	refPlan.Set(tag.ReferencedSOPInstanceUID, df.PlanUID)
	rec.AddSequenceItem(tag.ReferencedRTPlanSequence, refPlan)
	return rec
}

func (df DoseFixture) grid() (*dicom.DoseGrid, error) {
	size := df.Rows * df.Columns
	frames := len(df.FrameOffsets)
	if frames == 0 {
		frames = 1
	}
	data := make([]float64, 0, size*frames)
	switch {
	case df.Constant != nil:
		for i := 0; i < size*frames; i++ {
			data = append(data, *df.Constant)
		}
	case len(df.Values) == frames:
		for i, frame := range df.Values {
			if len(frame) != size {
				return nil, fmt.Errorf("dose %s: frame %d has %d values, want %d", df.uid(), i, len(frame), size)
			}
			data = append(data, frame...)
		}
	default:
		return nil, fmt.Errorf("dose %s: need %d value frames or a constant", df.uid(), frames)
	}
	return &dicom.DoseGrid{
		Rows:            df.Rows,
		Columns:         df.Columns,
		PixelSpacing:    df.PixelSpacing,
		RowDirection:    [3]float64{1, 0, 0},
		ColumnDirection: [3]float64{0, 1, 0},
		Position:        df.Position,
		FrameOffsets:    df.FrameOffsets,
		Scaling:         df.GridScaling,
		Data:            data,
	}, nil
}

// newUID generates a synthetic SOP instance UID for fixture entries
// that omit one, under the UUID-derived 2.25 root
func newUID() string {
	u := uuid.New()
	var n big.Int
	n.SetBytes(u[:])
	return "2.25." + n.String()
}
