package rt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncura/rtdose.go/pkg/dicom"
	"github.com/oncura/rtdose.go/pkg/dicom/tag"
)

func testSeries(zs []float64, rows, cols int) *dicom.Series {
	slices := make([]*dicom.ImageSlice, 0, len(zs))
	for i, z := range zs {
		slices = append(slices, &dicom.ImageSlice{
			SOPInstanceUID:  fmt.Sprintf("1.2.3.100.%d", i),
			Rows:            rows,
			Columns:         cols,
			PixelSpacing:    [2]float64{1, 1},
			RowDirection:    [3]float64{1, 0, 0},
			ColumnDirection: [3]float64{0, 1, 0},
			Position:        [3]float64{0, 0, z},
		})
	}
	return dicom.NewSeries("1.2.3.100", slices)
}

func constantGrid(rows, cols int, offsets []float64, raw, scaling float64) *dicom.DoseGrid {
	data := make([]float64, rows*cols*len(offsets))
	for i := range data {
		data[i] = raw
	}
	return &dicom.DoseGrid{
		Rows:            rows,
		Columns:         cols,
		PixelSpacing:    [2]float64{1, 1},
		RowDirection:    [3]float64{1, 0, 0},
		ColumnDirection: [3]float64{0, 1, 0},
		Position:        [3]float64{0, 0, 0},
		FrameOffsets:    offsets,
		Scaling:         scaling,
		Data:            data,
	}
}

// squareContour returns ContourData triplets for an axis-aligned square
func squareContour(x0, y0, side, z float64) []float64 {
	return []float64{
		x0, y0, z,
		x0 + side, y0, z,
		x0 + side, y0 + side, z,
		x0, y0 + side, z,
	}
}

func structureRecord(uid string, roi int, name string, contours ...[]float64) dicom.RTRecord {
	rec := dicom.NewRecord()
	rec.Set(tag.SOPInstanceUID, uid)
	rec.Set(tag.StructureSetLabel, "test structures")

	roiItem := dicom.NewRecord()
	roiItem.Set(tag.ROINumber, roi)
	roiItem.Set(tag.ROIName, name)
	_ = rec.AddSequenceItem(tag.StructureSetROISequence, roiItem)

	rcItem := dicom.NewRecord()
	rcItem.Set(tag.ReferencedROINumber, roi)
	for _, data := range contours {
		ct := dicom.NewRecord()
		ct.Set(tag.ContourGeometricType, "CLOSED_PLANAR")
		ct.Set(tag.ContourData, data)
		_ = rcItem.AddSequenceItem(tag.ContourSequence, ct)
	}
	_ = rec.AddSequenceItem(tag.ROIContourSequence, rcItem)

	return dicom.NewStructureSetRecord(uid, rec)
}

func doseReference(structType string, doseGy float64, desc string) *dicom.Record {
	ref := dicom.NewRecord()
	ref.Set(tag.DoseReferenceStructureType, structType)
	ref.Set(tag.TargetPrescriptionDose, doseGy)
	if desc != "" {
		ref.Set(tag.DoseReferenceDescription, desc)
	}
	return ref
}

func planRecord(uid string, refs ...*dicom.Record) dicom.RTRecord {
	rec := dicom.NewRecord()
	rec.Set(tag.SOPInstanceUID, uid)
	rec.Set(tag.RTPlanLabel, "plan "+uid)
	for _, ref := range refs {
		_ = rec.AddSequenceItem(tag.DoseReferenceSequence, ref)
	}
	return dicom.NewPlanRecord(uid, rec)
}

func doseRecord(uid, planUID string, grid *dicom.DoseGrid, scaling float64) dicom.RTRecord {
	rec := dicom.NewRecord()
	rec.Set(tag.SOPInstanceUID, uid)
	rec.Set(tag.DoseUnits, "GY")
	rec.Set(tag.DoseGridScaling, scaling)
	refPlan := dicom.NewRecord()
	refPlan.Set(tag.ReferencedSOPInstanceUID, planUID)
	_ = rec.AddSequenceItem(tag.ReferencedRTPlanSequence, refPlan)
	return dicom.NewDoseRecord(uid, rec, grid)
}

func TestNewCase_RequiresSeries(t *testing.T) {
	_, err := NewCase(nil, nil)
	require.Error(t, err)
}

func TestResolveRxDose_MaxAcrossReferences(t *testing.T) {
	plan := planRecord("1.2.3.1",
		doseReference("VOLUME", 2.0, "PTV boost"),
		doseReference("SITE", 1.5, ""),
		doseReference("POINT", 5.0, "ignored"),
	)

	c, err := ComputeCase(nil, []dicom.RTRecord{plan}, nil, testSeries([]float64{0}, 4, 4), false)
	require.NoError(t, err)

	p := c.FirstPlan()
	require.NotNil(t, p)
	// Highest target wins; references never sum, points never count
	assert.InDelta(t, 200.0, p.RxDoseCGy, 1e-9)
	assert.Equal(t, "PTV boost", p.Name)
	assert.False(t, p.IsDummy())
}

func TestResolveRxDose_FractionGroupFallback(t *testing.T) {
	rec := dicom.NewRecord()
	rec.Set(tag.SOPInstanceUID, "1.2.3.2")
	fg := dicom.NewRecord()
	fg.Set(tag.NumberOfFractionsPlanned, 10)
	for _, gyPerFraction := range []float64{0.5, 0.3} {
		beam := dicom.NewRecord()
		beam.Set(tag.BeamDose, gyPerFraction)
		_ = fg.AddSequenceItem(tag.ReferencedBeamSequence, beam)
	}
	_ = rec.AddSequenceItem(tag.FractionGroupSequence, fg)
	plan := dicom.NewPlanRecord("1.2.3.2", rec)

	c, err := ComputeCase(nil, []dicom.RTRecord{plan}, nil, testSeries([]float64{0}, 4, 4), false)
	require.NoError(t, err)

	// Beam doses sum across the first fraction group
	assert.InDelta(t, 800.0, c.FirstPlan().RxDoseCGy, 1e-9)
}

func TestLinkDose_DedupBySOPInstanceUID(t *testing.T) {
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 2.0, ""))
	grid := constantGrid(4, 4, []float64{0, 2}, 100, 0.01)

	first := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)

	// Second record for the same dose object, now carrying a DVH
	second := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)
	item := dicom.NewRecord()
	roiRef := dicom.NewRecord()
	roiRef.Set(tag.ReferencedROINumber, 1)
	_ = item.AddSequenceItem(tag.DVHReferencedROISequence, roiRef)
	item.Set(tag.DVHType, "CUMULATIVE")
	item.Set(tag.DVHData, []float64{1, 100, 1, 80, 1, 0})
	item.Set(tag.DoseUnits, "GY")
	item.Set(tag.DVHDoseScaling, 1.0)
	item.Set(tag.DVHVolumeUnits, "CM3")
	_ = second.Data.AddSequenceItem(tag.DVHSequence, item)

	c, err := ComputeCase(nil, []dicom.RTRecord{plan},
		[]dicom.RTRecord{first, second}, testSeries([]float64{0, 2}, 4, 4), false)
	require.NoError(t, err)

	p := c.FirstPlan()
	require.Len(t, p.Doses, 1)

	dvh, ok := c.Dvh(1, "1.2.3.10")
	require.True(t, ok)
	assert.Equal(t, SourceProvided, dvh.Source)
	assert.Equal(t, []float64{100, 80, 0}, dvh.Data)
	// The record carried no bin count, so none is invented
	assert.Equal(t, -1, dvh.Bins)
}

func TestLinkDose_MalformedDifferentialDvh(t *testing.T) {
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 2.0, ""))
	grid := constantGrid(4, 4, []float64{0, 2}, 100, 0.01)

	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)
	item := dicom.NewRecord()
	roiRef := dicom.NewRecord()
	roiRef.Set(tag.ReferencedROINumber, 1)
	_ = item.AddSequenceItem(tag.DVHReferencedROISequence, roiRef)
	item.Set(tag.DVHType, "DIFFERENTIAL")
	item.Set(tag.DVHData, []float64{0.01, 5, 0, 10, 1, 20})
	_ = dose.Data.AddSequenceItem(tag.DVHSequence, item)

	// The bad histogram is skipped, the rest of the reload survives
	c, err := ComputeCase(nil, []dicom.RTRecord{plan}, []dicom.RTRecord{dose},
		testSeries([]float64{0, 2}, 4, 4), false)
	require.NoError(t, err)

	require.Len(t, c.FirstPlan().Doses, 1)
	_, ok := c.Dvh(1, "1.2.3.10")
	assert.False(t, ok)
	assert.NotEmpty(t, c.IsoDoseRegions("1.2.3.10"))
}

func TestLinkDose_PlaceholderPlan(t *testing.T) {
	grid := constantGrid(4, 4, []float64{0, 2}, 100, 0.01)
	dose := doseRecord("1.2.3.10", "1.2.3.9", grid, 0.01)

	c, err := ComputeCase(nil, nil, []dicom.RTRecord{dose}, testSeries([]float64{0, 2}, 4, 4), false)
	require.NoError(t, err)

	p := c.FirstPlan()
	require.NotNil(t, p)
	assert.True(t, p.IsDummy())
	assert.Equal(t, "1.2.3.9", p.SOPInstanceUID)
	require.Len(t, p.Doses, 1)

	// A placeholder plan has no prescription, so no isodose ladder
	assert.Empty(t, c.IsoDoseRegions("1.2.3.10"))
}

func TestLinkStructureSet_Dedup(t *testing.T) {
	ss := structureRecord("1.2.3.20", 1, "PTV", squareContour(1.5, 1.5, 5, 0))

	c, err := ComputeCase([]dicom.RTRecord{ss, ss}, nil, nil, testSeries([]float64{0}, 4, 4), false)
	require.NoError(t, err)

	assert.Len(t, c.Structures(), 1)
}

func TestLinkStructureSet_SkipsNonClosedPlanar(t *testing.T) {
	rec := dicom.NewRecord()
	rec.Set(tag.SOPInstanceUID, "1.2.3.21")
	roiItem := dicom.NewRecord()
	roiItem.Set(tag.ROINumber, 1)
	roiItem.Set(tag.ROIName, "Ref point")
	_ = rec.AddSequenceItem(tag.StructureSetROISequence, roiItem)
	rcItem := dicom.NewRecord()
	rcItem.Set(tag.ReferencedROINumber, 1)
	ct := dicom.NewRecord()
	ct.Set(tag.ContourGeometricType, "POINT")
	ct.Set(tag.ContourData, []float64{1, 1, 0})
	_ = rcItem.AddSequenceItem(tag.ContourSequence, ct)
	_ = rec.AddSequenceItem(tag.ROIContourSequence, rcItem)

	c, err := ComputeCase([]dicom.RTRecord{dicom.NewStructureSetRecord("1.2.3.21", rec)},
		nil, nil, testSeries([]float64{0}, 4, 4), false)
	require.NoError(t, err)

	region := c.FirstStructure().Regions[1]
	require.NotNil(t, region)
	assert.Empty(t, region.Planes)
	assert.Equal(t, 0.0, region.Thickness)
}

func TestLinkStructureSet_PlaneThickness(t *testing.T) {
	ss := structureRecord("1.2.3.22", 1, "PTV",
		squareContour(1.5, 1.5, 5, 0),
		squareContour(1.5, 1.5, 5, 2),
	)

	c, err := ComputeCase([]dicom.RTRecord{ss}, nil, nil, testSeries([]float64{0, 2}, 4, 4), false)
	require.NoError(t, err)

	region := c.FirstStructure().Regions[1]
	require.NotNil(t, region)
	assert.Len(t, region.Planes, 2)
	assert.InDelta(t, 2.0, region.Thickness, 1e-9)
}

func TestInitIsoDoses_Ladder(t *testing.T) {
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 2.0, ""))
	grid := constantGrid(4, 4, []float64{0, 2}, 100, 0.01)
	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)
	series := testSeries([]float64{0, 2}, 4, 4)

	c, err := ComputeCase(nil, []dicom.RTRecord{plan}, []dicom.RTRecord{dose}, series, false)
	require.NoError(t, err)

	regions := c.IsoDoseRegions("1.2.3.10")
	require.Len(t, regions, 10)

	// Max level tops the ladder
	assert.Equal(t, "Max", regions[0].Label)
	assert.Equal(t, 500, regions[0].Level)
	assert.InDelta(t, 1000.0, regions[0].AbsoluteDoseCGy, 1e-9)

	byLevel := map[int]*IsoDoseRegion{}
	for _, r := range regions {
		byLevel[r.Level] = r
	}
	for _, lvl := range []int{102, 100, 98, 95, 90, 80, 70, 50, 30} {
		require.Contains(t, byLevel, lvl)
	}
	assert.InDelta(t, 200.0, byLevel[100].AbsoluteDoseCGy, 1e-9)

	// The uniform 100 cGy grid reaches the 50% shell but not the 100%
	fifty := byLevel[50]
	require.Len(t, fifty.Planes, 2)
	for _, contours := range fifty.Planes {
		require.Len(t, contours, 1)
		assert.NotEmpty(t, contours[0].Points)
	}
	assert.InDelta(t, 2.0, fifty.Thickness, 1e-9)
	for _, contours := range byLevel[100].Planes {
		require.Len(t, contours, 1)
		assert.Empty(t, contours[0].Points)
	}

	// Slice index resolves one contour per level
	d := c.FirstPlan().Dose("1.2.3.10")
	require.NotNil(t, d)
	contours := d.IsoContoursForSlice(series.Slices[0].SOPInstanceUID)
	assert.Len(t, contours, 10)
}

func TestInitIsoDoses_ZeroRx(t *testing.T) {
	plan := planRecord("1.2.3.1")
	grid := constantGrid(4, 4, []float64{0, 2}, 100, 0.01)
	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)

	c, err := ComputeCase(nil, []dicom.RTRecord{plan}, []dicom.RTRecord{dose},
		testSeries([]float64{0, 2}, 4, 4), false)
	require.NoError(t, err)

	assert.Equal(t, 0.0, c.FirstPlan().RxDoseCGy)
	assert.Empty(t, c.IsoDoseRegions("1.2.3.10"))
}

func TestInitIsoDoses_EmptyGrid(t *testing.T) {
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 2.0, ""))
	grid := constantGrid(4, 4, []float64{0, 2}, 0, 0.01)
	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)

	c, err := ComputeCase(nil, []dicom.RTRecord{plan}, []dicom.RTRecord{dose},
		testSeries([]float64{0, 2}, 4, 4), false)
	require.NoError(t, err)

	assert.Empty(t, c.IsoDoseRegions("1.2.3.10"))
}

func TestInitIsoDoses_SubPercentMax(t *testing.T) {
	// Prescription so high that the grid max sits below one percent of it
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 1001.0, ""))
	grid := constantGrid(4, 4, []float64{0, 2}, 100, 0.01)
	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)

	c, err := ComputeCase(nil, []dicom.RTRecord{plan}, []dicom.RTRecord{dose},
		testSeries([]float64{0, 2}, 4, 4), false)
	require.NoError(t, err)

	// The truncated max level gates the whole ladder
	assert.Empty(t, c.IsoDoseRegions("1.2.3.10"))
}

func TestCustomContourFinder(t *testing.T) {
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 2.0, ""))
	grid := constantGrid(4, 4, []float64{0, 2}, 100, 0.01)
	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)
	series := testSeries([]float64{0, 2}, 4, 4)

	c, err := NewCase(series, []dicom.RTRecord{plan, dose})
	require.NoError(t, err)

	called := 0
	c.SetContourFinder(func(g *dicom.DoseGrid, lut *LUT, z, thresholdCGy float64) *Contour {
		called++
		return &Contour{Z: planeKey(z)}
	})
	require.NoError(t, c.Reload(false))

	// One call per slice per ladder level
	assert.Equal(t, 2*10, called)
}

func TestCalculatedDvh(t *testing.T) {
	// 5x5 mm square on two planes 2 mm apart over a uniform 100 cGy grid
	ss := structureRecord("1.2.3.20", 1, "PTV",
		squareContour(1.5, 1.5, 5, 0),
		squareContour(1.5, 1.5, 5, 2),
	)
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 2.0, ""))
	grid := constantGrid(10, 10, []float64{0, 2}, 100, 0.01)
	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)
	series := testSeries([]float64{0, 2}, 10, 10)

	c, err := ComputeCase([]dicom.RTRecord{ss}, []dicom.RTRecord{plan},
		[]dicom.RTRecord{dose}, series, false)
	require.NoError(t, err)

	dvh, ok := c.Dvh(1, "1.2.3.10")
	require.True(t, ok)
	assert.Equal(t, SourceCalculated, dvh.Source)
	assert.Equal(t, "CUMULATIVE", dvh.Type)
	assert.Equal(t, 100, dvh.Bins)

	// 25 voxel centers per plane, 1 mm^2 each, 2 mm thick: 0.1 cm^3
	region := c.FirstStructure().Regions[1]
	assert.InDelta(t, 0.1, region.Volume(), 1e-9)
	assert.Equal(t, SourceCalculated, region.VolumeSource())
	assert.Same(t, dvh, region.Dvh)
	assert.Same(t, c.FirstPlan(), dvh.Plan)

	// Cumulative bin 0 carries the whole volume, the curve never rises
	assert.InDelta(t, 0.1, dvh.Data[0], 1e-9)
	for i := 1; i < len(dvh.Data); i++ {
		assert.LessOrEqual(t, dvh.Data[i], dvh.Data[i-1])
	}

	// All voxels sit in the top bin of the 100 cGy grid
	assert.InDelta(t, 99.0, dvh.MaximumDoseCGy(), 1e-9)
}

func TestProvidedDvh_KeptAndVolumeOverride(t *testing.T) {
	ss := structureRecord("1.2.3.20", 1, "PTV",
		squareContour(1.5, 1.5, 5, 0),
		squareContour(1.5, 1.5, 5, 2),
	)
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 2.0, ""))
	grid := constantGrid(10, 10, []float64{0, 2}, 100, 0.01)

	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)
	item := dicom.NewRecord()
	roiRef := dicom.NewRecord()
	roiRef.Set(tag.ReferencedROINumber, 1)
	_ = item.AddSequenceItem(tag.DVHReferencedROISequence, roiRef)
	item.Set(tag.DVHType, "CUMULATIVE")
	item.Set(tag.DVHData, []float64{1, 100, 1, 80, 1, 0})
	item.Set(tag.DoseUnits, "GY")
	item.Set(tag.DVHDoseScaling, 1.0)
	item.Set(tag.DVHVolumeUnits, "CM3")
	item.Set(tag.DVHNumberOfBins, 3)
	_ = dose.Data.AddSequenceItem(tag.DVHSequence, item)

	series := testSeries([]float64{0, 2}, 10, 10)

	c, err := ComputeCase([]dicom.RTRecord{ss}, []dicom.RTRecord{plan},
		[]dicom.RTRecord{dose}, series, false)
	require.NoError(t, err)

	dvh, ok := c.Dvh(1, "1.2.3.10")
	require.True(t, ok)
	assert.Equal(t, SourceProvided, dvh.Source)
	assert.Equal(t, 3, dvh.Bins)

	// The record-carried absolute volume supersedes the computed one
	region := c.FirstStructure().Regions[1]
	assert.InDelta(t, 100.0, region.Volume(), 1e-9)
	assert.Equal(t, SourceProvided, region.VolumeSource())
}

func TestProvidedDvh_ForceRecalculate(t *testing.T) {
	ss := structureRecord("1.2.3.20", 1, "PTV",
		squareContour(1.5, 1.5, 5, 0),
		squareContour(1.5, 1.5, 5, 2),
	)
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 2.0, ""))
	grid := constantGrid(10, 10, []float64{0, 2}, 100, 0.01)

	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)
	item := dicom.NewRecord()
	roiRef := dicom.NewRecord()
	roiRef.Set(tag.ReferencedROINumber, 1)
	_ = item.AddSequenceItem(tag.DVHReferencedROISequence, roiRef)
	item.Set(tag.DVHType, "CUMULATIVE")
	item.Set(tag.DVHData, []float64{1, 100, 1, 80, 1, 0})
	item.Set(tag.DVHVolumeUnits, "CM3")
	_ = dose.Data.AddSequenceItem(tag.DVHSequence, item)

	c, err := ComputeCase([]dicom.RTRecord{ss}, []dicom.RTRecord{plan},
		[]dicom.RTRecord{dose}, testSeries([]float64{0, 2}, 10, 10), true)
	require.NoError(t, err)

	dvh, ok := c.Dvh(1, "1.2.3.10")
	require.True(t, ok)
	assert.Equal(t, SourceCalculated, dvh.Source)
	assert.InDelta(t, 0.1, c.FirstStructure().Regions[1].Volume(), 1e-9)
}

func TestDoseValueCGyAt(t *testing.T) {
	plan := planRecord("1.2.3.1", doseReference("VOLUME", 2.0, ""))
	grid := constantGrid(10, 10, []float64{0, 2}, 100, 0.01)
	dose := doseRecord("1.2.3.10", "1.2.3.1", grid, 0.01)

	c, err := ComputeCase(nil, []dicom.RTRecord{plan}, []dicom.RTRecord{dose},
		testSeries([]float64{0, 2}, 10, 10), false)
	require.NoError(t, err)

	d := c.FirstPlan().Dose("1.2.3.10")
	require.NotNil(t, d)

	assert.InDelta(t, 100.0, d.DoseValueCGyAt(3, 3, 0), 1e-9)
	// Outside the covered z range there is no dose
	assert.Equal(t, 0.0, d.DoseValueCGyAt(3, 3, 50))
	assert.Equal(t, 0.0, d.DoseValueCGyAt(-1, 3, 0))
}
