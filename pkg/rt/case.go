package rt

import (
	"fmt"
	"image/color"
	"log/slog"
	"strings"
	"sync"

	"github.com/oncura/rtdose.go/pkg/dicom"
	"github.com/oncura/rtdose.go/pkg/dicom/tag"
)

// Case is the full linked treatment record: the structure sets and
// plans reconciled from an unordered collection of RT records against
// exactly one underlying imaging series.
//
// A reload pass mutates the case collections and must not run
// concurrently with another reload or with reads; Reload serializes
// reloads on the case mutex.
type Case struct {
	mu sync.Mutex

	series  *dicom.Series
	records []dicom.RTRecord

	structures []*StructureSet
	plans      []*Plan

	// imageLUT is the patient coordinate table of the reference image,
	// rebuilt only when the reference slice changes
	imageLUT      *LUT
	imageLUTSlice *dicom.ImageSlice

	doseMax          float64
	forceRecalculate bool

	contourFinder ContourFinder
}

// NewCase creates a case over a reference image series and its raw RT
// records. Nothing is linked until Reload runs.
func NewCase(series *dicom.Series, records []dicom.RTRecord) (*Case, error) {
	if series == nil {
		return nil, fmt.Errorf("case requires a reference image series")
	}
	return &Case{
		series:        series,
		records:       records,
		contourFinder: DefaultContourFinder,
	}, nil
}

// ComputeCase is the primary entry point: it links the given records
// into a case graph and runs the full reload pass (coordinate mapping,
// isodose generation, DVH computation).
func ComputeCase(structureRecords, planRecords, doseRecords []dicom.RTRecord, series *dicom.Series, forceRecalculate bool) (*Case, error) {
	records := make([]dicom.RTRecord, 0, len(structureRecords)+len(planRecords)+len(doseRecords))
	records = append(records, structureRecords...)
	records = append(records, planRecords...)
	records = append(records, doseRecords...)

	c, err := NewCase(series, records)
	if err != nil {
		return nil, err
	}
	if err := c.Reload(forceRecalculate); err != nil {
		return nil, err
	}
	return c, nil
}

// SetContourFinder replaces the geometry collaborator used to derive
// isodose threshold contours
func (c *Case) SetContourFinder(f ContourFinder) {
	if f != nil {
		c.contourFinder = f
	}
}

// Reload runs the full linking and computation pass: structures first,
// then plans, then doses, then grid transforms, isodose sets and DVHs.
// Linking the same records again is idempotent.
func (c *Case) Reload(forceRecalculate bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.forceRecalculate = forceRecalculate
	c.structures = c.structures[:0]
	c.plans = c.plans[:0]
	c.doseMax = 0

	// Stage 1: structures
	for _, rec := range c.records {
		if rec.Kind == dicom.KindStructureSet {
			c.linkStructureSet(rec)
		}
	}
	// Stage 2: plans
	for _, rec := range c.records {
		if rec.Kind == dicom.KindPlan {
			c.linkPlan(rec)
		}
	}
	// Stage 3: doses, possibly creating placeholder plans
	for _, rec := range c.records {
		if rec.Kind == dicom.KindDose {
			c.linkDose(rec)
		}
	}

	if len(c.plans) == 0 {
		return nil
	}

	c.initImageLUT()
	for _, plan := range c.plans {
		for _, dose := range plan.Doses {
			if dose.Grid == nil {
				continue
			}
			dose.mmLUT = GridLUT(dose.Grid)
			if c.imageLUT != nil {
				dose.indexLUT = NewIndexLUT(c.imageLUT, dose.mmLUT)
			}
		}
		c.initIsoDoses(plan)
		c.initDvhs(plan)
	}
	return nil
}

// DoseMax returns the maximum raw voxel value across all dose grids,
// scanned once per reload
func (c *Case) DoseMax() float64 {
	if c.doseMax < 0.01 {
		for _, plan := range c.plans {
			for _, dose := range plan.Doses {
				if dose.Grid == nil {
					continue
				}
				if _, max := dose.Grid.MinMax(); max > c.doseMax {
					c.doseMax = max
				}
			}
		}
	}
	return c.doseMax
}

// Series returns the reference image series
func (c *Case) Series() *dicom.Series {
	return c.series
}

// Structures returns the linked structure sets in encounter order
func (c *Case) Structures() []*StructureSet {
	return c.structures
}

// FirstStructure returns the DVH-active structure set (first loaded),
// or nil
func (c *Case) FirstStructure() *StructureSet {
	if len(c.structures) == 0 {
		return nil
	}
	return c.structures[0]
}

// Plans returns the linked plans in encounter order
func (c *Case) Plans() []*Plan {
	return c.plans
}

// FirstPlan returns the first plan in encounter order, or nil
func (c *Case) FirstPlan() *Plan {
	if len(c.plans) == 0 {
		return nil
	}
	return c.plans[0]
}

// Dvh returns the DVH computed or provided for a region under a dose
// object, or (nil, false) when absent
func (c *Case) Dvh(regionID int, doseUID string) (*Dvh, bool) {
	for _, plan := range c.plans {
		if dose := plan.Dose(doseUID); dose != nil {
			if dvh := dose.Dvh(regionID); dvh != nil {
				return dvh, true
			}
			return nil, false
		}
	}
	return nil, false
}

// IsoDoseRegions returns the isodose regions generated for a dose
// object, ordered by descending level; empty when none were generated
func (c *Case) IsoDoseRegions(doseUID string) []*IsoDoseRegion {
	for _, plan := range c.plans {
		if dose := plan.Dose(doseUID); dose != nil {
			return dose.IsoDoseSet()
		}
	}
	return nil
}

// findPlan returns the plan with the given SOP instance UID, or nil
func (c *Case) findPlan(uid string) *Plan {
	for _, p := range c.plans {
		if p.SOPInstanceUID == uid {
			return p
		}
	}
	return nil
}

// linkStructureSet builds a structure set and its regions from a
// structure record
func (c *Case) linkStructureSet(rec dicom.RTRecord) {
	if rec.Data == nil {
		return
	}
	uid := rec.Data.GetString(tag.SOPInstanceUID)
	for _, existing := range c.structures {
		if existing.SOPInstanceUID == uid {
			// Same record linked twice
			return
		}
	}

	ss := &StructureSet{
		SOPInstanceUID: uid,
		Label:          rec.Data.GetString(tag.StructureSetLabel),
		Regions:        make(map[int]*StructRegion),
	}

	for _, roi := range rec.Data.GetSequence(tag.StructureSetROISequence) {
		num := roi.GetInt(tag.ROINumber, -1)
		if num < 0 {
			slog.Debug("structure set ROI without number, skipping")
			continue
		}
		ss.Regions[num] = &StructRegion{
			ID:     num,
			Label:  roi.GetString(tag.ROIName),
			Planes: make(map[float64][]*Contour),
		}
	}

	for _, obs := range rec.Data.GetSequence(tag.RTROIObservationsSequence) {
		num := obs.GetInt(tag.ReferencedROINumber, -1)
		region, ok := ss.Regions[num]
		if !ok {
			continue
		}
		region.InterpretedType = obs.GetString(tag.RTROIInterpretedType)
		if label := obs.GetString(tag.ROIObservationLabel); label != "" && region.Label == "" {
			region.Label = label
		}
	}

	for _, rc := range rec.Data.GetSequence(tag.ROIContourSequence) {
		num := rc.GetInt(tag.ReferencedROINumber, -1)
		region, ok := ss.Regions[num]
		if !ok {
			slog.Debug("contour for unknown ROI", "roi", num)
			continue
		}
		for _, ct := range rc.GetSequence(tag.ContourSequence) {
			if geoType := ct.GetString(tag.ContourGeometricType); geoType != "" && geoType != "CLOSED_PLANAR" {
				slog.Info("not supported: contour geometric type", "type", geoType, "roi", num)
				continue
			}
			contour := contourFromData(ct.GetDoubles(tag.ContourData))
			if contour == nil {
				continue
			}
			region.AddContour(contour)
		}
	}

	for _, region := range ss.Regions {
		region.Thickness = CalculatePlaneThickness(region.Planes)
	}

	c.structures = append(c.structures, ss)
}

// contourFromData converts a ContourData triplet array (x, y, z, ...)
// into a contour; the z of the first triplet locates the plane
func contourFromData(data []float64) *Contour {
	if len(data) < 3 || len(data)%3 != 0 {
		return nil
	}
	contour := &Contour{Z: data[2]}
	for i := 0; i < len(data); i += 3 {
		contour.Points = append(contour.Points, Point{X: data[i], Y: data[i+1]})
	}
	return contour
}

// linkPlan links a plan record, replacing a placeholder plan created
// earlier by a dose record's forward reference. Real metadata wins.
func (c *Case) linkPlan(rec dicom.RTRecord) {
	if rec.Data == nil {
		return
	}
	uid := rec.Data.GetString(tag.SOPInstanceUID)

	plan := c.findPlan(uid)
	if plan == nil {
		plan = &Plan{SOPInstanceUID: uid}
		c.plans = append(c.plans, plan)
	}
	// The placeholder keeps its doses; the record key marks it real
	plan.key = rec.Key
	if plan.key == "" {
		plan.key = uid
	}

	plan.Label = rec.Data.GetString(tag.RTPlanLabel)
	plan.Name = rec.Data.GetString(tag.RTPlanName)
	plan.Description = rec.Data.GetString(tag.RTPlanDescription)
	plan.Date = rec.Data.GetDate(tag.RTPlanDate)
	plan.Geometry = rec.Data.GetString(tag.RTPlanGeometry)

	c.resolveRxDose(plan, rec.Data)
}

// resolveRxDose resolves the prescribed dose: first from dose-reference
// entries (maximum across VOLUME/SITE/COORDINATES targets, Gy to cGy),
// then, when none carried a value, from the fraction-group beam doses.
func (c *Case) resolveRxDose(plan *Plan, data *dicom.Record) {
	plan.RxDoseCGy = 0

	for _, doseRef := range data.GetSequence(tag.DoseReferenceSequence) {
		structType := doseRef.GetString(tag.DoseReferenceStructureType)
		if !doseRef.HasValue(tag.TargetPrescriptionDose) {
			continue
		}
		// DICOM stores the prescription in Gy
		rxDose := doseRef.GetDouble(tag.TargetPrescriptionDose, 0) * 100

		switch structType {
		case "POINT":
			slog.Info("not supported: dose reference point specified as ROI")
		case "VOLUME", "SITE", "COORDINATES":
			// Keep the highest prescribed dose
			if rxDose > plan.RxDoseCGy {
				plan.RxDoseCGy = rxDose
				if desc := doseRef.GetString(tag.DoseReferenceDescription); desc != "" {
					plan.AppendName(desc)
				}
			}
		}
	}

	if plan.RxDoseCGy != 0 {
		return
	}
	fractionGroups := data.GetSequence(tag.FractionGroupSequence)
	if len(fractionGroups) == 0 {
		return
	}
	fractionGroup := fractionGroups[0]
	fx := fractionGroup.GetInt(tag.NumberOfFractionsPlanned, -1)
	if fx < 0 {
		return
	}
	for _, beam := range fractionGroup.GetSequence(tag.ReferencedBeamSequence) {
		if !beam.HasValue(tag.BeamDose) {
			continue
		}
		plan.RxDoseCGy += beam.GetDouble(tag.BeamDose, 0) * float64(fx) * 100
	}
}

// linkDose links a dose record to its plan, creating a placeholder plan
// when the referenced plan has not arrived. Dose objects deduplicate by
// SOP instance UID within the plan: a second record for the same dose
// only updates the provided-DVH map.
func (c *Case) linkDose(rec dicom.RTRecord) {
	if rec.Data == nil {
		return
	}
	uid := rec.Data.GetString(tag.SOPInstanceUID)

	referencedPlanUID := ""
	for _, refPlan := range rec.Data.GetSequence(tag.ReferencedRTPlanSequence) {
		referencedPlanUID = refPlan.GetString(tag.ReferencedSOPInstanceUID)
	}

	plan := c.findPlan(referencedPlanUID)
	if plan == nil {
		// Placeholder until the real plan record arrives
		plan = &Plan{SOPInstanceUID: referencedPlanUID}
		c.plans = append(c.plans, plan)
	}

	dose := plan.Dose(uid)
	if dose == nil {
		dose = NewDose(uid)
		dose.ImagePosition = rec.Data.GetDoubles(tag.ImagePositionPatient)
		dose.Comment = rec.Data.GetString(tag.DoseComment)
		dose.DoseUnit = rec.Data.GetString(tag.DoseUnits)
		dose.DoseType = rec.Data.GetString(tag.DoseType)
		dose.SummationType = rec.Data.GetString(tag.DoseSummationType)
		dose.GridFrameOffsets = rec.Data.GetDoubles(tag.GridFrameOffsetVector)
		dose.GridScaling = rec.Data.GetDouble(tag.DoseGridScaling, 0)
		dose.Grid = rec.Grid
		plan.Doses = append(plan.Doses, dose)
	}

	for _, item := range rec.Data.GetSequence(tag.DVHSequence) {
		c.linkProvidedDvh(dose, item)
	}
}

// linkProvidedDvh parses one DVH sequence item into the dose's DVH map,
// converting differential data to cumulative on the way in
func (c *Case) linkProvidedDvh(dose *Dose, item *dicom.Record) {
	refROIs := item.GetSequence(tag.DVHReferencedROISequence)
	if len(refROIs) != 1 {
		slog.Debug("DVH without a single referenced ROI, skipping", "refs", len(refROIs))
		return
	}
	roi := refROIs[0].GetInt(tag.ReferencedROINumber, -1)
	slog.Debug("found DVH for ROI", "roi", roi)

	dvh := NewProvidedDvh(roi)
	data := item.GetDoubles(tag.DVHData)

	if strings.EqualFold(item.GetString(tag.DVHType), "DIFFERENTIAL") {
		slog.Info("not supported: converting differential DVH to cumulative", "roi", roi)
		converted, err := ConvertDifferentialData(data)
		if err != nil {
			slog.Debug("differential DVH conversion failed, skipping", "roi", roi, "error", err)
			return
		}
		dvh.Data = converted
		dvh.Bins = len(converted)
	} else {
		volumes, err := DeinterleaveCumulativeData(data)
		if err != nil {
			slog.Debug("cumulative DVH data malformed, skipping", "roi", roi, "error", err)
			return
		}
		dvh.Data = volumes
		// -1 marks a bin count the record did not carry
		dvh.Bins = item.GetInt(tag.DVHNumberOfBins, -1)
	}

	dvh.DoseUnit = item.GetString(tag.DoseUnits)
	dvh.DoseType = item.GetString(tag.DoseType)
	dvh.DoseScaling = item.GetDouble(tag.DVHDoseScaling, 1.0)
	dvh.VolumeUnit = item.GetString(tag.DVHVolumeUnits)
	dvh.SetStatistics(
		item.GetDouble(tag.DVHMinimumDose, doseNotComputed),
		item.GetDouble(tag.DVHMaximumDose, doseNotComputed),
		item.GetDouble(tag.DVHMeanDose, doseNotComputed),
	)

	dose.PutDvh(roi, dvh)
}

// initImageLUT builds the patient coordinate table of the reference
// image, reusing the cached table while the reference slice is unchanged
func (c *Case) initImageLUT() {
	ref := c.series.Middle()
	if ref == nil {
		return
	}
	if c.imageLUT != nil && c.imageLUTSlice == ref {
		return
	}
	c.imageLUT = ImageLUT(ref)
	c.imageLUTSlice = ref
}

// initDvhs attaches a DVH to every region of the active structure set
// for every dose of the plan, calculating one when none was provided.
// A cached calculated DVH is never silently replaced; a provided one is
// recalculated only under the force flag.
func (c *Case) initDvhs(plan *Plan) {
	first := c.FirstStructure()
	if first == nil {
		return
	}
	for _, dose := range plan.Doses {
		if c.DoseMax() <= 0 {
			continue
		}
		for _, region := range first.Regions {
			dvh := dose.Dvh(region.ID)
			if dvh == nil || (dvh.Source == SourceProvided && c.forceRecalculate) {
				dvh = c.calculateDvh(region, dose)
				dose.PutDvh(region.ID, dvh)
			} else if dvh.Source == SourceProvided && strings.EqualFold(dvh.VolumeUnit, "CM3") && len(dvh.Data) > 0 {
				// Absolute volume carried by the record supersedes ours
				region.SetVolume(dvh.Data[0], SourceProvided)
			}

			dvh.Plan = plan
			region.Dvh = dvh

			slog.Debug("structure volume",
				"structure", region.Label,
				"source", region.VolumeSource().String(),
				"cm3", fmt.Sprintf("%.4f", region.Volume()))
			if plan.RxDoseCGy > 0 {
				slog.Debug("structure dose statistics",
					"structure", region.Label,
					"source", dvh.Source.String(),
					"min_pct", fmt.Sprintf("%.3f", CalculateRelativeDose(dvh.MinimumDoseCGy(), plan.RxDoseCGy)),
					"max_pct", fmt.Sprintf("%.3f", CalculateRelativeDose(dvh.MaximumDoseCGy(), plan.RxDoseCGy)),
					"mean_pct", fmt.Sprintf("%.3f", CalculateRelativeDose(dvh.MeanDoseCGy(), plan.RxDoseCGy)))
			}
		}
	}
}

// calculateDvh computes a cumulative DVH for a region directly from the
// dose grid and the region contours
func (c *Case) calculateDvh(region *StructRegion, dose *Dose) *Dvh {
	dvh := &Dvh{
		ReferencedROI: region.ID,
		Source:        SourceCalculated,
		Type:          "CUMULATIVE",
		DoseUnit:      "CGY",
		VolumeUnit:    "CM3",
		DoseScaling:   1.0,
		minDose:       doseNotComputed,
		maxDose:       doseNotComputed,
		meanDose:      doseNotComputed,
	}

	diff := c.calculateDifferentialDvh(region, dose)
	dvh.Data = cumulativeFromDifferential(diff)
	dvh.Bins = len(dvh.Data)
	return dvh
}

// calculateDifferentialDvh accumulates a differential histogram with one
// bin per integer cGy across all region planes, normalized so its total
// matches the physical region volume. The region volume (cm^3) is
// updated as a side effect.
func (c *Case) calculateDifferentialDvh(region *StructRegion, dose *Dose) []float64 {
	if dose.Grid == nil || dose.mmLUT == nil {
		return nil
	}

	maxDose := c.DoseMax() * dose.GridScaling * 100
	bins := int(maxDose)
	if bins <= 0 {
		return nil
	}

	histogram := make([]float64, bins)
	spacing := dose.Grid.PixelSpacing
	voxelArea := spacing[0] * spacing[1]
	volume := 0.0

	for z, contours := range region.Planes {
		maxContourIdx, _ := LargestContour(contours)

		frame := dose.Grid.FrameBySlice(z)
		if frame == nil {
			slog.Debug("no dose plane for slice, skipping", "z", z, "structure", region.Label)
			continue
		}

		for i, contour := range contours {
			if i != maxContourIdx {
				// Additive/subtractive handling of secondary contours on
				// a plane is unimplemented; only the largest contributes
				slog.Debug("not supported: secondary contour on plane ignored", "z", z, "structure", region.Label)
				continue
			}
			mask := ContourMask(dose.mmLUT, contour)
			hist := dose.maskedPlaneHistogram(frame, mask, bins)
			for b, count := range hist {
				histogram[b] += count
				volume += count * voxelArea * region.Thickness
			}
		}
	}

	// Volume units are cm^3
	volume /= 1000
	region.SetVolume(volume, SourceCalculated)

	// Rescale the histogram to reflect the total volume
	sum := 0.0
	for _, v := range histogram {
		sum += v
	}
	if sum == 0 {
		sum = 1
	}
	scale := volume / sum
	for i := range histogram {
		histogram[i] *= scale
	}
	return histogram
}

// initIsoDoses generates the isodose region ladder for every dose of a
// plan with a known prescribed dose, once per dose
func (c *Case) initIsoDoses(plan *Plan) {
	for _, dose := range plan.Doses {
		if len(dose.isoDoseSet) > 0 || plan.IsDummy() {
			continue
		}

		maxLevel := CalculateRelativeDose(c.DoseMax()*dose.GridScaling*1000, plan.RxDoseCGy)
		if !(maxLevel > 0) {
			// Covers zero prescribed dose (NaN) and an empty grid
			continue
		}

		// The whole ladder is gated on the truncated max level: below one
		// percent of the prescription nothing is generated
		doseMaxLevel := int(maxLevel)
		if doseMaxLevel <= 0 {
			continue
		}
		dose.isoDoseSet[doseMaxLevel] = NewIsoDoseRegion(doseMaxLevel,
			color.NRGBA{120, 0, 0, isoFillAlpha}, "Max", plan.RxDoseCGy)
		for _, lvl := range standardIsoLevels {
			dose.isoDoseSet[lvl.level] = NewIsoDoseRegion(lvl.level, lvl.color, "", plan.RxDoseCGy)
		}

		if dose.Grid == nil || dose.mmLUT == nil {
			continue
		}
		for _, slice := range c.series.Slices {
			z := planeKey(slice.Z())
			for _, region := range dose.isoDoseSet {
				contour := c.contourFinder(dose.Grid, dose.mmLUT, slice.Z(), region.AbsoluteDoseCGy)
				region.Planes[z] = append(region.Planes[z], contour)
			}
			if slice.SOPInstanceUID != "" {
				dose.isoContourIndex[slice.SOPInstanceUID] = z
			}
		}

		for _, region := range dose.isoDoseSet {
			region.Thickness = CalculatePlaneThickness(region.Planes)
		}
	}
}
