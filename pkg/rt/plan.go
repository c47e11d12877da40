package rt

import (
	"sort"
	"time"

	"github.com/oncura/rtdose.go/pkg/dicom"
)

// Plan is a treatment plan and the ordered dose grids computed for it
type Plan struct {
	SOPInstanceUID string
	Label          string
	Name           string
	Description    string
	Geometry       string
	Date           time.Time

	// RxDoseCGy is the prescribed dose in cGy; 0 when unresolved
	RxDoseCGy float64

	Doses []*Dose

	// key is the source record key. A plan created as a forward
	// reference from a dose record has none until its own record links.
	key string
}

// IsDummy reports whether the plan is a placeholder created from a dose
// record's forward reference, still waiting for its authoritative record
func (p *Plan) IsDummy() bool {
	return p.key == ""
}

// AppendName appends a dose-reference description to the display name
func (p *Plan) AppendName(s string) {
	if s == "" {
		return
	}
	if p.Name == "" {
		p.Name = s
		return
	}
	p.Name += " " + s
}

// Dose returns the dose object with the given SOP instance UID, or nil
func (p *Plan) Dose(uid string) *Dose {
	for _, d := range p.Doses {
		if d.SOPInstanceUID == uid {
			return d
		}
	}
	return nil
}

// FirstDose returns the first dose in encounter order, or nil
func (p *Plan) FirstDose() *Dose {
	if len(p.Doses) == 0 {
		return nil
	}
	return p.Doses[0]
}

// Dose is a 3D dose grid tied to a plan, together with the DVHs and
// isodose regions derived from it
type Dose struct {
	SOPInstanceUID   string
	Comment          string
	DoseUnit         string
	DoseType         string
	SummationType    string
	ImagePosition    []float64
	GridFrameOffsets []float64
	GridScaling      float64

	Grid *dicom.DoseGrid

	dvhs       map[int]*Dvh
	isoDoseSet map[int]*IsoDoseRegion

	// isoContourIndex resolves a slice SOP instance UID to the plane key
	// its isodose contours are filed under; the plane maps on the regions
	// stay the single source of truth
	isoContourIndex map[string]float64

	// mmLUT maps dose-grid indices to patient coordinates
	mmLUT *LUT

	// indexLUT aligns reference-image pixel indices to dose-grid indices
	indexLUT *IndexLUT
}

// NewDose creates an empty dose object
func NewDose(uid string) *Dose {
	return &Dose{
		SOPInstanceUID:  uid,
		dvhs:            make(map[int]*Dvh),
		isoDoseSet:      make(map[int]*IsoDoseRegion),
		isoContourIndex: make(map[string]float64),
	}
}

// Dvh returns the DVH for a ROI, or nil
func (d *Dose) Dvh(roi int) *Dvh {
	return d.dvhs[roi]
}

// PutDvh files a DVH under its ROI number
func (d *Dose) PutDvh(roi int, dvh *Dvh) {
	d.dvhs[roi] = dvh
}

// IsoDoseSet returns the generated isodose regions ordered by
// descending level
func (d *Dose) IsoDoseSet() []*IsoDoseRegion {
	regions := make([]*IsoDoseRegion, 0, len(d.isoDoseSet))
	for _, r := range d.isoDoseSet {
		regions = append(regions, r)
	}
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Level > regions[j].Level
	})
	return regions
}

// IsoContoursForSlice returns the isodose contours filed for a slice
// SOP instance UID, across all levels in descending level order
func (d *Dose) IsoContoursForSlice(uid string) []*Contour {
	z, ok := d.isoContourIndex[uid]
	if !ok {
		return nil
	}
	var contours []*Contour
	for _, region := range d.IsoDoseSet() {
		contours = append(contours, region.Planes[z]...)
	}
	return contours
}

// DoseValueCGyAt samples the dose in cGy under a reference-image pixel
// on the slice at z. Returns 0 when the grids are not aligned or the
// slice has no dose coverage.
func (d *Dose) DoseValueCGyAt(imageCol, imageRow int, z float64) float64 {
	if d.indexLUT == nil || d.Grid == nil {
		return 0
	}
	if imageCol < 0 || imageCol >= len(d.indexLUT.Cols) || imageRow < 0 || imageRow >= len(d.indexLUT.Rows) {
		return 0
	}
	frame := d.Grid.FrameBySlice(z)
	if frame == nil {
		return 0
	}
	col := d.indexLUT.Cols[imageCol]
	row := d.indexLUT.Rows[imageRow]
	if col < 0 || row < 0 {
		return 0
	}
	return frame[row*d.Grid.Columns+col] * d.GridScaling * 100
}

// maskedPlaneHistogram builds a per-plane 1 cGy histogram of the dose
// values under the occupied cells of a mask. Values land in the bin of
// their integer cGy dose; values at or above the top bin clamp into it.
func (d *Dose) maskedPlaneHistogram(frame []float64, mask *Mask, bins int) []float64 {
	hist := make([]float64, bins)
	if bins == 0 || len(frame) != len(mask.Data) {
		return hist
	}
	for i, occupied := range mask.Data {
		if occupied == 0 {
			continue
		}
		cGy := frame[i] * d.GridScaling * 100
		bin := int(cGy)
		if bin < 0 {
			bin = 0
		}
		if bin >= bins {
			bin = bins - 1
		}
		hist[bin]++
	}
	return hist
}
