package rt

// DataSource tells whether a value was carried by the source record or
// computed by this core
type DataSource int

const (
	SourceProvided DataSource = iota
	SourceCalculated
)

func (s DataSource) String() string {
	if s == SourceProvided {
		return "PROVIDED"
	}
	return "CALCULATED"
}

// StructureSet is a set of delineated regions keyed by ROI number
type StructureSet struct {
	SOPInstanceUID string
	Label          string
	Regions        map[int]*StructRegion
}

// StructRegion is one anatomical region: its category, per-slice polygon
// contours, inferred plane thickness and, once computed, its DVH.
type StructRegion struct {
	ID              int
	Label           string
	InterpretedType string
	Color           []int

	// Planes maps a normalized z coordinate to the contours on that slice
	Planes map[float64][]*Contour

	// Thickness is the inferred axial spacing between contour planes (mm)
	Thickness float64

	Dvh *Dvh

	volume       float64
	volumeSource DataSource
}

// Volume returns the region volume in cm^3
func (r *StructRegion) Volume() float64 {
	return r.volume
}

// VolumeSource tells where the current volume value came from
func (r *StructRegion) VolumeSource() DataSource {
	return r.volumeSource
}

// SetVolume records the region volume (cm^3) and its source. A volume
// provided by a DVH record supersedes an independently calculated one.
func (r *StructRegion) SetVolume(v float64, source DataSource) {
	r.volume = v
	r.volumeSource = source
}

// AddContour files a contour under its plane
func (r *StructRegion) AddContour(c *Contour) {
	if r.Planes == nil {
		r.Planes = make(map[float64][]*Contour)
	}
	key := planeKey(c.Z)
	r.Planes[key] = append(r.Planes[key], c)
}
