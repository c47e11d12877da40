package dicom

import (
	"math"
	"sort"
)

// ImageSlice describes one slice of the patient reference image series.
// Pixel values are raw stored values; no modality rescale is applied here.
type ImageSlice struct {
	SOPInstanceUID string

	Rows    int
	Columns int

	// Voxel spacing in mm: PixelSpacing is (row spacing, column spacing)
	PixelSpacing [2]float64

	// Direction cosines of the first row and first column
	RowDirection    [3]float64
	ColumnDirection [3]float64

	// Top-left-hand-corner position of the slice in patient coordinates
	Position [3]float64

	Pixels []uint16
}

// Z returns the slice position along the patient z axis
func (s *ImageSlice) Z() float64 {
	return s.Position[2]
}

// Series is the patient reference image series, ordered by slice position
type Series struct {
	SeriesInstanceUID string
	Slices            []*ImageSlice
}

// NewSeries creates a series and orders its slices by z position
func NewSeries(uid string, slices []*ImageSlice) *Series {
	s := &Series{SeriesInstanceUID: uid, Slices: slices}
	sort.Slice(s.Slices, func(i, j int) bool {
		return s.Slices[i].Z() < s.Slices[j].Z()
	})
	return s
}

// Middle returns the middle slice of the series, or nil when empty.
// The patient coordinate transform is anchored on this slice.
func (s *Series) Middle() *ImageSlice {
	if len(s.Slices) == 0 {
		return nil
	}
	return s.Slices[len(s.Slices)/2]
}

// First returns the first slice by position, or nil when empty
func (s *Series) First() *ImageSlice {
	if len(s.Slices) == 0 {
		return nil
	}
	return s.Slices[0]
}

// DoseGrid is a 3D dose grid as stored: raw values plus the scaling
// factor that converts them to Gy. Frames are axial planes located by
// the grid frame offset vector relative to the grid position.
type DoseGrid struct {
	Rows    int
	Columns int

	// Voxel spacing in mm (row spacing, column spacing)
	PixelSpacing [2]float64

	RowDirection    [3]float64
	ColumnDirection [3]float64

	// Position of the first voxel of the first frame
	Position [3]float64

	// FrameOffsets holds the z offset of each frame relative to Position
	FrameOffsets []float64

	// Scaling converts raw values to Gy
	Scaling float64

	// Data holds raw voxel values, frame-major, row-major within a frame
	Data []float64
}

// NumFrames returns the number of axial frames
func (g *DoseGrid) NumFrames() int {
	if g.Rows*g.Columns == 0 {
		return 0
	}
	return len(g.Data) / (g.Rows * g.Columns)
}

// Frame returns the raw values of frame i, or nil when out of range
func (g *DoseGrid) Frame(i int) []float64 {
	size := g.Rows * g.Columns
	if i < 0 || (i+1)*size > len(g.Data) {
		return nil
	}
	return g.Data[i*size : (i+1)*size]
}

// FrameZ returns the patient z position of frame i
func (g *DoseGrid) FrameZ(i int) float64 {
	if i < 0 || i >= len(g.FrameOffsets) {
		return g.Position[2]
	}
	return g.Position[2] + g.FrameOffsets[i]
}

// FrameBySlice returns the frame whose z position matches the given
// slice position. A frame matches when it is the nearest one and lies
// within half the local frame spacing; otherwise nil is returned and
// the slice has no dose coverage.
func (g *DoseGrid) FrameBySlice(z float64) []float64 {
	n := g.NumFrames()
	if n == 0 {
		return nil
	}
	best, bestDist := -1, math.Inf(1)
	for i := 0; i < n; i++ {
		if d := math.Abs(g.FrameZ(i) - z); d < bestDist {
			best, bestDist = i, d
		}
	}
	tolerance := 0.5
	if spacing := g.frameSpacing(); spacing > 0 {
		tolerance = spacing / 2
	}
	if bestDist > tolerance {
		return nil
	}
	return g.Frame(best)
}

// frameSpacing returns the minimum positive gap between consecutive
// frame offsets, or 0 when fewer than two frames exist
func (g *DoseGrid) frameSpacing() float64 {
	if len(g.FrameOffsets) < 2 {
		return 0
	}
	offsets := append([]float64(nil), g.FrameOffsets...)
	sort.Float64s(offsets)
	spacing := math.Inf(1)
	for i := 1; i < len(offsets); i++ {
		if gap := offsets[i] - offsets[i-1]; gap > 0 && gap < spacing {
			spacing = gap
		}
	}
	if math.IsInf(spacing, 1) {
		return 0
	}
	return spacing
}

// MinMax returns the minimum and maximum raw voxel values
func (g *DoseGrid) MinMax() (min, max float64) {
	if len(g.Data) == 0 {
		return 0, 0
	}
	min, max = g.Data[0], g.Data[0]
	for _, v := range g.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return
}
