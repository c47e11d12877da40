package rt

import (
	"image/color"

	"github.com/oncura/rtdose.go/pkg/dicom"
)

// isoFillAlpha is the fill transparency of generated isodose regions
const isoFillAlpha = 70

// IsoDoseRegion is a dose-threshold shell: every point receiving at
// least AbsoluteDoseCGy, expressed as Level percent of the prescribed
// dose, with its per-slice contours.
type IsoDoseRegion struct {
	// Level is the relative dose level in percent of the prescribed dose
	Level int

	// AbsoluteDoseCGy is the dose threshold this region represents
	AbsoluteDoseCGy float64

	Color color.NRGBA
	Label string

	// Planes maps a normalized z coordinate to the contours on that slice
	Planes map[float64][]*Contour

	// Thickness is the inferred axial spacing between contour planes (mm)
	Thickness float64
}

// NewIsoDoseRegion creates a region for a relative level against a
// prescribed dose in cGy
func NewIsoDoseRegion(level int, c color.NRGBA, label string, rxDoseCGy float64) *IsoDoseRegion {
	return &IsoDoseRegion{
		Level:           level,
		AbsoluteDoseCGy: float64(level) * rxDoseCGy / 100,
		Color:           c,
		Label:           label,
		Planes:          make(map[float64][]*Contour),
	}
}

// standardIsoLevels is the fixed ladder generated below the max level
var standardIsoLevels = []struct {
	level int
	color color.NRGBA
}{
	{102, color.NRGBA{170, 0, 0, isoFillAlpha}},
	{100, color.NRGBA{238, 69, 0, isoFillAlpha}},
	{98, color.NRGBA{255, 165, 0, isoFillAlpha}},
	{95, color.NRGBA{255, 255, 0, isoFillAlpha}},
	{90, color.NRGBA{0, 255, 0, isoFillAlpha}},
	{80, color.NRGBA{0, 139, 0, isoFillAlpha}},
	{70, color.NRGBA{0, 255, 255, isoFillAlpha}},
	{50, color.NRGBA{0, 0, 255, isoFillAlpha}},
	{30, color.NRGBA{0, 0, 128, isoFillAlpha}},
}

// ContourFinder derives a threshold contour from a dose grid on the
// axial plane at z. It is the injectable geometry collaborator of the
// isodose generator; implementations return a contour with no points
// when nothing on the plane reaches the threshold.
type ContourFinder func(grid *dicom.DoseGrid, lut *LUT, z, thresholdCGy float64) *Contour

// DefaultContourFinder traces the boundary of the thresholded dose
// plane at imaging resolution: the cells at or above the threshold that
// touch a below-threshold cell or the grid border, ordered by
// Moore-neighbor tracing and mapped to patient coordinates.
func DefaultContourFinder(grid *dicom.DoseGrid, lut *LUT, z, thresholdCGy float64) *Contour {
	contour := &Contour{Z: planeKey(z)}
	frame := grid.FrameBySlice(z)
	if frame == nil || grid.Scaling <= 0 {
		return contour
	}

	rows, cols := grid.Rows, grid.Columns
	above := func(r, c int) bool {
		if r < 0 || r >= rows || c < 0 || c >= cols {
			return false
		}
		return frame[r*cols+c]*grid.Scaling*100 >= thresholdCGy
	}

	// Find the topmost-leftmost cell of the region
	startR, startC := -1, -1
	for r := 0; r < rows && startR < 0; r++ {
		for c := 0; c < cols; c++ {
			if above(r, c) {
				startR, startC = r, c
				break
			}
		}
	}
	if startR < 0 {
		return contour
	}

	// Moore-neighbor boundary tracing, clockwise from the west neighbor
	dirs := [8][2]int{{0, -1}, {-1, -1}, {-1, 0}, {-1, 1}, {0, 1}, {1, 1}, {1, 0}, {1, -1}}
	r, c := startR, startC
	enter := 0
	for {
		contour.Points = append(contour.Points, Point{X: lut.X[c], Y: lut.Y[r]})
		found := false
		for i := 0; i < 8; i++ {
			d := dirs[(enter+i)%8]
			nr, nc := r+d[0], c+d[1]
			if above(nr, nc) {
				// Re-enter the scan from the direction opposite the
				// move, rotated one step clockwise
				enter = ((enter+i)%8 + 6) % 8
				r, c = nr, nc
				found = true
				break
			}
		}
		if !found {
			// Isolated single cell
			break
		}
		if r == startR && c == startC {
			break
		}
		if len(contour.Points) > rows*cols {
			// Tracing cannot visit more boundary cells than the grid holds
			break
		}
	}
	return contour
}
