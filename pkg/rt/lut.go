package rt

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/oncura/rtdose.go/pkg/dicom"
)

// LUT maps grid indices to physical patient coordinates: X holds the x
// coordinate per column index, Y the y coordinate per row index. It is
// the reusable table the rasterizer and dose sampling work against.
type LUT struct {
	X []float64
	Y []float64
}

// NewPatientLUT builds the coordinate lookup table for a pixel grid from
// its voxel spacing, direction cosines and top-left-hand-corner position,
// per the patient coordinate equation (DICOM C.7.6.2.1-1). The third
// column of the homogeneous transform is zero: only in-plane axes are
// needed.
func NewPatientLUT(cols, rows int, spacing [2]float64, rowDir, colDir, position [3]float64) *LUT {
	// spacing is (row spacing, column spacing): deltaI steps columns
	deltaI := spacing[1]
	deltaJ := spacing[0]

	m := mat.NewDense(4, 4, []float64{
		rowDir[0] * deltaI, colDir[0] * deltaJ, 0, position[0],
		rowDir[1] * deltaI, colDir[1] * deltaJ, 0, position[1],
		rowDir[2] * deltaI, colDir[2] * deltaJ, 0, position[2],
		0, 0, 0, 1,
	})

	lut := &LUT{
		X: make([]float64, cols),
		Y: make([]float64, rows),
	}

	var out mat.VecDense
	for i := 0; i < cols; i++ {
		out.MulVec(m, mat.NewVecDense(4, []float64{float64(i), 0, 0, 1}))
		lut.X[i] = out.AtVec(0)
	}
	for j := 0; j < rows; j++ {
		out.MulVec(m, mat.NewVecDense(4, []float64{0, float64(j), 0, 1}))
		lut.Y[j] = out.AtVec(1)
	}
	return lut
}

// ImageLUT builds the lookup table for a reference image slice
func ImageLUT(s *dicom.ImageSlice) *LUT {
	return NewPatientLUT(s.Columns, s.Rows, s.PixelSpacing, s.RowDirection, s.ColumnDirection, s.Position)
}

// GridLUT builds the lookup table for a dose grid
func GridLUT(g *dicom.DoseGrid) *LUT {
	return NewPatientLUT(g.Columns, g.Rows, g.PixelSpacing, g.RowDirection, g.ColumnDirection, g.Position)
}

// IndexLUT maps reference-image pixel indices to the nearest dose-grid
// indices, aligning the two grids for per-pixel dose lookup.
type IndexLUT struct {
	Cols []int
	Rows []int
}

// NewIndexLUT resolves, for every coordinate of the image LUT, the
// nearest coordinate of the dose LUT.
func NewIndexLUT(imageLUT, doseLUT *LUT) *IndexLUT {
	idx := &IndexLUT{
		Cols: make([]int, len(imageLUT.X)),
		Rows: make([]int, len(imageLUT.Y)),
	}
	for i, x := range imageLUT.X {
		idx.Cols[i] = nearestIndex(doseLUT.X, x)
	}
	for j, y := range imageLUT.Y {
		idx.Rows[j] = nearestIndex(doseLUT.Y, y)
	}
	return idx
}

func nearestIndex(coords []float64, v float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, c := range coords {
		if d := math.Abs(c - v); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
