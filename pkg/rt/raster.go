package rt

// Mask is a binary occupancy grid over a coordinate lookup table.
// Occupied cells carry 255, empty cells 0.
type Mask struct {
	Rows int
	Cols int
	Data []uint8
}

// At returns the mask value at (row, col)
func (m *Mask) At(row, col int) uint8 {
	return m.Data[row*m.Cols+col]
}

// Occupied counts the occupied cells
func (m *Mask) Occupied() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// ContourMask rasterizes a closed polygon contour into a binary mask
// over the given coordinate table, marking cells whose physical center
// lies strictly inside the polygon. Border points are excluded.
//
// Child sub-polygons are concatenated with the parent vertex list before
// testing. Hole semantics are not distinguished: under the even-odd rule
// a child nested inside the parent alternates the count, so its interior
// rasterizes as empty whether it delineates a cavity or an island.
func ContourMask(lut *LUT, contour *Contour) *Mask {
	cols := len(lut.X)
	rows := len(lut.Y)
	mask := &Mask{Rows: rows, Cols: cols, Data: make([]uint8, rows*cols)}

	pts := contour.flattened()
	if len(pts) < 3 {
		return mask
	}

	for i := 0; i < rows; i++ {
		y := lut.Y[i]
		for j := 0; j < cols; j++ {
			if pointStrictlyInPolygon(pts, lut.X[j], y) {
				mask.Data[i*cols+j] = 255
			}
		}
	}
	return mask
}

// pointStrictlyInPolygon is an even-odd ray cast with an explicit edge
// test so that points on the boundary report outside
func pointStrictlyInPolygon(pts []Point, x, y float64) bool {
	n := len(pts)
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := pts[i], pts[j]
		if onSegment(pj, pi, x, y) {
			return false
		}
		if (pi.Y > y) != (pj.Y > y) {
			xCross := pj.X + (y-pj.Y)/(pi.Y-pj.Y)*(pi.X-pj.X)
			if x < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// onSegment reports whether (x, y) lies on the segment a-b
func onSegment(a, b Point, x, y float64) bool {
	const eps = 1e-9
	cross := (b.X-a.X)*(y-a.Y) - (b.Y-a.Y)*(x-a.X)
	if cross > eps || cross < -eps {
		return false
	}
	if x < minf(a.X, b.X)-eps || x > maxf(a.X, b.X)+eps {
		return false
	}
	if y < minf(a.Y, b.Y)-eps || y > maxf(a.Y, b.Y)+eps {
		return false
	}
	return true
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
