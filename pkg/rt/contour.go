// Package rt computes dose-volume histograms and isodose regions for
// radiotherapy treatment cases from linked plan, dose and structure
// records. The package performs no I/O: records arrive already parsed
// (pkg/dicom) and results are plain Go values.
package rt

import "math"

// Point is a 2D point in patient coordinates (mm)
type Point struct {
	X float64
	Y float64
}

// Contour is a closed planar polygon on an axial slice. Children hold
// sub-polygons delineated inside the parent; cavity and island children
// are not distinguished (see ContourMask).
type Contour struct {
	Z        float64
	Points   []Point
	Children []*Contour
}

// Area returns the enclosed area of the parent polygon (shoelace)
func (c *Contour) Area() float64 {
	n := len(c.Points)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		p, q := c.Points[i], c.Points[(i+1)%n]
		sum += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(sum) / 2
}

// flattened returns the parent vertices concatenated with all child
// vertices, the vertex list the rasterizer tests against
func (c *Contour) flattened() []Point {
	if len(c.Children) == 0 {
		return c.Points
	}
	pts := make([]Point, 0, len(c.Points)*2)
	pts = append(pts, c.Points...)
	for _, child := range c.Children {
		pts = append(pts, child.flattened()...)
	}
	return pts
}

// LargestContour returns the index and area of the contour with the
// largest enclosed area among contours sharing a plane
func LargestContour(contours []*Contour) (int, float64) {
	maxIdx, maxArea := -1, 0.0
	for i, c := range contours {
		if area := c.Area(); maxIdx < 0 || area > maxArea {
			maxIdx, maxArea = i, area
		}
	}
	return maxIdx, maxArea
}

// planeKey normalizes a z coordinate for use as a plane map key,
// absorbing sub-micrometer float noise between records
func planeKey(z float64) float64 {
	return math.Round(z*1000) / 1000
}
