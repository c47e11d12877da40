package rt

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// CalculateRelativeDose returns the relative dose in percent of the
// prescribed dose. With a zero prescribed dose the ratio is undefined;
// NaN is returned rather than an IEEE infinity so callers can treat the
// value as "no level" with a single comparison.
func CalculateRelativeDose(doseCGy, rxDoseCGy float64) float64 {
	if rxDoseCGy == 0 {
		return math.NaN()
	}
	return (100 / rxDoseCGy) * doseCGy
}

// CalculatePlaneThickness infers the axial slice spacing of a plane map
// as the minimum positive gap between consecutive sorted z coordinates.
// With fewer than two distinct planes the thickness is 0.
func CalculatePlaneThickness[V any](planes map[float64]V) float64 {
	zs := make([]float64, 0, len(planes))
	for z := range planes {
		zs = append(zs, z)
	}
	sort.Float64s(zs)

	thickness := math.Inf(1)
	for i := 1; i < len(zs); i++ {
		if gap := zs[i] - zs[i-1]; gap > 0 && gap < thickness {
			thickness = gap
		}
	}
	if math.IsInf(thickness, 1) {
		return 0
	}
	return thickness
}

// Interpolate resamples the curve (xs, ys) at the given positions using
// piecewise-linear segments between neighboring samples. Positions
// outside the fitted range take the boundary value. Mismatched array
// lengths or fewer than two points are a data-contract violation and
// fail fast.
func Interpolate(xs, ys, at []float64) ([]float64, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("interpolate: %d x values vs %d y values", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("interpolate: need at least two points, got %d", len(xs))
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}
	out := make([]float64, len(at))
	for i, x := range at {
		out[i] = pl.Predict(x)
	}
	return out, nil
}
