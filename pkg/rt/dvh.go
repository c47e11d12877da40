package rt

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// doseNotComputed marks a statistic that has not been derived yet
const doseNotComputed = -1.0

// Dvh is a cumulative dose-volume histogram in 1-unit dose bins. A
// provided differential histogram is converted on ingest, so Type is
// always CUMULATIVE once a Dvh exists.
type Dvh struct {
	ReferencedROI int
	Source        DataSource
	Type          string
	DoseUnit      string
	DoseType      string
	VolumeUnit    string
	DoseScaling   float64
	Bins          int

	// Data holds the cumulative volume per dose bin
	Data []float64

	// Plan is a non-owning back-reference to the owning plan
	Plan *Plan

	minDose  float64
	maxDose  float64
	meanDose float64
}

// NewProvidedDvh creates a DVH shell for a record-carried histogram with
// all statistics unset
func NewProvidedDvh(roi int) *Dvh {
	return &Dvh{
		ReferencedROI: roi,
		Source:        SourceProvided,
		Type:          "CUMULATIVE",
		DoseScaling:   1.0,
		minDose:       doseNotComputed,
		maxDose:       doseNotComputed,
		meanDose:      doseNotComputed,
	}
}

// SetStatistics stores record-carried min/mean/max dose values in the
// record's dose unit; doseNotComputed (-1) leaves a value to be derived
// from the curve on first access
func (d *Dvh) SetStatistics(min, max, mean float64) {
	d.minDose, d.maxDose, d.meanDose = min, max, mean
}

// unitToCGy converts a dose value in the record's dose unit to cGy
func (d *Dvh) unitToCGy() float64 {
	if strings.EqualFold(d.DoseUnit, "GY") {
		return 100
	}
	return 1
}

// binWidthCGy is the dose width of one bin in cGy
func (d *Dvh) binWidthCGy() float64 {
	w := d.DoseScaling
	if w <= 0 {
		w = 1.0
	}
	return w * d.unitToCGy()
}

// MinimumDoseCGy returns the minimum dose received by the structure:
// the first bin whose cumulative volume drops below the total volume
func (d *Dvh) MinimumDoseCGy() float64 {
	if d.minDose != doseNotComputed {
		return d.minDose * d.unitToCGy()
	}
	if len(d.Data) == 0 {
		return 0
	}
	total := d.Data[0]
	for i, v := range d.Data {
		if v < total {
			return float64(i) * d.binWidthCGy()
		}
	}
	return 0
}

// MaximumDoseCGy returns the maximum dose received by the structure:
// the highest bin still carrying volume
func (d *Dvh) MaximumDoseCGy() float64 {
	if d.maxDose != doseNotComputed {
		return d.maxDose * d.unitToCGy()
	}
	for i := len(d.Data) - 1; i >= 0; i-- {
		if d.Data[i] > 0 {
			return float64(i) * d.binWidthCGy()
		}
	}
	return 0
}

// MeanDoseCGy returns the volume-weighted mean dose, reconstructed from
// the differential form of the cumulative curve
func (d *Dvh) MeanDoseCGy() float64 {
	if d.meanDose != doseNotComputed {
		return d.meanDose * d.unitToCGy()
	}
	if len(d.Data) < 2 {
		return 0
	}
	doses := make([]float64, len(d.Data)-1)
	weights := make([]float64, len(d.Data)-1)
	for i := 0; i < len(d.Data)-1; i++ {
		doses[i] = float64(i) * d.binWidthCGy()
		weights[i] = d.Data[i] - d.Data[i+1]
		if weights[i] < 0 {
			weights[i] = 0
		}
	}
	return stat.Mean(doses, weights)
}

// ConvertDifferentialData converts an interleaved differential DVH data
// array (dose width, volume, dose width, volume, ...) into a cumulative
// histogram resampled onto 1 cGy bins. Dose widths are in Gy as stored;
// the reconstructed axis is integer cGy. An odd-length array or a
// non-positive dose width is malformed and produces no histogram.
func ConvertDifferentialData(data []float64) ([]float64, error) {
	if len(data) == 0 || len(data)%2 != 0 {
		return nil, fmt.Errorf("differential DVH data has odd length %d", len(data))
	}

	n := len(data) / 2
	dose := make([]float64, n)
	volume := make([]float64, n)
	for i := 0; i < n; i++ {
		dose[i] = data[2*i]
		volume[i] = data[2*i+1]
		// Zero or negative widths break the reconstructed dose axis
		if dose[i] <= 0 {
			return nil, fmt.Errorf("differential DVH bin %d has non-positive dose width %g", i, dose[i])
		}
	}

	// Reconstruct the dose axis from relative bin widths
	minDose := int(dose[0] * 100)
	maxDose := 0.0
	for _, w := range dose {
		maxDose += w
	}
	maxDoseBin := int(maxDose)

	maxVolume := 0.0
	for _, v := range volume {
		maxVolume += v
	}

	// Volume below the minimum dose bin has not yet dropped: plateau
	plateau := make([]float64, minDose)
	for i := range plateau {
		plateau[i] = maxVolume
	}

	// Cumulative axis: dose = running sum of widths before the sample,
	// volume = sum of all samples from the sample to the end
	cumDose := make([]float64, n)
	cumVolume := make([]float64, n)
	running := 0.0
	for k := 0; k < n; k++ {
		cumDose[k] = running * 100
		running += dose[k]
	}
	suffix := 0.0
	for k := n - 1; k >= 0; k-- {
		suffix += volume[k]
		cumVolume[k] = suffix
	}

	// Resample onto integer cGy steps between min and max
	axis := make([]float64, 0, maxDoseBin+1-minDose)
	for l := minDose; l <= maxDoseBin; l++ {
		axis = append(axis, float64(l))
	}
	resampled, err := Interpolate(cumDose, cumVolume, axis)
	if err != nil {
		return nil, err
	}

	return append(plateau, resampled...), nil
}

// DeinterleaveCumulativeData strips the filler dose values from an
// interleaved cumulative DVH data array, keeping every second value.
// Bins are assumed already 1-unit spaced. An odd-length array is
// malformed and produces no histogram.
func DeinterleaveCumulativeData(data []float64) ([]float64, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("cumulative DVH data has odd length %d", len(data))
	}
	out := make([]float64, len(data)/2)
	for i := 1; i < len(data); i += 2 {
		out[i/2] = data[i]
	}
	return out, nil
}

// cumulativeFromDifferential converts a differential histogram to its
// cumulative form: cum[i] is the sum of all differential bins at or
// above i
func cumulativeFromDifferential(diff []float64) []float64 {
	cum := make([]float64, len(diff))
	suffix := 0.0
	for i := len(diff) - 1; i >= 0; i-- {
		suffix += diff[i]
		cum[i] = suffix
	}
	return cum
}
