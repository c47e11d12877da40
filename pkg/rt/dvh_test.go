package rt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertDifferentialData(t *testing.T) {
	// Interleaved (dose width, volume) pairs
	data := []float64{
		0.01, 5,
		1.0, 10,
		1.0, 20,
		1.0, 15,
	}

	out, err := ConvertDifferentialData(data)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	// Bin 0 carries the full structure volume
	assert.InDelta(t, 50.0, out[0], 1e-9)

	// A cumulative curve never increases with dose
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i], out[i-1], "bin %d", i)
	}
}

func TestConvertDifferentialData_OddLength(t *testing.T) {
	_, err := ConvertDifferentialData([]float64{1.0, 10, 1.0})
	require.Error(t, err)

	_, err = ConvertDifferentialData(nil)
	require.Error(t, err)
}

func TestConvertDifferentialData_NonPositiveWidth(t *testing.T) {
	// A zero width stalls the reconstructed dose axis
	_, err := ConvertDifferentialData([]float64{0.01, 5, 0, 10, 1, 20})
	require.Error(t, err)

	// A negative first width would put the plateau below zero
	_, err = ConvertDifferentialData([]float64{-1, 5, 1, 10})
	require.Error(t, err)
}

func TestDeinterleaveCumulativeData(t *testing.T) {
	out, err := DeinterleaveCumulativeData([]float64{1, 500, 2, 400, 3, 100})
	require.NoError(t, err)
	assert.Equal(t, []float64{500, 400, 100}, out)
}

func TestDeinterleaveCumulativeData_OddLength(t *testing.T) {
	_, err := DeinterleaveCumulativeData([]float64{1, 500, 2})
	require.Error(t, err)
}

func TestDvhStatistics_Provided(t *testing.T) {
	dvh := NewProvidedDvh(1)
	dvh.DoseUnit = "GY"
	dvh.SetStatistics(0.5, 2.0, 1.2)

	// Record-carried values are in the record's dose unit
	assert.InDelta(t, 50.0, dvh.MinimumDoseCGy(), 1e-9)
	assert.InDelta(t, 200.0, dvh.MaximumDoseCGy(), 1e-9)
	assert.InDelta(t, 120.0, dvh.MeanDoseCGy(), 1e-9)
}

func TestDvhStatistics_FromCurve(t *testing.T) {
	dvh := NewProvidedDvh(1)
	dvh.DoseUnit = "CGY"
	dvh.Data = []float64{100, 100, 80, 30, 0}

	// Minimum: first bin where the curve drops below the total volume
	assert.InDelta(t, 2.0, dvh.MinimumDoseCGy(), 1e-9)
	// Maximum: highest bin still carrying volume
	assert.InDelta(t, 3.0, dvh.MaximumDoseCGy(), 1e-9)
	// Mean: volume-weighted over the differential form
	// diffs [0, 20, 50, 30] at doses [0, 1, 2, 3]
	assert.InDelta(t, 2.1, dvh.MeanDoseCGy(), 1e-9)
}

func TestDvhStatistics_Empty(t *testing.T) {
	dvh := NewProvidedDvh(7)
	assert.Equal(t, 0.0, dvh.MinimumDoseCGy())
	assert.Equal(t, 0.0, dvh.MaximumDoseCGy())
	assert.Equal(t, 0.0, dvh.MeanDoseCGy())
}

func TestCumulativeFromDifferential(t *testing.T) {
	cum := cumulativeFromDifferential([]float64{5, 10, 20, 15})

	assert.InDelta(t, 50.0, cum[0], 1e-9)
	assert.InDeltaSlice(t, []float64{50, 45, 35, 15}, cum, 1e-9)
	for i := 1; i < len(cum); i++ {
		assert.LessOrEqual(t, cum[i], cum[i-1])
	}
}
