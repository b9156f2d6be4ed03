package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantile_LinearInterpolation(t *testing.T) {
	xs := []float64{50, 10, 40, 20, 30}

	assert.Equal(t, 30.0, Median(xs))
	assert.Equal(t, 20.0, Quantile(xs, 0.25))
	assert.Equal(t, 40.0, Quantile(xs, 0.75))
	assert.Equal(t, 10.0, Quantile(xs, 0))
	assert.Equal(t, 50.0, Quantile(xs, 1))

	p25, med, p75 := Quartiles(xs)
	assert.Equal(t, []float64{20, 30, 40}, []float64{p25, med, p75})

	// input is not reordered
	assert.Equal(t, []float64{50, 10, 40, 20, 30}, xs)
}

func TestQuantile_EvenAndTiny(t *testing.T) {
	assert.Equal(t, 25.0, Median([]float64{10, 20, 30, 40}))
	assert.Equal(t, 7.0, Median([]float64{7}))
	assert.Equal(t, 0.0, Median(nil))
	assert.InDelta(t, 17.5, Quantile([]float64{10, 20, 30, 40}, 0.25), 1e-9)
}

func TestPopulationStddev(t *testing.T) {
	assert.InDelta(t, 2.0, PopulationStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Equal(t, 0.0, PopulationStddev(nil))
	assert.Equal(t, 0.0, PopulationStddev([]float64{3}))
	assert.InDelta(t, 2.0/5.0, CoefficientOfVariation([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Equal(t, 0.0, CoefficientOfVariation(nil))
}

func TestFilterOutliers(t *testing.T) {
	got := FilterOutliers([]float64{100, 102, 98, 101, 99, 5000})
	assert.NotContains(t, got, 5000.0)
	assert.Len(t, got, 5)

	// too small to judge
	small := []float64{1, 1000, 5}
	assert.Equal(t, small, FilterOutliers(small))

	// no spread
	flat := []float64{5, 5, 5, 5, 500}
	assert.Equal(t, flat, FilterOutliers(flat))
}

func TestIsUnderpriced_InclusiveBoundary(t *testing.T) {
	tests := []struct {
		price float64
		want  bool
	}{
		{69, true},
		{70, true},
		{71, false},
		{100, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsUnderpriced(tt.price, 100, 0.7), "price %v", tt.price)
	}
	assert.False(t, IsUnderpriced(1, 0, 0.7))
}

func TestDiscount(t *testing.T) {
	assert.InDelta(t, 0.3, Discount(70, 100), 1e-9)
	assert.Equal(t, 0.0, Discount(120, 100))
	assert.Equal(t, 1.0, Discount(-5, 100))
	assert.Equal(t, 0.0, Discount(10, 0))
	assert.False(t, math.IsNaN(Discount(0, 0)))
}
