package analytics

import (
	"math"
	"sort"
)

// boundaryEpsilon absorbs float error at the underpricing boundary (0.7*100 != 70 exactly).
const boundaryEpsilon = 1e-9

func sorted(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// Quantile returns the p-quantile (0..1) using linear interpolation between
// closest ranks: h = p*(n-1). An empty sample yields 0.
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return quantileSorted(sorted(values), p)
}

func quantileSorted(xs []float64, p float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return xs[0]
	}
	if p >= 1 {
		return xs[n-1]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo+1 >= n {
		return xs[n-1]
	}
	return xs[lo] + (h-float64(lo))*(xs[lo+1]-xs[lo])
}

func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Quartiles returns p25, median and p75 in one sort.
func Quartiles(values []float64) (p25, median, p75 float64) {
	xs := sorted(values)
	return quantileSorted(xs, 0.25), quantileSorted(xs, 0.5), quantileSorted(xs, 0.75)
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationStddev divides by n, not n-1.
func PopulationStddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// CoefficientOfVariation is stddev/mean, or 0 when the mean is not positive.
func CoefficientOfVariation(values []float64) float64 {
	mean := Mean(values)
	if mean <= 0 {
		return 0
	}
	return PopulationStddev(values) / mean
}

// FilterOutliers drops values outside the Tukey fences [Q1-1.5*IQR, Q3+1.5*IQR].
// Samples under four points or with zero spread are returned unchanged.
func FilterOutliers(values []float64) []float64 {
	if len(values) < 4 {
		return values
	}
	xs := sorted(values)
	q1, q3 := quantileSorted(xs, 0.25), quantileSorted(xs, 0.75)
	iqr := q3 - q1
	if iqr <= 0 {
		return values
	}
	lower := math.Max(0, q1-1.5*iqr)
	upper := q3 + 1.5*iqr

	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lower && v <= upper {
			out = append(out, v)
		}
	}
	return out
}

// IsUnderpriced reports price <= threshold*median, boundary included.
func IsUnderpriced(price, median, threshold float64) bool {
	if median <= 0 {
		return false
	}
	return price <= threshold*median+boundaryEpsilon
}

// Discount is (median-price)/median clamped to [0,1].
func Discount(price, median float64) float64 {
	if median <= 0 {
		return 0
	}
	d := (median - price) / median
	return math.Max(0, math.Min(1, d))
}
