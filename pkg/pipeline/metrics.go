package pipeline

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ValidationMetrics compare a reassembled volume with the region it was cut from.
type ValidationMetrics struct {
	// RMSE is the root mean square voxel difference.
	RMSE float64

	// MaxAbsError is the largest absolute voxel difference.
	MaxAbsError float64

	// Correlation is the Pearson correlation of the voxel values.
	Correlation float64

	// SSIM is the global structural similarity over the value range of the original.
	SSIM float64

	// EntropyDiff is the absolute difference of the 256-bin Shannon entropies.
	EntropyDiff float64

	// Voxels is the number of voxels compared.
	Voxels int
}

func calculateMetrics(original, reassembled []float64) ValidationMetrics {
	m := ValidationMetrics{Voxels: len(original)}
	if len(original) != len(reassembled) || len(original) == 0 {
		return m
	}
	m.RMSE, m.MaxAbsError = calculateErrors(original, reassembled)
	m.Correlation = calculateCorrelation(original, reassembled)
	m.SSIM = calculateSSIM(original, reassembled)
	m.EntropyDiff = math.Abs(calculateEntropy(original) - calculateEntropy(reassembled))
	return m
}

func calculateErrors(original, reassembled []float64) (rmse, maxAbs float64) {
	var mse float64
	for i := range original {
		diff := original[i] - reassembled[i]
		mse += diff * diff
		maxAbs = math.Max(maxAbs, math.Abs(diff))
	}
	return math.Sqrt(mse / float64(len(original))), maxAbs
}

// calculateCorrelation returns 1 for identical constant inputs, where the
// Pearson coefficient is undefined.
func calculateCorrelation(original, reassembled []float64) float64 {
	if stat.Variance(original, nil) == 0 || stat.Variance(reassembled, nil) == 0 {
		if _, maxAbs := calculateErrors(original, reassembled); maxAbs == 0 {
			return 1
		}
		return 0
	}
	return stat.Correlation(original, reassembled, nil)
}

func calculateSSIM(original, reassembled []float64) float64 {
	const k1 = 0.01
	const k2 = 0.03

	lo, hi := findMinMax(original)
	l := hi - lo
	if l == 0 {
		l = 1
	}
	c1 := (k1 * l) * (k1 * l)
	c2 := (k2 * l) * (k2 * l)

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reassembled, nil)
	sigmaX := stat.Variance(original, nil)
	sigmaY := stat.Variance(reassembled, nil)
	sigmaXY := stat.Covariance(original, reassembled, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den > 0 {
		return num / den
	}
	return 0
}

func calculateEntropy(data []float64) float64 {
	lo, hi := findMinMax(data)
	if hi <= lo {
		return 0
	}

	const numBins = 256
	hist := make([]float64, numBins)
	for _, v := range data {
		bin := int((v - lo) / (hi - lo) * (numBins - 1))
		hist[bin]++
	}
	var entropy float64
	for _, n := range hist {
		if n > 0 {
			p := n / float64(len(data))
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

func findMinMax(data []float64) (lo, hi float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
