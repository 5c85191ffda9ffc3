package labels

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Comparison summarizes the agreement of two horizon label sets.
type Comparison struct {
	// MeanError and StdError describe the absolute difference of the first
	// height at every column labeled in both sets.
	MeanError float64
	StdError  float64

	// Len1 and Len2 are the number of labeled columns in each set.
	Len1 int
	Len2 int

	// InWindow counts shared columns whose difference is within the tolerance.
	InWindow     int
	RateInWindow float64

	// Mean1 and Mean2 are the average heights over the shared columns.
	Mean1 float64
	Mean2 float64

	// NotPresent1 counts columns of the first set missing from the second,
	// NotPresent2 the reverse.
	NotPresent1 int
	NotPresent2 int
}

// Compare computes agreement metrics between two label stores.
func Compare(a, b *Store, tolerance float64) Comparison {
	c := Comparison{Len1: a.Len(), Len2: b.Len()}

	var diffs, vals1, vals2 []float64
	for _, k := range a.Keys() {
		h1 := a.heights[k]
		h2, ok := b.heights[k]
		if !ok {
			c.NotPresent1++
			continue
		}
		d := math.Abs(h2[0] - h1[0])
		diffs = append(diffs, d)
		if d <= tolerance {
			c.InWindow++
		}
		vals1 = append(vals1, h1...)
		vals2 = append(vals2, h2...)
	}
	for k := range b.heights {
		if _, ok := a.heights[k]; !ok {
			c.NotPresent2++
		}
	}

	if len(diffs) > 0 {
		c.MeanError, c.StdError = stat.PopMeanStdDev(diffs, nil)
		c.RateInWindow = float64(c.InWindow) / float64(len(diffs))
		c.Mean1 = stat.Mean(vals1, nil)
		c.Mean2 = stat.Mean(vals2, nil)
	}
	return c
}
