package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Axis selects one of the three volume axes.
type Axis int

const (
	AxisInline Axis = iota
	AxisCrossline
	AxisHeight
)

func (a Axis) String() string {
	switch a {
	case AxisInline:
		return "inline"
	case AxisCrossline:
		return "crossline"
	case AxisHeight:
		return "height"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// ErrDegenerateTransform is returned when the observed physical coordinates
// cannot support a monotonic fit.
var ErrDegenerateTransform = errors.New("degenerate coordinate transform")

// Linear is the map v -> Scale*v + Intercept.
type Linear struct {
	Scale     float64
	Intercept float64
}

// Apply evaluates the transform.
func (l Linear) Apply(v float64) float64 {
	return l.Scale*v + l.Intercept
}

// HeightTransform maps a stored height to a sample index:
// sample = floor((height + Shift) / Step).
type HeightTransform struct {
	Shift float64 `yaml:"shift"`
	Step  float64 `yaml:"step"`
}

// HeaderHeightTransform derives the height transform from the delay recording
// time (ms) and the sample interval (microseconds) stored in SEG-Y headers.
func HeaderHeightTransform(delayMs, intervalUs int) HeightTransform {
	step := float64(intervalUs) / 1000
	if step <= 0 {
		step = 1
	}
	return HeightTransform{Shift: float64(-delayMs), Step: step}
}

// Sample converts a height to a sample index.
func (t HeightTransform) Sample(height float64) int {
	return int(math.Floor((height + t.Shift) / t.Step))
}

// Linear returns the transform before flooring.
func (t HeightTransform) Linear() Linear {
	return Linear{Scale: 1 / t.Step, Intercept: t.Shift / t.Step}
}

// Transform returns the map from physical coordinate to line number for the
// inline (CDP Y) and crossline (CDP X) axes, fitted by least squares over every
// observed (coordinate, line) pair. For the height axis it returns the affine
// part of the configured height transform.
func (idx *Index) Transform(axis Axis) (Linear, error) {
	var pairs []pair
	switch axis {
	case AxisInline:
		pairs = idx.physInline
	case AxisCrossline:
		pairs = idx.physCrossline
	case AxisHeight:
		if idx.Height.Step == 0 {
			return Linear{}, fmt.Errorf("%w: zero height step", ErrDegenerateTransform)
		}
		return idx.Height.Linear(), nil
	default:
		return Linear{}, fmt.Errorf("unknown axis %v", axis)
	}

	if len(pairs) < 2 {
		return Linear{}, fmt.Errorf("%w: %d distinct %s coordinates", ErrDegenerateTransform, len(pairs), axis)
	}
	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		x[i] = p.phys
		y[i] = float64(p.line)
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if beta == 0 || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return Linear{}, fmt.Errorf("%w: %s slope %v", ErrDegenerateTransform, axis, beta)
	}
	return Linear{Scale: beta, Intercept: alpha}, nil
}

// Transforms returns the inline, crossline and height transforms in that order.
func (idx *Index) Transforms() ([3]Linear, error) {
	var out [3]Linear
	for i, axis := range []Axis{AxisInline, AxisCrossline, AxisHeight} {
		l, err := idx.Transform(axis)
		if err != nil {
			return out, err
		}
		out[i] = l
	}
	return out, nil
}
