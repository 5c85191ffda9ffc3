package models

import (
	"fmt"
)

// Axis numbering shared by every 3D array in the module.
const (
	AxisInline = iota
	AxisCrossline
	AxisHeight
)

// Shape is the size of a 3D array along (inline, crossline, height).
type Shape [3]int

// Size returns the number of voxels covered by the shape.
func (s Shape) Size() int {
	return s[0] * s[1] * s[2]
}

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool {
	return s[0] > 0 && s[1] > 0 && s[2] > 0
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s[0], s[1], s[2])
}

// Range is a half-open interval [Start, Stop) along one axis.
type Range struct {
	Start int
	Stop  int
}

// Len returns the number of positions in the range.
func (r Range) Len() int {
	if r.Stop < r.Start {
		return 0
	}
	return r.Stop - r.Start
}

// Array3D is a dense volume stored as a flat slice in row-major order:
// height varies fastest, then crossline, then inline.
type Array3D struct {
	// Data holds Shape.Size() samples.
	Data []float32

	// Shape is the array extent along (inline, crossline, height).
	Shape Shape
}

// NewArray3D allocates a zero-filled array of the given shape.
func NewArray3D(shape Shape) *Array3D {
	return &Array3D{
		Data:  make([]float32, shape.Size()),
		Shape: shape,
	}
}

// Index returns the flat offset of voxel (i, x, h).
func (a *Array3D) Index(i, x, h int) int {
	return (i*a.Shape[1]+x)*a.Shape[2] + h
}

// At returns voxel (i, x, h).
func (a *Array3D) At(i, x, h int) float32 {
	return a.Data[a.Index(i, x, h)]
}

// Set stores v at voxel (i, x, h).
func (a *Array3D) Set(i, x, h int, v float32) {
	a.Data[a.Index(i, x, h)] = v
}

// Column returns the height column at (i, x). The result aliases the array.
func (a *Array3D) Column(i, x int) []float32 {
	start := a.Index(i, x, 0)
	return a.Data[start : start+a.Shape[2]]
}

// Slice copies out the sub-volume selected by the three ranges.
func (a *Array3D) Slice(ranges [3]Range) (*Array3D, error) {
	for axis, r := range ranges {
		if r.Start < 0 || r.Stop > a.Shape[axis] || r.Len() == 0 {
			return nil, fmt.Errorf("range [%d, %d) invalid for axis %d of length %d",
				r.Start, r.Stop, axis, a.Shape[axis])
		}
	}

	out := NewArray3D(Shape{ranges[0].Len(), ranges[1].Len(), ranges[2].Len()})
	for i := 0; i < out.Shape[0]; i++ {
		for x := 0; x < out.Shape[1]; x++ {
			src := a.Column(ranges[0].Start+i, ranges[1].Start+x)
			copy(out.Column(i, x), src[ranges[2].Start:ranges[2].Stop])
		}
	}
	return out, nil
}

// Equal reports whether both arrays have the same shape and bitwise-equal samples.
func (a *Array3D) Equal(b *Array3D) bool {
	if a.Shape != b.Shape || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

// Float64s returns a float64 copy of the samples for use with numeric libraries.
func (a *Array3D) Float64s() []float64 {
	out := make([]float64, len(a.Data))
	for i, v := range a.Data {
		out[i] = float64(v)
	}
	return out
}
