// Package assembly glues predicted crops back into one volume following a
// grid layout, resolving overlaps with a reducer.
package assembly

import (
	"fmt"

	"seismicrop/internal/models"
	"seismicrop/pkg/crop"
)

// Layout places a grid of equally shaped crops over a region of a volume.
//
// Origins are relative to the predicted volume, whose origin sits at Base in
// volume coordinates. The predicted volume is padded when the region is
// smaller than one crop; FinalSlice cuts the region back out of it.
type Layout struct {
	Origins      [][3]int
	Base         [3]int
	CropShape    models.Shape
	PredictShape models.Shape
	FinalSlice   [3]models.Range
}

// Len returns the number of grid cells.
func (l *Layout) Len() int {
	return len(l.Origins)
}

// Windows returns the crop windows of every cell of the layout in cell order,
// in volume coordinates.
func (l *Layout) Windows(volume crop.VolumeID) []crop.Window {
	out := make([]crop.Window, len(l.Origins))
	for i, o := range l.Origins {
		var origin [3]int
		for a := 0; a < 3; a++ {
			origin[a] = l.Base[a] + o[a]
		}
		out[i] = crop.NewWindow(volume, origin, l.CropShape)
	}
	return out
}

// MakeGrid covers ranges of a volume of shape cube with crops of the given
// shape, consecutive crops at most stride apart on every axis. A zero-length
// range selects the whole axis. Crops are spread evenly so that the first and
// last crop of every axis touch the ends of its range. A stride larger than the
// crop shape would leave voxels outside every crop and is rejected.
func MakeGrid(cube, cropShape models.Shape, stride [3]int, ranges [3]models.Range) (*Layout, error) {
	l := &Layout{CropShape: cropShape}
	var axes [3][]int
	for a := 0; a < 3; a++ {
		r := ranges[a]
		if r.Len() == 0 && r.Start == 0 {
			r = models.Range{Start: 0, Stop: cube[a]}
		}
		if r.Start < 0 || r.Stop > cube[a] || r.Len() <= 0 {
			return nil, fmt.Errorf("grid range %d:%d outside axis %d of length %d", r.Start, r.Stop, a, cube[a])
		}
		if cropShape[a] <= 0 || cropShape[a] > cube[a] {
			return nil, fmt.Errorf("crop shape %s does not fit volume %s", cropShape, cube)
		}
		if stride[a] <= 0 {
			return nil, fmt.Errorf("grid stride must be positive, got %v", stride)
		}
		if stride[a] > cropShape[a] {
			return nil, fmt.Errorf("grid stride %v exceeds crop shape %s", stride, cropShape)
		}

		size := r.Len()
		base := r.Start
		if size < cropShape[a] {
			// pad by moving the predicted volume back into the cube
			if base+cropShape[a] > cube[a] {
				base = cube[a] - cropShape[a]
			}
			l.PredictShape[a] = cropShape[a]
		} else {
			l.PredictShape[a] = size
		}
		l.Base[a] = base
		l.FinalSlice[a] = models.Range{Start: r.Start - base, Stop: r.Start - base + size}
		axes[a] = axisOrigins(l.PredictShape[a], cropShape[a], stride[a])
	}

	for _, i := range axes[0] {
		for _, x := range axes[1] {
			for _, h := range axes[2] {
				l.Origins = append(l.Origins, [3]int{i, x, h})
			}
		}
	}
	return l, nil
}

// axisOrigins spreads crops evenly over size so that neighbours are at most
// stride apart and the last crop ends at size.
func axisOrigins(size, cropSize, stride int) []int {
	if size <= cropSize {
		return []int{0}
	}
	n := 1 + (size-cropSize+stride-1)/stride
	space := float64(size-cropSize) / float64(n-1)
	out := make([]int, n)
	for i := range out {
		out[i] = int(float64(i)*space + 0.5)
	}
	return out
}
