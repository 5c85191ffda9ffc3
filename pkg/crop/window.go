// Package crop cuts windows out of seismic volumes, either from SEG-Y files
// through their coordinate index or from a dense array store.
package crop

import (
	"fmt"
	"math"

	"seismicrop/internal/models"
)

// VolumeID identifies one physical volume: a file path or a dense-store name.
type VolumeID string

// Window describes one crop: the volume it is cut from, its origin in logical
// (position) coordinates and its shape.
type Window struct {
	Ref Ref

	// Origin is the absolute origin, used unless UseRatios is set.
	Origin [3]int

	// Ratios locate the origin relative to the free room of the volume:
	// origin = floor(ratio * (cube - shape)) per axis.
	Ratios    [3]float64
	UseRatios bool

	Shape models.Shape
}

// NewWindow returns a window at an absolute origin with a fresh reference.
func NewWindow(volume VolumeID, origin [3]int, shape models.Shape) Window {
	return Window{Ref: NewRef(volume), Origin: origin, Shape: shape}
}

// NewRatioWindow returns a window whose origin is given as ratios in [0, 1].
func NewRatioWindow(volume VolumeID, ratios [3]float64, shape models.Shape) Window {
	return Window{Ref: NewRef(volume), Ratios: ratios, UseRatios: true, Shape: shape}
}

// Volume returns the base volume the window is cut from.
func (w Window) Volume() VolumeID {
	return w.Ref.Volume
}

// Ranges returns the per-axis ranges of a resolved window.
func (w Window) Ranges() [3]models.Range {
	var r [3]models.Range
	for a := 0; a < 3; a++ {
		r[a] = models.Range{Start: w.Origin[a], Stop: w.Origin[a] + w.Shape[a]}
	}
	return r
}

func (w Window) String() string {
	if w.UseRatios {
		return fmt.Sprintf("%s@ratio%v+%s", w.Ref.Volume, w.Ratios, w.Shape)
	}
	return fmt.Sprintf("%s@%v+%s", w.Ref.Volume, w.Origin, w.Shape)
}

// WindowOutOfRangeError reports a window that does not fit inside its volume.
type WindowOutOfRangeError struct {
	Window Window
	Cube   models.Shape
	Axis   int
}

func (e *WindowOutOfRangeError) Error() string {
	return fmt.Sprintf("window %v exceeds volume of shape %s along axis %d", e.Window, e.Cube, e.Axis)
}

// Resolve turns ratio origins into absolute ones against the volume shape and
// checks that the window lies inside the volume. The same ratios and shapes
// always resolve to the same origin.
func (w Window) Resolve(cube models.Shape) (Window, error) {
	out := w
	if w.UseRatios {
		for a := 0; a < 3; a++ {
			r := w.Ratios[a]
			room := cube[a] - w.Shape[a]
			if r < 0 || r > 1 || math.IsNaN(r) || room < 0 {
				return w, &WindowOutOfRangeError{Window: w, Cube: cube, Axis: a}
			}
			out.Origin[a] = int(math.Floor(r * float64(room)))
		}
		out.UseRatios = false
	}
	for a := 0; a < 3; a++ {
		if w.Shape[a] <= 0 || out.Origin[a] < 0 || out.Origin[a]+w.Shape[a] > cube[a] {
			return w, &WindowOutOfRangeError{Window: out, Cube: cube, Axis: a}
		}
	}
	return out, nil
}
