// Package visualization exports planes of seismic crops, masks and
// reassembled volumes as grayscale images for inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"

	"seismicrop/internal/models"
)

// Viewer renders planes of one volume. Values are scaled linearly from the
// value range to the full gray range.
type Viewer struct {
	volume *models.Array3D

	min float32
	max float32
}

// NewViewer creates a viewer scaled to the value range of the volume.
func NewViewer(volume *models.Array3D) *Viewer {
	v := &Viewer{volume: volume}
	if len(volume.Data) > 0 {
		v.min, v.max = volume.Data[0], volume.Data[0]
		for _, x := range volume.Data {
			if x < v.min {
				v.min = x
			}
			if x > v.max {
				v.max = x
			}
		}
	}
	return v
}

// NewViewerWithRange creates a viewer with a fixed value range, such as the
// range recorded in a coordinate index.
func NewViewerWithRange(volume *models.Array3D, min, max float32) *Viewer {
	return &Viewer{volume: volume, min: min, max: max}
}

func (v *Viewer) gray(x float32) color.Gray16 {
	if v.max <= v.min {
		return color.Gray16{}
	}
	scaled := float64(x-v.min) / float64(v.max-v.min)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, scaled*65535)))}
}

var axisNames = [3]string{"inline", "crossline", "height"}

func parseAxis(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "i", "inline", "iline":
		return models.AxisInline, nil
	case "x", "crossline", "xline":
		return models.AxisCrossline, nil
	case "h", "height", "depth":
		return models.AxisHeight, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be inline, crossline or height)", axis)
	}
}

// ExtractSlice renders the plane at position along axis. Inline and crossline
// planes put height on the vertical image axis.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	a, err := parseAxis(axis)
	if err != nil {
		return nil, err
	}
	shape := v.volume.Shape
	if position < 0 || position >= shape[a] {
		return nil, fmt.Errorf("position %d outside axis %s of length %d", position, axis, shape[a])
	}

	var img *image.Gray16
	switch a {
	case models.AxisInline:
		img = image.NewGray16(image.Rect(0, 0, shape[1], shape[2]))
		for x := 0; x < shape[1]; x++ {
			for h, val := range v.volume.Column(position, x) {
				img.SetGray16(x, h, v.gray(val))
			}
		}
	case models.AxisCrossline:
		img = image.NewGray16(image.Rect(0, 0, shape[0], shape[2]))
		for i := 0; i < shape[0]; i++ {
			for h, val := range v.volume.Column(i, position) {
				img.SetGray16(i, h, v.gray(val))
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, shape[1], shape[0]))
		for i := 0; i < shape[0]; i++ {
			for x := 0; x < shape[1]; x++ {
				img.SetGray16(x, i, v.gray(v.volume.At(i, x, position)))
			}
		}
	}
	return img, nil
}

// ExtractRegion copies a subregion of the volume.
func (v *Viewer) ExtractRegion(start [3]int, size models.Shape) (*models.Array3D, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	var ranges [3]models.Range
	for a := 0; a < 3; a++ {
		ranges[a] = models.Range{Start: start[a], Stop: start[a] + size[a]}
	}
	return v.volume.Slice(ranges)
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every plane along axis.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	a, err := parseAxis(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.volume.Shape[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axisNames[a], pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
