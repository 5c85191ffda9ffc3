package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"seismicrop/internal/models"
)

// rampVolume fills a volume whose value grows with height only
func rampVolume(shape models.Shape) *models.Array3D {
	a := models.NewArray3D(shape)
	for i := 0; i < shape[0]; i++ {
		for x := 0; x < shape[1]; x++ {
			for h := 0; h < shape[2]; h++ {
				a.Set(i, x, h, float32(h))
			}
		}
	}
	return a
}

// TestNewViewer verifies that the viewer picks up the value range
func TestNewViewer(t *testing.T) {
	viewer := NewViewer(rampVolume(models.Shape{4, 5, 6}))
	if viewer.min != 0 || viewer.max != 5 {
		t.Errorf("Expected value range [0, 5], got [%v, %v]", viewer.min, viewer.max)
	}

	fixed := NewViewerWithRange(rampVolume(models.Shape{1, 1, 1}), -1, 1)
	if fixed.min != -1 || fixed.max != 1 {
		t.Errorf("Expected value range [-1, 1], got [%v, %v]", fixed.min, fixed.max)
	}
}

// TestExtractSlice verifies plane sizes and gray levels along every axis
func TestExtractSlice(t *testing.T) {
	shape := models.Shape{4, 5, 6}
	viewer := NewViewer(rampVolume(shape))

	cases := []struct {
		axis          string
		width, height int
	}{
		{"inline", 5, 6},
		{"crossline", 4, 6},
		{"height", 5, 4},
	}
	for _, c := range cases {
		img, err := viewer.ExtractSlice(c.axis, 0)
		if err != nil {
			t.Fatalf("Failed to extract %s slice: %v", c.axis, err)
		}
		b := img.Bounds()
		if b.Dx() != c.width || b.Dy() != c.height {
			t.Errorf("Expected %s slice of %dx%d, got %dx%d", c.axis, c.width, c.height, b.Dx(), b.Dy())
		}
	}

	// inline planes grow brighter downwards
	img, err := viewer.ExtractSlice("i", 2)
	if err != nil {
		t.Fatalf("Failed to extract inline slice: %v", err)
	}
	gray := img.(*image.Gray16)
	if top, bottom := gray.Gray16At(0, 0).Y, gray.Gray16At(0, 5).Y; top != 0 || bottom != 65535 {
		t.Errorf("Expected gray levels 0 and 65535, got %d and %d", top, bottom)
	}

	if _, err := viewer.ExtractSlice("height", 6); err == nil {
		t.Error("Expected error for position beyond the volume")
	}
	if _, err := viewer.ExtractSlice("w", 0); err == nil {
		t.Error("Expected error for an invalid axis")
	}
}

func TestExtractRegion(t *testing.T) {
	viewer := NewViewer(rampVolume(models.Shape{4, 5, 6}))
	region, err := viewer.ExtractRegion([3]int{1, 1, 2}, models.Shape{2, 3, 4})
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}
	if region.Shape != (models.Shape{2, 3, 4}) {
		t.Errorf("Expected region 2x3x4, got %s", region.Shape)
	}
	if got := region.At(0, 0, 0); got != 2 {
		t.Errorf("Expected first value 2, got %v", got)
	}

	if _, err := viewer.ExtractRegion([3]int{3, 0, 0}, models.Shape{2, 1, 1}); err == nil {
		t.Error("Expected error for a region beyond the volume")
	}
	if _, err := viewer.ExtractRegion([3]int{0, 0, 0}, models.Shape{0, 1, 1}); err == nil {
		t.Error("Expected error for an empty region")
	}
}

// TestSaveSliceSequence verifies that one file is written per plane
func TestSaveSliceSequence(t *testing.T) {
	viewer := NewViewer(rampVolume(models.Shape{3, 2, 4}))
	dir := t.TempDir()

	for axis, n := range map[string]int{"inline": 3, "crossline": 2, "height": 4} {
		axisDir := filepath.Join(dir, axis)
		if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
			t.Fatalf("Failed to save %s slices: %v", axis, err)
		}
		for pos := 0; pos < n; pos++ {
			name := filepath.Join(axisDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
			if _, err := os.Stat(name); err != nil {
				t.Errorf("Expected slice file %s: %v", name, err)
			}
		}
	}
}
