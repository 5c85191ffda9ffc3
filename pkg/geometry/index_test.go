package geometry

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"seismicrop/internal/models"
	"seismicrop/internal/synth"
	"seismicrop/pkg/segy"
)

func buildSynthetic(t *testing.T, v synth.Volume, opts Options) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cube.sgy")
	if err := synth.Write(path, v); err != nil {
		t.Fatalf("Failed to write synthetic volume: %v", err)
	}
	idx, err := BuildFile(path, opts)
	if err != nil {
		t.Fatalf("Failed to build index: %v", err)
	}
	return idx
}

func sparseVolume() synth.Volume {
	return synth.Volume{
		Inlines:    []int{1, 2, 3},
		Crosslines: []int{10, 20},
		Depth:      50,
		Missing:    map[[2]int]bool{{2, 20}: true},
	}
}

// TestBuildLookup verifies that every indexed trace has a matching header
func TestBuildLookup(t *testing.T) {
	v := sparseVolume()
	idx := buildSynthetic(t, v, Options{})

	if idx.NumTraces != 5 {
		t.Fatalf("Expected 5 traces, got %d", idx.NumTraces)
	}
	if idx.Shape() != (models.Shape{3, 2, 50}) {
		t.Errorf("Expected shape 3x2x50, got %s", idx.Shape())
	}
	if idx.InlineOffset != 1 || idx.CrosslineOffset != 10 {
		t.Errorf("Expected offsets (1, 10), got (%d, %d)", idx.InlineOffset, idx.CrosslineOffset)
	}
	if n := len(idx.Inlines) * len(idx.Crosslines); n < idx.NumTraces {
		t.Errorf("Grid of %d positions smaller than %d traces", n, idx.NumTraces)
	}

	f, err := segy.Open(idx.Path)
	if err != nil {
		t.Fatalf("Failed to reopen volume: %v", err)
	}
	defer f.Close()

	for _, il := range v.Inlines {
		for _, xl := range v.Crosslines {
			trace, ok := idx.TraceOf(il, xl)
			if v.Missing[[2]int{il, xl}] {
				if ok {
					t.Errorf("Expected no trace at (%d, %d), got %d", il, xl, trace)
				}
				continue
			}
			if !ok {
				t.Fatalf("No trace indexed at (%d, %d)", il, xl)
			}
			h, err := f.Header(trace)
			if err != nil {
				t.Fatalf("Failed to read header: %v", err)
			}
			if h.Inline != il || h.Crossline != xl {
				t.Errorf("Trace %d header is (%d, %d), expected (%d, %d)", trace, h.Inline, h.Crossline, il, xl)
			}
		}
	}

	if _, ok := idx.TraceAt(1, 1); ok {
		t.Error("Expected missing trace at logical position (1, 1)")
	}
	if tr, ok := idx.TraceAt(2, 0); !ok || tr != 3 {
		t.Errorf("Expected trace 3 at logical position (2, 0), got %d (%v)", tr, ok)
	}
	if p, ok := idx.CrosslinePosition(20); !ok || p != 1 {
		t.Errorf("Expected crossline 20 at position 1, got %d (%v)", p, ok)
	}
}

func TestValueRange(t *testing.T) {
	idx := buildSynthetic(t, sparseVolume(), Options{})
	if idx.ValueMin != synth.Sample(1, 10, 0) {
		t.Errorf("Expected min %g, got %g", synth.Sample(1, 10, 0), idx.ValueMin)
	}
	if idx.ValueMax != synth.Sample(3, 20, 49) {
		t.Errorf("Expected max %g, got %g", synth.Sample(3, 20, 49), idx.ValueMax)
	}

	a := models.NewArray3D(models.Shape{1, 1, 3})
	copy(a.Data, []float32{idx.ValueMin, (idx.ValueMin + idx.ValueMax) / 2, idx.ValueMax})
	orig := append([]float32(nil), a.Data...)
	idx.Normalize(a)
	if a.Data[0] != 0 || a.Data[2] != 1 {
		t.Errorf("Expected normalized range [0, 1], got %v", a.Data)
	}
	idx.Denormalize(a)
	for i := range orig {
		if math.Abs(float64(a.Data[i]-orig[i])) > 1e-2 {
			t.Errorf("Denormalize(Normalize(x)) = %g, expected %g", a.Data[i], orig[i])
		}
	}
}

func TestTransforms(t *testing.T) {
	v := synth.Volume{
		Inlines:    synth.Lines(100, 2, 5),
		Crosslines: synth.Lines(400, 1, 4),
		Depth:      10,
	}
	idx := buildSynthetic(t, v, Options{})

	inline, err := idx.Transform(AxisInline)
	if err != nil {
		t.Fatalf("Inline transform failed: %v", err)
	}
	for _, il := range v.Inlines {
		if got := inline.Apply(synth.CDPY(il)); math.Abs(got-float64(il)) > 1e-6 {
			t.Errorf("Inline transform of %f gave %f, expected %d", synth.CDPY(il), got, il)
		}
	}

	crossline, err := idx.Transform(AxisCrossline)
	if err != nil {
		t.Fatalf("Crossline transform failed: %v", err)
	}
	if crossline.Scale <= 0 {
		t.Errorf("Expected increasing crossline transform, got scale %f", crossline.Scale)
	}
	for _, xl := range v.Crosslines {
		if got := crossline.Apply(synth.CDPX(xl)); math.Abs(got-float64(xl)) > 1e-6 {
			t.Errorf("Crossline transform of %f gave %f, expected %d", synth.CDPX(xl), got, xl)
		}
	}

	// headers carry a -280 ms delay and a 4 ms interval
	if idx.Height != (HeightTransform{Shift: 280, Step: 4}) {
		t.Errorf("Expected height transform {280 4}, got %+v", idx.Height)
	}
	if s := idx.Height.Sample(20); s != 75 {
		t.Errorf("Expected height 20 at sample 75, got %d", s)
	}
	all, err := idx.Transforms()
	if err != nil {
		t.Fatalf("Transforms failed: %v", err)
	}
	if got := all[2].Apply(20); got != 75 {
		t.Errorf("Expected affine height transform 75, got %f", got)
	}
}

func TestHeightOverride(t *testing.T) {
	override := &HeightTransform{Shift: 0, Step: 2}
	idx := buildSynthetic(t, sparseVolume(), Options{Height: override})
	if idx.Height != *override {
		t.Errorf("Expected configured height transform %+v, got %+v", *override, idx.Height)
	}
	if s := idx.Height.Sample(9); s != 4 {
		t.Errorf("Expected sample 4, got %d", s)
	}
}

func TestHeightOverrideStep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.sgy")
	if err := synth.Write(path, sparseVolume()); err != nil {
		t.Fatalf("Failed to write survey: %v", err)
	}
	for _, step := range []float64{0, -2, math.NaN()} {
		_, err := BuildFile(path, Options{Height: &HeightTransform{Shift: 10, Step: step}})
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Errorf("Step %v: expected FormatError, got %v", step, err)
			continue
		}
		if fe.Trace != -1 {
			t.Errorf("Step %v: expected a whole-file error, got trace %d", step, fe.Trace)
		}
	}
}

func TestDegenerateTransform(t *testing.T) {
	v := synth.Volume{Inlines: []int{5, 6}, Crosslines: []int{7}, Depth: 4}
	idx := buildSynthetic(t, v, Options{})
	if _, err := idx.Transform(AxisCrossline); !errors.Is(err, ErrDegenerateTransform) {
		t.Errorf("Expected ErrDegenerateTransform for a single crossline, got %v", err)
	}
	if _, err := idx.Transform(AxisInline); err != nil {
		t.Errorf("Unexpected inline transform error: %v", err)
	}
}

func TestFormatErrors(t *testing.T) {
	dir := t.TempDir()

	var fe *FormatError
	if _, err := BuildFile(filepath.Join(dir, "absent.sgy"), Options{}); !errors.As(err, &fe) {
		t.Errorf("Expected FormatError for missing file, got %v", err)
	}

	path := filepath.Join(dir, "untagged.sgy")
	traces := []segy.Trace{
		{Header: segy.TraceHeader{Inline: 1, Crossline: 1}, Samples: make([]float32, 3)},
		{Header: segy.TraceHeader{Inline: 1, Crossline: 0}, Samples: make([]float32, 3)},
	}
	if err := segy.Write(path, segy.BinaryHeader{SampleInterval: 1000, Samples: 3, Format: segy.FormatIEEEFloat}, traces); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	_, err := BuildFile(path, Options{})
	if !errors.As(err, &fe) {
		t.Fatalf("Expected FormatError for untagged trace, got %v", err)
	}
	if fe.Trace != 1 {
		t.Errorf("Expected failure at trace 1, got %d", fe.Trace)
	}
}
