package crop

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"seismicrop/internal/models"
	"seismicrop/internal/synth"
	"seismicrop/pkg/geometry"
	"seismicrop/pkg/segy"
)

func writeVolume(t *testing.T, name string, v synth.Volume) (VolumeID, *geometry.Index) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := synth.Write(path, v); err != nil {
		t.Fatalf("Failed to write synthetic volume: %v", err)
	}
	idx, err := geometry.BuildFile(path, geometry.Options{})
	if err != nil {
		t.Fatalf("Failed to index %s: %v", name, err)
	}
	return VolumeID(path), idx
}

// memDense is a dense volume held in memory.
type memDense struct {
	a *models.Array3D
}

func (m memDense) Shape() models.Shape { return m.a.Shape }

func (m memDense) InlineSlab(i int) ([]float32, error) {
	n := m.a.Shape[1] * m.a.Shape[2]
	return m.a.Data[i*n : (i+1)*n], nil
}

func denseFromIndex(t *testing.T, v VolumeID, idx *geometry.Index) memDense {
	t.Helper()
	f, err := segy.Open(string(v))
	if err != nil {
		t.Fatalf("Failed to open %s: %v", v, err)
	}
	defer f.Close()
	a := models.NewArray3D(idx.Shape())
	for i := range idx.Inlines {
		for x := range idx.Crosslines {
			trace, ok := idx.TraceAt(i, x)
			if !ok {
				continue
			}
			if err := f.ReadSamples(trace, 0, a.Column(i, x)); err != nil {
				t.Fatalf("Failed to read trace %d: %v", trace, err)
			}
		}
	}
	return memDense{a: a}
}

// countingOpener records how often each volume is opened.
type countingOpener struct {
	mu     sync.Mutex
	counts map[VolumeID]int
}

func (c *countingOpener) open(v VolumeID) (segy.Reader, error) {
	c.mu.Lock()
	if c.counts == nil {
		c.counts = make(map[VolumeID]int)
	}
	c.counts[v]++
	c.mu.Unlock()
	return OpenSEGY(v)
}

func TestExtractSparse(t *testing.T) {
	v, idx := writeVolume(t, "sparse.sgy", synth.Volume{
		Inlines:    []int{1, 2, 3},
		Crosslines: []int{10, 20},
		Depth:      50,
		Missing:    map[[2]int]bool{{2, 20}: true},
	})
	ex := &Extractor{Indexes: map[VolumeID]*geometry.Index{v: idx}}

	crops, err := ex.Extract(context.Background(), []Window{
		NewWindow(v, [3]int{0, 0, 0}, models.Shape{3, 2, 10}),
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	c := crops[0]
	if c.Shape != (models.Shape{3, 2, 10}) {
		t.Fatalf("Expected crop shape 3x2x10, got %s", c.Shape)
	}
	lines := [][2]int{{1, 10}, {1, 20}, {2, 10}, {2, 20}, {3, 10}, {3, 20}}
	for _, l := range lines {
		i, x := l[0]-1, l[1]/10-1
		for s := 0; s < 10; s++ {
			want := synth.Sample(l[0], l[1], s)
			if l == [2]int{2, 20} {
				want = 0
			}
			if got := c.At(i, x, s); got != want {
				t.Errorf("Crop at (%d, %d, %d) = %v, expected %v", l[0], l[1], s, got, want)
			}
		}
	}
}

// TestExtractOffset checks that a window offset along every axis reads the
// matching traces and samples
func TestExtractOffset(t *testing.T) {
	v, idx := writeVolume(t, "cube.sgy", synth.Volume{
		Inlines:    synth.Lines(100, 2, 6),
		Crosslines: synth.Lines(300, 1, 5),
		Depth:      40,
	})
	ex := &Extractor{Indexes: map[VolumeID]*geometry.Index{v: idx}, Workers: 2}

	crops, err := ex.Extract(context.Background(), []Window{
		NewWindow(v, [3]int{2, 1, 7}, models.Shape{3, 4, 12}),
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	c := crops[0]
	for i := 0; i < 3; i++ {
		for x := 0; x < 4; x++ {
			for s := 0; s < 12; s++ {
				want := synth.Sample(100+2*(i+2), 300+x+1, s+7)
				if got := c.At(i, x, s); got != want {
					t.Fatalf("Crop at (%d, %d, %d) = %v, expected %v", i, x, s, got, want)
				}
			}
		}
	}
}

// TestOneHandlePerVolume verifies that a batch opens every distinct volume once
func TestOneHandlePerVolume(t *testing.T) {
	va, ia := writeVolume(t, "a.sgy", synth.Volume{Inlines: synth.Lines(1, 1, 8), Crosslines: synth.Lines(1, 1, 8), Depth: 16})
	vb, ib := writeVolume(t, "b.sgy", synth.Volume{Inlines: synth.Lines(1, 1, 8), Crosslines: synth.Lines(1, 1, 8), Depth: 16})

	var windows []Window
	for i := 0; i < 20; i++ {
		v := va
		if i%3 == 0 {
			v = vb
		}
		windows = append(windows, NewRatioWindow(v, [3]float64{float64(i) / 20, 0.5, 0.25}, models.Shape{4, 4, 8}))
	}

	opener := &countingOpener{}
	ex := &Extractor{
		Indexes: map[VolumeID]*geometry.Index{va: ia, vb: ib},
		Open:    opener.open,
		Workers: 8,
	}
	crops, err := ex.Extract(context.Background(), windows)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(crops) != len(windows) {
		t.Fatalf("Expected %d crops, got %d", len(windows), len(crops))
	}
	if len(opener.counts) != 2 {
		t.Errorf("Expected 2 volumes opened, got %d", len(opener.counts))
	}
	for v, n := range opener.counts {
		if n != 1 {
			t.Errorf("Volume %s opened %d times", v, n)
		}
	}
}

func TestExtractOutOfRange(t *testing.T) {
	v, idx := writeVolume(t, "small.sgy", synth.Volume{Inlines: synth.Lines(1, 1, 4), Crosslines: synth.Lines(1, 1, 4), Depth: 10})
	ex := &Extractor{Indexes: map[VolumeID]*geometry.Index{v: idx}}

	_, err := ex.Extract(context.Background(), []Window{
		NewWindow(v, [3]int{0, 0, 0}, models.Shape{2, 2, 2}),
		NewWindow(v, [3]int{3, 0, 0}, models.Shape{2, 2, 2}),
	})
	var rangeErr *WindowOutOfRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("Expected WindowOutOfRangeError, got %v", err)
	}
	if rangeErr.Axis != 0 {
		t.Errorf("Expected inline axis to overflow, got axis %d", rangeErr.Axis)
	}
}

func TestExtractMissingIndex(t *testing.T) {
	ex := &Extractor{}
	_, err := ex.Extract(context.Background(), []Window{NewWindow("nowhere.sgy", [3]int{}, models.Shape{1, 1, 1})})
	if err == nil {
		t.Fatal("Expected error for a volume without index")
	}
}

// TestSourcesAgree compares binary and dense extraction of the same windows
func TestSourcesAgree(t *testing.T) {
	v, idx := writeVolume(t, "cube.sgy", synth.Volume{
		Inlines:    synth.Lines(10, 1, 7),
		Crosslines: synth.Lines(40, 2, 9),
		Depth:      32,
		Missing:    map[[2]int]bool{{12, 46}: true, {15, 40}: true},
	})
	windows := []Window{
		NewWindow(v, [3]int{0, 0, 0}, models.Shape{7, 9, 32}),
		NewWindow(v, [3]int{1, 2, 5}, models.Shape{4, 4, 10}),
		NewRatioWindow(v, [3]float64{0.3, 0.9, 1}, models.Shape{3, 5, 8}),
	}

	segyEx := &Extractor{Source: SourceSEGY, Indexes: map[VolumeID]*geometry.Index{v: idx}}
	denseEx := &Extractor{Source: SourceDense, Dense: map[VolumeID]DenseVolume{v: denseFromIndex(t, v, idx)}}

	a, err := segyEx.Extract(context.Background(), windows)
	if err != nil {
		t.Fatalf("SEG-Y extraction failed: %v", err)
	}
	b, err := denseEx.Extract(context.Background(), windows)
	if err != nil {
		t.Fatalf("Dense extraction failed: %v", err)
	}
	for i := range windows {
		if !a[i].Equal(b[i]) {
			t.Errorf("Window %d differs between sources", i)
		}
	}
}

func TestRatioResolution(t *testing.T) {
	cube := models.Shape{100, 80, 60}
	w := NewRatioWindow("v", [3]float64{0.5, 1, 0}, models.Shape{10, 20, 30})
	r, err := w.Resolve(cube)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if r.Origin != [3]int{45, 60, 0} {
		t.Errorf("Expected origin [45 60 0], got %v", r.Origin)
	}
	again, _ := w.Resolve(cube)
	if again.Origin != r.Origin {
		t.Errorf("Resolution not deterministic: %v vs %v", again.Origin, r.Origin)
	}

	if _, err := NewRatioWindow("v", [3]float64{1.5, 0, 0}, models.Shape{1, 1, 1}).Resolve(cube); err == nil {
		t.Error("Expected error for ratio above 1")
	}
	if _, err := NewRatioWindow("v", [3]float64{0, 0, 0}, models.Shape{101, 1, 1}).Resolve(cube); err == nil {
		t.Error("Expected error for a window larger than the volume")
	}
}

func TestSaltRoundTrip(t *testing.T) {
	base := "/data/survey/f3.sgy"
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := Salt(base)
		if err != nil {
			t.Fatalf("Salt failed: %v", err)
		}
		if !strings.HasPrefix(key, base+SaltSeparator) || len(key) != len(base)+len(SaltSeparator)+SaltLength {
			t.Fatalf("Unexpected salted key %q", key)
		}
		if got := Unsalt(key); got != base {
			t.Errorf("Unsalt(%q) = %q, expected %q", key, got, base)
		}
		seen[key] = true
	}
	if len(seen) < 99 {
		t.Errorf("Expected unique salted keys, got %d distinct of 100", len(seen))
	}

	if _, err := Salt("a___b"); !errors.Is(err, ErrSeparatorInKey) {
		t.Errorf("Expected ErrSeparatorInKey, got %v", err)
	}
	if got := Unsalt("plain.sgy"); got != "plain.sgy" {
		t.Errorf("Unsalt changed an unsalted key: %q", got)
	}
	if got := Unsalt("x___abcdefg"); got != "x___abcdefg" {
		t.Errorf("Unsalt stripped a lowercase suffix: %q", got)
	}
}

// TestSaltSuffixUniform verifies that one pass over every byte value yields
// each suffix character equally often
func TestSaltSuffixUniform(t *testing.T) {
	var b int
	next := func() byte {
		v := byte(b)
		b++
		return v
	}
	counts := make(map[byte]int)
	// 252 of the 256 byte values are accepted: 36 suffixes of 7
	for i := 0; i < 36; i++ {
		for _, c := range saltSuffix(next) {
			counts[c]++
		}
	}
	if b != 252 {
		t.Errorf("Expected 252 bytes drawn, got %d", b)
	}
	if len(counts) != len(saltAlphabet) {
		t.Fatalf("Expected %d distinct characters, got %d", len(saltAlphabet), len(counts))
	}
	for c, n := range counts {
		if n != SaltLength {
			t.Errorf("Character %q drawn %d times, expected %d", c, n, SaltLength)
		}
	}

	// the bytes that would skew the distribution are never used
	calls := 0
	got := saltSuffix(func() byte {
		calls++
		if calls <= 100 {
			return 255
		}
		return 0
	})
	if string(got) != "AAAAAAA" || calls != 107 {
		t.Errorf("Expected rejected bytes to be skipped, got %q after %d draws", got, calls)
	}
}

func TestExtractKeyed(t *testing.T) {
	v, idx := writeVolume(t, "cube.sgy", synth.Volume{Inlines: synth.Lines(1, 1, 5), Crosslines: synth.Lines(1, 1, 5), Depth: 8})
	windows := []Window{
		NewWindow(v, [3]int{0, 0, 0}, models.Shape{2, 2, 2}),
		NewWindow(v, [3]int{3, 3, 6}, models.Shape{2, 2, 2}),
	}
	keyed, err := Keyed(windows)
	if err != nil {
		t.Fatalf("Keyed failed: %v", err)
	}
	if len(keyed) != 2 {
		t.Fatalf("Expected 2 unique keys, got %d", len(keyed))
	}
	ex := &Extractor{Indexes: map[VolumeID]*geometry.Index{v: idx}}
	crops, err := ex.ExtractKeyed(context.Background(), keyed)
	if err != nil {
		t.Fatalf("ExtractKeyed failed: %v", err)
	}
	for k, w := range keyed {
		c, ok := crops[k]
		if !ok {
			t.Fatalf("No crop for key %s", k)
		}
		want := synth.Sample(1+w.Origin[0], 1+w.Origin[1], w.Origin[2])
		if got := c.At(0, 0, 0); got != want {
			t.Errorf("Crop %s starts with %v, expected %v", k, got, want)
		}
	}
}

func TestRefSet(t *testing.T) {
	s := NewRefSet()
	a := s.Add("a.sgy")
	b := s.Add("a.sgy")
	if a.ID == b.ID {
		t.Fatal("Expected distinct crop ids for the same volume")
	}
	if v, ok := s.Volume(b.ID); !ok || v != "a.sgy" {
		t.Errorf("Expected a.sgy for %s, got %q", b.ID, v)
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 references, got %d", s.Len())
	}
}

func TestPoolClose(t *testing.T) {
	v, _ := writeVolume(t, "cube.sgy", synth.Volume{Inlines: []int{1}, Crosslines: []int{1}, Depth: 4})
	p := NewVolumePool(nil)
	if _, err := p.Acquire(v); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := p.Acquire(v); err != nil {
		t.Fatalf("Second Acquire failed: %v", err)
	}
	if p.Opened() != 1 {
		t.Errorf("Expected 1 open handle, got %d", p.Opened())
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if _, err := p.Acquire(v); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
}

func TestParseSource(t *testing.T) {
	if s, err := ParseSource("SEGY"); err != nil || s != SourceSEGY {
		t.Errorf("ParseSource(SEGY) = %v, %v", s, err)
	}
	if s, err := ParseSource("dense"); err != nil || s != SourceDense {
		t.Errorf("ParseSource(dense) = %v, %v", s, err)
	}
	if _, err := ParseSource("hdf5"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Expected ErrUnknownSource, got %v", err)
	}
}
