// Package geometry builds the coordinate index of a seismic volume: the lookup from
// (inline, crossline) to trace number, the observed line values, the sample value
// range and the transforms from physical coordinates to line numbers.
package geometry

import (
	"fmt"
	"math"
	"sort"

	"seismicrop/internal/models"
	"seismicrop/pkg/logging"
	"seismicrop/pkg/segy"
)

// FormatError reports a volume that cannot be opened or indexed.
type FormatError struct {
	Path  string
	Trace int // -1 when the failure is not tied to a trace
	Err   error
}

func (e *FormatError) Error() string {
	if e.Trace >= 0 {
		return fmt.Sprintf("format error in %s at trace %d: %v", e.Path, e.Trace, e.Err)
	}
	return fmt.Sprintf("format error in %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// LineKey addresses one trace position by its line numbers.
type LineKey struct {
	Inline    int
	Crossline int
}

// Options control index construction.
type Options struct {
	// Height overrides the height transform derived from the file headers.
	Height *HeightTransform
}

// Index is the read-only coordinate index of one volume.
type Index struct {
	// Path is the source the index was built from.
	Path string

	// Inlines and Crosslines are the sorted distinct line numbers observed.
	Inlines    []int
	Crosslines []int

	// Depth is the number of samples in every trace.
	Depth int

	// NumTraces is the number of traces scanned.
	NumTraces int

	// ValueMin and ValueMax are the extrema over all samples.
	ValueMin float32
	ValueMax float32

	// CDPXToCrossline and CDPYToInline map physical coordinates to line numbers.
	CDPXToCrossline map[float64]int
	CDPYToInline    map[float64]int

	// InlineOffset and CrosslineOffset are the smallest observed line numbers.
	InlineOffset    int
	CrosslineOffset int

	// Height maps stored label heights to sample indices.
	Height HeightTransform

	traceOf       map[LineKey]int
	inlinePos     map[int]int
	crosslinePos  map[int]int
	physInline    []pair
	physCrossline []pair
}

type pair struct {
	phys float64
	line int
}

// BuildFile opens the SEG-Y file at path, indexes it and closes it.
func BuildFile(path string, opts Options) (*Index, error) {
	f, err := segy.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Trace: -1, Err: err}
	}
	defer f.Close()

	idx, err := Build(f, opts)
	if err != nil {
		return nil, err
	}
	logging.Infof("Indexed %s: %d traces, shape %s, values [%g, %g]\n",
		path, idx.NumTraces, idx.Shape(), idx.ValueMin, idx.ValueMax)
	return idx, nil
}

// Build indexes r with a single pass over every trace.
func Build(r segy.Reader, opts Options) (*Index, error) {
	path := ""
	if p, ok := r.(interface{ Path() string }); ok {
		path = p.Path()
	}
	if opts.Height != nil && !(opts.Height.Step > 0) {
		return nil, &FormatError{Path: path, Trace: -1, Err: fmt.Errorf("height step must be positive, got %v", opts.Height.Step)}
	}
	n := r.NumTraces()
	if n == 0 {
		return nil, &FormatError{Path: path, Trace: -1, Err: fmt.Errorf("volume holds no traces")}
	}

	idx := &Index{
		Path:            path,
		Depth:           r.Samples(),
		NumTraces:       n,
		ValueMin:        float32(math.Inf(1)),
		ValueMax:        float32(math.Inf(-1)),
		CDPXToCrossline: make(map[float64]int),
		CDPYToInline:    make(map[float64]int),
		traceOf:         make(map[LineKey]int, n),
		Height:          HeightTransform{Shift: 0, Step: 1},
	}
	if opts.Height != nil {
		idx.Height = *opts.Height
	}

	delay := 0
	inlines := make(map[int]struct{})
	crosslines := make(map[int]struct{})
	samples := make([]float32, idx.Depth)
	for i := 0; i < n; i++ {
		h, err := r.Header(i)
		if err != nil {
			return nil, &FormatError{Path: path, Trace: i, Err: err}
		}
		if h.Inline == 0 || h.Crossline == 0 {
			return nil, &FormatError{Path: path, Trace: i,
				Err: fmt.Errorf("missing inline/crossline tag (%d, %d)", h.Inline, h.Crossline)}
		}

		if i == 0 {
			delay = h.Delay
		}
		idx.traceOf[LineKey{h.Inline, h.Crossline}] = i
		inlines[h.Inline] = struct{}{}
		crosslines[h.Crossline] = struct{}{}
		idx.CDPYToInline[h.CDPY] = h.Inline
		idx.CDPXToCrossline[h.CDPX] = h.Crossline

		if err := r.ReadSamples(i, 0, samples); err != nil {
			return nil, &FormatError{Path: path, Trace: i, Err: err}
		}
		for _, v := range samples {
			if v < idx.ValueMin {
				idx.ValueMin = v
			}
			if v > idx.ValueMax {
				idx.ValueMax = v
			}
		}
	}

	if b, ok := r.(interface{ BinaryHeader() segy.BinaryHeader }); ok && opts.Height == nil {
		idx.Height = HeaderHeightTransform(delay, b.BinaryHeader().SampleInterval)
	}

	idx.Inlines = sortedKeys(inlines)
	idx.Crosslines = sortedKeys(crosslines)
	idx.InlineOffset = idx.Inlines[0]
	idx.CrosslineOffset = idx.Crosslines[0]
	idx.inlinePos = positions(idx.Inlines)
	idx.crosslinePos = positions(idx.Crosslines)
	idx.physInline = sortedPairs(idx.CDPYToInline)
	idx.physCrossline = sortedPairs(idx.CDPXToCrossline)
	return idx, nil
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func positions(lines []int) map[int]int {
	pos := make(map[int]int, len(lines))
	for i, l := range lines {
		pos[l] = i
	}
	return pos
}

func sortedPairs(m map[float64]int) []pair {
	out := make([]pair, 0, len(m))
	for phys, line := range m {
		out = append(out, pair{phys, line})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].phys < out[j].phys })
	return out
}

// Shape returns the logical shape (inlines, crosslines, depth).
func (idx *Index) Shape() models.Shape {
	return models.Shape{len(idx.Inlines), len(idx.Crosslines), idx.Depth}
}

// TraceOf returns the trace number stored at the given line numbers.
func (idx *Index) TraceOf(inline, crossline int) (int, bool) {
	t, ok := idx.traceOf[LineKey{inline, crossline}]
	return t, ok
}

// TraceAt returns the trace number at logical position (i, x), i.e. the
// i-th observed inline and the x-th observed crossline.
func (idx *Index) TraceAt(i, x int) (int, bool) {
	if i < 0 || i >= len(idx.Inlines) || x < 0 || x >= len(idx.Crosslines) {
		return 0, false
	}
	return idx.TraceOf(idx.Inlines[i], idx.Crosslines[x])
}

// InlinePosition returns the logical position of an inline number.
func (idx *Index) InlinePosition(inline int) (int, bool) {
	p, ok := idx.inlinePos[inline]
	return p, ok
}

// CrosslinePosition returns the logical position of a crossline number.
func (idx *Index) CrosslinePosition(crossline int) (int, bool) {
	p, ok := idx.crosslinePos[crossline]
	return p, ok
}

// Normalize maps samples in place onto [0, 1] using the indexed value range.
func (idx *Index) Normalize(a *models.Array3D) {
	span := idx.ValueMax - idx.ValueMin
	if span == 0 {
		for i := range a.Data {
			a.Data[i] = 0
		}
		return
	}
	for i, v := range a.Data {
		a.Data[i] = (v - idx.ValueMin) / span
	}
}

// Denormalize reverses Normalize in place.
func (idx *Index) Denormalize(a *models.Array3D) {
	span := idx.ValueMax - idx.ValueMin
	for i, v := range a.Data {
		a.Data[i] = v*span + idx.ValueMin
	}
}
