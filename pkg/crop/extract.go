package crop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"seismicrop/internal/models"
	"seismicrop/internal/workers"
	"seismicrop/pkg/geometry"
	"seismicrop/pkg/logging"
	"seismicrop/pkg/segy"
)

// Source selects where crops are read from.
type Source int

const (
	// SourceSEGY reads traces from SEG-Y files through their coordinate index.
	SourceSEGY Source = iota

	// SourceDense reads inline slabs from a dense array store.
	SourceDense
)

func (s Source) String() string {
	switch s {
	case SourceSEGY:
		return "segy"
	case SourceDense:
		return "dense"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// ErrUnknownSource is returned for source names or values outside the known set.
var ErrUnknownSource = errors.New("unknown crop source")

// ParseSource converts a configuration name to a Source.
func ParseSource(name string) (Source, error) {
	switch strings.ToLower(name) {
	case "segy", "sgy":
		return SourceSEGY, nil
	case "dense", "store":
		return SourceDense, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
}

// DenseVolume is a densely populated volume addressable by inline position.
// Implementations must allow concurrent calls.
type DenseVolume interface {
	// Shape returns the logical shape of the volume.
	Shape() models.Shape

	// InlineSlab returns the crossline-by-height plane at inline position i,
	// height varying fastest. The result must not be modified.
	InlineSlab(i int) ([]float32, error)
}

// Extractor cuts batches of windows concurrently.
type Extractor struct {
	Source Source

	// Workers bounds the number of crops read at once. Zero means one per CPU.
	Workers int

	// Indexes holds the coordinate index of every SEG-Y volume.
	Indexes map[VolumeID]*geometry.Index

	// Open opens SEG-Y volumes. Nil opens the volume id as a file path.
	Open Opener

	// Dense holds the dense-store volumes.
	Dense map[VolumeID]DenseVolume
}

// Extract reads every window and returns the crops in window order. If any
// crop fails, the remaining crops still run to completion, the errors of all
// failed crops are returned together and no crops are returned.
func (e *Extractor) Extract(ctx context.Context, windows []Window) ([]*models.Array3D, error) {
	switch e.Source {
	case SourceSEGY:
		return e.extractSEGY(ctx, windows)
	case SourceDense:
		return e.extractDense(ctx, windows)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownSource, e.Source)
	}
}

// ExtractKeyed reads windows addressed by salted keys. The base volume of each
// crop is recovered from its key.
func (e *Extractor) ExtractKeyed(ctx context.Context, keyed map[string]Window) (map[string]*models.Array3D, error) {
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	windows := make([]Window, len(keys))
	for i, k := range keys {
		w := keyed[k]
		w.Ref.Volume = VolumeID(Unsalt(k))
		windows[i] = w
	}
	crops, err := e.Extract(ctx, windows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.Array3D, len(keys))
	for i, k := range keys {
		out[k] = crops[i]
	}
	return out, nil
}

func (e *Extractor) extractSEGY(ctx context.Context, windows []Window) (crops []*models.Array3D, err error) {
	pool := NewVolumePool(e.Open)
	defer func() {
		if cerr := pool.Close(); cerr != nil && err == nil {
			crops, err = nil, cerr
		}
	}()

	// one handle per distinct volume, opened before any crop starts
	for _, v := range Volumes(windows) {
		if _, ok := e.Indexes[v]; !ok {
			return nil, fmt.Errorf("no coordinate index for volume %s", v)
		}
		if _, err := pool.Acquire(v); err != nil {
			return nil, err
		}
	}

	out := make([]*models.Array3D, len(windows))
	err = workers.Run(ctx, len(windows), e.Workers, func(i int) error {
		w := windows[i]
		r, err := pool.Acquire(w.Volume())
		if err != nil {
			return err
		}
		a, err := readSEGY(e.Indexes[w.Volume()], r, w)
		if err != nil {
			return fmt.Errorf("crop %d (%v): %w", i, w, err)
		}
		out[i] = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Debugf("Extracted %d crops from %d SEG-Y volumes\n", len(out), pool.Opened())
	return out, nil
}

// readSEGY copies the window out of the traces. Positions without a trace
// stay zero.
func readSEGY(idx *geometry.Index, r segy.Reader, w Window) (*models.Array3D, error) {
	w, err := w.Resolve(idx.Shape())
	if err != nil {
		return nil, err
	}
	out := models.NewArray3D(w.Shape)
	for i := 0; i < w.Shape[0]; i++ {
		for x := 0; x < w.Shape[1]; x++ {
			trace, ok := idx.TraceAt(w.Origin[0]+i, w.Origin[1]+x)
			if !ok {
				continue
			}
			if err := r.ReadSamples(trace, w.Origin[2], out.Column(i, x)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (e *Extractor) extractDense(ctx context.Context, windows []Window) ([]*models.Array3D, error) {
	for _, v := range Volumes(windows) {
		if _, ok := e.Dense[v]; !ok {
			return nil, fmt.Errorf("no dense volume %s", v)
		}
	}

	out := make([]*models.Array3D, len(windows))
	err := workers.Run(ctx, len(windows), e.Workers, func(i int) error {
		w := windows[i]
		a, err := readDense(e.Dense[w.Volume()], w)
		if err != nil {
			return fmt.Errorf("crop %d (%v): %w", i, w, err)
		}
		out[i] = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readDense takes one inline slab per window inline and sub-slices the
// crossline and height ranges out of it.
func readDense(d DenseVolume, w Window) (*models.Array3D, error) {
	cube := d.Shape()
	w, err := w.Resolve(cube)
	if err != nil {
		return nil, err
	}
	depth := cube[2]
	out := models.NewArray3D(w.Shape)
	for i := 0; i < w.Shape[0]; i++ {
		slab, err := d.InlineSlab(w.Origin[0] + i)
		if err != nil {
			return nil, err
		}
		if len(slab) != cube[1]*depth {
			return nil, fmt.Errorf("inline slab %d holds %d samples, expected %d",
				w.Origin[0]+i, len(slab), cube[1]*depth)
		}
		for x := 0; x < w.Shape[1]; x++ {
			start := (w.Origin[1]+x)*depth + w.Origin[2]
			copy(out.Column(i, x), slab[start:start+w.Shape[2]])
		}
	}
	return out, nil
}
