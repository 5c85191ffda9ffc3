package assembly

import (
	"errors"
	"fmt"
	"strings"

	"seismicrop/internal/models"
	"seismicrop/pkg/logging"
)

// ReducerKind enumerates the supported overlap reductions.
type ReducerKind int

const (
	// MeanNonzero averages the nonzero contributions; zero counts as absent.
	MeanNonzero ReducerKind = iota

	// Mean averages every contribution of the crops covering a voxel.
	Mean

	// Max keeps the largest contribution.
	Max

	// Custom applies a caller function to all contributions of a voxel.
	Custom
)

func (k ReducerKind) String() string {
	switch k {
	case MeanNonzero:
		return "mean-nonzero"
	case Mean:
		return "mean"
	case Max:
		return "max"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("reducer(%d)", int(k))
	}
}

// Reducer resolves overlapping contributions to one voxel value.
type Reducer struct {
	Kind ReducerKind

	// Func is used by Custom. It receives the contributions in cell order and
	// is never called for untouched voxels.
	Func func([]float32) float32
}

// CustomReducer wraps fn as a reducer.
func CustomReducer(fn func([]float32) float32) Reducer {
	return Reducer{Kind: Custom, Func: fn}
}

func (r Reducer) String() string { return r.Kind.String() }

// ErrUnknownReducer is returned for reducer names or values outside the known set.
var ErrUnknownReducer = errors.New("unknown reducer")

// ParseReducer converts a configuration name to a Reducer. Custom reducers
// have no name and are built with CustomReducer.
func ParseReducer(name string) (Reducer, error) {
	switch strings.ToLower(name) {
	case "mean-nonzero", "mean_nonzero", "nonzero":
		return Reducer{Kind: MeanNonzero}, nil
	case "mean", "avg":
		return Reducer{Kind: Mean}, nil
	case "max", "maximum":
		return Reducer{Kind: Max}, nil
	default:
		return Reducer{}, fmt.Errorf("%w: %q", ErrUnknownReducer, name)
	}
}

// IncompleteGridError reports aggregation before every grid cell has a crop.
type IncompleteGridError struct {
	Expected int
	Received int
}

func (e *IncompleteGridError) Error() string {
	return fmt.Sprintf("incomplete grid: received %d of %d crops", e.Received, e.Expected)
}

// Aggregate folds crops into the predicted volume of layout, crop i placed at
// layout.Origins[i], and returns the FinalSlice of the result. Voxels no crop
// covers are 0. Folding is sequential; the result does not depend on crop
// order for the built-in reducers.
func Aggregate(layout *Layout, crops []*models.Array3D, reducer Reducer) (*models.Array3D, error) {
	received := 0
	for _, c := range crops {
		if c != nil {
			received++
		}
	}
	if len(crops) != len(layout.Origins) || received != len(layout.Origins) {
		return nil, &IncompleteGridError{Expected: len(layout.Origins), Received: received}
	}
	for i, c := range crops {
		if c.Shape != layout.CropShape {
			return nil, fmt.Errorf("crop %d has shape %s, grid expects %s", i, c.Shape, layout.CropShape)
		}
		for a := 0; a < 3; a++ {
			if o := layout.Origins[i][a]; o < 0 || o+c.Shape[a] > layout.PredictShape[a] {
				return nil, fmt.Errorf("grid cell %d at %v exceeds predicted shape %s", i, layout.Origins[i], layout.PredictShape)
			}
		}
	}

	var acc accumulator
	switch reducer.Kind {
	case MeanNonzero:
		acc = newMeanAccumulator(layout.PredictShape, true)
	case Mean:
		acc = newMeanAccumulator(layout.PredictShape, false)
	case Max:
		acc = newMaxAccumulator(layout.PredictShape)
	case Custom:
		if reducer.Func == nil {
			return nil, fmt.Errorf("%w: custom reducer without function", ErrUnknownReducer)
		}
		acc = newListAccumulator(layout.PredictShape, reducer.Func)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownReducer, reducer.Kind)
	}

	dst := models.NewArray3D(layout.PredictShape)
	for i, c := range crops {
		o := layout.Origins[i]
		for ci := 0; ci < c.Shape[0]; ci++ {
			for cx := 0; cx < c.Shape[1]; cx++ {
				src := c.Column(ci, cx)
				base := dst.Index(o[0]+ci, o[1]+cx, o[2])
				for h, v := range src {
					acc.add(base+h, v)
				}
			}
		}
	}
	acc.finish(dst.Data)

	out, err := dst.Slice(layout.FinalSlice)
	if err != nil {
		return nil, err
	}
	logging.Debugf("Aggregated %d crops with %s into %s\n", len(crops), reducer, out.Shape)
	return out, nil
}

// accumulator reduces contributions voxel by voxel.
type accumulator interface {
	add(voxel int, v float32)
	finish(dst []float32)
}

type meanAccumulator struct {
	sum     []float64
	count   []int32
	nonzero bool
}

func newMeanAccumulator(shape models.Shape, nonzero bool) *meanAccumulator {
	return &meanAccumulator{
		sum:     make([]float64, shape.Size()),
		count:   make([]int32, shape.Size()),
		nonzero: nonzero,
	}
}

func (m *meanAccumulator) add(voxel int, v float32) {
	if m.nonzero && v == 0 {
		return
	}
	m.sum[voxel] += float64(v)
	m.count[voxel]++
}

func (m *meanAccumulator) finish(dst []float32) {
	for i, n := range m.count {
		if n > 0 {
			dst[i] = float32(m.sum[i] / float64(n))
		}
	}
}

type maxAccumulator struct {
	max     []float32
	touched []bool
}

func newMaxAccumulator(shape models.Shape) *maxAccumulator {
	return &maxAccumulator{
		max:     make([]float32, shape.Size()),
		touched: make([]bool, shape.Size()),
	}
}

func (m *maxAccumulator) add(voxel int, v float32) {
	if !m.touched[voxel] || v > m.max[voxel] {
		m.max[voxel] = v
		m.touched[voxel] = true
	}
}

func (m *maxAccumulator) finish(dst []float32) {
	copy(dst, m.max)
}

type listAccumulator struct {
	values [][]float32
	fn     func([]float32) float32
}

func newListAccumulator(shape models.Shape, fn func([]float32) float32) *listAccumulator {
	return &listAccumulator{values: make([][]float32, shape.Size()), fn: fn}
}

func (l *listAccumulator) add(voxel int, v float32) {
	l.values[voxel] = append(l.values[voxel], v)
}

func (l *listAccumulator) finish(dst []float32) {
	for i, vs := range l.values {
		if len(vs) > 0 {
			dst[i] = l.fn(vs)
		}
	}
}
