// Package interpolation fills gaps in sparse horizon picks by ordinary kriging
// over the (inline, crossline) grid of a volume.
package interpolation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"seismicrop/internal/workers"
	"seismicrop/pkg/geometry"
	"seismicrop/pkg/labels"
	"seismicrop/pkg/logging"
)

// Variogram models supported by the implementation
type VariogramModel int

const (
	Spherical VariogramModel = iota
	Exponential
	Gaussian
)

func (m VariogramModel) String() string {
	switch m {
	case Spherical:
		return "spherical"
	case Exponential:
		return "exponential"
	case Gaussian:
		return "gaussian"
	default:
		return fmt.Sprintf("variogram(%d)", int(m))
	}
}

// ParseVariogram converts a configuration name to a VariogramModel.
func ParseVariogram(name string) (VariogramModel, error) {
	switch strings.ToLower(name) {
	case "spherical", "":
		return Spherical, nil
	case "exponential":
		return Exponential, nil
	case "gaussian":
		return Gaussian, nil
	default:
		return 0, fmt.Errorf("unknown variogram model %q", name)
	}
}

// KrigingParams holds the variogram of a kriging interpolator. Distances are
// measured in grid positions.
type KrigingParams struct {
	Range  float64
	Sill   float64
	Nugget float64
	Model  VariogramModel
}

// Sample is one known value at a grid position.
type Sample struct {
	X, Y  float64
	Value float64
}

// Compare implements the kdtree.Comparable interface
func (p Sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Sample)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Sample) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two samples
func (p Sample) Distance(c kdtree.Comparable) float64 {
	q := c.(Sample)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// samples is a collection of Sample that satisfies kdtree.Interface
type samples []Sample

func (p samples) Index(i int) kdtree.Comparable         { return p[i] }
func (p samples) Len() int                              { return len(p) }
func (p samples) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p samples) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{samples: p, Dim: d}, kdtree.MedianOfRandoms(plane{samples: p, Dim: d}, 100))
}

// plane implements sort.Interface and kdtree.SortSlicer for samples
type plane struct {
	samples
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.samples[i].X < p.samples[j].X
	case 1:
		return p.samples[i].Y < p.samples[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{samples: p.samples[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.samples[i], p.samples[j] = p.samples[j], p.samples[i]
}

// DefaultNeighbors is the number of nearest samples used per estimate.
const DefaultNeighbors = 16

// Kriging estimates values from the nearest known samples. It is safe for
// concurrent use once built.
type Kriging struct {
	params    KrigingParams
	neighbors int
	tree      *kdtree.Tree
}

// NewKriging indexes the known samples. A non-positive neighbors count uses
// DefaultNeighbors.
func NewKriging(known []Sample, params KrigingParams, neighbors int) (*Kriging, error) {
	if len(known) == 0 {
		return nil, fmt.Errorf("kriging needs at least one sample")
	}
	if params.Range <= 0 {
		return nil, fmt.Errorf("variogram range must be positive, got %v", params.Range)
	}
	if neighbors <= 0 {
		neighbors = DefaultNeighbors
	}
	pts := make(samples, len(known))
	copy(pts, known)
	return &Kriging{
		params:    params,
		neighbors: neighbors,
		tree:      kdtree.New(pts, false),
	}, nil
}

// Params returns the variogram in use.
func (k *Kriging) Params() KrigingParams {
	return k.params
}

// Estimate returns the kriged value at (x, y).
func (k *Kriging) Estimate(x, y float64) float64 {
	q := Sample{X: x, Y: y}
	keep := kdtree.NewNKeeper(k.neighbors)
	k.tree.NearestSet(keep, q)

	near := make([]Sample, 0, k.neighbors)
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		s := c.Comparable.(Sample)
		if c.Dist == 0 {
			return s.Value
		}
		near = append(near, s)
	}
	return estimate(q, near, k.params)
}

// estimate solves the ordinary kriging system for q over near. Small or
// singular systems fall back to inverse distance weighting.
func estimate(q Sample, near []Sample, params KrigingParams) float64 {
	n := len(near)
	if n <= 2 {
		return inverseDistance(q, near)
	}

	a := mat.NewDense(n+1, n+1, nil)
	b := mat.NewVecDense(n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, variogram(math.Sqrt(near[i].Distance(near[j])), params))
		}
		a.Set(i, n, 1)
		a.Set(n, i, 1)
		b.SetVec(i, variogram(math.Sqrt(q.Distance(near[i])), params))
	}
	b.SetVec(n, 1)

	var w mat.VecDense
	if err := w.SolveVec(a, b); err != nil {
		return inverseDistance(q, near)
	}
	var v float64
	for i := 0; i < n; i++ {
		v += w.AtVec(i) * near[i].Value
	}
	return v
}

func inverseDistance(q Sample, near []Sample) float64 {
	var sum, total float64
	for _, s := range near {
		d := q.Distance(s)
		if d == 0 {
			return s.Value
		}
		sum += s.Value / d
		total += 1 / d
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func variogram(h float64, params KrigingParams) float64 {
	if h == 0 {
		return 0
	}

	gamma := params.Nugget
	switch params.Model {
	case Spherical:
		if h < params.Range {
			r := h / params.Range
			gamma += params.Sill * (1.5*r - 0.5*r*r*r)
		} else {
			gamma += params.Sill
		}
	case Exponential:
		gamma += params.Sill * (1 - math.Exp(-3*h/params.Range))
	case Gaussian:
		gamma += params.Sill * (1 - math.Exp(-3*h*h/(params.Range*params.Range)))
	}
	return gamma
}

// maxValidation bounds the samples held out while fitting.
const maxValidation = 200

// Fit picks the variogram range and nugget with the lowest leave-one-out error
// over a spread subset of the samples. The sill is the sample variance.
func Fit(known []Sample, model VariogramModel, neighbors int) (KrigingParams, error) {
	if len(known) < 2 {
		return KrigingParams{}, fmt.Errorf("fitting a variogram needs at least two samples, got %d", len(known))
	}
	if neighbors <= 0 {
		neighbors = DefaultNeighbors
	}
	values := make([]float64, len(known))
	for i, s := range known {
		values[i] = s.Value
	}
	sill := stat.Variance(values, nil)
	if sill == 0 {
		sill = 1
	}

	step := 1
	if len(known) > maxValidation {
		step = len(known) / maxValidation
	}
	pts := make(samples, len(known))
	copy(pts, known)
	tree := kdtree.New(pts, false)

	best := KrigingParams{Range: 1, Sill: sill, Model: model}
	bestErr := math.Inf(1)
	for _, r := range []float64{2, 4, 8, 16, 32} {
		for _, nugget := range []float64{0, 0.1 * sill} {
			params := KrigingParams{Range: r, Sill: sill, Nugget: nugget, Model: model}
			var sq float64
			var count int
			for i := 0; i < len(known); i += step {
				q := known[i]
				keep := kdtree.NewNKeeper(neighbors + 1)
				tree.NearestSet(keep, q)
				near := make([]Sample, 0, neighbors)
				for _, c := range keep.Heap {
					if c.Comparable == nil {
						continue
					}
					s := c.Comparable.(Sample)
					if s == q {
						continue
					}
					near = append(near, s)
				}
				if len(near) == 0 {
					continue
				}
				d := estimate(q, near, params) - q.Value
				sq += d * d
				count++
			}
			if count == 0 {
				continue
			}
			if e := math.Sqrt(sq / float64(count)); e < bestErr {
				bestErr, best = e, params
			}
		}
	}
	logging.Debugf("Fitted %s variogram: range %g, sill %g, nugget %g (cross-validation RMSE %g)\n",
		model, best.Range, best.Sill, best.Nugget, bestErr)
	return best, nil
}

// FillHorizon estimates one horizon at every column of idx that store leaves
// unlabeled, using the first height of every labeled column as the known
// samples. A zero params.Range fits the variogram first. It returns the new
// points only, sorted by inline then crossline.
func FillHorizon(ctx context.Context, idx *geometry.Index, store *labels.Store, params KrigingParams, neighbors, limit int) ([]labels.Point, error) {
	var known []Sample
	for _, key := range store.Keys() {
		i, ok := idx.InlinePosition(key.Inline)
		if !ok {
			continue
		}
		x, ok := idx.CrosslinePosition(key.Crossline)
		if !ok {
			continue
		}
		known = append(known, Sample{X: float64(i), Y: float64(x), Value: store.Lookup(key.Inline, key.Crossline)[0]})
	}
	if len(known) == 0 {
		return nil, fmt.Errorf("no labeled columns inside %s", idx.Path)
	}

	if params.Range <= 0 {
		fitted, err := Fit(known, params.Model, neighbors)
		if err != nil {
			return nil, err
		}
		params = fitted
	}
	k, err := NewKriging(known, params, neighbors)
	if err != nil {
		return nil, err
	}

	rows := make([][]labels.Point, len(idx.Inlines))
	err = workers.Run(ctx, len(idx.Inlines), limit, func(i int) error {
		inline := idx.Inlines[i]
		for x, crossline := range idx.Crosslines {
			if store.Lookup(inline, crossline) != nil {
				continue
			}
			rows[i] = append(rows[i], labels.Point{
				Inline:    inline,
				Crossline: crossline,
				Height:    k.Estimate(float64(i), float64(x)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var filled []labels.Point
	for _, row := range rows {
		filled = append(filled, row...)
	}
	logging.Infof("Kriged %d of %d columns from %d picks\n", len(filled), len(idx.Inlines)*len(idx.Crosslines), len(known))
	return filled, nil
}
