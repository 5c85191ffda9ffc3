// Package pipeline runs the crop workflow end to end on one volume: index,
// labels, grid, crops, masks, prediction and reassembly, then checks the
// reassembled volume against the region it covers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"seismicrop/internal/models"
	"seismicrop/internal/workers"
	"seismicrop/pkg/assembly"
	"seismicrop/pkg/crop"
	"seismicrop/pkg/densestore"
	"seismicrop/pkg/geometry"
	"seismicrop/pkg/interpolation"
	"seismicrop/pkg/labels"
	"seismicrop/pkg/logging"
	"seismicrop/pkg/mask"
	"seismicrop/pkg/visualization"
)

// Predictor turns one input crop into a predicted crop of the same shape.
type Predictor func(*models.Array3D) (*models.Array3D, error)

// Identity predicts every crop as a copy of itself.
func Identity(c *models.Array3D) (*models.Array3D, error) {
	out := models.NewArray3D(c.Shape)
	copy(out.Data, c.Data)
	return out, nil
}

// Params holds the pipeline configuration.
type Params struct {
	// Volume is the SEG-Y file to process.
	Volume string

	// Labels is an optional point cloud of horizons over Volume.
	Labels string

	// FillLabels krigs one horizon into every column Labels leaves unpicked.
	// A zero Kriging.Range fits the variogram to the picks.
	FillLabels       bool
	Kriging          interpolation.KrigingParams
	KrigingNeighbors int

	Geometry geometry.Options

	// Source selects whether crops come from the SEG-Y file or its dense copy.
	Source     crop.Source
	DenseStore densestore.Options

	CropShape models.Shape
	Stride    [3]int

	// Ranges restricts the grid to a region of the volume. Zero ranges select
	// whole axes.
	Ranges [3]models.Range

	// Workers bounds the worker pools. Zero means one per CPU.
	Workers int

	MaskMode  mask.Mode
	MaskWidth int

	Reducer assembly.Reducer

	// Normalize scales crops to [0, 1] before prediction and back after it.
	Normalize bool

	// Predict is applied to every crop. Nil uses Identity.
	Predict Predictor

	// SaveIntermediaryResults writes slice images of crops, masks and the
	// reassembled volume to IntermediaryDir.
	SaveIntermediaryResults bool
	IntermediaryDir         string
}

// Runner executes the pipeline for one set of parameters.
type Runner struct {
	params *Params

	index  *geometry.Index
	labels *labels.Store
	layout *assembly.Layout

	crops  []*models.Array3D
	masks  []*models.Array3D
	volume *models.Array3D

	metrics ValidationMetrics
}

// NewRunner creates a runner for params.
func NewRunner(params *Params) *Runner {
	return &Runner{params: params}
}

// Process runs every step. On error the runner keeps the results of the steps
// that completed.
func (r *Runner) Process(ctx context.Context) error {
	p := r.params
	start := time.Now()

	if p.SaveIntermediaryResults {
		if err := os.MkdirAll(p.IntermediaryDir, 0755); err != nil {
			return fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	logging.Infof("Step 1: Indexing %s...\n", p.Volume)
	idx, err := geometry.BuildFile(p.Volume, p.Geometry)
	if err != nil {
		return fmt.Errorf("failed to index volume: %w", err)
	}
	r.index = idx

	if p.Labels != "" {
		logging.Infof("Step 2: Loading labels from %s...\n", p.Labels)
		points, err := labels.LoadPointCloud(p.Labels)
		if err != nil {
			return fmt.Errorf("failed to load labels: %w", err)
		}
		r.labels = labels.Build(points)
		if p.FillLabels {
			filled, err := interpolation.FillHorizon(ctx, idx, r.labels, p.Kriging, p.KrigingNeighbors, p.Workers)
			if err != nil {
				return fmt.Errorf("failed to fill labels: %w", err)
			}
			points = append(points, filled...)
			r.labels = labels.Build(points)
		}
		logging.Infof("Loaded %d points over %d columns, up to %d horizons per column\n",
			len(points), r.labels.Len(), r.labels.MaxHorizons())
	}

	logging.Infof("Step 3: Building grid of %s crops...\n", p.CropShape)
	layout, err := assembly.MakeGrid(idx.Shape(), p.CropShape, p.Stride, p.Ranges)
	if err != nil {
		return fmt.Errorf("failed to build grid: %w", err)
	}
	r.layout = layout
	logging.Infof("Grid has %d cells over predicted shape %s\n", layout.Len(), layout.PredictShape)

	id := crop.VolumeID(p.Volume)
	ex, closeSource, err := r.extractor(ctx, id)
	if err != nil {
		return err
	}
	defer closeSource()

	logging.Infof("Step 4: Extracting crops from %s source...\n", p.Source)
	windows := layout.Windows(id)
	crops, err := ex.Extract(ctx, windows)
	if err != nil {
		return fmt.Errorf("failed to extract crops: %w", err)
	}
	if p.Normalize {
		for _, c := range crops {
			idx.Normalize(c)
		}
	}
	r.crops = crops

	if r.labels != nil {
		logging.Infof("Step 5: Rasterizing %s masks...\n", p.MaskMode)
		rast := &mask.Rasterizer{
			Mode:    p.MaskMode,
			Width:   p.MaskWidth,
			Workers: p.Workers,
			Indexes: map[crop.VolumeID]*geometry.Index{id: idx},
			Labels:  map[crop.VolumeID]*labels.Store{id: r.labels},
		}
		masks, err := rast.Rasterize(ctx, windows)
		if err != nil {
			return fmt.Errorf("failed to rasterize masks: %w", err)
		}
		r.masks = masks
	}

	logging.Infof("Step 6: Predicting and reassembling with %s...\n", p.Reducer)
	volume, err := r.reassemble(ctx)
	if err != nil {
		return err
	}
	r.volume = volume

	logging.Infof("Step 7: Calculating validation metrics...\n")
	reference, err := r.reference(ctx, ex, id)
	if err != nil {
		return fmt.Errorf("failed to extract reference region: %w", err)
	}
	r.metrics = calculateMetrics(reference.Float64s(), volume.Float64s())

	if p.SaveIntermediaryResults {
		r.saveIntermediaryResults()
	}
	logging.Infof("Pipeline finished in %s\n", time.Since(start))
	return nil
}

// extractor prepares the crop source. The returned function releases it.
func (r *Runner) extractor(ctx context.Context, id crop.VolumeID) (*crop.Extractor, func(), error) {
	p := r.params
	ex := &crop.Extractor{Source: p.Source, Workers: p.Workers}
	switch p.Source {
	case crop.SourceSEGY:
		ex.Indexes = map[crop.VolumeID]*geometry.Index{id: r.index}
		return ex, func() {}, nil
	case crop.SourceDense:
		store, err := densestore.Open(p.DenseStore)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if err := store.Close(); err != nil {
				logging.Warningf("Closing %s: %v\n", store, err)
			}
		}
		name := filepath.Base(p.Volume)
		vol, err := store.Volume(name)
		if errors.Is(err, densestore.ErrVolumeNotFound) {
			logging.Infof("Materializing %s into %s...\n", p.Volume, store)
			vol, err = store.MaterializeFile(ctx, name, r.index, p.Workers)
		}
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("failed to prepare dense volume: %w", err)
		}
		if vol.Shape() != r.index.Shape() {
			release()
			return nil, nil, fmt.Errorf("dense volume %q has shape %s, index has %s", name, vol.Shape(), r.index.Shape())
		}
		ex.Dense = map[crop.VolumeID]crop.DenseVolume{id: vol}
		return ex, release, nil
	default:
		return nil, nil, fmt.Errorf("%w: %v", crop.ErrUnknownSource, p.Source)
	}
}

// reassemble predicts every crop concurrently and aggregates the predictions
// once all of them have arrived.
func (r *Runner) reassemble(ctx context.Context) (*models.Array3D, error) {
	predict := r.params.Predict
	if predict == nil {
		predict = Identity
	}
	job := assembly.NewJob(r.layout)
	err := workers.Run(ctx, len(r.crops), r.params.Workers, func(i int) error {
		pred, err := predict(r.crops[i])
		if err != nil {
			return fmt.Errorf("predicting crop %d: %w", i, err)
		}
		if r.params.Normalize {
			r.index.Denormalize(pred)
		}
		return job.Add(i, pred)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to predict crops: %w", err)
	}
	logging.Debugf("Job %s received %d of %d crops\n", job.ID, job.Received(), r.layout.Len())
	volume, err := job.Aggregate(r.params.Reducer)
	if err != nil {
		return nil, fmt.Errorf("failed to reassemble volume: %w", err)
	}
	return volume, nil
}

// reference extracts the region the reassembled volume covers.
func (r *Runner) reference(ctx context.Context, ex *crop.Extractor, id crop.VolumeID) (*models.Array3D, error) {
	l := r.layout
	var origin [3]int
	var shape models.Shape
	for a := 0; a < 3; a++ {
		origin[a] = l.Base[a] + l.FinalSlice[a].Start
		shape[a] = l.FinalSlice[a].Len()
	}
	out, err := ex.Extract(ctx, []crop.Window{crop.NewWindow(id, origin, shape)})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *Runner) saveIntermediaryResults() {
	dir := r.params.IntermediaryDir
	save := func(stage string, a *models.Array3D) {
		viewer := visualization.NewViewer(a)
		if err := viewer.SaveSliceSequence("inline", filepath.Join(dir, stage)); err != nil {
			logging.Warningf("Failed to save %s slices: %v\n", stage, err)
		}
	}
	if len(r.crops) > 0 {
		save("01_first_crop", r.crops[0])
	}
	if len(r.masks) > 0 {
		save("02_first_mask", r.masks[0])
	}
	if r.volume != nil {
		save("03_reassembled_volume", r.volume)
	}
}

// GetMetrics returns the metrics of the last run.
func (r *Runner) GetMetrics() ValidationMetrics {
	return r.metrics
}

// GetVolume returns the reassembled volume.
func (r *Runner) GetVolume() *models.Array3D {
	return r.volume
}

// GetMasks returns the masks of every grid cell, or nil without labels.
func (r *Runner) GetMasks() []*models.Array3D {
	return r.masks
}

// GetIndex returns the coordinate index of the volume.
func (r *Runner) GetIndex() *geometry.Index {
	return r.index
}

// GetLayout returns the grid layout.
func (r *Runner) GetLayout() *assembly.Layout {
	return r.layout
}
