// Package mask rasterizes horizon point clouds into dense label volumes
// aligned with crop windows.
package mask

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"seismicrop/internal/models"
	"seismicrop/internal/workers"
	"seismicrop/pkg/crop"
	"seismicrop/pkg/geometry"
	"seismicrop/pkg/labels"
)

// Mode selects the kind of mask produced.
type Mode int

const (
	// ModeHorizon marks a band of Width samples around every labeled height with 1.
	ModeHorizon Mode = iota

	// ModeStratum labels every sample with the number of horizons above it.
	ModeStratum
)

func (m Mode) String() string {
	switch m {
	case ModeHorizon:
		return "horizon"
	case ModeStratum:
		return "stratum"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ErrUnknownMaskMode is returned for mode names or values outside the known set.
var ErrUnknownMaskMode = errors.New("unknown mask mode")

// ParseMode converts a configuration name to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "horizon", "horizons":
		return ModeHorizon, nil
	case "stratum", "strata":
		return ModeStratum, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMaskMode, name)
	}
}

// Rasterize builds the mask of one window. Label heights are converted to
// sample indices with the height transform of idx.
//
// In horizon mode a label at sample h marks samples
// [h - width/2, h - width/2 + width), clipped to the window, so an isolated
// label always covers width samples. Even widths put the extra sample above
// the label. Only labels inside the window's height range are drawn.
//
// In stratum mode the sample s of a column with sorted label samples
// h0 < ... < h(n-1) gets the number of labels at or above s: 0 above h0,
// k for h(k-1) <= s < h(k) and n from h(n-1) down.
//
// Columns without labels stay zero.
func Rasterize(w crop.Window, idx *geometry.Index, store *labels.Store, mode Mode, width int) (*models.Array3D, error) {
	if mode != ModeHorizon && mode != ModeStratum {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMaskMode, mode)
	}
	if mode == ModeHorizon && width < 1 {
		return nil, fmt.Errorf("horizon width must be positive, got %d", width)
	}
	w, err := w.Resolve(idx.Shape())
	if err != nil {
		return nil, err
	}

	out := models.NewArray3D(w.Shape)
	samples := make([]int, 0, store.MaxHorizons())
	for i := 0; i < w.Shape[0]; i++ {
		inline := idx.Inlines[w.Origin[0]+i]
		for x := 0; x < w.Shape[1]; x++ {
			heights := store.Lookup(inline, idx.Crosslines[w.Origin[1]+x])
			if len(heights) == 0 {
				continue
			}
			samples = samples[:0]
			for _, h := range heights {
				samples = append(samples, idx.Height.Sample(h)-w.Origin[2])
			}
			col := out.Column(i, x)
			if mode == ModeHorizon {
				drawHorizons(col, samples, width)
			} else {
				drawStrata(col, samples)
			}
		}
	}
	return out, nil
}

// drawHorizons marks bands around samples, given relative to the column start.
func drawHorizons(col []float32, samples []int, width int) {
	for _, h := range samples {
		if h < 0 || h >= len(col) {
			continue
		}
		lo := h - width/2
		hi := lo + width
		if lo < 0 {
			lo = 0
		}
		if hi > len(col) {
			hi = len(col)
		}
		for s := lo; s < hi; s++ {
			col[s] = 1
		}
	}
}

// drawStrata fills the column with stratum classes. samples are ascending.
func drawStrata(col []float32, samples []int) {
	k := 0
	for s := range col {
		for k < len(samples) && samples[k] <= s {
			k++
		}
		col[s] = float32(k)
	}
}

// Rasterizer builds the masks of a batch of windows on a bounded worker pool.
type Rasterizer struct {
	Mode  Mode
	Width int

	// Workers bounds the number of masks built at once. Zero means one per CPU.
	Workers int

	Indexes map[crop.VolumeID]*geometry.Index
	Labels  map[crop.VolumeID]*labels.Store
}

// Rasterize returns the masks of windows in window order. Windows whose volume
// has no labels get all-zero masks. On any error no masks are returned.
func (r *Rasterizer) Rasterize(ctx context.Context, windows []crop.Window) ([]*models.Array3D, error) {
	for _, v := range crop.Volumes(windows) {
		if _, ok := r.Indexes[v]; !ok {
			return nil, fmt.Errorf("no coordinate index for volume %s", v)
		}
	}
	empty := labels.Build(nil)

	out := make([]*models.Array3D, len(windows))
	err := workers.Run(ctx, len(windows), r.Workers, func(i int) error {
		w := windows[i]
		store, ok := r.Labels[w.Volume()]
		if !ok {
			store = empty
		}
		m, err := Rasterize(w, r.Indexes[w.Volume()], store, r.Mode, r.Width)
		if err != nil {
			return fmt.Errorf("mask %d (%v): %w", i, w, err)
		}
		out[i] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
