package densestore

import (
	"context"
	"fmt"

	"seismicrop/internal/workers"
	"seismicrop/pkg/geometry"
	"seismicrop/pkg/segy"
)

// Materialize copies the traces of an indexed volume into the store as a dense
// volume named name, one slab per inline position. Missing traces become zero
// columns. Slabs are read on up to limit workers.
func (s *Store) Materialize(ctx context.Context, name string, idx *geometry.Index, r segy.Reader, limit int) (*Volume, error) {
	shape := idx.Shape()
	w, err := s.NewWriter(name, shape)
	if err != nil {
		return nil, err
	}
	err = workers.Run(ctx, shape[0], limit, func(i int) error {
		slab := make([]float32, shape[1]*shape[2])
		for x := 0; x < shape[1]; x++ {
			trace, ok := idx.TraceAt(i, x)
			if !ok {
				continue
			}
			if err := r.ReadSamples(trace, 0, slab[x*shape[2]:(x+1)*shape[2]]); err != nil {
				return fmt.Errorf("inline %d: %w", idx.Inlines[i], err)
			}
		}
		return w.Put(i, slab)
	})
	if err != nil {
		w.Cancel()
		return nil, fmt.Errorf("materializing %q: %w", name, err)
	}
	if err := w.Commit(); err != nil {
		return nil, err
	}
	return &Volume{store: s, name: name, shape: shape}, nil
}

// MaterializeFile opens the SEG-Y file of idx and materializes it.
func (s *Store) MaterializeFile(ctx context.Context, name string, idx *geometry.Index, limit int) (*Volume, error) {
	f, err := segy.Open(idx.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Materialize(ctx, name, idx, f, limit)
}
