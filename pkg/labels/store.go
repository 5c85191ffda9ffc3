// Package labels holds horizon point clouds keyed by trace position.
package labels

import (
	"sort"
)

// Point is one labeled point of a horizon.
type Point struct {
	Inline    int
	Crossline int
	Height    float64
}

// Key addresses one column of the volume by its line numbers.
type Key struct {
	Inline    int
	Crossline int
}

// Store maps each labeled column to its heights in ascending order, one per
// horizon present at that column. A Store is immutable once built.
type Store struct {
	heights     map[Key][]float64
	maxHorizons int
}

// Build groups points by column. Points sharing a column accumulate rather
// than overwrite each other.
func Build(points []Point) *Store {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Height < sorted[j].Height })

	s := &Store{heights: make(map[Key][]float64)}
	for _, p := range sorted {
		k := Key{p.Inline, p.Crossline}
		s.heights[k] = append(s.heights[k], p.Height)
		if n := len(s.heights[k]); n > s.maxHorizons {
			s.maxHorizons = n
		}
	}
	return s
}

// Lookup returns the ascending heights labeled at a column, or nil.
// The result must not be modified.
func (s *Store) Lookup(inline, crossline int) []float64 {
	return s.heights[Key{inline, crossline}]
}

// Len returns the number of labeled columns.
func (s *Store) Len() int {
	return len(s.heights)
}

// MaxHorizons returns the largest number of heights stored at one column.
func (s *Store) MaxHorizons() int {
	return s.maxHorizons
}

// Keys returns the labeled columns ordered by inline, then crossline.
func (s *Store) Keys() []Key {
	keys := make([]Key, 0, len(s.heights))
	for k := range s.heights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Inline != keys[j].Inline {
			return keys[i].Inline < keys[j].Inline
		}
		return keys[i].Crossline < keys[j].Crossline
	})
	return keys
}

// MapHeights returns a copy of points with fn applied to every height,
// typically the conversion from recorded time to sample index.
func MapHeights(points []Point, fn func(float64) float64) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{p.Inline, p.Crossline, fn(p.Height)}
	}
	return out
}
