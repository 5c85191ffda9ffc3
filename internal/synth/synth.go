// Package synth writes small synthetic SEG-Y volumes with predictable contents.
package synth

import (
	"seismicrop/pkg/segy"
)

// Volume describes a synthetic survey.
type Volume struct {
	Inlines    []int
	Crosslines []int
	Depth      int

	// Missing lists (inline, crossline) positions that get no trace.
	Missing map[[2]int]bool

	// Value gives the sample at (inline, crossline, sample). Nil uses Sample.
	Value func(inline, crossline, s int) float32

	// Format defaults to IEEE float.
	Format segy.Format
}

// Sample is the default sample value: unique per voxel and exact in float32.
func Sample(inline, crossline, s int) float32 {
	return float32(inline*10000 + crossline*100 + s)
}

// CDPX returns the physical X coordinate written for a crossline.
func CDPX(crossline int) float64 { return 1000 + 25*float64(crossline) }

// CDPY returns the physical Y coordinate written for an inline.
func CDPY(inline int) float64 { return 5000 + 12.5*float64(inline) }

// Delay and Interval are the header values written to every file: a -280 ms
// delay and a 4 ms sample interval.
const (
	Delay    = -280
	Interval = 4000
)

// Write stores the volume at path, traces ordered inline-major.
func Write(path string, v Volume) error {
	value := v.Value
	if value == nil {
		value = Sample
	}
	format := v.Format
	if format == 0 {
		format = segy.FormatIEEEFloat
	}

	var traces []segy.Trace
	for _, il := range v.Inlines {
		for _, xl := range v.Crosslines {
			if v.Missing[[2]int{il, xl}] {
				continue
			}
			samples := make([]float32, v.Depth)
			for s := range samples {
				samples[s] = value(il, xl, s)
			}
			traces = append(traces, segy.Trace{
				Header: segy.TraceHeader{
					Inline:    il,
					Crossline: xl,
					CDPX:      CDPX(xl),
					CDPY:      CDPY(il),
					Delay:     Delay,
				},
				Samples: samples,
			})
		}
	}
	return segy.Write(path, segy.BinaryHeader{
		SampleInterval: Interval,
		Samples:        v.Depth,
		Format:         format,
	}, traces)
}

// Lines returns n consecutive line numbers starting at first with the given step.
func Lines(first, step, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = first + i*step
	}
	return out
}
