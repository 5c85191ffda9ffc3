package segy

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, format Format, bin BinaryHeader, traces []Trace) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volume.sgy")
	bin.Format = format
	if err := Write(path, bin, traces); err != nil {
		t.Fatalf("Failed to write SEG-Y file: %v", err)
	}
	return path
}

func makeTraces(n, samples int) []Trace {
	traces := make([]Trace, n)
	for i := range traces {
		data := make([]float32, samples)
		for s := range data {
			data[s] = float32(i*10 + s - samples/2)
		}
		traces[i] = Trace{
			Header: TraceHeader{
				Inline:    100 + i,
				Crossline: 300 + 2*i,
				CDPX:      4500.25 + float64(i),
				CDPY:      -12.5 * float64(i+1),
				Delay:     -280,
			},
			Samples: data,
		}
	}
	return traces
}

// TestRoundTripFormats writes and reads back every supported sample format
func TestRoundTripFormats(t *testing.T) {
	traces := makeTraces(4, 20)
	for _, format := range []Format{FormatIBMFloat, FormatInt32, FormatInt16, FormatIEEEFloat, FormatInt8} {
		t.Run(format.String(), func(t *testing.T) {
			path := writeTestFile(t, format, BinaryHeader{SampleInterval: 4000, Samples: 20}, traces)
			f, err := Open(path)
			if err != nil {
				t.Fatalf("Failed to open file: %v", err)
			}
			defer f.Close()

			if f.NumTraces() != len(traces) {
				t.Fatalf("Expected %d traces, got %d", len(traces), f.NumTraces())
			}
			if f.Samples() != 20 {
				t.Errorf("Expected 20 samples, got %d", f.Samples())
			}
			if f.BinaryHeader().SampleInterval != 4000 {
				t.Errorf("Expected sample interval 4000, got %d", f.BinaryHeader().SampleInterval)
			}

			for i, want := range traces {
				h, err := f.Header(i)
				if err != nil {
					t.Fatalf("Failed to read header %d: %v", i, err)
				}
				if h.Inline != want.Header.Inline || h.Crossline != want.Header.Crossline {
					t.Errorf("Trace %d: expected (%d, %d), got (%d, %d)", i,
						want.Header.Inline, want.Header.Crossline, h.Inline, h.Crossline)
				}
				if math.Abs(h.CDPX-want.Header.CDPX) > 1e-9 || math.Abs(h.CDPY-want.Header.CDPY) > 1e-9 {
					t.Errorf("Trace %d: expected cdp (%f, %f), got (%f, %f)", i,
						want.Header.CDPX, want.Header.CDPY, h.CDPX, h.CDPY)
				}
				if h.Delay != -280 {
					t.Errorf("Trace %d: expected delay -280, got %d", i, h.Delay)
				}

				got, err := f.Trace(i)
				if err != nil {
					t.Fatalf("Failed to read trace %d: %v", i, err)
				}
				for s := range got {
					expected := want.Samples[s]
					if got[s] != expected {
						t.Fatalf("Trace %d sample %d: expected %f, got %f", i, s, expected, got[s])
					}
				}
			}
		})
	}
}

func TestReadSamplesRange(t *testing.T) {
	traces := makeTraces(2, 30)
	path := writeTestFile(t, FormatIEEEFloat, BinaryHeader{SampleInterval: 2000, Samples: 30}, traces)
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer f.Close()

	dst := make([]float32, 5)
	if err := f.ReadSamples(1, 10, dst); err != nil {
		t.Fatalf("ReadSamples failed: %v", err)
	}
	for k, v := range dst {
		if v != traces[1].Samples[10+k] {
			t.Errorf("Sample %d: expected %f, got %f", 10+k, traces[1].Samples[10+k], v)
		}
	}

	if err := f.ReadSamples(1, 28, dst); err == nil {
		t.Error("Expected error for samples past the end of the trace")
	}
	if _, err := f.Header(2); err == nil {
		t.Error("Expected error for trace index out of range")
	}
}

func TestExtendedHeaders(t *testing.T) {
	traces := makeTraces(3, 8)
	path := writeTestFile(t, FormatIEEEFloat, BinaryHeader{SampleInterval: 1000, Samples: 8, ExtendedHeaders: 2}, traces)
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer f.Close()

	h, err := f.Header(2)
	if err != nil {
		t.Fatalf("Failed to read header: %v", err)
	}
	if h.Inline != 102 {
		t.Errorf("Expected inline 102 after extended headers, got %d", h.Inline)
	}
}

func TestOpenMalformed(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.sgy")
	if err := os.WriteFile(short, make([]byte, 100), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := Open(short); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed for truncated file, got %v", err)
	}

	// valid headers followed by half a trace
	path := writeTestFile(t, FormatIEEEFloat, BinaryHeader{SampleInterval: 1000, Samples: 10}, makeTraces(1, 10))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	truncated := filepath.Join(dir, "truncated.sgy")
	if err := os.WriteFile(truncated, data[:len(data)-7], 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := Open(truncated); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed for partial trace, got %v", err)
	}

	if _, err := Open(filepath.Join(dir, "missing.sgy")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestIBMConversion(t *testing.T) {
	for _, v := range []float32{1, -1, 0.5, 118.625, -4096, 3.0e-5, 1.0e20} {
		got := ibmToFloat32(float32ToIBM(v))
		if rel := math.Abs(float64(got-v) / float64(v)); rel > 2e-6 {
			t.Errorf("IBM round trip of %g gave %g", v, got)
		}
	}
	// -118.625 from the IBM documentation example
	if got := ibmToFloat32(0xC276A000); got != -118.625 {
		t.Errorf("Expected -118.625, got %g", got)
	}
	if ibmToFloat32(0x80000000) != 0 {
		t.Error("Expected negative zero to decode as zero")
	}
}

// TestIBMInfinity verifies that infinities saturate to the largest IBM magnitude
func TestIBMInfinity(t *testing.T) {
	if got := float32ToIBM(float32(math.Inf(1))); got != 0x7fffffff {
		t.Errorf("Expected 0x7fffffff for +Inf, got %#x", got)
	}
	if got := float32ToIBM(float32(math.Inf(-1))); got != 0xffffffff {
		t.Errorf("Expected 0xffffffff for -Inf, got %#x", got)
	}
	if got := float32ToIBM(math.MaxFloat32); got>>31 != 0 || got == 0 {
		t.Errorf("Expected a positive encoding of the largest float32, got %#x", got)
	}
}
