// Package segy reads and writes trace-oriented SEG-Y seismic files.
//
// Files are memory mapped and every read goes through ReadAt, so one open File can be
// shared by many goroutines. Only the header fields needed for indexing are decoded.
package segy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/mmap"
)

// Layout constants of a SEG-Y rev1 file.
const (
	TextHeaderSize   = 3200
	BinaryHeaderSize = 400
	TraceHeaderSize  = 240

	// Binary header offsets, relative to the start of the file.
	offSampleInterval  = 3216
	offSamplesPerTrace = 3220
	offFormat          = 3224
	offExtendedHeaders = 3504

	// Trace header offsets, relative to the start of the trace.
	offCoordScalar = 70
	offDelay       = 108
	offCDPX        = 180
	offCDPY        = 184
	offInline      = 188
	offCrossline   = 192
)

// ErrMalformed is wrapped by every error caused by unreadable file contents.
var ErrMalformed = errors.New("malformed SEG-Y file")

// Format is the sample encoding declared in the binary header.
type Format int

const (
	FormatIBMFloat  Format = 1
	FormatInt32     Format = 2
	FormatInt16     Format = 3
	FormatIEEEFloat Format = 5
	FormatInt8      Format = 8
)

// SampleSize returns the number of bytes per sample, or 0 for unsupported formats.
func (f Format) SampleSize() int {
	switch f {
	case FormatIBMFloat, FormatInt32, FormatIEEEFloat:
		return 4
	case FormatInt16:
		return 2
	case FormatInt8:
		return 1
	default:
		return 0
	}
}

func (f Format) String() string {
	switch f {
	case FormatIBMFloat:
		return "4-byte IBM float"
	case FormatInt32:
		return "4-byte integer"
	case FormatInt16:
		return "2-byte integer"
	case FormatIEEEFloat:
		return "4-byte IEEE float"
	case FormatInt8:
		return "1-byte integer"
	default:
		return fmt.Sprintf("unknown format %d", int(f))
	}
}

// BinaryHeader holds the file-wide fields of the 400-byte binary header.
type BinaryHeader struct {
	// SampleInterval is the sample spacing in microseconds.
	SampleInterval int

	// Samples is the number of samples in every trace.
	Samples int

	Format Format

	// ExtendedHeaders is the number of 3200-byte extended textual headers.
	ExtendedHeaders int
}

// TraceHeader holds the per-trace fields used for indexing.
type TraceHeader struct {
	Inline    int
	Crossline int

	// CDPX and CDPY are physical coordinates with the coordinate scalar applied.
	CDPX float64
	CDPY float64

	// Delay is the delay recording time in milliseconds.
	Delay int
}

// Reader is the random-access view of a trace file used by the indexer and extractor.
type Reader interface {
	// NumTraces returns the number of traces in the file.
	NumTraces() int

	// Samples returns the number of samples per trace.
	Samples() int

	// Header decodes the header of trace i.
	Header(i int) (TraceHeader, error)

	// ReadSamples fills dst with samples of trace i starting at sample start.
	ReadSamples(i, start int, dst []float32) error

	Close() error
}

// File is a memory-mapped SEG-Y file. It is safe for concurrent reads.
type File struct {
	path      string
	r         *mmap.ReaderAt
	bin       BinaryHeader
	dataStart int64
	traceSize int64
	numTraces int

	closeOnce sync.Once
	closeErr  error
}

// Open memory maps the file at path and validates its layout.
func Open(path string) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	f := &File{path: path, r: r}
	if err := f.init(); err != nil {
		r.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) init() error {
	size := int64(f.r.Len())
	if size < TextHeaderSize+BinaryHeaderSize {
		return fmt.Errorf("%s: %w: only %d bytes", f.path, ErrMalformed, size)
	}

	var buf [BinaryHeaderSize]byte
	if _, err := f.r.ReadAt(buf[:], TextHeaderSize); err != nil {
		return fmt.Errorf("%s: reading binary header: %w", f.path, err)
	}
	at := func(off int) int {
		return int(int16(binary.BigEndian.Uint16(buf[off-TextHeaderSize:])))
	}
	f.bin = BinaryHeader{
		SampleInterval:  at(offSampleInterval),
		Samples:         int(binary.BigEndian.Uint16(buf[offSamplesPerTrace-TextHeaderSize:])),
		Format:          Format(at(offFormat)),
		ExtendedHeaders: at(offExtendedHeaders),
	}

	sampleSize := f.bin.Format.SampleSize()
	if sampleSize == 0 {
		return fmt.Errorf("%s: %w: unsupported %s", f.path, ErrMalformed, f.bin.Format)
	}
	if f.bin.Samples <= 0 {
		return fmt.Errorf("%s: %w: %d samples per trace", f.path, ErrMalformed, f.bin.Samples)
	}
	if f.bin.ExtendedHeaders < 0 {
		return fmt.Errorf("%s: %w: %d extended headers", f.path, ErrMalformed, f.bin.ExtendedHeaders)
	}

	f.dataStart = int64(TextHeaderSize + BinaryHeaderSize + f.bin.ExtendedHeaders*TextHeaderSize)
	f.traceSize = int64(TraceHeaderSize + f.bin.Samples*sampleSize)
	payload := size - f.dataStart
	if payload < 0 || payload%f.traceSize != 0 {
		return fmt.Errorf("%s: %w: %d trace bytes is not a multiple of trace size %d",
			f.path, ErrMalformed, payload, f.traceSize)
	}
	f.numTraces = int(payload / f.traceSize)
	return nil
}

// Path returns the file path the File was opened from.
func (f *File) Path() string { return f.path }

// BinaryHeader returns the decoded binary header.
func (f *File) BinaryHeader() BinaryHeader { return f.bin }

// NumTraces returns the number of traces.
func (f *File) NumTraces() int { return f.numTraces }

// Samples returns the number of samples per trace.
func (f *File) Samples() int { return f.bin.Samples }

// Header decodes the header of trace i.
func (f *File) Header(i int) (TraceHeader, error) {
	if i < 0 || i >= f.numTraces {
		return TraceHeader{}, fmt.Errorf("trace %d out of range [0, %d)", i, f.numTraces)
	}
	var buf [TraceHeaderSize]byte
	if _, err := f.r.ReadAt(buf[:], f.dataStart+int64(i)*f.traceSize); err != nil {
		return TraceHeader{}, fmt.Errorf("%s: reading header of trace %d: %w", f.path, i, err)
	}
	return decodeTraceHeader(buf[:]), nil
}

func decodeTraceHeader(b []byte) TraceHeader {
	i32 := func(off int) int32 { return int32(binary.BigEndian.Uint32(b[off:])) }
	scalar := float64(int16(binary.BigEndian.Uint16(b[offCoordScalar:])))
	return TraceHeader{
		Inline:    int(i32(offInline)),
		Crossline: int(i32(offCrossline)),
		CDPX:      applyScalar(i32(offCDPX), scalar),
		CDPY:      applyScalar(i32(offCDPY), scalar),
		Delay:     int(int16(binary.BigEndian.Uint16(b[offDelay:]))),
	}
}

// applyScalar follows the SEG-Y convention: positive scalars multiply,
// negative scalars divide, zero leaves the value unchanged.
func applyScalar(v int32, scalar float64) float64 {
	switch {
	case scalar > 0:
		return float64(v) * scalar
	case scalar < 0:
		return float64(v) / -scalar
	}
	return float64(v)
}

// ReadSamples fills dst with samples of trace i starting at sample start.
func (f *File) ReadSamples(i, start int, dst []float32) error {
	if i < 0 || i >= f.numTraces {
		return fmt.Errorf("trace %d out of range [0, %d)", i, f.numTraces)
	}
	if start < 0 || start+len(dst) > f.bin.Samples {
		return fmt.Errorf("samples [%d, %d) out of range [0, %d)", start, start+len(dst), f.bin.Samples)
	}
	size := f.bin.Format.SampleSize()
	buf := make([]byte, len(dst)*size)
	off := f.dataStart + int64(i)*f.traceSize + TraceHeaderSize + int64(start*size)
	if _, err := f.r.ReadAt(buf, off); err != nil {
		return fmt.Errorf("%s: reading samples of trace %d: %w", f.path, i, err)
	}
	decodeSamples(f.bin.Format, buf, dst)
	return nil
}

// Trace returns all samples of trace i.
func (f *File) Trace(i int) ([]float32, error) {
	dst := make([]float32, f.bin.Samples)
	if err := f.ReadSamples(i, 0, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// Close unmaps the file. Subsequent calls return the first result.
func (f *File) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.r.Close()
	})
	return f.closeErr
}

func decodeSamples(format Format, buf []byte, dst []float32) {
	be := binary.BigEndian
	switch format {
	case FormatIBMFloat:
		for i := range dst {
			dst[i] = ibmToFloat32(be.Uint32(buf[i*4:]))
		}
	case FormatIEEEFloat:
		for i := range dst {
			dst[i] = math.Float32frombits(be.Uint32(buf[i*4:]))
		}
	case FormatInt32:
		for i := range dst {
			dst[i] = float32(int32(be.Uint32(buf[i*4:])))
		}
	case FormatInt16:
		for i := range dst {
			dst[i] = float32(int16(be.Uint16(buf[i*2:])))
		}
	case FormatInt8:
		for i := range dst {
			dst[i] = float32(int8(buf[i]))
		}
	}
}
