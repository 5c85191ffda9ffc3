package segy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Trace is one trace to be written: its header and its samples.
type Trace struct {
	Header  TraceHeader
	Samples []float32
}

// Write creates a SEG-Y file at path holding the given traces.
// Every trace must carry exactly bin.Samples samples. Physical coordinates are
// stored with a coordinate scalar of -100, i.e. two decimals.
func Write(path string, bin BinaryHeader, traces []Trace) (err error) {
	size := bin.Format.SampleSize()
	if size == 0 {
		return fmt.Errorf("cannot write %s", bin.Format)
	}
	if bin.Samples <= 0 || bin.Samples > math.MaxUint16 {
		return fmt.Errorf("invalid samples per trace %d", bin.Samples)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(file)

	text := make([]byte, TextHeaderSize)
	for i := range text {
		text[i] = ' '
	}
	copy(text, fmt.Sprintf("C 1 SEISMICROP SYNTHETIC VOLUME, %d TRACES", len(traces)))
	if _, err := w.Write(text); err != nil {
		return err
	}

	be := binary.BigEndian
	head := make([]byte, BinaryHeaderSize)
	be.PutUint16(head[offSampleInterval-TextHeaderSize:], uint16(bin.SampleInterval))
	be.PutUint16(head[offSamplesPerTrace-TextHeaderSize:], uint16(bin.Samples))
	be.PutUint16(head[offFormat-TextHeaderSize:], uint16(bin.Format))
	be.PutUint16(head[offExtendedHeaders-TextHeaderSize:], uint16(bin.ExtendedHeaders))
	if _, err := w.Write(head); err != nil {
		return err
	}
	for i := 0; i < bin.ExtendedHeaders; i++ {
		if _, err := w.Write(text); err != nil {
			return err
		}
	}

	th := make([]byte, TraceHeaderSize)
	data := make([]byte, bin.Samples*size)
	for n, tr := range traces {
		if len(tr.Samples) != bin.Samples {
			return fmt.Errorf("trace %d has %d samples, expected %d", n, len(tr.Samples), bin.Samples)
		}
		for i := range th {
			th[i] = 0
		}
		scalar := int16(-100)
		be.PutUint16(th[offCoordScalar:], uint16(scalar))
		be.PutUint16(th[offDelay:], uint16(int16(tr.Header.Delay)))
		be.PutUint32(th[offCDPX:], uint32(int32(math.Round(tr.Header.CDPX*100))))
		be.PutUint32(th[offCDPY:], uint32(int32(math.Round(tr.Header.CDPY*100))))
		be.PutUint32(th[offInline:], uint32(int32(tr.Header.Inline)))
		be.PutUint32(th[offCrossline:], uint32(int32(tr.Header.Crossline)))
		if _, err := w.Write(th); err != nil {
			return err
		}

		encodeSamples(bin.Format, tr.Samples, data)
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return w.Flush()
}

func encodeSamples(format Format, src []float32, buf []byte) {
	be := binary.BigEndian
	switch format {
	case FormatIBMFloat:
		for i, v := range src {
			be.PutUint32(buf[i*4:], float32ToIBM(v))
		}
	case FormatIEEEFloat:
		for i, v := range src {
			be.PutUint32(buf[i*4:], math.Float32bits(v))
		}
	case FormatInt32:
		for i, v := range src {
			be.PutUint32(buf[i*4:], uint32(int32(v)))
		}
	case FormatInt16:
		for i, v := range src {
			be.PutUint16(buf[i*2:], uint16(int16(v)))
		}
	case FormatInt8:
		for i, v := range src {
			buf[i] = byte(int8(v))
		}
	}
}
