package labels

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// ReadPointCloud parses "inline crossline height" records, one per line.
// Fields may be separated by whitespace or commas; blank lines and lines starting
// with '#' are skipped. Line numbers written as floats are rounded.
func ReadPointCloud(r io.Reader) ([]Point, error) {
	var points []Point
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(c rune) bool {
			return c == ',' || unicode.IsSpace(c)
		})
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields, got %d", lineNo, len(fields))
		}

		var vals [3]float64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %v", lineNo, err)
			}
			vals[i] = v
		}
		points = append(points, Point{
			Inline:    int(math.Round(vals[0])),
			Crossline: int(math.Round(vals[1])),
			Height:    vals[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// LoadPointCloud reads a point cloud file.
func LoadPointCloud(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	points, err := ReadPointCloud(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// WritePointCloud writes points in the format read by ReadPointCloud.
func WritePointCloud(w io.Writer, points []Point) error {
	bw := bufio.NewWriter(w)
	for _, p := range points {
		if _, err := fmt.Fprintf(bw, "%d %d %s\n", p.Inline, p.Crossline,
			strconv.FormatFloat(p.Height, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return bw.Flush()
}
