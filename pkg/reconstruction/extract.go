package reconstruction

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"dicomprojector/pkg/series"
)

// sampleType selects the narrowest raw sample able to hold [outMin, outMax]
func sampleType(outMin, outMax float64) string {
	switch {
	case outMin >= 0 && outMax <= math.MaxUint8:
		return "uint8"
	case outMin >= math.MinInt16 && outMax <= math.MaxInt16:
		return "int16"
	case outMin >= 0 && outMax <= math.MaxUint16:
		return "uint16"
	}
	return "int32"
}

// encodeSamples converts levels into the little-endian samples of a type
func encodeSamples(levels []float64, sample string) any {
	switch sample {
	case "uint8":
		out := make([]uint8, len(levels))
		for i, l := range levels {
			out[i] = uint8(math.Round(l))
		}
		return out
	case "int16":
		out := make([]int16, len(levels))
		for i, l := range levels {
			out[i] = int16(math.Round(l))
		}
		return out
	case "uint16":
		out := make([]uint16, len(levels))
		for i, l := range levels {
			out[i] = uint16(math.Round(l))
		}
		return out
	}
	out := make([]int32, len(levels))
	for i, l := range levels {
		out[i] = int32(math.Round(l))
	}
	return out
}

// sliceName returns the base name of a slice handle without its extension
func sliceName(h series.Handle) string {
	base := filepath.Base(string(h))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// rawExtension returns the file extension of raw slices
func rawExtension(compress bool) string {
	if compress {
		return ".raw.zst"
	}
	return ".raw"
}

// writeRaw writes levels as raw samples to filename, compressing them with
// zstd if requested. It returns the number of uncompressed bytes.
func writeRaw(filename string, levels []float64, sample string, compress bool) (int, error) {
	file, err := os.Create(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var w io.Writer = file
	var enc *zstd.Encoder
	if compress {
		if enc, err = zstd.NewWriter(file); err != nil {
			return 0, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		w = enc
	}
	buf := bufio.NewWriter(w)
	data := encodeSamples(levels, sample)
	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		return 0, fmt.Errorf("failed to write raw samples: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return 0, err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return 0, fmt.Errorf("failed to finish zstd stream: %w", err)
		}
	}
	return binary.Size(data), nil
}

// ReadRaw reads the samples of a raw slice file written by Extract
func ReadRaw(filename string, format RawFormat) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var r io.Reader = bufio.NewReader(file)
	if format.Compression == "zstd" {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	n := format.Cols * format.Rows
	levels := make([]float64, n)
	switch format.Sample {
	case "uint8":
		data := make([]uint8, n)
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return nil, err
		}
		for i, v := range data {
			levels[i] = float64(v)
		}
	case "int16":
		data := make([]int16, n)
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return nil, err
		}
		for i, v := range data {
			levels[i] = float64(v)
		}
	case "uint16":
		data := make([]uint16, n)
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return nil, err
		}
		for i, v := range data {
			levels[i] = float64(v)
		}
	case "int32":
		data := make([]int32, n)
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return nil, err
		}
		for i, v := range data {
			levels[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unknown raw sample type %q", format.Sample)
	}
	return levels, nil
}
