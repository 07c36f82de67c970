package dataset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorrupt is wrapped by errors for blobs whose length does not match
// their declared shape.
var ErrCorrupt = errors.New("corrupt array blob")

// encodeFloats packs xs as little-endian IEEE-754 float64 values.
func encodeFloats(xs []float64) []byte {
	buf := make([]byte, 8*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	return buf
}

// decodeFloats unpacks a blob written by encodeFloats. want < 0 skips the
// length check.
func decodeFloats(buf []byte, want int) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of 8", ErrCorrupt, len(buf))
	}
	n := len(buf) / 8
	if want >= 0 && n != want {
		return nil, fmt.Errorf("%w: %d values, want %d", ErrCorrupt, n, want)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return out, nil
}
