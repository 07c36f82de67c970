package geometry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"
)

// RobustAxisExtent returns the lowQ and highQ quantiles of the axis
// coordinate. Quantiles are used instead of min/max so that a handful of
// stray vertices cannot stretch the body scale. An empty set yields NaN, NaN.
//
// The quantiles are clamped to [0, 1] and swapped if given in reverse order.
func RobustAxisExtent(vs VertexSet, axis Axis, lowQ, highQ float64) (lo, hi float64) {
	if len(vs) == 0 {
		return math.NaN(), math.NaN()
	}
	lowQ, highQ = clamp01(lowQ), clamp01(highQ)
	if lowQ > highQ {
		lowQ, highQ = highQ, lowQ
	}
	coords := make([]float64, len(vs))
	for i, p := range vs {
		coords[i] = Coord(p, axis)
	}
	sort.Float64s(coords)
	return quantileSorted(coords, lowQ), quantileSorted(coords, highQ)
}

// Quantile returns the p-quantile of xs using linear interpolation. xs is not
// modified. Empty input yields NaN.
func Quantile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return quantileSorted(sorted, clamp01(p))
}

// Median is Quantile(xs, 0.5).
func Median(xs []float64) float64 { return Quantile(xs, 0.5) }

func quantileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SelectBand returns the indices of vertices whose axis coordinate lies in
// [target-halfWidth, target+halfWidth], in ascending index order. A negative
// or NaN half-width selects nothing.
func SelectBand(vs VertexSet, axis Axis, target, halfWidth float64) []int {
	if !(halfWidth >= 0) || math.IsNaN(target) {
		return nil
	}
	lo, hi := target-halfWidth, target+halfWidth
	var out []int
	for i, p := range vs {
		c := Coord(p, axis)
		if c >= lo && c <= hi {
			out = append(out, i)
		}
	}
	return out
}

// Project maps the selected vertices onto the two non-axis coordinates, in
// PlaneAxes order.
func Project(vs VertexSet, idx []int, axis Axis) []r2.Vec {
	a0, a1 := PlaneAxes(axis)
	out := make([]r2.Vec, len(idx))
	for i, k := range idx {
		out[i] = r2.Vec{X: Coord(vs[k], a0), Y: Coord(vs[k], a1)}
	}
	return out
}

// Side selects one lateral half of a section.
type Side int

const (
	SideBoth Side = iota
	SideLeft
	SideRight
)

// String returns the lowercase side name.
func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "both"
	}
}

// ParseSide converts "both", "left" or "right" ("" means both).
func ParseSide(s string) (Side, bool) {
	switch s {
	case "", "both":
		return SideBoth, true
	case "left":
		return SideLeft, true
	case "right":
		return SideRight, true
	}
	return SideBoth, false
}

// LateralSplit is the outcome of dividing a band at a lateral centre.
type LateralSplit struct {
	Selected []int   // indices on the requested side
	InnerGap float64 // distance between the closest points either side of the centre; NaN when one side is empty
}

// SplitLateral keeps the band indices on one side of centre along the lateral
// axis. Left is the positive side. SideBoth returns idx unchanged.
func SplitLateral(vs VertexSet, idx []int, lateral Axis, centre float64, side Side) LateralSplit {
	innerLeft, innerRight := math.Inf(1), math.Inf(-1)
	var selected []int
	for _, k := range idx {
		c := Coord(vs[k], lateral)
		if c > centre {
			innerLeft = math.Min(innerLeft, c)
		} else {
			innerRight = math.Max(innerRight, c)
		}
		switch side {
		case SideLeft:
			if c > centre {
				selected = append(selected, k)
			}
		case SideRight:
			if c <= centre {
				selected = append(selected, k)
			}
		default:
			selected = append(selected, k)
		}
	}
	gap := math.NaN()
	if !math.IsInf(innerLeft, 1) && !math.IsInf(innerRight, -1) {
		gap = innerLeft - innerRight
	}
	return LateralSplit{Selected: selected, InnerGap: gap}
}

// Stride deterministically thins idx to exactly max evenly spaced entries,
// keeping the first. max <= 0 disables the cap. The kept count never drops
// as idx grows.
func Stride(idx []int, max int) ([]int, bool) {
	if max <= 0 || len(idx) <= max {
		return idx, false
	}
	n := len(idx)
	out := make([]int, max)
	for i := range out {
		out[i] = idx[i*n/max]
	}
	return out, true
}
