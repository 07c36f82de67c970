package geometry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// ConvexHull returns the convex hull of pts in counter-clockwise order,
// starting from the lowest-X (then lowest-Y) point. Collinear and duplicate
// points are dropped. The input slice is not modified.
//
// Algorithm: Andrew's monotone chain, O(n log n).
func ConvexHull(pts []r2.Vec) []r2.Vec {
	if len(pts) == 0 {
		return nil
	}
	sorted := append([]r2.Vec(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	hull := make([]r2.Vec, 0, 2*len(sorted))
	// Lower chain
	for _, p := range sorted {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// Upper chain
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// Last point repeats the first.
	hull = hull[:len(hull)-1]
	if len(hull) == 0 {
		hull = sorted[:1]
	}
	return hull
}

func turn(o, a, b r2.Vec) float64 {
	return r2.Cross(r2.Sub(a, o), r2.Sub(b, o))
}

// Perimeter returns the length of the closed polygon through poly.
func Perimeter(poly []r2.Vec) float64 {
	if len(poly) < 2 {
		return 0
	}
	var total float64
	for i := range poly {
		total += r2.Norm(r2.Sub(poly[(i+1)%len(poly)], poly[i]))
	}
	return total
}

// EstimateCircumference approximates the closed boundary length of a
// section by the convex-hull perimeter, which is what a tape measure laid
// around the section reads. Fewer than minPoints candidates, or a hull with
// fewer than three vertices, yields NaN.
func EstimateCircumference(pts []r2.Vec, minPoints int) float64 {
	if len(pts) == 0 || len(pts) < minPoints {
		return math.NaN()
	}
	hull := ConvexHull(pts)
	if len(hull) < 3 {
		return math.NaN()
	}
	return Perimeter(hull)
}

// EstimateExtent returns max-min along in-plane axis 0 or 1. Empty input or
// an axis outside {0, 1} yields NaN.
func EstimateExtent(pts []r2.Vec, extentAxis int) float64 {
	if len(pts) == 0 || extentAxis < 0 || extentAxis > 1 {
		return math.NaN()
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		v := p.X
		if extentAxis == 1 {
			v = p.Y
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

// Centroid returns the mean of pts; NaN components for empty input.
func Centroid(pts []r2.Vec) r2.Vec {
	if len(pts) == 0 {
		return r2.Vec{X: math.NaN(), Y: math.NaN()}
	}
	var c r2.Vec
	for _, p := range pts {
		c = r2.Add(c, p)
	}
	return r2.Scale(1/float64(len(pts)), c)
}
