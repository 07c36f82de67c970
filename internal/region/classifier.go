// Package region isolates anatomically bounded sub-regions of a body mesh
// using joint positions and per-vertex skin weights.
//
// The classifier picks one representative "cap" point per side, for
// measurements expressed as a distance between two classified points.
package region

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/bodymeasure/internal/geometry"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// segmentEpsilon is the shortest root-to-next segment (metres) treated as a
// real limb segment.
const segmentEpsilon = 1e-9

// affinityFlatEpsilon is the affinity spread below which the band cannot
// separate cap from shaft.
const affinityFlatEpsilon = 1e-9

// ErrInput is wrapped by every error Classify returns.
var ErrInput = errors.New("region input")

// SideSpec names the joints that bound one side's region.
type SideSpec struct {
	Root   string   // joint the cap sits on, e.g. left_shoulder
	Next   string   // next joint down the chain; root→next is the reference segment
	Distal []string // joints whose weights count towards the region affinity
}

// Joints returns every joint name the side references, root first.
func (s SideSpec) Joints() []string {
	out := []string{s.Root, s.Next}
	return append(out, s.Distal...)
}

// Params bounds the search and the cap selection.
type Params struct {
	R0Ratio       float64 // inner radius of the search band, × segment length
	R1Ratio       float64 // outer radius of the search band, × segment length
	CapQuantile   float64 // affinity quantile separating cap from shaft
	MinCapPoints  int     // fewer cap points than this triggers the fallback
	JointFallback bool    // use the root joint when the band is empty
	MaxCandidates int     // hard cap on band vertices considered (0 = no cap)

	// WeightsChecked skips CheckWeights; the caller has already run it on
	// these weights.
	WeightsChecked bool
}

// Source records which representative a Cap ended up using.
type Source string

const (
	SourceCap   Source = "cap"   // affinity-selected cap points
	SourceBand  Source = "band"  // fallback: whole search band
	SourceJoint Source = "joint" // fallback: the root joint itself
	SourceNone  Source = "none"  // nothing plausible; Point is NaN
)

// Cap is the classified representative point for one side.
type Cap struct {
	Point      r3.Vec
	Source     Source
	Fallback   bool    // primary cap selection did not meet MinCapPoints
	Degenerate bool    // reference segment has zero length
	Ambiguous  bool    // band affinity was flat
	Capped     bool    // band was thinned to MaxCandidates
	Segment    float64 // root→next distance
	BandCount  int
	CapCount   int
	Cutoff     float64 // affinity cutoff used for the cap
}

// Valid reports whether Point carries a usable position.
func (c Cap) Valid() bool { return c.Source != SourceNone && geometry.Finite(c.Point) }

func nanPoint() r3.Vec {
	return r3.Vec{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
}

// CheckWeights verifies that weights is a non-negative, finite
// vertices×joints matrix.
func CheckWeights(weights mat.Matrix, vertices, joints int) error {
	if weights == nil {
		return fmt.Errorf("%w: skin weights are required", ErrInput)
	}
	r, c := weights.Dims()
	if r != vertices || c != joints {
		return fmt.Errorf("%w: skin weights are %d×%d, want %d×%d", ErrInput, r, c, vertices, joints)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			w := weights.At(i, j)
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return fmt.Errorf("%w: skin weight (%d,%d) = %v", ErrInput, i, j, w)
			}
		}
	}
	return nil
}

// Affinity sums the weight columns for the given joint names per vertex.
func Affinity(weights mat.Matrix, joints *geometry.JointSet, names []string) ([]float64, error) {
	r, _ := weights.Dims()
	cols := make([]int, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		c := joints.Index(n)
		if c < 0 {
			return nil, fmt.Errorf("%w: joint %q not in joint set", ErrInput, n)
		}
		cols = append(cols, c)
	}
	aff := make([]float64, r)
	for i := 0; i < r; i++ {
		var s float64
		for _, c := range cols {
			s += weights.At(i, c)
		}
		aff[i] = s
	}
	return aff, nil
}

// Classify selects the cap representative for one side.
//
// Steps:
//  1. affinity = Σ weights over root + distal joints
//  2. search band = vertices at distance [R0Ratio, R1Ratio] × |root-next| from root
//  3. cap = band vertices with affinity at or above the CapQuantile cutoff
//  4. representative = affinity-weighted centroid of the cap
//
// When the cap has fewer than MinCapPoints vertices the result is flagged as
// a fallback and uses the whole band, or the root joint when the band is
// empty and JointFallback is set.
func Classify(vs geometry.VertexSet, joints *geometry.JointSet, weights mat.Matrix, side SideSpec, p Params) (Cap, error) {
	if missing := joints.Missing(side.Joints()...); len(missing) > 0 {
		return Cap{}, fmt.Errorf("%w: missing joints %v", ErrInput, missing)
	}
	if !p.WeightsChecked {
		if err := CheckWeights(weights, len(vs), joints.Len()); err != nil {
			return Cap{}, err
		}
	}

	root, _ := joints.Position(side.Root)
	next, _ := joints.Position(side.Next)
	segment := r3.Norm(r3.Sub(next, root))
	if segment < segmentEpsilon {
		return Cap{Point: nanPoint(), Source: SourceNone, Degenerate: true, Segment: segment}, nil
	}

	affinity, err := Affinity(weights, joints, append([]string{side.Root}, side.Distal...))
	if err != nil {
		return Cap{}, err
	}

	r0, r1 := p.R0Ratio*segment, p.R1Ratio*segment
	var band []int
	for i, v := range vs {
		d := r3.Norm(r3.Sub(v, root))
		if d >= r0 && d <= r1 {
			band = append(band, i)
		}
	}
	band, capped := geometry.Stride(band, p.MaxCandidates)

	out := Cap{Segment: segment, BandCount: len(band), Capped: capped, Cutoff: math.NaN()}
	if len(band) == 0 {
		out.Fallback = true
		if p.JointFallback {
			out.Point, out.Source = root, SourceJoint
		} else {
			out.Point, out.Source = nanPoint(), SourceNone
		}
		return out, nil
	}

	bandAff := make([]float64, len(band))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, k := range band {
		bandAff[i] = affinity[k]
		lo = math.Min(lo, bandAff[i])
		hi = math.Max(hi, bandAff[i])
	}
	out.Ambiguous = hi-lo < affinityFlatEpsilon
	out.Cutoff = geometry.Quantile(bandAff, p.CapQuantile)

	var capIdx []int
	for i, k := range band {
		if bandAff[i] >= out.Cutoff {
			capIdx = append(capIdx, k)
		}
	}
	out.CapCount = len(capIdx)

	if len(capIdx) < p.MinCapPoints {
		out.Fallback = true
		out.Point, out.Source = weightedCentroid(vs, band, affinity), SourceBand
		return out, nil
	}
	out.Point, out.Source = weightedCentroid(vs, capIdx, affinity), SourceCap
	return out, nil
}

// weightedCentroid averages vs[idx] weighted by affinity, falling back to an
// unweighted mean when every weight is zero.
func weightedCentroid(vs geometry.VertexSet, idx []int, affinity []float64) r3.Vec {
	var sum r3.Vec
	var wsum float64
	for _, k := range idx {
		sum = r3.Add(sum, r3.Scale(affinity[k], vs[k]))
		wsum += affinity[k]
	}
	if wsum > 0 {
		return r3.Scale(1/wsum, sum)
	}
	sum = r3.Vec{}
	for _, k := range idx {
		sum = r3.Add(sum, vs[k])
	}
	return r3.Scale(1/float64(len(idx)), sum)
}

// Pair classifies both sides, checking the weights once. The returned
// distance is NaN when either side has no valid representative.
func Pair(vs geometry.VertexSet, joints *geometry.JointSet, weights mat.Matrix, left, right SideSpec, p Params) (l, r Cap, distance float64, err error) {
	if !p.WeightsChecked {
		if err := CheckWeights(weights, len(vs), joints.Len()); err != nil {
			return Cap{}, Cap{}, math.NaN(), err
		}
		p.WeightsChecked = true
	}
	l, err = Classify(vs, joints, weights, left, p)
	if err != nil {
		return Cap{}, Cap{}, math.NaN(), fmt.Errorf("left side: %w", err)
	}
	r, err = Classify(vs, joints, weights, right, p)
	if err != nil {
		return Cap{}, Cap{}, math.NaN(), fmt.Errorf("right side: %w", err)
	}
	if !l.Valid() || !r.Valid() {
		return l, r, math.NaN(), nil
	}
	return l, r, r3.Norm(r3.Sub(l.Point, r.Point)), nil
}
