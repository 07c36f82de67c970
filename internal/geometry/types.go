package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Axis selects one coordinate of a body-frame point.
type Axis int

const (
	AxisX Axis = iota // lateral (left is +X)
	AxisY             // vertical (feet to head)
	AxisZ             // sagittal (front is +Z)
)

// String returns the lowercase axis letter.
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Valid reports whether a names one of the three coordinates.
func (a Axis) Valid() bool { return a >= AxisX && a <= AxisZ }

// ParseAxis converts "x", "y" or "z" to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// Coord returns the component of p along a.
func Coord(p r3.Vec, a Axis) float64 {
	switch a {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	default:
		return p.Z
	}
}

// PlaneAxes returns the two in-plane axes for a section cut along a, in the
// fixed order used by Project.
func PlaneAxes(a Axis) (Axis, Axis) {
	switch a {
	case AxisX:
		return AxisY, AxisZ
	case AxisY:
		return AxisX, AxisZ
	default:
		return AxisX, AxisY
	}
}

// VertexSet is an ordered body-surface point cloud in metres. Index order is
// stable within one case and carries no other meaning.
type VertexSet []r3.Vec

// ErrShape is returned when a flat or matrix array cannot be read as 3D points.
var ErrShape = errors.New("array shape is not N×3")

// FromFlat reads a row-major N×dim array as a VertexSet.
func FromFlat(data []float64, dim int) (VertexSet, error) {
	if dim != 3 {
		return nil, fmt.Errorf("%w: dimension %d", ErrShape, dim)
	}
	if len(data)%3 != 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of 3", ErrShape, len(data))
	}
	vs := make(VertexSet, len(data)/3)
	for i := range vs {
		vs[i] = r3.Vec{X: data[3*i], Y: data[3*i+1], Z: data[3*i+2]}
	}
	return vs, nil
}

// FromMatrix reads an N×3 matrix as a VertexSet.
func FromMatrix(m mat.Matrix) (VertexSet, error) {
	r, c := m.Dims()
	if c != 3 {
		return nil, fmt.Errorf("%w: %d columns", ErrShape, c)
	}
	vs := make(VertexSet, r)
	for i := 0; i < r; i++ {
		vs[i] = r3.Vec{X: m.At(i, 0), Y: m.At(i, 1), Z: m.At(i, 2)}
	}
	return vs, nil
}

// Flat returns the row-major N×3 representation of vs.
func (vs VertexSet) Flat() []float64 {
	out := make([]float64, 0, 3*len(vs))
	for _, p := range vs {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

// Scaled returns a copy of vs with every coordinate multiplied by f.
func (vs VertexSet) Scaled(f float64) VertexSet {
	out := make(VertexSet, len(vs))
	for i, p := range vs {
		out[i] = r3.Scale(f, p)
	}
	return out
}

// FirstNonFinite returns the index of the first vertex with a NaN or infinite
// coordinate, or -1 when every vertex is finite.
func (vs VertexSet) FirstNonFinite() int {
	for i, p := range vs {
		if !Finite(p) {
			return i
		}
	}
	return -1
}

// Finite reports whether every component of p is finite.
func Finite(p r3.Vec) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// JointSet holds named skeletal landmarks. Names and Positions are parallel.
type JointSet struct {
	Names     []string
	Positions []r3.Vec
}

// NewJointSet pairs names with positions.
func NewJointSet(names []string, positions []r3.Vec) (*JointSet, error) {
	if len(names) != len(positions) {
		return nil, fmt.Errorf("joint names (%d) and positions (%d) differ in length", len(names), len(positions))
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			return nil, errors.New("joint name must not be empty")
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("duplicate joint name %q", n)
		}
		seen[n] = struct{}{}
	}
	return &JointSet{Names: names, Positions: positions}, nil
}

// Len returns the number of joints.
func (j *JointSet) Len() int {
	if j == nil {
		return 0
	}
	return len(j.Positions)
}

// Index returns the column index of the named joint, or -1.
func (j *JointSet) Index(name string) int {
	if j == nil {
		return -1
	}
	for i, n := range j.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Position returns the named joint position.
func (j *JointSet) Position(name string) (r3.Vec, bool) {
	i := j.Index(name)
	if i < 0 {
		return r3.Vec{}, false
	}
	return j.Positions[i], true
}

// Missing returns the subset of names not present in j, in input order.
func (j *JointSet) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if n == "" {
			continue
		}
		if j.Index(n) < 0 {
			out = append(out, n)
		}
	}
	return out
}
