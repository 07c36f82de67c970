// Package testutil provides shared test utilities and synthetic body fixtures.
//
// This package centralises the geometry used across engine, sweep and
// verification tests so every package measures the same bodies.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/bodymeasure/internal/geometry"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Cylinder returns rings of perRing points with the given radius, stacked
// along Y from 0 to height. rings must be at least 2.
func Cylinder(radius, height float64, rings, perRing int) geometry.VertexSet {
	vs := make(geometry.VertexSet, 0, rings*perRing)
	for r := 0; r < rings; r++ {
		y := height * float64(r) / float64(rings-1)
		vs = appendRing(vs, 0, y, 0, radius, radius, perRing)
	}
	return vs
}

// Flat returns n points that all share the same Y coordinate.
func Flat(n int, y float64) geometry.VertexSet {
	vs := make(geometry.VertexSet, n)
	for i := range vs {
		th := 2 * math.Pi * float64(i) / float64(n)
		vs[i] = r3.Vec{X: 0.2 * math.Cos(th), Y: y, Z: 0.2 * math.Sin(th)}
	}
	return vs
}

func appendRing(vs geometry.VertexSet, cx, y, cz, rx, rz float64, n int) geometry.VertexSet {
	for i := 0; i < n; i++ {
		th := 2 * math.Pi * float64(i) / float64(n)
		vs = append(vs, r3.Vec{X: cx + rx*math.Cos(th), Y: y, Z: cz + rz*math.Sin(th)})
	}
	return vs
}

// Joint names used by the synthetic skeleton. They match the default policy.
const (
	Pelvis        = "pelvis"
	Spine         = "spine"
	Neck          = "neck"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
)

// JointNames lists the skeleton in column order.
var JointNames = []string{
	Pelvis, Spine, Neck,
	LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist,
}

// Body is a synthetic case: vertices, skeleton and skin weights.
type Body struct {
	Vertices geometry.VertexSet
	Joints   *geometry.JointSet
	Weights  *mat.Dense
}

// Scaled returns a copy with every vertex and joint coordinate multiplied by f.
func (b Body) Scaled(f float64) Body {
	pos := make([]r3.Vec, len(b.Joints.Positions))
	for i, p := range b.Joints.Positions {
		pos[i] = r3.Scale(f, p)
	}
	w := mat.DenseCopyOf(b.Weights)
	return Body{
		Vertices: b.Vertices.Scaled(f),
		Joints:   &geometry.JointSet{Names: append([]string(nil), b.Joints.Names...), Positions: pos},
		Weights:  w,
	}
}

// MannequinOptions shapes a Mannequin. Zero values take the defaults.
type MannequinOptions struct {
	Height        float64 // metres, default 1.75
	Girth         float64 // torso radius multiplier, default 1
	ShoulderWidth float64 // metres between shoulder joints, default 0.36
	PerRing       int     // points per section ring, default 48
	CapPoints     int     // points coincident with each shoulder joint, default 40
}

func (o MannequinOptions) withDefaults() MannequinOptions {
	if o.Height <= 0 {
		o.Height = 1.75
	}
	if o.Girth <= 0 {
		o.Girth = 1
	}
	if o.ShoulderWidth <= 0 {
		o.ShoulderWidth = 0.36
	}
	if o.PerRing <= 0 {
		o.PerRing = 48
	}
	if o.CapPoints <= 0 {
		o.CapPoints = 40
	}
	return o
}

// Mannequin builds a standing T-pose body made of stacked elliptical rings:
// two legs, torso, neck and head, with shoulder caps coincident with the
// shoulder joints and short horizontal arm stubs. Y is up, left is +X.
func Mannequin(opts MannequinOptions) Body {
	o := opts.withDefaults()
	h := o.Height
	at := func(ratio float64) float64 { return ratio * h }

	names := JointNames
	pos := map[string]r3.Vec{
		Pelvis:        {Y: at(0.52)},
		Spine:         {Y: at(0.66)},
		Neck:          {Y: at(0.84)},
		LeftHip:       {X: 0.09, Y: at(0.50)},
		RightHip:      {X: -0.09, Y: at(0.50)},
		LeftKnee:      {X: 0.09, Y: at(0.28)},
		RightKnee:     {X: -0.09, Y: at(0.28)},
		LeftAnkle:     {X: 0.09, Y: at(0.04)},
		RightAnkle:    {X: -0.09, Y: at(0.04)},
		LeftShoulder:  {X: o.ShoulderWidth / 2, Y: at(0.81)},
		RightShoulder: {X: -o.ShoulderWidth / 2, Y: at(0.81)},
		LeftElbow:     {X: o.ShoulderWidth/2 + 0.28, Y: at(0.81)},
		RightElbow:    {X: -o.ShoulderWidth/2 - 0.28, Y: at(0.81)},
		LeftWrist:     {X: o.ShoulderWidth/2 + 0.54, Y: at(0.81)},
		RightWrist:    {X: -o.ShoulderWidth/2 - 0.54, Y: at(0.81)},
	}
	col := make(map[string]int, len(names))
	positions := make([]r3.Vec, len(names))
	for i, n := range names {
		col[n] = i
		positions[i] = pos[n]
	}

	var vs geometry.VertexSet
	var owner []int // column receiving full weight for each vertex

	addRings := func(cx, y0, y1, rx, rz float64, rings int, joint string) {
		for r := 0; r < rings; r++ {
			y := y0 + (y1-y0)*float64(r)/float64(rings-1)
			before := len(vs)
			vs = appendRing(vs, cx, y, 0, rx, rz, o.PerRing)
			for i := before; i < len(vs); i++ {
				owner = append(owner, col[joint])
			}
		}
	}

	g := o.Girth
	rings := func(span float64) int { return int(math.Max(3, math.Round(span/0.01))) + 1 }
	// Legs: calf, knee, thigh bands by joint ownership.
	for _, side := range []struct {
		cx          float64
		ankle, knee string
		hip         string
	}{{0.09, LeftAnkle, LeftKnee, LeftHip}, {-0.09, RightAnkle, RightKnee, RightHip}} {
		addRings(side.cx, 0, at(0.28), 0.055*g, 0.06*g, rings(at(0.28)), side.ankle)
		addRings(side.cx, at(0.28)+0.01, at(0.47), 0.075*g, 0.08*g, rings(at(0.19)), side.knee)
	}
	// Pelvis/torso/neck/head around the vertical axis.
	addRings(0, at(0.47)+0.01, at(0.58), 0.17*g, 0.12*g, rings(at(0.11)), Pelvis)
	addRings(0, at(0.58)+0.01, at(0.70), 0.14*g, 0.10*g, rings(at(0.12)), Pelvis)
	addRings(0, at(0.70)+0.01, at(0.81), 0.16*g, 0.11*g, rings(at(0.11)), Spine)
	addRings(0, at(0.81)+0.01, at(0.87), 0.055, 0.055, rings(at(0.06)), Neck)
	addRings(0, at(0.87)+0.01, h, 0.09, 0.10, rings(h-at(0.87)), Neck)

	// Shoulder caps sit exactly on the joints; arm stubs run towards the elbow.
	for _, side := range []struct{ shoulder, elbow string }{{LeftShoulder, LeftElbow}, {RightShoulder, RightElbow}} {
		s := pos[side.shoulder]
		for i := 0; i < o.CapPoints; i++ {
			vs = append(vs, s)
			owner = append(owner, col[side.shoulder])
		}
		e := pos[side.elbow]
		for i := 1; i <= 10; i++ {
			f := 0.4 + 0.06*float64(i)
			vs = append(vs, r3.Add(s, r3.Scale(f, r3.Sub(e, s))))
			owner = append(owner, col[side.elbow])
		}
	}

	w := mat.NewDense(len(vs), len(names), nil)
	for i, c := range owner {
		w.Set(i, c, 1)
	}
	return Body{
		Vertices: vs,
		Joints:   &geometry.JointSet{Names: append([]string(nil), names...), Positions: positions},
		Weights:  w,
	}
}

// ShoulderRig returns a minimal joint-guided case: two shoulder joints
// width apart with capPoints vertices coincident with each, a ring of torso
// vertices owned by the spine and arm shafts owned by the elbows.
func ShoulderRig(width float64, capPoints int) Body {
	names := []string{Spine, LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist}
	y := 1.40
	ls := r3.Vec{X: width / 2, Y: y}
	rs := r3.Vec{X: -width / 2, Y: y}
	positions := []r3.Vec{
		{Y: 1.10},
		ls, rs,
		{X: width/2 + 0.28, Y: y}, {X: -width/2 - 0.28, Y: y},
		{X: width/2 + 0.54, Y: y}, {X: -width/2 - 0.54, Y: y},
	}

	var vs geometry.VertexSet
	var owner []int
	torso := appendRing(nil, 0, y, 0, width/2+0.02, 0.10, 64)
	vs = append(vs, torso...)
	for range torso {
		owner = append(owner, 0)
	}
	for side, s := range []r3.Vec{ls, rs} {
		for i := 0; i < capPoints; i++ {
			vs = append(vs, s)
			owner = append(owner, 1+side)
		}
		e := positions[3+side]
		for i := 1; i <= 10; i++ {
			f := 0.4 + 0.06*float64(i)
			vs = append(vs, r3.Add(s, r3.Scale(f, r3.Sub(e, s))))
			owner = append(owner, 3+side)
		}
	}

	w := mat.NewDense(len(vs), len(names), nil)
	for i, c := range owner {
		w.Set(i, c, 1)
	}
	return Body{
		Vertices: vs,
		Joints:   &geometry.JointSet{Names: names, Positions: positions},
		Weights:  w,
	}
}
