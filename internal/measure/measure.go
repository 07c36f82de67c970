// Package measure is the public entry point of the measurement engine.
//
// Measure validates its inputs, dispatches to the strategy registered for
// the measurement key and returns a Result whose section ID and method tag
// are pure functions of the key, the frozen config and the code branch that
// ran. Degenerate geometry yields a NaN value with an explanatory warning;
// malformed input yields a *ContractError; defects yield an *ExecutionError.
package measure

import (
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strings"

	"github.com/banshee-data/bodymeasure/internal/config"
	"github.com/banshee-data/bodymeasure/internal/geometry"
	"github.com/banshee-data/bodymeasure/internal/region"
	"gonum.org/v1/gonum/mat"
)

// Strategy computes one family of measurements. The set of strategies is
// closed: SectionStrategy, JointGuidedStrategy and JointChainStrategy.
type Strategy interface {
	// Name is the strategy tag used in method tags.
	Name() string
	// Accepts reports whether the strategy implements method.
	Accepts(method string) bool
	// NeedsJoints reports whether a joint set is mandatory.
	NeedsJoints() bool
	// NeedsWeights reports whether skin weights are mandatory.
	NeedsWeights() bool

	run(in input, c config.MeasurementConfig) (outcome, error)
}

// input is the validated call state handed to a strategy.
type input struct {
	key     string
	vs      geometry.VertexSet
	joints  *geometry.JointSet
	weights mat.Matrix
	axis    geometry.Axis
	lo, hi  float64 // robust body-axis extent
}

func (in input) extent() float64 { return in.hi - in.lo }

// outcome is what a strategy produced before it is stamped into a Result.
type outcome struct {
	value    float64
	branch   string
	retries  int
	warnings warnings
	fallback bool
	widened  bool
}

func degenerate(branch string, codes ...WarningCode) outcome {
	o := outcome{value: math.NaN(), branch: branch}
	for _, c := range codes {
		o.warnings.add(c)
	}
	return o
}

func (o outcome) explained() bool {
	for _, c := range degenerateCodes {
		if o.warnings.has(c) {
			return true
		}
	}
	return false
}

// Measure computes the measurement named by key. cfg must be the frozen
// config for key. joints and weights are optional unless the key's strategy
// requires them.
func Measure(vs geometry.VertexSet, key string, cfg config.Frozen, joints *geometry.JointSet, weights mat.Matrix) (res Result, err error) {
	strategy, ok := Lookup(key)
	if !ok {
		return Result{}, contractf(key, "unknown measurement key")
	}
	if cfg.IsZero() {
		return Result{}, contractf(key, "config is not frozen")
	}
	if cfg.Key() != key {
		return Result{}, contractf(key, "config belongs to %q", cfg.Key())
	}
	c := cfg.Config()
	if !strategy.Accepts(c.Method) {
		return Result{}, contractf(key, "method %q is not served by the %s strategy", c.Method, strategy.Name())
	}
	if d, ok := weights.(*mat.Dense); ok && d == nil {
		weights = nil
	}
	if err := validate(key, strategy, c, vs, joints, weights); err != nil {
		return Result{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = &ExecutionError{Key: key, Cause: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()

	var out outcome
	if len(vs) < c.MinVertexCount {
		out = degenerate("gate.vertices", DegenFail)
	} else {
		axis, _ := geometry.ParseAxis(c.Axis)
		lo, hi := geometry.RobustAxisExtent(vs, axis, c.LowQuantile, c.HighQuantile)
		in := input{key: key, vs: vs, joints: joints, weights: weights, axis: axis, lo: lo, hi: hi}
		out, err = strategy.run(in, c)
		if err != nil {
			if errors.Is(err, ErrContract) {
				return Result{}, err
			}
			return Result{}, &ExecutionError{Key: key, Cause: err}
		}
		if in.extent() > c.MaxAxisExtent {
			out.warnings.add(UnitFail)
		}
		if out.value > c.ValueUpperBound {
			if c.Method == config.MethodHullPerimeter {
				out.warnings.add(PerimeterLarge)
			} else {
				out.warnings.add(UnitFail)
			}
		}
	}
	if math.IsNaN(out.value) && !out.explained() {
		return Result{}, &ExecutionError{Key: key, Cause: fmt.Errorf("branch %s produced NaN without a degenerate warning", out.branch)}
	}
	return stamp(key, strategy, cfg, c.Method, out), nil
}

func stamp(key string, s Strategy, cfg config.Frozen, method string, out outcome) Result {
	var tag strings.Builder
	tag.WriteString(s.Name())
	tag.WriteByte('.')
	tag.WriteString(method)
	if out.widened {
		tag.WriteString("+widened")
	}
	if out.fallback {
		tag.WriteString("+fallback")
	}
	if math.IsNaN(out.value) {
		tag.WriteString("+degenerate")
	}
	return Result{
		Key:       key,
		Value:     out.value,
		SectionID: fmt.Sprintf("%s/%s/%s/%s/b%d", key, cfg.Version(), out.branch, cfg.ShortID(), out.retries),
		MethodTag: tag.String(),
		Warnings:  append([]WarningCode(nil), out.warnings...),
		Fallback:  out.fallback,
	}
}

func validate(key string, s Strategy, c config.MeasurementConfig, vs geometry.VertexSet, joints *geometry.JointSet, weights mat.Matrix) error {
	if i := vs.FirstNonFinite(); i >= 0 {
		return contractf(key, "vertex %d has a non-finite coordinate", i)
	}
	if joints != nil && len(joints.Names) != len(joints.Positions) {
		return contractf(key, "joint names (%d) and positions (%d) differ in length", len(joints.Names), len(joints.Positions))
	}
	if s.NeedsJoints() && joints.Len() == 0 {
		return contractf(key, "joints are required")
	}
	if joints != nil {
		names := c.ReferencedJoints()
		if missing := joints.Missing(names...); len(missing) > 0 {
			return contractf(key, "missing joints %v", missing)
		}
		for _, n := range names {
			if p, _ := joints.Position(n); !geometry.Finite(p) {
				return contractf(key, "joint %q has a non-finite position", n)
			}
		}
	}
	if s.NeedsWeights() {
		if weights == nil {
			return contractf(key, "skin weights are required")
		}
		if err := region.CheckWeights(weights, len(vs), joints.Len()); err != nil {
			return &ContractError{Key: key, Reason: "invalid skin weights", Err: err}
		}
	}
	return nil
}
