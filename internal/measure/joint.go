package measure

import (
	"errors"

	"github.com/banshee-data/bodymeasure/internal/config"
	"github.com/banshee-data/bodymeasure/internal/region"
	"gonum.org/v1/gonum/spatial/r3"
)

// JointGuidedStrategy measures the distance between two representative
// points classified from skin weights around a pair of root joints.
type JointGuidedStrategy struct{}

func (JointGuidedStrategy) Name() string { return "joint" }

func (JointGuidedStrategy) Accepts(method string) bool { return method == config.MethodCapDistance }

func (JointGuidedStrategy) NeedsJoints() bool  { return true }
func (JointGuidedStrategy) NeedsWeights() bool { return true }

func sideSpec(s config.SideJoints) region.SideSpec {
	return region.SideSpec{Root: s.Root, Next: s.Next, Distal: s.Distal}
}

func (JointGuidedStrategy) run(in input, c config.MeasurementConfig) (outcome, error) {
	p := region.Params{
		R0Ratio:       c.R0Ratio,
		R1Ratio:       c.R1Ratio,
		CapQuantile:   c.CapQuantile,
		MinCapPoints:  c.MinCapPoints,
		JointFallback: c.JointFallback,
		MaxCandidates: c.MaxCandidates,
		// validate ran CheckWeights at the dispatcher boundary.
		WeightsChecked: true,
	}
	l, r, d, err := region.Pair(in.vs, in.joints, in.weights, sideSpec(c.Left), sideSpec(c.Right), p)
	if err != nil {
		if errors.Is(err, region.ErrInput) {
			return outcome{}, &ContractError{Key: in.key, Reason: "region classification", Err: err}
		}
		return outcome{}, err
	}

	out := outcome{value: d}
	for _, cp := range []region.Cap{l, r} {
		switch {
		case cp.Degenerate:
			out.warnings.add(DegenFail)
		case cp.Source == region.SourceNone:
			out.warnings.add(CapEmpty)
		}
		if cp.Fallback {
			out.fallback = true
			out.warnings.add(CapFallback)
		}
		if cp.Ambiguous {
			out.warnings.add(RegionAmbiguous)
		}
		if cp.Capped {
			out.warnings.add(CandidatesCapped)
		}
	}
	if l.Degenerate || r.Degenerate {
		out.branch = "caps.degenerate"
	} else {
		out.branch = "caps." + string(l.Source) + "_" + string(r.Source)
	}
	return out, nil
}

// JointChainStrategy sums joint-to-joint segment lengths along a named
// chain, e.g. shoulder, elbow, wrist for arm length.
type JointChainStrategy struct{}

func (JointChainStrategy) Name() string { return "chain" }

func (JointChainStrategy) Accepts(method string) bool { return method == config.MethodJointChain }

func (JointChainStrategy) NeedsJoints() bool  { return true }
func (JointChainStrategy) NeedsWeights() bool { return false }

// chainEpsilon is the shortest total chain length treated as a real limb.
const chainEpsilon = 1e-9

func (JointChainStrategy) run(in input, c config.MeasurementConfig) (outcome, error) {
	var total float64
	prev, _ := in.joints.Position(c.Chain[0])
	for _, name := range c.Chain[1:] {
		p, _ := in.joints.Position(name)
		total += r3.Norm(r3.Sub(p, prev))
		prev = p
	}
	if total < chainEpsilon {
		return degenerate("chain.degenerate", DegenFail), nil
	}
	return outcome{value: total, branch: "chain.ok"}, nil
}
