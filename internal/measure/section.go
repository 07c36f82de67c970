package measure

import (
	"math"

	"github.com/banshee-data/bodymeasure/internal/config"
	"github.com/banshee-data/bodymeasure/internal/geometry"
)

// SectionStrategy measures a horizontal cross-section of the body: a band of
// vertices around a target height, projected to the plane and reduced to a
// circumference or an in-plane extent. Limb keys keep one side of the band.
type SectionStrategy struct{}

func (SectionStrategy) Name() string { return "section" }

func (SectionStrategy) Accepts(method string) bool {
	return method == config.MethodHullPerimeter || method == config.MethodExtent
}

func (SectionStrategy) NeedsJoints() bool  { return false }
func (SectionStrategy) NeedsWeights() bool { return false }

func (SectionStrategy) run(in input, c config.MeasurementConfig) (outcome, error) {
	side, _ := geometry.ParseSide(c.Side)
	prefix := "section"
	if side != geometry.SideBoth {
		prefix = "limb_" + side.String()
	}

	extent := in.extent()
	if math.IsNaN(extent) || extent <= 0 || extent < c.MinAxisExtent {
		return degenerate(prefix+".axis_short", BodyAxisTooShort), nil
	}

	target := in.lo + c.SectionRatio*extent
	half := c.BandHalfWidthRatio * extent

	var lateral geometry.Axis
	if side != geometry.SideBoth {
		lateral, _ = geometry.ParseAxis(c.LateralAxis)
	}

	var out outcome
	var selected []int
	var split geometry.LateralSplit
	for {
		band := geometry.SelectBand(in.vs, in.axis, target, half)
		selected = band
		if side != geometry.SideBoth {
			split = geometry.SplitLateral(in.vs, band, lateral, lateralCentre(in, c, band, lateral), side)
			selected = split.Selected
		}
		if len(selected) >= c.MinCandidates || out.retries >= c.MaxBandRetries {
			break
		}
		half *= c.BandGrowth
		out.retries++
	}
	if out.retries > 0 {
		out.widened = true
		out.warnings.add(BandWidened)
	}
	if side != geometry.SideBoth {
		limbRisks(&out, in, c, split, target)
	}

	if len(selected) == 0 {
		o := degenerate(prefix+".empty", EmptyCandidates)
		o.retries, o.widened = out.retries, out.widened
		for _, w := range out.warnings {
			o.warnings.add(w)
		}
		return o, nil
	}

	selected, capped := geometry.Stride(selected, c.MaxCandidates)
	if capped {
		out.warnings.add(CandidatesCapped)
	}

	pts := geometry.Project(in.vs, selected, in.axis)
	out.value = math.NaN()
	if len(pts) >= c.MinCandidates {
		switch c.Method {
		case config.MethodHullPerimeter:
			out.value = geometry.EstimateCircumference(pts, c.MinCandidates)
		case config.MethodExtent:
			out.value = geometry.EstimateExtent(pts, planeIndex(in.axis, c.ExtentAxis))
		}
	}
	if math.IsNaN(out.value) {
		out.branch = prefix + ".sparse"
		out.warnings.add(DegenFail)
		return out, nil
	}
	out.branch = prefix + ".ok"
	return out, nil
}

// lateralCentre is the midpoint of the configured centre joints when a
// skeleton is available, otherwise the median lateral coordinate of the band.
func lateralCentre(in input, c config.MeasurementConfig, band []int, lateral geometry.Axis) float64 {
	if in.joints != nil && len(c.CentreJoints) == 2 {
		a, okA := in.joints.Position(c.CentreJoints[0])
		b, okB := in.joints.Position(c.CentreJoints[1])
		if okA && okB {
			return (geometry.Coord(a, lateral) + geometry.Coord(b, lateral)) / 2
		}
	}
	coords := make([]float64, len(band))
	for i, k := range band {
		coords[i] = geometry.Coord(in.vs[k], lateral)
	}
	return geometry.Median(coords)
}

func limbRisks(out *outcome, in input, c config.MeasurementConfig, split geometry.LateralSplit, target float64) {
	if c.LegGapRatio > 0 {
		if math.IsNaN(split.InnerGap) || split.InnerGap < c.LegGapRatio*in.extent() {
			out.warnings.add(LegRegionUncertain)
		}
	}
	if in.joints == nil || c.RiskHipJoint == "" || c.RiskKneeJoint == "" {
		return
	}
	hip, okH := in.joints.Position(c.RiskHipJoint)
	knee, okK := in.joints.Position(c.RiskKneeJoint)
	if !okH || !okK {
		return
	}
	seg := math.Abs(geometry.Coord(hip, in.axis) - geometry.Coord(knee, in.axis))
	if seg == 0 {
		return
	}
	if math.Abs(target-geometry.Coord(hip, in.axis)) < c.HipMarginRatio*seg {
		out.warnings.add(HipBleedRisk)
	}
	if math.Abs(target-geometry.Coord(knee, in.axis)) < c.KneeMarginRatio*seg {
		out.warnings.add(KneeProximityRisk)
	}
}

// planeIndex maps a named in-plane axis to its index in the projection.
func planeIndex(section geometry.Axis, name string) int {
	a, err := geometry.ParseAxis(name)
	if err != nil {
		return -1
	}
	u, v := geometry.PlaneAxes(section)
	switch a {
	case u:
		return 0
	case v:
		return 1
	}
	return -1
}
