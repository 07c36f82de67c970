package measure

import (
	"fmt"
	"sort"

	"github.com/banshee-data/bodymeasure/internal/config"
)

// Measurement keys served by the default catalog.
const (
	NeckCircumference  = "neck_circumference"
	ChestCircumference = "chest_circumference"
	WaistCircumference = "waist_circumference"
	HipCircumference   = "hip_circumference"
	ThighCircumference = "thigh_circumference"
	CalfCircumference  = "calf_circumference"
	ChestWidth         = "chest_width"
	ChestDepth         = "chest_depth"
	WaistWidth         = "waist_width"
	WaistDepth         = "waist_depth"
	HipWidth           = "hip_width"
	HipDepth           = "hip_depth"
	ShoulderWidth      = "shoulder_width"
	ArmLength          = "arm_length"
)

// DefaultPolicyVersion names the built-in policy.
const DefaultPolicyVersion = "default"

// catalog maps each key to its strategy. It is fixed at build time.
var catalog = map[string]Strategy{
	NeckCircumference:  SectionStrategy{},
	ChestCircumference: SectionStrategy{},
	WaistCircumference: SectionStrategy{},
	HipCircumference:   SectionStrategy{},
	ThighCircumference: SectionStrategy{},
	CalfCircumference:  SectionStrategy{},
	ChestWidth:         SectionStrategy{},
	ChestDepth:         SectionStrategy{},
	WaistWidth:         SectionStrategy{},
	WaistDepth:         SectionStrategy{},
	HipWidth:           SectionStrategy{},
	HipDepth:           SectionStrategy{},
	ShoulderWidth:      JointGuidedStrategy{},
	ArmLength:          JointChainStrategy{},
}

// Lookup returns the strategy registered for key.
func Lookup(key string) (Strategy, bool) {
	s, ok := catalog[key]
	return s, ok
}

// Keys returns every catalog key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(catalog))
	for k := range catalog {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func baseConfig(key string) config.MeasurementConfig {
	return config.MeasurementConfig{
		Key:            key,
		Axis:           "y",
		LowQuantile:    0.01,
		HighQuantile:   0.99,
		MinAxisExtent:  0.5,
		MaxAxisExtent:  3.0,
		MinVertexCount: 10,
	}
}

func sectionConfig(key, method string, ratio, upper float64) config.MeasurementConfig {
	c := baseConfig(key)
	c.Method = method
	c.SectionRatio = ratio
	c.BandHalfWidthRatio = 0.005
	c.MinCandidates = 12
	c.MaxCandidates = 20000
	c.MaxBandRetries = 3
	c.BandGrowth = 2
	c.ValueUpperBound = upper
	return c
}

func legConfig(key string, ratio, upper float64) config.MeasurementConfig {
	c := sectionConfig(key, config.MethodHullPerimeter, ratio, upper)
	c.Side = "left"
	c.LateralAxis = "x"
	c.LegGapRatio = 0.01
	c.CentreJoints = []string{"left_hip", "right_hip"}
	c.RiskHipJoint = "left_hip"
	c.RiskKneeJoint = "left_knee"
	c.HipMarginRatio = 0.1
	c.KneeMarginRatio = 0.1
	return c
}

func widthDepth(key string, ratio float64, axis string) config.MeasurementConfig {
	c := sectionConfig(key, config.MethodExtent, ratio, 1.0)
	c.ExtentAxis = axis
	return c
}

// DefaultConfigs returns the built-in thresholds for every catalog key.
// Section ratios are fractions of the robust vertical extent measured from
// the soles; the body is Y-up with left on +X.
func DefaultConfigs() []config.MeasurementConfig {
	shoulder := baseConfig(ShoulderWidth)
	shoulder.Method = config.MethodCapDistance
	shoulder.Left = config.SideJoints{Root: "left_shoulder", Next: "left_elbow", Distal: []string{"left_elbow", "left_wrist"}}
	shoulder.Right = config.SideJoints{Root: "right_shoulder", Next: "right_elbow", Distal: []string{"right_elbow", "right_wrist"}}
	shoulder.R0Ratio = 0
	shoulder.R1Ratio = 0.35
	shoulder.CapQuantile = 0.8
	shoulder.MinCapPoints = 5
	shoulder.JointFallback = true
	shoulder.MaxCandidates = 20000
	shoulder.ValueUpperBound = 1.0

	arm := baseConfig(ArmLength)
	arm.Method = config.MethodJointChain
	arm.Chain = []string{"left_shoulder", "left_elbow", "left_wrist"}
	arm.ValueUpperBound = 1.5

	return []config.MeasurementConfig{
		sectionConfig(NeckCircumference, config.MethodHullPerimeter, 0.85, 1.0),
		sectionConfig(ChestCircumference, config.MethodHullPerimeter, 0.74, 3.0),
		sectionConfig(WaistCircumference, config.MethodHullPerimeter, 0.62, 3.0),
		sectionConfig(HipCircumference, config.MethodHullPerimeter, 0.52, 3.0),
		legConfig(ThighCircumference, 0.42, 1.5),
		legConfig(CalfCircumference, 0.18, 1.0),
		widthDepth(ChestWidth, 0.74, "x"),
		widthDepth(ChestDepth, 0.74, "z"),
		widthDepth(WaistWidth, 0.62, "x"),
		widthDepth(WaistDepth, 0.62, "z"),
		widthDepth(HipWidth, 0.52, "x"),
		widthDepth(HipDepth, 0.52, "z"),
		shoulder,
		arm,
	}
}

// DefaultPolicy freezes DefaultConfigs under version.
func DefaultPolicy(version string) (*config.Policy, error) {
	return config.NewPolicy(version, DefaultConfigs())
}

// LoadPolicy returns the built-in policy, or the built-in policy with the
// overrides in path applied when path is non-empty. An empty version means
// DefaultPolicyVersion for the built-in policy and the file's own version
// otherwise; a non-empty version must match the file's.
func LoadPolicy(path, version string) (*config.Policy, error) {
	if path == "" {
		if version == "" {
			version = DefaultPolicyVersion
		}
		return DefaultPolicy(version)
	}
	p, err := config.LoadPolicy(path, DefaultConfigs())
	if err != nil {
		return nil, err
	}
	if version != "" && version != p.Version() {
		return nil, fmt.Errorf("policy file %s has version %q, not %q", path, p.Version(), version)
	}
	return p, nil
}
