// Package config holds measurement policy configuration and run settings.
//
// A MeasurementConfig is a plain, mutable bundle of thresholds for one
// measurement key. Freezing it produces a Frozen snapshot with a content
// derived identity; the engine only ever accepts Frozen values, so a policy
// version in use cannot be changed underneath a running batch.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Method names the numeric estimator a measurement key uses.
const (
	MethodHullPerimeter = "hull_perimeter" // section circumference
	MethodExtent        = "extent"         // section width or depth
	MethodCapDistance   = "cap_distance"   // joint-guided distance between two caps
	MethodJointChain    = "joint_chain"    // summed joint-to-joint segment lengths
)

// SideJoints names the joints that bound one side of a joint-guided region.
type SideJoints struct {
	Root   string   `json:"root"`
	Next   string   `json:"next"`
	Distal []string `json:"distal,omitempty"`
}

// MeasurementConfig is the full set of thresholds for one measurement key.
// Fields irrelevant to the key's method are ignored.
type MeasurementConfig struct {
	Key     string `json:"key"`
	Version string `json:"version,omitempty"` // policy version, set by Freeze
	Method  string `json:"method"`

	// Body-axis framing
	Axis           string  `json:"axis"`
	LowQuantile    float64 `json:"low_quantile"`
	HighQuantile   float64 `json:"high_quantile"`
	MinAxisExtent  float64 `json:"min_axis_extent"` // metres; shorter is BODY_AXIS_TOO_SHORT
	MaxAxisExtent  float64 `json:"max_axis_extent"` // metres; longer suggests a unit error
	MinVertexCount int     `json:"min_vertex_count"`

	// Section band
	SectionRatio       float64 `json:"section_ratio"`         // target = lo + ratio × (hi-lo)
	BandHalfWidthRatio float64 `json:"band_half_width_ratio"` // × (hi-lo)
	MinCandidates      int     `json:"min_candidates"`
	MaxCandidates      int     `json:"max_candidates"`
	MaxBandRetries     int     `json:"max_band_retries"`
	BandGrowth         float64 `json:"band_growth"`
	ExtentAxis         string  `json:"extent_axis,omitempty"`

	// Limb sections
	Side            string   `json:"side,omitempty"` // both, left, right
	LateralAxis     string   `json:"lateral_axis,omitempty"`
	LegGapRatio     float64  `json:"leg_gap_ratio,omitempty"`
	CentreJoints    []string `json:"centre_joints,omitempty"` // lateral centre = midpoint of these joints
	RiskHipJoint    string   `json:"risk_hip_joint,omitempty"`
	RiskKneeJoint   string   `json:"risk_knee_joint,omitempty"`
	HipMarginRatio  float64  `json:"hip_margin_ratio,omitempty"`
	KneeMarginRatio float64  `json:"knee_margin_ratio,omitempty"`

	// Joint-guided caps
	Left          SideJoints `json:"left,omitempty"`
	Right         SideJoints `json:"right,omitempty"`
	R0Ratio       float64    `json:"r0_ratio,omitempty"`
	R1Ratio       float64    `json:"r1_ratio,omitempty"`
	CapQuantile   float64    `json:"cap_quantile,omitempty"`
	MinCapPoints  int        `json:"min_cap_points,omitempty"`
	JointFallback bool       `json:"joint_fallback,omitempty"`

	// Joint chain
	Chain []string `json:"chain,omitempty"`

	// Plausibility; above this the value is flagged, never rejected.
	ValueUpperBound float64 `json:"value_upper_bound"`
}

// maxBandRetries bounds band widening regardless of configuration.
const maxBandRetries = 16

// Clone returns a deep copy of c.
func (c MeasurementConfig) Clone() MeasurementConfig {
	out := c
	out.CentreJoints = append([]string(nil), c.CentreJoints...)
	out.Left.Distal = append([]string(nil), c.Left.Distal...)
	out.Right.Distal = append([]string(nil), c.Right.Distal...)
	out.Chain = append([]string(nil), c.Chain...)
	return out
}

// ReferencedJoints returns every joint name the config refers to, in a fixed
// order, without duplicates.
func (c MeasurementConfig) ReferencedJoints() []string {
	var names []string
	seen := map[string]bool{}
	add := func(ns ...string) {
		for _, n := range ns {
			if n != "" && !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	switch c.Method {
	case MethodCapDistance:
		add(c.Left.Root, c.Left.Next)
		add(c.Left.Distal...)
		add(c.Right.Root, c.Right.Next)
		add(c.Right.Distal...)
	case MethodJointChain:
		add(c.Chain...)
	default:
		add(c.CentreJoints...)
		add(c.RiskHipJoint, c.RiskKneeJoint)
	}
	return names
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func finitePositive(v float64) bool { return v > 0 && !math.IsInf(v, 0) }

// Validate checks that the configuration values are usable.
func (c MeasurementConfig) Validate() error {
	if c.Key == "" {
		return errors.New("key must not be empty")
	}
	switch c.Axis {
	case "x", "y", "z":
	default:
		return fmt.Errorf("%s: axis must be x, y or z, got %q", c.Key, c.Axis)
	}
	if !inUnit(c.LowQuantile) || !inUnit(c.HighQuantile) || c.LowQuantile >= c.HighQuantile {
		return fmt.Errorf("%s: quantiles must satisfy 0 <= low < high <= 1, got %f, %f", c.Key, c.LowQuantile, c.HighQuantile)
	}
	if !(c.MinAxisExtent >= 0) {
		return fmt.Errorf("%s: min_axis_extent must be non-negative, got %f", c.Key, c.MinAxisExtent)
	}
	if !finitePositive(c.MaxAxisExtent) || c.MaxAxisExtent <= c.MinAxisExtent {
		return fmt.Errorf("%s: max_axis_extent must exceed min_axis_extent, got %f", c.Key, c.MaxAxisExtent)
	}
	if c.MinVertexCount < 1 {
		return fmt.Errorf("%s: min_vertex_count must be at least 1, got %d", c.Key, c.MinVertexCount)
	}
	if !finitePositive(c.ValueUpperBound) {
		return fmt.Errorf("%s: value_upper_bound must be positive, got %f", c.Key, c.ValueUpperBound)
	}

	switch c.Method {
	case MethodHullPerimeter, MethodExtent:
		return c.validateSection()
	case MethodCapDistance:
		return c.validateCaps()
	case MethodJointChain:
		if len(c.Chain) < 2 {
			return fmt.Errorf("%s: chain needs at least two joints, got %d", c.Key, len(c.Chain))
		}
		return nil
	default:
		return fmt.Errorf("%s: unknown method %q", c.Key, c.Method)
	}
}

func (c MeasurementConfig) validateSection() error {
	if !inUnit(c.SectionRatio) {
		return fmt.Errorf("%s: section_ratio must be between 0 and 1, got %f", c.Key, c.SectionRatio)
	}
	if !finitePositive(c.BandHalfWidthRatio) || c.BandHalfWidthRatio > 0.5 {
		return fmt.Errorf("%s: band_half_width_ratio must be in (0, 0.5], got %f", c.Key, c.BandHalfWidthRatio)
	}
	if c.MinCandidates < 0 {
		return fmt.Errorf("%s: min_candidates must be non-negative, got %d", c.Key, c.MinCandidates)
	}
	if c.MaxCandidates < 0 || (c.MaxCandidates > 0 && c.MaxCandidates < c.MinCandidates) {
		return fmt.Errorf("%s: max_candidates must be 0 or at least min_candidates, got %d", c.Key, c.MaxCandidates)
	}
	if c.MaxBandRetries < 0 || c.MaxBandRetries > maxBandRetries {
		return fmt.Errorf("%s: max_band_retries must be between 0 and %d, got %d", c.Key, maxBandRetries, c.MaxBandRetries)
	}
	if c.MaxBandRetries > 0 && !(c.BandGrowth > 1) {
		return fmt.Errorf("%s: band_growth must exceed 1 when retries are enabled, got %f", c.Key, c.BandGrowth)
	}
	if c.Method == MethodExtent && c.ExtentAxis == "" {
		return fmt.Errorf("%s: extent method requires extent_axis", c.Key)
	}
	if c.Method == MethodExtent && c.ExtentAxis == c.Axis {
		return fmt.Errorf("%s: extent_axis must differ from the section axis", c.Key)
	}
	switch c.Side {
	case "", "both":
	case "left", "right":
		if c.LateralAxis == "" || c.LateralAxis == c.Axis {
			return fmt.Errorf("%s: limb sections need a lateral_axis distinct from the section axis", c.Key)
		}
	default:
		return fmt.Errorf("%s: side must be both, left or right, got %q", c.Key, c.Side)
	}
	if len(c.CentreJoints) != 0 && len(c.CentreJoints) != 2 {
		return fmt.Errorf("%s: centre_joints must name exactly two joints", c.Key)
	}
	if c.LegGapRatio < 0 || c.HipMarginRatio < 0 || c.KneeMarginRatio < 0 {
		return fmt.Errorf("%s: limb risk ratios must be non-negative", c.Key)
	}
	return nil
}

func (c MeasurementConfig) validateCaps() error {
	for _, s := range []SideJoints{c.Left, c.Right} {
		if s.Root == "" || s.Next == "" {
			return fmt.Errorf("%s: both sides need root and next joints", c.Key)
		}
	}
	if c.R0Ratio < 0 || !(c.R1Ratio > c.R0Ratio) {
		return fmt.Errorf("%s: search band must satisfy 0 <= r0_ratio < r1_ratio, got %f, %f", c.Key, c.R0Ratio, c.R1Ratio)
	}
	if !inUnit(c.CapQuantile) {
		return fmt.Errorf("%s: cap_quantile must be between 0 and 1, got %f", c.Key, c.CapQuantile)
	}
	if c.MinCapPoints < 1 {
		return fmt.Errorf("%s: min_cap_points must be at least 1, got %d", c.Key, c.MinCapPoints)
	}
	return nil
}

// configNamespace scopes the name-based UUIDs of frozen configs.
var configNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/banshee-data/bodymeasure/config"))

// Frozen is an immutable, validated MeasurementConfig snapshot. The zero
// value is not usable; obtain one from Freeze or a Policy.
type Frozen struct {
	cfg MeasurementConfig
	id  uuid.UUID
}

// Freeze validates c and returns an immutable snapshot stamped with version.
// The snapshot ID is a pure function of the config content.
func (c MeasurementConfig) Freeze(version string) (Frozen, error) {
	if version == "" {
		return Frozen{}, errors.New("policy version must not be empty")
	}
	if err := c.Validate(); err != nil {
		return Frozen{}, err
	}
	snap := c.Clone()
	snap.Version = version
	canonical, err := json.Marshal(snap)
	if err != nil {
		return Frozen{}, fmt.Errorf("encoding config %s: %w", c.Key, err)
	}
	return Frozen{cfg: snap, id: uuid.NewSHA1(configNamespace, canonical)}, nil
}

// MustFreeze is Freeze for static defaults and tests. It panics on error.
func (c MeasurementConfig) MustFreeze(version string) Frozen {
	f, err := c.Freeze(version)
	if err != nil {
		panic(err)
	}
	return f
}

// IsZero reports whether f was never frozen.
func (f Frozen) IsZero() bool { return f.id == uuid.Nil }

// Config returns a deep copy of the frozen values.
func (f Frozen) Config() MeasurementConfig { return f.cfg.Clone() }

// Derive returns a mutable copy for building a new config, e.g. a sweep
// grid point. The copy carries no version until frozen again.
func (f Frozen) Derive() MeasurementConfig {
	c := f.cfg.Clone()
	c.Version = ""
	return c
}

// Key returns the measurement key.
func (f Frozen) Key() string { return f.cfg.Key }

// Version returns the policy version the snapshot was frozen under.
func (f Frozen) Version() string { return f.cfg.Version }

// ID returns the content-derived identity.
func (f Frozen) ID() uuid.UUID { return f.id }

// ShortID returns the first eight hex digits of ID.
func (f Frozen) ShortID() string { return f.id.String()[:8] }
