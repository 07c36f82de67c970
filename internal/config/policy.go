package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultPolicyPath is where the CLI looks for policy overrides when no path
// is given.
const DefaultPolicyPath = "config/policy.json"

// Policy is a named, versioned set of frozen measurement configs, one per
// measurement key. It is safe to share across goroutines.
type Policy struct {
	version string
	configs map[string]Frozen
	keys    []string
}

// NewPolicy freezes every config under version.
func NewPolicy(version string, cfgs []MeasurementConfig) (*Policy, error) {
	if version == "" {
		return nil, errors.New("policy version must not be empty")
	}
	p := &Policy{version: version, configs: make(map[string]Frozen, len(cfgs))}
	for _, c := range cfgs {
		if _, dup := p.configs[c.Key]; dup {
			return nil, fmt.Errorf("duplicate measurement key %q", c.Key)
		}
		f, err := c.Freeze(version)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		p.configs[c.Key] = f
		p.keys = append(p.keys, c.Key)
	}
	sort.Strings(p.keys)
	return p, nil
}

// Version returns the policy version.
func (p *Policy) Version() string { return p.version }

// Keys returns the measurement keys in sorted order.
func (p *Policy) Keys() []string { return append([]string(nil), p.keys...) }

// Get returns the frozen config for key.
func (p *Policy) Get(key string) (Frozen, bool) {
	f, ok := p.configs[key]
	return f, ok
}

// PolicyFile is the on-disk JSON form of a policy: a version tag plus sparse
// per-key overrides applied on top of the built-in defaults.
type PolicyFile struct {
	Version      string              `json:"version"`
	Measurements map[string]Override `json:"measurements,omitempty"`
}

// Override carries optional replacements for the tunable fields of one
// measurement key. Fields omitted from the JSON retain their defaults, so
// partial files are safe.
type Override struct {
	LowQuantile        *float64 `json:"low_quantile,omitempty"`
	HighQuantile       *float64 `json:"high_quantile,omitempty"`
	MinAxisExtent      *float64 `json:"min_axis_extent,omitempty"`
	MaxAxisExtent      *float64 `json:"max_axis_extent,omitempty"`
	MinVertexCount     *int     `json:"min_vertex_count,omitempty"`
	SectionRatio       *float64 `json:"section_ratio,omitempty"`
	BandHalfWidthRatio *float64 `json:"band_half_width_ratio,omitempty"`
	MinCandidates      *int     `json:"min_candidates,omitempty"`
	MaxCandidates      *int     `json:"max_candidates,omitempty"`
	MaxBandRetries     *int     `json:"max_band_retries,omitempty"`
	BandGrowth         *float64 `json:"band_growth,omitempty"`
	LegGapRatio        *float64 `json:"leg_gap_ratio,omitempty"`
	HipMarginRatio     *float64 `json:"hip_margin_ratio,omitempty"`
	KneeMarginRatio    *float64 `json:"knee_margin_ratio,omitempty"`
	R0Ratio            *float64 `json:"r0_ratio,omitempty"`
	R1Ratio            *float64 `json:"r1_ratio,omitempty"`
	CapQuantile        *float64 `json:"cap_quantile,omitempty"`
	MinCapPoints       *int     `json:"min_cap_points,omitempty"`
	JointFallback      *bool    `json:"joint_fallback,omitempty"`
	ValueUpperBound    *float64 `json:"value_upper_bound,omitempty"`
}

// Apply returns base with every non-nil override field replaced.
func (o Override) Apply(base MeasurementConfig) MeasurementConfig {
	c := base.Clone()
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setI := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&c.LowQuantile, o.LowQuantile)
	setF(&c.HighQuantile, o.HighQuantile)
	setF(&c.MinAxisExtent, o.MinAxisExtent)
	setF(&c.MaxAxisExtent, o.MaxAxisExtent)
	setI(&c.MinVertexCount, o.MinVertexCount)
	setF(&c.SectionRatio, o.SectionRatio)
	setF(&c.BandHalfWidthRatio, o.BandHalfWidthRatio)
	setI(&c.MinCandidates, o.MinCandidates)
	setI(&c.MaxCandidates, o.MaxCandidates)
	setI(&c.MaxBandRetries, o.MaxBandRetries)
	setF(&c.BandGrowth, o.BandGrowth)
	setF(&c.LegGapRatio, o.LegGapRatio)
	setF(&c.HipMarginRatio, o.HipMarginRatio)
	setF(&c.KneeMarginRatio, o.KneeMarginRatio)
	setF(&c.R0Ratio, o.R0Ratio)
	setF(&c.R1Ratio, o.R1Ratio)
	setF(&c.CapQuantile, o.CapQuantile)
	setI(&c.MinCapPoints, o.MinCapPoints)
	if o.JointFallback != nil {
		c.JointFallback = *o.JointFallback
	}
	setF(&c.ValueUpperBound, o.ValueUpperBound)
	return c
}

// maxPolicyFileSize caps policy files at 1MB.
const maxPolicyFileSize = 1 * 1024 * 1024

// LoadPolicy reads a policy JSON file and applies its overrides on top of
// defaults. The file must have a .json extension and be under 1MB. Overrides
// for keys absent from defaults are rejected.
func LoadPolicy(path string, defaults []MeasurementConfig) (*Policy, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("policy file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}
	if fileInfo.Size() > maxPolicyFileSize {
		return nil, fmt.Errorf("policy file too large: %d bytes (max %d)", fileInfo.Size(), maxPolicyFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var pf PolicyFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return pf.Build(defaults)
}

// Build applies the file's overrides to defaults and freezes the result.
func (pf PolicyFile) Build(defaults []MeasurementConfig) (*Policy, error) {
	if pf.Version == "" {
		return nil, errors.New("policy file must set a version")
	}
	byKey := make(map[string]int, len(defaults))
	for i, d := range defaults {
		byKey[d.Key] = i
	}
	overridden := make([]string, 0, len(pf.Measurements))
	for k := range pf.Measurements {
		if _, ok := byKey[k]; !ok {
			return nil, fmt.Errorf("override for unknown measurement key %q", k)
		}
		overridden = append(overridden, k)
	}
	sort.Strings(overridden)

	cfgs := make([]MeasurementConfig, len(defaults))
	for i, d := range defaults {
		cfgs[i] = d.Clone()
	}
	for _, k := range overridden {
		i := byKey[k]
		cfgs[i] = pf.Measurements[k].Apply(cfgs[i])
	}
	return NewPolicy(pf.Version, cfgs)
}
