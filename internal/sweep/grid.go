// Package sweep calibrates measurement thresholds by evaluating every point
// of a finite parameter grid over a reference batch of cases and ranking the
// configurations by stability.
package sweep

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/bodymeasure/internal/config"
)

// maxCombos bounds the grid size.
const maxCombos = 10000

// Dimension is one swept tunable and its candidate values.
type Dimension struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Point is one grid configuration. Values align with the grid dimensions.
type Point struct {
	Index  int
	Values []float64
}

// tunable applies a value to one config field.
type tunable struct {
	integer bool
	set     func(c *config.MeasurementConfig, v float64)
}

var tunables = map[string]tunable{
	"section_ratio":         {set: func(c *config.MeasurementConfig, v float64) { c.SectionRatio = v }},
	"band_half_width_ratio": {set: func(c *config.MeasurementConfig, v float64) { c.BandHalfWidthRatio = v }},
	"low_quantile":          {set: func(c *config.MeasurementConfig, v float64) { c.LowQuantile = v }},
	"high_quantile":         {set: func(c *config.MeasurementConfig, v float64) { c.HighQuantile = v }},
	"band_growth":           {set: func(c *config.MeasurementConfig, v float64) { c.BandGrowth = v }},
	"leg_gap_ratio":         {set: func(c *config.MeasurementConfig, v float64) { c.LegGapRatio = v }},
	"cap_quantile":          {set: func(c *config.MeasurementConfig, v float64) { c.CapQuantile = v }},
	"r0_ratio":              {set: func(c *config.MeasurementConfig, v float64) { c.R0Ratio = v }},
	"r1_ratio":              {set: func(c *config.MeasurementConfig, v float64) { c.R1Ratio = v }},
	"min_candidates":        {integer: true, set: func(c *config.MeasurementConfig, v float64) { c.MinCandidates = int(v) }},
	"max_band_retries":      {integer: true, set: func(c *config.MeasurementConfig, v float64) { c.MaxBandRetries = int(v) }},
	"min_cap_points":        {integer: true, set: func(c *config.MeasurementConfig, v float64) { c.MinCapPoints = int(v) }},
}

// Tunables returns the names a Dimension may sweep, sorted.
func Tunables() []string {
	out := make([]string, 0, len(tunables))
	for k := range tunables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidateDimensions checks names, values and the combination cap.
func ValidateDimensions(dims []Dimension) error {
	if len(dims) == 0 {
		return fmt.Errorf("grid needs at least one dimension")
	}
	seen := make(map[string]bool, len(dims))
	for _, d := range dims {
		t, ok := tunables[d.Name]
		if !ok {
			return fmt.Errorf("unknown tunable %q", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("tunable %q swept twice", d.Name)
		}
		seen[d.Name] = true
		if len(d.Values) == 0 {
			return fmt.Errorf("tunable %q has no values", d.Name)
		}
		for _, v := range d.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("tunable %q has non-finite value", d.Name)
			}
			if t.integer && v != math.Trunc(v) {
				return fmt.Errorf("tunable %q takes integers, got %v", d.Name, v)
			}
		}
	}
	return nil
}

// Grid expands dims into their cartesian product. The last dimension varies
// fastest. The product is capped at 10000 combinations.
func Grid(dims []Dimension) ([]Point, error) {
	if err := ValidateDimensions(dims); err != nil {
		return nil, err
	}

	// Check the product before allocating; int64 detects overflow.
	total := int64(1)
	for _, d := range dims {
		total *= int64(len(d.Values))
		if total > maxCombos || total < 0 {
			return nil, fmt.Errorf("parameter combinations would exceed safe limit of %d", maxCombos)
		}
	}

	points := make([]Point, total)
	for i := range points {
		points[i] = Point{Index: i, Values: make([]float64, len(dims))}
	}
	repeat := int64(1)
	for dim := len(dims) - 1; dim >= 0; dim-- {
		vals := dims[dim].Values
		cycle := int64(len(vals))
		for i := int64(0); i < total; i++ {
			points[i].Values[dim] = vals[(i/repeat)%cycle]
		}
		repeat *= cycle
	}
	return points, nil
}

// Apply returns base with the point's values written to the swept fields.
func Apply(base config.MeasurementConfig, dims []Dimension, p Point) config.MeasurementConfig {
	c := base.Clone()
	for i, d := range dims {
		tunables[d.Name].set(&c, p.Values[i])
	}
	return c
}

// ParseDimension parses "name=v1,v2,..." or "name=min:max:step".
func ParseDimension(s string) (Dimension, error) {
	name, spec, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(spec) == "" {
		return Dimension{}, fmt.Errorf("invalid dimension %q: expected name=values", s)
	}
	if strings.Contains(spec, ":") {
		r, err := ParseRangeSpec(spec)
		if err != nil {
			return Dimension{}, fmt.Errorf("dimension %s: %w", name, err)
		}
		vals := GenerateRange(r.Min, r.Max, r.Step)
		if len(vals) == 0 {
			return Dimension{}, fmt.Errorf("dimension %s: range %q is empty", name, spec)
		}
		return Dimension{Name: name, Values: vals}, nil
	}
	vals, err := ParseCSVFloat64s(spec)
	if err != nil {
		return Dimension{}, fmt.Errorf("dimension %s: %w", name, err)
	}
	return Dimension{Name: name, Values: vals}, nil
}

// formatValue renders a grid value for reports.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
