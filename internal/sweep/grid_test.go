package sweep

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/bodymeasure/internal/measure"
)

func TestGrid_LastDimensionFastest(t *testing.T) {
	dims := []Dimension{
		{Name: "section_ratio", Values: []float64{0.4, 0.5}},
		{Name: "min_candidates", Values: []float64{8, 12, 16}},
	}
	points, err := Grid(dims)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	want := []Point{
		{Index: 0, Values: []float64{0.4, 8}},
		{Index: 1, Values: []float64{0.4, 12}},
		{Index: 2, Values: []float64{0.4, 16}},
		{Index: 3, Values: []float64{0.5, 8}},
		{Index: 4, Values: []float64{0.5, 12}},
		{Index: 5, Values: []float64{0.5, 16}},
	}
	if diff := cmp.Diff(want, points); diff != "" {
		t.Errorf("Grid mismatch (-want +got):\n%s", diff)
	}
}

func TestGrid_Errors(t *testing.T) {
	many := make([]float64, 22)
	for i := range many {
		many[i] = 0.01 * float64(i+1)
	}
	testCases := []struct {
		name string
		dims []Dimension
		want string
	}{
		{"empty", nil, "at least one dimension"},
		{"unknown", []Dimension{{Name: "bogus", Values: []float64{1}}}, "unknown tunable"},
		{"duplicate", []Dimension{{Name: "r0_ratio", Values: []float64{0}}, {Name: "r0_ratio", Values: []float64{0.1}}}, "swept twice"},
		{"no_values", []Dimension{{Name: "r1_ratio"}}, "no values"},
		{"fractional_int", []Dimension{{Name: "min_cap_points", Values: []float64{2.5}}}, "integers"},
		{"too_many", []Dimension{
			{Name: "section_ratio", Values: many},
			{Name: "cap_quantile", Values: many},
			{Name: "r1_ratio", Values: many},
		}, "safe limit of 10000"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Grid(tc.dims)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Grid err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	policy, err := measure.DefaultPolicy(measure.DefaultPolicyVersion)
	if err != nil {
		t.Fatal(err)
	}
	base, _ := policy.Get(measure.WaistCircumference)
	dims := []Dimension{
		{Name: "section_ratio", Values: []float64{0.6}},
		{Name: "min_candidates", Values: []float64{20}},
	}
	c := Apply(base.Derive(), dims, Point{Values: []float64{0.6, 20}})
	if c.SectionRatio != 0.6 || c.MinCandidates != 20 {
		t.Errorf("Apply: ratio=%v min=%d", c.SectionRatio, c.MinCandidates)
	}
	if got := base.Config().SectionRatio; got != 0.62 {
		t.Errorf("base config mutated: section_ratio=%v", got)
	}
}

func TestParseDimension(t *testing.T) {
	testCases := []struct {
		input   string
		want    Dimension
		wantErr bool
	}{
		{"cap_quantile=0.7,0.8,0.9", Dimension{Name: "cap_quantile", Values: []float64{0.7, 0.8, 0.9}}, false},
		{"section_ratio=0.5:0.7:0.1", Dimension{Name: "section_ratio", Values: []float64{0.5, 0.6, 0.7}}, false},
		{" min_candidates = 8,12", Dimension{Name: "min_candidates", Values: []float64{8, 12}}, false},
		{"section_ratio", Dimension{}, true},
		{"=0.5", Dimension{}, true},
		{"section_ratio=", Dimension{}, true},
		{"section_ratio=0.7:0.5:0.1", Dimension{}, true},
		{"section_ratio=a,b", Dimension{}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseDimension(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseDimension(%q) err = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if diff := cmp.Diff(tc.want, got); !tc.wantErr && diff != "" {
				t.Errorf("ParseDimension(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}
		})
	}
}

func TestTunables(t *testing.T) {
	names := Tunables()
	for _, want := range []string{"section_ratio", "band_half_width_ratio", "min_candidates", "cap_quantile",
		"r0_ratio", "r1_ratio", "min_cap_points", "low_quantile", "high_quantile"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("tunable %q not registered", want)
		}
	}
}
