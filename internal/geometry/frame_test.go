package geometry

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func column(ys ...float64) VertexSet {
	vs := make(VertexSet, len(ys))
	for i, y := range ys {
		vs[i] = r3.Vec{X: float64(i) * 0.01, Y: y}
	}
	return vs
}

func TestRobustAxisExtent(t *testing.T) {
	testCases := []struct {
		name        string
		vs          VertexSet
		lowQ, highQ float64
		wantLo      float64
		wantHi      float64
		wantNaN     bool
	}{
		{"empty", nil, 0.01, 0.99, 0, 0, true},
		{"single", column(1.2), 0.01, 0.99, 1.2, 1.2, false},
		{"min_max", column(0, 1, 2, 3, 4), 0, 1, 0, 4, false},
		{"median_both", column(0, 1, 2, 3, 4), 0.5, 0.5, 2, 2, false},
		{"swapped_quantiles", column(0, 1, 2, 3, 4), 1, 0, 0, 4, false},
		{"clamped", column(0, 1, 2, 3, 4), -1, 2, 0, 4, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lo, hi := RobustAxisExtent(tc.vs, AxisY, tc.lowQ, tc.highQ)
			if tc.wantNaN {
				if !math.IsNaN(lo) || !math.IsNaN(hi) {
					t.Errorf("expected NaN extent, got (%f, %f)", lo, hi)
				}
				return
			}
			if math.Abs(lo-tc.wantLo) > 1e-12 || math.Abs(hi-tc.wantHi) > 1e-12 {
				t.Errorf("extent = (%f, %f), want (%f, %f)", lo, hi, tc.wantLo, tc.wantHi)
			}
		})
	}
}

func TestRobustAxisExtent_IgnoresStrayVertices(t *testing.T) {
	ys := make([]float64, 0, 1002)
	for i := 0; i < 1000; i++ {
		ys = append(ys, float64(i)/999*1.7)
	}
	ys = append(ys, -50, 50) // two wild outliers
	lo, hi := RobustAxisExtent(column(ys...), AxisY, 0.01, 0.99)
	if lo < -0.1 || hi > 1.8 {
		t.Errorf("outliers leaked into extent: (%f, %f)", lo, hi)
	}
}

func TestSelectBand(t *testing.T) {
	vs := column(0.0, 0.1, 0.2, 0.3, 0.4, 0.5)

	got := SelectBand(vs, AxisY, 0.25, 0.1)
	want := []int{2, 3}
	if len(got) != len(want) {
		t.Fatalf("SelectBand = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SelectBand[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if got := SelectBand(vs, AxisY, 9, 0.1); len(got) != 0 {
		t.Errorf("expected empty band far from data, got %v", got)
	}
	if got := SelectBand(vs, AxisY, 0.2, -1); got != nil {
		t.Errorf("negative half-width should select nothing, got %v", got)
	}
	if got := SelectBand(vs, AxisY, 0.2, math.NaN()); got != nil {
		t.Errorf("NaN half-width should select nothing, got %v", got)
	}
}

func TestSelectBand_Monotone(t *testing.T) {
	ys := make([]float64, 500)
	for i := range ys {
		// deterministic pseudo-spread over [0, 2)
		ys[i] = math.Mod(float64(i)*0.618034, 2.0)
	}
	vs := column(ys...)

	prev := -1
	for hw := 0.0; hw <= 1.2; hw += 0.01 {
		n := len(SelectBand(vs, AxisY, 1.0, hw))
		if n < prev {
			t.Fatalf("candidate count decreased from %d to %d at half-width %.2f", prev, n, hw)
		}
		prev = n
	}
}

func TestSelectBand_Stable(t *testing.T) {
	vs := column(0.3, 0.1, 0.2, 0.25, 0.15)
	a := SelectBand(vs, AxisY, 0.2, 0.06)
	b := SelectBand(vs, AxisY, 0.2, 0.06)
	if len(a) != len(b) {
		t.Fatalf("unstable band: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("unstable band: %v vs %v", a, b)
		}
	}
}

func TestSplitLateral(t *testing.T) {
	vs := VertexSet{
		{X: -0.20}, {X: -0.10}, {X: -0.05}, // right leg
		{X: 0.06}, {X: 0.12}, {X: 0.19}, // left leg
	}
	idx := []int{0, 1, 2, 3, 4, 5}

	left := SplitLateral(vs, idx, AxisX, 0, SideLeft)
	if len(left.Selected) != 3 || left.Selected[0] != 3 {
		t.Errorf("left side = %v", left.Selected)
	}
	if math.Abs(left.InnerGap-0.11) > 1e-12 {
		t.Errorf("inner gap = %f, want 0.11", left.InnerGap)
	}

	right := SplitLateral(vs, idx, AxisX, 0, SideRight)
	if len(right.Selected) != 3 || right.Selected[2] != 2 {
		t.Errorf("right side = %v", right.Selected)
	}

	both := SplitLateral(vs, idx, AxisX, 0, SideBoth)
	if len(both.Selected) != 6 {
		t.Errorf("both = %v", both.Selected)
	}

	oneSided := SplitLateral(vs, []int{3, 4}, AxisX, 0, SideLeft)
	if !math.IsNaN(oneSided.InnerGap) {
		t.Errorf("one-sided band should have NaN gap, got %f", oneSided.InnerGap)
	}
}

func TestStride(t *testing.T) {
	idx := make([]int, 10)
	for i := range idx {
		idx[i] = i
	}
	testCases := []struct {
		max        int
		wantLen    int
		wantCapped bool
	}{
		{0, 10, false},
		{10, 10, false},
		{20, 10, false},
		{4, 4, true},
		{3, 3, true},
		{1, 1, true},
	}
	for _, tc := range testCases {
		out, capped := Stride(idx, tc.max)
		if len(out) != tc.wantLen || capped != tc.wantCapped {
			t.Errorf("Stride(max=%d) = %v (capped=%v), want len %d capped %v", tc.max, out, capped, tc.wantLen, tc.wantCapped)
		}
	}
}

func TestStride_KeptCountNeverDrops(t *testing.T) {
	const max = 20
	prev := 0
	for n := 1; n <= 5*max; n++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = 10 * i
		}
		out, capped := Stride(idx, max)

		want := n
		if n > max {
			want = max
		}
		if len(out) != want || capped != (n > max) {
			t.Fatalf("Stride(n=%d) kept %d (capped=%v), want %d", n, len(out), capped, want)
		}
		if len(out) < prev {
			t.Fatalf("Stride(n=%d) kept %d, fewer than %d for n=%d", n, len(out), prev, n-1)
		}
		prev = len(out)
		if out[0] != idx[0] {
			t.Errorf("Stride(n=%d) dropped the first index", n)
		}
		for i := 1; i < len(out); i++ {
			if out[i] <= out[i-1] {
				t.Fatalf("Stride(n=%d) not strictly increasing at %d: %v", n, i, out)
			}
		}
	}
}

func TestFromFlat(t *testing.T) {
	vs, err := FromFlat([]float64{1, 2, 3, 4, 5, 6}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vs) != 2 || vs[1].Z != 6 {
		t.Errorf("FromFlat = %v", vs)
	}
	if _, err := FromFlat([]float64{1, 2}, 2); err == nil {
		t.Error("expected shape error for dim=2")
	}
	if _, err := FromFlat([]float64{1, 2, 3, 4}, 3); err == nil {
		t.Error("expected shape error for ragged array")
	}
}

func TestVertexSet_FirstNonFinite(t *testing.T) {
	vs := VertexSet{{X: 1}, {Y: math.Inf(1)}, {Z: math.NaN()}}
	if got := vs.FirstNonFinite(); got != 1 {
		t.Errorf("FirstNonFinite = %d, want 1", got)
	}
	if got := vs[:1].FirstNonFinite(); got != -1 {
		t.Errorf("FirstNonFinite = %d, want -1", got)
	}
}
